package usecase

import (
	"time"

	"ordersvc/internal/domain/model"
)

// 操作しているユーザー。ハンドラがJWTから作って毎回渡す
type Caller struct {
	UserID int64
	Role   model.Role
}

func (c Caller) IsStaff() bool {
	return c.Role == model.RoleStaff
}

// 所有者かスタッフなら触れる
func (c Caller) CanAccess(ownerID int64) bool {
	return c.IsStaff() || c.UserID == ownerID
}

// 現在の時間
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock は実時間
func SystemClock() Clock { return systemClock{} }
