package auth

import (
	"context"
	"errors"
	"net/http"

	"ordersvc/internal/repository"
	"ordersvc/internal/usecase"
)

type LogoutOutput struct {
	UserID          int64 `json:"user_id"`
	NewTokenVersion int   `json:"new_token_version"`
}

// token_versionを上げて、発行済みのアクセストークンを全部無効にする
type LogoutUsecase struct {
	userRepo repository.UserRepository
}

func NewLogoutUsecase(userRepo repository.UserRepository) *LogoutUsecase {
	return &LogoutUsecase{userRepo: userRepo}
}

func (u *LogoutUsecase) Execute(ctx context.Context, userID int64) (LogoutOutput, error) {
	if userID <= 0 {
		return LogoutOutput{}, usecase.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	if err := u.userRepo.IncrementTokenVersion(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return LogoutOutput{}, usecase.NewHTTPError(http.StatusUnauthorized, "unauthorized")
		}
		return LogoutOutput{}, usecase.NewHTTPError(http.StatusInternalServerError, "db error")
	}

	//更新後を取得して新しいtvを返す
	user, err := u.userRepo.FindByID(ctx, userID)
	if err != nil || user == nil {
		return LogoutOutput{}, usecase.NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return LogoutOutput{UserID: user.ID, NewTokenVersion: user.TokenVersion}, nil
}
