package model

import "github.com/shopspring/decimal"

// 通知に渡す確定済み注文のコピー（DBの行は参照しない）
type OrderSnapshot struct {
	OrderID       int64
	UserEmail     string
	UserFirstName string
	Items         []OrderSnapshotItem
	TotalPrice    decimal.Decimal
	Discount      decimal.Decimal
}

type OrderSnapshotItem struct {
	ProductName string
	Quantity    int64
}
