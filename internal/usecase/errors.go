package usecase

import (
	"errors"
	"fmt"
	"net/http"
)

// エラーコード（レスポンスのcode）
const (
	CodeValidation        = "validation_error"
	CodeInsufficientStock = "insufficient_stock"
	CodeInvalidPromoCode  = "invalid_promo_code"
	CodeNotFound          = "not_found"
	CodeForbidden         = "forbidden"
	CodeUnauthorized      = "unauthorized"
	CodeConflict          = "conflict"
	CodeBadRequest        = "bad_request"
	CodeInternal          = "internal"
)

type HTTPError struct {
	Status  int
	Code    string
	Message string

	//項目ごとのエラー（ValidationErrorのとき）
	Fields map[string]string
	//在庫不足になった商品
	ProductID *int64
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

func NewHTTPError(status int, message string) error {
	return &HTTPError{
		Status:  status,
		Code:    codeFor(status),
		Message: message,
	}
}

// 400 項目ごとのエラー
func NewValidationError(fields map[string]string) error {
	return &HTTPError{
		Status:  http.StatusBadRequest,
		Code:    CodeValidation,
		Message: "validation error",
		Fields:  fields,
	}
}

// 400 在庫不足（どの商品か返す）
func NewInsufficientStockError(productID int64) error {
	id := productID
	return &HTTPError{
		Status:    http.StatusBadRequest,
		Code:      CodeInsufficientStock,
		Message:   fmt.Sprintf("insufficient stock for product %d", productID),
		ProductID: &id,
	}
}

// 400 プロモコード不正。見つからない/期限切れ/使用済みを区別しない
func ErrInvalidPromoCode() error {
	return &HTTPError{
		Status:  http.StatusBadRequest,
		Code:    CodeInvalidPromoCode,
		Message: "invalid or expired promo code",
	}
}

// 404
func NotFound() error {
	return NewHTTPError(http.StatusNotFound, "not found")
}

func dbError() error {
	return NewHTTPError(http.StatusInternalServerError, "db error")
}

func AsHTTPError(err error) (*HTTPError, bool) {
	var he *HTTPError
	ok := errors.As(err, &he)
	return he, ok
}

func codeFor(status int) string {
	switch status {
	case http.StatusBadRequest:
		return CodeBadRequest
	case http.StatusUnauthorized:
		return CodeUnauthorized
	case http.StatusForbidden:
		return CodeForbidden
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusConflict:
		return CodeConflict
	default:
		return CodeInternal
	}
}
