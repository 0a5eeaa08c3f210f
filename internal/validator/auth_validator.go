package validator

import (
	"net/mail"
	"strings"
)

// パスワードの最小文字数
const MinPasswordLength = 5

// 会員登録の入力
type RegisterInput struct {
	Email     string
	Password1 string
	Password2 string
	FirstName string
	LastName  string
}

// 会員登録の入力を検証。エラーはフィールド名→メッセージ
func ValidateRegister(in RegisterInput) map[string]string {
	fields := map[string]string{}

	email := strings.TrimSpace(in.Email)
	switch {
	case email == "":
		fields["email"] = "This field is required."
	case !isEmailLike(email):
		fields["email"] = "Enter a valid email address."
	}

	if in.Password1 == "" {
		fields["password1"] = "This field is required."
	} else if len(in.Password1) < MinPasswordLength {
		fields["password1"] = "Password must be at least 5 characters long."
	}
	if in.Password2 == "" {
		fields["password2"] = "This field is required."
	} else if in.Password1 != in.Password2 {
		fields["password2"] = "The two password fields didn't match."
	}

	if len(in.FirstName) > 150 {
		fields["first_name"] = "Ensure this field has no more than 150 characters."
	}
	if len(in.LastName) > 150 {
		fields["last_name"] = "Ensure this field has no more than 150 characters."
	}

	return fields
}

// ログインの入力を検証
func ValidateLogin(email, password string) map[string]string {
	fields := map[string]string{}
	if strings.TrimSpace(email) == "" {
		fields["email"] = "This field is required."
	}
	if password == "" {
		fields["password"] = "This field is required."
	}
	return fields
}

// メール形式チェック（表示名付きは不可）
func isEmailLike(s string) bool {
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return false
	}
	return addr.Address == s && strings.Contains(s[strings.LastIndex(s, "@")+1:], ".")
}
