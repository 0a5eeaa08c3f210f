package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"ordersvc/internal/repository"
	"ordersvc/internal/usecase"
	"ordersvc/internal/validator"
)

// token 形（JwtAccessToken相当）
type JwtAccessToken struct {
	AccessToken  string `json:"access_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenVersion int    `json:"token_version"`
}

// handlerがJSONにして返す
type LoginOutput struct {
	User  UserDTO        `json:"user"`
	Token JwtAccessToken `json:"token"`
}

type LoginUsecase struct {
	userRepo repository.UserRepository
	verifier PasswordVerifier
	issuer   *JWTIssuer
	clock    usecase.Clock
	log      *slog.Logger
}

func NewLoginUsecase(
	userRepo repository.UserRepository,
	verifier PasswordVerifier,
	issuer *JWTIssuer,
	clock usecase.Clock,
	log *slog.Logger,
) *LoginUsecase {
	if clock == nil {
		clock = usecase.SystemClock()
	}
	if log == nil {
		log = slog.Default()
	}
	return &LoginUsecase{userRepo: userRepo, verifier: verifier, issuer: issuer, clock: clock, log: log}
}

// メールまたはパスワードが違う（どちらかは区別しない）
func invalidCredentials() error {
	return usecase.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
}

// ログイン処理を実行する
func (u *LoginUsecase) Execute(ctx context.Context, email, password string) (LoginOutput, error) {
	if fields := validator.ValidateLogin(email, password); len(fields) > 0 {
		return LoginOutput{}, usecase.NewValidationError(fields)
	}

	//emailでユーザー取得
	user, err := u.userRepo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, repository.ErrUserNotFound) {
		return LoginOutput{}, invalidCredentials()
	}
	if err != nil {
		return LoginOutput{}, usecase.NewHTTPError(http.StatusInternalServerError, "db error")
	}

	//停止ユーザーはログイン不可
	if !user.IsActive {
		return LoginOutput{}, usecase.NewHTTPError(http.StatusForbidden, "user is inactive")
	}

	//パスワード照合
	if ok := u.verifier.Verify(password, user.PasswordHash); !ok {
		return LoginOutput{}, invalidCredentials()
	}

	//AccessToken発行
	now := u.clock.Now()
	accessToken, accessExp, err := u.issuer.Issue(user.ID, user.Role, user.TokenVersion, now)
	if err != nil {
		return LoginOutput{}, usecase.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	//最終ログイン時刻更新（失敗してもログインは通す）
	user.LastLoginAt = &now
	if err := u.userRepo.Update(ctx, user); err != nil {
		u.log.WarnContext(ctx, "last login update failed", "user_id", user.ID, "error", err)
	}

	return LoginOutput{
		User: toUserDTO(user),
		Token: JwtAccessToken{
			AccessToken:  accessToken,
			ExpiresIn:    int(accessExp.Sub(now).Seconds()),
			TokenVersion: user.TokenVersion,
		},
	}, nil
}
