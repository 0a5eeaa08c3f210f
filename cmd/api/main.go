package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"ordersvc/internal/config"
	"ordersvc/internal/handler"
	"ordersvc/internal/infra/db"
	"ordersvc/internal/infra/notify"
	infraRepo "ordersvc/internal/infra/repository"
	"ordersvc/internal/server"
	"ordersvc/internal/usecase"
	auth "ordersvc/internal/usecase/auth_usecase"
)

func newLogger(cfg config.Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.IsProd() {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// SMTPが無ければログに出すだけ
func newSender(cfg config.Config, log *slog.Logger) notify.Sender {
	if cfg.SMTPHost == "" {
		return notify.NewLogSender(log)
	}
	return notify.NewMailSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.MailFrom)
}

func main() {
	//.envは無くてもよい（本番は環境変数で渡す）
	if err := godotenv.Load(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) || os.Getenv("GO_ENV") == "prod" {
			slog.Warn(".env not loaded", "err", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	log := newLogger(cfg)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	//DB接続
	gormDB, err := db.Connect(cfg)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}

	//Repository（GORM実装）
	userRepo := infraRepo.NewUserGormRepository(gormDB)
	productRepo := infraRepo.NewProductGormRepository(gormDB)
	promoRepo := infraRepo.NewPromoCodeGormRepository(gormDB)
	auditRepo := infraRepo.NewAuditLogGormRepository(gormDB)
	txm := infraRepo.NewTxManagerGorm(gormDB)

	//通知（コミット後に非同期で送る）
	dispatcher := notify.NewDispatcher(
		newSender(cfg, log),
		cfg.NotifyWorkers,
		cfg.NotifyQueueSize,
		notify.DefaultRetryConfig(),
		log,
	)

	clock := usecase.SystemClock()

	//bcrypt（会員登録：Hash / ログイン：Verify）
	hasher := auth.NewBcryptPasswordHasher(12)
	verifier := auth.NewBcryptPasswordVerifier()
	issuer := auth.NewJWTIssuer(cfg.JWTSecret, cfg.AccessTokenTTL)

	//Usecase
	registerUC := auth.NewRegisterUserUsecase(userRepo, hasher, clock)
	loginUC := auth.NewLoginUsecase(userRepo, verifier, issuer, clock, log)
	productUC := usecase.NewProductUsecase(productRepo, txm, cfg.ProductCacheSize, cfg.ProductCacheTTL, clock, log)
	promoUC := usecase.NewPromoCodeUsecase(promoRepo, txm, clock, log)
	orderUC := usecase.NewOrderUsecase(txm, dispatcher, clock, log)
	adminOrderUC := usecase.NewAdminOrderUsecase(txm, clock, log)
	auditUC := usecase.NewAuditLogUsecase(auditRepo)

	e := server.New(log)
	server.RegisterRoutes(e, cfg.JWTSecret, userRepo, server.Handlers{
		Auth:         handler.NewAuthHandler(registerUC, loginUC, auth.NewLogoutUsecase(userRepo)),
		Product:      handler.NewProductHandler(productUC),
		AdminProduct: handler.NewAdminProductHandler(productUC),
		PromoCode:    handler.NewPromoCodeHandler(promoUC),
		Order:        handler.NewOrderHandler(orderUC),
		AdminOrder:   handler.NewAdminOrderHandler(adminOrderUC),
		AuditLog:     handler.NewAuditLogHandler(auditUC),
	})

	addr := ":" + strings.TrimPrefix(cfg.Port, ":")
	srvErr := server.Start(ctx, e, addr, log)

	//キューに残った通知を送り切る
	drainCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := dispatcher.Close(drainCtx); err != nil {
		log.Error("notification drain incomplete", "err", err)
	}

	if sqlDB, err := gormDB.DB(); err == nil {
		_ = sqlDB.Close()
	}
	return srvErr
}
