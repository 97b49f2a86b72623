// Package main запускает HTTP-сервер интернет-магазина.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/storefront/internal/auth"
	"github.com/mmeshcher/storefront/internal/cache"
	"github.com/mmeshcher/storefront/internal/config"
	"github.com/mmeshcher/storefront/internal/handler"
	"github.com/mmeshcher/storefront/internal/metrics"
	"github.com/mmeshcher/storefront/internal/notify"
	"github.com/mmeshcher/storefront/internal/repository"
	"github.com/mmeshcher/storefront/internal/service"
	"github.com/mmeshcher/storefront/internal/storage"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := newRepository(cfg, sugar)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}

	disk, staticDir, err := newDisk(ctx, cfg)
	if err != nil {
		sugar.Fatalw("storage initialization error", "error", err.Error())
	}

	m := metrics.New()

	var c cache.Cache = cache.Nop{}
	if cfg.Redis.Addr != "" {
		rc, err := cache.NewRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, m)
		if err != nil {
			sugar.Fatalw("cache initialization error", "error", err.Error())
		}
		defer rc.Close()
		c = rc
	}

	var mailer notify.Mailer = notify.NewLogMailer(logger)
	if cfg.SMTP.Host != "" {
		mailer = notify.NewSMTPMailer(notify.SMTPOptions{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		})
	}
	notifier := notify.NewNotifier(mailer, cfg.OwnerEmail, cfg.NotifyWorkers, m, logger)

	svc := service.NewService(repo, service.Deps{
		Disk:     disk,
		Cache:    c,
		CacheTTL: cfg.CacheTTL,
		Notifier: notifier,
		Metrics:  m,
		Logger:   logger,
	})
	defer svc.Close()

	if cfg.Admin.Enabled() {
		if err := svc.EnsureAdmin(ctx, cfg.Admin.Username, cfg.Admin.Password, cfg.Admin.Email); err != nil {
			sugar.Fatalw("admin bootstrap error", "error", err.Error())
		}
	}

	if cfg.JWTSecret == "" {
		sugar.Warn("JWT secret is not set, tokens will not survive a restart")
	}
	tokens := auth.NewTokenManager(cfg.JWTSecret)

	h := handler.NewHandler(svc, logger, tokens, handler.Options{
		Metrics:     m,
		StaticDir:   staticDir,
		StaticPath:  cfg.Storage.PublicPath,
		CORSOrigins: cfg.CORSOrigins,
	})

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: h.SetupRouter(),
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sugar.Infow("starting storefront server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")
		return shutdown(server, notifier, cfg.ShutdownTimeout, sugar)
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}

// shutdown останавливает HTTP-сервер и дожидается отправки писем из очереди, даже если сервер не остановился вовремя.
func shutdown(server interface{ Shutdown(context.Context) error }, notifier interface{ Shutdown() }, timeout time.Duration, sugar *zap.SugaredLogger) error {
	defer func() {
		notifier.Shutdown()
		sugar.Info("notification queue drained")
	}()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	sugar.Info("server stopped gracefully")
	return nil
}

func newRepository(cfg *config.Config, sugar *zap.SugaredLogger) (service.Repository, error) {
	if cfg.DatabaseURI == "" {
		sugar.Warn("DATABASE_URI is not set, using in-memory storage")
		return repository.NewMemoryRepository(), nil
	}
	return repository.NewPostgresRepository(cfg.DatabaseURI)
}

// newDisk возвращает хранилище изображений и каталог для раздачи статики (пустой для S3).
func newDisk(ctx context.Context, cfg *config.Config) (storage.Disk, string, error) {
	if cfg.Storage.Disk == "s3" {
		d, err := storage.NewS3Disk(ctx, storage.S3Options{
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			PublicURL: cfg.S3.PublicURL,
		})
		return d, "", err
	}

	d, err := storage.NewLocalDisk(cfg.Storage.UploadDir, cfg.Storage.PublicPath)
	if err != nil {
		return nil, "", err
	}
	return d, d.Root(), nil
}
