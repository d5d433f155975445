// Package main запускает HTTP-сервер сервиса govpoints.
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

	"github.com/mmeshcher/govpoints-system/internal/config"
	"github.com/mmeshcher/govpoints-system/internal/handler"
	"github.com/mmeshcher/govpoints-system/internal/middleware"
	"github.com/mmeshcher/govpoints-system/internal/registry"
	"github.com/mmeshcher/govpoints-system/internal/repository"
	"github.com/mmeshcher/govpoints-system/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	var repo service.Repository
	if cfg.DatabaseURI != "" {
		repo, err = repository.NewPostgresRepository(cfg.DatabaseURI, cfg.RewardPoolBudget)
		if err != nil {
			sugar.Fatalw("database initialization error", "error", err.Error())
		}
	} else {
		sugar.Warn("DATABASE_URI is empty, using in-memory storage")
		repo = repository.NewMemoryRepository(cfg.RewardPoolBudget)
	}
	defer repo.Close()

	svc := service.NewService(repo, registry.New())
	defer svc.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	added, err := svc.EnsureDefaultRewards(ctx)
	if err != nil {
		sugar.Fatalw("reward catalog initialization error", "error", err.Error())
	}
	if added > 0 {
		sugar.Infow("reward catalog seeded", "added", added)
	}

	adminAuth := middleware.NewAdminAuth(cfg.AdminToken)
	h := handler.NewHandler(svc, logger, adminAuth)

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: h.SetupRouter(),
	}

	g, ctx := errgroup.WithContext(ctx)

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting govpoints server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
