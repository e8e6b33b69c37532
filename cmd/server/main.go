package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rongwang/groupbets-server/internal/api"
	"github.com/rongwang/groupbets-server/internal/config"
	"github.com/rongwang/groupbets-server/internal/service"
	"github.com/rongwang/groupbets-server/internal/utils"
)

func main() {
	_ = godotenv.Load() // allow .env for local runs

	// Load configuration
	cfg := config.LoadConfig()
	utils.SetupLogger(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Set up storage; the one handle is shared by every request
	repo, err := config.SetupRepository(ctx, cfg)
	if err != nil {
		slog.Error("Failed to set up storage", "driver", cfg.Store.Driver, "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			slog.Error("Failed to close storage", "error", err)
		}
	}()

	// Create service
	svc := service.NewDefaultService(repo, cfg.Security.BcryptCost)

	// Create API handler
	handler := api.NewHandler(svc)

	// Set up Gin router
	router := gin.New()
	router.Use(gin.Recovery(), api.RequestID(), api.RequestLogger(), api.Metrics())
	if cfg.RateLimit.RequestsPerSecond > 0 {
		limiter := api.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
		limiter.StartCleanup(ctx, time.Minute)
		router.Use(limiter.Handler())
	}

	// Set up routes
	handler.SetupRoutes(router)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("Starting server", "addr", server.Addr, "driver", cfg.Store.Driver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			slog.Error("Server failed", "error", err)
		}
	case <-ctx.Done():
		slog.Info("Shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server shutdown failed", "error", err)
	}
}
