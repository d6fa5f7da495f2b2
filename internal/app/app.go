package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/you/accountsvc/internal/config"
	httpx "github.com/you/accountsvc/internal/http"
	"github.com/you/accountsvc/internal/http/handlers"
	"github.com/you/accountsvc/internal/http/middleware"
)

const shutdownTimeout = 15 * time.Second

// NewLogger builds the JSON process logger at the given level
func NewLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// NewRouter wires handlers and middleware over the container
func NewRouter(c *Container) (*gin.Engine, error) {
	if err := handlers.RegisterValidators(c.PasswordPolicy); err != nil {
		return nil, fmt.Errorf("failed to register validators: %w", err)
	}

	sqlDB, err := c.DB.DB()
	if err != nil {
		return nil, err
	}
	health := handlers.NewHealthHandlers(map[string]handlers.Pinger{
		"database": handlers.PingFunc(sqlDB.PingContext),
		"redis":    c.Redis,
	})

	authH := handlers.NewAuthHandlers(c.AuthSvc, c.VerificationSvc)
	jwtMW := middleware.NewAuthMW(c.TokenSvc, c.RefreshRepo)

	return httpx.BuildRouter(authH, health, jwtMW, c.Logger), nil
}

// Run serves HTTP until SIGINT or SIGTERM, then shuts down in order:
// server, delivery queue, redis, database.
func Run(cfg *config.Config) error {
	logger := NewLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	container, err := NewContainer(ctx, cfg, logger)
	if err != nil {
		return err
	}

	router, err := NewRouter(container)
	if err != nil {
		container.Close(context.Background())
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		container.Close(context.Background())
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	container.Close(shutdownCtx)
	return nil
}
