package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/you/accountsvc/internal/app"
	"github.com/you/accountsvc/internal/config"
)

func main() {
	// .env is optional; real environment variables win
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to read .env", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}
	if err := app.Run(cfg); err != nil {
		slog.Error("app", "error", err)
		os.Exit(1)
	}
}
