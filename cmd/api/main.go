package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/davmie/userbase/internal/config"
	"github.com/davmie/userbase/internal/db"
	"github.com/davmie/userbase/internal/repo"
	"github.com/davmie/userbase/internal/stats"
	"github.com/joho/godotenv"
)

func main() {
	// Optional .env for local development; real deployments set the
	// environment directly.
	_ = godotenv.Load()

	cfg := config.Load()
	setupLogger(cfg.LogFormat)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	database, err := db.Connect(cfg.DBHost, cfg.DBPort, cfg.DBName, cfg.DBUser, cfg.DBPass,
		cfg.DBMaxOpenConns, cfg.DBMaxIdleConns)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	if err := db.Migrate(db.URL(cfg.DBHost, cfg.DBPort, cfg.DBName, cfg.DBUser, cfg.DBPass)); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	userRepo := repo.NewUserRepo(database)

	if cfg.SeedAdmin {
		if err := db.SeedAdmin(context.Background(), userRepo); err != nil {
			slog.Error("failed to seed bootstrap admin", "error", err)
			os.Exit(1)
		}
	}

	collector := stats.NewCollector(userRepo, cfg.StatsCron)
	if err := collector.Start(); err != nil {
		slog.Error("failed to start stats collector", "error", err)
		os.Exit(1)
	}
	defer collector.Stop()

	r := newRouter(database, cfg)
	addr := ":" + cfg.Port

	if cfg.TLSCertFile != "" && cfg.TLSKeyFile != "" {
		slog.Info("starting api", "addr", addr, "tls", true)
		err = http.ListenAndServeTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile, r)
	} else {
		slog.Info("starting api", "addr", addr, "tls", false)
		err = http.ListenAndServe(addr, r)
	}
	if err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// setupLogger installs the default slog handler: plain text for dev, JSON
// when LOG_FORMAT=json.
func setupLogger(format string) {
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, nil)
	} else {
		handler = slog.NewTextHandler(os.Stdout, nil)
	}
	slog.SetDefault(slog.New(handler))
}
