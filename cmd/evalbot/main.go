package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/evalbot/evalbot/internal/config"
	"github.com/evalbot/evalbot/internal/controller"
	"github.com/evalbot/evalbot/internal/db"
	"github.com/evalbot/evalbot/internal/playground"
	"github.com/evalbot/evalbot/internal/telegram"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "evalbot.yaml", "path to config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	setupLogging(cfg.Log.Level)

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer database.Close()

	store := db.NewStore(database)
	queries := db.NewQueries(store)

	pg := playground.NewClient(cfg.Playground.BaseURL)
	ctrl := controller.New(queries, pg)

	env := telegram.EnvProd
	if cfg.Telegram.Env == "test" {
		env = telegram.EnvTest
	}
	client := telegram.NewClient(cfg.Telegram.APIKey, env)

	me, err := client.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("getting bot info: %w", err)
	}
	slog.Info("bot ready", "id", me.ID, "username", me.Username, "db", cfg.Database.Path)

	telegram.NewHandler(client, ctrl).Run(ctx)
	slog.Info("shutting down")
	return nil
}

func setupLogging(level string) {
	logLevel := slog.LevelInfo
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(handler))
}
