package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"tradingengine/internal/app"
	"tradingengine/internal/infra"
)

func main() {
	configPath := flag.String("config", "", "path to the server configuration file (default: resolved via the workspace/OS config search order)")
	flag.Parse()

	path := *configPath
	if path == "" {
		path = infra.ResolveConfigPath()
	}

	bootstrap, err := app.New(path)
	if err != nil {
		slog.Error("bootstrap failed", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.InfoContext(ctx, "trading data engine starting")
	if err := bootstrap.Run(ctx); err != nil {
		slog.Error("server exited with error", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("shutdown complete")
}
