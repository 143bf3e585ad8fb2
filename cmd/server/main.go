package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelbridge/modelbridge/config"
	"github.com/modelbridge/modelbridge/pkg/otel"
	"github.com/modelbridge/modelbridge/server"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var configPath string
	var address string

	flag.StringVar(&configPath, "config", "config.yaml", "configuration file")
	flag.StringVar(&address, "address", "", "listen address")
	flag.Parse()

	if otel.EnableTelemetry {
		if err := otel.Setup(ctx, "modelbridge", version); err != nil {
			slog.Error("telemetry setup failed", "error", err)
			os.Exit(1)
		}
	} else {
		level := slog.LevelInfo

		if otel.EnableDebug {
			level = slog.LevelDebug
		}

		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	}

	cfg, err := config.Parse(configPath)

	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	if address != "" {
		cfg.Address = address
	}

	slog.Info("starting server", "address", cfg.Address, "version", version)

	if err := server.New(cfg).ListenAndServe(ctx); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
