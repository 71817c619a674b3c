package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"lob_go/internal/app"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	// 1. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. System Bootstrapping
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(ctx, *configPath); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		bootstrap.Shutdown()
		os.Exit(1)
	}

	// 3. Hotpath, feeds and debug server until a signal arrives
	bootstrap.Run(ctx)
	bootstrap.Shutdown()
	slog.Info("Bye")
}
