package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd(openPostgres).ExecuteContext(ctx); err != nil {
		slog.Error("colisctl failed", "error", err.Error())
		cancel()
		os.Exit(1)
	}
}
