// Package main implements the entry point for the PrintFlow API server,
// which ingests chunked print-file uploads, persists the resulting orders,
// and drives the background processing pipeline (thumbnails, notifications,
// catch-up sweeps).
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	app, err := newApplication()
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}
	defer app.close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.run(ctx); err != nil {
		app.logger.Error("Application exited with error", "error", err)
		os.Exit(1)
	}
}
