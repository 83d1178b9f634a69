package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"obstaclecam/internal/app"
	"obstaclecam/internal/config"

	_ "obstaclecam/internal/inference/opencv"
	_ "obstaclecam/internal/inference/tflite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.NewApp(config.Load())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start server: %v\n", err)
		os.Exit(1)
	}

	if err := application.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Server stopped with error: %v\n", err)
		os.Exit(1)
	}
}
