package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spherical/paper-video/cmd/paper-video/commands"
)

func main() {
	// Set up signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\n\nReceived interrupt signal, shutting down...")
		cancel()
	}()

	if err := commands.Execute(ctx); err != nil {
		os.Exit(1)
	}
}
