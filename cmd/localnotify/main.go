package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"localnotify/internal/commands"
)

// Populated at build time via -ldflags.
var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := commands.NewRoot(version).Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}
