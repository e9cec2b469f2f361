package commands

import (
	"context"
	"fmt"
	"time"

	"localnotify/internal/app"
)

// Flags holds the global flags shared by every command.
type Flags struct {
	ConfigPath string
	Timeout    time.Duration
}

// withApp starts the in-process client and host, runs fn, and stops them.
// fn's context is bounded by --timeout, falling back to client.request_timeout.
func withApp(ctx context.Context, flags *Flags, fn func(ctx context.Context, a *app.App) error) error {
	a, err := app.New(flags.ConfigPath)
	if err != nil {
		return fmt.Errorf("load: %w", err)
	}
	if err := a.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Stop(stopCtx)
	}()

	timeout := flags.Timeout
	if timeout <= 0 {
		timeout = a.RequestTimeout()
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return fn(ctx, a)
}

// settle waits until the host has handled every command sent so far. Commands
// without replies give no other signal, and the process may exit right after.
func settle(ctx context.Context, a *app.App) error {
	if _, err := a.Client().ListWait(ctx); err != nil {
		return fmt.Errorf("waiting for host: %w", err)
	}
	return nil
}
