package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/urfave/cli/v3"

	"localnotify/internal/app"
	"localnotify/internal/localnotify"
	logx "localnotify/pkg/logx"
)

type WatchCmd struct {
	flags *Flags
	trace bool
}

func NewWatchCmd(flags *Flags) *WatchCmd { return &WatchCmd{flags: flags} }

func (cmd *WatchCmd) Register(root *cli.Command) *cli.Command {
	root.Commands = append(root.Commands, &cli.Command{
		Name:      "watch",
		Usage:     "Run the host and print notifications as they fire",
		UsageText: "localnotify watch [--trace]",
		Description: `Runs until interrupted, printing each fired notification as a JSON line.
Notifications that came due while nothing was running fire on start.

The config file is watched; logging changes apply live. Under systemd
(Type=notify) readiness is reported once the host is accepting commands.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "trace", Usage: "also print bridge trace events", Destination: &cmd.trace},
		},
		Action: cmd.run,
	})
	return root
}

func (cmd *WatchCmd) run(ctx context.Context, c *cli.Command) error {
	a, err := app.New(cmd.flags.ConfigPath)
	if err != nil {
		return fmt.Errorf("load: %w", err)
	}

	var mu sync.Mutex
	enc := json.NewEncoder(os.Stdout)
	emit := func(v any) {
		mu.Lock()
		defer mu.Unlock()
		_ = enc.Encode(v)
	}
	a.Client().Subscribe(func(r localnotify.Record) { emit(viewOf(r)) })
	if cmd.trace {
		events, unsub := a.Bus().Subscribe(256)
		defer unsub()
		go func() {
			for e := range events {
				emit(map[string]any{"event": e.Type, "time": e.Time, "data": e.Data})
			}
		}()
	}

	if err := a.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	a.WatchConfig()
	notifySystemd(a.Logger(), daemon.SdNotifyReady)

	select {
	case <-ctx.Done():
	case <-a.Done():
	}
	notifySystemd(a.Logger(), daemon.SdNotifyStopping)

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Stop(stopCtx); err != nil {
		return err
	}
	return a.Err()
}

// notifySystemd is a no-op outside systemd.
func notifySystemd(log logx.Logger, state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		log.Debug("sd_notify sent", logx.String("state", state))
	}
}
