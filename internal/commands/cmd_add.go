package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"localnotify/internal/app"
	"localnotify/internal/localnotify"
)

type AddCmd struct {
	flags *Flags

	name   string
	title  string
	text   string
	sound  string
	action string
	icon   string
	number int
	at     string
	in     time.Duration
	repeat time.Duration
	data   string
}

func NewAddCmd(flags *Flags) *AddCmd { return &AddCmd{flags: flags} }

func (cmd *AddCmd) Register(root *cli.Command) *cli.Command {
	root.Commands = append(root.Commands, &cli.Command{
		Name:      "add",
		Usage:     "Schedule a notification",
		UsageText: "localnotify add --name NAME [--in 10m | --at 2030-01-02T09:00:00Z] [--repeat 24h] [--data JSON]",
		Description: `Schedules a notification with the host. Adding a name that already
exists replaces it.

--data is parsed as JSON when possible and stored as-is otherwise; it comes
back as userDefined when the notification is listed or fires.`,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Usage: "notification name", Required: true, Destination: &cmd.name},
			&cli.StringFlag{Name: "title", Destination: &cmd.title},
			&cli.StringFlag{Name: "text", Destination: &cmd.text},
			&cli.StringFlag{Name: "sound", Destination: &cmd.sound},
			&cli.StringFlag{Name: "action", Destination: &cmd.action},
			&cli.StringFlag{Name: "icon", Destination: &cmd.icon},
			&cli.IntFlag{Name: "number", Usage: "badge number", Destination: &cmd.number},
			&cli.StringFlag{Name: "at", Usage: "reference time (RFC 3339); defaults to now", Destination: &cmd.at},
			&cli.DurationFlag{Name: "in", Usage: "delay after the reference time", Destination: &cmd.in},
			&cli.DurationFlag{Name: "repeat", Usage: "repeat period", Destination: &cmd.repeat},
			&cli.StringFlag{Name: "data", Usage: "user payload", Destination: &cmd.data},
		},
		Action: cmd.run,
	})
	return root
}

func (cmd *AddCmd) options() (localnotify.AddOptions, error) {
	opts := localnotify.AddOptions{
		Name:   cmd.name,
		Title:  cmd.title,
		Text:   cmd.text,
		Sound:  cmd.sound,
		Action: cmd.action,
		Icon:   cmd.icon,
		Number: cmd.number,
	}
	if s := strings.TrimSpace(cmd.at); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return opts, fmt.Errorf("--at: %w", err)
		}
		opts.Date = t
	}
	if cmd.in < 0 || cmd.repeat < 0 {
		return opts, fmt.Errorf("--in and --repeat must not be negative")
	}
	if cmd.in > 0 {
		opts.Delay = &localnotify.Duration{Seconds: cmd.in.Seconds()}
	}
	if cmd.repeat > 0 {
		opts.Repeat = &localnotify.Duration{Seconds: cmd.repeat.Seconds()}
	}
	if cmd.data != "" {
		if json.Valid([]byte(cmd.data)) {
			opts.UserDefined = json.RawMessage(cmd.data)
		} else {
			opts.UserDefined = cmd.data
		}
	}
	return opts, nil
}

func (cmd *AddCmd) run(ctx context.Context, c *cli.Command) error {
	opts, err := cmd.options()
	if err != nil {
		return err
	}
	return withApp(ctx, cmd.flags, func(ctx context.Context, a *app.App) error {
		if err := a.Client().Add(opts); err != nil {
			return fmt.Errorf("add: %w", err)
		}
		if err := settle(ctx, a); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "scheduled %s\n", opts.Name)
		return nil
	})
}
