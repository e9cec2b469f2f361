package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"localnotify/internal/app"
)

// RemoveCmd registers the commands that get no reply from the host:
// remove, clear and permission.
type RemoveCmd struct {
	flags *Flags
}

func NewRemoveCmd(flags *Flags) *RemoveCmd { return &RemoveCmd{flags: flags} }

func (cmd *RemoveCmd) Register(root *cli.Command) *cli.Command {
	root.Commands = append(root.Commands,
		&cli.Command{
			Name:      "remove",
			Aliases:   []string{"rm"},
			Usage:     "Cancel notifications by name",
			UsageText: "localnotify remove NAME [NAME...]",
			Action:    cmd.remove,
		},
		&cli.Command{
			Name:   "clear",
			Usage:  "Cancel every notification",
			Action: cmd.clear,
		},
		&cli.Command{
			Name:   "permission",
			Usage:  "Ask the host for notification permission",
			Action: cmd.permission,
		},
	)
	return root
}

func (cmd *RemoveCmd) remove(ctx context.Context, c *cli.Command) error {
	names := c.Args().Slice()
	if len(names) == 0 {
		return errors.New("at least one name is required")
	}
	return withApp(ctx, cmd.flags, func(ctx context.Context, a *app.App) error {
		for _, name := range names {
			a.Client().Remove(name)
		}
		if err := settle(ctx, a); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "removed %d\n", len(names))
		return nil
	})
}

func (cmd *RemoveCmd) clear(ctx context.Context, c *cli.Command) error {
	return withApp(ctx, cmd.flags, func(ctx context.Context, a *app.App) error {
		a.Client().Clear()
		return settle(ctx, a)
	})
}

func (cmd *RemoveCmd) permission(ctx context.Context, c *cli.Command) error {
	return withApp(ctx, cmd.flags, func(ctx context.Context, a *app.App) error {
		a.Client().RequestNotificationPermission()
		return settle(ctx, a)
	})
}
