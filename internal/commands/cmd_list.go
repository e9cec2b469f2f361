package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"localnotify/internal/app"
	"localnotify/internal/localnotify"
)

type ListCmd struct {
	flags      *Flags
	jsonOutput bool
}

func NewListCmd(flags *Flags) *ListCmd { return &ListCmd{flags: flags} }

func (cmd *ListCmd) Register(root *cli.Command) *cli.Command {
	root.Commands = append(root.Commands, &cli.Command{
		Name:      "list",
		Aliases:   []string{"ls"},
		Usage:     "List scheduled notifications",
		UsageText: "localnotify list [--json]",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "output as JSON lines", Destination: &cmd.jsonOutput},
		},
		Action: cmd.run,
	})
	return root
}

func (cmd *ListCmd) run(ctx context.Context, c *cli.Command) error {
	return withApp(ctx, cmd.flags, func(ctx context.Context, a *app.App) error {
		recs, err := a.Client().ListWait(ctx)
		if err != nil {
			return fmt.Errorf("list: %w", err)
		}
		if cmd.jsonOutput {
			return printJSON(os.Stdout, recs...)
		}
		if len(recs) == 0 {
			fmt.Fprintln(os.Stderr, "No notifications scheduled")
			return nil
		}
		return printTable(os.Stdout, recs)
	})
}

type GetCmd struct {
	flags *Flags
}

func NewGetCmd(flags *Flags) *GetCmd { return &GetCmd{flags: flags} }

func (cmd *GetCmd) Register(root *cli.Command) *cli.Command {
	root.Commands = append(root.Commands, &cli.Command{
		Name:      "get",
		Usage:     "Show one notification as JSON",
		UsageText: "localnotify get NAME",
		Action:    cmd.run,
	})
	return root
}

func (cmd *GetCmd) run(ctx context.Context, c *cli.Command) error {
	name := c.Args().First()
	if name == "" {
		return errors.New("name is required")
	}
	return withApp(ctx, cmd.flags, func(ctx context.Context, a *app.App) error {
		rec, err := a.Client().GetWait(ctx, name)
		if errors.Is(err, localnotify.ErrNotFound) {
			return fmt.Errorf("%s: %w", name, err)
		}
		if err != nil {
			return fmt.Errorf("get: %w", err)
		}
		return printJSON(os.Stdout, *rec)
	})
}
