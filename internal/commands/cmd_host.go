package commands

import (
	"context"
	"os"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/urfave/cli/v3"

	"localnotify/internal/app"
	logx "localnotify/pkg/logx"
)

type HostCmd struct {
	flags *Flags
}

func NewHostCmd(flags *Flags) *HostCmd { return &HostCmd{flags: flags} }

func (cmd *HostCmd) Register(root *cli.Command) *cli.Command {
	root.Commands = append(root.Commands, &cli.Command{
		Name:  "host",
		Usage: "Serve the host side of the bridge on stdin/stdout",
		Description: `Reads commands as newline-delimited JSON frames on stdin and writes
events the same way on stdout:

  {"id":"...","plugin":"LocalNotifyPlugin","name":"Add","payload":{...}}

Logs go to stderr. Exits when stdin closes.`,
		Action: cmd.run,
	})
	return root
}

func (cmd *HostCmd) run(ctx context.Context, c *cli.Command) error {
	return app.ServeHost(ctx, cmd.flags.ConfigPath, os.Stdin, os.Stdout, func() {
		notifySystemd(logx.NewConsole("info"), daemon.SdNotifyReady)
	})
}
