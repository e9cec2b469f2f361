package commands

import (
	"github.com/urfave/cli/v3"
)

// NewRoot builds the command tree.
func NewRoot(version string) *cli.Command {
	flags := &Flags{}
	root := &cli.Command{
		Name:      "localnotify",
		Usage:     "Schedule and inspect local notifications",
		UsageText: "localnotify [global options] command [command options]",
		Version:   version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to a YAML or JSON config file",
				Sources:     cli.EnvVars("LOCALNOTIFY_CONFIG"),
				Destination: &flags.ConfigPath,
			},
			&cli.DurationFlag{
				Name:        "timeout",
				Usage:       "how long to wait for the host (defaults to client.request_timeout)",
				Destination: &flags.Timeout,
			},
		},
	}

	NewAddCmd(flags).Register(root)
	NewListCmd(flags).Register(root)
	NewGetCmd(flags).Register(root)
	NewRemoveCmd(flags).Register(root)
	NewWatchCmd(flags).Register(root)
	NewHostCmd(flags).Register(root)
	return root
}
