package main

import (
	"context"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/gyro/adapter"
	"github.com/mklimuk/gyro/cmd/gyro/console"
)

var mcp2221Cmd = cli.Command{
	Name:  "mcp2221",
	Usage: "MCP2221 bridge maintenance",
	Subcommands: cli.Commands{
		&mcp2221StatusCmd,
		&mcp2221ReleaseCmd,
	},
}

var mcp2221StatusCmd = cli.Command{
	Name:  "status",
	Usage: "print the bridge I2C engine status",
	Action: func(c *cli.Context) error {
		return mcp2221Do(c, func(ctx context.Context, a *adapter.MCP2221) (*adapter.MCP2221Status, error) {
			return a.Status(ctx)
		})
	},
}

var mcp2221ReleaseCmd = cli.Command{
	Name:  "release",
	Usage: "cancel a stuck I2C transfer",
	Action: func(c *cli.Context) error {
		return mcp2221Do(c, func(ctx context.Context, a *adapter.MCP2221) (*adapter.MCP2221Status, error) {
			return a.ReleaseBus(ctx)
		})
	},
}

func mcp2221Do(c *cli.Context, f func(ctx context.Context, a *adapter.MCP2221) (*adapter.MCP2221Status, error)) error {
	status, err := f(commandContext(c), adapter.NewMCP2221())
	if err != nil {
		return console.Exit(1, "adapter communication error: %s", console.Red(err))
	}
	err = yaml.NewEncoder(console.Writer()).Encode(status)
	if err != nil {
		return console.Exit(1, "encoding error: %s", console.Red(err))
	}
	return nil
}
