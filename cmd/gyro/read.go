package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/gyro"
	"github.com/mklimuk/gyro/cmd/gyro/console"
	"github.com/mklimuk/gyro/itg3200"
)

const (
	formatText = "text"
	formatYAML = "yaml"
	formatJSON = "json"
)

var outputFlag = &cli.StringFlag{
	Name:    "output",
	Aliases: []string{"o"},
	Value:   formatText,
	Usage:   "output format (text, yaml, json)",
}

var strictFlag = &cli.BoolFlag{
	Name:  "strict",
	Usage: "stop on the first malformed frame",
}

var readCmd = cli.Command{
	Name:  "read",
	Usage: "take a single sample",
	Flags: []cli.Flag{
		outputFlag,
		strictFlag,
		&cli.DurationFlag{
			Name:  "timeout",
			Value: 2 * time.Second,
		},
	},
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return console.Exit(1, "configuration error: %s", console.Red(err))
		}
		ctx, stop := signal.NotifyContext(commandContext(c), os.Interrupt)
		defer stop()
		ctx, cancel := context.WithTimeout(ctx, c.Duration("timeout"))
		defer cancel()

		result := make(chan itg3200.Reading, 1)
		s, err := openSession(ctx, cfg, sessionOpts{
			strict: c.Bool("strict"),
			setup: func(d *itg3200.ITG3200) error {
				d.Subscribe(gyro.SignalReady, func() {
					if err := d.Update(); err != nil {
						slog.Error("update request failed", "error", err)
					}
				})
				d.Subscribe(gyro.SignalUpdate, func() {
					select {
					case result <- d.Reading():
					default:
					}
				})
				return nil
			},
		})
		if err != nil {
			return console.Exit(1, "session error: %s", console.Red(err))
		}
		defer func() { _ = s.Close() }()

		select {
		case r := <-result:
			return printReading(c.String("output"), r)
		case <-ctx.Done():
			return console.Exit(1, "no sample received: %s", console.Red(ctx.Err()))
		}
	},
}

func printReading(format string, r itg3200.Reading) error {
	switch format {
	case formatYAML:
		return yaml.NewEncoder(console.Writer()).Encode(r)
	case formatJSON:
		return json.NewEncoder(console.Writer()).Encode(r)
	default:
		console.Printf("%s x=%s y=%s z=%s %s\n",
			console.PictoGyro,
			console.White(fmt.Sprintf("%8.2f", r.X)),
			console.White(fmt.Sprintf("%8.2f", r.Y)),
			console.White(fmt.Sprintf("%8.2f", r.Z)),
			console.Cyan(fmt.Sprintf("raw=(%d,%d,%d)", r.RawX, r.RawY, r.RawZ)))
		return nil
	}
}
