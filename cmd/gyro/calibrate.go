package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/gyro"
	"github.com/mklimuk/gyro/cmd/gyro/console"
	"github.com/mklimuk/gyro/config"
	"github.com/mklimuk/gyro/itg3200"
)

var calibrateCmd = cli.Command{
	Name:  "calibrate",
	Usage: "measure zero-rate offsets and store them in the configuration",
	Flags: []cli.Flag{
		strictFlag,
		&cli.IntFlag{
			Name:  "samples",
			Value: 200,
			Usage: "number of samples to average",
		},
		&cli.BoolFlag{
			Name:    "yes",
			Aliases: []string{"y"},
			Usage:   "do not ask for confirmation",
		},
		&cli.BoolFlag{
			Name:  "dry-run",
			Usage: "print the calibration without saving it",
		},
	},
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return console.Exit(1, "configuration error: %s", console.Red(err))
		}
		if !c.Bool("yes") {
			answer, err := console.YesOrNo("Keep the sensor still. Start calibration?")
			if err != nil {
				return console.Exit(1, "prompt error: %s", console.Red(err))
			}
			if answer != console.Yes {
				console.PInfof(console.PictoStop, "calibration aborted")
				return nil
			}
		}

		base := commandContext(c)
		sigCtx, stop := signal.NotifyContext(base, os.Interrupt)
		defer stop()
		waitCtx, done := context.WithCancel(sigCtx)
		defer done()

		var result *itg3200.Calibration
		s, err := openSession(base, cfg, sessionOpts{
			autoStart: true,
			strict:    c.Bool("strict"),
			setup: func(d *itg3200.ITG3200) error {
				d.Subscribe(gyro.SignalReady, func() {
					if err := d.StartReading(); err != nil {
						slog.Error("could not start reading", "error", err)
					}
				})
				itg3200.NewCalibrator(d, c.Int("samples"), func(cal itg3200.Calibration) {
					result = &cal
					done()
				})
				return nil
			},
		})
		if err != nil {
			return console.Exit(1, "session error: %s", console.Red(err))
		}
		console.PInfof(console.PictoGyro, "collecting %d samples", c.Int("samples"))
		err = s.Wait(waitCtx)
		s.StopReading()
		if cerr := s.Close(); cerr != nil {
			slog.Warn("session close error", "error", cerr)
		}
		if err != nil {
			return console.Exit(1, "calibration failed: %s", console.Red(err))
		}
		if result == nil {
			console.PInfof(console.PictoStop, "calibration interrupted")
			return nil
		}

		cfg.Calibration = config.FromDriverCalibration(*result)
		console.PInfof(console.PictoNotebook, "offsets x=%.3f y=%.3f z=%.3f",
			result.X.Offset, result.Y.Offset, result.Z.Offset)
		if c.Bool("dry-run") {
			return nil
		}
		err = config.Save(c.String("config"), cfg)
		if err != nil {
			return console.Exit(1, "could not save calibration: %s", console.Red(err))
		}
		console.PInfof(console.PictoFinish, "calibration saved to %s", c.String("config"))
		return nil
	},
}
