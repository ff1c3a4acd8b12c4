package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/gyro"
	"github.com/mklimuk/gyro/cmd/gyro/console"
	"github.com/mklimuk/gyro/itg3200"
	"github.com/mklimuk/gyro/publish"
)

var streamCmd = cli.Command{
	Name:  "stream",
	Usage: "print samples continuously, optionally publishing them over MQTT",
	Flags: []cli.Flag{
		outputFlag,
		strictFlag,
		&cli.IntFlag{
			Name:  "count",
			Usage: "stop after this many samples (0 streams until interrupted)",
		},
		&cli.IntFlag{
			Name:  "every",
			Value: 1,
			Usage: "print every n-th sample",
		},
		&cli.BoolFlag{
			Name:  "mqtt",
			Usage: "publish samples to the configured broker",
		},
		&cli.StringFlag{
			Name:  "broker",
			Usage: "MQTT broker url, overrides the configuration",
		},
		&cli.BoolFlag{
			Name:  "quiet",
			Usage: "do not print samples",
		},
	},
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return console.Exit(1, "configuration error: %s", console.Red(err))
		}
		if b := c.String("broker"); b != "" {
			cfg.MQTT.Broker = b
		}
		base := commandContext(c)
		sigCtx, stop := signal.NotifyContext(base, os.Interrupt)
		defer stop()
		waitCtx, done := context.WithCancel(sigCtx)
		defer done()

		var pub *publish.Publisher
		if c.Bool("mqtt") {
			if cfg.MQTT.Broker == "" {
				return console.Exit(1, "no MQTT broker configured")
			}
			client, err := publish.Connect(cfg.MQTT.Broker, cfg.MQTT.ClientID)
			if err != nil {
				return console.Exit(1, "broker error: %s", console.Red(err))
			}
			defer client.Disconnect(250)
			pub = publish.NewPublisher(client, cfg.MQTT.Topic,
				publish.WithQoS(cfg.MQTT.QoS),
				publish.WithRetained(cfg.MQTT.Retained),
				publish.WithLogger(slog.Default()),
			)
			console.PInfof(console.PictoPin, "publishing to %s on %s", console.White(cfg.MQTT.Topic), cfg.MQTT.Broker)
		}

		format := c.String("output")
		every := max(c.Int("every"), 1)
		limit := c.Int("count")
		quiet := c.Bool("quiet")
		var received int
		s, err := openSession(base, cfg, sessionOpts{
			autoStart: cfg.AutoStart,
			strict:    c.Bool("strict"),
			setup: func(d *itg3200.ITG3200) error {
				attachStream(d, cfg.AutoStart, func(r itg3200.Reading) bool {
					received++
					if !quiet && received%every == 0 {
						if err := printReading(format, r); err != nil {
							slog.Error("output error", "error", err)
						}
					}
					if limit > 0 && received >= limit {
						done()
						return false
					}
					return true
				})
				if pub != nil {
					pub.Attach(d)
				}
				return nil
			},
		})
		if err != nil {
			return console.Exit(1, "session error: %s", console.Red(err))
		}

		err = s.Wait(waitCtx)
		s.StopReading()
		if cerr := s.Close(); cerr != nil {
			slog.Warn("session close error", "error", cerr)
		}
		if err != nil {
			return console.Exit(1, "stream stopped: %s", console.Red(err))
		}
		console.PInfof(console.PictoFinish, "%d samples received", received)
		return nil
	},
}

// attachStream delivers every sample to onSample until it returns false.
// With autoStart the driver streams on its own once ready; without it each
// sample is requested with Update after the previous one arrived.
func attachStream(d *itg3200.ITG3200, autoStart bool, onSample func(r itg3200.Reading) bool) {
	more := true
	request := func() {
		if err := d.Update(); err != nil {
			slog.Error("update request failed", "error", err)
		}
	}
	d.Subscribe(gyro.SignalReady, func() {
		slog.Debug("sensor ready", "address", d.Address(), "auto_start", autoStart)
		if !autoStart {
			request()
		}
	})
	d.Subscribe(gyro.SignalUpdate, func() {
		if !more {
			return
		}
		more = onSample(d.Reading())
		if more && !autoStart {
			request()
		}
	})
}
