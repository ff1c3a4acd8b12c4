package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"time"

	"periph.io/x/conn/v3/physic"

	"github.com/mklimuk/gyro"
	"github.com/mklimuk/gyro/adapter"
	"github.com/mklimuk/gyro/config"
	"github.com/mklimuk/gyro/firmata"
	"github.com/mklimuk/gyro/i2c"
	"github.com/mklimuk/gyro/itg3200"
	"github.com/mklimuk/gyro/loop"
	"github.com/mklimuk/gyro/transport"
)

// boardResetWait bounds how long a firmata board may take to report its version after the port opens.
const boardResetWait = 5 * time.Second

type runner interface {
	Run(ctx context.Context) error
}

// session owns the loop, the transport and the device. All device access
// goes through loop.Do or handlers fired by the loop.
type session struct {
	loop      *loop.Loop
	device    *itg3200.ITG3200
	transport gyro.Transport

	ctx     context.Context
	cancel  context.CancelFunc
	errc    chan error
	running int
	closers []io.Closer
}

type closerFunc func() error

func (f closerFunc) Close() error {
	return f()
}

type sessionOpts struct {
	autoStart bool
	// strict stops the session on the first malformed frame.
	strict bool
	// setup runs on the loop right after the device is created, before any
	// signal can fire.
	setup func(d *itg3200.ITG3200) error
}

// openBus opens the plain I2C bus selected in the configuration.
func openBus(ctx context.Context, cfg config.Config) (gyro.I2CBus, io.Closer, error) {
	switch cfg.Adapter {
	case config.AdapterGeneric:
		bus, err := i2c.NewGenericBus(cfg.Device)
		if err != nil {
			return nil, nil, err
		}
		if cfg.BusSpeed > 0 {
			err = bus.SetSpeed(physic.Frequency(cfg.BusSpeed) * physic.Hertz)
			if err != nil {
				_ = bus.Close()
				return nil, nil, err
			}
		}
		return bus, bus, nil
	case config.AdapterNanoPi:
		busNr, err := strconv.Atoi(cfg.Device)
		if err != nil {
			return nil, nil, fmt.Errorf("nanopi device must be a bus number, got %q", cfg.Device)
		}
		bus, err := i2c.NewNanoPiBus(busNr)
		if err != nil {
			return nil, nil, err
		}
		return bus, bus, nil
	case config.AdapterMCP2221:
		bridge := adapter.NewMCP2221()
		err := bridge.Init(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("adapter initialization error: %w", err)
		}
		return bridge, closerFunc(func() error { return bridge.Release(context.Background()) }), nil
	case config.AdapterMock:
		address, err := cfg.DeviceAddress()
		if err != nil {
			return nil, nil, err
		}
		bus := i2c.NewMockITG3200Bus(byte(address), restingSensor())
		return bus, closerFunc(func() error { return nil }), nil
	case config.AdapterFirmata:
		return nil, nil, errors.New("firmata adapter does not expose a raw I2C bus")
	default:
		return nil, nil, fmt.Errorf("unknown adapter %q", cfg.Adapter)
	}
}

// restingSensor produces a small per-axis bias with a few LSB of noise.
func restingSensor() i2c.RateBehaviorFunc {
	bias := [3]int16{12, -7, 3}
	return func(ctx context.Context) ([3]int16, error) {
		var out [3]int16
		for i, b := range bias {
			out[i] = b + int16(rand.IntN(7)-3)
		}
		return out, nil
	}
}

func openSession(ctx context.Context, cfg config.Config, opts sessionOpts) (*session, error) {
	address, err := cfg.DeviceAddress()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &session{
		ctx:    ctx,
		cancel: cancel,
		errc:   make(chan error, 3),
	}
	loopOpts := []loop.Opt{loop.WithLogger(slog.Default())}
	if !opts.strict {
		loopOpts = append(loopOpts, loop.WithErrorHandler(func(err error) error {
			slog.Warn("frame dropped", "error", err)
			return nil
		}))
	}
	s.loop = loop.New(loopOpts...)
	s.spawn(ctx, s.loop)

	err = s.connect(ctx, cfg)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	err = s.loop.Do(ctx, func() error {
		var err error
		s.device, err = itg3200.New(s.transport, s.loop,
			itg3200.WithAddress(address),
			itg3200.WithAutoStart(opts.autoStart),
			itg3200.WithStartupDelay(cfg.StartupDelay),
		)
		if err != nil {
			return err
		}
		s.device.SetCalibration(cfg.Calibration.DriverCalibration())
		if opts.setup != nil {
			return opts.setup(s.device)
		}
		return nil
	})
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("device initialization error: %w", err)
	}
	return s, nil
}

func (s *session) connect(ctx context.Context, cfg config.Config) error {
	if cfg.Adapter == config.AdapterFirmata {
		port, err := firmata.OpenSerial(cfg.Device, cfg.BaudRate)
		if err != nil {
			return err
		}
		// the transport closes the port when the session is cancelled
		ft := firmata.NewTransport(port, s.loop,
			firmata.WithSamplingInterval(uint16(cfg.PollInterval.Milliseconds())),
			firmata.WithLogger(slog.Default()),
		)
		s.spawn(ctx, ft)
		select {
		case <-ft.Ready():
		case <-time.After(boardResetWait):
			return errors.New("firmata board did not report its version")
		case <-ctx.Done():
			return ctx.Err()
		}
		err = ft.Configure()
		if err != nil {
			return err
		}
		s.transport = ft
		return nil
	}
	bus, closer, err := openBus(ctx, cfg)
	if err != nil {
		return err
	}
	s.closers = append(s.closers, closer)
	bt := transport.NewBusTransport(bus, s.loop,
		transport.WithPollInterval(cfg.PollInterval),
		transport.WithLogger(slog.Default()),
	)
	s.spawn(ctx, bt)
	s.transport = bt
	return nil
}

func (s *session) spawn(ctx context.Context, r runner) {
	s.running++
	go func() {
		s.errc <- r.Run(ctx)
	}()
}

// Do runs f on the loop.
func (s *session) Do(ctx context.Context, f func(d *itg3200.ITG3200) error) error {
	return s.loop.Do(ctx, func() error {
		return f(s.device)
	})
}

// Wait blocks until ctx is done, the session is stopped or one of its
// runners returns.
func (s *session) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nil
	case <-s.ctx.Done():
		return nil
	case err := <-s.errc:
		s.running--
		return err
	}
}

// StopReading ends a running stream so the board does not keep sending.
func (s *session) StopReading() {
	ctx, cancel := context.WithTimeout(s.ctx, time.Second)
	defer cancel()
	err := s.Do(ctx, func(d *itg3200.ITG3200) error {
		if !d.IsRunning() {
			return nil
		}
		return d.StopReading()
	})
	if err != nil {
		slog.Debug("could not stop reading", "error", err)
	}
}

func (s *session) Close() error {
	s.cancel()
	var errs []error
	for ; s.running > 0; s.running-- {
		if err := <-s.errc; err != nil && !errors.Is(err, context.Canceled) {
			errs = append(errs, err)
		}
	}
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
