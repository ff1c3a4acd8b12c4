package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mklimuk/gyro"
	"github.com/mklimuk/gyro/loop"
)

var ErrQueueFull = errors.New("transport: command queue full")

var _ gyro.Transport = &BusTransport{}

// Poster hands a task over to the control loop.
type Poster interface {
	Post(task loop.Task) bool
}

type BusOpts struct {
	PollInterval time.Duration
	QueueSize    int
	Logger       *slog.Logger
}

type BusOpt func(*BusOpts)

// WithPollInterval sets how often continuous reads are repeated.
func WithPollInterval(interval time.Duration) BusOpt {
	return func(o *BusOpts) {
		o.PollInterval = interval
	}
}

func WithQueueSize(size int) BusOpt {
	return func(o *BusOpts) {
		o.QueueSize = size
	}
}

func WithLogger(logger *slog.Logger) BusOpt {
	return func(o *BusOpts) {
		o.Logger = logger
	}
}

type stream struct {
	register byte
	length   int
}

// BusTransport executes commands against a plain register bus. Commands run in
// order on a single worker; continuous reads are emulated by polling. Frames
// are handed to the control loop through the poster.
type BusTransport struct {
	config BusOpts
	bus    gyro.I2CBus
	poster Poster
	queue  chan gyro.Command

	mx       sync.Mutex
	handlers map[byte]gyro.FrameHandler

	// owned by the worker
	streams map[byte]stream
}

func NewBusTransport(bus gyro.I2CBus, poster Poster, opts ...BusOpt) *BusTransport {
	config := BusOpts{
		PollInterval: 10 * time.Millisecond,
		QueueSize:    32,
		Logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(&config)
	}
	return &BusTransport{
		config:   config,
		bus:      bus,
		poster:   poster,
		queue:    make(chan gyro.Command, config.QueueSize),
		handlers: make(map[byte]gyro.FrameHandler),
		streams:  make(map[byte]stream),
	}
}

// Send queues the command without waiting for the bus.
func (t *BusTransport) Send(cmd gyro.Command) error {
	select {
	case t.queue <- cmd:
		return nil
	default:
		return fmt.Errorf("%w: dropping %s", ErrQueueFull, cmd)
	}
}

func (t *BusTransport) OnFrame(address byte, handler gyro.FrameHandler) {
	t.mx.Lock()
	defer t.mx.Unlock()
	t.handlers[address] = handler
}

// Run executes queued commands and active streams until ctx is done.
func (t *BusTransport) Run(ctx context.Context) error {
	var ticker *time.Ticker
	var tick <-chan time.Time
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd := <-t.queue:
			t.execute(ctx, cmd)
		case <-tick:
			t.poll(ctx)
		}
		switch {
		case len(t.streams) > 0 && ticker == nil:
			ticker = time.NewTicker(t.config.PollInterval)
			tick = ticker.C
		case len(t.streams) == 0 && ticker != nil:
			ticker.Stop()
			ticker, tick = nil, nil
		}
	}
}

func (t *BusTransport) execute(ctx context.Context, cmd gyro.Command) {
	t.config.Logger.Debug("executing bus command", "command", cmd.String())
	switch cmd.Kind {
	case gyro.CommandWrite:
		err := t.bus.WriteToAddr(ctx, cmd.Address, []byte{cmd.Register, cmd.Value})
		if err != nil {
			t.config.Logger.Error("register write failed", "command", cmd.String(), "error", err)
			t.release(ctx)
		}
	case gyro.CommandRead:
		t.read(ctx, cmd.Address, cmd.Register, cmd.Length)
	case gyro.CommandReadContinuous:
		t.streams[cmd.Address] = stream{register: cmd.Register, length: cmd.Length}
		t.read(ctx, cmd.Address, cmd.Register, cmd.Length)
	case gyro.CommandStopReading:
		delete(t.streams, cmd.Address)
	default:
		t.config.Logger.Warn("unsupported command", "command", cmd.String())
	}
}

func (t *BusTransport) poll(ctx context.Context) {
	for addr, s := range t.streams {
		t.read(ctx, addr, s.register, s.length)
	}
}

func (t *BusTransport) read(ctx context.Context, address, register byte, length int) {
	// set the register pointer, then read the block
	err := t.bus.WriteToAddr(ctx, address, []byte{register})
	if err != nil {
		t.config.Logger.Error("could not set register pointer", "address", address, "register", register, "error", err)
		t.release(ctx)
		return
	}
	frame := make([]byte, length+1)
	frame[0] = register
	err = t.bus.ReadFromAddr(ctx, address, frame[1:])
	if err != nil {
		t.config.Logger.Error("register read failed", "address", address, "register", register, "error", err)
		t.release(ctx)
		return
	}
	t.deliver(address, frame)
}

func (t *BusTransport) release(ctx context.Context) {
	if err := t.bus.Release(ctx); err != nil {
		t.config.Logger.Debug("bus release failed", "error", err)
	}
}

func (t *BusTransport) deliver(address byte, frame []byte) {
	ok := t.poster.Post(func() error {
		t.mx.Lock()
		h := t.handlers[address]
		t.mx.Unlock()
		if h == nil {
			t.config.Logger.Debug("no handler for frame", "address", address)
			return nil
		}
		return h(frame)
	})
	if !ok {
		t.config.Logger.Debug("control loop stopped, dropping frame", "address", address)
	}
}
