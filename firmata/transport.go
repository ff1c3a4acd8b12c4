package firmata

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/mklimuk/gyro"
	"github.com/mklimuk/gyro/transport"
)

var _ gyro.Transport = &Transport{}

type Opts struct {
	I2CDelay         uint16
	SamplingInterval uint16
	Logger           *slog.Logger
}

type Opt func(*Opts)

// WithI2CDelay sets the microseconds the board waits between register write and read.
func WithI2CDelay(us uint16) Opt {
	return func(o *Opts) {
		o.I2CDelay = us
	}
}

// WithSamplingInterval sets the board's continuous read period in milliseconds.
func WithSamplingInterval(ms uint16) Opt {
	return func(o *Opts) {
		o.SamplingInterval = ms
	}
}

func WithLogger(logger *slog.Logger) Opt {
	return func(o *Opts) {
		o.Logger = logger
	}
}

// Transport speaks the Firmata I2C protocol to a board (StandardFirmata or
// compatible). The board streams continuous reads natively.
type Transport struct {
	config Opts
	port   io.ReadWriter
	poster transport.Poster

	writeMx sync.Mutex

	mx       sync.Mutex
	handlers map[byte]gyro.FrameHandler

	ready     chan struct{}
	readyOnce sync.Once
}

func NewTransport(port io.ReadWriter, poster transport.Poster, opts ...Opt) *Transport {
	config := Opts{
		SamplingInterval: 19,
		Logger:           slog.Default(),
	}
	for _, opt := range opts {
		opt(&config)
	}
	return &Transport{
		config:   config,
		port:     port,
		poster:   poster,
		handlers: make(map[byte]gyro.FrameHandler),
		ready:    make(chan struct{}),
	}
}

// Configure enables I2C on the board and sets the sampling interval.
func (t *Transport) Configure() error {
	if err := t.write(EncodeI2CConfig(t.config.I2CDelay)); err != nil {
		return fmt.Errorf("firmata: could not configure I2C: %w", err)
	}
	if err := t.write(EncodeSamplingInterval(t.config.SamplingInterval)); err != nil {
		return fmt.Errorf("firmata: could not set sampling interval: %w", err)
	}
	return nil
}

// Ready is closed once the board reports its protocol version or firmware.
func (t *Transport) Ready() <-chan struct{} {
	return t.ready
}

func (t *Transport) Send(cmd gyro.Command) error {
	msg, err := EncodeRequest(cmd)
	if err != nil {
		return err
	}
	return t.write(msg)
}

func (t *Transport) write(msg []byte) error {
	t.writeMx.Lock()
	defer t.writeMx.Unlock()
	_, err := t.port.Write(msg)
	return err
}

func (t *Transport) OnFrame(address byte, handler gyro.FrameHandler) {
	t.mx.Lock()
	defer t.mx.Unlock()
	t.handlers[address] = handler
}

// Run reads messages from the board until the port fails or ctx is done.
// If the port is an io.Closer it is closed when ctx is done to unblock the read.
func (t *Transport) Run(ctx context.Context) error {
	if c, ok := t.port.(io.Closer); ok {
		stop := context.AfterFunc(ctx, func() { _ = c.Close() })
		defer stop()
	}
	var dec Decoder
	r := bufio.NewReader(t.port)
	for {
		b, err := r.ReadByte()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("firmata: read failed: %w", err)
		}
		msg, ok := dec.Feed(b)
		if !ok {
			continue
		}
		t.dispatch(msg)
	}
}

func (t *Transport) dispatch(msg Message) {
	switch msg.Command {
	case reportVersion:
		t.config.Logger.Info("firmata protocol version", "major", msg.Body[0], "minor", msg.Body[1])
		t.readyOnce.Do(func() { close(t.ready) })
	case reportFirmware:
		if len(msg.Body) >= 2 {
			t.config.Logger.Info("firmata firmware", "major", msg.Body[0], "minor", msg.Body[1], "name", firmwareName(msg.Body[2:]))
		}
		t.readyOnce.Do(func() { close(t.ready) })
	case i2cReply:
		reply, err := DecodeReply(msg.Body)
		if err != nil {
			t.config.Logger.Warn("dropping I2C reply", "error", err)
			return
		}
		t.deliver(reply)
	default:
		t.config.Logger.Debug("ignoring sysex", "command", fmt.Sprintf("%#x", msg.Command))
	}
}

func (t *Transport) deliver(reply Reply) {
	ok := t.poster.Post(func() error {
		t.mx.Lock()
		h := t.handlers[reply.Address]
		t.mx.Unlock()
		if h == nil {
			t.config.Logger.Debug("no handler for I2C reply", "address", reply.Address)
			return nil
		}
		return h(reply.Frame)
	})
	if !ok {
		t.config.Logger.Debug("control loop stopped, dropping I2C reply", "address", reply.Address)
	}
}

// firmware name is sent as 7-bit pairs
func firmwareName(body []byte) string {
	name := make([]byte, 0, len(body)/2)
	for i := 0; i+1 < len(body); i += 2 {
		name = append(name, body[i]|body[i+1]<<7)
	}
	return string(name)
}
