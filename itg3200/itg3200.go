package itg3200

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mklimuk/gyro"
)

var ErrMalformedFrame = errors.New("itg3200: malformed gyro frame")
var ErrNotReady = errors.New("itg3200: device not ready")

type State int

const (
	StateIdle State = iota
	StateStreaming
)

func (s State) String() string {
	if s == StateStreaming {
		return "streaming"
	}
	return "idle"
}

type Opts struct {
	AutoStart    bool
	Address      Address
	StartupDelay time.Duration
	Logger       *slog.Logger
}

type Opt func(*Opts)

// WithAutoStart controls whether continuous reading starts once the device
// is ready. Enabled by default.
func WithAutoStart(autoStart bool) Opt {
	return func(o *Opts) {
		o.AutoStart = autoStart
	}
}

func WithAddress(address Address) Opt {
	return func(o *Opts) {
		o.Address = address
	}
}

func WithStartupDelay(delay time.Duration) Opt {
	return func(o *Opts) {
		o.StartupDelay = delay
	}
}

func WithLogger(logger *slog.Logger) Opt {
	return func(o *Opts) {
		o.Logger = logger
	}
}

// ITG3200 represents InvenSense ITG-3200 3-axis gyroscope.
//
// The driver is not safe for concurrent use. The transport and scheduler are
// expected to call back on the same control loop the application uses to
// access the device (see package loop).
//
// Typical usage:
//
//	l := loop.New()
//	d, err := itg3200.New(transport, l)
//	d.Subscribe(gyro.SignalUpdate, func() { fmt.Println(d.X(), d.Y(), d.Z()) })
//	err = l.Run(ctx)
type ITG3200 struct {
	transport gyro.Transport
	notifier  gyro.Notifier
	logger    *slog.Logger

	address   Address
	autoStart bool

	state        State
	ready        bool
	startupTimer gyro.Timer

	raw [3]int16
	cal Calibration
}

// New writes the configuration registers and schedules the ready signal
// after the startup delay.
func New(transport gyro.Transport, scheduler gyro.Scheduler, opts ...Opt) (*ITG3200, error) {
	config := Opts{
		AutoStart:    true,
		Address:      AddrAD0VDD,
		StartupDelay: DefaultStartupDelay,
		Logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(&config)
	}
	if config.Address != AddrAD0VDD && config.Address != AddrAD0GND {
		return nil, fmt.Errorf("itg3200: invalid address %#x", byte(config.Address))
	}
	d := &ITG3200{
		transport: transport,
		logger:    config.Logger.With("device", "itg3200", "address", fmt.Sprintf("%#x", byte(config.Address))),
		address:   config.Address,
		autoStart: config.AutoStart,
		cal:       DefaultCalibration(),
	}
	for _, w := range initSequence {
		err := d.send(gyro.Write(byte(d.address), w.reg, w.val))
		if err != nil {
			return nil, fmt.Errorf("itg3200: could not configure register %#x: %w", w.reg, err)
		}
	}
	// no reads are issued before ready, so no frame can be missed
	transport.OnFrame(byte(d.address), d.HandleFrame)
	d.startupTimer = scheduler.AfterFunc(config.StartupDelay, d.onReady)
	return d, nil
}

func (d *ITG3200) onReady() {
	d.startupTimer = nil
	d.ready = true
	d.logger.Debug("gyro ready")
	d.notifier.Emit(gyro.SignalReady)
	if !d.autoStart {
		return
	}
	if err := d.StartReading(); err != nil {
		d.logger.Error("could not start continuous reading", "error", err)
	}
}

// Subscribe registers a handler for the ready or update signal. Handlers run
// synchronously on the control loop.
func (d *ITG3200) Subscribe(sig gyro.Signal, h gyro.Handler) {
	d.notifier.Subscribe(sig, h)
}

// StartReading enables continuous reading. It does nothing if the device is
// already streaming and fails with ErrNotReady before the ready signal.
func (d *ITG3200) StartReading() error {
	if d.state == StateStreaming {
		return nil
	}
	if !d.ready {
		return ErrNotReady
	}
	err := d.send(gyro.ReadContinuous(byte(d.address), RegGyroXOut, gyroBlockLen))
	if err != nil {
		return err
	}
	d.state = StateStreaming
	return nil
}

// StopReading always sends the stop command, even when idle.
func (d *ITG3200) StopReading() error {
	d.state = StateIdle
	return d.send(gyro.StopReading(byte(d.address)))
}

// Update requests a single reading. An active stream is stopped first and is
// not resumed.
func (d *ITG3200) Update() error {
	if d.state == StateStreaming {
		if err := d.StopReading(); err != nil {
			return err
		}
	}
	return d.send(gyro.Read(byte(d.address), RegGyroXOut, gyroBlockLen))
}

func (d *ITG3200) send(cmd gyro.Command) error {
	err := d.transport.Send(cmd)
	if err != nil {
		return fmt.Errorf("itg3200: could not send %s: %w", cmd.Kind, err)
	}
	return nil
}

func (d *ITG3200) IsRunning() bool {
	return d.state == StateStreaming
}

func (d *ITG3200) IsReady() bool {
	return d.ready
}

func (d *ITG3200) State() State {
	return d.state
}

func (d *ITG3200) Address() Address {
	return d.address
}

func (d *ITG3200) RawX() int16 {
	return d.raw[0]
}

func (d *ITG3200) RawY() int16 {
	return d.raw[1]
}

func (d *ITG3200) RawZ() int16 {
	return d.raw[2]
}

// Reading is a snapshot of the last decoded frame.
type Reading struct {
	RawX int16   `yaml:"raw_x" json:"raw_x"`
	RawY int16   `yaml:"raw_y" json:"raw_y"`
	RawZ int16   `yaml:"raw_z" json:"raw_z"`
	X    float64 `yaml:"x" json:"x"`
	Y    float64 `yaml:"y" json:"y"`
	Z    float64 `yaml:"z" json:"z"`
}

func (d *ITG3200) Reading() Reading {
	return Reading{
		RawX: d.raw[0],
		RawY: d.raw[1],
		RawZ: d.raw[2],
		X:    d.X(),
		Y:    d.Y(),
		Z:    d.Z(),
	}
}
