package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mklimuk/gyro/itg3200"
)

// Version is injected at build time.
var Version = "latest"

// Adapter kinds
const (
	AdapterGeneric = "generic"
	AdapterNanoPi  = "nanopi"
	AdapterMCP2221 = "mcp2221"
	AdapterFirmata = "firmata"
	// AdapterMock simulates a sensor at rest, no hardware needed.
	AdapterMock = "mock"
)

type Config struct {
	Adapter string `yaml:"adapter"`
	// Device is the I2C bus device (generic), the bus number (nanopi) or the
	// serial port (firmata).
	Device string `yaml:"device"`
	// BusSpeed in Hz, 0 keeps the bus default.
	BusSpeed int64 `yaml:"bus_speed,omitempty"`
	// BaudRate of the firmata serial port.
	BaudRate uint `yaml:"baud_rate,omitempty"`
	// Address is "vdd" (0x69) or "gnd" (0x68).
	Address      string        `yaml:"address"`
	AutoStart    bool          `yaml:"auto_start"`
	StartupDelay time.Duration `yaml:"startup_delay"`
	PollInterval time.Duration `yaml:"poll_interval"`

	Calibration Calibration `yaml:"calibration"`
	MQTT        MQTT        `yaml:"mqtt"`
}

type Axis struct {
	Reversed bool    `yaml:"reversed"`
	Gain     float64 `yaml:"gain"`
	Offset   float64 `yaml:"offset"`
}

type Calibration struct {
	X Axis `yaml:"x"`
	Y Axis `yaml:"y"`
	Z Axis `yaml:"z"`
}

type MQTT struct {
	Broker   string `yaml:"broker,omitempty"`
	ClientID string `yaml:"client_id,omitempty"`
	Topic    string `yaml:"topic,omitempty"`
	QoS      byte   `yaml:"qos,omitempty"`
	Retained bool   `yaml:"retained,omitempty"`
}

func Default() Config {
	def := Axis{Gain: 1.0}
	return Config{
		Adapter:      AdapterGeneric,
		Device:       "/dev/i2c-1",
		Address:      "vdd",
		AutoStart:    true,
		StartupDelay: itg3200.DefaultStartupDelay,
		PollInterval: 10 * time.Millisecond,
		Calibration:  Calibration{X: def, Y: def, Z: def},
		MQTT: MQTT{
			ClientID: "gyro",
			Topic:    "sensors/gyro",
		},
	}
}

// Load reads a YAML file on top of the defaults. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("could not read config %s: %w", path, err)
	}
	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("could not parse config %s: %w", path, err)
	}
	if _, err := cfg.DeviceAddress(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func Save(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("could not encode config: %w", err)
	}
	err = os.WriteFile(path, data, 0o644)
	if err != nil {
		return fmt.Errorf("could not write config %s: %w", path, err)
	}
	return nil
}

func (c Config) DeviceAddress() (itg3200.Address, error) {
	switch c.Address {
	case "vdd", "0x69", "":
		return itg3200.AddrAD0VDD, nil
	case "gnd", "0x68":
		return itg3200.AddrAD0GND, nil
	default:
		return 0, fmt.Errorf("invalid device address %q (expected vdd or gnd)", c.Address)
	}
}

// DriverCalibration converts file calibration to driver values.
func (c Calibration) DriverCalibration() itg3200.Calibration {
	conv := func(a Axis) itg3200.Axis {
		p := itg3200.Normal
		if a.Reversed {
			p = itg3200.Reversed
		}
		return itg3200.Axis{Polarity: p, Gain: a.Gain, Offset: a.Offset}
	}
	return itg3200.Calibration{X: conv(c.X), Y: conv(c.Y), Z: conv(c.Z)}
}

func FromDriverCalibration(cal itg3200.Calibration) Calibration {
	conv := func(a itg3200.Axis) Axis {
		return Axis{Reversed: a.Polarity == itg3200.Reversed, Gain: a.Gain, Offset: a.Offset}
	}
	return Calibration{X: conv(cal.X), Y: conv(cal.Y), Z: conv(cal.Z)}
}
