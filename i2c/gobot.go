package i2c

import (
	"context"
	"errors"
	"fmt"
	"sync"

	gi2c "gobot.io/x/gobot/v2/drivers/i2c"
	"gobot.io/x/gobot/v2/platforms/friendlyelec/nanopi"

	"github.com/mklimuk/gyro"
)

var _ gyro.I2CBus = &GobotBus{}

// GobotBus exposes any gobot I2C connector (NanoPi, Raspberry Pi, ...) as a
// register bus. Connections are opened lazily, one per device address.
type GobotBus struct {
	connector gi2c.Connector
	busNr     int
	finalize  func() error

	mx    sync.Mutex
	conns map[byte]gi2c.Connection
}

func NewGobotBus(connector gi2c.Connector, busNr int) *GobotBus {
	return &GobotBus{
		connector: connector,
		busNr:     busNr,
		conns:     make(map[byte]gi2c.Connection),
	}
}

// NewNanoPiBus connects the NanoPi NEO I2C adaptor on the given bus.
func NewNanoPiBus(busNr int) (*GobotBus, error) {
	npi := nanopi.NewNeoAdaptor()
	err := npi.I2cBusAdaptor.Connect()
	if err != nil {
		return nil, fmt.Errorf("adaptor connect error: %w", err)
	}
	b := NewGobotBus(npi, busNr)
	b.finalize = npi.I2cBusAdaptor.Finalize
	return b, nil
}

func (b *GobotBus) conn(address byte) (gi2c.Connection, error) {
	b.mx.Lock()
	defer b.mx.Unlock()
	if c, ok := b.conns[address]; ok {
		return c, nil
	}
	c, err := b.connector.GetI2cConnection(int(address), b.busNr)
	if err != nil {
		return nil, fmt.Errorf("could not open connection to %#x on bus %d: %w", address, b.busNr, err)
	}
	b.conns[address] = c
	return c, nil
}

func (b *GobotBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	c, err := b.conn(address)
	if err != nil {
		return err
	}
	n, err := c.Read(buffer)
	if err != nil {
		return fmt.Errorf("read from %#x failed: %w", address, err)
	}
	if n != len(buffer) {
		return fmt.Errorf("short read from %#x: %d of %d bytes", address, n, len(buffer))
	}
	return nil
}

func (b *GobotBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	c, err := b.conn(address)
	if err != nil {
		return err
	}
	_, err = c.Write(buffer)
	if err != nil {
		return fmt.Errorf("write to %#x failed: %w", address, err)
	}
	return nil
}

func (b *GobotBus) Release(ctx context.Context) error {
	return nil
}

// Close closes the device connections and finalizes the adaptor, if owned.
func (b *GobotBus) Close() error {
	b.mx.Lock()
	defer b.mx.Unlock()
	var errs []error
	for addr, c := range b.conns {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("could not close connection to %#x: %w", addr, err))
		}
		delete(b.conns, addr)
	}
	if b.finalize != nil {
		if err := b.finalize(); err != nil {
			errs = append(errs, fmt.Errorf("adaptor finalize error: %w", err))
		}
	}
	return errors.Join(errs...)
}
