package i2c

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/mklimuk/gyro"
)

var ErrNoDevice = errors.New("no device acknowledged the address")

const (
	regWhoAmI   = 0x00
	regTempOut  = 0x1B
	regGyroXOut = 0x1D
	regCount    = 0x40
)

// RateBehaviorFunc produces the raw X, Y and Z rate registers of a simulated
// gyroscope each time they are read.
type RateBehaviorFunc func(ctx context.Context) ([3]int16, error)

var _ gyro.I2CBus = &MockITG3200Bus{}

// MockITG3200Bus simulates an ITG-3200 register file on an I2C bus so the
// driver and cli can run without hardware. Register writes are stored, reads
// auto-increment the register pointer the way the chip does.
//
// Example usage:
//
//	// sensor at rest with a small bias
//	bus := NewMockITG3200Bus(0x69, func(ctx context.Context) ([3]int16, error) {
//		return [3]int16{12, -7, 3}, nil
//	})
type MockITG3200Bus struct {
	mx       sync.Mutex
	address  byte
	regs     [regCount]byte
	pointer  byte
	behavior RateBehaviorFunc
}

func NewMockITG3200Bus(address byte, behavior RateBehaviorFunc) *MockITG3200Bus {
	b := &MockITG3200Bus{
		address:  address,
		behavior: behavior,
	}
	// WHO_AM_I holds bits 6:1 of the address
	b.regs[regWhoAmI] = address &^ 0x01
	return b
}

// Register returns the stored value of reg.
func (b *MockITG3200Bus) Register(reg byte) byte {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.regs[reg%regCount]
}

func (b *MockITG3200Bus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	if address != b.address {
		return fmt.Errorf("write to %#02x: %w", address, ErrNoDevice)
	}
	if len(buffer) == 0 {
		return nil
	}
	b.mx.Lock()
	defer b.mx.Unlock()
	b.pointer = buffer[0] % regCount
	for _, v := range buffer[1:] {
		// WHO_AM_I is read-only
		if b.pointer != regWhoAmI {
			b.regs[b.pointer] = v
		}
		b.pointer = (b.pointer + 1) % regCount
	}
	return nil
}

func (b *MockITG3200Bus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	if address != b.address {
		return fmt.Errorf("read from %#02x: %w", address, ErrNoDevice)
	}
	b.mx.Lock()
	defer b.mx.Unlock()
	start, end := int(b.pointer), int(b.pointer)+len(buffer)
	if start < regGyroXOut+6 && end > regTempOut && b.behavior != nil {
		rates, err := b.behavior(ctx)
		if err != nil {
			return err
		}
		for i, r := range rates {
			binary.BigEndian.PutUint16(b.regs[regGyroXOut+2*i:], uint16(r))
		}
	}
	for i := range buffer {
		buffer[i] = b.regs[b.pointer]
		b.pointer = (b.pointer + 1) % regCount
	}
	return nil
}

func (b *MockITG3200Bus) Release(ctx context.Context) error {
	return nil
}
