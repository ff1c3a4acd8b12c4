package gyro

import (
	"context"
	"fmt"
)

var ErrBusBusy = fmt.Errorf("I2C engine is busy (command not completed)")

type AddressableReader interface {
	ReadFromAddr(ctx context.Context, address byte, buffer []byte) error
}

type AddressableWriter interface {
	WriteToAddr(ctx context.Context, address byte, buffer []byte) error
	Release(ctx context.Context) error
}

// I2CBus is a raw register bus. Adapters (periph, gobot, MCP2221) implement it
// and the register-bus transport turns gyro commands into bus transactions on top of it.
type I2CBus interface {
	AddressableReader
	AddressableWriter
}
