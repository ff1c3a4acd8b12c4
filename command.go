package gyro

import "fmt"

type CommandKind byte

const (
	CommandWrite CommandKind = iota
	CommandRead
	CommandReadContinuous
	CommandStopReading
)

func (k CommandKind) String() string {
	switch k {
	case CommandWrite:
		return "WRITE"
	case CommandRead:
		return "READ"
	case CommandReadContinuous:
		return "READ_CONTINUOUS"
	case CommandStopReading:
		return "STOP_READING"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", byte(k))
	}
}

// Command is a single request addressed to a device on the bus.
// Value is only meaningful for writes, Length only for reads.
type Command struct {
	Kind     CommandKind
	Address  byte
	Register byte
	Value    byte
	Length   int
}

func Write(address, register, value byte) Command {
	return Command{Kind: CommandWrite, Address: address, Register: register, Value: value}
}

func Read(address, register byte, length int) Command {
	return Command{Kind: CommandRead, Address: address, Register: register, Length: length}
}

func ReadContinuous(address, register byte, length int) Command {
	return Command{Kind: CommandReadContinuous, Address: address, Register: register, Length: length}
}

func StopReading(address byte) Command {
	return Command{Kind: CommandStopReading, Address: address}
}

func (c Command) String() string {
	switch c.Kind {
	case CommandWrite:
		return fmt.Sprintf("%s %#02x reg=%#02x val=%#02x", c.Kind, c.Address, c.Register, c.Value)
	case CommandRead, CommandReadContinuous:
		return fmt.Sprintf("%s %#02x reg=%#02x len=%d", c.Kind, c.Address, c.Register, c.Length)
	default:
		return fmt.Sprintf("%s %#02x", c.Kind, c.Address)
	}
}

// FrameHandler receives a frame led by the register it was read from.
// A returned error is fatal to that frame and is surfaced by the transport.
type FrameHandler func(frame []byte) error

// Transport issues commands to devices and delivers response frames
// asynchronously. Handlers are always invoked on the caller's control loop.
type Transport interface {
	Send(cmd Command) error
	OnFrame(address byte, handler FrameHandler)
}
