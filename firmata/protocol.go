package firmata

import (
	"errors"
	"fmt"

	"github.com/mklimuk/gyro"
)

// Firmata message bytes used for I2C
const (
	startSysex       byte = 0xF0
	endSysex         byte = 0xF7
	reportVersion    byte = 0xF9
	i2cRequest       byte = 0x76
	i2cReply         byte = 0x77
	i2cConfig        byte = 0x78
	reportFirmware   byte = 0x79
	samplingInterval byte = 0x7A
)

// I2C_REQUEST read/write modes (bits 4:3 of the second address byte)
const (
	modeWrite          byte = 0b00 << 3
	modeRead           byte = 0b01 << 3
	modeReadContinuous byte = 0b10 << 3
	modeStopReading    byte = 0b11 << 3
)

var ErrInvalidReply = errors.New("firmata: invalid I2C reply")

// EncodeRequest builds the I2C_REQUEST sysex message for a command.
func EncodeRequest(cmd gyro.Command) ([]byte, error) {
	var mode byte
	var data []byte
	switch cmd.Kind {
	case gyro.CommandWrite:
		mode = modeWrite
		data = []byte{cmd.Register, cmd.Value}
	case gyro.CommandRead:
		mode = modeRead
	case gyro.CommandReadContinuous:
		mode = modeReadContinuous
	case gyro.CommandStopReading:
		mode = modeStopReading
	default:
		return nil, fmt.Errorf("firmata: unsupported command %s", cmd.Kind)
	}
	msg := []byte{startSysex, i2cRequest, cmd.Address & 0x7F, mode}
	if mode == modeRead || mode == modeReadContinuous {
		if cmd.Length < 0 || cmd.Length > 0x3FFF {
			return nil, fmt.Errorf("firmata: invalid read length %d", cmd.Length)
		}
		msg = append(msg, cmd.Register&0x7F, cmd.Register>>7, byte(cmd.Length&0x7F), byte(cmd.Length>>7))
	}
	for _, b := range data {
		msg = append(msg, b&0x7F, b>>7)
	}
	return append(msg, endSysex), nil
}

// EncodeI2CConfig sets the delay in microseconds between the register
// write and the read that follows it.
func EncodeI2CConfig(delay uint16) []byte {
	return []byte{startSysex, i2cConfig, byte(delay & 0x7F), byte(delay >> 7 & 0x7F), endSysex}
}

// EncodeSamplingInterval sets the continuous read period in milliseconds.
func EncodeSamplingInterval(ms uint16) []byte {
	return []byte{startSysex, samplingInterval, byte(ms & 0x7F), byte(ms >> 7 & 0x7F), endSysex}
}

// Reply is a decoded I2C_REPLY message. Frame is led by the register
// the data was read from.
type Reply struct {
	Address byte
	Frame   []byte
}

// DecodeReply decodes the body of an I2C_REPLY sysex (without the start, command and end bytes).
func DecodeReply(body []byte) (Reply, error) {
	if len(body) < 4 || len(body)%2 != 0 {
		return Reply{}, fmt.Errorf("%w: body length %d", ErrInvalidReply, len(body))
	}
	address := uint16(body[0]) | uint16(body[1])<<7
	if address > 0x7F {
		return Reply{}, fmt.Errorf("%w: address %#x", ErrInvalidReply, address)
	}
	frame := make([]byte, 0, len(body)/2)
	for i := 2; i < len(body); i += 2 {
		frame = append(frame, body[i]|body[i+1]<<7)
	}
	return Reply{Address: byte(address), Frame: frame}, nil
}

// Decoder splits a Firmata byte stream into messages. Only the version report
// and sysex messages are recognised, everything else is skipped.
type Decoder struct {
	inSysex bool
	sysex   []byte
	version []byte
	want    int
}

type Message struct {
	// Sysex command byte, or reportVersion
	Command byte
	Body    []byte
}

// Feed consumes one byte and returns a message once one is complete.
func (d *Decoder) Feed(b byte) (Message, bool) {
	switch {
	case d.inSysex && b == endSysex:
		d.inSysex = false
		if len(d.sysex) == 0 {
			return Message{}, false
		}
		msg := Message{Command: d.sysex[0], Body: append([]byte(nil), d.sysex[1:]...)}
		d.sysex = d.sysex[:0]
		return msg, true
	case d.inSysex && b&0x80 != 0:
		// unterminated sysex, resync on the new command
		d.inSysex = false
		d.sysex = d.sysex[:0]
		return d.Feed(b)
	case d.inSysex:
		d.sysex = append(d.sysex, b)
	case b == startSysex:
		d.inSysex = true
		d.sysex = d.sysex[:0]
		d.want = 0
	case b == reportVersion:
		d.want = 2
		d.version = d.version[:0]
	case d.want > 0 && b&0x80 == 0:
		d.version = append(d.version, b)
		d.want--
		if d.want == 0 {
			return Message{Command: reportVersion, Body: append([]byte(nil), d.version...)}, true
		}
	default:
		d.want = 0
	}
	return Message{}, false
}
