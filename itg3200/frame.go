package itg3200

import (
	"encoding/binary"
	"fmt"

	"github.com/mklimuk/gyro"
)

// HandleFrame consumes a frame delivered by the transport. Frames from
// registers other than the gyro output block are logged and dropped.
func (d *ITG3200) HandleFrame(frame []byte) error {
	if len(frame) == 0 {
		return fmt.Errorf("%w: empty frame", ErrMalformedFrame)
	}
	switch frame[0] {
	case RegGyroXOut:
		return d.readGyro(frame)
	default:
		d.logger.Warn("got unexpected register data", "register", fmt.Sprintf("%#x", frame[0]), "length", len(frame))
		return nil
	}
}

func (d *ITG3200) readGyro(frame []byte) error {
	if len(frame) != gyroFrameLen {
		return fmt.Errorf("%w: expected %d bytes, got %d", ErrMalformedFrame, gyroFrameLen, len(frame))
	}
	d.raw[0] = decode(frame[1:3])
	d.raw[1] = decode(frame[3:5])
	d.raw[2] = decode(frame[5:7])
	d.notifier.Emit(gyro.SignalUpdate)
	return nil
}

// decode reads a big endian two's complement word.
func decode(b []byte) int16 {
	return int16(binary.BigEndian.Uint16(b))
}
