package firmata

import (
	"fmt"
	"io"

	"github.com/jacobsa/go-serial/serial"
)

// DefaultBaudRate matches StandardFirmata.
const DefaultBaudRate = 57600

// OpenSerial opens the board's serial port.
func OpenSerial(port string, baud uint) (io.ReadWriteCloser, error) {
	if baud == 0 {
		baud = DefaultBaudRate
	}
	rwc, err := serial.Open(serial.OpenOptions{
		PortName:        port,
		BaudRate:        baud,
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
		ParityMode:      serial.PARITY_NONE,
	})
	if err != nil {
		return nil, fmt.Errorf("firmata: could not open serial port %s: %w", port, err)
	}
	return rwc, nil
}
