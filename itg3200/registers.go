package itg3200

import "time"

// Register map (ITG-3200 datasheet, rev 1.4)
const (
	RegWhoAmI    byte = 0x00
	RegSmplrtDiv byte = 0x15
	RegDLPFFS    byte = 0x16
	RegIntCfg    byte = 0x17
	RegGyroXOut  byte = 0x1D
	RegGyroYOut  byte = 0x1F
	RegGyroZOut  byte = 0x21
	RegPwrMgm    byte = 0x3E
)

// Address selects the bus address via the AD0 pin (pin 9).
type Address byte

const (
	AddrAD0VDD Address = 0x69
	AddrAD0GND Address = 0x68
)

func (a Address) String() string {
	switch a {
	case AddrAD0VDD:
		return "AD0-VDD (0x69)"
	case AddrAD0GND:
		return "AD0-GND (0x68)"
	default:
		return "invalid"
	}
}

// Sensitivity is the scale factor in LSB per degree/second.
const Sensitivity = 14.375

// DefaultStartupDelay is the settle time after the configuration writes.
const DefaultStartupDelay = 70 * time.Millisecond

// gyroBlockLen covers GYRO_XOUT_H..GYRO_ZOUT_L
const gyroBlockLen = 6

// frame = register echo + gyro block
const gyroFrameLen = gyroBlockLen + 1

var initSequence = []struct {
	reg, val byte
}{
	// fastest sample rate divisor
	{RegSmplrtDiv, 0x00},
	// +-2000 deg/s full scale, 256Hz low pass, 8kHz internal sample rate
	{RegDLPFFS, 0x18},
	// internal oscillator
	{RegPwrMgm, 0x00},
	// ITG ready and raw data ready bits
	{RegIntCfg, 0x05},
}
