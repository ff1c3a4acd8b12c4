package firmata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/gyro"
)

func TestEncodeRequest(t *testing.T) {
	tests := []struct {
		name     string
		given    gyro.Command
		expected []byte
	}{
		{"write", gyro.Write(0x69, 0x16, 0x18), []byte{0xF0, 0x76, 0x69, 0x00, 0x16, 0x00, 0x18, 0x00, 0xF7}},
		{"write high bit", gyro.Write(0x69, 0x3E, 0x81), []byte{0xF0, 0x76, 0x69, 0x00, 0x3E, 0x00, 0x01, 0x01, 0xF7}},
		{"read", gyro.Read(0x69, 0x1D, 6), []byte{0xF0, 0x76, 0x69, 0x08, 0x1D, 0x00, 0x06, 0x00, 0xF7}},
		{"read continuous", gyro.ReadContinuous(0x68, 0x1D, 6), []byte{0xF0, 0x76, 0x68, 0x10, 0x1D, 0x00, 0x06, 0x00, 0xF7}},
		{"stop reading", gyro.StopReading(0x69), []byte{0xF0, 0x76, 0x69, 0x18, 0xF7}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			msg, err := EncodeRequest(test.given)
			require.NoError(t, err)
			assert.Equal(t, test.expected, msg)
		})
	}
}

func TestEncodeRequest_Invalid(t *testing.T) {
	_, err := EncodeRequest(gyro.Command{Kind: 42})
	assert.Error(t, err)
	_, err = EncodeRequest(gyro.Read(0x69, 0x1D, 0x4000))
	assert.Error(t, err)
}

func TestEncodeConfig(t *testing.T) {
	assert.Equal(t, []byte{0xF0, 0x78, 0x00, 0x00, 0xF7}, EncodeI2CConfig(0))
	assert.Equal(t, []byte{0xF0, 0x78, 0x2C, 0x02, 0xF7}, EncodeI2CConfig(300))
	assert.Equal(t, []byte{0xF0, 0x7A, 0x13, 0x00, 0xF7}, EncodeSamplingInterval(19))
}

func TestDecodeReply(t *testing.T) {
	reply, err := DecodeReply([]byte{0x69, 0x00, 0x1D, 0x00, 0x7F, 0x01, 0x00, 0x00})
	require.NoError(t, err)
	assert.Equal(t, byte(0x69), reply.Address)
	assert.Equal(t, []byte{0x1D, 0xFF, 0x00}, reply.Frame)

	_, err = DecodeReply([]byte{0x69, 0x00, 0x1D})
	assert.ErrorIs(t, err, ErrInvalidReply)
	_, err = DecodeReply([]byte{0x69})
	assert.ErrorIs(t, err, ErrInvalidReply)
	_, err = DecodeReply([]byte{0x00, 0x02, 0x1D, 0x00})
	assert.ErrorIs(t, err, ErrInvalidReply)
}

func feed(d *Decoder, stream []byte) []Message {
	var res []Message
	for _, b := range stream {
		if msg, ok := d.Feed(b); ok {
			res = append(res, msg)
		}
	}
	return res
}

func TestDecoder(t *testing.T) {
	var d Decoder
	stream := []byte{
		0xE0, 0x10, 0x01, // analog message, skipped
		0xF9, 0x02, 0x05, // version 2.5
		0xF0, 0x77, 0x69, 0x00, 0x1D, 0x00, 0xF7,
		0x90, 0x01, 0x00, // digital message, skipped
		0xF0, 0x77, 0x69, // truncated sysex
		0xF0, 0x71, 0x41, 0x00, 0xF7, // string data
		0xF0, 0xF7, // empty sysex
	}

	msgs := feed(&d, stream)

	require.Len(t, msgs, 3)
	assert.Equal(t, Message{Command: reportVersion, Body: []byte{0x02, 0x05}}, msgs[0])
	assert.Equal(t, Message{Command: i2cReply, Body: []byte{0x69, 0x00, 0x1D, 0x00}}, msgs[1])
	assert.Equal(t, Message{Command: 0x71, Body: []byte{0x41, 0x00}}, msgs[2])
}
