package gyro

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNotifier_EmitInOrder(t *testing.T) {
	var n Notifier
	var calls []string
	n.Subscribe(SignalUpdate, func() { calls = append(calls, "first") })
	n.Subscribe(SignalUpdate, func() { calls = append(calls, "second") })
	n.Subscribe(SignalReady, func() { calls = append(calls, "ready") })
	n.Subscribe(SignalReady, nil)

	n.Emit(SignalUpdate)
	assert.Equal(t, []string{"first", "second"}, calls)

	n.Emit(SignalReady)
	assert.Equal(t, []string{"first", "second", "ready"}, calls)
}

func TestNotifier_EmitWithoutSubscribers(t *testing.T) {
	var n Notifier
	assert.NotPanics(t, func() { n.Emit(SignalReady) })
}

func TestCommand_String(t *testing.T) {
	tests := []struct {
		given    Command
		expected string
	}{
		{Write(0x69, 0x16, 0x18), "WRITE 0x69 reg=0x16 val=0x18"},
		{Read(0x69, 0x1D, 6), "READ 0x69 reg=0x1d len=6"},
		{ReadContinuous(0x68, 0x1D, 6), "READ_CONTINUOUS 0x68 reg=0x1d len=6"},
		{StopReading(0x69), "STOP_READING 0x69"},
	}
	for _, test := range tests {
		t.Run(test.expected, func(t *testing.T) {
			assert.Equal(t, test.expected, test.given.String())
		})
	}
}
