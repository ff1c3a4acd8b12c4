package itg3200

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/gyro"
)

// recordingTransport keeps every command it was asked to send.
type recordingTransport struct {
	sent     []gyro.Command
	handlers map[byte]gyro.FrameHandler
	err      error
}

func (t *recordingTransport) Send(cmd gyro.Command) error {
	if t.err != nil {
		return t.err
	}
	t.sent = append(t.sent, cmd)
	return nil
}

func (t *recordingTransport) OnFrame(address byte, h gyro.FrameHandler) {
	if t.handlers == nil {
		t.handlers = make(map[byte]gyro.FrameHandler)
	}
	t.handlers[address] = h
}

func (t *recordingTransport) deliver(address byte, frame ...byte) error {
	return t.handlers[address](frame)
}

func (t *recordingTransport) kinds() []gyro.CommandKind {
	res := make([]gyro.CommandKind, 0, len(t.sent))
	for _, c := range t.sent {
		res = append(res, c.Kind)
	}
	return res
}

func (t *recordingTransport) reset() {
	t.sent = nil
}

// manualScheduler fires scheduled actions only when asked to.
type manualScheduler struct {
	pending []*manualTimer
}

type manualTimer struct {
	delay   time.Duration
	f       func()
	stopped bool
}

func (t *manualTimer) Stop() bool {
	if t.stopped {
		return false
	}
	t.stopped = true
	return true
}

func (s *manualScheduler) AfterFunc(d time.Duration, f func()) gyro.Timer {
	t := &manualTimer{delay: d, f: f}
	s.pending = append(s.pending, t)
	return t
}

func (s *manualScheduler) fire() {
	pending := s.pending
	s.pending = nil
	for _, t := range pending {
		if t.stopped {
			continue
		}
		t.stopped = true
		t.f()
	}
}

func newDevice(t *testing.T, opts ...Opt) (*ITG3200, *recordingTransport, *manualScheduler) {
	t.Helper()
	tr := &recordingTransport{}
	sched := &manualScheduler{}
	d, err := New(tr, sched, opts...)
	require.NoError(t, err)
	return d, tr, sched
}

func readyDevice(t *testing.T) (*ITG3200, *recordingTransport) {
	t.Helper()
	d, tr, sched := newDevice(t, WithAutoStart(false))
	sched.fire()
	tr.reset()
	return d, tr
}

func TestITG3200_InitSequence(t *testing.T) {
	d, tr, sched := newDevice(t)

	assert.Equal(t, []gyro.Command{
		gyro.Write(0x69, 0x15, 0x00),
		gyro.Write(0x69, 0x16, 0x18),
		gyro.Write(0x69, 0x3E, 0x00),
		gyro.Write(0x69, 0x17, 0x05),
	}, tr.sent)
	require.Len(t, sched.pending, 1)
	assert.Equal(t, 70*time.Millisecond, sched.pending[0].delay)
	assert.NotNil(t, d.startupTimer)
	assert.False(t, d.IsReady())
	assert.False(t, d.IsRunning())
	assert.Contains(t, tr.handlers, byte(0x69))
}

func TestITG3200_AutoStartAfterDelay(t *testing.T) {
	d, tr, sched := newDevice(t)
	ready := 0
	d.Subscribe(gyro.SignalReady, func() {
		ready++
		// ready is signalled before streaming starts
		assert.False(t, d.IsRunning())
	})

	require.Len(t, tr.sent, 4)
	sched.fire()

	assert.Equal(t, 1, ready)
	assert.Nil(t, d.startupTimer)
	assert.True(t, d.IsReady())
	assert.True(t, d.IsRunning())
	require.Len(t, tr.sent, 5)
	assert.Equal(t, gyro.ReadContinuous(0x69, 0x1D, 6), tr.sent[4])

	// nothing left to fire
	sched.fire()
	assert.Equal(t, 1, ready)
	assert.Len(t, tr.sent, 5)
}

func TestITG3200_NoAutoStart(t *testing.T) {
	d, tr, sched := newDevice(t, WithAutoStart(false), WithAddress(AddrAD0GND), WithStartupDelay(10*time.Millisecond))
	sched.fire()
	assert.True(t, d.IsReady())
	assert.False(t, d.IsRunning())
	assert.Len(t, tr.sent, 4)
	for _, c := range tr.sent {
		assert.Equal(t, byte(0x68), c.Address)
	}
	assert.Equal(t, AddrAD0GND, d.Address())
}

func TestITG3200_InvalidAddress(t *testing.T) {
	_, err := New(&recordingTransport{}, &manualScheduler{}, WithAddress(0x42))
	assert.Error(t, err)
}

func TestITG3200_InitWriteFailure(t *testing.T) {
	failure := errors.New("bus down")
	sched := &manualScheduler{}
	tr := &recordingTransport{err: failure}
	_, err := New(tr, sched)
	assert.ErrorIs(t, err, failure)
	assert.Empty(t, sched.pending)
	assert.Empty(t, tr.handlers, "a device that failed to configure must not receive frames")
}

func TestITG3200_StartReadingTwice(t *testing.T) {
	d, tr := readyDevice(t)

	require.NoError(t, d.StartReading())
	require.NoError(t, d.StartReading())

	assert.Equal(t, []gyro.CommandKind{gyro.CommandReadContinuous}, tr.kinds())
	assert.True(t, d.IsRunning())
}

func TestITG3200_StartReadingBeforeReady(t *testing.T) {
	d, tr, _ := newDevice(t, WithAutoStart(false))
	tr.reset()

	assert.ErrorIs(t, d.StartReading(), ErrNotReady)
	assert.False(t, d.IsRunning())
	assert.Empty(t, tr.sent)
}

func TestITG3200_StopReadingWhenIdle(t *testing.T) {
	d, tr := readyDevice(t)

	require.NoError(t, d.StopReading())
	require.NoError(t, d.StopReading())

	assert.Equal(t, []gyro.Command{gyro.StopReading(0x69), gyro.StopReading(0x69)}, tr.sent)
	assert.False(t, d.IsRunning())
}

func TestITG3200_UpdateWhileStreaming(t *testing.T) {
	d, tr := readyDevice(t)
	require.NoError(t, d.StartReading())
	tr.reset()

	require.NoError(t, d.Update())

	assert.Equal(t, []gyro.Command{
		gyro.StopReading(0x69),
		gyro.Read(0x69, 0x1D, 6),
	}, tr.sent)
	assert.Equal(t, StateIdle, d.State())
}

func TestITG3200_UpdateWhenIdle(t *testing.T) {
	d, tr := readyDevice(t)

	require.NoError(t, d.Update())

	assert.Equal(t, []gyro.Command{gyro.Read(0x69, 0x1D, 6)}, tr.sent)
	assert.False(t, d.IsRunning())
}

func TestITG3200_SendFailure(t *testing.T) {
	d, tr := readyDevice(t)
	tr.err = errors.New("queue full")
	assert.ErrorIs(t, d.StopReading(), tr.err)
	assert.ErrorIs(t, d.Update(), tr.err)
}

func TestITG3200_StartReadingRetryAfterSendFailure(t *testing.T) {
	d, tr := readyDevice(t)
	tr.err = errors.New("queue full")
	assert.ErrorIs(t, d.StartReading(), tr.err)
	assert.False(t, d.IsRunning())
	assert.Equal(t, StateIdle, d.State())

	tr.err = nil
	require.NoError(t, d.StartReading())
	assert.True(t, d.IsRunning())
	assert.Equal(t, []gyro.Command{gyro.ReadContinuous(0x69, RegGyroXOut, 6)}, tr.sent)
}

func TestITG3200_AutoStartSendFailureStaysIdle(t *testing.T) {
	d, tr, sched := newDevice(t)
	tr.reset()
	tr.err = errors.New("queue full")
	sched.fire()
	assert.True(t, d.IsReady())
	assert.False(t, d.IsRunning())

	tr.err = nil
	require.NoError(t, d.StartReading())
	assert.Equal(t, []gyro.CommandKind{gyro.CommandReadContinuous}, tr.kinds())
}

func TestITG3200_CalibrationSurvivesStateChanges(t *testing.T) {
	d, _ := readyDevice(t)
	d.SetGains(2, 3, 4)
	d.SetOffsets(1, 2, 3)
	d.SetRevPolarity(true, false, true)
	expected := d.Calibration()

	require.NoError(t, d.StartReading())
	require.NoError(t, d.Update())
	require.NoError(t, d.StopReading())

	assert.Equal(t, expected, d.Calibration())
}

func TestITG3200_EndToEnd(t *testing.T) {
	d, tr, sched := newDevice(t)
	updates := 0
	d.Subscribe(gyro.SignalUpdate, func() { updates++ })
	sched.fire()

	require.NoError(t, tr.deliver(0x69, 0x1D, 0x00, 0x73, 0xFF, 0x8D, 0x01, 0x00))

	assert.Equal(t, 1, updates)
	assert.Equal(t, Reading{
		RawX: 115,
		RawY: -115,
		RawZ: 256,
		X:    8,
		Y:    -8,
		Z:    256 / 14.375,
	}, d.Reading())
}
