package transport

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/gyro"
	"github.com/mklimuk/gyro/loop"
)

// MockI2CBus is a mock implementation of gyro.I2CBus using testify/mock
type MockI2CBus struct {
	mock.Mock
}

func (m *MockI2CBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	args := m.Called(ctx, address, buffer)
	return args.Error(0)
}

func (m *MockI2CBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	args := m.Called(ctx, address, buffer)
	if data, ok := args.Get(0).([]byte); ok && len(data) <= len(buffer) {
		copy(buffer, data)
	}
	return args.Error(1)
}

func (m *MockI2CBus) Release(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// inlinePoster runs tasks right away and keeps their results.
type inlinePoster struct {
	mu   sync.Mutex
	errs []error
}

func (p *inlinePoster) Post(task loop.Task) bool {
	err := task()
	p.mu.Lock()
	p.errs = append(p.errs, err)
	p.mu.Unlock()
	return true
}

func (p *inlinePoster) results() []error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]error(nil), p.errs...)
}

type frameRecorder struct {
	mu     sync.Mutex
	frames [][]byte
}

func (r *frameRecorder) handle(frame []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, frame)
	return nil
}

func (r *frameRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

func (r *frameRecorder) first() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames[0]
}

func run(t *testing.T, tr *BusTransport) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = tr.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestBusTransport_Write(t *testing.T) {
	bus := &MockI2CBus{}
	written := make(chan struct{})
	bus.On("WriteToAddr", mock.Anything, byte(0x69), []byte{0x16, 0x18}).
		Run(func(mock.Arguments) { close(written) }).Return(nil).Once()
	tr := NewBusTransport(bus, &inlinePoster{})

	require.NoError(t, tr.Send(gyro.Write(0x69, 0x16, 0x18)))
	run(t, tr)

	select {
	case <-written:
	case <-time.After(time.Second):
		t.Fatal("write not executed")
	}
	bus.AssertExpectations(t)
}

func TestBusTransport_ReadDeliversFrame(t *testing.T) {
	bus := &MockI2CBus{}
	bus.On("WriteToAddr", mock.Anything, byte(0x69), []byte{0x1D}).Return(nil).Once()
	bus.On("ReadFromAddr", mock.Anything, byte(0x69), mock.Anything).
		Return([]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}, nil).Once()
	rec := &frameRecorder{}
	tr := NewBusTransport(bus, &inlinePoster{})
	tr.OnFrame(0x69, rec.handle)

	require.NoError(t, tr.Send(gyro.Read(0x69, 0x1D, 6)))
	run(t, tr)

	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, []byte{0x1D, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06}, rec.first())
	bus.AssertExpectations(t)
}

func TestBusTransport_ContinuousUntilStopped(t *testing.T) {
	bus := &MockI2CBus{}
	bus.On("WriteToAddr", mock.Anything, byte(0x68), []byte{0x1D}).Return(nil)
	bus.On("ReadFromAddr", mock.Anything, byte(0x68), mock.Anything).
		Return([]byte{0x00, 0x01, 0x00, 0x02, 0x00, 0x03}, nil)
	rec := &frameRecorder{}
	tr := NewBusTransport(bus, &inlinePoster{}, WithPollInterval(time.Millisecond))
	tr.OnFrame(0x68, rec.handle)
	run(t, tr)

	require.NoError(t, tr.Send(gyro.ReadContinuous(0x68, 0x1D, 6)))
	require.Eventually(t, func() bool { return rec.count() >= 3 }, time.Second, time.Millisecond)

	require.NoError(t, tr.Send(gyro.StopReading(0x68)))
	// let the stop command drain, then make sure polling ceased
	time.Sleep(20 * time.Millisecond)
	stopped := rec.count()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, stopped, rec.count())
}

func TestBusTransport_ReadErrorReleasesBus(t *testing.T) {
	bus := &MockI2CBus{}
	bus.On("WriteToAddr", mock.Anything, byte(0x69), []byte{0x1D}).Return(nil).Once()
	bus.On("ReadFromAddr", mock.Anything, byte(0x69), mock.Anything).Return(nil, gyro.ErrBusBusy).Once()
	released := make(chan struct{})
	bus.On("Release", mock.Anything).Run(func(mock.Arguments) { close(released) }).Return(nil).Once()
	rec := &frameRecorder{}
	tr := NewBusTransport(bus, &inlinePoster{})
	tr.OnFrame(0x69, rec.handle)

	require.NoError(t, tr.Send(gyro.Read(0x69, 0x1D, 6)))
	run(t, tr)

	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("bus not released")
	}
	bus.AssertExpectations(t)
	assert.Zero(t, rec.count())
}

func TestBusTransport_HandlerErrorReachesLoop(t *testing.T) {
	bus := &MockI2CBus{}
	bus.On("WriteToAddr", mock.Anything, byte(0x69), []byte{0x1D}).Return(nil).Once()
	bus.On("ReadFromAddr", mock.Anything, byte(0x69), mock.Anything).Return([]byte{0x00, 0x01}, nil).Once()
	poster := &inlinePoster{}
	failure := errors.New("malformed")
	tr := NewBusTransport(bus, poster)
	tr.OnFrame(0x69, func(frame []byte) error { return failure })

	require.NoError(t, tr.Send(gyro.Read(0x69, 0x1D, 2)))
	run(t, tr)

	require.Eventually(t, func() bool { return len(poster.results()) == 1 }, time.Second, time.Millisecond)
	assert.ErrorIs(t, poster.results()[0], failure)
}

func TestBusTransport_QueueFull(t *testing.T) {
	tr := NewBusTransport(&MockI2CBus{}, &inlinePoster{}, WithQueueSize(1))
	require.NoError(t, tr.Send(gyro.StopReading(0x69)))
	assert.ErrorIs(t, tr.Send(gyro.StopReading(0x69)), ErrQueueFull)
}

func TestBusTransport_KeepsCommandOrder(t *testing.T) {
	bus := &MockI2CBus{}
	var mu sync.Mutex
	var regs []byte
	bus.On("WriteToAddr", mock.Anything, byte(0x69), mock.Anything).Run(func(args mock.Arguments) {
		mu.Lock()
		regs = append(regs, args.Get(2).([]byte)[0])
		mu.Unlock()
	}).Return(nil)
	tr := NewBusTransport(bus, &inlinePoster{})
	for _, reg := range []byte{0x15, 0x16, 0x3E, 0x17} {
		require.NoError(t, tr.Send(gyro.Write(0x69, reg, 0x00)))
	}
	run(t, tr)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(regs) == 4
	}, time.Second, time.Millisecond)
	assert.Equal(t, []byte{0x15, 0x16, 0x3E, 0x17}, regs)
}
