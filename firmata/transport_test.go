package firmata

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/gyro"
	"github.com/mklimuk/gyro/loop"
)

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

// pipePort reads from a fixed stream and records writes.
type pipePort struct {
	r   io.Reader
	mu  sync.Mutex
	out bytes.Buffer
}

func (p *pipePort) Read(b []byte) (int, error) {
	return p.r.Read(b)
}

func (p *pipePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.out.Write(b)
}

func (p *pipePort) written() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.out.Bytes()...)
}

func TestTransport_SendAndConfigure(t *testing.T) {
	port := &pipePort{r: bytes.NewReader(nil)}
	tr := NewTransport(port, &inlinePoster{}, WithI2CDelay(300), WithSamplingInterval(10))

	require.NoError(t, tr.Configure())
	require.NoError(t, tr.Send(gyro.StopReading(0x69)))

	assert.Equal(t, []byte{
		0xF0, 0x78, 0x2C, 0x02, 0xF7,
		0xF0, 0x7A, 0x0A, 0x00, 0xF7,
		0xF0, 0x76, 0x69, 0x18, 0xF7,
	}, port.written())
}

func TestTransport_RunDeliversReplies(t *testing.T) {
	stream := []byte{
		0xF9, 0x02, 0x05,
		// reply from 0x69, register 0x1D, data 0x01 0x80
		0xF0, 0x77, 0x69, 0x00, 0x1D, 0x00, 0x01, 0x00, 0x00, 0x01, 0xF7,
		// reply from a device nobody listens to
		0xF0, 0x77, 0x50, 0x00, 0x00, 0x00, 0xF7,
		// malformed reply
		0xF0, 0x77, 0x69, 0xF7,
	}
	port := &pipePort{r: bytes.NewReader(stream)}
	poster := &inlinePoster{}
	tr := NewTransport(port, poster)
	var frames [][]byte
	tr.OnFrame(0x69, func(frame []byte) error {
		frames = append(frames, frame)
		return nil
	})

	err := tr.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, [][]byte{{0x1D, 0x01, 0x80}}, frames)
	select {
	case <-tr.Ready():
	case <-time.After(time.Second):
		t.Fatal("version report did not mark the board ready")
	}
	assert.Len(t, poster.errs, 2)
}
