package loop

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/mklimuk/gyro"
)

var ErrStopped = errors.New("loop: stopped")
var ErrRunning = errors.New("loop: already running")

// Task is a unit of work executed on the loop goroutine. A non-nil error is
// handed to the error handler; if that does not absorb it, Run returns it.
type Task func() error

type Opts struct {
	QueueSize    int
	Logger       *slog.Logger
	ErrorHandler func(error) error
}

type Opt func(*Opts)

func WithQueueSize(size int) Opt {
	return func(o *Opts) {
		o.QueueSize = size
	}
}

func WithLogger(logger *slog.Logger) Opt {
	return func(o *Opts) {
		o.Logger = logger
	}
}

// WithErrorHandler installs a filter for task errors. Returning nil keeps the
// loop running, returning an error stops Run with it.
func WithErrorHandler(h func(error) error) Opt {
	return func(o *Opts) {
		o.ErrorHandler = h
	}
}

// Loop serializes device callbacks, timers and application calls on a single
// goroutine. Everything that touches a device should run as a loop task.
type Loop struct {
	config  Opts
	tasks   chan Task
	done    chan struct{}
	running atomic.Bool
}

func New(opts ...Opt) *Loop {
	config := Opts{
		QueueSize: 64,
		Logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(&config)
	}
	return &Loop{
		config: config,
		tasks:  make(chan Task, config.QueueSize),
		done:   make(chan struct{}),
	}
}

// Post enqueues a task. It is safe for concurrent use and returns false once
// the loop has stopped. Posting from inside a task must not exceed the queue size.
func (l *Loop) Post(task Task) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.tasks <- task:
		return true
	case <-l.done:
		return false
	}
}

// Do runs f on the loop and waits for its result. Errors returned by f go to
// the caller and do not stop the loop.
func (l *Loop) Do(ctx context.Context, f func() error) error {
	res := make(chan error, 1)
	ok := l.Post(func() error {
		res <- f()
		return nil
	})
	if !ok {
		return ErrStopped
	}
	select {
	case err := <-res:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		select {
		case err := <-res:
			return err
		default:
			return ErrStopped
		}
	}
}

// AfterFunc schedules f to run on the loop after d.
func (l *Loop) AfterFunc(d time.Duration, f func()) gyro.Timer {
	t := &timer{}
	t.timer = time.AfterFunc(d, func() {
		l.Post(func() error {
			if t.stopped.Load() {
				return nil
			}
			t.stopped.Store(true)
			f()
			return nil
		})
	})
	return t
}

// Run executes posted tasks until ctx is done or a task fails.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			return nil
		case task := <-l.tasks:
			err := task()
			if err == nil {
				continue
			}
			if l.config.ErrorHandler != nil {
				err = l.config.ErrorHandler(err)
			}
			if err != nil {
				l.config.Logger.Error("loop task failed", "error", err)
				return err
			}
		}
	}
}

// Done is closed when Run returns.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

type timer struct {
	timer   *time.Timer
	stopped atomic.Bool
}

// Stop prevents the action from running. It reports whether the call stopped
// it, false means it already ran or was stopped before.
func (t *timer) Stop() bool {
	t.timer.Stop()
	return t.stopped.CompareAndSwap(false, true)
}
