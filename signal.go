package gyro

type Signal int

const (
	SignalReady Signal = iota
	SignalUpdate
)

func (s Signal) String() string {
	switch s {
	case SignalReady:
		return "ready"
	case SignalUpdate:
		return "update"
	default:
		return "unknown"
	}
}

type Handler func()

// Notifier keeps signal subscriptions and invokes them synchronously, in
// subscription order. It is not safe for concurrent use; it lives on the
// same control loop as the device that emits.
type Notifier struct {
	handlers map[Signal][]Handler
}

func (n *Notifier) Subscribe(sig Signal, h Handler) {
	if h == nil {
		return
	}
	if n.handlers == nil {
		n.handlers = make(map[Signal][]Handler)
	}
	n.handlers[sig] = append(n.handlers[sig], h)
}

func (n *Notifier) Emit(sig Signal) {
	for _, h := range n.handlers[sig] {
		h()
	}
}
