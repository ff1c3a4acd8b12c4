package gyro

import "time"

// Timer is a cancel handle for a scheduled action.
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d on the device's control loop.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}
