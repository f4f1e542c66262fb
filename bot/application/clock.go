package application

import "time"

type Clock interface {
	Now() time.Time
	Since(time.Time) time.Duration
}

// SystemClock は実時間の Clock です。
type SystemClock struct{}

func (SystemClock) Now() time.Time                  { return time.Now() }
func (SystemClock) Since(t time.Time) time.Duration { return time.Since(t) }
