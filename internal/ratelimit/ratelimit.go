// Package ratelimit provides global inbound admission control.
package ratelimit

import (
	"sync"
	"time"
)

// window is the fixed admission window length.
const window = time.Minute

// Limiter bounds how many inbound messages are processed per rolling
// 60-second window across all chats. Rejection is immediate; there is
// no queueing. Safe for concurrent use.
type Limiter struct {
	max int

	mu    sync.Mutex
	count int
	reset time.Time

	now func() time.Time // test override
}

// New creates a limiter. max <= 0 disables limiting entirely.
func New(max int) *Limiter {
	return &Limiter{max: max, now: time.Now}
}

// Admit reports whether the current request may proceed. Whichever
// caller first observes the window deadline resets the shared counter;
// the check and increment happen in one critical section so concurrent
// messages cannot lose updates.
func (l *Limiter) Admit() bool {
	if l.max <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if !now.Before(l.reset) {
		l.count = 0
		l.reset = now.Add(window)
	}

	if l.count >= l.max {
		return false
	}
	l.count++
	return true
}
