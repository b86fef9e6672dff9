package tgbotapisfm

import (
	"sync"
	"time"
)

// DefaultSendInterval keeps the bot under the global limit of about 30
// messages per second.
const DefaultSendInterval = 35 * time.Millisecond

// Limiter spaces outgoing API calls.
type Limiter struct {
	mu       sync.Mutex
	interval time.Duration
	lastCall time.Time
}

func NewLimiter() *Limiter {
	return NewLimiterWithInterval(DefaultSendInterval)
}

func NewLimiterWithInterval(interval time.Duration) *Limiter {
	return &Limiter{interval: interval}
}

// Wait blocks until interval has passed since the previous call.
func (l *Limiter) Wait() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if elapsed := time.Since(l.lastCall); elapsed < l.interval {
		time.Sleep(l.interval - elapsed)
	}
	l.lastCall = time.Now()
}
