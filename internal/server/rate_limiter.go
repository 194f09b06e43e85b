// Package server throttles inbound events per connection so that one client
// cannot flood a room.
package server

import (
	"time"

	"golang.org/x/time/rate"
)

// eventLimiter is a token bucket that refills a full burst every interval.
type eventLimiter struct {
	limiter *rate.Limiter
}

func newEventLimiter(cfg RateLimitConfig) *eventLimiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	interval := cfg.RefillInterval
	if interval <= 0 {
		interval = time.Second
	}

	every := rate.Every(interval / time.Duration(burst))
	return &eventLimiter{limiter: rate.NewLimiter(every, burst)}
}

func (l *eventLimiter) allow() bool {
	return l.limiter.Allow()
}
