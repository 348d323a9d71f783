package client

import (
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// Limiters hands out one token bucket per egress so accounts sharing a proxy
// also share its request budget.
type Limiters struct {
	mu    sync.Mutex
	limit rate.Limit
	burst int
	m     map[string]*rate.Limiter
}

// NewLimiters returns nil when ratePerSec <= 0 (pacing disabled).
func NewLimiters(ratePerSec float64, burst int) *Limiters {
	if ratePerSec <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limiters{limit: rate.Limit(ratePerSec), burst: burst, m: map[string]*rate.Limiter{}}
}

// For returns the limiter for an egress ("" means the local address).
func (l *Limiters) For(egress string) *rate.Limiter {
	if l == nil {
		return nil
	}
	key := strings.TrimSpace(egress)
	if key == "" {
		key = "local"
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	lim := l.m[key]
	if lim == nil {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.m[key] = lim
	}
	return lim
}
