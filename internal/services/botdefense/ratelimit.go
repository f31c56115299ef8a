package botdefense

import (
	"fmt"
	"net/netip"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type window struct {
	start time.Time
	count int
}

// RateLimiter counts submissions per (IP, form) in fixed windows.
type RateLimiter struct {
	mu      sync.Mutex
	windows *expirable.LRU[string, window]
	limit   int
	period  time.Duration
}

// NewRateLimiter allows limit submissions per period.
func NewRateLimiter(size, limit int, period time.Duration) *RateLimiter {
	return &RateLimiter{
		windows: expirable.NewLRU[string, window](size, nil, period),
		limit:   limit,
		period:  period,
	}
}

// Allow records one submission and reports whether it is within the limit.
func (r *RateLimiter) Allow(ip netip.Addr, form string, now time.Time) bool {
	key := ip.String() + "|" + form
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.windows.Get(key)
	if !ok || now.Sub(w.start) >= r.period {
		w = window{start: now}
	}
	w.count++
	r.windows.Add(key, w)
	return w.count <= r.limit
}

func (r *RateLimiter) check(sub Submission, now time.Time) Signal {
	if !r.Allow(sub.IP, sub.Form, now) {
		return Block(CheckRateLimit, fmt.Sprintf("more than %d submissions in %s", r.limit, r.period))
	}
	return Pass(CheckRateLimit)
}
