package botdefense

import (
	"fmt"
	"net/netip"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Reputation blocks listed networks and addresses that keep failing.
type Reputation struct {
	mu        sync.Mutex
	blocklist []netip.Prefix
	strikes   *expirable.LRU[netip.Addr, []time.Time]
	limit     int
	window    time.Duration
}

// NewReputation builds a reputation tracker.
func NewReputation(blocklist []netip.Prefix, size, limit int, window time.Duration) *Reputation {
	return &Reputation{
		blocklist: blocklist,
		strikes:   expirable.NewLRU[netip.Addr, []time.Time](size, nil, window),
		limit:     limit,
		window:    window,
	}
}

// Strike records a failed submission from ip.
func (r *Reputation) Strike(ip netip.Addr, now time.Time) {
	if !ip.IsValid() {
		return
	}
	ip = ip.Unmap()
	r.mu.Lock()
	defer r.mu.Unlock()
	prior, _ := r.strikes.Get(ip)
	r.strikes.Add(ip, append(r.recent(prior, now), now))
}

// Strikes counts strikes for ip within the window.
func (r *Reputation) Strikes(ip netip.Addr, now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	prior, _ := r.strikes.Peek(ip.Unmap())
	return len(r.recent(prior, now))
}

func (r *Reputation) recent(times []time.Time, now time.Time) []time.Time {
	out := make([]time.Time, 0, len(times)+1)
	for _, at := range times {
		if now.Sub(at) < r.window {
			out = append(out, at)
		}
	}
	return out
}

func (r *Reputation) check(sub Submission, now time.Time) Signal {
	if !sub.IP.IsValid() {
		return Pass(CheckReputation)
	}
	ip := sub.IP.Unmap()
	for _, prefix := range r.blocklist {
		if prefix.Contains(ip) {
			return Block(CheckReputation, "address is on the blocklist")
		}
	}
	if n := r.Strikes(ip, now); n >= r.limit {
		return Block(CheckReputation, fmt.Sprintf("%d recent strikes", n))
	}
	return Pass(CheckReputation)
}
