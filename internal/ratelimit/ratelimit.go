// Package ratelimit builds the per-endpoint token buckets spec.md §5
// requires for outbound calls to the LLM, GSTIN, bank-statement, and
// WhatsApp collaborators: "excess requests queue within the worker, not
// in the DB queue." Grounded on gateway/middleware/ratelimit.go's
// key->RateLimit map, but keyed by remote endpoint name rather than by
// caller identity since these buckets throttle the worker's outbound
// side, not inbound API traffic.
package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"
)

// Limiters is a registry of named token buckets, one per outbound
// collaborator endpoint ("gstin", "bankstatement", "llm", "whatsapp").
type Limiters struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
}

// New builds a registry from a name -> requests-per-minute map. A name with
// no entry (or a non-positive value) gets no limiter, i.e. unlimited.
func New(perMinute map[string]int) *Limiters {
	l := &Limiters{limiters: make(map[string]*rate.Limiter, len(perMinute))}
	for name, n := range perMinute {
		if n <= 0 {
			continue
		}
		ratePerSec := rate.Limit(float64(n) / 60.0)
		burst := n
		if burst < 1 {
			burst = 1
		}
		l.limiters[name] = rate.NewLimiter(ratePerSec, burst)
	}
	return l
}

// For returns the limiter registered for name, or nil if the endpoint is
// unthrottled. Callers should treat a nil limiter as "always allow".
func (l *Limiters) For(name string) *rate.Limiter {
	if l == nil {
		return nil
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.limiters[name]
}
