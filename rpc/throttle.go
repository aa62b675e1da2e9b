// Package rpc implements the per-address-family RPC server spec.md
// §4.3 describes: a single reactor owning a UDP socket, routing table
// feedback, adaptive timeouts, per-remote throttling and suspicious-
// node banning.
package rpc

import (
	"net/netip"
	"sync"
	"time"

	"github.com/cockroachdb/tokenbucket"
)

// DefaultThrottleRate and DefaultThrottleBurst match spec.md §4.3's
// "32 rps, burst 128" default per-remote-ip token bucket.
const (
	DefaultThrottleRate  = tokenbucket.TokensPerSecond(32)
	DefaultThrottleBurst = tokenbucket.Tokens(128)
)

// Throttle rate-limits inbound and outbound traffic per remote IP,
// dropping an inbound request on burst exceeded and delaying an
// outbound call proportionally.
type Throttle struct {
	mu       sync.Mutex
	disabled bool
	rate     tokenbucket.TokensPerSecond
	burst    tokenbucket.Tokens
	buckets  map[netip.Addr]*tokenbucket.TokenBucket
}

// NewThrottle returns a Throttle enforcing rate/burst per remote IP.
func NewThrottle(rate tokenbucket.TokensPerSecond, burst tokenbucket.Tokens) *Throttle {
	return &Throttle{
		rate:    rate,
		burst:   burst,
		buckets: make(map[netip.Addr]*tokenbucket.TokenBucket),
	}
}

// NewUnthrottled returns a Throttle that allows everything, for
// deployments that opt out of spam throttling.
func NewUnthrottled() *Throttle {
	return &Throttle{disabled: true}
}

func (t *Throttle) bucketLocked(addr netip.Addr) *tokenbucket.TokenBucket {
	b, ok := t.buckets[addr]
	if !ok {
		b = &tokenbucket.TokenBucket{}
		b.Init(t.rate, t.burst)
		t.buckets[addr] = b
	}
	return b
}

// AllowInbound reports whether a just-received datagram from addr
// should be processed, consuming one token. A burst-exceeding remote
// has its datagram dropped at ingress.
func (t *Throttle) AllowInbound(addr netip.Addr) bool {
	if t.disabled {
		return true
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	ok, _ := t.bucketLocked(addr).TryToFulfill(1)
	return ok
}

// OutboundDelay reports how long an outbound call to addr should be
// held back to stay within its budget. A zero result consumes one
// token; a non-zero wait consumes none.
func (t *Throttle) OutboundDelay(addr netip.Addr) time.Duration {
	if t.disabled {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	ok, wait := t.bucketLocked(addr).TryToFulfill(1)
	if ok {
		return 0
	}
	return wait
}
