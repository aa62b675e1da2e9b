// Package timeout implements the RPC server's adaptive per-call
// timeout, spec.md §4.3: a call's deadline starts at
// max(rttEwma*2, MinTimeout), capped at MaxTimeout, where rttEwma is a
// smoothed average of that remote's recent measured round-trip times.
package timeout

import (
	"sync"
	"time"

	"github.com/bosonnetwork/godht/id"
)

const (
	// MinTimeout is the floor for any call's deadline, applied before a
	// remote has any recorded RTT samples.
	MinTimeout = 2 * time.Second
	// MaxTimeout is the ceiling for any call's deadline regardless of
	// how poor a remote's measured RTT is.
	MaxTimeout = 10 * time.Second
	// ewmaAlpha weights new RTT samples against the running average.
	ewmaAlpha = 0.3
)

// Manager tracks per-remote RTT and per-call deadlines for the RPC
// server's outstanding calls.
type Manager struct {
	mu      sync.Mutex
	rtt     map[id.Id]time.Duration
	pending map[uint32]*pendingCall
}

type pendingCall struct {
	remote id.Id
	timer  *time.Timer
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{
		rtt:     make(map[id.Id]time.Duration),
		pending: make(map[uint32]*pendingCall),
	}
}

// Estimate returns the current deadline this Manager would assign a
// new call to remote, without registering anything.
func (m *Manager) Estimate(remote id.Id) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.estimateLocked(remote)
}

func (m *Manager) estimateLocked(remote id.Id) time.Duration {
	avg, ok := m.rtt[remote]
	if !ok {
		return MinTimeout
	}
	d := avg * 2
	if d < MinTimeout {
		return MinTimeout
	}
	if d > MaxTimeout {
		return MaxTimeout
	}
	return d
}

// RegisterRequest installs a deadline for txid against remote, calling
// onTimeout if RegisterResponse/Cancel does not arrive first. It
// returns the deadline chosen.
func (m *Manager) RegisterRequest(remote id.Id, txid uint32, onTimeout func()) time.Duration {
	m.mu.Lock()
	d := m.estimateLocked(remote)
	timer := time.AfterFunc(d, func() {
		m.mu.Lock()
		_, stillPending := m.pending[txid]
		delete(m.pending, txid)
		m.mu.Unlock()
		if stillPending {
			onTimeout()
		}
	})
	m.pending[txid] = &pendingCall{remote: remote, timer: timer}
	m.mu.Unlock()
	return d
}

// RegisterResponse completes txid with the measured round-trip time,
// cancelling its timeout timer and folding the sample into the
// remote's RTT average. It reports false if txid was not outstanding
// (a late or duplicate response).
func (m *Manager) RegisterResponse(txid uint32, rtt time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	call, ok := m.pending[txid]
	if !ok {
		return false
	}
	call.timer.Stop()
	delete(m.pending, txid)

	prev, ok := m.rtt[call.remote]
	if !ok {
		m.rtt[call.remote] = rtt
	} else {
		m.rtt[call.remote] = time.Duration(float64(prev)*(1-ewmaAlpha) + float64(rtt)*ewmaAlpha)
	}
	return true
}

// Cancel cancels txid's timeout without recording an RTT sample, used
// when a call is abandoned (e.g. its owning task was cancelled).
func (m *Manager) Cancel(txid uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	call, ok := m.pending[txid]
	if !ok {
		return
	}
	call.timer.Stop()
	delete(m.pending, txid)
}

// Pending reports how many calls are currently awaiting a response.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}
