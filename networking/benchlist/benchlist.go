// Package benchlist implements the RPC server's suspicious-node
// detector, spec.md §4.3: a remote IP accumulating inconsistent
// id/address pairs or malformed messages past a threshold within a
// sliding window is banned at ingress for a fixed duration.
package benchlist

import (
	"net/netip"
	"sync"
	"time"
)

// Benchlist tracks suspicious remotes by IP and bans those that cross
// the incident threshold.
type Benchlist interface {
	// RegisterIncident records one malformed-message or
	// inconsistent-identity event from addr.
	RegisterIncident(addr netip.Addr)
	// IsBanned reports whether addr is currently serving out a ban.
	IsBanned(addr netip.Addr) bool
}

type incidentLog struct {
	times []time.Time
}

type benchlist struct {
	mu        sync.Mutex
	config    Config
	incidents map[netip.Addr]*incidentLog
	banned    map[netip.Addr]time.Time
}

// New returns a Benchlist enforcing config.
func New(config Config) Benchlist {
	return &benchlist{
		config:    config,
		incidents: make(map[netip.Addr]*incidentLog),
		banned:    make(map[netip.Addr]time.Time),
	}
}

type noopBenchlist struct{}

func (noopBenchlist) RegisterIncident(netip.Addr) {}
func (noopBenchlist) IsBanned(netip.Addr) bool    { return false }

// Noop returns a Benchlist that never bans anyone, for deployments
// that opt out of suspicious-node detection.
func Noop() Benchlist {
	return noopBenchlist{}
}

func (b *benchlist) IsBanned(addr netip.Addr) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	until, ok := b.banned[addr]
	if !ok {
		return false
	}
	if time.Now().After(until) {
		delete(b.banned, addr)
		return false
	}
	return true
}

func (b *benchlist) RegisterIncident(addr netip.Addr) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, banned := b.banned[addr]; banned {
		return
	}

	now := time.Now()
	log, ok := b.incidents[addr]
	if !ok {
		log = &incidentLog{}
		b.incidents[addr] = log
	}
	log.times = pruneBefore(log.times, now.Add(-b.config.Window))
	log.times = append(log.times, now)

	if len(log.times) >= b.config.Threshold {
		b.banned[addr] = now.Add(b.config.BanDuration)
		delete(b.incidents, addr)
	}
}

func pruneBefore(times []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(times) && times[i].Before(cutoff) {
		i++
	}
	if i == 0 {
		return times
	}
	return append([]time.Time(nil), times[i:]...)
}
