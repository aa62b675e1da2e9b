// Package kbucket implements the routing table's leaf data structure:
// NodeInfo, the per-peer liveness record KBucketEntry built on top of
// it, and the fixed-capacity KBucket (live list + replacement cache)
// that a RoutingTable splits and merges as peers come and go.
package kbucket

import (
	"net"
	"time"

	"github.com/bosonnetwork/godht/id"
)

// K is the maximum number of live entries a single KBucket holds, and
// also the size of its replacement cache.
const K = 8

// Alpha is the Kademlia concurrency factor: the number of parallel
// in-flight RPCs an iterative lookup keeps outstanding.
const Alpha = 3

// MaxFailedRequests is the number of consecutive non-responses after
// which an entry is evicted from its bucket (replaced from the cache,
// or dropped if the cache is empty).
const MaxFailedRequests = 5

const (
	// localLookupWindow bounds how long ago an entry must have been
	// seen for it to still be considered useful for routing a local
	// request, even if it has since accumulated some failures.
	localLookupWindow = 15 * time.Minute

	// nodesListWindow bounds how long ago a reachable entry must have
	// been seen for it to be handed out in a findNode/findValue
	// response.
	nodesListWindow = 15 * time.Minute

	// pingInterval is how long an entry may go unconfirmed before the
	// routing table's maintenance pass wants to ping it.
	pingInterval = 10 * time.Minute

	// staleAfter is how long an entry may go unseen, combined with any
	// accumulated failures, before it is considered stale enough to
	// evict in favor of a replacement-cache candidate.
	staleAfter = 15 * time.Minute
)

// NodeInfo is the address a peer is reachable at. Two infos match if
// either their id or their (ip, port) pair coincides — the routing
// table treats that as the same logical peer under a stale or
// not-yet-learned identity. Equality requires all three fields to
// agree.
type NodeInfo struct {
	Id      id.Id
	IP      net.IP
	Port    uint16
	Version *uint32
}

// Match reports whether a and b could plausibly be the same peer: same
// id, or same address.
func (a NodeInfo) Match(b NodeInfo) bool {
	if a.Id.Equal(b.Id) {
		return true
	}
	return a.Port == b.Port && a.IP.Equal(b.IP)
}

// Equal reports whether a and b are the same id at the same address.
func (a NodeInfo) Equal(b NodeInfo) bool {
	return a.Id.Equal(b.Id) && a.Port == b.Port && a.IP.Equal(b.IP)
}

// Addr renders the (ip, port) pair as a *net.UDPAddr, for use by the
// rpc package when sending a datagram.
func (a NodeInfo) Addr() *net.UDPAddr {
	return &net.UDPAddr{IP: a.IP, Port: int(a.Port)}
}

// KBucketEntry is the routing table's liveness record for one peer: a
// NodeInfo plus the timestamps and counters needed to decide whether it
// still deserves a place in the live list.
type KBucketEntry struct {
	NodeInfo

	CreatedAt      time.Time
	FirstSeen      time.Time
	LastSeen       time.Time
	LastSend       time.Time
	FailedRequests int
	Reachable      bool
	RTTEwma        time.Duration
}

// NewKBucketEntry creates an entry freshly learned about from a
// candidate message, not yet confirmed reachable.
func NewKBucketEntry(info NodeInfo, now time.Time) *KBucketEntry {
	return &KBucketEntry{
		NodeInfo:  info,
		CreatedAt: now,
		FirstSeen: now,
		LastSeen:  now,
	}
}

// OnSend records that a request was just sent to this entry.
func (e *KBucketEntry) OnSend(now time.Time) {
	e.LastSend = now
}

// OnResponse records a successful response, resetting the failure
// counter and marking the entry reachable.
func (e *KBucketEntry) OnResponse(now time.Time, rtt time.Duration) {
	e.LastSeen = now
	e.FailedRequests = 0
	e.Reachable = true
	e.updateRTT(rtt)
}

// OnTimeout records a non-response.
func (e *KBucketEntry) OnTimeout() {
	e.FailedRequests++
}

func (e *KBucketEntry) updateRTT(sample time.Duration) {
	if e.RTTEwma == 0 {
		e.RTTEwma = sample
		return
	}
	// alpha = 0.3: a live EWMA that reacts faster than a simple average
	// but doesn't whipsaw on a single slow reply.
	const alpha = 0.3
	e.RTTEwma = time.Duration(alpha*float64(sample) + (1-alpha)*float64(e.RTTEwma))
}

// IsEligibleForLocalLookup reports whether this entry is good enough to
// route a local request through: it was seen recently, or it has never
// failed a request at all.
func (e *KBucketEntry) IsEligibleForLocalLookup(now time.Time) bool {
	return now.Sub(e.LastSeen) < localLookupWindow || e.FailedRequests == 0
}

// IsEligibleForNodesList reports whether this entry may be handed out
// to a remote peer in a findNode/findValue response: it must be
// confirmed reachable and recently seen.
func (e *KBucketEntry) IsEligibleForNodesList(now time.Time) bool {
	return e.Reachable && now.Sub(e.LastSeen) < nodesListWindow
}

// NeedsPing reports whether maintenance should probe this entry because
// it has gone quiet for too long.
func (e *KBucketEntry) NeedsPing(now time.Time) bool {
	return now.Sub(e.LastSeen) >= pingInterval
}

// OldAndStale reports whether this entry has both gone unseen for a
// long time and accumulated failures, the combination that makes it a
// preferred eviction candidate over a never-failed-but-quiet entry.
func (e *KBucketEntry) OldAndStale(now time.Time) bool {
	return now.Sub(e.LastSeen) >= staleAfter && e.FailedRequests > 0
}

// RemovableWithoutReplacement reports whether this entry can simply be
// dropped rather than requiring a replacement-cache candidate to take
// its place: it has never responded at all and has exceeded the
// failure threshold.
func (e *KBucketEntry) RemovableWithoutReplacement() bool {
	return !e.Reachable && e.FailedRequests >= MaxFailedRequests
}
