// Package routingtable implements the split-on-demand k-bucket trie
// that covers the full 256-bit keyspace: a sorted, non-overlapping
// sequence of kbucket.KBucket values, split when the bucket containing
// the local node id fills up and merged back together when sibling
// buckets go quiet.
package routingtable

import (
	"sort"
	"sync"
	"time"

	"github.com/bosonnetwork/godht/id"
	"github.com/bosonnetwork/godht/kbucket"
)

// DefaultRefreshInterval is how long a bucket may go without activity
// before maintenance schedules a refresh lookup against a random id
// inside it.
const DefaultRefreshInterval = 15 * time.Minute

// RoutingTable is the per-address-family routing table. All mutating
// operations are serialized under a single lock (the "single logical
// writer" spec.md calls for); reads take the same lock in shared mode,
// which is cheap enough at this scale that a true lock-free snapshot
// scheme isn't worth the complexity.
type RoutingTable struct {
	mu              sync.RWMutex
	local           id.Id
	buckets         []*kbucket.KBucket
	refreshInterval time.Duration
}

// New creates a RoutingTable for the given local id, starting with a
// single bucket covering the whole keyspace.
func New(local id.Id) *RoutingTable {
	return &RoutingTable{
		local:           local,
		buckets:         []*kbucket.KBucket{kbucket.New(id.WholeKeyspace())},
		refreshInterval: DefaultRefreshInterval,
	}
}

// Put inserts or refreshes entry, splitting the bucket it lands in when
// the bucket is full, splittable, and on the path to the local id.
// Every other full bucket simply demotes the entry to its replacement
// cache.
func (rt *RoutingTable) Put(entry *kbucket.KBucketEntry) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	for {
		idx := rt.indexOf(entry.Id)
		bucket := rt.buckets[idx]
		if !bucket.Full() {
			bucket.Put(entry)
			return
		}
		if rt.splittable(bucket) {
			rt.split(idx)
			continue
		}
		bucket.Put(entry)
		return
	}
}

// splittable reports whether bucket may split further: its prefix must
// not already identify a single id, and it must lie on the path to the
// local id (home bucket or one of its ancestors-in-progress).
func (rt *RoutingTable) splittable(bucket *kbucket.KBucket) bool {
	return bucket.Prefix.IsSplittable() && bucket.Prefix.IsPrefixOf(rt.local)
}

// split replaces the bucket at idx with its two children, redistributing
// its live and cached entries between them.
func (rt *RoutingTable) split(idx int) {
	old := rt.buckets[idx]
	zeroPrefix, onePrefix := old.Prefix.Split()
	zeroBucket := kbucket.New(zeroPrefix)
	oneBucket := kbucket.New(onePrefix)

	for _, e := range old.Live() {
		if zeroPrefix.IsPrefixOf(e.Id) {
			zeroBucket.Put(e)
		} else {
			oneBucket.Put(e)
		}
	}
	for _, e := range old.Cache() {
		if zeroPrefix.IsPrefixOf(e.Id) {
			zeroBucket.Put(e)
		} else {
			oneBucket.Put(e)
		}
	}

	rt.buckets = append(rt.buckets[:idx], append([]*kbucket.KBucket{zeroBucket, oneBucket}, rt.buckets[idx+1:]...)...)
}

// indexOf returns the index of the (unique, non-overlapping) bucket
// whose prefix covers i.
func (rt *RoutingTable) indexOf(i id.Id) int {
	lo, hi := 0, len(rt.buckets)-1
	for lo < hi {
		mid := (lo + hi) / 2
		if rt.buckets[mid].Prefix.LastId().Compare(i) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// OnTimeout records a non-response from id i.
func (rt *RoutingTable) OnTimeout(i id.Id) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.buckets[rt.indexOf(i)].OnTimeout(i)
}

// OnSend records that a request was just sent to id i.
func (rt *RoutingTable) OnSend(i id.Id, now time.Time) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.buckets[rt.indexOf(i)].OnSend(i, now)
}

// OnResponse records a successful response from id i.
func (rt *RoutingTable) OnResponse(i id.Id, now time.Time, rtt time.Duration) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.buckets[rt.indexOf(i)].OnResponse(i, now, rtt)
}

// Find returns the live entry for id i, or nil.
func (rt *RoutingTable) Find(i id.Id) *kbucket.KBucketEntry {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.buckets[rt.indexOf(i)].Find(i)
}

// GetClosest returns up to k entries eligible to be handed out in a
// nodes list, ordered by ascending XOR distance to target with ties
// broken by descending LastSeen. It walks outward from the bucket
// containing target rather than scanning the whole table, matching
// spec.md's locality-first search.
func (rt *RoutingTable) GetClosest(target id.Id, k int) []*kbucket.KBucketEntry {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	home := rt.indexOf(target)
	var candidates []*kbucket.KBucketEntry
	now := time.Now()

	collect := func(idx int) {
		for _, e := range rt.buckets[idx].Live() {
			if e.IsEligibleForNodesList(now) {
				candidates = append(candidates, e)
			}
		}
	}

	collect(home)
	for lo, hi := home-1, home+1; lo >= 0 || hi < len(rt.buckets); lo, hi = lo-1, hi+1 {
		if len(candidates) >= k {
			break
		}
		if lo >= 0 {
			collect(lo)
		}
		if hi < len(rt.buckets) {
			collect(hi)
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if id.Less(candidates[i].Id, candidates[j].Id, target) {
			return true
		}
		if id.Less(candidates[j].Id, candidates[i].Id, target) {
			return false
		}
		return candidates[i].LastSeen.After(candidates[j].LastSeen)
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates
}

// HandleIdChange evicts any live entry whose address matches observed
// but whose id does not, per spec.md's "a node that changes id on a
// known address is forced-removed" failure rule, and forces its bucket
// to be re-verified on the next maintenance pass.
func (rt *RoutingTable) HandleIdChange(observed kbucket.NodeInfo) (evicted bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	for _, bucket := range rt.buckets {
		for _, e := range bucket.Live() {
			if e.Id.Equal(observed.Id) {
				continue
			}
			if e.Port == observed.Port && e.IP.Equal(observed.IP) {
				bucket.ForceRemove(e.Id)
				bucket.LastRefresh = time.Time{}
				return true
			}
		}
	}
	return false
}

// RefreshCandidates returns the prefixes of buckets whose last refresh
// is older than the refresh interval, for the caller to drive a
// find_node(random-id-in-prefix) lookup against.
func (rt *RoutingTable) RefreshCandidates(now time.Time) []id.Prefix {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	var out []id.Prefix
	for _, b := range rt.buckets {
		if b.LastRefresh.IsZero() || now.Sub(b.LastRefresh) >= rt.refreshInterval {
			out = append(out, b.Prefix)
		}
	}
	return out
}

// MarkRefreshed records that the bucket covering prefix was just
// refreshed.
func (rt *RoutingTable) MarkRefreshed(prefix id.Prefix, now time.Time) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	for _, b := range rt.buckets {
		if b.Prefix.Equal(prefix) {
			b.LastRefresh = now
			return
		}
	}
}

// PingCandidates returns up to n entries across the table that
// maintenance should probe, drawn from stale live entries and
// replacement caches.
func (rt *RoutingTable) PingCandidates(now time.Time, n int) []*kbucket.KBucketEntry {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	var out []*kbucket.KBucketEntry
	for _, b := range rt.buckets {
		if len(out) >= n {
			break
		}
		out = append(out, b.PingCandidates(now, n-len(out))...)
	}
	return out
}

// Maintenance merges adjacent sibling buckets whose combined effective
// size fits in one bucket, never merging away the home bucket (the one
// containing the local id).
func (rt *RoutingTable) Maintenance() {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	for {
		merged := false
		for i := 0; i+1 < len(rt.buckets); i++ {
			a, b := rt.buckets[i], rt.buckets[i+1]
			if !a.Prefix.IsSiblingOf(b.Prefix) {
				continue
			}
			if a.Prefix.IsPrefixOf(rt.local) || b.Prefix.IsPrefixOf(rt.local) {
				continue
			}
			if a.EffectiveSize()+b.EffectiveSize() > kbucket.K {
				continue
			}
			rt.mergeAt(i)
			merged = true
			break
		}
		if !merged {
			return
		}
	}
}

func (rt *RoutingTable) mergeAt(i int) {
	a, b := rt.buckets[i], rt.buckets[i+1]
	parent := kbucket.New(a.Prefix.Parent())
	for _, e := range a.Live() {
		parent.Put(e)
	}
	for _, e := range b.Live() {
		parent.Put(e)
	}
	for _, e := range a.Cache() {
		parent.Put(e)
	}
	for _, e := range b.Cache() {
		parent.Put(e)
	}
	rt.buckets = append(rt.buckets[:i], append([]*kbucket.KBucket{parent}, rt.buckets[i+2:]...)...)
}

// BucketCount returns the number of buckets currently in the table.
func (rt *RoutingTable) BucketCount() int {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return len(rt.buckets)
}

// EntryCount returns the total number of live entries across all
// buckets.
func (rt *RoutingTable) EntryCount() int {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	n := 0
	for _, b := range rt.buckets {
		n += b.Len()
	}
	return n
}

// Snapshot returns every live entry in the table, for persisting the
// routing-table cache to dataDir between restarts.
func (rt *RoutingTable) Snapshot() []kbucket.NodeInfo {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	var out []kbucket.NodeInfo
	for _, b := range rt.buckets {
		for _, e := range b.Live() {
			out = append(out, e.NodeInfo)
		}
	}
	return out
}
