package kbucket

import (
	"sort"
	"time"

	"github.com/bosonnetwork/godht/id"
)

// KBucket holds up to K live entries for one id.Prefix, plus a
// same-capacity replacement cache for candidates that arrived while the
// live list was full. The live list is kept sorted by LastSeen,
// descending, so the stalest entry is always last.
type KBucket struct {
	Prefix      id.Prefix
	live        []*KBucketEntry
	cache       []*KBucketEntry
	LastRefresh time.Time
}

// New creates an empty KBucket for the given prefix.
func New(prefix id.Prefix) *KBucket {
	return &KBucket{Prefix: prefix}
}

// Live returns the bucket's live entries, ordered most-recently-seen
// first. The returned slice is owned by the caller.
func (b *KBucket) Live() []*KBucketEntry {
	out := make([]*KBucketEntry, len(b.live))
	copy(out, b.live)
	return out
}

// Cache returns the bucket's replacement-cache entries.
func (b *KBucket) Cache() []*KBucketEntry {
	out := make([]*KBucketEntry, len(b.cache))
	copy(out, b.cache)
	return out
}

// Len returns the number of live entries.
func (b *KBucket) Len() int { return len(b.live) }

// Full reports whether the live list is at capacity.
func (b *KBucket) Full() bool { return len(b.live) >= K }

// Find returns the live entry for id i, or nil.
func (b *KBucket) Find(i id.Id) *KBucketEntry {
	for _, e := range b.live {
		if e.Id.Equal(i) {
			return e
		}
	}
	return nil
}

// FindInCache returns the cached entry for id i, or nil.
func (b *KBucket) FindInCache(i id.Id) *KBucketEntry {
	for _, e := range b.cache {
		if e.Id.Equal(i) {
			return e
		}
	}
	return nil
}

// Put inserts or refreshes entry in the bucket. If an entry with the
// same id is already live, it is updated and resorted in place. If the
// live list has room, entry is added directly. Otherwise entry is
// offered to the replacement cache per admitToCache's eviction policy,
// and Put reports false so the caller (RoutingTable) knows the bucket
// needs splitting or the entry was only cached.
func (b *KBucket) Put(entry *KBucketEntry) (admittedLive bool) {
	if existing := b.Find(entry.Id); existing != nil {
		*existing = *entry
		b.resort()
		return true
	}
	if len(b.live) < K {
		b.live = append(b.live, entry)
		b.resort()
		b.evictFromCache(entry.Id)
		return true
	}
	b.admitToCache(entry)
	return false
}

// admitToCache inserts entry into the replacement cache, evicting the
// stalest unreachable cached entry first if the cache is full.
func (b *KBucket) admitToCache(entry *KBucketEntry) {
	if existing := b.FindInCache(entry.Id); existing != nil {
		*existing = *entry
		return
	}
	if len(b.cache) >= K {
		now := time.Now()
		if victim := b.stalestCacheVictim(now); victim >= 0 {
			b.cache = append(b.cache[:victim], b.cache[victim+1:]...)
		} else {
			return
		}
	}
	b.cache = append(b.cache, entry)
}

// stalestCacheVictim returns the index of the cache entry that is the
// best candidate for eviction: prefer an unreachable entry, breaking
// ties by oldest LastSeen. Returns -1 if the cache is empty.
func (b *KBucket) stalestCacheVictim(now time.Time) int {
	victim := -1
	for i, e := range b.cache {
		if victim == -1 {
			victim = i
			continue
		}
		cur := b.cache[victim]
		if !e.Reachable && cur.Reachable {
			victim = i
			continue
		}
		if e.Reachable == cur.Reachable && e.LastSeen.Before(cur.LastSeen) {
			victim = i
		}
	}
	return victim
}

func (b *KBucket) evictFromCache(i id.Id) {
	for idx, e := range b.cache {
		if e.Id.Equal(i) {
			b.cache = append(b.cache[:idx], b.cache[idx+1:]...)
			return
		}
	}
}

// OnTimeout increments the failure counter for id i and, once it has
// failed too many times, evicts it in favor of the best replacement
// candidate (or simply drops it if the cache is empty).
func (b *KBucket) OnTimeout(i id.Id) {
	e := b.Find(i)
	if e == nil {
		return
	}
	e.OnTimeout()
	if e.FailedRequests < MaxFailedRequests {
		return
	}
	b.remove(i)
	if replacement := b.popBestCacheCandidate(); replacement != nil {
		b.live = append(b.live, replacement)
		b.resort()
	}
}

// ForceRemove evicts id i immediately regardless of its failure count,
// promoting the best replacement-cache candidate in its place. Used
// when a peer is caught presenting a different id at a known address.
func (b *KBucket) ForceRemove(i id.Id) (removed bool) {
	if b.Find(i) == nil {
		return false
	}
	b.remove(i)
	if replacement := b.popBestCacheCandidate(); replacement != nil {
		b.live = append(b.live, replacement)
		b.resort()
	}
	return true
}

// OnSend records that a request was just sent to the live entry for id
// i, a no-op if i is not currently live.
func (b *KBucket) OnSend(i id.Id, now time.Time) {
	if e := b.Find(i); e != nil {
		e.OnSend(now)
	}
}

// OnResponse records a successful response from the live entry for id
// i, a no-op if i is not currently live.
func (b *KBucket) OnResponse(i id.Id, now time.Time, rtt time.Duration) {
	if e := b.Find(i); e != nil {
		e.OnResponse(now, rtt)
		b.resort()
	}
}

func (b *KBucket) remove(i id.Id) {
	for idx, e := range b.live {
		if e.Id.Equal(i) {
			b.live = append(b.live[:idx], b.live[idx+1:]...)
			return
		}
	}
}

// popBestCacheCandidate removes and returns the most promising cached
// entry to promote into the live list: prefer one already confirmed
// reachable, most recently seen.
func (b *KBucket) popBestCacheCandidate() *KBucketEntry {
	if len(b.cache) == 0 {
		return nil
	}
	best := 0
	for i, e := range b.cache {
		cur := b.cache[best]
		if e.Reachable && !cur.Reachable {
			best = i
			continue
		}
		if e.Reachable == cur.Reachable && e.LastSeen.After(cur.LastSeen) {
			best = i
		}
	}
	entry := b.cache[best]
	b.cache = append(b.cache[:best], b.cache[best+1:]...)
	return entry
}

func (b *KBucket) resort() {
	sort.Slice(b.live, func(i, j int) bool {
		return b.live[i].LastSeen.After(b.live[j].LastSeen)
	})
}

// PingCandidates returns up to n entries the maintenance pass should
// probe: live entries that NeedsPing, followed by cached entries (the
// suspicious-node/checkReachability sweep over the replacement cache).
func (b *KBucket) PingCandidates(now time.Time, n int) []*KBucketEntry {
	var out []*KBucketEntry
	for _, e := range b.live {
		if len(out) >= n {
			return out
		}
		if e.NeedsPing(now) {
			out = append(out, e)
		}
	}
	for _, e := range b.cache {
		if len(out) >= n {
			return out
		}
		out = append(out, e)
	}
	return out
}

// EffectiveSize returns the number of entries that would remain live
// after dropping those RemovableWithoutReplacement reports can be
// dropped outright (never reachable and at the failure limit), used by
// RoutingTable.maintenance to decide whether two sibling buckets are
// small enough to merge.
func (b *KBucket) EffectiveSize() int {
	n := 0
	for _, e := range b.live {
		if !e.RemovableWithoutReplacement() {
			n++
		}
	}
	return n
}
