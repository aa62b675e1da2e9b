package kbucket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bosonnetwork/godht/id"
)

func TestBucketPutFillsLiveBeforeCache(t *testing.T) {
	b := New(id.WholeKeyspace())
	now := time.Now()

	for i := byte(0); i < K; i++ {
		ok := b.Put(NewKBucketEntry(testInfo(i), now))
		require.True(t, ok)
	}
	require.Equal(t, K, b.Len())

	overflow := NewKBucketEntry(testInfo(K), now)
	ok := b.Put(overflow)
	require.False(t, ok, "bucket full, entry should go to cache instead")
	require.Len(t, b.Cache(), 1)
}

func TestBucketPutRefreshesExisting(t *testing.T) {
	b := New(id.WholeKeyspace())
	now := time.Now()
	info := testInfo(1)

	b.Put(NewKBucketEntry(info, now))
	later := now.Add(time.Minute)
	e2 := NewKBucketEntry(info, later)
	e2.Reachable = true
	b.Put(e2)

	require.Equal(t, 1, b.Len())
	require.True(t, b.Find(info.Id).Reachable)
}

func TestBucketOnTimeoutEvictsAndPromotesFromCache(t *testing.T) {
	b := New(id.WholeKeyspace())
	now := time.Now()

	for i := byte(0); i < K; i++ {
		b.Put(NewKBucketEntry(testInfo(i), now))
	}
	cached := NewKBucketEntry(testInfo(K), now)
	cached.Reachable = true
	b.Put(cached)

	target := testInfo(0).Id
	for i := 0; i < MaxFailedRequests; i++ {
		b.OnTimeout(target)
	}

	require.Nil(t, b.Find(target), "evicted entry should no longer be live")
	require.NotNil(t, b.Find(testInfo(K).Id), "cached entry should be promoted")
	require.Equal(t, K, b.Len())
}

func TestBucketOnResponseResortsByLastSeen(t *testing.T) {
	b := New(id.WholeKeyspace())
	now := time.Now()

	a := testInfo(1)
	c := testInfo(2)
	b.Put(NewKBucketEntry(a, now))
	b.Put(NewKBucketEntry(c, now))

	b.OnResponse(a.Id, now.Add(time.Hour), 10*time.Millisecond)

	live := b.Live()
	require.Equal(t, a.Id, live[0].Id, "most recently seen entry sorts first")
}

func TestBucketEffectiveSizeExcludesRemovable(t *testing.T) {
	b := New(id.WholeKeyspace())
	now := time.Now()
	info := testInfo(1)
	b.Put(NewKBucketEntry(info, now))

	e := b.Find(info.Id)
	for i := 0; i < MaxFailedRequests; i++ {
		e.OnTimeout()
	}
	require.Equal(t, 0, b.EffectiveSize())
}

func TestBucketPingCandidatesPrefersStaleLiveThenCache(t *testing.T) {
	b := New(id.WholeKeyspace())
	now := time.Now()

	stale := NewKBucketEntry(testInfo(1), now.Add(-20*time.Minute))
	stale.LastSeen = now.Add(-20 * time.Minute)
	b.Put(stale)

	fresh := NewKBucketEntry(testInfo(2), now)
	b.Put(fresh)

	cands := b.PingCandidates(now, 5)
	require.Len(t, cands, 1)
	require.Equal(t, testInfo(1).Id, cands[0].Id)
}

func TestBucketForceRemovePromotesFromCache(t *testing.T) {
	b := New(id.WholeKeyspace())
	now := time.Now()

	live := testInfo(1)
	b.Put(NewKBucketEntry(live, now))

	cached := NewKBucketEntry(testInfo(2), now)
	cached.Reachable = true
	b.admitToCache(cached)

	require.True(t, b.ForceRemove(live.Id))
	require.Nil(t, b.Find(live.Id))
	require.NotNil(t, b.Find(testInfo(2).Id))
}

func TestBucketForceRemoveUnknownIdIsNoop(t *testing.T) {
	b := New(id.WholeKeyspace())
	require.False(t, b.ForceRemove(testInfo(9).Id))
}
