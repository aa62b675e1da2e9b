package task

import (
	"context"

	"github.com/bosonnetwork/godht/id"
	"github.com/bosonnetwork/godht/kbucket"
	"github.com/bosonnetwork/godht/storage"
)

// NewNodeLookup builds the `find_node` lookup of spec.md §4.4:
// optimistic early-terminates on the first response, conservative runs
// to full termination.
func NewNodeLookup(target id.Id, option Option, querier Querier) *Lookup {
	l := &Lookup{Target: target, Option: option, Querier: querier}
	if option == OptionOptimistic {
		l.OnOutcome = func(res QueryResult) bool { return res.Responded }
	}
	return l
}

// ValueLookupResult is a value lookup's terminal state: the best
// candidate value seen (immutable match, or highest-sequence valid
// mutable match) plus the closest nodes for announce/republish.
type ValueLookupResult struct {
	Value   *storage.Value
	Closest []kbucket.NodeInfo
}

// NewValueLookup builds the `find_value` lookup of spec.md §4.4: an
// immutable match terminates immediately, a mutable match keeps the
// lookup running to seek a higher-sequenced copy, tracking the best
// (highest seq, valid signature) value seen so far.
func NewValueLookup(target id.Id, option Option, querier Querier) (*Lookup, *ValueLookupResult) {
	result := &ValueLookupResult{}
	l := &Lookup{Target: target, Option: option, Querier: querier}
	l.OnOutcome = func(res QueryResult) bool {
		v, ok := res.Value()
		if !ok {
			return false
		}
		if !v.IsValid() {
			return false
		}
		if result.Value == nil || BetterValue(v, result.Value) {
			result.Value = v
		}
		return !v.IsMutable()
	}
	return l, result
}

// BetterValue reports whether candidate should replace current as the
// best value seen for a target: an immutable candidate always wins, a
// mutable candidate wins on higher sequence. Shared by the find_value
// lookup's own best-so-far tracking and by the Node facade's merge of
// two families' find_value results.
func BetterValue(candidate, current *storage.Value) bool {
	if !candidate.IsMutable() {
		return true
	}
	return candidate.Sequence > current.Sequence
}

// Value extracts a candidate value from a QueryResult's Neighbors-free
// payload, stashed by the Querier via QueryResult.Found/Value carried
// out-of-band; value lookup Queriers set this through
// WithValue before delivering the result.
func (r QueryResult) Value() (*storage.Value, bool) {
	if r.foundValue == nil {
		return nil, false
	}
	return r.foundValue, true
}

// WithValue attaches a found value to a QueryResult, for a
// find_value Querier to report a direct hit.
func (r QueryResult) WithValue(v *storage.Value) QueryResult {
	r.Found = true
	r.foundValue = v
	return r
}

// PeerLookupResult aggregates PeerInfo announcements seen during a
// `find_peer` lookup, deduplicated by Fingerprint.
type PeerLookupResult struct {
	Expected int
	Peers    []*storage.PeerInfo
	seen     map[id.Id]struct{}
}

// NewPeerLookup builds the `find_peer` lookup of spec.md §4.4,
// terminating once `expected` distinct announcements are gathered or
// the lookup otherwise terminates.
func NewPeerLookup(target id.Id, expected int, option Option, querier Querier) (*Lookup, *PeerLookupResult) {
	result := &PeerLookupResult{Expected: expected, seen: make(map[id.Id]struct{})}
	l := &Lookup{Target: target, Option: option, Querier: querier}
	l.OnOutcome = func(res QueryResult) bool {
		for _, p := range res.foundPeers {
			fp := p.Fingerprint()
			if _, dup := result.seen[fp]; dup {
				continue
			}
			result.seen[fp] = struct{}{}
			result.Peers = append(result.Peers, p)
		}
		return expected > 0 && len(result.Peers) >= expected
	}
	return l, result
}

// WithPeers attaches a candidate's PeerInfo set to a QueryResult, for
// a find_peer Querier to report.
func (r QueryResult) WithPeers(peers []*storage.PeerInfo) QueryResult {
	r.Found = len(peers) > 0
	r.foundPeers = peers
	return r
}

// PingRefresh calls ping once per entry, one at a time, waiting for each
// result before the next and stopping early if ctx is done; it has no
// closest-set convergence logic, so it bypasses Lookup entirely.
func PingRefresh(ctx context.Context, entries []*kbucket.KBucketEntry, ping func(context.Context, kbucket.NodeInfo, func(QueryResult))) {
	for _, e := range entries {
		e := e
		done := make(chan struct{})
		ping(ctx, e.NodeInfo, func(QueryResult) { close(done) })
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
	}
}
