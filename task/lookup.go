// Package task implements the iterative lookup/announce task engine of
// spec.md §4.4: a candidate set bounded to α+K entries, queried α at a
// time, converging on the K nodes closest to a target id.
package task

import (
	"context"
	"sort"
	"time"

	"github.com/bosonnetwork/godht/id"
	"github.com/bosonnetwork/godht/kbucket"
	"github.com/bosonnetwork/godht/storage"
)

// Option selects how eagerly a lookup may terminate, spec.md §4.6's
// lookup-option merge policy.
type Option int

const (
	OptionLocal Option = iota
	OptionArbitrary
	OptionOptimistic
	OptionConservative
)

// candidateState is a closestSet entry's lifecycle stage.
type candidateState int

const (
	stateFresh candidateState = iota
	stateInFlight
	stateResponded
	stateFailed
)

type candidate struct {
	info  kbucket.NodeInfo
	state candidateState
	token uint32
}

// QueryResult is what a Querier reports back for one candidate query.
type QueryResult struct {
	Candidate kbucket.NodeInfo
	Responded bool
	Neighbors []kbucket.NodeInfo
	Token     uint32
	// Found is set when the candidate returned the sought item
	// directly (a value lookup's matching Value, a peer lookup's
	// matching PeerInfo set) rather than only closer neighbors.
	Found bool

	// foundValue and foundPeers carry a direct hit's payload; set via
	// WithValue/WithPeers by a find_value/find_peer Querier.
	foundValue *storage.Value
	foundPeers []*storage.PeerInfo
}

// Querier issues the method-specific RPC for one candidate. It must
// call onResult exactly once, from any goroutine.
type Querier interface {
	Query(ctx context.Context, target id.Id, candidate kbucket.NodeInfo, onResult func(QueryResult))
}

// Lookup runs the iterative algorithm spec.md §4.4 describes, generic
// over the method-specific Querier a derived task supplies.
type Lookup struct {
	Target  id.Id
	Option  Option
	Querier Querier
	// Deadline bounds the whole lookup's wall-clock time; zero means no
	// deadline beyond ctx's own cancellation.
	Deadline time.Duration
	// OnOutcome is called after every query result is folded into the
	// closest set; returning true stops the lookup immediately
	// (optimistic node lookup on first response, value lookup on an
	// immutable match).
	OnOutcome func(QueryResult) bool

	closest  []*candidate
	visited  map[id.Id]struct{}
	inFlight int
}

// Run is RunSeeded with no seeds: the closest set starts empty, so
// nothing is queried and the result is empty.
func (l *Lookup) Run(ctx context.Context) []kbucket.NodeInfo {
	return l.RunSeeded(ctx, nil)
}

// RunSeeded seeds the closest set from seeds and iterates until
// termination, returning the K closest responded candidates. Node
// lookups seed it from the routing table's closest entries.
func (l *Lookup) RunSeeded(ctx context.Context, seeds []kbucket.NodeInfo) []kbucket.NodeInfo {
	l.visited = make(map[id.Id]struct{})
	l.closest = nil
	for _, s := range seeds {
		l.closest = append(l.closest, &candidate{info: s, state: stateFresh})
	}

	if l.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.Deadline)
		defer cancel()
	}

	results := make(chan QueryResult, kbucket.Alpha*4)
	stopped := false
	for !stopped {
		l.dispatch(ctx, results)
		if l.terminated() {
			break
		}
		select {
		case out := <-results:
			l.inFlight--
			stopped = l.fold(out)
		case <-ctx.Done():
			stopped = true
		}
	}
	return l.respondedClosest()
}

func (l *Lookup) dispatch(ctx context.Context, results chan<- QueryResult) {
	for l.inFlight < kbucket.Alpha {
		next := l.nextFreshCloserThanKth()
		if next == nil {
			return
		}
		next.state = stateInFlight
		l.inFlight++
		l.visited[next.info.Id] = struct{}{}
		go l.Querier.Query(ctx, l.Target, next.info, func(res QueryResult) {
			select {
			case results <- res:
			case <-ctx.Done():
			}
		})
	}
}

// nextFreshCloserThanKth returns a fresh candidate closer to Target
// than the current K-th best responded candidate, or nil if none
// qualifies (the per-step eligibility test spec.md §4.4 step 1 names).
func (l *Lookup) nextFreshCloserThanKth() *candidate {
	kth, hasKth := l.kthResponded()
	var best *candidate
	for _, c := range l.closest {
		if c.state != stateFresh {
			continue
		}
		if hasKth && !id.Less(c.info.Id, kth, l.Target) {
			continue
		}
		if best == nil || id.Less(c.info.Id, best.info.Id, l.Target) {
			best = c
		}
	}
	return best
}

func (l *Lookup) kthResponded() (id.Id, bool) {
	var responded []*candidate
	for _, c := range l.closest {
		if c.state == stateResponded {
			responded = append(responded, c)
		}
	}
	if len(responded) < kbucket.K {
		return id.Zero, false
	}
	sort.Slice(responded, func(i, j int) bool {
		return id.Less(responded[i].info.Id, responded[j].info.Id, l.Target)
	})
	return responded[kbucket.K-1].info.Id, true
}

func (l *Lookup) fold(res QueryResult) (stop bool) {
	c := l.find(res.Candidate.Id)
	if c == nil {
		c = &candidate{info: res.Candidate}
		l.closest = append(l.closest, c)
	}
	if res.Responded {
		c.state = stateResponded
		c.token = res.Token
		for _, n := range res.Neighbors {
			if _, seen := l.visited[n.Id]; seen {
				continue
			}
			if l.find(n.Id) != nil {
				continue
			}
			l.closest = append(l.closest, &candidate{info: n, state: stateFresh})
		}
		l.prune()
	} else {
		c.state = stateFailed
	}

	if l.OnOutcome != nil && l.OnOutcome(res) {
		return true
	}
	return false
}

// prune bounds the closest set to α+K entries, dropping the farthest
// fresh/failed candidates first.
func (l *Lookup) prune() {
	limit := kbucket.Alpha + kbucket.K
	if len(l.closest) <= limit {
		return
	}
	sort.SliceStable(l.closest, func(i, j int) bool {
		a, b := l.closest[i], l.closest[j]
		if a.state == stateResponded && b.state != stateResponded {
			return true
		}
		if b.state == stateResponded && a.state != stateResponded {
			return false
		}
		return id.Less(a.info.Id, b.info.Id, l.Target)
	})
	l.closest = l.closest[:limit]
}

func (l *Lookup) find(i id.Id) *candidate {
	for _, c := range l.closest {
		if c.info.Id.Equal(i) {
			return c
		}
	}
	return nil
}

func (l *Lookup) terminated() bool {
	if l.inFlight > 0 {
		return false
	}
	return l.nextFreshCloserThanKth() == nil
}

func (l *Lookup) respondedClosest() []kbucket.NodeInfo {
	var responded []*candidate
	for _, c := range l.closest {
		if c.state == stateResponded {
			responded = append(responded, c)
		}
	}
	sort.Slice(responded, func(i, j int) bool {
		return id.Less(responded[i].info.Id, responded[j].info.Id, l.Target)
	})
	if len(responded) > kbucket.K {
		responded = responded[:kbucket.K]
	}
	out := make([]kbucket.NodeInfo, len(responded))
	for i, c := range responded {
		out[i] = c.info
	}
	return out
}

// Tokens returns the write tokens collected from responded candidates,
// keyed by id, for announce tasks to replay against store_value /
// announce_peer.
func (l *Lookup) Tokens() map[id.Id]uint32 {
	out := make(map[id.Id]uint32)
	for _, c := range l.closest {
		if c.state == stateResponded {
			out[c.info.Id] = c.token
		}
	}
	return out
}
