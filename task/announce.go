package task

import (
	"context"
	"sync"

	"github.com/bosonnetwork/godht/id"
	"github.com/bosonnetwork/godht/kbucket"
)

// Announcer sends the write RPC (store_value / announce_peer) that
// follows a node lookup, carrying the write token that node handed
// back in its find_node response.
type Announcer interface {
	Announce(ctx context.Context, target kbucket.NodeInfo, token uint32, onResult func(AnnounceResult))
}

// AnnounceResult is one target's outcome. Err is set for a remote
// rejection (cas_fail, sequence_not_monotonic) or a transport failure;
// per spec.md §4.4 a rejection from one target does not fail the
// announce as a whole.
type AnnounceResult struct {
	Target kbucket.NodeInfo
	Err    error
}

// RunAnnounce runs a conservative node lookup to find and collect
// write tokens from the K nodes closest to target, then fans the
// Announcer's write RPC out to all of them concurrently, returning
// every target's individual outcome.
func RunAnnounce(ctx context.Context, target id.Id, seeds []kbucket.NodeInfo, querier Querier, announcer Announcer) []AnnounceResult {
	lookup := NewNodeLookup(target, OptionConservative, querier)
	closest := lookup.RunSeeded(ctx, seeds)
	tokens := lookup.Tokens()

	results := make([]AnnounceResult, len(closest))
	var wg sync.WaitGroup
	for i, n := range closest {
		i, n := i, n
		wg.Add(1)
		go func() {
			defer wg.Done()
			done := make(chan AnnounceResult, 1)
			announcer.Announce(ctx, n, tokens[n.Id], func(res AnnounceResult) {
				res.Target = n
				done <- res
			})
			select {
			case res := <-done:
				results[i] = res
			case <-ctx.Done():
				results[i] = AnnounceResult{Target: n, Err: ctx.Err()}
			}
		}()
	}
	wg.Wait()
	return results
}
