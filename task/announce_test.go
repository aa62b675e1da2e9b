package task

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bosonnetwork/godht/id"
	"github.com/bosonnetwork/godht/kbucket"
)

type recordingAnnouncer struct {
	mu      sync.Mutex
	tokens  map[id.Id]uint32
	rejects map[id.Id]error
}

func (a *recordingAnnouncer) Announce(ctx context.Context, target kbucket.NodeInfo, token uint32, onResult func(AnnounceResult)) {
	a.mu.Lock()
	a.tokens[target.Id] = token
	err := a.rejects[target.Id]
	a.mu.Unlock()
	onResult(AnnounceResult{Err: err})
}

func TestRunAnnounceCarriesLookupTokens(t *testing.T) {
	net := newFakeNetwork()
	target := id.FromHash([]byte("target"))
	a, b := node("a"), node("b")
	net.addNode(a, b)
	net.addNode(b)

	announcer := &recordingAnnouncer{tokens: make(map[id.Id]uint32), rejects: make(map[id.Id]error)}
	results := RunAnnounce(context.Background(), target, []kbucket.NodeInfo{a}, net, announcer)

	require.NotEmpty(t, results)
	for id := range announcer.tokens {
		require.Equal(t, uint32(1), announcer.tokens[id])
	}
}

func TestRunAnnounceRecordsPerTargetRejectionWithoutFailingOthers(t *testing.T) {
	net := newFakeNetwork()
	target := id.FromHash([]byte("target"))
	a, b := node("a"), node("b")
	net.addNode(a, b)
	net.addNode(b)

	announcer := &recordingAnnouncer{
		tokens:  make(map[id.Id]uint32),
		rejects: map[id.Id]error{a.Id: errors.New("cas_fail")},
	}
	results := RunAnnounce(context.Background(), target, []kbucket.NodeInfo{a}, net, announcer)

	var sawReject, sawOk bool
	for _, r := range results {
		if r.Target.Id.Equal(a.Id) {
			require.Error(t, r.Err)
			sawReject = true
		}
		if r.Target.Id.Equal(b.Id) {
			require.NoError(t, r.Err)
			sawOk = true
		}
	}
	require.True(t, sawReject)
	require.True(t, sawOk)
}
