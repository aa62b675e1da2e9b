package timeout

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bosonnetwork/godht/id"
)

func TestEstimateDefaultsToMinTimeout(t *testing.T) {
	m := NewManager()
	require.Equal(t, MinTimeout, m.Estimate(id.FromHash([]byte("a"))))
}

func TestRegisterResponseUpdatesEstimate(t *testing.T) {
	m := NewManager()
	remote := id.FromHash([]byte("a"))

	m.RegisterRequest(remote, 1, func() {})
	require.True(t, m.RegisterResponse(1, 50*time.Millisecond))

	// First sample becomes the average outright.
	require.Equal(t, MinTimeout, m.Estimate(remote), "50ms*2 is still below the floor")
}

func TestRegisterResponseClampsToMaxTimeout(t *testing.T) {
	m := NewManager()
	remote := id.FromHash([]byte("a"))

	m.RegisterRequest(remote, 1, func() {})
	m.RegisterResponse(1, 20*time.Second)

	require.Equal(t, MaxTimeout, m.Estimate(remote))
}

func TestRegisterResponseOnUnknownTxidReturnsFalse(t *testing.T) {
	m := NewManager()
	require.False(t, m.RegisterResponse(999, time.Second))
}

func TestTimeoutFiresOnMissingResponse(t *testing.T) {
	m := NewManager()
	remote := id.FromHash([]byte("a"))

	fired := make(chan struct{}, 1)
	m.RegisterRequest(remote, 1, func() { fired <- struct{}{} })
	// Seed a tiny RTT average via a completed call, then issue a fresh
	// request; its deadline is clamped up to MinTimeout.
	m.RegisterResponse(1, time.Millisecond)

	m.RegisterRequest(remote, 2, func() { fired <- struct{}{} })

	select {
	case <-fired:
	case <-time.After(MinTimeout + 500*time.Millisecond):
		t.Fatal("timeout callback did not fire")
	}
	require.Equal(t, 0, m.Pending())
}

func TestCancelPreventsTimeout(t *testing.T) {
	m := NewManager()
	remote := id.FromHash([]byte("a"))

	fired := false
	m.RegisterRequest(remote, 1, func() { fired = true })
	m.Cancel(1)

	time.Sleep(MinTimeout / 4)
	require.False(t, fired)
	require.Equal(t, 0, m.Pending())
}
