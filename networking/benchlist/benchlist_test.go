package benchlist

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNotBannedBelowThreshold(t *testing.T) {
	b := New(Config{Window: time.Minute, Threshold: 3, BanDuration: time.Minute})
	addr := netip.MustParseAddr("203.0.113.5")

	b.RegisterIncident(addr)
	b.RegisterIncident(addr)
	require.False(t, b.IsBanned(addr))
}

func TestBannedAtThreshold(t *testing.T) {
	b := New(Config{Window: time.Minute, Threshold: 3, BanDuration: time.Minute})
	addr := netip.MustParseAddr("203.0.113.5")

	b.RegisterIncident(addr)
	b.RegisterIncident(addr)
	b.RegisterIncident(addr)
	require.True(t, b.IsBanned(addr))
}

func TestBanExpires(t *testing.T) {
	b := New(Config{Window: time.Minute, Threshold: 1, BanDuration: time.Millisecond})
	addr := netip.MustParseAddr("203.0.113.5")

	b.RegisterIncident(addr)
	require.True(t, b.IsBanned(addr))

	time.Sleep(5 * time.Millisecond)
	require.False(t, b.IsBanned(addr))
}

func TestIncidentsOutsideWindowDoNotCount(t *testing.T) {
	b := New(Config{Window: time.Millisecond, Threshold: 2, BanDuration: time.Minute})
	addr := netip.MustParseAddr("203.0.113.5")

	b.RegisterIncident(addr)
	time.Sleep(5 * time.Millisecond)
	b.RegisterIncident(addr)
	require.False(t, b.IsBanned(addr))
}

func TestDifferentAddrsTrackedIndependently(t *testing.T) {
	b := New(Config{Window: time.Minute, Threshold: 1, BanDuration: time.Minute})
	a := netip.MustParseAddr("203.0.113.5")
	other := netip.MustParseAddr("203.0.113.6")

	b.RegisterIncident(a)
	require.True(t, b.IsBanned(a))
	require.False(t, b.IsBanned(other))
}
