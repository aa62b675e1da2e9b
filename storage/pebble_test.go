package storage

import (
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bosonnetwork/godht/dhterr"
	"github.com/bosonnetwork/godht/id"
)

func openTestPebble(t *testing.T) *Pebble {
	t.Helper()
	dir := t.TempDir()
	p, err := OpenPebble(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestPebblePutGetImmutableValue(t *testing.T) {
	p := openTestPebble(t)
	v := &Value{Data: []byte("hello")}
	require.NoError(t, p.PutValue(v, false, nil))

	got, ok := p.GetValue(v.Id())
	require.True(t, ok)
	require.Equal(t, v.Data, got.Data)
}

func TestPebbleMutableSequenceMonotonic(t *testing.T) {
	p := openTestPebble(t)
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	v0 := &Value{PublicKey: pub, Sequence: 0, Data: []byte("v0")}
	v0.Sign(priv)
	require.NoError(t, p.PutValue(v0, false, nil))

	stale := &Value{PublicKey: pub, Sequence: 0, Data: []byte("stale")}
	stale.Sign(priv)
	err = p.PutValue(stale, false, nil)
	require.ErrorIs(t, err, dhterr.ErrSequenceNotMonotonic)

	v1 := &Value{PublicKey: pub, Sequence: 1, Data: []byte("v1")}
	v1.Sign(priv)
	require.NoError(t, p.PutValue(v1, false, nil))
}

func TestPebbleCASSemantics(t *testing.T) {
	p := openTestPebble(t)
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	v0 := &Value{PublicKey: pub, Sequence: 0, Data: []byte("v0")}
	v0.Sign(priv)

	expected := int32(0)
	err = p.PutValue(v0, false, &expected)
	require.ErrorIs(t, err, dhterr.ErrValueNotExists)

	require.NoError(t, p.PutValue(v0, false, nil))

	v1 := &Value{PublicKey: pub, Sequence: 1, Data: []byte("v1")}
	v1.Sign(priv)
	wrong := int32(9)
	err = p.PutValue(v1, false, &wrong)
	require.ErrorIs(t, err, dhterr.ErrCASFail)

	correct := int32(0)
	require.NoError(t, p.PutValue(v1, false, &correct))
}

func TestPebbleRemoveValue(t *testing.T) {
	p := openTestPebble(t)
	v := &Value{Data: []byte("hello")}
	require.NoError(t, p.PutValue(v, false, nil))
	require.True(t, p.RemoveValue(v.Id()))
	require.False(t, p.RemoveValue(v.Id()))
}

func TestPebblePurgeRemovesExpired(t *testing.T) {
	p := openTestPebble(t)
	require.NoError(t, p.Initialize(time.Millisecond, time.Millisecond))
	v := &Value{Data: []byte("hello")}
	require.NoError(t, p.PutValue(v, false, nil))

	time.Sleep(5 * time.Millisecond)
	removed, _ := p.Purge()
	require.Equal(t, 1, removed)
	_, ok := p.GetValue(v.Id())
	require.False(t, ok)
}

func TestPebblePeerStorageRoundTrip(t *testing.T) {
	p := openTestPebble(t)
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	nodeId := id.FromHash([]byte("node-a"))
	peer := &PeerInfo{PeerId: id.FromPublicKey(pub), NodeId: nodeId, Port: 4222}
	peer.Sign(priv)
	require.NoError(t, p.PutPeer(peer, true))

	got, ok := p.GetPeer(peer.PeerId, nodeId)
	require.True(t, ok)
	require.Equal(t, peer.Port, got.Port)

	peers := p.GetPeers(peer.PeerId)
	require.Len(t, peers, 1)

	require.True(t, p.RemovePeer(peer.PeerId, nodeId))
	require.Empty(t, p.GetPeers(peer.PeerId))
}

func TestPebbleGetPeersDoesNotLeakOtherPeerIds(t *testing.T) {
	p := openTestPebble(t)
	pubA, privA, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	pubB, privB, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	nodeId := id.FromHash([]byte("node-a"))
	a := &PeerInfo{PeerId: id.FromPublicKey(pubA), NodeId: nodeId}
	a.Sign(privA)
	b := &PeerInfo{PeerId: id.FromPublicKey(pubB), NodeId: nodeId}
	b.Sign(privB)
	require.NoError(t, p.PutPeer(a, true))
	require.NoError(t, p.PutPeer(b, true))

	require.Len(t, p.GetPeers(a.PeerId), 1)
	require.Len(t, p.GetPeers(b.PeerId), 1)
}
