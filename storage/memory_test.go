package storage

import (
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bosonnetwork/godht/dhterr"
	"github.com/bosonnetwork/godht/id"
)

func TestMemoryPutGetImmutableValue(t *testing.T) {
	m := NewMemory()
	v := &Value{Data: []byte("hello")}
	require.NoError(t, m.PutValue(v, false, nil))

	got, ok := m.GetValue(v.Id())
	require.True(t, ok)
	require.Equal(t, v.Data, got.Data)
}

func TestMemoryImmutableSubstitutionRejected(t *testing.T) {
	m := NewMemory()
	v := &Value{Data: []byte("hello")}
	require.NoError(t, m.PutValue(v, false, nil))

	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	mutable := &Value{PublicKey: pub, Sequence: 0, Data: []byte("hello")}
	mutable.Sign(priv)
	// Force a colliding id to exercise the substitution check directly.
	collisionId := v.Id()

	m.mu.Lock()
	m.values[collisionId] = &valueRecord{value: *mutable}
	m.mu.Unlock()

	err = m.PutValue(v, false, nil)
	require.ErrorIs(t, err, dhterr.ErrImmutableSubstitution)
}

func TestMemoryMutableSequenceMonotonic(t *testing.T) {
	m := NewMemory()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	v0 := &Value{PublicKey: pub, Sequence: 0, Data: []byte("v0")}
	v0.Sign(priv)
	require.NoError(t, m.PutValue(v0, false, nil))

	v1 := &Value{PublicKey: pub, Sequence: 1, Data: []byte("v1")}
	v1.Sign(priv)
	require.NoError(t, m.PutValue(v1, false, nil))

	stale := &Value{PublicKey: pub, Sequence: 0, Data: []byte("stale")}
	stale.Sign(priv)
	err = m.PutValue(stale, false, nil)
	require.ErrorIs(t, err, dhterr.ErrSequenceNotMonotonic)

	got, ok := m.GetValue(v1.Id())
	require.True(t, ok)
	require.Equal(t, []byte("v1"), got.Data)
}

func TestMemoryCASSemantics(t *testing.T) {
	m := NewMemory()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	v0 := &Value{PublicKey: pub, Sequence: 0, Data: []byte("v0")}
	v0.Sign(priv)

	expected := int32(0)
	err = m.PutValue(v0, false, &expected)
	require.ErrorIs(t, err, dhterr.ErrValueNotExists)

	require.NoError(t, m.PutValue(v0, false, nil))

	v1 := &Value{PublicKey: pub, Sequence: 1, Data: []byte("v1")}
	v1.Sign(priv)
	wrongExpected := int32(5)
	err = m.PutValue(v1, false, &wrongExpected)
	require.ErrorIs(t, err, dhterr.ErrCASFail)

	correctExpected := int32(0)
	require.NoError(t, m.PutValue(v1, false, &correctExpected))
}

func TestMemoryRemoveValue(t *testing.T) {
	m := NewMemory()
	v := &Value{Data: []byte("hello")}
	require.NoError(t, m.PutValue(v, false, nil))
	require.True(t, m.RemoveValue(v.Id()))
	require.False(t, m.RemoveValue(v.Id()))
	_, ok := m.GetValue(v.Id())
	require.False(t, ok)
}

func TestMemoryPurgeRemovesExpired(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Initialize(time.Millisecond, time.Millisecond))
	v := &Value{Data: []byte("hello")}
	require.NoError(t, m.PutValue(v, false, nil))

	time.Sleep(5 * time.Millisecond)
	removed, _ := m.Purge()
	require.Equal(t, 1, removed)
	_, ok := m.GetValue(v.Id())
	require.False(t, ok)
}

func TestMemoryPeerStorageRoundTrip(t *testing.T) {
	m := NewMemory()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	nodeId := id.FromHash([]byte("node-a"))
	p := &PeerInfo{PeerId: id.FromPublicKey(pub), NodeId: nodeId, Port: 4222}
	p.Sign(priv)
	require.NoError(t, m.PutPeer(p, true))

	got, ok := m.GetPeer(p.PeerId, nodeId)
	require.True(t, ok)
	require.Equal(t, p.Port, got.Port)

	peers := m.GetPeers(p.PeerId)
	require.Len(t, peers, 1)

	require.True(t, m.RemovePeer(p.PeerId, nodeId))
	require.Empty(t, m.GetPeers(p.PeerId))
}

func TestMemoryGetValuesFiltersByPersistentAndAge(t *testing.T) {
	m := NewMemory()
	v1 := &Value{Data: []byte("persistent")}
	require.NoError(t, m.PutValue(v1, true, nil))
	v2 := &Value{Data: []byte("transient")}
	require.NoError(t, m.PutValue(v2, false, nil))

	future := time.Now().Add(time.Hour)
	persisted := m.GetValues(true, future)
	require.Len(t, persisted, 1)
	require.Equal(t, v1.Data, persisted[0].Data)

	past := time.Now().Add(-time.Hour)
	require.Empty(t, m.GetValues(true, past), "values announced after the cutoff are excluded")
}
