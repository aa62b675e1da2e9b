package storage

import (
	"sync"
	"time"

	"github.com/bosonnetwork/godht/dhterr"
	"github.com/bosonnetwork/godht/id"
)

type peerKey struct {
	peerId id.Id
	nodeId id.Id
}

type valueRecord struct {
	value      Value
	persistent bool
}

type peerRecord struct {
	peer       PeerInfo
	persistent bool
}

// Memory is the default in-memory Storage, used whenever no
// storageURI/dataDir is configured.
type Memory struct {
	mu       sync.RWMutex
	values   map[id.Id]*valueRecord
	peers    map[peerKey]*peerRecord
	valueTTL time.Duration
	peerTTL  time.Duration
}

// NewMemory creates an empty in-memory Storage.
func NewMemory() *Memory {
	return &Memory{
		values:   make(map[id.Id]*valueRecord),
		peers:    make(map[peerKey]*peerRecord),
		valueTTL: DefaultValueTTL,
		peerTTL:  DefaultPeerTTL,
	}
}

// Initialize sets the TTLs Purge enforces.
func (m *Memory) Initialize(valueTTL, peerTTL time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.valueTTL = valueTTL
	m.peerTTL = peerTTL
	return nil
}

// PutValue implements Storage.PutValue.
func (m *Memory) PutValue(v *Value, persistent bool, expectedSeq *int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := v.Id()
	existing, ok := m.values[key]

	if expectedSeq != nil {
		if !ok {
			return dhterr.ErrValueNotExists
		}
		if existing.value.Sequence != *expectedSeq {
			return dhterr.ErrCASFail
		}
	} else if ok {
		if existing.value.IsMutable() != v.IsMutable() {
			return dhterr.ErrImmutableSubstitution
		}
		if v.IsMutable() && v.Sequence <= existing.value.Sequence {
			return dhterr.ErrSequenceNotMonotonic
		}
	}

	now := time.Now()
	rec := &valueRecord{value: *v, persistent: persistent}
	rec.value.StoredAt = now
	rec.value.Announced = now
	m.values[key] = rec
	return nil
}

// GetValue implements Storage.GetValue.
func (m *Memory) GetValue(key id.Id) (*Value, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.values[key]
	if !ok {
		return nil, false
	}
	v := rec.value
	return &v, true
}

// RemoveValue implements Storage.RemoveValue.
func (m *Memory) RemoveValue(key id.Id) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.values[key]; !ok {
		return false
	}
	delete(m.values, key)
	return true
}

// UpdateValueAnnouncedTime implements Storage.UpdateValueAnnouncedTime.
func (m *Memory) UpdateValueAnnouncedTime(key id.Id) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.values[key]; ok {
		rec.value.Announced = time.Now()
	}
}

// GetValues implements Storage.GetValues.
func (m *Memory) GetValues(persistent bool, olderThan time.Time) []*Value {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Value
	for _, rec := range m.values {
		if rec.persistent != persistent {
			continue
		}
		if rec.value.Announced.After(olderThan) {
			continue
		}
		v := rec.value
		out = append(out, &v)
	}
	return out
}

// PutPeer implements Storage.PutPeer.
func (m *Memory) PutPeer(p *PeerInfo, persistent bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	rec := &peerRecord{peer: *p, persistent: persistent}
	rec.peer.StoredAt = now
	rec.peer.Announced = now
	m.peers[peerKey{peerId: p.PeerId, nodeId: p.NodeId}] = rec
	return nil
}

// GetPeer implements Storage.GetPeer.
func (m *Memory) GetPeer(peerId, nodeId id.Id) (*PeerInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.peers[peerKey{peerId: peerId, nodeId: nodeId}]
	if !ok {
		return nil, false
	}
	p := rec.peer
	return &p, true
}

// GetPeers implements Storage.GetPeers.
func (m *Memory) GetPeers(peerId id.Id) []*PeerInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*PeerInfo
	for k, rec := range m.peers {
		if k.peerId.Equal(peerId) {
			p := rec.peer
			out = append(out, &p)
		}
	}
	return out
}

// RemovePeer implements Storage.RemovePeer.
func (m *Memory) RemovePeer(peerId, nodeId id.Id) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := peerKey{peerId: peerId, nodeId: nodeId}
	if _, ok := m.peers[key]; !ok {
		return false
	}
	delete(m.peers, key)
	return true
}

// UpdatePeerAnnouncedTime implements Storage.UpdatePeerAnnouncedTime.
func (m *Memory) UpdatePeerAnnouncedTime(peerId, nodeId id.Id) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.peers[peerKey{peerId: peerId, nodeId: nodeId}]; ok {
		rec.peer.Announced = time.Now()
	}
}

// GetPeerEntries implements Storage.GetPeerEntries.
func (m *Memory) GetPeerEntries(persistent bool, olderThan time.Time) []*PeerInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*PeerInfo
	for _, rec := range m.peers {
		if rec.persistent != persistent {
			continue
		}
		if rec.peer.Announced.After(olderThan) {
			continue
		}
		p := rec.peer
		out = append(out, &p)
	}
	return out
}

// Purge implements Storage.Purge.
func (m *Memory) Purge() (valuesRemoved, peersRemoved int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for k, rec := range m.values {
		if now.Sub(rec.value.StoredAt) > m.valueTTL {
			delete(m.values, k)
			valuesRemoved++
		}
	}
	for k, rec := range m.peers {
		if now.Sub(rec.peer.StoredAt) > m.peerTTL {
			delete(m.peers, k)
			peersRemoved++
		}
	}
	return valuesRemoved, peersRemoved
}

// Close implements Storage.Close; the in-memory store has no resources
// to release.
func (m *Memory) Close() error { return nil }
