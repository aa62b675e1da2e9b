package storage

import (
	"time"

	"github.com/bosonnetwork/godht/id"
)

// DefaultValueTTL and DefaultPeerTTL match spec.md's "2 hours by
// default" TTL for both values and service peers.
const (
	DefaultValueTTL = 2 * time.Hour
	DefaultPeerTTL  = 2 * time.Hour
)

// ReannounceInterval is how often the Node's re-announcement loop scans
// storage for persistent entries approaching expiry.
const ReannounceInterval = 5 * time.Minute

// Storage is the abstract contract consumed by the core: an in-memory
// store and a pebble-backed store both implement it, and the Node
// facade is built against the interface so the two are interchangeable
// based on whether storageURI/dataDir configuration was given.
type Storage interface {
	// Initialize sets the TTLs subsequent Purge calls enforce.
	Initialize(valueTTL, peerTTL time.Duration) error

	// PutValue stores v. If expectedSeq is non-nil, the call is a
	// compare-and-swap: it fails with ErrCASFail unless the stored
	// value's sequence number equals *expectedSeq, and with
	// ErrValueNotExists if there is no stored value at all. Otherwise a
	// mutable v must have a strictly greater sequence number than any
	// stored value under the same id (ErrSequenceNotMonotonic), and an
	// immutable/mutable substitution under the same id is always
	// rejected (ErrImmutableSubstitution).
	PutValue(v *Value, persistent bool, expectedSeq *int32) error
	GetValue(key id.Id) (*Value, bool)
	RemoveValue(key id.Id) bool
	UpdateValueAnnouncedTime(key id.Id)
	// GetValues returns persistent values (or non-persistent, per the
	// persistent flag) last announced before olderThan, for the
	// re-announcement loop.
	GetValues(persistent bool, olderThan time.Time) []*Value

	// PutPeer stores p, keyed by (PeerId, NodeId).
	PutPeer(p *PeerInfo, persistent bool) error
	GetPeer(peerId, nodeId id.Id) (*PeerInfo, bool)
	// GetPeers returns every announcement currently stored under
	// peerId, across all announcing NodeIds.
	GetPeers(peerId id.Id) []*PeerInfo
	RemovePeer(peerId, nodeId id.Id) bool
	UpdatePeerAnnouncedTime(peerId, nodeId id.Id)
	GetPeerEntries(persistent bool, olderThan time.Time) []*PeerInfo

	// Purge removes every value and peer entry past its TTL.
	Purge() (valuesRemoved, peersRemoved int)

	Close() error
}
