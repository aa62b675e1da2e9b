// Package storage implements the abstract storage contract spec.md §6
// defines for values and service peers: an in-memory default plus a
// github.com/cockroachdb/pebble-backed persistent implementation,
// sharing the same Value/PeerInfo types and TTL/sequence invariants.
package storage

import (
	"crypto/ed25519"
	"encoding/binary"
	"time"

	"github.com/bosonnetwork/godht/id"
)

// Value is a stored key-value record. An immutable value has no
// PublicKey and is addressed by the content hash of Data. A mutable
// value is signed and addressed by hash of (PublicKey, Nonce); it may
// additionally be encrypted to a Recipient, in which case Data holds
// the sealed box rather than plaintext.
type Value struct {
	PublicKey  ed25519.PublicKey // nil for an immutable value
	Nonce      [24]byte          // meaningful only when PublicKey is set
	Sequence   int32
	Data       []byte
	Signature  [64]byte
	Recipient  *id.Id // non-nil for a mutable+encrypted value
	StoredAt   time.Time
	Announced  time.Time
}

// IsMutable reports whether v carries a signing key.
func (v *Value) IsMutable() bool {
	return len(v.PublicKey) == ed25519.PublicKeySize
}

// IsEncrypted reports whether v's Data is sealed to a Recipient.
func (v *Value) IsEncrypted() bool {
	return v.Recipient != nil
}

// Id returns v's content-addressed or key-addressed identifier, per
// spec.md §3's identifier contract.
func (v *Value) Id() id.Id {
	if v.IsMutable() {
		return id.FromSignedKey(v.PublicKey, v.Nonce[:])
	}
	return id.FromHash(v.Data)
}

// signedPayload returns the bytes a mutable value's Signature covers:
// publicKey || nonce || seq (big-endian i32) || data.
func (v *Value) signedPayload() []byte {
	buf := make([]byte, 0, len(v.PublicKey)+len(v.Nonce)+4+len(v.Data))
	buf = append(buf, v.PublicKey...)
	buf = append(buf, v.Nonce[:]...)
	var seqBuf [4]byte
	binary.BigEndian.PutUint32(seqBuf[:], uint32(v.Sequence))
	buf = append(buf, seqBuf[:]...)
	buf = append(buf, v.Data...)
	return buf
}

// Sign computes and sets v.Signature using priv, which must correspond
// to v.PublicKey.
func (v *Value) Sign(priv ed25519.PrivateKey) {
	sig := ed25519.Sign(priv, v.signedPayload())
	copy(v.Signature[:], sig)
}

// IsValid reports whether v is internally consistent: an immutable
// value is always valid, a mutable value is valid only if its
// Signature verifies against its PublicKey.
func (v *Value) IsValid() bool {
	if !v.IsMutable() {
		return true
	}
	return ed25519.Verify(v.PublicKey, v.signedPayload(), v.Signature[:])
}

// PeerInfo is a service-peer announcement: an application-level
// endpoint advertised under the key of its owning peer, distinct from
// the routing table's NodeInfo/KBucketEntry.
type PeerInfo struct {
	// PeerId is both the announcement's storage key and the raw
	// Ed25519 public key of the service owner (ids are their public
	// key's bytes, per id.FromPublicKey).
	PeerId id.Id
	// NodeId is the overlay node hosting or relaying the service.
	NodeId id.Id
	// Origin is set when NodeId is relaying on behalf of another node
	// (a delegated announcement); nil for a direct announcement.
	Origin *id.Id
	Port   uint16
	// AlternativeURI optionally names a non-DHT endpoint for the
	// service (e.g. a websocket URL), empty if the DHT node address is
	// sufficient.
	AlternativeURI string
	Signature      [64]byte
	StoredAt       time.Time
	Announced      time.Time
}

// signedPayload returns the bytes a PeerInfo's Signature covers:
// peerId || nodeId || origin? || port || alternativeURI?.
func (p *PeerInfo) signedPayload() []byte {
	buf := make([]byte, 0, 64+len(p.AlternativeURI)+4)
	buf = append(buf, p.PeerId.Bytes()...)
	buf = append(buf, p.NodeId.Bytes()...)
	if p.Origin != nil {
		buf = append(buf, p.Origin.Bytes()...)
	}
	var portBuf [2]byte
	binary.BigEndian.PutUint16(portBuf[:], p.Port)
	buf = append(buf, portBuf[:]...)
	buf = append(buf, []byte(p.AlternativeURI)...)
	return buf
}

// Sign computes and sets p.Signature using peerPriv, the private key of
// the service owner (must correspond to p.PeerId).
func (p *PeerInfo) Sign(peerPriv ed25519.PrivateKey) {
	sig := ed25519.Sign(peerPriv, p.signedPayload())
	copy(p.Signature[:], sig)
}

// IsValid reports whether p's Signature verifies against PeerId
// reinterpreted as an Ed25519 public key.
func (p *PeerInfo) IsValid() bool {
	return ed25519.Verify(ed25519.PublicKey(p.PeerId.Bytes()), p.signedPayload(), p.Signature[:])
}

// Fingerprint disambiguates multiple peer announcements sharing the
// same PeerId (e.g. the same service owner reachable through several
// nodes), hashing every field but the signature and timestamps.
func (p *PeerInfo) Fingerprint() id.Id {
	buf := p.signedPayload()
	return id.FromHash(buf)
}
