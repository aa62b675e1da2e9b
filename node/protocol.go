package node

import (
	"crypto/ed25519"

	"github.com/bosonnetwork/godht/codec"
	"github.com/bosonnetwork/godht/id"
)

// Per-method request/response bodies, CBOR-encoded into
// codec.Message.Body. Field tags stay one or two letters, matching the
// envelope's own convention, to keep datagrams near the MTU guard.

type pingBody struct{}

type findNodeBody struct {
	Target id.Id `cbor:"t"`
}

type findNodeResult struct {
	Nodes4 []codec.CompactNode `cbor:"n4,omitempty"`
	Nodes6 []codec.CompactNode `cbor:"n6,omitempty"`
	Token  uint32              `cbor:"tok"`
}

type findValueBody struct {
	Target      id.Id  `cbor:"t"`
	ExpectedSeq *int32 `cbor:"s,omitempty"`
}

type wireValue struct {
	PublicKey ed25519.PublicKey `cbor:"k,omitempty"`
	Nonce     [24]byte          `cbor:"n,omitempty"`
	Sequence  int32             `cbor:"s,omitempty"`
	Data      []byte            `cbor:"d"`
	Signature [64]byte          `cbor:"g,omitempty"`
	Recipient *id.Id            `cbor:"r,omitempty"`
}

type findValueResult struct {
	Value  *wireValue          `cbor:"v,omitempty"`
	Nodes4 []codec.CompactNode `cbor:"n4,omitempty"`
	Nodes6 []codec.CompactNode `cbor:"n6,omitempty"`
	Token  uint32              `cbor:"tok"`
}

type storeValueBody struct {
	Value       wireValue `cbor:"v"`
	Persistent  bool      `cbor:"p,omitempty"`
	Token       uint32    `cbor:"tok"`
	ExpectedSeq *int32    `cbor:"s,omitempty"`
}

type storeValueResult struct{}

type findPeerBody struct {
	Target   id.Id `cbor:"t"`
	Expected int   `cbor:"e,omitempty"`
}

type wirePeerInfo struct {
	PeerId         id.Id    `cbor:"p"`
	NodeId         id.Id    `cbor:"n"`
	Origin         *id.Id   `cbor:"o,omitempty"`
	Port           uint16   `cbor:"port"`
	AlternativeURI string   `cbor:"u,omitempty"`
	Signature      [64]byte `cbor:"g"`
}

type findPeerResult struct {
	Peers  []wirePeerInfo      `cbor:"p,omitempty"`
	Nodes4 []codec.CompactNode `cbor:"n4,omitempty"`
	Nodes6 []codec.CompactNode `cbor:"n6,omitempty"`
	Token  uint32              `cbor:"tok"`
}

type announcePeerBody struct {
	Peer       wirePeerInfo `cbor:"p"`
	Persistent bool         `cbor:"per,omitempty"`
	Token      uint32       `cbor:"tok"`
}

type announcePeerResult struct{}
