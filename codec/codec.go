// Package codec implements the CBOR wire format spec.md §4.1 and §6
// define for every datagram exchanged between nodes: a single CBOR map
// keyed by a type tag (`q`/`r`/`e`), carrying the common envelope
// fields plus a method-specific body. Encoding is canonical so the
// codec is bijective - re-encoding a decoded message yields the same
// bytes, which both deterministic tests and value-signature
// verification depend on.
package codec

import (
	"net"

	"github.com/cockroachdb/errors"
	"github.com/fxamacker/cbor/v2"

	"github.com/bosonnetwork/godht/dhterr"
	"github.com/bosonnetwork/godht/id"
)

// DefaultMTU bounds the size of any single datagram this codec will
// produce or accept; a message beyond it fails with message_too_big
// (dhterr.ErrMessageTooBig) before decoding proceeds.
const DefaultMTU = 1400

// Type is the message's type tag, carried as the top-level CBOR map
// key distinguishing a request/response/error envelope.
type Type string

const (
	TypeRequest  Type = "q"
	TypeResponse Type = "r"
	TypeError    Type = "e"
)

// Method names the RPC being invoked, echoed unchanged in the
// response.
type Method string

const (
	MethodPing         Method = "ping"
	MethodFindNode     Method = "find_node"
	MethodFindValue    Method = "find_value"
	MethodStoreValue   Method = "store_value"
	MethodFindPeer     Method = "find_peer"
	MethodAnnouncePeer Method = "announce_peer"
)

// Version is the "short-name" + number pair spec.md §4.1 calls the
// wire version field, naming the implementation and its protocol
// revision.
type Version struct {
	Name   string `cbor:"n"`
	Number uint32 `cbor:"v"`
}

// NodeAddr is the compact wire form of a routable endpoint: raw IP
// bytes (4 or 16) plus port.
type NodeAddr struct {
	IP   []byte `cbor:"i"`
	Port uint16 `cbor:"p"`
}

func NewNodeAddr(addr *net.UDPAddr) NodeAddr {
	ip := addr.IP.To4()
	if ip == nil {
		ip = addr.IP.To16()
	}
	return NodeAddr{IP: append([]byte(nil), ip...), Port: uint16(addr.Port)}
}

func (a NodeAddr) UDPAddr() *net.UDPAddr {
	return &net.UDPAddr{IP: append(net.IP(nil), a.IP...), Port: int(a.Port)}
}

// CompactNode is the wire form of a routing-table hint: an id paired
// with its address, returned in nodes4/nodes6 lists.
type CompactNode struct {
	Id   id.Id    `cbor:"i"`
	Addr NodeAddr `cbor:"a"`
}

// Message is the decoded form of a single datagram: the common
// envelope plus a method-specific Body left as raw CBOR so dispatch
// can select the concrete body type by Method before decoding it.
type Message struct {
	Type    Type            `cbor:"t"`
	Method  Method          `cbor:"m,omitempty"`
	TxId    uint32          `cbor:"x"`
	Sender  id.Id           `cbor:"i"`
	Version Version         `cbor:"v"`
	Want4   bool            `cbor:"w4,omitempty"`
	Want6   bool            `cbor:"w6,omitempty"`
	Body    cbor.RawMessage `cbor:"b,omitempty"`
}

// WireError is the body of an error-typed message.
type WireError struct {
	Code   int    `cbor:"c"`
	Reason string `cbor:"r"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(errors.Wrap(err, "codec: build canonical encode mode"))
	}
	decMode, err = cbor.DecOptions{
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		panic(errors.Wrap(err, "codec: build strict decode mode"))
	}
}

// Codec encodes and decodes Messages under a fixed MTU, guarding
// against oversize allocation before any CBOR parsing happens.
type Codec struct {
	MTU int
}

// New returns a Codec enforcing DefaultMTU.
func New() *Codec {
	return &Codec{MTU: DefaultMTU}
}

// Encode canonically serializes msg. The result is always re-decodable
// to a byte-identical re-encoding (the codec's bijectivity property).
func (c *Codec) Encode(msg *Message) ([]byte, error) {
	buf, err := encMode.Marshal(msg)
	if err != nil {
		return nil, errors.Wrap(err, "codec: encode message")
	}
	if len(buf) > c.mtu() {
		return nil, dhterr.ErrMessageTooBig
	}
	return buf, nil
}

// Decode parses buf into a Message, rejecting unknown fields (strict
// mode) and anything over the configured MTU before it is touched.
func (c *Codec) Decode(buf []byte) (*Message, error) {
	if len(buf) > c.mtu() {
		return nil, dhterr.ErrMessageTooBig
	}
	var msg Message
	if err := decMode.Unmarshal(buf, &msg); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "codec: decode message"), dhterr.ErrProtocol)
	}
	return &msg, nil
}

// EncodeBody canonically serializes a method-specific body for
// embedding in Message.Body.
func EncodeBody(v interface{}) (cbor.RawMessage, error) {
	buf, err := encMode.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "codec: encode body")
	}
	return cbor.RawMessage(buf), nil
}

// DecodeBody parses a Message.Body into v, rejecting unknown fields.
func DecodeBody(body cbor.RawMessage, v interface{}) error {
	if err := decMode.Unmarshal(body, v); err != nil {
		return errors.Mark(errors.Wrap(err, "codec: decode body"), dhterr.ErrProtocol)
	}
	return nil
}

func (c *Codec) mtu() int {
	if c.MTU <= 0 {
		return DefaultMTU
	}
	return c.MTU
}
