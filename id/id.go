// Package id implements the 256-bit overlay identifier and the XOR
// distance metric the routing table and task engine are built on.
package id

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/bits"

	"github.com/mr-tron/base58"
)

// Len is the length of an Id in bytes (256 bits).
const Len = 32

// Bits is the number of bits in an Id.
const Bits = Len * 8

// Id is a 256-bit overlay identifier, compared lexicographically as an
// unsigned big-endian integer. Distance between two Ids is bitwise XOR.
type Id [Len]byte

// Zero is the all-zero Id, used as the additive identity for distance
// comparisons and as a sentinel "no id" value.
var Zero Id

// Max is the all-ones Id, the farthest possible Id from Zero.
var Max = func() Id {
	var i Id
	for n := range i {
		i[n] = 0xff
	}
	return i
}()

// FromBytes copies b into an Id. It panics if len(b) != Len, mirroring
// the teacher's preference for explicit construction over silent
// truncation/padding.
func FromBytes(b []byte) Id {
	if len(b) != Len {
		panic(fmt.Sprintf("id: FromBytes: want %d bytes, got %d", Len, len(b)))
	}
	var i Id
	copy(i[:], b)
	return i
}

// FromPublicKey derives an Id from an Ed25519 public key: the Id is the
// key itself reinterpreted as 32 bytes (spec.md §3: "An Id is derived
// from an Ed25519 public key").
func FromPublicKey(pub ed25519.PublicKey) Id {
	if len(pub) != ed25519.PublicKeySize {
		panic("id: FromPublicKey: wrong key size")
	}
	return FromBytes(pub)
}

// FromHash derives a content-addressed Id for an immutable value:
// id = SHA256(data).
func FromHash(data []byte) Id {
	sum := sha256.Sum256(data)
	return Id(sum)
}

// FromSignedKey derives the Id of a mutable value: id = SHA256(publicKey
// || nonce).
func FromSignedKey(pub ed25519.PublicKey, nonce []byte) Id {
	h := sha256.New()
	h.Write(pub)
	h.Write(nonce)
	var i Id
	copy(i[:], h.Sum(nil))
	return i
}

// Bytes returns the raw 32 bytes of the Id.
func (i Id) Bytes() []byte {
	return i[:]
}

// String renders the Id as base58, matching the persisted dataDir/id
// file format from spec.md §6.
func (i Id) String() string {
	return base58.Encode(i[:])
}

// Hex renders the Id as lowercase hex, used in log fields where a
// fixed-width, grep-friendly form is preferable to base58.
func (i Id) Hex() string {
	return hex.EncodeToString(i[:])
}

// Parse decodes a base58-encoded Id, the inverse of String.
func Parse(s string) (Id, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return Zero, fmt.Errorf("id: parse %q: %w", s, err)
	}
	if len(b) != Len {
		return Zero, fmt.Errorf("id: parse %q: decoded length %d, want %d", s, len(b), Len)
	}
	return FromBytes(b), nil
}

// Compare returns -1, 0 or 1 comparing i and j as unsigned big-endian
// integers.
func (i Id) Compare(j Id) int {
	return bytes.Compare(i[:], j[:])
}

// Equal reports whether i and j are the same Id, in constant time since
// Ids sometimes double as authentication material (the public key).
func (i Id) Equal(j Id) bool {
	return subtle.ConstantTimeCompare(i[:], j[:]) == 1
}

// IsZero reports whether i is the all-zero Id.
func (i Id) IsZero() bool {
	return i.Equal(Zero)
}

// Distance returns the XOR distance between i and j, itself an Id since
// XOR distance lives in the same 256-bit space.
func Distance(i, j Id) Id {
	var d Id
	for n := range d {
		d[n] = i[n] ^ j[n]
	}
	return d
}

// Less reports whether distance(i, target) < distance(j, target),
// the ordering the routing table and task engine sort candidates by.
func Less(i, j, target Id) bool {
	di, dj := Distance(i, target), Distance(j, target)
	return di.Compare(dj) < 0
}

// CommonPrefixLen returns the number of leading bits shared between i
// and j (0..Bits). Two Ids in the same Prefix.isPrefixOf bucket share at
// least prefix.depth leading bits.
func CommonPrefixLen(i, j Id) int {
	for n := 0; n < Len; n++ {
		x := i[n] ^ j[n]
		if x != 0 {
			return n*8 + bits.LeadingZeros8(x)
		}
	}
	return Bits
}

// Bit returns the value (0 or 1) of the n-th most significant bit of i
// (n is 0-indexed from the most significant bit).
func (i Id) Bit(n int) int {
	if n < 0 || n >= Bits {
		panic("id: Bit: index out of range")
	}
	byteIdx := n / 8
	bitIdx := uint(7 - n%8)
	return int((i[byteIdx] >> bitIdx) & 1)
}

// WithBit returns a copy of i with the n-th most significant bit set to
// v (0 or 1).
func (i Id) WithBit(n, v int) Id {
	j := i
	byteIdx := n / 8
	bitIdx := uint(7 - n%8)
	if v == 0 {
		j[byteIdx] &^= 1 << bitIdx
	} else {
		j[byteIdx] |= 1 << bitIdx
	}
	return j
}
