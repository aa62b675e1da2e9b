// Package identity implements the overlay's node identity: an Ed25519
// keypair used both as the node's 256-bit id (via id.FromPublicKey) and
// as the signer/encryptor behind the sign, verify, encrypt, and decrypt
// facade operations. Encryption is not done with the Ed25519 key
// directly; it is converted to its Curve25519 counterpart and used to
// build an anonymous sealed box compatible with libsodium's
// crypto_box_seal, so a sender who only knows the recipient's public
// signing key can still address an encrypted value to them.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha512"

	"filippo.io/edwards25519"
	"github.com/cockroachdb/errors"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/nacl/box"

	"github.com/bosonnetwork/godht/dhterr"
	"github.com/bosonnetwork/godht/id"
)

// sealNonceSize is the blake2b digest size used to derive the box
// nonce from the two Curve25519 public keys in play, matching
// libsodium's crypto_box_seal construction.
const sealNonceSize = 24

// Identity is a node's Ed25519 keypair, doubling as its signer and
// (via Curve25519 conversion) its sealed-box encryption key.
type Identity struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// Generate creates a fresh random Identity.
func Generate() (*Identity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "generate ed25519 key")
	}
	return &Identity{priv: priv, pub: pub}, nil
}

// FromPrivateKey wraps an existing 64-byte Ed25519 private key, as read
// back from a persisted dataDir/key file.
func FromPrivateKey(priv ed25519.PrivateKey) (*Identity, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, errors.Newf("identity: bad private key length %d", len(priv))
	}
	pub := make(ed25519.PublicKey, ed25519.PublicKeySize)
	copy(pub, priv[32:])
	return &Identity{priv: priv, pub: pub}, nil
}

// Id returns the node id derived from this identity's public key.
func (i *Identity) Id() id.Id {
	return id.FromPublicKey(i.pub)
}

// PublicKey returns the raw Ed25519 public key.
func (i *Identity) PublicKey() ed25519.PublicKey {
	return i.pub
}

// PrivateKey returns the raw Ed25519 private key, for persistence to
// dataDir/key.
func (i *Identity) PrivateKey() ed25519.PrivateKey {
	return i.priv
}

// Sign returns the Ed25519 signature of data.
func (i *Identity) Sign(data []byte) []byte {
	return ed25519.Sign(i.priv, data)
}

// Verify reports whether sig is a valid Ed25519 signature of data under
// pub. It never returns an error: a malformed signature is simply
// invalid, matching the boolean signature the Node facade exposes.
func Verify(pub ed25519.PublicKey, data, sig []byte) bool {
	return ed25519.Verify(pub, data, sig)
}

// Encrypt seals plaintext so that only the holder of recipient's
// private key can open it, using an anonymous sealed box: an ephemeral
// Curve25519 keypair is generated per call, the shared nonce is
// blake2b(ephemeralPub || recipientCurvePub), and the result is
// ephemeralPub || box(plaintext). The sender's own identity is not
// authenticated; nothing in the ciphertext proves who sent it, which is
// the point of an anonymous seal over a full box.
func Encrypt(recipient ed25519.PublicKey, plaintext []byte) ([]byte, error) {
	recipientCurve, err := PublicKeyToCurve25519(recipient)
	if err != nil {
		return nil, dhterr.Wrap(err, "convert recipient key")
	}

	ephPub, ephPriv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "generate ephemeral key")
	}

	nonce, err := sealNonce(ephPub[:], recipientCurve[:])
	if err != nil {
		return nil, err
	}

	var recipientArr [32]byte
	copy(recipientArr[:], recipientCurve[:])

	sealed := box.Seal(nil, plaintext, &nonce, &recipientArr, ephPriv)
	out := make([]byte, 0, 32+len(sealed))
	out = append(out, ephPub[:]...)
	out = append(out, sealed...)
	return out, nil
}

// Decrypt opens a sealed box addressed to this identity.
func (i *Identity) Decrypt(sealed []byte) ([]byte, error) {
	if len(sealed) < 32+box.Overhead {
		return nil, dhterr.ErrProtocol
	}
	var ephPub [32]byte
	copy(ephPub[:], sealed[:32])
	ciphertext := sealed[32:]

	recipientCurve, recipientCurvePriv, err := i.curveKeyPair()
	if err != nil {
		return nil, dhterr.Wrap(err, "convert own key")
	}

	nonce, err := sealNonce(ephPub[:], recipientCurve[:])
	if err != nil {
		return nil, err
	}

	plaintext, ok := box.Open(nil, ciphertext, &nonce, &ephPub, recipientCurvePriv)
	if !ok {
		return nil, errors.Mark(errors.New("identity: sealed box authentication failed"), dhterr.ErrCrypto)
	}
	return plaintext, nil
}

func sealNonce(ephPub, recipientPub []byte) ([24]byte, error) {
	var nonce [24]byte
	h, err := blake2b.New(sealNonceSize, nil)
	if err != nil {
		return nonce, errors.Wrap(err, "blake2b init")
	}
	if _, err := h.Write(ephPub); err != nil {
		return nonce, err
	}
	if _, err := h.Write(recipientPub); err != nil {
		return nonce, err
	}
	copy(nonce[:], h.Sum(nil))
	return nonce, nil
}

// curveKeyPair converts this identity's Ed25519 keypair into its
// Curve25519 counterpart, for use as the recipient side of a sealed
// box.
func (i *Identity) curveKeyPair() (pub [32]byte, priv *[32]byte, err error) {
	p, err := PublicKeyToCurve25519(i.pub)
	if err != nil {
		return pub, nil, err
	}
	pub = p

	sk, err := PrivateKeyToCurve25519(i.priv)
	if err != nil {
		return pub, nil, err
	}
	return pub, sk, nil
}

// PublicKeyToCurve25519 converts an Ed25519 public key to its
// birationally-equivalent Curve25519 (Montgomery form) public key,
// decompressing the Edwards point and reading off its u-coordinate.
func PublicKeyToCurve25519(pub ed25519.PublicKey) ([32]byte, error) {
	var out [32]byte
	if len(pub) != ed25519.PublicKeySize {
		return out, errors.Newf("identity: bad public key length %d", len(pub))
	}
	p, err := new(edwards25519.Point).SetBytes(pub)
	if err != nil {
		return out, errors.Wrap(err, "decompress ed25519 point")
	}
	copy(out[:], p.BytesMontgomery())
	return out, nil
}

// PrivateKeyToCurve25519 converts an Ed25519 private key to its
// Curve25519 scalar by hashing the 32-byte seed with SHA-512 and
// clamping the low half, per RFC 8032 section 5.1.5.
func PrivateKeyToCurve25519(priv ed25519.PrivateKey) (*[32]byte, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, errors.Newf("identity: bad private key length %d", len(priv))
	}
	h := sha512.Sum512(priv.Seed())
	h[0] &= 248
	h[31] &= 127
	h[31] |= 64

	var out [32]byte
	copy(out[:], h[:32])
	return &out, nil
}
