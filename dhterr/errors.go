// Package dhterr defines the overlay's error taxonomy: a small set of
// sentinel errors carrying the numeric wire codes the RPC protocol
// sends back in error responses, plus the API-level errors the Node
// facade returns for illegal calls. Errors are wrapped with
// github.com/cockroachdb/errors so stack traces survive across the
// reactor goroutine boundary and show up in logs without extra
// plumbing.
package dhterr

import (
	"github.com/cockroachdb/errors"
)

// Wire error codes, sent as the code of an error response's body
// (codec.WireError.Code). All codes lie in the 2xx range, numbered
// 201..211 in the order below.
const (
	CodeGeneric                  = 201
	CodeServer                   = 202
	CodeProtocol                 = 203
	CodeMethodUnknown            = 204
	CodeMessageTooBig            = 205
	CodeInvalidSignature         = 206
	CodeImmutableSubstitution    = 207
	CodeSequenceNotMonotonic     = 208
	CodeCASFail                  = 209
	CodeValueNotExists           = 210
	CodeNotValueOwner            = 211
)

// Error is a wire-level error carrying both a human-readable message
// and the numeric code sent to the remote peer.
type Error struct {
	code int
	msg  string
}

func (e *Error) Error() string { return e.msg }

// Code returns the numeric wire code for this error.
func (e *Error) Code() int { return e.code }

func newWireErr(code int, msg string) *Error {
	return &Error{code: code, msg: msg}
}

var (
	// ErrProtocol covers malformed or out-of-sequence messages: bad
	// codec envelope, unexpected message type, missing required field.
	ErrProtocol = newWireErr(CodeProtocol, "protocol error")

	// ErrServer is returned when the local node fails to service a
	// request for reasons unrelated to the request's validity, such as
	// a storage I/O failure.
	ErrServer = newWireErr(CodeServer, "server error")

	// ErrMethodUnknown is returned for a method name the reactor does
	// not implement.
	ErrMethodUnknown = newWireErr(CodeMethodUnknown, "method unknown")

	// ErrMessageTooBig is returned when an encoded message exceeds the
	// configured MTU guard.
	ErrMessageTooBig = newWireErr(CodeMessageTooBig, "message too big")

	// ErrInvalidSignature is returned when a signed value or peer
	// announcement fails Ed25519 verification.
	ErrInvalidSignature = newWireErr(CodeInvalidSignature, "invalid signature")

	// ErrImmutableSubstitution is returned when a storeValue call tries
	// to replace an existing immutable value with different content
	// under the same key.
	ErrImmutableSubstitution = newWireErr(CodeImmutableSubstitution, "immutable value cannot be replaced")

	// ErrSequenceNotMonotonic is returned when a mutable storeValue's
	// sequence number does not strictly exceed the stored value's.
	ErrSequenceNotMonotonic = newWireErr(CodeSequenceNotMonotonic, "sequence number is not monotonically increasing")

	// ErrCASFail is returned when a compare-and-swap storeValue's
	// expected-sequence precondition does not match the stored value.
	ErrCASFail = newWireErr(CodeCASFail, "compare-and-swap precondition failed")

	// ErrValueNotExists is returned when a CAS storeValue targets a key
	// with no existing value.
	ErrValueNotExists = newWireErr(CodeValueNotExists, "value does not exist")

	// ErrNotValueOwner is returned when a storeValue's public key does
	// not match the key the value is stored under.
	ErrNotValueOwner = newWireErr(CodeNotValueOwner, "requester does not own this value")
)

// API-level errors returned directly by Node methods, never serialized
// onto the wire.
var (
	// ErrIllegalState is returned when a Node method is called outside
	// the lifecycle state it requires, e.g. calling findNode before
	// Start or after Stop.
	ErrIllegalState = errors.New("illegal state for this operation")

	// ErrCrypto wraps failures from sign/verify/encrypt/decrypt that
	// are not specific to any one of the four operations.
	ErrCrypto = errors.New("cryptographic operation failed")
)

// WireCode extracts the numeric wire code from err, walking wrapped
// errors via errors.As. It returns CodeGeneric for any error that is
// not one of this package's wire errors (including the API-level
// ErrIllegalState and ErrCrypto), so callers never have to special
// case an unrecognized error when building an error response.
func WireCode(err error) int {
	var werr *Error
	if errors.As(err, &werr) {
		return werr.Code()
	}
	return CodeGeneric
}

// Wrap attaches msg as context to err while preserving err's wire code
// and stack trace.
func Wrap(err error, msg string) error {
	return errors.Wrap(err, msg)
}
