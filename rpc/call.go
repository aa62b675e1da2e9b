package rpc

import (
	"net"
	"time"

	"github.com/bosonnetwork/godht/codec"
	"github.com/bosonnetwork/godht/id"
)

// Call is one outstanding request awaiting a response, carrying the
// listener set spec.md §4.3 requires sendCall install: {sent,
// responded, stalled, timed-out, error}.
type Call struct {
	TxId       uint32
	Method     codec.Method
	Remote     id.Id
	RemoteAddr *net.UDPAddr
	SentAt     time.Time

	// OnSent fires once the datagram has actually left the socket
	// (after any throttle delay).
	OnSent func()
	// OnResponse fires with the decoded response message; an error reply
	// goes to OnError instead.
	OnResponse func(*codec.Message)
	// OnStalled fires once the call has been outstanding for half its
	// adaptive deadline with no response, before OnTimeout's final
	// verdict; a task can use it to start a parallel candidate early.
	OnStalled func()
	// OnTimeout fires if no response arrives before the adaptive
	// deadline.
	OnTimeout func()
	// OnError fires on a local send failure or a decoded wire error.
	OnError func(error)
}
