package rpc

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"net"
	"net/netip"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/bosonnetwork/godht/codec"
	"github.com/bosonnetwork/godht/dhterr"
	"github.com/bosonnetwork/godht/id"
	"github.com/bosonnetwork/godht/log"
	"github.com/bosonnetwork/godht/metrics"
	"github.com/bosonnetwork/godht/networking/benchlist"
	"github.com/bosonnetwork/godht/networking/timeout"
	"github.com/bosonnetwork/godht/routingtable"
)

// ProtocolVersion is the wire version field every Message carries.
var ProtocolVersion = codec.Version{Name: "godht", Number: 1}

// Handler processes inbound requests on the reactor goroutine; it
// must not block, and may call back into Server (Reply, ReplyError)
// synchronously.
type Handler interface {
	HandleRequest(remote id.Id, addr *net.UDPAddr, msg *codec.Message)
}

// Server is the single-threaded cooperative reactor spec.md §4.3
// describes: one UDP socket per address family, with routing-table
// feedback, adaptive timeouts, per-remote throttling and suspicious-
// node banning all touched only from the reactor goroutine.
type Server struct {
	conn    net.PacketConn
	localId id.Id
	routing *routingtable.RoutingTable
	handler Handler

	codec    *codec.Codec
	timeouts *timeout.Manager
	throttle *Throttle
	bench    benchlist.Benchlist
	metrics  *metrics.Metrics
	log      log.Logger

	cmds    chan func()
	closing chan struct{}
	wg      sync.WaitGroup

	txSeq uint32
	calls map[uint32]*Call
}

// ServerOption customizes a Server at construction time, beyond its
// spec.md §4.3 defaults.
type ServerOption func(*Server)

// WithoutThrottle disables per-remote-ip inbound/outbound rate
// limiting, for deployments that opt out of spam throttling.
func WithoutThrottle() ServerOption {
	return func(s *Server) { s.throttle = NewUnthrottled() }
}

// WithoutBenchlist disables suspicious-node banning, for deployments
// that opt out of that detector.
func WithoutBenchlist() ServerOption {
	return func(s *Server) { s.bench = benchlist.Noop() }
}

// NewServer wires a reactor around conn. handler may be nil until the
// Node facade is ready to accept inbound requests (useful for tests
// exercising sendCall/onMessage in isolation).
func NewServer(conn net.PacketConn, localId id.Id, rt *routingtable.RoutingTable, handler Handler, m *metrics.Metrics, logger log.Logger, opts ...ServerOption) *Server {
	var seed [4]byte
	_, _ = rand.Read(seed[:])
	s := &Server{
		conn:     conn,
		localId:  localId,
		routing:  rt,
		handler:  handler,
		codec:    codec.New(),
		timeouts: timeout.NewManager(),
		throttle: NewThrottle(DefaultThrottleRate, DefaultThrottleBurst),
		bench:    benchlist.New(benchlist.DefaultConfig()),
		metrics:  m,
		log:      logger,
		cmds:     make(chan func(), 256),
		closing:  make(chan struct{}),
		txSeq:    binary.BigEndian.Uint32(seed[:]),
		calls:    make(map[uint32]*Call),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the read loop and the reactor loop.
func (s *Server) Start() {
	s.wg.Add(2)
	go s.readLoop()
	go s.reactorLoop()
}

// Stop closes the socket and waits for both loops to exit.
func (s *Server) Stop() {
	close(s.closing)
	_ = s.conn.Close()
	s.wg.Wait()
}

func (s *Server) reactorLoop() {
	defer s.wg.Done()
	for {
		select {
		case cmd := <-s.cmds:
			cmd()
		case <-s.closing:
			return
		}
	}
}

func (s *Server) readLoop() {
	defer s.wg.Done()
	buf := make([]byte, codec.DefaultMTU)
	for {
		n, addr, err := s.conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-s.closing:
				return
			default:
				continue
			}
		}
		udpAddr, ok := addr.(*net.UDPAddr)
		if !ok {
			continue
		}
		data := append([]byte(nil), buf[:n]...)
		s.enqueue(func() { s.onDatagram(data, udpAddr) })
	}
}

func (s *Server) enqueue(f func()) {
	select {
	case s.cmds <- f:
	case <-s.closing:
	}
}

func remoteAddrPort(addr *net.UDPAddr) netip.Addr {
	if ip4 := addr.IP.To4(); ip4 != nil {
		a, _ := netip.AddrFromSlice(ip4)
		return a
	}
	a, _ := netip.AddrFromSlice(addr.IP.To16())
	return a
}

// onDatagram decodes and dispatches one inbound datagram; it runs only
// on the reactor goroutine.
func (s *Server) onDatagram(data []byte, addr *net.UDPAddr) {
	remoteIP := remoteAddrPort(addr)
	if s.bench.IsBanned(remoteIP) {
		return
	}
	if !s.throttle.AllowInbound(remoteIP) {
		if s.metrics != nil {
			s.metrics.Throttled.Inc()
		}
		return
	}

	msg, err := s.codec.Decode(data)
	if err != nil {
		s.log.Debug("rpc: malformed datagram", zap.Stringer("remote", addr), zap.Error(err))
		s.bench.RegisterIncident(remoteIP)
		return
	}
	if s.metrics != nil {
		s.metrics.RPCReceived.Inc()
	}

	switch msg.Type {
	case codec.TypeResponse, codec.TypeError:
		s.completeCall(msg, addr, remoteIP)
	case codec.TypeRequest:
		if s.handler != nil {
			s.handler.HandleRequest(msg.Sender, addr, msg)
		}
	}
}

func (s *Server) completeCall(msg *codec.Message, addr *net.UDPAddr, remoteIP netip.Addr) {
	call, ok := s.calls[msg.TxId]
	if !ok {
		return
	}
	if !call.Remote.IsZero() && !call.Remote.Equal(msg.Sender) {
		s.bench.RegisterIncident(remoteIP)
		return
	}
	if call.RemoteAddr.String() != addr.String() {
		return
	}

	delete(s.calls, msg.TxId)
	rtt := time.Since(call.SentAt)
	s.timeouts.RegisterResponse(msg.TxId, rtt)
	s.routing.OnResponse(msg.Sender, time.Now(), rtt)
	if s.metrics != nil {
		s.metrics.RPCLatency.Observe(rtt.Seconds())
		if s.metrics.RPCLatencyAvg != nil {
			s.metrics.RPCLatencyAvg.Observe(rtt.Seconds())
		}
	}

	if msg.Type == codec.TypeError {
		var wireErr codec.WireError
		_ = codec.DecodeBody(msg.Body, &wireErr)
		if s.metrics != nil {
			s.metrics.RPCErrors.WithLabelValues(strconv.Itoa(wireErr.Code)).Inc()
		}
		if call.OnError != nil {
			call.OnError(dhterr.Wrap(errors.Newf("rpc: remote error: %s", wireErr.Reason), "rpc call"))
		}
		return
	}
	if call.OnResponse != nil {
		call.OnResponse(msg)
	}
}

// SendCall assigns call a transaction id, encodes and sends method/body
// to addr, and registers the adaptive timeout. Listener callbacks run
// on the reactor goroutine.
func (s *Server) SendCall(ctx context.Context, addr *net.UDPAddr, method codec.Method, body interface{}, want4, want6 bool, call *Call) error {
	encodedBody, err := codec.EncodeBody(body)
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	s.enqueue(func() {
		txid := atomic.AddUint32(&s.txSeq, 1)
		msg := &codec.Message{
			Type:    codec.TypeRequest,
			Method:  method,
			TxId:    txid,
			Sender:  s.localId,
			Version: ProtocolVersion,
			Want4:   want4,
			Want6:   want6,
			Body:    encodedBody,
		}
		buf, encErr := s.codec.Encode(msg)
		if encErr != nil {
			done <- encErr
			return
		}

		call.TxId = txid
		call.Method = method
		call.RemoteAddr = addr
		call.SentAt = time.Now()
		s.calls[txid] = call

		s.routing.OnSend(call.Remote, call.SentAt)
		s.timeouts.RegisterRequest(call.Remote, txid, func() {
			s.enqueue(func() { s.onTimeout(txid, call) })
		})
		if call.OnStalled != nil {
			time.AfterFunc(s.timeouts.Estimate(call.Remote)/2, func() {
				s.enqueue(func() {
					if s.calls[txid] == call {
						call.OnStalled()
					}
				})
			})
		}

		delay := s.throttle.OutboundDelay(remoteAddrPort(addr))
		send := func() { s.write(buf, addr, call) }
		if delay > 0 {
			time.AfterFunc(delay, send)
		} else {
			send()
		}
		done <- nil
	})

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) write(buf []byte, addr *net.UDPAddr, call *Call) {
	if _, err := s.conn.WriteTo(buf, addr); err != nil {
		if call.OnError != nil {
			call.OnError(err)
		}
		return
	}
	if s.metrics != nil {
		s.metrics.RPCSent.Inc()
	}
	if call.OnSent != nil {
		call.OnSent()
	}
}

func (s *Server) onTimeout(txid uint32, call *Call) {
	if _, ok := s.calls[txid]; !ok {
		return
	}
	delete(s.calls, txid)
	s.routing.OnTimeout(call.Remote)
	if s.metrics != nil {
		s.metrics.RPCTimeouts.Inc()
	}
	if call.OnTimeout != nil {
		call.OnTimeout()
	}
}

// Cancel abandons an outstanding call, used when its owning task is
// cancelled; no listener fires.
func (s *Server) Cancel(txid uint32) {
	s.enqueue(func() {
		if _, ok := s.calls[txid]; ok {
			delete(s.calls, txid)
			s.timeouts.Cancel(txid)
		}
	})
}

// Reply encodes and sends a response message for an inbound request,
// called from within Handler.HandleRequest on the reactor goroutine.
func (s *Server) Reply(addr *net.UDPAddr, method codec.Method, txid uint32, body interface{}) error {
	encodedBody, err := codec.EncodeBody(body)
	if err != nil {
		return err
	}
	msg := &codec.Message{
		Type:    codec.TypeResponse,
		Method:  method,
		TxId:    txid,
		Sender:  s.localId,
		Version: ProtocolVersion,
		Body:    encodedBody,
	}
	buf, err := s.codec.Encode(msg)
	if err != nil {
		return err
	}
	_, err = s.conn.WriteTo(buf, addr)
	if err == nil && s.metrics != nil {
		s.metrics.RPCSent.Inc()
	}
	return err
}

// ReplyError encodes and sends an error response for an inbound
// request.
func (s *Server) ReplyError(addr *net.UDPAddr, txid uint32, wireErr codec.WireError) error {
	body, err := codec.EncodeBody(wireErr)
	if err != nil {
		return err
	}
	msg := &codec.Message{
		Type:    codec.TypeError,
		TxId:    txid,
		Sender:  s.localId,
		Version: ProtocolVersion,
		Body:    body,
	}
	buf, err := s.codec.Encode(msg)
	if err != nil {
		return err
	}
	_, err = s.conn.WriteTo(buf, addr)
	return err
}

// CheckReachability pings up to n entries chosen by the routing table's
// PingCandidates: live entries that need a ping, then replacement-cache
// entries. Replies and timeouts feed back through the routing table's
// OnResponse/OnTimeout, which update live entries only; a cached entry
// that answers is not promoted by it.
func (s *Server) CheckReachability(n int) {
	now := time.Now()
	for _, entry := range s.routing.PingCandidates(now, n) {
		entry := entry
		call := &Call{Remote: entry.Id}
		_ = s.SendCall(context.Background(), entry.Addr(), codec.MethodPing, struct{}{}, false, false, call)
	}
}

// LocalAddr returns the socket's bound address.
func (s *Server) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}
