package node

import (
	"net"
	"time"

	"github.com/bosonnetwork/godht/codec"
	"github.com/bosonnetwork/godht/dhterr"
	"github.com/bosonnetwork/godht/id"
	"github.com/bosonnetwork/godht/kbucket"
	"github.com/bosonnetwork/godht/routingtable"
	"github.com/bosonnetwork/godht/rpc"
	"github.com/bosonnetwork/godht/storage"
	"github.com/bosonnetwork/godht/token"
)

// handler answers inbound requests on one address family's reactor. It
// implements rpc.Handler and is the only place that touches its
// routing table, storage, and token manager from the request side
// (sendCall's completion callbacks touch them from the response side,
// both funneled through the same reactor goroutine).
type handler struct {
	self    id.Id
	routing *routingtable.RoutingTable
	storage storage.Storage
	tokens  *token.Manager
	server  *rpc.Server
	other   *routingtable.RoutingTable // the sibling family's table, for findNode's {v4,v6} answer
}

func (h *handler) HandleRequest(remote id.Id, addr *net.UDPAddr, msg *codec.Message) {
	h.learn(remote, addr)

	switch msg.Method {
	case codec.MethodPing:
		h.handlePing(addr, msg)
	case codec.MethodFindNode:
		h.handleFindNode(remote, addr, msg)
	case codec.MethodFindValue:
		h.handleFindValue(remote, addr, msg)
	case codec.MethodStoreValue:
		h.handleStoreValue(remote, addr, msg)
	case codec.MethodFindPeer:
		h.handleFindPeer(addr, msg)
	case codec.MethodAnnouncePeer:
		h.handleAnnouncePeer(remote, addr, msg)
	default:
		_ = h.server.ReplyError(addr, msg.TxId, codec.WireError{Code: dhterr.CodeMethodUnknown, Reason: "method unknown"})
	}
}

func (h *handler) learn(remote id.Id, addr *net.UDPAddr) {
	info := kbucket.NodeInfo{Id: remote, IP: addr.IP, Port: uint16(addr.Port)}
	h.routing.Put(kbucket.NewKBucketEntry(info, time.Now()))
}

func (h *handler) handlePing(addr *net.UDPAddr, msg *codec.Message) {
	_ = h.server.Reply(addr, msg.Method, msg.TxId, pingBody{})
}

func (h *handler) handleFindNode(remote id.Id, addr *net.UDPAddr, msg *codec.Message) {
	var body findNodeBody
	if err := codec.DecodeBody(msg.Body, &body); err != nil {
		h.replyProtocolError(addr, msg.TxId)
		return
	}
	result := findNodeResult{
		Nodes4: toCompactNodes(h.routing.GetClosest(body.Target, kbucket.K)),
		Token:  h.tokens.Generate(remote, addr.IP, uint16(addr.Port), body.Target),
	}
	if h.other != nil {
		result.Nodes6 = toCompactNodes(h.other.GetClosest(body.Target, kbucket.K))
	}
	_ = h.server.Reply(addr, msg.Method, msg.TxId, result)
}

func (h *handler) handleFindValue(remote id.Id, addr *net.UDPAddr, msg *codec.Message) {
	var body findValueBody
	if err := codec.DecodeBody(msg.Body, &body); err != nil {
		h.replyProtocolError(addr, msg.TxId)
		return
	}
	result := findValueResult{
		Token: h.tokens.Generate(remote, addr.IP, uint16(addr.Port), body.Target),
	}
	if v, ok := h.storage.GetValue(body.Target); ok {
		if body.ExpectedSeq == nil || v.Sequence != *body.ExpectedSeq {
			wv := toWireValue(v)
			result.Value = &wv
		}
	} else {
		result.Nodes4 = toCompactNodes(h.routing.GetClosest(body.Target, kbucket.K))
		if h.other != nil {
			result.Nodes6 = toCompactNodes(h.other.GetClosest(body.Target, kbucket.K))
		}
	}
	_ = h.server.Reply(addr, msg.Method, msg.TxId, result)
}

func (h *handler) handleStoreValue(remote id.Id, addr *net.UDPAddr, msg *codec.Message) {
	var body storeValueBody
	if err := codec.DecodeBody(msg.Body, &body); err != nil {
		h.replyProtocolError(addr, msg.TxId)
		return
	}
	v := fromWireValue(body.Value)
	if !h.tokens.Verify(remote, addr.IP, uint16(addr.Port), v.Id(), body.Token) {
		h.replyProtocolError(addr, msg.TxId)
		return
	}
	if !v.IsValid() {
		_ = h.server.ReplyError(addr, msg.TxId, codec.WireError{Code: dhterr.CodeInvalidSignature, Reason: "invalid signature"})
		return
	}
	if err := h.storage.PutValue(v, body.Persistent, body.ExpectedSeq); err != nil {
		_ = h.server.ReplyError(addr, msg.TxId, codec.WireError{Code: dhterr.WireCode(err), Reason: err.Error()})
		return
	}
	_ = h.server.Reply(addr, msg.Method, msg.TxId, storeValueResult{})
}

func (h *handler) handleFindPeer(addr *net.UDPAddr, msg *codec.Message) {
	var body findPeerBody
	if err := codec.DecodeBody(msg.Body, &body); err != nil {
		h.replyProtocolError(addr, msg.TxId)
		return
	}
	result := findPeerResult{}
	if peers := h.storage.GetPeers(body.Target); len(peers) > 0 {
		for _, p := range peers {
			result.Peers = append(result.Peers, toWirePeer(p))
		}
	} else {
		result.Nodes4 = toCompactNodes(h.routing.GetClosest(body.Target, kbucket.K))
		if h.other != nil {
			result.Nodes6 = toCompactNodes(h.other.GetClosest(body.Target, kbucket.K))
		}
	}
	_ = h.server.Reply(addr, msg.Method, msg.TxId, result)
}

func (h *handler) handleAnnouncePeer(remote id.Id, addr *net.UDPAddr, msg *codec.Message) {
	var body announcePeerBody
	if err := codec.DecodeBody(msg.Body, &body); err != nil {
		h.replyProtocolError(addr, msg.TxId)
		return
	}
	p := fromWirePeer(body.Peer)
	if !h.tokens.Verify(remote, addr.IP, uint16(addr.Port), p.PeerId, body.Token) {
		h.replyProtocolError(addr, msg.TxId)
		return
	}
	if !p.IsValid() {
		_ = h.server.ReplyError(addr, msg.TxId, codec.WireError{Code: dhterr.CodeInvalidSignature, Reason: "invalid signature"})
		return
	}
	if err := h.storage.PutPeer(p, body.Persistent); err != nil {
		_ = h.server.ReplyError(addr, msg.TxId, codec.WireError{Code: dhterr.WireCode(err), Reason: err.Error()})
		return
	}
	_ = h.server.Reply(addr, msg.Method, msg.TxId, announcePeerResult{})
}

func (h *handler) replyProtocolError(addr *net.UDPAddr, txid uint32) {
	_ = h.server.ReplyError(addr, txid, codec.WireError{Code: dhterr.CodeProtocol, Reason: "protocol error"})
}
