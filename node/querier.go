package node

import (
	"context"
	"time"

	"github.com/bosonnetwork/godht/codec"
	"github.com/bosonnetwork/godht/id"
	"github.com/bosonnetwork/godht/kbucket"
	"github.com/bosonnetwork/godht/rpc"
	"github.com/bosonnetwork/godht/storage"
	"github.com/bosonnetwork/godht/task"
)

// queryTimeout bounds how long a candidate query waits for SendCall to
// hand its request to the reactor; once sent, the call ends on its
// response or its adaptive timeout. task.Lookup.Deadline, when set,
// bounds a lookup as a whole.
const queryTimeout = 10 * time.Second

func sendQuery(ctx context.Context, server *rpc.Server, candidate kbucket.NodeInfo, method codec.Method, body interface{}, decode func(*codec.Message) task.QueryResult, onResult func(task.QueryResult)) {
	call := &rpc.Call{Remote: candidate.Id}
	call.OnResponse = func(msg *codec.Message) {
		res := decode(msg)
		res.Candidate = candidate
		onResult(res)
	}
	call.OnTimeout = func() {
		onResult(task.QueryResult{Candidate: candidate, Responded: false})
	}
	call.OnError = func(error) {
		onResult(task.QueryResult{Candidate: candidate, Responded: false})
	}
	sendCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	if err := server.SendCall(sendCtx, candidate.Addr(), method, body, true, true, call); err != nil {
		onResult(task.QueryResult{Candidate: candidate, Responded: false})
	}
}

// nodeQuerier issues find_node over one family's rpc.Server, for
// task.NewNodeLookup.
type nodeQuerier struct {
	server *rpc.Server
}

func (q *nodeQuerier) Query(ctx context.Context, target id.Id, candidate kbucket.NodeInfo, onResult func(task.QueryResult)) {
	sendQuery(ctx, q.server, candidate, codec.MethodFindNode, findNodeBody{Target: target}, func(msg *codec.Message) task.QueryResult {
		var result findNodeResult
		if err := codec.DecodeBody(msg.Body, &result); err != nil {
			return task.QueryResult{Responded: false}
		}
		neighbors := fromCompactNodes(result.Nodes4)
		neighbors = append(neighbors, fromCompactNodes(result.Nodes6)...)
		return task.QueryResult{Responded: true, Neighbors: neighbors, Token: result.Token}
	}, onResult)
}

// valueQuerier issues find_value, for task.NewValueLookup.
type valueQuerier struct {
	server *rpc.Server
}

func (q *valueQuerier) Query(ctx context.Context, target id.Id, candidate kbucket.NodeInfo, onResult func(task.QueryResult)) {
	sendQuery(ctx, q.server, candidate, codec.MethodFindValue, findValueBody{Target: target}, func(msg *codec.Message) task.QueryResult {
		var result findValueResult
		if err := codec.DecodeBody(msg.Body, &result); err != nil {
			return task.QueryResult{Responded: false}
		}
		res := task.QueryResult{
			Responded: true,
			Neighbors: append(fromCompactNodes(result.Nodes4), fromCompactNodes(result.Nodes6)...),
			Token:     result.Token,
		}
		if result.Value != nil {
			res = res.WithValue(fromWireValue(*result.Value))
		}
		return res
	}, onResult)
}

// peerQuerier issues find_peer, for task.NewPeerLookup.
type peerQuerier struct {
	server   *rpc.Server
	expected int
}

func (q *peerQuerier) Query(ctx context.Context, target id.Id, candidate kbucket.NodeInfo, onResult func(task.QueryResult)) {
	sendQuery(ctx, q.server, candidate, codec.MethodFindPeer, findPeerBody{Target: target, Expected: q.expected}, func(msg *codec.Message) task.QueryResult {
		var result findPeerResult
		if err := codec.DecodeBody(msg.Body, &result); err != nil {
			return task.QueryResult{Responded: false}
		}
		res := task.QueryResult{
			Responded: true,
			Neighbors: append(fromCompactNodes(result.Nodes4), fromCompactNodes(result.Nodes6)...),
			Token:     result.Token,
		}
		if len(result.Peers) > 0 {
			peers := make([]*storage.PeerInfo, len(result.Peers))
			for i, p := range result.Peers {
				peers[i] = fromWirePeer(p)
			}
			res = res.WithPeers(peers)
		}
		return res
	}, onResult)
}

// valueAnnouncer sends store_value carrying a node lookup's collected
// write token, for task.RunAnnounce.
type valueAnnouncer struct {
	server     *rpc.Server
	value      *storage.Value
	persistent bool
}

func (a *valueAnnouncer) Announce(ctx context.Context, target kbucket.NodeInfo, tokenValue uint32, onResult func(task.AnnounceResult)) {
	body := storeValueBody{Value: toWireValue(a.value), Persistent: a.persistent, Token: tokenValue}
	call := &rpc.Call{Remote: target.Id}
	call.OnResponse = func(msg *codec.Message) { onResult(task.AnnounceResult{}) }
	call.OnTimeout = func() { onResult(task.AnnounceResult{Err: context.DeadlineExceeded}) }
	call.OnError = func(err error) { onResult(task.AnnounceResult{Err: err}) }
	sendCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	if err := a.server.SendCall(sendCtx, target.Addr(), codec.MethodStoreValue, body, false, false, call); err != nil {
		onResult(task.AnnounceResult{Err: err})
	}
}

// peerAnnouncer sends announce_peer carrying a node lookup's collected
// write token, for task.RunAnnounce.
type peerAnnouncer struct {
	server     *rpc.Server
	peer       *storage.PeerInfo
	persistent bool
}

func (a *peerAnnouncer) Announce(ctx context.Context, target kbucket.NodeInfo, tokenValue uint32, onResult func(task.AnnounceResult)) {
	body := announcePeerBody{Peer: toWirePeer(a.peer), Persistent: a.persistent, Token: tokenValue}
	call := &rpc.Call{Remote: target.Id}
	call.OnResponse = func(msg *codec.Message) { onResult(task.AnnounceResult{}) }
	call.OnTimeout = func() { onResult(task.AnnounceResult{Err: context.DeadlineExceeded}) }
	call.OnError = func(err error) { onResult(task.AnnounceResult{Err: err}) }
	sendCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	if err := a.server.SendCall(sendCtx, target.Addr(), codec.MethodAnnouncePeer, body, false, false, call); err != nil {
		onResult(task.AnnounceResult{Err: err})
	}
}
