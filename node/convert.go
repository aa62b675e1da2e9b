package node

import (
	"github.com/bosonnetwork/godht/codec"
	"github.com/bosonnetwork/godht/kbucket"
	"github.com/bosonnetwork/godht/storage"
)

func toWireValue(v *storage.Value) wireValue {
	return wireValue{
		PublicKey: v.PublicKey,
		Nonce:     v.Nonce,
		Sequence:  v.Sequence,
		Data:      v.Data,
		Signature: v.Signature,
		Recipient: v.Recipient,
	}
}

func fromWireValue(w wireValue) *storage.Value {
	return &storage.Value{
		PublicKey: w.PublicKey,
		Nonce:     w.Nonce,
		Sequence:  w.Sequence,
		Data:      w.Data,
		Signature: w.Signature,
		Recipient: w.Recipient,
	}
}

func toWirePeer(p *storage.PeerInfo) wirePeerInfo {
	return wirePeerInfo{
		PeerId:         p.PeerId,
		NodeId:         p.NodeId,
		Origin:         p.Origin,
		Port:           p.Port,
		AlternativeURI: p.AlternativeURI,
		Signature:      p.Signature,
	}
}

func fromWirePeer(w wirePeerInfo) *storage.PeerInfo {
	return &storage.PeerInfo{
		PeerId:         w.PeerId,
		NodeId:         w.NodeId,
		Origin:         w.Origin,
		Port:           w.Port,
		AlternativeURI: w.AlternativeURI,
		Signature:      w.Signature,
	}
}

func toCompactNodes(entries []*kbucket.KBucketEntry) []codec.CompactNode {
	out := make([]codec.CompactNode, 0, len(entries))
	for _, e := range entries {
		out = append(out, codec.CompactNode{Id: e.Id, Addr: codec.NewNodeAddr(e.Addr())})
	}
	return out
}

func fromCompactNodes(nodes []codec.CompactNode) []kbucket.NodeInfo {
	out := make([]kbucket.NodeInfo, 0, len(nodes))
	for _, n := range nodes {
		addr := n.Addr.UDPAddr()
		out = append(out, kbucket.NodeInfo{Id: n.Id, IP: addr.IP, Port: uint16(addr.Port)})
	}
	return out
}
