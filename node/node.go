// Package node composes the wire codec, RPC reactor, routing table,
// token manager, storage, and task engine into the facade spec.md §6
// describes: one Node per process, with one rpc.Server/RoutingTable
// pair per configured address family sharing a single identity,
// storage, and token manager.
package node

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/bosonnetwork/godht/codec"
	"github.com/bosonnetwork/godht/config"
	"github.com/bosonnetwork/godht/dhterr"
	"github.com/bosonnetwork/godht/id"
	"github.com/bosonnetwork/godht/identity"
	"github.com/bosonnetwork/godht/kbucket"
	"github.com/bosonnetwork/godht/log"
	"github.com/bosonnetwork/godht/metrics"
	"github.com/bosonnetwork/godht/routingtable"
	"github.com/bosonnetwork/godht/rpc"
	"github.com/bosonnetwork/godht/storage"
	"github.com/bosonnetwork/godht/task"
	"github.com/bosonnetwork/godht/token"
	"github.com/bosonnetwork/godht/utils/wrappers"
)

// State is the Node's lifecycle stage, spec.md §4.6's
// stopped→starting→running→stopping→stopped machine.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

// family bundles one address family's socket, reactor, and routing
// table.
type family struct {
	ipv6    bool
	conn    net.PacketConn
	server  *rpc.Server
	routing *routingtable.RoutingTable
}

// Node is the facade spec.md §6's Node API table describes.
type Node struct {
	mu    sync.RWMutex
	state State

	opts     *config.Options
	identity *identity.Identity
	storage  storage.Storage
	tokens   *token.Manager
	tasks    *task.Manager
	log      log.Logger
	metrics  *metrics.Metrics

	fam4 *family
	fam6 *family

	stopReannounce chan struct{}
	wg             sync.WaitGroup
}

// New assembles a Node from opts without starting it.
func New(opts *config.Options) (*Node, error) {
	priv := opts.PrivateKey
	if priv == nil {
		var err error
		priv, err = loadOrGenerateKey(opts.DataDir)
		if err != nil {
			return nil, errors.Wrap(err, "loading persisted node identity")
		}
	}
	ident, err := identity.FromPrivateKey(priv)
	if err != nil {
		return nil, errors.Wrap(err, "loading node identity")
	}

	store, err := openStorage(opts)
	if err != nil {
		return nil, errors.Wrap(err, "opening storage")
	}
	if err := store.Initialize(opts.ValueTTL, opts.PeerTTL); err != nil {
		return nil, errors.Wrap(err, "initializing storage")
	}

	tokens, err := token.New()
	if err != nil {
		return nil, errors.Wrap(err, "initializing token manager")
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	var m *metrics.Metrics
	if opts.MetricsRegisterer != nil {
		m = metrics.New(opts.MetricsRegisterer, "dht")
	} else {
		m = metrics.NewForTest()
	}

	return &Node{
		state:    StateStopped,
		opts:     opts,
		identity: ident,
		storage:  store,
		tokens:   tokens,
		tasks:    task.NewManager(task.DefaultTick, 0),
		log:      logger,
		metrics:  m,
	}, nil
}

func openStorage(opts *config.Options) (storage.Storage, error) {
	if opts.StorageURI != "" {
		return storage.OpenPebble(opts.StorageURI)
	}
	if opts.DataDir != "" {
		return storage.OpenPebble(opts.DataDir + "/storage.db")
	}
	return storage.NewMemory(), nil
}

// Id returns the node's overlay identifier.
func (n *Node) Id() id.Id {
	return n.identity.Id()
}

// State reports the current lifecycle stage.
func (n *Node) State() State {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.state
}

func (n *Node) requireState(want State) error {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.state != want {
		return dhterr.ErrIllegalState
	}
	return nil
}

// Start brings every configured address family's reactor up and begins
// the periodic re-announcement loop.
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	if n.state != StateStopped {
		n.mu.Unlock()
		return dhterr.ErrIllegalState
	}
	n.state = StateStarting
	n.mu.Unlock()

	var rt4, rt6 *routingtable.RoutingTable
	var conn4, conn6 net.PacketConn

	if n.opts.Address4 != nil {
		c, rt, err := n.openFamily(false, n.opts.Address4)
		if err != nil {
			n.mu.Lock()
			n.state = StateStopped
			n.mu.Unlock()
			return errors.Wrap(err, "opening ipv4 socket")
		}
		conn4, rt4 = c, rt
	}
	if n.opts.Address6 != nil {
		c, rt, err := n.openFamily(true, n.opts.Address6)
		if err != nil {
			if conn4 != nil {
				_ = conn4.Close()
			}
			n.mu.Lock()
			n.state = StateStopped
			n.mu.Unlock()
			return errors.Wrap(err, "opening ipv6 socket")
		}
		conn6, rt6 = c, rt
	}

	serverOpts := n.serverOptions()

	if conn4 != nil {
		h := &handler{self: n.identity.Id(), routing: rt4, storage: n.storage, tokens: n.tokens, other: rt6}
		server := rpc.NewServer(conn4, n.identity.Id(), rt4, h, n.metrics, n.log, serverOpts...)
		h.server = server
		n.fam4 = &family{ipv6: false, conn: conn4, server: server, routing: rt4}
		server.Start()
	}
	if conn6 != nil {
		h := &handler{self: n.identity.Id(), routing: rt6, storage: n.storage, tokens: n.tokens, other: rt4}
		server := rpc.NewServer(conn6, n.identity.Id(), rt6, h, n.metrics, n.log, serverOpts...)
		h.server = server
		n.fam6 = &family{ipv6: true, conn: conn6, server: server, routing: rt6}
		server.Start()
	}

	n.tasks.Start(ctx)
	n.stopReannounce = make(chan struct{})
	n.wg.Add(1)
	go n.reannounceLoop()

	n.mu.Lock()
	n.state = StateRunning
	n.mu.Unlock()

	if len(n.opts.BootstrapNodes) > 0 {
		seeds := make([]*net.UDPAddr, 0, len(n.opts.BootstrapNodes))
		for _, b := range n.opts.BootstrapNodes {
			seeds = append(seeds, b.Address)
		}
		return n.Bootstrap(seeds)
	}
	return nil
}

// serverOptions translates the EnableSuspiciousNodeDetector/
// EnableSpamThrottling toggles into the rpc.Server options that opt
// out of those defenses.
func (n *Node) serverOptions() []rpc.ServerOption {
	var opts []rpc.ServerOption
	if !n.opts.EnableSuspiciousNodeDetector {
		opts = append(opts, rpc.WithoutBenchlist())
	}
	if !n.opts.EnableSpamThrottling {
		opts = append(opts, rpc.WithoutThrottle())
	}
	return opts
}

func (n *Node) openFamily(ipv6 bool, addr net.IP) (net.PacketConn, *routingtable.RoutingTable, error) {
	udpAddr := &net.UDPAddr{IP: addr, Port: n.opts.Port}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, nil, err
	}
	rt := routingtable.New(n.identity.Id())
	if cached, err := loadRoutingCache(n.opts.DataDir, ipv6); err == nil {
		now := time.Now()
		for _, info := range cached {
			rt.Put(kbucket.NewKBucketEntry(info, now))
		}
	}
	return conn, rt, nil
}

func (n *Node) stopFamilies() {
	if n.fam4 != nil {
		n.fam4.server.Stop()
		n.fam4 = nil
	}
	if n.fam6 != nil {
		n.fam6.server.Stop()
		n.fam6 = nil
	}
}

// Stop tears every reactor down, persisting the routing cache first if
// a dataDir is configured. Every shutdown step runs regardless of an
// earlier one's failure, and their errors are collected and returned
// together.
func (n *Node) Stop() error {
	n.mu.Lock()
	if n.state != StateRunning {
		n.mu.Unlock()
		return dhterr.ErrIllegalState
	}
	n.state = StateStopping
	n.mu.Unlock()

	close(n.stopReannounce)
	n.wg.Wait()
	n.tasks.Stop()

	var errs wrappers.Errs
	if n.fam4 != nil {
		errs.Add(saveRoutingCache(n.opts.DataDir, false, n.fam4.routing))
	}
	if n.fam6 != nil {
		errs.Add(saveRoutingCache(n.opts.DataDir, true, n.fam6.routing))
	}
	n.stopFamilies()
	errs.Add(n.storage.Close())

	n.mu.Lock()
	n.state = StateStopped
	n.mu.Unlock()
	return errs.Err()
}

func (n *Node) reannounceLoop() {
	defer n.wg.Done()
	ticker := time.NewTicker(storage.ReannounceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-n.stopReannounce:
			return
		case <-ticker.C:
			n.reannounce()
		}
	}
}

func (n *Node) reannounce() {
	cutoff := time.Now().Add(-storage.ReannounceInterval)
	for _, v := range n.storage.GetValues(true, cutoff) {
		v := v
		n.tasks.Enqueue(func(ctx context.Context) {
			_ = n.StoreValue(ctx, v, true)
			n.storage.UpdateValueAnnouncedTime(v.Id())
		})
	}
	for _, p := range n.storage.GetPeerEntries(true, cutoff) {
		p := p
		n.tasks.Enqueue(func(ctx context.Context) {
			_ = n.AnnouncePeer(ctx, p, true)
			n.storage.UpdatePeerAnnouncedTime(p.PeerId, p.NodeId)
		})
	}
}

// Bootstrap seeds every configured family's routing table from seeds
// and performs a self-lookup to populate nearby buckets.
func (n *Node) Bootstrap(seeds []*net.UDPAddr) error {
	if err := n.requireState(StateRunning); err != nil {
		return err
	}
	if len(seeds) == 0 {
		return errors.New("bootstrap requires at least one seed")
	}
	var wg sync.WaitGroup
	for _, fam := range n.activeFamilies() {
		for _, addr := range seeds {
			if isIPv6(addr.IP) != fam.ipv6 {
				continue
			}
			fam, addr := fam, addr
			wg.Add(1)
			call := &rpc.Call{}
			call.OnResponse = func(msg *codec.Message) {
				defer wg.Done()
				fam.routing.Put(kbucket.NewKBucketEntry(kbucket.NodeInfo{Id: msg.Sender, IP: addr.IP, Port: uint16(addr.Port)}, time.Now()))
				fam.routing.OnResponse(msg.Sender, time.Now(), time.Since(call.SentAt))
			}
			call.OnTimeout = func() { wg.Done() }
			call.OnError = func(error) { wg.Done() }
			if err := fam.server.SendCall(context.Background(), addr, codec.MethodPing, struct{}{}, false, false, call); err != nil {
				wg.Done()
			}
		}
	}
	wg.Wait()
	_, _, err := n.FindNode(context.Background(), n.identity.Id(), n.opts.DefaultLookupOption)
	return err
}

func (n *Node) activeFamilies() []*family {
	var out []*family
	if n.fam4 != nil {
		out = append(out, n.fam4)
	}
	if n.fam6 != nil {
		out = append(out, n.fam6)
	}
	return out
}

func isIPv6(ip net.IP) bool {
	return ip.To4() == nil
}

// FindNode runs an iterative node lookup per family and returns the
// best NodeInfo for target from each configured family.
func (n *Node) FindNode(ctx context.Context, target id.Id, option task.Option) (v4, v6 *kbucket.NodeInfo, err error) {
	if err := n.requireState(StateRunning); err != nil {
		return nil, nil, err
	}
	if option == task.OptionLocal {
		if n.fam4 != nil {
			if e := n.fam4.routing.Find(target); e != nil {
				v4 = &e.NodeInfo
			}
		}
		if n.fam6 != nil {
			if e := n.fam6.routing.Find(target); e != nil {
				v6 = &e.NodeInfo
			}
		}
		return v4, v6, nil
	}

	if n.fam4 != nil {
		if info, ok := n.lookupNode(ctx, n.fam4, target, option); ok {
			v4 = &info
		}
	}
	if n.fam6 != nil {
		if info, ok := n.lookupNode(ctx, n.fam6, target, option); ok {
			v6 = &info
		}
	}
	return v4, v6, nil
}

func (n *Node) lookupNode(ctx context.Context, fam *family, target id.Id, option task.Option) (kbucket.NodeInfo, bool) {
	seeds := toNodeInfos(fam.routing.GetClosest(target, kbucket.K))
	lookup := task.NewNodeLookup(target, option, &nodeQuerier{server: fam.server})
	closest := lookup.RunSeeded(ctx, seeds)
	for _, c := range closest {
		if c.Id.Equal(target) {
			return c, true
		}
	}
	if len(closest) > 0 {
		return closest[0], true
	}
	return kbucket.NodeInfo{}, false
}

func toNodeInfos(entries []*kbucket.KBucketEntry) []kbucket.NodeInfo {
	out := make([]kbucket.NodeInfo, len(entries))
	for i, e := range entries {
		out[i] = e.NodeInfo
	}
	return out
}

// FindValue runs an iterative value lookup against every active family,
// returning the best valid value found (highest sequence for mutable
// values) or nil. With both families active the two lookups run
// concurrently and are merged per option, the spec.md §4.6 policy also
// used by familyFork: arbitrary takes whichever family answers first,
// optimistic waits for the first family that actually found the value,
// conservative waits for both and keeps the better of the two.
func (n *Node) FindValue(ctx context.Context, target id.Id, expectedSeq *int32, option task.Option) (*storage.Value, error) {
	if err := n.requireState(StateRunning); err != nil {
		return nil, err
	}
	if option == task.OptionLocal {
		v, _ := n.storage.GetValue(target)
		return v, nil
	}
	families := n.activeFamilies()
	if len(families) == 0 {
		return nil, dhterr.ErrIllegalState
	}
	value := familyFork(ctx, families, option,
		func(ctx context.Context, fam *family) (*storage.Value, bool) {
			seeds := toNodeInfos(fam.routing.GetClosest(target, kbucket.K))
			lookup, result := task.NewValueLookup(target, option, &valueQuerier{server: fam.server})
			lookup.RunSeeded(ctx, seeds)
			return result.Value, result.Value != nil
		},
		mergeValues,
	)
	if value != nil {
		_ = n.storage.PutValue(value, false, nil)
	}
	return value, nil
}

func mergeValues(outcomes []*storage.Value) *storage.Value {
	var best *storage.Value
	for _, v := range outcomes {
		if v == nil {
			continue
		}
		if best == nil || task.BetterValue(v, best) {
			best = v
		}
	}
	return best
}

// StoreValue runs a node lookup to collect write tokens, then announces
// value to the K closest nodes of every active family, and also keeps a
// local copy. The announce fans out per activeFamilies and follows the
// configured DefaultLookupOption, since storeValue takes no explicit
// option of its own.
func (n *Node) StoreValue(ctx context.Context, v *storage.Value, persistent bool) error {
	if err := n.requireState(StateRunning); err != nil {
		return err
	}
	if !v.IsValid() {
		return dhterr.ErrInvalidSignature
	}
	if err := n.storage.PutValue(v, persistent, nil); err != nil {
		return err
	}
	families := n.activeFamilies()
	if len(families) == 0 {
		return nil
	}
	familyFork(ctx, families, n.opts.DefaultLookupOption,
		func(ctx context.Context, fam *family) (struct{}, bool) {
			seeds := toNodeInfos(fam.routing.GetClosest(v.Id(), kbucket.K))
			task.RunAnnounce(ctx, v.Id(), seeds, &nodeQuerier{server: fam.server}, &valueAnnouncer{server: fam.server, value: v, persistent: persistent})
			return struct{}{}, true
		},
		func([]struct{}) struct{} { return struct{}{} },
	)
	return nil
}

// FindPeer runs an iterative peer lookup for target against every
// active family, stopping once expected distinct announcements are
// gathered, and merges the per-family results per option: arbitrary
// takes whichever family answers first, optimistic waits for the first
// family that found at least one peer, conservative waits for both and
// unions the distinct announcements.
func (n *Node) FindPeer(ctx context.Context, target id.Id, expected int, option task.Option) ([]*storage.PeerInfo, error) {
	if err := n.requireState(StateRunning); err != nil {
		return nil, err
	}
	if option == task.OptionLocal {
		return n.storage.GetPeers(target), nil
	}
	families := n.activeFamilies()
	if len(families) == 0 {
		return nil, dhterr.ErrIllegalState
	}
	peers := familyFork(ctx, families, option,
		func(ctx context.Context, fam *family) ([]*storage.PeerInfo, bool) {
			seeds := toNodeInfos(fam.routing.GetClosest(target, kbucket.K))
			lookup, result := task.NewPeerLookup(target, expected, option, &peerQuerier{server: fam.server, expected: expected})
			lookup.RunSeeded(ctx, seeds)
			return result.Peers, len(result.Peers) > 0
		},
		func(outcomes [][]*storage.PeerInfo) []*storage.PeerInfo {
			return mergePeers(outcomes, expected)
		},
	)
	for _, p := range peers {
		_ = n.storage.PutPeer(p, false)
	}
	return peers, nil
}

func mergePeers(outcomes [][]*storage.PeerInfo, expected int) []*storage.PeerInfo {
	seen := make(map[id.Id]struct{})
	var merged []*storage.PeerInfo
	for _, peers := range outcomes {
		for _, p := range peers {
			fp := p.Fingerprint()
			if _, dup := seen[fp]; dup {
				continue
			}
			seen[fp] = struct{}{}
			merged = append(merged, p)
			if expected > 0 && len(merged) >= expected {
				return merged
			}
		}
	}
	return merged
}

// AnnouncePeer runs a node lookup to collect write tokens, then
// announces peer to the K closest nodes of every active family,
// keeping a local copy too. The announce fans out per activeFamilies
// and follows the configured DefaultLookupOption, since announcePeer
// takes no explicit option of its own.
func (n *Node) AnnouncePeer(ctx context.Context, p *storage.PeerInfo, persistent bool) error {
	if err := n.requireState(StateRunning); err != nil {
		return err
	}
	if !p.IsValid() {
		return dhterr.ErrInvalidSignature
	}
	if err := n.storage.PutPeer(p, persistent); err != nil {
		return err
	}
	families := n.activeFamilies()
	if len(families) == 0 {
		return nil
	}
	familyFork(ctx, families, n.opts.DefaultLookupOption,
		func(ctx context.Context, fam *family) (struct{}, bool) {
			seeds := toNodeInfos(fam.routing.GetClosest(p.PeerId, kbucket.K))
			task.RunAnnounce(ctx, p.PeerId, seeds, &nodeQuerier{server: fam.server}, &peerAnnouncer{server: fam.server, peer: p, persistent: persistent})
			return struct{}{}, true
		},
		func([]struct{}) struct{} { return struct{}{} },
	)
	return nil
}

// familyFork runs query against every active family concurrently and
// folds the per-family outcomes into one result per the spec.md §4.6
// lookup-option policy: arbitrary returns whichever family finishes
// first, optimistic waits for the first family whose query reports
// found=true (falling back to merge once every family has answered
// empty-handed), and conservative (and any other option, since
// storeValue/announcePeer carry no option of their own) waits for every
// family and folds all outcomes through merge. A single active family
// skips the fork entirely.
func familyFork[T any](ctx context.Context, families []*family, option task.Option, query func(context.Context, *family) (T, bool), merge func([]T) T) T {
	if len(families) == 1 {
		result, _ := query(ctx, families[0])
		return result
	}

	type outcome struct {
		result T
		found  bool
	}
	results := make(chan outcome, len(families))
	for _, fam := range families {
		fam := fam
		go func() {
			result, found := query(ctx, fam)
			results <- outcome{result: result, found: found}
		}()
	}

	switch option {
	case task.OptionArbitrary:
		return (<-results).result
	case task.OptionOptimistic:
		var pending []T
		for i := 0; i < len(families); i++ {
			out := <-results
			if out.found {
				return out.result
			}
			pending = append(pending, out.result)
		}
		return merge(pending)
	default:
		all := make([]T, 0, len(families))
		for i := 0; i < len(families); i++ {
			all = append(all, (<-results).result)
		}
		return merge(all)
	}
}

// GetValue reads a value from local storage only.
func (n *Node) GetValue(key id.Id) (*storage.Value, bool) {
	return n.storage.GetValue(key)
}

// RemoveValue deletes a value from local storage only.
func (n *Node) RemoveValue(key id.Id) bool {
	return n.storage.RemoveValue(key)
}

// GetPeer reads a service-peer announcement from local storage only.
func (n *Node) GetPeer(peerId, nodeId id.Id) (*storage.PeerInfo, bool) {
	return n.storage.GetPeer(peerId, nodeId)
}

// RemovePeer deletes a service-peer announcement from local storage
// only.
func (n *Node) RemovePeer(peerId, nodeId id.Id) bool {
	return n.storage.RemovePeer(peerId, nodeId)
}

// Sign returns the Ed25519 signature of data under this node's
// identity key.
func (n *Node) Sign(data []byte) []byte {
	return n.identity.Sign(data)
}

// Verify reports whether sig is a valid Ed25519 signature of data under
// signer.
func (n *Node) Verify(signer id.Id, data, sig []byte) bool {
	return identity.Verify(signer.Bytes(), data, sig)
}

// Encrypt seals data so only recipient can read it.
func (n *Node) Encrypt(recipient id.Id, data []byte) ([]byte, error) {
	return identity.Encrypt(recipient.Bytes(), data)
}

// Decrypt opens a sealed box addressed to this node's identity. sender
// is accepted for API symmetry but unused: the sealed-box construction
// is anonymous and carries no sender authentication.
func (n *Node) Decrypt(sender id.Id, data []byte) ([]byte, error) {
	return n.identity.Decrypt(data)
}
