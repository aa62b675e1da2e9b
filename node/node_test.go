package node

import (
	"context"
	"crypto/ed25519"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/bosonnetwork/godht/config"
	"github.com/bosonnetwork/godht/dhterr"
	"github.com/bosonnetwork/godht/id"
	"github.com/bosonnetwork/godht/storage"
	"github.com/bosonnetwork/godht/storage/storagemock"
	"github.com/bosonnetwork/godht/task"
)

func newTestNode(t *testing.T) *Node {
	t.Helper()
	opts, err := config.NewBuilder().
		WithAddress4(net.ParseIP("127.0.0.1")).
		WithPort(0).
		WithDeveloperMode(true).
		Build()
	require.NoError(t, err)
	n, err := New(opts)
	require.NoError(t, err)
	require.NoError(t, n.Start(context.Background()))
	t.Cleanup(func() { _ = n.Stop() })
	return n
}

func (n *Node) addr4(t *testing.T) *net.UDPAddr {
	t.Helper()
	return n.fam4.conn.LocalAddr().(*net.UDPAddr)
}

func (n *Node) addr6(t *testing.T) *net.UDPAddr {
	t.Helper()
	return n.fam6.conn.LocalAddr().(*net.UDPAddr)
}

func newDualStackTestNode(t *testing.T) *Node {
	t.Helper()
	opts, err := config.NewBuilder().
		WithAddress4(net.ParseIP("127.0.0.1")).
		WithAddress6(net.ParseIP("::1")).
		WithPort(0).
		WithDeveloperMode(true).
		Build()
	require.NoError(t, err)
	n, err := New(opts)
	require.NoError(t, err)
	require.NoError(t, n.Start(context.Background()))
	t.Cleanup(func() { _ = n.Stop() })
	return n
}

func TestServerOptionsReflectToggles(t *testing.T) {
	n := &Node{opts: &config.Options{EnableSuspiciousNodeDetector: true, EnableSpamThrottling: true}}
	require.Empty(t, n.serverOptions())

	n = &Node{opts: &config.Options{EnableSuspiciousNodeDetector: false, EnableSpamThrottling: false}}
	require.Len(t, n.serverOptions(), 2)

	n = &Node{opts: &config.Options{EnableSuspiciousNodeDetector: false, EnableSpamThrottling: true}}
	require.Len(t, n.serverOptions(), 1)
}

func TestStartTwiceIsIllegalState(t *testing.T) {
	n := newTestNode(t)
	require.ErrorIs(t, n.Start(context.Background()), dhterr.ErrIllegalState)
}

func TestStopWhenStoppedIsIllegalState(t *testing.T) {
	opts, err := config.NewBuilder().
		WithAddress4(net.ParseIP("127.0.0.1")).
		WithPort(0).
		WithDeveloperMode(true).
		Build()
	require.NoError(t, err)
	n, err := New(opts)
	require.NoError(t, err)
	require.ErrorIs(t, n.Stop(), dhterr.ErrIllegalState)
}

func TestOperationsFailBeforeStart(t *testing.T) {
	opts, err := config.NewBuilder().
		WithAddress4(net.ParseIP("127.0.0.1")).
		WithPort(0).
		WithDeveloperMode(true).
		Build()
	require.NoError(t, err)
	n, err := New(opts)
	require.NoError(t, err)
	_, _, err = n.FindNode(context.Background(), n.Id(), task.OptionConservative)
	require.ErrorIs(t, err, dhterr.ErrIllegalState)
}

func TestBootstrapAndFindNode(t *testing.T) {
	seed := newTestNode(t)
	joiner := newTestNode(t)

	require.NoError(t, joiner.Bootstrap([]*net.UDPAddr{seed.addr4(t)}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	v4, _, err := joiner.FindNode(ctx, seed.Id(), task.OptionConservative)
	require.NoError(t, err)
	require.NotNil(t, v4)
	require.True(t, v4.Id.Equal(seed.Id()))
}

func TestStoreAndFindImmutableValue(t *testing.T) {
	seed := newTestNode(t)
	joiner := newTestNode(t)
	require.NoError(t, joiner.Bootstrap([]*net.UDPAddr{seed.addr4(t)}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	v := &storage.Value{Data: []byte("hello dht")}
	require.NoError(t, joiner.StoreValue(ctx, v, false))

	found, err := seed.FindValue(ctx, v.Id(), nil, task.OptionConservative)
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, v.Data, found.Data)
}

func TestStoreAndFindMutableValue(t *testing.T) {
	seed := newTestNode(t)
	joiner := newTestNode(t)
	require.NoError(t, joiner.Bootstrap([]*net.UDPAddr{seed.addr4(t)}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	v := &storage.Value{PublicKey: pub, Sequence: 1, Data: []byte("v1")}
	v.Sign(priv)
	require.NoError(t, joiner.StoreValue(ctx, v, false))

	found, err := seed.FindValue(ctx, v.Id(), nil, task.OptionConservative)
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, int32(1), found.Sequence)

	v2 := &storage.Value{PublicKey: pub, Nonce: v.Nonce, Sequence: 2, Data: []byte("v2")}
	v2.Sign(priv)
	require.NoError(t, joiner.StoreValue(ctx, v2, false))

	found2, err := seed.FindValue(ctx, v.Id(), nil, task.OptionConservative)
	require.NoError(t, err)
	require.Equal(t, int32(2), found2.Sequence)
}

func TestAnnounceAndFindPeer(t *testing.T) {
	seed := newTestNode(t)
	joiner := newTestNode(t)
	require.NoError(t, joiner.Bootstrap([]*net.UDPAddr{seed.addr4(t)}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	peerPub, peerPriv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	p := &storage.PeerInfo{PeerId: id.FromPublicKey(peerPub), NodeId: joiner.Id(), Port: 9999}
	p.Sign(peerPriv)
	require.NoError(t, joiner.AnnouncePeer(ctx, p, false))

	peers, err := seed.FindPeer(ctx, p.PeerId, 1, task.OptionConservative)
	require.NoError(t, err)
	require.Len(t, peers, 1)
	require.Equal(t, p.Port, peers[0].Port)
}

func TestGetValueRemoveValueLocal(t *testing.T) {
	n := newTestNode(t)
	v := &storage.Value{Data: []byte("local")}
	require.NoError(t, n.StoreValue(context.Background(), v, false))

	got, ok := n.GetValue(v.Id())
	require.True(t, ok)
	require.Equal(t, v.Data, got.Data)

	require.True(t, n.RemoveValue(v.Id()))
	_, ok = n.GetValue(v.Id())
	require.False(t, ok)
}

func TestSignVerifyRoundTrip(t *testing.T) {
	n := newTestNode(t)
	data := []byte("message")
	sig := n.Sign(data)
	require.True(t, n.Verify(n.Id(), data, sig))
	require.False(t, n.Verify(n.Id(), []byte("tampered"), sig))
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	alice := newTestNode(t)
	bob := newTestNode(t)

	plaintext := []byte("secret for bob")
	sealed, err := alice.Encrypt(bob.Id(), plaintext)
	require.NoError(t, err)

	opened, err := bob.Decrypt(alice.Id(), sealed)
	require.NoError(t, err)
	require.Equal(t, plaintext, opened)
}

func TestDualStackStoreAndFindValueForksBothFamilies(t *testing.T) {
	seed := newDualStackTestNode(t)
	joiner := newDualStackTestNode(t)
	require.NoError(t, joiner.Bootstrap([]*net.UDPAddr{seed.addr4(t), seed.addr6(t)}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	v := &storage.Value{Data: []byte("dual stack value")}
	require.NoError(t, joiner.StoreValue(ctx, v, false))

	found, err := seed.FindValue(ctx, v.Id(), nil, task.OptionConservative)
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, v.Data, found.Data)
}

func TestDualStackAnnounceAndFindPeerForksBothFamilies(t *testing.T) {
	seed := newDualStackTestNode(t)
	joiner := newDualStackTestNode(t)
	require.NoError(t, joiner.Bootstrap([]*net.UDPAddr{seed.addr4(t), seed.addr6(t)}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	peerPub, peerPriv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	p := &storage.PeerInfo{PeerId: id.FromPublicKey(peerPub), NodeId: joiner.Id(), Port: 9999}
	p.Sign(peerPriv)
	require.NoError(t, joiner.AnnouncePeer(ctx, p, false))

	peers, err := seed.FindPeer(ctx, p.PeerId, 1, task.OptionConservative)
	require.NoError(t, err)
	require.Len(t, peers, 1)
	require.Equal(t, p.Port, peers[0].Port)
}

func TestStopSurfacesStorageCloseError(t *testing.T) {
	n := newTestNode(t)

	ctrl := gomock.NewController(t)
	mockStorage := storagemock.NewMockStorage(ctrl)
	closeErr := errors.New("storage backend unavailable")
	mockStorage.EXPECT().Close().Return(closeErr)
	n.storage = mockStorage

	err := n.Stop()
	require.ErrorContains(t, err, "storage backend unavailable")
}
