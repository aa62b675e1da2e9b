package node

import (
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bosonnetwork/godht/id"
	"github.com/bosonnetwork/godht/kbucket"
)

func TestLoadOrGenerateKeyPersistsAcrossCalls(t *testing.T) {
	dir := t.TempDir()
	priv1, err := loadOrGenerateKey(dir)
	require.NoError(t, err)

	priv2, err := loadOrGenerateKey(dir)
	require.NoError(t, err)
	require.Equal(t, priv1, priv2)

	_, err = os.Stat(filepath.Join(dir, idFileName))
	require.NoError(t, err)
}

func TestLoadOrGenerateKeyEphemeralWithoutDataDir(t *testing.T) {
	priv1, err := loadOrGenerateKey("")
	require.NoError(t, err)
	priv2, err := loadOrGenerateKey("")
	require.NoError(t, err)
	require.NotEqual(t, priv1, priv2)
}

func TestLoadOrGenerateKeyRejectsCorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, keyFileName), []byte("short"), 0600))
	_, err := loadOrGenerateKey(dir)
	require.Error(t, err)
}

func TestRoutingCacheRoundTrip(t *testing.T) {
	dir := t.TempDir()
	entries := []kbucket.NodeInfo{
		{Id: id.FromHash([]byte("n1")), IP: net.ParseIP("127.0.0.1"), Port: 1234},
		{Id: id.FromHash([]byte("n2")), IP: net.ParseIP("127.0.0.1"), Port: 5678},
	}
	rt := fakeRoutingCacheSource{entries: entries}
	require.NoError(t, saveRoutingCache(dir, false, rt))

	loaded, err := loadRoutingCache(dir, false)
	require.NoError(t, err)
	require.ElementsMatch(t, entries, loaded)

	loaded6, err := loadRoutingCache(dir, true)
	require.NoError(t, err)
	require.Nil(t, loaded6)
}

func TestSaveRoutingCacheNoopWithoutDataDir(t *testing.T) {
	rt := fakeRoutingCacheSource{entries: []kbucket.NodeInfo{{Id: id.FromHash([]byte("n1"))}}}
	require.NoError(t, saveRoutingCache("", false, rt))
}

func TestLoadRoutingCacheMissingFileReturnsNil(t *testing.T) {
	dir := t.TempDir()
	loaded, err := loadRoutingCache(dir, false)
	require.NoError(t, err)
	require.Nil(t, loaded)
}

type fakeRoutingCacheSource struct {
	entries []kbucket.NodeInfo
}

func (f fakeRoutingCacheSource) Snapshot() []kbucket.NodeInfo {
	return f.entries
}
