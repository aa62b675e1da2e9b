package node

import (
	"crypto/ed25519"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fxamacker/cbor/v2"

	"github.com/bosonnetwork/godht/kbucket"
	"github.com/mr-tron/base58"
)

const (
	keyFileName = "key"
	idFileName  = "id"
	cache4File  = "dht4.cache"
	cache6File  = "dht6.cache"
)

// routingCache is the persisted snapshot spec.md §6 names for each
// address family's routing table: the live set, reloaded as unconfirmed
// candidates on the next Start rather than as trusted liveness records.
// Replacement-cache entries are not saved.
type routingCache struct {
	Timestamp int64               `cbor:"t"`
	Entries   []kbucket.NodeInfo  `cbor:"e"`
	Cache     []kbucket.NodeInfo  `cbor:"c"`
}

func loadOrGenerateKey(dataDir string) (ed25519.PrivateKey, error) {
	if dataDir == "" {
		_, priv, err := ed25519.GenerateKey(nil)
		return priv, err
	}
	keyPath := filepath.Join(dataDir, keyFileName)
	data, err := os.ReadFile(keyPath)
	if err == nil {
		if len(data) != ed25519.PrivateKeySize {
			return nil, errors.Newf("persisted key file has wrong size %d", len(data))
		}
		return ed25519.PrivateKey(data), nil
	}
	if !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "reading persisted key")
	}
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, errors.Wrap(err, "generating node identity key")
	}
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, errors.Wrap(err, "creating data directory")
	}
	if err := os.WriteFile(keyPath, priv, 0600); err != nil {
		return nil, errors.Wrap(err, "persisting node identity key")
	}
	if err := os.WriteFile(filepath.Join(dataDir, idFileName), []byte(base58.Encode(pub)), 0644); err != nil {
		return nil, errors.Wrap(err, "persisting node id")
	}
	return priv, nil
}

func cacheFileName(ipv6 bool) string {
	if ipv6 {
		return cache6File
	}
	return cache4File
}

func saveRoutingCache(dataDir string, ipv6 bool, rt routingCacheSource) error {
	if dataDir == "" {
		return nil
	}
	snapshot := routingCache{
		Timestamp: time.Now().Unix(),
		Entries:   rt.Snapshot(),
	}
	data, err := cbor.Marshal(snapshot)
	if err != nil {
		return errors.Wrap(err, "encoding routing cache")
	}
	return os.WriteFile(filepath.Join(dataDir, cacheFileName(ipv6)), data, 0600)
}

func loadRoutingCache(dataDir string, ipv6 bool) ([]kbucket.NodeInfo, error) {
	if dataDir == "" {
		return nil, nil
	}
	data, err := os.ReadFile(filepath.Join(dataDir, cacheFileName(ipv6)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "reading routing cache")
	}
	var snapshot routingCache
	if err := cbor.Unmarshal(data, &snapshot); err != nil {
		return nil, errors.Wrap(err, "decoding routing cache")
	}
	return append(snapshot.Entries, snapshot.Cache...), nil
}

// routingCacheSource is the subset of routingtable.RoutingTable
// saveRoutingCache needs, kept narrow so persistence tests can supply a
// fake.
type routingCacheSource interface {
	Snapshot() []kbucket.NodeInfo
}
