// Package config implements the fluent Options builder spec.md §6
// names for constructing a Node: identity, bind addresses, storage
// location, bootstrap seeds, and the feature toggles that gate the
// suspicious-node detector, spam throttling and developer mode.
package config

import (
	"crypto/ed25519"
	"net"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bosonnetwork/godht/log"
	"github.com/bosonnetwork/godht/task"
)

// DefaultPort is used when no explicit port is set.
const DefaultPort = 39001

// Options is the fully-resolved configuration a Node is built from.
// Build an instance with NewBuilder and its fluent With* setters rather
// than constructing it directly, so defaults and validation stay
// centralized.
type Options struct {
	PrivateKey ed25519.PrivateKey

	Address4 net.IP
	Address6 net.IP
	Port     int

	DataDir    string
	StorageURI string

	BootstrapNodes []BootstrapNode

	EnableSuspiciousNodeDetector bool
	EnableSpamThrottling         bool
	EnableDeveloperMode          bool

	DefaultLookupOption task.Option

	ValueTTL time.Duration
	PeerTTL  time.Duration

	Logger            log.Logger
	MetricsRegisterer prometheus.Registerer
}

// BootstrapNode is a seed address, resolved to a routing-table NodeInfo
// once its id is learned (or supplied directly when known in advance).
type BootstrapNode struct {
	Address *net.UDPAddr
}

// Builder fluently assembles Options, accumulating the first error
// encountered so a chain of With* calls can be checked once at Build.
type Builder struct {
	opts *Options
	err  error
}

// NewBuilder returns a Builder seeded with spec.md §6's defaults:
// suspicious-node detection and spam throttling on, developer mode
// off, conservative lookups, in-memory storage, no persistence.
func NewBuilder() *Builder {
	return &Builder{
		opts: &Options{
			Port:                         DefaultPort,
			EnableSuspiciousNodeDetector: true,
			EnableSpamThrottling:         true,
			DefaultLookupOption:          task.OptionConservative,
			ValueTTL:                     2 * time.Hour,
			PeerTTL:                      2 * time.Hour,
		},
	}
}

// WithPrivateKey sets the node's Ed25519 identity key. If never called
// and no dataDir is set, Build generates a fresh key; with a dataDir,
// Build leaves the key unset for the Node to load or create.
func (b *Builder) WithPrivateKey(key ed25519.PrivateKey) *Builder {
	if b.err != nil {
		return b
	}
	if len(key) != ed25519.PrivateKeySize {
		b.err = errors.Newf("private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(key))
		return b
	}
	b.opts.PrivateKey = key
	return b
}

// WithAddress4 sets the IPv4 bind address.
func (b *Builder) WithAddress4(addr net.IP) *Builder {
	if b.err != nil {
		return b
	}
	if addr.To4() == nil {
		b.err = errors.Newf("address4 %s is not an IPv4 address", addr)
		return b
	}
	b.opts.Address4 = addr
	return b
}

// WithAddress6 sets the IPv6 bind address.
func (b *Builder) WithAddress6(addr net.IP) *Builder {
	if b.err != nil {
		return b
	}
	if addr.To4() != nil || addr.To16() == nil {
		b.err = errors.Newf("address6 %s is not an IPv6 address", addr)
		return b
	}
	b.opts.Address6 = addr
	return b
}

// WithPort sets the UDP port shared by both address families.
func (b *Builder) WithPort(port int) *Builder {
	if b.err != nil {
		return b
	}
	if port <= 0 || port > 65535 {
		b.err = errors.Newf("port must be in 1..65535, got %d", port)
		return b
	}
	b.opts.Port = port
	return b
}

// WithDataDir enables persistence: the identity key, routing table
// cache, and (unless WithStorageURI overrides it) storage database are
// all kept under dir.
func (b *Builder) WithDataDir(dir string) *Builder {
	if b.err != nil {
		return b
	}
	b.opts.DataDir = dir
	return b
}

// WithStorageURI selects a storage backend explicitly (e.g. a pebble
// path), overriding the dataDir-relative default.
func (b *Builder) WithStorageURI(uri string) *Builder {
	if b.err != nil {
		return b
	}
	b.opts.StorageURI = uri
	return b
}

// WithBootstrapNodes appends seed addresses used on Start.
func (b *Builder) WithBootstrapNodes(nodes ...*net.UDPAddr) *Builder {
	if b.err != nil {
		return b
	}
	for _, n := range nodes {
		b.opts.BootstrapNodes = append(b.opts.BootstrapNodes, BootstrapNode{Address: n})
	}
	return b
}

// WithSuspiciousNodeDetector toggles the benchlist.
func (b *Builder) WithSuspiciousNodeDetector(enabled bool) *Builder {
	if b.err != nil {
		return b
	}
	b.opts.EnableSuspiciousNodeDetector = enabled
	return b
}

// WithSpamThrottling toggles the per-remote-ip token bucket.
func (b *Builder) WithSpamThrottling(enabled bool) *Builder {
	if b.err != nil {
		return b
	}
	b.opts.EnableSpamThrottling = enabled
	return b
}

// WithDeveloperMode relaxes bogon/loopback address checks, for running
// multiple nodes on one host.
func (b *Builder) WithDeveloperMode(enabled bool) *Builder {
	if b.err != nil {
		return b
	}
	b.opts.EnableDeveloperMode = enabled
	return b
}

// WithDefaultLookupOption sets the lookup eagerness used when a caller
// does not specify one explicitly.
func (b *Builder) WithDefaultLookupOption(option task.Option) *Builder {
	if b.err != nil {
		return b
	}
	b.opts.DefaultLookupOption = option
	return b
}

// WithLogger sets the structured logger components log through. If
// never called, the Node logs nothing.
func (b *Builder) WithLogger(logger log.Logger) *Builder {
	if b.err != nil {
		return b
	}
	b.opts.Logger = logger
	return b
}

// WithMetricsRegisterer sets the prometheus registerer each address
// family's collectors are registered against. If never called, the
// Node uses an unshared registry that nothing outside it can scrape.
func (b *Builder) WithMetricsRegisterer(reg prometheus.Registerer) *Builder {
	if b.err != nil {
		return b
	}
	b.opts.MetricsRegisterer = reg
	return b
}

// WithTTLs overrides the default value/peer storage TTLs.
func (b *Builder) WithTTLs(valueTTL, peerTTL time.Duration) *Builder {
	if b.err != nil {
		return b
	}
	if valueTTL <= 0 || peerTTL <= 0 {
		b.err = errors.New("value and peer TTLs must be positive")
		return b
	}
	b.opts.ValueTTL = valueTTL
	b.opts.PeerTTL = peerTTL
	return b
}

// Build validates and returns the assembled Options. At least one of
// Address4/Address6 must be set, per spec.md §6. If no private key was
// set and no dataDir was configured, Build generates an ephemeral key;
// when a dataDir is configured, key persistence is instead the Node's
// job at construction time, so a dataDir'd Options can come back with
// PrivateKey still nil.
func (b *Builder) Build() (*Options, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.opts.Address4 == nil && b.opts.Address6 == nil {
		return nil, errors.New("at least one of address4 or address6 must be set")
	}
	if b.opts.PrivateKey == nil && b.opts.DataDir == "" {
		_, priv, err := ed25519.GenerateKey(nil)
		if err != nil {
			return nil, errors.Wrap(err, "generating node identity key")
		}
		b.opts.PrivateKey = priv
	}
	if !b.opts.EnableDeveloperMode {
		if err := checkNotBogon(b.opts.Address4); err != nil {
			return nil, err
		}
		if err := checkNotBogon(b.opts.Address6); err != nil {
			return nil, err
		}
	}
	return b.opts, nil
}

func checkNotBogon(addr net.IP) error {
	if addr == nil {
		return nil
	}
	if addr.IsLoopback() || addr.IsUnspecified() || addr.IsLinkLocalUnicast() {
		return errors.Newf("address %s looks like a bogon; use WithDeveloperMode to allow it", addr)
	}
	return nil
}
