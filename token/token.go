// Package token implements the rolling write-authorization tokens
// required on store_value and announce_peer requests: a 32-bit value
// derived from the requester's id and address, the target key, the
// current epoch, and a process-lifetime secret, so a token handed out
// in a find_node response can't be replayed by a third party or reused
// against a different key.
package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"net"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/bosonnetwork/godht/id"
)

// EpochDuration is how long a token remains valid for generation before
// rolling over to a new epoch. Verification accepts both the current
// and the immediately preceding epoch, so a token is usable for up to
// 2×EpochDuration after issuance.
const EpochDuration = 5 * time.Minute

// Manager generates and verifies write-authorization tokens. It is safe
// for concurrent use, though in practice it is only ever touched from
// its owning reactor.
type Manager struct {
	mu            sync.RWMutex
	sessionSecret [32]byte
}

// New creates a Manager with a freshly generated 32-byte session
// secret.
func New() (*Manager, error) {
	var secret [32]byte
	if _, err := rand.Read(secret[:]); err != nil {
		return nil, errors.Wrap(err, "generate token session secret")
	}
	return &Manager{sessionSecret: secret}, nil
}

// currentEpoch returns the epoch number for t: a monotonically
// increasing integer that advances once per EpochDuration of wall
// clock time, shared across all nodes since it is derived from t
// itself rather than from any per-process start time.
func currentEpoch(t time.Time) uint64 {
	return uint64(t.Unix()) / uint64(EpochDuration.Seconds())
}

// Generate returns the write-authorization token for a request from
// (requesterId, requesterIP, requesterPort) targeting targetId, valid
// for the current epoch.
func (m *Manager) Generate(requesterId id.Id, requesterIP net.IP, requesterPort uint16, targetId id.Id) uint32 {
	return m.generateForEpoch(requesterId, requesterIP, requesterPort, targetId, currentEpoch(time.Now()))
}

func (m *Manager) generateForEpoch(requesterId id.Id, requesterIP net.IP, requesterPort uint16, targetId id.Id, epoch uint64) uint32 {
	m.mu.RLock()
	secret := m.sessionSecret
	m.mu.RUnlock()

	h := sha256.New()
	h.Write(requesterId.Bytes())
	h.Write(requesterIP.To16())
	var portBuf [2]byte
	binary.BigEndian.PutUint16(portBuf[:], requesterPort)
	h.Write(portBuf[:])
	h.Write(targetId.Bytes())
	var epochBuf [8]byte
	binary.BigEndian.PutUint64(epochBuf[:], epoch)
	h.Write(epochBuf[:])
	h.Write(secret[:])

	sum := h.Sum(nil)
	return binary.BigEndian.Uint32(sum[:4])
}

// Verify reports whether token was issued for this requester/target
// pair within the current or immediately preceding epoch.
func (m *Manager) Verify(requesterId id.Id, requesterIP net.IP, requesterPort uint16, targetId id.Id, token uint32) bool {
	now := currentEpoch(time.Now())
	if token == m.generateForEpoch(requesterId, requesterIP, requesterPort, targetId, now) {
		return true
	}
	if now == 0 {
		return false
	}
	return token == m.generateForEpoch(requesterId, requesterIP, requesterPort, targetId, now-1)
}
