// Package ledger provides ledger collaborators: an in-process hash chain and
// a client for an HTTP ledger gateway.
package ledger

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"bluecarbon-registry/internal/core/domain"
	"bluecarbon-registry/internal/core/ports"
	"bluecarbon-registry/pkg/apperror"

	"golang.org/x/crypto/sha3"
)

// Entry is one block of the in-process chain.
type Entry struct {
	Index       uint64
	TxRef       string
	PrevHash    string
	PayloadHash string
	SubmittedAt time.Time
	Failed      bool
}

// Memory is an append-only keccak-256 hash chain held in memory. A
// transaction becomes final once FinalityDelay has passed since submission.
type Memory struct {
	mu          sync.RWMutex
	entries     []Entry
	byRef       map[string]int
	unavailable bool
	finality    time.Duration
	now         func() time.Time
}

func NewMemory(finalityDelay time.Duration) *Memory {
	return &Memory{
		byRef:    make(map[string]int),
		finality: finalityDelay,
		now:      time.Now,
	}
}

// SetClock overrides the time source.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

// SetUnavailable makes every call fail with a transport error until reset.
func (m *Memory) SetUnavailable(down bool) {
	m.mu.Lock()
	m.unavailable = down
	m.mu.Unlock()
}

// Fail marks an accepted transaction as dropped by the ledger.
func (m *Memory) Fail(txRef string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.byRef[txRef]
	if !ok {
		return apperror.ErrNotFound("ledger transaction", txRef)
	}
	m.entries[i].Failed = true
	return nil
}

func (m *Memory) Submit(ctx context.Context, payload []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(payload) == 0 {
		return "", errors.New("empty ledger payload")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unavailable {
		return "", fmt.Errorf("memory ledger offline: %w", ports.ErrLedgerTransport)
	}

	prev := ""
	if n := len(m.entries); n > 0 {
		prev = m.entries[n-1].TxRef
	}
	e := Entry{
		Index:       uint64(len(m.entries)),
		PrevHash:    prev,
		PayloadHash: Digest(payload),
		SubmittedAt: m.now().UTC(),
	}
	e.TxRef = blockHash(e)

	m.byRef[e.TxRef] = len(m.entries)
	m.entries = append(m.entries, e)
	return e.TxRef, nil
}

func (m *Memory) Status(ctx context.Context, txRef string) (domain.LedgerTxStatus, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.unavailable {
		return "", fmt.Errorf("memory ledger offline: %w", ports.ErrLedgerTransport)
	}
	i, ok := m.byRef[txRef]
	if !ok {
		return "", apperror.ErrNotFound("ledger transaction", txRef)
	}
	e := m.entries[i]
	switch {
	case e.Failed:
		return domain.LedgerTxFailed, nil
	case m.now().Sub(e.SubmittedAt) >= m.finality:
		return domain.LedgerTxConfirmed, nil
	}
	return domain.LedgerTxPending, nil
}

// Len returns the number of blocks.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Verify walks the chain and checks every link and block hash.
func (m *Memory) Verify() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	prev := ""
	for i, e := range m.entries {
		if e.PrevHash != prev {
			return fmt.Errorf("block %d: previous hash mismatch", i)
		}
		if blockHash(e) != e.TxRef {
			return fmt.Errorf("block %d: hash mismatch", i)
		}
		prev = e.TxRef
	}
	return nil
}

// Ping implements ports.HealthChecker.
func (m *Memory) Ping(_ context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.unavailable {
		return fmt.Errorf("memory ledger offline: %w", ports.ErrLedgerTransport)
	}
	return nil
}

func (m *Memory) Name() string { return "ledger" }

// Digest returns the 0x-prefixed keccak-256 hash of b.
func Digest(b []byte) string {
	h := sha3.NewLegacyKeccak256()
	h.Write(b)
	return "0x" + hex.EncodeToString(h.Sum(nil))
}

func blockHash(e Entry) string {
	h := sha3.NewLegacyKeccak256()
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], e.Index)
	binary.BigEndian.PutUint64(buf[8:], uint64(e.SubmittedAt.UnixNano()))
	h.Write(buf[:])
	h.Write([]byte(e.PrevHash))
	h.Write([]byte(e.PayloadHash))
	return "0x" + hex.EncodeToString(h.Sum(nil))
}
