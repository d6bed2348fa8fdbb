package memory

import (
	"fmt"
	"sort"
	"sync"

	"github.com/Layr-Labs/signcheck-go/pkg/account"
	"github.com/Layr-Labs/signcheck-go/pkg/persistence"
	"go.uber.org/zap"
)

// MemoryPersistence keeps everything in process memory. Nothing survives a restart.
//
// Values are copied on the way in and out so callers cannot mutate stored state.
type MemoryPersistence struct {
	mu sync.RWMutex

	accounts      map[string]*account.Account
	verifications map[string]*persistence.VerificationRecord

	closed bool
}

// NewMemoryPersistence creates an empty in-memory store
func NewMemoryPersistence(l *zap.Logger) *MemoryPersistence {
	l.Sugar().Warnw("Using in-memory persistence, accounts and verification history are lost on exit")

	return &MemoryPersistence{
		accounts:      make(map[string]*account.Account),
		verifications: make(map[string]*persistence.VerificationRecord),
	}
}

func (m *MemoryPersistence) SaveAccount(acc *account.Account) error {
	if acc == nil {
		return fmt.Errorf("cannot save nil Account")
	}
	if acc.ID == "" {
		return fmt.Errorf("cannot save Account without id")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return persistence.ErrClosed
	}

	cp := acc.Copy()
	m.accounts[acc.ID] = &cp
	return nil
}

func (m *MemoryPersistence) LoadAccount(id string) (*account.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, persistence.ErrClosed
	}

	acc, ok := m.accounts[id]
	if !ok {
		return nil, nil
	}
	cp := acc.Copy()
	return &cp, nil
}

func (m *MemoryPersistence) ListAccounts() ([]*account.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, persistence.ErrClosed
	}

	accs := make([]*account.Account, 0, len(m.accounts))
	for _, acc := range m.accounts {
		cp := acc.Copy()
		accs = append(accs, &cp)
	}
	sort.Slice(accs, func(i, j int) bool {
		return accs[i].ID < accs[j].ID
	})
	return accs, nil
}

func (m *MemoryPersistence) DeleteAccount(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return persistence.ErrClosed
	}

	delete(m.accounts, id)
	return nil
}

func (m *MemoryPersistence) SaveVerification(record *persistence.VerificationRecord) error {
	if record == nil {
		return fmt.Errorf("cannot save nil VerificationRecord")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return persistence.ErrClosed
	}

	cp := *record
	m.verifications[record.Key()] = &cp
	return nil
}

func (m *MemoryPersistence) ListVerifications(runID string) ([]*persistence.VerificationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, persistence.ErrClosed
	}

	records := make([]*persistence.VerificationRecord, 0)
	for _, r := range m.verifications {
		if runID != "" && r.RunID != runID {
			continue
		}
		cp := *r
		records = append(records, &cp)
	}
	persistence.SortVerifications(records)
	return records, nil
}

// Close is idempotent
func (m *MemoryPersistence) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}

func (m *MemoryPersistence) HealthCheck() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return persistence.ErrClosed
	}
	return nil
}
