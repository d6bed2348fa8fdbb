package badger

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/Layr-Labs/signcheck-go/pkg/account"
	"github.com/Layr-Labs/signcheck-go/pkg/persistence"
	badgerdb "github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"
)

const (
	keyPrefixAccount      = "account:"
	keyPrefixVerification = "verification:"
	keySchemaVersion      = "metadata:schema_version"
	currentSchemaVersion  = "v1"

	gcInterval     = 5 * time.Minute
	gcDiscardRatio = 0.5
)

// BadgerPersistence stores accounts and verification records in an embedded Badger database
type BadgerPersistence struct {
	db       *badgerdb.DB
	logger   *zap.Logger
	gcCancel context.CancelFunc
	gcWg     sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
}

// NewBadgerPersistence opens (or creates) the database at dataPath with synchronous
// writes and starts the value log GC loop.
func NewBadgerPersistence(dataPath string, logger *zap.Logger) (*BadgerPersistence, error) {
	absPath, err := filepath.Abs(dataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	opts := badgerdb.DefaultOptions(absPath)
	opts.Logger = &badgerLoggerAdapter{logger: logger}
	opts.SyncWrites = true
	opts.CompactL0OnClose = true
	opts.NumVersionsToKeep = 1

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database at %s: %w", absPath, err)
	}

	bp := &BadgerPersistence{
		db:     db,
		logger: logger,
	}

	if err := bp.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	bp.gcCancel = cancel
	bp.gcWg.Add(1)
	go bp.runGC(ctx)

	logger.Sugar().Infow("Badger persistence initialized", "path", absPath)

	return bp, nil
}

func (b *BadgerPersistence) initSchema() error {
	return b.db.Update(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(keySchemaVersion))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return txn.Set([]byte(keySchemaVersion), []byte(currentSchemaVersion))
		}
		if err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}

		existing, err := item.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("failed to read schema version value: %w", err)
		}
		if string(existing) != currentSchemaVersion {
			return fmt.Errorf("unsupported schema version: %s (expected: %s)", existing, currentSchemaVersion)
		}
		return nil
	})
}

func (b *BadgerPersistence) runGC(ctx context.Context) {
	defer b.gcWg.Done()

	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			err := b.db.RunValueLogGC(gcDiscardRatio)
			if err != nil && !errors.Is(err, badgerdb.ErrNoRewrite) {
				b.logger.Sugar().Warnw("Badger GC error", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (b *BadgerPersistence) set(key string, value []byte) error {
	return b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

// get returns nil when the key does not exist
func (b *BadgerPersistence) get(key string) ([]byte, error) {
	var data []byte
	err := b.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	return data, err
}

// scan calls fn with a copy of every value stored under prefix, in key order
func (b *BadgerPersistence) scan(prefix string, fn func(key string, value []byte)) error {
	return b.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("failed to read value: %w", err)
			}
			fn(string(item.KeyCopy(nil)), value)
		}
		return nil
	})
}

func (b *BadgerPersistence) SaveAccount(acc *account.Account) error {
	if acc == nil {
		return fmt.Errorf("cannot save nil Account")
	}
	if acc.ID == "" {
		return fmt.Errorf("cannot save Account without id")
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return persistence.ErrClosed
	}

	data, err := persistence.MarshalAccount(acc)
	if err != nil {
		return fmt.Errorf("failed to marshal Account: %w", err)
	}
	return b.set(keyPrefixAccount+acc.ID, data)
}

func (b *BadgerPersistence) LoadAccount(id string) (*account.Account, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, persistence.ErrClosed
	}

	data, err := b.get(keyPrefixAccount + id)
	if err != nil {
		return nil, fmt.Errorf("failed to load Account: %w", err)
	}
	if data == nil {
		return nil, nil
	}
	return persistence.UnmarshalAccount(data)
}

func (b *BadgerPersistence) ListAccounts() ([]*account.Account, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, persistence.ErrClosed
	}

	accs := make([]*account.Account, 0)
	err := b.scan(keyPrefixAccount, func(key string, value []byte) {
		acc, err := persistence.UnmarshalAccount(value)
		if err != nil {
			b.logger.Sugar().Warnw("Failed to unmarshal Account, skipping", "key", key, "error", err)
			return
		}
		accs = append(accs, acc)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list Accounts: %w", err)
	}
	return accs, nil
}

func (b *BadgerPersistence) DeleteAccount(id string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return persistence.ErrClosed
	}

	return b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete([]byte(keyPrefixAccount + id))
	})
}

func (b *BadgerPersistence) SaveVerification(record *persistence.VerificationRecord) error {
	if record == nil {
		return fmt.Errorf("cannot save nil VerificationRecord")
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return persistence.ErrClosed
	}

	data, err := persistence.MarshalVerificationRecord(record)
	if err != nil {
		return fmt.Errorf("failed to marshal VerificationRecord: %w", err)
	}
	return b.set(keyPrefixVerification+record.Key(), data)
}

func (b *BadgerPersistence) ListVerifications(runID string) ([]*persistence.VerificationRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, persistence.ErrClosed
	}

	prefix := keyPrefixVerification
	if runID != "" {
		prefix += runID + ":"
	}

	records := make([]*persistence.VerificationRecord, 0)
	err := b.scan(prefix, func(key string, value []byte) {
		record, err := persistence.UnmarshalVerificationRecord(value)
		if err != nil {
			b.logger.Sugar().Warnw("Failed to unmarshal VerificationRecord, skipping", "key", key, "error", err)
			return
		}
		records = append(records, record)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list VerificationRecords: %w", err)
	}

	persistence.SortVerifications(records)
	return records, nil
}

// Close stops the GC loop and closes the database. Calling it twice is a no-op.
func (b *BadgerPersistence) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	if b.gcCancel != nil {
		b.gcCancel()
	}
	b.gcWg.Wait()

	if err := b.db.Close(); err != nil {
		return fmt.Errorf("failed to close badger database: %w", err)
	}

	b.logger.Sugar().Info("Badger persistence closed")
	return nil
}

func (b *BadgerPersistence) HealthCheck() error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return persistence.ErrClosed
	}

	return b.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get([]byte(keySchemaVersion))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return fmt.Errorf("schema version not found, database may be corrupted")
		}
		return err
	})
}
