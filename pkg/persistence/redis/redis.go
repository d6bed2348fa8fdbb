package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Layr-Labs/signcheck-go/pkg/account"
	"github.com/Layr-Labs/signcheck-go/pkg/persistence"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	keyPrefixAccount      = "signcheck:account:"
	keyPrefixVerification = "signcheck:verification:"
	keySchemaVersion      = "signcheck:metadata:schema_version"
	currentSchemaVersion  = "v1"

	// Redis has no prefix iteration, listings go through these index sets
	keySetAccounts         = "signcheck:accounts:index"
	keySetVerifications    = "signcheck:verifications:index"
	keySetRunVerifications = "signcheck:verifications:run:"

	connectTimeout   = 5 * time.Second
	operationTimeout = 10 * time.Second
)

// RedisPersistence stores accounts and verification records in Redis
type RedisPersistence struct {
	client    *redis.Client
	logger    *zap.Logger
	keyPrefix string
	mu        sync.RWMutex
	closed    bool
}

type RedisConfig struct {
	// Address is host:port
	Address  string
	Password string
	// DB is the Redis database number (0-15)
	DB int
	// KeyPrefix is prepended to every key, e.g. "ci:" yields "ci:signcheck:account:..."
	KeyPrefix string
}

// NewRedisPersistence connects, pings the server and checks the schema version
func NewRedisPersistence(cfg *RedisConfig, logger *zap.Logger) (*RedisPersistence, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	rp := &RedisPersistence{
		client:    client,
		logger:    logger,
		keyPrefix: cfg.KeyPrefix,
	}

	if err := rp.initSchema(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Sugar().Infow("Redis persistence initialized",
		"address", cfg.Address,
		"db", cfg.DB,
		"keyPrefix", cfg.KeyPrefix,
	)

	return rp, nil
}

func (r *RedisPersistence) prefixKey(key string) string {
	if r.keyPrefix == "" {
		return key
	}
	return r.keyPrefix + key
}

func (r *RedisPersistence) initSchema(ctx context.Context) error {
	schemaKey := r.prefixKey(keySchemaVersion)

	existing, err := r.client.Get(ctx, schemaKey).Result()
	if errors.Is(err, redis.Nil) {
		return r.client.Set(ctx, schemaKey, currentSchemaVersion, 0).Err()
	}
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if existing != currentSchemaVersion {
		return fmt.Errorf("unsupported schema version: %s (expected: %s)", existing, currentSchemaVersion)
	}
	return nil
}

func (r *RedisPersistence) SaveAccount(acc *account.Account) error {
	if acc == nil {
		return fmt.Errorf("cannot save nil Account")
	}
	if acc.ID == "" {
		return fmt.Errorf("cannot save Account without id")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return persistence.ErrClosed
	}

	data, err := persistence.MarshalAccount(acc)
	if err != nil {
		return fmt.Errorf("failed to marshal Account: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.prefixKey(keyPrefixAccount+acc.ID), data, 0)
	pipe.SAdd(ctx, r.prefixKey(keySetAccounts), acc.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save Account: %w", err)
	}
	return nil
}

func (r *RedisPersistence) LoadAccount(id string) (*account.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, persistence.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	data, err := r.client.Get(ctx, r.prefixKey(keyPrefixAccount+id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load Account: %w", err)
	}
	return persistence.UnmarshalAccount(data)
}

func (r *RedisPersistence) ListAccounts() ([]*account.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, persistence.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	accs := make([]*account.Account, 0)
	err := r.fetchIndexed(ctx, r.prefixKey(keySetAccounts), r.prefixKey(keyPrefixAccount), func(key string, data []byte) {
		acc, err := persistence.UnmarshalAccount(data)
		if err != nil {
			r.logger.Sugar().Warnw("Failed to unmarshal Account, skipping", "key", key, "error", err)
			return
		}
		accs = append(accs, acc)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list Accounts: %w", err)
	}

	sort.Slice(accs, func(i, j int) bool {
		return accs[i].ID < accs[j].ID
	})
	return accs, nil
}

func (r *RedisPersistence) DeleteAccount(id string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return persistence.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.prefixKey(keyPrefixAccount+id))
	pipe.SRem(ctx, r.prefixKey(keySetAccounts), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete Account: %w", err)
	}
	return nil
}

func (r *RedisPersistence) SaveVerification(record *persistence.VerificationRecord) error {
	if record == nil {
		return fmt.Errorf("cannot save nil VerificationRecord")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return persistence.ErrClosed
	}

	data, err := persistence.MarshalVerificationRecord(record)
	if err != nil {
		return fmt.Errorf("failed to marshal VerificationRecord: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	member := record.Key()
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.prefixKey(keyPrefixVerification+member), data, 0)
	pipe.SAdd(ctx, r.prefixKey(keySetVerifications), member)
	pipe.SAdd(ctx, r.prefixKey(keySetRunVerifications+record.RunID), member)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save VerificationRecord: %w", err)
	}
	return nil
}

func (r *RedisPersistence) ListVerifications(runID string) ([]*persistence.VerificationRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, persistence.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	indexKey := r.prefixKey(keySetVerifications)
	if runID != "" {
		indexKey = r.prefixKey(keySetRunVerifications + runID)
	}

	records := make([]*persistence.VerificationRecord, 0)
	err := r.fetchIndexed(ctx, indexKey, r.prefixKey(keyPrefixVerification), func(key string, data []byte) {
		record, err := persistence.UnmarshalVerificationRecord(data)
		if err != nil {
			r.logger.Sugar().Warnw("Failed to unmarshal VerificationRecord, skipping", "key", key, "error", err)
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

// fetchIndexed loads every value named by the index set with a single MGET.
// Members whose value has disappeared are pruned from the index.
func (r *RedisPersistence) fetchIndexed(ctx context.Context, indexKey, valuePrefix string, fn func(key string, data []byte)) error {
	members, err := r.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return fmt.Errorf("failed to read index %s: %w", indexKey, err)
	}
	if len(members) == 0 {
		return nil
	}

	keys := make([]string, len(members))
	for i, m := range members {
		keys[i] = valuePrefix + m
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return fmt.Errorf("failed to fetch values: %w", err)
	}

	for i, val := range values {
		if val == nil {
			r.client.SRem(ctx, indexKey, members[i])
			continue
		}
		data, ok := val.(string)
		if !ok {
			r.logger.Sugar().Warnw("Unexpected value type", "key", keys[i])
			continue
		}
		fn(keys[i], []byte(data))
	}
	return nil
}

// Close is idempotent
func (r *RedisPersistence) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	if err := r.client.Close(); err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}

	r.logger.Sugar().Info("Redis persistence closed")
	return nil
}

func (r *RedisPersistence) HealthCheck() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return persistence.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}

	exists, err := r.client.Exists(ctx, r.prefixKey(keySchemaVersion)).Result()
	if err != nil {
		return fmt.Errorf("failed to check schema version: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("schema version not found, database may be corrupted")
	}
	return nil
}
