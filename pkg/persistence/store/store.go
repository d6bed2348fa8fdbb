// Package store builds the configured IAccountStore backend
package store

import (
	"fmt"

	"github.com/Layr-Labs/signcheck-go/pkg/config"
	"github.com/Layr-Labs/signcheck-go/pkg/persistence"
	"github.com/Layr-Labs/signcheck-go/pkg/persistence/badger"
	"github.com/Layr-Labs/signcheck-go/pkg/persistence/memory"
	"github.com/Layr-Labs/signcheck-go/pkg/persistence/redis"
	"go.uber.org/zap"
)

func NewStore(cfg *config.PersistenceConfig, l *zap.Logger) (persistence.IAccountStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("persistence config cannot be nil")
	}

	switch cfg.Type {
	case config.PersistenceTypeMemory:
		return memory.NewMemoryPersistence(l), nil
	case config.PersistenceTypeBadger, "":
		dataPath := cfg.DataPath
		if dataPath == "" {
			dataPath = config.DefaultDataPath
		}
		return badger.NewBadgerPersistence(dataPath, l)
	case config.PersistenceTypeRedis:
		return redis.NewRedisPersistence(&redis.RedisConfig{
			Address:   cfg.RedisAddress,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			KeyPrefix: cfg.RedisKeyPrefix,
		}, l)
	default:
		return nil, fmt.Errorf("unsupported persistence type: %s", cfg.Type)
	}
}
