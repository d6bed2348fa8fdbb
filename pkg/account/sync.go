package account

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"
)

type SyncEvent struct {
	Update Update
	Err    error
}

type Syncer struct {
	chain  ChainReader
	logger *zap.Logger
	now    func() time.Time
}

func NewSyncer(chain ChainReader, l *zap.Logger) *Syncer {
	return &Syncer{chain: chain, logger: l, now: time.Now}
}

// Sync reads the latest chain state for acc and emits it as a sequence of updates
func (s *Syncer) Sync(ctx context.Context, acc Account) <-chan SyncEvent {
	events := make(chan SyncEvent)

	go func() {
		defer close(events)

		send := func(ev SyncEvent) bool {
			select {
			case events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		blockHeight, err := s.chain.BlockNumber(ctx)
		if err != nil {
			send(SyncEvent{Err: fmt.Errorf("failed to get block number: %w", err)})
			return
		}
		if !send(SyncEvent{Update: func(a Account) Account {
			a.BlockHeight = blockHeight
			return a
		}}) {
			return
		}

		block := new(big.Int).SetUint64(blockHeight)
		balance, err := s.chain.BalanceAt(ctx, acc.FreshAddress, block)
		if err != nil {
			send(SyncEvent{Err: fmt.Errorf("failed to get balance of %s: %w", acc.FreshAddress.Hex(), err)})
			return
		}
		if !send(SyncEvent{Update: func(a Account) Account {
			a.Balance = new(big.Int).Set(balance)
			return a
		}}) {
			return
		}

		nonce, err := s.chain.NonceAt(ctx, acc.FreshAddress, block)
		if err != nil {
			send(SyncEvent{Err: fmt.Errorf("failed to get nonce of %s: %w", acc.FreshAddress.Hex(), err)})
			return
		}
		if !send(SyncEvent{Update: func(a Account) Account {
			a.OperationsCount = nonce
			return a
		}}) {
			return
		}

		syncedAt := s.now().UTC()
		s.logger.Sugar().Debugw("Synced account",
			"account", acc.ID,
			"blockHeight", blockHeight,
			"balance", balance.String(),
			"operationsCount", nonce,
		)
		send(SyncEvent{Update: func(a Account) Account {
			a.LastSyncDate = syncedAt
			return a
		}})
	}()

	return events
}

// Reduce applies updates in arrival order, starting from acc
func Reduce(ctx context.Context, acc Account, events <-chan SyncEvent) (Account, error) {
	current := acc.Copy()
	for {
		select {
		case <-ctx.Done():
			return Account{}, ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return current, nil
			}
			if ev.Err != nil {
				go func() {
					for range events {
					}
				}()
				return Account{}, ev.Err
			}
			current = ev.Update(current.Copy())
		}
	}
}
