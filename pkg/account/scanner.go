package account

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/Layr-Labs/signcheck-go/pkg/config"
	"github.com/Layr-Labs/signcheck-go/pkg/currency"
	"github.com/ethereum/go-ethereum/accounts"
	"go.uber.org/zap"
)

var ErrNoAccount = errors.New("no account with a positive balance found")

type ScanEventType string

const ScanEventDiscovered ScanEventType = "discovered"

type ScanEvent struct {
	Type    ScanEventType
	Account Account
	Err     error
}

type Scanner struct {
	chain   ChainReader
	deriver AddressDeriver
	limit   int
	logger  *zap.Logger
}

func NewScanner(chain ChainReader, deriver AddressDeriver, limit int, l *zap.Logger) *Scanner {
	if limit < 1 {
		limit = config.DefaultScanLimit
	}
	return &Scanner{chain: chain, deriver: deriver, limit: limit, logger: l}
}

// ScanAccounts walks each derivation mode and emits every account it looks at.
// A mode stops after its first unused account, which is still emitted, or after
// the scan limit. The channel is closed when scanning ends; a failure is sent as
// a final event carrying Err.
func (s *Scanner) ScanAccounts(ctx context.Context, cur *currency.CryptoCurrency, modes []DerivationMode) <-chan ScanEvent {
	events := make(chan ScanEvent)

	go func() {
		defer close(events)

		send := func(ev ScanEvent) bool {
			select {
			case events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		chainID, err := s.chain.ChainID(ctx)
		if err != nil {
			send(ScanEvent{Err: fmt.Errorf("failed to get chain id: %w", err)})
			return
		}
		if chainID.Cmp(new(big.Int).SetUint64(uint64(cur.ChainID))) != 0 {
			send(ScanEvent{Err: fmt.Errorf("rpc chain id %s does not match currency %s (chain id %d)", chainID, cur.ID, cur.ChainID)})
			return
		}

		blockHeight, err := s.chain.BlockNumber(ctx)
		if err != nil {
			send(ScanEvent{Err: fmt.Errorf("failed to get block number: %w", err)})
			return
		}

		for _, mode := range modes {
			next := mode.Iterator()
			for index := 0; index < s.limit; index++ {
				if ctx.Err() != nil {
					return
				}
				acc, err := s.readAccount(ctx, cur, mode, index, next(), blockHeight)
				if err != nil {
					send(ScanEvent{Err: err})
					return
				}
				s.logger.Sugar().Debugw("Discovered account",
					"mode", mode.String(),
					"index", index,
					"address", acc.FreshAddress.Hex(),
					"balance", acc.Balance.String(),
				)
				if !send(ScanEvent{Type: ScanEventDiscovered, Account: acc}) {
					return
				}
				if acc.IsEmpty() {
					break
				}
			}
		}
	}()

	return events
}

func (s *Scanner) readAccount(ctx context.Context, cur *currency.CryptoCurrency, mode DerivationMode, index int, path accounts.DerivationPath, blockHeight uint64) (Account, error) {
	address, err := s.deriver.DeriveAddress(ctx, path)
	if err != nil {
		return Account{}, fmt.Errorf("failed to derive address at index %d (%s): %w", index, mode, err)
	}
	balance, err := s.chain.BalanceAt(ctx, address, nil)
	if err != nil {
		return Account{}, fmt.Errorf("failed to get balance of %s: %w", address.Hex(), err)
	}
	nonce, err := s.chain.NonceAt(ctx, address, nil)
	if err != nil {
		return Account{}, fmt.Errorf("failed to get nonce of %s: %w", address.Hex(), err)
	}

	return Account{
		ID:               AccountID(cur.ID, address, mode),
		CurrencyID:       cur.ID,
		DerivationMode:   mode,
		Index:            index,
		FreshAddress:     address,
		FreshAddressPath: path.String(),
		Balance:          balance,
		OperationsCount:  nonce,
		BlockHeight:      blockHeight,
		ChainID:          cur.ChainID,
	}, nil
}

// FirstNonEmpty scans modes and returns the first discovered account with a
// positive balance. The scan is cancelled once it returns and the producer has
// exited, so no device or rpc calls outlive it.
func (s *Scanner) FirstNonEmpty(ctx context.Context, cur *currency.CryptoCurrency, modes []DerivationMode) (Account, error) {
	scanCtx, cancel := context.WithCancel(ctx)
	events := s.ScanAccounts(scanCtx, cur, modes)
	defer func() {
		cancel()
		for range events {
		}
	}()

	return firstNonEmpty(ctx, events)
}

func firstNonEmpty(ctx context.Context, events <-chan ScanEvent) (Account, error) {
	for {
		select {
		case <-ctx.Done():
			return Account{}, ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return Account{}, ErrNoAccount
			}
			if ev.Err != nil {
				return Account{}, ev.Err
			}
			if ev.Type == ScanEventDiscovered && ev.Account.HasBalance() {
				return ev.Account, nil
			}
		}
	}
}
