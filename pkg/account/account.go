package account

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/Layr-Labs/signcheck-go/pkg/config"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
)

type DerivationMode string

const (
	// DerivationModeLedgerLive walks the account level: m/44'/60'/N'/0/0
	DerivationModeLedgerLive DerivationMode = ""
	// DerivationModeLegacy is the old Ledger Chrome app layout: m/44'/60'/0'/N
	DerivationModeLegacy DerivationMode = "legacy"
	// DerivationModeBIP44 walks the address index: m/44'/60'/0'/0/N
	DerivationModeBIP44 DerivationMode = "bip44"
)

// ParseDerivationMode accepts the stored form and the "ledgerlive" display name
func ParseDerivationMode(s string) (DerivationMode, error) {
	if s == "ledgerlive" {
		return DerivationModeLedgerLive, nil
	}
	switch m := DerivationMode(s); m {
	case DerivationModeLedgerLive, DerivationModeLegacy, DerivationModeBIP44:
		return m, nil
	}
	return "", fmt.Errorf("unknown derivation mode %q", s)
}

func (m DerivationMode) String() string {
	if m == DerivationModeLedgerLive {
		return "ledgerlive"
	}
	return string(m)
}

// Iterator returns a fresh path iterator for the mode, starting at index 0
func (m DerivationMode) Iterator() func() accounts.DerivationPath {
	switch m {
	case DerivationModeLegacy:
		return accounts.DefaultIterator(accounts.LegacyLedgerBaseDerivationPath)
	case DerivationModeBIP44:
		return accounts.DefaultIterator(accounts.DefaultBaseDerivationPath)
	default:
		return accounts.LedgerLiveIterator(accounts.DefaultBaseDerivationPath)
	}
}

// PathForIndex returns the index-th path of the mode
func (m DerivationMode) PathForIndex(index int) accounts.DerivationPath {
	next := m.Iterator()
	path := next()
	for i := 0; i < index; i++ {
		path = next()
	}
	return path
}

// Account is treated as an immutable value; updates return modified copies
type Account struct {
	ID               string         `json:"id"`
	CurrencyID       string         `json:"currencyId"`
	DerivationMode   DerivationMode `json:"derivationMode"`
	Index            int            `json:"index"`
	FreshAddress     common.Address `json:"freshAddress"`
	FreshAddressPath string         `json:"freshAddressPath"`
	Balance          *big.Int       `json:"balance"`
	OperationsCount  uint64         `json:"operationsCount"`
	BlockHeight      uint64         `json:"blockHeight"`
	LastSyncDate     time.Time      `json:"lastSyncDate"`
	ChainID          config.ChainId `json:"chainId"`
}

func AccountID(currencyID string, address common.Address, mode DerivationMode) string {
	return fmt.Sprintf("js:2:%s:%s:%s", currencyID, address.Hex(), mode)
}

func (a Account) Path() (accounts.DerivationPath, error) {
	return accounts.ParseDerivationPath(a.FreshAddressPath)
}

// IsEmpty reports whether the account has never been used on chain
func (a Account) IsEmpty() bool {
	return (a.Balance == nil || a.Balance.Sign() == 0) && a.OperationsCount == 0
}

func (a Account) HasBalance() bool {
	return a.Balance != nil && a.Balance.Sign() > 0
}

// Copy returns a copy that shares no mutable state with a
func (a Account) Copy() Account {
	if a.Balance != nil {
		a.Balance = new(big.Int).Set(a.Balance)
	}
	return a
}

// Update is one incremental change produced by a sync
type Update func(Account) Account

// ChainReader is the subset of *ethclient.Client used for discovery and sync
type ChainReader interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
	BlockNumber(ctx context.Context) (uint64, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

// AddressDeriver resolves a derivation path to an address, usually on a device
type AddressDeriver interface {
	DeriveAddress(ctx context.Context, path accounts.DerivationPath) (common.Address, error)
}
