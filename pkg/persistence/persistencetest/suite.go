// Package persistencetest holds the behaviour every IAccountStore backend must share
package persistencetest

import (
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/Layr-Labs/signcheck-go/pkg/account"
	"github.com/Layr-Labs/signcheck-go/pkg/config"
	"github.com/Layr-Labs/signcheck-go/pkg/message"
	"github.com/Layr-Labs/signcheck-go/pkg/persistence"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// NewAccount returns a synced-looking account with a random address
func NewAccount(index int) *account.Account {
	id := uuid.New()
	addr := common.BytesToAddress(id[:])
	balance, _ := new(big.Int).SetString("123456789012345678901234567890", 10)
	acc := account.Account{
		CurrencyID:       "ethereum",
		DerivationMode:   account.DerivationModeLedgerLive,
		Index:            index,
		FreshAddress:     addr,
		FreshAddressPath: account.DerivationModeLedgerLive.PathForIndex(index).String(),
		Balance:          balance,
		OperationsCount:  7,
		BlockHeight:      19_000_000,
		LastSyncDate:     time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		ChainID:          config.ChainId_EthereumMainnet,
	}
	acc.ID = account.AccountID(acc.CurrencyID, acc.FreshAddress, acc.DerivationMode)
	return &acc
}

// NewRecord returns a verification record for runID stamped at ts
func NewRecord(runID string, kind message.Kind, ts time.Time) *persistence.VerificationRecord {
	return &persistence.VerificationRecord{
		ID:          uuid.NewString(),
		RunID:       runID,
		AccountID:   "js:2:ethereum:0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266:",
		Kind:        kind,
		MessageHash: common.HexToHash("0x50b2c43fd39106bafbba0da34fc430e1f91e3c96ea2acee2bc34119f92b37750"),
		Signature:   "0x" + common.Bytes2Hex(make([]byte, 65)),
		Address:     common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"),
		ChainID:     config.ChainId_EthereumMainnet,
		Valid:       true,
		Method:      "ecrecover",
		Timestamp:   ts.UTC(),
	}
}

// RunStoreSuite exercises a backend. newStore must return an empty store.
func RunStoreSuite(t *testing.T, newStore func(t *testing.T) persistence.IAccountStore) {
	t.Run("Should save and load an account", func(t *testing.T) {
		s := newStore(t)
		defer func() { _ = s.Close() }()

		acc := NewAccount(0)
		require.NoError(t, s.SaveAccount(acc))

		loaded, err := s.LoadAccount(acc.ID)
		require.NoError(t, err)
		require.NotNil(t, loaded)
		assert.Equal(t, acc.ID, loaded.ID)
		assert.Equal(t, acc.FreshAddress, loaded.FreshAddress)
		assert.Equal(t, acc.FreshAddressPath, loaded.FreshAddressPath)
		assert.Equal(t, 0, acc.Balance.Cmp(loaded.Balance))
		assert.Equal(t, acc.OperationsCount, loaded.OperationsCount)
		assert.True(t, acc.LastSyncDate.Equal(loaded.LastSyncDate))
		assert.Equal(t, acc.ChainID, loaded.ChainID)
	})

	t.Run("Should return nil for a missing account", func(t *testing.T) {
		s := newStore(t)
		defer func() { _ = s.Close() }()

		loaded, err := s.LoadAccount("js:2:ethereum:0xmissing:")
		require.NoError(t, err)
		assert.Nil(t, loaded)
	})

	t.Run("Should reject nil values", func(t *testing.T) {
		s := newStore(t)
		defer func() { _ = s.Close() }()

		require.Error(t, s.SaveAccount(nil))
		require.Error(t, s.SaveAccount(&account.Account{}))
		require.Error(t, s.SaveVerification(nil))
	})

	t.Run("Should not share balance with the caller", func(t *testing.T) {
		s := newStore(t)
		defer func() { _ = s.Close() }()

		acc := NewAccount(1)
		require.NoError(t, s.SaveAccount(acc))
		acc.Balance.SetInt64(1)

		loaded, err := s.LoadAccount(acc.ID)
		require.NoError(t, err)
		assert.NotEqual(t, int64(1), loaded.Balance.Int64())
	})

	t.Run("Should overwrite, list and delete accounts", func(t *testing.T) {
		s := newStore(t)
		defer func() { _ = s.Close() }()

		a, b := NewAccount(0), NewAccount(1)
		require.NoError(t, s.SaveAccount(a))
		require.NoError(t, s.SaveAccount(b))

		a.OperationsCount = 99
		require.NoError(t, s.SaveAccount(a))

		accs, err := s.ListAccounts()
		require.NoError(t, err)
		require.Len(t, accs, 2)
		assert.True(t, accs[0].ID < accs[1].ID)
		for _, acc := range accs {
			if acc.ID == a.ID {
				assert.Equal(t, uint64(99), acc.OperationsCount)
			}
		}

		require.NoError(t, s.DeleteAccount(a.ID))
		require.NoError(t, s.DeleteAccount(a.ID))

		accs, err = s.ListAccounts()
		require.NoError(t, err)
		require.Len(t, accs, 1)
		assert.Equal(t, b.ID, accs[0].ID)
	})

	t.Run("Should list verifications by run in timestamp order", func(t *testing.T) {
		s := newStore(t)
		defer func() { _ = s.Close() }()

		runA, runB := uuid.NewString(), uuid.NewString()
		base := time.Now()
		second := NewRecord(runA, message.KindTypedData, base.Add(time.Second))
		first := NewRecord(runA, message.KindPersonal, base)
		other := NewRecord(runB, message.KindPersonal, base.Add(-time.Hour))
		other.Valid = false

		require.NoError(t, s.SaveVerification(second))
		require.NoError(t, s.SaveVerification(first))
		require.NoError(t, s.SaveVerification(other))

		records, err := s.ListVerifications(runA)
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, first.ID, records[0].ID)
		assert.Equal(t, message.KindPersonal, records[0].Kind)
		assert.Equal(t, second.ID, records[1].ID)
		assert.Equal(t, first.MessageHash, records[0].MessageHash)
		assert.Equal(t, first.Address, records[0].Address)

		all, err := s.ListVerifications("")
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, other.ID, all[0].ID)
		assert.False(t, all[0].Valid)

		none, err := s.ListVerifications(uuid.NewString())
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("Should handle concurrent writers", func(t *testing.T) {
		s := newStore(t)
		defer func() { _ = s.Close() }()

		runID := uuid.NewString()
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				assert.NoError(t, s.SaveVerification(NewRecord(runID, message.KindPersonal, time.Now().Add(time.Duration(i)*time.Millisecond))))
				assert.NoError(t, s.SaveAccount(NewAccount(i)))
			}(i)
		}
		wg.Wait()

		records, err := s.ListVerifications(runID)
		require.NoError(t, err)
		assert.Len(t, records, 10)
	})

	t.Run("Should refuse operations after close", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.HealthCheck())
		require.NoError(t, s.Close())
		require.NoError(t, s.Close())

		assert.ErrorIs(t, s.HealthCheck(), persistence.ErrClosed)
		assert.ErrorIs(t, s.SaveAccount(NewAccount(0)), persistence.ErrClosed)
		_, err := s.LoadAccount("x")
		assert.ErrorIs(t, err, persistence.ErrClosed)
		_, err = s.ListAccounts()
		assert.ErrorIs(t, err, persistence.ErrClosed)
		assert.ErrorIs(t, s.DeleteAccount("x"), persistence.ErrClosed)
		assert.ErrorIs(t, s.SaveVerification(NewRecord("r", message.KindPersonal, time.Now())), persistence.ErrClosed)
		_, err = s.ListVerifications("")
		assert.ErrorIs(t, err, persistence.ErrClosed)
	})
}

// UniqueKeyPrefix returns a per-test key prefix for shared backends
func UniqueKeyPrefix() string {
	return fmt.Sprintf("test-%s:", uuid.NewString()[:8])
}
