package persistence

import (
	"math/big"
	"testing"
	"time"

	"github.com/Layr-Labs/signcheck-go/pkg/account"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_AccountSerialization(t *testing.T) {
	t.Run("Should keep balances above 2^64 exact", func(t *testing.T) {
		balance, _ := new(big.Int).SetString("340282366920938463463374607431768211457", 10)
		acc := &account.Account{ID: "js:2:ethereum:0xabc:", Balance: balance, LastSyncDate: time.Unix(1700000000, 0).UTC()}

		data, err := MarshalAccount(acc)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"balance":"340282366920938463463374607431768211457"`)

		loaded, err := UnmarshalAccount(data)
		require.NoError(t, err)
		assert.Equal(t, 0, balance.Cmp(loaded.Balance))
		assert.Equal(t, acc.ID, loaded.ID)
	})

	t.Run("Should leave a missing balance nil", func(t *testing.T) {
		data, err := MarshalAccount(&account.Account{ID: "x"})
		require.NoError(t, err)

		loaded, err := UnmarshalAccount(data)
		require.NoError(t, err)
		assert.Nil(t, loaded.Balance)
	})

	t.Run("Should reject a non numeric balance", func(t *testing.T) {
		_, err := UnmarshalAccount([]byte(`{"id":"x","balance":"lots"}`))
		require.Error(t, err)
	})

	t.Run("Should reject nil", func(t *testing.T) {
		_, err := MarshalAccount(nil)
		require.Error(t, err)
		_, err = MarshalVerificationRecord(nil)
		require.Error(t, err)
	})
}

func Test_SortVerifications(t *testing.T) {
	now := time.Now()
	records := []*VerificationRecord{
		{ID: "c", Timestamp: now.Add(time.Second)},
		{ID: "b", Timestamp: now},
		{ID: "a", Timestamp: now},
	}
	SortVerifications(records)
	assert.Equal(t, "a", records[0].ID)
	assert.Equal(t, "b", records[1].ID)
	assert.Equal(t, "c", records[2].ID)
}
