package currency

import (
	"math/big"
	"testing"

	"github.com/Layr-Labs/signcheck-go/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_GetCryptoCurrencyByID(t *testing.T) {
	t.Run("Should return ethereum", func(t *testing.T) {
		c, err := GetCryptoCurrencyByID("ethereum")
		require.NoError(t, err)
		assert.Equal(t, "ETH", c.Ticker)
		assert.Equal(t, config.ChainId_EthereumMainnet, c.ChainID)
		assert.Equal(t, "ETH", c.DefaultUnit().Code)
	})

	t.Run("Should return a copy", func(t *testing.T) {
		c, err := GetCryptoCurrencyByID("ethereum")
		require.NoError(t, err)
		c.Units[0].Code = "XXX"

		again, err := GetCryptoCurrencyByID("ethereum")
		require.NoError(t, err)
		assert.Equal(t, "ETH", again.DefaultUnit().Code)
	})

	t.Run("Should fail for an unknown id", func(t *testing.T) {
		_, err := GetCryptoCurrencyByID("dogecoin")
		require.Error(t, err)
	})

	t.Run("Should honor the supported set", func(t *testing.T) {
		require.NoError(t, SetSupportedCurrencies("ethereum"))
		defer func() { require.NoError(t, SetSupportedCurrencies()) }()

		_, err := GetCryptoCurrencyByID("ethereum")
		require.NoError(t, err)
		_, err = GetCryptoCurrencyByID("ethereum_sepolia")
		require.Error(t, err)
	})

	t.Run("Should reject unknown ids in the supported set", func(t *testing.T) {
		require.Error(t, SetSupportedCurrencies("nope"))
	})
}

func Test_FindCryptoCurrencyByChainID(t *testing.T) {
	c, err := FindCryptoCurrencyByChainID(config.ChainId_EthereumAnvil)
	require.NoError(t, err)
	assert.Equal(t, "devnet", c.ID)

	_, err = FindCryptoCurrencyByChainID(8453)
	require.Error(t, err)
}

func Test_FormatAndParseCurrencyUnit(t *testing.T) {
	c, err := GetCryptoCurrencyByID("ethereum")
	require.NoError(t, err)
	unit := c.DefaultUnit()

	oneAndAHalf, ok := new(big.Int).SetString("1500000000000000000", 10)
	require.True(t, ok)

	assert.Equal(t, "1.5", FormatCurrencyUnit(unit, oneAndAHalf, FormatOptions{}))
	assert.Equal(t, "1.5 ETH", FormatCurrencyUnit(unit, oneAndAHalf, FormatOptions{ShowCode: true}))
	assert.Equal(t, "0", FormatCurrencyUnit(unit, nil, FormatOptions{}))

	small, ok := new(big.Int).SetString("1234567890000000000", 10)
	require.True(t, ok)
	assert.Equal(t, "1.2345", FormatCurrencyUnit(unit, small, FormatOptions{MaxDecimals: 4}))

	parsed, err := ParseCurrencyUnit(unit, "1.5")
	require.NoError(t, err)
	assert.Equal(t, 0, parsed.Cmp(oneAndAHalf))

	_, err = ParseCurrencyUnit(c.Units[2], "0.5")
	require.Error(t, err, "wei has no decimals")

	_, err = ParseCurrencyUnit(unit, "abc")
	require.Error(t, err)
}
