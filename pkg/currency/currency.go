package currency

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/Layr-Labs/signcheck-go/pkg/config"
	"github.com/shopspring/decimal"
)

// Unit is a display unit of a currency. Magnitude is the power of ten
// between the unit and the smallest on-chain denomination.
type Unit struct {
	Name      string `json:"name"`
	Code      string `json:"code"`
	Magnitude int32  `json:"magnitude"`
}

type CryptoCurrency struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Ticker          string         `json:"ticker"`
	Units           []Unit         `json:"units"`
	ChainID         config.ChainId `json:"chainId"`
	DerivationModes []string       `json:"derivationModes"`
}

// DefaultUnit is the largest unit, the one balances are shown in
func (c *CryptoCurrency) DefaultUnit() Unit {
	return c.Units[0]
}

var etherUnits = []Unit{
	{Name: "ether", Code: "ETH", Magnitude: 18},
	{Name: "Gwei", Code: "Gwei", Magnitude: 9},
	{Name: "wei", Code: "wei", Magnitude: 0},
}

var ethereumDerivationModes = []string{"", "legacy", "bip44"}

var cryptoCurrencies = map[string]*CryptoCurrency{
	"ethereum": {
		ID:              "ethereum",
		Name:            "Ethereum",
		Ticker:          "ETH",
		Units:           etherUnits,
		ChainID:         config.ChainId_EthereumMainnet,
		DerivationModes: ethereumDerivationModes,
	},
	"ethereum_sepolia": {
		ID:              "ethereum_sepolia",
		Name:            "Ethereum Sepolia",
		Ticker:          "ETH",
		Units:           etherUnits,
		ChainID:         config.ChainId_EthereumSepolia,
		DerivationModes: ethereumDerivationModes,
	},
	"ethereum_holesky": {
		ID:              "ethereum_holesky",
		Name:            "Ethereum Holesky",
		Ticker:          "ETH",
		Units:           etherUnits,
		ChainID:         config.ChainId_EthereumHolesky,
		DerivationModes: ethereumDerivationModes,
	},
	"devnet": {
		ID:              "devnet",
		Name:            "Ethereum Devnet",
		Ticker:          "ETH",
		Units:           etherUnits,
		ChainID:         config.ChainId_EthereumAnvil,
		DerivationModes: ethereumDerivationModes,
	},
}

var (
	supportedMu sync.RWMutex
	supported   map[string]bool
)

// SetSupportedCurrencies restricts GetCryptoCurrencyByID to the given ids.
// Passing no ids lifts the restriction.
func SetSupportedCurrencies(ids ...string) error {
	next := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := cryptoCurrencies[id]; !ok {
			return fmt.Errorf("unknown currency id: %s", id)
		}
		next[id] = true
	}

	supportedMu.Lock()
	defer supportedMu.Unlock()
	if len(next) == 0 {
		supported = nil
		return nil
	}
	supported = next
	return nil
}

func isSupported(id string) bool {
	supportedMu.RLock()
	defer supportedMu.RUnlock()
	return supported == nil || supported[id]
}

// GetCryptoCurrencyByID returns a copy of the registered currency
func GetCryptoCurrencyByID(id string) (*CryptoCurrency, error) {
	c, ok := cryptoCurrencies[id]
	if !ok {
		return nil, fmt.Errorf("unknown currency id: %s", id)
	}
	if !isSupported(id) {
		return nil, fmt.Errorf("currency %s is not in the supported set", id)
	}
	out := *c
	out.Units = append([]Unit(nil), c.Units...)
	out.DerivationModes = append([]string(nil), c.DerivationModes...)
	return &out, nil
}

// FindCryptoCurrencyByChainID returns the first registered currency for a chain id
func FindCryptoCurrencyByChainID(chainId config.ChainId) (*CryptoCurrency, error) {
	for id, c := range cryptoCurrencies {
		if c.ChainID == chainId {
			return GetCryptoCurrencyByID(id)
		}
	}
	return nil, fmt.Errorf("no currency registered for chain id %d", chainId)
}

type FormatOptions struct {
	ShowCode bool
	// MaxDecimals caps the number of decimals shown; 0 keeps the unit's full precision
	MaxDecimals int32
}

// FormatCurrencyUnit renders a value expressed in the smallest denomination in the given unit
func FormatCurrencyUnit(unit Unit, value *big.Int, opts FormatOptions) string {
	if value == nil {
		value = big.NewInt(0)
	}
	d := decimal.NewFromBigInt(value, -unit.Magnitude)
	if opts.MaxDecimals > 0 && opts.MaxDecimals < unit.Magnitude {
		d = d.Truncate(opts.MaxDecimals)
	}
	s := d.String()
	if opts.ShowCode {
		return s + " " + unit.Code
	}
	return s
}

// ParseCurrencyUnit parses a decimal string in the given unit into the smallest denomination
func ParseCurrencyUnit(unit Unit, s string) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	scaled := d.Shift(unit.Magnitude)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("amount %q has more than %d decimals", s, unit.Magnitude)
	}
	return scaled.BigInt(), nil
}
