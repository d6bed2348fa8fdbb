package roundtrip

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/Layr-Labs/signcheck-go/internal/tests"
	"github.com/Layr-Labs/signcheck-go/pkg/account"
	"github.com/Layr-Labs/signcheck-go/pkg/config"
	"github.com/Layr-Labs/signcheck-go/pkg/currency"
	"github.com/Layr-Labs/signcheck-go/pkg/message"
	"github.com/Layr-Labs/signcheck-go/pkg/persistence/memory"
	"github.com/Layr-Labs/signcheck-go/pkg/signer"
	"github.com/Layr-Labs/signcheck-go/pkg/verifier"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeChain struct {
	mu       sync.Mutex
	chainID  *big.Int
	block    uint64
	balances map[common.Address]*big.Int
	nonces   map[common.Address]uint64
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		chainID:  big.NewInt(int64(config.ChainId_EthereumMainnet)),
		block:    21_000_000,
		balances: map[common.Address]*big.Int{},
		nonces:   map[common.Address]uint64{},
	}
}

func (f *fakeChain) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.balances[account]; ok {
		return new(big.Int).Set(b), nil
	}
	return big.NewInt(0), nil
}

func (f *fakeChain) NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nonces[account], nil
}

func (f *fakeChain) BlockNumber(ctx context.Context) (uint64, error) {
	return f.block, nil
}

func (f *fakeChain) ChainID(ctx context.Context) (*big.Int, error) {
	return f.chainID, nil
}

// countingSigner wraps a signer, counting calls and optionally failing or corrupting output
type countingSigner struct {
	signer.IMessageSigner
	mu      sync.Mutex
	calls   []time.Time
	err     error
	corrupt bool
}

func (c *countingSigner) SignMessage(ctx context.Context, req *signer.SignRequest) (*signer.SignatureResult, error) {
	c.mu.Lock()
	c.calls = append(c.calls, time.Now())
	c.mu.Unlock()

	if c.err != nil {
		return nil, c.err
	}
	res, err := c.IMessageSigner.SignMessage(ctx, req)
	if err != nil || !c.corrupt {
		return res, err
	}
	sig := append([]byte{}, res.Signature...)
	sig[10] ^= 0xff
	return signer.NewSignatureResult(sig)
}

func newTestSigner(t *testing.T, key string) *countingSigner {
	s, err := signer.NewInMemorySignerFromHex(key, zaptest.NewLogger(t))
	require.NoError(t, err)
	return &countingSigner{IMessageSigner: s}
}

func testAccount(t *testing.T, address common.Address) account.Account {
	path := account.DerivationModeLedgerLive.PathForIndex(0)
	return account.Account{
		ID:               account.AccountID("ethereum", address, account.DerivationModeLedgerLive),
		CurrencyID:       "ethereum",
		DerivationMode:   account.DerivationModeLedgerLive,
		FreshAddress:     address,
		FreshAddressPath: path.String(),
		Balance:          big.NewInt(1),
		ChainID:          config.ChainId_EthereumMainnet,
	}
}

func Test_RoundTrip(t *testing.T) {
	l := zaptest.NewLogger(t)
	v := verifier.NewVerifier(nil, l)
	addr := common.HexToAddress(tests.AnvilAccountAddress0)

	t.Run("Should verify the known personal message signed by the paired key", func(t *testing.T) {
		s := newTestSigner(t, tests.AnvilAccountPrivateKey0)
		res, err := RoundTrip(context.Background(), s, v, testAccount(t, addr), message.NewPersonalMessage(message.ExamplePersonalMessage))
		require.NoError(t, err)

		assert.True(t, res.Valid)
		assert.Equal(t, verifier.MethodEcrecover, res.Method)
		assert.Equal(t, message.HashPersonalMessage(message.ExamplePersonalMessage), res.MessageHash)
		assert.Len(t, res.Signature.Signature, 65)
		assert.Contains(t, []byte{27, 28}, res.Signature.Signature[64])
		assert.Len(t, s.calls, 1)
	})

	t.Run("Should verify typed data with the domain separated hash", func(t *testing.T) {
		s := newTestSigner(t, tests.AnvilAccountPrivateKey0)
		msg := message.ExampleTypedData()
		res, err := RoundTrip(context.Background(), s, v, testAccount(t, addr), msg)
		require.NoError(t, err)

		want, err := message.HashTypedData(*msg.TypedData)
		require.NoError(t, err)
		assert.True(t, res.Valid)
		assert.Equal(t, want, res.MessageHash)
		assert.Equal(t, message.KindTypedData, res.Kind)
	})

	t.Run("Should report false for a signature from another key", func(t *testing.T) {
		s := newTestSigner(t, tests.AnvilAccountPrivateKey1)
		res, err := RoundTrip(context.Background(), s, v, testAccount(t, addr), message.NewPersonalMessage("hello"))
		require.NoError(t, err)
		assert.False(t, res.Valid)
	})

	t.Run("Should report false for a tampered signature", func(t *testing.T) {
		s := newTestSigner(t, tests.AnvilAccountPrivateKey0)
		s.corrupt = true
		res, err := RoundTrip(context.Background(), s, v, testAccount(t, addr), message.NewPersonalMessage("hello"))
		require.NoError(t, err)
		assert.False(t, res.Valid)
	})

	t.Run("Should surface a signer rejection after a single attempt", func(t *testing.T) {
		s := newTestSigner(t, tests.AnvilAccountPrivateKey0)
		rejected := errors.New("user rejected")
		s.err = rejected

		_, err := RoundTrip(context.Background(), s, v, testAccount(t, addr), message.NewPersonalMessage("hello"))
		require.ErrorIs(t, err, rejected)
		assert.Len(t, s.calls, 1)
	})

	t.Run("Should reject an account with a malformed path before signing", func(t *testing.T) {
		s := newTestSigner(t, tests.AnvilAccountPrivateKey0)
		acc := testAccount(t, addr)
		acc.FreshAddressPath = "not/a/path"

		_, err := RoundTrip(context.Background(), s, v, acc, message.NewPersonalMessage("hello"))
		require.Error(t, err)
		assert.Empty(t, s.calls)
	})
}

func newTestRunner(t *testing.T, chain *fakeChain, s signer.IMessageSigner, delay time.Duration) (*Runner, *memory.MemoryPersistence) {
	l := zaptest.NewLogger(t)
	cur, err := currency.GetCryptoCurrencyByID("ethereum")
	require.NoError(t, err)

	store := memory.NewMemoryPersistence(l)
	t.Cleanup(func() { _ = store.Close() })

	r := NewRunner(&Config{
		Currency:        cur,
		DerivationModes: []account.DerivationMode{account.DerivationModeLedgerLive},
		ScanLimit:       config.DefaultScanLimit,
		SignDelay:       delay,
		PersonalMessage: message.ExamplePersonalMessage,
		TypedData:       message.ExampleTypedData(),
	}, chain, s, verifier.NewVerifier(nil, l), store, l)
	r.newRunID = func() string { return "run-1" }
	return r, store
}

func Test_Runner_Run(t *testing.T) {
	addr := common.HexToAddress(tests.AnvilAccountAddress0)

	t.Run("Should discover, sync, sign twice and persist everything", func(t *testing.T) {
		chain := newFakeChain()
		chain.balances[addr], _ = new(big.Int).SetString("1500000000000000000", 10)
		chain.nonces[addr] = 4

		s := newTestSigner(t, tests.AnvilAccountPrivateKey0)
		r, store := newTestRunner(t, chain, s, 0)

		report, err := r.Run(context.Background())
		require.NoError(t, err)

		assert.Equal(t, "run-1", report.RunID)
		assert.Equal(t, addr, report.Account.FreshAddress)
		assert.Equal(t, uint64(4), report.Account.OperationsCount)
		assert.Equal(t, chain.block, report.Account.BlockHeight)
		assert.False(t, report.Account.LastSyncDate.IsZero())
		require.Len(t, report.Results, 2)
		assert.Equal(t, message.KindPersonal, report.Results[0].Kind)
		assert.Equal(t, message.KindTypedData, report.Results[1].Kind)

		saved, err := store.LoadAccount(report.Account.ID)
		require.NoError(t, err)
		require.NotNil(t, saved)
		assert.Equal(t, 0, chain.balances[addr].Cmp(saved.Balance))

		records, err := store.ListVerifications("run-1")
		require.NoError(t, err)
		require.Len(t, records, 2)
		for _, rec := range records {
			assert.True(t, rec.Valid)
			assert.Equal(t, report.Account.ID, rec.AccountID)
		}
	})

	t.Run("Should fail with ErrNoAccount when nothing holds a balance", func(t *testing.T) {
		s := newTestSigner(t, tests.AnvilAccountPrivateKey0)
		r, _ := newTestRunner(t, newFakeChain(), s, 0)

		_, err := r.Run(context.Background())
		require.ErrorIs(t, err, account.ErrNoAccount)
		assert.Empty(t, s.calls)
	})

	t.Run("Should stop at the first invalid signature and record it", func(t *testing.T) {
		chain := newFakeChain()
		chain.balances[addr] = big.NewInt(1)

		s := newTestSigner(t, tests.AnvilAccountPrivateKey0)
		s.corrupt = true
		r, store := newTestRunner(t, chain, s, 0)

		report, err := r.Run(context.Background())
		require.ErrorIs(t, err, ErrSignatureInvalid)
		require.Len(t, report.Results, 1)
		assert.Len(t, s.calls, 1)

		records, err := store.ListVerifications("run-1")
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.False(t, records[0].Valid)
	})

	t.Run("Should wait the sign delay before every request", func(t *testing.T) {
		chain := newFakeChain()
		chain.balances[addr] = big.NewInt(1)

		delay := 50 * time.Millisecond
		s := newTestSigner(t, tests.AnvilAccountPrivateKey0)
		r, _ := newTestRunner(t, chain, s, delay)

		start := time.Now()
		_, err := r.Run(context.Background())
		require.NoError(t, err)

		require.Len(t, s.calls, 2)
		assert.GreaterOrEqual(t, s.calls[0].Sub(start), delay-5*time.Millisecond)
		assert.GreaterOrEqual(t, s.calls[1].Sub(s.calls[0]), delay-5*time.Millisecond)
	})

	t.Run("Should abort the delay when the context is cancelled", func(t *testing.T) {
		chain := newFakeChain()
		chain.balances[addr] = big.NewInt(1)

		s := newTestSigner(t, tests.AnvilAccountPrivateKey0)
		r, _ := newTestRunner(t, chain, s, time.Hour)

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		_, err := r.Run(ctx)
		require.Error(t, err)
		assert.Empty(t, s.calls)
	})
}

// pathSigner derives a distinct address per path and the signing key for one of them
type pathSigner struct {
	*countingSigner
	funded accounts.DerivationPath
	addr   common.Address
}

func (p *pathSigner) DeriveAddress(ctx context.Context, path accounts.DerivationPath) (common.Address, error) {
	if path.String() == p.funded.String() {
		return p.addr, nil
	}
	return common.BytesToAddress([]byte(path.String())), nil
}

func Test_Runner_Discover(t *testing.T) {
	t.Run("Should skip used but empty accounts", func(t *testing.T) {
		addr := common.HexToAddress(tests.AnvilAccountAddress0)
		funded := account.DerivationModeLedgerLive.PathForIndex(2)
		ps := &pathSigner{countingSigner: newTestSigner(t, tests.AnvilAccountPrivateKey0), funded: funded, addr: addr}

		chain := newFakeChain()
		chain.balances[addr] = big.NewInt(1)
		for i := 0; i < 2; i++ {
			used := common.BytesToAddress([]byte(account.DerivationModeLedgerLive.PathForIndex(i).String()))
			chain.nonces[used] = 1
		}

		r, _ := newTestRunner(t, chain, ps, 0)
		acc, err := r.Discover(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 2, acc.Index)
		assert.Equal(t, funded.String(), acc.FreshAddressPath)
	})

	t.Run("Should not derive addresses after returning", func(t *testing.T) {
		addr := common.HexToAddress(tests.AnvilAccountAddress0)
		ds := &derivationCounter{countingSigner: newTestSigner(t, tests.AnvilAccountPrivateKey0)}

		chain := newFakeChain()
		chain.balances[addr] = big.NewInt(1)

		r, _ := newTestRunner(t, chain, ds, 0)
		acc, err := r.Discover(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, acc.Index)

		returned := ds.count()
		time.Sleep(200 * time.Millisecond)
		assert.Equal(t, returned, ds.count())
	})
}

// derivationCounter counts DeriveAddress calls on a single key signer
type derivationCounter struct {
	*countingSigner
	mu      sync.Mutex
	derived int
}

func (d *derivationCounter) DeriveAddress(ctx context.Context, path accounts.DerivationPath) (common.Address, error) {
	d.mu.Lock()
	d.derived++
	d.mu.Unlock()
	return d.countingSigner.DeriveAddress(ctx, path)
}

func (d *derivationCounter) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.derived
}
