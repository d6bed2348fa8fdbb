package verifier

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/Layr-Labs/signcheck-go/internal/tests"
	"github.com/Layr-Labs/signcheck-go/pkg/message"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeCodeReader struct {
	chainID  *big.Int
	code     map[common.Address][]byte
	callOut  []byte
	callErr  error
	lastCall ethereum.CallMsg
}

func (f *fakeCodeReader) ChainID(ctx context.Context) (*big.Int, error) {
	return f.chainID, nil
}

func (f *fakeCodeReader) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	return f.code[account], nil
}

func (f *fakeCodeReader) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	f.lastCall = call
	return f.callOut, f.callErr
}

func signHash(t *testing.T, hash common.Hash) []byte {
	key, err := crypto.HexToECDSA(tests.AnvilAccountPrivateKey0[2:])
	require.NoError(t, err)
	sig, err := crypto.Sign(hash.Bytes(), key)
	require.NoError(t, err)
	return sig
}

func Test_NormalizeSignature(t *testing.T) {
	sig := make([]byte, 65)

	t.Run("Should lift v 0/1 to 27/28", func(t *testing.T) {
		sig[64] = 1
		out, err := NormalizeSignature(sig)
		require.NoError(t, err)
		assert.Equal(t, byte(28), out[64])
		assert.Equal(t, byte(1), sig[64], "input must not be modified")
	})

	t.Run("Should keep v 27/28", func(t *testing.T) {
		sig[64] = 27
		out, err := NormalizeSignature(sig)
		require.NoError(t, err)
		assert.Equal(t, byte(27), out[64])
	})

	t.Run("Should reject other v values", func(t *testing.T) {
		sig[64] = 5
		_, err := NormalizeSignature(sig)
		require.ErrorIs(t, err, ErrMalformedSignature)
	})

	t.Run("Should reject wrong lengths", func(t *testing.T) {
		_, err := NormalizeSignature(make([]byte, 64))
		require.ErrorIs(t, err, ErrMalformedSignature)
	})
}

func Test_RecoverAddress(t *testing.T) {
	hash := message.HashPersonalMessage("hello")
	sig := signHash(t, hash)

	addr, err := RecoverAddress(hash, sig)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(tests.AnvilAccountAddress0), addr)

	sig[64] += 27
	addr, err = RecoverAddress(hash, sig)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(tests.AnvilAccountAddress0), addr)
}

func Test_VerifySignature(t *testing.T) {
	ctx := context.Background()
	l := zaptest.NewLogger(t)
	address := common.HexToAddress(tests.AnvilAccountAddress0)
	v := NewVerifier(nil, l)

	t.Run("Should verify a personal message signed by the known key", func(t *testing.T) {
		hash := message.HashPersonalMessage(message.ExamplePersonalMessage)
		valid, err := v.VerifySignature(ctx, address, signHash(t, hash), hash, big.NewInt(1))
		require.NoError(t, err)
		assert.True(t, valid)
	})

	t.Run("Should verify a typed data message signed by the known key", func(t *testing.T) {
		hash, err := message.HashTypedDataMessage(message.ExampleTypedDataJSON)
		require.NoError(t, err)
		valid, err := v.VerifySignature(ctx, address, signHash(t, hash), hash, big.NewInt(1))
		require.NoError(t, err)
		assert.True(t, valid)
	})

	t.Run("Should return false for a tampered message", func(t *testing.T) {
		sig := signHash(t, message.HashPersonalMessage(message.ExamplePersonalMessage))
		tampered := message.HashPersonalMessage(message.ExamplePersonalMessage + " ")
		valid, err := v.VerifySignature(ctx, address, sig, tampered, big.NewInt(1))
		require.NoError(t, err)
		assert.False(t, valid)
	})

	t.Run("Should return false for a tampered signature", func(t *testing.T) {
		hash := message.HashPersonalMessage(message.ExamplePersonalMessage)
		sig := signHash(t, hash)
		sig[10] ^= 0xff
		valid, err := v.VerifySignature(ctx, address, sig, hash, big.NewInt(1))
		require.NoError(t, err)
		assert.False(t, valid)
	})

	t.Run("Should return false for another address", func(t *testing.T) {
		hash := message.HashPersonalMessage(message.ExamplePersonalMessage)
		valid, err := v.VerifySignature(ctx, common.HexToAddress(tests.AnvilAccountAddress1), signHash(t, hash), hash, big.NewInt(1))
		require.NoError(t, err)
		assert.False(t, valid)
	})

	t.Run("Should error on a malformed signature", func(t *testing.T) {
		_, err := v.VerifySignature(ctx, address, []byte{0x01}, common.Hash{}, big.NewInt(1))
		require.ErrorIs(t, err, ErrMalformedSignature)
	})
}

func Test_VerifySignature_WithReader(t *testing.T) {
	ctx := context.Background()
	l := zaptest.NewLogger(t)
	hash := message.HashPersonalMessage(message.ExamplePersonalMessage)
	sig := signHash(t, hash)

	t.Run("Should reject a chain id mismatch", func(t *testing.T) {
		v := NewVerifier(&fakeCodeReader{chainID: big.NewInt(31337)}, l)
		_, err := v.VerifySignature(ctx, common.HexToAddress(tests.AnvilAccountAddress0), sig, hash, big.NewInt(1))
		require.ErrorIs(t, err, ErrChainIDMismatch)
	})

	t.Run("Should fall back to isValidSignature for contract wallets", func(t *testing.T) {
		wallet := common.HexToAddress("0x000000000000000000000000000000000000c0de")
		magic := make([]byte, 32)
		copy(magic, EIP1271MagicValue[:])
		reader := &fakeCodeReader{
			chainID: big.NewInt(1),
			code:    map[common.Address][]byte{wallet: {0x60, 0x80}},
			callOut: magic,
		}
		v := NewVerifier(reader, l)

		res, err := v.Verify(ctx, wallet, sig, hash, big.NewInt(1))
		require.NoError(t, err)
		assert.True(t, res.Valid)
		assert.Equal(t, MethodEIP1271, res.Method)
		assert.Equal(t, "0x1626ba7e", hexutil.Encode(reader.lastCall.Data[:4]))
		assert.Equal(t, wallet, *reader.lastCall.To)
	})

	t.Run("Should treat a reverting wallet as invalid", func(t *testing.T) {
		wallet := common.HexToAddress("0x000000000000000000000000000000000000c0de")
		reader := &fakeCodeReader{
			chainID: big.NewInt(1),
			code:    map[common.Address][]byte{wallet: {0x60, 0x80}},
			callErr: errors.New("execution reverted"),
		}
		res, err := NewVerifier(reader, l).Verify(ctx, wallet, sig, hash, big.NewInt(1))
		require.NoError(t, err)
		assert.False(t, res.Valid)
	})

	t.Run("Should not call contracts for EOAs", func(t *testing.T) {
		reader := &fakeCodeReader{chainID: big.NewInt(1)}
		res, err := NewVerifier(reader, l).Verify(ctx, common.HexToAddress(tests.AnvilAccountAddress1), sig, hash, big.NewInt(1))
		require.NoError(t, err)
		assert.False(t, res.Valid)
		assert.Equal(t, MethodEcrecover, res.Method)
		assert.Nil(t, reader.lastCall.To)
	})
}
