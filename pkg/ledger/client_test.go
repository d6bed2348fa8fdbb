package ledger

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"strings"
	"testing"

	"github.com/Layr-Labs/signcheck-go/internal/tests"
	"github.com/Layr-Labs/signcheck-go/pkg/message"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type scriptedDevice struct {
	replies [][]byte
	sent    [][]byte
}

func (d *scriptedDevice) Exchange(ctx context.Context, apdu []byte) ([]byte, error) {
	d.sent = append(d.sent, append([]byte(nil), apdu...))
	if len(d.replies) == 0 {
		return nil, errors.New("no scripted reply")
	}
	reply := d.replies[0]
	d.replies = d.replies[1:]
	return reply, nil
}

func (d *scriptedDevice) Close() error { return nil }

func ok(data ...byte) []byte {
	out := make([]byte, 0, len(data)+2)
	out = append(out, data...)
	return append(out, 0x90, 0x00)
}

// deviceSignature signs hash with the anvil key and lays it out the way the app replies: v r s
func deviceSignature(t *testing.T, hash common.Hash) []byte {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(tests.AnvilAccountPrivateKey0, "0x"))
	require.NoError(t, err)
	sig, err := crypto.Sign(hash.Bytes(), key)
	require.NoError(t, err)
	return ok(append([]byte{sig[64] + 27}, sig[:64]...)...)
}

func Test_serializePath(t *testing.T) {
	path, err := accounts.ParseDerivationPath("m/44'/60'/0'/0/0")
	require.NoError(t, err)
	out, err := serializePath(path)
	require.NoError(t, err)
	assert.Equal(t, []byte{
		0x05,
		0x80, 0x00, 0x00, 0x2c,
		0x80, 0x00, 0x00, 0x3c,
		0x80, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
	}, out)

	_, err = serializePath(accounts.DerivationPath{})
	require.Error(t, err)
}

func Test_StatusError(t *testing.T) {
	assert.ErrorIs(t, &StatusError{Code: 0x6985}, ErrUserRejected)
	assert.ErrorIs(t, &StatusError{Code: 0x6e00}, ErrAppNotOpen)
	assert.ErrorIs(t, &StatusError{Code: 0x6d00}, ErrAppNotOpen)
	assert.ErrorIs(t, &StatusError{Code: 0x6511}, ErrAppNotOpen)
	assert.ErrorIs(t, &StatusError{Code: 0x6a80}, ErrInvalidData)
	assert.ErrorIs(t, &StatusError{Code: 0x5515}, ErrLocked)
	assert.NotErrorIs(t, &StatusError{Code: 0x6f00}, ErrUserRejected)
	assert.Contains(t, (&StatusError{Code: 0x6f00}).Error(), "0x6f00")
}

func Test_GetAppConfiguration(t *testing.T) {
	dev := &scriptedDevice{replies: [][]byte{ok(0x01, 1, 10, 3)}}
	cfg, err := NewClient(dev, zaptest.NewLogger(t)).GetAppConfiguration(context.Background())
	require.NoError(t, err)
	assert.True(t, cfg.ArbitraryDataEnabled)
	assert.False(t, cfg.ERC20ProvisioningNecessary)
	assert.Equal(t, "1.10.3", cfg.Version)
	assert.Equal(t, []byte{0xe0, 0x06, 0x00, 0x00, 0x00}, dev.sent[0])
}

func Test_GetAddress(t *testing.T) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(tests.AnvilAccountPrivateKey0, "0x"))
	require.NoError(t, err)
	pub := crypto.FromECDSAPub(&key.PublicKey)
	addr := strings.TrimPrefix(tests.AnvilAccountAddress0, "0x")

	reply := []byte{byte(len(pub))}
	reply = append(reply, pub...)
	reply = append(reply, byte(len(addr)))
	reply = append(reply, []byte(addr)...)

	path := accounts.DefaultBaseDerivationPath

	t.Run("Should parse the address reply", func(t *testing.T) {
		dev := &scriptedDevice{replies: [][]byte{ok(reply...)}}
		res, err := NewClient(dev, zaptest.NewLogger(t)).GetAddress(context.Background(), path, true)
		require.NoError(t, err)
		assert.Equal(t, common.HexToAddress(tests.AnvilAccountAddress0), res.Address)
		assert.Equal(t, pub, res.PublicKey)
		assert.Equal(t, byte(0x01), dev.sent[0][2], "display flag")
	})

	t.Run("Should reject a mismatching address", func(t *testing.T) {
		bad := append([]byte(nil), reply...)
		copy(bad[len(bad)-40:], strings.TrimPrefix(tests.AnvilAccountAddress1, "0x"))
		dev := &scriptedDevice{replies: [][]byte{ok(bad...)}}
		_, err := NewClient(dev, zaptest.NewLogger(t)).DeriveAddress(context.Background(), path)
		require.Error(t, err)
	})

	t.Run("Should map a locked device", func(t *testing.T) {
		dev := &scriptedDevice{replies: [][]byte{{0x55, 0x15}}}
		_, err := NewClient(dev, zaptest.NewLogger(t)).DeriveAddress(context.Background(), path)
		require.ErrorIs(t, err, ErrLocked)
	})
}

func Test_SignPersonalMessage(t *testing.T) {
	path := accounts.DefaultBaseDerivationPath

	t.Run("Should send a single chunk for a short message", func(t *testing.T) {
		hash := message.HashPersonalMessage(message.ExamplePersonalMessage)
		dev := &scriptedDevice{replies: [][]byte{deviceSignature(t, hash)}}

		sig, err := NewClient(dev, zaptest.NewLogger(t)).SignPersonalMessage(context.Background(), path, []byte(message.ExamplePersonalMessage))
		require.NoError(t, err)
		require.Len(t, dev.sent, 1)

		apdu := dev.sent[0]
		assert.Equal(t, []byte{0xe0, 0x08, 0x00, 0x00}, apdu[:4])
		msgLen := binary.BigEndian.Uint32(apdu[5+21 : 5+25])
		assert.Equal(t, uint32(len(message.ExamplePersonalMessage)), msgLen)

		sig[64] -= 27
		pub, err := crypto.SigToPub(hash.Bytes(), sig)
		require.NoError(t, err)
		assert.Equal(t, common.HexToAddress(tests.AnvilAccountAddress0), crypto.PubkeyToAddress(*pub))
	})

	t.Run("Should chunk long messages", func(t *testing.T) {
		long := bytes.Repeat([]byte("a"), 600)
		dev := &scriptedDevice{replies: [][]byte{
			ok(),
			ok(),
			deviceSignature(t, message.HashPersonalMessage(string(long))),
		}}

		_, err := NewClient(dev, zaptest.NewLogger(t)).SignPersonalMessage(context.Background(), path, long)
		require.NoError(t, err)
		require.Len(t, dev.sent, 3)
		assert.Equal(t, byte(0x00), dev.sent[0][2])
		assert.Equal(t, byte(0x80), dev.sent[1][2])
		assert.Equal(t, byte(0x80), dev.sent[2][2])
		assert.Equal(t, byte(255), dev.sent[0][4])

		total := 0
		for _, apdu := range dev.sent {
			total += len(apdu) - 5
		}
		assert.Equal(t, 21+4+600, total)
	})

	t.Run("Should surface a user rejection", func(t *testing.T) {
		dev := &scriptedDevice{replies: [][]byte{{0x69, 0x85}}}
		_, err := NewClient(dev, zaptest.NewLogger(t)).SignPersonalMessage(context.Background(), path, []byte("hi"))
		require.ErrorIs(t, err, ErrUserRejected)
	})
}

func Test_SignEIP712HashedMessage(t *testing.T) {
	td := message.ExampleTypedData().TypedData
	domainSeparator, messageHash, err := message.TypedDataParts(*td)
	require.NoError(t, err)
	digest, err := message.HashTypedData(*td)
	require.NoError(t, err)

	dev := &scriptedDevice{replies: [][]byte{deviceSignature(t, digest)}}
	sig, err := NewClient(dev, zaptest.NewLogger(t)).SignEIP712HashedMessage(context.Background(), accounts.DefaultBaseDerivationPath, domainSeparator, messageHash)
	require.NoError(t, err)
	assert.Contains(t, []byte{27, 28}, sig[64])

	apdu := dev.sent[0]
	assert.Equal(t, byte(0x0c), apdu[1])
	assert.Equal(t, byte(21+64), apdu[4])
	assert.Equal(t, domainSeparator.Bytes(), apdu[5+21:5+21+32])
	assert.Equal(t, messageHash.Bytes(), apdu[5+21+32:])
}
