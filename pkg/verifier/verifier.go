package verifier

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

const (
	MethodEcrecover = "ecrecover"
	MethodEIP1271   = "eip1271"
)

var (
	ErrMalformedSignature = errors.New("malformed signature")
	ErrChainIDMismatch    = errors.New("chain id mismatch")
)

// EIP1271MagicValue is returned by isValidSignature when the contract accepts the signature
var EIP1271MagicValue = [4]byte{0x16, 0x26, 0xba, 0x7e}

const eip1271ABI = `[{"inputs":[{"name":"hash","type":"bytes32"},{"name":"signature","type":"bytes"}],"name":"isValidSignature","outputs":[{"name":"magicValue","type":"bytes4"}],"stateMutability":"view","type":"function"}]`

var parsedEIP1271ABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(eip1271ABI))
	if err != nil {
		panic(err)
	}
	return parsed
}()

// CodeReader is the subset of *ethclient.Client needed for contract wallet checks
type CodeReader interface {
	ChainID(ctx context.Context) (*big.Int, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

type Result struct {
	Valid     bool
	Method    string
	Recovered common.Address
}

type Verifier struct {
	reader CodeReader
	logger *zap.Logger
}

// NewVerifier returns a verifier. reader may be nil, in which case only ecrecover is used
// and the chain id is not checked.
func NewVerifier(reader CodeReader, l *zap.Logger) *Verifier {
	return &Verifier{reader: reader, logger: l}
}

// NormalizeSignature returns a copy of sig with v in {27, 28}
func NormalizeSignature(sig []byte) ([]byte, error) {
	if len(sig) != crypto.SignatureLength {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrMalformedSignature, crypto.SignatureLength, len(sig))
	}
	out := make([]byte, crypto.SignatureLength)
	copy(out, sig)

	switch out[64] {
	case 0, 1:
		out[64] += 27
	case 27, 28:
	default:
		return nil, fmt.Errorf("%w: unexpected v value %d", ErrMalformedSignature, out[64])
	}
	return out, nil
}

// RecoverAddress recovers the signer of hash. sig may carry v as 0/1 or 27/28.
func RecoverAddress(hash common.Hash, sig []byte) (common.Address, error) {
	normalized, err := NormalizeSignature(sig)
	if err != nil {
		return common.Address{}, err
	}
	normalized[64] -= 27

	pubKey, err := crypto.SigToPub(hash.Bytes(), normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pubKey), nil
}

// VerifySignature reports whether sig over hash was produced by address
func (v *Verifier) VerifySignature(ctx context.Context, address common.Address, sig []byte, hash common.Hash, chainID *big.Int) (bool, error) {
	res, err := v.Verify(ctx, address, sig, hash, chainID)
	if err != nil {
		return false, err
	}
	return res.Valid, nil
}

// Verify checks the signature with ecrecover first and, for addresses holding code,
// falls back to the contract's isValidSignature.
func (v *Verifier) Verify(ctx context.Context, address common.Address, sig []byte, hash common.Hash, chainID *big.Int) (*Result, error) {
	normalized, err := NormalizeSignature(sig)
	if err != nil {
		return nil, err
	}

	if v.reader != nil && chainID != nil {
		readerChainID, err := v.reader.ChainID(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get chain id: %w", err)
		}
		if readerChainID.Cmp(chainID) != 0 {
			return nil, fmt.Errorf("%w: rpc reports %s, expected %s", ErrChainIDMismatch, readerChainID, chainID)
		}
	}

	res := &Result{Method: MethodEcrecover}
	recovered, err := RecoverAddress(hash, normalized)
	if err != nil {
		v.logger.Sugar().Debugw("ecrecover failed", "address", address.Hex(), "error", err)
	} else {
		res.Recovered = recovered
		if recovered == address {
			res.Valid = true
			return res, nil
		}
	}

	if v.reader == nil {
		return res, nil
	}

	code, err := v.reader.CodeAt(ctx, address, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get code at %s: %w", address.Hex(), err)
	}
	if len(code) == 0 {
		return res, nil
	}

	res.Method = MethodEIP1271
	valid, err := v.isValidSignature(ctx, address, hash, normalized)
	if err != nil {
		return nil, err
	}
	res.Valid = valid
	return res, nil
}

func (v *Verifier) isValidSignature(ctx context.Context, address common.Address, hash common.Hash, sig []byte) (bool, error) {
	data, err := parsedEIP1271ABI.Pack("isValidSignature", [32]byte(hash), sig)
	if err != nil {
		return false, fmt.Errorf("failed to pack isValidSignature: %w", err)
	}

	out, err := v.reader.CallContract(ctx, ethereum.CallMsg{To: &address, Data: data}, nil)
	if err != nil {
		// Reverting wallets reject the signature rather than fail the check
		v.logger.Sugar().Debugw("isValidSignature call failed", "address", address.Hex(), "error", err)
		return false, nil
	}

	values, err := parsedEIP1271ABI.Unpack("isValidSignature", out)
	if err != nil || len(values) != 1 {
		return false, nil
	}
	magic, ok := values[0].([4]byte)
	if !ok {
		return false, nil
	}
	return bytes.Equal(magic[:], EIP1271MagicValue[:]), nil
}
