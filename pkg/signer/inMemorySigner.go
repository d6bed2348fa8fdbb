package signer

import (
	"context"
	"fmt"
	"strings"

	"github.com/Layr-Labs/crypto-libs/pkg/ecdsa"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// InMemorySigner signs with a local secp256k1 key. Every path maps to that key.
type InMemorySigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	logger     *zap.Logger
}

func NewInMemorySignerFromHex(privateKey string, l *zap.Logger) (*InMemorySigner, error) {
	key, err := ecdsa.NewPrivateKeyFromHexString(strings.TrimPrefix(privateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("error loading private key: %w", err)
	}
	return NewInMemorySigner(key, l)
}

func NewInMemorySigner(key *ecdsa.PrivateKey, l *zap.Logger) (*InMemorySigner, error) {
	address, err := key.DeriveAddress()
	if err != nil {
		return nil, fmt.Errorf("failed to derive address: %w", err)
	}
	return &InMemorySigner{privateKey: key, address: address, logger: l}, nil
}

func (s *InMemorySigner) Address() common.Address {
	return s.address
}

func (s *InMemorySigner) DeriveAddress(ctx context.Context, path accounts.DerivationPath) (common.Address, error) {
	return s.address, nil
}

func (s *InMemorySigner) SignMessage(ctx context.Context, req *SignRequest) (*SignatureResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	hash, err := req.Message.Hash()
	if err != nil {
		return nil, err
	}

	sig, err := s.privateKey.Sign(hash.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to sign %s message: %w", req.Message.Kind, err)
	}
	s.logger.Sugar().Debugw("Signed message with in-memory key",
		"kind", req.Message.Kind,
		"address", s.address.Hex(),
		"hash", hash.Hex(),
	)
	return NewSignatureResult(sig.Bytes())
}
