package signer

import (
	"context"
	"fmt"

	"github.com/Layr-Labs/signcheck-go/pkg/clients/web3signer"
	"github.com/Layr-Labs/signcheck-go/pkg/message"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Web3Signer signs through a remote Web3Signer holding a single key
type Web3Signer struct {
	client      web3signer.IWeb3Signer
	fromAddress common.Address
	publicKey   string
	logger      *zap.Logger
}

func NewWeb3Signer(client web3signer.IWeb3Signer, fromAddress common.Address, publicKey string, l *zap.Logger) *Web3Signer {
	return &Web3Signer{client: client, fromAddress: fromAddress, publicKey: publicKey, logger: l}
}

func (s *Web3Signer) DeriveAddress(ctx context.Context, path accounts.DerivationPath) (common.Address, error) {
	return s.fromAddress, nil
}

// CheckAccount makes sure the remote signer is up and serves fromAddress
func (s *Web3Signer) CheckAccount(ctx context.Context) error {
	if err := s.client.Upcheck(ctx); err != nil {
		return fmt.Errorf("web3signer is not reachable: %w", err)
	}
	accounts, err := s.client.EthAccounts(ctx)
	if err != nil {
		return fmt.Errorf("failed to list web3signer accounts: %w", err)
	}
	for _, a := range accounts {
		if common.HexToAddress(a) == s.fromAddress {
			return nil
		}
	}
	return fmt.Errorf("web3signer does not hold a key for %s", s.fromAddress.Hex())
}

func (s *Web3Signer) SignMessage(ctx context.Context, req *SignRequest) (*SignatureResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var (
		sig string
		err error
	)
	switch req.Message.Kind {
	case message.KindPersonal:
		sig, err = s.client.EthSign(ctx, s.fromAddress.Hex(), message.ConvertUtf8ToHex(req.Message.Text))
	case message.KindTypedData:
		sig, err = s.client.EthSignTypedData(ctx, s.fromAddress.Hex(), req.Message.TypedData)
	default:
		err = fmt.Errorf("%w: %s", ErrUnsupportedMessage, req.Message.Kind)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Sugar().Debugw("Signed message with web3signer", "kind", req.Message.Kind, "address", s.fromAddress.Hex())
	return ParseSignatureResult(sig)
}
