package signer

import (
	"context"
	"fmt"

	"github.com/Layr-Labs/signcheck-go/pkg/ledger"
	"github.com/Layr-Labs/signcheck-go/pkg/message"
	"github.com/Layr-Labs/signcheck-go/pkg/transport"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// LedgerSigner signs on a Ledger running the Ethereum app. Each call opens the
// device through the transport registry and releases it afterwards.
type LedgerSigner struct {
	registry *transport.Registry
	deviceID string
	logger   *zap.Logger
}

func NewLedgerSigner(registry *transport.Registry, deviceID string, l *zap.Logger) *LedgerSigner {
	return &LedgerSigner{registry: registry, deviceID: deviceID, logger: l}
}

func (s *LedgerSigner) DeriveAddress(ctx context.Context, path accounts.DerivationPath) (common.Address, error) {
	var address common.Address
	err := s.registry.WithDevice(ctx, s.deviceID, func(d transport.Device) error {
		var err error
		address, err = ledger.NewClient(d, s.logger).DeriveAddress(ctx, path)
		return err
	})
	return address, err
}

func (s *LedgerSigner) SignMessage(ctx context.Context, req *SignRequest) (*SignatureResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var sig []byte
	err := s.registry.WithDevice(ctx, s.deviceID, func(d transport.Device) error {
		client := ledger.NewClient(d, s.logger)

		appConfig, err := client.GetAppConfiguration(ctx)
		if err != nil {
			return err
		}
		s.logger.Sugar().Infow("Waiting for confirmation on the device",
			"kind", req.Message.Kind,
			"path", req.Path.String(),
			"appVersion", appConfig.Version,
		)

		switch req.Message.Kind {
		case message.KindPersonal:
			sig, err = client.SignPersonalMessage(ctx, req.Path, []byte(req.Message.Text))
		case message.KindTypedData:
			domainSeparator, messageHash, partsErr := message.TypedDataParts(*req.Message.TypedData)
			if partsErr != nil {
				return partsErr
			}
			sig, err = client.SignEIP712HashedMessage(ctx, req.Path, domainSeparator, messageHash)
		default:
			err = fmt.Errorf("%w: %s", ErrUnsupportedMessage, req.Message.Kind)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return NewSignatureResult(sig)
}
