package signer

import (
	"context"
	"fmt"

	internalAws "github.com/Layr-Labs/signcheck-go/internal/aws"
	"github.com/Layr-Labs/signcheck-go/pkg/clients/web3signer"
	"github.com/Layr-Labs/signcheck-go/pkg/config"
	"github.com/Layr-Labs/signcheck-go/pkg/transport"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

type Options struct {
	// Registry is used by the ledger signer; the package default is used when nil
	Registry *transport.Registry
	DeviceID string
}

// New builds the signer selected by cfg.Type
func New(ctx context.Context, cfg *config.SignerConfig, opts Options, l *zap.Logger) (IMessageSigner, error) {
	if cfg == nil {
		return nil, fmt.Errorf("signer config is required")
	}

	switch cfg.Type {
	case config.SignerTypeLedger:
		registry := opts.Registry
		if registry == nil {
			registry = transport.DefaultRegistry()
		}
		return NewLedgerSigner(registry, opts.DeviceID, l), nil

	case config.SignerTypePrivateKey:
		return NewInMemorySignerFromHex(cfg.PrivateKey, l)

	case config.SignerTypeWeb3Signer:
		if cfg.RemoteSigner == nil {
			return nil, fmt.Errorf("remote signer config is required for %s", cfg.Type)
		}
		client, err := web3signer.NewWeb3SignerClientFromRemoteSignerConfig(cfg.RemoteSigner, l)
		if err != nil {
			return nil, fmt.Errorf("failed to create web3signer client: %w", err)
		}
		return NewWeb3Signer(client, common.HexToAddress(cfg.RemoteSigner.FromAddress), cfg.RemoteSigner.PublicKey, l), nil

	case config.SignerTypeAWSKMS:
		if cfg.AWSKMS == nil || cfg.AWSKMS.KeyId == "" {
			return nil, fmt.Errorf("aws kms key id is required for %s", cfg.Type)
		}
		awsCfg, err := internalAws.LoadAWSConfig(ctx, cfg.AWSKMS.Region)
		if err != nil {
			return nil, fmt.Errorf("failed to load aws config: %w", err)
		}
		if identity, err := internalAws.GetCallerIdentity(ctx, awsCfg); err != nil {
			l.Sugar().Warnw("Failed to get AWS caller identity", "error", err)
		} else {
			l.Sugar().Infow("Using AWS identity", "arn", aws.ToString(identity.Arn), "account", aws.ToString(identity.Account))
		}
		return NewAWSKMSSignerFromConfig(awsCfg, cfg.AWSKMS.KeyId, l), nil
	}
	return nil, fmt.Errorf("unsupported signer type: %s", cfg.Type)
}
