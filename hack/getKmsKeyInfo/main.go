package main

import (
	"context"
	"os"

	"github.com/Layr-Labs/signcheck-go/internal/aws"
	"github.com/Layr-Labs/signcheck-go/pkg/account"
	"github.com/Layr-Labs/signcheck-go/pkg/config"
	"github.com/Layr-Labs/signcheck-go/pkg/logger"
	"github.com/Layr-Labs/signcheck-go/pkg/message"
	"github.com/Layr-Labs/signcheck-go/pkg/signer"
	"github.com/Layr-Labs/signcheck-go/pkg/verifier"
)

// Prints the Ethereum address of an AWS KMS key and proves it can sign for it
func main() {
	ctx := context.Background()
	l, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})

	keyId := os.Getenv(config.EnvSignCheckAWSKMSKeyID)
	if keyId == "" {
		l.Sugar().Fatalf("%s environment variable is not set", config.EnvSignCheckAWSKMSKeyID)
	}

	awsCfg, err := aws.LoadAWSConfig(ctx, os.Getenv(config.EnvSignCheckAWSRegion))
	if err != nil {
		l.Sugar().Fatalw("failed to load aws config", "error", err)
	}

	kmsSigner := signer.NewAWSKMSSignerFromConfig(awsCfg, keyId, l)

	path := account.DerivationModeLedgerLive.PathForIndex(0)
	address, err := kmsSigner.DeriveAddress(ctx, path)
	if err != nil {
		l.Sugar().Fatalw("failed to load KMS public key", "error", err)
	}

	msg := message.NewPersonalMessage(message.ExamplePersonalMessage)
	res, err := kmsSigner.SignMessage(ctx, &signer.SignRequest{Path: path, Message: msg})
	if err != nil {
		l.Sugar().Fatalw("failed to sign message", "error", err)
	}

	hash, _ := msg.Hash()
	recovered, err := verifier.RecoverAddress(hash, res.Signature)
	if err != nil {
		l.Sugar().Fatalw("failed to recover signer", "error", err)
	}

	l.Sugar().Infow("KMS key",
		"keyId", keyId,
		"address", address.Hex(),
		"signature", res.Hex,
		"recovered", recovered.Hex(),
		"valid", recovered == address,
	)
}
