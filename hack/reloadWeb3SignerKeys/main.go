package main

import (
	"context"
	"os"

	"github.com/Layr-Labs/signcheck-go/pkg/clients/web3signer"
	"github.com/Layr-Labs/signcheck-go/pkg/config"
	"github.com/Layr-Labs/signcheck-go/pkg/logger"
)

func main() {
	l, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})

	signerCfg := &config.RemoteSignerConfig{
		Url:         os.Getenv(config.EnvSignCheckWeb3SignerURL),
		FromAddress: os.Getenv(config.EnvSignCheckWeb3SignerAddress),
		PublicKey:   os.Getenv(config.EnvSignCheckWeb3SignerPubKey),
	}
	if signerCfg.Url == "" {
		signerCfg.Url = "http://localhost:9000"
	}
	if err := signerCfg.Validate(); err != nil {
		l.Sugar().Fatalw("invalid Web3Signer config", "error", err)
	}

	web3SignerClient, err := web3signer.NewWeb3SignerClientFromRemoteSignerConfig(signerCfg, l)
	if err != nil {
		l.Sugar().Fatalw("failed to create Web3Signer client", "error", err)
	}

	if err := web3SignerClient.ReloadKeysAndWaitForPublicKey(context.Background(), signerCfg.PublicKey); err != nil {
		l.Sugar().Fatalw("failed to reload Web3Signer keys", "error", err)
	}
	l.Sugar().Infow("Successfully reloaded Web3Signer keys", "publicKey", signerCfg.PublicKey)
}
