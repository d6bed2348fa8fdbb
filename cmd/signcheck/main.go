package main

import (
	"fmt"
	"log"
	"os"

	"github.com/Layr-Labs/signcheck-go/pkg/config"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

func main() {
	// A missing .env is fine, flags and the environment still apply
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "signcheck",
		Usage: "Sign and verify messages with a hardware wallet account",
		Description: `Runs a signing round-trip against an Ethereum account held by a signer.

The default command discovers the first account with a balance, syncs it,
signs a personal message and an EIP-712 typed-data message, and verifies
both signatures against the account address. Any failure is fatal.`,
		Version: "1.0.0",
		Flags:   globalFlags(),
		Action:  runCommand,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Discover, sync, sign and verify (default)",
				Action: runCommand,
			},
			{
				Name:   "scan",
				Usage:  "List the accounts the signer controls",
				Action: scanCommand,
			},
			{
				Name:  "sign",
				Usage: "Sign one message with the first funded account (or --path) and verify it",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "type",
						Usage: "Message kind: personal or typed",
						Value: "personal",
					},
					&cli.StringFlag{
						Name:  "message",
						Usage: "Personal message text",
					},
					&cli.StringFlag{
						Name:  "typed-data-file",
						Usage: "Path to an EIP-712 JSON document (defaults to the Mail example)",
					},
					&cli.StringFlag{
						Name:  "path",
						Usage: "Derivation path to sign with, skips account discovery",
					},
				},
				Action: signCommand,
			},
			{
				Name:  "verify",
				Usage: "Verify a signature offline",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "address",
						Usage:    "Expected signer address",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "signature",
						Usage:    "65 byte hex signature",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "message",
						Usage: "Personal message text",
					},
					&cli.StringFlag{
						Name:  "typed-data-file",
						Usage: "Path to an EIP-712 JSON document",
					},
					&cli.BoolFlag{
						Name:  "onchain",
						Usage: "Use the RPC endpoint for chain id and EIP-1271 contract wallet checks",
					},
				},
				Action: verifyCommand,
			},
			{
				Name:  "history",
				Usage: "List stored verification records",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "run-id",
						Usage: "Only show records of this run",
					},
				},
				Action: historyCommand,
			},
			{
				Name:   "devices",
				Usage:  "List connected Ledger devices",
				Action: devicesCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "rpc-url",
			Aliases: []string{"rpc"},
			Usage:   "Ethereum RPC endpoint URL",
			Value:   config.DefaultRpcUrl,
			EnvVars: []string{config.EnvSignCheckRPCURL},
		},
		&cli.StringFlag{
			Name:    "currency",
			Usage:   "Currency id: ethereum, ethereum_sepolia, ethereum_holesky or devnet",
			Value:   config.DefaultCurrencyID,
			EnvVars: []string{config.EnvSignCheckCurrency},
		},
		&cli.Uint64Flag{
			Name:    "chain-id",
			Aliases: []string{"chain"},
			Usage:   fmt.Sprintf("Expected chain ID, defaults to the currency's: %s", config.GetSupportedChainIDsString()),
			EnvVars: []string{config.EnvSignCheckChainID},
		},
		&cli.StringFlag{
			Name:    "device-id",
			Usage:   "Index of the Ledger as listed by the devices command; empty picks the first",
			EnvVars: []string{config.EnvSignCheckDeviceID},
		},
		&cli.StringFlag{
			Name:    "transport",
			Usage:   "Device transport: hid or tcp (Speculos)",
			Value:   string(config.TransportTypeHID),
			EnvVars: []string{config.EnvSignCheckTransport},
		},
		&cli.StringFlag{
			Name:    "speculos-address",
			Usage:   "Speculos APDU socket for the tcp transport",
			Value:   config.DefaultSpeculosAddress,
			EnvVars: []string{config.EnvSignCheckSpeculosAddress},
		},
		&cli.StringFlag{
			Name:    "signer",
			Usage:   "Signer type: ledger, web3signer, privateKey or awsKms",
			Value:   string(config.SignerTypeLedger),
			EnvVars: []string{config.EnvSignCheckSignerType},
		},
		&cli.StringFlag{
			Name:    "private-key",
			Usage:   "Hex private key for the privateKey signer",
			EnvVars: []string{config.EnvSignCheckPrivateKey},
		},
		&cli.StringFlag{
			Name:    "web3signer-url",
			Usage:   "Web3Signer base URL",
			Value:   "http://localhost:9000",
			EnvVars: []string{config.EnvSignCheckWeb3SignerURL},
		},
		&cli.StringFlag{
			Name:    "web3signer-address",
			Usage:   "Address of the Web3Signer key",
			EnvVars: []string{config.EnvSignCheckWeb3SignerAddress},
		},
		&cli.StringFlag{
			Name:    "web3signer-public-key",
			Usage:   "Public key of the Web3Signer key",
			EnvVars: []string{config.EnvSignCheckWeb3SignerPubKey},
		},
		&cli.StringFlag{
			Name:    "aws-kms-key-id",
			Usage:   "AWS KMS key id or alias for the awsKms signer",
			EnvVars: []string{config.EnvSignCheckAWSKMSKeyID},
		},
		&cli.StringFlag{
			Name:    "aws-region",
			Usage:   "AWS region of the KMS key",
			Value:   "us-east-1",
			EnvVars: []string{config.EnvSignCheckAWSRegion},
		},
		&cli.StringFlag{
			Name:    "persistence",
			Usage:   "Persistence backend: memory, badger or redis",
			Value:   string(config.PersistenceTypeBadger),
			EnvVars: []string{config.EnvSignCheckPersistenceType},
		},
		&cli.StringFlag{
			Name:    "data-path",
			Usage:   "Badger data directory",
			Value:   config.DefaultDataPath,
			EnvVars: []string{config.EnvSignCheckDataPath},
		},
		&cli.StringFlag{
			Name:    "redis-address",
			Usage:   "Redis host:port",
			EnvVars: []string{config.EnvSignCheckRedisAddress},
		},
		&cli.StringFlag{
			Name:    "redis-password",
			Usage:   "Redis password",
			EnvVars: []string{config.EnvSignCheckRedisPassword},
		},
		&cli.IntFlag{
			Name:    "redis-db",
			Usage:   "Redis database number",
			EnvVars: []string{config.EnvSignCheckRedisDB},
		},
		&cli.DurationFlag{
			Name:    "sign-delay",
			Usage:   "Pause before each signing request",
			Value:   config.DefaultSignDelay,
			EnvVars: []string{config.EnvSignCheckSignDelay},
		},
		&cli.IntFlag{
			Name:    "scan-limit",
			Usage:   "Maximum accounts to look at per derivation mode",
			Value:   config.DefaultScanLimit,
			EnvVars: []string{config.EnvSignCheckScanLimit},
		},
		&cli.StringSliceFlag{
			Name:    "derivation-mode",
			Usage:   "Derivation modes to scan: ledgerlive, legacy, bip44 (default: all)",
			EnvVars: []string{config.EnvSignCheckDerivationModes},
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Usage:   "Enable verbose logging",
			EnvVars: []string{config.EnvSignCheckVerbose},
		},
	}
}

func parseConfig(c *cli.Context) *config.SignCheckConfig {
	return &config.SignCheckConfig{
		CurrencyID:      c.String("currency"),
		ChainID:         config.ChainId(c.Uint64("chain-id")),
		RpcUrl:          c.String("rpc-url"),
		DeviceID:        c.String("device-id"),
		Transport:       config.TransportType(c.String("transport")),
		SpeculosAddress: c.String("speculos-address"),
		Signer: &config.SignerConfig{
			Type:       config.SignerType(c.String("signer")),
			PrivateKey: c.String("private-key"),
			RemoteSigner: &config.RemoteSignerConfig{
				Url:         c.String("web3signer-url"),
				FromAddress: c.String("web3signer-address"),
				PublicKey:   c.String("web3signer-public-key"),
			},
			AWSKMS: &config.AWSKMSSignerConfig{
				KeyId:  c.String("aws-kms-key-id"),
				Region: c.String("aws-region"),
			},
		},
		Persistence: &config.PersistenceConfig{
			Type:          config.PersistenceType(c.String("persistence")),
			DataPath:      c.String("data-path"),
			RedisAddress:  c.String("redis-address"),
			RedisPassword: c.String("redis-password"),
			RedisDB:       c.Int("redis-db"),
		},
		SignDelay:       c.Duration("sign-delay"),
		ScanLimit:       c.Int("scan-limit"),
		DerivationModes: c.StringSlice("derivation-mode"),
		Debug:           c.Bool("verbose"),
	}
}
