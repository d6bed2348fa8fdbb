package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/Layr-Labs/chain-indexer/pkg/clients/ethereum"
	"github.com/Layr-Labs/signcheck-go/pkg/account"
	"github.com/Layr-Labs/signcheck-go/pkg/config"
	"github.com/Layr-Labs/signcheck-go/pkg/currency"
	"github.com/Layr-Labs/signcheck-go/pkg/logger"
	"github.com/Layr-Labs/signcheck-go/pkg/message"
	"github.com/Layr-Labs/signcheck-go/pkg/persistence"
	"github.com/Layr-Labs/signcheck-go/pkg/persistence/store"
	"github.com/Layr-Labs/signcheck-go/pkg/roundtrip"
	"github.com/Layr-Labs/signcheck-go/pkg/signer"
	"github.com/Layr-Labs/signcheck-go/pkg/transport"
	"github.com/Layr-Labs/signcheck-go/pkg/verifier"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
	ledger_go "github.com/zondax/ledger-go"
	"go.uber.org/zap"
)

// chainClient is what the go-ethereum client provides to discovery and verification
type chainClient interface {
	account.ChainReader
	verifier.CodeReader
}

type environment struct {
	cfg      *config.SignCheckConfig
	logger   *zap.Logger
	currency *currency.CryptoCurrency
	modes    []account.DerivationMode
	chain    chainClient
	signer   signer.IMessageSigner
	store    persistence.IAccountStore
	verifier *verifier.Verifier
}

func (e *environment) Close() {
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			e.logger.Sugar().Warnw("Failed to close persistence", "error", err)
		}
	}
	_ = e.logger.Sync()
}

func (e *environment) runner() *roundtrip.Runner {
	return roundtrip.NewRunner(&roundtrip.Config{
		Currency:        e.currency,
		DerivationModes: e.modes,
		ScanLimit:       e.cfg.ScanLimit,
		SignDelay:       e.cfg.SignDelay,
		PersonalMessage: message.ExamplePersonalMessage,
		TypedData:       message.ExampleTypedData(),
	}, e.chain, e.signer, e.verifier, e.store, e.logger)
}

func newLogger(c *cli.Context) (*zap.Logger, error) {
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: c.Bool("verbose")})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return l, nil
}

func commandContext(c *cli.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
}

// resolveCurrency restricts the registry to the configured currency and checks it
// against an explicit chain id
func resolveCurrency(cfg *config.SignCheckConfig) (*currency.CryptoCurrency, error) {
	if err := currency.SetSupportedCurrencies(cfg.CurrencyID); err != nil {
		return nil, err
	}
	cur, err := currency.GetCryptoCurrencyByID(cfg.CurrencyID)
	if err != nil {
		return nil, err
	}
	if cfg.ChainID != 0 && cfg.ChainID != cur.ChainID {
		return nil, fmt.Errorf("currency %s is on chain %d, not %d", cur.ID, cur.ChainID, cfg.ChainID)
	}
	return cur, nil
}

func resolveDerivationModes(cfg *config.SignCheckConfig, cur *currency.CryptoCurrency) ([]account.DerivationMode, error) {
	names := cfg.DerivationModes
	if len(names) == 0 {
		names = cur.DerivationModes
	}
	modes := make([]account.DerivationMode, 0, len(names))
	for _, name := range names {
		m, err := account.ParseDerivationMode(name)
		if err != nil {
			return nil, err
		}
		modes = append(modes, m)
	}
	return modes, nil
}

func newChainClient(rpcUrl string, l *zap.Logger) (chainClient, error) {
	ethereumClient := ethereum.NewEthereumClient(&ethereum.EthereumClientConfig{
		BaseUrl:   rpcUrl,
		BlockType: ethereum.BlockType_Latest,
	}, l)

	ethClient, err := ethereumClient.GetEthereumContractCaller()
	if err != nil {
		return nil, fmt.Errorf("failed to get Ethereum contract caller: %w", err)
	}
	return ethClient, nil
}

func newRegistry(cfg *config.SignCheckConfig, l *zap.Logger) *transport.Registry {
	registry := transport.NewRegistry(l)
	switch cfg.Transport {
	case config.TransportTypeTCP:
		registry.RegisterTransportModule(transport.NewSpeculosModule(cfg.SpeculosAddress, l))
	default:
		registry.RegisterTransportModule(transport.NewHIDModule(ledger_go.NewLedgerAdmin(), l))
	}
	return registry
}

func newEnvironment(ctx context.Context, c *cli.Context) (*environment, error) {
	l, err := newLogger(c)
	if err != nil {
		return nil, err
	}
	env := &environment{cfg: parseConfig(c), logger: l}

	if err := env.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if env.currency, err = resolveCurrency(env.cfg); err != nil {
		return nil, err
	}
	if env.modes, err = resolveDerivationModes(env.cfg, env.currency); err != nil {
		return nil, err
	}
	l.Sugar().Infow("Using currency",
		"currency", env.currency.ID,
		"chainId", env.currency.ChainID,
		"signer", env.cfg.Signer.Type,
		"persistence", env.cfg.Persistence.Type,
	)

	if env.chain, err = newChainClient(env.cfg.RpcUrl, l); err != nil {
		return nil, err
	}
	env.verifier = verifier.NewVerifier(env.chain, l)

	env.signer, err = signer.New(ctx, env.cfg.Signer, signer.Options{
		Registry: newRegistry(env.cfg, l),
		DeviceID: env.cfg.DeviceID,
	}, l)
	if err != nil {
		return nil, fmt.Errorf("failed to create signer: %w", err)
	}
	if ws, ok := env.signer.(*signer.Web3Signer); ok {
		if err := ws.CheckAccount(ctx); err != nil {
			return nil, err
		}
	}

	if env.store, err = store.NewStore(env.cfg.Persistence, l); err != nil {
		return nil, fmt.Errorf("failed to open persistence: %w", err)
	}
	return env, nil
}

func formatBalance(cur *currency.CryptoCurrency, balance *big.Int) string {
	return currency.FormatCurrencyUnit(cur.DefaultUnit(), balance, currency.FormatOptions{ShowCode: true, MaxDecimals: 6})
}

func printResult(res *roundtrip.VerificationResult) {
	fmt.Printf("%-9s valid=%-5t method=%-9s hash=%s\n", res.Kind, res.Valid, res.Method, res.MessageHash.Hex())
	fmt.Printf("          address=%s signature=%s\n", res.Address.Hex(), res.Signature.Hex)
}

func runCommand(c *cli.Context) error {
	ctx, cancel := commandContext(c)
	defer cancel()

	env, err := newEnvironment(ctx, c)
	if err != nil {
		return err
	}
	defer env.Close()

	report, err := env.runner().Run(ctx)
	if report != nil && report.Account.ID != "" {
		fmt.Printf("run %s account %s (%s) balance %s\n",
			report.RunID, report.Account.FreshAddress.Hex(), report.Account.FreshAddressPath,
			formatBalance(env.currency, report.Account.Balance))
		for _, res := range report.Results {
			printResult(res)
		}
	}
	return err
}

func scanCommand(c *cli.Context) error {
	ctx, cancel := commandContext(c)
	defer cancel()

	env, err := newEnvironment(ctx, c)
	if err != nil {
		return err
	}
	defer env.Close()

	scanner := account.NewScanner(env.chain, env.signer, env.cfg.ScanLimit, env.logger)
	for ev := range scanner.ScanAccounts(ctx, env.currency, env.modes) {
		if ev.Err != nil {
			return ev.Err
		}
		acc := ev.Account
		if err := env.store.SaveAccount(&acc); err != nil {
			return fmt.Errorf("failed to save account %s: %w", acc.ID, err)
		}
		fmt.Printf("%-10s %3d %-22s %s %s ops=%d\n",
			acc.DerivationMode, acc.Index, acc.FreshAddressPath, acc.FreshAddress.Hex(),
			formatBalance(env.currency, acc.Balance), acc.OperationsCount)
	}
	return ctx.Err()
}

func readTypedData(file string) (*message.Message, error) {
	if file == "" {
		return message.ExampleTypedData(), nil
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read typed data file: %w", err)
	}
	td, err := message.ParseTypedData(string(data))
	if err != nil {
		return nil, err
	}
	return message.NewTypedDataMessage(td), nil
}

func signCommand(c *cli.Context) error {
	ctx, cancel := commandContext(c)
	defer cancel()

	var (
		msg *message.Message
		err error
	)
	switch c.String("type") {
	case "personal":
		text := c.String("message")
		if text == "" {
			text = message.ExamplePersonalMessage
		}
		msg = message.NewPersonalMessage(text)
	case "typed", string(message.KindTypedData):
		if msg, err = readTypedData(c.String("typed-data-file")); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown message type %q, expected personal or typed", c.String("type"))
	}

	env, err := newEnvironment(ctx, c)
	if err != nil {
		return err
	}
	defer env.Close()

	runner := env.runner()

	var acc account.Account
	if p := c.String("path"); p != "" {
		acc, err = accountAtPath(ctx, env, p)
	} else {
		acc, err = runner.Discover(ctx)
	}
	if err != nil {
		return err
	}
	if acc, err = runner.Sync(ctx, acc); err != nil {
		return err
	}

	res, err := runner.SignAndVerify(ctx, uuid.NewString(), acc, msg)
	if res != nil {
		printResult(res)
	}
	return err
}

func accountAtPath(ctx context.Context, env *environment, p string) (account.Account, error) {
	path, err := accounts.ParseDerivationPath(p)
	if err != nil {
		return account.Account{}, fmt.Errorf("invalid derivation path %q: %w", p, err)
	}
	address, err := env.signer.DeriveAddress(ctx, path)
	if err != nil {
		return account.Account{}, fmt.Errorf("failed to derive address for %s: %w", path, err)
	}
	return account.Account{
		ID:               account.AccountID(env.currency.ID, address, account.DerivationModeBIP44),
		CurrencyID:       env.currency.ID,
		DerivationMode:   account.DerivationModeBIP44,
		FreshAddress:     address,
		FreshAddressPath: path.String(),
		Balance:          big.NewInt(0),
		ChainID:          env.currency.ChainID,
	}, nil
}

func verifyCommand(c *cli.Context) error {
	ctx, cancel := commandContext(c)
	defer cancel()

	l, err := newLogger(c)
	if err != nil {
		return err
	}
	defer func() { _ = l.Sync() }()

	if !common.IsHexAddress(c.String("address")) {
		return fmt.Errorf("invalid address %q", c.String("address"))
	}
	address := common.HexToAddress(c.String("address"))

	sig, err := hexutil.Decode(c.String("signature"))
	if err != nil {
		return fmt.Errorf("invalid signature hex: %w", err)
	}

	var msg *message.Message
	switch {
	case c.String("typed-data-file") != "":
		if msg, err = readTypedData(c.String("typed-data-file")); err != nil {
			return err
		}
	case c.IsSet("message"):
		msg = message.NewPersonalMessage(c.String("message"))
	default:
		return fmt.Errorf("one of --message or --typed-data-file is required")
	}
	hash, err := msg.Hash()
	if err != nil {
		return err
	}

	cfg := parseConfig(c)
	cur, err := resolveCurrency(cfg)
	if err != nil {
		return err
	}
	chainID := new(big.Int).SetUint64(uint64(cur.ChainID))

	var reader verifier.CodeReader
	if c.Bool("onchain") {
		if reader, err = newChainClient(cfg.RpcUrl, l); err != nil {
			return err
		}
	}

	res, err := verifier.NewVerifier(reader, l).Verify(ctx, address, sig, hash, chainID)
	if err != nil {
		return err
	}

	fmt.Printf("%-9s valid=%-5t method=%-9s hash=%s recovered=%s\n", msg.Kind, res.Valid, res.Method, hash.Hex(), res.Recovered.Hex())
	if !res.Valid {
		return roundtrip.ErrSignatureInvalid
	}
	return nil
}

func historyCommand(c *cli.Context) error {
	l, err := newLogger(c)
	if err != nil {
		return err
	}
	defer func() { _ = l.Sync() }()

	s, err := store.NewStore(parseConfig(c).Persistence, l)
	if err != nil {
		return fmt.Errorf("failed to open persistence: %w", err)
	}
	defer func() { _ = s.Close() }()

	records, err := s.ListVerifications(c.String("run-id"))
	if err != nil {
		return err
	}
	for _, r := range records {
		fmt.Printf("%s %s %-9s valid=%-5t method=%-9s chain=%d %s %s\n",
			r.Timestamp.Format("2006-01-02T15:04:05Z07:00"), r.RunID, r.Kind, r.Valid, r.Method,
			r.ChainID, r.Address.Hex(), r.MessageHash.Hex())
	}
	return nil
}

func devicesCommand(c *cli.Context) error {
	ids := transport.ListLedgerDevices(ledger_go.NewLedgerAdmin())
	if len(ids) == 0 {
		fmt.Println("no Ledger devices found")
		return nil
	}
	for _, id := range ids {
		fmt.Println(id)
	}
	return nil
}
