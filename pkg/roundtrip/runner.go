package roundtrip

import (
	"context"
	"fmt"
	"time"

	"github.com/Layr-Labs/signcheck-go/pkg/account"
	"github.com/Layr-Labs/signcheck-go/pkg/currency"
	"github.com/Layr-Labs/signcheck-go/pkg/message"
	"github.com/Layr-Labs/signcheck-go/pkg/persistence"
	"github.com/Layr-Labs/signcheck-go/pkg/signer"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type Config struct {
	Currency        *currency.CryptoCurrency
	DerivationModes []account.DerivationMode
	ScanLimit       int
	// SignDelay is waited before every signing request
	SignDelay time.Duration

	PersonalMessage string
	TypedData       *message.Message
}

// Report summarises one scenario run
type Report struct {
	RunID   string
	Account account.Account
	Results []*VerificationResult
}

// Runner drives the scenario: discover, sync, sign a personal message, sign typed data.
// Every step runs to completion before the next one starts.
type Runner struct {
	config   *Config
	chain    account.ChainReader
	signer   signer.IMessageSigner
	verifier SignatureVerifier
	store    persistence.IAccountStore
	logger   *zap.Logger

	newRunID func() string
}

func NewRunner(
	cfg *Config,
	chain account.ChainReader,
	s signer.IMessageSigner,
	v SignatureVerifier,
	store persistence.IAccountStore,
	l *zap.Logger,
) *Runner {
	return &Runner{
		config:   cfg,
		chain:    chain,
		signer:   s,
		verifier: v,
		store:    store,
		logger:   l,
		newRunID: uuid.NewString,
	}
}

func (r *Runner) formatBalance(acc account.Account) string {
	return currency.FormatCurrencyUnit(r.config.Currency.DefaultUnit(), acc.Balance, currency.FormatOptions{ShowCode: true, MaxDecimals: 6})
}

// Discover returns the first account with a positive balance
func (r *Runner) Discover(ctx context.Context) (account.Account, error) {
	scanner := account.NewScanner(r.chain, r.signer, r.config.ScanLimit, r.logger)
	acc, err := scanner.FirstNonEmpty(ctx, r.config.Currency, r.config.DerivationModes)
	if err != nil {
		return account.Account{}, err
	}
	r.logger.Sugar().Infow("Found account",
		"id", acc.ID,
		"path", acc.FreshAddressPath,
		"balance", r.formatBalance(acc),
	)
	return acc, nil
}

// Sync brings acc up to date and stores the result
func (r *Runner) Sync(ctx context.Context, acc account.Account) (account.Account, error) {
	syncer := account.NewSyncer(r.chain, r.logger)

	synced, err := account.Reduce(ctx, acc, syncer.Sync(ctx, acc))
	if err != nil {
		return account.Account{}, fmt.Errorf("failed to sync account %s: %w", acc.ID, err)
	}
	if err := r.store.SaveAccount(&synced); err != nil {
		return account.Account{}, fmt.Errorf("failed to save account %s: %w", acc.ID, err)
	}

	r.logger.Sugar().Infow("Synced account",
		"id", synced.ID,
		"blockHeight", synced.BlockHeight,
		"operations", synced.OperationsCount,
		"balance", r.formatBalance(synced),
	)
	return synced, nil
}

// wait blocks for the configured sign delay
func (r *Runner) wait(ctx context.Context) error {
	if r.config.SignDelay <= 0 {
		return nil
	}
	limiter := rate.NewLimiter(rate.Every(r.config.SignDelay), 1)
	limiter.Allow()
	return limiter.Wait(ctx)
}

// SignAndVerify waits the sign delay, runs one round-trip and records it.
// A signature that fails verification is recorded and returned with ErrSignatureInvalid.
func (r *Runner) SignAndVerify(ctx context.Context, runID string, acc account.Account, msg *message.Message) (*VerificationResult, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}

	r.logger.Sugar().Infow("Requesting signature",
		"runId", runID,
		"kind", msg.Kind,
		"address", acc.FreshAddress.Hex(),
		"path", acc.FreshAddressPath,
	)

	res, err := RoundTrip(ctx, r.signer, r.verifier, acc, msg)
	if err != nil {
		return nil, err
	}
	res.RunID = runID

	if err := r.store.SaveVerification(res.Record()); err != nil {
		return nil, fmt.Errorf("failed to save verification: %w", err)
	}

	r.logger.Sugar().Infow("Verified signature",
		"runId", runID,
		"kind", res.Kind,
		"hash", res.MessageHash.Hex(),
		"signature", res.Signature.Hex,
		"method", res.Method,
		"valid", res.Valid,
	)

	if !res.Valid {
		return res, fmt.Errorf("%w: %s message, address %s", ErrSignatureInvalid, res.Kind, res.Address.Hex())
	}
	return res, nil
}

// Run executes the whole scenario once. The first failure ends the run.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	report := &Report{RunID: r.newRunID()}
	r.logger.Sugar().Infow("Starting sign check", "runId", report.RunID, "currency", r.config.Currency.ID)

	acc, err := r.Discover(ctx)
	if err != nil {
		return report, err
	}

	acc, err = r.Sync(ctx, acc)
	if err != nil {
		return report, err
	}
	report.Account = acc

	messages := []*message.Message{message.NewPersonalMessage(r.config.PersonalMessage)}
	if r.config.TypedData != nil {
		messages = append(messages, r.config.TypedData)
	}

	for _, msg := range messages {
		res, err := r.SignAndVerify(ctx, report.RunID, acc, msg)
		if res != nil {
			report.Results = append(report.Results, res)
		}
		if err != nil {
			return report, err
		}
	}

	r.logger.Sugar().Infow("Sign check passed", "runId", report.RunID, "signatures", len(report.Results))
	return report, nil
}
