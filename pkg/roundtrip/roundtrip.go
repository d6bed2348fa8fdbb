package roundtrip

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/Layr-Labs/signcheck-go/pkg/account"
	"github.com/Layr-Labs/signcheck-go/pkg/config"
	"github.com/Layr-Labs/signcheck-go/pkg/message"
	"github.com/Layr-Labs/signcheck-go/pkg/persistence"
	"github.com/Layr-Labs/signcheck-go/pkg/signer"
	"github.com/Layr-Labs/signcheck-go/pkg/verifier"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

var ErrSignatureInvalid = errors.New("signature does not verify against the account address")

// SignatureVerifier is satisfied by *verifier.Verifier
type SignatureVerifier interface {
	Verify(ctx context.Context, address common.Address, sig []byte, hash common.Hash, chainID *big.Int) (*verifier.Result, error)
}

// VerificationResult is the outcome of one sign + verify round-trip
type VerificationResult struct {
	RunID       string
	AccountID   string
	Kind        message.Kind
	MessageHash common.Hash
	Signature   *signer.SignatureResult
	Address     common.Address
	ChainID     config.ChainId
	Valid       bool
	Method      string
	Timestamp   time.Time
}

func (r *VerificationResult) Record() *persistence.VerificationRecord {
	rec := &persistence.VerificationRecord{
		ID:          uuid.NewString(),
		RunID:       r.RunID,
		AccountID:   r.AccountID,
		Kind:        r.Kind,
		MessageHash: r.MessageHash,
		Address:     r.Address,
		ChainID:     r.ChainID,
		Valid:       r.Valid,
		Method:      r.Method,
		Timestamp:   r.Timestamp,
	}
	if r.Signature != nil {
		rec.Signature = r.Signature.Hex
	}
	return rec
}

// RoundTrip hashes msg the way the signer will, asks s for a single signature from
// acc's key and verifies it against acc's address on acc's chain.
//
// A signer failure is returned as is and never retried. An invalid signature is
// not an error here; callers decide whether it is fatal.
func RoundTrip(ctx context.Context, s signer.IMessageSigner, v SignatureVerifier, acc account.Account, msg *message.Message) (*VerificationResult, error) {
	hash, err := msg.Hash()
	if err != nil {
		return nil, fmt.Errorf("failed to hash %s message: %w", msg.Kind, err)
	}

	req, err := signer.NewSignRequest(acc, msg)
	if err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	sig, err := s.SignMessage(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to sign %s message with %s: %w", msg.Kind, acc.FreshAddressPath, err)
	}

	res, err := v.Verify(ctx, acc.FreshAddress, sig.Signature, hash, new(big.Int).SetUint64(uint64(acc.ChainID)))
	if err != nil {
		return nil, fmt.Errorf("failed to verify %s signature: %w", msg.Kind, err)
	}

	return &VerificationResult{
		AccountID:   acc.ID,
		Kind:        msg.Kind,
		MessageHash: hash,
		Signature:   sig,
		Address:     acc.FreshAddress,
		ChainID:     acc.ChainID,
		Valid:       res.Valid,
		Method:      res.Method,
		Timestamp:   time.Now().UTC(),
	}, nil
}
