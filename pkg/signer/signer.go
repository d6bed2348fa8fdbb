package signer

import (
	"context"
	"errors"
	"fmt"

	"github.com/Layr-Labs/signcheck-go/pkg/account"
	"github.com/Layr-Labs/signcheck-go/pkg/message"
	"github.com/Layr-Labs/signcheck-go/pkg/verifier"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

var ErrUnsupportedMessage = errors.New("message kind not supported by signer")

// SignRequest mirrors what a wallet needs to sign: where the key lives and what to sign
type SignRequest struct {
	Path           accounts.DerivationPath
	Message        *message.Message
	CurrencyID     string
	DerivationMode account.DerivationMode
}

// NewSignRequest builds a request for acc's fresh address
func NewSignRequest(acc account.Account, msg *message.Message) (*SignRequest, error) {
	path, err := acc.Path()
	if err != nil {
		return nil, fmt.Errorf("invalid path %q on account %s: %w", acc.FreshAddressPath, acc.ID, err)
	}
	return &SignRequest{
		Path:           path,
		Message:        msg,
		CurrencyID:     acc.CurrencyID,
		DerivationMode: acc.DerivationMode,
	}, nil
}

func (r *SignRequest) Validate() error {
	if len(r.Path) == 0 {
		return fmt.Errorf("sign request has no derivation path")
	}
	if r.Message == nil {
		return fmt.Errorf("sign request has no message")
	}
	switch r.Message.Kind {
	case message.KindPersonal:
	case message.KindTypedData:
		if r.Message.TypedData == nil {
			return fmt.Errorf("typed data message has no payload")
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedMessage, r.Message.Kind)
	}
	return nil
}

// SignatureResult holds a 65 byte r || s || v signature with v in {27, 28}
type SignatureResult struct {
	Signature []byte `json:"-"`
	Hex       string `json:"signature"`
}

func NewSignatureResult(sig []byte) (*SignatureResult, error) {
	normalized, err := verifier.NormalizeSignature(sig)
	if err != nil {
		return nil, err
	}
	return &SignatureResult{Signature: normalized, Hex: hexutil.Encode(normalized)}, nil
}

// ParseSignatureResult decodes a hex signature as returned by remote signers
func ParseSignatureResult(sig string) (*SignatureResult, error) {
	raw, err := hexutil.Decode(sig)
	if err != nil {
		return nil, fmt.Errorf("invalid signature hex: %w", err)
	}
	return NewSignatureResult(raw)
}

// IMessageSigner signs personal and EIP-712 messages for keys addressed by derivation path
type IMessageSigner interface {
	SignMessage(ctx context.Context, req *SignRequest) (*SignatureResult, error)

	// DeriveAddress returns the address of the key at path. Signers holding a single
	// key return that key's address for every path.
	DeriveAddress(ctx context.Context, path accounts.DerivationPath) (common.Address, error)
}
