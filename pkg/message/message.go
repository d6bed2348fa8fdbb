package message

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

type Kind string

const (
	KindPersonal  Kind = "personal"
	KindTypedData Kind = "typedData"
)

// Message is what gets handed to a signer. Exactly one of Text or TypedData is set,
// depending on Kind.
type Message struct {
	Kind      Kind                `json:"kind"`
	Text      string              `json:"text,omitempty"`
	TypedData *apitypes.TypedData `json:"typedData,omitempty"`
}

func NewPersonalMessage(text string) *Message {
	return &Message{Kind: KindPersonal, Text: text}
}

func NewTypedDataMessage(td *apitypes.TypedData) *Message {
	return &Message{Kind: KindTypedData, TypedData: td}
}

// Hash returns the digest a signer is expected to sign for this message
func (m *Message) Hash() (common.Hash, error) {
	switch m.Kind {
	case KindPersonal:
		return HashPersonalMessage(m.Text), nil
	case KindTypedData:
		if m.TypedData == nil {
			return common.Hash{}, fmt.Errorf("typed data message has no payload")
		}
		return HashTypedData(*m.TypedData)
	default:
		return common.Hash{}, fmt.Errorf("unsupported message kind: %s", m.Kind)
	}
}

// HashPersonalMessage hashes text with the "\x19Ethereum Signed Message:\n" prefix
func HashPersonalMessage(text string) common.Hash {
	return common.BytesToHash(accounts.TextHash([]byte(text)))
}

// ParseTypedData decodes an EIP-712 JSON document
func ParseTypedData(data string) (*apitypes.TypedData, error) {
	var td apitypes.TypedData
	if err := json.Unmarshal([]byte(data), &td); err != nil {
		return nil, fmt.Errorf("failed to parse typed data: %w", err)
	}
	if td.PrimaryType == "" {
		return nil, fmt.Errorf("typed data has no primaryType")
	}
	if _, ok := td.Types[td.PrimaryType]; !ok {
		return nil, fmt.Errorf("primaryType %q is not declared in types", td.PrimaryType)
	}
	return &td, nil
}

// HashTypedDataMessage hashes a JSON encoded EIP-712 document
func HashTypedDataMessage(data string) (common.Hash, error) {
	td, err := ParseTypedData(data)
	if err != nil {
		return common.Hash{}, err
	}
	return HashTypedData(*td)
}

// HashTypedData returns keccak256("\x19\x01" || domainSeparator || hashStruct(message))
func HashTypedData(td apitypes.TypedData) (common.Hash, error) {
	hash, _, err := apitypes.TypedDataAndHash(td)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to hash typed data: %w", err)
	}
	return common.BytesToHash(hash), nil
}

// TypedDataParts returns the domain separator and the primary struct hash.
// Devices that cannot parse EIP-712 structures sign these two values instead.
func TypedDataParts(td apitypes.TypedData) (common.Hash, common.Hash, error) {
	domainSeparator, err := td.HashStruct("EIP712Domain", td.Domain.Map())
	if err != nil {
		return common.Hash{}, common.Hash{}, fmt.Errorf("failed to hash domain: %w", err)
	}
	messageHash, err := td.HashStruct(td.PrimaryType, td.Message)
	if err != nil {
		return common.Hash{}, common.Hash{}, fmt.Errorf("failed to hash %s: %w", td.PrimaryType, err)
	}
	return common.BytesToHash(domainSeparator), common.BytesToHash(messageHash), nil
}

func ConvertUtf8ToHex(s string) string {
	return hexutil.Encode([]byte(s))
}

func ConvertHexToUtf8(h string) (string, error) {
	b, err := hexutil.Decode(h)
	if err != nil {
		return "", fmt.Errorf("invalid hex string: %w", err)
	}
	return string(b), nil
}
