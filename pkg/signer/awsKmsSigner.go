package signer

import (
	"context"
	cryptoEcdsa "crypto/ecdsa"
	"encoding/asn1"
	"fmt"
	"math/big"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var (
	secp256k1N     = crypto.S256().Params().N
	secp256k1HalfN = new(big.Int).Rsh(secp256k1N, 1)
)

// KMSAPI is the part of *kms.Client used for signing
type KMSAPI interface {
	GetPublicKey(ctx context.Context, params *kms.GetPublicKeyInput, optFns ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error)
	Sign(ctx context.Context, params *kms.SignInput, optFns ...func(*kms.Options)) (*kms.SignOutput, error)
}

// AWSKMSSigner signs digests with an ECC_SECG_P256K1 key held in AWS KMS
type AWSKMSSigner struct {
	kmsClient KMSAPI
	keyId     string
	logger    *zap.Logger

	// guards publicKey and address, set once GetPublicKey succeeds
	mu        sync.Mutex
	publicKey *cryptoEcdsa.PublicKey
	address   common.Address
}

func NewAWSKMSSignerFromConfig(awsCfg aws.Config, keyId string, l *zap.Logger) *AWSKMSSigner {
	return NewAWSKMSSigner(kms.NewFromConfig(awsCfg), keyId, l)
}

func NewAWSKMSSigner(client KMSAPI, keyId string, l *zap.Logger) *AWSKMSSigner {
	return &AWSKMSSigner{kmsClient: client, keyId: keyId, logger: l}
}

type asn1EcSig struct {
	R asn1.RawValue
	S asn1.RawValue
}

type asn1EcPublicKey struct {
	EcPublicKeyInfo asn1EcPublicKeyInfo
	PublicKey       asn1.BitString
}

type asn1EcPublicKeyInfo struct {
	Algorithm  asn1.ObjectIdentifier
	Parameters asn1.ObjectIdentifier
}

// parseECDSAPublicKey parses the DER SubjectPublicKeyInfo returned by KMS
func parseECDSAPublicKey(derBytes []byte) (*cryptoEcdsa.PublicKey, error) {
	var asn1pubk asn1EcPublicKey
	if _, err := asn1.Unmarshal(derBytes, &asn1pubk); err != nil {
		return nil, fmt.Errorf("failed to parse ASN.1 public key: %w", err)
	}
	return crypto.UnmarshalPubkey(asn1pubk.PublicKey.Bytes)
}

func (s *AWSKMSSigner) loadPublicKey(ctx context.Context) (*cryptoEcdsa.PublicKey, common.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.publicKey != nil {
		return s.publicKey, s.address, nil
	}

	out, err := s.kmsClient.GetPublicKey(ctx, &kms.GetPublicKeyInput{KeyId: aws.String(s.keyId)})
	if err != nil {
		return nil, common.Address{}, errors.Wrapf(err, "failed to get public key for key %s", s.keyId)
	}
	pub, err := parseECDSAPublicKey(out.PublicKey)
	if err != nil {
		return nil, common.Address{}, errors.Wrapf(err, "failed to parse public key for key %s", s.keyId)
	}
	s.publicKey = pub
	s.address = crypto.PubkeyToAddress(*pub)
	s.logger.Sugar().Debugw("Loaded KMS public key", "keyId", s.keyId, "address", s.address.Hex())
	return s.publicKey, s.address, nil
}

func (s *AWSKMSSigner) DeriveAddress(ctx context.Context, path accounts.DerivationPath) (common.Address, error) {
	_, address, err := s.loadPublicKey(ctx)
	return address, err
}

func (s *AWSKMSSigner) SignMessage(ctx context.Context, req *SignRequest) (*SignatureResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	hash, err := req.Message.Hash()
	if err != nil {
		return nil, err
	}
	sig, err := s.signDigest(ctx, hash)
	if err != nil {
		return nil, err
	}
	return NewSignatureResult(sig)
}

func (s *AWSKMSSigner) signDigest(ctx context.Context, hash common.Hash) ([]byte, error) {
	expectedPubKey, _, err := s.loadPublicKey(ctx)
	if err != nil {
		return nil, err
	}

	signOutput, err := s.kmsClient.Sign(ctx, &kms.SignInput{
		KeyId:            aws.String(s.keyId),
		Message:          hash.Bytes(),
		SigningAlgorithm: types.SigningAlgorithmSpecEcdsaSha256,
		MessageType:      types.MessageTypeDigest,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "kms sign failed for key %s", s.keyId)
	}

	var sigAsn1 asn1EcSig
	if _, err := asn1.Unmarshal(signOutput.Signature, &sigAsn1); err != nil {
		return nil, errors.Wrap(err, "failed to parse DER signature")
	}

	r := new(big.Int).SetBytes(sigAsn1.R.Bytes)
	sv := new(big.Int).SetBytes(sigAsn1.S.Bytes)
	// Ethereum only accepts the low-S form
	if sv.Cmp(secp256k1HalfN) > 0 {
		sv = new(big.Int).Sub(secp256k1N, sv)
	}

	signature := make([]byte, crypto.SignatureLength)
	r.FillBytes(signature[0:32])
	sv.FillBytes(signature[32:64])

	// KMS does not return a recovery id; find the one that yields our key
	for recoveryId := byte(0); recoveryId < 2; recoveryId++ {
		signature[64] = recoveryId
		recovered, err := crypto.SigToPub(hash.Bytes(), signature)
		if err != nil {
			s.logger.Debug("Ecrecover failed", zap.Uint8("recoveryId", recoveryId), zap.Error(err))
			continue
		}
		if recovered.X.Cmp(expectedPubKey.X) == 0 && recovered.Y.Cmp(expectedPubKey.Y) == 0 {
			signature[64] = 27 + recoveryId
			return signature, nil
		}
	}
	return nil, fmt.Errorf("could not determine valid recovery ID - signature recovery failed")
}
