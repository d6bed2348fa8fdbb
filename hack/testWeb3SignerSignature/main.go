package main

import (
	"context"
	"fmt"
	"os"

	"github.com/Layr-Labs/crypto-libs/pkg/ecdsa"
	"github.com/Layr-Labs/signcheck-go/internal/tests"
	"github.com/Layr-Labs/signcheck-go/pkg/account"
	"github.com/Layr-Labs/signcheck-go/pkg/clients/web3signer"
	"github.com/Layr-Labs/signcheck-go/pkg/config"
	"github.com/Layr-Labs/signcheck-go/pkg/logger"
	"github.com/Layr-Labs/signcheck-go/pkg/message"
	"github.com/Layr-Labs/signcheck-go/pkg/signer"
	"github.com/ethereum/go-ethereum/common"
)

// Signs the same personal message through a local Web3Signer and the matching raw key
// and checks both signatures. Defaults to anvil account 0.
func main() {
	ctx := context.Background()
	l, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})

	privateKey := os.Getenv(config.EnvSignCheckPrivateKey)
	if privateKey == "" {
		privateKey = tests.AnvilAccountPrivateKey0
	}
	url := os.Getenv(config.EnvSignCheckWeb3SignerURL)
	if url == "" {
		url = "http://localhost:9100"
	}

	pkSigner, err := signer.NewInMemorySignerFromHex(privateKey, l)
	if err != nil {
		l.Sugar().Fatalw("failed to create private key signer", "error", err)
	}
	address := pkSigner.Address()

	signerCfg := &config.RemoteSignerConfig{
		Url:         url,
		FromAddress: address.Hex(),
		PublicKey:   os.Getenv(config.EnvSignCheckWeb3SignerPubKey),
	}

	web3SignerClient, err := web3signer.NewWeb3SignerClientFromRemoteSignerConfig(signerCfg, l)
	if err != nil {
		l.Sugar().Fatalw("failed to create Web3Signer client", "error", err)
	}
	w3Signer := signer.NewWeb3Signer(web3SignerClient, address, signerCfg.PublicKey, l)
	if err := w3Signer.CheckAccount(ctx); err != nil {
		l.Sugar().Fatalw("Web3Signer does not hold the key", "error", err)
	}

	msg := message.NewPersonalMessage(message.ExamplePersonalMessage)
	path := account.DerivationModeLedgerLive.PathForIndex(0)
	req := &signer.SignRequest{Path: path, Message: msg, CurrencyID: config.DefaultCurrencyID}

	signatureWeb3, err := w3Signer.SignMessage(ctx, req)
	if err != nil {
		l.Sugar().Fatalw("failed to sign message with Web3Signer", "error", err)
	}
	signaturePK, err := pkSigner.SignMessage(ctx, req)
	if err != nil {
		l.Sugar().Fatalw("failed to sign message with private key signer", "error", err)
	}

	hash, _ := msg.Hash()
	fmt.Printf("Message: %s\n", msg.Text)
	fmt.Printf("Hash:    %s\n", hash.Hex())
	fmt.Printf("Signature (Web3Signer):  %s\n", signatureWeb3.Hex)
	fmt.Printf("Signature (Private Key): %s\n", signaturePK.Hex)

	for name, res := range map[string]*signer.SignatureResult{"Web3Signer": signatureWeb3, "Private Key": signaturePK} {
		fmt.Printf("%s valid: %t\n", name, verify(l.Sugar().Fatalw, res, hash, address))
	}

	if signatureWeb3.Hex == signaturePK.Hex {
		fmt.Println("Signatures match!")
	} else {
		fmt.Println("Signatures do not match!")
	}
}

// verify checks the signature with crypto-libs, which expects v as a 0/1 recovery id
func verify(fatal func(string, ...interface{}), res *signer.SignatureResult, hash common.Hash, address common.Address) bool {
	raw := append([]byte{}, res.Signature...)
	raw[64] -= 27

	sig, err := ecdsa.NewSignatureFromBytes(raw)
	if err != nil {
		fatal("failed to create signature from bytes", "error", err)
	}
	valid, err := sig.VerifyWithAddress(hash.Bytes(), address)
	if err != nil {
		fatal("failed to verify signature", "error", err)
	}
	return valid
}
