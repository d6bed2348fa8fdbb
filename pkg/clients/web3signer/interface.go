package web3signer

import (
	"context"
	"net/http"
)

// IWeb3Signer is the part of the Web3Signer API used for message signing
type IWeb3Signer interface {
	SetHttpClient(client *http.Client)

	// EthAccounts corresponds to the eth_accounts JSON-RPC method
	EthAccounts(ctx context.Context) ([]string, error)

	// EthSign signs hex data with the "\x19Ethereum Signed Message" prefix (eth_sign)
	EthSign(ctx context.Context, account string, data string) (string, error)

	// EthSignTypedData signs an EIP-712 document (eth_signTypedData)
	EthSignTypedData(ctx context.Context, account string, typedData interface{}) (string, error)

	ListPublicKeys(ctx context.Context) ([]string, error)

	// Upcheck fails unless the signer answers its health endpoint
	Upcheck(ctx context.Context) error

	ReloadKeys(ctx context.Context) error

	ReloadKeysAndWaitForPublicKey(ctx context.Context, publicKey string) error
}

var _ IWeb3Signer = (*Client)(nil)
