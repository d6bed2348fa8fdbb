package web3signer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Layr-Labs/signcheck-go/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func Test_ClientImplementsInterface(t *testing.T) {
	client, err := NewClient(DefaultConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)

	var signer IWeb3Signer = client
	assert.NotNil(t, signer)
}

func Test_NewWeb3SignerClientFromRemoteSignerConfig(t *testing.T) {
	l := zaptest.NewLogger(t)

	t.Run("Should use defaults for a nil config", func(t *testing.T) {
		client, err := NewWeb3SignerClientFromRemoteSignerConfig(nil, l)
		require.NoError(t, err)
		assert.Equal(t, DefaultBaseURL, client.config.BaseURL)
	})

	t.Run("Should take the url from the config", func(t *testing.T) {
		client, err := NewWeb3SignerClientFromRemoteSignerConfig(&config.RemoteSignerConfig{Url: "https://signer:9000"}, l)
		require.NoError(t, err)
		assert.Equal(t, "https://signer:9000", client.config.BaseURL)
	})

	t.Run("Should reject an unparsable CA", func(t *testing.T) {
		_, err := NewWeb3SignerClientFromRemoteSignerConfig(&config.RemoteSignerConfig{CACert: "not a pem"}, l)
		require.Error(t, err)
	})
}

// fakeWeb3Signer serves the JSON-RPC and REST endpoints with canned answers
func fakeWeb3Signer(t *testing.T) (*httptest.Server, *int32) {
	var publicKeyCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		var req jsonRPCRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		resp := jsonRPCResponse{JSONRPC: "2.0", ID: req.ID}
		switch req.Method {
		case "eth_accounts":
			resp.Result = json.RawMessage(`["0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266"]`)
		case "eth_sign":
			resp.Result = json.RawMessage(`"0xsigned-` + req.Params[1].(string) + `"`)
		case "eth_signTypedData":
			resp.Error = &RPCError{Code: -32000, Message: "typed data not allowed"}
		default:
			resp.Error = &RPCError{Code: -32601, Message: "method not found"}
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc(publicKeysPath, func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&publicKeyCalls, 1)
		if n < 2 {
			_, _ = w.Write([]byte(`[]`))
			return
		}
		_, _ = w.Write([]byte(`["0x04abcd"]`))
	})
	mux.HandleFunc(reloadPath, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc(upcheckPath, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &publicKeyCalls
}

func newTestClient(t *testing.T, url string) *Client {
	cfg := DefaultConfig()
	cfg.BaseURL = url
	cfg.Retry = RetryConfig{MaxAttempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, BackoffMultiple: 1}
	client, err := NewClient(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	return client
}

func Test_Client(t *testing.T) {
	ctx := context.Background()
	srv, publicKeyCalls := fakeWeb3Signer(t)
	client := newTestClient(t, srv.URL)

	t.Run("Should list accounts", func(t *testing.T) {
		accounts, err := client.EthAccounts(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266"}, accounts)
	})

	t.Run("Should sign with eth_sign", func(t *testing.T) {
		sig, err := client.EthSign(ctx, "0xf39f", "0x68656c6c6f")
		require.NoError(t, err)
		assert.Equal(t, "0xsigned-0x68656c6c6f", sig)
	})

	t.Run("Should surface rpc errors", func(t *testing.T) {
		_, err := client.EthSignTypedData(ctx, "0xf39f", map[string]interface{}{})
		require.Error(t, err)
		var rpcErr *RPCError
		require.ErrorAs(t, err, &rpcErr)
		assert.Equal(t, -32000, rpcErr.Code)
	})

	t.Run("Should wait for a reloaded key", func(t *testing.T) {
		waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		require.NoError(t, client.ReloadKeysAndWaitForPublicKey(waitCtx, "0x04ABCD"))
		assert.GreaterOrEqual(t, atomic.LoadInt32(publicKeyCalls), int32(2))
	})

	t.Run("Should give up after the retry budget on 5xx", func(t *testing.T) {
		err := client.Upcheck(ctx)
		require.Error(t, err)
		var httpErr *HTTPError
		require.ErrorAs(t, err, &httpErr)
		assert.Equal(t, http.StatusServiceUnavailable, httpErr.StatusCode)
		assert.Contains(t, err.Error(), "after 2 attempts")
	})
}
