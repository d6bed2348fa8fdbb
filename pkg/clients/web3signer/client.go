package web3signer

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Layr-Labs/signcheck-go/pkg/config"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "http://localhost:9000"
	DefaultTimeout = 30 * time.Second

	publicKeysPath = "/api/v1/eth1/publicKeys"
	reloadPath     = "/reload"
	upcheckPath    = "/upcheck"
)

// RetryConfig configures retries of idempotent read calls. Signing is never retried.
type RetryConfig struct {
	MaxAttempts     int
	InitialBackoff  time.Duration
	MaxBackoff      time.Duration
	BackoffMultiple float64
}

var DefaultRetryConfig = RetryConfig{
	MaxAttempts:     5,
	InitialBackoff:  100 * time.Millisecond,
	MaxBackoff:      5 * time.Second,
	BackoffMultiple: 2.0,
}

type Config struct {
	BaseURL string
	Timeout time.Duration
	Retry   RetryConfig

	// PEM encoded TLS material, all optional
	CACert string
	Cert   string
	Key    string
}

func DefaultConfig() *Config {
	return &Config{
		BaseURL: DefaultBaseURL,
		Timeout: DefaultTimeout,
		Retry:   DefaultRetryConfig,
	}
}

type Client struct {
	config     *Config
	httpClient *http.Client
	logger     *zap.Logger
	requestID  atomic.Uint64
}

type jsonRPCRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      uint64        `json:"id"`
}

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("web3signer rpc error %d: %s", e.Code, e.Message)
}

type jsonRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
	ID      uint64          `json:"id"`
}

// HTTPError is returned for non 2xx responses
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("web3signer returned HTTP %d: %s", e.StatusCode, e.Body)
}

func NewClient(cfg *Config, logger *zap.Logger) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retry.MaxAttempts < 1 {
		cfg.Retry = DefaultRetryConfig
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	tlsConfig, err := buildTLSConfig(cfg)
	if err != nil {
		return nil, err
	}
	if tlsConfig != nil {
		transport.TLSClientConfig = tlsConfig
	}

	return &Client{
		config: cfg,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		logger: logger,
	}, nil
}

// NewWeb3SignerClientFromRemoteSignerConfig builds a client from the signer section of the app config
func NewWeb3SignerClientFromRemoteSignerConfig(rsc *config.RemoteSignerConfig, l *zap.Logger) (*Client, error) {
	cfg := DefaultConfig()
	if rsc != nil {
		if rsc.Url != "" {
			cfg.BaseURL = rsc.Url
		}
		cfg.CACert = rsc.CACert
		cfg.Cert = rsc.Cert
		cfg.Key = rsc.Key
	}
	return NewClient(cfg, l)
}

func buildTLSConfig(cfg *Config) (*tls.Config, error) {
	if cfg.CACert == "" && cfg.Cert == "" && cfg.Key == "" {
		return nil, nil
	}
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if cfg.CACert != "" {
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM([]byte(cfg.CACert)) {
			return nil, fmt.Errorf("failed to parse web3signer CA certificate")
		}
		tlsConfig.RootCAs = pool
	}
	if cfg.Cert != "" || cfg.Key != "" {
		cert, err := tls.X509KeyPair([]byte(cfg.Cert), []byte(cfg.Key))
		if err != nil {
			return nil, fmt.Errorf("failed to load web3signer client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}
	return tlsConfig, nil
}

func (c *Client) SetHttpClient(client *http.Client) {
	c.httpClient = client
}

func (c *Client) url(path string) string {
	return strings.TrimRight(c.config.BaseURL, "/") + path
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, accept string) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call web3signer %s: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read web3signer response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}
	return respBody, nil
}

// withRetry retries fn on transport errors and 5xx responses
func (c *Client) withRetry(ctx context.Context, name string, fn func() error) error {
	backoff := c.config.Retry.InitialBackoff
	var err error
	for attempt := 0; attempt < c.config.Retry.MaxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		var httpErr *HTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode < 500 {
			return err
		}
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) {
			return err
		}
		if attempt == c.config.Retry.MaxAttempts-1 {
			break
		}
		c.logger.Sugar().Debugw("Retrying web3signer call", "call", name, "attempt", attempt+1, "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = time.Duration(float64(backoff) * c.config.Retry.BackoffMultiple)
		if backoff > c.config.Retry.MaxBackoff {
			backoff = c.config.Retry.MaxBackoff
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", name, c.config.Retry.MaxAttempts, err)
}

func (c *Client) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	if params == nil {
		params = []interface{}{}
	}
	req := jsonRPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.requestID.Add(1),
	}
	body, err := c.do(ctx, http.MethodPost, "/", req, "application/json")
	if err != nil {
		return err
	}

	var resp jsonRPCResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", method, err)
	}
	if resp.Error != nil {
		return resp.Error
	}
	if err := json.Unmarshal(resp.Result, result); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return nil
}

func (c *Client) EthAccounts(ctx context.Context) ([]string, error) {
	var accounts []string
	err := c.withRetry(ctx, "eth_accounts", func() error {
		return c.call(ctx, "eth_accounts", nil, &accounts)
	})
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

// EthSign signs hex encoded data with the personal message prefix
func (c *Client) EthSign(ctx context.Context, account string, data string) (string, error) {
	var signature string
	if err := c.call(ctx, "eth_sign", []interface{}{account, data}, &signature); err != nil {
		return "", fmt.Errorf("eth_sign failed: %w", err)
	}
	return signature, nil
}

// EthSignTypedData signs an EIP-712 document
func (c *Client) EthSignTypedData(ctx context.Context, account string, typedData interface{}) (string, error) {
	var signature string
	if err := c.call(ctx, "eth_signTypedData", []interface{}{account, typedData}, &signature); err != nil {
		return "", fmt.Errorf("eth_signTypedData failed: %w", err)
	}
	return signature, nil
}

// ListPublicKeys returns the secp256k1 public keys loaded in the signer
func (c *Client) ListPublicKeys(ctx context.Context) ([]string, error) {
	var keys []string
	err := c.withRetry(ctx, "list public keys", func() error {
		body, err := c.do(ctx, http.MethodGet, publicKeysPath, nil, "application/json")
		if err != nil {
			return err
		}
		return json.Unmarshal(body, &keys)
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (c *Client) Upcheck(ctx context.Context) error {
	return c.withRetry(ctx, "upcheck", func() error {
		_, err := c.do(ctx, http.MethodGet, upcheckPath, nil, "text/plain")
		return err
	})
}

func (c *Client) ReloadKeys(ctx context.Context) error {
	return c.withRetry(ctx, "reload", func() error {
		_, err := c.do(ctx, http.MethodPost, reloadPath, nil, "")
		return err
	})
}

// ReloadKeysAndWaitForPublicKey triggers a reload and polls until publicKey is served or ctx ends
func (c *Client) ReloadKeysAndWaitForPublicKey(ctx context.Context, publicKey string) error {
	if err := c.ReloadKeys(ctx); err != nil {
		return err
	}

	want := strings.ToLower(strings.TrimPrefix(publicKey, "0x"))
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		keys, err := c.ListPublicKeys(ctx)
		if err != nil {
			return err
		}
		for _, k := range keys {
			if strings.ToLower(strings.TrimPrefix(k, "0x")) == want {
				return nil
			}
		}
		c.logger.Sugar().Debugw("Waiting for web3signer to load key", "publicKey", publicKey)

		select {
		case <-ctx.Done():
			return fmt.Errorf("public key %s not loaded: %w", publicKey, ctx.Err())
		case <-ticker.C:
		}
	}
}
