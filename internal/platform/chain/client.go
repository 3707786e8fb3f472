// Package chain talks to the relayer gateway that submits access-control
// transactions to the record registry contract. Requests are HMAC-SHA256
// signed so the gateway can authenticate the vault without shared TLS
// infrastructure.
package chain

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// TxState is the lifecycle state of a submitted transaction.
type TxState string

const (
	TxPending   TxState = "pending"
	TxConfirmed TxState = "confirmed"
	TxFailed    TxState = "failed"
	TxUnknown   TxState = "unknown"
)

// AccessContract is the on-chain access control surface the vault depends on.
// Grant and Revoke submit transactions and return the transaction hash;
// confirmation is observed separately through TxStatus.
type AccessContract interface {
	Grant(ctx context.Context, tokenID, grantee string) (string, error)
	Revoke(ctx context.Context, tokenID, grantee string) (string, error)
	HasAccess(ctx context.Context, tokenID, address string) (bool, error)
	GrantedAddresses(ctx context.Context, tokenID string) ([]string, error)
	TxStatus(ctx context.Context, txHash string) (TxState, error)
}

// SignPayload computes an HMAC-SHA256 signature of the payload using the given
// secret, returning the hex-encoded result.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature returns true when the hex-encoded signature matches the
// HMAC-SHA256 of payload under the given secret.
func VerifySignature(payload []byte, secret, signature string) bool {
	expected := SignPayload(payload, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) { cl.httpClient = c }
}

// Client is the HTTP implementation of AccessContract against the relayer
// gateway.
type Client struct {
	baseURL    string
	secret     string
	httpClient *http.Client
}

// NewClient creates a gateway client. The base URL must use http or https.
func NewClient(baseURL, secret string, opts ...ClientOption) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("chain: gateway url is required")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("chain: invalid gateway url: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, fmt.Errorf("chain: gateway url scheme must be http or https, got %q", u.Scheme)
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  secret,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

type submitRequest struct {
	TokenID string `json:"token_id"`
	Grantee string `json:"grantee"`
}

type submitResponse struct {
	TxHash string `json:"tx_hash"`
}

// Grant submits a grant-access transaction and returns the transaction hash.
func (c *Client) Grant(ctx context.Context, tokenID, grantee string) (string, error) {
	return c.submit(ctx, "/v1/access/grant", tokenID, grantee)
}

// Revoke submits a revoke-access transaction and returns the transaction hash.
func (c *Client) Revoke(ctx context.Context, tokenID, grantee string) (string, error) {
	return c.submit(ctx, "/v1/access/revoke", tokenID, grantee)
}

func (c *Client) submit(ctx context.Context, path, tokenID, grantee string) (string, error) {
	payload, err := json.Marshal(submitRequest{TokenID: tokenID, Grantee: strings.ToLower(grantee)})
	if err != nil {
		return "", fmt.Errorf("chain: marshal request: %w", err)
	}

	var out submitResponse
	if err := c.post(ctx, path, payload, &out); err != nil {
		return "", err
	}
	if out.TxHash == "" {
		return "", fmt.Errorf("chain: gateway returned empty tx hash")
	}
	return out.TxHash, nil
}

// HasAccess asks the gateway for the contract's confirmed view of access.
func (c *Client) HasAccess(ctx context.Context, tokenID, address string) (bool, error) {
	var out struct {
		HasAccess bool `json:"has_access"`
	}
	path := fmt.Sprintf("/v1/access/%s/%s", url.PathEscape(tokenID), url.PathEscape(strings.ToLower(address)))
	if err := c.get(ctx, path, &out); err != nil {
		return false, err
	}
	return out.HasAccess, nil
}

// GrantedAddresses returns all addresses with confirmed access to the token.
func (c *Client) GrantedAddresses(ctx context.Context, tokenID string) ([]string, error) {
	var out struct {
		Addresses []string `json:"addresses"`
	}
	path := fmt.Sprintf("/v1/access/%s", url.PathEscape(tokenID))
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return out.Addresses, nil
}

// TxStatus returns the current state of a submitted transaction.
func (c *Client) TxStatus(ctx context.Context, txHash string) (TxState, error) {
	var out struct {
		Status string `json:"status"`
	}
	path := fmt.Sprintf("/v1/tx/%s", url.PathEscape(txHash))
	if err := c.get(ctx, path, &out); err != nil {
		return TxUnknown, err
	}

	switch TxState(out.Status) {
	case TxPending, TxConfirmed, TxFailed:
		return TxState(out.Status), nil
	default:
		return TxUnknown, nil
	}
}

func (c *Client) post(ctx context.Context, path string, payload []byte, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("chain: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.sign(req, payload)
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("chain: build request: %w", err)
	}
	c.sign(req, []byte(path))
	return c.do(req, out)
}

func (c *Client) sign(req *http.Request, payload []byte) {
	if c.secret == "" {
		return
	}
	now := time.Now().UTC().Format(time.RFC3339)
	req.Header.Set("X-Gateway-Timestamp", now)
	req.Header.Set("X-Gateway-Signature", "sha256="+SignPayload(append([]byte(now), payload...), c.secret))
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("chain: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Read at most 1KB of the error body.
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("chain: gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("chain: decode response: %w", err)
	}
	return nil
}
