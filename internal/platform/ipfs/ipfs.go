// Package ipfs is a thin client for the IPFS HTTP API. Record content is
// uploaded to IPFS by the frontend before registration; the vault only pins
// CIDs so the content survives gateway garbage collection, and stats them to
// verify the CID resolves.
package ipfs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var ErrNotFound = errors.New("ipfs: cid not found")

// Pinner is the pinning surface the record registry depends on.
type Pinner interface {
	Pin(ctx context.Context, cid string) error
	Stat(ctx context.Context, cid string) (*Stat, error)
}

// Stat describes a pinned object.
type Stat struct {
	CID  string `json:"cid"`
	Size int64  `json:"size"`
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) { cl.httpClient = c }
}

// Client talks to an IPFS node's HTTP API (the /api/v0 surface).
type Client struct {
	apiURL     string
	httpClient *http.Client
}

// NewClient creates a client for the given API URL, e.g. http://127.0.0.1:5001.
func NewClient(apiURL string, opts ...ClientOption) (*Client, error) {
	if apiURL == "" {
		return nil, fmt.Errorf("ipfs: api url is required")
	}
	if _, err := url.Parse(apiURL); err != nil {
		return nil, fmt.Errorf("ipfs: invalid api url: %w", err)
	}

	c := &Client{
		apiURL: strings.TrimRight(apiURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Pin asks the node to pin the CID recursively.
func (c *Client) Pin(ctx context.Context, cid string) error {
	if err := validateCID(cid); err != nil {
		return err
	}

	var out struct {
		Pins []string `json:"Pins"`
	}
	if err := c.post(ctx, "/api/v0/pin/add?arg="+url.QueryEscape(cid), &out); err != nil {
		return err
	}
	if len(out.Pins) == 0 {
		return fmt.Errorf("ipfs: node reported no pins for %s", cid)
	}
	return nil
}

// Stat resolves the CID and returns its cumulative size.
func (c *Client) Stat(ctx context.Context, cid string) (*Stat, error) {
	if err := validateCID(cid); err != nil {
		return nil, err
	}

	var out struct {
		Hash           string `json:"Hash"`
		CumulativeSize int64  `json:"CumulativeSize"`
	}
	if err := c.post(ctx, "/api/v0/object/stat?arg="+url.QueryEscape(cid), &out); err != nil {
		return nil, err
	}
	return &Stat{CID: out.Hash, Size: out.CumulativeSize}, nil
}

// post issues an IPFS API call. The API uses POST for all operations.
func (c *Client) post(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+path, nil)
	if err != nil {
		return fmt.Errorf("ipfs: build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ipfs: %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("ipfs: node returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("ipfs: decode response: %w", err)
	}
	return nil
}

// validateCID applies a shape check. Real validation happens at the node;
// this just rejects obvious garbage before a network round trip.
func validateCID(cid string) error {
	if cid == "" {
		return fmt.Errorf("ipfs: cid is required")
	}
	if len(cid) < 10 || strings.ContainsAny(cid, " /?#") {
		return fmt.Errorf("ipfs: malformed cid %q", cid)
	}
	return nil
}
