// Package vyos talks to VyOS 1.3 routers over the HTTPS configuration API.
package vyos

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"

	"grimm.is/fwplan/internal/brand"
	"grimm.is/fwplan/internal/configtree"
)

// ErrAPIFailure is wrapped by errors the device reported in a well-formed
// response.
var ErrAPIFailure = errors.New("device API reported failure")

// Client is a VyOS 1.3 HTTP API client.
type Client struct {
	baseURL    string
	apiKey     string
	verifyTLS  bool
	timeout    time.Duration
	httpClient *http.Client
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithAPIKey sets the API key sent with every request.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithTLSVerify toggles server certificate verification.
func WithTLSVerify(verify bool) ClientOption {
	return func(c *Client) {
		c.verifyTLS = verify
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithHTTPClient replaces the underlying HTTP client. TLS and timeout
// options are not applied to a supplied client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a client for the device at baseURL, for example
// "https://192.0.2.1".
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		verifyTLS: true,
		timeout:   30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		transport := cleanhttp.DefaultPooledTransport()
		transport.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: !c.verifyTLS, // routers commonly ship self-signed certificates
			MinVersion:         tls.VersionTLS12,
		}
		c.httpClient = &http.Client{
			Transport: transport,
			Timeout:   c.timeout,
		}
	}
	return c
}

type showConfigRequest struct {
	Op   string   `json:"op"`
	Path []string `json:"path"`
}

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *string         `json:"error"`
}

// Retrieve returns the configuration at path ([] for the whole device).
func (c *Client) Retrieve(ctx context.Context, path []string) (configtree.Node, error) {
	if path == nil {
		path = []string{}
	}
	resp, err := c.post(ctx, "/retrieve", showConfigRequest{Op: "showConfig", Path: path})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("response has no data")
	}
	node, err := configtree.UnmarshalNode(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("malformed config data: %w", err)
	}
	return node, nil
}

// Configure pushes operations. The device applies and commits them as one
// batch.
func (c *Client) Configure(ctx context.Context, ops []configtree.Operation) error {
	_, err := c.post(ctx, "/configure", ops)
	return err
}

// post sends payload as the "data" form field alongside the API key and
// decodes the standard response envelope.
func (c *Client) post(ctx context.Context, endpoint string, payload any) (*apiResponse, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if err := writer.WriteField("data", string(data)); err != nil {
		return nil, fmt.Errorf("failed to write data field: %w", err)
	}
	if err := writer.WriteField("key", c.apiKey); err != nil {
		return nil, fmt.Errorf("failed to write key field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", brand.UserAgent(brand.Version))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var decoded apiResponse
	decodeErr := json.Unmarshal(respBody, &decoded)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if decodeErr == nil && decoded.Error != nil && *decoded.Error != "" {
			return nil, fmt.Errorf("%w (status %d): %s", ErrAPIFailure, resp.StatusCode, *decoded.Error)
		}
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("failed to decode response: %w", decodeErr)
	}
	if !decoded.Success {
		if decoded.Error != nil && *decoded.Error != "" {
			return nil, fmt.Errorf("%w: %s", ErrAPIFailure, *decoded.Error)
		}
		return nil, fmt.Errorf("%w: success=false", ErrAPIFailure)
	}
	return &decoded, nil
}
