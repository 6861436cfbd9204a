package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultTimeout     = 5 * time.Second
	defaultLongTimeout = 600 * time.Second
)

// ClientConfig identifies one agent. Two clients with equal configs are interchangeable.
type ClientConfig struct {
	HostID      int
	URL         string
	Secret      string
	Timeout     time.Duration // metadata calls
	LongTimeout time.Duration // create/start/stop/remove/pull/prune/command
}

// Client performs signed calls against a single agent.
type Client struct {
	cfg        ClientConfig
	httpClient *http.Client
	now        func() time.Time
}

func New(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.LongTimeout <= 0 {
		cfg.LongTimeout = defaultLongTimeout
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()},
		now:        time.Now,
	}
}

func (c *Client) Config() ClientConfig {
	return c.cfg
}

// Close releases idle connections held by the client.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

func (c *Client) url(path string) string {
	return strings.TrimRight(c.cfg.URL, "/") + "/" + strings.TrimLeft(path, "/")
}

// request signs and sends one call. out may be nil; it is left untouched when the agent
// returns no payload.
func (c *Client) request(ctx context.Context, method, path string, body any, long bool, out any) error {
	timeout := c.cfg.Timeout
	if long {
		timeout = c.cfg.LongTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload, err := CanonicalBody(body)
	if err != nil {
		return err
	}
	var reader io.Reader
	if len(payload) > 0 {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url(path), reader)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	for k, v := range SignatureHeaders(c.cfg.Secret, method, path, payload, c.now()) {
		req.Header[k] = v
	}
	if len(payload) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response of %s %s: %w", method, path, err)
	}

	if resp.StatusCode >= 400 {
		var parsed any
		if err := json.Unmarshal(raw, &parsed); err != nil {
			parsed = string(raw)
		}
		return NewError(resp.StatusCode, parsed)
	}

	if !hasPayload(resp, raw) || out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response of %s %s: %w", method, path, err)
	}
	return nil
}

// hasPayload: a known positive length, or a chunked body with non-blank text.
func hasPayload(resp *http.Response, raw []byte) bool {
	if resp.ContentLength > 0 {
		return true
	}
	for _, te := range resp.TransferEncoding {
		if te == "chunked" {
			return len(bytes.TrimSpace(raw)) > 0
		}
	}
	return false
}
