// Package phab is a client for the Phabricator Conduit API. It covers the
// handful of endpoints the notifier needs: user listing, transaction
// enrichment, permalink construction, and owner lookup.
package phab

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultConduitTimeout = 10 * time.Second

// ClientConfig holds the configuration for creating a Client.
type ClientConfig struct {
	// URL is the base Phabricator URL, e.g. "https://phab.example.com".
	URL string
	// Token is a Conduit API token.
	Token string
	// TimeoutSeconds bounds each Conduit HTTP call. Defaults to 10.
	TimeoutSeconds int
}

// Client talks to one Phabricator instance over Conduit.
type Client struct {
	httpClient *http.Client
	logger     *zap.Logger
	baseURL    string
	token      string
}

// NewClient creates a Client. Returns an error if the URL is invalid or the
// token is empty.
func NewClient(logger *zap.Logger, cfg ClientConfig) (*Client, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("conduit token is required")
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid phabricator URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("phabricator URL must use http or https scheme, got %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("phabricator URL must include a host")
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = defaultConduitTimeout
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.Named("phab"),
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		token:      cfg.Token,
	}, nil
}

// BaseURL returns the Phabricator base URL without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// Ping performs a conduit.ping health check. Called at startup so a bad URL
// or token fails fast.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.call(ctx, "conduit.ping", map[string]any{})
	return err
}

// conduitError is a non-2xx Conduit result (error_code/error_info set).
type conduitError struct {
	Code string
	Info string
}

func (e *conduitError) Error() string {
	return fmt.Sprintf("conduit error %s: %s", e.Code, e.Info)
}

// notImplemented reports whether err is Conduit telling us the method does
// not exist on this install. Callers treat those as "no data".
func notImplemented(err error) bool {
	ce, ok := err.(*conduitError)
	return ok && strings.Contains(ce.Info, "not implemented")
}

// call performs one Conduit method call. Parameters are sent as the JSON
// "params" form field with the token embedded under __conduit__.
func (c *Client) call(ctx context.Context, method string, params map[string]any) (json.RawMessage, error) {
	params["__conduit__"] = map[string]string{"token": c.token}
	encoded, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode %s params: %w", method, err)
	}

	form := url.Values{}
	form.Set("params", string(encoded))
	form.Set("output", "json")

	endpoint := c.baseURL + "/api/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("call %s: unexpected status %d", method, resp.StatusCode)
	}

	var envelope struct {
		Result    json.RawMessage `json:"result"`
		ErrorCode string          `json:"error_code"`
		ErrorInfo string          `json:"error_info"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", method, err)
	}
	if envelope.ErrorCode != "" {
		return nil, &conduitError{Code: envelope.ErrorCode, Info: envelope.ErrorInfo}
	}
	return envelope.Result, nil
}

// searchOne runs a *.search method constrained to a single PHID and decodes
// the first data entry into out. Returns an error when nothing matches.
func (c *Client) searchOne(ctx context.Context, method, phid string, out any) error {
	result, err := c.call(ctx, method, map[string]any{
		"constraints": map[string]any{"phids": []string{phid}},
	})
	if err != nil {
		return err
	}
	var page struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(result, &page); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	if len(page.Data) == 0 {
		return fmt.Errorf("%s: no object found for %s", method, phid)
	}
	if err := json.Unmarshal(page.Data[0], out); err != nil {
		return fmt.Errorf("decode %s entry: %w", method, err)
	}
	return nil
}
