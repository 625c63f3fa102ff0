package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// vendorClient wraps the outbound HTTP plumbing shared by the
// adapters: JSON encoding, auth header, and classification of
// transport-level failures into the gateway error taxonomy.
type vendorClient struct {
	name    string
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *slog.Logger
}

func newVendorClient(name, baseURL, apiKey string, timeout time.Duration, logger *slog.Logger) *vendorClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &vendorClient{
		name:    name,
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// vendorHTTPError carries a non-2xx vendor response back to the
// adapter, which owns the mapping of vendor codes to the error
// taxonomy.
type vendorHTTPError struct {
	Status int
	Body   []byte
}

func (e *vendorHTTPError) Error() string {
	return fmt.Sprintf("vendor returned status %d", e.Status)
}

func (c *vendorClient) postJSON(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal vendor request: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, bytes.NewReader(body), out)
}

func (c *vendorClient) getJSON(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *vendorClient) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build vendor request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("vendor request failed",
			"gateway", c.name,
			"method", method,
			"path", path,
			"error", err)
		return NewTransientError("GATEWAY_ERROR", fmt.Sprintf("%s request failed", c.name), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return NewTransientError("GATEWAY_ERROR", fmt.Sprintf("%s response read failed", c.name), err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(respBody, out); err != nil {
			return NewTransientError("GATEWAY_ERROR", fmt.Sprintf("%s returned malformed response", c.name), err)
		}
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return NewMisconfiguredError(c.name)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return NewTransientError("GATEWAY_ERROR",
			fmt.Sprintf("%s returned status %d", c.name, resp.StatusCode), nil)
	default:
		return &vendorHTTPError{Status: resp.StatusCode, Body: respBody}
	}
}
