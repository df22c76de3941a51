// Package upload sends run bundles to a remote rqg server.
package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/hashicorp/go-cleanhttp"

	"github.com/leapstack-labs/rqg/internal/analyze"
	"github.com/leapstack-labs/rqg/pkg/core"
)

// BundlesPath is the server endpoint that accepts bundles.
const BundlesPath = "/api/v1/bundles"

const maxErrorBody = 512

// Client posts bundles to an rqg server.
type Client struct {
	apiURL string
	token  string
	http   *http.Client
}

// NewClient creates a client for apiURL. An empty token sends no Authorization header.
func NewClient(apiURL, token string) (*Client, error) {
	if apiURL == "" {
		return nil, core.NewError(core.ErrConfig, "upload",
			errors.New("API URL not provided. Set RQG_UPLOAD_API_URL or use --api-url"))
	}
	return &Client{
		apiURL: strings.TrimRight(apiURL, "/"),
		token:  token,
		http:   cleanhttp.DefaultClient(),
	}, nil
}

// UploadFile validates the bundle at path and uploads it.
func (c *Client) UploadFile(ctx context.Context, path string) (*core.DecisionRecord, error) {
	if _, err := analyze.LoadBundle(path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, core.NewError(core.ErrInput, "upload", err)
	}
	return c.Upload(ctx, data)
}

// Upload posts bundle JSON and decodes the decision the server returns.
func (c *Client) Upload(ctx context.Context, bundle []byte) (*core.DecisionRecord, error) {
	url := c.apiURL + BundlesPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bundle))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to upload bundle: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: url, Body: strings.TrimSpace(string(body))}
	}

	var record core.DecisionRecord
	if err := json.NewDecoder(resp.Body).Decode(&record); err != nil {
		return nil, fmt.Errorf("failed to decode server response: %w", err)
	}
	return &record, nil
}

// StatusError is returned when the server answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%d %s returned from %s", e.StatusCode, http.StatusText(e.StatusCode), e.URL)
	}
	return fmt.Sprintf("%d %s returned from %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.URL, e.Body)
}
