// Package manifest fetches and interprets IIIF manifests from the Stanford
// Digital Repository. A manifest describes a scanned roll: its title, its
// catalog metadata (including the roll type), and the download URLs for the
// scan images.
package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"rollscan/internal/services"
)

// Client retrieves IIIF manifests for DRUIDs.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout sets the request timeout on the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// New creates a manifest client rooted at the given PURL base URL.
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("purl base url required")
	}
	client := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// ManifestURL returns the IIIF manifest URL for a DRUID.
func (c *Client) ManifestURL(druid string) string {
	return c.baseURL + "/" + druid + "/iiif/manifest"
}

// Fetch downloads and decodes the IIIF manifest for a DRUID. The raw bytes
// are returned alongside the decoded document so callers can cache exactly
// what the repository served.
func (c *Client) Fetch(ctx context.Context, druid string) (*Document, []byte, error) {
	druid = strings.TrimSpace(druid)
	if druid == "" {
		return nil, nil, errors.New("druid must not be empty")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ManifestURL(druid), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, services.Wrap(services.ErrDownload, "manifest", "fetch", "execute request", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil, services.Wrap(services.ErrNotFound, "manifest", "fetch",
			fmt.Sprintf("no manifest for druid %s", druid), nil)
	case resp.StatusCode != http.StatusOK:
		return nil, nil, services.Wrap(services.ErrDownload, "manifest", "fetch",
			fmt.Sprintf("manifest request returned %d", resp.StatusCode), nil)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, services.Wrap(services.ErrDownload, "manifest", "fetch", "read response", err)
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, nil, services.Wrap(services.ErrValidation, "manifest", "fetch", "decode manifest", err)
	}
	return doc, data, nil
}

// Parse decodes a raw IIIF manifest payload.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}
