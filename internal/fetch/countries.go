// Package fetch retrieves country reference data from the REST Countries
// API and optionally uploads the resulting files to an S3-compatible
// bucket.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mkrishnan-dev/datasync/internal/logging"
)

// DefaultBaseURL is the public REST Countries endpoint.
const DefaultBaseURL = "https://restcountries.com/v3.1"

// Client fetches country JSON documents.
type Client struct {
	http    *http.Client
	baseURL string
}

// NewClient creates a Client. An empty baseURL selects the public API.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		http:    &http.Client{Timeout: 30 * time.Second},
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

// Countries fetches each named country and writes one JSON file per
// country into outDir. A failing country is logged and skipped; the
// remaining countries are still fetched. Returns the paths written, and
// an error only when no country could be fetched at all.
func (c *Client) Countries(ctx context.Context, names []string, outDir string) ([]string, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("no countries configured")
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	var written []string
	for _, name := range names {
		path, err := c.fetchOne(ctx, name, outDir)
		if err != nil {
			if ctx.Err() != nil {
				return written, ctx.Err()
			}
			logging.Warn("Skipping country %q: %v", name, err)
			continue
		}
		logging.Info("Fetched %s -> %s", name, path)
		written = append(written, path)
	}

	if len(written) == 0 {
		return nil, fmt.Errorf("all %d country fetches failed", len(names))
	}
	return written, nil
}

func (c *Client) fetchOne(ctx context.Context, name, outDir string) (string, error) {
	reqURL := c.baseURL + "/name/" + url.PathEscape(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	path := filepath.Join(outDir, fileName(name))
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", fmt.Errorf("writing file: %w", err)
	}
	return path, nil
}

// fileName derives a safe file name from a country name.
func fileName(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.ReplaceAll(s, " ", "_")
	return s + ".json"
}
