// Package webfetch implements the web_fetch and web_search tools. Neither
// the teacher nor any other example repo vendors an HTTP-fetch or
// search-provider client (see DESIGN.md), so this package is built directly
// on net/http rather than an ecosystem library: it is a thin system
// boundary, not a component the corpus gives a richer idiom for.
package webfetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxBodyBytes bounds how much of a fetched page is read into memory.
const maxBodyBytes = 1 << 20 // 1 MiB

// ErrSearchNotConfigured is returned by Search when no provider is wired,
// since no search API credential exists in this server's configuration.
var ErrSearchNotConfigured = errors.New("webfetch: no search provider configured")

// Result is the outcome of fetching a single URL.
type Result struct {
	URL         string `json:"url"`
	StatusCode  int    `json:"statusCode"`
	ContentType string `json:"contentType"`
	Body        string `json:"body"`
	Truncated   bool   `json:"truncated"`
}

// Fetch retrieves url and returns its status, content type, and body,
// capped at maxBodyBytes.
func Fetch(ctx context.Context, url string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("webfetch: building request: %w", err)
	}
	req.Header.Set("User-Agent", "research-engine/1.0")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webfetch: fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, maxBodyBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("webfetch: reading body: %w", err)
	}
	truncated := len(body) > maxBodyBytes
	if truncated {
		body = body[:maxBodyBytes]
	}

	return &Result{
		URL:         url,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        strings.ToValidUTF8(string(body), ""),
		Truncated:   truncated,
	}, nil
}

// Search always fails with ErrSearchNotConfigured: no search API key or
// client exists in this server's dependency set, so web_search is exposed
// in the catalog (per spec.md's tool table) but reports its own absence
// rather than silently degrading.
func Search(ctx context.Context, query string) ([]Result, error) {
	return nil, ErrSearchNotConfigured
}
