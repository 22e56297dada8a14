package assetgate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

var ErrRemoteFetch = errors.New("remote logo fetch failed")

// Fetcher imports a logo from a URL the customer already hosts.
type Fetcher struct {
	client   *retryablehttp.Client
	maxBytes int64
}

// NewFetcher builds a fetcher with bounded retries and timeout.
func NewFetcher(logger *slog.Logger, maxBytes int64) *Fetcher {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.RetryWaitMax = 2 * time.Second
	client.HTTPClient.Timeout = 15 * time.Second
	client.Logger = nil
	if logger != nil {
		client.Logger = logger
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Fetcher{client: client, maxBytes: maxBytes}
}

// Fetch downloads at most maxBytes from an http(s) URL.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid url", ErrRemoteFetch)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRemoteFetch, err)
	}
	req.Header.Set("Accept", "image/png,image/jpeg,image/webp,image/svg+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRemoteFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrRemoteFetch, resp.StatusCode)
	}
	if resp.ContentLength > f.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrFileTooLarge, resp.ContentLength, f.maxBytes)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrRemoteFetch, err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", ErrFileTooLarge, f.maxBytes)
	}
	return data, nil
}
