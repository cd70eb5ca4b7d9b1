package bundle

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Prober reports whether the bundle source is reachable.
type Prober interface {
	Online(ctx context.Context) bool
}

// Fetcher opens the release archive of owner/repo at ref.
type Fetcher interface {
	Fetch(ctx context.Context, owner, repo, ref string) (io.ReadCloser, error)
}

// StatusError is returned for a non-2xx archive response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.Code)
}

// HTTPFetcher downloads tarballs through the GitHub REST API layout
// {BaseURL}/repos/{owner}/{repo}/tarball/{ref}.
type HTTPFetcher struct {
	BaseURL string
	Client  *http.Client
	Token   string
}

func (f *HTTPFetcher) client() *http.Client {
	if f.Client != nil {
		return f.Client
	}
	return http.DefaultClient
}

func (f *HTTPFetcher) Fetch(ctx context.Context, owner, repo, ref string) (io.ReadCloser, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/tarball/%s", strings.TrimRight(f.BaseURL, "/"), owner, repo, ref)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", "onu-cli")
	if f.Token != "" {
		req.Header.Set("Authorization", "Bearer "+f.Token)
	}
	resp, err := f.client().Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, &StatusError{URL: url, Code: resp.StatusCode}
	}
	return resp.Body, nil
}

// HTTPProber treats any HTTP response from URL as connectivity.
type HTTPProber struct {
	URL     string
	Client  *http.Client
	Timeout time.Duration
	Retries uint64
}

func (p *HTTPProber) Online(ctx context.Context) bool {
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	op := func() error {
		rctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		req, err := http.NewRequestWithContext(rctx, http.MethodHead, p.URL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		_ = resp.Body.Close()
		return nil
	}
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(250*time.Millisecond), p.Retries), ctx)
	return backoff.Retry(op, b) == nil
}
