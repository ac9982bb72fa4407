package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/serenityjs/plugin-registry/internal/pkg/metrics"
)

const (
	defaultAPIBaseURL = "https://api.github.com"
	defaultRawBaseURL = "https://raw.githubusercontent.com"
	defaultUserAgent  = "plugin-registry/1.0"

	pageSize           = 100
	maxListPages       = 10
	defaultSearchPages = 10
	maxRawBytes        = 2 << 20
	maxErrBody         = 2048
)

// Options configures a Client. Zero values select platform defaults.
type Options struct {
	APIBaseURL string
	RawBaseURL string
	Token      string
	Timeout    time.Duration
	// RateLimit caps API requests per second; raw content requests are not limited. 0 disables.
	RateLimit      float64
	RateBurst      int
	MaxSearchPages int
	UserAgent      string
	// Transport is the base round tripper, http.DefaultTransport when nil.
	Transport http.RoundTripper
}

// Client talks to the source platform's REST API and raw content host.
type Client struct {
	apiURL         string
	rawURL         string
	userAgent      string
	maxSearchPages int
	httpClient     *http.Client
	limiter        *rate.Limiter
}

// HTTPError is a non-success response from the platform.
type HTTPError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("github request failed: status=%d url=%s body=%s", e.StatusCode, e.URL, e.Body)
}

// IsNotFound reports whether err is a 404 from the platform.
func IsNotFound(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound
}

func NewClient(opts Options) *Client {
	if opts.APIBaseURL == "" {
		opts.APIBaseURL = defaultAPIBaseURL
	}
	if opts.RawBaseURL == "" {
		opts.RawBaseURL = defaultRawBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxSearchPages <= 0 {
		opts.MaxSearchPages = defaultSearchPages
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}

	base := opts.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	var transport http.RoundTripper = otelhttp.NewTransport(base)
	if opts.Token != "" {
		transport = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token}),
			Base:   transport,
		}
	}

	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	return &Client{
		apiURL:         strings.TrimRight(opts.APIBaseURL, "/"),
		rawURL:         strings.TrimRight(opts.RawBaseURL, "/"),
		userAgent:      opts.UserAgent,
		maxSearchPages: opts.MaxSearchPages,
		httpClient:     &http.Client{Transport: transport, Timeout: opts.Timeout},
		limiter:        limiter,
	}
}

// SearchRepositories returns every repository matching query, following pagination
// until a short page, the reported total, or the page cap.
func (c *Client) SearchRepositories(ctx context.Context, query string) ([]Repository, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("search query is required")
	}

	var out []Repository
	for page := 1; page <= c.maxSearchPages; page++ {
		endpoint := fmt.Sprintf("%s/search/repositories?%s", c.apiURL, url.Values{
			"q":        {query},
			"per_page": {strconv.Itoa(pageSize)},
			"page":     {strconv.Itoa(page)},
		}.Encode())

		var resp SearchResponse
		if err := c.getJSON(ctx, "search", endpoint, &resp); err != nil {
			return nil, err
		}
		out = append(out, resp.Items...)
		if len(resp.Items) < pageSize || len(out) >= resp.TotalCount {
			break
		}
	}
	return out, nil
}

// GetRepository fetches a repository by its numeric id.
func (c *Client) GetRepository(ctx context.Context, id int64) (*Repository, error) {
	var repo Repository
	endpoint := fmt.Sprintf("%s/repositories/%d", c.apiURL, id)
	if err := c.getJSON(ctx, "repository", endpoint, &repo); err != nil {
		return nil, err
	}
	return &repo, nil
}

// ListReleases returns all releases of owner/name, newest first.
func (c *Client) ListReleases(ctx context.Context, owner, name string) ([]Release, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/releases", c.apiURL, url.PathEscape(owner), url.PathEscape(name))
	return listPages[Release](ctx, c, "releases", endpoint)
}

// ListContributors returns contributors of owner/name in platform order.
func (c *Client) ListContributors(ctx context.Context, owner, name string) ([]Contributor, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/contributors", c.apiURL, url.PathEscape(owner), url.PathEscape(name))
	return listPages[Contributor](ctx, c, "contributors", endpoint)
}

// RawURL is the raw content URL of path on branch.
func (c *Client) RawURL(owner, name, branch, path string) string {
	return fmt.Sprintf("%s/%s/%s/%s/%s", c.rawURL, url.PathEscape(owner), url.PathEscape(name), branch, strings.TrimLeft(path, "/"))
}

// FetchRaw downloads a file from the raw content host.
func (c *Client) FetchRaw(ctx context.Context, owner, name, branch, path string) ([]byte, error) {
	endpoint := c.RawURL(owner, name, branch, path)
	resp, err := c.do(ctx, "raw", http.MethodGet, endpoint)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp, endpoint)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRawBytes))
	if err != nil {
		return nil, fmt.Errorf("read raw content %s: %w", endpoint, err)
	}
	return body, nil
}

// Exists issues a HEAD request and reports whether rawURL answers 200.
// Non-200 statuses are a miss, not an error.
func (c *Client) Exists(ctx context.Context, rawURL string) (bool, error) {
	resp, err := c.do(ctx, "head", http.MethodHead, rawURL)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK, nil
}

func listPages[T any](ctx context.Context, c *Client, label, endpoint string) ([]T, error) {
	out := make([]T, 0)
	for page := 1; page <= maxListPages; page++ {
		var batch []T
		pageURL := fmt.Sprintf("%s?per_page=%d&page=%d", endpoint, pageSize, page)
		if err := c.getJSON(ctx, label, pageURL, &batch); err != nil {
			return nil, err
		}
		out = append(out, batch...)
		if len(batch) < pageSize {
			break
		}
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, label, endpoint string, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("github rate limiter: %w", err)
		}
	}
	resp, err := c.do(ctx, label, http.MethodGet, endpoint)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNoContent:
		// contributors of an empty repository
		return nil
	case resp.StatusCode != http.StatusOK:
		return decodeError(resp, endpoint)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode github %s response: %w", label, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, label, method, endpoint string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build github %s request: %w", label, err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.PlatformRequestsTotal.WithLabelValues(label, "error").Inc()
		return nil, fmt.Errorf("github %s request failed: %w", label, err)
	}
	metrics.PlatformRequestsTotal.WithLabelValues(label, strconv.Itoa(resp.StatusCode)).Inc()
	return resp, nil
}

func decodeError(resp *http.Response, requestURL string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBody))
	return &HTTPError{
		StatusCode: resp.StatusCode,
		URL:        requestURL,
		Body:       strings.TrimSpace(string(body)),
	}
}
