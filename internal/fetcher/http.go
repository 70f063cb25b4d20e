package fetcher

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const (
	defaultUserAgent = "place2dxf/1.0"
	maxBackoff       = 30 * time.Second
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent string
	// Timeout bounds a single attempt. Callers usually pass a shorter
	// context deadline per operation.
	Timeout time.Duration
	// MaxAttempts bounds how often a request is sent. The default of 1
	// means a failed call is reported immediately.
	MaxAttempts int
	// Limits maps a host[:port], as reported by HostOf, to its budget.
	Limits map[string]HostLimit
}

// StatusError reports a non-success HTTP status from a remote service.
type StatusError struct {
	StatusCode int
	URL        string
	// RetryAfter is the server's requested delay, zero when absent.
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

// HostOf returns the host[:port] of rawURL, or "" when it does not parse.
func HostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}

// HTTPFetcher implements Fetcher on net/http with per-host pacing and
// bounded attempts.
type HTTPFetcher struct {
	client   *http.Client
	opts     HTTPOptions
	limiters map[string]*hostLimiter
}

// NewHTTPFetcher creates a new HTTPFetcher with the given options.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	limiters := make(map[string]*hostLimiter, len(opts.Limits))
	for host, l := range opts.Limits {
		limiters[host] = newHostLimiter(host, l)
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConnsPerHost: 10,
				MaxConnsPerHost:     20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		opts:     opts,
		limiters: limiters,
	}
}

// retryable reports whether a status is worth another attempt.
func retryable(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// retryAfter parses a Retry-After header given in seconds or as an HTTP
// date.
func retryAfter(h string, now time.Time) time.Duration {
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(h); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil && t.After(now) {
		return t.Sub(now)
	}
	return 0
}

// backoffFor is 1s, 2s, 4s... with up to 50% jitter, capped at maxBackoff.
func backoffFor(attempt int) time.Duration {
	d := time.Second << min(attempt, 5)
	d = min(d, maxBackoff)
	return d + rand.N(d/2+1)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (f *HTTPFetcher) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	lim := f.limiters[req.URL.Host]
	target := req.URL.String()

	var lastErr error
	var delay time.Duration
	for attempt := range f.opts.MaxAttempts {
		if attempt > 0 {
			if delay <= 0 {
				delay = backoffFor(attempt - 1)
			}
			if err := sleep(ctx, min(delay, maxBackoff)); err != nil {
				return nil, eris.Wrap(err, "backoff")
			}
			delay = 0
		}
		if err := lim.wait(ctx); err != nil {
			return nil, eris.Wrap(err, "rate limiter wait")
		}

		try := req.Clone(ctx)
		if attempt > 0 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, eris.Wrap(err, "rewind request body")
			}
			try.Body = body
		}

		resp, err := f.client.Do(try)
		if err != nil {
			lastErr = err
			zap.L().Warn("fetcher: request failed",
				zap.String("url", target),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			continue
		}
		if !retryable(resp.StatusCode) {
			lim.succeeded()
			return resp, nil
		}

		_ = resp.Body.Close()
		se := &StatusError{
			StatusCode: resp.StatusCode,
			URL:        target,
			RetryAfter: retryAfter(resp.Header.Get("Retry-After"), time.Now()),
		}
		if se.StatusCode == http.StatusTooManyRequests {
			lim.throttled()
		}
		delay = se.RetryAfter
		lastErr = se
		zap.L().Warn("fetcher: retryable status",
			zap.String("url", target),
			zap.Int("status", se.StatusCode),
			zap.Duration("retry_after", se.RetryAfter),
			zap.Int("attempt", attempt+1),
		)
	}

	if f.opts.MaxAttempts > 1 {
		return nil, eris.Wrap(lastErr, "all attempts exhausted")
	}
	return nil, lastErr
}

// Do sends req under the host's limiter and attempt budget, so API clients
// that accept an *http.Client-like doer share the fetcher's pacing. Only
// 429 and 5xx statuses become errors; other responses are returned as is.
func (f *HTTPFetcher) Do(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", f.opts.UserAgent)
	}
	return f.do(req.Context(), req)
}

func (f *HTTPFetcher) get(ctx context.Context, rawURL, accept string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := f.do(ctx, req)
	if err != nil {
		return nil, eris.Wrap(err, "download")
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, eris.Wrap(&StatusError{StatusCode: resp.StatusCode, URL: rawURL}, "download")
	}
	return resp.Body, nil
}

// Download fetches the URL and returns the response body.
func (f *HTTPFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	return f.get(ctx, rawURL, "")
}

// DownloadToFile streams the URL into path. A partial file is removed on
// failure.
func (f *HTTPFetcher) DownloadToFile(ctx context.Context, rawURL string, path string) (int64, error) {
	body, err := f.Download(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	defer body.Close() //nolint:errcheck

	file, err := os.Create(path)
	if err != nil {
		return 0, eris.Wrap(err, "create file")
	}
	n, err := io.Copy(file, body)
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return n, eris.Wrap(err, "write file")
	}
	return n, nil
}

// GetJSON fetches the URL and decodes the JSON response into v.
func (f *HTTPFetcher) GetJSON(ctx context.Context, rawURL string, v any) error {
	body, err := f.get(ctx, rawURL, "application/json")
	if err != nil {
		return err
	}
	defer body.Close() //nolint:errcheck

	return DecodeJSON(body, v)
}
