package fetcher

import (
	"bytes"
	"context"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent string
	// Timeout is the ceiling for one request, response body included.
	Timeout time.Duration
	// MaxRetries is the total number of attempts; 1 disables retrying.
	MaxRetries int
	// Rate is the default per-host request rate for hosts without an
	// entry in RateLimiters.
	Rate         rate.Limit
	RateLimiters map[string]*AdaptiveLimiter
	// BackoffBase is the first retry delay, doubled per attempt.
	BackoffBase time.Duration
}

// AdaptiveLimiter wraps a rate.Limiter with adaptive rate adjustment.
// On success it increases the rate by 20% (up to 2x initial).
// On 429 it halves the rate (down to initial/4 minimum).
type AdaptiveLimiter struct {
	mu          sync.Mutex
	limiter     *rate.Limiter
	initialRate rate.Limit
	maxRate     rate.Limit
	minRate     rate.Limit
	currentRate rate.Limit
}

// NewAdaptiveLimiter creates an adaptive rate limiter that auto-tunes.
func NewAdaptiveLimiter(initialRate rate.Limit, burst int) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		limiter:     rate.NewLimiter(initialRate, burst),
		initialRate: initialRate,
		maxRate:     initialRate * 2,
		minRate:     initialRate / 4,
		currentRate: initialRate,
	}
}

// Wait blocks until the limiter allows an event.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess increases the rate by 20%, up to 2x initial.
func (a *AdaptiveLimiter) OnSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	newRate := min(a.currentRate*1.2, a.maxRate)
	a.currentRate = newRate
	a.limiter.SetLimit(newRate)
}

// OnRateLimit halves the rate on 429 responses.
func (a *AdaptiveLimiter) OnRateLimit() {
	a.mu.Lock()
	defer a.mu.Unlock()
	newRate := max(a.currentRate*0.5, a.minRate)
	a.currentRate = newRate
	a.limiter.SetLimit(newRate)
	zap.L().Warn("adaptive rate limit: reducing rate after 429",
		zap.Float64("new_rate", float64(newRate)),
	)
}

// Limit returns the current rate limit.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentRate
}

// HTTPFetcher implements Fetcher using net/http with rate limiting and
// optional retry.
type HTTPFetcher struct {
	client *http.Client
	opts   HTTPOptions

	mu       sync.Mutex
	limiters map[string]*AdaptiveLimiter
}

// DefaultRateLimiters returns limiters for the public Overpass instances,
// which allow roughly one query per second per client.
func DefaultRateLimiters() map[string]*AdaptiveLimiter {
	return map[string]*AdaptiveLimiter{
		"overpass-api.de":           NewAdaptiveLimiter(1, 1),
		"overpass.kumi.systems":     NewAdaptiveLimiter(1, 1),
		"overpass.private.coffee":   NewAdaptiveLimiter(1, 1),
		"maps.mail.ru":              NewAdaptiveLimiter(1, 1),
		"overpass.openstreetmap.ru": NewAdaptiveLimiter(1, 1),
	}
}

// NewHTTPFetcher creates a new HTTPFetcher with the given options.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 1
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "poi-ingest/1.0"
	}
	if opts.Rate == 0 {
		opts.Rate = 20
	}
	if opts.BackoffBase == 0 {
		opts.BackoffBase = time.Second
	}
	limiters := DefaultRateLimiters()
	for k, v := range opts.RateLimiters {
		limiters[k] = v
	}
	transport := &http.Transport{
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		opts:     opts,
		limiters: limiters,
	}
}

// limiterFor returns the limiter of the URL's host, creating one at the
// default rate on first use.
func (f *HTTPFetcher) limiterFor(rawURL string) *AdaptiveLimiter {
	host := HostOf(rawURL)
	f.mu.Lock()
	defer f.mu.Unlock()
	lim, ok := f.limiters[host]
	if !ok {
		lim = NewAdaptiveLimiter(f.opts.Rate, int(math.Max(1, float64(f.opts.Rate))))
		f.limiters[host] = lim
	}
	return lim
}

// Limit returns the current request rate for the URL's host.
func (f *HTTPFetcher) Limit(rawURL string) rate.Limit {
	return f.limiterFor(rawURL).Limit()
}

// HostOf returns the host[:port] of rawURL, the key of per-host limiters.
func HostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}

// PostForm sends form as an url-encoded POST and returns the response body.
func (f *HTTPFetcher) PostForm(ctx context.Context, rawURL string, form url.Values) ([]byte, error) {
	payload := form.Encode()
	lim := f.limiterFor(rawURL)

	var lastErr *RequestError
	for attempt := range f.opts.MaxRetries {
		if attempt > 0 {
			f.backoff(ctx, attempt-1)
		}
		if err := lim.Wait(ctx); err != nil {
			return nil, transportError(rawURL, err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(payload))
		if err != nil {
			return nil, &RequestError{Kind: KindNetwork, URL: rawURL, Err: err}
		}
		req.Header.Set("User-Agent", f.opts.UserAgent)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		body, status, err := f.do(req)
		if err != nil {
			lastErr = transportError(rawURL, err)
			zap.L().Warn("http request failed",
				zap.String("url", rawURL),
				zap.Int("attempt", attempt+1),
				zap.Stringer("kind", lastErr.Kind),
				zap.Error(err),
			)
			if ctx.Err() != nil {
				return nil, lastErr
			}
			continue
		}

		if status == http.StatusOK {
			lim.OnSuccess()
			return body, nil
		}

		lastErr = statusError(rawURL, status, body)
		if status == http.StatusTooManyRequests {
			lim.OnRateLimit()
		}
		if !IsTransientHTTPStatus(status) {
			return nil, lastErr
		}
		zap.L().Warn("transient http status",
			zap.String("url", rawURL),
			zap.Int("status", status),
			zap.Int("attempt", attempt+1),
		)
	}

	return nil, lastErr
}

// do executes the request and reads the whole body within the client timeout.
func (f *HTTPFetcher) do(req *http.Request) ([]byte, int, error) {
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close() //nolint:errcheck

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, resp.Body); err != nil {
		return nil, 0, err
	}
	return buf.Bytes(), resp.StatusCode, nil
}

func (f *HTTPFetcher) backoff(ctx context.Context, attempt int) {
	maxBackoff := 30 * time.Second
	d := time.Duration(float64(f.opts.BackoffBase) * math.Pow(2, float64(attempt)))
	if d > maxBackoff {
		d = maxBackoff
	}
	if half := int64(d) / 2; half > 0 {
		d += time.Duration(rand.Int64N(half))
	}

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
