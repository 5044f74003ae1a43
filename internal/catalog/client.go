package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"catalog-harvester/internal/metrics"
)

// DefaultUserAgent identifies the harvester to the catalog.
const DefaultUserAgent = "CatalogHarvester/1.0 (+https://github.com/catalog-harvester)"

// DefaultTimeout bounds a single catalog request, connect through body.
const DefaultTimeout = 10 * time.Second

// ErrDisallowed is returned when robots.txt forbids the request path.
var ErrDisallowed = errors.New("path disallowed by robots.txt")

// StatusError reports a non-2xx catalog response.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d for %s", e.StatusCode, e.URL)
}

// Fetcher performs catalog requests. Failures never surface as errors: Fetch
// logs them and reports absence so the caller can move on to the next page.
type Fetcher struct {
	client    *http.Client
	userAgent string
	limiter   *rate.Limiter
	robots    *RobotsRules
	logger    zerolog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces the HTTP client (its timeout is kept as is).
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) {
		f.client = client
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.client = &http.Client{Timeout: d}
		}
	}
}

// WithUserAgent overrides DefaultUserAgent.
func WithUserAgent(userAgent string) Option {
	return func(f *Fetcher) {
		if userAgent != "" {
			f.userAgent = userAgent
		}
	}
}

// WithRateLimit spaces requests to at most rps per second. Zero disables pacing.
func WithRateLimit(rps float64) Option {
	return func(f *Fetcher) {
		if rps > 0 {
			f.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithRobots makes the fetcher skip paths the rules disallow.
func WithRobots(rules *RobotsRules) Option {
	return func(f *Fetcher) {
		f.robots = rules
	}
}

// WithLogger sets the logger failures are reported to.
func WithLogger(logger zerolog.Logger) Option {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// NewFetcher creates a Fetcher with DefaultTimeout and DefaultUserAgent.
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:    &http.Client{Timeout: DefaultTimeout},
		userAgent: DefaultUserAgent,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch returns the body of url, or false when the request failed for any reason.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, bool) {
	if f.robots != nil && !f.robots.Allowed(PathFromURL(url)) {
		metrics.CatalogFetchTotal.WithLabelValues(metrics.OutcomeDisallowed).Inc()
		f.logger.Warn().Err(ErrDisallowed).Str("url", url).Msg("catalog request skipped")
		return "", false
	}

	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			metrics.CatalogFetchTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
			f.logger.Error().Err(err).Str("url", url).Msg("catalog request not sent")
			return "", false
		}
	}

	start := time.Now()
	body, err := FetchJSONWithClient(ctx, f.client, f.userAgent, url)
	metrics.CatalogFetchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.CatalogFetchTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
		f.logger.Error().Err(err).Str("url", url).Msg("catalog request failed")
		return "", false
	}

	metrics.CatalogFetchTotal.WithLabelValues(metrics.OutcomeOK).Inc()
	f.logger.Debug().Str("url", url).Int("bytes", len(body)).Msg("catalog page fetched")
	return string(body), true
}

// FetchJSONWithClient retrieves the raw JSON at url using client.
func FetchJSONWithClient(ctx context.Context, client *http.Client, userAgent, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: url}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return body, nil
}
