package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"fx-rate-alerts/internal/metrics"
	"fx-rate-alerts/internal/rate"
)

const latestRatesPath = "/v4/latest/"

// RateFetcher retrieves the current exchange rate for the configured pair.
type RateFetcher interface {
	Fetch(ctx context.Context) (rate.Rate, error)
}

// ErrorKind classifies fetch failures.
type ErrorKind string

const (
	// KindAttemptsExhausted means every attempt failed; the error wraps the last one.
	KindAttemptsExhausted ErrorKind = "attempts_exhausted"
	// KindMalformedResponse means the quote source answered with an unusable body.
	KindMalformedResponse ErrorKind = "malformed_response"
	// KindTimeout means the attempt exceeded its per-attempt deadline.
	KindTimeout ErrorKind = "timeout"
)

// FetchError is the typed failure surfaced by a Client.
type FetchError struct {
	Kind     ErrorKind
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	if e.Attempts > 0 {
		return fmt.Sprintf("fetch rate: %s after %d attempt(s): %v", e.Kind, e.Attempts, e.Err)
	}
	return fmt.Sprintf("fetch rate: %s: %v", e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Options parameterise the quote source client.
type Options struct {
	BaseURL        string
	APIKey         string
	Pair           rate.Pair
	MaxAttempts    int
	AttemptTimeout time.Duration
	UserAgent      string
}

// Client fetches rates from an exchangerate HTTP API with bounded retries.
// Stateless across invocations; safe for concurrent use.
type Client struct {
	opts    Options
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewClient constructs a quote source client.
func NewClient(opts Options, logger zerolog.Logger) *Client {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.exchangerate-api.com"
	}

	return &Client{
		opts:    opts,
		logger:  logger.With().Str("component", "rate_fetcher").Logger(),
		client:  &http.Client{Timeout: opts.AttemptTimeout},
		baseURL: baseURL,
	}
}

// Fetch performs up to MaxAttempts sequential attempts against the quote
// source. Failed attempts retry immediately; when all attempts fail the
// returned error carries the last underlying cause.
func (c *Client) Fetch(ctx context.Context) (rate.Rate, error) {
	if err := c.opts.Pair.Validate(); err != nil {
		return rate.Rate{}, err
	}

	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= c.opts.MaxAttempts; attempt++ {
		started := time.Now()
		r, err := c.fetchOnce(ctx)
		metrics.ObserveFetchAttempt(time.Since(started), err == nil)
		attempts = attempt
		if err == nil {
			return r, nil
		}

		lastErr = err
		c.logger.Warn().Err(err).
			Int("attempt", attempt).
			Int("max_attempts", c.opts.MaxAttempts).
			Msg("quote fetch attempt failed")

		if ctx.Err() != nil {
			break
		}
	}

	return rate.Rate{}, &FetchError{Kind: KindAttemptsExhausted, Attempts: attempts, Err: lastErr}
}

func (c *Client) fetchOnce(ctx context.Context) (rate.Rate, error) {
	endpoint := c.baseURL + latestRatesPath + c.opts.Pair.Base

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return rate.Rate{}, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "fxwatcher/1.0")
	}
	if c.opts.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return rate.Rate{}, &FetchError{Kind: KindTimeout, Err: err}
		}
		return rate.Rate{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return rate.Rate{}, err
	}

	if resp.StatusCode != http.StatusOK {
		return rate.Rate{}, httpStatusError(resp.StatusCode, body)
	}

	value, err := c.extractRate(body)
	if err != nil {
		return rate.Rate{}, &FetchError{Kind: KindMalformedResponse, Err: err}
	}

	return rate.Rate{
		Pair:       c.opts.Pair,
		Value:      value,
		ObservedAt: time.Now().UTC(),
	}, nil
}

type latestRatesResponse struct {
	Base  string                 `json:"base"`
	Date  string                 `json:"date"`
	Rates map[string]json.Number `json:"rates"`
}

// extractRate pulls the quote currency's rate out of the response body.
// Anything that does not parse to a positive finite decimal is rejected so
// a garbage body never turns into a successful fetch.
func (c *Client) extractRate(body []byte) (decimal.Decimal, error) {
	var payload latestRatesResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return decimal.Decimal{}, fmt.Errorf("decode quote response: %w", err)
	}

	raw, ok := payload.Rates[c.opts.Pair.Quote]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("quote response missing %s rate", c.opts.Pair.Quote)
	}

	value, err := decimal.NewFromString(raw.String())
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse %s rate %q: %w", c.opts.Pair.Quote, raw.String(), err)
	}
	if value.Sign() <= 0 {
		return decimal.Decimal{}, fmt.Errorf("%s rate must be positive, got %s", c.opts.Pair.Quote, value)
	}

	return value, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}

type apiErrorResponse struct {
	Result    string `json:"result"`
	ErrorType string `json:"error-type"`
	Message   string `json:"message"`
}

func httpStatusError(status int, payload []byte) error {
	var apiErr apiErrorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.ErrorType != "" {
			return fmt.Errorf("quote api error (%d): %s", status, apiErr.ErrorType)
		}
		if apiErr.Message != "" {
			return fmt.Errorf("quote api error (%d): %s", status, apiErr.Message)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("quote api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("quote api error (%d)", status)
}

var _ RateFetcher = (*Client)(nil)
