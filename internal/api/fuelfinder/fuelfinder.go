// Package fuelfinder provides an API client for the GOV.UK Fuel Finder
// service, including OAuth token handling, per-request retries with
// exponential backoff and resilient batch pagination.
package fuelfinder

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

	"github.com/rs/zerolog"
)

const (
	// DefaultBaseURL is the production Fuel Finder API root.
	DefaultBaseURL = "https://www.fuel-finder.service.gov.uk/api/v1"

	tokenPath    = "/oauth/generate_access_token"
	stationsPath = "/pfs"
	pricesPath   = "/pfs/fuel-prices"

	// BatchSize is the fixed page size of the upstream list endpoints.
	BatchSize = 500

	// batchDelay spaces successive page requests to stay within the
	// 30 req/min rate limit at a concurrency of 1.
	batchDelay = 2 * time.Second
	// retryPassDelay is inserted before each retried page in the
	// resilience pass.
	retryPassDelay = 5 * time.Second

	requestTimeout = 30 * time.Second

	// timestampLayout is the upstream timestamp format, used for the
	// effective-start-timestamp filter and record timestamps.
	timestampLayout = "2006-01-02 15:04:05"

	// tokenExpiryMargin refreshes the OAuth token slightly before the
	// server-reported expiry.
	tokenExpiryMargin = 60 * time.Second
)

// RetryPolicy controls per-request retries for transient failures.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts per request.
	MaxAttempts int
	// Backoff holds the delay before each retry. The last entry repeats if
	// MaxAttempts exceeds its length.
	Backoff []time.Duration
}

// DefaultRetryPolicy retries transient failures up to 3 attempts with
// exponential backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Backoff:     []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second},
	}
}

// delay returns the backoff before retrying after the given 1-based attempt.
func (p RetryPolicy) delay(attempt int) time.Duration {
	if len(p.Backoff) == 0 {
		return 0
	}
	if attempt > len(p.Backoff) {
		attempt = len(p.Backoff)
	}
	return p.Backoff[attempt-1]
}

// Client is an authenticated Fuel Finder API client. It retains no state
// between calls beyond the cached OAuth token. The upstream API allows a
// single concurrent request, so Client is not safe for concurrent use.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	clientID     string
	clientSecret string
	retry        RetryPolicy
	logger       zerolog.Logger

	accessToken string
	tokenExpiry time.Time

	// sleep is replaced in tests to avoid real delays.
	sleep func(ctx context.Context, d time.Duration) error

	// RequestObserver, when set, is called after every API request with
	// the outcome ("ok", "transient", "fatal") and the request duration.
	RequestObserver func(status string, duration time.Duration)
}

// New creates a new Fuel Finder client.
func New(baseURL, clientID, clientSecret string, retry RetryPolicy, logger zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		baseURL:      strings.TrimRight(baseURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		retry:        retry,
		logger:       logger.With().Str("component", "fuelfinder").Logger(),
		sleep:        sleepContext,
	}
}

// TestConnection validates the configured credentials by requesting a token.
func (c *Client) TestConnection(ctx context.Context) error {
	c.accessToken = ""
	return c.ensureToken(ctx)
}

// tokenResponse is the OAuth token payload. The endpoint wraps it as
// {"success": true, "data": {...}} but has also been seen unwrapped.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	Data        *struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	} `json:"data"`
}

// ensureToken obtains or refreshes the OAuth access token.
func (c *Client) ensureToken(ctx context.Context) error {
	if c.accessToken != "" && time.Now().Before(c.tokenExpiry.Add(-tokenExpiryMargin)) {
		return nil
	}

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"scope":         {"fuelfinder.read"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+tokenPath, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("creating token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransientError{Err: fmt.Errorf("requesting token: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransientError{Err: fmt.Errorf("reading token response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return &AuthError{Err: fmt.Errorf("token request returned %d: %s", resp.StatusCode, truncate(body, 200))}
	}

	var token tokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return &AuthError{Err: fmt.Errorf("parsing token response: %w", err)}
	}

	accessToken, expiresIn := token.AccessToken, token.ExpiresIn
	if token.Data != nil {
		accessToken, expiresIn = token.Data.AccessToken, token.Data.ExpiresIn
	}
	if accessToken == "" {
		return &AuthError{Err: fmt.Errorf("token response carried no access token")}
	}
	if expiresIn == 0 {
		expiresIn = 3600
	}

	c.accessToken = accessToken
	c.tokenExpiry = time.Now().Add(time.Duration(expiresIn) * time.Second)
	c.logger.Debug().Time("expiry", c.tokenExpiry).Msg("obtained access token")
	return nil
}

// get issues an authenticated GET request with retry on transient failures.
// 5xx, 429 and connection errors are retried per the retry policy; a 401
// triggers a single token refresh; any other non-200 surfaces as fatal.
func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	var lastErr error

	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		if err := c.ensureToken(ctx); err != nil {
			return nil, err
		}

		body, retryAfter401, err := c.doGet(ctx, path, params)
		if err == nil {
			return body, nil
		}
		if retryAfter401 {
			// Token may have expired server-side; refresh once and
			// repeat without consuming an attempt.
			c.logger.Debug().Int("attempt", attempt).Msg("got 401, refreshing token")
			c.accessToken = ""
			if err := c.ensureToken(ctx); err != nil {
				return nil, err
			}
			body, _, err = c.doGet(ctx, path, params)
			if err == nil {
				return body, nil
			}
		}

		var transient *TransientError
		if !errors.As(err, &transient) {
			return nil, err
		}
		lastErr = err

		if attempt < c.retry.MaxAttempts {
			delay := c.retry.delay(attempt)
			c.logger.Warn().
				Err(err).
				Str("path", path).
				Int("attempt", attempt).
				Int("maxAttempts", c.retry.MaxAttempts).
				Dur("backoff", delay).
				Msg("transient API failure, retrying")
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}
	}

	return nil, lastErr
}

// doGet performs a single authenticated request. The second return value
// reports whether the caller should refresh the token and retry (401).
func (c *Client) doGet(ctx context.Context, path string, params url.Values) ([]byte, bool, error) {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, false, &FatalError{Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		c.observe("transient", duration)
		// Timeouts and connection errors count as transient.
		return nil, false, &TransientError{Err: fmt.Errorf("executing request: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.observe("transient", duration)
		return nil, false, &TransientError{Err: fmt.Errorf("reading response body: %w", err)}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		c.observe("ok", duration)
		return body, false, nil
	case resp.StatusCode == http.StatusUnauthorized:
		// A 401 normally recovers after a token refresh, so it gets its
		// own label rather than counting as fatal.
		c.observe("reauth", duration)
		return nil, true, &FatalError{Status: resp.StatusCode, Err: fmt.Errorf("unauthorized: %s", truncate(body, 200))}
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		c.observe("transient", duration)
		return nil, false, &TransientError{Status: resp.StatusCode, Err: fmt.Errorf("server returned %d: %s", resp.StatusCode, truncate(body, 200))}
	default:
		c.observe("fatal", duration)
		return nil, false, &FatalError{Status: resp.StatusCode, Err: fmt.Errorf("server returned %d: %s", resp.StatusCode, truncate(body, 200))}
	}
}

func (c *Client) observe(status string, duration time.Duration) {
	if c.RequestObserver != nil {
		c.RequestObserver(status, duration)
	}
}

// getPage fetches one page of records.
func (c *Client) getPage(ctx context.Context, path string, batch int, since *time.Time) ([]json.RawMessage, error) {
	params := url.Values{
		"batch-number": {strconv.Itoa(batch)},
	}
	if since != nil {
		params.Set("effective-start-timestamp", since.UTC().Format(timestampLayout))
	}

	body, err := c.get(ctx, path, params)
	if err != nil {
		return nil, err
	}

	records, err := decodeRecords(body)
	if err != nil {
		return nil, &FatalError{Err: fmt.Errorf("parsing batch %d response: %w", batch, err)}
	}
	return records, nil
}

// sleepContext sleeps for d or until the context is cancelled.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
