// Package panelharga implements the upstream client for the government
// monthly food-price panel. The endpoint is rate sensitive and fronted for a
// browser SPA, so requests carry the front-end's own headers and transient
// failures are retried with exponential backoff.
package panelharga

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

	"pangancache/internal/model"
	"pangancache/internal/upstream"
)

const (
	defaultBaseURL = "https://api-panelhargav2.badanpangan.go.id/api/front/harga-pangan-bulanan-v2"
	frontendOrigin = "https://panelharga.badanpangan.go.id"

	defaultTimeoutSeconds = 30
	defaultMaxAttempts    = 5
	defaultUserAgent      = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/139.0.0.0 Safari/537.36"

	periodLayout = "02/01/2006"
)

type Config struct {
	BaseURL     string
	Timeout     time.Duration
	MaxAttempts int
	UserAgent   string
}

type Client struct {
	config Config
	client *http.Client
}

func New() *Client {
	return NewWithConfig(Config{})
}

func NewWithConfig(cfg Config) *Client {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeoutSeconds * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}

	return &Client{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Fetch performs the month-range GET with retry on transient failures
// (timeouts, connection resets, 5xx, 429). Non-retryable statuses fail
// immediately. The final failure surfaces as *upstream.FetchError.
func (c *Client) Fetch(ctx context.Context, params model.FetchParams) (upstream.Payload, error) {
	endpoint := c.config.BaseURL + "?" + buildQuery(params).Encode()

	var lastErr error
	lastStatus := 0

	for attempt := 0; attempt < c.config.MaxAttempts; attempt++ {
		if attempt > 0 {
			// 1s, 2s, 4s, 8s, 16s
			if err := sleepWithContext(ctx, time.Duration(1<<(attempt-1))*time.Second); err != nil {
				return nil, &upstream.FetchError{Attempts: attempt, Err: err}
			}
		}

		payload, status, err := c.doRequest(ctx, endpoint)
		if err == nil {
			return payload, nil
		}
		lastErr = err
		lastStatus = status

		if !retryable(status, err) {
			return nil, &upstream.FetchError{Status: errorStatus(status), Attempts: attempt + 1, Err: err}
		}
	}

	return nil, &upstream.FetchError{Status: lastStatus, Attempts: c.config.MaxAttempts, Err: lastErr}
}

func (c *Client) doRequest(ctx context.Context, endpoint string) (upstream.Payload, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, err
	}
	for key, value := range defaultHeaders(c.config.UserAgent) {
		req.Header.Set(key, value)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, resp.StatusCode, fmt.Errorf("panelharga: request failed (%s): %s", resp.Status, strings.TrimSpace(string(body)))
	}

	payload, err := decodePayload(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("panelharga: decode response: %w", err)
	}
	return payload, resp.StatusCode, nil
}

// errorStatus maps the status carried into a FetchError. A success status
// means the response itself was fine and the body was the problem, so the
// error does not blame the status code.
func errorStatus(status int) int {
	if status >= http.StatusOK && status < http.StatusMultipleChoices {
		return 0
	}
	return status
}

func retryable(status int, err error) bool {
	if status == 0 {
		// Transport-level failure: timeout, refused connection, reset.
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) {
			return true
		}
		return !errors.Is(err, context.Canceled)
	}
	if status == http.StatusTooManyRequests {
		return true
	}
	return status >= http.StatusInternalServerError
}

func buildQuery(params model.FetchParams) url.Values {
	query := url.Values{}
	query.Set("start_year", strconv.Itoa(params.StartYear))
	query.Set("end_year", strconv.Itoa(params.EndYear))
	query.Set("period_date", formatPeriod(params.PeriodStart, params.PeriodEnd))
	query.Set("level_harga_id", strconv.Itoa(params.LevelID))
	// Empty string requests the national aggregation.
	if params.ProvinceID == "" || params.ProvinceID == model.NationalProvinceID {
		query.Set("province_id", "")
	} else {
		query.Set("province_id", params.ProvinceID)
	}
	return query
}

// formatPeriod renders the combined period-range string the upstream expects:
// "DD/MM/YYYY - DD/MM/YYYY".
func formatPeriod(start, end time.Time) string {
	return start.Format(periodLayout) + " - " + end.Format(periodLayout)
}

func defaultHeaders(userAgent string) map[string]string {
	return map[string]string{
		"Accept":          "application/json",
		"Accept-Language": "en-US,en;q=0.9",
		"Connection":      "keep-alive",
		"Origin":          frontendOrigin,
		"Referer":         frontendOrigin + "/",
		"User-Agent":      userAgent,
	}
}

// decodePayload decodes the response with json.Number so prices keep their
// exact textual representation until normalization parses them as decimals.
func decodePayload(r io.Reader) (upstream.Payload, error) {
	decoder := json.NewDecoder(r)
	decoder.UseNumber()

	var payload map[string]any
	if err := decoder.Decode(&payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ upstream.Client = (*Client)(nil)
