package worldbank

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"econdash/internal/providers"
)

const (
	DefaultBaseURL         = "http://api.worldbank.org/v2"
	DefaultPerPage         = 1000
	DefaultTimeout         = 10 * time.Second
	DefaultUserAgent       = "econdash/1.0"
	DefaultRateLimitPerSec = 5
	DefaultRateLimitBurst  = 5
	maxErrorBody           = 512
)

var ErrMalformedEnvelope = errors.New("worldbank: malformed response envelope")

// UpstreamError is returned for any transport failure, non-2xx status or
// unexpected response shape. Partial results are never returned with it.
type UpstreamError struct {
	URL        string
	Params     url.Values
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("worldbank: request %s failed with status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("worldbank: request %s failed: %v", e.URL, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

type Config struct {
	BaseURL         string
	PerPage         int
	Timeout         time.Duration
	UserAgent       string
	RateLimitPerSec float64
	RateLimitBurst  int
	// FetchDeadline bounds a whole multi-page fetch. Zero means only the
	// per-request Timeout applies.
	FetchDeadline time.Duration
}

type Client struct {
	config  Config
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

func NewWithConfig(cfg Config, logger *slog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("worldbank: invalid base url: %w", err)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.PerPage <= 0 {
		cfg.PerPage = DefaultPerPage
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.RateLimitPerSec <= 0 {
		cfg.RateLimitPerSec = DefaultRateLimitPerSec
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = DefaultRateLimitBurst
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		config:  cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst),
		logger:  logger.With("component", "worldbank"),
	}, nil
}

func (c *Client) Name() string {
	return "worldbank"
}

func (c *Client) FetchCountries(ctx context.Context) ([]providers.Record, error) {
	return c.FetchAll(ctx, "country", nil)
}

func (c *Client) FetchIndicators(ctx context.Context) ([]providers.Record, error) {
	return c.FetchAll(ctx, "indicator", nil)
}

func (c *Client) FetchObservations(ctx context.Context, country, indicator string, start, end int) ([]providers.Record, error) {
	path := "country/" + url.PathEscape(country) + "/indicator/" + url.PathEscape(indicator)
	params := url.Values{}
	params.Set("date", fmt.Sprintf("%d:%d", start, end))
	return c.FetchAll(ctx, path, params)
}

// FetchAll walks every page of path and returns the accumulated records.
func (c *Client) FetchAll(ctx context.Context, path string, params url.Values) ([]providers.Record, error) {
	if c.config.FetchDeadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.FetchDeadline)
		defer cancel()
	}

	records := make([]providers.Record, 0)
	for page := 1; ; page++ {
		query := url.Values{}
		for key, values := range params {
			for _, value := range values {
				query.Add(key, value)
			}
		}
		query.Set("format", "json")
		query.Set("per_page", strconv.Itoa(c.config.PerPage))
		query.Set("page", strconv.Itoa(page))
		endpoint := c.buildURL(path, query)

		body, status, err := c.doRequest(ctx, endpoint)
		if err != nil {
			return nil, &UpstreamError{URL: endpoint, Params: query, StatusCode: status, Err: err}
		}

		pages, pageRecords, err := decodeEnvelope(body)
		if err != nil {
			return nil, &UpstreamError{URL: endpoint, Params: query, StatusCode: status, Err: err}
		}
		records = append(records, pageRecords...)
		if page >= pages {
			break
		}
	}

	c.logger.Info("fetched records", "path", path, "records", len(records))
	return records, nil
}

func (c *Client) doRequest(ctx context.Context, endpoint string) ([]byte, int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		snippet := strings.TrimSpace(string(body))
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return nil, resp.StatusCode, fmt.Errorf("unexpected status %s: %s", resp.Status, snippet)
	}
	return body, resp.StatusCode, nil
}

func (c *Client) buildURL(path string, query url.Values) string {
	endpoint := c.config.BaseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	return endpoint
}

// decodeEnvelope reads the [metadata, records] pair and returns the total page count.
func decodeEnvelope(body []byte) (int, []providers.Record, error) {
	var envelope []json.RawMessage
	if err := newDecoder(body).Decode(&envelope); err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if len(envelope) < 2 {
		if message := upstreamMessage(envelope); message != "" {
			return 0, nil, fmt.Errorf("%w: %s", ErrMalformedEnvelope, message)
		}
		return 0, nil, fmt.Errorf("%w: expected 2 elements, got %d", ErrMalformedEnvelope, len(envelope))
	}

	var meta map[string]any
	if err := newDecoder(envelope[0]).Decode(&meta); err != nil || meta == nil {
		return 0, nil, fmt.Errorf("%w: metadata is not an object", ErrMalformedEnvelope)
	}
	pages, ok := getInt(meta, "pages")
	if !ok {
		return 0, nil, fmt.Errorf("%w: metadata has no page count", ErrMalformedEnvelope)
	}

	var records []providers.Record
	if err := newDecoder(envelope[1]).Decode(&records); err != nil {
		return 0, nil, fmt.Errorf("%w: records are not a list of objects: %v", ErrMalformedEnvelope, err)
	}
	return pages, records, nil
}

func upstreamMessage(envelope []json.RawMessage) string {
	if len(envelope) == 0 {
		return ""
	}
	var payload struct {
		Message []struct {
			ID    string `json:"id"`
			Key   string `json:"key"`
			Value string `json:"value"`
		} `json:"message"`
	}
	if err := json.Unmarshal(envelope[0], &payload); err != nil || len(payload.Message) == 0 {
		return ""
	}
	parts := make([]string, 0, len(payload.Message))
	for _, message := range payload.Message {
		parts = append(parts, strings.TrimSpace(message.Key+": "+message.Value))
	}
	return strings.Join(parts, "; ")
}

func newDecoder(data []byte) *json.Decoder {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	return decoder
}

func getInt(row map[string]any, key string) (int, bool) {
	switch typed := row[key].(type) {
	case json.Number:
		parsed, err := typed.Int64()
		if err != nil {
			return 0, false
		}
		return int(parsed), true
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(typed))
		if err != nil {
			return 0, false
		}
		return parsed, true
	case float64:
		return int(typed), true
	default:
		return 0, false
	}
}

var _ providers.Provider = (*Client)(nil)
