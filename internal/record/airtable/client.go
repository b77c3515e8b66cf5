// Package airtable is a record.Source and link writer for an
// Airtable-compatible REST API.
package airtable

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"

	"github.com/efebarandurmaz/impactgraph/internal/apperr"
	"github.com/efebarandurmaz/impactgraph/internal/logger"
	"github.com/efebarandurmaz/impactgraph/internal/observability"
	"github.com/efebarandurmaz/impactgraph/internal/record"
)

const (
	defaultBaseURL = "https://api.airtable.com"
	pageSize       = 100
	// patchBatchSize is the store's per-request record limit for updates.
	patchBatchSize = 10
)

type Config struct {
	BaseURL           string
	APIKey            string
	BaseID            string
	RequestsPerSecond float64
	MaxRetries        uint
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	Timeout           time.Duration
}

// DefaultConfig returns the store's documented limits: 5 requests per
// second per base.
func DefaultConfig() Config {
	return Config{
		BaseURL:           defaultBaseURL,
		RequestsPerSecond: 5,
		MaxRetries:        5,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        30 * time.Second,
		Timeout:           30 * time.Second,
	}
}

type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	log     *logger.Logger
	metrics *observability.PipelineMetrics
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithMetrics(m *observability.PipelineMetrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New validates cfg and builds a client. Zero limits fall back to the
// defaults; a negative RequestsPerSecond disables rate limiting.
func New(cfg Config, log *logger.Logger, opts ...Option) (*Client, error) {
	if cfg.APIKey == "" || cfg.BaseID == "" {
		return nil, apperr.New(apperr.CodeInvalidConfig, "airtable: api key and base id are required")
	}
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.RequestsPerSecond == 0 {
		cfg.RequestsPerSecond = def.RequestsPerSecond
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	limit := rate.Limit(cfg.RequestsPerSecond)
	if cfg.RequestsPerSecond < 0 {
		limit = rate.Inf
	}
	c := &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, 1),
		log:     logger.OrNop(log).With("component", "airtable"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// StatusError is a non-retryable HTTP failure.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("airtable: HTTP %d: %s", e.Status, e.Body)
}

type listResponse struct {
	Records []record.Record `json:"records"`
	Offset  string          `json:"offset"`
}

// FetchAll pages through a table until the store stops returning an offset.
func (c *Client) FetchAll(ctx context.Context, table string) ([]record.Record, error) {
	var out []record.Record
	offset := ""
	for {
		q := url.Values{}
		q.Set("pageSize", strconv.Itoa(pageSize))
		if offset != "" {
			q.Set("offset", offset)
		}
		body, err := c.do(ctx, http.MethodGet, c.tableURL(table)+"?"+q.Encode(), nil)
		if err != nil {
			return nil, err
		}
		var page listResponse
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, apperr.Wrap(apperr.CodeMalformedTable, err, fmt.Sprintf("decode page of %s", table))
		}
		out = append(out, page.Records...)
		if page.Offset == "" {
			break
		}
		offset = page.Offset
	}
	c.log.Debug("table fetched", "table", table, "records", len(out))
	return out, nil
}

// GetRecord fetches a single record by id.
func (c *Client) GetRecord(ctx context.Context, table, id string) (record.Record, error) {
	body, err := c.do(ctx, http.MethodGet, c.tableURL(table)+"/"+url.PathEscape(id), nil)
	if err != nil {
		return record.Record{}, err
	}
	var rec record.Record
	if err := json.Unmarshal(body, &rec); err != nil {
		return record.Record{}, apperr.Wrap(apperr.CodeMalformedTable, err, "decode record "+id)
	}
	return rec, nil
}

// LinkSet is the complete value to write into one record's link field.
type LinkSet struct {
	RecordID string
	IDs      []string
}

type patchRecord struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

// UpdateLinks replaces a link field on many records, PATCHing at most ten
// records per request. The returned map holds the error for every record
// whose batch failed; it is empty when all batches succeeded.
func (c *Client) UpdateLinks(ctx context.Context, table, field string, sets []LinkSet) map[string]error {
	failed := make(map[string]error)
	for start := 0; start < len(sets); start += patchBatchSize {
		end := start + patchBatchSize
		if end > len(sets) {
			end = len(sets)
		}
		batch := sets[start:end]

		payload := struct {
			Records []patchRecord `json:"records"`
		}{Records: make([]patchRecord, 0, len(batch))}
		for _, s := range batch {
			ids := s.IDs
			if ids == nil {
				ids = []string{}
			}
			payload.Records = append(payload.Records, patchRecord{ID: s.RecordID, Fields: map[string]any{field: ids}})
		}
		data, err := json.Marshal(payload)
		if err == nil {
			_, err = c.do(ctx, http.MethodPatch, c.tableURL(table), data)
		}
		if err != nil {
			c.log.Warn("link batch failed", "table", table, "records", len(batch), "error", err)
			for _, s := range batch {
				failed[s.RecordID] = err
			}
		}
	}
	return failed
}

// Ping lists a single record of table to confirm credentials and reachability.
func (c *Client) Ping(ctx context.Context, table string) error {
	_, err := c.do(ctx, http.MethodGet, c.tableURL(table)+"?pageSize=1", nil)
	return err
}

func (c *Client) tableURL(table string) string {
	return c.cfg.BaseURL + "/v0/" + url.PathEscape(c.cfg.BaseID) + "/" + url.PathEscape(table)
}

// do sends one logical request, waiting on the rate limiter before every
// attempt and retrying 429, 5xx and transport failures with exponential
// backoff. Exhausted retries surface as DATA_UNAVAILABLE.
func (c *Client) do(ctx context.Context, method, rawURL string, payload []byte) ([]byte, error) {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = c.cfg.InitialBackoff
	expo.MaxInterval = c.cfg.MaxBackoff

	op := func() ([]byte, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, backoff.Permanent(err)
		}
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.metrics != nil {
			c.metrics.FetchRequestsTotal.Inc()
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			if secs, convErr := strconv.Atoi(resp.Header.Get("Retry-After")); convErr == nil && secs > 0 {
				return nil, backoff.RetryAfter(secs)
			}
			return nil, &StatusError{Status: resp.StatusCode, Body: string(data)}
		case resp.StatusCode >= 500:
			return nil, &StatusError{Status: resp.StatusCode, Body: string(data)}
		case resp.StatusCode >= 400:
			return nil, backoff.Permanent(&StatusError{Status: resp.StatusCode, Body: string(data)})
		}
		return data, nil
	}

	data, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(c.cfg.MaxRetries+1),
		backoff.WithNotify(func(err error, wait time.Duration) {
			if c.metrics != nil {
				c.metrics.FetchRetriesTotal.Inc()
			}
			c.log.Warn("retrying request", "method", method, "wait", wait.String(), "error", err)
		}),
	)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.Status == http.StatusNotFound {
			return nil, apperr.Wrap(apperr.CodeNotFound, err, method+" "+redactQuery(rawURL))
		}
		return nil, apperr.Wrap(apperr.CodeDataUnavailable, err, method+" "+redactQuery(rawURL))
	}
	return data, nil
}

func redactQuery(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	u.RawQuery = ""
	return u.String()
}
