// Package client talks to the advocate directory HTTP API. Transient failures
// (network errors, 5xx and 429) are retried with exponential backoff.
package client

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

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/simp-lee/advocatedir/internal/domain"
)

// Defaults applied when a Config field is zero.
const (
	DefaultTimeout         = 10 * time.Second
	DefaultMaxRetries      = 3
	DefaultInitialInterval = 200 * time.Millisecond
	DefaultMaxInterval     = 2 * time.Second
)

// Config configures a Client.
type Config struct {
	BaseURL string
	// Token is sent as a bearer token on admin calls.
	Token           string
	Timeout         time.Duration
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the logger used for retry notices.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// Client is an advocates API client. It is safe for concurrent use.
type Client struct {
	baseURL    *url.URL
	token      string
	httpClient *http.Client
	logger     *slog.Logger
	retries    int
	initial    time.Duration
	maxWait    time.Duration
}

// New creates a Client for cfg.BaseURL, e.g. "http://localhost:8080".
func New(cfg Config, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid base url %q: scheme must be http or https", cfg.BaseURL)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	} else if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = DefaultInitialInterval
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = DefaultMaxInterval
	}

	c := &Client{
		baseURL:    base,
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     slog.Default(),
		retries:    cfg.MaxRetries,
		initial:    cfg.InitialInterval,
		maxWait:    cfg.MaxInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ListQuery selects one page of the advocate list.
type ListQuery struct {
	Page     int
	PageSize int
	Filters  domain.Filters
	Sort     domain.Sort
}

// Values encodes q with the parameter names the API reads.
func (q ListQuery) Values() url.Values {
	v := url.Values{}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.PageSize > 0 {
		v.Set("pageSize", strconv.Itoa(q.PageSize))
	}
	f := q.Filters.Normalized()
	if f.Search != "" {
		v.Set("search", f.Search)
	}
	setIDs(v, "cityIds", f.CityIDs)
	setIDs(v, "degreeIds", f.DegreeIDs)
	setIDs(v, "specialtyIds", f.SpecialtyIDs)
	if len(f.AreaCodes) > 0 {
		v.Set("areaCodes", strings.Join(f.AreaCodes, ","))
	}
	if f.MinExperience != nil {
		v.Set("minExperience", strconv.Itoa(*f.MinExperience))
	}
	if f.MaxExperience != nil {
		v.Set("maxExperience", strconv.Itoa(*f.MaxExperience))
	}
	if q.Sort.Column != "" {
		v.Set("sortColumn", string(q.Sort.Column))
		if q.Sort.Direction != "" {
			v.Set("sortDirection", string(q.Sort.Direction))
		}
	}
	return v
}

func setIDs(v url.Values, key string, ids []uint) {
	if len(ids) == 0 {
		return
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatUint(uint64(id), 10)
	}
	v.Set(key, strings.Join(parts, ","))
}

// Page is one page of advocates with its pagination block, as decoded from
// a list or search response.
type Page struct {
	Data       []domain.AdvocateWithRelations
	Pagination domain.Pagination
}

// ListAdvocates fetches GET /api/advocates.
func (c *Client) ListAdvocates(ctx context.Context, q ListQuery) (*Page, error) {
	return c.page(ctx, "/api/advocates", q.Values())
}

// SearchAdvocates fetches GET /api/advocates/search.
func (c *Client) SearchAdvocates(ctx context.Context, term string, page, pageSize int) (*Page, error) {
	v := ListQuery{Page: page, PageSize: pageSize}.Values()
	v.Set("q", term)
	return c.page(ctx, "/api/advocates/search", v)
}

// FilterOptions fetches GET /api/advocates/filter-options.
func (c *Client) FilterOptions(ctx context.Context) (*domain.FilterOptions, error) {
	var out domain.FilterOptions
	if _, err := c.do(ctx, http.MethodGet, "/api/advocates/filter-options", nil, nil, false, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetAdvocate fetches GET /api/advocates/:id.
func (c *Client) GetAdvocate(ctx context.Context, id uint) (*domain.AdvocateWithRelations, error) {
	var out domain.AdvocateWithRelations
	if _, err := c.do(ctx, http.MethodGet, advocatePath(id), nil, nil, false, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AdvocateBody is the admin create and update payload.
type AdvocateBody struct {
	FirstName         string `json:"firstName"`
	LastName          string `json:"lastName"`
	CityID            uint   `json:"cityId"`
	DegreeID          uint   `json:"degreeId"`
	YearsOfExperience int    `json:"yearsOfExperience"`
	PhoneNumber       string `json:"phoneNumber"`
	IsActive          *bool  `json:"isActive,omitempty"`
	SpecialtyIDs      []uint `json:"specialtyIds,omitempty"`
}

// CreateAdvocate calls POST /api/admin/advocates.
func (c *Client) CreateAdvocate(ctx context.Context, body AdvocateBody) (*domain.AdvocateWithRelations, error) {
	var out domain.AdvocateWithRelations
	if _, err := c.do(ctx, http.MethodPost, "/api/admin/advocates", nil, body, true, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateAdvocate calls PUT /api/admin/advocates/:id.
func (c *Client) UpdateAdvocate(ctx context.Context, id uint, body AdvocateBody) (*domain.AdvocateWithRelations, error) {
	var out domain.AdvocateWithRelations
	if _, err := c.do(ctx, http.MethodPut, adminAdvocatePath(id), nil, body, true, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteAdvocate calls DELETE /api/admin/advocates/:id.
func (c *Client) DeleteAdvocate(ctx context.Context, id uint) error {
	_, err := c.do(ctx, http.MethodDelete, adminAdvocatePath(id), nil, nil, true, nil)
	return err
}

// InvalidateCache calls POST /api/admin/cache/invalidate.
func (c *Client) InvalidateCache(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, "/api/admin/cache/invalidate", nil, nil, true, nil)
	return err
}

func advocatePath(id uint) string {
	return "/api/advocates/" + strconv.FormatUint(uint64(id), 10)
}

func adminAdvocatePath(id uint) string {
	return "/api/admin/advocates/" + strconv.FormatUint(uint64(id), 10)
}

func (c *Client) page(ctx context.Context, path string, query url.Values) (*Page, error) {
	var data []domain.AdvocateWithRelations
	env, err := c.do(ctx, http.MethodGet, path, query, nil, false, &data)
	if err != nil {
		return nil, err
	}
	if env.Pagination == nil {
		return nil, errors.New("response has no pagination")
	}
	if data == nil {
		data = []domain.AdvocateWithRelations{}
	}
	return &Page{Data: data, Pagination: *env.Pagination}, nil
}

type envelope struct {
	Success    bool               `json:"success"`
	Data       json.RawMessage    `json:"data"`
	Pagination *domain.Pagination `json:"pagination"`
	Error      *errorBody         `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details"`
}

// do sends one API call, retrying transient failures, and decodes the
// envelope's data into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, admin bool, out any) (*envelope, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
	}
	endpoint := c.baseURL.JoinPath(path)
	endpoint.RawQuery = query.Encode()

	// One id per logical call, so retries share it in the server's access log.
	requestID := uuid.NewString()
	op := func() (*envelope, error) {
		return c.attempt(ctx, method, endpoint.String(), requestID, payload, admin)
	}
	notify := func(err error, wait time.Duration) {
		c.logger.WarnContext(ctx, "advocates api call failed, retrying",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("request_id", requestID),
			slog.Duration("wait", wait),
			slog.Any("error", err),
		)
	}
	env, err := backoff.RetryNotifyWithData(op, backoff.WithContext(c.newBackOff(), ctx), notify)
	if err != nil {
		return nil, err
	}

	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return nil, fmt.Errorf("decode response data: %w", err)
		}
	}
	return env, nil
}

func (c *Client) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initial
	b.MaxInterval = c.maxWait
	b.MaxElapsedTime = 0
	return backoff.WithMaxRetries(b, uint64(c.retries))
}

// attempt performs a single HTTP exchange. Errors that must not be retried
// are wrapped in backoff.Permanent.
func (c *Client) attempt(ctx context.Context, method, endpoint, requestID string, payload []byte, admin bool) (*envelope, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if admin && c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		return nil, fmt.Errorf("call advocates api: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusNoContent {
		return &envelope{Success: true}, nil
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		if decodeErr == nil {
			apiErr.fill(env.Error)
		}
		if apiErr.Temporary() {
			return nil, apiErr
		}
		return nil, backoff.Permanent(apiErr)
	}
	if decodeErr != nil {
		return nil, backoff.Permanent(fmt.Errorf("decode response: %w", decodeErr))
	}
	// A 2xx status still carries a failure when the envelope says so.
	if !env.Success {
		apiErr := &APIError{Status: resp.StatusCode, Message: "unsuccessful response"}
		apiErr.fill(env.Error)
		return nil, backoff.Permanent(apiErr)
	}
	return &env, nil
}
