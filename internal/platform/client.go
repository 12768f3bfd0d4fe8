// Package platform is a thin JSON client for the process-mining platform's
// type and factory endpoints. It does not retry; every call is tried once.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	objectTypesPath = "/bl/api/v1/types/objects"
	eventTypesPath  = "/bl/api/v1/types/events"
	factoriesPath   = "/bl/api/v1/factories"

	maxErrorBody = 2048
)

// Config configures the client.
type Config struct {
	BaseURL     string
	Environment string
	Timeout     time.Duration
	Headers     map[string]string
	PageSize    int
}

// Observer receives one call per finished request. Status is 0 when the
// request never got a response.
type Observer interface {
	ObserveRequest(op string, status int, elapsed time.Duration)
}

// Option configures Client behavior.
type Option func(*Client)

// WithObserver reports request outcomes to o.
func WithObserver(o Observer) Option {
	return func(c *Client) {
		c.observer = o
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// Client talks to one platform environment. It is safe for concurrent use.
type Client struct {
	baseURL     string
	environment string
	headers     map[string]string
	pageSize    int
	http        *http.Client
	observer    Observer
}

// ErrorDetail is one entry of a platform error body.
type ErrorDetail struct {
	ErrorCode string `json:"errorCode"`
	Message   string `json:"message"`
}

// APIError represents a non-2xx response.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
	Message    string
	Errors     []ErrorDetail
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" && len(e.Errors) > 0 {
		msg = e.Errors[0].Message
	}
	if msg == "" {
		msg = e.Body
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.StatusCode, msg)
}

// IsAlreadyExists reports whether the platform rejected a create because the
// entity is already there.
func (e *APIError) IsAlreadyExists() bool {
	return e.StatusCode == http.StatusBadRequest && len(e.Errors) > 0 && e.Errors[0].ErrorCode == "ALREADY_EXISTS"
}

// IsValidation reports a structured 400: a bad request that came back with a
// message explaining what failed.
func (e *APIError) IsValidation() bool {
	if e.StatusCode != http.StatusBadRequest || e.IsAlreadyExists() {
		return false
	}
	if e.Message != "" {
		return true
	}
	for _, d := range e.Errors {
		if d.Message != "" {
			return true
		}
	}
	return false
}

// New creates a Client.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("platform base URL is empty")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid platform base URL: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	env := cfg.Environment
	if env == "" {
		env = "develop"
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}
	c := &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		environment: env,
		headers:     cfg.Headers,
		pageSize:    pageSize,
		http:        &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// CreateObjectType posts an object type schema.
func (c *Client) CreateObjectType(ctx context.Context, schema TypeSchema) error {
	if err := schema.Validate(); err != nil {
		return err
	}
	return c.do(ctx, "create_object_type", http.MethodPost, objectTypesPath, nil, schema, nil)
}

// CreateEventType posts an event type schema.
func (c *Client) CreateEventType(ctx context.Context, schema TypeSchema) error {
	if err := schema.ValidateEvent(); err != nil {
		return err
	}
	return c.do(ctx, "create_event_type", http.MethodPost, eventTypesPath, nil, schema, nil)
}

// CreateFactory creates a draft factory and returns what the platform
// stored, including the assigned factory id.
func (c *Client) CreateFactory(ctx context.Context, req FactoryCreateRequest) (*Factory, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	var out Factory
	if err := c.do(ctx, "create_factory", http.MethodPost, factoriesPath, nil, req, &out); err != nil {
		return nil, err
	}
	if out.FactoryID == "" {
		return nil, fmt.Errorf("create_factory: response carries no factoryId")
	}
	return &out, nil
}

// UpdateFactory replaces a factory and returns the platform's view of it.
func (c *Client) UpdateFactory(ctx context.Context, f Factory) (*Factory, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	var out Factory
	path := factoriesPath + "/" + url.PathEscape(f.FactoryID)
	if err := c.do(ctx, "update_factory", http.MethodPut, path, nil, f, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListEventTypes follows pages until the platform reports the last one.
func (c *Client) ListEventTypes(ctx context.Context) ([]EventTypeDefinition, error) {
	var all []EventTypeDefinition
	for page := 0; ; page++ {
		q := url.Values{}
		q.Set("page", strconv.Itoa(page))
		q.Set("size", strconv.Itoa(c.pageSize))

		var p EventTypePage
		if err := c.do(ctx, "list_event_types", http.MethodGet, eventTypesPath, q, nil, &p); err != nil {
			return nil, err
		}
		all = append(all, p.Content...)
		if p.Last || len(p.Content) == 0 {
			return all, nil
		}
	}
}

// UpdateEventType replaces the definition of an existing event type.
func (c *Client) UpdateEventType(ctx context.Context, name string, upd EventTypeUpdate) error {
	if err := upd.Validate(); err != nil {
		return err
	}
	path := eventTypesPath + "/" + url.PathEscape(name)
	return c.do(ctx, "update_event_type", http.MethodPut, path, nil, upd, nil)
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, in, out any) error {
	start := time.Now()
	status := 0
	defer func() {
		if c.observer != nil {
			c.observer.ObserveRequest(op, status, time.Since(start))
		}
	}()

	q := url.Values{}
	for k, v := range query {
		q[k] = v
	}
	q.Set("environment", c.environment)
	fullURL := c.baseURL + path + "?" + q.Encode()

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal %s request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", op, err)
	}
	defer resp.Body.Close()
	status = resp.StatusCode

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(op, resp.StatusCode, data)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", op, err)
	}
	return nil
}

func newAPIError(op string, status int, data []byte) *APIError {
	text := string(data)
	if len(text) > maxErrorBody {
		text = text[:maxErrorBody]
	}
	apiErr := &APIError{Op: op, StatusCode: status, Body: text}

	var parsed struct {
		Message string        `json:"message"`
		Errors  []ErrorDetail `json:"errors"`
	}
	if json.Unmarshal(data, &parsed) == nil {
		apiErr.Message = parsed.Message
		apiErr.Errors = parsed.Errors
	}
	return apiErr
}
