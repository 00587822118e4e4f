// Package restentity talks to a Contentful-style management API to apply
// lifecycle actions to entries.
package restentity

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

	"go.uber.org/zap"

	"github.com/brunoga/docsync/config"
	"github.com/brunoga/docsync/internal/logger"
	"github.com/brunoga/docsync/lifecycle"
)

// VersionHeader carries the version an update is based on.
const VersionHeader = "X-Contentful-Version"

// Client is an HTTP client for one space.
type Client struct {
	BaseURL    string
	Space      string
	Token      string
	HTTPClient *http.Client
	log        *logger.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.log = logger.FromZap(l) }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.HTTPClient = h }
}

// NewClient creates a client from cfg.
func NewClient(cfg config.RESTConfig, opts ...Option) *Client {
	timeout := cfg.Timeout.Duration
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		BaseURL:    cfg.BaseURL,
		Space:      cfg.Space,
		Token:      cfg.Token,
		HTTPClient: &http.Client{Timeout: timeout},
		log:        logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With("service", "RESTEntity", "space", c.Space)
	return c
}

// --- Wire types ---

// entityResponse is the part of an entity payload we read.
type entityResponse struct {
	Sys    lifecycle.Sys  `json:"sys"`
	Fields map[string]any `json:"fields,omitempty"`
}

// ErrorResponse is the error payload returned by the API.
type ErrorResponse struct {
	Sys struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	} `json:"sys"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

// APIError is a non-success response.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("server error: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("server error: %d %s", e.Status, e.Message)
}

// Unwrap exposes lifecycle.ErrVersionConflict for 409 responses.
func (e *APIError) Unwrap() error {
	if e.Status == http.StatusConflict {
		return lifecycle.ErrVersionConflict
	}
	return nil
}

func (c *Client) entryPath(id string) string {
	return c.BaseURL + "/spaces/" + url.PathEscape(c.Space) + "/entries/" + url.PathEscape(id)
}

// do sends a request and decodes an entity payload into out when non-nil.
func (c *Client) do(ctx context.Context, method, endpoint string, version *int, body any, out *entityResponse) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/vnd.contentful.management.v1+json")
	if version != nil {
		req.Header.Set(VersionHeader, strconv.Itoa(*version))
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := c.parseError(resp)
		c.log.Debug("request failed", "method", method, "url", endpoint, "status", resp.StatusCode, "error", apiErr)
		return apiErr
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func (c *Client) parseError(resp *http.Response) *APIError {
	body, _ := io.ReadAll(resp.Body)
	apiErr := &APIError{Status: resp.StatusCode}
	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && (errResp.Message != "" || errResp.Sys.ID != "") {
		apiErr.Code = errResp.Sys.ID
		apiErr.Message = errResp.Message
		return apiErr
	}
	apiErr.Message = string(body)
	return apiErr
}

// Entry returns the lifecycle collaborator for entry id.
func (c *Client) Entry(id string) *Entry {
	return &Entry{client: c, id: id}
}

// Entry implements lifecycle.Entity over HTTP.
type Entry struct {
	client *Client
	id     string
}

var _ lifecycle.Entity = (*Entry)(nil)

// ID returns the entry id.
func (e *Entry) ID() string {
	return e.id
}

// Get fetches the entry's metadata and fields.
func (e *Entry) Get(ctx context.Context) (*lifecycle.Sys, map[string]any, error) {
	var out entityResponse
	if err := e.client.do(ctx, http.MethodGet, e.client.entryPath(e.id), nil, nil, &out); err != nil {
		return nil, nil, err
	}
	return &out.Sys, out.Fields, nil
}

// UpdateFields replaces the entry's fields, based on version. It returns
// the new version.
func (e *Entry) UpdateFields(ctx context.Context, version int, fields any) (*int, error) {
	var out entityResponse
	body := map[string]any{"fields": fields}
	if err := e.client.do(ctx, http.MethodPut, e.client.entryPath(e.id), &version, body, &out); err != nil {
		return nil, err
	}
	v := out.Sys.Version
	return &v, nil
}

func (e *Entry) Publish(ctx context.Context, version int) (*lifecycle.Sys, error) {
	return e.sysCall(ctx, http.MethodPut, "/published", &version)
}

func (e *Entry) Unpublish(ctx context.Context) (*lifecycle.Sys, error) {
	return e.sysCall(ctx, http.MethodDelete, "/published", nil)
}

func (e *Entry) Archive(ctx context.Context) (*lifecycle.Sys, error) {
	return e.sysCall(ctx, http.MethodPut, "/archived", nil)
}

func (e *Entry) Unarchive(ctx context.Context) (*lifecycle.Sys, error) {
	return e.sysCall(ctx, http.MethodDelete, "/archived", nil)
}

func (e *Entry) Delete(ctx context.Context) error {
	return e.client.do(ctx, http.MethodDelete, e.client.entryPath(e.id), nil, nil, nil)
}

func (e *Entry) sysCall(ctx context.Context, method, suffix string, version *int) (*lifecycle.Sys, error) {
	var out entityResponse
	if err := e.client.do(ctx, method, e.client.entryPath(e.id)+suffix, version, nil, &out); err != nil {
		return nil, err
	}
	if out.Sys.ID == "" {
		// Some deployments answer without a body.
		return nil, nil
	}
	return &out.Sys, nil
}
