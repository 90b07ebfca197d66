package jsonbin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/jakechorley/overlap/pkg/core/model"
	"github.com/jakechorley/overlap/pkg/store"
)

const (
	DefaultBaseURL = "https://api.jsonbin.io/v3/b"

	headerMasterKey = "X-Master-Key"
	headerPrivate   = "X-Bin-Private"

	maxErrorBody = 512
)

// Client talks to a jsonbin.io compatible document store
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// Option customises a Client
type Option func(*Client)

// WithHTTPClient replaces the default http client
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithRateLimit throttles outgoing requests to rps with the given burst
func WithRateLimit(rps float64, burst int) Option {
	return func(cl *Client) {
		if rps <= 0 {
			cl.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		cl.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// NewClient creates a client for baseURL authenticated with token
func NewClient(baseURL, token string, logger *zap.Logger, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Inf, 0),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ store.DocumentStore = (*Client)(nil)

// Latest fetches the newest version of a document
func (c *Client) Latest(ctx context.Context, id string) (*model.Envelope, error) {
	var env model.Envelope
	if err := c.do(ctx, http.MethodGet, c.baseURL+"/"+id+"/latest", nil, nil, &env); err != nil {
		return nil, err
	}
	env.Record.Normalize()
	if env.Metadata.ID == "" {
		env.Metadata.ID = id
	}
	return &env, nil
}

// Create stores a new private document and returns its id
func (c *Client) Create(ctx context.Context, rec model.EventRecord) (string, error) {
	var resp model.Envelope
	headers := map[string]string{headerPrivate: "true"}
	if err := c.do(ctx, http.MethodPost, c.baseURL, rec, headers, &resp); err != nil {
		return "", err
	}
	if resp.Metadata.ID == "" {
		return "", fmt.Errorf("create response did not include a document id")
	}
	return resp.Metadata.ID, nil
}

// Replace overwrites the document with rec
func (c *Client) Replace(ctx context.Context, id string, rec model.EventRecord) error {
	return c.do(ctx, http.MethodPut, c.baseURL+"/"+id, rec, nil, nil)
}

// Delete removes the document and every stored version of it
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, c.baseURL+"/"+id, nil, nil, nil)
}

func (c *Client) do(ctx context.Context, method, url string, body any, headers map[string]string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set(headerMasterKey, c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	c.logger.Debug("jsonbin request", zap.String("method", method), zap.String("url", url))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s %s: %w", method, url, store.ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &store.StatusError{
			Op:         method + " " + url,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(msg)),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
