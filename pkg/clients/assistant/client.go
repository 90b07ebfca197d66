package assistant

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

const (
	RoleUser  = "user"
	RoleModel = "model"
)

// ErrEmptyReply is returned when the model answers with no text
var ErrEmptyReply = errors.New("assistant returned no text")

// Turn is one message of the running conversation
type Turn struct {
	Role string
	Text string
}

// Client wraps the Gemini generateContent endpoint
type Client struct {
	models *genai.Models
	model  string
	logger *zap.Logger
}

type Option func(*genai.ClientConfig)

// WithBaseURL points the client at another endpoint
func WithBaseURL(url string) Option {
	return func(cfg *genai.ClientConfig) {
		cfg.HTTPOptions.BaseURL = url
	}
}

// WithHTTPClient sets the http client used for requests
func WithHTTPClient(c *http.Client) Option {
	return func(cfg *genai.ClientConfig) {
		cfg.HTTPClient = c
	}
}

// NewClient creates a client authenticated with an API key
func NewClient(ctx context.Context, apiKey, model string, logger *zap.Logger, opts ...Option) (*Client, error) {
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &Client{
		models: client.Models,
		model:  model,
		logger: logger,
	}, nil
}

// Complete sends the system instruction and transcript and returns the
// concatenated text of the first candidate that has any
func (c *Client) Complete(ctx context.Context, system string, turns []Turn) (string, error) {
	contents := make([]*genai.Content, 0, len(turns))
	for _, turn := range turns {
		role := turn.Role
		if role != RoleModel {
			role = RoleUser
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: turn.Text}},
		})
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: system}}},
	}

	c.logger.Debug("Requesting completion", zap.String("model", c.model), zap.Int("turns", len(turns)))

	resp, err := c.models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		var sb strings.Builder
		for _, part := range candidate.Content.Parts {
			if part != nil {
				sb.WriteString(part.Text)
			}
		}
		if text := strings.TrimSpace(sb.String()); text != "" {
			return text, nil
		}
	}
	return "", ErrEmptyReply
}
