// Package llm talks to an OpenAI-compatible chat completion endpoint.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/ashureev/interview-coach/internal/metrics"
)

// ErrEmptyReply is returned when the endpoint answers with no content.
var ErrEmptyReply = errors.New("llm: empty reply")

// Request is a single-prompt completion request.
type Request struct {
	// Purpose labels the call in logs and metrics.
	Purpose     string
	Prompt      string
	Temperature float32
}

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Config configures Client.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client implements Generator with go-openai.
type Client struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

// NewClient builds a Client. The logger may be nil.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.Model == "" {
		return nil, errors.New("llm model is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	logger.Info("initializing llm client", "model", cfg.Model, "base_url", oc.BaseURL, "timeout", timeout)
	return &Client{
		client:  openai.NewClientWithConfig(oc),
		model:   cfg.Model,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// Generate sends req as a single user message, bounded by the client timeout.
func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
		Temperature: req.Temperature,
	})
	if err != nil {
		metrics.ObserveGeneration(req.Purpose, start, err)
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		metrics.ObserveGeneration(req.Purpose, start, ErrEmptyReply)
		return "", ErrEmptyReply
	}
	metrics.ObserveGeneration(req.Purpose, start, nil)
	c.logger.Debug("llm reply received",
		"purpose", req.Purpose,
		"finish_reason", resp.Choices[0].FinishReason,
		"duration", time.Since(start))
	return resp.Choices[0].Message.Content, nil
}

// Func adapts a function to Generator.
type Func func(ctx context.Context, req Request) (string, error)

// Generate calls f.
func (f Func) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
