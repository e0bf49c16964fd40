// Package llm wraps the text-generation service used for summaries and articles.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Nexora-Open-Source/blog-generator-backend/monitoring"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

// ErrEmptyResponse is returned when the service answers without any text
var ErrEmptyResponse = errors.New("text generation returned no content")

// Client sends a single-turn request made of a system instruction and a user
// message and returns the generated text.
type Client interface {
	Complete(ctx context.Context, operation, system, user string) (string, error)
}

// Config selects and parameterizes the text-generation service. When
// AzureEndpoint is set requests go to that Azure OpenAI resource, otherwise to
// OpenAI or the compatible service at BaseURL.
type Config struct {
	APIKey        string
	AzureEndpoint string
	APIVersion    string
	Model         string
	BaseURL       string
	Timeout       time.Duration
	Temperature   float32
}

// OpenAIClient implements Client with go-openai
type OpenAIClient struct {
	client      *openai.Client
	model       string
	temperature float32
	timeout     time.Duration
	logger      *logrus.Logger

	requests atomic.Int64
	failures atomic.Int64
}

var _ Client = (*OpenAIClient)(nil)

// NewOpenAIClient creates a client for cfg
func NewOpenAIClient(cfg Config, logger *logrus.Logger) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("text generation API key is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("text generation model is required")
	}

	var transportCfg openai.ClientConfig
	if cfg.AzureEndpoint != "" {
		transportCfg = openai.DefaultAzureConfig(cfg.APIKey, cfg.AzureEndpoint)
		if cfg.APIVersion != "" {
			transportCfg.APIVersion = cfg.APIVersion
		}
		// The deployment name is the configured model.
		deployment := cfg.Model
		transportCfg.AzureModelMapperFunc = func(string) string { return deployment }
	} else {
		transportCfg = openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			transportCfg.BaseURL = cfg.BaseURL
		}
	}
	transportCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &OpenAIClient{
		client:      openai.NewClientWithConfig(transportCfg),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
		logger:      logger,
	}, nil
}

// Complete sends one chat completion request. operation labels the request in
// logs and metrics.
func (c *OpenAIClient) Complete(ctx context.Context, operation, system, user string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	duration := time.Since(start)
	c.requests.Add(1)

	if err != nil {
		c.failures.Add(1)
		monitoring.RecordLLMRequest(operation, "failed", duration.Seconds())
		c.logger.WithError(err).WithFields(logrus.Fields{
			"operation": operation,
			"model":     c.model,
			"duration":  duration.String(),
		}).Warn("Text generation request failed")
		return "", fmt.Errorf("%s request failed: %w", operation, err)
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		c.failures.Add(1)
		monitoring.RecordLLMRequest(operation, "empty", duration.Seconds())
		return "", fmt.Errorf("%s: %w", operation, ErrEmptyResponse)
	}

	monitoring.RecordLLMRequest(operation, "success", duration.Seconds())
	c.logger.WithFields(logrus.Fields{
		"operation":         operation,
		"model":             c.model,
		"duration":          duration.String(),
		"prompt_tokens":     resp.Usage.PromptTokens,
		"completion_tokens": resp.Usage.CompletionTokens,
	}).Debug("Text generation request completed")

	return resp.Choices[0].Message.Content, nil
}

// ErrorRate returns the share of requests that failed or came back empty, or
// zero until minSamples requests were sent.
func (c *OpenAIClient) ErrorRate(minSamples int64) float64 {
	total := c.requests.Load()
	if total == 0 || total < minSamples {
		return 0
	}
	return float64(c.failures.Load()) / float64(total)
}
