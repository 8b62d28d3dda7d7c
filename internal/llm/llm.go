package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pavelanni/lecturetutor/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

// Provider selects the API flavour of the completion endpoint.
type Provider string

const (
	ProviderOpenAI Provider = "openai" // OpenAI or any OpenAI-compatible server (Ollama, vLLM, ...)
	ProviderAzure  Provider = "azure"
)

// Request is a single completion call.
type Request struct {
	Turns []model.ChatTurn
	JSON  bool // ask for a JSON object reply
}

// Completer is the text-completion service the tutor talks to.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Config holds connection and retry settings.
type Config struct {
	Provider    Provider
	BaseURL     string
	APIKey      string
	Model       string
	APIVersion  string // Azure only
	Temperature float32
	Attempts    int           // total tries per call, at least 1
	Timeout     time.Duration // per try; 0 means no timeout
	RetryDelay  time.Duration
}

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api         *openai.Client
	model       string
	temperature float32
	attempts    int
	timeout     time.Duration
	retryDelay  time.Duration
}

// New creates a new LLM client.
func New(cfg Config) (*Client, error) {
	if cfg.Model == "" {
		return nil, errors.New("model name is required")
	}

	var config openai.ClientConfig
	switch cfg.Provider {
	case ProviderAzure:
		if cfg.BaseURL == "" {
			return nil, errors.New("azure provider needs an endpoint URL")
		}
		config = openai.DefaultAzureConfig(cfg.APIKey, cfg.BaseURL)
		if cfg.APIVersion != "" {
			config.APIVersion = cfg.APIVersion
		}
	case ProviderOpenAI, "":
		config = openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			config.BaseURL = cfg.BaseURL
		}
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}

	attempts := cfg.Attempts
	if attempts < 1 {
		attempts = 1
	}
	return &Client{
		api:         openai.NewClientWithConfig(config),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		attempts:    attempts,
		timeout:     cfg.Timeout,
		retryDelay:  cfg.RetryDelay,
	}, nil
}

// Ping checks that the endpoint answers.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Complete(ctx, Request{Turns: []model.ChatTurn{{Role: model.RoleUser, Content: "ping"}}})
	return err
}

// Complete sends the turns and returns the reply text. Failed calls are retried
// up to the configured number of attempts.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		reply, err := c.completeOnce(ctx, req)
		if err == nil {
			return reply, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		slog.Warn("LLM call failed", "attempt", attempt, "of", c.attempts, "error", err)
		if attempt < c.attempts && c.retryDelay > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}
	}
	return "", lastErr
}

func (c *Client) completeOnce(ctx context.Context, req Request) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	creq := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    toMessages(req.Turns),
		Temperature: c.temperature,
	}
	if req.JSON {
		creq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := c.api.CreateChatCompletion(ctx, creq)
	if err != nil {
		return "", fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("LLM returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "raw", raw, "json", req.JSON)
	return raw, nil
}

func toMessages(turns []model.ChatTurn) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(turns))
	for _, t := range turns {
		role := openai.ChatMessageRoleUser
		switch t.Role {
		case model.RoleSystem:
			role = openai.ChatMessageRoleSystem
		case model.RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: t.Content})
	}
	return msgs
}
