// Package ollama implements the llm.Provider interface on the Ollama API.
//
// It defines its own types matching llm.Provider so that the llm package can
// import it without a cycle.
package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"
	"go.uber.org/zap"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "llama3.2"

// Provider talks to one Ollama server.
type Provider struct {
	client *api.Client
	config Config
	logger *zap.Logger
}

// Config holds Ollama-specific configuration.
type Config struct {
	// Host is the API endpoint, e.g. "http://localhost:11434". Empty uses
	// OLLAMA_HOST or the library default.
	Host string

	// Model is the default model.
	Model string
}

// Message is a single message in a conversation.
type Message struct {
	Role    string
	Content string
}

// ChatOptions configures chat behavior.
type ChatOptions struct {
	Model       string
	Temperature float32
	MaxTokens   int
}

// Response is a complete chat response.
type Response struct {
	Content      string
	Model        string
	TokensPrompt int
	TokensTotal  int
}

// Common errors
var (
	ErrProviderUnavailable = errors.New("llm provider is not reachable")
	ErrContextCanceled     = errors.New("operation was canceled")
)

// New creates a provider.
func New(cfg Config, logger *zap.Logger) (*Provider, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	var client *api.Client
	if cfg.Host != "" {
		parsedURL, err := url.Parse(cfg.Host)
		if err != nil {
			logger.Error("invalid ollama host URL", zap.String("host", cfg.Host), zap.Error(err))
			return nil, fmt.Errorf("invalid ollama host: %w", err)
		}
		client = api.NewClient(parsedURL, http.DefaultClient)
		logger.Debug("created ollama client with explicit host", zap.String("host", cfg.Host))
	} else {
		var err error
		client, err = api.ClientFromEnvironment()
		if err != nil {
			logger.Error("failed to create ollama client from environment", zap.Error(err))
			return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
		}
		logger.Debug("created ollama client from environment")
	}

	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	return &Provider{
		client: client,
		config: cfg,
		logger: logger,
	}, nil
}

// Chat sends messages and waits for the complete response.
func (p *Provider) Chat(ctx context.Context, messages []Message, opts *ChatOptions) (*Response, error) {
	if len(messages) == 0 {
		return nil, errors.New("messages cannot be empty")
	}

	model := p.config.Model
	temperature := float32(0)
	maxTokens := 0
	if opts != nil {
		if opts.Model != "" {
			model = opts.Model
		}
		temperature = opts.Temperature
		maxTokens = opts.MaxTokens
	}

	p.logger.Debug("sending chat request",
		zap.String("model", model),
		zap.Int("messages", len(messages)),
		zap.Float32("temperature", temperature))

	ollamaMessages := make([]api.Message, len(messages))
	for i, msg := range messages {
		ollamaMessages[i] = api.Message{Role: msg.Role, Content: msg.Content}
	}

	req := &api.ChatRequest{
		Model:    model,
		Messages: ollamaMessages,
		Options: map[string]interface{}{
			"temperature": temperature,
		},
		Stream: new(bool),
	}
	if maxTokens > 0 {
		req.Options["num_predict"] = maxTokens
	}

	var response api.ChatResponse
	err := p.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		response = resp
		return nil
	})
	if err != nil {
		p.logger.Error("chat request failed", zap.String("model", model), zap.Error(err))
		if errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("%w: %v", ErrContextCanceled, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	p.logger.Debug("chat request completed",
		zap.String("model", response.Model),
		zap.Int("prompt_tokens", response.PromptEvalCount),
		zap.Int("total_tokens", response.EvalCount))

	return &Response{
		Content:      response.Message.Content,
		Model:        response.Model,
		TokensPrompt: response.PromptEvalCount,
		TokensTotal:  response.PromptEvalCount + response.EvalCount,
	}, nil
}

// Heartbeat checks that the server is reachable.
func (p *Provider) Heartbeat(ctx context.Context) error {
	if err := p.client.Heartbeat(ctx); err != nil {
		p.logger.Error("ollama heartbeat failed", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	return nil
}

// ModelAvailable reports whether model has been pulled.
func (p *Provider) ModelAvailable(ctx context.Context, model string) (bool, error) {
	listResp, err := p.client.List(ctx)
	if err != nil {
		p.logger.Error("failed to list models", zap.Error(err))
		return false, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	for _, m := range listResp.Models {
		if m.Name == model || m.Model == model {
			return true, nil
		}
	}

	p.logger.Debug("model not found", zap.String("model", model), zap.Int("available", len(listResp.Models)))
	return false, nil
}
