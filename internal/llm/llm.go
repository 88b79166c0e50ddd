// Package llm abstracts the language model used to explain error clusters.
//
// Only Ollama is supported. The ollama subpackage defines its own types to
// avoid an import cycle; NewProvider adapts it to Provider.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bbmini/errdb/internal/config"
	"github.com/bbmini/errdb/internal/llm/ollama"
	"go.uber.org/zap"
)

// Provider defines the interface for LLM interactions.
// Implementations must be safe for concurrent use.
type Provider interface {
	// Chat sends messages and returns a complete response.
	Chat(ctx context.Context, messages []Message, opts *ChatOptions) (*Response, error)

	// Heartbeat returns nil when the provider is reachable.
	Heartbeat(ctx context.Context) error

	// ModelAvailable reports whether model can be used without pulling it.
	ModelAvailable(ctx context.Context, model string) (bool, error)
}

// Message is a single message in a conversation.
type Message struct {
	// Role is "system", "user" or "assistant".
	Role    string
	Content string
}

// ChatOptions configures chat behavior. A nil value uses provider defaults.
type ChatOptions struct {
	Model string

	// Temperature controls randomness; 0 gives the most repeatable
	// explanations.
	Temperature float32

	// MaxTokens limits the response length, 0 for the provider default.
	MaxTokens int
}

// Response is a complete LLM response.
type Response struct {
	Content      string
	Model        string
	TokensPrompt int
	TokensTotal  int
}

// Common errors returned by LLM providers.
var (
	ErrProviderUnavailable = errors.New("llm provider is not reachable")
	ErrModelNotFound       = errors.New("requested model is not available")
	ErrContextCanceled     = errors.New("operation was canceled")
)

// NewProvider creates the provider named by cfg.Provider.
func NewProvider(cfg config.LLMConfig, logger *zap.Logger) (Provider, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	providerType := strings.ToLower(cfg.Provider)
	logger.Debug("creating llm provider", zap.String("type", providerType))

	switch providerType {
	case "ollama":
		p, err := ollama.New(ollama.Config{
			Host:  cfg.Ollama.Host,
			Model: cfg.Ollama.Model,
		}, logger)
		if err != nil {
			return nil, err
		}
		return &ollamaProviderAdapter{provider: p}, nil

	case "":
		return nil, errors.New("llm provider not specified in configuration")

	default:
		return nil, fmt.Errorf("unknown llm provider: %s (supported: ollama)", providerType)
	}
}

// ollamaProviderAdapter adapts ollama.Provider to Provider.
type ollamaProviderAdapter struct {
	provider *ollama.Provider
}

func (a *ollamaProviderAdapter) Chat(ctx context.Context, messages []Message, opts *ChatOptions) (*Response, error) {
	ollamaMessages := make([]ollama.Message, len(messages))
	for i, msg := range messages {
		ollamaMessages[i] = ollama.Message{Role: msg.Role, Content: msg.Content}
	}

	var ollamaOpts *ollama.ChatOptions
	if opts != nil {
		ollamaOpts = &ollama.ChatOptions{
			Model:       opts.Model,
			Temperature: opts.Temperature,
			MaxTokens:   opts.MaxTokens,
		}
	}

	resp, err := a.provider.Chat(ctx, ollamaMessages, ollamaOpts)
	if err != nil {
		return nil, translateError(err)
	}
	return &Response{
		Content:      resp.Content,
		Model:        resp.Model,
		TokensPrompt: resp.TokensPrompt,
		TokensTotal:  resp.TokensTotal,
	}, nil
}

func (a *ollamaProviderAdapter) Heartbeat(ctx context.Context) error {
	return translateError(a.provider.Heartbeat(ctx))
}

func (a *ollamaProviderAdapter) ModelAvailable(ctx context.Context, model string) (bool, error) {
	ok, err := a.provider.ModelAvailable(ctx, model)
	return ok, translateError(err)
}

// translateError maps ollama's sentinels onto this package's so callers can
// use errors.Is without importing ollama.
func translateError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ollama.ErrContextCanceled):
		return fmt.Errorf("%w: %v", ErrContextCanceled, err)
	case errors.Is(err, ollama.ErrProviderUnavailable):
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	default:
		return err
	}
}
