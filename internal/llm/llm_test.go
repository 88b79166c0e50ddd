package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bbmini/errdb/internal/config"
	"go.uber.org/zap"
)

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name        string
		cfg         config.LLMConfig
		expectError bool
		errorMsg    string
	}{
		{
			name: "ollama",
			cfg: config.LLMConfig{
				Provider: "ollama",
				Ollama:   config.OllamaConfig{Host: "http://localhost:11434", Model: "llama3.2"},
			},
		},
		{
			name: "provider name is case insensitive",
			cfg:  config.LLMConfig{Provider: "Ollama", Ollama: config.OllamaConfig{Host: "http://localhost:11434"}},
		},
		{
			name:        "empty provider",
			cfg:         config.LLMConfig{},
			expectError: true,
			errorMsg:    "not specified",
		},
		{
			name:        "unknown provider",
			cfg:         config.LLMConfig{Provider: "openai"},
			expectError: true,
			errorMsg:    "unknown llm provider",
		},
		{
			name:        "bad ollama host",
			cfg:         config.LLMConfig{Provider: "ollama", Ollama: config.OllamaConfig{Host: "://nope"}},
			expectError: true,
			errorMsg:    "invalid ollama host",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProvider(tt.cfg, zap.NewNop())
			if tt.expectError {
				if err == nil {
					t.Fatal("expected error")
				}
				if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("error %q does not mention %q", err, tt.errorMsg)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewProvider() error = %v", err)
			}
			if p == nil {
				t.Fatal("NewProvider() returned nil provider")
			}
		})
	}
}

func TestNewProviderNilLogger(t *testing.T) {
	_, err := NewProvider(config.LLMConfig{Provider: "ollama"}, nil)
	if err == nil {
		t.Error("NewProvider() should reject nil logger")
	}
}

func TestAdapterChat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]interface{}
		json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"model":   req["model"],
			"message": map[string]string{"role": "assistant", "content": "explained"},
			"done":    true,
		})
	}))
	defer server.Close()

	p, err := NewProvider(config.LLMConfig{Provider: "ollama", Ollama: config.OllamaConfig{Host: server.URL, Model: "m"}}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}

	resp, err := p.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}}, &ChatOptions{Model: "other"})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if resp.Content != "explained" || resp.Model != "other" {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestAdapterTranslatesErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	p, err := NewProvider(config.LLMConfig{Provider: "ollama", Ollama: config.OllamaConfig{Host: url}}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}

	if err := p.Heartbeat(context.Background()); !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("Heartbeat() error = %v, want ErrProviderUnavailable", err)
	}
	if _, err := p.ModelAvailable(context.Background(), "m"); !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("ModelAvailable() error = %v, want ErrProviderUnavailable", err)
	}
}

func TestTranslateErrorPassesThrough(t *testing.T) {
	if translateError(nil) != nil {
		t.Error("nil must stay nil")
	}
	other := errors.New("other")
	if !errors.Is(translateError(other), other) {
		t.Error("unrelated errors must pass through")
	}
}
