package model

import (
	"context"
	"fmt"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Image is an inline image payload sent alongside message text.
type Image struct {
	MIMEType string
	Data     string // base64
}

type Message struct {
	Role    Role
	Content string
	Images  []Image
}

func System(content string) Message { return Message{Role: RoleSystem, Content: content} }
func User(content string) Message   { return Message{Role: RoleUser, Content: content} }

// Generator is the text-generation model. Invoke blocks until the full
// response is available.
type Generator interface {
	Invoke(ctx context.Context, messages []Message) (string, error)
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Settings struct {
	Provider    string
	Model       string
	Temperature float64
	OllamaURL   string
	APIKey      string
}

// NewGenerator builds the generator for the configured provider.
func NewGenerator(ctx context.Context, s Settings) (Generator, error) {
	switch s.Provider {
	case "gemini":
		return NewGeminiClient(ctx, GeminiConfig{APIKey: s.APIKey, Model: s.Model, Temperature: s.Temperature})
	case "ollama", "":
		return NewOllamaClient(OllamaConfig{BaseURL: s.OllamaURL, Model: s.Model, Temperature: s.Temperature}), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %q", s.Provider)
	}
}

// NewEmbedder builds the embedder for the configured provider.
func NewEmbedder(ctx context.Context, s Settings) (Embedder, error) {
	switch s.Provider {
	case "gemini":
		return NewGeminiClient(ctx, GeminiConfig{APIKey: s.APIKey, EmbeddingModel: s.Model})
	case "ollama", "":
		return NewOllamaClient(OllamaConfig{BaseURL: s.OllamaURL, EmbeddingModel: s.Model}), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %q", s.Provider)
	}
}
