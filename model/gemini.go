package model

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiClient serves both generation and embeddings from Google's Gemini API.
type GeminiClient struct {
	client         *genai.Client
	model          string
	embeddingModel string
	temperature    float32
}

type GeminiConfig struct {
	APIKey         string
	Model          string
	EmbeddingModel string
	Temperature    float64
}

func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: API key is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &GeminiClient{
		client:         client,
		model:          cfg.Model,
		embeddingModel: cfg.EmbeddingModel,
		temperature:    float32(cfg.Temperature),
	}, nil
}

// Invoke folds system messages into the system instruction, replays earlier
// turns as chat history and sends the last message.
func (g *GeminiClient) Invoke(ctx context.Context, messages []Message) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("gemini: no messages")
	}

	m := g.client.GenerativeModel(g.model)
	m.SetTemperature(g.temperature)

	var system []string
	var turns []Message
	for _, msg := range messages {
		if msg.Role == RoleSystem {
			system = append(system, msg.Content)
			continue
		}
		turns = append(turns, msg)
	}
	if len(system) > 0 {
		m.SystemInstruction = genai.NewUserContent(genai.Text(strings.Join(system, "\n\n")))
	}
	if len(turns) == 0 {
		return "", fmt.Errorf("gemini: no user message")
	}

	cs := m.StartChat()
	for _, msg := range turns[:len(turns)-1] {
		parts, err := geminiParts(msg)
		if err != nil {
			return "", err
		}
		role := "user"
		if msg.Role == RoleAssistant {
			role = "model"
		}
		cs.History = append(cs.History, &genai.Content{Role: role, Parts: parts})
	}

	parts, err := geminiParts(turns[len(turns)-1])
	if err != nil {
		return "", err
	}
	resp, err := cs.SendMessage(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("gemini: generate: %w", err)
	}
	return responseText(resp), nil
}

func (g *GeminiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	em := g.client.EmbeddingModel(g.embeddingModel)
	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("gemini: embed: %w", err)
	}
	if res.Embedding == nil {
		return nil, fmt.Errorf("gemini: empty embedding")
	}
	return res.Embedding.Values, nil
}

func (g *GeminiClient) Close() error {
	return g.client.Close()
}

func geminiParts(msg Message) ([]genai.Part, error) {
	parts := []genai.Part{genai.Text(msg.Content)}
	for _, img := range msg.Images {
		data, err := base64.StdEncoding.DecodeString(img.Data)
		if err != nil {
			return nil, fmt.Errorf("gemini: decode image: %w", err)
		}
		mime := img.MIMEType
		if mime == "" {
			mime = "image/jpeg"
		}
		parts = append(parts, genai.Blob{MIMEType: mime, Data: data})
	}
	return parts, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}
