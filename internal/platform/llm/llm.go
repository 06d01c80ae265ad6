// Package llm is a thin client for hosted language models. Callers describe a
// single-turn completion with Request and receive the model's text.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

var ErrMissingAPIKey = errors.New("llm: api key is not set")

// Request is a single-turn completion request.
type Request struct {
	Model           string
	System          string
	Prompt          string
	Temperature     float32
	MaxOutputTokens int32
	// JSON asks the provider for an application/json response body.
	JSON bool
}

// GeminiModel generates completions through the Google GenAI API.
type GeminiModel struct {
	client *genai.Client
}

// NewGeminiModel creates a Gemini API backed model client.
func NewGeminiModel(ctx context.Context, apiKey string) (*GeminiModel, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiModel{client: client}, nil
}

// Generate runs one completion. The context bounds the HTTP call; cancelling
// it aborts the in-flight request.
func (g *GeminiModel) Generate(ctx context.Context, req Request) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, req.Model, genai.Text(req.Prompt), contentConfig(req))
	if err != nil {
		return "", fmt.Errorf("generate content (%s): %w", req.Model, err)
	}
	return strings.TrimSpace(resp.Text()), nil
}

func contentConfig(req Request) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(req.Temperature),
		MaxOutputTokens: req.MaxOutputTokens,
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.JSON {
		cfg.ResponseMIMEType = "application/json"
	}
	return cfg
}
