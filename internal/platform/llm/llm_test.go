package llm

import (
	"context"
	"errors"
	"testing"
)

func TestNewGeminiModel_MissingKey(t *testing.T) {
	_, err := NewGeminiModel(context.Background(), "")
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestContentConfig_Deterministic(t *testing.T) {
	cfg := contentConfig(Request{
		Model:           "gemini-2.5-flash-lite",
		System:          "only json",
		Prompt:          "hello",
		Temperature:     0,
		MaxOutputTokens: 700,
		JSON:            true,
	})
	if cfg.Temperature == nil || *cfg.Temperature != 0 {
		t.Errorf("expected temperature 0, got %v", cfg.Temperature)
	}
	if cfg.MaxOutputTokens != 700 {
		t.Errorf("expected max tokens 700, got %d", cfg.MaxOutputTokens)
	}
	if cfg.ResponseMIMEType != "application/json" {
		t.Errorf("expected json mime type, got %q", cfg.ResponseMIMEType)
	}
	if cfg.SystemInstruction == nil || len(cfg.SystemInstruction.Parts) != 1 {
		t.Fatal("expected system instruction with one part")
	}
	if cfg.SystemInstruction.Parts[0].Text != "only json" {
		t.Errorf("unexpected system instruction %q", cfg.SystemInstruction.Parts[0].Text)
	}
}

func TestContentConfig_NoSystemNoJSON(t *testing.T) {
	cfg := contentConfig(Request{Prompt: "x", Temperature: 0.5, MaxOutputTokens: 10})
	if cfg.SystemInstruction != nil {
		t.Error("expected no system instruction")
	}
	if cfg.ResponseMIMEType != "" {
		t.Errorf("expected empty mime type, got %q", cfg.ResponseMIMEType)
	}
	if *cfg.Temperature != 0.5 {
		t.Errorf("expected temperature 0.5, got %v", *cfg.Temperature)
	}
}
