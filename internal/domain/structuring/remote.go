package structuring

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/ehrai/internal/platform/llm"
)

const (
	DefaultModel           = "gemini-2.5-flash-lite"
	DefaultTimeout         = 30 * time.Second
	DefaultMaxOutputTokens = 700
)

// Model is the hosted language model used by the remote extractor.
type Model interface {
	Generate(ctx context.Context, req llm.Request) (string, error)
}

// PatientLookup resolves optional prompt context for a patient.
type PatientLookup interface {
	PatientContext(ctx context.Context, id uuid.UUID) (*PatientContext, error)
}

// RemoteConfig holds the model settings of a RemoteExtractor.
type RemoteConfig struct {
	ModelName       string
	Timeout         time.Duration
	MaxOutputTokens int32
}

func (c RemoteConfig) withDefaults() RemoteConfig {
	if c.ModelName == "" {
		c.ModelName = DefaultModel
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxOutputTokens <= 0 {
		c.MaxOutputTokens = DefaultMaxOutputTokens
	}
	return c
}

// RemoteExtractor structures dictation through a hosted model. A nil model
// means no credential was configured; every call then fails with
// ErrNotConfigured before any I/O.
type RemoteExtractor struct {
	model    Model
	patients PatientLookup
	cfg      RemoteConfig
	logger   zerolog.Logger
}

func NewRemoteExtractor(model Model, patients PatientLookup, cfg RemoteConfig, logger zerolog.Logger) *RemoteExtractor {
	return &RemoteExtractor{
		model:    model,
		patients: patients,
		cfg:      cfg.withDefaults(),
		logger:   logger,
	}
}

// Configured reports whether a model credential is available.
func (r *RemoteExtractor) Configured() bool {
	return r != nil && r.model != nil
}

// Extract makes exactly one model call. patientID is optional.
func (r *RemoteExtractor) Extract(ctx context.Context, text string, patientID *uuid.UUID) (*StructuredPrescription, error) {
	var pc *PatientContext
	if r.Configured() && strings.TrimSpace(text) != "" {
		pc = r.lookupPatient(ctx, patientID)
	}
	return r.extract(ctx, text, pc)
}

func (r *RemoteExtractor) extract(ctx context.Context, text string, pc *PatientContext) (out *StructuredPrescription, err error) {
	if !r.Configured() {
		return nil, newError(ErrNotConfigured, nil)
	}
	cleaned, err := Normalize(text)
	if err != nil {
		return nil, newError(ErrInvalidInput, nil)
	}

	defer func() {
		if rec := recover(); rec != nil {
			out = nil
			err = newError(ErrInternal, fmt.Errorf("panic: %v", rec))
		}
	}()

	prompt := BuildPrompt(cleaned, pc)

	callCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	content, err := r.model.Generate(callCtx, llm.Request{
		Model:           r.cfg.ModelName,
		System:          SystemInstruction,
		Prompt:          prompt,
		Temperature:     0,
		MaxOutputTokens: r.cfg.MaxOutputTokens,
		JSON:            true,
	})
	if err != nil {
		return nil, newError(ErrProvider, err)
	}

	candidate, err := parseModelJSON(strings.TrimSpace(content))
	if err != nil {
		r.logger.Warn().
			Str("model", r.cfg.ModelName).
			Str("raw", content).
			Msg("model returned non-JSON response")
		return nil, err
	}
	return NormalizeResult(candidate, cleaned), nil
}

// lookupPatient never fails: any lookup error means no context.
func (r *RemoteExtractor) lookupPatient(ctx context.Context, patientID *uuid.UUID) *PatientContext {
	if r.patients == nil || patientID == nil || *patientID == uuid.Nil {
		return nil
	}
	pc, err := r.patients.PatientContext(ctx, *patientID)
	if err != nil {
		r.logger.Debug().Err(err).Str("patient_id", patientID.String()).Msg("patient context lookup failed")
		return nil
	}
	return pc
}
