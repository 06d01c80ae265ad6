// Package structuring turns free-text clinician dictation into a structured
// prescription record. Two strategies are available: a local pattern-based
// extractor and a remote extractor backed by a hosted language model. Both
// produce the same StructuredPrescription shape through NormalizeResult.
package structuring

import (
	"time"

	"github.com/google/uuid"
)

// Medicine is a single medicine line detected in a dictation.
type Medicine struct {
	Name     string `json:"name"`
	Dose     string `json:"dose"`
	Form     string `json:"form"`
	Freq     string `json:"freq"`
	Duration string `json:"duration"`
}

// StructuredPrescription is the canonical output of every extraction strategy.
// Symptoms and Medicines are never nil.
type StructuredPrescription struct {
	Diagnosis  string     `json:"diagnosis"`
	Symptoms   []string   `json:"symptoms"`
	Medicines  []Medicine `json:"medicines"`
	Transcript string     `json:"transcript"`
}

// PatientContext is the optional patient information embedded in the remote
// model prompt.
type PatientContext struct {
	Name  string `json:"name"`
	Age   string `json:"age"`
	City  string `json:"city"`
	Phone string `json:"phone"`
}

// Candidate is a loosely typed, partially populated structure as decoded from
// a model response or assembled by an extractor.
type Candidate map[string]any

// Strategy names the extractor that produced a result.
type Strategy string

const (
	StrategyLocal  Strategy = "local"
	StrategyRemote Strategy = "remote"
)

// AILog maps to the ai_logs table. One row is written per successful
// structuring run.
type AILog struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	DoctorID   *uuid.UUID `db:"doctor_id" json:"doctor_id,omitempty"`
	PatientID  *uuid.UUID `db:"patient_id" json:"patient_id,omitempty"`
	ActionType string     `db:"action_type" json:"action_type"`
	Strategy   Strategy   `db:"strategy" json:"strategy"`
	InputText  string     `db:"input_text" json:"input_text"`
	OutputText string     `db:"output_text" json:"output_text"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

// ActionAISuggestion is the ai_logs action type recorded for structuring runs.
const ActionAISuggestion = "ai_suggestion"
