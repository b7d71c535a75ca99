// Package assessment reconciles the two storage encodings of a cycle
// assessment (the legacy nested JSON blob and the flattened column layout)
// into one canonical API shape, and validates incoming questionnaire
// payloads. It does no I/O.
package assessment

import (
	"errors"
	"strings"
	"time"
)

// Format identifies how an assessment is encoded.
type Format string

const (
	FormatUnknown Format = "unknown"
	FormatLegacy  Format = "legacy"
	FormatCurrent Format = "current"
)

// ErrMalformedRecord marks a stored row that is in neither encoding, or
// whose legacy blob cannot be parsed. Callers treat such rows as absent.
var ErrMalformedRecord = errors.New("malformed assessment record")

// Recommendation is a single piece of advice attached to an assessment.
type Recommendation struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Fields are the questionnaire answers and derived results. Optional
// scalars are nil when unknown; slices are never nil once they leave this
// package.
type Fields struct {
	Age            *string `json:"age,omitempty"`
	Pattern        *string `json:"pattern,omitempty"`
	CycleLength    *string `json:"cycle_length,omitempty"`
	PeriodDuration *string `json:"period_duration,omitempty"`
	FlowHeaviness  *string `json:"flow_heaviness,omitempty"`
	PainLevel      *string `json:"pain_level,omitempty"`

	PhysicalSymptoms  []string         `json:"physical_symptoms"`
	EmotionalSymptoms []string         `json:"emotional_symptoms"`
	OtherSymptoms     []string         `json:"other_symptoms"`
	Recommendations   []Recommendation `json:"recommendations"`
}

// Assessment is the canonical API shape, identical for both storage
// encodings.
type Assessment struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
	Fields
}

// normalize replaces nil slices with empty ones.
func (f *Fields) normalize() {
	if f.PhysicalSymptoms == nil {
		f.PhysicalSymptoms = []string{}
	}
	if f.EmotionalSymptoms == nil {
		f.EmotionalSymptoms = []string{}
	}
	if f.OtherSymptoms == nil {
		f.OtherSymptoms = []string{}
	}
	if f.Recommendations == nil {
		f.Recommendations = []Recommendation{}
	}
}

// FieldError describes one invalid payload field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is the list of problems found in a payload.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for _, fe := range v {
		parts = append(parts, fe.Field+": "+fe.Message)
	}
	return "invalid assessment: " + strings.Join(parts, "; ")
}

func (v *ValidationErrors) add(field, msg string) {
	*v = append(*v, FieldError{Field: field, Message: msg})
}

func (v ValidationErrors) orNil() error {
	if len(v) == 0 {
		return nil
	}
	return v
}
