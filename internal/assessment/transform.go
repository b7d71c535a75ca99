package assessment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/tbourn/cycle-assessment-backend/internal/domain"
)

// Transformer converts between the storage row and the canonical API
// shape. Recoverable data problems are logged on the request logger found
// in ctx, or on Log when ctx carries none.
type Transformer struct {
	Log zerolog.Logger
}

// NewTransformer returns a Transformer that falls back to log.
func NewTransformer(log zerolog.Logger) *Transformer {
	return &Transformer{Log: log}
}

// ToStorage returns the data columns for in. Identity and timestamp
// columns are left to the caller. Legacy input keeps its serialized blob in
// assessment_data and mirrors the values into the flattened columns.
func (t *Transformer) ToStorage(in Input) domain.Assessment {
	row := Columns(in.Fields)
	if in.Format == FormatLegacy && in.Blob != "" {
		blob := in.Blob
		row.AssessmentData = &blob
	}
	return row
}

// Columns returns f in the current (flattened) encoding.
func Columns(f Fields) domain.Assessment {
	f.normalize()
	return domain.Assessment{
		Age:               clone(f.Age),
		Pattern:           clone(f.Pattern),
		CycleLength:       clone(f.CycleLength),
		PeriodDuration:    clone(f.PeriodDuration),
		FlowHeaviness:     clone(f.FlowHeaviness),
		PainLevel:         clone(f.PainLevel),
		PhysicalSymptoms:  jsonText(f.PhysicalSymptoms),
		EmotionalSymptoms: jsonText(f.EmotionalSymptoms),
		OtherSymptoms:     jsonText(f.OtherSymptoms),
		Recommendations:   jsonText(f.Recommendations),
	}
}

// ToAPI converts a stored row of either encoding into the canonical shape.
// It returns ErrMalformedRecord for rows in neither encoding and for legacy
// rows whose blob is not a JSON object. Unparseable array columns become
// empty arrays.
func (t *Transformer) ToAPI(ctx context.Context, row *domain.Assessment) (Assessment, error) {
	rec, err := Classify(row)
	if err != nil {
		return Assessment{}, err
	}
	log := t.logger(ctx)

	out := Assessment{
		ID:        row.ID,
		UserID:    row.UserID,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}

	switch r := rec.(type) {
	case LegacyRecord:
		var blob map[string]any
		if err := json.Unmarshal([]byte(r.Blob), &blob); err != nil || blob == nil {
			log.Warn().Str("assessment_id", row.ID).Msg("unparseable legacy assessment_data")
			return Assessment{}, fmt.Errorf("assessment %s: %w", row.ID, ErrMalformedRecord)
		}
		out.Fields, _ = extract(blob, func(field string, err error) {
			log.Warn().Str("assessment_id", row.ID).Str("field", field).Err(err).
				Msg("invalid legacy field, using default")
		})
	case CurrentRecord:
		out.Fields = t.fromColumns(log, r.Row())
	}
	out.Fields.normalize()
	return out, nil
}

func (t *Transformer) fromColumns(log *zerolog.Logger, row *domain.Assessment) Fields {
	f := Fields{
		Age:            clone(row.Age),
		Pattern:        clone(row.Pattern),
		CycleLength:    clone(row.CycleLength),
		PeriodDuration: clone(row.PeriodDuration),
		FlowHeaviness:  clone(row.FlowHeaviness),
		PainLevel:      clone(row.PainLevel),
	}

	bad := func(field string, err error) {
		log.Warn().Str("assessment_id", row.ID).Str("field", field).Err(err).
			Msg("malformed array column, using empty array")
	}
	f.PhysicalSymptoms = decodeList(row.PhysicalSymptoms, "physical_symptoms", bad)
	f.EmotionalSymptoms = decodeList(row.EmotionalSymptoms, "emotional_symptoms", bad)
	f.OtherSymptoms = decodeList(row.OtherSymptoms, "other_symptoms", bad)

	if v, ok := decodeJSON(row.Recommendations, recommendationsField, bad); ok {
		recs, err := recommendationList(v)
		if err != nil {
			bad(recommendationsField, err)
		}
		f.Recommendations = recs
	}
	return f
}

func (t *Transformer) logger(ctx context.Context) *zerolog.Logger {
	if ctx != nil {
		if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
			return l
		}
	}
	return &t.Log
}

func decodeList(col *string, field string, bad func(string, error)) []string {
	v, ok := decodeJSON(col, field, bad)
	if !ok {
		return []string{}
	}
	list, err := stringList(v)
	if err != nil {
		bad(field, err)
		return []string{}
	}
	return list
}

func decodeJSON(col *string, field string, bad func(string, error)) (any, bool) {
	if col == nil || strings.TrimSpace(*col) == "" {
		return nil, false
	}
	var v any
	if err := json.Unmarshal([]byte(*col), &v); err != nil {
		bad(field, err)
		return nil, false
	}
	return v, true
}

func jsonText(v any) *string {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	s := string(b)
	return &s
}

// clone copies s verbatim. Values are normalized once, by Parse, so the
// column mapping stays an exact inverse pair.
func clone(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
