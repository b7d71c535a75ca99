package assessment

import (
	"encoding/json"
	"strings"

	"github.com/tbourn/cycle-assessment-backend/internal/domain"
)

// legacyKeys are the payload keys that carry a legacy blob.
var legacyKeys = []string{"assessment_data", "assessmentData"}

// DetectStoredFormat classifies a stored row. A non-empty assessment_data
// column wins; otherwise any of age, pattern or cycle_length makes the row
// current.
func DetectStoredFormat(row *domain.Assessment) Format {
	if row == nil {
		return FormatUnknown
	}
	if present(row.AssessmentData) {
		return FormatLegacy
	}
	if present(row.Age) || present(row.Pattern) || present(row.CycleLength) {
		return FormatCurrent
	}
	return FormatUnknown
}

// DetectPayloadFormat classifies an incoming payload. It is legacy when an
// assessment_data (or assessmentData) object sits at the top level or one
// level below; everything else is current. It never fails.
func DetectPayloadFormat(payload map[string]any) Format {
	if _, ok := legacyBlob(payload); ok {
		return FormatLegacy
	}
	for _, v := range payload {
		if inner, ok := v.(map[string]any); ok {
			if _, ok := legacyBlob(inner); ok {
				return FormatLegacy
			}
		}
	}
	return FormatCurrent
}

// legacyBlob returns the object stored under one of the legacy keys. The
// value may be an object or a string holding a serialized object.
func legacyBlob(m map[string]any) (map[string]any, bool) {
	for _, k := range legacyKeys {
		v, ok := m[k]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case map[string]any:
			return t, true
		case string:
			var obj map[string]any
			if err := json.Unmarshal([]byte(t), &obj); err == nil && obj != nil {
				return obj, true
			}
		}
	}
	return nil, false
}

func present(s *string) bool {
	return s != nil && strings.TrimSpace(*s) != ""
}

// Record is a stored row tagged with its encoding. It is either a
// LegacyRecord or a CurrentRecord.
type Record interface {
	Format() Format
	Row() *domain.Assessment
}

// LegacyRecord is a row whose assessment_data blob is authoritative.
type LegacyRecord struct {
	row  *domain.Assessment
	Blob string
}

// CurrentRecord is a row whose flattened columns are authoritative.
type CurrentRecord struct {
	row *domain.Assessment
}

func (LegacyRecord) Format() Format             { return FormatLegacy }
func (r LegacyRecord) Row() *domain.Assessment  { return r.row }
func (CurrentRecord) Format() Format            { return FormatCurrent }
func (r CurrentRecord) Row() *domain.Assessment { return r.row }

// Classify tags row with its encoding, or returns ErrMalformedRecord.
func Classify(row *domain.Assessment) (Record, error) {
	switch DetectStoredFormat(row) {
	case FormatLegacy:
		return LegacyRecord{row: row, Blob: *row.AssessmentData}, nil
	case FormatCurrent:
		return CurrentRecord{row: row}, nil
	default:
		return nil, ErrMalformedRecord
	}
}
