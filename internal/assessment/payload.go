package assessment

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Input is a parsed and validated questionnaire payload.
type Input struct {
	Format Format
	Fields Fields
	// Present holds the canonical names of the fields the payload mentioned,
	// including fields explicitly set to null.
	Present map[string]bool
	// Blob is the serialized legacy object, set only for FormatLegacy.
	Blob string
}

type scalarField struct {
	name string
	keys []string
	ptr  func(*Fields) **string
}

type listField struct {
	name   string
	keys   []string
	nested string // key under "symptoms" in the legacy layout
	ptr    func(*Fields) *[]string
}

var scalarFields = []scalarField{
	{"age", []string{"age"}, func(f *Fields) **string { return &f.Age }},
	{"pattern", []string{"pattern"}, func(f *Fields) **string { return &f.Pattern }},
	{"cycle_length", []string{"cycle_length", "cycleLength"}, func(f *Fields) **string { return &f.CycleLength }},
	{"period_duration", []string{"period_duration", "periodDuration"}, func(f *Fields) **string { return &f.PeriodDuration }},
	{"flow_heaviness", []string{"flow_heaviness", "flowHeaviness"}, func(f *Fields) **string { return &f.FlowHeaviness }},
	{"pain_level", []string{"pain_level", "painLevel"}, func(f *Fields) **string { return &f.PainLevel }},
}

var listFields = []listField{
	{name: "physical_symptoms", keys: []string{"physical_symptoms", "physicalSymptoms"}, nested: "physical",
		ptr: func(f *Fields) *[]string { return &f.PhysicalSymptoms }},
	{name: "emotional_symptoms", keys: []string{"emotional_symptoms", "emotionalSymptoms"}, nested: "emotional",
		ptr: func(f *Fields) *[]string { return &f.EmotionalSymptoms }},
	{name: "other_symptoms", keys: []string{"other_symptoms", "otherSymptoms"}, nested: "other",
		ptr: func(f *Fields) *[]string { return &f.OtherSymptoms }},
}

const recommendationsField = "recommendations"

// Parse validates payload and converts it into Fields. A legacy payload is
// unwrapped exactly one level: the object under assessment_data becomes the
// source of the fields and its serialized form becomes Input.Blob. A blob
// that wraps another assessment_data object is rejected.
func Parse(payload map[string]any) (Input, error) {
	var errs ValidationErrors
	if payload == nil {
		errs.add("assessmentData", "is required")
		return Input{}, errs
	}

	in := Input{Format: DetectPayloadFormat(payload)}
	src := payload

	if in.Format == FormatLegacy {
		blob, ok := legacyBlob(payload)
		if !ok || DetectPayloadFormat(blob) == FormatLegacy {
			errs.add("assessment_data", "is nested more than one level deep")
			return in, errs
		}
		raw, err := json.Marshal(blob)
		if err != nil {
			errs.add("assessment_data", "cannot be serialized")
			return in, errs
		}
		in.Blob = string(raw)
		src = blob
	} else {
		for _, k := range legacyKeys {
			if v, ok := payload[k]; ok && v != nil {
				errs.add("assessment_data", "must be an object")
			}
		}
	}

	in.Fields, in.Present = extract(src, func(field string, err error) {
		errs.add(field, err.Error())
	})
	if len(in.Present) == 0 && len(errs) == 0 {
		errs.add("assessmentData", "contains no assessment fields")
	}
	return in, errs.orNil()
}

// Require reports every named field that is missing from in.
func (in Input) Require(names ...string) error {
	var errs ValidationErrors
	for _, name := range names {
		for _, sf := range scalarFields {
			if sf.name == name && *sf.ptr(&in.Fields) == nil {
				errs.add(name, "is required")
			}
		}
	}
	return errs.orNil()
}

// Merge overlays the fields in mentioned on base. Fields that in does not
// mention keep their base value; fields explicitly set to null are cleared.
func Merge(base Fields, in Input) Fields {
	out := base
	for _, sf := range scalarFields {
		if in.Present[sf.name] {
			*sf.ptr(&out) = *sf.ptr(&in.Fields)
		}
	}
	for _, lf := range listFields {
		if in.Present[lf.name] {
			*lf.ptr(&out) = *lf.ptr(&in.Fields)
		}
	}
	if in.Present[recommendationsField] {
		out.Recommendations = in.Fields.Recommendations
	}
	out.normalize()
	return out
}

// extract reads Fields out of m, accepting snake_case and camelCase keys
// and the nested symptoms object. Conversion problems are passed to onErr
// and leave the field at its zero value.
func extract(m map[string]any, onErr func(field string, err error)) (Fields, map[string]bool) {
	var f Fields
	seen := map[string]bool{}

	for _, sf := range scalarFields {
		v, ok := lookup(m, sf.keys)
		if !ok {
			continue
		}
		seen[sf.name] = true
		s, err := scalarValue(v)
		if err != nil {
			onErr(sf.name, err)
			continue
		}
		*sf.ptr(&f) = s
	}

	symptoms, _ := m["symptoms"].(map[string]any)
	for _, lf := range listFields {
		v, ok := lookup(m, lf.keys)
		if !ok && symptoms != nil {
			v, ok = symptoms[lf.nested]
		}
		if !ok {
			continue
		}
		seen[lf.name] = true
		list, err := stringList(v)
		if err != nil {
			onErr(lf.name, err)
			continue
		}
		*lf.ptr(&f) = cleanStrings(list)
	}

	if v, ok := m[recommendationsField]; ok {
		seen[recommendationsField] = true
		recs, err := recommendationList(v)
		if err != nil {
			onErr(recommendationsField, err)
		} else {
			f.Recommendations = recs
		}
	}

	f.normalize()
	return f, seen
}

func lookup(m map[string]any, keys []string) (any, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v, true
		}
	}
	return nil, false
}

func scalarValue(v any) (*string, error) {
	var s string
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		s = strings.TrimSpace(t)
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		s = t.String()
	case int:
		s = strconv.Itoa(t)
	case bool:
		s = strconv.FormatBool(t)
	default:
		return nil, errors.New("must be a string or number")
	}
	if s == "" {
		return nil, nil
	}
	return &s, nil
}

func stringList(v any) ([]string, error) {
	switch t := v.(type) {
	case nil:
		return []string{}, nil
	case []string:
		return append([]string{}, t...), nil
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, errors.New("must be an array of strings")
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, errors.New("must be an array of strings")
	}
}

func cleanStrings(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func recommendationList(v any) ([]Recommendation, error) {
	switch t := v.(type) {
	case nil:
		return []Recommendation{}, nil
	case []any:
		out := make([]Recommendation, 0, len(t))
		for i, item := range t {
			switch r := item.(type) {
			case string:
				if s := strings.TrimSpace(r); s != "" {
					out = append(out, Recommendation{Title: s})
				}
			case map[string]any:
				title, _ := r["title"].(string)
				desc, _ := r["description"].(string)
				if strings.TrimSpace(title) == "" {
					return nil, fmt.Errorf("item %d: title is required", i)
				}
				out = append(out, Recommendation{Title: strings.TrimSpace(title), Description: strings.TrimSpace(desc)})
			default:
				return nil, fmt.Errorf("item %d: must be an object with a title", i)
			}
		}
		return out, nil
	default:
		return nil, errors.New("must be an array")
	}
}
