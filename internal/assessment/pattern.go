package assessment

import (
	"encoding/json"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Cycle patterns computed from questionnaire answers.
const (
	PatternRegular    = "regular"
	PatternIrregular  = "irregular"
	PatternHeavy      = "heavy"
	PatternPain       = "pain"
	PatternDeveloping = "developing"
)

// DerivePattern picks a pattern from the answers. Checks run in order:
// an adolescent with an irregular cycle is developing, then irregular cycle
// length, then heavy or long bleeding, then severe pain; otherwise regular.
func DerivePattern(f Fields) string {
	irregular := irregularCycle(deref(f.CycleLength))
	switch {
	case irregular && adolescent(deref(f.Age)):
		return PatternDeveloping
	case irregular:
		return PatternIrregular
	case heavyFlow(deref(f.FlowHeaviness), deref(f.PeriodDuration)):
		return PatternHeavy
	case severePain(deref(f.PainLevel)):
		return PatternPain
	default:
		return PatternRegular
	}
}

var stockRecommendations = map[string][]Recommendation{
	PatternRegular: {
		{Title: "Track your cycle", Description: "Keep logging period start dates to spot changes early."},
		{Title: "Stay active", Description: "Regular movement can ease cramps and support mood across the cycle."},
	},
	PatternIrregular: {
		{Title: "Log every cycle", Description: "Record start and end dates for at least three months to show a clear picture."},
		{Title: "Talk to a clinician", Description: "Cycles shorter than 21 or longer than 35 days are worth discussing with a healthcare provider."},
	},
	PatternHeavy: {
		{Title: "Watch for anaemia", Description: "Heavy or long bleeding can lower iron; fatigue and dizziness are signs to mention to a doctor."},
		{Title: "Note product changes", Description: "Changing protection every one to two hours is a useful detail for a clinician."},
	},
	PatternPain: {
		{Title: "Plan for pain relief", Description: "Heat and over-the-counter pain relief taken early often work best."},
		{Title: "Seek assessment", Description: "Pain that stops daily activities should be checked for conditions such as endometriosis."},
	},
	PatternDeveloping: {
		{Title: "Give it time", Description: "Cycles often take a few years after the first period to settle into a rhythm."},
		{Title: "Keep a simple diary", Description: "Noting dates and symptoms helps you and a trusted adult see patterns."},
	},
}

// RecommendationsFor returns a copy of the stock advice for pattern.
// Unknown patterns get the regular advice.
func RecommendationsFor(pattern string) []Recommendation {
	recs, ok := stockRecommendations[pattern]
	if !ok {
		recs = stockRecommendations[PatternRegular]
	}
	out := make([]Recommendation, len(recs))
	copy(out, recs)
	return out
}

// ApplyDefaults derives the pattern and stock recommendations when in
// lacks them. For legacy input the additions are written into the blob as
// well, since the blob is what gets read back.
func ApplyDefaults(in Input) (Input, error) {
	var added map[string]any
	if in.Fields.Pattern == nil {
		p := DerivePattern(in.Fields)
		in.Fields.Pattern = &p
		added = map[string]any{"pattern": p}
	}
	if len(in.Fields.Recommendations) == 0 {
		in.Fields.Recommendations = RecommendationsFor(*in.Fields.Pattern)
		if added == nil {
			added = map[string]any{}
		}
		added[recommendationsField] = in.Fields.Recommendations
	}
	if in.Format != FormatLegacy || in.Blob == "" || added == nil {
		return in, nil
	}

	var blob map[string]any
	if err := json.Unmarshal([]byte(in.Blob), &blob); err != nil {
		return in, err
	}
	for k, v := range added {
		blob[k] = v
	}
	raw, err := json.Marshal(blob)
	if err != nil {
		return in, err
	}
	in.Blob = string(raw)
	return in, nil
}

// Label renders a pattern for display, e.g. "heavy" -> "Heavy".
func Label(pattern string) string {
	// Casers keep state; one per call.
	return cases.Title(language.English).String(strings.ReplaceAll(pattern, "-", " "))
}

func irregularCycle(s string) bool {
	s = strings.ToLower(s)
	for _, marker := range []string{"irregular", "varies", "unpredictable", "less-than", "more-than", "not-sure"} {
		if strings.Contains(s, marker) {
			return true
		}
	}
	n, ok := leadingInt(s)
	return ok && (n < 21 || n > 35)
}

func adolescent(s string) bool {
	s = strings.ToLower(s)
	if strings.Contains(s, "under") {
		return true
	}
	n, ok := leadingInt(s)
	return ok && n < 18
}

func heavyFlow(flow, duration string) bool {
	if strings.Contains(strings.ToLower(flow), "heavy") {
		return true
	}
	d := strings.ToLower(duration)
	if strings.Contains(d, "more-than") || strings.Contains(d, "+") {
		return true
	}
	n, ok := leadingInt(d)
	return ok && n > 7
}

func severePain(s string) bool {
	s = strings.ToLower(s)
	if strings.Contains(s, "severe") || strings.Contains(s, "debilitating") {
		return true
	}
	n, ok := leadingInt(s)
	return ok && n >= 7
}

// leadingInt returns the first run of digits in s.
func leadingInt(s string) (int, bool) {
	start := strings.IndexFunc(s, unicode.IsDigit)
	if start < 0 {
		return 0, false
	}
	end := start
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(s[start:end])
	return n, err == nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
