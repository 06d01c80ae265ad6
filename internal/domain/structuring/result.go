package structuring

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

// NormalizeResult turns a candidate from any extractor into the canonical
// record. Missing or mistyped fields take their empty defaults, scalar values
// are rendered as strings, medicines without a name are dropped and the
// transcript falls back to the given text.
func NormalizeResult(c Candidate, transcript string) *StructuredPrescription {
	out := &StructuredPrescription{
		Diagnosis:  scalarString(c["diagnosis"]),
		Symptoms:   stringList(c["symptoms"]),
		Medicines:  medicineList(c["medicines"]),
		Transcript: scalarString(c["transcript"]),
	}
	if out.Transcript == "" {
		out.Transcript = transcript
	}
	return out
}

func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	default:
		return ""
	}
}

func stringList(v any) []string {
	switch t := v.(type) {
	case []string:
		return lo.Filter(t, func(s string, _ int) bool { return s != "" })
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s := scalarString(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		// Some models answer with a single comma separated string.
		parts := lo.Map(strings.Split(t, ","), func(s string, _ int) string { return strings.TrimSpace(s) })
		return lo.Compact(parts)
	default:
		return []string{}
	}
}

func medicineList(v any) []Medicine {
	out := []Medicine{}
	switch t := v.(type) {
	case []Medicine:
		out = lo.Filter(t, func(m Medicine, _ int) bool { return strings.TrimSpace(m.Name) != "" })
	case []map[string]any:
		for _, m := range t {
			if med, ok := medicineFromMap(m); ok {
				out = append(out, med)
			}
		}
	case []any:
		for _, item := range t {
			switch m := item.(type) {
			case map[string]any:
				if med, ok := medicineFromMap(m); ok {
					out = append(out, med)
				}
			case string:
				if name := strings.TrimSpace(m); name != "" {
					out = append(out, Medicine{Name: name})
				}
			}
		}
	}
	return out
}

func medicineFromMap(m map[string]any) (Medicine, bool) {
	med := Medicine{
		Name:     strings.TrimSpace(scalarString(m["name"])),
		Dose:     firstNonEmpty(scalarString(m["dose"]), scalarString(m["dosage"])),
		Form:     scalarString(m["form"]),
		Freq:     firstNonEmpty(scalarString(m["freq"]), scalarString(m["frequency"])),
		Duration: scalarString(m["duration"]),
	}
	return med, med.Name != ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

// parseModelJSON decodes a model response into a candidate. When the response
// is not a JSON object by itself, the first-to-last brace substring is tried.
func parseModelJSON(content string) (Candidate, error) {
	var direct map[string]any
	if err := json.Unmarshal([]byte(content), &direct); err == nil && direct != nil {
		return Candidate(direct), nil
	}

	match := jsonObjectPattern.FindString(content)
	if match == "" {
		return nil, &Error{Kind: ErrNonJSONResponse, Raw: content}
	}
	var recovered map[string]any
	if err := json.Unmarshal([]byte(match), &recovered); err != nil || recovered == nil {
		return nil, &Error{Kind: ErrNonJSONResponse, Raw: content, Err: fmt.Errorf("recover json object: %w", err)}
	}
	return Candidate(recovered), nil
}
