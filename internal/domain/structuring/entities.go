package structuring

import (
	"regexp"
	"sort"
	"strings"
)

// Entity labels consulted by the diagnosis fallback.
const (
	LabelDisease   = "DISEASE"
	LabelCondition = "CONDITION"
	LabelSymptom   = "SYMPTOM"
)

// Entity is a labelled span of the input text.
type Entity struct {
	Text  string
	Label string
	Start int
	End   int
}

// EntityRecognizer finds named entities in text, in order of appearance.
type EntityRecognizer interface {
	Entities(text string) []Entity
}

// NopRecognizer recognizes nothing.
type NopRecognizer struct{}

func (NopRecognizer) Entities(string) []Entity { return nil }

// LexiconRecognizer labels whole-word, case-insensitive occurrences of known
// terms. Longer terms win over shorter ones that start at the same offset.
type LexiconRecognizer struct {
	pattern *regexp.Regexp
	labels  map[string]string
}

// NewLexiconRecognizer builds a recognizer from a term -> label map.
func NewLexiconRecognizer(terms map[string]string) *LexiconRecognizer {
	labels := make(map[string]string, len(terms))
	keys := make([]string, 0, len(terms))
	for term, label := range terms {
		t := strings.ToLower(strings.TrimSpace(term))
		if t == "" {
			continue
		}
		labels[t] = label
		keys = append(keys, t)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})

	r := &LexiconRecognizer{labels: labels}
	if len(keys) == 0 {
		return r
	}
	quoted := make([]string, len(keys))
	for i, k := range keys {
		quoted[i] = regexp.QuoteMeta(k)
	}
	r.pattern = regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
	return r
}

func (r *LexiconRecognizer) Entities(text string) []Entity {
	if r.pattern == nil {
		return nil
	}
	var out []Entity
	for _, loc := range r.pattern.FindAllStringIndex(text, -1) {
		surface := text[loc[0]:loc[1]]
		out = append(out, Entity{
			Text:  surface,
			Label: r.labels[strings.ToLower(surface)],
			Start: loc[0],
			End:   loc[1],
		})
	}
	return out
}

// DefaultConditionTerms is the built-in lexicon used by DefaultRecognizer.
// It only carries diseases and conditions so that a symptom-only dictation
// does not receive a diagnosis.
var DefaultConditionTerms = map[string]string{
	"anemia":                  LabelCondition,
	"arthritis":               LabelDisease,
	"asthma":                  LabelDisease,
	"bronchitis":              LabelDisease,
	"chickenpox":              LabelDisease,
	"common cold":             LabelDisease,
	"conjunctivitis":          LabelDisease,
	"covid-19":                LabelDisease,
	"dengue":                  LabelDisease,
	"dermatitis":              LabelCondition,
	"diabetes":                LabelDisease,
	"gastritis":               LabelCondition,
	"gastroenteritis":         LabelDisease,
	"hypertension":            LabelCondition,
	"hypothyroidism":          LabelCondition,
	"hyperthyroidism":         LabelCondition,
	"influenza":               LabelDisease,
	"malaria":                 LabelDisease,
	"migraine":                LabelCondition,
	"otitis media":            LabelDisease,
	"pharyngitis":             LabelDisease,
	"pneumonia":               LabelDisease,
	"sinusitis":               LabelDisease,
	"tonsillitis":             LabelDisease,
	"tuberculosis":            LabelDisease,
	"type 2 diabetes":         LabelDisease,
	"typhoid":                 LabelDisease,
	"urinary tract infection": LabelDisease,
	"viral fever":             LabelCondition,
}

// DefaultRecognizer returns a LexiconRecognizer over DefaultConditionTerms.
func DefaultRecognizer() *LexiconRecognizer {
	return NewLexiconRecognizer(DefaultConditionTerms)
}
