package structuring

import (
	"regexp"
	"strings"
)

var diagnosisPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)diagnosis is (.*?)(?:\.|$)`),
	regexp.MustCompile(`(?i)diagnosed with (.*?)(?:\.|$)`),
}

// medicinePattern captures name, dose, form, frequency and duration. Every
// group after the name is optional, so any word-like token can be captured as
// a name.
var medicinePattern = regexp.MustCompile(
	`(?i)([A-Za-z]+[A-Za-z0-9]*)\s*(\d+mg|\d+ml|\d+mcg)?\s*(tablet|capsule|syrup|drop)?\s*(once|twice|daily|night|morning|evening)?\s*(for\s*\d+\s*(?:days|weeks))?`,
)

// SymptomTerms is the vocabulary that marks a sentence as a symptom statement.
var SymptomTerms = []string{
	"fever", "pain", "cough", "cold", "vomit",
	"headache", "fatigue", "weakness", "breathing",
}

var diagnosisLabels = map[string]bool{
	LabelDisease:   true,
	LabelCondition: true,
	LabelSymptom:   true,
}

// LocalExtractor is the pattern-based extractor. It performs no I/O and is
// safe for concurrent use.
type LocalExtractor struct {
	recognizer EntityRecognizer
	vocabulary map[string]bool
}

// LocalOption configures a LocalExtractor.
type LocalOption func(*LocalExtractor)

// WithRecognizer sets the entity recognizer used for the diagnosis fallback.
func WithRecognizer(r EntityRecognizer) LocalOption {
	return func(x *LocalExtractor) {
		if r == nil {
			r = NopRecognizer{}
		}
		x.recognizer = r
	}
}

// WithVocabulary restricts medicine names to the given case-insensitive
// allowlist. An empty list keeps every candidate.
func WithVocabulary(names ...string) LocalOption {
	return func(x *LocalExtractor) {
		if len(names) == 0 {
			x.vocabulary = nil
			return
		}
		x.vocabulary = make(map[string]bool, len(names))
		for _, n := range names {
			if n = strings.ToLower(strings.TrimSpace(n)); n != "" {
				x.vocabulary[n] = true
			}
		}
	}
}

// NewLocalExtractor returns an extractor using DefaultRecognizer and no
// medicine allowlist unless overridden.
func NewLocalExtractor(opts ...LocalOption) *LocalExtractor {
	x := &LocalExtractor{recognizer: DefaultRecognizer()}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Extract structures text. The only failure is ErrInvalidInput for blank
// input; absent matches produce empty fields.
func (x *LocalExtractor) Extract(text string) (*StructuredPrescription, error) {
	cleaned, err := Normalize(text)
	if err != nil {
		return nil, err
	}

	candidate := Candidate{
		"diagnosis": x.diagnosis(cleaned),
		"symptoms":  symptoms(cleaned),
		"medicines": x.medicines(cleaned),
	}
	return NormalizeResult(candidate, cleaned), nil
}

func (x *LocalExtractor) diagnosis(text string) string {
	for _, p := range diagnosisPatterns {
		if m := p.FindStringSubmatch(text); m != nil {
			if d := strings.TrimSpace(m[1]); d != "" {
				return d
			}
			// A matched but empty capture still ends the pattern search.
			break
		}
	}

	for _, ent := range x.recognizer.Entities(text) {
		if diagnosisLabels[ent.Label] {
			return ent.Text
		}
	}
	return ""
}

func symptoms(text string) []string {
	out := []string{}
	for _, sent := range splitSentences(text) {
		lower := strings.ToLower(sent)
		for _, term := range SymptomTerms {
			if strings.Contains(lower, term) {
				out = append(out, sent)
				break
			}
		}
	}
	return out
}

func (x *LocalExtractor) medicines(text string) []Medicine {
	out := []Medicine{}
	for _, g := range medicinePattern.FindAllStringSubmatch(text, -1) {
		name := g[1]
		if name == "" {
			continue
		}
		if x.vocabulary != nil && !x.vocabulary[strings.ToLower(name)] {
			continue
		}
		out = append(out, Medicine{
			Name:     name,
			Dose:     g[2],
			Form:     g[3],
			Freq:     g[4],
			Duration: g[5],
		})
	}
	return out
}

// splitSentences breaks text after runs of '.', '!' or '?' that are followed
// by whitespace or the end of text, and at line breaks. Sentences are trimmed
// and empty ones dropped.
func splitSentences(text string) []string {
	var out []string
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}

	start := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '\n':
			add(text[start:i])
			start = i + 1
		case '.', '!', '?':
			j := i + 1
			for j < len(text) && isTerminator(text[j]) {
				j++
			}
			if j == len(text) || isSpace(text[j]) {
				add(text[start:j])
				start = j
			}
			i = j - 1
		}
	}
	add(text[start:])
	return out
}

func isTerminator(b byte) bool { return b == '.' || b == '!' || b == '?' }

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\f' || b == '\v'
}
