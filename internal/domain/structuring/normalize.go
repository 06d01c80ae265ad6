package structuring

import "strings"

// Normalize trims surrounding whitespace from dictated text. It returns
// ErrInvalidInput when nothing is left; callers must not run an extractor in
// that case.
func Normalize(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return "", ErrInvalidInput
	}
	return text, nil
}
