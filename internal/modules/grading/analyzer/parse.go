package analyzer

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrMalformed is returned when a model reply cannot be read as the
// expected JSON document.
var ErrMalformed = errors.New("invalid JSON response from AI")

var (
	fencePattern = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*\\n?(.*?)```")
	validate     = validator.New(validator.WithRequiredStructEnabled())
)

// ExtractJSON returns the JSON object inside raw: the first fenced block
// when there is one, else the text between the first '{' and the last '}'.
func ExtractJSON(raw string) (string, bool) {
	cleaned := strings.TrimSpace(raw)
	if m := fencePattern.FindStringSubmatch(cleaned); m != nil {
		cleaned = strings.TrimSpace(m[1])
	}
	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return cleaned[start : end+1], true
}

// Decode parses a model reply into T and runs its validate tags.
func Decode[T any](raw string) (*T, error) {
	body, ok := ExtractJSON(raw)
	if !ok {
		return nil, ErrMalformed
	}
	var out T
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := validate.Struct(&out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &out, nil
}
