package planner

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrNoJSON is returned when model output holds no JSON object
var ErrNoJSON = errors.New("no JSON object found in model output")

// ExtractJSON pulls the outermost JSON object out of model output. It
// tolerates surrounding prose, markdown fences and template-style doubled
// braces. Doubled braces are collapsed only when the object is not valid
// JSON as written, so nested objects survive.
func ExtractJSON(text string) (string, error) {
	candidate, ok := outermostObject(text)
	if !ok {
		return "", ErrNoJSON
	}
	if json.Valid([]byte(candidate)) {
		return candidate, nil
	}

	collapsed := strings.ReplaceAll(text, "{{", "{")
	collapsed = strings.ReplaceAll(collapsed, "}}", "}")
	if c, ok := outermostObject(collapsed); ok && json.Valid([]byte(c)) {
		return c, nil
	}
	return candidate, nil
}

func outermostObject(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}
