package workflow

import (
	"bytes"
	"context"
	"encoding/json"
)

// ContentValidator checks the data payload of a phase before it may be
// submitted for approval. It returns the list of problems found; an empty
// list means the content is acceptable.
type ContentValidator interface {
	ValidatePhaseContent(ctx context.Context, phaseNumber int, data []byte) ([]string, error)
}

// HasContent reports whether data carries anything beyond an empty JSON value.
func HasContent(data []byte) bool {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return false
	}

	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return false
	}
	switch t := v.(type) {
	case nil:
		return false
	case map[string]any:
		return len(t) > 0
	case []any:
		return len(t) > 0
	case string:
		return t != ""
	}
	return true
}

// validDocument reports whether data is a JSON object or array.
func validDocument(data []byte) bool {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || (data[0] != '{' && data[0] != '[') {
		return false
	}
	return json.Valid(data)
}
