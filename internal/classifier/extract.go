package classifier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON returns the outermost JSON object or array inside a model answer.
// Code fences and surrounding prose are ignored. The span runs from the first
// opening bracket to the last matching closing bracket of the same kind.
func ExtractJSON(resp string) (string, error) {
	resp = strings.TrimSpace(resp)
	resp = strings.ReplaceAll(resp, "```json", "")
	resp = strings.ReplaceAll(resp, "```", "")

	start := strings.IndexAny(resp, "[{")
	if start == -1 {
		return "", fmt.Errorf("%w: no JSON found", ErrInvalidResponse)
	}
	closer := "}"
	if resp[start] == '[' {
		closer = "]"
	}
	end := strings.LastIndex(resp, closer)
	if end < start {
		return "", fmt.Errorf("%w: unterminated JSON", ErrInvalidResponse)
	}
	return resp[start : end+1], nil
}

// decodeStrict decodes exactly one JSON value into v, rejecting unknown fields and trailing data
func decodeStrict(raw string, v any) error {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after JSON", ErrInvalidResponse)
	}
	return nil
}

// text accepts a JSON string or number, so "year": 2023 decodes like "year": "2023"
type text string

func (t *text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*t = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = text(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	*t = text(n.String())
	return nil
}
