// Package llm extracts structured payloads from raw model output.
//
// Models are instructed to return a single JSON object and nothing else,
// but in practice wrap it in markdown fences or prose, truncate it, or emit
// almost-JSON. Extraction peels the wrapper; repair handles the almost.
package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

var fenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// ExtractJSON returns the first JSON object embedded in raw text, tolerating
// a fenced code block wrapper or leading/trailing prose.
func ExtractJSON(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}") {
		return trimmed, nil
	}
	if m := fenceRe.FindStringSubmatch(raw); len(m) > 1 {
		return m[1], nil
	}
	if obj := scanBalancedObject(raw); obj != "" {
		return obj, nil
	}
	return "", fmt.Errorf("no JSON object found in response")
}

// scanBalancedObject finds the first balanced top-level {...} in the text,
// tracking brace depth and skipping braces inside JSON strings.
func scanBalancedObject(raw string) string {
	depth := 0
	start := -1
	inString := false
	escaped := false
	for i := 0; i < len(raw); i++ {
		ch := raw[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 {
					return raw[start : i+1]
				}
			}
		}
	}
	return ""
}

// ParseInto extracts the JSON object from raw model output and unmarshals
// it into v, falling back to jsonrepair when the extracted object is not
// valid JSON.
func ParseInto(raw string, v any) error {
	obj, err := ExtractJSON(raw)
	if err != nil {
		return err
	}
	if json.Unmarshal([]byte(obj), v) == nil {
		return nil
	}
	repaired, err := jsonrepair.JSONRepair(obj)
	if err != nil {
		return fmt.Errorf("response is not valid JSON and could not be repaired: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), v); err != nil {
		return fmt.Errorf("repaired response still not valid JSON: %w", err)
	}
	return nil
}

// Excerpt truncates raw text for inclusion in conversation error messages.
func Excerpt(raw string, max int) string {
	raw = strings.TrimSpace(raw)
	if len(raw) <= max {
		return raw
	}
	return raw[:max] + "..."
}
