package ai

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrNoJSON is returned when a response contains nothing that parses as JSON.
var ErrNoJSON = errors.New("no JSON found in model response")

// StripCodeFences removes a surrounding ```lang ... ``` block if present.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "```") {
		if nl := strings.Index(s, "\n"); nl != -1 {
			s = s[nl+1:]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
	}
	if strings.HasSuffix(s, "```") {
		s = strings.TrimSuffix(s, "```")
	}
	return strings.TrimSpace(s)
}

// findFirstJSON returns the first balanced {...} object in s, ignoring braces
// inside string literals.
func findFirstJSON(s string) string {
	start, depth := -1, 0
	inString, escaped := false, false
	for i, r := range s {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}
		switch r {
		case '"':
			if start != -1 {
				inString = true
			}
		case '{':
			if start == -1 {
				start = i
			}
			depth++
		case '}':
			if start != -1 {
				depth--
				if depth == 0 {
					return s[start : i+1]
				}
			}
		}
	}
	return ""
}

// ParseJSON recovers a JSON document from model output: verbatim, then with
// code fences stripped, then the first embedded object.
func ParseJSON(text string) (json.RawMessage, error) {
	candidates := []string{strings.TrimSpace(text), StripCodeFences(text), findFirstJSON(text)}
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if json.Valid([]byte(c)) {
			return json.RawMessage(c), nil
		}
	}
	return nil, ErrNoJSON
}

// ValidateJSON checks doc against a JSON Schema. An empty schema accepts anything.
func ValidateJSON(schemaRaw, doc json.RawMessage) error {
	if len(schemaRaw) == 0 {
		return nil
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(schemaRaw)); err != nil {
		return fmt.Errorf("failed to load schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("failed to compile schema: %w", err)
	}

	var v any
	if err := json.Unmarshal(doc, &v); err != nil {
		return fmt.Errorf("failed to decode JSON for validation: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("response does not match schema: %w", err)
	}
	return nil
}

// decodeStructured is the shared tail of every JSON request: recover, then validate.
func decodeStructured(text string, schema json.RawMessage) (json.RawMessage, error) {
	raw, err := ParseJSON(text)
	if err != nil {
		return nil, err
	}
	if err := ValidateJSON(schema, raw); err != nil {
		return nil, err
	}
	return raw, nil
}
