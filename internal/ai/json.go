package ai

import (
	"encoding/json"
	"log"
	"strings"
)

// ParseJSONResponse parses a JSON object from a model response, handling
// markdown code fences. Returns nil if the text is empty or not valid JSON.
func ParseJSONResponse(text string) map[string]any {
	text = stripFences(text)
	if text == "" {
		return nil
	}

	var result map[string]any
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		log.Printf("Failed to parse model response as JSON: %v", err)
		return nil
	}

	return result
}

// ParseJSONArray parses a JSON array from a model response, handling markdown
// code fences. Returns nil if the text is empty or not a valid JSON array.
func ParseJSONArray(text string) []any {
	text = stripFences(text)
	if text == "" {
		return nil
	}

	var result []any
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		log.Printf("Failed to parse model response as JSON array: %v", err)
		return nil
	}

	return result
}

// StringField reads a string value from a parsed response, returning the
// fallback when the key is absent or not a string.
func StringField(obj map[string]any, key, fallback string) string {
	if v, ok := obj[key].(string); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	lines := strings.Split(text, "\n")
	endIdx := len(lines) - 1
	for i := len(lines) - 1; i > 0; i-- {
		if strings.TrimSpace(lines[i]) == "```" {
			endIdx = i
			break
		}
	}
	return strings.TrimSpace(strings.Join(lines[1:endIdx], "\n"))
}
