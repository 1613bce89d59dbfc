// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package structured pulls a JSON object out of free-form model output.
//
// Extraction is deliberately naive: it takes the span from the first '{' to
// the last '}' without balancing braces. Callers treat a decode failure as
// an expected outcome and substitute their own fallback value.
package structured

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoJSON is returned when text contains no '{' ... '}' span.
var ErrNoJSON = errors.New("no JSON object found in model output")

// ExtractJSON returns the substring from the first '{' to the last '}'
// inclusive. ok is false when either brace is missing or they are out of order.
func ExtractJSON(text string) (span string, ok bool) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start == -1 || end == -1 || start >= end {
		return "", false
	}
	return text[start : end+1], true
}

// Decode extracts the JSON object from text and unmarshals it into v.
func Decode(text string, v any) error {
	span, ok := ExtractJSON(text)
	if !ok {
		return ErrNoJSON
	}
	if err := json.Unmarshal([]byte(span), v); err != nil {
		return fmt.Errorf("decoding model JSON: %w", err)
	}
	return nil
}
