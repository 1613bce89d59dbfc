// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package structured

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		want   string
		wantOK bool
	}{
		{"bare object", `{"a":1}`, `{"a":1}`, true},
		{"prose around", "Here is the plan:\n{\"a\":1}\nHope this helps.", `{"a":1}`, true},
		{"code fence", "```json\n{\"a\":{\"b\":2}}\n```", `{"a":{"b":2}}`, true},
		{"last brace wins", `{"a":1} and {"b":2}`, `{"a":1} and {"b":2}`, true},
		{"no braces", "no json here", "", false},
		{"only open", "{ unterminated", "", false},
		{"reversed", "} then {", "", false},
		{"empty", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractJSON(tt.text)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecode(t *testing.T) {
	var v struct {
		Tasks []string `json:"tasks"`
	}
	require.NoError(t, Decode("Sure!\n{\"tasks\":[\"x\",\"y\"]}\n", &v))
	assert.Equal(t, []string{"x", "y"}, v.Tasks)
}

func TestDecodeFailures(t *testing.T) {
	var v map[string]any

	assert.ErrorIs(t, Decode("nothing", &v), ErrNoJSON)

	err := Decode(`{"a":1} trailing {"b":2}`, &v)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoJSON)
}
