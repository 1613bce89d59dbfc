// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package llmtest provides an in-memory llm.Generator for stage tests.
package llmtest

import (
	"context"
	"sync"

	"github.com/pdiddy/deep-research/internal/llm"
)

// Call records one Generate invocation.
type Call struct {
	SystemPrompt string
	UserMessage  string
}

// Fake returns scripted responses in order. Once the script runs out it
// repeats the last response. A non-nil Err is returned from every call.
type Fake struct {
	Responses []string
	Err       error

	// Respond, when set, computes the response instead of the script.
	Respond func(systemPrompt, userMessage string) (string, error)

	mu    sync.Mutex
	calls []Call
}

// Generate implements llm.Generator.
func (f *Fake) Generate(_ context.Context, systemPrompt, userMessage string, _ ...llm.CallOption) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, Call{SystemPrompt: systemPrompt, UserMessage: userMessage})
	n := len(f.calls)
	f.mu.Unlock()

	if f.Err != nil {
		return "", f.Err
	}
	if f.Respond != nil {
		return f.Respond(systemPrompt, userMessage)
	}
	if len(f.Responses) == 0 {
		return "", nil
	}
	return f.Responses[min(n, len(f.Responses))-1], nil
}

// Calls returns a copy of the recorded calls.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}
