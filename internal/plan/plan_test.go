// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package plan

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/deep-research/internal/llm"
	"github.com/pdiddy/deep-research/internal/llm/llmtest"
	"github.com/pdiddy/deep-research/pkg/types"
)

func TestPlan_ParsesModelOutput(t *testing.T) {
	fake := &llmtest.Fake{Responses: []string{`Here is your plan:
{
  "query_analysis": "qa",
  "context": "ctx",
  "tasks": ["t1", "t2", "t3"],
  "approach": "ap"
}
Good luck!`}}

	got, err := New(fake, nil).Plan(context.Background(), "solar storage", nil)
	require.NoError(t, err)

	assert.Equal(t, types.ResearchPlan{QueryAnalysis: "qa", Context: "ctx", Tasks: []string{"t1", "t2", "t3"}, Approach: "ap"}, got)

	calls := fake.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, systemPrompt, calls[0].SystemPrompt)
	assert.Equal(t, "Research Query: solar storage", calls[0].UserMessage)
}

func TestPlan_MissingFieldsAreEmpty(t *testing.T) {
	fake := &llmtest.Fake{Responses: []string{`{"tasks": ["only"]}`}}

	got, err := New(fake, nil).Plan(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"only"}, got.Tasks)
	assert.Empty(t, got.QueryAnalysis)
	assert.Empty(t, got.Context)
	assert.Empty(t, got.Approach)

	fake = &llmtest.Fake{Responses: []string{`{"query_analysis": "x"}`}}
	got, err = New(fake, nil).Plan(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.NotNil(t, got.Tasks)
	assert.Empty(t, got.Tasks)
}

func TestPlan_FallbackOnUnparseableOutput(t *testing.T) {
	outputs := []string{
		"I cannot produce JSON today.",
		`{"tasks": [unterminated`,
		`{"tasks": "not a list"}`,
		"",
	}
	for _, out := range outputs {
		t.Run(out, func(t *testing.T) {
			fake := &llmtest.Fake{Responses: []string{out}}
			got, err := New(fake, nil).Plan(context.Background(), "remote work", nil)
			require.NoError(t, err)

			require.Len(t, got.Tasks, 4)
			assert.Equal(t, Fallback("remote work"), got)
			assert.Equal(t, "Analysis of: remote work", got.QueryAnalysis)
			assert.Equal(t, "Research basic information about remote work", got.Tasks[0])
			assert.Equal(t, "Summarize findings about remote work", got.Tasks[3])
			assert.NotEmpty(t, got.Context)
			assert.NotEmpty(t, got.Approach)
		})
	}
}

func TestPlan_FatalModelErrorPropagates(t *testing.T) {
	fatal := &llm.ModelError{Kind: llm.KindFatal, Model: "m", Attempts: 3, Err: errors.New("429")}
	_, err := New(&llmtest.Fake{Err: fatal}, nil).Plan(context.Background(), "q", nil)
	require.Error(t, err)
	assert.True(t, llm.IsFatal(err))
}

func TestPlan_PriorCompletedTasksSteerPrompt(t *testing.T) {
	prior := &types.ResearchRecord{
		Query: "q",
		Plan:  types.ResearchPlan{Tasks: []string{"a", "b", "c"}},
		Results: []types.TaskResult{
			{Task: "c"},
			{Task: "a"},
			{Task: "not in plan"},
		},
	}
	fake := &llmtest.Fake{Responses: []string{`{"tasks":["d"]}`}}

	_, err := New(fake, nil).Plan(context.Background(), "q", prior)
	require.NoError(t, err)

	want := "Research Query: q\n\n" +
		"The following tasks have already been completed:\n- a\n- c\n\n" +
		"Please focus on new aspects or deeper analysis to complement the existing research."
	assert.Equal(t, want, fake.Calls()[0].UserMessage)
}

func TestPlan_PriorWithoutResultsLeavesPromptPlain(t *testing.T) {
	prior := &types.ResearchRecord{Plan: types.ResearchPlan{Tasks: []string{"a"}}}
	fake := &llmtest.Fake{Responses: []string{`{}`}}

	_, err := New(fake, nil).Plan(context.Background(), "q", prior)
	require.NoError(t, err)
	assert.Equal(t, "Research Query: q", fake.Calls()[0].UserMessage)
}

func TestCompletedTasks(t *testing.T) {
	assert.Nil(t, CompletedTasks(nil))

	prior := &types.ResearchRecord{
		Plan:    types.ResearchPlan{Tasks: []string{"x", "y"}},
		Results: []types.TaskResult{{Task: "y"}},
	}
	assert.Equal(t, []string{"y"}, CompletedTasks(prior))
}
