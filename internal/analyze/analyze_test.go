// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package analyze

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

func sampleRetrieval() types.RetrievalResult {
	return types.RetrievalResult{
		Sources: []types.Source{
			{Title: "Housing Trends", Author: "Lee", Publication: "Urban Review", Year: "2023", Content: "Prices rose.", URL: "https://u/1"},
			{Content: "Bare source."},
		},
		KeyPoints: []string{"prices up", "suburbs grew"},
	}
}

func TestAnalyze_ParsesModelOutput(t *testing.T) {
	out := "Analysis follows.\n" + `{
  "summary": "Remote work raised suburban prices.",
  "key_insights": [{"insight": "Suburbs gained", "confidence": "high", "supporting_evidence": "S1"}],
  "themes": [{"theme": "Migration", "description": "Out of cities"}],
  "contradictions": [{"description": "d", "perspective1": "p1", "perspective2": "p2"}],
  "information_gaps": ["rural data"],
  "quality_assessment": {"overall_quality": "high", "explanation": "e", "most_credible_sources": ["Housing Trends"], "questionable_sources": []}
}`
	fake := &llmtest.Fake{Responses: []string{out}}

	got, err := New(fake, nil).Analyze(context.Background(), "price effects", sampleRetrieval(), "ctx")
	require.NoError(t, err)

	assert.Equal(t, "Remote work raised suburban prices.", got.Summary)
	require.Len(t, got.KeyInsights, 1)
	assert.Equal(t, types.ConfidenceHigh, got.KeyInsights[0].Confidence)
	assert.Equal(t, "Migration", got.Themes[0].Theme)
	assert.Equal(t, "p2", got.Contradictions[0].Perspective2)
	assert.Equal(t, []string{"rural data"}, got.InformationGaps)
	assert.Equal(t, []string{"Housing Trends"}, got.QualityAssessment.MostCredibleSources)
}

func TestAnalyze_PromptSerializesSources(t *testing.T) {
	fake := &llmtest.Fake{Responses: []string{"{}"}}

	_, err := New(fake, nil).Analyze(context.Background(), "price effects", sampleRetrieval(), "shared ctx")
	require.NoError(t, err)

	msg := fake.Calls()[0].UserMessage
	assert.Equal(t, systemPrompt, fake.Calls()[0].SystemPrompt)
	for _, want := range []string{
		"Research Task: price effects",
		"Context: shared ctx",
		"SOURCE 1:\nTitle: Housing Trends\nAuthor: Lee\nPublication: Urban Review\nYear: 2023\nContent: Prices rose.\nURL: https://u/1\n",
		"SOURCE 2:\nTitle: Untitled\nAuthor: Unknown\nPublication: N/A\nYear: N/A\nContent: Bare source.\nURL: No URL available\n",
		"KEY POINTS:\n- prices up\n- suburbs grew\n",
	} {
		assert.Contains(t, msg, want)
	}
}

func TestAnalyze_FallbackOnUnparseableOutput(t *testing.T) {
	fake := &llmtest.Fake{Responses: []string{"no json at all"}}

	got, err := New(fake, nil).Analyze(context.Background(), "zoning", types.RetrievalResult{}, "")
	require.NoError(t, err)

	assert.Equal(t, Fallback("zoning"), got)
	assert.Equal(t, "Analysis of information related to zoning.", got.Summary)
	require.Len(t, got.KeyInsights, 1)
	assert.Equal(t, types.ConfidenceMedium, got.KeyInsights[0].Confidence)
	assert.Equal(t, "General information", got.Themes[0].Theme)
	assert.Empty(t, got.Contradictions)
	assert.Equal(t, []string{"More specific details needed"}, got.InformationGaps)
	assert.Equal(t, "medium", got.QualityAssessment.OverallQuality)
}

func TestAnalyze_FatalModelErrorPropagates(t *testing.T) {
	fatal := &llm.ModelError{Kind: llm.KindFatal, Model: "m", Err: errors.New("down")}
	_, err := New(&llmtest.Fake{Err: fatal}, nil).Analyze(context.Background(), "t", types.RetrievalResult{}, "")
	assert.True(t, llm.IsFatal(err))
}
