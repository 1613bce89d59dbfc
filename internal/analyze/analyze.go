// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package analyze turns one task's retrieved evidence into a structured
// assessment of insights, themes, contradictions, and source quality.
package analyze

import (
	"bytes"
	"context"
	"fmt"
	"text/template"

	"go.uber.org/zap"

	"github.com/pdiddy/deep-research/internal/llm"
	"github.com/pdiddy/deep-research/internal/logging"
	"github.com/pdiddy/deep-research/internal/metrics"
	"github.com/pdiddy/deep-research/internal/structured"
	"github.com/pdiddy/deep-research/pkg/types"
)

const systemPrompt = `You are an expert content analyst specializing in research synthesis. Your task is to analyze
information retrieved for a research task and extract key insights, patterns, and conclusions.

Analyze the information with:
1. Critical evaluation of source quality and relevance
2. Identification of key themes, patterns, and trends
3. Extraction of important facts, statistics, and quotes
4. Recognition of differing perspectives and potential biases
5. Assessment of information gaps or areas needing further research

Your output should be in JSON format with the following structure:
{
    "summary": "A concise summary of the key findings",
    "key_insights": [
        {"insight": "Description of insight", "confidence": "high/medium/low", "supporting_evidence": "Evidence that supports this insight"},
        ...
    ],
    "themes": [
        {"theme": "Theme name", "description": "Description of the theme"},
        ...
    ],
    "contradictions": [
        {"description": "Description of the contradiction", "perspective1": "First perspective", "perspective2": "Second perspective"},
        ...
    ],
    "information_gaps": ["Gap 1", "Gap 2", ...],
    "quality_assessment": {
        "overall_quality": "high/medium/low",
        "explanation": "Explanation of quality assessment",
        "most_credible_sources": ["Source 1", "Source 2", ...],
        "questionable_sources": ["Source 1", "Source 2", ...]
    }
}

Be thorough, critical, and nuanced in your analysis.`

var userTmpl = template.Must(template.New("analyze").
	Funcs(template.FuncMap{"inc": func(i int) int { return i + 1 }}).
	Parse(`Research Task: {{.Task}}

Context: {{.Context}}

Retrieved Information:
{{range $i, $s := .Sources}}
SOURCE {{inc $i}}:
Title: {{or $s.Title "Untitled"}}
Author: {{or $s.Author "Unknown"}}
Publication: {{or $s.Publication "N/A"}}
Year: {{or $s.Year "N/A"}}
Content: {{or $s.Content "No content available"}}
URL: {{or $s.URL "No URL available"}}
{{end}}
KEY POINTS:
{{- range .KeyPoints}}
- {{.}}
{{- end}}

Please analyze this information thoroughly to extract key insights, identify themes,
note contradictions, and assess the quality of the information.`))

// Analyzer produces an Analysis for a task.
type Analyzer struct {
	model  llm.Generator
	logger *zap.Logger
}

// New returns an Analyzer that calls model.
func New(model llm.Generator, logger *zap.Logger) *Analyzer {
	return &Analyzer{model: model, logger: logging.OrNop(logger)}
}

// Analyze serializes every source and key point of rr into the prompt and
// decodes the model's assessment. Unparseable output yields Fallback(task);
// only a fatal model error is returned.
func (a *Analyzer) Analyze(ctx context.Context, task string, rr types.RetrievalResult, researchContext string) (types.Analysis, error) {
	msg, err := userMessage(task, rr, researchContext)
	if err != nil {
		return types.Analysis{}, err
	}

	resp, err := a.model.Generate(ctx, systemPrompt, msg)
	if err != nil {
		return types.Analysis{}, fmt.Errorf("analyzing %q: %w", task, err)
	}

	var analysis types.Analysis
	if err := structured.Decode(resp, &analysis); err != nil {
		metrics.StructuredFallbacks.WithLabelValues(string(types.StageAnalysis)).Inc()
		a.logger.Debug("analysis output unparseable; using fallback analysis", zap.String("task", task), zap.Error(err))
		return Fallback(task), nil
	}
	return analysis, nil
}

// Fallback is the placeholder analysis used when the model output cannot be parsed.
func Fallback(task string) types.Analysis {
	return types.Analysis{
		Summary: fmt.Sprintf("Analysis of information related to %s.", task),
		KeyInsights: []types.KeyInsight{{
			Insight:            "The information provides a general overview of the topic.",
			Confidence:         types.ConfidenceMedium,
			SupportingEvidence: "Multiple sources cover the basic aspects of the topic.",
		}},
		Themes: []types.Theme{{
			Theme:       "General information",
			Description: "Basic background information about the topic.",
		}},
		Contradictions:  []types.Contradiction{},
		InformationGaps: []string{"More specific details needed"},
		QualityAssessment: types.QualityAssessment{
			OverallQuality:      "medium",
			Explanation:         "The information is generally relevant but could be more comprehensive.",
			MostCredibleSources: []string{},
			QuestionableSources: []string{},
		},
	}
}

func userMessage(task string, rr types.RetrievalResult, researchContext string) (string, error) {
	var buf bytes.Buffer
	data := struct {
		Task      string
		Context   string
		Sources   []types.Source
		KeyPoints []string
	}{task, researchContext, rr.Sources, rr.KeyPoints}
	if err := userTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering analysis prompt: %w", err)
	}
	return buf.String(), nil
}
