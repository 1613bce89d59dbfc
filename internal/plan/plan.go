// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package plan decomposes a research query into an ordered list of sub-tasks.
package plan

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

const systemPrompt = `You are an expert research planner. Your task is to analyze a research query and develop
a comprehensive research plan. Break down the query into specific research tasks that
can be executed independently. Each task should be focused on a specific aspect of
the research query.

The research plan should be thorough and systematic, covering all important aspects of the
query. Consider different perspectives, potential counterarguments, and relevant context.

Your output should be in JSON format with the following structure:
{
    "query_analysis": "A detailed analysis of the research query, identifying key themes and areas to explore",
    "context": "Important background information and context relevant to the query",
    "tasks": [
        "Task 1 description",
        "Task 2 description",
        ...
    ],
    "approach": "Overall approach to the research, including any specific methodologies or frameworks to use"
}

The tasks should be specific, actionable, and collectively cover all aspects needed to answer the query comprehensively.`

var userTmpl = template.Must(template.New("plan").Parse(`Research Query: {{.Query}}
{{- if .Completed}}

The following tasks have already been completed:
{{- range .Completed}}
- {{.}}
{{- end}}

Please focus on new aspects or deeper analysis to complement the existing research.
{{- end}}`))

// Planner turns a query into a ResearchPlan.
type Planner struct {
	model  llm.Generator
	logger *zap.Logger
}

// New returns a Planner that calls model.
func New(model llm.Generator, logger *zap.Logger) *Planner {
	return &Planner{model: model, logger: logging.OrNop(logger)}
}

// Plan asks the model for a plan for query. When prior is non-nil, tasks of
// its plan that already have results are listed so the model looks for new
// angles. Unparseable output yields Fallback(query); only a fatal model
// error is returned.
func (p *Planner) Plan(ctx context.Context, query string, prior *types.ResearchRecord) (types.ResearchPlan, error) {
	msg, err := userMessage(query, prior)
	if err != nil {
		return types.ResearchPlan{}, err
	}

	resp, err := p.model.Generate(ctx, systemPrompt, msg)
	if err != nil {
		return types.ResearchPlan{}, fmt.Errorf("planning: %w", err)
	}

	var plan types.ResearchPlan
	if err := structured.Decode(resp, &plan); err != nil {
		metrics.StructuredFallbacks.WithLabelValues(string(types.StagePlanning)).Inc()
		p.logger.Debug("plan output unparseable; using fallback plan", zap.Error(err))
		return Fallback(query), nil
	}
	if plan.Tasks == nil {
		plan.Tasks = []string{}
	}
	return plan, nil
}

// Fallback is the plan used when the model output cannot be parsed.
func Fallback(query string) types.ResearchPlan {
	return types.ResearchPlan{
		QueryAnalysis: "Analysis of: " + query,
		Context:       "General context for the query",
		Tasks: []string{
			"Research basic information about " + query,
			"Analyze key aspects of " + query,
			"Investigate different perspectives on " + query,
			"Summarize findings about " + query,
		},
		Approach: "Systematic research of available information",
	}
}

// CompletedTasks returns the tasks of prior's plan that have a result in
// prior, in plan order. Matching is exact text membership.
func CompletedTasks(prior *types.ResearchRecord) []string {
	if prior == nil {
		return nil
	}
	done := prior.CompletedTasks()
	var out []string
	for _, task := range prior.Plan.Tasks {
		if done[task] {
			out = append(out, task)
		}
	}
	return out
}

func userMessage(query string, prior *types.ResearchRecord) (string, error) {
	var buf bytes.Buffer
	data := struct {
		Query     string
		Completed []string
	}{query, CompletedTasks(prior)}
	if err := userTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering plan prompt: %w", err)
	}
	return buf.String(), nil
}
