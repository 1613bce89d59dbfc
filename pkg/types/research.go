// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the deep-research pipeline.
// The records here are what the planner, retriever, analyzer, and report
// synthesizer exchange, and what session memory stores per (session, query).
package types

import (
	"bytes"
	"encoding/json"
	"slices"
	"strconv"
)

// ResearchPlan decomposes a query into ordered sub-tasks plus the context
// shared by every task. Task order is execution order and report order.
type ResearchPlan struct {
	// QueryAnalysis identifies the key themes and areas to explore.
	QueryAnalysis string `json:"query_analysis" yaml:"query_analysis"`

	// Context is background information passed to every retrieval and analysis call.
	Context string `json:"context" yaml:"context"`

	// Tasks lists the sub-tasks in execution order.
	Tasks []string `json:"tasks" yaml:"tasks"`

	// Approach describes the overall methodology.
	Approach string `json:"approach" yaml:"approach"`
}

// FlexString is a string that also accepts JSON numbers and booleans.
// Models routinely emit "year": 2021 where a string was requested.
type FlexString string

// UnmarshalJSON accepts a JSON string, number, boolean, or null.
func (s *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = FlexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*s = FlexString(n.String())
		return nil
	}
	var b bool
	if err := json.Unmarshal(data, &b); err != nil {
		return err
	}
	*s = FlexString(strconv.FormatBool(b))
	return nil
}

// Source is one evidence record with bibliographic metadata. Sources are
// produced by a generative model, not crawled.
type Source struct {
	Title       string     `json:"title" yaml:"title"`
	Author      string     `json:"author" yaml:"author"`
	Publication string     `json:"publication" yaml:"publication"`
	Year        FlexString `json:"year" yaml:"year"`
	Content     string     `json:"content" yaml:"content"`
	URL         string     `json:"url" yaml:"url"`

	// RelevanceScore is set by the ranker and absent before ranking.
	RelevanceScore *float64 `json:"relevance_score,omitempty" yaml:"relevance_score,omitempty"`
}

// RetrievalResult is the evidence gathered for one sub-task.
type RetrievalResult struct {
	SearchQueries         []string `json:"search_queries" yaml:"search_queries"`
	Sources               []Source `json:"sources" yaml:"sources"`
	KeyPoints             []string `json:"key_points" yaml:"key_points"`
	AdditionalSearchAreas []string `json:"additional_search_areas" yaml:"additional_search_areas"`
}

// Confidence grades an insight.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// KeyInsight is one finding with its confidence and supporting evidence.
type KeyInsight struct {
	Insight            string     `json:"insight" yaml:"insight"`
	Confidence         Confidence `json:"confidence" yaml:"confidence"`
	SupportingEvidence string     `json:"supporting_evidence" yaml:"supporting_evidence"`
}

// Theme is a recurring pattern across sources.
type Theme struct {
	Theme       string `json:"theme" yaml:"theme"`
	Description string `json:"description" yaml:"description"`
}

// Contradiction records two sources that disagree.
type Contradiction struct {
	Description  string `json:"description" yaml:"description"`
	Perspective1 string `json:"perspective1" yaml:"perspective1"`
	Perspective2 string `json:"perspective2" yaml:"perspective2"`
}

// QualityAssessment grades the evidence behind an analysis.
type QualityAssessment struct {
	OverallQuality      string   `json:"overall_quality" yaml:"overall_quality"`
	Explanation         string   `json:"explanation" yaml:"explanation"`
	MostCredibleSources []string `json:"most_credible_sources" yaml:"most_credible_sources"`
	QuestionableSources []string `json:"questionable_sources" yaml:"questionable_sources"`
}

// Analysis is the structured assessment of one sub-task's evidence.
type Analysis struct {
	Summary           string            `json:"summary" yaml:"summary"`
	KeyInsights       []KeyInsight      `json:"key_insights" yaml:"key_insights"`
	Themes            []Theme           `json:"themes" yaml:"themes"`
	Contradictions    []Contradiction   `json:"contradictions" yaml:"contradictions"`
	InformationGaps   []string          `json:"information_gaps" yaml:"information_gaps"`
	QualityAssessment QualityAssessment `json:"quality_assessment" yaml:"quality_assessment"`
}

// TaskResult pairs exactly one task with its retrieval and analysis output.
type TaskResult struct {
	Task             string          `json:"task" yaml:"task"`
	RetrievalResults RetrievalResult `json:"retrieval_results" yaml:"retrieval_results"`
	Analysis         Analysis        `json:"analysis" yaml:"analysis"`
}

// ResearchRecord is the durable unit stored per (session, query).
type ResearchRecord struct {
	Query   string       `json:"query" yaml:"query"`
	Plan    ResearchPlan `json:"plan" yaml:"plan"`
	Results []TaskResult `json:"results" yaml:"results"`
	Report  string       `json:"report" yaml:"report"`
	Timing  string       `json:"timing" yaml:"timing"`
}

// Clone returns a deep copy of r that shares no slices or pointers with it.
func (r ResearchRecord) Clone() ResearchRecord {
	r.Plan.Tasks = slices.Clone(r.Plan.Tasks)
	if r.Results != nil {
		results := make([]TaskResult, len(r.Results))
		for i, res := range r.Results {
			results[i] = res.Clone()
		}
		r.Results = results
	}
	return r
}

// Clone returns a deep copy of t.
func (t TaskResult) Clone() TaskResult {
	rr := &t.RetrievalResults
	rr.SearchQueries = slices.Clone(rr.SearchQueries)
	rr.KeyPoints = slices.Clone(rr.KeyPoints)
	rr.AdditionalSearchAreas = slices.Clone(rr.AdditionalSearchAreas)
	if rr.Sources != nil {
		sources := make([]Source, len(rr.Sources))
		for i, src := range rr.Sources {
			if src.RelevanceScore != nil {
				score := *src.RelevanceScore
				src.RelevanceScore = &score
			}
			sources[i] = src
		}
		rr.Sources = sources
	}

	a := &t.Analysis
	a.KeyInsights = slices.Clone(a.KeyInsights)
	a.Themes = slices.Clone(a.Themes)
	a.Contradictions = slices.Clone(a.Contradictions)
	a.InformationGaps = slices.Clone(a.InformationGaps)
	a.QualityAssessment.MostCredibleSources = slices.Clone(a.QualityAssessment.MostCredibleSources)
	a.QualityAssessment.QuestionableSources = slices.Clone(a.QualityAssessment.QuestionableSources)
	return t
}

// CompletedTasks returns the set of task texts that have a result in r.
func (r *ResearchRecord) CompletedTasks() map[string]bool {
	done := make(map[string]bool, len(r.Results))
	for _, res := range r.Results {
		done[res.Task] = true
	}
	return done
}

// AllSources returns every source across the record's results, in task order.
func (r *ResearchRecord) AllSources() []Source {
	return CollectSources(r.Results)
}

// CollectSources concatenates the sources of every result, in result order.
// Duplicates are kept.
func CollectSources(results []TaskResult) []Source {
	var all []Source
	for _, res := range results {
		all = append(all, res.RetrievalResults.Sources...)
	}
	return all
}
