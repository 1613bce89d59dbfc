// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package coordinator drives one research run end to end: plan, then for
// each task retrieve and analyze, then synthesize the report and store it.
//
// Tasks run strictly one after another in plan order. Stage-level parse
// failures are absorbed by each stage's fallback; the only error that
// aborts a run is a fatal model error or a failing progress sink.
package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pdiddy/deep-research/internal/logging"
	"github.com/pdiddy/deep-research/internal/metrics"
	"github.com/pdiddy/deep-research/internal/progress"
	"github.com/pdiddy/deep-research/internal/report"
	"github.com/pdiddy/deep-research/pkg/types"
)

// Progress block and stream names.
const (
	BlockGreeting         = "GREETING"
	BlockMemoryFound      = "MEMORY_FOUND"
	BlockGeneratingReport = "GENERATING_REPORT"
	StreamResearchPlan    = "RESEARCH_PLAN"
	StreamFinalReport     = "FINAL_REPORT"
)

// TaskBlock names the block announcing task n (1-based).
func TaskBlock(n int) string { return fmt.Sprintf("TASK_%d", n) }

// TaskResultBlock names the block carrying task n's findings.
func TaskResultBlock(n int) string { return fmt.Sprintf("TASK_%d_RESULT", n) }

// DefaultChunkSize is the rune length of final report chunks.
const DefaultChunkSize = 100

// Planner produces the plan for a query.
type Planner interface {
	Plan(ctx context.Context, query string, prior *types.ResearchRecord) (types.ResearchPlan, error)
}

// Retriever gathers evidence for one task.
type Retriever interface {
	Retrieve(ctx context.Context, task, researchContext string) (types.RetrievalResult, error)
}

// Analyzer assesses one task's evidence.
type Analyzer interface {
	Analyze(ctx context.Context, task string, rr types.RetrievalResult, researchContext string) (types.Analysis, error)
}

// Synthesizer writes the final report.
type Synthesizer interface {
	Synthesize(ctx context.Context, query string, plan types.ResearchPlan, results []types.TaskResult) (string, error)
}

// Memory is the part of session memory a run reads and writes.
type Memory interface {
	Get(session, query string) (types.ResearchRecord, bool)
	Put(session, query string, rec types.ResearchRecord)
	PutTaskResult(session, query, task string, res types.TaskResult)
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) { c.logger = logging.OrNop(l) }
}

// WithClock sets the time source used for run timing.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithChunkSize sets the rune length of final report chunks.
func WithChunkSize(n int) Option {
	return func(c *Coordinator) { c.chunkSize = n }
}

// Coordinator runs the research pipeline.
type Coordinator struct {
	planner     Planner
	retriever   Retriever
	analyzer    Analyzer
	synthesizer Synthesizer
	memory      Memory

	logger    *zap.Logger
	now       func() time.Time
	chunkSize int
}

// New returns a Coordinator over the given stages and memory.
func New(p Planner, r Retriever, a Analyzer, s Synthesizer, m Memory, opts ...Option) *Coordinator {
	c := &Coordinator{
		planner:     p,
		retriever:   r,
		analyzer:    a,
		synthesizer: s,
		memory:      m,
		logger:      zap.NewNop(),
		now:         time.Now,
		chunkSize:   DefaultChunkSize,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Research runs the full pipeline for query within session and reports
// progress to sink. The returned Run is never nil: on error it holds
// whatever completed before the abort.
//
// Events are emitted in this order: the greeting block, the plan stream
// (opened once and narrated throughout), a memory-found block when prior
// research exists, a start block and a result block per task, the
// generating-report block, the plan stream close, the final report stream
// in chunks, and the completion signal.
func (c *Coordinator) Research(ctx context.Context, session, query string, sink progress.Sink) (*Run, error) {
	run := &Run{ID: uuid.New(), Session: session, Query: query, State: StateInit, Started: c.now()}
	log := c.logger.With(zap.String("run_id", run.ID.String()), zap.String("session", session))
	log.Info("research started", zap.String("query", query))

	planStream, err := c.execute(ctx, run, sink)
	if err != nil {
		run.Err = err
		if planStream != nil {
			_ = planStream.Close(ctx)
		}
		metrics.Runs.WithLabelValues("aborted").Inc()
		log.Error("research aborted",
			zap.Stringer("state", run.State),
			zap.Int("completed_tasks", len(run.Results)),
			zap.Error(err))
		return run, err
	}

	elapsed := c.now().Sub(run.Started)
	metrics.Runs.WithLabelValues("completed").Inc()
	metrics.RunDuration.Observe(elapsed.Seconds())
	log.Info("research completed",
		zap.Int("tasks", len(run.Results)),
		zap.String("elapsed", report.FormatElapsed(elapsed)))
	return run, nil
}

// execute performs the run. It returns the plan stream while it is open so
// the caller can close it on abort.
func (c *Coordinator) execute(ctx context.Context, run *Run, sink progress.Sink) (progress.Stream, error) {
	session, query := run.Session, run.Query

	if err := sink.Block(ctx, BlockGreeting, fmt.Sprintf("I'm your Deep Research Assistant. Starting comprehensive research on: '%s'", query)); err != nil {
		return nil, fmt.Errorf("emitting greeting: %w", err)
	}

	planStream, err := sink.OpenStream(ctx, StreamResearchPlan)
	if err != nil {
		return nil, fmt.Errorf("opening plan stream: %w", err)
	}
	narrate := func(text string) error {
		if err := planStream.Append(ctx, text); err != nil {
			return fmt.Errorf("writing plan stream: %w", err)
		}
		return nil
	}

	var prior *types.ResearchRecord
	if rec, ok := c.memory.Get(session, query); ok {
		prior = &rec
		if err := sink.Block(ctx, BlockMemoryFound, "Found existing research on this topic. Building upon previous findings."); err != nil {
			return planStream, fmt.Errorf("emitting memory notice: %w", err)
		}
		if err := narrate("Continuing previous research. Will supplement existing findings with new information.\n\n"); err != nil {
			return planStream, err
		}
	}

	if err := narrate("Analyzing query and developing a research plan...\n"); err != nil {
		return planStream, err
	}
	plan, err := c.planner.Plan(ctx, query, prior)
	if err != nil {
		return planStream, err
	}
	run.Plan = plan
	run.State = StatePlanReady
	if err := narrate(fmt.Sprintf("\nResearch Plan:\n%s\n\n", report.TaskList(plan.Tasks))); err != nil {
		return planStream, err
	}

	total := len(plan.Tasks)
	for i, task := range plan.Tasks {
		n := i + 1
		run.State = StateTaskRunning
		run.CurrentTask = n

		if err := sink.Block(ctx, TaskBlock(n), fmt.Sprintf("Working on Task %d/%d: %s", n, total, task)); err != nil {
			return planStream, fmt.Errorf("emitting task %d start: %w", n, err)
		}
		if err := narrate(fmt.Sprintf("Starting Task %d: %s...\n", n, task)); err != nil {
			return planStream, err
		}

		if err := narrate(fmt.Sprintf("Gathering information for task %d...\n", n)); err != nil {
			return planStream, err
		}
		rr, err := c.retriever.Retrieve(ctx, task, plan.Context)
		if err != nil {
			return planStream, err
		}

		if err := narrate(fmt.Sprintf("Analyzing information for task %d...\n", n)); err != nil {
			return planStream, err
		}
		analysis, err := c.analyzer.Analyze(ctx, task, rr, plan.Context)
		if err != nil {
			return planStream, err
		}

		result := types.TaskResult{Task: task, RetrievalResults: rr, Analysis: analysis}
		run.Results = append(run.Results, result)
		c.memory.PutTaskResult(session, query, task, result)
		metrics.TasksCompleted.Inc()

		summary := analysis.Summary
		if summary == "" {
			summary = "No summary available"
		}
		if err := sink.Block(ctx, TaskResultBlock(n), fmt.Sprintf("Task %d Findings: %s", n, summary)); err != nil {
			return planStream, fmt.Errorf("emitting task %d result: %w", n, err)
		}
		if err := narrate(fmt.Sprintf("✓ Completed Task %d\n\n", n)); err != nil {
			return planStream, err
		}
	}

	run.State = StateSynthesizing
	run.CurrentTask = 0
	if err := sink.Block(ctx, BlockGeneratingReport, "All research tasks completed. Generating comprehensive report..."); err != nil {
		return planStream, fmt.Errorf("emitting report notice: %w", err)
	}
	if err := narrate("Synthesizing findings into comprehensive report...\n"); err != nil {
		return planStream, err
	}

	text, err := c.synthesizer.Synthesize(ctx, query, plan, run.Results)
	if err != nil {
		return planStream, err
	}
	run.Report = text
	run.Timing = report.Timing(c.now().Sub(run.Started))
	c.memory.Put(session, query, run.Record())

	if err := planStream.Close(ctx); err != nil {
		return nil, fmt.Errorf("closing plan stream: %w", err)
	}

	reportStream, err := sink.OpenStream(ctx, StreamFinalReport)
	if err != nil {
		return nil, fmt.Errorf("opening report stream: %w", err)
	}
	for _, chunk := range progress.Chunk(run.Report, c.chunkSize) {
		if err := reportStream.Append(ctx, chunk); err != nil {
			return nil, fmt.Errorf("writing report stream: %w", err)
		}
	}
	if err := reportStream.Close(ctx); err != nil {
		return nil, fmt.Errorf("closing report stream: %w", err)
	}
	if err := sink.Complete(ctx); err != nil {
		return nil, fmt.Errorf("completing response: %w", err)
	}

	run.State = StateDone
	return nil, nil
}
