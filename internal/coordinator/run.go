// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package coordinator

import (
	"time"

	"github.com/google/uuid"

	"github.com/pdiddy/deep-research/pkg/types"
)

// State is the position of a run in the pipeline.
type State int

const (
	StateInit State = iota
	StatePlanReady
	StateTaskRunning
	StateSynthesizing
	StateDone
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StatePlanReady:
		return "plan_ready"
	case StateTaskRunning:
		return "task_running"
	case StateSynthesizing:
		return "synthesizing"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Run is the in-memory state of one research run. After an abort it keeps
// every result completed so far, whether or not it reached memory.
type Run struct {
	ID      uuid.UUID
	Session string
	Query   string
	Started time.Time

	State State
	// CurrentTask is the 1-based index of the running task, 0 otherwise.
	CurrentTask int

	Plan    types.ResearchPlan
	Results []types.TaskResult
	Report  string
	Timing  string

	// Err is the error that aborted the run, if any.
	Err error
}

// Record returns the run as a ResearchRecord.
func (r *Run) Record() types.ResearchRecord {
	return types.ResearchRecord{
		Query:   r.Query,
		Plan:    r.Plan,
		Results: r.Results,
		Report:  r.Report,
		Timing:  r.Timing,
	}
}
