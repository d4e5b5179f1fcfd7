package models

import (
	"time"
)

// JobState is the lifecycle state of a job.
type JobState string

const (
	JobPending   JobState = "PENDING"
	JobRunning   JobState = "RUNNING"
	JobSucceeded JobState = "SUCCEEDED"
	JobFailed    JobState = "FAILED"
	JobCanceled  JobState = "CANCELED"
)

// IsTerminal returns true for SUCCEEDED, FAILED and CANCELED.
func (s JobState) IsTerminal() bool {
	return s == JobSucceeded || s == JobFailed || s == JobCanceled
}

// TerminalStates is the full terminal set, in declaration order.
var TerminalStates = []JobState{JobSucceeded, JobFailed, JobCanceled}

// legalTransitions is the static transition table consulted by the store's
// compare-and-set primitive. admit is scheduler-only; cancel is legal from
// PENDING only; retry re-enters PENDING from any terminal state.
var legalTransitions = map[JobState][]JobState{
	JobPending:   {JobRunning, JobCanceled},
	JobRunning:   {JobSucceeded, JobFailed},
	JobSucceeded: {JobPending},
	JobFailed:    {JobPending},
	JobCanceled:  {JobPending},
}

// CanTransition reports whether the (from, to) edge exists in the
// transition table.
func CanTransition(from, to JobState) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// JobType tags the per-tile inference applied to a job's input.
type JobType string

const (
	JobTypeSegmentCells JobType = "SEGMENT_CELLS"
	JobTypeTissueMask   JobType = "TISSUE_MASK"
)

// ValidJobType reports whether t is in the closed job-type set.
func ValidJobType(t JobType) bool {
	return t == JobTypeSegmentCells || t == JobTypeTissueMask
}

// BranchKey identifies the unit of serial execution. Branches of different
// workflows are independent even when they share a label; the empty label is
// a legal, distinct branch.
type BranchKey struct {
	WorkflowID string
	Branch     string
}

// Job is a single tile-inference run over one input file.
type Job struct {
	ID         string  `json:"job_id"`
	WorkflowID string  `json:"workflow_id"`
	TenantID   string  `json:"tenant_id"` // copied from the workflow, immutable
	FileID     string  `json:"file_id"`
	Type       JobType `json:"job_type"`
	Branch     string  `json:"branch"`

	State      JobState `json:"state"`
	Progress   float64  `json:"progress"` // [0,1], monotonic within a RUNNING episode
	TilesDone  int      `json:"tiles_done"`
	TilesTotal int      `json:"tiles_total"`
	Error      string   `json:"error,omitempty"`

	CreatedAt  time.Time              `json:"created_at"`
	StateTimes map[JobState]time.Time `json:"state_times"` // entry time per state, latest entry wins

	Manifest *Manifest `json:"manifest,omitempty"` // populated on SUCCEEDED
}

// BranchKey returns the job's serialization key.
func (j *Job) BranchKey() BranchKey {
	return BranchKey{WorkflowID: j.WorkflowID, Branch: j.Branch}
}

// Clone returns a deep copy suitable for handing outside the store lock.
func (j *Job) Clone() Job {
	out := *j
	out.StateTimes = make(map[JobState]time.Time, len(j.StateTimes))
	for k, v := range j.StateTimes {
		out.StateTimes[k] = v
	}
	if j.Manifest != nil {
		m := j.Manifest.Clone()
		out.Manifest = &m
	}
	return out
}
