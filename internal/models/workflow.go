package models

import (
	"time"
)

// WorkflowState is derived from the workflow's job set; it is never stored.
type WorkflowState string

const (
	WorkflowPending   WorkflowState = "PENDING"
	WorkflowRunning   WorkflowState = "RUNNING"
	WorkflowSucceeded WorkflowState = "SUCCEEDED"
	WorkflowFailed    WorkflowState = "FAILED"
)

// Workflow groups jobs under one tenant. The tenant never changes and the
// job list only grows, up to the configured cap.
type Workflow struct {
	ID        string    `json:"workflow_id"`
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	JobIDs    []string  `json:"job_ids"`
}

// Clone returns a copy safe to hand outside the store lock.
func (w *Workflow) Clone() Workflow {
	out := *w
	out.JobIDs = append([]string(nil), w.JobIDs...)
	return out
}

// WorkflowSnapshot is a workflow plus its derived aggregate, computed on
// demand from the current job set.
type WorkflowSnapshot struct {
	WorkflowID      string           `json:"workflow_id"`
	TenantID        string           `json:"tenant_id"`
	Name            string           `json:"name"`
	State           WorkflowState    `json:"state"`
	PercentComplete float64          `json:"percent_complete"`
	JobCounts       map[JobState]int `json:"job_counts"`
	CreatedAt       time.Time        `json:"created_at"`
}
