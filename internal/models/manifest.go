package models

import (
	"time"
)

// Artifact is one output file of a completed job, relative to the job's
// results directory.
type Artifact struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// Manifest lists a completed job's artifacts and metadata. It is written to
// disk only after every listed artifact has been fsynced; consumers observing
// SUCCEEDED may rely on its existence.
type Manifest struct {
	JobID       string     `json:"job_id"`
	WorkflowID  string     `json:"workflow_id"`
	TenantID    string     `json:"tenant_id"`
	JobType     JobType    `json:"job_type"`
	Branch      string     `json:"branch"`
	TileSize    int        `json:"tile_size"`
	TileOverlap int        `json:"tile_overlap"`
	TilesTotal  int        `json:"tiles_total"`
	Artifacts   []Artifact `json:"artifacts"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  time.Time  `json:"finished_at"`
}

// Clone returns a copy with its own artifact slice.
func (m *Manifest) Clone() Manifest {
	out := *m
	out.Artifacts = append([]Artifact(nil), m.Artifacts...)
	return out
}
