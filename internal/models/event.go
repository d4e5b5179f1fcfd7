package models

import (
	"time"
)

// EntityKind distinguishes the two streamable entity types.
type EntityKind string

const (
	EntityJob      EntityKind = "job"
	EntityWorkflow EntityKind = "workflow"
)

// Event is a single live update for one entity. Events are delivered per
// subscriber in publish order for that entity; no cross-entity ordering is
// guaranteed.
type Event struct {
	EntityKind EntityKind `json:"entity_kind"`
	EntityID   string     `json:"entity_id"`
	State      string     `json:"state"`
	Progress   float64    `json:"progress"`
	TilesDone  int        `json:"tiles_done"`
	TilesTotal int        `json:"tiles_total"`
	Reason     string     `json:"reason,omitempty"`
	At         time.Time  `json:"at"`
}

// QueueStatus reports why a PENDING job has not been admitted yet, plus the
// scheduler's live resource counters.
type QueueStatus struct {
	Queued         bool     `json:"queued"`
	WaitingFor     []string `json:"waiting_for"`
	ActiveUsers    int      `json:"active_users"`
	MaxActiveUsers int      `json:"max_active_users"`
	ActiveWorkers  int      `json:"active_workers"`
	MaxWorkers     int      `json:"max_workers"`
}

// Admission-wait reasons reported in QueueStatus.WaitingFor.
const (
	WaitWorker   = "WORKER"
	WaitBranch   = "BRANCH"
	WaitUserSlot = "USER_SLOT"
)
