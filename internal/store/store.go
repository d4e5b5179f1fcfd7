package store

import (
	"sort"
	"sync"
	"time"

	"github.com/YohanV1/TissueLab-Scheduler/internal/common"
	"github.com/YohanV1/TissueLab-Scheduler/internal/events"
	"github.com/YohanV1/TissueLab-Scheduler/internal/models"
)

// Store holds all workflow and job state behind one mutex. Every mutation
// that changes observable state appends its events to an ordered outbox
// while the lock is held, so subscribers see per-entity updates in mutation
// order without the lock ever being held across a publish.
type Store struct {
	mu        sync.Mutex
	workflows map[string]*models.Workflow
	jobs      map[string]*models.Job

	maxJobsPerWorkflow int

	outbox *outbox
}

// New creates a store publishing to bus. Close must be called to stop the
// publisher goroutine.
func New(bus *events.Bus, maxJobsPerWorkflow int) *Store {
	return &Store{
		workflows:          make(map[string]*models.Workflow),
		jobs:               make(map[string]*models.Job),
		maxJobsPerWorkflow: maxJobsPerWorkflow,
		outbox:             newOutbox(bus),
	}
}

// Close drains the outbox and stops the publisher.
func (s *Store) Close() {
	s.outbox.close()
}

// CreateWorkflow registers an empty workflow for the tenant. Creation
// publishes no event; only state transitions do.
func (s *Store) CreateWorkflow(tenantID, name string) models.Workflow {
	s.mu.Lock()
	defer s.mu.Unlock()

	wf := &models.Workflow{
		ID:        common.NewWorkflowID(),
		TenantID:  tenantID,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	s.workflows[wf.ID] = wf
	return wf.Clone()
}

// GetWorkflow returns the workflow's derived snapshot. A workflow owned by
// another tenant is reported as FORBIDDEN, not hidden.
func (s *Store) GetWorkflow(tenantID, workflowID string) (models.WorkflowSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wf, err := s.workflowForTenantLocked(tenantID, workflowID)
	if err != nil {
		return models.WorkflowSnapshot{}, err
	}
	return s.snapshotLocked(wf), nil
}

// ListWorkflows returns snapshots of the tenant's workflows, newest first.
func (s *Store) ListWorkflows(tenantID string) []models.WorkflowSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.WorkflowSnapshot, 0)
	for _, wf := range s.workflows {
		if wf.TenantID == tenantID {
			out = append(out, s.snapshotLocked(wf))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// CreateJob appends a PENDING job to the workflow. The job inherits the
// workflow's tenant; the per-workflow job cap is enforced here.
func (s *Store) CreateJob(tenantID, workflowID, fileID string, jobType models.JobType, branch string) (models.Job, error) {
	if !models.ValidJobType(jobType) {
		return models.Job{}, models.NewError(models.KindInvalid, "unknown job type %q", jobType)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	wf, err := s.workflowForTenantLocked(tenantID, workflowID)
	if err != nil {
		return models.Job{}, err
	}
	if len(wf.JobIDs) >= s.maxJobsPerWorkflow {
		return models.Job{}, models.NewError(models.KindLimitExceeded,
			"workflow %s already has %d jobs", workflowID, len(wf.JobIDs))
	}

	now := time.Now().UTC()
	job := &models.Job{
		ID:         common.NewJobID(),
		WorkflowID: workflowID,
		TenantID:   wf.TenantID,
		FileID:     fileID,
		Type:       jobType,
		Branch:     branch,
		State:      models.JobPending,
		CreatedAt:  now,
		StateTimes: map[models.JobState]time.Time{models.JobPending: now},
	}
	s.jobs[job.ID] = job
	wf.JobIDs = append(wf.JobIDs, job.ID)
	return job.Clone(), nil
}

// GetJob returns the tenant's job by id.
func (s *Store) GetJob(tenantID, jobID string) (models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.jobForTenantLocked(tenantID, jobID)
	if err != nil {
		return models.Job{}, err
	}
	return job.Clone(), nil
}

// JobByID returns the job without a tenant check. Scheduler and executor
// internals use it; handlers must not.
func (s *Store) JobByID(jobID string) (models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return models.Job{}, models.NewError(models.KindNotFound, "job %s not found", jobID)
	}
	return job.Clone(), nil
}

// ListWorkflowJobs returns the workflow's jobs in creation order.
func (s *Store) ListWorkflowJobs(tenantID, workflowID string) ([]models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wf, err := s.workflowForTenantLocked(tenantID, workflowID)
	if err != nil {
		return nil, err
	}
	out := make([]models.Job, 0, len(wf.JobIDs))
	for _, id := range wf.JobIDs {
		out = append(out, s.jobs[id].Clone())
	}
	return out, nil
}

// RunningJobs returns every job currently in RUNNING, for the watchdog.
func (s *Store) RunningJobs() []models.Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Job, 0)
	for _, job := range s.jobs {
		if job.State == models.JobRunning {
			out = append(out, job.Clone())
		}
	}
	return out
}

// Transition atomically moves the job from one of the given states to the
// target state. The current state must be in from and the edge must exist in
// the transition table; otherwise CONFLICT is returned and nothing changes.
// mutate, if non-nil, runs on the job after the state change while the lock
// is still held. Entering PENDING from a terminal state resets the run's
// progress, error and manifest.
func (s *Store) Transition(jobID string, from []models.JobState, to models.JobState, mutate func(*models.Job)) (models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return models.Job{}, models.NewError(models.KindNotFound, "job %s not found", jobID)
	}

	inFrom := false
	for _, st := range from {
		if job.State == st {
			inFrom = true
			break
		}
	}
	if !inFrom {
		return models.Job{}, models.NewError(models.KindConflict,
			"job %s is %s, cannot move to %s", jobID, job.State, to)
	}
	if !models.CanTransition(job.State, to) {
		return models.Job{}, models.NewError(models.KindConflict,
			"illegal transition %s -> %s for job %s", job.State, to, jobID)
	}

	wasTerminal := job.State.IsTerminal()
	job.State = to
	job.StateTimes[to] = time.Now().UTC()
	if to == models.JobPending && wasTerminal {
		job.Progress = 0
		job.TilesDone = 0
		job.TilesTotal = 0
		job.Error = ""
		job.Manifest = nil
	}
	if mutate != nil {
		mutate(job)
	}

	s.publishJobLocked(job)
	s.publishWorkflowLocked(s.workflows[job.WorkflowID])
	return job.Clone(), nil
}

// UpdateProgress records tile progress for a RUNNING job. Progress only
// moves forward within a run; a stale update is dropped, not an error.
func (s *Store) UpdateProgress(jobID string, tilesDone, tilesTotal int) (models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return models.Job{}, models.NewError(models.KindNotFound, "job %s not found", jobID)
	}
	if job.State != models.JobRunning {
		return models.Job{}, models.NewError(models.KindConflict,
			"job %s is %s, progress applies to RUNNING only", jobID, job.State)
	}
	if tilesDone < job.TilesDone {
		return job.Clone(), nil
	}

	job.TilesDone = tilesDone
	job.TilesTotal = tilesTotal
	if tilesTotal > 0 {
		job.Progress = float64(tilesDone) / float64(tilesTotal)
	}

	s.publishJobLocked(job)
	s.publishWorkflowLocked(s.workflows[job.WorkflowID])
	return job.Clone(), nil
}

func (s *Store) workflowForTenantLocked(tenantID, workflowID string) (*models.Workflow, error) {
	wf, ok := s.workflows[workflowID]
	if !ok {
		return nil, models.NewError(models.KindNotFound, "workflow %s not found", workflowID)
	}
	if wf.TenantID != tenantID {
		return nil, models.NewError(models.KindForbidden, "workflow %s belongs to another tenant", workflowID)
	}
	return wf, nil
}

func (s *Store) jobForTenantLocked(tenantID, jobID string) (*models.Job, error) {
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, models.NewError(models.KindNotFound, "job %s not found", jobID)
	}
	if job.TenantID != tenantID {
		return nil, models.NewError(models.KindForbidden, "job %s belongs to another tenant", jobID)
	}
	return job, nil
}

// snapshotLocked derives the workflow aggregate from its current job set.
// Any running job makes the workflow RUNNING, then any failure makes it
// FAILED even while other jobs are still pending. Canceled jobs do not count
// toward state or completion; a workflow whose jobs are all canceled, or
// which has none, reads PENDING at 0.0.
func (s *Store) snapshotLocked(wf *models.Workflow) models.WorkflowSnapshot {
	counts := make(map[models.JobState]int)
	var sum float64
	active := 0

	for _, id := range wf.JobIDs {
		job := s.jobs[id]
		counts[job.State]++
		if job.State == models.JobCanceled {
			continue
		}
		active++
		switch job.State {
		case models.JobSucceeded:
			sum += 1
		default:
			sum += job.Progress
		}
	}

	state := models.WorkflowPending
	percent := 0.0
	if active > 0 {
		percent = sum / float64(active)
		switch {
		case counts[models.JobRunning] > 0:
			state = models.WorkflowRunning
		case counts[models.JobFailed] > 0:
			state = models.WorkflowFailed
		case counts[models.JobPending] > 0:
			state = models.WorkflowPending
		default:
			state = models.WorkflowSucceeded
		}
	}

	return models.WorkflowSnapshot{
		WorkflowID:      wf.ID,
		TenantID:        wf.TenantID,
		Name:            wf.Name,
		State:           state,
		PercentComplete: percent,
		JobCounts:       counts,
		CreatedAt:       wf.CreatedAt,
	}
}

func (s *Store) publishJobLocked(job *models.Job) {
	s.outbox.append(models.Event{
		EntityKind: models.EntityJob,
		EntityID:   job.ID,
		State:      string(job.State),
		Progress:   job.Progress,
		TilesDone:  job.TilesDone,
		TilesTotal: job.TilesTotal,
		Reason:     job.Error,
		At:         time.Now().UTC(),
	})
}

func (s *Store) publishWorkflowLocked(wf *models.Workflow) {
	snap := s.snapshotLocked(wf)
	s.outbox.append(models.Event{
		EntityKind: models.EntityWorkflow,
		EntityID:   wf.ID,
		State:      string(snap.State),
		Progress:   snap.PercentComplete,
		At:         time.Now().UTC(),
	})
}
