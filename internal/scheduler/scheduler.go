package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/YohanV1/TissueLab-Scheduler/internal/common"
	"github.com/YohanV1/TissueLab-Scheduler/internal/interfaces"
	"github.com/YohanV1/TissueLab-Scheduler/internal/models"
	"github.com/YohanV1/TissueLab-Scheduler/internal/store"
)

// Scheduler admits PENDING jobs under three constraints: at most maxWorkers
// executions at once, at most maxActiveUsers distinct tenants with running
// jobs, and one running job per (workflow, branch). Admission scans the FIFO
// queue in arrival order and skips blocked entries, so a stuck branch never
// starves the jobs behind it.
type Scheduler struct {
	store    *store.Store
	executor interfaces.JobExecutor
	log      arbor.ILogger

	maxWorkers     int
	maxActiveUsers int

	mu            sync.Mutex
	queue         []string
	queued        map[string]struct{}
	activeWorkers int
	branchBusy    map[models.BranchKey]string
	activeTenants map[string]int
	stopped       bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a scheduler. Jobs are only admitted after Enqueue.
func New(st *store.Store, executor interfaces.JobExecutor, maxWorkers, maxActiveUsers int) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		store:          st,
		executor:       executor,
		log:            common.GetLogger(),
		maxWorkers:     maxWorkers,
		maxActiveUsers: maxActiveUsers,
		queued:         make(map[string]struct{}),
		branchBusy:     make(map[models.BranchKey]string),
		activeTenants:  make(map[string]int),
		ctx:            ctx,
		cancel:         cancel,
	}
}

// Enqueue offers a PENDING job for admission. Duplicate offers are ignored.
func (s *Scheduler) Enqueue(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if _, ok := s.queued[jobID]; ok {
		return
	}
	s.queue = append(s.queue, jobID)
	s.queued[jobID] = struct{}{}
	s.dispatchLocked()
}

// Remove drops a job from the queue, typically after a cancel won its race.
func (s *Scheduler) Remove(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(jobID)
}

func (s *Scheduler) removeLocked(jobID string) {
	if _, ok := s.queued[jobID]; !ok {
		return
	}
	delete(s.queued, jobID)
	for i, id := range s.queue {
		if id == jobID {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			break
		}
	}
}

// dispatchLocked scans the queue front to back and admits every job whose
// constraints are all free right now. Admission itself is a compare-and-set
// in the store; a job canceled between scans simply falls out of the queue.
func (s *Scheduler) dispatchLocked() {
	if s.stopped {
		return
	}

	i := 0
	for i < len(s.queue) {
		if s.activeWorkers >= s.maxWorkers {
			return
		}

		jobID := s.queue[i]
		job, err := s.store.JobByID(jobID)
		if err != nil || job.State != models.JobPending {
			s.removeLocked(jobID)
			continue
		}

		if !s.admissibleLocked(&job) {
			i++
			continue
		}

		admitted, err := s.store.Transition(jobID, []models.JobState{models.JobPending}, models.JobRunning, nil)
		if err != nil {
			// Lost a race with cancel. Drop it and keep scanning.
			s.removeLocked(jobID)
			continue
		}

		s.removeLocked(jobID)
		s.activeWorkers++
		s.branchBusy[admitted.BranchKey()] = admitted.ID
		s.activeTenants[admitted.TenantID]++

		s.log.Info().
			Str("job_id", admitted.ID).
			Str("workflow_id", admitted.WorkflowID).
			Str("branch", admitted.Branch).
			Str("tenant_id", admitted.TenantID).
			Int("active_workers", s.activeWorkers).
			Msg("Job admitted")

		s.wg.Add(1)
		go s.run(admitted)
	}
}

// admissibleLocked checks branch and tenant constraints; the worker slot is
// checked by the caller.
func (s *Scheduler) admissibleLocked(job *models.Job) bool {
	if _, busy := s.branchBusy[job.BranchKey()]; busy {
		return false
	}
	if s.activeTenants[job.TenantID] == 0 && len(s.activeTenants) >= s.maxActiveUsers {
		return false
	}
	return true
}

func (s *Scheduler) run(job models.Job) {
	defer s.wg.Done()
	defer s.release(job)
	s.executor.Execute(s.ctx, job)
}

// release frees the job's resources after its execution finished and
// immediately rescans the queue.
func (s *Scheduler) release(job models.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.activeWorkers <= 0 {
		panic(fmt.Sprintf("scheduler: worker count underflow releasing job %s", job.ID))
	}
	s.activeWorkers--
	delete(s.branchBusy, job.BranchKey())
	if s.activeTenants[job.TenantID] <= 1 {
		delete(s.activeTenants, job.TenantID)
	} else {
		s.activeTenants[job.TenantID]--
	}

	s.log.Debug().
		Str("job_id", job.ID).
		Int("active_workers", s.activeWorkers).
		Msg("Job resources released")

	s.dispatchLocked()
}

// QueueStatus explains what a PENDING job is waiting on. Queued follows the
// job's state, not scheduler-queue membership, so a created-but-unstarted
// job still reads as queued. Non-PENDING jobs report queued=false alongside
// the live counters.
func (s *Scheduler) QueueStatus(jobID string) models.QueueStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := models.QueueStatus{
		WaitingFor:     []string{},
		ActiveUsers:    len(s.activeTenants),
		MaxActiveUsers: s.maxActiveUsers,
		ActiveWorkers:  s.activeWorkers,
		MaxWorkers:     s.maxWorkers,
	}

	job, err := s.store.JobByID(jobID)
	if err != nil || job.State != models.JobPending {
		return status
	}
	status.Queued = true

	if s.activeWorkers >= s.maxWorkers {
		status.WaitingFor = append(status.WaitingFor, models.WaitWorker)
	}
	if _, busy := s.branchBusy[job.BranchKey()]; busy {
		status.WaitingFor = append(status.WaitingFor, models.WaitBranch)
	}
	if s.activeTenants[job.TenantID] == 0 && len(s.activeTenants) >= s.maxActiveUsers {
		status.WaitingFor = append(status.WaitingFor, models.WaitUserSlot)
	}
	return status
}

// Stop blocks new admissions, cancels running executions and waits for them
// to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		s.wg.Wait()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	s.log.Info().Msg("Scheduler stopped")
}
