package interfaces

import (
	"context"

	"github.com/YohanV1/TissueLab-Scheduler/internal/models"
)

// JobExecutor runs one admitted job end to end. Execute owns the terminal
// transition: by the time it returns, the job is SUCCEEDED or FAILED in the
// store. The context cancels on shutdown; an execution interrupted that way
// ends FAILED.
type JobExecutor interface {
	Execute(ctx context.Context, job models.Job)
}

// Scheduler admits PENDING jobs under the worker, tenant and branch
// constraints, and answers queue diagnostics.
type Scheduler interface {
	// Enqueue offers a PENDING job for admission. Safe to call for a job
	// already queued.
	Enqueue(jobID string)
	// Remove drops a job from the queue if still present. Used after a
	// successful cancel.
	Remove(jobID string)
	// QueueStatus explains why jobID has not been admitted, or reports
	// queued=false when it is not waiting.
	QueueStatus(jobID string) models.QueueStatus
	// Stop prevents further admissions and waits for in-flight executions.
	Stop()
}
