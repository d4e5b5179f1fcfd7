package handlers

import (
	"net/http"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/YohanV1/TissueLab-Scheduler/internal/common"
	"github.com/YohanV1/TissueLab-Scheduler/internal/files"
	"github.com/YohanV1/TissueLab-Scheduler/internal/interfaces"
	"github.com/YohanV1/TissueLab-Scheduler/internal/models"
	"github.com/YohanV1/TissueLab-Scheduler/internal/store"
)

// JobHandler serves the job lifecycle: create, start, cancel, retry, status
// and result artifacts.
type JobHandler struct {
	store     *store.Store
	scheduler interfaces.Scheduler
	files     *files.Service
	validate  *validator.Validate
	logger    arbor.ILogger
}

func NewJobHandler(st *store.Store, sch interfaces.Scheduler, fs *files.Service) *JobHandler {
	return &JobHandler{
		store:     st,
		scheduler: sch,
		files:     fs,
		validate:  validator.New(),
		logger:    common.GetLogger(),
	}
}

type createJobRequest struct {
	WorkflowID string `json:"workflow_id" validate:"required"`
	FileID     string `json:"file_id" validate:"required"`
	JobType    string `json:"job_type" validate:"required"`
	Branch     string `json:"branch" validate:"max=100"`
}

// CreateHandler appends a PENDING job to a workflow. The input file must
// exist and belong to the caller; the job is not queued until start.
func (h *JobHandler) CreateHandler(w http.ResponseWriter, r *http.Request) {
	tenant, ok := RequireTenant(w, r)
	if !ok {
		return
	}

	var req createJobRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid job: "+err.Error())
		return
	}
	if _, err := h.files.Get(tenant, req.FileID); err != nil {
		WriteKindError(w, err)
		return
	}

	job, err := h.store.CreateJob(tenant, req.WorkflowID, req.FileID, models.JobType(req.JobType), req.Branch)
	if err != nil {
		WriteKindError(w, err)
		return
	}

	h.logger.Info().
		Str("job_id", job.ID).
		Str("workflow_id", job.WorkflowID).
		Str("job_type", string(job.Type)).
		Str("branch", job.Branch).
		Msg("Job created")
	WriteJSON(w, http.StatusCreated, job)
}

// GetHandler returns one job.
func (h *JobHandler) GetHandler(jobID string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, ok := RequireTenant(w, r)
		if !ok {
			return
		}
		job, err := h.store.GetJob(tenant, jobID)
		if err != nil {
			WriteKindError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, job)
	}
}

// StartHandler offers a PENDING job to the scheduler. Starting a job that is
// not PENDING is a conflict; starting one already queued is a no-op.
func (h *JobHandler) StartHandler(jobID string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, ok := RequireTenant(w, r)
		if !ok {
			return
		}
		job, err := h.store.GetJob(tenant, jobID)
		if err != nil {
			WriteKindError(w, err)
			return
		}
		if job.State != models.JobPending {
			WriteKindError(w, models.NewError(models.KindConflict,
				"job %s is %s, only PENDING jobs can start", jobID, job.State))
			return
		}

		h.scheduler.Enqueue(jobID)
		WriteJSON(w, http.StatusOK, map[string]string{
			"status": "queued",
			"job_id": jobID,
		})
	}
}

// CancelHandler cancels a PENDING job. The compare-and-set in the store
// decides races against admission: once RUNNING, cancel is a conflict.
func (h *JobHandler) CancelHandler(jobID string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, ok := RequireTenant(w, r)
		if !ok {
			return
		}
		if _, err := h.store.GetJob(tenant, jobID); err != nil {
			WriteKindError(w, err)
			return
		}

		job, err := h.store.Transition(jobID, []models.JobState{models.JobPending}, models.JobCanceled, nil)
		if err != nil {
			WriteKindError(w, err)
			return
		}
		h.scheduler.Remove(jobID)

		h.logger.Info().Str("job_id", jobID).Msg("Job canceled")
		WriteJSON(w, http.StatusOK, job)
	}
}

// RetryHandler re-queues a job from any terminal state. The run state is
// reset and the job goes straight back to the scheduler.
func (h *JobHandler) RetryHandler(jobID string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, ok := RequireTenant(w, r)
		if !ok {
			return
		}
		if _, err := h.store.GetJob(tenant, jobID); err != nil {
			WriteKindError(w, err)
			return
		}

		job, err := h.store.Transition(jobID, models.TerminalStates, models.JobPending, nil)
		if err != nil {
			WriteKindError(w, err)
			return
		}
		h.scheduler.Enqueue(jobID)

		h.logger.Info().Str("job_id", jobID).Msg("Job retried")
		WriteJSON(w, http.StatusOK, job)
	}
}

// QueueStatusHandler explains why a job has not been admitted yet.
func (h *JobHandler) QueueStatusHandler(jobID string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, ok := RequireTenant(w, r)
		if !ok {
			return
		}
		if _, err := h.store.GetJob(tenant, jobID); err != nil {
			WriteKindError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, h.scheduler.QueueStatus(jobID))
	}
}

// ManifestHandler returns the artifact manifest of a SUCCEEDED job.
func (h *JobHandler) ManifestHandler(jobID string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, ok := RequireTenant(w, r)
		if !ok {
			return
		}
		job, err := h.store.GetJob(tenant, jobID)
		if err != nil {
			WriteKindError(w, err)
			return
		}
		if job.State != models.JobSucceeded || job.Manifest == nil {
			WriteKindError(w, models.NewError(models.KindConflict,
				"job %s is %s, manifest is available on SUCCEEDED only", jobID, job.State))
			return
		}
		WriteJSON(w, http.StatusOK, job.Manifest)
	}
}

// PreviewHandler serves the job's preview.png.
func (h *JobHandler) PreviewHandler(jobID string) http.HandlerFunc {
	return h.serveArtifact(jobID, "preview.png", "image/png")
}

// ArtifactsHandler serves the job's artifacts.zip bundle.
func (h *JobHandler) ArtifactsHandler(jobID string) http.HandlerFunc {
	return h.serveArtifact(jobID, "artifacts.zip", "application/zip")
}

func (h *JobHandler) serveArtifact(jobID, name, contentType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, ok := RequireTenant(w, r)
		if !ok {
			return
		}
		job, err := h.store.GetJob(tenant, jobID)
		if err != nil {
			WriteKindError(w, err)
			return
		}
		if job.State != models.JobSucceeded {
			WriteKindError(w, models.NewError(models.KindConflict,
				"job %s is %s, artifacts are available on SUCCEEDED only", jobID, job.State))
			return
		}

		dir, err := h.files.ResultsDir(jobID)
		if err != nil {
			WriteKindError(w, err)
			return
		}
		w.Header().Set("Content-Type", contentType)
		http.ServeFile(w, r, filepath.Join(dir, name))
	}
}
