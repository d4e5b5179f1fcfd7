package handlers

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/YohanV1/TissueLab-Scheduler/internal/common"
	"github.com/YohanV1/TissueLab-Scheduler/internal/store"
)

// WorkflowHandler serves workflow CRUD and aggregates.
type WorkflowHandler struct {
	store    *store.Store
	validate *validator.Validate
	logger   arbor.ILogger
}

func NewWorkflowHandler(st *store.Store) *WorkflowHandler {
	return &WorkflowHandler{
		store:    st,
		validate: validator.New(),
		logger:   common.GetLogger(),
	}
}

type createWorkflowRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

// CreateHandler creates an empty workflow for the caller's tenant.
func (h *WorkflowHandler) CreateHandler(w http.ResponseWriter, r *http.Request) {
	tenant, ok := RequireTenant(w, r)
	if !ok {
		return
	}

	var req createWorkflowRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid workflow: "+err.Error())
		return
	}

	wf := h.store.CreateWorkflow(tenant, req.Name)
	h.logger.Info().
		Str("workflow_id", wf.ID).
		Str("tenant_id", tenant).
		Msg("Workflow created")
	WriteJSON(w, http.StatusCreated, wf)
}

// ListHandler returns the caller's workflows, newest first.
func (h *WorkflowHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	tenant, ok := RequireTenant(w, r)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"workflows": h.store.ListWorkflows(tenant),
	})
}

// GetHandler returns one workflow's derived snapshot.
func (h *WorkflowHandler) GetHandler(workflowID string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, ok := RequireTenant(w, r)
		if !ok {
			return
		}
		snap, err := h.store.GetWorkflow(tenant, workflowID)
		if err != nil {
			WriteKindError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, snap)
	}
}

// ListJobsHandler returns the workflow's jobs in creation order.
func (h *WorkflowHandler) ListJobsHandler(workflowID string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, ok := RequireTenant(w, r)
		if !ok {
			return
		}
		jobs, err := h.store.ListWorkflowJobs(tenant, workflowID)
		if err != nil {
			WriteKindError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]interface{}{
			"jobs": jobs,
		})
	}
}
