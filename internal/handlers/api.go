package handlers

import (
	"net/http"
	"time"

	"github.com/YohanV1/TissueLab-Scheduler/internal/common"
)

// APIHandler serves system endpoints.
type APIHandler struct {
	startedAt time.Time
}

func NewAPIHandler() *APIHandler {
	return &APIHandler{startedAt: time.Now().UTC()}
}

// HealthHandler reports service liveness.
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"uptime": time.Since(h.startedAt).String(),
	})
}

// VersionHandler reports the build version.
func (h *APIHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.GetVersion(),
	})
}
