package server

import (
	"net/http"
	"strings"
)

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket firehose
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// API routes - Workflows
	mux.HandleFunc("/api/workflows", s.handleWorkflowCollection)
	mux.HandleFunc("/api/workflows/", s.handleWorkflowRoutes)

	// API routes - Jobs
	mux.HandleFunc("/api/jobs", s.handleJobCollection)
	mux.HandleFunc("/api/jobs/", s.handleJobRoutes)

	// API routes - Files
	mux.HandleFunc("/api/files", s.app.FileHandler.UploadHandler)
	mux.HandleFunc("/api/files/", s.handleFileRoutes)

	// API routes - System
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)

	return mux
}

func (s *Server) handleWorkflowCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.app.WorkflowHandler.ListHandler(w, r)
	case http.MethodPost:
		s.app.WorkflowHandler.CreateHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleWorkflowRoutes dispatches /api/workflows/{id}[/jobs|/events].
func (s *Server) handleWorkflowRoutes(w http.ResponseWriter, r *http.Request) {
	id, sub := splitResourcePath(r.URL.Path, "/api/workflows/")
	if id == "" {
		http.NotFound(w, r)
		return
	}

	switch sub {
	case "":
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.app.WorkflowHandler.GetHandler(id)(w, r)
	case "jobs":
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.app.WorkflowHandler.ListJobsHandler(id)(w, r)
	case "events":
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.app.EventsHandler.WorkflowEventsHandler(id)(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleJobCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.app.JobHandler.CreateHandler(w, r)
}

// handleJobRoutes dispatches /api/jobs/{id} and its lifecycle subroutes.
func (s *Server) handleJobRoutes(w http.ResponseWriter, r *http.Request) {
	id, sub := splitResourcePath(r.URL.Path, "/api/jobs/")
	if id == "" {
		http.NotFound(w, r)
		return
	}

	getRoutes := map[string]func(string) http.HandlerFunc{
		"":             s.app.JobHandler.GetHandler,
		"queue-status": s.app.JobHandler.QueueStatusHandler,
		"events":       s.app.EventsHandler.JobEventsHandler,
		"manifest":     s.app.JobHandler.ManifestHandler,
		"preview":      s.app.JobHandler.PreviewHandler,
		"artifacts":    s.app.JobHandler.ArtifactsHandler,
	}
	postRoutes := map[string]func(string) http.HandlerFunc{
		"start":  s.app.JobHandler.StartHandler,
		"cancel": s.app.JobHandler.CancelHandler,
		"retry":  s.app.JobHandler.RetryHandler,
	}

	if h, ok := getRoutes[sub]; ok {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h(id)(w, r)
		return
	}
	if h, ok := postRoutes[sub]; ok {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h(id)(w, r)
		return
	}
	http.NotFound(w, r)
}

func (s *Server) handleFileRoutes(w http.ResponseWriter, r *http.Request) {
	id, sub := splitResourcePath(r.URL.Path, "/api/files/")
	if id == "" || sub != "" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.app.FileHandler.GetHandler(id)(w, r)
}

// splitResourcePath extracts the resource id and optional single subroute
// from a path like /api/jobs/{id}/start.
func splitResourcePath(path, prefix string) (id, sub string) {
	rest := strings.TrimPrefix(path, prefix)
	rest = strings.Trim(rest, "/")
	if rest == "" {
		return "", ""
	}
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], parts[1]
}
