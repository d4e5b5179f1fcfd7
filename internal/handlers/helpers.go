package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/YohanV1/TissueLab-Scheduler/internal/models"
)

// RequireMethod validates that the request uses the given method and writes
// a 405 otherwise.
func RequireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// TenantID extracts the caller's tenant from the X-Tenant-ID header, falling
// back to the tenant query parameter for EventSource clients that cannot set
// headers. Empty means unauthenticated.
func TenantID(r *http.Request) string {
	if tenant := r.Header.Get("X-Tenant-ID"); tenant != "" {
		return tenant
	}
	return r.URL.Query().Get("tenant")
}

// RequireTenant resolves the tenant or writes a 400.
func RequireTenant(w http.ResponseWriter, r *http.Request) (string, bool) {
	tenant := TenantID(r)
	if tenant == "" {
		WriteError(w, http.StatusBadRequest, "X-Tenant-ID header is required")
		return "", false
	}
	return tenant, true
}

// WriteJSON writes a JSON response with the specified status code and data.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// WriteError writes a standard error JSON response.
func WriteError(w http.ResponseWriter, statusCode int, message string) error {
	return WriteJSON(w, statusCode, map[string]string{
		"status": "error",
		"error":  message,
	})
}

// WriteKindError maps a classified error to its HTTP status and includes the
// kind in the body so clients can branch without parsing messages.
func WriteKindError(w http.ResponseWriter, err error) error {
	kind := models.KindOf(err)
	return WriteJSON(w, statusForKind(kind), map[string]string{
		"status": "error",
		"kind":   string(kind),
		"error":  err.Error(),
	})
}

func statusForKind(kind models.ErrorKind) int {
	switch kind {
	case models.KindNotFound:
		return http.StatusNotFound
	case models.KindForbidden:
		return http.StatusForbidden
	case models.KindConflict, models.KindLimitExceeded:
		return http.StatusConflict
	case models.KindInvalid:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// DecodeJSON parses the request body into v, rejecting unknown fields.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}
