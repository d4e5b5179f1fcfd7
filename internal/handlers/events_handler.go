package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/YohanV1/TissueLab-Scheduler/internal/common"
	"github.com/YohanV1/TissueLab-Scheduler/internal/events"
	"github.com/YohanV1/TissueLab-Scheduler/internal/models"
	"github.com/YohanV1/TissueLab-Scheduler/internal/store"
)

// EventsHandler streams entity updates over Server-Sent Events. Progress
// events are throttled per connection; state changes always go out so a
// client never misses a transition.
type EventsHandler struct {
	store    *store.Store
	bus      *events.Bus
	throttle time.Duration
	logger   arbor.ILogger
}

func NewEventsHandler(st *store.Store, bus *events.Bus, throttle time.Duration) *EventsHandler {
	return &EventsHandler{
		store:    st,
		bus:      bus,
		throttle: throttle,
		logger:   common.GetLogger(),
	}
}

// JobEventsHandler streams one job's events.
func (h *EventsHandler) JobEventsHandler(jobID string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, ok := RequireTenant(w, r)
		if !ok {
			return
		}
		if _, err := h.store.GetJob(tenant, jobID); err != nil {
			WriteKindError(w, err)
			return
		}
		h.stream(w, r, models.EntityJob, jobID)
	}
}

// WorkflowEventsHandler streams a workflow's aggregate events.
func (h *EventsHandler) WorkflowEventsHandler(workflowID string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, ok := RequireTenant(w, r)
		if !ok {
			return
		}
		if _, err := h.store.GetWorkflow(tenant, workflowID); err != nil {
			WriteKindError(w, err)
			return
		}
		h.stream(w, r, models.EntityWorkflow, workflowID)
	}
}

func (h *EventsHandler) stream(w http.ResponseWriter, r *http.Request, kind models.EntityKind, entityID string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	// Subscribe before the snapshot so no update between the two is lost.
	sub := h.bus.Subscribe(kind, entityID)
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	limiter := rate.NewLimiter(rate.Every(h.throttle), 1)
	lastState := ""

	h.logger.Debug().
		Str("entity_kind", string(kind)).
		Str("entity_id", entityID).
		Msg("SSE stream opened")

	for {
		ev, ok := sub.Next(r.Context())
		if !ok {
			return
		}

		// Pure progress updates are throttled; anything that changes the
		// state string goes out immediately.
		if ev.State == lastState && !limiter.Allow() {
			continue
		}
		lastState = ev.State

		if err := writeSSE(w, ev); err != nil {
			return
		}
		flusher.Flush()
	}
}

func writeSSE(w http.ResponseWriter, ev models.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.EntityKind, data)
	return err
}
