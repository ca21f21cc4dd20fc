package calendarapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/calendar-1m/project/internal/app/calendarview"
	"github.com/calendar-1m/project/internal/app/icsexport"
	"github.com/calendar-1m/project/internal/app/notify"
	"github.com/calendar-1m/project/internal/app/store"
	"github.com/calendar-1m/project/internal/calendar"
	"github.com/calendar-1m/project/internal/platform/metrics"
	"github.com/go-chi/chi/v5"
)

type eventRequest struct {
	Title        string    `json:"title"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	Reminder     bool      `json:"reminder"`
	ReminderDays int       `json:"reminder_days"`
}

func (r eventRequest) event() calendar.Event {
	return calendar.Event{
		Title:        r.Title,
		Start:        r.Start,
		End:          r.End,
		Reminder:     r.Reminder,
		ReminderDays: r.ReminderDays,
	}
}

type eventResponse struct {
	Event   calendar.Event `json:"event"`
	Message string         `json:"message"`
}

type slotRequest struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type notificationResponse struct {
	Notification *notify.Notification `json:"notification"`
	State        string               `json:"state"`
	Pending      int                  `json:"pending"`
}

func (h *Handler) listEvents(r *http.Request, owner string) ([]calendar.Event, error) {
	events, err := h.Sessions.Gateway.ListEvents(r.Context(), owner)
	metrics.ObserveStore(store.OpList, err)
	return events, err
}

func (h *Handler) handleListEvents(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	events, err := h.listEvents(r, claims.Subject)
	if err != nil {
		h.writeEventError(w, "", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (h *Handler) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	claims := claimsFromContext(r.Context())
	session, release := h.Sessions.Acquire(claims.Subject)
	defer release()

	created, err := session.Create(r.Context(), req.event())
	if err != nil {
		h.writeEventError(w, notify.OpCreate, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, eventResponse{Event: created, Message: notify.Result(notify.OpCreate, created.ID, nil).Message})
}

func (h *Handler) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	eventID := chi.URLParam(r, "eventID")
	claims := claimsFromContext(r.Context())
	session, release := h.Sessions.Acquire(claims.Subject)
	defer release()

	updated, err := session.Update(r.Context(), eventID, req.event())
	if err != nil {
		h.writeEventError(w, notify.OpUpdate, err)
		return
	}
	h.writeJSON(w, http.StatusOK, eventResponse{Event: updated, Message: notify.Result(notify.OpUpdate, updated.ID, nil).Message})
}

func (h *Handler) handlePatchEvent(w http.ResponseWriter, r *http.Request) {
	var patch calendar.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	eventID := chi.URLParam(r, "eventID")
	claims := claimsFromContext(r.Context())
	session, release := h.Sessions.Acquire(claims.Subject)
	defer release()

	updated, err := session.Patch(r.Context(), eventID, patch)
	if err != nil {
		h.writeEventError(w, notify.OpUpdate, err)
		return
	}
	h.writeJSON(w, http.StatusOK, eventResponse{Event: updated, Message: notify.Result(notify.OpUpdate, updated.ID, nil).Message})
}

func (h *Handler) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	claims := claimsFromContext(r.Context())
	session, release := h.Sessions.Acquire(claims.Subject)
	defer release()

	if err := session.Delete(r.Context(), eventID); err != nil {
		h.writeEventError(w, notify.OpDelete, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleExportICS(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	events, err := h.listEvents(r, claims.Subject)
	if err != nil {
		h.writeEventError(w, "", err)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="calendar.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(icsexport.Encode(events, h.now())))
}

func (h *Handler) handleSelectSlot(w http.ResponseWriter, r *http.Request) {
	var req slotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if req.Start.IsZero() {
		h.writeError(w, http.StatusBadRequest, "start is required")
		return
	}
	claims := claimsFromContext(r.Context())
	session, release := h.Sessions.Acquire(claims.Subject)
	defer release()

	draft, err := session.SelectSlot(req.Start, req.End)
	if err != nil {
		h.writeEventError(w, notify.OpCreate, err)
		return
	}
	h.writeJSON(w, http.StatusOK, draft)
}

// handleReminders lists reminders due at ?at= (default now) without touching
// any notification queue.
func (h *Handler) handleReminders(w http.ResponseWriter, r *http.Request) {
	at := h.now()
	if raw := strings.TrimSpace(r.URL.Query().Get("at")); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "at must be RFC3339")
			return
		}
		at = parsed
	}
	claims := claimsFromContext(r.Context())
	events, err := h.listEvents(r, claims.Subject)
	if err != nil {
		h.writeEventError(w, "", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"at":        at,
		"reminders": h.Scheduler.Collect(events, at),
	})
}

func (h *Handler) handleMonth(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	month := now
	if raw := strings.TrimSpace(r.URL.Query().Get("month")); raw != "" {
		parsed, err := time.ParseInLocation("2006-01", raw, h.location())
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "month must be YYYY-MM")
			return
		}
		month = parsed
	}
	claims := claimsFromContext(r.Context())
	events, err := h.listEvents(r, claims.Subject)
	if err != nil {
		h.writeEventError(w, "", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"month": month.Format("2006-01"),
		"days":  calendar.MonthDays(month, events, now),
	})
}

func (h *Handler) handleCurrentNotification(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	resp := notificationResponse{State: notify.StateIdle.String()}
	if session, ok := h.Sessions.Live(claims.Subject); ok {
		session.Tick(h.Now())
		if n, ok := session.Current(); ok {
			resp.Notification = &n
			resp.State = notify.StateShowing.String()
		}
		resp.Pending = len(session.Pending())
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleCloseNotification(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	id := chi.URLParam(r, "notificationID")
	session, ok := h.Sessions.Live(claims.Subject)
	if !ok || !session.Dismiss(id) {
		h.writeError(w, http.StatusNotFound, "notification is not displayed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeEventError maps session and store failures. Store failures answer with
// the same text the notification shows.
func (h *Handler) writeEventError(w http.ResponseWriter, op notify.Op, err error) {
	var validation *calendar.ValidationError
	var storeErr *store.StoreError
	switch {
	case errors.As(err, &validation):
		h.writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error": validation.Message,
			"kind":  string(validation.Kind),
		})
	case errors.Is(err, store.ErrNotFound), errors.Is(err, calendarview.ErrUnknownEvent):
		h.writeError(w, http.StatusNotFound, "event not found")
	case errors.Is(err, calendarview.ErrSessionClosed):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &storeErr):
		h.Logger.Error("store call failed", "op", storeErr.Op, "err", storeErr.Err)
		msg := notify.LoadFailed().Message
		if op != "" {
			msg = notify.Result(op, "", err).Message
		}
		h.writeError(w, http.StatusBadGateway, msg)
	default:
		h.Logger.Error("request failed", "err", err)
		h.writeError(w, http.StatusInternalServerError, err.Error())
	}
}
