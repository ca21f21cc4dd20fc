package calendarapi

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/a-h/templ"
	"github.com/calendar-1m/project/internal/app/notify"
	"github.com/calendar-1m/project/services/frontend"
)

// handleStream owns the caller's live session for as long as the connection
// stays open, patching #event-list and #notification whenever either changes.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	claims, ok := h.claimsFromQueryOrHeader(w, r)
	if !ok {
		return
	}

	session, err := h.Sessions.Open(r.Context(), claims.Subject)
	if err != nil {
		h.Logger.Error("open session failed", "user_id", claims.Subject, "err", err)
		http.Error(w, "stream subscription failed", http.StatusInternalServerError)
		return
	}
	defer h.Sessions.Release(session)
	h.Logger.Info("stream connected", "user_id", claims.Subject, "session_id", session.ID)

	sendPatch := func(selector, mode, content string) {
		content = strings.ReplaceAll(content, "\n", "")
		fmt.Fprint(w, "event: datastar-patch-elements\n")
		fmt.Fprintf(w, "data: selector %s\n", selector)
		fmt.Fprintf(w, "data: mode %s\n", mode)
		fmt.Fprintf(w, "data: elements %s\n\n", content)
		flusher.Flush()
	}
	sendComponent := func(ctx context.Context, selector string, component templ.Component) {
		var buf bytes.Buffer
		if err := component.Render(ctx, &buf); err != nil {
			h.Logger.Warn("render failed", "selector", selector, "err", err)
			return
		}
		sendPatch(selector, "outer", buf.String())
	}
	render := func() {
		sendComponent(r.Context(), "#event-list", frontend.EventList(session.Events(), h.location()))
		var current *notify.Notification
		if n, ok := session.Current(); ok {
			current = &n
		}
		sendComponent(r.Context(), "#notification", frontend.Toast(current))
	}

	// The deadline timer expires the displayed notification; Tick signals
	// an update which re-renders.
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	armTimer := func() {
		timer.Stop()
		if deadline, ok := session.Deadline(); ok {
			timer.Reset(max(deadline.Sub(h.Now()), 0))
		}
	}

	render()
	armTimer()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-session.Done():
			return
		case <-session.Updates():
			render()
			armTimer()
		case <-timer.C:
			session.Tick(h.Now())
			armTimer()
		}
	}
}

func (h *Handler) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.claimsFromQueryOrHeader(w, r)
	if !ok {
		return
	}
	h.Sessions.Cancel(claims.Subject)
	w.WriteHeader(http.StatusNoContent)
}
