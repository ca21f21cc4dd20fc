package frontend

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/a-h/templ"
	"github.com/calendar-1m/project/internal/app/notify"
	"github.com/calendar-1m/project/internal/calendar"
)

func render(t *testing.T, c templ.Component) string {
	t.Helper()
	var buf bytes.Buffer
	if err := c.Render(context.Background(), &buf); err != nil {
		t.Fatalf("render: %v", err)
	}
	return buf.String()
}

func TestToast(t *testing.T) {
	empty := render(t, Toast(nil))
	if empty != `<div id="notification" class="toast-slot"></div>` {
		t.Fatalf("unexpected empty toast: %s", empty)
	}

	got := render(t, Toast(&notify.Notification{ID: "n1", Message: "Reminder: <b>x</b>", Severity: notify.SeverityInfo}))
	for _, want := range []string{`data-severity="info"`, `data-notification-id="n1"`, `Reminder: &lt;b&gt;x&lt;/b&gt;`} {
		if !strings.Contains(got, want) {
			t.Fatalf("toast missing %q: %s", want, got)
		}
	}
}

func TestEventList(t *testing.T) {
	if got := render(t, EventList(nil, time.UTC)); !strings.Contains(got, "No events yet") {
		t.Fatalf("empty list not rendered: %s", got)
	}

	start := time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)
	got := render(t, EventList([]calendar.Event{{
		ID: "e1", Title: "Standup", Start: start, End: start.Add(30 * time.Minute), Reminder: true, ReminderDays: 2,
	}}, time.UTC))
	for _, want := range []string{`data-event-id="e1"`, "Standup", "Mon Jan 6, 09:00 – Mon Jan 6, 09:30", "reminder 2 days before"} {
		if !strings.Contains(got, want) {
			t.Fatalf("list missing %q: %s", want, got)
		}
	}
}

func TestEventList_EscapesUserText(t *testing.T) {
	start := time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)
	got := render(t, EventList([]calendar.Event{{
		ID: `"x`, Title: "<script>alert(1)</script>", Start: start, End: start.Add(time.Hour),
	}}, nil))
	if strings.Contains(got, "<script>") || !strings.Contains(got, "&lt;script&gt;") {
		t.Fatalf("title not escaped: %s", got)
	}
	if !strings.Contains(got, `data-event-id="&#34;x"`) {
		t.Fatalf("id attribute not escaped: %s", got)
	}
	if strings.Contains(got, "reminder") {
		t.Fatalf("reminder label shown without reminder: %s", got)
	}
}

func TestReminderLabel(t *testing.T) {
	if got := reminderLabel(1); got != "reminder 1 day before" {
		t.Fatalf("singular: %q", got)
	}
	if got := reminderLabel(0); got != "reminder 0 days before" {
		t.Fatalf("zero: %q", got)
	}
}

func TestPagesAndStatic(t *testing.T) {
	if got := render(t, CalendarPage()); !strings.Contains(got, `id="event-list"`) || !strings.Contains(got, `id="notification"`) {
		t.Fatalf("calendar page missing slots")
	}
	if got := render(t, CalendarPage()); !strings.HasPrefix(got, "<!doctype html>") || !strings.Contains(got, `href="/static/styles.css"`) {
		t.Fatalf("calendar page missing document head: %s", got)
	}
	if got := render(t, LoginPage()); !strings.Contains(got, "/api/v1/auth/form") {
		t.Fatalf("login page missing form endpoint")
	}

	rec := httptest.NewRecorder()
	StaticHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/styles.css", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), ".toast") {
		t.Fatalf("static stylesheet not served: %d", rec.Code)
	}
}
