package icsexport

import (
	"strings"
	"testing"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/calendar-1m/project/internal/calendar"
)

func TestEncode_RoundTripsThroughParser(t *testing.T) {
	start := time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)
	body := Encode([]calendar.Event{
		{ID: "e1", Title: "Standup", Start: start, End: start.Add(30 * time.Minute)},
		{ID: "e2", Title: "Launch", Start: start.AddDate(0, 0, 3), End: start.AddDate(0, 0, 3).Add(time.Hour), Reminder: true, ReminderDays: 2},
	}, start)

	cal, err := ical.ParseCalendar(strings.NewReader(body))
	if err != nil {
		t.Fatalf("ParseCalendar error: %v", err)
	}
	events := cal.Events()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if p := events[0].GetProperty(ical.ComponentPropertyUniqueId); p == nil || p.Value != "e1@calendar-1m" {
		t.Fatalf("unexpected uid: %+v", p)
	}
	if p := events[0].GetProperty(ical.ComponentPropertySummary); p == nil || p.Value != "Standup" {
		t.Fatalf("unexpected summary: %+v", p)
	}
	if p := events[0].GetProperty(ical.ComponentPropertyDtStart); p == nil || p.Value != "20250106T090000Z" {
		t.Fatalf("unexpected dtstart: %+v", p)
	}
	if len(events[0].Alarms()) != 0 {
		t.Fatalf("event without reminder got an alarm")
	}
	alarms := events[1].Alarms()
	if len(alarms) != 1 {
		t.Fatalf("expected one alarm, got %d", len(alarms))
	}
	if p := alarms[0].GetProperty(ical.ComponentPropertyTrigger); p == nil || p.Value != "-P2D" {
		t.Fatalf("unexpected trigger: %+v", p)
	}
}

func TestEncode_Empty(t *testing.T) {
	body := Encode(nil, time.Now())
	if !strings.Contains(body, "BEGIN:VCALENDAR") || strings.Contains(body, "BEGIN:VEVENT") {
		t.Fatalf("unexpected empty feed: %s", body)
	}
	if !strings.Contains(body, productID) {
		t.Fatalf("missing product id")
	}
}
