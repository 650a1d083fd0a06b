// Package ics renders canonical calendar events as an iCalendar feed so
// downstream calendar apps can subscribe to the synced data.
package ics

import (
	"encoding/json"
	"strings"
	"time"

	"schoolsync-backend/services/ingest/db"

	ical "github.com/arran4/golang-ical"
)

var statusNames = map[string]ical.ObjectStatus{
	"Scheduled": ical.ObjectStatusConfirmed,
	"Cancelled": ical.ObjectStatusCancelled,
	"Postponed": ical.ObjectStatusTentative,
}

// Render serializes canonical events into an iCalendar document. Event ids
// become UIDs so re-exports stay stable for subscribers.
func Render(events []db.CanonicalEvent) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//schoolsync//calendar export//EN")

	for _, event := range events {
		ve := cal.AddEvent(event.ID)
		ve.SetDtStampTime(time.Unix(event.UpdatedAt, 0).UTC())
		ve.SetCreatedTime(time.Unix(event.CreatedAt, 0).UTC())
		ve.SetModifiedAt(time.Unix(event.UpdatedAt, 0).UTC())
		ve.SetSummary(event.Title)

		if event.AllDay {
			ve.SetAllDayStartAt(time.Unix(event.StartAt, 0).UTC())
			ve.SetAllDayEndAt(time.Unix(event.EndAt, 0).UTC())
		} else {
			ve.SetStartAt(time.Unix(event.StartAt, 0).UTC())
			ve.SetEndAt(time.Unix(event.EndAt, 0).UTC())
		}

		if event.Description.Valid && event.Description.String != "" {
			ve.SetDescription(event.Description.String)
		}
		if event.Location.Valid {
			ve.SetLocation(event.Location.String)
		}
		if event.Organizer.Valid {
			ve.SetOrganizer(event.Organizer.String)
		}
		if event.Status.Valid {
			if status, ok := statusNames[event.Status.String]; ok {
				ve.SetStatus(status)
			}
		}

		var attendees []string
		err := json.Unmarshal([]byte(event.AttendeesJson), &attendees)
		if err == nil {
			for _, attendee := range attendees {
				if strings.TrimSpace(attendee) == "" {
					continue
				}
				ve.AddAttendee(attendee)
			}
		}
	}

	return cal.Serialize()
}
