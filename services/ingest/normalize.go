package ingest

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"schoolsync-backend/lib/scrapers/compass/parse"
	"schoolsync-backend/services/ingest/db"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Report summarizes one normalization pass.
type Report struct {
	Created int
	Updated int
	Errors  int
}

var statusNames = map[int64]string{
	0: "Scheduled",
	1: "Cancelled",
	2: "Postponed",
}

// derived holds the canonical fields projected from one validated event.
// Splitting derivation from persistence keeps the projection testable on
// its own.
type derived struct {
	Title         string
	StartAt       int64
	EndAt         int64
	Description   sql.NullString
	Location      sql.NullString
	AllDay        bool
	Organizer     sql.NullString
	AttendeesJson string
	Status        sql.NullString
}

func deriveEvent(event parse.Event) (derived, error) {
	// an empty flat location reads as absent, unlike an empty description
	var location sql.NullString
	switch {
	case event.Location.Ok && event.Location.Value != "":
		location = sql.NullString{String: event.Location.Value, Valid: true}
	case len(event.Locations) > 0:
		location = sql.NullString{String: event.Locations[0].LocationName, Valid: true}
	}

	// unknown codes mean "no status", not a bad item
	var status sql.NullString
	if name, ok := statusNames[event.RunningStatus]; ok {
		status = sql.NullString{String: name, Valid: true}
	}

	var organizer sql.NullString
	attendees := []string{}
	for _, manager := range event.Managers {
		if !manager.ManagerImportId.Ok {
			continue
		}
		name := manager.ManagerImportId.Value
		if !organizer.Valid {
			organizer = sql.NullString{String: name, Valid: true}
		}
		attendees = append(attendees, name)
	}
	attendeesJson, err := json.Marshal(attendees)
	if err != nil {
		return derived{}, err
	}

	return derived{
		Title:   event.Title,
		StartAt: event.Start.Unix(),
		EndAt:   event.Finish.Unix(),
		// an empty description stays an empty string, absence and
		// emptiness are different facts
		Description:   sql.NullString{String: event.Description, Valid: true},
		Location:      location,
		AllDay:        event.AllDay,
		Organizer:     organizer,
		AttendeesJson: string(attendeesJson),
		Status:        status,
	}, nil
}

// ProcessOnce projects every stored calendar payload for the adapter into
// its canonical event, creating or updating by origin payload id. One bad
// payload increments the error count and never aborts the run.
func (s Service) ProcessOnce(ctx context.Context, adapterID string) (Report, error) {
	ctx, span := tracer.Start(ctx, "ProcessOnce")
	defer span.End()

	span.SetAttributes(attribute.String("adapter_id", adapterID))

	payloads, err := s.qry.ListPayloadsByMethod(ctx, db.ListPayloadsByMethodParams{
		AdapterID:  adapterID,
		MethodName: MethodCalendarEvents,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Report{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Report{}, err
	}
	defer tx.Rollback()
	txqry := s.qry.WithTx(tx)

	var report Report
	for _, payload := range payloads {
		event, err := parse.Object[parse.Event](json.RawMessage(payload.PayloadJson))
		if err != nil {
			slog.WarnContext(ctx, "skipping invalid payload",
				"payload_id", payload.ID, "err", err)
			report.Errors++
			continue
		}

		fields, err := deriveEvent(event)
		if err != nil {
			slog.WarnContext(ctx, "skipping underivable payload",
				"payload_id", payload.ID, "err", err)
			report.Errors++
			continue
		}

		now := time.Now().Unix()
		_, err = txqry.GetCanonicalEventByOrigin(ctx, payload.ID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			err = txqry.CreateCanonicalEvent(ctx, db.CreateCanonicalEventParams{
				ID:              newID(),
				OriginPayloadID: payload.ID,
				Title:           fields.Title,
				StartAt:         fields.StartAt,
				EndAt:           fields.EndAt,
				Description:     fields.Description,
				Location:        fields.Location,
				AllDay:          fields.AllDay,
				Organizer:       fields.Organizer,
				AttendeesJson:   fields.AttendeesJson,
				Status:          fields.Status,
				CreatedAt:       now,
				UpdatedAt:       now,
			})
			if err == nil {
				report.Created++
			}
		case err == nil:
			err = txqry.UpdateCanonicalEvent(ctx, db.UpdateCanonicalEventParams{
				Title:           fields.Title,
				StartAt:         fields.StartAt,
				EndAt:           fields.EndAt,
				Description:     fields.Description,
				Location:        fields.Location,
				AllDay:          fields.AllDay,
				Organizer:       fields.Organizer,
				AttendeesJson:   fields.AttendeesJson,
				Status:          fields.Status,
				UpdatedAt:       now,
				OriginPayloadID: payload.ID,
			})
			if err == nil {
				report.Updated++
			}
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return Report{}, err
		}
	}

	err = tx.Commit()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Report{}, err
	}

	span.SetAttributes(
		attribute.Int("created", report.Created),
		attribute.Int("updated", report.Updated),
		attribute.Int("errors", report.Errors),
	)
	return report, nil
}
