// Package sync orchestrates one full ingestion pass: load credentials,
// authenticate against the portal, fetch raw data, and store it in the
// ingestion ledger. Normalization into canonical events runs as its own
// re-runnable pass.
package sync

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"schoolsync-backend/lib/scrapers/compass"
	"schoolsync-backend/lib/scrapers/compass/parse"
	"schoolsync-backend/lib/timezone"
	"schoolsync-backend/services/ingest"
	"schoolsync-backend/services/keychain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("services/sync")

type Options struct {
	AdapterID   string
	BaseUrl     string
	Mode        compass.Mode
	Browser     compass.BrowserOptions
	MockDataDir string

	// fetch window relative to today
	DaysPast   int
	DaysFuture int
	Limit      int
}

func (o Options) withDefaults() Options {
	if o.AdapterID == "" {
		o.AdapterID = "compass"
	}
	if o.DaysPast == 0 {
		o.DaysPast = 7
	}
	if o.DaysFuture == 0 {
		o.DaysFuture = 30
	}
	if o.Limit == 0 {
		o.Limit = 500
	}
	return o
}

type Service struct {
	opts     Options
	keychain keychain.Service
	store    ingest.Service
}

func NewService(opts Options, keychainSvc keychain.Service, store ingest.Service) Service {
	return Service{
		opts:     opts.withDefaults(),
		keychain: keychainSvc,
		store:    store,
	}
}

type fetchWindow struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Limit int    `json:"limit"`
}

// Sync runs one serial login, fetch and store pass.
func (s Service) Sync(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Sync")
	defer span.End()

	span.SetAttributes(attribute.String("adapter_id", s.opts.AdapterID))

	username, secret, err := s.keychain.Load(ctx, s.opts.AdapterID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	client, err := compass.NewClient(ctx, compass.Options{
		BaseUrl:     s.opts.BaseUrl,
		Credentials: compass.Credentials{Username: username, Password: secret},
		Mode:        s.opts.Mode,
		Browser:     s.opts.Browser,
		MockDataDir: s.opts.MockDataDir,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	defer client.Close(ctx)

	err = client.Login(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	err = s.syncCalendar(ctx, client)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	err = s.syncUserDetails(ctx, client)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (s Service) syncCalendar(ctx context.Context, client compass.Client) error {
	ctx, span := tracer.Start(ctx, "syncCalendar")
	defer span.End()

	start, end := timezone.DayRange(timezone.Now(), s.opts.DaysPast, s.opts.DaysFuture)

	items, err := client.GetCalendarEvents(ctx, start, end, s.opts.Limit)
	if err != nil {
		return err
	}
	if s.opts.Limit > 0 && len(items) > s.opts.Limit {
		// the limit is only a hint upstream; never truncate silently
		slog.WarnContext(ctx, "upstream exceeded requested limit",
			"limit", s.opts.Limit, "got", len(items))
	}

	var payloads []ingest.Payload
	skipped := 0
	for i, raw := range items {
		event, err := parse.Object[parse.Event](raw)
		if err != nil {
			slog.WarnContext(ctx, "skipping invalid calendar item",
				"index", i, "err", err)
			skipped++
			continue
		}
		payloads = append(payloads, ingest.Payload{
			ExternalID: ingest.EventExternalID(event),
			Raw:        raw,
		})
	}

	batch, err := s.store.BeginBatch(ctx, s.opts.AdapterID, ingest.MethodCalendarEvents, fetchWindow{
		Start: start.Format(time.RFC3339),
		End:   end.Format(time.RFC3339),
		Limit: s.opts.Limit,
	})
	if err != nil {
		return err
	}
	err = s.store.StorePayloads(ctx, batch, payloads)
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "stored calendar batch",
		"batch_id", batch.ID, "stored", len(payloads), "skipped", skipped)
	return nil
}

func (s Service) syncUserDetails(ctx context.Context, client compass.Client) error {
	ctx, span := tracer.Start(ctx, "syncUserDetails")
	defer span.End()

	blob, err := client.GetUserDetails(ctx, 0)
	if err != nil {
		return err
	}

	user, err := parse.Object[parse.User](blob)
	if err != nil {
		slog.WarnContext(ctx, "user details blob failed validation", "err", err)
		return nil
	}

	batch, err := s.store.BeginBatch(ctx, s.opts.AdapterID, ingest.MethodUserDetails, map[string]any{})
	if err != nil {
		return err
	}
	err = s.store.StorePayloads(ctx, batch, []ingest.Payload{{
		ExternalID: strconv.FormatInt(user.UserId, 10),
		Raw:        json.RawMessage(blob),
	}})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "stored user details batch", "batch_id", batch.ID)
	return nil
}

// Process runs the normalization pass over everything the ledger holds for
// this adapter.
func (s Service) Process(ctx context.Context) (ingest.Report, error) {
	ctx, span := tracer.Start(ctx, "Process")
	defer span.End()

	report, err := s.store.ProcessOnce(ctx, s.opts.AdapterID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ingest.Report{}, err
	}
	slog.InfoContext(ctx, "normalization pass finished",
		"created", report.Created, "updated", report.Updated, "errors", report.Errors)
	return report, nil
}
