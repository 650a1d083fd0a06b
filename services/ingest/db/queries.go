package db

import (
	"context"
	"database/sql"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type Batch struct {
	ID             string
	AdapterID      string
	MethodName     string
	ParametersJson string
	CreatedAt      int64
}

type RawPayload struct {
	ID          string
	AdapterID   string
	MethodName  string
	BatchID     string
	ExternalID  string
	PayloadJson string
	CreatedAt   int64
	UpdatedAt   int64
}

type CanonicalEvent struct {
	ID              string
	OriginPayloadID string
	Title           string
	StartAt         int64
	EndAt           int64
	Description     sql.NullString
	Location        sql.NullString
	AllDay          bool
	Organizer       sql.NullString
	AttendeesJson   string
	Status          sql.NullString
	CreatedAt       int64
	UpdatedAt       int64
}

const createBatch = `
insert into batches (id, adapter_id, method_name, parameters_json, created_at)
values (?, ?, ?, ?, ?)
`

type CreateBatchParams struct {
	ID             string
	AdapterID      string
	MethodName     string
	ParametersJson string
	CreatedAt      int64
}

func (q *Queries) CreateBatch(ctx context.Context, arg CreateBatchParams) error {
	_, err := q.db.ExecContext(ctx, createBatch,
		arg.ID,
		arg.AdapterID,
		arg.MethodName,
		arg.ParametersJson,
		arg.CreatedAt,
	)
	return err
}

const getLatestBatch = `
select id, adapter_id, method_name, parameters_json, created_at from batches
where adapter_id = ? and method_name = ?
order by created_at desc limit 1
`

type GetLatestBatchParams struct {
	AdapterID  string
	MethodName string
}

func (q *Queries) GetLatestBatch(ctx context.Context, arg GetLatestBatchParams) (Batch, error) {
	row := q.db.QueryRowContext(ctx, getLatestBatch, arg.AdapterID, arg.MethodName)
	var i Batch
	err := row.Scan(
		&i.ID,
		&i.AdapterID,
		&i.MethodName,
		&i.ParametersJson,
		&i.CreatedAt,
	)
	return i, err
}

const deleteBatch = `
delete from batches where id = ?
`

func (q *Queries) DeleteBatch(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, deleteBatch, id)
	return err
}

const upsertRawPayload = `
insert into raw_payloads (id, adapter_id, method_name, batch_id, external_id, payload_json, created_at, updated_at)
values (?, ?, ?, ?, ?, ?, ?, ?)
on conflict (adapter_id, method_name, external_id) do update set
    payload_json = excluded.payload_json,
    batch_id = excluded.batch_id,
    updated_at = excluded.updated_at
`

type UpsertRawPayloadParams struct {
	ID          string
	AdapterID   string
	MethodName  string
	BatchID     string
	ExternalID  string
	PayloadJson string
	CreatedAt   int64
	UpdatedAt   int64
}

func (q *Queries) UpsertRawPayload(ctx context.Context, arg UpsertRawPayloadParams) error {
	_, err := q.db.ExecContext(ctx, upsertRawPayload,
		arg.ID,
		arg.AdapterID,
		arg.MethodName,
		arg.BatchID,
		arg.ExternalID,
		arg.PayloadJson,
		arg.CreatedAt,
		arg.UpdatedAt,
	)
	return err
}

const getRawPayload = `
select id, adapter_id, method_name, batch_id, external_id, payload_json, created_at, updated_at
from raw_payloads where id = ?
`

func (q *Queries) GetRawPayload(ctx context.Context, id string) (RawPayload, error) {
	row := q.db.QueryRowContext(ctx, getRawPayload, id)
	var i RawPayload
	err := row.Scan(
		&i.ID,
		&i.AdapterID,
		&i.MethodName,
		&i.BatchID,
		&i.ExternalID,
		&i.PayloadJson,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const listPayloadsByBatch = `
select id, adapter_id, method_name, batch_id, external_id, payload_json, created_at, updated_at
from raw_payloads where batch_id = ?
order by created_at, id
`

func (q *Queries) ListPayloadsByBatch(ctx context.Context, batchID string) ([]RawPayload, error) {
	rows, err := q.db.QueryContext(ctx, listPayloadsByBatch, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []RawPayload
	for rows.Next() {
		var i RawPayload
		err := rows.Scan(
			&i.ID,
			&i.AdapterID,
			&i.MethodName,
			&i.BatchID,
			&i.ExternalID,
			&i.PayloadJson,
			&i.CreatedAt,
			&i.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const listPayloadsByMethod = `
select id, adapter_id, method_name, batch_id, external_id, payload_json, created_at, updated_at
from raw_payloads where adapter_id = ? and method_name = ?
order by created_at, id
`

type ListPayloadsByMethodParams struct {
	AdapterID  string
	MethodName string
}

func (q *Queries) ListPayloadsByMethod(ctx context.Context, arg ListPayloadsByMethodParams) ([]RawPayload, error) {
	rows, err := q.db.QueryContext(ctx, listPayloadsByMethod, arg.AdapterID, arg.MethodName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []RawPayload
	for rows.Next() {
		var i RawPayload
		err := rows.Scan(
			&i.ID,
			&i.AdapterID,
			&i.MethodName,
			&i.BatchID,
			&i.ExternalID,
			&i.PayloadJson,
			&i.CreatedAt,
			&i.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const getCanonicalEventByOrigin = `
select id, origin_payload_id, title, start_at, end_at, description, location, all_day, organizer, attendees_json, status, created_at, updated_at
from canonical_events where origin_payload_id = ?
`

func (q *Queries) GetCanonicalEventByOrigin(ctx context.Context, originPayloadID string) (CanonicalEvent, error) {
	row := q.db.QueryRowContext(ctx, getCanonicalEventByOrigin, originPayloadID)
	var i CanonicalEvent
	err := row.Scan(
		&i.ID,
		&i.OriginPayloadID,
		&i.Title,
		&i.StartAt,
		&i.EndAt,
		&i.Description,
		&i.Location,
		&i.AllDay,
		&i.Organizer,
		&i.AttendeesJson,
		&i.Status,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const createCanonicalEvent = `
insert into canonical_events (id, origin_payload_id, title, start_at, end_at, description, location, all_day, organizer, attendees_json, status, created_at, updated_at)
values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

type CreateCanonicalEventParams struct {
	ID              string
	OriginPayloadID string
	Title           string
	StartAt         int64
	EndAt           int64
	Description     sql.NullString
	Location        sql.NullString
	AllDay          bool
	Organizer       sql.NullString
	AttendeesJson   string
	Status          sql.NullString
	CreatedAt       int64
	UpdatedAt       int64
}

func (q *Queries) CreateCanonicalEvent(ctx context.Context, arg CreateCanonicalEventParams) error {
	_, err := q.db.ExecContext(ctx, createCanonicalEvent,
		arg.ID,
		arg.OriginPayloadID,
		arg.Title,
		arg.StartAt,
		arg.EndAt,
		arg.Description,
		arg.Location,
		arg.AllDay,
		arg.Organizer,
		arg.AttendeesJson,
		arg.Status,
		arg.CreatedAt,
		arg.UpdatedAt,
	)
	return err
}

const updateCanonicalEvent = `
update canonical_events set
    title = ?,
    start_at = ?,
    end_at = ?,
    description = ?,
    location = ?,
    all_day = ?,
    organizer = ?,
    attendees_json = ?,
    status = ?,
    updated_at = ?
where origin_payload_id = ?
`

type UpdateCanonicalEventParams struct {
	Title           string
	StartAt         int64
	EndAt           int64
	Description     sql.NullString
	Location        sql.NullString
	AllDay          bool
	Organizer       sql.NullString
	AttendeesJson   string
	Status          sql.NullString
	UpdatedAt       int64
	OriginPayloadID string
}

func (q *Queries) UpdateCanonicalEvent(ctx context.Context, arg UpdateCanonicalEventParams) error {
	_, err := q.db.ExecContext(ctx, updateCanonicalEvent,
		arg.Title,
		arg.StartAt,
		arg.EndAt,
		arg.Description,
		arg.Location,
		arg.AllDay,
		arg.Organizer,
		arg.AttendeesJson,
		arg.Status,
		arg.UpdatedAt,
		arg.OriginPayloadID,
	)
	return err
}

const listCanonicalEvents = `
select id, origin_payload_id, title, start_at, end_at, description, location, all_day, organizer, attendees_json, status, created_at, updated_at
from canonical_events
order by start_at, id
`

func (q *Queries) ListCanonicalEvents(ctx context.Context) ([]CanonicalEvent, error) {
	rows, err := q.db.QueryContext(ctx, listCanonicalEvents)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []CanonicalEvent
	for rows.Next() {
		var i CanonicalEvent
		err := rows.Scan(
			&i.ID,
			&i.OriginPayloadID,
			&i.Title,
			&i.StartAt,
			&i.EndAt,
			&i.Description,
			&i.Location,
			&i.AllDay,
			&i.Organizer,
			&i.AttendeesJson,
			&i.Status,
			&i.CreatedAt,
			&i.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}
