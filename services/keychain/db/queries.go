package db

import (
	"context"
	"database/sql"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

type Credential struct {
	Source    string
	Username  string
	Secret    string
	UpdatedAt int64
}

const upsertCredential = `
insert into credentials (source, username, secret, updated_at)
values (?, ?, ?, ?)
on conflict (source) do update set
    username = excluded.username,
    secret = excluded.secret,
    updated_at = excluded.updated_at
`

type UpsertCredentialParams struct {
	Source    string
	Username  string
	Secret    string
	UpdatedAt int64
}

func (q *Queries) UpsertCredential(ctx context.Context, arg UpsertCredentialParams) error {
	_, err := q.db.ExecContext(ctx, upsertCredential,
		arg.Source,
		arg.Username,
		arg.Secret,
		arg.UpdatedAt,
	)
	return err
}

const getCredential = `
select source, username, secret, updated_at from credentials where source = ?
`

func (q *Queries) GetCredential(ctx context.Context, source string) (Credential, error) {
	row := q.db.QueryRowContext(ctx, getCredential, source)
	var i Credential
	err := row.Scan(&i.Source, &i.Username, &i.Secret, &i.UpdatedAt)
	return i, err
}

const deleteCredential = `
delete from credentials where source = ?
`

func (q *Queries) DeleteCredential(ctx context.Context, source string) error {
	_, err := q.db.ExecContext(ctx, deleteCredential, source)
	return err
}
