// Package keychain is the credential vault. The sync layer only asks it
// for the secret at login time; nothing else reads it.
package keychain

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"schoolsync-backend/services/keychain/db"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("services/keychain")

var ErrNotFound = errors.New("no credentials stored for source")

type Service struct {
	db  *sql.DB
	qry *db.Queries
}

func NewService(database *sql.DB) Service {
	return Service{
		db:  database,
		qry: db.New(database),
	}
}

func (s Service) Save(ctx context.Context, source, username, secret string) error {
	ctx, span := tracer.Start(ctx, "Save")
	defer span.End()

	span.SetAttributes(attribute.String("source", source))

	err := s.qry.UpsertCredential(ctx, db.UpsertCredentialParams{
		Source:    source,
		Username:  username,
		Secret:    secret,
		UpdatedAt: time.Now().Unix(),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (s Service) Load(ctx context.Context, source string) (username, secret string, err error) {
	ctx, span := tracer.Start(ctx, "Load")
	defer span.End()

	span.SetAttributes(attribute.String("source", source))

	cred, err := s.qry.GetCredential(ctx, source)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", "", err
	}
	return cred.Username, cred.Secret, nil
}

func (s Service) Delete(ctx context.Context, source string) error {
	ctx, span := tracer.Start(ctx, "Delete")
	defer span.End()

	err := s.qry.DeleteCredential(ctx, source)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}
