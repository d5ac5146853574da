package importlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pitabwire/marketdesk/model"
)

// Schema creates the history table. It is safe to run on every start.
const Schema = `
CREATE TABLE IF NOT EXISTS import_reports (
	id          UUID PRIMARY KEY,
	subject_id  TEXT NOT NULL,
	file_name   TEXT NOT NULL,
	message     TEXT NOT NULL DEFAULT '',
	inserted    INTEGER NOT NULL,
	skipped     INTEGER NOT NULL,
	errors      JSONB NOT NULL DEFAULT '[]',
	created_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS import_reports_subject_created
	ON import_reports (subject_id, created_at DESC);
`

const uniqueViolation = "23505"

// PgStore is a PostgreSQL-backed Store using pgx/v5.
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// EnsureSchema applies Schema.
func (s *PgStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("importlog: create schema: %w", err)
	}
	return nil
}

func (s *PgStore) Append(ctx context.Context, report model.ImportReport) error {
	errs := report.Errors
	if errs == nil {
		errs = []string{}
	}
	errsJSON, err := json.Marshal(errs)
	if err != nil {
		return fmt.Errorf("importlog: marshal errors: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO import_reports (
			id, subject_id, file_name, message, inserted, skipped, errors, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		report.ID, report.SubjectID, report.FileName, report.Message,
		report.Inserted, report.Skipped, errsJSON, report.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return model.NewConflictError(fmt.Sprintf("import report %q already recorded", report.ID))
	}
	if err != nil {
		return fmt.Errorf("importlog: insert report: %w", err)
	}
	return nil
}

func (s *PgStore) List(ctx context.Context, q Query) (model.ListResult[model.ImportReport], error) {
	q = q.normalized()

	var total int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM import_reports
		WHERE $1 = '' OR subject_id = $1`,
		q.SubjectID,
	).Scan(&total)
	if err != nil {
		return model.ListResult[model.ImportReport]{}, fmt.Errorf("importlog: count reports: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, subject_id, file_name, message, inserted, skipped, errors, created_at
		FROM import_reports
		WHERE $1 = '' OR subject_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		q.SubjectID, q.PageSize, (q.Page-1)*q.PageSize,
	)
	if err != nil {
		return model.ListResult[model.ImportReport]{}, fmt.Errorf("importlog: query reports: %w", err)
	}

	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.ImportReport, error) {
		var r model.ImportReport
		var errsJSON []byte
		if err := row.Scan(&r.ID, &r.SubjectID, &r.FileName, &r.Message,
			&r.Inserted, &r.Skipped, &errsJSON, &r.CreatedAt); err != nil {
			return r, err
		}
		if err := json.Unmarshal(errsJSON, &r.Errors); err != nil {
			return r, fmt.Errorf("unmarshal errors: %w", err)
		}
		return r, nil
	})
	if err != nil {
		return model.ListResult[model.ImportReport]{}, fmt.Errorf("importlog: scan reports: %w", err)
	}
	if items == nil {
		items = []model.ImportReport{}
	}

	return model.ListResult[model.ImportReport]{
		Items:      items,
		Page:       q.Page,
		PageSize:   q.PageSize,
		TotalItems: total,
		TotalPages: model.TotalPagesFor(total, q.PageSize),
	}, nil
}

// HealthCheck pings the database.
func (s *PgStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
