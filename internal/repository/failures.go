package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/joseph-ayodele/resume-ingest/constants"
	"github.com/joseph-ayodele/resume-ingest/internal/common"
	"github.com/joseph-ayodele/resume-ingest/internal/entity"
)

// FailureStore persists failure records in sqlite.
type FailureStore struct {
	db *sql.DB
}

func NewFailureStore(db *sql.DB) *FailureStore {
	return &FailureStore{db: db}
}

// Save upserts rec by id.
func (s *FailureStore) Save(ctx context.Context, rec entity.FailureRecord) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO failures (id, item_id, display_name, error_kind, error_message, source_uri, retry_count, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	error_kind = excluded.error_kind,
	error_message = excluded.error_message,
	source_uri = excluded.source_uri,
	retry_count = excluded.retry_count,
	updated_at = excluded.updated_at`,
		rec.ID, rec.ItemID, rec.DisplayName, string(rec.ErrorKind), rec.ErrorMessage,
		rec.SourceURI(), rec.RetryCount, rec.CreatedAt.UnixMilli(), rec.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("%w: save failure %s: %v", common.ErrDatabase, rec.ID, err)
	}
	return nil
}

func (s *FailureStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM failures WHERE id = ?`, id); err != nil {
		return fmt.Errorf("%w: delete failure %s: %v", common.ErrDatabase, id, err)
	}
	return nil
}

func (s *FailureStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM failures`); err != nil {
		return fmt.Errorf("%w: clear failures: %v", common.ErrDatabase, err)
	}
	return nil
}

// Load returns every stored record, oldest first.
func (s *FailureStore) Load(ctx context.Context) ([]entity.FailureRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, item_id, display_name, error_kind, error_message, source_uri, retry_count, created_at, updated_at
FROM failures ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("%w: load failures: %v", common.ErrDatabase, err)
	}
	defer func() { _ = rows.Close() }()

	var out []entity.FailureRecord
	for rows.Next() {
		var (
			rec                  entity.FailureRecord
			kind, uri            string
			createdAt, updatedAt int64
		)
		if err := rows.Scan(&rec.ID, &rec.ItemID, &rec.DisplayName, &kind, &rec.ErrorMessage,
			&uri, &rec.RetryCount, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan failure: %v", common.ErrDatabase, err)
		}
		rec.ErrorKind = constants.ParseErrorKind(kind)
		rec.Source = entity.SourceFromURI(uri, rec.DisplayName)
		rec.CreatedAt = time.UnixMilli(createdAt).UTC()
		rec.UpdatedAt = time.UnixMilli(updatedAt).UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate failures: %v", common.ErrDatabase, err)
	}
	return out, nil
}
