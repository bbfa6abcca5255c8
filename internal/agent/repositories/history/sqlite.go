package history

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/syncagent/internal/dbx"
	"github.com/google/uuid"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Insert(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO sync_history (id, target, kind, succeeded, status, message, error_kind, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.Target, rec.Kind, rec.Succeeded, rec.Status, rec.Message, rec.ErrorKind, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert sync history: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ListRecent(ctx context.Context, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, target, kind, succeeded, status, message, error_kind, created_at
			FROM sync_history ORDER BY created_at DESC, rowid DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync history: %w", err)
	}
	defer rows.Close()

	var result []*Record
	for rows.Next() {
		rec := &Record{}
		if err := rows.Scan(&rec.ID, &rec.Target, &rec.Kind, &rec.Succeeded, &rec.Status,
			&rec.Message, &rec.ErrorKind, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sync history row: %w", err)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sync history rows: %w", err)
	}
	return result, nil
}
