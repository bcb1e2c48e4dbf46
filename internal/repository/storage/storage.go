package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/trunov/thumbnailer/internal/entities"
)

type dbStorage struct {
	dbpool *pgxpool.Pool
}

// New connects to the queue database. schema becomes the search_path so the
// queue table can live next to other services' tables.
func New(ctx context.Context, databaseDSN, schema string, maxConns int32) (*dbStorage, error) {
	cfg, err := pgxpool.ParseConfig(databaseDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	if schema != "" {
		cfg.ConnConfig.RuntimeParams["search_path"] = schema
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	return &dbStorage{dbpool: pool}, nil
}

func (s *dbStorage) Ping(ctx context.Context) error {
	return s.dbpool.Ping(ctx)
}

func (s *dbStorage) Close() {
	s.dbpool.Close()
}

// Next returns the oldest pending request, or nil when there is none.
func (s *dbStorage) Next(ctx context.Context) (*entities.ThumbnailRequest, error) {
	const q = `
		SELECT id, workspace_id, object_id, object_class, thumbnail_id, created_at
		FROM thumbnail_requests
		ORDER BY id
		LIMIT 1`

	var r entities.ThumbnailRequest
	err := s.dbpool.QueryRow(ctx, q).Scan(&r.ID, &r.Workspace, &r.ObjectID, &r.ObjectClass, &r.ThumbnailID, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select next request: %w", err)
	}
	return &r, nil
}

func (s *dbStorage) Delete(ctx context.Context, id int64) error {
	if _, err := s.dbpool.Exec(ctx, `DELETE FROM thumbnail_requests WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete request %d: %w", id, err)
	}
	return nil
}

// Enqueue inserts req unless a request for the same thumbnail document is
// already pending. The check is best effort: there is no unique constraint.
func (s *dbStorage) Enqueue(ctx context.Context, req entities.ThumbnailRequest) (bool, error) {
	const q = `
		INSERT INTO thumbnail_requests (workspace_id, object_id, object_class, thumbnail_id)
		SELECT $1, $2, $3, $4
		WHERE NOT EXISTS (
			SELECT 1 FROM thumbnail_requests WHERE workspace_id = $1 AND thumbnail_id = $4
		)`

	tag, err := s.dbpool.Exec(ctx, q, req.Workspace, req.ObjectID, req.ObjectClass, req.ThumbnailID)
	if err != nil {
		return false, fmt.Errorf("insert request: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
