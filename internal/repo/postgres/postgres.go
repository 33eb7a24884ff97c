package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hamed0406/servicepoller/internal/domain"
	"github.com/hamed0406/servicepoller/internal/repo"
)

var _ repo.Store = (*Store)(nil)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS services (
  id     TEXT PRIMARY KEY,
  url    TEXT NOT NULL,
  name   TEXT NOT NULL,
  added  TIMESTAMPTZ NOT NULL DEFAULT now(),
  status TEXT NOT NULL DEFAULT 'UNKNOWN'
);
`

type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func New(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Store{pool: pool, log: log}, nil
}

// Migrate creates the services table if it is missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func (s *Store) Create(ctx context.Context, e *domain.Endpoint) error {
	e.ID = domain.EndpointID(uuid.NewString())
	if e.Added.IsZero() {
		e.Added = time.Now().UTC()
	}
	if e.Name == "" {
		e.Name = domain.DefaultName
	}
	e.Status = domain.StatusUnknown

	_, err := s.pool.Exec(ctx,
		`INSERT INTO services (id, url, name, added, status)
		 VALUES ($1, $2, $3, $4, $5)`,
		string(e.ID), e.URL, e.Name, e.Added, e.Status.String(),
	)
	if err != nil {
		return &repo.StoreError{Op: "create", ID: e.ID, Err: err}
	}
	return nil
}

func (s *Store) ListAll(ctx context.Context) ([]domain.Endpoint, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, url, name, added, status
		   FROM services
		  ORDER BY added, id`)
	if err != nil {
		return nil, &repo.StoreError{Op: "list", Err: err}
	}
	defer rows.Close()

	var out []domain.Endpoint
	for rows.Next() {
		var (
			id     string
			url    string
			name   string
			added  time.Time
			status string
		)
		if err := rows.Scan(&id, &url, &name, &added, &status); err != nil {
			return nil, &repo.StoreError{Op: "list", Err: fmt.Errorf("scan service: %w", err)}
		}
		st, err := domain.ParseStatus(status)
		if err != nil {
			return nil, &repo.StoreError{Op: "list", ID: domain.EndpointID(id), Err: err}
		}
		out = append(out, domain.Endpoint{
			ID:     domain.EndpointID(id),
			URL:    url,
			Name:   name,
			Added:  added.UTC(),
			Status: st,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, &repo.StoreError{Op: "list", Err: err}
	}
	return out, nil
}

func (s *Store) WriteStatus(ctx context.Context, id domain.EndpointID, status domain.Status) error {
	if !status.Valid() {
		return &repo.StoreError{Op: "write_status", ID: id, Err: domain.ErrInvalidStatus}
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE services SET status = $1 WHERE id = $2`,
		status.String(), string(id),
	)
	if err != nil {
		return &repo.StoreError{Op: "write_status", ID: id, Err: err}
	}
	if tag.RowsAffected() == 0 {
		return &repo.StoreError{Op: "write_status", ID: id, Err: repo.ErrNotFound}
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id domain.EndpointID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM services WHERE id = $1`, string(id))
	if err != nil {
		return &repo.StoreError{Op: "delete", ID: id, Err: err}
	}
	if tag.RowsAffected() == 0 {
		s.log.Debug("postgres_delete_noop", zap.String("endpoint_id", string(id)))
	}
	return nil
}
