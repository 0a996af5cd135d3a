package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vbonduro/photographies/internal/domain"
)

const (
	pgSelectColumns   = `id::text, url, public_id, width, height, code, created_at`
	pgUniqueViolation = "23505"
)

// PostgresPhotographyStore persists photography records in Postgres. It
// offers the same contract as PhotographyStore.
type PostgresPhotographyStore struct {
	pool *pgxpool.Pool
}

func NewPostgresPhotographyStore(pool *pgxpool.Pool) *PostgresPhotographyStore {
	return &PostgresPhotographyStore{pool: pool}
}

func (s *PostgresPhotographyStore) Create(ctx context.Context, p *domain.Photography) (*domain.Photography, error) {
	rec := prepare(p)
	_, err := s.pool.Exec(ctx, `
INSERT INTO photographies (id, url, public_id, width, height, code, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`, rec.ID, rec.URL, rec.PublicID, rec.Width, rec.Height, rec.Code, rec.CreatedAt)
	if err != nil {
		return nil, pgInsertError("failed to create photography", err)
	}
	return rec, nil
}

func (s *PostgresPhotographyStore) CreateMany(ctx context.Context, ps []*domain.Photography) ([]*domain.Photography, error) {
	if len(ps) == 0 {
		return nil, nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to begin transaction: %v", domain.ErrPersistence, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	base := time.Now().UTC()
	out := make([]*domain.Photography, 0, len(ps))
	batch := &pgx.Batch{}
	for i, p := range ps {
		rec := prepare(p)
		if p.CreatedAt.IsZero() {
			rec.CreatedAt = base.Add(time.Duration(i) * time.Microsecond)
		}
		batch.Queue(`
INSERT INTO photographies (id, url, public_id, width, height, code, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`, rec.ID, rec.URL, rec.PublicID, rec.Width, rec.Height, rec.Code, rec.CreatedAt)
		out = append(out, rec)
	}

	br := tx.SendBatch(ctx, batch)
	for range out {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return nil, pgInsertError("failed to create photographies", err)
		}
	}
	if err := br.Close(); err != nil {
		return nil, pgInsertError("failed to create photographies", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("%w: failed to commit photographies: %v", domain.ErrPersistence, err)
	}
	return out, nil
}

func (s *PostgresPhotographyStore) ListCodes(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT code FROM photographies`)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list codes: %v", domain.ErrPersistence, err)
	}
	codes, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("%w: failed to scan codes: %v", domain.ErrPersistence, err)
	}
	return codes, nil
}

func (s *PostgresPhotographyStore) List(ctx context.Context, order domain.SortOrder) ([]*domain.Photography, error) {
	dir := "ASC"
	if order == domain.SortDesc {
		dir = "DESC"
	}
	return s.query(ctx, `SELECT `+pgSelectColumns+` FROM photographies ORDER BY created_at `+dir+`, seq `+dir)
}

func (s *PostgresPhotographyStore) ListByIDs(ctx context.Context, ids []string) ([]*domain.Photography, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.query(ctx, `
SELECT `+pgSelectColumns+` FROM photographies
WHERE id = ANY($1::uuid[])
ORDER BY created_at ASC, seq ASC
`, ids)
}

func (s *PostgresPhotographyStore) GetByID(ctx context.Context, id string) (*domain.Photography, error) {
	return s.queryOne(ctx, `SELECT `+pgSelectColumns+` FROM photographies WHERE id = $1`, id)
}

func (s *PostgresPhotographyStore) GetByCode(ctx context.Context, code string) (*domain.Photography, error) {
	return s.queryOne(ctx, `SELECT `+pgSelectColumns+` FROM photographies WHERE lower(code) = lower($1) LIMIT 1`, code)
}

func (s *PostgresPhotographyStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM photographies WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%w: failed to delete photography: %v", domain.ErrPersistence, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *PostgresPhotographyStore) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM photographies WHERE id = ANY($1::uuid[])`, ids)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to delete photographies: %v", domain.ErrPersistence, err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresPhotographyStore) DeleteAll(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM photographies`)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to delete photographies: %v", domain.ErrPersistence, err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresPhotographyStore) query(ctx context.Context, query string, args ...any) ([]*domain.Photography, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list photographies: %v", domain.ErrPersistence, err)
	}
	photographies, err := pgx.CollectRows(rows, scanPhotography)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to scan photographies: %v", domain.ErrPersistence, err)
	}
	return photographies, nil
}

func (s *PostgresPhotographyStore) queryOne(ctx context.Context, query string, args ...any) (*domain.Photography, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get photography: %v", domain.ErrPersistence, err)
	}
	p, err := pgx.CollectOneRow(rows, scanPhotography)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get photography: %v", domain.ErrPersistence, err)
	}
	return p, nil
}

func scanPhotography(row pgx.CollectableRow) (*domain.Photography, error) {
	p := &domain.Photography{}
	if err := row.Scan(&p.ID, &p.URL, &p.PublicID, &p.Width, &p.Height, &p.Code, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return p, nil
}

func pgInsertError(msg string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%s: %w", msg, domain.ErrCodeTaken)
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrPersistence, msg, err)
}
