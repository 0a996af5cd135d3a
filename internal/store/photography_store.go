package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/vbonduro/photographies/internal/domain"
)

const photographyColumns = `id, url, public_id, width, height, code, created_at`

// PhotographyStore persists photography records in SQLite.
type PhotographyStore struct {
	db *sql.DB
}

func NewPhotographyStore(db *sql.DB) *PhotographyStore {
	return &PhotographyStore{db: db}
}

func (s *PhotographyStore) Create(ctx context.Context, p *domain.Photography) (*domain.Photography, error) {
	rec := prepare(p)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO photographies (`+photographyColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.URL, rec.PublicID, rec.Width, rec.Height, rec.Code, rec.CreatedAt)
	if err != nil {
		return nil, insertError("failed to create photography", err)
	}
	return rec, nil
}

// CreateMany inserts every record in one transaction; either all rows are
// stored or none are.
func (s *PhotographyStore) CreateMany(ctx context.Context, ps []*domain.Photography) ([]*domain.Photography, error) {
	if len(ps) == 0 {
		return nil, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to begin transaction: %v", domain.ErrPersistence, err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO photographies (`+photographyColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to prepare insert: %v", domain.ErrPersistence, err)
	}
	defer stmt.Close()

	base := time.Now().UTC()
	out := make([]*domain.Photography, 0, len(ps))
	for i, p := range ps {
		rec := prepare(p)
		if p.CreatedAt.IsZero() {
			// Keep batch members ordered by their position.
			rec.CreatedAt = base.Add(time.Duration(i) * time.Microsecond)
		}
		if _, err := stmt.ExecContext(ctx, rec.ID, rec.URL, rec.PublicID, rec.Width, rec.Height, rec.Code, rec.CreatedAt); err != nil {
			return nil, insertError("failed to create photographies", err)
		}
		out = append(out, rec)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: failed to commit photographies: %v", domain.ErrPersistence, err)
	}
	return out, nil
}

func (s *PhotographyStore) ListCodes(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT code FROM photographies`)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list codes: %v", domain.ErrPersistence, err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("%w: failed to scan code: %v", domain.ErrPersistence, err)
		}
		codes = append(codes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: error iterating codes: %v", domain.ErrPersistence, err)
	}
	return codes, nil
}

func (s *PhotographyStore) List(ctx context.Context, order domain.SortOrder) ([]*domain.Photography, error) {
	dir := "ASC"
	if order == domain.SortDesc {
		dir = "DESC"
	}
	return s.query(ctx, `
		SELECT `+photographyColumns+` FROM photographies ORDER BY created_at `+dir+`, rowid `+dir)
}

func (s *PhotographyStore) ListByIDs(ctx context.Context, ids []string) ([]*domain.Photography, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return s.query(ctx, `
		SELECT `+photographyColumns+` FROM photographies
		WHERE id IN (`+placeholders(len(ids))+`) ORDER BY created_at ASC, rowid ASC
	`, args...)
}

func (s *PhotographyStore) GetByID(ctx context.Context, id string) (*domain.Photography, error) {
	return s.queryOne(ctx, `SELECT `+photographyColumns+` FROM photographies WHERE id = ?`, id)
}

// GetByCode matches case-insensitively through the column's NOCASE collation.
func (s *PhotographyStore) GetByCode(ctx context.Context, code string) (*domain.Photography, error) {
	return s.queryOne(ctx, `SELECT `+photographyColumns+` FROM photographies WHERE code = ? LIMIT 1`, code)
}

func (s *PhotographyStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM photographies WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("%w: failed to delete photography: %v", domain.ErrPersistence, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: failed to get rows affected: %v", domain.ErrPersistence, err)
	}
	if rowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *PhotographyStore) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	result, err := s.db.ExecContext(ctx, `DELETE FROM photographies WHERE id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to delete photographies: %v", domain.ErrPersistence, err)
	}
	return rowsAffected(result)
}

func (s *PhotographyStore) DeleteAll(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM photographies`)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to delete photographies: %v", domain.ErrPersistence, err)
	}
	return rowsAffected(result)
}

func (s *PhotographyStore) query(ctx context.Context, query string, args ...any) ([]*domain.Photography, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list photographies: %v", domain.ErrPersistence, err)
	}
	defer rows.Close()

	photographies := []*domain.Photography{}
	for rows.Next() {
		p := &domain.Photography{}
		if err := rows.Scan(&p.ID, &p.URL, &p.PublicID, &p.Width, &p.Height, &p.Code, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: failed to scan photography: %v", domain.ErrPersistence, err)
		}
		photographies = append(photographies, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: error iterating photographies: %v", domain.ErrPersistence, err)
	}
	return photographies, nil
}

func (s *PhotographyStore) queryOne(ctx context.Context, query string, args ...any) (*domain.Photography, error) {
	p := &domain.Photography{}
	err := s.db.QueryRowContext(ctx, query, args...).
		Scan(&p.ID, &p.URL, &p.PublicID, &p.Width, &p.Height, &p.Code, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get photography: %v", domain.ErrPersistence, err)
	}
	return p, nil
}

// prepare copies p and fills the store-assigned fields.
func prepare(p *domain.Photography) *domain.Photography {
	rec := *p
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	return &rec
}

func insertError(msg string, err error) error {
	var se *sqlite.Error
	if errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return fmt.Errorf("%s: %w", msg, domain.ErrCodeTaken)
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrPersistence, msg, err)
}

func rowsAffected(result sql.Result) (int64, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: failed to get rows affected: %v", domain.ErrPersistence, err)
	}
	return n, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
