package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbonduro/photographies/internal/db"
	"github.com/vbonduro/photographies/internal/domain"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	d, err := db.OpenForTesting()
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func newPhotography(code string) *domain.Photography {
	return &domain.Photography{
		URL:      "https://media.example.com/" + code + ".jpg",
		PublicID: "photographies/" + code,
		Width:    640,
		Height:   480,
		Code:     code,
	}
}

func TestPhotographyStoreCreate(t *testing.T) {
	store := NewPhotographyStore(openTestDB(t))
	ctx := context.Background()

	p, err := store.Create(ctx, newPhotography("AB1"))
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.False(t, p.CreatedAt.IsZero())

	got, err := store.GetByID(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, "AB1", got.Code)
	assert.Equal(t, "photographies/AB1", got.PublicID)
	assert.Equal(t, 640, got.Width)
	assert.Equal(t, 480, got.Height)
	assert.WithinDuration(t, p.CreatedAt, got.CreatedAt, time.Millisecond)
}

func TestPhotographyStoreCreate_DuplicateCodeIgnoresCase(t *testing.T) {
	store := NewPhotographyStore(openTestDB(t))
	ctx := context.Background()

	_, err := store.Create(ctx, newPhotography("AbC"))
	require.NoError(t, err)

	_, err = store.Create(ctx, newPhotography("abc"))
	require.ErrorIs(t, err, domain.ErrCodeTaken)
	assert.ErrorIs(t, err, domain.ErrPersistence)
}

func TestPhotographyStoreCreateMany(t *testing.T) {
	store := NewPhotographyStore(openTestDB(t))
	ctx := context.Background()

	created, err := store.CreateMany(ctx, []*domain.Photography{
		newPhotography("AAA"), newPhotography("BBB"), newPhotography("CCC"),
	})
	require.NoError(t, err)
	require.Len(t, created, 3)

	all, err := store.List(ctx, domain.SortAsc)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"AAA", "BBB", "CCC"}, codesOf(all))
}

func TestPhotographyStoreCreateMany_IsAtomic(t *testing.T) {
	store := NewPhotographyStore(openTestDB(t))
	ctx := context.Background()

	_, err := store.Create(ctx, newPhotography("DUP"))
	require.NoError(t, err)

	_, err = store.CreateMany(ctx, []*domain.Photography{newPhotography("NEW"), newPhotography("dup")})
	require.ErrorIs(t, err, domain.ErrCodeTaken)

	codes, err := store.ListCodes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"DUP"}, codes)
}

func TestPhotographyStoreListOrder(t *testing.T) {
	store := NewPhotographyStore(openTestDB(t))
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	for i, code := range []string{"C01", "C02", "C03"} {
		p := newPhotography(code)
		p.CreatedAt = base.Add(time.Duration(i) * time.Second)
		_, err := store.Create(ctx, p)
		require.NoError(t, err)
	}

	asc, err := store.List(ctx, domain.SortAsc)
	require.NoError(t, err)
	assert.Equal(t, []string{"C01", "C02", "C03"}, codesOf(asc))

	desc, err := store.List(ctx, domain.SortDesc)
	require.NoError(t, err)
	assert.Equal(t, []string{"C03", "C02", "C01"}, codesOf(desc))
}

func TestPhotographyStoreListEmpty(t *testing.T) {
	store := NewPhotographyStore(openTestDB(t))

	all, err := store.List(context.Background(), domain.SortAsc)
	require.NoError(t, err)
	assert.NotNil(t, all)
	assert.Empty(t, all)
}

func TestPhotographyStoreGetByCodeIgnoresCase(t *testing.T) {
	store := NewPhotographyStore(openTestDB(t))
	ctx := context.Background()

	p, err := store.Create(ctx, newPhotography("AbC"))
	require.NoError(t, err)

	for _, code := range []string{"ABC", "abc", "AbC"} {
		got, err := store.GetByCode(ctx, code)
		require.NoError(t, err)
		require.NotNil(t, got, code)
		assert.Equal(t, p.ID, got.ID)
	}

	missing, err := store.GetByCode(ctx, "ZZZ")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestPhotographyStoreGetByID_NotFound(t *testing.T) {
	store := NewPhotographyStore(openTestDB(t))

	got, err := store.GetByID(context.Background(), "00000000-0000-4000-8000-000000000000")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestPhotographyStoreListByIDs(t *testing.T) {
	store := NewPhotographyStore(openTestDB(t))
	ctx := context.Background()

	a, err := store.Create(ctx, newPhotography("AAA"))
	require.NoError(t, err)
	_, err = store.Create(ctx, newPhotography("BBB"))
	require.NoError(t, err)
	c, err := store.Create(ctx, newPhotography("CCC"))
	require.NoError(t, err)

	found, err := store.ListByIDs(ctx, []string{a.ID, c.ID, "missing"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"AAA", "CCC"}, codesOf(found))

	none, err := store.ListByIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestPhotographyStoreDelete(t *testing.T) {
	store := NewPhotographyStore(openTestDB(t))
	ctx := context.Background()

	p, err := store.Create(ctx, newPhotography("DEL"))
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, p.ID))

	got, err := store.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.ErrorIs(t, store.Delete(ctx, p.ID), domain.ErrNotFound)
}

func TestPhotographyStoreDeleteByIDs(t *testing.T) {
	store := NewPhotographyStore(openTestDB(t))
	ctx := context.Background()

	a, err := store.Create(ctx, newPhotography("AAA"))
	require.NoError(t, err)
	b, err := store.Create(ctx, newPhotography("BBB"))
	require.NoError(t, err)
	_, err = store.Create(ctx, newPhotography("CCC"))
	require.NoError(t, err)

	n, err := store.DeleteByIDs(ctx, []string{a.ID, b.ID, "missing"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	codes, err := store.ListCodes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"CCC"}, codes)
}

func TestPhotographyStoreDeleteAll(t *testing.T) {
	store := NewPhotographyStore(openTestDB(t))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := store.Create(ctx, newPhotography(fmt.Sprintf("C%02d", i)))
		require.NoError(t, err)
	}

	n, err := store.DeleteAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	all, err := store.List(ctx, domain.SortAsc)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestPhotographyStore_WrapsDriverErrors(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	store := NewPhotographyStore(mockDB)
	ctx := context.Background()
	driverErr := errors.New("disk I/O error")

	mock.ExpectExec("INSERT INTO photographies").WillReturnError(driverErr)
	_, err = store.Create(ctx, newPhotography("AAA"))
	assert.ErrorIs(t, err, domain.ErrPersistence)
	assert.NotErrorIs(t, err, domain.ErrCodeTaken)
	assert.Contains(t, err.Error(), "disk I/O error")

	mock.ExpectQuery("SELECT code FROM photographies").WillReturnError(driverErr)
	_, err = store.ListCodes(ctx)
	assert.ErrorIs(t, err, domain.ErrPersistence)

	mock.ExpectBegin().WillReturnError(driverErr)
	_, err = store.CreateMany(ctx, []*domain.Photography{newPhotography("BBB")})
	assert.ErrorIs(t, err, domain.ErrPersistence)

	mock.ExpectExec("DELETE FROM photographies").WillReturnError(driverErr)
	_, err = store.DeleteAll(ctx)
	assert.ErrorIs(t, err, domain.ErrPersistence)

	mock.ExpectExec("DELETE FROM photographies WHERE id").
		WithArgs("gone").
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, store.Delete(ctx, "gone"), domain.ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func codesOf(ps []*domain.Photography) []string {
	codes := make([]string, 0, len(ps))
	for _, p := range ps {
		codes = append(codes, p.Code)
	}
	return codes
}
