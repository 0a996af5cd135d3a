package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenForTesting(t *testing.T) {
	db, err := OpenForTesting()
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, db.Close()) })

	var tableName string
	err = db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='photographies'").Scan(&tableName)
	require.NoError(t, err)
	assert.Equal(t, "photographies", tableName)
}

func TestOpenForTestingIsIsolated(t *testing.T) {
	first, err := OpenForTesting()
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, first.Close()) })

	second, err := OpenForTesting()
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, second.Close()) })

	_, err = first.Exec(`INSERT INTO photographies (id, url, public_id, width, height, code) VALUES ('a', 'u', 'p', 1, 1, 'AAA')`)
	require.NoError(t, err)

	var count int
	require.NoError(t, second.QueryRow("SELECT COUNT(*) FROM photographies").Scan(&count))
	assert.Zero(t, count)
}

func TestOpenOnDiskIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "photographies.db")

	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// Reopening must not try to re-apply the initial migration.
	db, err = Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, db.Close()) })
}

func TestCodeUniqueIgnoresCase(t *testing.T) {
	db, err := OpenForTesting()
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, db.Close()) })

	insert := func(id, code string) error {
		_, err := db.Exec(`INSERT INTO photographies (id, url, public_id, width, height, code) VALUES (?, 'u', 'p', 1, 1, ?)`, id, code)
		return err
	}
	require.NoError(t, insert("a", "AbC"))
	assert.Error(t, insert("b", "abc"))

	var code string
	err = db.QueryRow("SELECT code FROM photographies WHERE code = ?", "ABC").Scan(&code)
	require.NoError(t, err)
	assert.Equal(t, "AbC", code)
}
