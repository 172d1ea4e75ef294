package internal

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Snapshot(t *testing.T) {
	store := loadPokedex(t)
	f := store.Snapshot()

	require.Len(t, f.Resources, 3)
	require.Len(t, f.Representations, 4)
	assert.Equal(t, int64(101), f.Representations[0].ID)
	assert.Nil(t, f.Representations[0].Resource)
	assert.Len(t, f.Routes, 3)
	assert.Len(t, f.MockProfiles, 1)
	assert.Len(t, f.ResourceInstances, 2)
	assert.Len(t, f.MockPickers, 3)

	reloaded := NewMemoryStore()
	require.NoError(t, reloaded.load(f))
	assert.Equal(t, f, reloaded.Snapshot())
}

func TestSeedStatements_ReferencesComeFirst(t *testing.T) {
	store, err := LoadFixture([]byte(cascadeFixture))
	require.NoError(t, err)

	stmts := seedStatements(store.Snapshot())
	index := func(sql string, arg int, id int64) int {
		for i, st := range stmts {
			if st.sql == sql && st.args[arg] == any(id) {
				return i
			}
		}
		t.Fatalf("no %q with argument %d = %d", firstLine(sql), arg, id)
		return -1
	}

	// Order nests Customer: both resources exist before the attribute.
	assert.Less(t, index(seedResourceSQL, 0, 2), index(seedAttributeSQL, 0, 11))
	// The row of Order's representation targets Customer's representation.
	assert.Less(t, index(seedRepresentationSQL, 0, 20), index(seedRowSQL, 1, 10))
	assert.Less(t, index(seedRouteSQL, 0, 300), index(seedResponseSQL, 0, 310))
	assert.Less(t, index(seedRepresentationSQL, 0, 20), index(seedResponseSQL, 0, 310))
}

func TestSeed(t *testing.T) {
	store := loadPokedex(t)

	t.Run("inserts the graph and advances sequences", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectBegin()
		for _, st := range seedStatements(store.Snapshot()) {
			mock.ExpectExec(st.sql).WithArgs(st.args...).WillReturnResult(pgxmock.NewResult("INSERT", 1))
		}
		for _, table := range serialTables {
			mock.ExpectExec(fmt.Sprintf(
				`SELECT setval(pg_get_serial_sequence('%[1]s', 'id'), GREATEST((SELECT COALESCE(MAX(id), 0) FROM %[1]s), 1))`,
				table)).WillReturnResult(pgxmock.NewResult("SELECT", 1))
		}
		mock.ExpectCommit()

		require.NoError(t, Seed(context.Background(), mock, store))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back on failure", func(t *testing.T) {
		mock := newMockPool(t)
		first := seedStatements(store.Snapshot())[0]
		mock.ExpectBegin()
		mock.ExpectExec(first.sql).WithArgs(first.args...).WillReturnError(errors.New("duplicate key"))
		mock.ExpectRollback()

		err := Seed(context.Background(), mock, store)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate key")
		require.NoError(t, mock.ExpectationsWereMet())
	})
}
