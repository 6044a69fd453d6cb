package filenumber

import (
	"context"
	"fmt"
	"regexp"
	"testing"
	"time"

	"fileno-manager/core/reconcile"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// setupTestDB creates an in-memory SQLite DB with the result table.
func setupTestDB(t *testing.T) *Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", regexp.MustCompile(`\W`).ReplaceAllString(t.Name(), "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	store := NewStore(db, "", DefaultProvenance(), nil)
	store.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func strPtr(s string) *string { return &s }

func rows(tag *string) []reconcile.ResultRow {
	return []reconcile.ResultRow{
		{Reference: "RES-1990-1", Applicant: "Musa Ali", TrackingID: strPtr("TRK-AAAAAAAA-00001"), ControlTag: tag, RowIndex: 2},
		{Reference: "COM-1991-7", Applicant: "Ada Obi", ControlTag: tag, RowIndex: 3},
		{Reference: "AG-1985-4", Location: "Layout A, Dala", TrackingID: strPtr("TRK-AAAAAAAA-00002"), ControlTag: tag, RowIndex: 4},
	}
}

func TestInsertResults(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	tag := "RUN-1"

	n, err := store.InsertResults(ctx, rows(&tag))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	sample, err := store.SampleTagged(ctx, &tag, 10)
	require.NoError(t, err)
	require.Len(t, sample, 3)
	assert.Equal(t, "RES-1990-1", sample[0].MlsfNo)
	assert.Equal(t, "Musa Ali", sample[0].FileName)
	assert.Equal(t, "KANGIS", sample[0].Type)
	assert.Equal(t, "Excel Reimport", sample[0].CreatedBy)
	assert.Equal(t, 2, sample[0].SourceRow)
	assert.Nil(t, sample[1].TrackingID)

	n, err = store.InsertResults(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestTaggedCounts(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	_, err := store.InsertResults(ctx, rows(strPtr("A")))
	require.NoError(t, err)
	_, err = store.InsertResults(ctx, rows(nil))
	require.NoError(t, err)

	tests := []struct {
		name    string
		tag     *string
		tagged  int64
		tracked int64
	}{
		{name: "tagged", tag: strPtr("A"), tagged: 3, tracked: 2},
		{name: "untagged", tag: nil, tagged: 3, tracked: 2},
		{name: "unknown tag", tag: strPtr("B"), tagged: 0, tracked: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := store.CountTagged(ctx, tt.tag)
			require.NoError(t, err)
			assert.Equal(t, tt.tagged, n)

			n, err = store.CountTaggedWithTracking(ctx, tt.tag)
			require.NoError(t, err)
			assert.Equal(t, tt.tracked, n)
		})
	}

	total, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(6), total)
}

func TestExistingReferences(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	_, err := store.InsertResults(ctx, rows(strPtr("A")))
	require.NoError(t, err)

	found, err := store.ExistingReferences(ctx, strPtr("A"), []string{"RES-1990-1", "NEW-1"})
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"RES-1990-1": {}}, found)

	other, err := store.ExistingReferences(ctx, strPtr("B"), []string{"RES-1990-1"})
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestDeleteByTag(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	_, err := store.InsertResults(ctx, rows(strPtr("A")))
	require.NoError(t, err)
	_, err = store.InsertResults(ctx, rows(strPtr("B")))
	require.NoError(t, err)

	n, err := store.DeleteByTag(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	left, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), left)

	_, err = store.DeleteByTag(ctx, "")
	assert.Error(t, err)
}

func TestInsertResults_RollsBack(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	db, err := gorm.Open(mysql.New(mysql.Config{Conn: sqlDB, SkipInitializeWithVersion: true}), &gorm.Config{})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `imported_numbers`").
		WillReturnError(fmt.Errorf("duplicate entry"))
	mock.ExpectRollback()

	store := NewStore(db, "imported_numbers", DefaultProvenance(), nil)
	n, err := store.InsertResults(context.Background(), rows(nil))
	require.Error(t, err)
	assert.Zero(t, n)
	assert.Contains(t, err.Error(), "failed to insert 3 results")
	assert.NoError(t, mock.ExpectationsWereMet())
}
