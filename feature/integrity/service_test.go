package integrity

import (
	"context"
	"testing"

	"fileno-manager/core/storage/mocks"
	"fileno-manager/feature/filenumber"
	"fileno-manager/feature/grouping"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T, name string) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, grouping.NewStore(db, "", nil).Migrate(ctx))
	require.NoError(t, filenumber.NewStore(db, "", filenumber.DefaultProvenance(), nil).Migrate(ctx))
	return db
}

func TestService_RunAll(t *testing.T) {
	t.Run("Schema Only", func(t *testing.T) {
		svc := NewService(setupTestDB(t, "integrity_schema"), nil, "", Tables{}, nil)

		report := svc.RunAll(context.Background(), false)
		require.NotNil(t, report.Schema)
		assert.True(t, report.Schema.Matched, "%+v", report.Schema)
		assert.Nil(t, report.ArchiveExists)
		assert.True(t, report.Healthy())
	})

	t.Run("Fixes Missing Bucket", func(t *testing.T) {
		client := new(mocks.Client)
		client.On("BucketExists", mock.Anything, "reports").Return(false, nil)
		client.On("MakeBucket", mock.Anything, "reports", mock.Anything).Return(nil)
		svc := NewService(setupTestDB(t, "integrity_fix"), client, "reports", Tables{}, nil)

		report := svc.RunAll(context.Background(), true)
		require.NotNil(t, report.ArchiveExists)
		assert.False(t, *report.ArchiveExists)
		assert.True(t, report.ArchiveFixed)
		assert.True(t, report.Healthy())
		client.AssertExpectations(t)
	})

	t.Run("Missing Table", func(t *testing.T) {
		svc := NewService(setupTestDB(t, "integrity_missing"), nil, "", Tables{Results: "legacy_numbers"}, nil)

		report := svc.RunAll(context.Background(), false)
		assert.False(t, report.Healthy())
		assert.Contains(t, report.Schema.Errors, "Table legacy_numbers does not exist")
	})
}
