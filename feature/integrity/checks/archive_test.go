package checks

import (
	"context"
	"errors"
	"testing"

	"fileno-manager/core/storage/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

func TestCheckArchive(t *testing.T) {
	t.Run("No Bucket", func(t *testing.T) {
		_, err := CheckArchive(context.Background(), new(mocks.Client), "")
		assert.Error(t, err)
	})

	t.Run("Missing", func(t *testing.T) {
		client := new(mocks.Client)
		client.On("BucketExists", mock.Anything, "reports").Return(false, nil)

		exists, err := CheckArchive(context.Background(), client, "reports")
		assert.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("Error", func(t *testing.T) {
		client := new(mocks.Client)
		client.On("BucketExists", mock.Anything, "reports").Return(false, errors.New("denied"))

		_, err := CheckArchive(context.Background(), client, "reports")
		assert.ErrorContains(t, err, "failed to check bucket existence")
	})
}

func TestFixArchive(t *testing.T) {
	client := new(mocks.Client)
	client.On("MakeBucket", mock.Anything, "reports", mock.Anything).Return(nil)

	assert.NoError(t, FixArchive(context.Background(), client, "reports", zap.NewNop()))
	client.AssertExpectations(t)
}
