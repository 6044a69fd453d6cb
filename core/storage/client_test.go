package storage_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"fileno-manager/core/storage"
	"fileno-manager/core/storage/mocks"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		cfg := storage.Config{
			Endpoint:  "localhost:9000",
			AccessKey: "testkey",
			SecretKey: "testsecret",
			Region:    "us-east-1",
		}

		client, err := storage.NewClient(cfg)
		assert.NoError(t, err)
		assert.NotNil(t, client)
	})

	t.Run("EndpointWithHTTPS", func(t *testing.T) {
		cfg := storage.Config{
			Endpoint:  "https://s3.amazonaws.com",
			AccessKey: "testkey",
			SecretKey: "testsecret",
			UseSSL:    true,
			Region:    "us-east-1",
		}

		client, err := storage.NewClient(cfg)
		assert.NoError(t, err)
		assert.NotNil(t, client)
	})
}

func TestParseURI(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		bucket  string
		object  string
		wantErr bool
	}{
		{name: "Nested key", in: "s3://imports/2024/mls.csv", bucket: "imports", object: "2024/mls.csv"},
		{name: "Flat key", in: "s3://imports/mls.xlsx", bucket: "imports", object: "mls.xlsx"},
		{name: "Missing key", in: "s3://imports", wantErr: true},
		{name: "Missing bucket", in: "s3:///mls.csv", wantErr: true},
		{name: "Local path", in: "./mls.csv", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bucket, object, err := storage.ParseURI(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.bucket, bucket)
			assert.Equal(t, tt.object, object)
		})
	}
}

func TestPutJSON(t *testing.T) {
	ctx := context.Background()

	t.Run("Creates missing bucket", func(t *testing.T) {
		client := new(mocks.Client)
		client.On("BucketExists", ctx, "reports").Return(false, nil)
		client.On("MakeBucket", ctx, "reports", minio.MakeBucketOptions{}).Return(nil)
		client.On("PutObject", ctx, "reports", "runs/abc.json", mock.Anything, mock.AnythingOfType("int64"), mock.Anything).
			Run(func(args mock.Arguments) {
				body, err := io.ReadAll(args.Get(3).(io.Reader))
				require.NoError(t, err)
				assert.JSONEq(t, `{"status":"succeeded"}`, string(body))
			}).
			Return(minio.UploadInfo{}, nil)

		err := storage.PutJSON(ctx, client, "reports", "runs/abc.json", map[string]string{"status": "succeeded"})
		assert.NoError(t, err)
		client.AssertExpectations(t)
	})

	t.Run("Upload failure", func(t *testing.T) {
		client := new(mocks.Client)
		client.On("BucketExists", ctx, "reports").Return(true, nil)
		client.On("PutObject", ctx, "reports", "runs/abc.json", mock.Anything, mock.Anything, mock.Anything).
			Return(minio.UploadInfo{}, errors.New("denied"))

		err := storage.PutJSON(ctx, client, "reports", "runs/abc.json", struct{}{})
		assert.ErrorContains(t, err, "failed to upload runs/abc.json")
		client.AssertNotCalled(t, "MakeBucket", mock.Anything, mock.Anything, mock.Anything)
	})
}
