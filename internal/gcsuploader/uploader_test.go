package gcsuploader

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/console-reconciler/internal/domain"
)

type mockStorage struct {
	UploadFileFunc   func(ctx context.Context, bucketName, objectName, filePath string) error
	FetchFromGCSFunc func(ctx context.Context, gcsURI string) ([]byte, error)
}

func (m *mockStorage) UploadFile(ctx context.Context, bucketName, objectName, filePath string) error {
	return m.UploadFileFunc(ctx, bucketName, objectName, filePath)
}

func (m *mockStorage) FetchFromGCS(ctx context.Context, gcsURI string) ([]byte, error) {
	return m.FetchFromGCSFunc(ctx, gcsURI)
}

func TestParseGCSURI(t *testing.T) {
	tests := []struct {
		uri     string
		bucket  string
		object  string
		wantErr bool
	}{
		{"gs://b/reports/depo/depo-transaction_history.txt", "b", "reports/depo/depo-transaction_history.txt", false},
		{"gs://b", "", "", true},
		{"gs://b/", "", "", true},
		{"/tmp/file.txt", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			bucket, object, err := ParseGCSURI(tt.uri)
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

func TestExtractFilenameFromGCSURI(t *testing.T) {
	assert.Equal(t, "wd-transaction_history.txt", ExtractFilenameFromGCSURI("gs://b/reports/wd/wd-transaction_history.txt"))
	assert.Equal(t, "bucket", ExtractFilenameFromGCSURI("gs://bucket"))
}

func TestArchiveReport(t *testing.T) {
	var gotBucket, gotObject, gotPath string
	svc := &mockStorage{UploadFileFunc: func(_ context.Context, b, o, p string) error {
		gotBucket, gotObject, gotPath = b, o, p
		return nil
	}}

	uri, err := ArchiveReport(context.Background(), svc, "recon", domain.LabelDeposit, "/out/depo-transaction_history.txt")
	require.NoError(t, err)
	assert.Equal(t, "gs://recon/reports/depo/depo-transaction_history.txt", uri)
	assert.Equal(t, "recon", gotBucket)
	assert.Equal(t, "reports/depo/depo-transaction_history.txt", gotObject)
	assert.Equal(t, "/out/depo-transaction_history.txt", gotPath)

	svc.UploadFileFunc = func(context.Context, string, string, string) error { return errors.New("denied") }
	_, err = ArchiveReport(context.Background(), svc, "recon", domain.LabelDeposit, "/out/x.txt")
	assert.ErrorContains(t, err, "denied")
}
