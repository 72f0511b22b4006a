// Package gcs declares the bucket operations the reconciler needs for its
// report archive.
package gcs

import (
	"context"
)

// StorageService archives extraction reports to a bucket and reads them
// back when deriving tax records from gs:// sources.
type StorageService interface {
	// UploadFile copies the local report at filePath to bucketName/objectName.
	UploadFile(ctx context.Context, bucketName, objectName, filePath string) error

	// FetchFromGCS returns the bytes of an archived report addressed as
	// gs://bucket/object.
	FetchFromGCS(ctx context.Context, gcsURI string) ([]byte, error)
}
