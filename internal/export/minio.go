package export

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Uploader pushes export artifacts to an S3-compatible object store.
type Uploader struct {
	client *minio.Client
	bucket string
}

// NewUploader connects to the object store and ensures the bucket exists.
func NewUploader(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*Uploader, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect object store: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", bucket, err)
		}
	}

	return &Uploader{client: client, bucket: bucket}, nil
}

// Upload stores an export artifact under projects/<id>/ and returns its
// object path.
func (u *Uploader) Upload(ctx context.Context, projectID string, result *Result) (string, error) {
	objectName := fmt.Sprintf("projects/%s/%s-%s", projectID, time.Now().UTC().Format("20060102-150405"), result.Filename)

	_, err := u.client.PutObject(ctx, u.bucket, objectName,
		bytes.NewReader(result.Data), int64(len(result.Data)),
		minio.PutObjectOptions{ContentType: result.MimeType})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", objectName, err)
	}
	return fmt.Sprintf("%s/%s", u.bucket, objectName), nil
}
