package export

import (
	"bytes"
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectPutter stores rendered exports.
type ObjectPutter interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
}

// MinioOptions configures the S3-compatible export bucket.
type MinioOptions struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// MinioPutter uploads exports to an S3-compatible bucket.
type MinioPutter struct {
	client *minio.Client
	bucket string
}

// NewMinioPutter connects to the object store and creates the bucket when
// it does not exist yet.
func NewMinioPutter(ctx context.Context, opts MinioOptions) (*MinioPutter, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create object storage client: %w", err)
	}

	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", opts.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", opts.Bucket, err)
		}
	}
	return &MinioPutter{client: client, bucket: opts.Bucket}, nil
}

func (p *MinioPutter) Put(ctx context.Context, key, contentType string, data []byte) error {
	_, err := p.client.PutObject(ctx, p.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}
