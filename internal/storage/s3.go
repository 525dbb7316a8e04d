package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Config holds S3/MinIO settings.
type S3Config struct {
	Endpoint  string // host:port, no scheme
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	Attempts  uint
}

// S3 writes objects to an S3-compatible bucket.
type S3 struct {
	client   *minio.Client
	bucket   string
	attempts uint
}

// NewS3 connects to the endpoint and creates the bucket if missing.
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 mirror needs an endpoint and a bucket")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket exists: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	attempts := cfg.Attempts
	if attempts == 0 {
		attempts = 3
	}
	return &S3{client: client, bucket: cfg.Bucket, attempts: attempts}, nil
}

// Write uploads r. Seekable readers are rewound and retried on failure;
// other readers get a single attempt.
func (s *S3) Write(ctx context.Context, key string, r io.Reader) (Location, error) {
	if s == nil || s.client == nil {
		return Location{}, fmt.Errorf("s3 storage uninitialized")
	}
	k, err := cleanKey(key)
	if err != nil {
		return Location{}, err
	}

	seeker, rewindable := r.(io.Seeker)
	attempts := s.attempts
	if !rewindable {
		attempts = 1
	}

	var info minio.UploadInfo
	err = retry.Do(
		func() error {
			if rewindable {
				if _, err := seeker.Seek(0, io.SeekStart); err != nil {
					return retry.Unrecoverable(err)
				}
			}
			var putErr error
			info, putErr = s.client.PutObject(ctx, s.bucket, k, r, -1, minio.PutObjectOptions{
				ContentType: "application/pdf",
			})
			return putErr
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(time.Second),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return Location{}, fmt.Errorf("put object: %w", err)
	}

	return Location{
		Path: k,
		URL:  fmt.Sprintf("s3://%s/%s", s.bucket, info.Key),
	}, nil
}
