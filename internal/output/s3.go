package output

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Config configures an S3-compatible bucket.
type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	KeyPrefix string
	UseSSL    bool
}

// bucketClient is the subset of *minio.Client the output uses.
type bucketClient interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// S3 uploads bundles to a bucket. Objects are uploaded on Commit, so a
// failed build leaves the bucket untouched.
type S3 struct {
	client    bucketClient
	bucket    string
	region    string
	keyPrefix string

	initOnce sync.Once
	initErr  error
}

// NewS3 validates cfg and creates the client.
func NewS3(cfg S3Config) (*S3, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("s3 access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}
	return newS3(client, bucket, region, cfg.KeyPrefix), nil
}

func newS3(client bucketClient, bucket, region, keyPrefix string) *S3 {
	return &S3{
		client:    client,
		bucket:    bucket,
		region:    region,
		keyPrefix: strings.Trim(keyPrefix, "/"),
	}
}

func (s *S3) ensureBucket(ctx context.Context) error {
	s.initOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.bucket)
		if err != nil {
			s.initErr = err
			return
		}
		if exists {
			return
		}
		s.initErr = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region})
	})
	return s.initErr
}

// Key returns the object key of filename.
func (s *S3) Key(filename string) string {
	name := strings.TrimLeft(filename, "/")
	if s.keyPrefix == "" {
		return name
	}
	return path.Join(s.keyPrefix, name)
}

// Create implements Output.
func (s *S3) Create(ctx context.Context, filename string) (Sink, error) {
	if err := s.ensureBucket(ctx); err != nil {
		return nil, &Error{Op: "create", Name: filename, Err: fmt.Errorf("ensure bucket: %w", err)}
	}
	return &objectSink{store: s, name: filename}, nil
}

type objectSink struct {
	store *S3
	name  string
	buf   bytes.Buffer
}

func (o *objectSink) Write(p []byte) (int, error) { return o.buf.Write(p) }

func (o *objectSink) Close() error { return nil }

func (o *objectSink) Commit(ctx context.Context) error {
	content := o.buf.Bytes()
	_, err := o.store.client.PutObject(ctx, o.store.bucket, o.store.Key(o.name), bytes.NewReader(content), int64(len(content)), minio.PutObjectOptions{
		ContentType: contentType(o.name),
	})
	if err != nil {
		return &Error{Op: "upload", Name: o.name, Err: err}
	}
	return nil
}

func (o *objectSink) Abort(context.Context) error {
	o.buf.Reset()
	return nil
}

func contentType(name string) string {
	switch path.Ext(name) {
	case ".js":
		return "application/javascript"
	case ".css":
		return "text/css"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
