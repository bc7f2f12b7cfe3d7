// Package objectstore uploads rendered artifacts to S3-compatible object storage and
// issues presigned download links.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/target/report-runner/internal/core"
	"github.com/target/report-runner/internal/domain/model"
)

const defaultRegion = "us-east-1"

// ErrNotConfigured is returned when the storage block lacks a container or credentials.
var ErrNotConfigured = errors.New("object storage not configured")

var _ core.ObjectStore = (*S3Store)(nil)

// Options configures an S3Store.
type Options struct {
	HTTPClient *http.Client
	// Timeout bounds an upload including its single retry.
	Timeout time.Duration
	Logger  *slog.Logger
	// Now is used to stamp link expiry; defaults to time.Now.
	Now func() time.Time
}

// S3Store implements core.ObjectStore. Credentials arrive with each request because
// they belong to the per-job config descriptor.
type S3Store struct {
	httpClient *http.Client
	timeout    time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

// New builds an S3Store.
func New(opts Options) *S3Store {
	s := &S3Store{
		httpClient: opts.HTTPClient,
		timeout:    opts.Timeout,
		logger:     opts.Logger,
		now:        opts.Now,
	}
	if s.httpClient == nil {
		s.httpClient = &http.Client{}
	}
	if s.timeout <= 0 {
		s.timeout = 5 * time.Minute
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.logger = s.logger.With("component", "objectstore")
	return s
}

// Upload stores the file at req.Path under req.Key and returns a presigned GET link
// valid for req.Retention.
func (s *S3Store) Upload(ctx context.Context, req core.UploadRequest) (*core.UploadReceipt, error) {
	if !req.Storage.Configured() {
		return nil, ErrNotConfigured
	}
	if req.Retention <= 0 {
		req.Retention = model.UploadRetention
	}
	key := strings.TrimLeft(req.Key, "/")
	if key == "" {
		key = filepath.Base(req.Path)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	client, err := s.client(ctx, req.Storage)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(req.Path)
	if err != nil {
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat artifact: %w", err)
	}

	expiresAt := s.now().Add(req.Retention).UTC()
	bucket := strings.TrimSpace(req.Storage.Container)
	contentType := mime.TypeByExtension(filepath.Ext(req.Path))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(contentType),
		Expires:       aws.Time(expiresAt),
		Metadata:      s.metadata(req, expiresAt),
	})
	if err != nil {
		return nil, fmt.Errorf("put object %s/%s: %w", bucket, key, err)
	}

	presigned, err := s3.NewPresignClient(client).PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(req.Retention))
	if err != nil {
		return nil, fmt.Errorf("presign %s/%s: %w", bucket, key, err)
	}

	s.logger.InfoContext(ctx, "artifact uploaded",
		"bucket", bucket,
		"key", key,
		"bytes", info.Size(),
		"expires_at", expiresAt,
	)
	return &core.UploadReceipt{Link: presigned.URL, ExpiresAt: expiresAt}, nil
}

func (s *S3Store) client(ctx context.Context, storage model.ObjectStorageConfig) (*s3.Client, error) {
	region := strings.TrimSpace(storage.Region)
	if region == "" {
		region = defaultRegion
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithHTTPClient(s.httpClient),
		awsconfig.WithRetryMaxAttempts(2),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			strings.TrimSpace(storage.UserName), storage.Password, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("load object storage config: %w", err)
	}

	endpoint := strings.TrimRight(strings.TrimSpace(storage.AuthURI), "/")
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	}), nil
}

func (s *S3Store) metadata(req core.UploadRequest, expiresAt time.Time) map[string]string {
	md := make(map[string]string, len(req.Metadata)+3)
	for k, v := range req.Metadata {
		md[strings.ToLower(k)] = v
	}
	md["expires-at"] = expiresAt.Format(time.RFC3339)
	md["retention-seconds"] = fmt.Sprintf("%d", int64(req.Retention/time.Second))
	if tenant := strings.TrimSpace(req.Storage.TenantName); tenant != "" {
		md["tenant"] = tenant
	}
	return md
}
