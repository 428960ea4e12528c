package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/deploykit/bootforge/pkg/errors"
)

// S3Service fetches catalog images from an S3 bucket. The object checksum is
// computed on the wire during download, so callers never re-read the file to
// verify integrity.
type S3Service struct {
	client *s3.Client
	bucket string

	mu           sync.Mutex
	lastChecksum string
}

// NewS3Service creates an anonymous-access S3 client.
func NewS3Service(ctx context.Context, bucket, region string) (*S3Service, error) {
	slog.Info("s3_service_init", "bucket", bucket, "region", region)

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(aws.AnonymousCredentials{}),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load AWS config")
	}

	return &S3Service{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
	}, nil
}

// ref form: s3://bucket/key; an empty host falls back to the configured
// bucket.
func (s *S3Service) split(ref string) (bucket, key string) {
	bucket = s.bucket
	u, err := url.Parse(ref)
	if err != nil {
		return bucket, strings.TrimPrefix(ref, "s3://")
	}
	if u.Host != "" {
		bucket = u.Host
	}
	return bucket, strings.TrimPrefix(u.Path, "/")
}

func (s *S3Service) Download(ctx context.Context, ref string, w io.Writer) error {
	bucket, key := s.split(ref)
	slog.Info("s3_download_start", "bucket", bucket, "key", key)

	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return errors.Wrap(err, "failed to get object from S3")
	}
	defer result.Body.Close()

	hash := sha256.New()
	size, err := io.Copy(io.MultiWriter(w, hash), result.Body)
	if err != nil {
		return errors.Wrap(err, "failed to download object")
	}

	checksum := hex.EncodeToString(hash.Sum(nil))
	s.mu.Lock()
	s.lastChecksum = checksum
	s.mu.Unlock()

	slog.Info("s3_download_complete", "bucket", bucket, "key", key,
		"size_mb", size/1024/1024, "sha256", checksum[:16]+"...")
	return nil
}

func (s *S3Service) Show(ctx context.Context, ref string) (*ImageInfo, error) {
	bucket, key := s.split(ref)
	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to head object")
	}
	info := &ImageInfo{Properties: map[string]string{}}
	if head.ContentLength != nil {
		info.Size = *head.ContentLength
	}
	for k, v := range head.Metadata {
		info.Properties[strings.ToLower(k)] = v
	}
	return info, nil
}

func (s *S3Service) Head(ctx context.Context, ref string) (*HeadInfo, error) {
	info, err := s.Show(ctx, ref)
	if err != nil {
		return nil, err
	}
	return &HeadInfo{
		ContentType:      "application/octet-stream",
		HasContentLength: true,
		ContentLength:    info.Size,
		FinalURL:         ref,
	}, nil
}

func (s *S3Service) IsAuthSetNeeded() bool { return false }

func (s *S3Service) SetImageAuth(ref string, auth map[string]string) error { return nil }

func (s *S3Service) TransferVerifiedChecksum() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastChecksum
}
