package proofs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/nexanet/configbot/internal/apperr"
	log "github.com/sirupsen/logrus"
)

// S3Config configures an S3-compatible bucket (AWS, R2, MinIO).
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
}

// S3Store keeps proofs as objects in a bucket.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
	now    func() time.Time
}

// NewS3Store builds a client with static credentials and an optional endpoint override.
func NewS3Store(cfg S3Config) (*S3Store, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("proofs: missing bucket: %w", apperr.ErrInvalidInput)
	}
	region := cfg.Region
	if region == "" {
		region = "auto"
	}
	awsCfg := aws.Config{
		Credentials: credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Region:      region,
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})
	log.WithFields(log.Fields{"bucket": cfg.Bucket, "endpoint": cfg.Endpoint}).Info("proofs: s3 backend initialized")
	return &S3Store{client: client, bucket: cfg.Bucket, prefix: strings.Trim(cfg.Prefix, "/"), now: time.Now}, nil
}

func (s *S3Store) Backend() string { return BackendS3 }

func (s *S3Store) objectKey(ref string) string {
	if s.prefix == "" {
		return ref
	}
	return s.prefix + "/" + ref
}

func (s *S3Store) Put(ctx context.Context, userID int64, body io.Reader, contentType string) (Object, error) {
	data, err := readLimited(body)
	if err != nil {
		return Object{}, err
	}
	ref := NewKey(userID, contentType, s.now())
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.objectKey(ref)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, errPut := s.client.PutObject(ctx, input); errPut != nil {
		return Object{}, fmt.Errorf("proofs: put %s: %v: %w", ref, errPut, apperr.ErrIO)
	}
	return Object{Ref: ref, ContentType: contentType, Size: int64(len(data))}, nil
}

func (s *S3Store) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	if err := validRef(ref); err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(ref)),
	})
	if err != nil {
		var noKey *s3types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, fmt.Errorf("proofs: %s: %w", ref, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("proofs: get %s: %v: %w", ref, err, apperr.ErrIO)
	}
	return out.Body, nil
}

func (s *S3Store) Exists(ctx context.Context, ref string) (bool, error) {
	if err := validRef(ref); err != nil {
		return false, err
	}
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(ref)),
	})
	if err != nil {
		var notFound *s3types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("proofs: head %s: %v: %w", ref, err, apperr.ErrIO)
	}
	return true, nil
}
