package storage

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"lake-wap/internal/domain"
)

var _ domain.ObjectStore = (*S3Store)(nil)

// S3Store is a bucket on S3 or an S3-compatible endpoint.
type S3Store struct {
	client *s3.Client
	loc    Location
}

// NewS3Store creates an S3 store from static credentials.
func NewS3Store(loc Location, creds Credentials) (*S3Store, error) {
	if creds.S3KeyID == "" || creds.S3Secret == "" {
		return nil, fmt.Errorf("S3 key id and secret are required for s3://%s", loc.Bucket)
	}
	region := creds.S3Region
	if region == "" {
		region = "us-east-1"
	}

	opts := s3.Options{
		Region:       region,
		Credentials:  credentials.NewStaticCredentialsProvider(creds.S3KeyID, creds.S3Secret, ""),
		UsePathStyle: creds.S3URLStyle != "vhost",
	}
	if creds.S3Endpoint != "" {
		opts.BaseEndpoint = aws.String("https://" + creds.S3Endpoint)
	}

	return &S3Store{client: s3.New(opts), loc: loc}, nil
}

// Exists reports whether the object is present.
func (s *S3Store) Exists(ctx context.Context, key string) (bool, error) {
	objKey := s.loc.objectKey(key)
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.loc.Bucket),
		Key:    aws.String(objKey),
	})
	if err == nil {
		return true, nil
	}
	var nf *types.NotFound
	var nsk *types.NoSuchKey
	if errors.As(err, &nf) || errors.As(err, &nsk) {
		return false, nil
	}
	return false, fmt.Errorf("head s3://%s/%s: %w", s.loc.Bucket, objKey, err)
}

// Upload writes the local file to key.
func (s *S3Store) Upload(ctx context.Context, key, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close() //nolint:errcheck

	objKey := s.loc.objectKey(key)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.loc.Bucket),
		Key:         aws.String(objKey),
		Body:        f,
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return fmt.Errorf("upload s3://%s/%s: %w", s.loc.Bucket, objKey, err)
	}
	return nil
}

// Bucket returns the bucket name.
func (s *S3Store) Bucket() string { return s.loc.Bucket }

// Scheme returns "s3".
func (s *S3Store) Scheme() string { return "s3" }

// Prefix returns the key prefix from the bucket URI.
func (s *S3Store) Prefix() string { return s.loc.Prefix }
