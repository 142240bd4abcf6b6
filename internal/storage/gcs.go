package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"lake-wap/internal/domain"
)

var _ domain.ObjectStore = (*GCSStore)(nil)

// GCSStore is a Google Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	loc    Location
}

// NewGCSStore creates a GCS store. An empty keyFile uses application default
// credentials.
func NewGCSStore(ctx context.Context, loc Location, keyFile string) (*GCSStore, error) {
	var opts []option.ClientOption
	if keyFile != "" {
		opts = append(opts, option.WithAuthCredentialsFile(option.ServiceAccount, keyFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create GCS client: %w", err)
	}
	return &GCSStore{client: client, loc: loc}, nil
}

// Exists reports whether the object is present.
func (s *GCSStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.Bucket(s.loc.Bucket).Object(s.loc.objectKey(key)).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat gs://%s/%s: %w", s.loc.Bucket, s.loc.objectKey(key), err)
	}
	return true, nil
}

// Upload writes the local file to key.
func (s *GCSStore) Upload(ctx context.Context, key, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close() //nolint:errcheck

	objKey := s.loc.objectKey(key)
	w := s.client.Bucket(s.loc.Bucket).Object(objKey).NewWriter(ctx)
	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return fmt.Errorf("upload gs://%s/%s: %w", s.loc.Bucket, objKey, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize gs://%s/%s: %w", s.loc.Bucket, objKey, err)
	}
	return nil
}

// Bucket returns the bucket name.
func (s *GCSStore) Bucket() string { return s.loc.Bucket }

// Scheme returns "gs".
func (s *GCSStore) Scheme() string { return "gs" }

// Close releases the client.
func (s *GCSStore) Close() error { return s.client.Close() }

// Prefix returns the key prefix from the bucket URI.
func (s *GCSStore) Prefix() string { return s.loc.Prefix }
