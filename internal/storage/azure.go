package storage

import (
	"context"
	"fmt"
	"os"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"lake-wap/internal/domain"
)

var _ domain.ObjectStore = (*AzureStore)(nil)

// AzureStore is an Azure Blob Storage container.
type AzureStore struct {
	client *azblob.Client
	loc    Location
}

// NewAzureStore creates an Azure store with shared-key authentication.
func NewAzureStore(loc Location, accountName, accountKey string) (*AzureStore, error) {
	if accountName == "" || accountKey == "" {
		return nil, fmt.Errorf("Azure account name and key are required for container %q", loc.Bucket)
	}
	cred, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, fmt.Errorf("create shared key credential: %w", err)
	}
	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net", accountName)
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("create Azure blob client: %w", err)
	}
	return &AzureStore{client: client, loc: loc}, nil
}

// Exists reports whether the blob is present.
func (s *AzureStore) Exists(ctx context.Context, key string) (bool, error) {
	objKey := s.loc.objectKey(key)
	blob := s.client.ServiceClient().NewContainerClient(s.loc.Bucket).NewBlobClient(objKey)
	_, err := blob.GetProperties(ctx, nil)
	if bloberror.HasCode(err, bloberror.BlobNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat az://%s/%s: %w", s.loc.Bucket, objKey, err)
	}
	return true, nil
}

// Upload writes the local file to key.
func (s *AzureStore) Upload(ctx context.Context, key, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close() //nolint:errcheck

	objKey := s.loc.objectKey(key)
	if _, err := s.client.UploadFile(ctx, s.loc.Bucket, objKey, f, nil); err != nil {
		return fmt.Errorf("upload az://%s/%s: %w", s.loc.Bucket, objKey, err)
	}
	return nil
}

// Bucket returns the container name.
func (s *AzureStore) Bucket() string { return s.loc.Bucket }

// Scheme returns "az".
func (s *AzureStore) Scheme() string { return "az" }

// Prefix returns the key prefix from the bucket URI.
func (s *AzureStore) Prefix() string { return s.loc.Prefix }
