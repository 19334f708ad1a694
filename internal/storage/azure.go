package storage

// The Azure store keeps each data object's content as one block blob. The
// request credentials are an Entra ID bearer token for the storage account.

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
)

// AzureBlobAPI defines the subset of Azure Blob operations that the store
// uses. This allows mocking in tests.
type AzureBlobAPI interface {
	UploadFile(ctx context.Context, containerName, blobName string, f *os.File) error
	DownloadRange(ctx context.Context, containerName, blobName string, offset int64) (io.ReadCloser, error)
	Size(ctx context.Context, containerName, blobName string) (int64, error)
	DeleteBlob(ctx context.Context, containerName, blobName string) error
}

// AzureClientFunc builds a client authorized by a bearer token.
type AzureClientFunc func(token string) (AzureBlobAPI, error)

// AzureBackend stores one data object's content at Container/Blob.
type AzureBackend struct {
	Container string
	Blob      string
	ChunkSize int
	newClient AzureClientFunc
}

// NewAzureFactory returns a factory for azure:// and azure+subscheme:// URIs.
// For plain URIs the host names the blob container.
func NewAzureFactory(newClient AzureClientFunc, profiles RemoteProfiles, chunkSize int) Factory {
	return func(target Target) (Store, error) {
		container, blob, err := profiles.locate(target)
		if err != nil {
			return nil, err
		}
		return &AzureBackend{Container: container, Blob: blob, ChunkSize: chunkSize, newClient: newClient}, nil
	}
}

func (b *AzureBackend) where() string {
	return "azure://" + b.Container + "/" + b.Blob
}

func (b *AzureBackend) client(creds string) (AzureBlobAPI, error) {
	if err := requireCredentials(creds); err != nil {
		return nil, err
	}
	return b.newClient(creds)
}

// Save spools the decoded input and uploads it as a block blob.
func (b *AzureBackend) Save(ctx context.Context, r io.Reader, encoding, creds string) error {
	client, err := b.client(creds)
	if err != nil {
		return err
	}
	sp, err := spool(ctx, r, encoding, b.ChunkSize)
	if err != nil {
		return err
	}
	defer sp.Close()
	if err := client.UploadFile(ctx, b.Container, b.Blob, sp.File); err != nil {
		return fmt.Errorf("uploading %s: %w", b.where(), err)
	}
	return nil
}

// Load returns a reader that opens ranged blob downloads on demand.
func (b *AzureBackend) Load(ctx context.Context, creds string) (io.ReadSeekCloser, error) {
	client, err := b.client(creds)
	if err != nil {
		return nil, err
	}
	size, err := client.Size(ctx, b.Container, b.Blob)
	if err != nil {
		if isAzureNotFound(err) {
			return nil, notFound(b.where())
		}
		return nil, fmt.Errorf("stat %s: %w", b.where(), err)
	}
	open := func(ctx context.Context, offset int64) (io.ReadCloser, error) {
		rc, err := client.DownloadRange(ctx, b.Container, b.Blob, offset)
		if err != nil {
			if isAzureNotFound(err) {
				return nil, notFound(b.where())
			}
			return nil, fmt.Errorf("downloading %s: %w", b.where(), err)
		}
		return rc, nil
	}
	return newRangeReader(ctx, size, open, nil), nil
}

// Delete removes the blob.
func (b *AzureBackend) Delete(ctx context.Context, creds string) error {
	client, err := b.client(creds)
	if err != nil {
		return err
	}
	if err := client.DeleteBlob(ctx, b.Container, b.Blob); err != nil {
		if isAzureNotFound(err) {
			return notFound(b.where())
		}
		return fmt.Errorf("deleting %s: %w", b.where(), err)
	}
	return nil
}

// isAzureNotFound checks whether an Azure error indicates a missing blob or
// container.
func isAzureNotFound(err error) bool {
	if err == nil {
		return false
	}
	if hasAzureNotFoundCode(err) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "blobnotfound") || strings.Contains(msg, "containernotfound") ||
		strings.Contains(msg, "the specified blob does not exist") ||
		strings.Contains(msg, "the specified container does not exist")
}

var _ Store = (*AzureBackend)(nil)
