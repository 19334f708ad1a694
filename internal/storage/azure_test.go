package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"testing"

	stoxyerr "github.com/stoxy/stoxy/internal/errors"
	"github.com/stoxy/stoxy/internal/uri"
)

// mockAzureClient implements AzureBlobAPI for unit testing.
type mockAzureClient struct {
	// blobs stores all blobs keyed by "container/blobName".
	blobs map[string][]byte
	// tokens records the token of every client created.
	tokens []string
	// downloadOffsets records the offset of every ranged download.
	downloadOffsets []int64
}

func newMockAzureClient() *mockAzureClient {
	return &mockAzureClient{blobs: make(map[string][]byte)}
}

func (m *mockAzureClient) clientFunc() AzureClientFunc {
	return func(token string) (AzureBlobAPI, error) {
		m.tokens = append(m.tokens, token)
		return m, nil
	}
}

func (m *mockAzureClient) UploadFile(_ context.Context, containerName, blobName string, f *os.File) error {
	data, err := io.ReadAll(f)
	if err != nil {
		return err
	}
	m.blobs[containerName+"/"+blobName] = data
	return nil
}

func (m *mockAzureClient) DownloadRange(_ context.Context, containerName, blobName string, offset int64) (io.ReadCloser, error) {
	data, ok := m.blobs[containerName+"/"+blobName]
	if !ok {
		return nil, fmt.Errorf("BlobNotFound: the specified blob does not exist")
	}
	m.downloadOffsets = append(m.downloadOffsets, offset)
	return io.NopCloser(bytes.NewReader(data[offset:])), nil
}

func (m *mockAzureClient) Size(_ context.Context, containerName, blobName string) (int64, error) {
	data, ok := m.blobs[containerName+"/"+blobName]
	if !ok {
		return 0, fmt.Errorf("BlobNotFound: the specified blob does not exist")
	}
	return int64(len(data)), nil
}

func (m *mockAzureClient) DeleteBlob(_ context.Context, containerName, blobName string) error {
	key := containerName + "/" + blobName
	if _, ok := m.blobs[key]; !ok {
		return fmt.Errorf("BlobNotFound: the specified blob does not exist")
	}
	delete(m.blobs, key)
	return nil
}

func newTestAzureBackend(t *testing.T) (*AzureBackend, *mockAzureClient) {
	t.Helper()
	mock := newMockAzureClient()
	f := NewAzureFactory(mock.clientFunc(), RemoteProfiles{"hot": {Bucket: "data", Prefix: "objs/"}}, 0)
	store, err := f(Target{URI: uri.URI{Scheme: "azure", Subscheme: "hot"}, ObjectID: "feed"})
	if err != nil {
		t.Fatalf("Azure factory failed: %v", err)
	}
	return store.(*AzureBackend), mock
}

func TestAzureSaveAndLoad(t *testing.T) {
	b, mock := newTestAzureBackend(t)
	ctx := context.Background()

	if err := b.Save(ctx, strings.NewReader("azure bytes"), "", "eyJ0eXAi"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if got := string(mock.blobs["data/objs/feed"]); got != "azure bytes" {
		t.Errorf("stored %q", got)
	}

	rc, err := b.Load(ctx, "eyJ0eXAi")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	defer rc.Close()
	rc.Seek(6, io.SeekStart)
	data, _ := io.ReadAll(rc)
	if string(data) != "bytes" {
		t.Errorf("ranged read = %q", data)
	}
	if len(mock.downloadOffsets) != 1 || mock.downloadOffsets[0] != 6 {
		t.Errorf("download offsets = %v, want [6]", mock.downloadOffsets)
	}
}

func TestAzureDelete(t *testing.T) {
	b, _ := newTestAzureBackend(t)
	ctx := context.Background()

	if err := b.Save(ctx, strings.NewReader("x"), "", "tok"); err != nil {
		t.Fatal(err)
	}
	if err := b.Delete(ctx, "tok"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := b.Delete(ctx, "tok"); !errors.Is(err, stoxyerr.ErrNotFound) {
		t.Errorf("second Delete: got %v, want ErrNotFound", err)
	}
	if _, err := b.Load(ctx, "tok"); !errors.Is(err, stoxyerr.ErrNotFound) {
		t.Errorf("Load after delete: got %v, want ErrNotFound", err)
	}
}

func TestAzureRequiresCredentials(t *testing.T) {
	b, mock := newTestAzureBackend(t)
	if _, err := b.Load(context.Background(), ""); !errors.Is(err, stoxyerr.ErrCredentialsRequired) {
		t.Errorf("Load without token: %v", err)
	}
	if len(mock.tokens) != 0 {
		t.Error("client created without credentials")
	}
}

func TestIsAzureNotFound(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{fmt.Errorf("BlobNotFound: the specified blob does not exist"), true},
		{fmt.Errorf("ContainerNotFound"), true},
		{fmt.Errorf("AuthenticationFailed"), false},
		{nil, false},
	}
	for _, tt := range tests {
		if got := isAzureNotFound(tt.err); got != tt.want {
			t.Errorf("isAzureNotFound(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
