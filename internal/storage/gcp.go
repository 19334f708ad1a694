package storage

// The GCS store keeps each data object's content as one GCS object. The
// request credentials are an OAuth2 access token; a short-lived client is
// built around it for every operation.

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	gcs "cloud.google.com/go/storage"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// GCSAPI defines the subset of GCS client operations that the store uses.
// This allows mocking in tests.
type GCSAPI interface {
	NewWriter(ctx context.Context, bucket, object string) io.WriteCloser
	NewRangeReader(ctx context.Context, bucket, object string, offset int64) (io.ReadCloser, error)
	Size(ctx context.Context, bucket, object string) (int64, error)
	Delete(ctx context.Context, bucket, object string) error
	Close() error
}

// GCSClientFunc builds a client authorized by an access token.
type GCSClientFunc func(ctx context.Context, token string) (GCSAPI, error)

// realGCSClient wraps the real GCS client to satisfy GCSAPI.
type realGCSClient struct {
	client *gcs.Client
}

// NewGCSClientFunc returns a GCSClientFunc backed by the real GCS SDK.
// endpoint overrides the API endpoint when non-empty (e.g. an emulator).
func NewGCSClientFunc(endpoint string) GCSClientFunc {
	return func(ctx context.Context, token string) (GCSAPI, error) {
		opts := []option.ClientOption{
			option.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})),
		}
		if endpoint != "" {
			opts = append(opts, option.WithEndpoint(endpoint))
		}
		client, err := gcs.NewClient(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("creating GCS client: %w", err)
		}
		return &realGCSClient{client: client}, nil
	}
}

func (c *realGCSClient) NewWriter(ctx context.Context, bucket, object string) io.WriteCloser {
	return c.client.Bucket(bucket).Object(object).NewWriter(ctx)
}

func (c *realGCSClient) NewRangeReader(ctx context.Context, bucket, object string, offset int64) (io.ReadCloser, error) {
	return c.client.Bucket(bucket).Object(object).NewRangeReader(ctx, offset, -1)
}

func (c *realGCSClient) Size(ctx context.Context, bucket, object string) (int64, error) {
	attrs, err := c.client.Bucket(bucket).Object(object).Attrs(ctx)
	if err != nil {
		return 0, err
	}
	return attrs.Size, nil
}

func (c *realGCSClient) Delete(ctx context.Context, bucket, object string) error {
	return c.client.Bucket(bucket).Object(object).Delete(ctx)
}

func (c *realGCSClient) Close() error {
	return c.client.Close()
}

// GCSBackend stores one data object's content at Bucket/Object.
type GCSBackend struct {
	Bucket    string
	Object    string
	ChunkSize int
	newClient GCSClientFunc
}

// NewGCSFactory returns a factory for gs:// and gs+subscheme:// URIs.
func NewGCSFactory(newClient GCSClientFunc, profiles RemoteProfiles, chunkSize int) Factory {
	return func(target Target) (Store, error) {
		bucket, key, err := profiles.locate(target)
		if err != nil {
			return nil, err
		}
		return &GCSBackend{Bucket: bucket, Object: key, ChunkSize: chunkSize, newClient: newClient}, nil
	}
}

func (b *GCSBackend) where() string {
	return "gs://" + b.Bucket + "/" + b.Object
}

func (b *GCSBackend) client(ctx context.Context, creds string) (GCSAPI, error) {
	if err := requireCredentials(creds); err != nil {
		return nil, err
	}
	return b.newClient(ctx, creds)
}

// Save streams the decoded input straight into a GCS writer in chunks. On a
// copy failure the writer context is cancelled so the upload is abandoned
// rather than committed.
func (b *GCSBackend) Save(ctx context.Context, r io.Reader, encoding, creds string) error {
	src, err := decodeReader(r, encoding)
	if err != nil {
		return err
	}
	client, err := b.client(ctx, creds)
	if err != nil {
		return err
	}
	defer client.Close()

	wctx, cancel := context.WithCancel(ctx)
	defer cancel()
	w := client.NewWriter(wctx, b.Bucket, b.Object)

	chunk := b.ChunkSize
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}
	if _, err := io.CopyBuffer(struct{ io.Writer }{w}, &contextReader{ctx: ctx, r: src}, make([]byte, chunk)); err != nil {
		cancel()
		w.Close()
		return fmt.Errorf("uploading %s: %w", b.where(), err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing %s: %w", b.where(), err)
	}
	return nil
}

// Load returns a reader that opens ranged GCS reads on demand. The client is
// closed with the reader.
func (b *GCSBackend) Load(ctx context.Context, creds string) (io.ReadSeekCloser, error) {
	client, err := b.client(ctx, creds)
	if err != nil {
		return nil, err
	}
	size, err := client.Size(ctx, b.Bucket, b.Object)
	if err != nil {
		client.Close()
		if isGCSNotFound(err) {
			return nil, notFound(b.where())
		}
		return nil, fmt.Errorf("stat %s: %w", b.where(), err)
	}
	open := func(ctx context.Context, offset int64) (io.ReadCloser, error) {
		rc, err := client.NewRangeReader(ctx, b.Bucket, b.Object, offset)
		if err != nil {
			if isGCSNotFound(err) {
				return nil, notFound(b.where())
			}
			return nil, fmt.Errorf("downloading %s: %w", b.where(), err)
		}
		return rc, nil
	}
	return newRangeReader(ctx, size, open, client.Close), nil
}

// Delete removes the GCS object.
func (b *GCSBackend) Delete(ctx context.Context, creds string) error {
	client, err := b.client(ctx, creds)
	if err != nil {
		return err
	}
	defer client.Close()
	if err := client.Delete(ctx, b.Bucket, b.Object); err != nil {
		if isGCSNotFound(err) {
			return notFound(b.where())
		}
		return fmt.Errorf("deleting %s: %w", b.where(), err)
	}
	return nil
}

// isGCSNotFound checks whether a GCS error indicates a missing object or
// bucket, over either the JSON or the gRPC transport.
func isGCSNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gcs.ErrObjectNotExist) || errors.Is(err, gcs.ErrBucketNotExist) {
		return true
	}
	if s, ok := status.FromError(err); ok && s.Code() == codes.NotFound {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "404")
}

var _ Store = (*GCSBackend)(nil)
