package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"

	stoxyerr "github.com/stoxy/stoxy/internal/errors"
	"github.com/stoxy/stoxy/internal/uri"
)

func TestRegistryOpen(t *testing.T) {
	reg := NewRegistry()
	reg.Register("null", NewDiscardFactory())
	reg.Register("FILE", NewFileFactory(nil, 0))

	if got := reg.Schemes(); !reflect.DeepEqual(got, []string{"file", "null"}) {
		t.Errorf("Schemes() = %v", got)
	}

	store, err := reg.Open(Target{URI: uri.URI{Scheme: "null"}})
	if err != nil {
		t.Fatalf("Open(null) failed: %v", err)
	}
	if _, ok := store.(DiscardBackend); !ok {
		t.Errorf("Open(null) = %T, want DiscardBackend", store)
	}

	_, err = reg.Open(Target{URI: uri.URI{Scheme: "ftp", Host: "h", Path: "/p"}})
	if !errors.Is(err, stoxyerr.ErrUnknownBackend) {
		t.Errorf("Open(ftp) error = %v, want ErrUnknownBackend", err)
	}
}

func TestDiscardBackend(t *testing.T) {
	ctx := context.Background()
	store, _ := NewDiscardFactory()(Target{})

	r := strings.NewReader("dropped on the floor")
	if err := store.Save(ctx, r, "", ""); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if r.Len() != 0 {
		t.Errorf("Save left %d unread bytes", r.Len())
	}

	rc, err := store.Load(ctx, "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if len(data) != 0 {
		t.Errorf("Load returned %d bytes, want 0", len(data))
	}

	if err := store.Delete(ctx, ""); err != nil {
		t.Errorf("Delete failed: %v", err)
	}
}

func TestRemoteProfilesLocate(t *testing.T) {
	profiles := RemoteProfiles{"archive": {Bucket: "cold", Prefix: "stoxy/"}}

	tests := []struct {
		name       string
		target     Target
		wantBucket string
		wantKey    string
		wantErr    error
	}{
		{"plain", Target{URI: uri.URI{Scheme: "s3", Host: "b", Path: "/k/v"}}, "b", "k/v", nil},
		{"compound", Target{URI: uri.URI{Scheme: "s3", Subscheme: "archive"}, ObjectID: "abc"}, "cold", "stoxy/abc", nil},
		{"unknown profile", Target{URI: uri.URI{Scheme: "s3", Subscheme: "nope"}, ObjectID: "abc"}, "", "", stoxyerr.ErrUnknownBackend},
		{"compound without id", Target{URI: uri.URI{Scheme: "s3", Subscheme: "archive"}}, "", "", stoxyerr.ErrMalformedURI},
		{"no key", Target{URI: uri.URI{Scheme: "s3", Host: "b"}}, "", "", stoxyerr.ErrMalformedURI},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bucket, key, err := profiles.locate(tt.target)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("locate error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("locate failed: %v", err)
			}
			if bucket != tt.wantBucket || key != tt.wantKey {
				t.Errorf("locate = %q/%q, want %q/%q", bucket, key, tt.wantBucket, tt.wantKey)
			}
		})
	}
}

func TestRangeReaderSeek(t *testing.T) {
	data := []byte("0123456789")
	var opens []int64
	open := func(_ context.Context, offset int64) (io.ReadCloser, error) {
		opens = append(opens, offset)
		return io.NopCloser(bytes.NewReader(data[offset:])), nil
	}
	closed := false
	rr := newRangeReader(context.Background(), int64(len(data)), open, func() error {
		closed = true
		return nil
	})

	if _, err := rr.Seek(3, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 4)
	if _, err := io.ReadFull(rr, buf); err != nil {
		t.Fatal(err)
	}
	if string(buf) != "3456" {
		t.Errorf("read %q, want %q", buf, "3456")
	}

	if _, err := rr.Seek(-2, io.SeekEnd); err != nil {
		t.Fatal(err)
	}
	rest, _ := io.ReadAll(rr)
	if string(rest) != "89" {
		t.Errorf("read %q after SeekEnd, want %q", rest, "89")
	}
	if !reflect.DeepEqual(opens, []int64{3, 8}) {
		t.Errorf("ranged opens = %v, want [3 8]", opens)
	}

	if err := rr.Close(); err != nil {
		t.Fatal(err)
	}
	if !closed {
		t.Error("onClose not invoked")
	}
	if _, err := rr.Seek(-1, io.SeekStart); err == nil {
		t.Error("negative seek should fail")
	}
}

func TestRangeReaderShortBody(t *testing.T) {
	open := func(context.Context, int64) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader("abc")), nil
	}
	rr := newRangeReader(context.Background(), 10, open, nil)
	_, err := io.ReadAll(rr)
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("ReadAll error = %v, want ErrUnexpectedEOF", err)
	}
}

func TestRequireCredentials(t *testing.T) {
	if err := requireCredentials(""); !errors.Is(err, stoxyerr.ErrCredentialsRequired) {
		t.Errorf("empty credentials: got %v", err)
	}
	if err := requireCredentials("token"); err != nil {
		t.Errorf("non-empty credentials: got %v", err)
	}
}
