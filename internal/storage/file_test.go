package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	stoxyerr "github.com/stoxy/stoxy/internal/errors"
	"github.com/stoxy/stoxy/internal/uri"
)

func newTestFileBackend(t *testing.T) (*FileBackend, string) {
	t.Helper()
	root := t.TempDir()
	f := NewFileFactory([]string{root}, 4)
	store, err := f(Target{URI: uri.URI{Scheme: "file", Path: filepath.ToSlash(filepath.Join(root, "sub", "obj.txt"))}})
	if err != nil {
		t.Fatalf("file factory failed: %v", err)
	}
	return store.(*FileBackend), root
}

func TestFileSaveAndLoad(t *testing.T) {
	b, _ := newTestFileBackend(t)
	ctx := context.Background()

	content := "Hello, Stoxy! This spans several 4-byte chunks."
	if err := b.Save(ctx, strings.NewReader(content), "", ""); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	rc, err := b.Load(ctx, "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if string(data) != content {
		t.Errorf("Load data = %q, want %q", data, content)
	}
}

func TestFileSaveBase64(t *testing.T) {
	b, _ := newTestFileBackend(t)
	ctx := context.Background()

	raw := []byte{0x00, 0xff, 0x10, 'a', 'b'}
	enc := base64.StdEncoding.EncodeToString(raw)
	if err := b.Save(ctx, strings.NewReader(enc), EncodingBase64, ""); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	got, err := os.ReadFile(b.Path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(got) != string(raw) {
		t.Errorf("decoded content = %v, want %v", got, raw)
	}
}

func TestFileSaveUnknownEncoding(t *testing.T) {
	b, _ := newTestFileBackend(t)
	err := b.Save(context.Background(), strings.NewReader("x"), "rot13", "")
	if !errors.Is(err, stoxyerr.ErrBadRequest) {
		t.Errorf("Save with unknown encoding: got %v, want ErrBadRequest", err)
	}
}

func TestFileSaveOverwrite(t *testing.T) {
	b, _ := newTestFileBackend(t)
	ctx := context.Background()

	if err := b.Save(ctx, strings.NewReader("first version"), "", ""); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := b.Save(ctx, strings.NewReader("second"), "", ""); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	got, _ := os.ReadFile(b.Path)
	if string(got) != "second" {
		t.Errorf("content = %q, want %q", got, "second")
	}

	entries, _ := os.ReadDir(filepath.Dir(b.Path))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), tempPrefix) {
			t.Errorf("temp file %q left behind", e.Name())
		}
	}
}

func TestFileSaveCancelled(t *testing.T) {
	b, _ := newTestFileBackend(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := b.Save(ctx, strings.NewReader("never written"), "", ""); err == nil {
		t.Fatal("Save with cancelled context should fail")
	}
	if _, err := os.Stat(b.Path); !os.IsNotExist(err) {
		t.Errorf("target should not exist after failed save, stat err = %v", err)
	}
}

func TestFileLoadNotFound(t *testing.T) {
	b, _ := newTestFileBackend(t)
	_, err := b.Load(context.Background(), "")
	if !errors.Is(err, stoxyerr.ErrNotFound) {
		t.Errorf("Load missing: got %v, want ErrNotFound", err)
	}
}

func TestFileDelete(t *testing.T) {
	b, _ := newTestFileBackend(t)
	ctx := context.Background()

	if err := b.Save(ctx, strings.NewReader("bye"), "", ""); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := b.Delete(ctx, ""); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := b.Delete(ctx, ""); !errors.Is(err, stoxyerr.ErrNotFound) {
		t.Errorf("second Delete: got %v, want ErrNotFound", err)
	}
}

func TestFileFactoryRejectsOutsideRoots(t *testing.T) {
	root := t.TempDir()
	f := NewFileFactory([]string{root}, 0)

	tests := []struct {
		name string
		u    uri.URI
		want error
	}{
		{"escape", uri.URI{Scheme: "file", Path: filepath.ToSlash(filepath.Join(root, "..", "etc", "passwd"))}, stoxyerr.ErrBadRequest},
		{"root itself", uri.URI{Scheme: "file", Path: filepath.ToSlash(root)}, stoxyerr.ErrBadRequest},
		{"remote host", uri.URI{Scheme: "file", Host: "example.com", Path: "/x"}, stoxyerr.ErrMalformedURI},
		{"no path", uri.URI{Scheme: "file"}, stoxyerr.ErrMalformedURI},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f(Target{URI: tt.u}); !errors.Is(err, tt.want) {
				t.Errorf("factory(%s) error = %v, want %v", tt.u, err, tt.want)
			}
		})
	}
}

func TestCleanTempFiles(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{
		filepath.Join(root, tempPrefix+"1"),
		filepath.Join(nested, tempPrefix+"2"),
		filepath.Join(nested, "keep.txt"),
	} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	n, err := CleanTempFiles(root)
	if err != nil {
		t.Fatalf("CleanTempFiles failed: %v", err)
	}
	if n != 2 {
		t.Errorf("removed %d files, want 2", n)
	}
	if _, err := os.Stat(filepath.Join(nested, "keep.txt")); err != nil {
		t.Errorf("regular file removed: %v", err)
	}
}

func TestCleanTempFilesMissingRoot(t *testing.T) {
	if _, err := CleanTempFiles(filepath.Join(t.TempDir(), "absent")); err != nil {
		t.Errorf("CleanTempFiles on missing root: %v", err)
	}
}
