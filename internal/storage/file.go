package storage

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	stoxyerr "github.com/stoxy/stoxy/internal/errors"
)

// tempPrefix marks in-flight writes. Files carrying it are never visible as
// content and are removed by CleanTempFiles.
const tempPrefix = ".stoxy-tmp-"

// FileBackend stores a data object's content in a single local file, named by
// the path component of a file:// URI.
type FileBackend struct {
	// Path is the absolute filesystem path of the content.
	Path string
	// ChunkSize is the copy buffer size. Zero means DefaultChunkSize.
	ChunkSize int
}

// NewFileFactory returns a factory for file:// URIs. When roots is non-empty,
// resolved paths must fall inside one of them.
func NewFileFactory(roots []string, chunkSize int) Factory {
	clean := make([]string, 0, len(roots))
	for _, r := range roots {
		if r != "" {
			clean = append(clean, filepath.Clean(r))
		}
	}
	return func(target Target) (Store, error) {
		u := target.URI
		if u.Host != "" && u.Host != "localhost" {
			return nil, stoxyerr.ErrMalformedURI.WithMessage("file URI %q names a remote host", u.String())
		}
		if u.Path == "" {
			return nil, stoxyerr.ErrMalformedURI.WithMessage("file URI %q has no path", u.String())
		}
		p := filepath.Clean(filepath.FromSlash(u.Path))
		if len(clean) > 0 && !withinAny(p, clean) {
			return nil, stoxyerr.ErrBadRequest.WithMessage("file path %q is outside the permitted storage roots", p)
		}
		return &FileBackend{Path: p, ChunkSize: chunkSize}, nil
	}
}

func withinAny(p string, roots []string) bool {
	for _, root := range roots {
		rel, err := filepath.Rel(root, p)
		if err != nil {
			continue
		}
		if rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && rel != "." {
			return true
		}
	}
	return false
}

// CleanTempFiles removes leftovers of interrupted writes below root. This is
// called on startup as part of crash-only recovery.
func CleanTempFiles(root string) (int, error) {
	removed := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !d.IsDir() && strings.HasPrefix(d.Name(), tempPrefix) {
			if err := os.Remove(path); err == nil {
				removed++
			}
		}
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("cleaning temp files under %q: %w", root, err)
	}
	return removed, nil
}

func (b *FileBackend) chunkSize() int {
	if b.ChunkSize > 0 {
		return b.ChunkSize
	}
	return DefaultChunkSize
}

// Save writes content using the crash-only atomic pattern: write to a temp
// file next to the target, fsync, rename. Readers never observe a partial
// file.
func (b *FileBackend) Save(ctx context.Context, r io.Reader, encoding, _ string) error {
	src, err := decodeReader(r, encoding)
	if err != nil {
		return err
	}

	dir := filepath.Dir(b.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating parent directories for %q: %w", b.Path, err)
	}

	tmpFile, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	// Hide ReaderFrom/WriterTo so the copy goes through buf in fixed chunks.
	buf := make([]byte, b.chunkSize())
	if _, err := io.CopyBuffer(struct{ io.Writer }{tmpFile}, &contextReader{ctx: ctx, r: src}, buf); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing content to %q: %w", b.Path, err)
	}

	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmpPath, b.Path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file to %q: %w", b.Path, err)
	}
	return nil
}

// Load opens the content file. *os.File already satisfies io.ReadSeekCloser.
func (b *FileBackend) Load(_ context.Context, _ string) (io.ReadSeekCloser, error) {
	f, err := os.Open(b.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, notFound(b.Path)
		}
		return nil, fmt.Errorf("opening %q: %w", b.Path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %q: %w", b.Path, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, notFound(b.Path)
	}
	return f, nil
}

// Delete removes the content file.
func (b *FileBackend) Delete(_ context.Context, _ string) error {
	if err := os.Remove(b.Path); err != nil {
		if os.IsNotExist(err) {
			return notFound(b.Path)
		}
		return fmt.Errorf("removing %q: %w", b.Path, err)
	}
	return nil
}

// contextReader stops a copy once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

var _ Store = (*FileBackend)(nil)
