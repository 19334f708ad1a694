package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	stoxyerr "github.com/stoxy/stoxy/internal/errors"
)

// RemoteProfile names where a compound scheme+subscheme:// URI keeps its
// content: objects land at Bucket under Prefix+objectID.
type RemoteProfile struct {
	Bucket string
	Prefix string
}

// RemoteProfiles maps a subscheme to its profile.
type RemoteProfiles map[string]RemoteProfile

// locate returns the bucket and key for target. Plain URIs use the host as
// the bucket and the path as the key. Compound URIs are looked up by
// subscheme and keyed by object ID, which survives renames.
func (p RemoteProfiles) locate(target Target) (bucket, key string, err error) {
	u := target.URI
	if u.Compound() {
		prof, ok := p[u.Subscheme]
		if !ok {
			return "", "", stoxyerr.ErrUnknownBackend.WithMessage("no remote profile configured for %q", u.Subscheme)
		}
		if target.ObjectID == "" {
			return "", "", stoxyerr.ErrMalformedURI.WithMessage("compound URI %q requires an object ID", u.String())
		}
		return prof.Bucket, prof.Prefix + target.ObjectID, nil
	}
	key = strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return "", "", stoxyerr.ErrMalformedURI.WithMessage("URI %q must name a bucket and a key", u.String())
	}
	return u.Host, key, nil
}

func requireCredentials(credentials string) error {
	if credentials == "" {
		return stoxyerr.ErrCredentialsRequired
	}
	return nil
}

// spool copies r into a temp file, removed on Close, so SDKs that need a
// seekable body with a known length can upload it without holding the whole
// payload in memory.
func spool(ctx context.Context, r io.Reader, encoding string, chunkSize int) (*spoolFile, error) {
	src, err := decodeReader(r, encoding)
	if err != nil {
		return nil, err
	}
	f, err := os.CreateTemp("", tempPrefix+"spool-*")
	if err != nil {
		return nil, fmt.Errorf("creating spool file: %w", err)
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	n, err := io.CopyBuffer(struct{ io.Writer }{f}, &contextReader{ctx: ctx, r: src}, make([]byte, chunkSize))
	if err == nil {
		_, err = f.Seek(0, io.SeekStart)
	}
	if err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("spooling upload: %w", err)
	}
	return &spoolFile{File: f, size: n}, nil
}

type spoolFile struct {
	*os.File
	size int64
}

// Close closes and removes the spool file.
func (s *spoolFile) Close() error {
	err := s.File.Close()
	if rmErr := os.Remove(s.Name()); rmErr != nil && err == nil {
		err = rmErr
	}
	return err
}

// rangeOpener opens remote content for reading from offset to the end.
type rangeOpener func(ctx context.Context, offset int64) (io.ReadCloser, error)

// rangeReader adapts a ranged remote download into an io.ReadSeekCloser. At
// most one response body is open at a time; seeking drops it and the next Read
// issues a fresh ranged request.
type rangeReader struct {
	ctx     context.Context
	open    rangeOpener
	size    int64
	offset  int64
	body    io.ReadCloser
	onClose func() error
}

func newRangeReader(ctx context.Context, size int64, open rangeOpener, onClose func() error) *rangeReader {
	return &rangeReader{ctx: ctx, open: open, size: size, onClose: onClose}
}

func (r *rangeReader) Read(p []byte) (int, error) {
	if r.offset >= r.size {
		return 0, io.EOF
	}
	if r.body == nil {
		body, err := r.open(r.ctx, r.offset)
		if err != nil {
			return 0, err
		}
		r.body = body
	}
	n, err := r.body.Read(p)
	r.offset += int64(n)
	if errors.Is(err, io.EOF) && r.offset < r.size {
		err = io.ErrUnexpectedEOF
	}
	return n, err
}

func (r *rangeReader) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = r.offset + offset
	case io.SeekEnd:
		abs = r.size + offset
	default:
		return 0, fmt.Errorf("seek: invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, fmt.Errorf("seek: negative position %d", abs)
	}
	if abs != r.offset && r.body != nil {
		r.body.Close()
		r.body = nil
	}
	r.offset = abs
	return abs, nil
}

func (r *rangeReader) Close() error {
	var err error
	if r.body != nil {
		err = r.body.Close()
		r.body = nil
	}
	if r.onClose != nil {
		if cerr := r.onClose(); err == nil {
			err = cerr
		}
		r.onClose = nil
	}
	return err
}
