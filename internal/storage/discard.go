package storage

import (
	"bytes"
	"context"
	"io"
)

// DiscardBackend is the null store: Save drains and drops its input, Load
// yields no bytes and Delete always succeeds. It backs null:// URIs and is
// useful for benchmarking the hierarchy without any content I/O.
type DiscardBackend struct{}

// NewDiscardFactory returns a factory for null:// URIs.
func NewDiscardFactory() Factory {
	return func(Target) (Store, error) {
		return DiscardBackend{}, nil
	}
}

func (DiscardBackend) Save(ctx context.Context, r io.Reader, encoding, _ string) error {
	src, err := decodeReader(r, encoding)
	if err != nil {
		return err
	}
	_, err = io.Copy(io.Discard, &contextReader{ctx: ctx, r: src})
	return err
}

func (DiscardBackend) Load(context.Context, string) (io.ReadSeekCloser, error) {
	return nopSeekCloser{bytes.NewReader(nil)}, nil
}

func (DiscardBackend) Delete(context.Context, string) error {
	return nil
}

type nopSeekCloser struct {
	io.ReadSeeker
}

func (nopSeekCloser) Close() error { return nil }

var _ Store = DiscardBackend{}
