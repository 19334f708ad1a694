package handlers

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/stoxy/stoxy/internal/auth"
	stoxyerr "github.com/stoxy/stoxy/internal/errors"
	"github.com/stoxy/stoxy/internal/hierarchy"
	"github.com/stoxy/stoxy/internal/metrics"
)

// stream writes e's raw content, honoring a Range header. The backend reader
// is closed on every path.
func (h *Handler) stream(w http.ResponseWriter, r *http.Request, e *hierarchy.Entity, p auth.Principal) error {
	ctx := r.Context()
	store, err := h.resolver.Existing(e)
	if err != nil {
		writeError(w, r, err)
		return err
	}
	rc, err := store.Load(ctx, p.Token)
	if err != nil {
		writeError(w, r, err)
		return err
	}
	defer rc.Close()

	size, err := rc.Seek(0, io.SeekEnd)
	if err != nil {
		writeError(w, r, err)
		return err
	}
	s := span{begin: 0, end: size}
	status := http.StatusOK
	if rh := r.Header.Get("Range"); rh != "" {
		s, err = parseRange(rh, size)
		if err != nil {
			writeError(w, r, err)
			return err
		}
		status = http.StatusPartialContent
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", s.begin, s.end-1, size))
	}
	if _, err := rc.Seek(s.begin, io.SeekStart); err != nil {
		writeError(w, r, err)
		return err
	}

	mime := e.MimeType
	if mime == "" {
		mime = "application/octet-stream"
	}
	w.Header().Set("Content-Type", mime)
	w.Header().Set("Content-Length", strconv.FormatInt(s.end-s.begin, 10))
	w.WriteHeader(status)

	n, err := pump(ctx, w, io.LimitReader(rc, s.end-s.begin), h.cfg.ChunkSize)
	metrics.BytesSentTotal.Add(float64(n))
	if err != nil {
		// Headers are gone; all that is left is to stop and log.
		slog.Warn("Streaming aborted", "path", r.URL.Path, "oid", e.ID, "sent", n, "error", err)
	}
	return err
}

// pump copies src to w through a producer goroutine that reads one chunk
// ahead and a consumer that writes and flushes. Two buffers circulate
// between them, so at most one chunk is buffered ahead of the client.
func pump(ctx context.Context, w io.Writer, src io.Reader, chunkSize int) (int64, error) {
	g, ctx := errgroup.WithContext(ctx)
	chunks := make(chan []byte)
	free := make(chan []byte, 2)
	free <- make([]byte, chunkSize)
	free <- make([]byte, chunkSize)

	g.Go(func() error {
		defer close(chunks)
		for {
			var buf []byte
			select {
			case buf = <-free:
			case <-ctx.Done():
				return ctx.Err()
			}
			n, err := io.ReadFull(src, buf)
			if n > 0 {
				select {
				case chunks <- buf[:n]:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			switch err {
			case nil:
			case io.EOF, io.ErrUnexpectedEOF:
				return nil
			default:
				return err
			}
		}
	})

	var written int64
	g.Go(func() error {
		flusher, _ := w.(http.Flusher)
		for chunk := range chunks {
			n, err := w.Write(chunk)
			written += int64(n)
			if err != nil {
				return err
			}
			if flusher != nil {
				flusher.Flush()
			}
			free <- chunk[:cap(chunk)]
		}
		return nil
	})

	err := g.Wait()
	return written, err
}

// parseRange parses "begin-end" or "bytes=begin-end" into the half-open span
// [begin, end) clamped to size. An omitted end means the end of content.
func parseRange(header string, size int64) (span, error) {
	rng := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(header), "bytes="))
	if strings.Contains(rng, ",") {
		return span{}, stoxyerr.ErrBadRequest.WithMessage("multi-range not supported")
	}
	beginStr, endStr, ok := strings.Cut(rng, "-")
	if !ok {
		return span{}, stoxyerr.ErrBadRequest.WithMessage("invalid range %q", header)
	}
	begin, err := strconv.ParseInt(strings.TrimSpace(beginStr), 10, 64)
	if err != nil || begin < 0 {
		return span{}, stoxyerr.ErrBadRequest.WithMessage("invalid range start %q", beginStr)
	}
	end := size
	if endStr = strings.TrimSpace(endStr); endStr != "" {
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil || end < 0 {
			return span{}, stoxyerr.ErrBadRequest.WithMessage("invalid range end %q", endStr)
		}
	}
	s := span{begin: begin, end: end}.clamp(size)
	if s.begin >= s.end {
		return span{}, stoxyerr.ErrBadRequest.WithMessage("range %q not satisfiable for %d bytes", header, size)
	}
	return s, nil
}
