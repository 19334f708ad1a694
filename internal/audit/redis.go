package audit

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stoxy/stoxy/internal/metrics"
)

// DefaultStream is the stream events are appended to when none is configured.
const DefaultStream = "stoxy:audit"

// streamClient is the subset of *redis.Client used by RedisSink.
type streamClient interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// RedisSink appends events to a Redis stream with XADD.
type RedisSink struct {
	client  streamClient
	stream  string
	timeout time.Duration
}

// NewRedisSink connects to the Redis server at url and checks it answers.
func NewRedisSink(ctx context.Context, url, stream string) (*RedisSink, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return newRedisSink(client, stream), nil
}

func newRedisSink(client streamClient, stream string) *RedisSink {
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisSink{client: client, stream: stream, timeout: 2 * time.Second}
}

// Log implements Logger. The append is bounded by its own timeout and
// detached from ctx so a finished request does not drop its event.
func (s *RedisSink) Log(ctx context.Context, e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	addCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	err := s.client.XAdd(addCtx, &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"time":      e.Time.Format(time.RFC3339Nano),
			"principal": e.Principal,
			"subject":   e.Subject,
			"owner":     e.Owner,
			"message":   e.Message,
			"failed":    strconv.FormatBool(e.Failed),
		},
	}).Err()
	metrics.AuditEventsTotal.WithLabelValues("redis", metrics.Status(err)).Inc()
	if err != nil {
		slog.Warn("Audit event not written to redis", "stream", s.stream, "error", err)
	}
}

// Close closes the Redis connection.
func (s *RedisSink) Close() error {
	return s.client.Close()
}
