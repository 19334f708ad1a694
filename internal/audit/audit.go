// Package audit records who did what to which entity. Sinks are side
// effects: a failing sink is logged and counted, never returned to the
// request that produced the event.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/stoxy/stoxy/internal/metrics"
)

// Event is one audit record.
type Event struct {
	Time      time.Time
	Principal string
	// Subject is the hierarchy path the action targeted.
	Subject string
	// Owner is the owner of the subject, empty when unknown.
	Owner   string
	Message string
	Failed  bool
}

// Logger accepts audit events.
type Logger interface {
	Log(ctx context.Context, e Event)
}

// Multi fans an event out to every logger in order.
type Multi []Logger

// Log implements Logger.
func (m Multi) Log(ctx context.Context, e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	for _, l := range m {
		l.Log(ctx, e)
	}
}

// SlogSink writes events to a structured logger.
type SlogSink struct {
	logger *slog.Logger
}

// NewSlogSink creates a SlogSink. A nil logger uses slog.Default.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{logger: logger.With("component", "audit")}
}

// Log implements Logger.
func (s *SlogSink) Log(ctx context.Context, e Event) {
	level := slog.LevelInfo
	if e.Failed {
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, e.Message,
		"principal", e.Principal,
		"subject", e.Subject,
		"owner", e.Owner,
	)
	metrics.AuditEventsTotal.WithLabelValues("slog", "success").Inc()
}
