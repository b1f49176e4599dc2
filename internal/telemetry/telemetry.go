// Package telemetry publishes the four request lifecycle events.
package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/retz8/iris/internal/errors"
	"github.com/retz8/iris/internal/models"
)

// EventType names a lifecycle stage.
type EventType string

const (
	EventRequested EventType = "requested"
	EventStarted   EventType = "started"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
)

// Event is one lifecycle notification.
type Event struct {
	Type        EventType            `json:"type"`
	RequestID   string               `json:"request_id"`
	Filename    string               `json:"filename,omitempty"`
	Language    string               `json:"language"`
	ContentHash string               `json:"content_hash,omitempty"`
	Bytes       int                  `json:"bytes"`
	Lines       int                  `json:"lines"`
	Tokens      int                  `json:"tokens"`
	CacheHit    bool                 `json:"cache_hit"`
	Path        models.ExecutionPath `json:"path,omitempty"`
	ToolCalls   int                  `json:"tool_calls,omitempty"`
	Code        errors.Code          `json:"code,omitempty"`
	Latency     time.Duration        `json:"latency"`
	Time        time.Time            `json:"time"`
}

// Sink consumes events. Emit must not block for long.
type Sink interface {
	Emit(ctx context.Context, ev Event)
}

// Emit delivers ev to sink, recovering any panic so a faulty sink never
// affects a request.
func Emit(ctx context.Context, sink Sink, ev Event) {
	if sink == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Default().Warn("telemetry sink panicked", "component", "telemetry", "event", ev.Type, "panic", r)
		}
	}()
	sink.Emit(ctx, ev)
}

// NopSink discards events.
type NopSink struct{}

func (NopSink) Emit(context.Context, Event) {}

// MultiSink fans out to every sink in order.
type MultiSink []Sink

func (m MultiSink) Emit(ctx context.Context, ev Event) {
	for _, s := range m {
		Emit(ctx, s, ev)
	}
}

// LogSink writes events as structured log records.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink logs through logger, or the default logger when nil.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger.With("component", "telemetry")}
}

func (s *LogSink) Emit(ctx context.Context, ev Event) {
	attrs := []any{
		"event", ev.Type,
		"request_id", ev.RequestID,
		"language", ev.Language,
		"bytes", ev.Bytes,
		"lines", ev.Lines,
		"tokens", ev.Tokens,
		"cache_hit", ev.CacheHit,
	}
	if ev.Path != "" {
		attrs = append(attrs, "path", ev.Path)
	}
	if ev.Latency > 0 {
		attrs = append(attrs, "latency_ms", ev.Latency.Milliseconds())
	}

	if ev.Type == EventFailed {
		s.logger.WarnContext(ctx, "analysis failed", append(attrs, "code", ev.Code)...)
		return
	}
	s.logger.DebugContext(ctx, "analysis "+string(ev.Type), attrs...)
}
