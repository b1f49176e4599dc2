package analysis

import (
	"log/slog"

	"github.com/retz8/iris/internal/errors"
	"github.com/retz8/iris/internal/models"
)

// IterationEvent describes one exchange of a run.
type IterationEvent struct {
	RequestID string
	Path      models.ExecutionPath
	Iteration int
	ToolCalls int
	// Terminal is set on the finishing event of the iteration that
	// produced the payload.
	Terminal bool
}

// FallbackEvent describes a switch to a cheaper path.
type FallbackEvent struct {
	RequestID string
	From      models.ExecutionPath
	To        models.ExecutionPath
	Code      errors.Code
	Reason    string
}

// Observer is notified synchronously at fixed points of a run. It cannot
// influence the run.
type Observer interface {
	IterationStarted(IterationEvent)
	IterationFinished(IterationEvent)
	FallbackTriggered(FallbackEvent)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) IterationStarted(IterationEvent)  {}
func (NopObserver) IterationFinished(IterationEvent) {}
func (NopObserver) FallbackTriggered(FallbackEvent)  {}

// LogObserver logs every event at debug level.
type LogObserver struct {
	Logger *slog.Logger
}

func (o LogObserver) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

func (o LogObserver) IterationStarted(ev IterationEvent) {
	o.logger().Debug("iteration started", "request_id", ev.RequestID, "path", ev.Path,
		"iteration", ev.Iteration, "tool_calls", ev.ToolCalls)
}

func (o LogObserver) IterationFinished(ev IterationEvent) {
	o.logger().Debug("iteration finished", "request_id", ev.RequestID, "path", ev.Path,
		"iteration", ev.Iteration, "tool_calls", ev.ToolCalls, "terminal", ev.Terminal)
}

func (o LogObserver) FallbackTriggered(ev FallbackEvent) {
	o.logger().Info("fallback triggered", "request_id", ev.RequestID, "from", ev.From,
		"to", ev.To, "code", ev.Code, "reason", ev.Reason)
}

// guardedObserver swallows observer panics.
type guardedObserver struct {
	inner  Observer
	logger *slog.Logger
}

func guard(o Observer, logger *slog.Logger) Observer {
	if o == nil {
		return NopObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return guardedObserver{inner: o, logger: logger}
}

func (g guardedObserver) rescue(event string) {
	if r := recover(); r != nil {
		g.logger.Warn("observer panicked", "event", event, "panic", r)
	}
}

func (g guardedObserver) IterationStarted(ev IterationEvent) {
	defer g.rescue("iteration_started")
	g.inner.IterationStarted(ev)
}

func (g guardedObserver) IterationFinished(ev IterationEvent) {
	defer g.rescue("iteration_finished")
	g.inner.IterationFinished(ev)
}

func (g guardedObserver) FallbackTriggered(ev FallbackEvent) {
	defer g.rescue("fallback_triggered")
	g.inner.FallbackTriggered(ev)
}
