package hooks

import (
	"context"
	"log/slog"
	"time"
)

// LoggerHook logs query execution through slog. Failures always log at error
// level; queries at or above the slow threshold log at warn level; with
// logAll set every remaining query logs at debug level.
type LoggerHook struct {
	logger        *slog.Logger
	logAll        bool
	slowThreshold time.Duration
}

// NewLoggerHook creates a logger hook. A zero slowThreshold disables slow
// query detection.
func NewLoggerHook(logger *slog.Logger, logAll bool, slowThreshold time.Duration) *LoggerHook {
	return &LoggerHook{
		logger:        logger,
		logAll:        logAll,
		slowThreshold: slowThreshold,
	}
}

// BeforeQuery implements QueryHook
func (h *LoggerHook) BeforeQuery(ctx context.Context, event *QueryEvent) context.Context {
	return ctx
}

// AfterQuery implements QueryHook
func (h *LoggerHook) AfterQuery(ctx context.Context, event *QueryEvent) {
	duration := event.Duration()
	slow := h.slowThreshold > 0 && duration >= h.slowThreshold

	level := slog.LevelDebug
	msg := "database query"
	switch {
	case event.Err != nil:
		level = slog.LevelError
		msg = "database query failed"
	case slow:
		level = slog.LevelWarn
		msg = "slow database query"
	case !h.logAll:
		return
	}

	attrs := []slog.Attr{
		slog.Duration("duration", duration),
		slog.String("operation", OperationType(event.Query)),
	}
	if h.logAll || slow || event.Err != nil {
		attrs = append(attrs, slog.String("query", event.Statement()))
	}
	if event.Err != nil {
		attrs = append(attrs, slog.String("error", event.Err.Error()))
	}
	h.logger.LogAttrs(ctx, level, msg, attrs...)
}
