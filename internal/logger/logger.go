package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	tgerrors "github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/errors"
	tglog "github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/log"
	"go.opentelemetry.io/otel/trace"
)

const defaultLevel = slog.LevelInfo

// ParseLevel converts DEBUG, INFO, WARN or ERROR (any case) to a slog level.
// Unknown strings map to INFO.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return defaultLevel
	}
}

// slogLogger implements tglog.Logger on top of log/slog.
type slogLogger struct {
	*slog.Logger
}

var _ tglog.Logger = (*slogLogger)(nil)

// NewLogger creates a Logger writing "text" or "json" records at level to w
// (os.Stderr when nil). Records logged with a span in their context carry
// trace_id and span_id.
func NewLogger(level string, format string, w io.Writer) tglog.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{
		Level:       ParseLevel(level),
		ReplaceAttr: upperLevel,
	}

	var h slog.Handler
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return &slogLogger{Logger: slog.New(NewOtelHandler(h))}
}

// NewDefaultLogger is a text logger on stderr.
func NewDefaultLogger(level string) tglog.Logger {
	return NewLogger(level, "text", os.Stderr)
}

// Slog returns the slog.Logger behind l, for libraries that take one. Loggers
// from other implementations get a logger that discards records below WARN.
func Slog(l tglog.Logger) *slog.Logger {
	if sl, ok := l.(*slogLogger); ok {
		return sl.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func upperLevel(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	if lvl, ok := a.Value.Any().(slog.Level); ok {
		a.Value = slog.StringValue(strings.ToUpper(lvl.String()))
	}
	return a
}

func (l *slogLogger) Debugf(format string, args ...interface{}) {
	l.printf(slog.LevelDebug, format, args)
}

func (l *slogLogger) Infof(format string, args ...interface{}) {
	l.printf(slog.LevelInfo, format, args)
}

func (l *slogLogger) Warnf(format string, args ...interface{}) {
	l.printf(slog.LevelWarn, format, args)
}

// Errorf formats the message like the other levels. When the last argument is
// an error it is also attached as structured fields.
func (l *slogLogger) Errorf(format string, args ...interface{}) {
	ctx := context.Background()
	if !l.Logger.Enabled(ctx, slog.LevelError) {
		return
	}
	msg := fmt.Sprintf(format, args...)
	var attrs []any
	if len(args) > 0 {
		if err, ok := args[len(args)-1].(error); ok {
			attrs = errorAttrs(err)
		}
	}
	l.Logger.Log(ctx, slog.LevelError, msg, attrs...)
}

func (l *slogLogger) printf(level slog.Level, format string, args []interface{}) {
	ctx := context.Background()
	if !l.Logger.Enabled(ctx, level) {
		return
	}
	l.Logger.Log(ctx, level, fmt.Sprintf(format, args...))
}

// errorAttrs extracts the fields of the engine's error types.
func errorAttrs(err error) []any {
	var (
		execErr     *tgerrors.TaskExecutionError
		contractErr *tgerrors.ContractViolationError
		inputErr    *tgerrors.MalformedInputError
		cycleErr    *tgerrors.CycleError
	)
	switch {
	case errors.As(err, &execErr):
		return []any{
			slog.String("error_type", "TaskExecutionError"),
			slog.String("task_id", execErr.TaskID),
			slog.String("error", err.Error()),
		}
	case errors.As(err, &contractErr):
		return []any{
			slog.String("error_type", "ContractViolationError"),
			slog.String("task_id", contractErr.TaskID),
			slog.Any("missing_outputs", contractErr.Missing),
		}
	case errors.As(err, &inputErr):
		return []any{
			slog.String("error_type", "MalformedInputError"),
			slog.String("source", inputErr.Source),
			slog.Int("line", inputErr.Line),
			slog.String("error", err.Error()),
		}
	case errors.As(err, &cycleErr):
		return []any{
			slog.String("error_type", "CycleError"),
			slog.Any("cycle", cycleErr.Path),
		}
	default:
		return []any{slog.String("error", err.Error())}
	}
}

func (l *slogLogger) Log(level slog.Level, msg string, args ...interface{}) {
	l.Logger.Log(context.Background(), level, msg, args...)
}

func (l *slogLogger) LogCtx(ctx context.Context, level slog.Level, msg string, args ...interface{}) {
	l.Logger.Log(ctx, level, msg, args...)
}

func (l *slogLogger) With(args ...interface{}) tglog.Logger {
	return &slogLogger{Logger: l.Logger.With(args...)}
}

func (l *slogLogger) IsEnabled(level slog.Level) bool {
	return l.Logger.Enabled(context.Background(), level)
}

// OtelHandler is a slog.Handler middleware that adds trace_id and span_id
// attributes when the record's context carries a valid span.
type OtelHandler struct {
	next slog.Handler
}

func NewOtelHandler(next slog.Handler) *OtelHandler {
	return &OtelHandler{next: next}
}

func (h *OtelHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *OtelHandler) Handle(ctx context.Context, record slog.Record) error {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		record.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return h.next.Handle(ctx, record)
}

func (h *OtelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return NewOtelHandler(h.next.WithAttrs(attrs))
}

func (h *OtelHandler) WithGroup(name string) slog.Handler {
	return NewOtelHandler(h.next.WithGroup(name))
}
