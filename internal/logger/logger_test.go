package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/gxo-labs/taskgraph/internal/logger"
	tgerrors "github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/errors"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	return rec
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, logger.ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, logger.ParseLevel("WARN"))
	assert.Equal(t, slog.LevelError, logger.ParseLevel(" error "))
	assert.Equal(t, slog.LevelInfo, logger.ParseLevel("verbose"))
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewLogger("warn", "json", &buf)

	log.Infof("hidden %d", 1)
	assert.Zero(t, buf.Len())
	assert.False(t, log.IsEnabled(slog.LevelInfo))

	log.Warnf("shown %d", 2)
	rec := decode(t, &buf)
	assert.Equal(t, "WARN", rec["level"])
	assert.Equal(t, "shown 2", rec["msg"])
}

func TestErrorfAddsTaskFields(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewLogger("info", "json", &buf)

	err := tgerrors.NewTaskExecutionError("GenerateExpo(fold=test, weight=16)", errors.New("boom"))
	log.Errorf("task failed: %v", err)

	rec := decode(t, &buf)
	assert.Equal(t, "ERROR", rec["level"])
	assert.Equal(t, "TaskExecutionError", rec["error_type"])
	assert.Equal(t, "GenerateExpo(fold=test, weight=16)", rec["task_id"])
	assert.Contains(t, rec["msg"], "boom")
}

func TestWithAddsAttributes(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewLogger("debug", "json", &buf).With("run_id", "abc")
	log.Debugf("hello")
	assert.Equal(t, "abc", decode(t, &buf)["run_id"])
}

func TestLogCtxInjectsTraceIDs(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewLogger("info", "json", &buf)

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	log.LogCtx(ctx, slog.LevelInfo, "traced")
	rec := decode(t, &buf)
	assert.Equal(t, span.SpanContext().TraceID().String(), rec["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), rec["span_id"])
}

func TestSlogAccessor(t *testing.T) {
	assert.NotNil(t, logger.Slog(logger.NewDefaultLogger("info")))
}
