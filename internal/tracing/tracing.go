package tracing

import (
	"fmt"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	codes "go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/task"
)

// Attribute keys shared by pass and task spans.
const (
	AttrRunID      = attribute.Key("taskgraph.run_id")
	AttrTaskID     = attribute.Key("taskgraph.task.id")
	AttrTaskFamily = attribute.Key("taskgraph.task.family")
	AttrTaskKind   = attribute.Key("taskgraph.task.kind")
	AttrTaskStatus = attribute.Key("taskgraph.task.status")
)

// TaskAttributes describes t for span attributes.
func TaskAttributes(t task.Task) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		AttrTaskID.String(task.ID(t)),
		AttrTaskFamily.String(t.Family()),
		AttrTaskKind.String(t.Kind().String()),
	}
	for k, v := range t.Params() {
		attrs = append(attrs, attribute.String("taskgraph.task.param."+k, toString(v)))
	}
	return attrs
}

// RecordError records err on span with a stack trace and marks the span as
// failed. It is a no-op for a nil error or a span that is not recording.
func RecordError(span oteltrace.Span, err error) {
	if err == nil || span == nil || !span.IsRecording() {
		return
	}
	span.RecordError(err, oteltrace.WithStackTrace(true))
	span.SetStatus(codes.Error, err.Error())
}

func toString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
