package orderlog

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// NewEntry builds a log entry with trace and span ids extracted from the
// active OpenTelemetry span in ctx. If the context carries no valid span
// (e.g. in unit tests) both ids are left empty.
func NewEntry(ctx context.Context, orderID string, status Status) *Entry {
	e := &Entry{
		OrderID:   orderID,
		Status:    status,
		UpdatedAt: time.Now().UTC(),
	}

	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		e.TraceID = sc.TraceID().String()
		e.SpanID = sc.SpanID().String()
	}
	return e
}
