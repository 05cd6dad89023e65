package exporters

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel/sdk/trace"
)

// ConsoleExporter writes one line per finished span to stderr. Used when no
// collector endpoint is configured, mostly local development.
type ConsoleExporter struct{}

func (c *ConsoleExporter) ExportSpans(_ context.Context, spans []trace.ReadOnlySpan) error {
	for _, span := range spans {
		fmt.Fprintf(os.Stderr, "span %s trace=%s duration=%s\n",
			span.Name(),
			span.SpanContext().TraceID(),
			span.EndTime().Sub(span.StartTime()))
	}
	return nil
}

func (c *ConsoleExporter) Shutdown(_ context.Context) error {
	return nil
}
