package spreadsheet

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("spreadflow.spreadsheet")
	meter  = otel.Meter("spreadflow.spreadsheet")
)

var (
	compileTotal     metric.Int64Counter
	traversalLatency metric.Float64Histogram
	traversalRecords metric.Int64Histogram
	unresolvedTotal  metric.Int64Counter
	truncatedTotal   metric.Int64Counter
	loaderLinesTotal metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		compileTotal, err = meter.Int64Counter(
			"spreadsheet_compile_total",
			metric.WithDescription("Statements compiled, by outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		traversalLatency, err = meter.Float64Histogram(
			"spreadsheet_traversal_duration_seconds",
			metric.WithDescription("Duration of one egress root traversal"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		traversalRecords, err = meter.Int64Histogram(
			"spreadsheet_traversal_records",
			metric.WithDescription("Records in one egress call tree"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		unresolvedTotal, err = meter.Int64Counter(
			"spreadsheet_unresolved_references_total",
			metric.WithDescription("References that resolved to no formula, alias or value"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		truncatedTotal, err = meter.Int64Counter(
			"spreadsheet_traversal_truncated_total",
			metric.WithDescription("Traversals stopped by the visit budget"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		loaderLinesTotal, err = meter.Int64Counter(
			"spreadsheet_loader_lines_total",
			metric.WithDescription("Input lines loaded, by kind"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordCompile(ctx context.Context, outcome string) {
	if err := initMetrics(); err != nil {
		return
	}
	compileTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func recordTraversal(ctx context.Context, duration time.Duration, records, unresolved int, truncated bool) {
	if err := initMetrics(); err != nil {
		return
	}

	traversalLatency.Record(ctx, duration.Seconds())
	traversalRecords.Record(ctx, int64(records))
	if unresolved > 0 {
		unresolvedTotal.Add(ctx, int64(unresolved))
	}
	if truncated {
		truncatedTotal.Add(ctx, 1)
	}
}

func recordLoadedLine(ctx context.Context, kind string) {
	if err := initMetrics(); err != nil {
		return
	}
	loaderLinesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func startRunSpan(ctx context.Context, roots, workers int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Engine.Run",
		trace.WithAttributes(
			attribute.Int("engine.roots", roots),
			attribute.Int("engine.workers", workers),
		),
	)
}

func setRunSpanResult(span trace.Span, visited, unresolved int) {
	span.SetAttributes(
		attribute.Int("engine.visited", visited),
		attribute.Int("engine.unresolved", unresolved),
	)
}

func startTraverseSpan(ctx context.Context, root string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Engine.traverse",
		trace.WithAttributes(attribute.String("engine.root", root)),
	)
}

func startLoadSpan(ctx context.Context, source string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Loader.Load",
		trace.WithAttributes(attribute.String("loader.source", source)),
	)
}
