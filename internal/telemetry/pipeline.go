package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const pipelineScopeName = "github.com/steveyegge/gimport/importer"

type instruments struct {
	imports  metric.Int64Counter
	changes  metric.Int64Counter
	groups   metric.Int64Counter
	duration metric.Float64Histogram
}

var (
	instOnce sync.Once
	inst     instruments
)

// Instruments are created lazily so they bind to whatever meter provider
// Init installed.
func pipelineInstruments() *instruments {
	instOnce.Do(func() {
		m := Meter(pipelineScopeName)
		inst.imports, _ = m.Int64Counter("gimport.imports",
			metric.WithDescription("Import attempts by kind and outcome"),
		)
		inst.changes, _ = m.Int64Counter("gimport.changes",
			metric.WithDescription("Changes processed by replay, by outcome"),
		)
		inst.groups, _ = m.Int64Counter("gimport.groups.created",
			metric.WithDescription("Groups created by group import"),
		)
		inst.duration, _ = m.Float64Histogram("gimport.stage.duration",
			metric.WithDescription("Import stage duration in milliseconds"),
			metric.WithUnit("ms"),
		)
	})
	return &inst
}

// StartStage opens a span for one pipeline stage. The returned func ends the
// span, records err on it and records the stage duration.
func StartStage(ctx context.Context, stage string, attrs ...attribute.KeyValue) (context.Context, func(err error)) {
	all := append([]attribute.KeyValue{attribute.String("gimport.stage", stage)}, attrs...)
	ctx, span := Tracer(pipelineScopeName).Start(ctx, "import."+stage, trace.WithAttributes(all...))
	start := nowMillis()
	return ctx, func(err error) {
		pipelineInstruments().duration.Record(ctx, nowMillis()-start, metric.WithAttributes(all...))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

// RecordImport counts one import attempt. kind is "project" or "group".
func RecordImport(ctx context.Context, kind, outcome string) {
	pipelineInstruments().imports.Add(ctx, 1, metric.WithAttributes(
		attribute.String("gimport.kind", kind),
		attribute.String("gimport.outcome", outcome),
	))
}

// RecordChange counts one replayed or skipped change.
func RecordChange(ctx context.Context, project, outcome string) {
	pipelineInstruments().changes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("gimport.project", project),
		attribute.String("gimport.outcome", outcome),
	))
}

// RecordGroupsCreated counts groups created by one group import.
func RecordGroupsCreated(ctx context.Context, n int) {
	if n > 0 {
		pipelineInstruments().groups.Add(ctx, int64(n))
	}
}

func nowMillis() float64 {
	return float64(time.Now().UnixNano()) / 1e6
}
