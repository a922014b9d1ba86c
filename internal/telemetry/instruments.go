package telemetry

import (
	"context"
	"net/url"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	apiScopeName    = "github.com/steveyegge/bbs-exporter/bitbucket"
	exportScopeName = "github.com/steveyegge/bbs-exporter/export"
)

type instruments struct {
	tracer      trace.Tracer
	apiRequests metric.Int64Counter
	apiDuration metric.Float64Histogram
	apiErrors   metric.Int64Counter
	records     metric.Int64Counter
}

var (
	instOnce sync.Once
	inst     *instruments
)

// resetInstruments drops cached instruments so they are recreated from the
// current global providers.
func resetInstruments() {
	instOnce = sync.Once{}
	inst = nil
}

func get() *instruments {
	instOnce.Do(func() {
		m := Meter(apiScopeName)
		reqs, _ := m.Int64Counter("bbs.api.requests",
			metric.WithDescription("Total Bitbucket Server API requests"),
		)
		dur, _ := m.Float64Histogram("bbs.api.request.duration",
			metric.WithDescription("Bitbucket Server API request duration in milliseconds"),
			metric.WithUnit("ms"),
		)
		errs, _ := m.Int64Counter("bbs.api.errors",
			metric.WithDescription("Total failed Bitbucket Server API requests"),
		)
		records, _ := Meter(exportScopeName).Int64Counter("bbs.records.written",
			metric.WithDescription("Archive records written to the staging store"),
		)
		inst = &instruments{
			tracer:      Tracer(apiScopeName),
			apiRequests: reqs,
			apiDuration: dur,
			apiErrors:   errs,
			records:     records,
		}
	})
	return inst
}

// StartRequest starts a span for one API request and counts it. The
// returned function ends the span; pass the HTTP status (0 if none) and
// the request error.
func StartRequest(ctx context.Context, method, rawURL string) (context.Context, func(status int, err error)) {
	in := get()

	path := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		path = u.Path
	}
	attrs := []attribute.KeyValue{
		attribute.String("http.request.method", method),
		attribute.String("url.path", path),
	}

	ctx, span := in.tracer.Start(ctx, "bitbucket."+method,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	in.apiRequests.Add(ctx, 1, metric.WithAttributes(attrs[0]))
	start := time.Now()

	return ctx, func(status int, err error) {
		in.apiDuration.Record(ctx, float64(time.Since(start).Milliseconds()), metric.WithAttributes(attrs[0]))
		if status != 0 {
			span.SetAttributes(attribute.String("http.response.status_code", strconv.Itoa(status)))
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			in.apiErrors.Add(ctx, 1, metric.WithAttributes(attrs[0]))
		}
		span.End()
	}
}

// StartSpan starts a span under the export scope.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer(exportScopeName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// RecordWritten counts one record written to the staging store.
func RecordWritten(ctx context.Context, modelType string) {
	get().records.Add(ctx, 1, metric.WithAttributes(attribute.String("bbs.model_type", modelType)))
}
