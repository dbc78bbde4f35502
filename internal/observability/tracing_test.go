package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

func newRecordingTracer() (*tracetest.SpanRecorder, trace.Tracer) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	return recorder, provider.Tracer("test")
}

func TestInitTracing_Disabled(t *testing.T) {
	tp, err := InitTracing(context.Background(), TracingConfig{Enabled: false})
	if err != nil {
		t.Fatalf("InitTracing failed: %v", err)
	}
	defer tp.Shutdown(context.Background())

	if tp.Tracer() == nil {
		t.Error("expected non-nil tracer even when disabled")
	}
}

func TestInitTracing_UnsupportedProtocol(t *testing.T) {
	_, err := InitTracing(context.Background(), TracingConfig{Enabled: true, Protocol: "thrift"})
	if err == nil {
		t.Fatal("expected error for unsupported protocol")
	}
}

func TestInitTracing_HTTPExporter(t *testing.T) {
	tp, err := InitTracing(context.Background(), TracingConfig{
		Enabled:  true,
		Endpoint: "localhost:4318",
		Protocol: "http",
		Insecure: true,
	})
	if err != nil {
		t.Fatalf("InitTracing failed: %v", err)
	}
	if tp.Tracer() == nil {
		t.Error("expected tracer")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = tp.Shutdown(ctx)
}

func TestDefaultTracingConfig(t *testing.T) {
	cfg := DefaultTracingConfig()

	if cfg.Enabled {
		t.Error("expected Enabled to be false by default")
	}
	if cfg.Endpoint != "localhost:4317" {
		t.Errorf("expected endpoint localhost:4317, got %s", cfg.Endpoint)
	}
	if cfg.ServiceName != "hishamos-secrets" {
		t.Errorf("expected service name hishamos-secrets, got %s", cfg.ServiceName)
	}
	if cfg.SampleRate != 1.0 {
		t.Errorf("expected sample rate 1.0, got %f", cfg.SampleRate)
	}
}

func TestStartBackendSpan(t *testing.T) {
	recorder, tracer := newRecordingTracer()

	_, span := StartBackendSpan(context.Background(), tracer, "vault", "read")
	RecordError(span, errors.New("permission denied"))
	span.End()

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name() != "vault.read" {
		t.Errorf("expected span name vault.read, got %s", spans[0].Name())
	}
	if spans[0].SpanKind() != trace.SpanKindClient {
		t.Errorf("expected client span, got %v", spans[0].SpanKind())
	}
	if spans[0].Status().Code != codes.Error {
		t.Errorf("expected error status, got %v", spans[0].Status().Code)
	}
}

func TestRecordError_Nil(t *testing.T) {
	recorder, tracer := newRecordingTracer()

	_, span := tracer.Start(context.Background(), "test")
	RecordError(span, nil)
	span.End()

	if got := recorder.Ended()[0].Status().Code; got != codes.Unset {
		t.Errorf("expected unset status, got %v", got)
	}
}

func TestTracingMiddleware(t *testing.T) {
	recorder, tracer := newRecordingTracer()

	var sawSpan bool
	handler := RequestIDMiddleware(TracingMiddleware(tracer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawSpan = trace.SpanFromContext(r.Context()).SpanContext().IsValid()
		w.WriteHeader(http.StatusOK)
	})))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/secrets/api-keys/openai", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if !sawSpan {
		t.Error("expected handler to see an active span")
	}
	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name() != "HTTP GET" {
		t.Errorf("unexpected span name %q", spans[0].Name())
	}
	if spans[0].SpanKind() != trace.SpanKindServer {
		t.Errorf("expected server span, got %v", spans[0].SpanKind())
	}
}

func TestTracerProvider_Shutdown(t *testing.T) {
	tp := &TracerProvider{
		tracer: noop.NewTracerProvider().Tracer("test"),
	}

	if err := tp.Shutdown(context.Background()); err != nil {
		t.Errorf("shutdown should not error with nil provider: %v", err)
	}
}

func TestSampler(t *testing.T) {
	if sampler(1.0).Description() != sdktrace.AlwaysSample().Description() {
		t.Error("expected always-on sampler for rate 1.0")
	}
	if sampler(0).Description() != sdktrace.NeverSample().Description() {
		t.Error("expected always-off sampler for rate 0")
	}
}
