package otelx

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Disabled path

func TestInit_Disabled(t *testing.T) {
	tr, err := Init(context.Background(), Options{Enabled: false, Endpoint: "ignored", Sample: 5})
	if err != nil {
		t.Fatalf("Init disabled: %v", err)
	}
	if tr.TracerProvider() != otel.GetTracerProvider() {
		t.Fatal("provider not installed globally")
	}

	// Safe to call multiple times
	for i := 0; i < 2; i++ {
		if err := tr.Shutdown(context.Background()); err != nil {
			t.Fatalf("shutdown #%d: %v", i+1, err)
		}
	}
}

func TestInit_Disabled_SpansNeverRecord(t *testing.T) {
	tr, _ := Init(context.Background(), Options{Enabled: false})

	_, span := tr.TracerProvider().Tracer("test").Start(context.Background(), "test-span")
	defer span.End()

	if span.IsRecording() {
		t.Fatal("disabled tracing should hand out non-recording spans")
	}
	if span.SpanContext().IsValid() {
		t.Fatal("disabled tracing should not mint trace ids")
	}
}

func TestInit_SetsPropagator(t *testing.T) {
	_, _ = Init(context.Background(), Options{Enabled: false})

	fieldSet := make(map[string]bool)
	for _, f := range otel.GetTextMapPropagator().Fields() {
		fieldSet[f] = true
	}
	if !fieldSet["traceparent"] {
		t.Error("propagator missing traceparent field")
	}
	if !fieldSet["baggage"] {
		t.Error("propagator missing baggage field")
	}
}

// Enabled path

func TestInit_Enabled_RequiresEndpoint(t *testing.T) {
	if _, err := Init(context.Background(), Options{Enabled: true}); err == nil {
		t.Fatal("expected error without endpoint")
	}
}

func TestInit_Enabled_ReturnsPromptly(t *testing.T) {
	t.Cleanup(func() { otel.SetTracerProvider(noop.NewTracerProvider()) })

	// the exporter connects lazily so an unreachable collector must not
	// block startup
	done := make(chan struct{})
	var (
		tr  *Tracing
		err error
	)
	go func() {
		defer close(done)
		tr, err = Init(context.Background(), Options{
			Enabled:    true,
			Endpoint:   "127.0.0.1:1",
			Insecure:   true,
			Headers:    map[string]string{"x-scope-orgid": "test"},
			Sample:     1,
			Service:    "vhostd",
			Component:  "server",
			Version:    "test",
			Attributes: map[string]string{"vhost.web_root": "/srv"},
		})
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Init blocked on an unreachable collector")
	}
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if _, ok := tr.TracerProvider().(*sdktrace.TracerProvider); !ok {
		t.Fatalf("provider = %T, want sdk provider", tr.TracerProvider())
	}

	_, span := tr.TracerProvider().Tracer("test").Start(context.Background(), "sampled")
	if !span.IsRecording() {
		t.Fatal("sample=1 should record root spans")
	}
	span.End()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = tr.Shutdown(ctx)
}

func TestServiceName(t *testing.T) {
	tests := []struct{ service, component, want string }{
		{"vhostd", "server", "vhostd.server"},
		{"vhostd", "", "vhostd"},
		{"", "server", "server"},
		{"", "", ""},
	}
	for _, tt := range tests {
		if got := serviceName(tt.service, tt.component); got != tt.want {
			t.Errorf("serviceName(%q, %q) = %q, want %q", tt.service, tt.component, got, tt.want)
		}
	}
}
