package telemetry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// Tests in this file swap the global provider and must not run in parallel

func installRecorder(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	prevTP, prevProp := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})
	return exporter
}

func TestDomainSpanJoinsRequestTrace(t *testing.T) {
	exporter := installRecorder(t)

	r := mux.NewRouter()
	r.Use(otelmux.Middleware("gtd-api"))
	r.HandleFunc("/api/tasks/{id}/clarify", func(w http.ResponseWriter, r *http.Request) {
		_, span := StartSpan(r.Context(), "inbox.apply", attribute.String("gtd.action", "trash"))
		End(span, nil)
		w.WriteHeader(http.StatusOK)
	}).Methods("POST")

	req := httptest.NewRequest("POST", "/api/tasks/7/clarify", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("Expected 2 spans, got %d", len(spans))
	}
	domain, server := spans[0], spans[1]
	if domain.Name != "inbox.apply" {
		t.Errorf("Expected domain span first, got %q", domain.Name)
	}
	if got := server.SpanContext.TraceID().String(); got != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("Expected server span to continue the incoming trace, got %s", got)
	}
	if domain.Parent.SpanID() != server.SpanContext.SpanID() {
		t.Error("Expected domain span to be a child of the server span")
	}
	if domain.Attributes[0].Value.AsString() != "trash" {
		t.Errorf("Expected gtd.action attribute, got %v", domain.Attributes)
	}
}

func TestEndRecordsError(t *testing.T) {
	exporter := installRecorder(t)

	_, span := StartSpan(context.Background(), "email_sync.account")
	End(span, errors.New("imap login failed"))

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("Expected 1 span, got %d", len(spans))
	}
	if spans[0].Status.Code != codes.Error || spans[0].Status.Description != "imap login failed" {
		t.Errorf("Expected error status, got %+v", spans[0].Status)
	}
	if len(spans[0].Events) == 0 || spans[0].Events[0].Name != "exception" {
		t.Errorf("Expected recorded exception event, got %v", spans[0].Events)
	}
}
