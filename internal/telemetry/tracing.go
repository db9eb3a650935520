// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package telemetry wraps the OpenTelemetry tracer provider AIDOS uses
// for Orchestrator sessions, Subprocess Agent calls, and guardrail gate
// checks. Adapted from the teacher's own telemetry/tracing.go, trimmed
// to the span helpers AIDOS actually calls and re-keyed to the AIDOS
// domain's attributes (sessions/tasks/agents/budget/gates) instead of
// the teacher's workflow/OpenCode/TCR attribute set.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerProvider manages the OpenTelemetry tracer provider for one
// process's lifetime.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
}

// Config holds OpenTelemetry configuration.
type Config struct {
	ServiceName    string
	ServiceVersion string
	CollectorURL   string
	Environment    string
	SamplingRate   float64
}

// DefaultConfig returns a default configuration.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "aidos",
		ServiceVersion: "1.0.0",
		CollectorURL:   "localhost:4318",
		Environment:    "development",
		SamplingRate:   1.0,
	}
}

// NewTracerProvider creates and registers a new OpenTelemetry tracer
// provider as the process-global one.
func NewTracerProvider(ctx context.Context, config *Config) (*TracerProvider, error) {
	if config == nil {
		config = DefaultConfig()
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
			attribute.String("environment", config.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(config.CollectorURL),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(config.SamplingRate)),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &TracerProvider{provider: tp}, nil
}

// Shutdown flushes and tears down the tracer provider.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp.provider == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return tp.provider.Shutdown(shutdownCtx)
}

// GetTracer returns a tracer with the given name.
func GetTracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// StartSpan starts a new span.
func StartSpan(ctx context.Context, tracerName, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return GetTracer(tracerName).Start(ctx, spanName, opts...)
}

// AddEvent adds an event to the current span.
func AddEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.AddEvent(name, trace.WithAttributes(attrs...))
	}
}

// RecordError records an error on the current span.
func RecordError(ctx context.Context, err error, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.RecordError(err, trace.WithAttributes(attrs...))
		span.SetStatus(codes.Error, err.Error())
	}
}

// Common attribute keys for AIDOS spans.
const (
	AttrSessionID  = attribute.Key("aidos.session_id")
	AttrObjective  = attribute.Key("aidos.objective")
	AttrPhase      = attribute.Key("aidos.phase")
	AttrTaskID     = attribute.Key("aidos.task_id")
	AttrTaskStatus = attribute.Key("aidos.task_status")
	AttrAgentID    = attribute.Key("aidos.agent_id")
	AttrAgentRole  = attribute.Key("aidos.agent_role")
	AttrGateName   = attribute.Key("aidos.gate_name")
	AttrGatePassed = attribute.Key("aidos.gate_passed")
	AttrTokensUsed = attribute.Key("aidos.tokens_used")
	AttrDuration   = attribute.Key("duration_ms")
	AttrSuccess    = attribute.Key("success")
)

// SessionAttrs builds attributes for a session-scoped span.
func SessionAttrs(sessionID, objective, phase string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrSessionID.String(sessionID),
		AttrObjective.String(objective),
		AttrPhase.String(phase),
	}
}

// TaskAttrs builds attributes for a task-scoped span.
func TaskAttrs(taskID, status string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrTaskID.String(taskID),
		AttrTaskStatus.String(status),
	}
}

// AgentAttrs builds attributes for an agent-scoped span.
func AgentAttrs(agentID, role string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrAgentID.String(agentID),
		AttrAgentRole.String(role),
	}
}

// GateAttrs builds attributes for a guardrail gate check.
func GateAttrs(name string, passed bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrGateName.String(name),
		AttrGatePassed.Bool(passed),
	}
}

// ErrorAttrs builds attributes for a recorded error.
func ErrorAttrs(err error) []attribute.KeyValue {
	if err == nil {
		return nil
	}
	return []attribute.KeyValue{attribute.String("error.message", err.Error())}
}

// DurationAttrs builds a duration attribute in milliseconds.
func DurationAttrs(d time.Duration) []attribute.KeyValue {
	return []attribute.KeyValue{AttrDuration.Int64(d.Milliseconds())}
}
