package telemetry

import (
	"context"
	"time"

	"github.com/cuihairu/govmsg/internal/ports"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// LifecycleTracer wraps each lifecycle operation in a span and records its metrics.
type LifecycleTracer struct {
	tracer  trace.Tracer
	metrics *LifecycleMetrics
}

func NewLifecycleTracer(tracer trace.Tracer, meter metric.Meter) (*LifecycleTracer, error) {
	m, err := NewLifecycleMetrics(meter)
	if err != nil {
		return nil, err
	}
	return &LifecycleTracer{tracer: tracer, metrics: m}, nil
}

// Default builds a tracer on the global providers.
func Default() *LifecycleTracer {
	t, err := NewLifecycleTracer(otel.Tracer(instrumentationName), otel.Meter(instrumentationName))
	if err != nil {
		// the global no-op meter never fails
		panic(err)
	}
	return t
}

// Op is one traced lifecycle operation.
type Op struct {
	t      *LifecycleTracer
	span   trace.Span
	action string
	role   string
	start  time.Time
}

// Start opens a span for action on message id.
func (t *LifecycleTracer) Start(ctx context.Context, action string, id uint, actor ports.Actor) (context.Context, *Op) {
	ctx, span := t.tracer.Start(ctx, "message."+action,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			MessageActionKey.String(action),
			MessageIDKey.Int64(int64(id)),
			ActorIDKey.Int64(int64(actor.ID)),
			ActorRoleKey.String(actor.Role.String()),
		),
	)
	t.metrics.Operations.Add(ctx, 1, metric.WithAttributes(MessageActionKey.String(action), ActorRoleKey.String(actor.Role.String())))
	return ctx, &Op{t: t, span: span, action: action, role: actor.Role.String(), start: time.Now()}
}

// Transitioned records a committed status change.
func (o *Op) Transitioned(ctx context.Context, from, to ports.Status) {
	o.span.SetAttributes(MessageFromKey.String(string(from)), MessageToKey.String(string(to)))
	o.t.metrics.Transitions.Add(ctx, 1, metric.WithAttributes(
		MessageActionKey.String(o.action),
		MessageFromKey.String(string(from)),
		MessageToKey.String(string(to)),
	))
}

// End closes the span, marking it failed when err is non-nil.
func (o *Op) End(ctx context.Context, err error) {
	outcome := "ok"
	if err != nil {
		kind := ports.KindOf(err).String()
		outcome = "refused"
		o.span.SetAttributes(ErrorKindKey.String(kind))
		if ports.KindOf(err) == ports.KindInfrastructure {
			outcome = "error"
			o.span.RecordError(err)
		}
		o.span.SetStatus(codes.Error, kind)
		o.t.metrics.Rejections.Add(ctx, 1, metric.WithAttributes(MessageActionKey.String(o.action), ErrorKindKey.String(kind)))
	} else {
		o.span.SetStatus(codes.Ok, "")
	}
	o.t.metrics.Duration.Record(ctx, float64(time.Since(o.start).Microseconds())/1000.0, metric.WithAttributes(
		MessageActionKey.String(o.action),
		ActorRoleKey.String(o.role),
		OutcomeKey.String(outcome),
	))
	o.span.End()
}
