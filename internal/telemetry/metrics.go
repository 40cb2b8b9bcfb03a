package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "govmsg.lifecycle"

// Message lifecycle attributes.
const (
	MessageIDKey     = attribute.Key("message.id")
	MessageActionKey = attribute.Key("message.action")
	MessageFromKey   = attribute.Key("message.from_status")
	MessageToKey     = attribute.Key("message.to_status")
	ActorIDKey       = attribute.Key("actor.id")
	ActorRoleKey     = attribute.Key("actor.role")
	OutcomeKey       = attribute.Key("outcome")
	ErrorKindKey     = attribute.Key("error.kind")
)

// LifecycleMetrics counts lifecycle operations and their latency.
type LifecycleMetrics struct {
	Operations  metric.Int64Counter
	Transitions metric.Int64Counter
	Rejections  metric.Int64Counter
	Duration    metric.Float64Histogram
}

func NewLifecycleMetrics(meter metric.Meter) (*LifecycleMetrics, error) {
	var (
		m   LifecycleMetrics
		err error
	)
	if m.Operations, err = meter.Int64Counter("govmsg.message.operations",
		metric.WithDescription("Lifecycle operations attempted"),
		metric.WithUnit("{operation}")); err != nil {
		return nil, err
	}
	if m.Transitions, err = meter.Int64Counter("govmsg.message.transitions",
		metric.WithDescription("Committed status transitions"),
		metric.WithUnit("{transition}")); err != nil {
		return nil, err
	}
	if m.Rejections, err = meter.Int64Counter("govmsg.message.refusals",
		metric.WithDescription("Lifecycle operations refused, by error kind"),
		metric.WithUnit("{operation}")); err != nil {
		return nil, err
	}
	if m.Duration, err = meter.Float64Histogram("govmsg.message.operation.duration",
		metric.WithDescription("Lifecycle operation latency"),
		metric.WithUnit("ms")); err != nil {
		return nil, err
	}
	return &m, nil
}
