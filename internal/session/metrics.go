package session

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type metrics struct {
	sessions  metric.Int64Counter
	questions metric.Int64Counter
	answers   metric.Int64Counter
	fallbacks metric.Int64Counter
	latency   metric.Float64Histogram
}

// newMetrics registers the lifecycle instruments. Registration errors still
// yield usable instruments.
func newMetrics(meter metric.Meter) *metrics {
	m := &metrics{}
	m.sessions, _ = meter.Int64Counter("rehearse.sessions.created",
		metric.WithDescription("Interview sessions started"))
	m.questions, _ = meter.Int64Counter("rehearse.questions.asked",
		metric.WithDescription("Questions issued to candidates"))
	m.answers, _ = meter.Int64Counter("rehearse.answers.evaluated",
		metric.WithDescription("Answers recorded and scored"))
	m.fallbacks, _ = meter.Int64Counter("rehearse.evaluation.fallbacks",
		metric.WithDescription("Answers stored with the default rubric"))
	m.latency, _ = meter.Float64Histogram("rehearse.evaluation.duration",
		metric.WithDescription("Evaluator call latency"),
		metric.WithUnit("ms"))
	return m
}

func (m *metrics) observe(ctx context.Context, call string, d time.Duration, err error) {
	m.latency.Record(ctx, float64(d.Microseconds())/1000,
		metric.WithAttributes(
			attribute.String("call", call),
			attribute.Bool("error", err != nil),
		))
}
