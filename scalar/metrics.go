package scalar

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "toygrad/scalar"

type tapeMetrics struct {
	passes        metric.Int64Counter
	reachable     metric.Int64Histogram
	nodesRecorded metric.Int64Counter

	opAttrs map[Op]metric.AddOption
}

func newTapeMetrics(mp metric.MeterProvider, logger *slog.Logger) *tapeMetrics {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(meterName)
	fallback := noop.NewMeterProvider().Meter(meterName)

	m := &tapeMetrics{opAttrs: make(map[Op]metric.AddOption, 3)}
	var err error

	m.passes, err = meter.Int64Counter("toygrad.backward.passes",
		metric.WithDescription("Backward passes completed"),
	)
	if err != nil {
		logger.Warn("create backward pass counter", slog.String("error", err.Error()))
		m.passes, _ = fallback.Int64Counter("toygrad.backward.passes")
	}

	m.reachable, err = meter.Int64Histogram("toygrad.backward.nodes",
		metric.WithDescription("Nodes reachable from the root of a backward pass"),
	)
	if err != nil {
		logger.Warn("create backward nodes histogram", slog.String("error", err.Error()))
		m.reachable, _ = fallback.Int64Histogram("toygrad.backward.nodes")
	}

	m.nodesRecorded, err = meter.Int64Counter("toygrad.tape.nodes",
		metric.WithDescription("Nodes appended to tapes"),
	)
	if err != nil {
		logger.Warn("create tape node counter", slog.String("error", err.Error()))
		m.nodesRecorded, _ = fallback.Int64Counter("toygrad.tape.nodes")
	}

	for _, op := range []Op{OpLeaf, OpAdd, OpMul} {
		m.opAttrs[op] = metric.WithAttributes(attribute.String("op", op.String()))
	}
	return m
}

func (m *tapeMetrics) nodeRecorded(op Op) {
	if attrs, ok := m.opAttrs[op]; ok {
		m.nodesRecorded.Add(context.Background(), 1, attrs)
		return
	}
	m.nodesRecorded.Add(context.Background(), 1)
}

func (m *tapeMetrics) backwardDone(ctx context.Context, nodes int) {
	m.passes.Add(ctx, 1)
	m.reachable.Record(ctx, int64(nodes))
}
