// ABOUTME: OpenTelemetry instruments for connections, chunks and lag
// ABOUTME: Methods on a nil *Metrics are no-ops
// Package observe provides the OpenTelemetry metric instruments recorded by
// the broadcaster, the replayer and the connection manager.
//
// Instruments are created from a [metric.MeterProvider]. [InitProvider]
// installs an SDK provider backed by the Prometheus exporter so the admin
// server can expose them on /metrics. A nil *Metrics is valid and records
// nothing, which keeps tests and library callers free of setup.
package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all pcmcast metrics.
const meterName = "github.com/Resonate-Protocol/pcmcast"

// Metrics holds all metric instruments. Safe for concurrent use.
type Metrics struct {
	// ActiveConnections tracks currently connected clients. Attribute:
	//   attribute.String("transport", "tcp"|"websocket")
	ActiveConnections metric.Int64UpDownCounter

	// Connections counts accepted connections by transport.
	Connections metric.Int64Counter

	// ChunksPublished counts chunks emitted by the broadcaster.
	ChunksPublished metric.Int64Counter

	// ChunksWritten counts chunks delivered to clients.
	ChunksWritten metric.Int64Counter

	// BytesWritten counts PCM bytes delivered to clients.
	BytesWritten metric.Int64Counter

	// LagEvents counts subscriber backlog drops.
	LagEvents metric.Int64Counter

	// MissedChunks counts chunks skipped by lagging subscribers.
	MissedChunks metric.Int64Counter

	// WriteErrors counts failed client writes, i.e. disconnects.
	WriteErrors metric.Int64Counter
}

// NewMetrics creates every instrument from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ActiveConnections, err = m.Int64UpDownCounter("pcmcast.connections.active",
		metric.WithDescription("Number of currently connected clients."),
	); err != nil {
		return nil, err
	}
	if met.Connections, err = m.Int64Counter("pcmcast.connections.total",
		metric.WithDescription("Total accepted client connections by transport."),
	); err != nil {
		return nil, err
	}
	if met.ChunksPublished, err = m.Int64Counter("pcmcast.chunks.published",
		metric.WithDescription("Chunks emitted by the synchronized broadcaster."),
	); err != nil {
		return nil, err
	}
	if met.ChunksWritten, err = m.Int64Counter("pcmcast.chunks.written",
		metric.WithDescription("Chunks written to client connections."),
	); err != nil {
		return nil, err
	}
	if met.BytesWritten, err = m.Int64Counter("pcmcast.bytes.written",
		metric.WithDescription("PCM bytes written to client connections."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if met.LagEvents, err = m.Int64Counter("pcmcast.subscriber.lag_events",
		metric.WithDescription("Times a subscriber fell behind the live position."),
	); err != nil {
		return nil, err
	}
	if met.MissedChunks, err = m.Int64Counter("pcmcast.subscriber.missed_chunks",
		metric.WithDescription("Chunks dropped for lagging subscribers."),
	); err != nil {
		return nil, err
	}
	if met.WriteErrors, err = m.Int64Counter("pcmcast.write.errors",
		metric.WithDescription("Failed client writes by transport."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

func transportAttr(transport string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("transport", transport))
}

// ConnectionOpened records an accepted connection.
func (m *Metrics) ConnectionOpened(ctx context.Context, transport string) {
	if m == nil {
		return
	}
	m.Connections.Add(ctx, 1, transportAttr(transport))
	m.ActiveConnections.Add(ctx, 1, transportAttr(transport))
}

// ConnectionClosed records a finished connection.
func (m *Metrics) ConnectionClosed(ctx context.Context, transport string) {
	if m == nil {
		return
	}
	m.ActiveConnections.Add(ctx, -1, transportAttr(transport))
}

// ChunkWritten records one delivered chunk of n bytes.
func (m *Metrics) ChunkWritten(ctx context.Context, transport string, n int) {
	if m == nil {
		return
	}
	m.ChunksWritten.Add(ctx, 1, transportAttr(transport))
	m.BytesWritten.Add(ctx, int64(n), transportAttr(transport))
}

// WriteFailed records a failed client write.
func (m *Metrics) WriteFailed(ctx context.Context, transport string) {
	if m == nil {
		return
	}
	m.WriteErrors.Add(ctx, 1, transportAttr(transport))
}

// ChunkPublished records one broadcaster emission.
func (m *Metrics) ChunkPublished(ctx context.Context) {
	if m == nil {
		return
	}
	m.ChunksPublished.Add(ctx, 1)
}

// Lagged records a backlog drop of missed chunks.
func (m *Metrics) Lagged(ctx context.Context, missed uint64) {
	if m == nil {
		return
	}
	m.LagEvents.Add(ctx, 1)
	m.MissedChunks.Add(ctx, int64(missed))
}
