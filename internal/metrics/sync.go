package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const namespace = "coachsync"

// SyncMetrics records sync engine activity.
type SyncMetrics interface {
	// RecordEnqueue counts enqueue calls by result ("queued", "duplicate", "cancelled").
	RecordEnqueue(ctx context.Context, result string)
	// RecordDelivery counts delivery attempts by outcome.
	RecordDelivery(ctx context.Context, outcome string)
	// RecordReconciliation counts identifier promotions and the queue items they rewrote.
	RecordReconciliation(ctx context.Context, rewritten int)
	// RecordPass records the duration of a processor pass.
	RecordPass(ctx context.Context, duration time.Duration, attempted int)
}

type syncMetrics struct {
	enqueued        metric.Int64Counter
	deliveries      metric.Int64Counter
	reconciliations metric.Int64Counter
	rewritten       metric.Int64Counter
	passDuration    metric.Float64Histogram
}

// NewSyncMetrics creates the sync instruments on meterProvider.
func NewSyncMetrics(meterProvider metric.MeterProvider) (SyncMetrics, error) {
	meter := meterProvider.Meter(namespace)

	enqueued, err := meter.Int64Counter(
		namespace+"_sync_enqueued_total",
		metric.WithDescription("Enqueue calls by result"),
		metric.WithUnit("{item}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create enqueue counter: %w", err)
	}

	deliveries, err := meter.Int64Counter(
		namespace+"_sync_deliveries_total",
		metric.WithDescription("Delivery attempts by outcome"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create delivery counter: %w", err)
	}

	reconciliations, err := meter.Int64Counter(
		namespace+"_sync_reconciliations_total",
		metric.WithDescription("Local identifiers promoted to server identifiers"),
		metric.WithUnit("{promotion}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create reconciliation counter: %w", err)
	}

	rewritten, err := meter.Int64Counter(
		namespace+"_sync_rewritten_items_total",
		metric.WithDescription("Queue items rewritten during reconciliation"),
		metric.WithUnit("{item}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rewrite counter: %w", err)
	}

	passDuration, err := meter.Float64Histogram(
		namespace+"_sync_pass_duration_seconds",
		metric.WithDescription("Duration of processor passes in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create pass histogram: %w", err)
	}

	return &syncMetrics{
		enqueued:        enqueued,
		deliveries:      deliveries,
		reconciliations: reconciliations,
		rewritten:       rewritten,
		passDuration:    passDuration,
	}, nil
}

func (m *syncMetrics) RecordEnqueue(ctx context.Context, result string) {
	m.enqueued.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func (m *syncMetrics) RecordDelivery(ctx context.Context, outcome string) {
	m.deliveries.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *syncMetrics) RecordReconciliation(ctx context.Context, rewritten int) {
	m.reconciliations.Add(ctx, 1)
	m.rewritten.Add(ctx, int64(rewritten))
}

func (m *syncMetrics) RecordPass(ctx context.Context, duration time.Duration, attempted int) {
	m.passDuration.Record(ctx, duration.Seconds(),
		metric.WithAttributes(attribute.Bool("idle", attempted == 0)),
	)
}

// NoOp discards every measurement. Used when metrics are disabled.
type NoOp struct{}

var _ SyncMetrics = NoOp{}

func (NoOp) RecordEnqueue(context.Context, string)          {}
func (NoOp) RecordDelivery(context.Context, string)         {}
func (NoOp) RecordReconciliation(context.Context, int)      {}
func (NoOp) RecordPass(context.Context, time.Duration, int) {}
