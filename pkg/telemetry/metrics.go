package telemetry

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	metricsOnce       sync.Once
	metricsInitErr    error
	operationCounter  metric.Int64Counter
	operationLatency  metric.Float64Histogram
	voteWeightCounter metric.Float64Counter
	approvalCounter   metric.Int64Counter
)

// Outcome classifies how a governance operation ended.
type Outcome string

const (
	// OutcomeOK is a committed operation.
	OutcomeOK Outcome = "ok"
	// OutcomeRejected is a domain rule rejection.
	OutcomeRejected Outcome = "rejected"
	// OutcomeError is an infrastructure failure.
	OutcomeError Outcome = "error"
)

// OperationMetrics captures the fields recorded for one engine operation.
type OperationMetrics struct {
	Operation string
	Outcome   Outcome
	Code      string
	Duration  time.Duration
}

// RecordOperation emits counters and histograms describing an engine operation.
func RecordOperation(ctx context.Context, m OperationMetrics) {
	if err := ensureMetrics(); err != nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("governance.operation", m.Operation),
		attribute.String("governance.outcome", string(m.Outcome)),
	}
	if m.Code != "" {
		attrs = append(attrs, attribute.String("governance.code", m.Code))
	}

	operationCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	if m.Duration > 0 {
		operationLatency.Record(ctx, float64(m.Duration)/float64(time.Millisecond), metric.WithAttributes(attrs...))
	}
}

// RecordVoteWeight adds a counted vote's weight to the per-side total.
func RecordVoteWeight(ctx context.Context, voteFor bool, weight uint64) {
	if err := ensureMetrics(); err != nil {
		return
	}
	side := "against"
	if voteFor {
		side = "for"
	}
	voteWeightCounter.Add(ctx, float64(weight), metric.WithAttributes(attribute.String("governance.vote.side", side)))
}

// RecordApproval counts a hook added to the whitelist.
func RecordApproval(ctx context.Context) {
	if err := ensureMetrics(); err != nil {
		return
	}
	approvalCounter.Add(ctx, 1)
}

func ensureMetrics() error {
	metricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter(InstrumentationName)

		operationCounter, metricsInitErr = meter.Int64Counter(
			"governance.operations_total",
			metric.WithDescription("Governance operations partitioned by outcome"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		operationLatency, metricsInitErr = meter.Float64Histogram(
			"governance.operation.duration_ms",
			metric.WithDescription("Observed governance operation latency"),
			metric.WithUnit("ms"),
		)
		if metricsInitErr != nil {
			return
		}

		voteWeightCounter, metricsInitErr = meter.Float64Counter(
			"governance.vote_weight_total",
			metric.WithDescription("Token weight counted toward proposals"),
			metric.WithUnit("{token}"),
		)
		if metricsInitErr != nil {
			return
		}

		approvalCounter, metricsInitErr = meter.Int64Counter(
			"governance.approvals_total",
			metric.WithDescription("Hooks added to the whitelist"),
			metric.WithUnit("{count}"),
		)
	})

	return metricsInitErr
}

// formatUint renders token amounts that may not fit an int64 attribute.
func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}
