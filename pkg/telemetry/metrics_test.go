package telemetry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	metrics := map[string]metricdata.Metrics{}
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			metrics[m.Name] = m
		}
	}
	return metrics
}

func installMeterProvider(t *testing.T) *sdkmetric.ManualReader {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	prev := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)
	t.Cleanup(func() {
		otel.SetMeterProvider(prev)
		ResetMetricsForTest()
	})
	ResetMetricsForTest()
	return reader
}

func TestRecordOperation(t *testing.T) {
	reader := installMeterProvider(t)
	ctx := context.Background()

	RecordOperation(ctx, OperationMetrics{
		Operation: "finalize",
		Outcome:   OutcomeRejected,
		Code:      "VOTING_PERIOD_ACTIVE",
		Duration:  150 * time.Millisecond,
	})

	metrics := collect(t, reader)

	ops, ok := metrics["governance.operations_total"]
	require.True(t, ok, "missing governance.operations_total")
	opsData, ok := ops.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, opsData.DataPoints, 1)
	assert.Equal(t, int64(1), opsData.DataPoints[0].Value)
	value, ok := opsData.DataPoints[0].Attributes.Value(attribute.Key("governance.code"))
	assert.True(t, ok)
	assert.Equal(t, "VOTING_PERIOD_ACTIVE", value.AsString())

	hist, ok := metrics["governance.operation.duration_ms"]
	require.True(t, ok)
	histData := hist.Data.(metricdata.Histogram[float64])
	assert.Equal(t, uint64(1), histData.DataPoints[0].Count)
	assert.Equal(t, float64(150), histData.DataPoints[0].Sum)
}

func TestRecordVoteWeightAndApproval(t *testing.T) {
	reader := installMeterProvider(t)
	ctx := context.Background()

	RecordVoteWeight(ctx, true, 600)
	RecordVoteWeight(ctx, true, 400)
	RecordVoteWeight(ctx, false, 5)
	RecordApproval(ctx)

	metrics := collect(t, reader)

	weights := metrics["governance.vote_weight_total"].Data.(metricdata.Sum[float64])
	bySide := map[string]float64{}
	for _, dp := range weights.DataPoints {
		side, _ := dp.Attributes.Value(attribute.Key("governance.vote.side"))
		bySide[side.AsString()] = dp.Value
	}
	assert.Equal(t, map[string]float64{"for": 1000, "against": 5}, bySide)

	approvals := metrics["governance.approvals_total"].Data.(metricdata.Sum[int64])
	assert.Equal(t, int64(1), approvals.DataPoints[0].Value)
}

func TestRecordDecision(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider()
	tp.RegisterSpanProcessor(recorder)
	tracer := tp.Tracer("test")

	_, span := tracer.Start(context.Background(), "finalize")
	RecordDecision(span, Decision{
		ProposalID:   3,
		HookID:       "ab",
		VotesFor:     1_000_000_000,
		VotesAgainst: 0,
		Threshold:    1_000_000_000,
		Approved:     true,
	})
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	events := spans[0].Events()
	require.Len(t, events, 1)
	assert.Equal(t, "governance.hook_approved", events[0].Name)

	attrs := attribute.NewSet(spans[0].Attributes()...)
	value, ok := attrs.Value(attribute.Key("governance.votes.for"))
	assert.True(t, ok)
	assert.Equal(t, "1000000000", value.AsString())

	require.NoError(t, tp.Shutdown(context.Background()))
}

func TestRecordError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider()
	tp.RegisterSpanProcessor(recorder)
	tracer := tp.Tracer("test")

	_, rejected := tracer.Start(context.Background(), "vote")
	RecordError(rejected, errors.New("voting period has ended"), true)
	rejected.End()

	_, failed := tracer.Start(context.Background(), "vote")
	RecordError(failed, errors.New("read ledger: timeout"), false)
	failed.End()

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
}

func TestHTTPMetrics(t *testing.T) {
	m := NewHTTPMetrics()
	m.ObserveRequest("vote", http.MethodPost, http.StatusOK, 20*time.Millisecond)
	m.ObserveRequest("vote", http.MethodPost, http.StatusOK, 10*time.Millisecond)
	m.ObserveRateLimited("vote")
	m.ObserveApproval()
	m.ObserveOracleReload(12)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.requestsTotal.WithLabelValues("vote", http.MethodPost, "200")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.rateLimited.WithLabelValues("vote")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.approvals))
	assert.Equal(t, float64(12), testutil.ToFloat64(m.oracleAccounts))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "hookgate_hook_approvals_total 1"))
}

func TestSetupProviderWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := SetupProvider(context.Background(), Config{})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetupProviderInstallsTraceContextPropagator(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	_, err := SetupProvider(context.Background(), Config{})
	require.NoError(t, err)
	assert.Contains(t, otel.GetTextMapPropagator().Fields(), "traceparent")
}

func TestSampler(t *testing.T) {
	assert.Contains(t, Config{}.sampler().Description(), "AlwaysOnSampler")
	assert.Contains(t, Config{SampleRatio: 1}.sampler().Description(), "AlwaysOnSampler")
	assert.Contains(t, Config{SampleRatio: 0.25}.sampler().Description(), "TraceIDRatioBased{0.25}")
}
