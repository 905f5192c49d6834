package telemetry

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	collectortrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"
	"google.golang.org/grpc"
)

type traceCollector struct {
	collectortrace.UnimplementedTraceServiceServer

	mu            sync.Mutex
	resourceSpans []*tracepb.ResourceSpans
	notify        chan struct{}
}

func startTraceCollector(t *testing.T) (*traceCollector, string) {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	collector := &traceCollector{notify: make(chan struct{}, 1)}
	server := grpc.NewServer()
	collectortrace.RegisterTraceServiceServer(server, collector)

	go func() {
		_ = server.Serve(lis)
	}()

	t.Cleanup(func() {
		server.Stop()
		_ = lis.Close()
	})

	return collector, lis.Addr().String()
}

func (c *traceCollector) Export(_ context.Context, req *collectortrace.ExportTraceServiceRequest) (*collectortrace.ExportTraceServiceResponse, error) {
	c.mu.Lock()
	c.resourceSpans = append(c.resourceSpans, req.ResourceSpans...)
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}

	return &collectortrace.ExportTraceServiceResponse{}, nil
}

func (c *traceCollector) waitForSpans(ctx context.Context, n int) []*tracepb.Span {
	for {
		c.mu.Lock()
		var spans []*tracepb.Span
		for _, rs := range c.resourceSpans {
			for _, scope := range rs.ScopeSpans {
				spans = append(spans, scope.Spans...)
			}
		}
		c.mu.Unlock()
		if len(spans) >= n {
			return spans
		}

		select {
		case <-ctx.Done():
			return nil
		case <-c.notify:
		}
	}
}

func (c *traceCollector) serviceName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, rs := range c.resourceSpans {
		for _, attr := range rs.GetResource().GetAttributes() {
			if attr.GetKey() == "service.name" {
				return attr.GetValue().GetStringValue()
			}
		}
	}
	return ""
}

func TestSetupProviderExportsSpans(t *testing.T) {
	collector, endpoint := startTraceCollector(t)

	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	ctx := context.Background()
	shutdown, err := SetupProvider(ctx, Config{
		ServiceName: "hookgate-test",
		Endpoint:    endpoint,
		Environment: "test",
		Insecure:    true,
	})
	require.NoError(t, err)

	_, span := Tracer().Start(ctx, "governance.finalize")
	RecordDecision(span, Decision{ProposalID: 1, HookID: "ab", VotesFor: 2, Threshold: 1, Approved: true})
	span.End()

	// Shutdown flushes the batcher.
	require.NoError(t, shutdown(ctx))

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	spans := collector.waitForSpans(waitCtx, 1)
	require.Len(t, spans, 1)
	assert.Equal(t, "governance.finalize", spans[0].GetName())
	require.Len(t, spans[0].GetEvents(), 1)
	assert.Equal(t, "governance.hook_approved", spans[0].GetEvents()[0].GetName())
	assert.Equal(t, "hookgate-test", collector.serviceName())
}
