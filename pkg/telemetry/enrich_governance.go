package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Decision summarises a finalization for span annotation.
type Decision struct {
	ProposalID   uint64
	HookID       string
	VotesFor     uint64
	VotesAgainst uint64
	Threshold    uint64
	Approved     bool
}

// ProposalIDAttr tags a span with a proposal id. Ids use the full uint64
// range, so they are rendered as decimal strings.
func ProposalIDAttr(id uint64) attribute.KeyValue {
	return attribute.String("governance.proposal.id", formatUint(id))
}

// RecordDecision annotates span with the finalization outcome.
func RecordDecision(span trace.Span, d Decision) {
	if span == nil || !span.IsRecording() {
		return
	}

	attrs := []attribute.KeyValue{
		ProposalIDAttr(d.ProposalID),
		attribute.String("governance.hook.id", d.HookID),
		attribute.String("governance.votes.for", formatUint(d.VotesFor)),
		attribute.String("governance.votes.against", formatUint(d.VotesAgainst)),
		attribute.String("governance.threshold", formatUint(d.Threshold)),
		attribute.Bool("governance.approved", d.Approved),
	}
	span.SetAttributes(attrs...)

	if d.Approved {
		span.AddEvent("governance.hook_approved", trace.WithAttributes(attrs...))
	}
}

// RecordError marks span as failed unless err is a routine rejection.
func RecordError(span trace.Span, err error, rejection bool) {
	if span == nil || !span.IsRecording() || err == nil {
		return
	}
	if rejection {
		span.SetAttributes(attribute.String("governance.rejection", err.Error()))
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
