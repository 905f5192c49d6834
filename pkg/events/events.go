// Package events delivers HookApproved notifications to downstream
// consumers. Sinks are invoked after the finalizing transaction commits.
package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/polisai/hookgate/pkg/domain"
)

// Stamp assigns an event id when the event does not carry one yet.
func Stamp(evt domain.HookApproved) domain.HookApproved {
	if evt.EventID == "" {
		evt.EventID = uuid.NewString()
	}
	return evt
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []domain.HookApproved
}

// Publish appends evt.
func (r *Recorder) Publish(_ context.Context, evt domain.HookApproved) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []domain.HookApproved {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.HookApproved, len(r.events))
	copy(out, r.events)
	return out
}

// LogSink writes each event as a structured log record.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink returns a sink logging to logger, or slog.Default when nil.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Publish logs evt at info level.
func (s *LogSink) Publish(ctx context.Context, evt domain.HookApproved) error {
	s.logger.InfoContext(ctx, "hook approved",
		"event_id", evt.EventID,
		"hook_id", evt.HookID.String(),
		"proposal_id", evt.ProposalID,
		"votes_for", evt.VotesFor,
		"votes_against", evt.VotesAgainst,
	)
	return nil
}

// Fanout publishes to every sink and joins their errors.
type Fanout []domain.EventSink

// Publish delivers evt to all sinks, continuing past failures.
func (f Fanout) Publish(ctx context.Context, evt domain.HookApproved) error {
	var errs []error
	for _, sink := range f {
		if sink == nil {
			continue
		}
		if err := sink.Publish(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
