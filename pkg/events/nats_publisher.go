package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/polisai/hookgate/pkg/domain"
)

// DefaultSubject is where approvals are published when none is configured.
const DefaultSubject = "hookgate.hook.approved"

// NATSPublisher publishes JSON-encoded approvals on a core NATS subject.
type NATSPublisher struct {
	nc      *nats.Conn
	subject string
}

// NewNATSPublisher returns a publisher writing to subject on nc.
func NewNATSPublisher(nc *nats.Conn, subject string) *NATSPublisher {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSPublisher{nc: nc, subject: subject}
}

// Subject returns the subject events are published on.
func (p *NATSPublisher) Subject() string {
	return p.subject
}

// Publish encodes evt and sends it. NATS core publish does not take a
// context, so cancellation is only checked up front.
func (p *NATSPublisher) Publish(ctx context.Context, evt domain.HookApproved) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal hook approved event: %w", err)
	}

	msg := nats.NewMsg(p.subject)
	msg.Data = data
	if evt.EventID != "" {
		msg.Header.Set(nats.MsgIdHdr, evt.EventID)
	}
	if err := p.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", p.subject, err)
	}
	return nil
}
