package runlog

import (
	"context"

	"github.com/nats-io/nats.go"

	"github.com/free-bad-Man/rahima-consulting-v2-0/pkg/natsutil"
)

// NATSSink publishes each event as JSON on a subject.
type NATSSink struct {
	nc      *nats.Conn
	subject string
}

// NewNATSSink creates a sink publishing on subject.
func NewNATSSink(nc *nats.Conn, subject string) *NATSSink {
	return &NATSSink{nc: nc, subject: subject}
}

// Emit implements Sink.
func (s *NATSSink) Emit(ctx context.Context, e Event) error {
	return natsutil.Publish(ctx, s.nc, s.subject, e)
}
