package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"PageVault/internal/domain"
	"PageVault/internal/ports"
)

// NatsBus publishes versionCreated events as JSON on a NATS subject. Search
// indexing, embedding generation, and analysis subscribe independently; the
// storage engine never learns who listens.
type NatsBus struct {
	conn    *nats.Conn
	subject string
}

var _ ports.EventBus = (*NatsBus)(nil)

// NewNatsBus connects to the NATS server at url.
func NewNatsBus(url, subject string) (*NatsBus, error) {
	conn, err := nats.Connect(url, nats.Name("pagevault"))
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return &NatsBus{conn: conn, subject: subject}, nil
}

// Publish sends the event; delivery is best-effort fire-and-forget.
func (b *NatsBus) Publish(_ context.Context, event domain.VersionCreated) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.conn.Publish(b.subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", b.subject, err)
	}
	return nil
}

// Close drains the connection.
func (b *NatsBus) Close() {
	if b.conn != nil {
		b.conn.Close()
	}
}
