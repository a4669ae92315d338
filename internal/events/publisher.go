// Package events publishes spike activity to NATS so downstream consumers
// can react to pattern firings without polling the HTTP API.
//
// Spike events are published to subjects:
//
//	patterns.spikes.{domain}
//
// Publishing is best effort: callers log failures and move on, a spike is
// never rolled back because the broker was unavailable.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/patternd/internal/pattern"
)

// subjectSpikes is the template for spike subjects. The domain is used as a
// subject token verbatim.
const subjectSpikes = "patterns.spikes.%s"

// Connect dials NATS with the reconnect settings used across the daemon.
func Connect(url string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(1*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return nc, nil
}

// Publisher publishes pattern spike events to NATS.
type Publisher struct {
	nc     *nats.Conn
	logger *zap.Logger
}

// NewPublisher creates a publisher on an existing connection. The connection
// is owned by the caller and is not closed by the publisher.
func NewPublisher(nc *nats.Conn, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{nc: nc, logger: logger}
}

// PublishSpike publishes one spike event to patterns.spikes.{domain}.
func (p *Publisher) PublishSpike(ctx context.Context, ev *pattern.SpikeEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal spike event: %w", err)
	}

	subject := fmt.Sprintf(subjectSpikes, ev.Domain)
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish spike event: %w", err)
	}

	p.logger.Debug("published spike event",
		zap.String("subject", subject),
		zap.String("pattern_id", ev.FiredPattern),
		zap.Bool("did_fire", ev.DidFire),
	)
	return nil
}
