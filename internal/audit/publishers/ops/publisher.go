// Package ops streams audit records to Kafka for operational dashboards.
//
// Delivery is strictly best-effort: the hash chain is the source of truth,
// so produce failures are logged at debug level and never surfaced to the
// calling operation.
package ops

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Publisher produces audit records to a single topic, keyed by the chain
// record hash so consumers can deduplicate on redelivery.
type Publisher struct {
	client *kgo.Client
	logger *slog.Logger
}

type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) { p.logger = logger }
}

func New(brokers []string, topic string, opts ...Option) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	p := &Publisher{client: client}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Publish produces one record asynchronously. Errors are logged, not
// returned; this sink must never slow down or fail an audited operation.
func (p *Publisher) Publish(ctx context.Context, key string, value []byte) {
	p.client.Produce(ctx, &kgo.Record{Key: []byte(key), Value: value}, func(r *kgo.Record, err error) {
		if err != nil && p.logger != nil {
			p.logger.Debug("ops audit produce failed", "key", key, "error", err)
		}
	})
}

// Close flushes buffered records and releases the client.
func (p *Publisher) Close() {
	p.client.Close()
}
