package notification

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	dErrors "github.com/pagopa/io-functions-admin-sub002/pkg/domain-errors"
	"github.com/pagopa/io-functions-admin-sub002/pkg/platform/circuit"
)

// Producer is the transport slice the publisher needs.
type Producer interface {
	Publish(ctx context.Context, key string, value []byte) error
}

// probeTimeout bounds publish attempts made while the circuit is open.
const probeTimeout = 2 * time.Second

// KafkaPublisher publishes notification messages to the configured topic,
// keyed by fiscal code. A circuit breaker keeps workflow activities from
// stalling on a broker outage: while open, attempts are bounded by a short
// probe timeout and a first success closes the circuit again.
type KafkaPublisher struct {
	producer Producer
	breaker  *circuit.Breaker
	logger   *slog.Logger
}

type KafkaPublisherOption func(*KafkaPublisher)

func WithLogger(logger *slog.Logger) KafkaPublisherOption {
	return func(p *KafkaPublisher) { p.logger = logger }
}

func WithBreaker(breaker *circuit.Breaker) KafkaPublisherOption {
	return func(p *KafkaPublisher) { p.breaker = breaker }
}

func NewKafkaPublisher(producer Producer, opts ...KafkaPublisherOption) *KafkaPublisher {
	p := &KafkaPublisher{
		producer: producer,
		breaker:  circuit.New("notification-kafka"),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *KafkaPublisher) Publish(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "encode notification")
	}

	if p.breaker.IsOpen() {
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		defer cancel()
		ctx = probeCtx
	}

	if err := p.producer.Publish(ctx, msg.FiscalCode.String(), payload); err != nil {
		if _, change := p.breaker.RecordFailure(); change.Opened {
			p.logger.Warn("notification circuit opened", "breaker", p.breaker.Name())
		}
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "publish notification")
	}

	if _, change := p.breaker.RecordSuccess(); change.Closed {
		p.logger.Info("notification circuit closed", "breaker", p.breaker.Name())
	}
	return nil
}
