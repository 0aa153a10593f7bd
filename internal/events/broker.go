package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/phrazzld/taskpulse/internal/config"
)

// ErrBrokerDisabled is returned by NopBroker.
var ErrBrokerDisabled = errors.New("event broker is disabled")

// Broker delivers envelopes to an external pub/sub system.
type Broker interface {
	Publish(ctx context.Context, env Envelope) error
}

// NopBroker rejects every publish so outbox rows stay unpublished.
type NopBroker struct{}

// Publish always fails with ErrBrokerDisabled.
func (NopBroker) Publish(context.Context, Envelope) error { return ErrBrokerDisabled }

// Broker names accepted by NewBrokerFromConfig.
const (
	BrokerDapr  = "dapr"
	BrokerKafka = "kafka"
	BrokerNone  = "none"
)

// NewBrokerFromConfig selects the broker named by cfg.Events.Broker. The
// returned close function releases broker resources and is never nil.
func NewBrokerFromConfig(cfg *config.Config, logger *slog.Logger) (Broker, func() error, error) {
	noClose := func() error { return nil }
	switch cfg.Events.Broker {
	case BrokerDapr:
		return NewDaprBroker(cfg.Dapr.BaseURL, cfg.Dapr.PubsubName, cfg.Dapr.Topic, nil, logger), noClose, nil
	case BrokerKafka:
		if len(cfg.Kafka.Brokers) == 0 {
			return nil, nil, fmt.Errorf("kafka broker selected but kafka.brokers is empty")
		}
		b := NewKafkaBroker(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		return b, b.Close, nil
	case BrokerNone, "":
		return NopBroker{}, noClose, nil
	default:
		return nil, nil, fmt.Errorf("unknown event broker %q", cfg.Events.Broker)
	}
}
