package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// Dapr sidecar defaults.
const (
	DefaultDaprBaseURL = "http://localhost:3500"
	DefaultPubsubName  = "taskpubsub"
	DefaultTopic       = "task-events"
)

// DaprBroker publishes structured CloudEvents through the Dapr sidecar's
// pub/sub HTTP API.
type DaprBroker struct {
	baseURL    string
	pubsub     string
	topic      string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

// NewDaprBroker creates a broker for the given sidecar. Empty arguments fall
// back to the defaults. A nil client uses a client with a 10s timeout.
func NewDaprBroker(baseURL, pubsub, topic string, client *http.Client, logger *slog.Logger) *DaprBroker {
	if baseURL == "" {
		baseURL = DefaultDaprBaseURL
	}
	if pubsub == "" {
		pubsub = DefaultPubsubName
	}
	if topic == "" {
		topic = DefaultTopic
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "dapr_broker")

	settings := gobreaker.Settings{
		Name:        "dapr-pubsub",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String())
		},
	}

	return &DaprBroker{
		baseURL:    strings.TrimRight(baseURL, "/"),
		pubsub:     pubsub,
		topic:      topic,
		httpClient: client,
		breaker:    gobreaker.NewCircuitBreaker(settings),
	}
}

// URL returns the publish endpoint.
func (b *DaprBroker) URL() string {
	return fmt.Sprintf("%s/v1.0/publish/%s/%s", b.baseURL, b.pubsub, b.topic)
}

// Publish posts the envelope. Any non-2xx response is an error, and an open
// breaker fails without contacting the sidecar.
func (b *DaprBroker) Publish(ctx context.Context, env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	_, err = b.breaker.Execute(func() (interface{}, error) {
		return nil, b.post(ctx, body)
	})
	if err != nil {
		return fmt.Errorf("dapr publish failed: %w", err)
	}
	return nil
}

func (b *DaprBroker) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.URL(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", CloudEventsContentType)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach sidecar: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("sidecar returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return nil
}
