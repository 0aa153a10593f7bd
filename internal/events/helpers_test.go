package events

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskpulse/internal/domain"
	"github.com/phrazzld/taskpulse/internal/mocks"
)

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingBroker struct {
	mu   sync.Mutex
	envs []Envelope
	err  error
}

func (b *recordingBroker) Publish(_ context.Context, env Envelope) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.envs = append(b.envs, env)
	return nil
}

func (b *recordingBroker) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.envs)
}

func newTestPublisher(broker Broker) (*Publisher, *mocks.EventStore) {
	st := mocks.NewEventStore()
	return NewPublisher(st, broker, discardLogger(), WithClock(func() time.Time { return fixedNow })), st
}

func taskEnvelope(p *Publisher, t domain.EventType, title string) Envelope {
	env, err := p.Create(t, uuid.New(), uuid.New(), TaskPayload{Title: title}, nil)
	if err != nil {
		panic(err)
	}
	return env
}
