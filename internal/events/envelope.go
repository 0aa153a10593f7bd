package events

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskpulse/internal/domain"
)

// CloudEvents attributes fixed for every envelope this service produces.
const (
	SpecVersion            = "1.0"
	Source                 = "/backend/tasks"
	DataContentType        = "application/json"
	CloudEventsContentType = "application/cloudevents+json"
)

// Envelope is a CloudEvents 1.0 structured-mode event.
type Envelope struct {
	SpecVersion     string
	Type            domain.EventType
	Source          string
	ID              uuid.UUID
	Time            time.Time
	DataContentType string
	Data            Data
}

// Data is the envelope body: the aggregate header followed by the
// payload's own fields at the same level.
type Data struct {
	AggregateType string
	AggregateID   uuid.UUID
	UserID        uuid.UUID
	Metadata      map[string]any
	Payload       Payload
}

type dataHead struct {
	AggregateType string         `json:"aggregate_type"`
	AggregateID   uuid.UUID      `json:"aggregate_id"`
	UserID        uuid.UUID      `json:"user_id"`
	Metadata      map[string]any `json:"metadata"`
}

type envelopeWire struct {
	SpecVersion     string           `json:"specversion"`
	Type            domain.EventType `json:"type"`
	Source          string           `json:"source"`
	ID              uuid.UUID        `json:"id"`
	Time            string           `json:"time"`
	DataContentType string           `json:"datacontenttype"`
	Data            json.RawMessage  `json:"data"`
}

// MarshalJSON flattens the payload fields into the data object.
func (d Data) MarshalJSON() ([]byte, error) {
	meta := d.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	head, err := json.Marshal(dataHead{
		AggregateType: d.AggregateType,
		AggregateID:   d.AggregateID,
		UserID:        d.UserID,
		Metadata:      meta,
	})
	if err != nil {
		return nil, err
	}
	if d.Payload == nil {
		return head, nil
	}
	body, err := json.Marshal(d.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	body = bytes.TrimSpace(body)
	if len(body) < 2 || body[0] != '{' {
		return nil, fmt.Errorf("payload must encode as a JSON object")
	}
	if len(bytes.TrimSpace(body[1:len(body)-1])) == 0 {
		return head, nil
	}

	out := make([]byte, 0, len(head)+len(body))
	out = append(out, head[:len(head)-1]...)
	out = append(out, ',')
	out = append(out, body[1:]...)
	return out, nil
}

// MarshalJSON renders the structured-mode CloudEvents document.
func (e Envelope) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelopeWire{
		SpecVersion:     e.SpecVersion,
		Type:            e.Type,
		Source:          e.Source,
		ID:              e.ID,
		Time:            e.Time.UTC().Format(time.RFC3339Nano),
		DataContentType: e.DataContentType,
		Data:            data,
	})
}

// UnmarshalJSON decodes a CloudEvents document into its typed payload.
func (e *Envelope) UnmarshalJSON(b []byte) error {
	var w envelopeWire
	if err := json.Unmarshal(b, &w); err != nil {
		return fmt.Errorf("failed to decode envelope: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, w.Time)
	if err != nil {
		return fmt.Errorf("invalid envelope time %q: %w", w.Time, err)
	}

	var head dataHead
	if err := json.Unmarshal(w.Data, &head); err != nil {
		return fmt.Errorf("failed to decode envelope data: %w", err)
	}
	payload, err := decodePayload(w.Type, w.Data)
	if err != nil {
		return err
	}

	*e = Envelope{
		SpecVersion:     w.SpecVersion,
		Type:            w.Type,
		Source:          w.Source,
		ID:              w.ID,
		Time:            ts.UTC(),
		DataContentType: w.DataContentType,
		Data: Data{
			AggregateType: head.AggregateType,
			AggregateID:   head.AggregateID,
			UserID:        head.UserID,
			Metadata:      head.Metadata,
			Payload:       payload,
		},
	}
	return nil
}

// DecodeEnvelope rebuilds the envelope persisted in an outbox row. It
// returns an error wrapping ErrUnknownEventType for types outside the set.
func DecodeEnvelope(stored *domain.StoredEvent) (Envelope, error) {
	if !stored.EventType.Valid() {
		return Envelope{}, fmt.Errorf("%w: %q", ErrUnknownEventType, stored.EventType)
	}
	var env Envelope
	if err := json.Unmarshal(stored.Payload, &env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}
