// Package delivery sends queued notifications over their channel.
package delivery

import (
	"context"
	"errors"
	"log/slog"

	"github.com/phrazzld/taskpulse/internal/domain"
)

// ErrUnsupportedChannel is returned when no sender serves a channel.
var ErrUnsupportedChannel = errors.New("unsupported notification channel")

// Receipt describes an accepted delivery.
type Receipt struct {
	Simulated bool
	MessageID string
}

// Sender delivers one notification.
type Sender interface {
	Send(ctx context.Context, n *domain.NotificationDelivery) (Receipt, error)
}

// SimulatedSender logs the notification instead of delivering it.
type SimulatedSender struct {
	logger *slog.Logger
}

// NewSimulatedSender creates a SimulatedSender.
func NewSimulatedSender(logger *slog.Logger) *SimulatedSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &SimulatedSender{logger: logger.With("component", "simulated_sender")}
}

func (s *SimulatedSender) Send(ctx context.Context, n *domain.NotificationDelivery) (Receipt, error) {
	s.logger.InfoContext(ctx, "simulated notification delivery",
		"notification_id", n.ID,
		"channel", n.Channel,
		"recipient", n.Recipient,
		"subject", n.Subject)
	return Receipt{Simulated: true}, nil
}

// Router picks a sender by channel. Email goes through the email sender
// when one is configured and the recipient is a real address; everything
// else falls back to the simulated sender.
type Router struct {
	email     Sender
	simulated Sender
}

// NewRouter creates a Router. email may be nil.
func NewRouter(email Sender, simulated Sender) *Router {
	return &Router{email: email, simulated: simulated}
}

// For returns the sender for n.
func (r *Router) For(n *domain.NotificationDelivery) (Sender, error) {
	switch n.Channel {
	case domain.ChannelEmail:
		if r.email != nil && !domain.IsPlaceholderRecipient(n.Recipient) {
			return r.email, nil
		}
		return r.simulated, nil
	case domain.ChannelPush, domain.ChannelInApp:
		return r.simulated, nil
	}
	return nil, ErrUnsupportedChannel
}

// Simulated reports whether n would be delivered by the simulated sender.
func (r *Router) Simulated(n *domain.NotificationDelivery) bool {
	s, err := r.For(n)
	return err == nil && s == r.simulated
}

// Send routes and delivers n.
func (r *Router) Send(ctx context.Context, n *domain.NotificationDelivery) (Receipt, error) {
	s, err := r.For(n)
	if err != nil {
		return Receipt{}, err
	}
	return s.Send(ctx, n)
}
