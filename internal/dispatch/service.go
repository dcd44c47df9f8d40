// Package dispatch sends outbound messages through a named channel adapter
// and reconciles the asynchronous delivery reports that come back later.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/icupa/outreach/internal/channel"
	"github.com/icupa/outreach/internal/contacts"
	"github.com/icupa/outreach/internal/events"
)

// DefaultChannel is used when a caller does not name a channel.
const DefaultChannel = "whatsapp"

// ErrValidation is returned for malformed send requests. No side effects
// happen before validation passes.
var ErrValidation = errors.New("invalid send request")

// AgentDirectory assigns an agent to a phone number.
type AgentDirectory interface {
	AgentForNumber(phone string) string
}

// Service is the outbound dispatch pipeline.
type Service struct {
	channels *channel.Registry
	contacts *contacts.Service
	events   *events.Recorder
	agents   AgentDirectory
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates the dispatch service.
func NewService(log *slog.Logger, channels *channel.Registry, store *contacts.Service, recorder *events.Recorder, agents AgentDirectory) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		channels: channels,
		contacts: store,
		events:   recorder,
		agents:   agents,
		logger:   log.With(slog.String("service", "dispatch")),
		now:      time.Now,
	}
}

// Send delivers text to the recipient over the named channel, creating the
// contact when it does not exist yet and appending the message to its history
// with the provider message id. It returns that message id.
func (s *Service) Send(ctx context.Context, to, text, channelName string) (string, error) {
	to = strings.TrimSpace(to)
	text = strings.TrimSpace(text)
	if to == "" || text == "" {
		return "", fmt.Errorf("%w: recipient and message are required", ErrValidation)
	}
	if channelName == "" {
		channelName = DefaultChannel
	}
	adapter, ok := s.channels.Get(channelName)
	if !ok {
		return "", fmt.Errorf("%w: unknown channel %q", ErrValidation, channelName)
	}

	if _, err := s.contacts.Create(ctx, to, contacts.Seed{
		PhoneNumber: to,
		Platform:    channelName,
		AgentID:     s.agents.AgentForNumber(to),
	}); err != nil {
		return "", fmt.Errorf("prepare contact: %w", err)
	}

	messageID, err := adapter.SendText(ctx, to, text)
	if err != nil {
		s.logger.Error("send failed",
			slog.String("channel", channelName),
			slog.String("to", to),
			slog.Any("error", err),
		)
		s.events.Log(ctx, events.Event{
			Type:      channelName + "_message",
			Status:    "failed",
			ContactID: to,
			Metadata:  map[string]any{"error": err.Error()},
		})
		return "", fmt.Errorf("send %s message: %w", channelName, err)
	}

	if err := s.contacts.AppendMessage(ctx, to, contacts.Message{
		From:      contacts.FromAgent,
		Text:      text,
		MessageID: messageID,
		Timestamp: s.now().UTC(),
		Status:    contacts.MessageStatusSentToAPI,
	}); err != nil {
		// The message is already on the wire; surface the bookkeeping
		// failure without pretending the send failed.
		s.logger.Error("record sent message",
			slog.String("contact_id", to),
			slog.String("message_id", messageID),
			slog.Any("error", err),
		)
	}

	s.events.Log(ctx, events.Event{
		Type:      channelName + "_message",
		Status:    "sent",
		ContactID: to,
		Metadata:  map[string]any{"message_id": messageID},
	})
	return messageID, nil
}

// Reconcile applies a provider delivery report to the matching message in the
// recipient's history. Reports for unknown messages are logged and dropped.
func (s *Service) Reconcile(ctx context.Context, recipientID, messageID, status string, observedAt time.Time) error {
	if observedAt.IsZero() {
		observedAt = s.now().UTC()
	}
	if err := s.contacts.UpdateMessageStatus(ctx, recipientID, messageID, status, observedAt); err != nil {
		if errors.Is(err, contacts.ErrNotFound) {
			s.logger.Warn("delivery report for unknown contact",
				slog.String("contact_id", recipientID),
				slog.String("message_id", messageID),
			)
			return nil
		}
		return fmt.Errorf("reconcile delivery: %w", err)
	}
	s.events.Log(ctx, events.Event{
		Type:      "message_delivery",
		Status:    status,
		ContactID: recipientID,
		Metadata:  map[string]any{"message_id": messageID},
	})
	return nil
}
