// Package escalation decides when a conversation needs a human and hands
// contacts over: it writes the escalation record, flips the contact to the
// escalated state, and notifies the contact with a priority-matched
// acknowledgment.
package escalation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/icupa/outreach/internal/contacts"
	"github.com/icupa/outreach/internal/docstore"
	"github.com/icupa/outreach/internal/events"
)

// Collection is the document collection escalation records live in.
const Collection = "escalations"

// ErrValidation is returned for malformed escalation requests.
var ErrValidation = errors.New("invalid escalation request")

// Priorities accepted on an escalation request.
const (
	PriorityHigh   = "high"
	PriorityNormal = "normal"
	PriorityLow    = "low"
)

// Decision is the outcome of an escalation check.
type Decision struct {
	Escalate bool
	Reason   string
}

// Classifier judges whether a conversation should be handed to a human.
// Implementations must fail closed: on any analysis error they answer false.
type Classifier interface {
	ShouldEscalate(ctx context.Context, conversation, latest string) (bool, string)
}

// Notifier sends the acknowledgment message to the contact.
type Notifier interface {
	Send(ctx context.Context, to, text, channelName string) (string, error)
}

// Service owns the escalation lifecycle.
type Service struct {
	store      docstore.Store
	contacts   *contacts.Service
	events     *events.Recorder
	classifier Classifier
	notifier   Notifier
	logger     *slog.Logger
	now        func() time.Time
}

// NewService creates the escalation service.
func NewService(log *slog.Logger, store docstore.Store, contactSvc *contacts.Service, recorder *events.Recorder, classifier Classifier, notifier Notifier) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:      store,
		contacts:   contactSvc,
		events:     recorder,
		classifier: classifier,
		notifier:   notifier,
		logger:     log.With(slog.String("service", "escalation")),
		now:        time.Now,
	}
}

// Check runs the classifier over the contact's recent history plus the
// latest inbound message. A classifier failure means no escalation.
func (s *Service) Check(ctx context.Context, contact contacts.Contact, latest string) Decision {
	var lines []string
	history := contact.Messages
	if len(history) > 10 {
		history = history[len(history)-10:]
	}
	for _, msg := range history {
		lines = append(lines, fmt.Sprintf("%s: %s", msg.From, msg.Text))
	}
	escalate, reason := s.classifier.ShouldEscalate(ctx, strings.Join(lines, "\n"), latest)
	return Decision{Escalate: escalate, Reason: reason}
}

// Escalate records the handover for an existing contact and acknowledges it
// to them. It returns the new escalation record id. The acknowledgment send
// is best effort; a failure there does not roll the handover back.
func (s *Service) Escalate(ctx context.Context, contactID, reason, priority, agentNotes string) (string, error) {
	if contactID == "" || reason == "" {
		return "", fmt.Errorf("%w: contact id and reason are required", ErrValidation)
	}
	if priority == "" {
		priority = PriorityNormal
	}

	contact, err := s.contacts.Get(ctx, contactID)
	if err != nil {
		return "", err
	}

	escalatedAt := s.now().UTC()
	escalationID, err := s.store.Add(ctx, Collection, docstore.Doc{
		"contact_id":   contactID,
		"reason":       reason,
		"priority":     priority,
		"agent_notes":  agentNotes,
		"escalated_at": escalatedAt,
		"status":       "pending",
		"escalated_by": "ai_agent",
		"contact_info": map[string]any{
			"phone":            contactID,
			"language":         contact.Language,
			"agent_id":         contact.AgentID,
			"last_interaction": contact.LastInteraction,
		},
	})
	if err != nil {
		return "", fmt.Errorf("record escalation: %w", err)
	}

	if err := s.contacts.Update(ctx, contactID, map[string]any{
		"escalation":        true,
		"escalation_id":     escalationID,
		"escalation_reason": reason,
		"escalation_date":   escalatedAt,
		"status":            contacts.StatusEscalated,
	}); err != nil {
		return "", fmt.Errorf("mark contact escalated: %w", err)
	}

	platform := contact.Platform
	if platform == "" {
		platform = "whatsapp"
	}
	if _, err := s.notifier.Send(ctx, contactID, AcknowledgmentMessage(priority), platform); err != nil {
		s.logger.Error("escalation acknowledgment failed",
			slog.String("contact_id", contactID),
			slog.Any("error", err),
		)
	}

	s.events.Log(ctx, events.Event{
		Type:      "escalation",
		Status:    "created",
		ContactID: contactID,
		Metadata: map[string]any{
			"escalation_id": escalationID,
			"reason":        reason,
			"priority":      priority,
		},
	})

	s.logger.Info("lead escalated",
		slog.String("contact_id", contactID),
		slog.String("escalation_id", escalationID),
		slog.String("priority", priority),
	)
	return escalationID, nil
}

// AcknowledgmentMessage returns the customer-facing text for a priority.
// Unknown priorities fall back to the normal tier.
func AcknowledgmentMessage(priority string) string {
	switch priority {
	case PriorityHigh:
		return "Thank you for your inquiry! Due to the specialized nature of your request, I've prioritized your case and one of our senior consultants will contact you within the next 2 hours."
	case PriorityLow:
		return "Thank you for reaching out! A member of our team will follow up with you within 2-3 business days."
	default:
		return "Thanks for your question! I've connected you with a specialist who will get back to you within 24 hours with detailed information."
	}
}
