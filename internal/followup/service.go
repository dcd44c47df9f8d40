// Package followup schedules deferred outreach touches and runs the periodic
// sweep that executes the ones that have come due.
package followup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/icupa/outreach/internal/contacts"
	"github.com/icupa/outreach/internal/docstore"
	"github.com/icupa/outreach/internal/events"
	"github.com/icupa/outreach/internal/persona"
)

// Collection is the document collection follow-up records live in.
const Collection = "follow_ups"

// ErrValidation is returned for malformed schedule requests.
var ErrValidation = errors.New("invalid follow-up request")

// Follow-up record statuses. A record leaves "scheduled" exactly once.
const (
	StatusScheduled = "scheduled"
	StatusSent      = "sent"
	StatusSkipped   = "skipped"
	StatusFailed    = "failed"
)

// Sender delivers the rendered follow-up text.
type Sender interface {
	Send(ctx context.Context, to, text, channelName string) (string, error)
}

// Service schedules and executes follow-ups.
type Service struct {
	store     docstore.Store
	contacts  *contacts.Service
	events    *events.Recorder
	resolver  *persona.Resolver
	sender    Sender
	logger    *slog.Logger
	batchSize int
	now       func() time.Time

	sweepMu sync.Mutex
}

// NewService creates the follow-up service. batchSize caps how many due
// records one sweep picks up.
func NewService(log *slog.Logger, store docstore.Store, contactSvc *contacts.Service, recorder *events.Recorder, resolver *persona.Resolver, sender Sender, batchSize int) *Service {
	if log == nil {
		log = slog.Default()
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Service{
		store:     store,
		contacts:  contactSvc,
		events:    recorder,
		resolver:  resolver,
		sender:    sender,
		logger:    log.With(slog.String("service", "followup")),
		batchSize: batchSize,
		now:       time.Now,
	}
}

// Schedule books a follow-up for the contact delayHours from now. The
// contact must already exist. It returns the follow-up record id.
func (s *Service) Schedule(ctx context.Context, contactID string, delayHours int, template string, tctx map[string]string) (string, time.Time, error) {
	if contactID == "" {
		return "", time.Time{}, fmt.Errorf("%w: contact id is required", ErrValidation)
	}
	if delayHours <= 0 {
		delayHours = 24
	}
	if template == "" {
		template = "default_followup"
	}

	contact, err := s.contacts.Get(ctx, contactID)
	if err != nil {
		return "", time.Time{}, err
	}

	now := s.now().UTC()
	scheduledAt := now.Add(time.Duration(delayHours) * time.Hour)

	agentID := contact.AgentID
	if agentID == "" {
		agentID = s.resolver.DefaultAgentID()
	}

	tctxDoc := map[string]any{}
	for k, v := range tctx {
		tctxDoc[k] = v
	}
	followupID, err := s.store.Add(ctx, Collection, docstore.Doc{
		"contact_id":       contactID,
		"scheduled_time":   scheduledAt,
		"message_template": template,
		"context":          tctxDoc,
		"status":           StatusScheduled,
		"created_at":       now,
		"agent_id":         agentID,
	})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("schedule follow-up: %w", err)
	}

	if err := s.contacts.Update(ctx, contactID, map[string]any{
		"next_followup":  scheduledAt,
		"followup_count": contact.FollowupCount + 1,
	}); err != nil {
		return "", time.Time{}, fmt.Errorf("stamp contact follow-up: %w", err)
	}

	s.events.Log(ctx, events.Event{
		Type:      "follow_up_scheduled",
		Status:    "created",
		ContactID: contactID,
		Metadata: map[string]any{
			"followup_id":    followupID,
			"scheduled_time": scheduledAt.Format(time.RFC3339),
			"delay_hours":    delayHours,
		},
	})
	return followupID, scheduledAt, nil
}

// Sweep executes every follow-up that is due, up to the batch size. Sweeps
// never overlap: when one is already running the call returns immediately.
// Each record is executed in isolation so one failure does not stop the rest.
func (s *Service) Sweep(ctx context.Context) error {
	if !s.sweepMu.TryLock() {
		s.logger.Debug("sweep already running, skipping")
		return nil
	}
	defer s.sweepMu.Unlock()

	due, err := s.store.Query(ctx, Collection, []docstore.Filter{
		{Field: "status", Op: "==", Value: StatusScheduled},
		{Field: "scheduled_time", Op: "<=", Value: s.now().UTC().Format(time.RFC3339)},
	}, s.batchSize)
	if err != nil {
		return fmt.Errorf("query due follow-ups: %w", err)
	}
	if len(due) == 0 {
		return nil
	}

	s.logger.Info("processing due follow-ups", slog.Int("count", len(due)))
	for _, entry := range due {
		s.executeOne(ctx, entry.ID, entry.Doc)
	}
	return nil
}

func (s *Service) executeOne(ctx context.Context, followupID string, doc docstore.Doc) {
	// Re-read the record so a transition applied since the query ran is not
	// replayed. A record leaves the scheduled state exactly once.
	current, err := s.store.Get(ctx, Collection, followupID)
	if err == nil {
		doc = current
	}
	if status, _ := doc["status"].(string); status != StatusScheduled {
		return
	}

	contactID, _ := doc["contact_id"].(string)
	template, _ := doc["message_template"].(string)
	agentID, _ := doc["agent_id"].(string)

	contact, err := s.contacts.Get(ctx, contactID)
	if err != nil {
		if errors.Is(err, contacts.ErrNotFound) {
			s.finish(ctx, followupID, StatusFailed, "Contact not found")
			return
		}
		s.logger.Error("load contact for follow-up",
			slog.String("followup_id", followupID),
			slog.Any("error", err),
		)
		s.finish(ctx, followupID, StatusFailed, err.Error())
		return
	}

	if contact.Status == contacts.StatusConverted || contact.Escalation {
		s.finish(ctx, followupID, StatusSkipped, "Contact already converted or escalated")
		return
	}

	tctx := map[string]string{}
	if raw, ok := doc["context"].(map[string]any); ok {
		for k, v := range raw {
			tctx[k] = fmt.Sprintf("%v", v)
		}
	}
	if tctx["contact_name"] == "" {
		if contact.Name != "" {
			tctx["contact_name"] = contact.Name
		} else {
			tctx["contact_name"] = "there"
		}
	}
	tctx["last_interaction"] = contact.LastInteraction.Format(time.RFC3339)

	message := s.resolver.FollowUpMessage(agentID, template, tctx)

	platform := contact.Platform
	if platform == "" {
		platform = "whatsapp"
	}
	if _, err := s.sender.Send(ctx, contactID, message, platform); err != nil {
		s.logger.Error("follow-up send failed",
			slog.String("followup_id", followupID),
			slog.String("contact_id", contactID),
			slog.Any("error", err),
		)
		s.finish(ctx, followupID, StatusFailed, err.Error())
		return
	}

	s.finish(ctx, followupID, StatusSent, "Follow-up message sent successfully")
	s.events.Log(ctx, events.Event{
		Type:      "follow_up_sent",
		Status:    "success",
		ContactID: contactID,
		Metadata: map[string]any{
			"followup_id":      followupID,
			"message_template": template,
		},
	})
}

func (s *Service) finish(ctx context.Context, followupID, status, notes string) {
	err := s.store.Update(ctx, Collection, followupID, docstore.Doc{
		"status":      status,
		"executed_at": s.now().UTC(),
		"notes":       notes,
	})
	if err != nil {
		s.logger.Error("update follow-up status",
			slog.String("followup_id", followupID),
			slog.String("status", status),
			slog.Any("error", err),
		)
	}
}
