// Package conversation orchestrates the contact lifecycle: it turns inbound
// messages and voice callbacks into state transitions, AI replies, handovers,
// and conversion records.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/icupa/outreach/internal/channel"
	"github.com/icupa/outreach/internal/contacts"
	"github.com/icupa/outreach/internal/docstore"
	"github.com/icupa/outreach/internal/escalation"
	"github.com/icupa/outreach/internal/events"
	"github.com/icupa/outreach/internal/llm"
	"github.com/icupa/outreach/internal/persona"
)

// Collections written by conversion tracking.
const (
	ConversionsCollection  = "conversions"
	AgentMetricsCollection = "agent_metrics"
)

const voicePromptSuffix = "\n\nImportant: Keep responses concise and conversational for voice interaction. Avoid complex formatting."

// ErrValidation is returned for malformed conversion and call requests.
var ErrValidation = errors.New("invalid conversation request")

// Dispatcher sends outbound text through a channel.
type Dispatcher interface {
	Send(ctx context.Context, to, text, channelName string) (string, error)
}

// Escalator decides on and performs handovers to humans.
type Escalator interface {
	Check(ctx context.Context, contact contacts.Contact, latest string) escalation.Decision
	Escalate(ctx context.Context, contactID, reason, priority, agentNotes string) (string, error)
}

// Assistant generates replies and classifies inbound intent.
type Assistant interface {
	Complete(ctx context.Context, systemPrompt string, messages []llm.ChatMessage) (string, error)
	AnalyzeIntent(ctx context.Context, text string) llm.Intent
}

// Service is the conversation orchestrator.
type Service struct {
	store      docstore.Store
	contacts   *contacts.Service
	events     *events.Recorder
	dispatcher Dispatcher
	escalator  Escalator
	assistant  Assistant
	resolver   *persona.Resolver
	voice      channel.VoiceAdapter
	logger     *slog.Logger
	now        func() time.Time
}

// NewService wires the conversation orchestrator. voice may be nil when no
// voice channel is configured; voice operations then fail gracefully.
func NewService(log *slog.Logger, store docstore.Store, contactSvc *contacts.Service, recorder *events.Recorder, dispatcher Dispatcher, escalator Escalator, assistant Assistant, resolver *persona.Resolver, voice channel.VoiceAdapter) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:      store,
		contacts:   contactSvc,
		events:     recorder,
		dispatcher: dispatcher,
		escalator:  escalator,
		assistant:  assistant,
		resolver:   resolver,
		voice:      voice,
		logger:     log.With(slog.String("service", "conversation")),
		now:        time.Now,
	}
}

// HandleInbound processes one inbound text message: it records it on the
// contact, advances new contacts to contacted, and either hands the
// conversation to a human or sends an AI reply and marks the contact replied.
func (s *Service) HandleInbound(ctx context.Context, msg InboundMessage) error {
	text := msg.Text
	if text == "" {
		text = "[Non-text message]"
	}

	s.events.Log(ctx, events.Event{
		Type:      "whatsapp_message",
		Status:    "received",
		ContactID: msg.From,
		Metadata: map[string]any{
			"message_id":   msg.MessageID,
			"message_type": msg.Type,
		},
	})

	contact, err := s.contacts.Create(ctx, msg.From, contacts.Seed{
		PhoneNumber: msg.From,
		Platform:    "whatsapp",
		AgentID:     s.resolver.AgentForNumber(msg.From),
		Name:        msg.ProfileName,
	})
	if err != nil {
		return fmt.Errorf("resolve contact: %w", err)
	}

	if err := s.contacts.AppendMessage(ctx, msg.From, contacts.Message{
		From:      contacts.FromUser,
		Text:      text,
		MessageID: msg.MessageID,
		Timestamp: msg.Timestamp,
	}); err != nil {
		return err
	}

	if contact.Status == contacts.StatusNew {
		if err := s.contacts.Update(ctx, msg.From, map[string]any{"status": contacts.StatusContacted}); err != nil {
			return err
		}
	}

	intent := s.assistant.AnalyzeIntent(ctx, text)
	s.events.Log(ctx, events.Event{
		Type:      "intent_analysis",
		Status:    "completed",
		ContactID: msg.From,
		Metadata: map[string]any{
			"intent":     intent.Intent,
			"confidence": intent.Confidence,
			"sentiment":  intent.Sentiment,
		},
	})

	// Reload so the decision and the reply both see the appended message.
	contact, err = s.contacts.Get(ctx, msg.From)
	if err != nil {
		return err
	}

	decision := s.escalator.Check(ctx, contact, text)
	if decision.Escalate {
		if _, err := s.escalator.Escalate(ctx, msg.From, decision.Reason, escalation.PriorityNormal, ""); err != nil {
			return fmt.Errorf("escalate contact: %w", err)
		}
		return nil
	}

	reply, err := s.reply(ctx, contact, text, "")
	if err != nil {
		return err
	}
	if _, err := s.dispatcher.Send(ctx, msg.From, reply, "whatsapp"); err != nil {
		return err
	}
	return s.contacts.Update(ctx, msg.From, map[string]any{
		"status":        contacts.StatusReplied,
		"last_response": reply,
	})
}

// reply generates the assistant's next turn. callSID narrows the history to
// one call when set.
func (s *Service) reply(ctx context.Context, contact contacts.Contact, latest, callSID string) (string, error) {
	var history []llm.ChatMessage
	for _, m := range contact.Messages {
		if callSID != "" && m.CallSID != callSID {
			continue
		}
		role := "assistant"
		if m.From == contacts.FromUser {
			role = "user"
		}
		history = append(history, llm.ChatMessage{Role: role, Content: m.Text})
	}

	name := contact.Name
	if name == "" {
		name = "there"
	}
	systemPrompt := s.resolver.BuildSystemPrompt(contact.AgentID, persona.Context{
		"contact_name": name,
		"phone_number": contact.PhoneNumber,
	})
	if callSID != "" {
		systemPrompt += voicePromptSuffix
	}

	reply, err := s.assistant.Complete(ctx, systemPrompt, append(history, llm.ChatMessage{Role: "user", Content: latest}))
	if err != nil {
		return "", fmt.Errorf("generate reply: %w", err)
	}
	return reply, nil
}

// TrackConversion records a closed deal, moves the contact to converted, and
// rolls the agent's running totals forward. It returns the conversion id.
func (s *Service) TrackConversion(ctx context.Context, req ConversionRequest) (string, error) {
	if req.ContactID == "" || req.ConversionType == "" {
		return "", fmt.Errorf("%w: contact id and conversion type are required", ErrValidation)
	}
	if req.Currency == "" {
		req.Currency = "EUR"
	}

	contact, err := s.contacts.Get(ctx, req.ContactID)
	if err != nil {
		return "", err
	}

	agentID := contact.AgentID
	if agentID == "" {
		agentID = s.resolver.DefaultAgentID()
	}

	now := s.now().UTC()
	metadata := map[string]any{}
	for k, v := range req.Metadata {
		metadata[k] = v
	}
	metadata["conversion_source"] = map[string]any{
		"primary_platform":  primaryPlatform(contact),
		"total_touchpoints": len(contact.Messages),
	}
	if !contact.CreatedAt.IsZero() {
		elapsed := now.Sub(contact.CreatedAt)
		metadata["time_to_conversion"] = map[string]any{
			"total_hours":  int(elapsed.Round(time.Hour).Hours()),
			"total_days":   int(elapsed.Round(24*time.Hour).Hours() / 24),
			"created_at":   contact.CreatedAt.Format(time.RFC3339),
			"converted_at": now.Format(time.RFC3339),
		}
	}

	conversionID, err := s.store.Add(ctx, ConversionsCollection, docstore.Doc{
		"contact_id":      req.ContactID,
		"conversion_type": req.ConversionType,
		"value":           req.Value,
		"currency":        req.Currency,
		"converted_at":    now,
		"agent_id":        agentID,
		"contact_info": map[string]any{
			"phone":              req.ContactID,
			"language":           contact.Language,
			"initial_contact":    contact.CreatedAt,
			"total_interactions": len(contact.Messages),
		},
		"metadata": metadata,
	})
	if err != nil {
		return "", fmt.Errorf("record conversion: %w", err)
	}

	if err := s.contacts.Update(ctx, req.ContactID, map[string]any{
		"status":           contacts.StatusConverted,
		"conversion_date":  now,
		"conversion_type":  req.ConversionType,
		"conversion_value": req.Value,
		"conversion_id":    conversionID,
	}); err != nil {
		return "", fmt.Errorf("mark contact converted: %w", err)
	}

	s.events.Log(ctx, events.Event{
		Type:      "conversion",
		Status:    "completed",
		ContactID: req.ContactID,
		Metadata: map[string]any{
			"conversion_id":   conversionID,
			"conversion_type": req.ConversionType,
			"value":           req.Value,
			"currency":        req.Currency,
		},
	})

	s.rollAgentMetrics(ctx, agentID, req.ConversionType, req.Value, now)
	return conversionID, nil
}

// rollAgentMetrics is best effort; a failed rollup never fails the conversion.
func (s *Service) rollAgentMetrics(ctx context.Context, agentID, conversionType string, value float64, now time.Time) {
	if agentID == "" {
		return
	}
	current, err := s.store.Get(ctx, AgentMetricsCollection, agentID)
	if err != nil {
		current = docstore.Doc{}
	}

	totalConversions, _ := current["total_conversions"].(float64)
	totalValue, _ := current["total_conversion_value"].(float64)
	byType := map[string]any{}
	if raw, ok := current["conversions_by_type"].(map[string]any); ok {
		for k, v := range raw {
			byType[k] = v
		}
	}
	typeCount, _ := byType[conversionType].(float64)
	byType[conversionType] = typeCount + 1

	err = s.store.Set(ctx, AgentMetricsCollection, agentID, docstore.Doc{
		"total_conversions":      totalConversions + 1,
		"total_conversion_value": totalValue + value,
		"conversions_by_type":    byType,
		"last_conversion":        now,
		"last_updated":           now,
	}, true)
	if err != nil {
		s.logger.Error("agent metrics rollup failed",
			slog.String("agent_id", agentID),
			slog.Any("error", err),
		)
	}
}

func primaryPlatform(contact contacts.Contact) string {
	if contact.Platform != "" {
		return contact.Platform
	}
	return "whatsapp"
}

func containsAny(s string, needles ...string) bool {
	lower := strings.ToLower(s)
	for _, n := range needles {
		if strings.Contains(lower, n) {
			return true
		}
	}
	return false
}
