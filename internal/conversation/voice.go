package conversation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/icupa/outreach/internal/channel"
	"github.com/icupa/outreach/internal/contacts"
	"github.com/icupa/outreach/internal/events"
	"github.com/icupa/outreach/internal/persona"
)

// ErrNoVoiceChannel is returned when a voice operation runs without a
// configured voice adapter.
var ErrNoVoiceChannel = fmt.Errorf("no voice channel configured")

// InitiateCall places an outbound call to the number and marks the contact
// contacted. It returns the provider call sid.
func (s *Service) InitiateCall(ctx context.Context, to, agentID string) (string, error) {
	if to == "" {
		return "", fmt.Errorf("%w: recipient is required", ErrValidation)
	}
	if s.voice == nil {
		return "", ErrNoVoiceChannel
	}
	if agentID == "" {
		agentID = s.resolver.AgentForNumber(to)
	}

	if _, err := s.contacts.Create(ctx, to, contacts.Seed{
		PhoneNumber: to,
		Platform:    "voice",
		AgentID:     agentID,
	}); err != nil {
		return "", fmt.Errorf("resolve contact: %w", err)
	}

	callSID, err := s.voice.PlaceCall(ctx, to)
	if err != nil {
		s.events.Log(ctx, events.Event{
			Type:      "voice_call",
			Status:    "failed",
			ContactID: to,
			Metadata:  map[string]any{"error": err.Error()},
		})
		return "", fmt.Errorf("place call: %w", err)
	}

	s.events.Log(ctx, events.Event{
		Type:      "voice_call",
		Status:    "initiated",
		ContactID: to,
		Metadata: map[string]any{
			"call_sid": callSID,
			"agent_id": agentID,
		},
	})

	if err := s.contacts.Update(ctx, to, map[string]any{
		"status":        contacts.StatusContacted,
		"last_call_sid": callSID,
	}); err != nil {
		return "", err
	}
	return callSID, nil
}

// HandleVoice turns one Twilio voice callback into the TwiML the caller
// hears next. It never returns an error to the provider: failures degrade to
// an apology followed by a hangup.
func (s *Service) HandleVoice(ctx context.Context, ev VoiceEvent) string {
	if s.voice == nil {
		return ""
	}

	s.events.Log(ctx, events.Event{
		Type:      "voice_call",
		Status:    ev.CallStatus,
		ContactID: ev.From,
		Metadata: map[string]any{
			"call_sid":      ev.CallSID,
			"to":            ev.To,
			"speech_result": ev.SpeechResult,
			"digits":        ev.Digits,
		},
	})

	switch {
	case ev.CallStatus == "in-progress" && ev.SpeechResult == "" && ev.Digits == "":
		return s.voiceGreeting(ctx, ev)
	case ev.SpeechResult != "":
		return s.voiceTurn(ctx, ev)
	case ev.CallStatus == "completed":
		s.finishCall(ctx, ev)
		return s.voice.VoiceResponse("", channel.VoiceHangup)
	default:
		return s.voice.VoiceResponse("Thank you for your time. Goodbye!", channel.VoiceHangup)
	}
}

func (s *Service) voiceGreeting(ctx context.Context, ev VoiceEvent) string {
	contact, err := s.contacts.Create(ctx, ev.From, contacts.Seed{
		PhoneNumber: ev.From,
		Platform:    "voice",
		AgentID:     s.resolver.AgentForNumber(ev.From),
	})
	if err != nil {
		s.logger.Error("voice greeting contact", slog.Any("error", err))
		return s.voice.VoiceResponse("Hello! How can I help you today?", channel.VoiceGather)
	}

	name := contact.Name
	if name == "" {
		name = "there"
	}
	greeting := s.resolver.Greeting(contact.AgentID, "new_contact", persona.Context{"contact_name": name})
	if greeting == "" {
		greeting = "Hello! This is your AI assistant. How can I help you today?"
	}

	if err := s.contacts.AppendMessage(ctx, ev.From, contacts.Message{
		From:    contacts.FromAgent,
		Text:    greeting,
		CallSID: ev.CallSID,
	}); err != nil {
		s.logger.Error("record voice greeting", slog.Any("error", err))
	}
	return s.voice.VoiceResponse(greeting, channel.VoiceGather)
}

func (s *Service) voiceTurn(ctx context.Context, ev VoiceEvent) string {
	if err := s.contacts.AppendMessage(ctx, ev.From, contacts.Message{
		From:    contacts.FromUser,
		Text:    ev.SpeechResult,
		CallSID: ev.CallSID,
	}); err != nil {
		s.logger.Error("record caller speech", slog.Any("error", err))
		return s.voice.VoiceResponse("I apologize, could you please repeat that?", channel.VoiceGather)
	}

	contact, err := s.contacts.Get(ctx, ev.From)
	if err != nil {
		s.logger.Error("load contact for voice turn", slog.Any("error", err))
		return s.voice.VoiceResponse("I apologize, could you please repeat that?", channel.VoiceGather)
	}

	decision := s.escalator.Check(ctx, contact, ev.SpeechResult)
	if decision.Escalate {
		if err := s.contacts.Update(ctx, ev.From, map[string]any{
			"escalation":        true,
			"escalation_reason": decision.Reason,
		}); err != nil {
			s.logger.Error("mark voice escalation", slog.Any("error", err))
		}
		return s.voice.VoiceResponse(
			"I understand you need specialized assistance. Let me transfer you to one of our human representatives. Please hold on.",
			channel.VoiceHangup,
		)
	}

	reply, err := s.reply(ctx, contact, ev.SpeechResult, ev.CallSID)
	if err != nil {
		s.logger.Error("voice reply failed", slog.Any("error", err))
		return s.voice.VoiceResponse("I apologize, could you please repeat that?", channel.VoiceGather)
	}

	if err := s.contacts.AppendMessage(ctx, ev.From, contacts.Message{
		From:    contacts.FromAgent,
		Text:    reply,
		CallSID: ev.CallSID,
	}); err != nil {
		s.logger.Error("record voice reply", slog.Any("error", err))
	}

	next := channel.VoiceGather
	if containsAny(reply, "goodbye", "thank you for calling") {
		next = channel.VoiceHangup
	}
	return s.voice.VoiceResponse(reply, next)
}

func (s *Service) finishCall(ctx context.Context, ev VoiceEvent) {
	err := s.contacts.Update(ctx, ev.From, map[string]any{
		"status":              contacts.StatusReplied,
		"last_call_completed": s.now().UTC(),
	})
	if err != nil {
		s.logger.Error("record call completion", slog.Any("error", err))
	}
}
