package modules

import (
	"fmt"
	"log/slog"

	"go.uber.org/fx"

	"github.com/icupa/outreach/internal/channel"
	"github.com/icupa/outreach/internal/channel/twilio"
	"github.com/icupa/outreach/internal/channel/whatsapp"
	"github.com/icupa/outreach/internal/config"
	"github.com/icupa/outreach/internal/contacts"
	"github.com/icupa/outreach/internal/conversation"
	"github.com/icupa/outreach/internal/dispatch"
	"github.com/icupa/outreach/internal/docstore"
	"github.com/icupa/outreach/internal/escalation"
	"github.com/icupa/outreach/internal/events"
	"github.com/icupa/outreach/internal/followup"
	"github.com/icupa/outreach/internal/llm"
	"github.com/icupa/outreach/internal/persona"
)

var DomainModule = fx.Module(
	"domain",
	fx.Provide(
		contacts.NewService,
		events.NewRecorder,

		provideResolver,
		provideLLMClient,
		provideTwilioAdapter,
		provideChannelRegistry,
		provideDispatchService,
		provideEscalationService,
		provideFollowUpService,
		provideConversationService,
	),
)

// ---------------------------------------------------------------------------
// domain providers
// ---------------------------------------------------------------------------

func provideResolver(log *slog.Logger, cfg config.Config) (*persona.Resolver, error) {
	return persona.Load(log, cfg.Agents.Dir, cfg.Agents.DefaultAgentID)
}

func provideLLMClient(log *slog.Logger, cfg config.Config) (*llm.Client, error) {
	return llm.NewClient(log, cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Model,
		config.Duration(cfg.LLM.Timeout, config.DefaultLLMTimeout))
}

// provideTwilioAdapter is nil when no Twilio account is configured; SMS and
// voice then stay unregistered.
func provideTwilioAdapter(log *slog.Logger, cfg config.Config) (*twilio.Adapter, error) {
	if cfg.Twilio.AccountSID == "" {
		return nil, nil
	}
	return twilio.NewAdapter(log, cfg.Twilio.APIBase, cfg.Twilio.AccountSID, cfg.Twilio.AuthToken,
		cfg.Twilio.FromNumber, cfg.Server.BaseURL+"/webhook/voice",
		config.Duration(cfg.Twilio.Timeout, config.DefaultSendTimeout))
}

func provideChannelRegistry(log *slog.Logger, cfg config.Config, sms *twilio.Adapter) (*channel.Registry, error) {
	registry := channel.NewRegistry()
	if cfg.WhatsApp.APIURL != "" {
		wa, err := whatsapp.NewAdapter(log, cfg.WhatsApp.APIURL, cfg.WhatsApp.Token,
			config.Duration(cfg.WhatsApp.Timeout, config.DefaultSendTimeout))
		if err != nil {
			return nil, err
		}
		if err := registry.Register(wa); err != nil {
			return nil, err
		}
	}
	if sms != nil {
		if err := registry.Register(sms); err != nil {
			return nil, err
		}
	}
	if len(registry.Names()) == 0 {
		return nil, fmt.Errorf("no message channels configured")
	}
	return registry, nil
}

func provideDispatchService(log *slog.Logger, registry *channel.Registry, contactSvc *contacts.Service, recorder *events.Recorder, resolver *persona.Resolver) *dispatch.Service {
	return dispatch.NewService(log, registry, contactSvc, recorder, resolver)
}

func provideEscalationService(log *slog.Logger, store docstore.Store, contactSvc *contacts.Service, recorder *events.Recorder, client *llm.Client, dispatchSvc *dispatch.Service) *escalation.Service {
	return escalation.NewService(log, store, contactSvc, recorder, client, dispatchSvc)
}

func provideFollowUpService(log *slog.Logger, cfg config.Config, store docstore.Store, contactSvc *contacts.Service, recorder *events.Recorder, resolver *persona.Resolver, dispatchSvc *dispatch.Service) *followup.Service {
	return followup.NewService(log, store, contactSvc, recorder, resolver, dispatchSvc, cfg.Scheduler.BatchSize)
}

func provideConversationService(log *slog.Logger, store docstore.Store, contactSvc *contacts.Service, recorder *events.Recorder, dispatchSvc *dispatch.Service, escalationSvc *escalation.Service, client *llm.Client, resolver *persona.Resolver, sms *twilio.Adapter) *conversation.Service {
	var voice channel.VoiceAdapter
	if sms != nil {
		voice = sms
	}
	return conversation.NewService(log, store, contactSvc, recorder, dispatchSvc, escalationSvc, client, resolver, voice)
}
