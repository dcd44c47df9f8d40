package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/icupa/outreach/internal/channel"
	"github.com/icupa/outreach/internal/contacts"
	"github.com/icupa/outreach/internal/conversation"
	"github.com/icupa/outreach/internal/dispatch"
	"github.com/icupa/outreach/internal/docstore"
	"github.com/icupa/outreach/internal/escalation"
	"github.com/icupa/outreach/internal/events"
	"github.com/icupa/outreach/internal/llm"
	"github.com/icupa/outreach/internal/persona"
)

type stubAdapter struct {
	sent []string
}

func (a *stubAdapter) Name() string { return "whatsapp" }

func (a *stubAdapter) SendText(ctx context.Context, to, body string) (string, error) {
	a.sent = append(a.sent, body)
	return "wamid.out1", nil
}

type stubClassifier struct{}

func (stubClassifier) ShouldEscalate(ctx context.Context, conversation, latest string) (bool, string) {
	return false, ""
}

type stubAssistant struct{}

func (stubAssistant) Complete(ctx context.Context, systemPrompt string, messages []llm.ChatMessage) (string, error) {
	return "Happy to help!", nil
}

func (stubAssistant) AnalyzeIntent(ctx context.Context, text string) llm.Intent {
	return llm.Intent{Intent: "question", Confidence: 0.9, Sentiment: "positive"}
}

type webhookFixture struct {
	echo     *echo.Echo
	contacts *contacts.Service
	adapter  *stubAdapter
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()
	store := docstore.NewMemory()
	log := slog.Default()
	contactSvc := contacts.NewService(log, store)
	recorder := events.NewRecorder(log, store)

	resolver, err := persona.Load(log, filepath.Join(t.TempDir(), "absent"), "icupa_rwanda")
	if err != nil {
		t.Fatalf("load resolver: %v", err)
	}

	adapter := &stubAdapter{}
	registry := channel.NewRegistry()
	if err := registry.Register(adapter); err != nil {
		t.Fatalf("register adapter: %v", err)
	}

	dispatchSvc := dispatch.NewService(log, registry, contactSvc, recorder, resolver)
	escalationSvc := escalation.NewService(log, store, contactSvc, recorder, stubClassifier{}, dispatchSvc)
	conversationSvc := conversation.NewService(log, store, contactSvc, recorder, dispatchSvc, escalationSvc, stubAssistant{}, resolver, nil)

	e := echo.New()
	NewWebhookHandler(log, conversationSvc, dispatchSvc, "verify-secret").Register(e)
	return &webhookFixture{echo: e, contacts: contactSvc, adapter: adapter}
}

func TestWebhookVerify(t *testing.T) {
	f := newWebhookFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/webhook/whatsapp?hub.mode=subscribe&hub.verify_token=verify-secret&hub.challenge=12345", nil)
	rec := httptest.NewRecorder()
	f.echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Body.String() != "12345" {
		t.Fatalf("body = %q, want challenge", rec.Body.String())
	}
}

func TestWebhookVerifyRejectsBadToken(t *testing.T) {
	f := newWebhookFixture(t)

	for _, query := range []string{
		"hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345",
		"hub.mode=unsubscribe&hub.verify_token=verify-secret&hub.challenge=12345",
		"hub.mode=subscribe&hub.challenge=12345",
	} {
		req := httptest.NewRequest(http.MethodGet, "/webhook/whatsapp?"+query, nil)
		rec := httptest.NewRecorder()
		f.echo.ServeHTTP(rec, req)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("query %q: status = %d, want 403", query, rec.Code)
		}
	}
}

func TestWebhookInboundMessage(t *testing.T) {
	f := newWebhookFixture(t)

	body := `{
		"object": "whatsapp_business_account",
		"entry": [{"changes": [{
			"field": "messages",
			"value": {
				"contacts": [{"wa_id": "250788000001", "profile": {"name": "Claudine"}}],
				"messages": [{
					"from": "250788000001",
					"id": "wamid.in1",
					"timestamp": "1748779140",
					"type": "text",
					"text": {"body": "hello"}
				}]
			}
		}]}]
	}`
	req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	f.echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	contact, err := f.contacts.Get(context.Background(), "250788000001")
	if err != nil {
		t.Fatalf("get contact: %v", err)
	}
	if contact.Name != "Claudine" {
		t.Fatalf("name = %q", contact.Name)
	}
	if contact.Status != contacts.StatusReplied {
		t.Fatalf("status = %q, want replied", contact.Status)
	}
	if len(f.adapter.sent) != 1 || f.adapter.sent[0] != "Happy to help!" {
		t.Fatalf("sent = %v", f.adapter.sent)
	}
}

func TestWebhookDeliveryStatus(t *testing.T) {
	f := newWebhookFixture(t)
	ctx := context.Background()

	if _, err := f.contacts.Create(ctx, "250788000001", contacts.Seed{PhoneNumber: "250788000001"}); err != nil {
		t.Fatalf("create contact: %v", err)
	}
	if err := f.contacts.AppendMessage(ctx, "250788000001", contacts.Message{
		From:      contacts.FromAgent,
		Text:      "hi",
		MessageID: "wamid.out1",
		Status:    contacts.MessageStatusSentToAPI,
	}); err != nil {
		t.Fatalf("append message: %v", err)
	}

	body := `{
		"object": "whatsapp_business_account",
		"entry": [{"changes": [{
			"field": "messages",
			"value": {"statuses": [{
				"id": "wamid.out1",
				"status": "delivered",
				"timestamp": "1748779200",
				"recipient_id": "250788000001"
			}]}
		}]}]
	}`
	req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	f.echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	contact, err := f.contacts.Get(ctx, "250788000001")
	if err != nil {
		t.Fatalf("get contact: %v", err)
	}
	if contact.Messages[0].Status != "delivered" {
		t.Fatalf("message status = %q, want delivered", contact.Messages[0].Status)
	}
}

func TestWebhookMalformedBodyStillAcknowledged(t *testing.T) {
	f := newWebhookFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", strings.NewReader("not json"))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	f.echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ignored") {
		t.Fatalf("body = %q", rec.Body.String())
	}
}

func TestWebhookIgnoresNonMessageFields(t *testing.T) {
	f := newWebhookFixture(t)

	body := `{"object": "whatsapp_business_account", "entry": [{"changes": [{"field": "account_update", "value": {}}]}]}`
	req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	f.echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(f.adapter.sent) != 0 {
		t.Fatalf("sent = %v, want none", f.adapter.sent)
	}
}
