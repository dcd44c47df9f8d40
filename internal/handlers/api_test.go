package handlers

import (
	"context"
	"encoding/json"
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
	"github.com/icupa/outreach/internal/followup"
	"github.com/icupa/outreach/internal/persona"
)

type apiFixture struct {
	echo     *echo.Echo
	store    *docstore.Memory
	contacts *contacts.Service
	adapter  *stubAdapter
}

func newAPIFixture(t *testing.T) *apiFixture {
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
	followupSvc := followup.NewService(log, store, contactSvc, recorder, resolver, dispatchSvc, 50)
	conversationSvc := conversation.NewService(log, store, contactSvc, recorder, dispatchSvc, escalationSvc, stubAssistant{}, resolver, nil)

	e := echo.New()
	NewAPIHandler(conversationSvc, dispatchSvc, escalationSvc, followupSvc).Register(e)
	return &apiFixture{echo: e, store: store, contacts: contactSvc, adapter: adapter}
}

func (f *apiFixture) post(t *testing.T, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	f.echo.ServeHTTP(rec, req)

	var parsed map[string]any
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &parsed)
	}
	return rec, parsed
}

func TestSendMessageEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	rec, body := f.post(t, "/api/send-message", `{"to": "250788000001", "message": "hello from ICUPA"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if body["success"] != true || body["message_id"] != "wamid.out1" {
		t.Fatalf("body = %v", body)
	}

	contact, err := f.contacts.Get(context.Background(), "250788000001")
	if err != nil {
		t.Fatalf("get contact: %v", err)
	}
	if len(contact.Messages) != 1 || contact.Messages[0].Text != "hello from ICUPA" {
		t.Fatalf("messages = %+v", contact.Messages)
	}
}

func TestSendMessageValidation(t *testing.T) {
	f := newAPIFixture(t)

	rec, _ := f.post(t, "/api/send-message", `{"to": "", "message": "hi"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestEscalateEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()

	if _, err := f.contacts.Create(ctx, "250788000001", contacts.Seed{
		PhoneNumber: "250788000001",
		Platform:    "whatsapp",
	}); err != nil {
		t.Fatalf("create contact: %v", err)
	}

	rec, body := f.post(t, "/api/escalate", `{"contact_id": "250788000001", "reason": "pricing negotiation", "priority": "high"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if body["success"] != true || body["escalation_id"] == "" {
		t.Fatalf("body = %v", body)
	}

	contact, err := f.contacts.Get(ctx, "250788000001")
	if err != nil {
		t.Fatalf("get contact: %v", err)
	}
	if contact.Status != contacts.StatusEscalated || !contact.Escalation {
		t.Fatalf("contact = %+v", contact)
	}
}

func TestEscalateRequiresReason(t *testing.T) {
	f := newAPIFixture(t)

	rec, _ := f.post(t, "/api/escalate", `{"contact_id": "250788000001"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestFollowUpEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()

	if _, err := f.contacts.Create(ctx, "250788000001", contacts.Seed{PhoneNumber: "250788000001"}); err != nil {
		t.Fatalf("create contact: %v", err)
	}

	rec, body := f.post(t, "/api/follow-up", `{"contact_id": "250788000001", "delay_hours": 48}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if body["success"] != true || body["followup_id"] == "" || body["scheduled_time"] == "" {
		t.Fatalf("body = %v", body)
	}

	contact, err := f.contacts.Get(ctx, "250788000001")
	if err != nil {
		t.Fatalf("get contact: %v", err)
	}
	if contact.FollowupCount != 1 || contact.NextFollowup == nil {
		t.Fatalf("contact = %+v", contact)
	}
}

func TestFollowUpUnknownContact(t *testing.T) {
	f := newAPIFixture(t)

	rec, _ := f.post(t, "/api/follow-up", `{"contact_id": "nobody"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestTrackConversionEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()

	if _, err := f.contacts.Create(ctx, "250788000001", contacts.Seed{
		PhoneNumber: "250788000001",
		AgentID:     "icupa_rwanda",
	}); err != nil {
		t.Fatalf("create contact: %v", err)
	}

	rec, body := f.post(t, "/api/track-conversion", `{"contact_id": "250788000001", "conversion_type": "subscription", "value": 99.5}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if body["success"] != true || body["conversion_id"] == "" {
		t.Fatalf("body = %v", body)
	}

	contact, err := f.contacts.Get(ctx, "250788000001")
	if err != nil {
		t.Fatalf("get contact: %v", err)
	}
	if contact.Status != contacts.StatusConverted {
		t.Fatalf("status = %q, want converted", contact.Status)
	}
}

func TestTrackConversionValidation(t *testing.T) {
	f := newAPIFixture(t)

	rec, _ := f.post(t, "/api/track-conversion", `{"contact_id": "250788000001"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestInitiateCallWithoutVoiceChannelFails(t *testing.T) {
	f := newAPIFixture(t)

	rec, _ := f.post(t, "/api/initiate-call", `{"to": "250788000001"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}
