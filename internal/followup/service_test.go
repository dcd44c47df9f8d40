package followup

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/icupa/outreach/internal/contacts"
	"github.com/icupa/outreach/internal/docstore"
	"github.com/icupa/outreach/internal/events"
	"github.com/icupa/outreach/internal/persona"
)

type fakeSender struct {
	sent    []sentMessage
	sendErr error
}

type sentMessage struct {
	to, text, channelName string
}

func (f *fakeSender) Send(ctx context.Context, to, text, channelName string) (string, error) {
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.sent = append(f.sent, sentMessage{to, text, channelName})
	return "wamid.followup", nil
}

type fixture struct {
	svc      *Service
	contacts *contacts.Service
	store    *docstore.Memory
	sender   *fakeSender
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := docstore.NewMemory()
	contactSvc := contacts.NewService(slog.Default(), store)
	recorder := events.NewRecorder(slog.Default(), store)
	resolver, err := persona.Load(slog.Default(), filepath.Join(t.TempDir(), "absent"), "icupa_rwanda")
	if err != nil {
		t.Fatalf("load resolver: %v", err)
	}
	sender := &fakeSender{}
	svc := NewService(slog.Default(), store, contactSvc, recorder, resolver, sender, 50)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	return &fixture{svc: svc, contacts: contactSvc, store: store, sender: sender, now: now}
}

func (f *fixture) seedContact(t *testing.T, id string) {
	t.Helper()
	if _, err := f.contacts.Create(context.Background(), id, contacts.Seed{
		PhoneNumber: id,
		Platform:    "whatsapp",
		AgentID:     "icupa_rwanda",
		Name:        "Claudine",
	}); err != nil {
		t.Fatalf("seed contact: %v", err)
	}
}

func TestSchedule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedContact(t, "250788000001")

	followupID, scheduledAt, err := f.svc.Schedule(ctx, "250788000001", 48, "consultation_followup", map[string]string{"venue_name": "Kigali Heights Bar"})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if want := f.now.Add(48 * time.Hour); !scheduledAt.Equal(want) {
		t.Fatalf("scheduled_at = %v, want %v", scheduledAt, want)
	}

	record, err := f.store.Get(ctx, Collection, followupID)
	if err != nil {
		t.Fatalf("get follow-up: %v", err)
	}
	if record["status"] != StatusScheduled || record["message_template"] != "consultation_followup" {
		t.Fatalf("record = %+v", record)
	}

	contact, err := f.contacts.Get(ctx, "250788000001")
	if err != nil {
		t.Fatalf("get contact: %v", err)
	}
	if contact.FollowupCount != 1 {
		t.Fatalf("followup_count = %d, want 1", contact.FollowupCount)
	}
	if contact.NextFollowup == nil || !contact.NextFollowup.Equal(scheduledAt) {
		t.Fatalf("next_followup = %v", contact.NextFollowup)
	}

	// scheduling again increments the counter
	if _, _, err := f.svc.Schedule(ctx, "250788000001", 24, "", nil); err != nil {
		t.Fatalf("second schedule: %v", err)
	}
	contact, _ = f.contacts.Get(ctx, "250788000001")
	if contact.FollowupCount != 2 {
		t.Fatalf("followup_count = %d, want 2", contact.FollowupCount)
	}
}

func TestScheduleUnknownContact(t *testing.T) {
	f := newFixture(t)
	if _, _, err := f.svc.Schedule(context.Background(), "nobody", 24, "", nil); !errors.Is(err, contacts.ErrNotFound) {
		t.Fatalf("err = %v, want contacts.ErrNotFound", err)
	}
}

func TestScheduleMissingContactID(t *testing.T) {
	f := newFixture(t)
	if _, _, err := f.svc.Schedule(context.Background(), "", 24, "", nil); !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestSweepSendsDueFollowUps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedContact(t, "250788000001")

	followupID, _, err := f.svc.Schedule(ctx, "250788000001", 24, "default_followup", nil)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}

	// not due yet
	if err := f.svc.Sweep(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(f.sender.sent) != 0 {
		t.Fatalf("sent before due: %d", len(f.sender.sent))
	}

	// advance past the scheduled time
	f.svc.now = func() time.Time { return f.now.Add(25 * time.Hour) }
	if err := f.svc.Sweep(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(f.sender.sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(f.sender.sent))
	}
	if f.sender.sent[0].channelName != "whatsapp" {
		t.Fatalf("channel = %q", f.sender.sent[0].channelName)
	}
	if !strings.Contains(f.sender.sent[0].text, "Claudine") {
		t.Fatalf("message not personalized: %q", f.sender.sent[0].text)
	}

	record, err := f.store.Get(ctx, Collection, followupID)
	if err != nil {
		t.Fatalf("get follow-up: %v", err)
	}
	if record["status"] != StatusSent {
		t.Fatalf("status = %v, want sent", record["status"])
	}
	if record["executed_at"] == nil {
		t.Fatal("executed_at not stamped")
	}

	// a second sweep must not resend
	if err := f.svc.Sweep(ctx); err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if len(f.sender.sent) != 1 {
		t.Fatalf("resent: %d", len(f.sender.sent))
	}
}

func TestSweepSkipsConvertedAndEscalated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedContact(t, "converted-contact")
	f.seedContact(t, "escalated-contact")

	convertedID, _, err := f.svc.Schedule(ctx, "converted-contact", 1, "", nil)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	escalatedID, _, err := f.svc.Schedule(ctx, "escalated-contact", 1, "", nil)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}

	if err := f.contacts.Update(ctx, "converted-contact", map[string]any{"status": contacts.StatusConverted}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := f.contacts.Update(ctx, "escalated-contact", map[string]any{"escalation": true}); err != nil {
		t.Fatalf("update: %v", err)
	}

	f.svc.now = func() time.Time { return f.now.Add(2 * time.Hour) }
	if err := f.svc.Sweep(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	if len(f.sender.sent) != 0 {
		t.Fatalf("terminal contacts still received messages: %d", len(f.sender.sent))
	}
	for _, id := range []string{convertedID, escalatedID} {
		record, err := f.store.Get(ctx, Collection, id)
		if err != nil {
			t.Fatalf("get follow-up: %v", err)
		}
		if record["status"] != StatusSkipped {
			t.Fatalf("status = %v, want skipped", record["status"])
		}
	}
}

func TestSweepMarksFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedContact(t, "250788000001")
	f.seedContact(t, "250788000002")

	goneID, _, err := f.svc.Schedule(ctx, "250788000002", 1, "", nil)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	okID, _, err := f.svc.Schedule(ctx, "250788000001", 1, "", nil)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}

	// delete the second contact out from under its follow-up
	if err := f.store.Set(ctx, Collection, goneID, docstore.Doc{
		"contact_id":       "no-longer-there",
		"scheduled_time":   f.now.Add(time.Hour),
		"message_template": "default_followup",
		"status":           StatusScheduled,
		"agent_id":         "icupa_rwanda",
	}, false); err != nil {
		t.Fatalf("rewrite follow-up: %v", err)
	}

	f.svc.now = func() time.Time { return f.now.Add(2 * time.Hour) }
	if err := f.svc.Sweep(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	// one failure does not stop the rest of the batch
	record, err := f.store.Get(ctx, Collection, goneID)
	if err != nil {
		t.Fatalf("get follow-up: %v", err)
	}
	if record["status"] != StatusFailed {
		t.Fatalf("status = %v, want failed", record["status"])
	}
	record, err = f.store.Get(ctx, Collection, okID)
	if err != nil {
		t.Fatalf("get follow-up: %v", err)
	}
	if record["status"] != StatusSent {
		t.Fatalf("status = %v, want sent", record["status"])
	}
	if len(f.sender.sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(f.sender.sent))
	}
}

func TestSweepSendErrorMarksFailed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedContact(t, "250788000001")
	f.sender.sendErr = errors.New("channel down")

	followupID, _, err := f.svc.Schedule(ctx, "250788000001", 1, "", nil)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}

	f.svc.now = func() time.Time { return f.now.Add(2 * time.Hour) }
	if err := f.svc.Sweep(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	record, err := f.store.Get(ctx, Collection, followupID)
	if err != nil {
		t.Fatalf("get follow-up: %v", err)
	}
	if record["status"] != StatusFailed {
		t.Fatalf("status = %v, want failed", record["status"])
	}
}

func TestSweepHonorsBatchSize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.svc.batchSize = 2

	for _, id := range []string{"c1", "c2", "c3"} {
		f.seedContact(t, id)
		if _, _, err := f.svc.Schedule(ctx, id, 1, "", nil); err != nil {
			t.Fatalf("schedule: %v", err)
		}
	}

	f.svc.now = func() time.Time { return f.now.Add(2 * time.Hour) }
	if err := f.svc.Sweep(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(f.sender.sent) != 2 {
		t.Fatalf("first sweep sent = %d, want 2", len(f.sender.sent))
	}

	if err := f.svc.Sweep(ctx); err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if len(f.sender.sent) != 3 {
		t.Fatalf("total sent = %d, want 3", len(f.sender.sent))
	}
}
