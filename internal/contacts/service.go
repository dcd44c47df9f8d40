// Package contacts is the store adapter for the Contact aggregate: lifecycle
// fields, the embedded append-only message history, and delivery status
// reconciliation.
package contacts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/icupa/outreach/internal/docstore"
)

// Collection is the document collection contacts live in.
const Collection = "contacts"

// ErrNotFound is returned when the referenced contact does not exist.
var ErrNotFound = errors.New("contact not found")

// Service provides CRUD and atomic append operations over contacts. Every
// mutating call stamps last_interaction; concurrent writers on the same
// contact serialize at the store layer, not with in-process locks.
type Service struct {
	store  docstore.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a contact store adapter.
func NewService(log *slog.Logger, store docstore.Store) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:  store,
		logger: log.With(slog.String("service", "contacts")),
		now:    time.Now,
	}
}

// Get returns the contact with the given identity key.
func (s *Service) Get(ctx context.Context, id string) (Contact, error) {
	doc, err := s.store.Get(ctx, Collection, id)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return Contact{}, ErrNotFound
		}
		return Contact{}, fmt.Errorf("get contact: %w", err)
	}
	return fromDoc(id, doc)
}

// Create creates the contact if it does not exist yet. Create is an
// idempotent upsert keyed by id: when two callers race, the loser adopts the
// winner's document instead of failing.
func (s *Service) Create(ctx context.Context, id string, seed Seed) (Contact, error) {
	if existing, err := s.Get(ctx, id); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrNotFound) {
		return Contact{}, err
	}

	now := s.now().UTC()
	contact := Contact{
		ID:              id,
		PhoneNumber:     seed.PhoneNumber,
		Platform:        seed.Platform,
		AgentID:         seed.AgentID,
		Status:          StatusNew,
		Language:        seed.Language,
		Name:            seed.Name,
		Messages:        []Message{},
		CreatedAt:       now,
		LastInteraction: now,
	}
	if contact.PhoneNumber == "" {
		contact.PhoneNumber = id
	}
	if contact.Language == "" {
		contact.Language = "english"
	}

	doc, err := toDoc(contact)
	if err != nil {
		return Contact{}, err
	}
	err = s.store.Create(ctx, Collection, id, doc)
	if errors.Is(err, docstore.ErrExists) {
		// Lost the race: adopt the winner's document.
		return s.Get(ctx, id)
	}
	if err != nil {
		return Contact{}, fmt.Errorf("create contact: %w", err)
	}
	return contact, nil
}

// Update merges the partial fields into the contact and stamps last_interaction.
func (s *Service) Update(ctx context.Context, id string, fields map[string]any) error {
	partial := docstore.Doc{}
	for k, v := range fields {
		partial[k] = v
	}
	partial["last_interaction"] = s.now().UTC()
	if err := s.store.Update(ctx, Collection, id, partial); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("update contact: %w", err)
	}
	return nil
}

// AppendMessage atomically appends one message to the contact's history. Two
// inbound events racing on the same contact both land.
func (s *Service) AppendMessage(ctx context.Context, id string, msg Message) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now().UTC()
	}
	if err := s.store.ArrayAppend(ctx, Collection, id, "messages", msg); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("append message: %w", err)
	}
	if err := s.store.Update(ctx, Collection, id, docstore.Doc{"last_interaction": s.now().UTC()}); err != nil {
		return fmt.Errorf("stamp interaction: %w", err)
	}
	return nil
}

// UpdateMessageStatus reconciles an asynchronously delivered status update
// onto the message with the given provider message id. The operation is
// idempotent: replaying the same transition only refreshes the timestamp.
func (s *Service) UpdateMessageStatus(ctx context.Context, contactID, messageID, status string, observedAt time.Time) error {
	matched, err := s.store.ArrayUpdate(ctx, Collection, contactID, "messages", "message_id", messageID, docstore.Doc{
		"status":            status,
		"status_updated_at": observedAt.UTC(),
	})
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("reconcile message status: %w", err)
	}
	if !matched {
		s.logger.Warn("status for unknown message",
			slog.String("contact_id", contactID),
			slog.String("message_id", messageID),
			slog.String("status", status),
		)
		return nil
	}
	return s.Update(ctx, contactID, map[string]any{})
}

func toDoc(contact Contact) (docstore.Doc, error) {
	raw, err := json.Marshal(contact)
	if err != nil {
		return nil, fmt.Errorf("encode contact: %w", err)
	}
	var doc docstore.Doc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("encode contact: %w", err)
	}
	return doc, nil
}

func fromDoc(id string, doc docstore.Doc) (Contact, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return Contact{}, fmt.Errorf("decode contact: %w", err)
	}
	var contact Contact
	if err := json.Unmarshal(raw, &contact); err != nil {
		return Contact{}, fmt.Errorf("decode contact: %w", err)
	}
	contact.ID = id
	return contact, nil
}
