// Package events records append-only audit events. The engine only ever
// writes this collection; nothing in the core reads it back.
package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/icupa/outreach/internal/docstore"
)

// Collection is the document collection events are appended to.
const Collection = "events"

// Event is one audit record.
type Event struct {
	Type      string         `json:"type"`
	Status    string         `json:"status"`
	ContactID string         `json:"contact_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Duration  *float64       `json:"duration,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Recorder appends events to the store.
type Recorder struct {
	store  docstore.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewRecorder creates an event recorder.
func NewRecorder(log *slog.Logger, store docstore.Store) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{
		store:  store,
		logger: log.With(slog.String("service", "events")),
		now:    time.Now,
	}
}

// Log appends ev to the events collection. The sink is observability only,
// so a write failure is logged and swallowed rather than failing the caller.
func (r *Recorder) Log(ctx context.Context, ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = r.now().UTC()
	}
	doc := docstore.Doc{
		"type":       ev.Type,
		"status":     ev.Status,
		"contact_id": ev.ContactID,
		"timestamp":  ev.Timestamp,
	}
	if ev.Metadata != nil {
		doc["metadata"] = ev.Metadata
	} else {
		doc["metadata"] = map[string]any{}
	}
	if ev.Duration != nil {
		doc["duration"] = *ev.Duration
	}
	if _, err := r.store.Add(ctx, Collection, doc); err != nil {
		r.logger.Warn("event write failed",
			slog.String("type", ev.Type),
			slog.String("status", ev.Status),
			slog.Any("error", err),
		)
	}
}
