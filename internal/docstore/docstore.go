// Package docstore defines the document store contract the engine persists
// through, with a PostgreSQL driver for production and an in-memory driver
// for tests and local development.
package docstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a referenced document does not exist.
var ErrNotFound = errors.New("document not found")

// ErrExists is returned by Create when the document id is already taken.
var ErrExists = errors.New("document already exists")

// Doc is one stored document.
type Doc = map[string]any

// Filter restricts a query on a top-level document field.
// Supported ops: "==" and "<=".
type Filter struct {
	Field string
	Op    string
	Value any
}

// Entry is a queried document together with its id.
type Entry struct {
	ID  string
	Doc Doc
}

// Store is the document store used for all durable engine state.
//
// ArrayAppend must be atomic with respect to concurrent appends on the same
// document: two racing appends both land, neither is lost. ArrayUpdate
// merges partial into every element of the array field whose matchField
// equals matchValue, atomically with respect to concurrent appends, and
// reports whether any element matched. Create is an atomic create-if-absent:
// of two racing creators exactly one succeeds and the other gets ErrExists,
// and an existing document is never overwritten. Update merges the partial
// document into the stored one field by field (last writer wins per field).
// Query returns documents in store-native order.
type Store interface {
	Get(ctx context.Context, collection, id string) (Doc, error)
	Set(ctx context.Context, collection, id string, doc Doc, merge bool) error
	Create(ctx context.Context, collection, id string, doc Doc) error
	Update(ctx context.Context, collection, id string, partial Doc) error
	ArrayAppend(ctx context.Context, collection, id, field string, value any) error
	ArrayUpdate(ctx context.Context, collection, id, field, matchField string, matchValue any, partial Doc) (bool, error)
	Add(ctx context.Context, collection string, doc Doc) (string, error)
	Query(ctx context.Context, collection string, filters []Filter, limit int) ([]Entry, error)
}
