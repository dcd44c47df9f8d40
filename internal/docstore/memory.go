package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Memory is an in-process document store with the same contract as the
// Postgres driver. Documents are deep-copied on the way in and out, and all
// operations run under one mutex, which gives the atomicity the contract
// requires. Query iterates in insertion order.
type Memory struct {
	mu    sync.Mutex
	docs  map[string]map[string]Doc
	order map[string][]string
}

// NewMemory creates an empty in-memory document store.
func NewMemory() *Memory {
	return &Memory{
		docs:  map[string]map[string]Doc{},
		order: map[string][]string{},
	}
}

func (m *Memory) Get(ctx context.Context, collection, id string) (Doc, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	return deepCopy(doc), nil
}

func (m *Memory) Set(ctx context.Context, collection, id string, doc Doc, merge bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.docs[collection][id]
	if !ok {
		m.put(collection, id, deepCopy(doc))
		return nil
	}
	if merge {
		for k, v := range deepCopy(doc) {
			existing[k] = v
		}
		return nil
	}
	m.docs[collection][id] = deepCopy(doc)
	return nil
}

func (m *Memory) Create(ctx context.Context, collection, id string, doc Doc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[collection][id]; ok {
		return ErrExists
	}
	m.put(collection, id, deepCopy(doc))
	return nil
}

func (m *Memory) Update(ctx context.Context, collection, id string, partial Doc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.docs[collection][id]
	if !ok {
		return ErrNotFound
	}
	for k, v := range deepCopy(partial) {
		existing[k] = v
	}
	return nil
}

func (m *Memory) ArrayAppend(ctx context.Context, collection, id, field string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.docs[collection][id]
	if !ok {
		return ErrNotFound
	}
	arr, _ := existing[field].([]any)
	existing[field] = append(arr, deepCopyValue(value))
	return nil
}

func (m *Memory) ArrayUpdate(ctx context.Context, collection, id, field, matchField string, matchValue any, partial Doc) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.docs[collection][id]
	if !ok {
		return false, ErrNotFound
	}
	arr, _ := existing[field].([]any)
	matched := false
	want := fmt.Sprintf("%v", matchValue)
	for _, raw := range arr {
		elem, ok := raw.(map[string]any)
		if !ok || fmt.Sprintf("%v", elem[matchField]) != want {
			continue
		}
		for k, v := range deepCopy(partial) {
			elem[k] = v
		}
		matched = true
	}
	return matched, nil
}

func (m *Memory) Add(ctx context.Context, collection string, doc Doc) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.NewString()
	m.put(collection, id, deepCopy(doc))
	return id, nil
}

func (m *Memory) Query(ctx context.Context, collection string, filters []Filter, limit int) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var entries []Entry
	for _, id := range m.order[collection] {
		doc, ok := m.docs[collection][id]
		if !ok {
			continue
		}
		match := true
		for _, f := range filters {
			ok, err := matches(doc, f)
			if err != nil {
				return nil, err
			}
			if !ok {
				match = false
				break
			}
		}
		if !match {
			continue
		}
		entries = append(entries, Entry{ID: id, Doc: deepCopy(doc)})
		if limit > 0 && len(entries) >= limit {
			break
		}
	}
	return entries, nil
}

func (m *Memory) put(collection, id string, doc Doc) {
	if m.docs[collection] == nil {
		m.docs[collection] = map[string]Doc{}
	}
	if _, ok := m.docs[collection][id]; !ok {
		m.order[collection] = append(m.order[collection], id)
	}
	m.docs[collection][id] = doc
}

// matches compares on the field's text form, mirroring the Postgres driver's
// doc ->> field comparisons (RFC3339 timestamps order lexicographically).
func matches(doc Doc, f Filter) (bool, error) {
	have := fmt.Sprintf("%v", doc[f.Field])
	want := fmt.Sprintf("%v", f.Value)
	switch f.Op {
	case "==":
		return have == want, nil
	case "<=":
		return have <= want, nil
	default:
		return false, fmt.Errorf("unsupported filter op: %s", f.Op)
	}
}

func deepCopy(doc Doc) Doc {
	raw, err := json.Marshal(doc)
	if err != nil {
		return Doc{}
	}
	var out Doc
	if err := json.Unmarshal(raw, &out); err != nil {
		return Doc{}
	}
	return out
}

func deepCopyValue(value any) any {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}
