// Package store is a small persisted key-value store. Values are json
// documents; every change is flushed before the call returns.
package store

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"go.uber.org/zap"
)

type Store struct {
	lock    sync.Mutex
	values  map[string]json.RawMessage
	backend Backend

	log *zap.Logger
}

// Open opens the store persisted at path.
func Open(path string, log *zap.Logger) *Store {
	return New(NewFileBackend(path), log)
}

// New loads the store from backend. State that cannot be read or
// decoded is replaced by an empty store.
func New(backend Backend, log *zap.Logger) *Store {
	s := &Store{
		values:  make(map[string]json.RawMessage),
		backend: backend,
		log:     log.Named("store"),
	}

	data, err := backend.Load()
	if err != nil {
		s.log.Warn("failed to read state, starting empty", zap.Error(err))
		return s
	}

	if len(data) == 0 {
		return s
	}

	var values map[string]json.RawMessage
	if err := json.Unmarshal(data, &values); err != nil {
		s.log.Warn("corrupt state, starting empty", zap.Error(err))
		return s
	}

	if values != nil {
		s.values = values
	}

	return s
}

// Get returns the value stored under key, or def if there is none.
func (s *Store) Get(key string, def json.RawMessage) json.RawMessage {
	s.lock.Lock()
	defer s.lock.Unlock()

	if value, ok := s.values[key]; ok {
		return value
	}

	return def
}

// Decode decodes the value stored under key into v. Reports whether the
// key exists.
func (s *Store) Decode(key string, v any) (bool, error) {
	s.lock.Lock()
	value, ok := s.values[key]
	s.lock.Unlock()

	if !ok {
		return false, nil
	}

	if err := json.Unmarshal(value, v); err != nil {
		return true, fmt.Errorf("decode %q: %w", key, err)
	}

	return true, nil
}

// Update stores value under key. If the stored value is equal to value,
// nothing is written.
func (s *Store) Update(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	if current, ok := s.values[key]; ok && equal(current, raw) {
		return nil
	}

	next := s.copyValues()
	next[key] = raw

	return s.commit(next)
}

// Remove deletes key. Removing a missing key writes nothing.
func (s *Store) Remove(key string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.values[key]; !ok {
		return nil
	}

	next := s.copyValues()
	delete(next, key)

	return s.commit(next)
}

// Clear deletes all keys.
func (s *Store) Clear() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.commit(make(map[string]json.RawMessage))
}

// Keys returns all keys in sorted order.
func (s *Store) Keys() []string {
	s.lock.Lock()
	defer s.lock.Unlock()

	keys := make([]string, 0, len(s.values))
	for key := range s.values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	return keys
}

// All returns a copy of all entries.
func (s *Store) All() map[string]json.RawMessage {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.copyValues()
}

// copyValues must be called with the lock held.
func (s *Store) copyValues() map[string]json.RawMessage {
	values := make(map[string]json.RawMessage, len(s.values))
	for key, value := range s.values {
		values[key] = value
	}
	return values
}

// commit persists next and replaces the in-memory state with it. If
// persisting fails, the in-memory state is left untouched. Must be called
// with the lock held.
func (s *Store) commit(next map[string]json.RawMessage) error {
	data, err := json.MarshalIndent(next, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	if err := s.backend.Save(data); err != nil {
		s.log.Error("failed to persist state", zap.Error(err))
		return err
	}

	s.values = next

	return nil
}

// equal compares two json documents structurally.
func equal(a, b json.RawMessage) bool {
	var va, vb any

	if err := json.Unmarshal(a, &va); err != nil {
		return false
	}

	if err := json.Unmarshal(b, &vb); err != nil {
		return false
	}

	return reflect.DeepEqual(va, vb)
}
