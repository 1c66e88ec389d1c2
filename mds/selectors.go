package mds

import (
	"sync"

	"github.com/StevoGTA/Mini-Document-Storage-sub000/value"
)

// DocumentView is the read-only projection of a document handed to a
// selector. Selectors must not call back into the Store — the calling
// goroutine may be holding structural locks (spec §5).
type DocumentView struct {
	Type             string
	ID               string
	Revision         uint64
	Active           bool
	CreationTime     int64 // seconds since epoch
	ModificationTime int64
	Properties       value.Dictionary
}

// Value looks up a property, returning the zero Value and false if absent.
func (d DocumentView) Value(property string) (value.Value, bool) {
	v, ok := d.Properties[property]
	return v, ok
}

// IsIncludedSelector decides collection membership for one document.
type IsIncludedSelector func(doc DocumentView, info map[string]string) bool

// KeysSelector produces the (possibly empty) list of index keys a document
// contributes.
type KeysSelector func(doc DocumentView, info map[string]string) []string

// ValuePerformer computes one cache value-info's integer value for a
// document.
type ValuePerformer func(doc DocumentView, info map[string]string) int64

// selectorRegistry holds the store's three name->handler tables. Selectors
// must be registered before any structure that references them by name is
// registered (spec §4.9); referencing an unregistered name fails with
// ErrUnknownSelector.
type selectorRegistry struct {
	mu               sync.RWMutex
	isIncluded       map[string]IsIncludedSelector
	keys             map[string]KeysSelector
	valuePerformers  map[string]ValuePerformer
}

func newSelectorRegistry() *selectorRegistry {
	return &selectorRegistry{
		isIncluded:      make(map[string]IsIncludedSelector),
		keys:            make(map[string]KeysSelector),
		valuePerformers: make(map[string]ValuePerformer),
	}
}

// RegisterIsIncludedPerformer registers a named collection-membership
// predicate.
func (s *Store) RegisterIsIncludedPerformer(selectorID string, fn IsIncludedSelector) {
	s.selectors.mu.Lock()
	defer s.selectors.mu.Unlock()
	s.selectors.isIncluded[selectorID] = fn
}

// RegisterKeysPerformer registers a named index-keys computation.
func (s *Store) RegisterKeysPerformer(selectorID string, fn KeysSelector) {
	s.selectors.mu.Lock()
	defer s.selectors.mu.Unlock()
	s.selectors.keys[selectorID] = fn
}

// RegisterValuePerformer registers a named cache-value computation.
func (s *Store) RegisterValuePerformer(selectorID string, fn ValuePerformer) {
	s.selectors.mu.Lock()
	defer s.selectors.mu.Unlock()
	s.selectors.valuePerformers[selectorID] = fn
}

func (s *Store) isIncludedPerformer(id string) (IsIncludedSelector, bool) {
	s.selectors.mu.RLock()
	defer s.selectors.mu.RUnlock()
	fn, ok := s.selectors.isIncluded[id]
	return fn, ok
}

func (s *Store) keysPerformer(id string) (KeysSelector, bool) {
	s.selectors.mu.RLock()
	defer s.selectors.mu.RUnlock()
	fn, ok := s.selectors.keys[id]
	return fn, ok
}

func (s *Store) valuePerformer(id string) (ValuePerformer, bool) {
	s.selectors.mu.RLock()
	defer s.selectors.mu.RUnlock()
	fn, ok := s.selectors.valuePerformers[id]
	return fn, ok
}
