// Package ephemeral implements backend.Backend entirely in typed Go maps
// guarded by sync.RWMutex locks (which let a waiting writer block new
// readers, so they are not read-preferring), matching the original CMDSEphemeral
// backend: nothing survives process restart, but every operation the
// durable backend supports is available for embedding and for tests.
package ephemeral

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/StevoGTA/Mini-Document-Storage-sub000/backend"
	"github.com/StevoGTA/Mini-Document-Storage-sub000/internal/core"
)

// Store is the in-memory realization of backend.Backend.
type Store struct {
	typesMu sync.RWMutex
	types   map[string]*typeStore

	nextInternalID int64

	assocMu      sync.RWMutex
	associations map[string]*associationStore

	cacheMu sync.RWMutex
	caches  map[string]*cacheStore

	collMu      sync.RWMutex
	collections map[string]*collectionStore

	idxMu   sync.RWMutex
	indexes map[string]*indexStore

	infoMu     sync.RWMutex
	info       map[string]string
	internalMu sync.RWMutex
	internal   map[string]string

	// txnMu bounds RunInTransaction: the ephemeral backend has no native
	// transaction concept, so it serializes batch commits with one lock,
	// matching the durable backend's single-writer file-lock behavior
	// closely enough for the engine's ordering guarantees to hold.
	txnMu sync.Mutex
}

// NewStore creates an empty ephemeral backend.
func NewStore() *Store {
	return &Store{
		types:        make(map[string]*typeStore),
		associations: make(map[string]*associationStore),
		caches:       make(map[string]*cacheStore),
		collections:  make(map[string]*collectionStore),
		indexes:      make(map[string]*indexStore),
		info:         make(map[string]string),
		internal:     make(map[string]string),
	}
}

var _ backend.Backend = (*Store)(nil)

func (s *Store) typeStoreFor(docType string, createIfMissing bool) *typeStore {
	s.typesMu.RLock()
	ts, ok := s.types[docType]
	s.typesMu.RUnlock()
	if ok || !createIfMissing {
		return ts
	}

	s.typesMu.Lock()
	defer s.typesMu.Unlock()
	if ts, ok = s.types[docType]; ok {
		return ts
	}
	ts = newTypeStore()
	s.types[docType] = ts
	return ts
}

func (s *Store) nextInternalIDFor() int64 {
	return atomic.AddInt64(&s.nextInternalID, 1)
}

// RunInTransaction serializes fn against every other transaction on this
// store; the ephemeral backend has no finer-grained physical transaction.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	s.txnMu.Lock()
	defer s.txnMu.Unlock()
	return fn(ctx)
}

// VariableBindingLimit reports a large sentinel: map-backed writes need no
// chunking.
func (s *Store) VariableBindingLimit() int { return math.MaxInt32 }

// Close releases all in-memory state.
func (s *Store) Close() error {
	core.Component("backend.ephemeral").Debug("closing ephemeral backend")
	return nil
}

func (s *Store) InfoGet(ctx context.Context, keys []string) (map[string]string, error) {
	return getNamespace(&s.infoMu, s.info, keys), nil
}

func (s *Store) InfoSet(ctx context.Context, kv map[string]string) error {
	setNamespace(&s.infoMu, s.info, kv)
	return nil
}

func (s *Store) InfoRemove(ctx context.Context, keys []string) error {
	removeNamespace(&s.infoMu, s.info, keys)
	return nil
}

func (s *Store) InternalGet(ctx context.Context, keys []string) (map[string]string, error) {
	return getNamespace(&s.internalMu, s.internal, keys), nil
}

func (s *Store) InternalSet(ctx context.Context, kv map[string]string) error {
	setNamespace(&s.internalMu, s.internal, kv)
	return nil
}

func (s *Store) InternalRemove(ctx context.Context, keys []string) error {
	removeNamespace(&s.internalMu, s.internal, keys)
	return nil
}

func getNamespace(mu *sync.RWMutex, m map[string]string, keys []string) map[string]string {
	mu.RLock()
	defer mu.RUnlock()
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		if v, ok := m[k]; ok {
			out[k] = v
		}
	}
	return out
}

func setNamespace(mu *sync.RWMutex, m map[string]string, kv map[string]string) {
	mu.Lock()
	defer mu.Unlock()
	for k, v := range kv {
		m[k] = v
	}
}

func removeNamespace(mu *sync.RWMutex, m map[string]string, keys []string) {
	mu.Lock()
	defer mu.Unlock()
	for _, k := range keys {
		delete(m, k)
	}
}

func errDocType(docType string) error {
	return fmt.Errorf("%w: %s", backend.ErrDocumentTypeUnknown, docType)
}
