package ephemeral

import (
	"context"
	"fmt"
	"sync"

	"github.com/StevoGTA/Mini-Document-Storage-sub000/backend"
)

// --- Cache ---

type cacheStore struct {
	mu           sync.RWMutex
	name         string
	docType      string
	version      int
	lastRevision uint64
	valueNames   []string
	rows         map[int64]map[string]int64
}

func (s *Store) CacheRegister(ctx context.Context, name, docType string, relevantProperties []string, valueInfos []backend.CacheValueInfo, version int) (uint64, error) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	names := make([]string, len(valueInfos))
	for i, vi := range valueInfos {
		names[i] = vi.Name
	}

	existing, ok := s.caches[name]
	if ok && existing.version == version {
		return existing.lastRevision, nil
	}

	// New registration, or a version change: (re)build from scratch.
	s.caches[name] = &cacheStore{
		name:       name,
		docType:    docType,
		version:    version,
		valueNames: names,
		rows:       make(map[int64]map[string]int64),
	}
	return 0, nil
}

func (s *Store) cache(name string) (*cacheStore, error) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	c, ok := s.caches[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", backend.ErrCacheNotFound, name)
	}
	return c, nil
}

func (s *Store) CacheUpdate(ctx context.Context, name string, rows map[int64]map[string]int64, removedIDs []int64, newLastRevision uint64) error {
	c, err := s.cache(name)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for id, row := range rows {
		c.rows[id] = row
	}
	for _, id := range removedIDs {
		delete(c.rows, id)
	}
	if newLastRevision > c.lastRevision {
		c.lastRevision = newLastRevision
	}
	return nil
}

func (s *Store) CacheSumValues(ctx context.Context, name string, internalIDs []int64, valueNames []string) (map[string]int64, error) {
	c, err := s.cache(name)
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	known := make(map[string]bool, len(c.valueNames))
	for _, n := range c.valueNames {
		known[n] = true
	}
	for _, n := range valueNames {
		if !known[n] {
			return nil, fmt.Errorf("%w: %s", backend.ErrCacheValueNameUnknown, n)
		}
	}

	sums := make(map[string]int64, len(valueNames))
	for _, id := range internalIDs {
		row, ok := c.rows[id]
		if !ok {
			continue
		}
		for _, n := range valueNames {
			sums[n] += row[n]
		}
	}
	return sums, nil
}

func (s *Store) CacheValueNames(ctx context.Context, name string) ([]string, error) {
	c, err := s.cache(name)
	if err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.valueNames...), nil
}

// --- Collection ---

type collectionStore struct {
	mu           sync.RWMutex
	name         string
	docType      string
	version      int
	lastRevision uint64
	included     map[int64]struct{}
}

func (s *Store) CollectionRegister(ctx context.Context, name, docType string, relevantProperties []string, version int) (uint64, error) {
	s.collMu.Lock()
	defer s.collMu.Unlock()

	existing, ok := s.collections[name]
	if ok && existing.version == version {
		return existing.lastRevision, nil
	}

	s.collections[name] = &collectionStore{
		name:     name,
		docType:  docType,
		version:  version,
		included: make(map[int64]struct{}),
	}
	return 0, nil
}

func (s *Store) collection(name string) (*collectionStore, error) {
	s.collMu.RLock()
	defer s.collMu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", backend.ErrCollectionNotFound, name)
	}
	return c, nil
}

func (s *Store) CollectionUpdate(ctx context.Context, name string, included, notIncluded, removedIDs []int64, newLastRevision uint64) error {
	c, err := s.collection(name)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range included {
		c.included[id] = struct{}{}
	}
	for _, id := range notIncluded {
		delete(c.included, id)
	}
	for _, id := range removedIDs {
		delete(c.included, id)
	}
	if newLastRevision > c.lastRevision {
		c.lastRevision = newLastRevision
	}
	return nil
}

func (s *Store) CollectionCount(ctx context.Context, name string) (int, error) {
	c, err := s.collection(name)
	if err != nil {
		return 0, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.included), nil
}

func (s *Store) CollectionIDs(ctx context.Context, name string) ([]int64, error) {
	c, err := s.collection(name)
	if err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]int64, 0, len(c.included))
	for id := range c.included {
		out = append(out, id)
	}
	return out, nil
}

// --- Index ---

type indexStore struct {
	mu           sync.RWMutex
	name         string
	docType      string
	version      int
	lastRevision uint64
	byKey        map[string]int64
}

func (s *Store) IndexRegister(ctx context.Context, name, docType string, relevantProperties []string, version int) (uint64, error) {
	s.idxMu.Lock()
	defer s.idxMu.Unlock()

	existing, ok := s.indexes[name]
	if ok && existing.version == version {
		return existing.lastRevision, nil
	}

	s.indexes[name] = &indexStore{
		name:    name,
		docType: docType,
		version: version,
		byKey:   make(map[string]int64),
	}
	return 0, nil
}

func (s *Store) index(name string) (*indexStore, error) {
	s.idxMu.RLock()
	defer s.idxMu.RUnlock()
	idx, ok := s.indexes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", backend.ErrIndexNotFound, name)
	}
	return idx, nil
}

func (s *Store) IndexUpdate(ctx context.Context, name string, removedIDs []int64, entries []backend.IndexEntry, newLastRevision uint64) error {
	idx, err := s.index(name)
	if err != nil {
		return err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	removed := make(map[int64]struct{}, len(removedIDs))
	for _, id := range removedIDs {
		removed[id] = struct{}{}
	}
	for key, id := range idx.byKey {
		if _, ok := removed[id]; ok {
			delete(idx.byKey, key)
		}
	}
	// Later entries win over earlier ones for the same key.
	for _, e := range entries {
		idx.byKey[e.Key] = e.InternalID
	}
	if newLastRevision > idx.lastRevision {
		idx.lastRevision = newLastRevision
	}
	return nil
}

func (s *Store) IndexLookup(ctx context.Context, name string, keys []string) (map[string]int64, error) {
	idx, err := s.index(name)
	if err != nil {
		return nil, err
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	out := make(map[string]int64, len(keys))
	for _, k := range keys {
		if id, ok := idx.byKey[k]; ok {
			out[k] = id
		}
	}
	return out, nil
}
