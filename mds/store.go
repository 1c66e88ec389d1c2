// Package mds implements the engine described for Mini Document Storage: a
// schema-less, revisioned document store layered over a pluggable
// backend.Backend, with caches, collections, indexes, and associations kept
// incrementally up to date by an update pipeline.
package mds

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/StevoGTA/Mini-Document-Storage-sub000/backend"
	"github.com/StevoGTA/Mini-Document-Storage-sub000/blobcache"
	"github.com/StevoGTA/Mini-Document-Storage-sub000/internal/core"
)

// blobMarker is the attachment info key the engine sets on attachments
// whose content it offloaded to a blobcache.Cache instead of leaving with
// the backend, so AttachmentContent knows which tier to read from.
const blobMarker = "mds.blob"

// Store is the engine's single entry point. One Store wraps exactly one
// Backend; callers needing multiple independent stores create multiple
// Stores over separate Backends.
type Store struct {
	backend backend.Backend
	log     *zap.Logger

	// blobs, when set, receives attachment content at or above
	// blobThreshold bytes instead of leaving it with backend; the backend
	// then keeps only metadata plus the blobMarker info key.
	blobs         blobcache.Cache
	blobThreshold int

	selectors *selectorRegistry

	derivedMu         sync.RWMutex
	derivedByType     map[string][]derivedStructure
	cachesByName      map[string]*cacheStruct
	collectionsByName map[string]*collectionStruct
	indexesByName     map[string]*indexStruct

	assocMu           sync.RWMutex
	associationsByName map[string]*associationDef

	notifyMu  sync.RWMutex
	notifiers []ChangeNotifier
}

// ChangeNotifier is invoked after a commit (batched or direct) touches one
// document type, mirroring the original implementation's document-change
// observer hook. docIDs lists every document created, updated, or removed.
type ChangeNotifier func(docType string, docIDs []string)

// StoreOption configures optional Store behavior at construction time.
type StoreOption func(*Store)

// WithBlobCache routes attachment content at or above thresholdBytes to c
// instead of the backend's own storage. Content below the threshold stays
// with the backend unchanged.
func WithBlobCache(c blobcache.Cache, thresholdBytes int) StoreOption {
	return func(s *Store) {
		s.blobs = c
		s.blobThreshold = thresholdBytes
	}
}

// NewStore wraps b in an engine. The caller retains ownership of b and
// should Close it (via Store.Close) when done.
func NewStore(b backend.Backend, opts ...StoreOption) *Store {
	s := &Store{
		backend:            b,
		log:                core.Component("mds.store"),
		selectors:          newSelectorRegistry(),
		derivedByType:      make(map[string][]derivedStructure),
		cachesByName:       make(map[string]*cacheStruct),
		collectionsByName:  make(map[string]*collectionStruct),
		indexesByName:      make(map[string]*indexStruct),
		associationsByName: make(map[string]*associationDef),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close releases the underlying backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// Notify registers fn to be called after every committed document change.
func (s *Store) Notify(fn ChangeNotifier) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	s.notifiers = append(s.notifiers, fn)
}

func (s *Store) notify(docType string, docIDs []string) {
	if len(docIDs) == 0 {
		return
	}
	s.notifyMu.RLock()
	fns := append([]ChangeNotifier(nil), s.notifiers...)
	s.notifyMu.RUnlock()
	for _, fn := range fns {
		fn(docType, docIDs)
	}
}

func isBackendErr(err error, target error) bool {
	return errors.Is(err, target)
}

// internalIDsFor resolves a batch of document-type-scoped ids to backend
// internal ids, in the same order, skipping ids that don't resolve.
func (s *Store) internalIDsFor(ctx context.Context, docType string, docIDs []string) ([]int64, error) {
	ids := make([]int64, 0, len(docIDs))
	err := s.backend.DocumentIterateByIDs(ctx, docType, docIDs, func(d *backend.DocumentInfo) error {
		ids = append(ids, d.InternalID)
		return nil
	})
	if err != nil {
		return nil, newErr(ErrorKindBackendIO, "document.resolve", err)
	}
	return ids, nil
}

// docIDsFor resolves backend internal ids back to document-type-scoped ids,
// in the same order. An id with no stored document (tombstoned documents
// count as stored) resolves to "".
func (s *Store) docIDsFor(ctx context.Context, docType string, internalIDs []int64) ([]string, error) {
	byID, err := s.backend.DocumentByInternalIDs(ctx, docType, internalIDs)
	if err != nil {
		return nil, newErr(ErrorKindBackendIO, "document.resolve", err)
	}
	out := make([]string, len(internalIDs))
	for i, id := range internalIDs {
		if d, ok := byID[id]; ok {
			out[i] = d.DocID
		}
	}
	return out, nil
}
