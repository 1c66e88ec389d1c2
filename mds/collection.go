package mds

import (
	"context"

	"github.com/StevoGTA/Mini-Document-Storage-sub000/backend"
)

// collectionStruct is the registered shape of one named Collection: the
// document type it watches and the predicate deciding membership.
type collectionStruct struct {
	name               string
	docType            string
	relevantProperties map[string]struct{}
	isIncludedID       string
	info               map[string]string
}

func (c *collectionStruct) Name() string    { return c.name }
func (c *collectionStruct) DocType() string { return c.docType }

func (c *collectionStruct) applyUpdates(ctx context.Context, s *Store, info backend.UpdatesInfo) error {
	fn, ok := s.isIncludedPerformer(c.isIncludedID)
	if !ok {
		return newErr(ErrorKindUnknownSelector, "collection.update", nil)
	}

	var included, notIncluded []int64
	var maxRev uint64
	for _, u := range info.Updates {
		if !intersects(u.Changed, c.relevantProperties) {
			continue
		}
		dv := toDocumentView(u.Document)
		if fn(dv, c.info) {
			included = append(included, u.Document.InternalID)
		} else {
			notIncluded = append(notIncluded, u.Document.InternalID)
		}
		if u.Revision > maxRev {
			maxRev = u.Revision
		}
	}
	if len(included) == 0 && len(notIncluded) == 0 && len(info.RemovedIDs) == 0 {
		return nil
	}
	return s.backend.CollectionUpdate(ctx, c.name, included, notIncluded, info.RemovedIDs, maxRev)
}

// RegisterCollection registers (or re-registers) a named collection.
func (s *Store) RegisterCollection(ctx context.Context, name, docType string, relevantProperties []string, isIncludedSelectorID string, version int) error {
	if _, ok := s.isIncludedPerformer(isIncludedSelectorID); !ok {
		return newErr(ErrorKindUnknownSelector, "collection.register", nil)
	}

	lastRevision, err := s.backend.CollectionRegister(ctx, name, docType, relevantProperties, version)
	if err != nil {
		return newErr(ErrorKindBackendIO, "collection.register", err)
	}

	c := &collectionStruct{
		name:               name,
		docType:            docType,
		relevantProperties: toSet(relevantProperties),
		isIncludedID:       isIncludedSelectorID,
		info:               map[string]string{},
	}

	s.derivedMu.Lock()
	s.collectionsByName[name] = c
	s.derivedByType[docType] = append(s.derivedByType[docType], c)
	s.derivedMu.Unlock()

	return s.rebuildOne(ctx, c, lastRevision)
}

// CollectionDocumentCount reports the number of documents currently included
// in a registered collection. Spec §4.6: illegal to call from inside an
// open batch, since the collection's persisted view does not yet reflect
// the batch's own buffered writes.
func (s *Store) CollectionDocumentCount(ctx context.Context, name string) (int, error) {
	if _, ok := batchFromContext(ctx); ok {
		return 0, newErr(ErrorKindIllegalInBatch, "collection.count", nil)
	}
	if _, ok := s.collectionByName(name); !ok {
		return 0, newErr(ErrorKindUnknownCollection, "collection.count", nil)
	}
	n, err := s.backend.CollectionCount(ctx, name)
	if err != nil {
		return 0, newErr(ErrorKindBackendIO, "collection.count", err)
	}
	return n, nil
}

// CollectionDocumentIDs resolves every document currently included in a
// registered collection back to its document-type-scoped id.
func (s *Store) CollectionDocumentIDs(ctx context.Context, name, docType string) ([]string, error) {
	if _, ok := s.collectionByName(name); !ok {
		return nil, newErr(ErrorKindUnknownCollection, "collection.ids", nil)
	}
	ids, err := s.backend.CollectionIDs(ctx, name)
	if err != nil {
		return nil, newErr(ErrorKindBackendIO, "collection.ids", err)
	}
	return s.docIDsFor(ctx, docType, ids)
}

func (s *Store) collectionByName(name string) (*collectionStruct, bool) {
	s.derivedMu.RLock()
	defer s.derivedMu.RUnlock()
	c, ok := s.collectionsByName[name]
	return c, ok
}
