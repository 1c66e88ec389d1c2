package mds

import (
	"context"

	"github.com/StevoGTA/Mini-Document-Storage-sub000/backend"
)

// indexStruct is the registered shape of one named Index: the document type
// it watches and the selector computing each document's keys.
type indexStruct struct {
	name               string
	docType            string
	relevantProperties map[string]struct{}
	keysID             string
	info               map[string]string
}

func (x *indexStruct) Name() string    { return x.name }
func (x *indexStruct) DocType() string { return x.docType }

func (x *indexStruct) applyUpdates(ctx context.Context, s *Store, info backend.UpdatesInfo) error {
	fn, ok := s.keysPerformer(x.keysID)
	if !ok {
		return newErr(ErrorKindUnknownSelector, "index.update", nil)
	}

	clearIDs := append([]int64(nil), info.RemovedIDs...)
	var entries []backend.IndexEntry
	var maxRev uint64
	for _, u := range info.Updates {
		if !intersects(u.Changed, x.relevantProperties) {
			continue
		}
		// Every key this document previously owned is stale once it is
		// recomputed; clear them before inserting the fresh set so a key
		// a document no longer claims doesn't keep pointing at it.
		clearIDs = append(clearIDs, u.Document.InternalID)
		dv := toDocumentView(u.Document)
		for _, k := range fn(dv, x.info) {
			entries = append(entries, backend.IndexEntry{Key: k, InternalID: u.Document.InternalID})
		}
		if u.Revision > maxRev {
			maxRev = u.Revision
		}
	}
	if len(clearIDs) == 0 && len(entries) == 0 {
		return nil
	}
	return s.backend.IndexUpdate(ctx, x.name, clearIDs, entries, maxRev)
}

// RegisterIndex registers (or re-registers) a named index.
func (s *Store) RegisterIndex(ctx context.Context, name, docType string, relevantProperties []string, keysSelectorID string, version int) error {
	if _, ok := s.keysPerformer(keysSelectorID); !ok {
		return newErr(ErrorKindUnknownSelector, "index.register", nil)
	}

	lastRevision, err := s.backend.IndexRegister(ctx, name, docType, relevantProperties, version)
	if err != nil {
		return newErr(ErrorKindBackendIO, "index.register", err)
	}

	x := &indexStruct{
		name:               name,
		docType:            docType,
		relevantProperties: toSet(relevantProperties),
		keysID:             keysSelectorID,
		info:               map[string]string{},
	}

	s.derivedMu.Lock()
	s.indexesByName[name] = x
	s.derivedByType[docType] = append(s.derivedByType[docType], x)
	s.derivedMu.Unlock()

	return s.rebuildOne(ctx, x, lastRevision)
}

// IndexLookup resolves a set of keys against a registered index, returning
// the document-type-scoped id each matched key currently maps to.
func (s *Store) IndexLookup(ctx context.Context, name, docType string, keys []string) (map[string]string, error) {
	if _, ok := s.indexByName(name); !ok {
		return nil, newErr(ErrorKindUnknownIndex, "index.lookup", nil)
	}

	byKey, err := s.backend.IndexLookup(ctx, name, keys)
	if err != nil {
		return nil, newErr(ErrorKindBackendIO, "index.lookup", err)
	}

	ids := make([]int64, 0, len(byKey))
	for _, id := range byKey {
		ids = append(ids, id)
	}
	docIDs, err := s.docIDsFor(ctx, docType, ids)
	if err != nil {
		return nil, err
	}
	idToDocID := make(map[int64]string, len(ids))
	for i, id := range ids {
		idToDocID[id] = docIDs[i]
	}

	out := make(map[string]string, len(byKey))
	for key, id := range byKey {
		out[key] = idToDocID[id]
	}
	return out, nil
}

func (s *Store) indexByName(name string) (*indexStruct, bool) {
	s.derivedMu.RLock()
	defer s.derivedMu.RUnlock()
	x, ok := s.indexesByName[name]
	return x, ok
}
