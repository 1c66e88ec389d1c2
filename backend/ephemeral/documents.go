package ephemeral

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/StevoGTA/Mini-Document-Storage-sub000/backend"
	"github.com/StevoGTA/Mini-Document-Storage-sub000/value"
)

// documentRecord is the ephemeral backend's DocumentBacking: the
// authoritative in-core record for one document, guarded by its own
// sync.RWMutex so readers of one document never wait on writers of
// another (spec §4.2).
type documentRecord struct {
	mu sync.RWMutex

	internalID       int64
	docID            string
	docType          string
	revision         uint64
	active           bool
	creationTime     time.Time
	modificationTime time.Time
	properties       value.Dictionary
	attachments      map[string]*attachmentRecord
}

type attachmentRecord struct {
	info     map[string]string
	revision int
	content  []byte
}

func (d *documentRecord) snapshot() *backend.DocumentInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()

	props := make(value.Dictionary, len(d.properties))
	for k, v := range d.properties {
		props[k] = v
	}
	atts := make(map[string]backend.AttachmentInfo, len(d.attachments))
	for id, a := range d.attachments {
		info := make(map[string]string, len(a.info))
		for k, v := range a.info {
			info[k] = v
		}
		atts[id] = backend.AttachmentInfo{ID: id, Revision: a.revision, Info: info}
	}

	return &backend.DocumentInfo{
		InternalID:       d.internalID,
		DocID:            d.docID,
		Type:             d.docType,
		Revision:         d.revision,
		Active:           d.active,
		CreationTime:     d.creationTime,
		ModificationTime: d.modificationTime,
		Properties:       props,
		Attachments:      atts,
	}
}

// typeStore holds every document of one document-type plus its revision
// counter, guarded by a structural lock separate from each document's own
// content lock.
type typeStore struct {
	mu              sync.RWMutex
	revisionCounter uint64
	byInternalID    map[int64]*documentRecord
	byDocID         map[string]*documentRecord
}

func newTypeStore() *typeStore {
	return &typeStore{
		byInternalID: make(map[int64]*documentRecord),
		byDocID:      make(map[string]*documentRecord),
	}
}

func (s *Store) DocumentCreate(ctx context.Context, docType, docID string, creationTime, modTime time.Time, props value.Dictionary) (*backend.DocumentInfo, error) {
	ts := s.typeStoreFor(docType, true)

	ts.mu.Lock()
	if _, exists := ts.byDocID[docID]; exists {
		ts.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", backend.ErrAlreadyExists, docID)
	}
	ts.revisionCounter++
	rec := &documentRecord{
		internalID:       s.nextInternalIDFor(),
		docID:            docID,
		docType:          docType,
		revision:         ts.revisionCounter,
		active:           true,
		creationTime:     creationTime,
		modificationTime: modTime,
		properties:       cloneDict(props),
		attachments:      make(map[string]*attachmentRecord),
	}
	ts.byDocID[docID] = rec
	ts.byInternalID[rec.internalID] = rec
	ts.mu.Unlock()

	return rec.snapshot(), nil
}

func (s *Store) lookupRecord(docType, docID string) (*typeStore, *documentRecord, bool) {
	ts := s.typeStoreFor(docType, false)
	if ts == nil {
		return nil, nil, false
	}
	ts.mu.RLock()
	rec, ok := ts.byDocID[docID]
	ts.mu.RUnlock()
	return ts, rec, ok
}

func (s *Store) DocumentUpdate(ctx context.Context, docType, docID string, updated value.Dictionary, removed map[string]struct{}, modTime time.Time) (*backend.DocumentInfo, error) {
	ts, rec, ok := s.lookupRecord(docType, docID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", backend.ErrNotFound, docID)
	}

	newRevision := atomicIncrementRevision(ts)

	rec.mu.Lock()
	if rec.properties == nil {
		rec.properties = make(value.Dictionary)
	}
	for k, v := range updated {
		rec.properties[k] = v
	}
	for k := range removed {
		delete(rec.properties, k)
	}
	rec.modificationTime = modTime
	rec.revision = newRevision
	rec.mu.Unlock()

	return rec.snapshot(), nil
}

func atomicIncrementRevision(ts *typeStore) uint64 {
	ts.mu.Lock()
	ts.revisionCounter++
	v := ts.revisionCounter
	ts.mu.Unlock()
	return v
}

func (s *Store) DocumentRemove(ctx context.Context, docType, docID string) (*backend.DocumentInfo, error) {
	ts, rec, ok := s.lookupRecord(docType, docID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", backend.ErrNotFound, docID)
	}

	newRevision := atomicIncrementRevision(ts)

	rec.mu.Lock()
	rec.active = false
	rec.revision = newRevision
	rec.modificationTime = time.Now().UTC()
	rec.mu.Unlock()

	return rec.snapshot(), nil
}

func (s *Store) DocumentGet(ctx context.Context, docType, docID string) (*backend.DocumentInfo, error) {
	_, rec, ok := s.lookupRecord(docType, docID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", backend.ErrNotFound, docID)
	}
	return rec.snapshot(), nil
}

func (s *Store) DocumentInternalID(ctx context.Context, docType, docID string) (int64, bool, error) {
	_, rec, ok := s.lookupRecord(docType, docID)
	if !ok {
		return 0, false, nil
	}
	return rec.internalID, true, nil
}

func (s *Store) DocumentIterateByIDs(ctx context.Context, docType string, docIDs []string, proc func(*backend.DocumentInfo) error) error {
	ts := s.typeStoreFor(docType, false)
	if ts == nil {
		return nil
	}
	for _, id := range docIDs {
		ts.mu.RLock()
		rec, ok := ts.byDocID[id]
		ts.mu.RUnlock()
		if !ok {
			continue
		}
		if err := proc(rec.snapshot()); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) DocumentIterateSinceRevision(ctx context.Context, docType string, sinceRevision uint64, activeOnly bool, proc func(*backend.DocumentInfo) error) error {
	ts := s.typeStoreFor(docType, false)
	if ts == nil {
		return nil
	}
	ts.mu.RLock()
	recs := make([]*documentRecord, 0, len(ts.byInternalID))
	for _, rec := range ts.byInternalID {
		recs = append(recs, rec)
	}
	ts.mu.RUnlock()

	for _, rec := range recs {
		snap := rec.snapshot()
		if snap.Revision <= sinceRevision {
			continue
		}
		if activeOnly && !snap.Active {
			continue
		}
		if err := proc(snap); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) DocumentCount(ctx context.Context, docType string, activeOnly bool) (int, error) {
	ts := s.typeStoreFor(docType, false)
	if ts == nil {
		return 0, nil
	}
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	if !activeOnly {
		return len(ts.byDocID), nil
	}
	n := 0
	for _, rec := range ts.byDocID {
		rec.mu.RLock()
		if rec.active {
			n++
		}
		rec.mu.RUnlock()
	}
	return n, nil
}

func (s *Store) DocumentByInternalIDs(ctx context.Context, docType string, internalIDs []int64) (map[int64]*backend.DocumentInfo, error) {
	ts := s.typeStoreFor(docType, false)
	out := make(map[int64]*backend.DocumentInfo, len(internalIDs))
	if ts == nil {
		return out, nil
	}
	for _, id := range internalIDs {
		ts.mu.RLock()
		rec, ok := ts.byInternalID[id]
		ts.mu.RUnlock()
		if !ok {
			continue
		}
		out[id] = rec.snapshot()
	}
	return out, nil
}

func cloneDict(d value.Dictionary) value.Dictionary {
	out := make(value.Dictionary, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}
