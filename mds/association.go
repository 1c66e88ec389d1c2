package mds

import (
	"context"
	"errors"

	"github.com/StevoGTA/Mini-Document-Storage-sub000/backend"
)

// associationDef records the two document types a named association binds
// together, so later calls can validate the caller isn't mixing types.
type associationDef struct {
	name     string
	fromType string
	toType   string
}

// AssociationItem is one (fromID, toID) pair in document-id terms.
type AssociationItem struct {
	FromID string
	ToID   string
}

// RegisterAssociation registers a named directed relation between fromType
// and toType. Registering the same name again with different types fails
// with ErrMismatchedAssociationTypes; registering with matching types is a
// no-op.
func (s *Store) RegisterAssociation(ctx context.Context, name, fromType, toType string) error {
	existingFrom, existingTo, err := s.backend.AssociationRegister(ctx, name, fromType, toType)
	if err != nil {
		return newErr(ErrorKindBackendIO, "association.register", err)
	}
	if existingFrom != fromType || existingTo != toType {
		return newErr(ErrorKindMismatchedAssociationTypes, "association.register", nil)
	}

	s.assocMu.Lock()
	s.associationsByName[name] = &associationDef{name: name, fromType: fromType, toType: toType}
	s.assocMu.Unlock()
	return nil
}

func (s *Store) association(name string) (*associationDef, bool) {
	s.assocMu.RLock()
	defer s.assocMu.RUnlock()
	a, ok := s.associationsByName[name]
	return a, ok
}

// AssociationItems returns every (fromID, toID) pair currently registered
// under name, overlaid with the calling context's own batched updates, if
// any (spec §4.4: "applies the current thread's batched updates atop the
// persisted set before returning").
func (s *Store) AssociationItems(ctx context.Context, name string) ([]AssociationItem, error) {
	if _, ok := s.association(name); !ok {
		return nil, newErr(ErrorKindUnknownAssociation, "association.get", nil)
	}
	items, err := s.backend.AssociationGet(ctx, name)
	if err != nil {
		return nil, newErr(ErrorKindBackendIO, "association.get", err)
	}
	out := make([]AssociationItem, len(items))
	for i, it := range items {
		out[i] = AssociationItem{FromID: it.FromID, ToID: it.ToID}
	}
	if b, ok := batchFromContext(ctx); ok {
		out = b.overlayAssociation(name, out)
	}
	return out, nil
}

// AssociationFrom paginates the toIDs associated from anchorID. Fails with
// ErrUnknownDocumentID if anchorID is unknown to persistence (spec §4.4).
func (s *Store) AssociationFrom(ctx context.Context, name, anchorID string, startIndex, count int) (total int, toIDs []string, err error) {
	if _, ok := s.association(name); !ok {
		return 0, nil, newErr(ErrorKindUnknownAssociation, "association.from", nil)
	}
	total, toIDs, err = s.backend.AssociationInfosFrom(ctx, name, anchorID, startIndex, count)
	if err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			return 0, nil, newErr(ErrorKindUnknownDocumentID, "association.from", err)
		}
		return 0, nil, newErr(ErrorKindBackendIO, "association.from", err)
	}
	return total, toIDs, nil
}

// AssociationTo paginates the fromIDs associated to anchorID. Fails with
// ErrUnknownDocumentID if anchorID is unknown to persistence (spec §4.4).
func (s *Store) AssociationTo(ctx context.Context, name, anchorID string, startIndex, count int) (total int, fromIDs []string, err error) {
	if _, ok := s.association(name); !ok {
		return 0, nil, newErr(ErrorKindUnknownAssociation, "association.to", nil)
	}
	total, fromIDs, err = s.backend.AssociationInfosTo(ctx, name, anchorID, startIndex, count)
	if err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			return 0, nil, newErr(ErrorKindUnknownDocumentID, "association.to", err)
		}
		return 0, nil, newErr(ErrorKindBackendIO, "association.to", err)
	}
	return total, fromIDs, nil
}

// DocumentRevisionInfo pairs a document id with its current revision, as
// returned by the association's paginated revision-info lookups (spec
// §6.1's getDocumentRevisionInfosFrom/To).
type DocumentRevisionInfo struct {
	DocID    string
	Revision uint64
}

// AssociationRevisionInfosFrom paginates {docID, revision} pairs for every
// toID associated from anchorID (spec §6.1's getDocumentRevisionInfosFrom).
func (s *Store) AssociationRevisionInfosFrom(ctx context.Context, name, anchorID string, startIndex, count int) (int, []DocumentRevisionInfo, error) {
	assoc, ok := s.association(name)
	if !ok {
		return 0, nil, newErr(ErrorKindUnknownAssociation, "association.revisionInfosFrom", nil)
	}
	total, toIDs, err := s.AssociationFrom(ctx, name, anchorID, startIndex, count)
	if err != nil {
		return 0, nil, err
	}
	infos, err := s.revisionInfosFor(ctx, assoc.toType, toIDs)
	if err != nil {
		return 0, nil, err
	}
	return total, infos, nil
}

// AssociationRevisionInfosTo paginates {docID, revision} pairs for every
// fromID associated to anchorID (spec §6.1's getDocumentRevisionInfosTo).
func (s *Store) AssociationRevisionInfosTo(ctx context.Context, name, anchorID string, startIndex, count int) (int, []DocumentRevisionInfo, error) {
	assoc, ok := s.association(name)
	if !ok {
		return 0, nil, newErr(ErrorKindUnknownAssociation, "association.revisionInfosTo", nil)
	}
	total, fromIDs, err := s.AssociationTo(ctx, name, anchorID, startIndex, count)
	if err != nil {
		return 0, nil, err
	}
	infos, err := s.revisionInfosFor(ctx, assoc.fromType, fromIDs)
	if err != nil {
		return 0, nil, err
	}
	return total, infos, nil
}

func (s *Store) revisionInfosFor(ctx context.Context, docType string, docIDs []string) ([]DocumentRevisionInfo, error) {
	infos := make([]DocumentRevisionInfo, 0, len(docIDs))
	for _, id := range docIDs {
		view, err := s.GetDocument(ctx, docType, id)
		if err != nil {
			return nil, err
		}
		infos = append(infos, DocumentRevisionInfo{DocID: view.ID, Revision: view.Revision})
	}
	return infos, nil
}

// AssociationFullInfosFrom paginates full document views for every toID
// associated from anchorID (spec §6.1's getDocumentFullInfosFrom).
func (s *Store) AssociationFullInfosFrom(ctx context.Context, name, anchorID string, startIndex, count int) (int, []DocumentView, error) {
	assoc, ok := s.association(name)
	if !ok {
		return 0, nil, newErr(ErrorKindUnknownAssociation, "association.fullInfosFrom", nil)
	}
	total, toIDs, err := s.AssociationFrom(ctx, name, anchorID, startIndex, count)
	if err != nil {
		return 0, nil, err
	}
	views, err := s.fullInfosFor(ctx, assoc.toType, toIDs)
	if err != nil {
		return 0, nil, err
	}
	return total, views, nil
}

// AssociationFullInfosTo paginates full document views for every fromID
// associated to anchorID (spec §6.1's getDocumentFullInfosTo).
func (s *Store) AssociationFullInfosTo(ctx context.Context, name, anchorID string, startIndex, count int) (int, []DocumentView, error) {
	assoc, ok := s.association(name)
	if !ok {
		return 0, nil, newErr(ErrorKindUnknownAssociation, "association.fullInfosTo", nil)
	}
	total, fromIDs, err := s.AssociationTo(ctx, name, anchorID, startIndex, count)
	if err != nil {
		return 0, nil, err
	}
	views, err := s.fullInfosFor(ctx, assoc.fromType, fromIDs)
	if err != nil {
		return 0, nil, err
	}
	return total, views, nil
}

func (s *Store) fullInfosFor(ctx context.Context, docType string, docIDs []string) ([]DocumentView, error) {
	views := make([]DocumentView, 0, len(docIDs))
	for _, id := range docIDs {
		view, err := s.GetDocument(ctx, docType, id)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

// AssociationUpdate applies a batch of add/remove edits. Every referenced
// document id is validated against persistence (and, inside a batch,
// against that batch's own pending creations) before anything is applied,
// failing the whole call with ErrUnknownDocumentID if one is absent (spec
// §4.4). Inside an open Batch the edits are deferred to commit, same as
// every other mutator, but are immediately visible to AssociationItems/
// AssociationIntegerValues calls made through the same batch-bound context
// (spec §4.3's associationNoteUpdated).
func (s *Store) AssociationUpdate(ctx context.Context, name string, adds, removes []AssociationItem) error {
	assoc, ok := s.association(name)
	if !ok {
		return newErr(ErrorKindUnknownAssociation, "association.update", nil)
	}

	b, inBatch := batchFromContext(ctx)
	var batchForValidation *Batch
	if inBatch {
		batchForValidation = b
	}

	var fromIDs, toIDs []string
	for _, a := range adds {
		fromIDs = append(fromIDs, a.FromID)
		toIDs = append(toIDs, a.ToID)
	}
	for _, r := range removes {
		fromIDs = append(fromIDs, r.FromID)
		toIDs = append(toIDs, r.ToID)
	}
	if err := s.validateAssociationDocIDs(ctx, assoc.fromType, fromIDs, batchForValidation); err != nil {
		return err
	}
	if err := s.validateAssociationDocIDs(ctx, assoc.toType, toIDs, batchForValidation); err != nil {
		return err
	}

	updates := toBackendAssociationUpdates(adds, removes)

	if inBatch {
		b.recordAssocEdits(name, adds, removes)
		b.queue(func(ctx context.Context) error {
			return s.backend.AssociationUpdate(ctx, name, updates)
		})
		return nil
	}

	if err := s.backend.AssociationUpdate(ctx, name, updates); err != nil {
		return newErr(ErrorKindBackendIO, "association.update", err)
	}
	return nil
}

// validateAssociationDocIDs fails with ErrUnknownDocumentID if any of ids
// is absent from both persistence and (when b is non-nil) b's own pending
// creations for docType.
func (s *Store) validateAssociationDocIDs(ctx context.Context, docType string, ids []string, b *Batch) error {
	need := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		need[id] = struct{}{}
	}
	if len(need) == 0 {
		return nil
	}

	resolved := make(map[string]struct{}, len(need))
	err := s.backend.DocumentIterateByIDs(ctx, docType, ids, func(d *backend.DocumentInfo) error {
		resolved[d.DocID] = struct{}{}
		return nil
	})
	if err != nil {
		return newErr(ErrorKindBackendIO, "association.update", err)
	}

	for id := range need {
		if _, ok := resolved[id]; ok {
			continue
		}
		if b != nil {
			if c := b.peekDocChange(docType, id); c != nil && c.creating && !c.removed {
				continue
			}
		}
		return newErr(ErrorKindUnknownDocumentID, "association.update", nil)
	}
	return nil
}

func toBackendAssociationUpdates(adds, removes []AssociationItem) []backend.AssociationUpdate {
	updates := make([]backend.AssociationUpdate, 0, len(adds)+len(removes))
	for _, a := range adds {
		updates = append(updates, backend.AssociationUpdate{Add: true, FromID: a.FromID, ToID: a.ToID})
	}
	for _, r := range removes {
		updates = append(updates, backend.AssociationUpdate{Add: false, FromID: r.FromID, ToID: r.ToID})
	}
	return updates
}

// AssociationIntegerValues sums a registered cache's named values across
// every document linked to by the union of fromIDs, returning one combined
// {valueName: sum} dictionary (spec §6.1's getIntegerValues; each linked
// document is counted once even if more than one anchor links to it).
func (s *Store) AssociationIntegerValues(ctx context.Context, name, cacheName string, fromIDs []string, valueNames []string) (map[string]int64, error) {
	assoc, ok := s.association(name)
	if !ok {
		return nil, newErr(ErrorKindUnknownAssociation, "association.sum", nil)
	}
	if _, ok := s.cacheByName(cacheName); !ok {
		return nil, newErr(ErrorKindUnknownCache, "association.sum", nil)
	}

	b, inBatch := batchFromContext(ctx)

	seen := make(map[string]struct{})
	var toIDs []string
	for _, fromID := range fromIDs {
		_, ids, err := s.backend.AssociationInfosFrom(ctx, name, fromID, 0, 0)
		if err != nil {
			if errors.Is(err, backend.ErrNotFound) {
				return nil, newErr(ErrorKindUnknownDocumentID, "association.sum", err)
			}
			return nil, newErr(ErrorKindBackendIO, "association.sum", err)
		}
		if inBatch {
			ids = b.overlayFromSet(name, fromID, ids)
		}
		for _, id := range ids {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			toIDs = append(toIDs, id)
		}
	}

	internalIDs, err := s.internalIDsFor(ctx, assoc.toType, toIDs)
	if err != nil {
		return nil, err
	}
	sums, err := s.backend.CacheSumValues(ctx, cacheName, internalIDs, valueNames)
	if err != nil {
		return nil, newErr(ErrorKindBackendIO, "association.sum", err)
	}
	return sums, nil
}
