package mds

import (
	"context"
	"time"

	"github.com/StevoGTA/Mini-Document-Storage-sub000/value"
)

type batchCtxKey struct{}

// docChange is one document's accumulated pending state inside an open
// Batch: the merged view of every create/update/remove issued against it so
// far this batch, consulted by reads made through the same batch-bound
// context (spec §4.3's DocumentChange / §8's "reads in B reflect B's own
// writes").
type docChange struct {
	docType, docID string
	creating       bool
	removed        bool
	creationTime   time.Time
	modTime        time.Time
	initial        value.Dictionary // snapshot at creation, only set when creating
	updated        value.Dictionary
	removedProps   map[string]struct{}
}

// applyTo overlays this change atop a view already read from the backend.
func (c *docChange) applyTo(view DocumentView) DocumentView {
	if c.removed {
		view.Active = false
	}
	if len(c.updated) > 0 || len(c.removedProps) > 0 {
		props := make(value.Dictionary, len(view.Properties)+len(c.updated))
		for k, v := range view.Properties {
			props[k] = v
		}
		for k, v := range c.updated {
			props[k] = v
		}
		for k := range c.removedProps {
			delete(props, k)
		}
		view.Properties = props
	}
	if !c.modTime.IsZero() {
		view.ModificationTime = c.modTime.Unix()
	}
	return view
}

// synthesize builds a view for a document that exists only as a pending
// creation in this batch, not yet in the backend.
func (c *docChange) synthesize() DocumentView {
	props := make(value.Dictionary, len(c.initial)+len(c.updated))
	for k, v := range c.initial {
		props[k] = v
	}
	for k, v := range c.updated {
		props[k] = v
	}
	for k := range c.removedProps {
		delete(props, k)
	}
	return DocumentView{
		Type:             c.docType,
		ID:               c.docID,
		Revision:         0,
		Active:           !c.removed,
		CreationTime:     c.creationTime.Unix(),
		ModificationTime: c.modTime.Unix(),
		Properties:       props,
	}
}

// assocEdit is one pending add/remove issued against a named association
// inside an open Batch.
type assocEdit struct {
	add          bool
	fromID, toID string
}

// Batch buffers a sequence of mutations so they apply atomically: either
// every buffered op lands at Commit, or none does when proc returns an
// error. The engine has no per-goroutine identity to hang thread-local
// state off of, so the active batch instead travels on the context.Context
// passed to Store.Batch's callback — this is the adaptation of the
// original per-thread batch handle to Go (spec §9).
//
// Reads performed through a batch-bound context (GetDocument, DocumentValue,
// AssociationItems, AssociationIntegerValues) overlay this batch's own
// not-yet-committed writes atop whatever the backend currently holds;
// reads on any other context (including another goroutine's batch) never
// see them until commit.
type Batch struct {
	store      *Store
	ops        []func(ctx context.Context) error
	touched    map[string]map[string]struct{}
	docs       map[string]map[string]*docChange
	assocEdits map[string][]assocEdit
}

func newBatch(s *Store) *Batch {
	return &Batch{
		store:      s,
		touched:    make(map[string]map[string]struct{}),
		docs:       make(map[string]map[string]*docChange),
		assocEdits: make(map[string][]assocEdit),
	}
}

func batchFromContext(ctx context.Context) (*Batch, bool) {
	b, ok := ctx.Value(batchCtxKey{}).(*Batch)
	return b, ok
}

func (b *Batch) touch(docType, docID string) {
	m, ok := b.touched[docType]
	if !ok {
		m = make(map[string]struct{})
		b.touched[docType] = m
	}
	m[docID] = struct{}{}
}

func (b *Batch) queue(op func(ctx context.Context) error) {
	b.ops = append(b.ops, op)
}

// docChangeFor returns (creating if absent) the pending change record for
// one document, per spec §4.3's addDocument: "records a fresh
// DocumentChange (or returns the existing one)".
func (b *Batch) docChangeFor(docType, docID string) *docChange {
	m, ok := b.docs[docType]
	if !ok {
		m = make(map[string]*docChange)
		b.docs[docType] = m
	}
	c, ok := m[docID]
	if !ok {
		c = &docChange{docType: docType, docID: docID}
		m[docID] = c
	}
	return c
}

// peekDocChange returns the pending change for one document without
// creating one, or nil if this batch hasn't touched it.
func (b *Batch) peekDocChange(docType, docID string) *docChange {
	m, ok := b.docs[docType]
	if !ok {
		return nil
	}
	return m[docID]
}

// recordAssocEdits appends adds/removes to this batch's pending edit log for
// name, consulted by AssociationItems/AssociationIntegerValues so in-batch
// readers see their own association.update calls (spec §4.3's
// associationNoteUpdated).
func (b *Batch) recordAssocEdits(name string, adds, removes []AssociationItem) {
	for _, a := range adds {
		b.assocEdits[name] = append(b.assocEdits[name], assocEdit{add: true, fromID: a.FromID, toID: a.ToID})
	}
	for _, r := range removes {
		b.assocEdits[name] = append(b.assocEdits[name], assocEdit{add: false, fromID: r.FromID, toID: r.ToID})
	}
}

// overlayAssociation applies this batch's pending edits for name atop a
// persisted item list, preserving first-seen order and collapsing
// duplicates the same way the backend's own pair set does.
func (b *Batch) overlayAssociation(name string, base []AssociationItem) []AssociationItem {
	edits := b.assocEdits[name]
	if len(edits) == 0 {
		return base
	}
	type pair struct{ from, to string }
	present := make(map[pair]bool, len(base)+len(edits))
	order := make([]pair, 0, len(base)+len(edits))
	for _, it := range base {
		p := pair{it.FromID, it.ToID}
		if !present[p] {
			order = append(order, p)
		}
		present[p] = true
	}
	for _, e := range edits {
		p := pair{e.fromID, e.toID}
		if e.add {
			if !present[p] {
				order = append(order, p)
			}
			present[p] = true
		} else {
			present[p] = false
		}
	}
	out := make([]AssociationItem, 0, len(order))
	for _, p := range order {
		if present[p] {
			out = append(out, AssociationItem{FromID: p.from, ToID: p.to})
		}
	}
	return out
}

// overlayFromSet applies this batch's pending edits for name, restricted to
// edits anchored at fromID, atop a persisted toID set. Used by
// AssociationIntegerValues once per anchor, before the per-anchor toID sets
// are merged into the union it sums over.
func (b *Batch) overlayFromSet(name, fromID string, persisted []string) []string {
	edits := b.assocEdits[name]
	if len(edits) == 0 {
		return persisted
	}
	present := make(map[string]bool, len(persisted)+len(edits))
	order := make([]string, 0, len(persisted)+len(edits))
	for _, t := range persisted {
		if !present[t] {
			order = append(order, t)
		}
		present[t] = true
	}
	for _, e := range edits {
		if e.fromID != fromID {
			continue
		}
		if e.add {
			if !present[e.toID] {
				order = append(order, e.toID)
			}
			present[e.toID] = true
		} else {
			present[e.toID] = false
		}
	}
	out := make([]string, 0, len(order))
	for _, t := range order {
		if present[t] {
			out = append(out, t)
		}
	}
	return out
}

// Batch runs proc with an active batch bound to ctx. Every Store mutation
// proc performs through that ctx is buffered rather than applied
// immediately. If proc returns nil, the batch commits atomically inside one
// backend.RunInTransaction and every buffered op runs in registration
// order; if proc returns an error, nothing it queued ever reaches the
// backend and that error is returned unchanged (Cancel purity, spec §8).
// Nested batches are rejected with ErrIllegalInBatch.
func (s *Store) Batch(ctx context.Context, proc func(ctx context.Context) error) error {
	if _, already := batchFromContext(ctx); already {
		return newErr(ErrorKindIllegalInBatch, "batch", nil)
	}

	b := newBatch(s)
	batchCtx := context.WithValue(ctx, batchCtxKey{}, b)

	if err := proc(batchCtx); err != nil {
		return err
	}
	return b.commit(ctx)
}

// commit returns without opening a transaction when the batch queued
// nothing (spec §8's commit idempotence: no revision bumps, no
// notifications).
func (b *Batch) commit(ctx context.Context) error {
	if len(b.ops) == 0 {
		return nil
	}

	s := b.store
	err := s.backend.RunInTransaction(ctx, func(txCtx context.Context) error {
		for _, op := range b.ops {
			if err := op(txCtx); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for docType, ids := range b.touched {
		docIDs := make([]string, 0, len(ids))
		for id := range ids {
			docIDs = append(docIDs, id)
		}
		s.notify(docType, docIDs)
	}
	return nil
}
