package mds

import (
	"context"

	"github.com/StevoGTA/Mini-Document-Storage-sub000/backend"
)

// derivedStructure is the uniform contract the update pipeline drives:
// Cache, Collection, and Index each implement it so the pipeline can fan
// out one UpdatesInfo to every structure registered on a document-type
// without knowing which kind it is (spec §4.8).
type derivedStructure interface {
	Name() string
	DocType() string
	applyUpdates(ctx context.Context, s *Store, info backend.UpdatesInfo) error
}

func toDocumentView(d *backend.DocumentInfo) DocumentView {
	return DocumentView{
		Type:             d.Type,
		ID:               d.DocID,
		Revision:         d.Revision,
		Active:           d.Active,
		CreationTime:     d.CreationTime.Unix(),
		ModificationTime: d.ModificationTime.Unix(),
		Properties:       d.Properties,
	}
}

// intersects reports whether an update is relevant to a derived structure
// registered with the given relevantProperties set. An unspecified
// changed-property-set (nil, e.g. a fresh create or a remove) and an empty
// relevantProperties set (no filter configured) both always count as
// relevant.
func intersects(changed backend.ChangedProperties, relevant map[string]struct{}) bool {
	if changed == nil || len(relevant) == 0 {
		return true
	}
	for p := range changed {
		if _, ok := relevant[p]; ok {
			return true
		}
	}
	return false
}

// runPipelineForType fans an UpdatesInfo out to every cache, collection,
// and index registered on docType, in registration order.
func (s *Store) runPipelineForType(ctx context.Context, docType string, info backend.UpdatesInfo) error {
	s.derivedMu.RLock()
	structs := append([]derivedStructure(nil), s.derivedByType[docType]...)
	s.derivedMu.RUnlock()

	for _, ds := range structs {
		if err := ds.applyUpdates(ctx, s, info); err != nil {
			return newErr(ErrorKindBackendIO, "pipeline.update", err)
		}
	}
	return nil
}

// rebuildOne feeds every document with revision > lastRevision (and every
// tombstoned document encountered along the way) through exactly one newly
// (re)registered derived structure. Used when a structure is new or its
// version has changed.
func (s *Store) rebuildOne(ctx context.Context, ds derivedStructure, lastRevision uint64) error {
	info := backend.UpdatesInfo{Type: ds.DocType()}
	err := s.backend.DocumentIterateSinceRevision(ctx, ds.DocType(), lastRevision, false, func(d *backend.DocumentInfo) error {
		if !d.Active {
			info.RemovedIDs = append(info.RemovedIDs, d.InternalID)
			return nil
		}
		info.Updates = append(info.Updates, backend.UpdateInfo{
			Document: d,
			Revision: d.Revision,
			Changed:  nil,
		})
		return nil
	})
	if err != nil {
		return newErr(ErrorKindBackendIO, "pipeline.rebuild", err)
	}
	if len(info.Updates) == 0 && len(info.RemovedIDs) == 0 {
		return nil
	}
	return ds.applyUpdates(ctx, s, info)
}
