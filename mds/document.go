package mds

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/StevoGTA/Mini-Document-Storage-sub000/backend"
	"github.com/StevoGTA/Mini-Document-Storage-sub000/blobcache"
	"github.com/StevoGTA/Mini-Document-Storage-sub000/value"
)

// CreateDocument creates a document of docType. An empty docID mints a new
// one (spec: caller-supplied ids are honored verbatim, omitted ids are
// engine-generated). Creating under an id that already exists is treated as
// an idempotent get: the existing document's id is returned and no error is
// raised, matching the original implementation's upsert-style create.
func (s *Store) CreateDocument(ctx context.Context, docType, docID string, props value.Dictionary) (string, error) {
	if docID == "" {
		docID = uuid.NewString()
	}

	if b, ok := batchFromContext(ctx); ok {
		b.touch(docType, docID)
		now := time.Now().UTC()
		c := b.docChangeFor(docType, docID)
		c.creating = true
		c.removed = false
		c.creationTime = now
		c.modTime = now
		c.initial = props
		b.queue(func(ctx context.Context) error {
			_, err := s.doCreate(ctx, docType, docID, props)
			return err
		})
		return docID, nil
	}

	var result string
	err := s.backend.RunInTransaction(ctx, func(ctx context.Context) error {
		info, err := s.doCreate(ctx, docType, docID, props)
		if err != nil {
			return err
		}
		result = info.DocID
		return nil
	})
	if err != nil {
		return "", err
	}
	s.notify(docType, []string{result})
	return result, nil
}

func (s *Store) doCreate(ctx context.Context, docType, docID string, props value.Dictionary) (*backend.DocumentInfo, error) {
	now := time.Now().UTC()
	info, err := s.backend.DocumentCreate(ctx, docType, docID, now, now, props)
	if err != nil {
		if errors.Is(err, backend.ErrAlreadyExists) {
			return s.backend.DocumentGet(ctx, docType, docID)
		}
		return nil, newErr(ErrorKindBackendIO, "document.create", err)
	}
	if err := s.runPipelineForType(ctx, docType, backend.UpdatesInfo{
		Type:    docType,
		Updates: []backend.UpdateInfo{{Document: info, Revision: info.Revision}},
	}); err != nil {
		return nil, err
	}
	return info, nil
}

// UpdateDocument merges updated into a document's properties and deletes
// removed. Either map/slice may be empty.
func (s *Store) UpdateDocument(ctx context.Context, docType, docID string, updated value.Dictionary, removed []string) error {
	removedSet := make(map[string]struct{}, len(removed))
	for _, k := range removed {
		removedSet[k] = struct{}{}
	}

	if b, ok := batchFromContext(ctx); ok {
		b.touch(docType, docID)
		c := b.docChangeFor(docType, docID)
		if c.updated == nil {
			c.updated = make(value.Dictionary, len(updated))
		}
		if c.removedProps == nil {
			c.removedProps = make(map[string]struct{}, len(removedSet))
		}
		for k, v := range updated {
			c.updated[k] = v
			delete(c.removedProps, k)
		}
		for k := range removedSet {
			delete(c.updated, k)
			c.removedProps[k] = struct{}{}
		}
		c.modTime = time.Now().UTC()
		b.queue(func(ctx context.Context) error {
			_, err := s.doUpdate(ctx, docType, docID, updated, removedSet)
			return err
		})
		return nil
	}

	err := s.backend.RunInTransaction(ctx, func(ctx context.Context) error {
		_, err := s.doUpdate(ctx, docType, docID, updated, removedSet)
		return err
	})
	if err != nil {
		return err
	}
	s.notify(docType, []string{docID})
	return nil
}

func (s *Store) doUpdate(ctx context.Context, docType, docID string, updated value.Dictionary, removed map[string]struct{}) (*backend.DocumentInfo, error) {
	info, err := s.backend.DocumentUpdate(ctx, docType, docID, updated, removed, time.Now().UTC())
	if err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			return nil, newErr(ErrorKindUnknownDocumentID, "document.update", err)
		}
		return nil, newErr(ErrorKindBackendIO, "document.update", err)
	}

	changed := make(backend.ChangedProperties, len(updated)+len(removed))
	for k := range updated {
		changed[k] = struct{}{}
	}
	for k := range removed {
		changed[k] = struct{}{}
	}
	if err := s.runPipelineForType(ctx, docType, backend.UpdatesInfo{
		Type:    docType,
		Updates: []backend.UpdateInfo{{Document: info, Revision: info.Revision, Changed: changed}},
	}); err != nil {
		return nil, err
	}
	return info, nil
}

// RemoveDocument tombstones a document: it stops appearing in default
// iteration and in every collection/cache/index, but its internal id and
// revision history remain (spec §3/§4.2).
func (s *Store) RemoveDocument(ctx context.Context, docType, docID string) error {
	if b, ok := batchFromContext(ctx); ok {
		b.touch(docType, docID)
		b.docChangeFor(docType, docID).removed = true
		b.queue(func(ctx context.Context) error {
			return s.doRemove(ctx, docType, docID)
		})
		return nil
	}

	err := s.backend.RunInTransaction(ctx, func(ctx context.Context) error {
		return s.doRemove(ctx, docType, docID)
	})
	if err != nil {
		return err
	}
	s.notify(docType, []string{docID})
	return nil
}

func (s *Store) doRemove(ctx context.Context, docType, docID string) error {
	info, err := s.backend.DocumentRemove(ctx, docType, docID)
	if err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			return newErr(ErrorKindUnknownDocumentID, "document.remove", err)
		}
		return newErr(ErrorKindBackendIO, "document.remove", err)
	}
	return s.runPipelineForType(ctx, docType, backend.UpdatesInfo{
		Type:       docType,
		RemovedIDs: []int64{info.InternalID},
	})
}

// GetDocument returns the current view of one document. Inactive
// (tombstoned) documents are still returned; callers that want active-only
// semantics should check DocumentView.Active.
//
// When ctx carries an active Batch, the returned view overlays that
// batch's own not-yet-committed create/update/remove for this document atop
// whatever the backend currently holds (spec §8: "reads in B reflect B's
// own writes"). A document created earlier in the same batch but not yet
// persisted is synthesized entirely from the batch's pending state.
func (s *Store) GetDocument(ctx context.Context, docType, docID string) (DocumentView, error) {
	var change *docChange
	if b, ok := batchFromContext(ctx); ok {
		change = b.peekDocChange(docType, docID)
	}

	info, err := s.backend.DocumentGet(ctx, docType, docID)
	if err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			if change != nil && change.creating && !change.removed {
				return change.synthesize(), nil
			}
			return DocumentView{}, newErr(ErrorKindUnknownDocumentID, "document.get", err)
		}
		return DocumentView{}, newErr(ErrorKindBackendIO, "document.get", err)
	}

	view := toDocumentView(info)
	if change != nil {
		view = change.applyTo(view)
	}
	return view, nil
}

// DocumentValue looks up a single property of one document.
func (s *Store) DocumentValue(ctx context.Context, docType, docID, property string) (value.Value, bool, error) {
	doc, err := s.GetDocument(ctx, docType, docID)
	if err != nil {
		return value.Value{}, false, err
	}
	v, ok := doc.Value(property)
	return v, ok, nil
}

// DocumentCount reports how many documents of docType exist, optionally
// excluding tombstoned ones.
func (s *Store) DocumentCount(ctx context.Context, docType string, activeOnly bool) (int, error) {
	n, err := s.backend.DocumentCount(ctx, docType, activeOnly)
	if err != nil {
		return 0, newErr(ErrorKindBackendIO, "document.count", err)
	}
	return n, nil
}

// DocumentIterate visits every document of docType, optionally since a
// given revision watermark and optionally excluding tombstoned documents,
// in the same incremental-scan style the update pipeline itself uses.
func (s *Store) DocumentIterate(ctx context.Context, docType string, sinceRevision uint64, activeOnly bool, proc func(DocumentView) error) error {
	err := s.backend.DocumentIterateSinceRevision(ctx, docType, sinceRevision, activeOnly, func(info *backend.DocumentInfo) error {
		return proc(toDocumentView(info))
	})
	if err != nil {
		return newErr(ErrorKindBackendIO, "document.iterate", err)
	}
	return nil
}

// AttachmentAdd stores a new attachment under docType/docID and returns its
// engine-generated id immediately, even when called inside an open batch
// where the actual backend write is deferred to commit (spec §4.3).
func (s *Store) AttachmentAdd(ctx context.Context, docType, docID string, info map[string]string, content []byte) (string, error) {
	attachmentID := uuid.NewString()

	if b, ok := batchFromContext(ctx); ok {
		b.touch(docType, docID)
		b.queue(func(ctx context.Context) error {
			return s.doAttachmentCreate(ctx, docType, docID, attachmentID, info, content)
		})
		return attachmentID, nil
	}

	if err := s.backend.RunInTransaction(ctx, func(ctx context.Context) error {
		return s.doAttachmentCreate(ctx, docType, docID, attachmentID, info, content)
	}); err != nil {
		return "", err
	}
	s.notify(docType, []string{docID})
	return attachmentID, nil
}

func (s *Store) doAttachmentCreate(ctx context.Context, docType, docID, attachmentID string, info map[string]string, content []byte) error {
	info, content, err := s.offloadToBlobs(ctx, docType, docID, attachmentID, info, content)
	if err != nil {
		return err
	}
	if err := s.backend.AttachmentCreate(ctx, docType, docID, attachmentID, info, content); err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			return newErr(ErrorKindUnknownDocumentID, "attachment.add", err)
		}
		return newErr(ErrorKindBackendIO, "attachment.add", err)
	}
	return nil
}

// offloadToBlobs moves content into the configured blobcache when it meets
// the configured threshold, returning an info map tagged with blobMarker
// and nil content for the backend to persist instead of the raw bytes.
func (s *Store) offloadToBlobs(ctx context.Context, docType, docID, attachmentID string, info map[string]string, content []byte) (map[string]string, []byte, error) {
	if s.blobs == nil || len(content) < s.blobThreshold {
		return info, content, nil
	}
	if err := s.blobs.Set(ctx, blobcache.Key(docType, docID, attachmentID), content, 0); err != nil {
		return nil, nil, newErr(ErrorKindBackendIO, "attachment.blob.set", err)
	}
	tagged := make(map[string]string, len(info)+1)
	for k, v := range info {
		tagged[k] = v
	}
	tagged[blobMarker] = "1"
	return tagged, nil, nil
}

// AttachmentUpdate replaces an attachment's info and content, returning its
// bumped revision.
func (s *Store) AttachmentUpdate(ctx context.Context, docType, docID, attachmentID string, info map[string]string, content []byte) (int, error) {
	if b, ok := batchFromContext(ctx); ok {
		b.touch(docType, docID)
		b.queue(func(ctx context.Context) error {
			_, err := s.doAttachmentUpdate(ctx, docType, docID, attachmentID, info, content)
			return err
		})
		return 0, nil
	}

	var revision int
	err := s.backend.RunInTransaction(ctx, func(ctx context.Context) error {
		r, err := s.doAttachmentUpdate(ctx, docType, docID, attachmentID, info, content)
		revision = r
		return err
	})
	if err != nil {
		return 0, err
	}
	s.notify(docType, []string{docID})
	return revision, nil
}

func (s *Store) doAttachmentUpdate(ctx context.Context, docType, docID, attachmentID string, info map[string]string, content []byte) (int, error) {
	info, content, offloadErr := s.offloadToBlobs(ctx, docType, docID, attachmentID, info, content)
	if offloadErr != nil {
		return 0, offloadErr
	}
	rev, err := s.backend.AttachmentUpdate(ctx, docType, docID, attachmentID, info, content)
	if err != nil {
		switch {
		case errors.Is(err, backend.ErrNotFound):
			return 0, newErr(ErrorKindUnknownDocumentID, "attachment.update", err)
		case errors.Is(err, backend.ErrAttachmentNotFound):
			return 0, newErr(ErrorKindUnknownAttachmentID, "attachment.update", err)
		default:
			return 0, newErr(ErrorKindBackendIO, "attachment.update", err)
		}
	}
	return rev, nil
}

// AttachmentRemove deletes an attachment outright (attachments have no
// tombstone state).
func (s *Store) AttachmentRemove(ctx context.Context, docType, docID, attachmentID string) error {
	if b, ok := batchFromContext(ctx); ok {
		b.touch(docType, docID)
		b.queue(func(ctx context.Context) error {
			return s.doAttachmentRemove(ctx, docType, docID, attachmentID)
		})
		return nil
	}

	err := s.backend.RunInTransaction(ctx, func(ctx context.Context) error {
		return s.doAttachmentRemove(ctx, docType, docID, attachmentID)
	})
	if err != nil {
		return err
	}
	s.notify(docType, []string{docID})
	return nil
}

func (s *Store) doAttachmentRemove(ctx context.Context, docType, docID, attachmentID string) error {
	err := s.backend.AttachmentRemove(ctx, docType, docID, attachmentID)
	if err != nil {
		switch {
		case errors.Is(err, backend.ErrNotFound):
			return newErr(ErrorKindUnknownDocumentID, "attachment.remove", err)
		case errors.Is(err, backend.ErrAttachmentNotFound):
			return newErr(ErrorKindUnknownAttachmentID, "attachment.remove", err)
		default:
			return newErr(ErrorKindBackendIO, "attachment.remove", err)
		}
	}
	if s.blobs != nil {
		_ = s.blobs.Delete(ctx, blobcache.Key(docType, docID, attachmentID))
	}
	return nil
}

// AttachmentInfos returns every attachment's metadata for one document.
func (s *Store) AttachmentInfos(ctx context.Context, docType, docID string) (map[string]backend.AttachmentInfo, error) {
	infos, err := s.backend.AttachmentInfoByID(ctx, docType, docID)
	if err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			return nil, newErr(ErrorKindUnknownDocumentID, "attachment.infos", err)
		}
		return nil, newErr(ErrorKindBackendIO, "attachment.infos", err)
	}
	return infos, nil
}

// AttachmentContent returns one attachment's raw bytes, fetching from the
// blobcache tier transparently when the attachment was offloaded there.
func (s *Store) AttachmentContent(ctx context.Context, docType, docID, attachmentID string) ([]byte, error) {
	if s.blobs != nil {
		infos, err := s.AttachmentInfos(ctx, docType, docID)
		if err != nil {
			return nil, err
		}
		info, ok := infos[attachmentID]
		if !ok {
			return nil, newErr(ErrorKindUnknownAttachmentID, "attachment.content", nil)
		}
		if info.Info[blobMarker] == "1" {
			content, err := s.blobs.Get(ctx, blobcache.Key(docType, docID, attachmentID))
			if err != nil {
				return nil, newErr(ErrorKindBackendIO, "attachment.blob.get", err)
			}
			return content, nil
		}
	}

	content, err := s.backend.AttachmentContent(ctx, docType, docID, attachmentID)
	if err != nil {
		switch {
		case errors.Is(err, backend.ErrNotFound):
			return nil, newErr(ErrorKindUnknownDocumentID, "attachment.content", err)
		case errors.Is(err, backend.ErrAttachmentNotFound):
			return nil, newErr(ErrorKindUnknownAttachmentID, "attachment.content", err)
		default:
			return nil, newErr(ErrorKindBackendIO, "attachment.content", err)
		}
	}
	return content, nil
}
