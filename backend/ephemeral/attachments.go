package ephemeral

import (
	"context"
	"fmt"

	"github.com/StevoGTA/Mini-Document-Storage-sub000/backend"
)

func (s *Store) AttachmentCreate(ctx context.Context, docType, docID, attachmentID string, info map[string]string, content []byte) error {
	_, rec, ok := s.lookupRecord(docType, docID)
	if !ok {
		return fmt.Errorf("%w: %s", backend.ErrNotFound, docID)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.attachments == nil {
		rec.attachments = make(map[string]*attachmentRecord)
	}
	if _, exists := rec.attachments[attachmentID]; exists {
		return fmt.Errorf("%w: attachment %s", backend.ErrAlreadyExists, attachmentID)
	}
	rec.attachments[attachmentID] = &attachmentRecord{
		info:     cloneStringMap(info),
		revision: 1,
		content:  append([]byte(nil), content...),
	}
	return nil
}

func (s *Store) AttachmentUpdate(ctx context.Context, docType, docID, attachmentID string, info map[string]string, content []byte) (int, error) {
	_, rec, ok := s.lookupRecord(docType, docID)
	if !ok {
		return 0, fmt.Errorf("%w: %s", backend.ErrNotFound, docID)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	att, ok := rec.attachments[attachmentID]
	if !ok {
		return 0, fmt.Errorf("%w: %s", backend.ErrAttachmentNotFound, attachmentID)
	}
	att.revision++
	att.info = cloneStringMap(info)
	att.content = append([]byte(nil), content...)
	return att.revision, nil
}

func (s *Store) AttachmentRemove(ctx context.Context, docType, docID, attachmentID string) error {
	_, rec, ok := s.lookupRecord(docType, docID)
	if !ok {
		return fmt.Errorf("%w: %s", backend.ErrNotFound, docID)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if _, ok := rec.attachments[attachmentID]; !ok {
		return fmt.Errorf("%w: %s", backend.ErrAttachmentNotFound, attachmentID)
	}
	delete(rec.attachments, attachmentID)
	return nil
}

func (s *Store) AttachmentInfoByID(ctx context.Context, docType, docID string) (map[string]backend.AttachmentInfo, error) {
	_, rec, ok := s.lookupRecord(docType, docID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", backend.ErrNotFound, docID)
	}

	rec.mu.RLock()
	defer rec.mu.RUnlock()
	out := make(map[string]backend.AttachmentInfo, len(rec.attachments))
	for id, a := range rec.attachments {
		out[id] = backend.AttachmentInfo{ID: id, Revision: a.revision, Info: cloneStringMap(a.info)}
	}
	return out, nil
}

func (s *Store) AttachmentContent(ctx context.Context, docType, docID, attachmentID string) ([]byte, error) {
	_, rec, ok := s.lookupRecord(docType, docID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", backend.ErrNotFound, docID)
	}

	rec.mu.RLock()
	defer rec.mu.RUnlock()
	att, ok := rec.attachments[attachmentID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", backend.ErrAttachmentNotFound, attachmentID)
	}
	return append([]byte(nil), att.content...), nil
}

func cloneStringMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
