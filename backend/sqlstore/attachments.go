package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/StevoGTA/Mini-Document-Storage-sub000/backend"
)

func (s *Store) internalIDOrNotFound(ctx context.Context, docType, docID string) (int64, error) {
	id, ok, err := s.DocumentInternalID(ctx, docType, docID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w: %s", backend.ErrNotFound, docID)
	}
	return id, nil
}

func (s *Store) AttachmentCreate(ctx context.Context, docType, docID, attachmentID string, info map[string]string, content []byte) error {
	internalID, err := s.internalIDOrNotFound(ctx, docType, docID)
	if err != nil {
		return err
	}

	infoJSON, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("sqlstore: marshal attachment info: %w", err)
	}

	_, err = s.execer(ctx).ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (doc_internal_id, attachment_id, info, revision, content) VALUES (?, ?, ?, 1, ?)`, attTable(docType)),
		internalID, attachmentID, string(infoJSON), content)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: attachment %s", backend.ErrAlreadyExists, attachmentID)
		}
		return fmt.Errorf("sqlstore: create attachment: %w", err)
	}
	return nil
}

func (s *Store) AttachmentUpdate(ctx context.Context, docType, docID, attachmentID string, info map[string]string, content []byte) (int, error) {
	internalID, err := s.internalIDOrNotFound(ctx, docType, docID)
	if err != nil {
		return 0, err
	}

	infoJSON, err := json.Marshal(info)
	if err != nil {
		return 0, fmt.Errorf("sqlstore: marshal attachment info: %w", err)
	}

	row := s.execer(ctx).QueryRowContext(ctx,
		fmt.Sprintf(`UPDATE %s SET info = ?, content = ?, revision = revision + 1 WHERE doc_internal_id = ? AND attachment_id = ? RETURNING revision`, attTable(docType)),
		string(infoJSON), content, internalID, attachmentID)
	var revision int
	if err := row.Scan(&revision); err != nil {
		if err == sql.ErrNoRows {
			return 0, fmt.Errorf("%w: %s", backend.ErrAttachmentNotFound, attachmentID)
		}
		return 0, fmt.Errorf("sqlstore: update attachment: %w", err)
	}
	return revision, nil
}

func (s *Store) AttachmentRemove(ctx context.Context, docType, docID, attachmentID string) error {
	internalID, err := s.internalIDOrNotFound(ctx, docType, docID)
	if err != nil {
		return err
	}

	res, err := s.execer(ctx).ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE doc_internal_id = ? AND attachment_id = ?`, attTable(docType)),
		internalID, attachmentID)
	if err != nil {
		return fmt.Errorf("sqlstore: remove attachment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlstore: remove attachment: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", backend.ErrAttachmentNotFound, attachmentID)
	}
	return nil
}

func (s *Store) AttachmentInfoByID(ctx context.Context, docType, docID string) (map[string]backend.AttachmentInfo, error) {
	internalID, err := s.internalIDOrNotFound(ctx, docType, docID)
	if err != nil {
		return nil, err
	}

	rows, err := s.execer(ctx).QueryContext(ctx,
		fmt.Sprintf(`SELECT attachment_id, info, revision FROM %s WHERE doc_internal_id = ?`, attTable(docType)),
		internalID)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: attachment infos: %w", err)
	}
	defer rows.Close()

	out := make(map[string]backend.AttachmentInfo)
	for rows.Next() {
		var (
			id        string
			infoJSON  string
			revision  int
		)
		if err := rows.Scan(&id, &infoJSON, &revision); err != nil {
			return nil, fmt.Errorf("sqlstore: scan attachment: %w", err)
		}
		var info map[string]string
		if err := json.Unmarshal([]byte(infoJSON), &info); err != nil {
			return nil, fmt.Errorf("sqlstore: unmarshal attachment info: %w", err)
		}
		out[id] = backend.AttachmentInfo{ID: id, Revision: revision, Info: info}
	}
	return out, rows.Err()
}

func (s *Store) AttachmentContent(ctx context.Context, docType, docID, attachmentID string) ([]byte, error) {
	internalID, err := s.internalIDOrNotFound(ctx, docType, docID)
	if err != nil {
		return nil, err
	}

	row := s.execer(ctx).QueryRowContext(ctx,
		fmt.Sprintf(`SELECT content FROM %s WHERE doc_internal_id = ? AND attachment_id = ?`, attTable(docType)),
		internalID, attachmentID)
	var content []byte
	if err := row.Scan(&content); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: %s", backend.ErrAttachmentNotFound, attachmentID)
		}
		return nil, fmt.Errorf("sqlstore: attachment content: %w", err)
	}
	return content, nil
}
