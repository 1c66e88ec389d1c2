package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/StevoGTA/Mini-Document-Storage-sub000/backend"
	"github.com/StevoGTA/Mini-Document-Storage-sub000/value"
)

var _ backend.Backend = (*Store)(nil)

func (s *Store) nextRevision(ctx context.Context, docType string) (uint64, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `
		INSERT INTO type_meta (doc_type, revision_counter) VALUES (?, 1)
		ON CONFLICT(doc_type) DO UPDATE SET revision_counter = revision_counter + 1
		RETURNING revision_counter`, docType)
	var rev uint64
	if err := row.Scan(&rev); err != nil {
		return 0, fmt.Errorf("sqlstore: next revision: %w", err)
	}
	return rev, nil
}

func (s *Store) DocumentCreate(ctx context.Context, docType, docID string, creationTime, modTime time.Time, props value.Dictionary) (*backend.DocumentInfo, error) {
	if err := s.ensureDocType(ctx, docType); err != nil {
		return nil, err
	}

	propsJSON, err := props.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("sqlstore: marshal properties: %w", err)
	}

	rev, err := s.nextRevision(ctx, docType)
	if err != nil {
		return nil, err
	}

	res, err := s.execer(ctx).ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (doc_id, revision, active, creation_time, modification_time, properties) VALUES (?, ?, 1, ?, ?, ?)`, docTable(docType)),
		docID, rev, creationTime.Unix(), modTime.Unix(), string(propsJSON))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", backend.ErrAlreadyExists, docID)
		}
		return nil, fmt.Errorf("sqlstore: create document: %w", err)
	}
	internalID, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("sqlstore: create document: %w", err)
	}

	return &backend.DocumentInfo{
		InternalID:       internalID,
		DocID:            docID,
		Type:             docType,
		Revision:         rev,
		Active:           true,
		CreationTime:     creationTime,
		ModificationTime: modTime,
		Properties:       cloneDict(props),
		Attachments:      map[string]backend.AttachmentInfo{},
	}, nil
}

func (s *Store) DocumentUpdate(ctx context.Context, docType, docID string, updated value.Dictionary, removed map[string]struct{}, modTime time.Time) (*backend.DocumentInfo, error) {
	if err := s.ensureDocType(ctx, docType); err != nil {
		return nil, err
	}

	info, err := s.documentByID(ctx, docType, docID)
	if err != nil {
		return nil, err
	}

	if info.Properties == nil {
		info.Properties = value.Dictionary{}
	}
	for k, v := range updated {
		info.Properties[k] = v
	}
	for k := range removed {
		delete(info.Properties, k)
	}

	rev, err := s.nextRevision(ctx, docType)
	if err != nil {
		return nil, err
	}

	propsJSON, err := info.Properties.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("sqlstore: marshal properties: %w", err)
	}

	_, err = s.execer(ctx).ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET revision = ?, modification_time = ?, properties = ? WHERE doc_id = ?`, docTable(docType)),
		rev, modTime.Unix(), string(propsJSON), docID)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: update document: %w", err)
	}

	info.Revision = rev
	info.ModificationTime = modTime
	return info, nil
}

func (s *Store) DocumentRemove(ctx context.Context, docType, docID string) (*backend.DocumentInfo, error) {
	if err := s.ensureDocType(ctx, docType); err != nil {
		return nil, err
	}

	info, err := s.documentByID(ctx, docType, docID)
	if err != nil {
		return nil, err
	}

	rev, err := s.nextRevision(ctx, docType)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()

	_, err = s.execer(ctx).ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET revision = ?, active = 0, modification_time = ? WHERE doc_id = ?`, docTable(docType)),
		rev, now.Unix(), docID)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: remove document: %w", err)
	}

	info.Revision = rev
	info.Active = false
	info.ModificationTime = now
	return info, nil
}

func (s *Store) DocumentGet(ctx context.Context, docType, docID string) (*backend.DocumentInfo, error) {
	if err := s.ensureDocType(ctx, docType); err != nil {
		return nil, err
	}
	return s.documentByID(ctx, docType, docID)
}

func (s *Store) documentByID(ctx context.Context, docType, docID string) (*backend.DocumentInfo, error) {
	row := s.execer(ctx).QueryRowContext(ctx,
		fmt.Sprintf(`SELECT internal_id, revision, active, creation_time, modification_time, properties FROM %s WHERE doc_id = ?`, docTable(docType)),
		docID)
	return scanDocument(row, docType, docID)
}

func scanDocument(row *sql.Row, docType, docID string) (*backend.DocumentInfo, error) {
	var (
		internalID                     int64
		revision                       uint64
		active                         int
		creationUnix, modificationUnix int64
		propsJSON                      string
	)
	if err := row.Scan(&internalID, &revision, &active, &creationUnix, &modificationUnix, &propsJSON); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: %s", backend.ErrNotFound, docID)
		}
		return nil, fmt.Errorf("sqlstore: scan document: %w", err)
	}

	var props value.Dictionary
	if err := props.UnmarshalJSON([]byte(propsJSON)); err != nil {
		return nil, fmt.Errorf("sqlstore: unmarshal properties: %w", err)
	}

	return &backend.DocumentInfo{
		InternalID:       internalID,
		DocID:            docID,
		Type:             docType,
		Revision:         revision,
		Active:           active != 0,
		CreationTime:     time.Unix(creationUnix, 0).UTC(),
		ModificationTime: time.Unix(modificationUnix, 0).UTC(),
		Properties:       props,
		Attachments:      map[string]backend.AttachmentInfo{},
	}, nil
}

func (s *Store) DocumentInternalID(ctx context.Context, docType, docID string) (int64, bool, error) {
	if err := s.ensureDocType(ctx, docType); err != nil {
		return 0, false, err
	}
	row := s.execer(ctx).QueryRowContext(ctx, fmt.Sprintf(`SELECT internal_id FROM %s WHERE doc_id = ?`, docTable(docType)), docID)
	var id int64
	if err := row.Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("sqlstore: internal id: %w", err)
	}
	return id, true, nil
}

func (s *Store) DocumentIterateByIDs(ctx context.Context, docType string, docIDs []string, proc func(*backend.DocumentInfo) error) error {
	if err := s.ensureDocType(ctx, docType); err != nil {
		return err
	}
	for _, id := range docIDs {
		info, err := s.documentByID(ctx, docType, id)
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return err
		}
		if err := proc(info); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) DocumentIterateSinceRevision(ctx context.Context, docType string, sinceRevision uint64, activeOnly bool, proc func(*backend.DocumentInfo) error) error {
	if err := s.ensureDocType(ctx, docType); err != nil {
		return err
	}

	query := fmt.Sprintf(`SELECT doc_id, internal_id, revision, active, creation_time, modification_time, properties FROM %s WHERE revision > ?`, docTable(docType))
	if activeOnly {
		query += ` AND active = 1`
	}
	rows, err := s.execer(ctx).QueryContext(ctx, query, sinceRevision)
	if err != nil {
		return fmt.Errorf("sqlstore: iterate: %w", err)
	}
	defer rows.Close()

	var batch []*backend.DocumentInfo
	for rows.Next() {
		var (
			docID                          string
			internalID                     int64
			revision                       uint64
			active                         int
			creationUnix, modificationUnix int64
			propsJSON                      string
		)
		if err := rows.Scan(&docID, &internalID, &revision, &active, &creationUnix, &modificationUnix, &propsJSON); err != nil {
			return fmt.Errorf("sqlstore: scan: %w", err)
		}
		var props value.Dictionary
		if err := props.UnmarshalJSON([]byte(propsJSON)); err != nil {
			return fmt.Errorf("sqlstore: unmarshal properties: %w", err)
		}
		batch = append(batch, &backend.DocumentInfo{
			InternalID:       internalID,
			DocID:            docID,
			Type:             docType,
			Revision:         revision,
			Active:           active != 0,
			CreationTime:     time.Unix(creationUnix, 0).UTC(),
			ModificationTime: time.Unix(modificationUnix, 0).UTC(),
			Properties:       props,
			Attachments:      map[string]backend.AttachmentInfo{},
		})
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("sqlstore: iterate rows: %w", err)
	}

	for _, info := range batch {
		if err := proc(info); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) DocumentCount(ctx context.Context, docType string, activeOnly bool) (int, error) {
	if err := s.ensureDocType(ctx, docType); err != nil {
		return 0, err
	}
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, docTable(docType))
	if activeOnly {
		query += ` WHERE active = 1`
	}
	var n int
	if err := s.execer(ctx).QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlstore: count: %w", err)
	}
	return n, nil
}

func (s *Store) DocumentByInternalIDs(ctx context.Context, docType string, internalIDs []int64) (map[int64]*backend.DocumentInfo, error) {
	if err := s.ensureDocType(ctx, docType); err != nil {
		return nil, err
	}
	out := make(map[int64]*backend.DocumentInfo, len(internalIDs))
	for _, id := range internalIDs {
		row := s.execer(ctx).QueryRowContext(ctx,
			fmt.Sprintf(`SELECT doc_id, revision, active, creation_time, modification_time, properties FROM %s WHERE internal_id = ?`, docTable(docType)),
			id)
		var (
			docID                          string
			revision                       uint64
			active                         int
			creationUnix, modificationUnix int64
			propsJSON                      string
		)
		if err := row.Scan(&docID, &revision, &active, &creationUnix, &modificationUnix, &propsJSON); err != nil {
			if err == sql.ErrNoRows {
				continue
			}
			return nil, fmt.Errorf("sqlstore: by internal id: %w", err)
		}
		var props value.Dictionary
		if err := props.UnmarshalJSON([]byte(propsJSON)); err != nil {
			return nil, fmt.Errorf("sqlstore: unmarshal properties: %w", err)
		}
		out[id] = &backend.DocumentInfo{
			InternalID:       id,
			DocID:            docID,
			Type:             docType,
			Revision:         revision,
			Active:           active != 0,
			CreationTime:     time.Unix(creationUnix, 0).UTC(),
			ModificationTime: time.Unix(modificationUnix, 0).UTC(),
			Properties:       props,
			Attachments:      map[string]backend.AttachmentInfo{},
		}
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

func isNotFound(err error) bool {
	return errors.Is(err, backend.ErrNotFound)
}

func isUniqueViolation(err error) bool {
	// ncruces/go-sqlite3 surfaces SQLite's result code text in Error(); a
	// UNIQUE constraint violation always contains this substring.
	return err != nil && strings.Contains(strings.ToUpper(err.Error()), "UNIQUE CONSTRAINT")
}
