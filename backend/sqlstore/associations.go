package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/StevoGTA/Mini-Document-Storage-sub000/backend"
)

func (s *Store) ensureAssocTable(ctx context.Context, name string) error {
	table := assocTable(name)
	return s.ensureNamedTable(ctx, table, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		from_id TEXT NOT NULL,
		to_id TEXT NOT NULL,
		PRIMARY KEY (from_id, to_id)
	)`, table))
}

func (s *Store) AssociationRegister(ctx context.Context, name, fromType, toType string) (string, string, error) {
	var existingFrom, existingTo string
	row := s.execer(ctx).QueryRowContext(ctx, `SELECT from_type, to_type FROM assoc_meta WHERE name = ?`, name)
	switch err := row.Scan(&existingFrom, &existingTo); err {
	case nil:
		return existingFrom, existingTo, nil
	case sql.ErrNoRows:
		// fall through to register
	default:
		return "", "", fmt.Errorf("sqlstore: association lookup: %w", err)
	}

	if err := s.ensureAssocTable(ctx, name); err != nil {
		return "", "", err
	}
	if _, err := s.execer(ctx).ExecContext(ctx,
		`INSERT INTO assoc_meta (name, from_type, to_type) VALUES (?, ?, ?)`, name, fromType, toType); err != nil {
		return "", "", fmt.Errorf("sqlstore: register association: %w", err)
	}
	return fromType, toType, nil
}

func (s *Store) assocExists(ctx context.Context, name string) error {
	row := s.execer(ctx).QueryRowContext(ctx, `SELECT 1 FROM assoc_meta WHERE name = ?`, name)
	var one int
	if err := row.Scan(&one); err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: %s", backend.ErrAssociationNotFound, name)
		}
		return fmt.Errorf("sqlstore: association lookup: %w", err)
	}
	return nil
}

func (s *Store) assocTypes(ctx context.Context, name string) (fromType, toType string, err error) {
	row := s.execer(ctx).QueryRowContext(ctx, `SELECT from_type, to_type FROM assoc_meta WHERE name = ?`, name)
	if err := row.Scan(&fromType, &toType); err != nil {
		if err == sql.ErrNoRows {
			return "", "", fmt.Errorf("%w: %s", backend.ErrAssociationNotFound, name)
		}
		return "", "", fmt.Errorf("sqlstore: association lookup: %w", err)
	}
	return fromType, toType, nil
}

func (s *Store) AssociationGet(ctx context.Context, name string) ([]backend.AssociationItem, error) {
	if err := s.assocExists(ctx, name); err != nil {
		return nil, err
	}
	rows, err := s.execer(ctx).QueryContext(ctx, fmt.Sprintf(`SELECT from_id, to_id FROM %s`, assocTable(name)))
	if err != nil {
		return nil, fmt.Errorf("sqlstore: association get: %w", err)
	}
	defer rows.Close()

	var out []backend.AssociationItem
	for rows.Next() {
		var item backend.AssociationItem
		if err := rows.Scan(&item.FromID, &item.ToID); err != nil {
			return nil, fmt.Errorf("sqlstore: scan association: %w", err)
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (s *Store) AssociationIterateFrom(ctx context.Context, name, docID string, proc func(toID string) error) error {
	if err := s.assocExists(ctx, name); err != nil {
		return err
	}
	rows, err := s.execer(ctx).QueryContext(ctx, fmt.Sprintf(`SELECT to_id FROM %s WHERE from_id = ?`, assocTable(name)), docID)
	if err != nil {
		return fmt.Errorf("sqlstore: association iterate from: %w", err)
	}
	var toIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("sqlstore: scan association: %w", err)
		}
		toIDs = append(toIDs, id)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return err
	}
	for _, id := range toIDs {
		if err := proc(id); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) AssociationIterateTo(ctx context.Context, name, docID string, proc func(fromID string) error) error {
	if err := s.assocExists(ctx, name); err != nil {
		return err
	}
	rows, err := s.execer(ctx).QueryContext(ctx, fmt.Sprintf(`SELECT from_id FROM %s WHERE to_id = ?`, assocTable(name)), docID)
	if err != nil {
		return fmt.Errorf("sqlstore: association iterate to: %w", err)
	}
	var fromIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("sqlstore: scan association: %w", err)
		}
		fromIDs = append(fromIDs, id)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return err
	}
	for _, id := range fromIDs {
		if err := proc(id); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) associationPage(ctx context.Context, name, column, anchorID string, startIndex, count int) (int, []string, error) {
	fromType, toType, err := s.assocTypes(ctx, name)
	if err != nil {
		return 0, nil, err
	}
	anchorType := fromType
	other := "to_id"
	if column == "to_id" {
		anchorType = toType
		other = "from_id"
	}
	if _, ok, err := s.DocumentInternalID(ctx, anchorType, anchorID); err != nil {
		return 0, nil, err
	} else if !ok {
		return 0, nil, fmt.Errorf("%w: %s", backend.ErrNotFound, anchorID)
	}

	var total int
	if err := s.execer(ctx).QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s = ?`, assocTable(name), column), anchorID).Scan(&total); err != nil {
		return 0, nil, fmt.Errorf("sqlstore: association count: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = ? ORDER BY rowid LIMIT -1 OFFSET ?`, other, assocTable(name), column)
	if count > 0 {
		query = fmt.Sprintf(`SELECT %s FROM %s WHERE %s = ? ORDER BY rowid LIMIT ? OFFSET ?`, other, assocTable(name), column)
	}

	var rows *sql.Rows
	if count > 0 {
		rows, err = s.execer(ctx).QueryContext(ctx, query, anchorID, count, startIndex)
	} else {
		rows, err = s.execer(ctx).QueryContext(ctx, query, anchorID, startIndex)
	}
	if err != nil {
		return 0, nil, fmt.Errorf("sqlstore: association page: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return 0, nil, fmt.Errorf("sqlstore: scan association page: %w", err)
		}
		ids = append(ids, id)
	}
	return total, ids, rows.Err()
}

func (s *Store) AssociationInfosFrom(ctx context.Context, name, anchorID string, startIndex, count int) (int, []string, error) {
	return s.associationPage(ctx, name, "from_id", anchorID, startIndex, count)
}

func (s *Store) AssociationInfosTo(ctx context.Context, name, anchorID string, startIndex, count int) (int, []string, error) {
	return s.associationPage(ctx, name, "to_id", anchorID, startIndex, count)
}

func (s *Store) AssociationUpdate(ctx context.Context, name string, updates []backend.AssociationUpdate) error {
	if err := s.assocExists(ctx, name); err != nil {
		return err
	}
	table := assocTable(name)
	for _, u := range updates {
		if u.Add {
			_, err := s.execer(ctx).ExecContext(ctx,
				fmt.Sprintf(`INSERT OR IGNORE INTO %s (from_id, to_id) VALUES (?, ?)`, table), u.FromID, u.ToID)
			if err != nil {
				return fmt.Errorf("sqlstore: association add: %w", err)
			}
		} else {
			_, err := s.execer(ctx).ExecContext(ctx,
				fmt.Sprintf(`DELETE FROM %s WHERE from_id = ? AND to_id = ?`, table), u.FromID, u.ToID)
			if err != nil {
				return fmt.Errorf("sqlstore: association remove: %w", err)
			}
		}
	}
	return nil
}
