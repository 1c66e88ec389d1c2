package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/StevoGTA/Mini-Document-Storage-sub000/backend"
)

// --- Cache ---

func (s *Store) ensureCacheTable(ctx context.Context, name string) error {
	table := cacheTable(name)
	return s.ensureNamedTable(ctx, table, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		internal_id INTEGER PRIMARY KEY,
		values_json TEXT NOT NULL
	)`, table))
}

func (s *Store) CacheRegister(ctx context.Context, name, docType string, relevantProperties []string, valueInfos []backend.CacheValueInfo, version int) (uint64, error) {
	names := make([]string, len(valueInfos))
	for i, vi := range valueInfos {
		names[i] = vi.Name
	}
	namesJSON, err := json.Marshal(names)
	if err != nil {
		return 0, fmt.Errorf("sqlstore: marshal cache value names: %w", err)
	}

	var existingVersion int
	var lastRevision uint64
	row := s.execer(ctx).QueryRowContext(ctx,
		`SELECT version, last_revision FROM cache_meta WHERE name = ?`, name)
	switch err := row.Scan(&existingVersion, &lastRevision); err {
	case nil:
		if existingVersion == version {
			return lastRevision, nil
		}
	case sql.ErrNoRows:
		// fresh registration
	default:
		return 0, fmt.Errorf("sqlstore: cache lookup: %w", err)
	}

	if err := s.ensureCacheTable(ctx, name); err != nil {
		return 0, err
	}
	if _, err := s.execer(ctx).ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, cacheTable(name))); err != nil {
		return 0, fmt.Errorf("sqlstore: reset cache: %w", err)
	}
	_, err = s.execer(ctx).ExecContext(ctx, `
		INSERT INTO cache_meta (name, doc_type, version, last_revision, value_names) VALUES (?, ?, ?, 0, ?)
		ON CONFLICT(name) DO UPDATE SET doc_type = excluded.doc_type, version = excluded.version,
			last_revision = 0, value_names = excluded.value_names`,
		name, docType, version, string(namesJSON))
	if err != nil {
		return 0, fmt.Errorf("sqlstore: register cache: %w", err)
	}
	return 0, nil
}

func (s *Store) cacheValueNamesAndExists(ctx context.Context, name string) ([]string, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `SELECT value_names FROM cache_meta WHERE name = ?`, name)
	var namesJSON string
	if err := row.Scan(&namesJSON); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: %s", backend.ErrCacheNotFound, name)
		}
		return nil, fmt.Errorf("sqlstore: cache lookup: %w", err)
	}
	var names []string
	if err := json.Unmarshal([]byte(namesJSON), &names); err != nil {
		return nil, fmt.Errorf("sqlstore: unmarshal cache value names: %w", err)
	}
	return names, nil
}

func (s *Store) CacheUpdate(ctx context.Context, name string, rows map[int64]map[string]int64, removedIDs []int64, newLastRevision uint64) error {
	if _, err := s.cacheValueNamesAndExists(ctx, name); err != nil {
		return err
	}
	table := cacheTable(name)

	for id, row := range rows {
		valuesJSON, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("sqlstore: marshal cache row: %w", err)
		}
		_, err = s.execer(ctx).ExecContext(ctx, fmt.Sprintf(`
			INSERT INTO %s (internal_id, values_json) VALUES (?, ?)
			ON CONFLICT(internal_id) DO UPDATE SET values_json = excluded.values_json`, table),
			id, string(valuesJSON))
		if err != nil {
			return fmt.Errorf("sqlstore: update cache row: %w", err)
		}
	}
	for _, id := range removedIDs {
		if _, err := s.execer(ctx).ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE internal_id = ?`, table), id); err != nil {
			return fmt.Errorf("sqlstore: remove cache row: %w", err)
		}
	}
	if _, err := s.execer(ctx).ExecContext(ctx,
		`UPDATE cache_meta SET last_revision = MAX(last_revision, ?) WHERE name = ?`, newLastRevision, name); err != nil {
		return fmt.Errorf("sqlstore: bump cache revision: %w", err)
	}
	return nil
}

func (s *Store) CacheSumValues(ctx context.Context, name string, internalIDs []int64, valueNames []string) (map[string]int64, error) {
	known, err := s.cacheValueNamesAndExists(ctx, name)
	if err != nil {
		return nil, err
	}
	knownSet := make(map[string]bool, len(known))
	for _, n := range known {
		knownSet[n] = true
	}
	for _, n := range valueNames {
		if !knownSet[n] {
			return nil, fmt.Errorf("%w: %s", backend.ErrCacheValueNameUnknown, n)
		}
	}
	if len(internalIDs) == 0 {
		return map[string]int64{}, nil
	}

	sums := make(map[string]int64, len(valueNames))
	for _, chunk := range s.chunkInt64(internalIDs) {
		placeholders := make([]string, len(chunk))
		args := make([]any, len(chunk))
		for i, id := range chunk {
			placeholders[i] = "?"
			args[i] = id
		}
		query := fmt.Sprintf(`SELECT values_json FROM %s WHERE internal_id IN (%s)`, cacheTable(name), strings.Join(placeholders, ","))
		if err := func() error {
			rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
			if err != nil {
				return fmt.Errorf("sqlstore: cache sum: %w", err)
			}
			defer rows.Close()

			for rows.Next() {
				var valuesJSON string
				if err := rows.Scan(&valuesJSON); err != nil {
					return fmt.Errorf("sqlstore: scan cache row: %w", err)
				}
				var row map[string]int64
				if err := json.Unmarshal([]byte(valuesJSON), &row); err != nil {
					return fmt.Errorf("sqlstore: unmarshal cache row: %w", err)
				}
				for _, n := range valueNames {
					sums[n] += row[n]
				}
			}
			return rows.Err()
		}(); err != nil {
			return nil, err
		}
	}
	return sums, nil
}

func (s *Store) CacheValueNames(ctx context.Context, name string) ([]string, error) {
	return s.cacheValueNamesAndExists(ctx, name)
}

// --- Collection ---

func (s *Store) ensureCollTable(ctx context.Context, name string) error {
	table := collTable(name)
	return s.ensureNamedTable(ctx, table, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (internal_id INTEGER PRIMARY KEY)`, table))
}

func (s *Store) CollectionRegister(ctx context.Context, name, docType string, relevantProperties []string, version int) (uint64, error) {
	var existingVersion int
	var lastRevision uint64
	row := s.execer(ctx).QueryRowContext(ctx,
		`SELECT version, last_revision FROM collection_meta WHERE name = ?`, name)
	switch err := row.Scan(&existingVersion, &lastRevision); err {
	case nil:
		if existingVersion == version {
			return lastRevision, nil
		}
	case sql.ErrNoRows:
	default:
		return 0, fmt.Errorf("sqlstore: collection lookup: %w", err)
	}

	if err := s.ensureCollTable(ctx, name); err != nil {
		return 0, err
	}
	if _, err := s.execer(ctx).ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, collTable(name))); err != nil {
		return 0, fmt.Errorf("sqlstore: reset collection: %w", err)
	}
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO collection_meta (name, doc_type, version, last_revision) VALUES (?, ?, ?, 0)
		ON CONFLICT(name) DO UPDATE SET doc_type = excluded.doc_type, version = excluded.version, last_revision = 0`,
		name, docType, version)
	if err != nil {
		return 0, fmt.Errorf("sqlstore: register collection: %w", err)
	}
	return 0, nil
}

func (s *Store) collectionExists(ctx context.Context, name string) error {
	var one int
	err := s.execer(ctx).QueryRowContext(ctx, `SELECT 1 FROM collection_meta WHERE name = ?`, name).Scan(&one)
	if err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: %s", backend.ErrCollectionNotFound, name)
		}
		return fmt.Errorf("sqlstore: collection lookup: %w", err)
	}
	return nil
}

func (s *Store) CollectionUpdate(ctx context.Context, name string, included, notIncluded, removedIDs []int64, newLastRevision uint64) error {
	if err := s.collectionExists(ctx, name); err != nil {
		return err
	}
	table := collTable(name)
	for _, id := range included {
		if _, err := s.execer(ctx).ExecContext(ctx,
			fmt.Sprintf(`INSERT OR IGNORE INTO %s (internal_id) VALUES (?)`, table), id); err != nil {
			return fmt.Errorf("sqlstore: include in collection: %w", err)
		}
	}
	for _, id := range notIncluded {
		if _, err := s.execer(ctx).ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE internal_id = ?`, table), id); err != nil {
			return fmt.Errorf("sqlstore: exclude from collection: %w", err)
		}
	}
	for _, id := range removedIDs {
		if _, err := s.execer(ctx).ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE internal_id = ?`, table), id); err != nil {
			return fmt.Errorf("sqlstore: remove from collection: %w", err)
		}
	}
	if _, err := s.execer(ctx).ExecContext(ctx,
		`UPDATE collection_meta SET last_revision = MAX(last_revision, ?) WHERE name = ?`, newLastRevision, name); err != nil {
		return fmt.Errorf("sqlstore: bump collection revision: %w", err)
	}
	return nil
}

func (s *Store) CollectionCount(ctx context.Context, name string) (int, error) {
	if err := s.collectionExists(ctx, name); err != nil {
		return 0, err
	}
	var n int
	if err := s.execer(ctx).QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s`, collTable(name))).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlstore: collection count: %w", err)
	}
	return n, nil
}

func (s *Store) CollectionIDs(ctx context.Context, name string) ([]int64, error) {
	if err := s.collectionExists(ctx, name); err != nil {
		return nil, err
	}
	rows, err := s.execer(ctx).QueryContext(ctx, fmt.Sprintf(`SELECT internal_id FROM %s`, collTable(name)))
	if err != nil {
		return nil, fmt.Errorf("sqlstore: collection ids: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlstore: scan collection id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// --- Index ---

func (s *Store) ensureIdxTable(ctx context.Context, name string) error {
	table := idxTable(name)
	return s.ensureNamedTable(ctx, table, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		key TEXT PRIMARY KEY,
		internal_id INTEGER NOT NULL
	)`, table))
}

func (s *Store) IndexRegister(ctx context.Context, name, docType string, relevantProperties []string, version int) (uint64, error) {
	var existingVersion int
	var lastRevision uint64
	row := s.execer(ctx).QueryRowContext(ctx,
		`SELECT version, last_revision FROM index_meta WHERE name = ?`, name)
	switch err := row.Scan(&existingVersion, &lastRevision); err {
	case nil:
		if existingVersion == version {
			return lastRevision, nil
		}
	case sql.ErrNoRows:
	default:
		return 0, fmt.Errorf("sqlstore: index lookup: %w", err)
	}

	if err := s.ensureIdxTable(ctx, name); err != nil {
		return 0, err
	}
	if _, err := s.execer(ctx).ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, idxTable(name))); err != nil {
		return 0, fmt.Errorf("sqlstore: reset index: %w", err)
	}
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO index_meta (name, doc_type, version, last_revision) VALUES (?, ?, ?, 0)
		ON CONFLICT(name) DO UPDATE SET doc_type = excluded.doc_type, version = excluded.version, last_revision = 0`,
		name, docType, version)
	if err != nil {
		return 0, fmt.Errorf("sqlstore: register index: %w", err)
	}
	return 0, nil
}

func (s *Store) indexExists(ctx context.Context, name string) error {
	var one int
	err := s.execer(ctx).QueryRowContext(ctx, `SELECT 1 FROM index_meta WHERE name = ?`, name).Scan(&one)
	if err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: %s", backend.ErrIndexNotFound, name)
		}
		return fmt.Errorf("sqlstore: index lookup: %w", err)
	}
	return nil
}

func (s *Store) IndexUpdate(ctx context.Context, name string, removedIDs []int64, entries []backend.IndexEntry, newLastRevision uint64) error {
	if err := s.indexExists(ctx, name); err != nil {
		return err
	}
	table := idxTable(name)

	for _, chunk := range s.chunkInt64(removedIDs) {
		if len(chunk) == 0 {
			continue
		}
		placeholders := make([]string, len(chunk))
		args := make([]any, len(chunk))
		for i, id := range chunk {
			placeholders[i] = "?"
			args[i] = id
		}
		query := fmt.Sprintf(`DELETE FROM %s WHERE internal_id IN (%s)`, table, strings.Join(placeholders, ","))
		if _, err := s.execer(ctx).ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("sqlstore: clear index entries: %w", err)
		}
	}

	// Later entries win over earlier ones for the same key, matching the
	// in-memory backend's last-write-wins semantics.
	for _, e := range entries {
		_, err := s.execer(ctx).ExecContext(ctx, fmt.Sprintf(`
			INSERT INTO %s (key, internal_id) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET internal_id = excluded.internal_id`, table),
			e.Key, e.InternalID)
		if err != nil {
			return fmt.Errorf("sqlstore: index entry: %w", err)
		}
	}

	if _, err := s.execer(ctx).ExecContext(ctx,
		`UPDATE index_meta SET last_revision = MAX(last_revision, ?) WHERE name = ?`, newLastRevision, name); err != nil {
		return fmt.Errorf("sqlstore: bump index revision: %w", err)
	}
	return nil
}

func (s *Store) IndexLookup(ctx context.Context, name string, keys []string) (map[string]int64, error) {
	if err := s.indexExists(ctx, name); err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return map[string]int64{}, nil
	}

	table := idxTable(name)
	out := make(map[string]int64, len(keys))
	for _, k := range keys {
		var id int64
		err := s.execer(ctx).QueryRowContext(ctx,
			fmt.Sprintf(`SELECT internal_id FROM %s WHERE key = ?`, table), k).Scan(&id)
		if err != nil {
			if err == sql.ErrNoRows {
				continue
			}
			return nil, fmt.Errorf("sqlstore: index lookup: %w", err)
		}
		out[k] = id
	}
	return out, nil
}
