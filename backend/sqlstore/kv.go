package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
)

func (s *Store) getKV(ctx context.Context, table string, keys []string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		row := s.execer(ctx).QueryRowContext(ctx, fmt.Sprintf(`SELECT value FROM %s WHERE key = ?`, table), k)
		var v string
		if err := row.Scan(&v); err != nil {
			if err == sql.ErrNoRows {
				continue
			}
			return nil, fmt.Errorf("sqlstore: get %s: %w", table, err)
		}
		out[k] = v
	}
	return out, nil
}

func (s *Store) setKV(ctx context.Context, table string, kv map[string]string) error {
	for k, v := range kv {
		_, err := s.execer(ctx).ExecContext(ctx,
			fmt.Sprintf(`INSERT INTO %s (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`, table),
			k, v)
		if err != nil {
			return fmt.Errorf("sqlstore: set %s: %w", table, err)
		}
	}
	return nil
}

func (s *Store) removeKV(ctx context.Context, table string, keys []string) error {
	for _, k := range keys {
		if _, err := s.execer(ctx).ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE key = ?`, table), k); err != nil {
			return fmt.Errorf("sqlstore: remove %s: %w", table, err)
		}
	}
	return nil
}

func (s *Store) InfoGet(ctx context.Context, keys []string) (map[string]string, error) {
	return s.getKV(ctx, "info_kv", keys)
}

func (s *Store) InfoSet(ctx context.Context, kv map[string]string) error {
	return s.setKV(ctx, "info_kv", kv)
}

func (s *Store) InfoRemove(ctx context.Context, keys []string) error {
	return s.removeKV(ctx, "info_kv", keys)
}

func (s *Store) InternalGet(ctx context.Context, keys []string) (map[string]string, error) {
	return s.getKV(ctx, "internal_kv", keys)
}

func (s *Store) InternalSet(ctx context.Context, kv map[string]string) error {
	return s.setKV(ctx, "internal_kv", kv)
}

func (s *Store) InternalRemove(ctx context.Context, keys []string) error {
	return s.removeKV(ctx, "internal_kv", keys)
}
