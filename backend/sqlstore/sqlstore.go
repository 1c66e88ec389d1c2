// Package sqlstore implements backend.Backend over database/sql, using the
// pure-Go github.com/ncruces/go-sqlite3 driver so the engine never needs
// cgo. It follows the lazy-table, fmt.Sprintf-interpolated-identifier style
// of the teacher's SQLAdapter: one pair of tables per document type,
// created on first use, plus fixed tables for info/internal key-value
// storage, associations, and derived structures.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/StevoGTA/Mini-Document-Storage-sub000/internal/core"
)

// Store is the durable realization of backend.Backend.
type Store struct {
	db  *sql.DB
	log interface {
		Debug(string, ...any)
	}

	tablesMu    sync.Mutex
	docTypes    map[string]bool
	namedTables map[string]bool
}

type txKey struct{}

// Open opens (creating if absent) a SQLite database at path and prepares
// the fixed schema. path is passed straight to sql.Open, so DSN query
// parameters ("file:demo.db?_pragma=...") are honored.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", path, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlstore: ping %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, `
		PRAGMA busy_timeout = 10000;
		PRAGMA journal_mode = WAL;
		PRAGMA foreign_keys = ON;
	`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlstore: pragmas: %w", err)
	}

	s := &Store{db: db, docTypes: make(map[string]bool), namedTables: make(map[string]bool)}
	if err := s.ensureFixedSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	core.Component("backend.sqlstore").Debug("closing sql backend")
	return s.db.Close()
}

// VariableBindingLimit reports SQLite's default SQLITE_MAX_VARIABLE_NUMBER
// ceiling with headroom for the engine's own per-row parameters.
func (s *Store) VariableBindingLimit() int { return 900 }

// chunkInt64 splits ids into slices no longer than VariableBindingLimit, so
// a single IN (...) clause never exceeds SQLite's bound-parameter ceiling.
func (s *Store) chunkInt64(ids []int64) [][]int64 {
	limit := s.VariableBindingLimit()
	if limit <= 0 || len(ids) <= limit {
		return [][]int64{ids}
	}
	chunks := make([][]int64, 0, (len(ids)+limit-1)/limit)
	for len(ids) > 0 {
		n := limit
		if n > len(ids) {
			n = len(ids)
		}
		chunks = append(chunks, ids[:n])
		ids = ids[n:]
	}
	return chunks
}

// execer is the subset of *sql.DB / *sql.Tx every query in this package
// needs; RunInTransaction swaps in a *sql.Tx via context so every other
// method works unchanged whether or not it is called from inside a batch
// commit.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) execer(ctx context.Context) execer {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return s.db
}

// RunInTransaction bounds a real SQLite transaction around fn. A
// RunInTransaction nested inside another reuses the outer transaction
// rather than starting a second one.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, already := ctx.Value(txKey{}).(*sql.Tx); already {
		return fn(ctx)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlstore: begin tx: %w", err)
	}
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlstore: commit: %w", err)
	}
	return nil
}

func (s *Store) ensureFixedSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS type_meta (doc_type TEXT PRIMARY KEY, revision_counter INTEGER NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS info_kv (key TEXT PRIMARY KEY, value TEXT NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS internal_kv (key TEXT PRIMARY KEY, value TEXT NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS assoc_meta (name TEXT PRIMARY KEY, from_type TEXT NOT NULL, to_type TEXT NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS cache_meta (name TEXT PRIMARY KEY, doc_type TEXT NOT NULL, version INTEGER NOT NULL, last_revision INTEGER NOT NULL, value_names TEXT NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS collection_meta (name TEXT PRIMARY KEY, doc_type TEXT NOT NULL, version INTEGER NOT NULL, last_revision INTEGER NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS index_meta (name TEXT PRIMARY KEY, doc_type TEXT NOT NULL, version INTEGER NOT NULL, last_revision INTEGER NOT NULL)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlstore: schema: %w", err)
		}
	}
	return nil
}

// sanitizeIdent restricts a caller-supplied name to characters safe to
// interpolate directly into a CREATE/SELECT statement as a table name.
// SQLite's driver has no table-name bind parameter, so this (plus the
// fixed "doc_"/"att_"/"assoc_"/"cache_"/"coll_"/"idx_" prefixes) is the
// engine's entire defense against identifier injection from document-type
// and structure names.
func sanitizeIdent(name string) string {
	out := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_':
			out = append(out, c)
		default:
			out = append(out, '_')
		}
	}
	if len(out) == 0 {
		return "_"
	}
	return string(out)
}

func docTable(docType string) string { return "doc_" + sanitizeIdent(docType) }
func attTable(docType string) string { return "att_" + sanitizeIdent(docType) }
func assocTable(name string) string  { return "assoc_" + sanitizeIdent(name) }
func cacheTable(name string) string  { return "cache_" + sanitizeIdent(name) }
func collTable(name string) string   { return "coll_" + sanitizeIdent(name) }
func idxTable(name string) string    { return "idx_" + sanitizeIdent(name) }

// ensureDocType lazily creates the per-type document and attachment tables.
func (s *Store) ensureDocType(ctx context.Context, docType string) error {
	s.tablesMu.Lock()
	defer s.tablesMu.Unlock()
	if s.docTypes[docType] {
		return nil
	}

	dt, at := docTable(docType), attTable(docType)
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			internal_id INTEGER PRIMARY KEY AUTOINCREMENT,
			doc_id TEXT NOT NULL UNIQUE,
			revision INTEGER NOT NULL,
			active INTEGER NOT NULL,
			creation_time INTEGER NOT NULL,
			modification_time INTEGER NOT NULL,
			properties TEXT NOT NULL
		)`, dt),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			doc_internal_id INTEGER NOT NULL,
			attachment_id TEXT NOT NULL,
			info TEXT NOT NULL,
			revision INTEGER NOT NULL,
			content BLOB,
			PRIMARY KEY (doc_internal_id, attachment_id)
		)`, at),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlstore: ensure doc type %s: %w", docType, err)
		}
	}
	s.docTypes[docType] = true
	return nil
}

// ensureNamedTable runs createStmt at most once per table name for this
// Store's lifetime.
func (s *Store) ensureNamedTable(ctx context.Context, table, createStmt string) error {
	s.tablesMu.Lock()
	defer s.tablesMu.Unlock()
	if s.namedTables[table] {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, createStmt); err != nil {
		return fmt.Errorf("sqlstore: ensure table %s: %w", table, err)
	}
	s.namedTables[table] = true
	return nil
}
