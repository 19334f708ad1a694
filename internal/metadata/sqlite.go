package metadata

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	stoxyerr "github.com/stoxy/stoxy/internal/errors"
	"github.com/stoxy/stoxy/internal/hierarchy"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

const (
	// timeFormat is the ISO 8601 format used for all timestamps in SQLite.
	timeFormat = "2006-01-02T15:04:05.000Z"
)

// entityColumns is the column list shared by every SELECT.
const entityColumns = `id, kind, name, parent_id, owner, metadata, mimetype, content_length, value, created_at`

// SQLiteStore implements hierarchy.Store using SQLite as the backing
// database. It provides durable, ACID-compliant hierarchy storage suitable
// for single-node deployments. All transactions share one connection, which
// makes them serializable.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLiteStore with the given DSN and initializes
// the database schema.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening SQLite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.initDB(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing SQLite database: %w", err)
	}
	return s, nil
}

// initDB applies PRAGMAs and creates the required tables and indexes.
// This is safe to call multiple times (idempotent via IF NOT EXISTS).
func (s *SQLiteStore) initDB() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("executing %q: %w", p, err)
		}
	}

	schema := `
		CREATE TABLE IF NOT EXISTS schema_version (
			version    INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS entities (
			seq            INTEGER PRIMARY KEY AUTOINCREMENT,
			id             TEXT NOT NULL UNIQUE,
			kind           TEXT NOT NULL,
			name           TEXT NOT NULL,
			parent_id      TEXT NOT NULL DEFAULT '',
			owner          TEXT NOT NULL DEFAULT '',
			metadata       TEXT NOT NULL DEFAULT '{}',
			mimetype       TEXT NOT NULL DEFAULT '',
			content_length INTEGER NOT NULL DEFAULT 0,
			value          TEXT NOT NULL DEFAULT '',
			created_at     TEXT NOT NULL,

			UNIQUE (parent_id, name)
		);

		CREATE INDEX IF NOT EXISTS idx_entities_parent ON entities(parent_id, seq);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}

	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO schema_version (version, applied_at) VALUES (1, ?)`,
		time.Now().UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting schema version: %w", err)
	}
	return nil
}

// Close closes the underlying SQLite database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Transact runs fn inside a database transaction, committing when fn returns
// nil and rolling back otherwise.
func (s *SQLiteStore) Transact(ctx context.Context, fn func(tx hierarchy.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&sqliteTx{ctx: ctx, tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

type sqliteTx struct {
	ctx context.Context
	tx  *sql.Tx
}

func (t *sqliteTx) Get(id string) (*hierarchy.Entity, error) {
	row := t.tx.QueryRowContext(t.ctx, `SELECT `+entityColumns+` FROM entities WHERE id = ?`, id)
	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, stoxyerr.ErrNotFound.WithMessage("no entity with ID %q", id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting entity %q: %w", id, err)
	}
	return e, nil
}

func (t *sqliteTx) Child(parentID, name string) (*hierarchy.Entity, error) {
	row := t.tx.QueryRowContext(t.ctx,
		`SELECT `+entityColumns+` FROM entities WHERE parent_id = ? AND name = ?`, parentID, name)
	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, stoxyerr.ErrNotFound.WithMessage("%q not found", name)
	}
	if err != nil {
		return nil, fmt.Errorf("getting child %q: %w", name, err)
	}
	return e, nil
}

func (t *sqliteTx) Children(parentID string) ([]*hierarchy.Entity, error) {
	rows, err := t.tx.QueryContext(t.ctx,
		`SELECT `+entityColumns+` FROM entities WHERE parent_id = ? ORDER BY seq`, parentID)
	if err != nil {
		return nil, fmt.Errorf("listing children of %q: %w", parentID, err)
	}
	defer rows.Close()

	var out []*hierarchy.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning child: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (t *sqliteTx) CountChildren(parentID string) (int, error) {
	var n int
	err := t.tx.QueryRowContext(t.ctx, `SELECT COUNT(*) FROM entities WHERE parent_id = ?`, parentID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting children of %q: %w", parentID, err)
	}
	return n, nil
}

func (t *sqliteTx) Insert(e *hierarchy.Entity) error {
	md, err := marshalMetadata(e.Metadata)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(t.ctx,
		`INSERT INTO entities (id, kind, name, parent_id, owner, metadata, mimetype, content_length, value, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Kind.String(), e.Name, e.ParentID, e.Owner, md,
		e.MimeType, e.ContentLength, e.Value, e.CreatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return stoxyerr.ErrNameConflict.WithMessage("%q already exists", e.Name)
		}
		return fmt.Errorf("inserting entity %q: %w", e.Name, err)
	}
	return nil
}

func (t *sqliteTx) Update(e *hierarchy.Entity) error {
	md, err := marshalMetadata(e.Metadata)
	if err != nil {
		return err
	}
	res, err := t.tx.ExecContext(t.ctx,
		`UPDATE entities SET name = ?, owner = ?, metadata = ?, mimetype = ?, content_length = ?
		 WHERE id = ?`,
		e.Name, e.Owner, md, e.MimeType, e.ContentLength, e.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return stoxyerr.ErrNameConflict.WithMessage("%q already exists", e.Name)
		}
		return fmt.Errorf("updating entity %q: %w", e.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return stoxyerr.ErrNotFound.WithMessage("no entity with ID %q", e.ID)
	}
	return nil
}

func (t *sqliteTx) SetValueIfEmpty(id, value string) (bool, error) {
	res, err := t.tx.ExecContext(t.ctx,
		`UPDATE entities SET value = ? WHERE id = ? AND value = ''`, value, id)
	if err != nil {
		return false, fmt.Errorf("assigning value of %q: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("assigning value of %q: %w", id, err)
	}
	if n == 1 {
		return true, nil
	}
	if _, err := t.Get(id); err != nil {
		return false, err
	}
	return false, nil
}

func (t *sqliteTx) Delete(id string) error {
	res, err := t.tx.ExecContext(t.ctx, `DELETE FROM entities WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting entity %q: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return stoxyerr.ErrNotFound.WithMessage("no entity with ID %q", id)
	}
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (*hierarchy.Entity, error) {
	var (
		e         hierarchy.Entity
		kind      string
		md        string
		createdAt string
	)
	err := row.Scan(&e.ID, &kind, &e.Name, &e.ParentID, &e.Owner, &md,
		&e.MimeType, &e.ContentLength, &e.Value, &createdAt)
	if err != nil {
		return nil, err
	}
	if e.Kind, err = hierarchy.ParseKind(kind); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(md), &e.Metadata); err != nil {
		return nil, fmt.Errorf("decoding metadata of %q: %w", e.ID, err)
	}
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	e.State = hierarchy.StateAttached
	return &e, nil
}

func marshalMetadata(md map[string]string) (string, error) {
	if len(md) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(md)
	if err != nil {
		return "", fmt.Errorf("marshaling metadata: %w", err)
	}
	return string(b), nil
}

func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "PRIMARY KEY")
}

var _ hierarchy.Store = (*SQLiteStore)(nil)
