// Package sqlite implements docstore.Store on top of SQLite.
//
// WHY SQLITE FOR A DOCUMENT STORE?
// SQLite is embedded (no server to run) and ships a full set of JSON
// functions. Each collection is a two-column table:
//
//	id  TEXT PRIMARY KEY   -- the document's ObjectID as 24 hex chars
//	doc TEXT               -- the whole document as JSON
//
// That gives us MongoDB-like behaviour (schema-free documents, equality
// filters on fields, unique indexes on a field) with a single file on disk,
// or ":memory:" in tests.
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// modernc.org/sqlite is a pure Go translation of SQLite. No CGo, so
// cross-compilation just works.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"regexp"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// Registers the "sqlite" database/sql driver.
	_ "modernc.org/sqlite"

	"github.com/sakif/cards/internal/docstore"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// identifier matches collection and field names we are willing to put into SQL text.
// Values always travel as bound parameters; names cannot, so they are checked instead.
var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// compile-time check that *DB implements docstore.Store
var _ docstore.Store = (*DB)(nil)

// DB wraps a sql.DB connection pool and hands out collections.
type DB struct {
	conn *sql.DB
}

// New opens a SQLite database. It does not create tables; call Migrate.
//
// dsn examples:
//   - "data/cards.db" → file-based database (persistent)
//   - ":memory:"      → in-memory database (tests; gone when closed)
func New(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// SQLite allows one writer at a time. A single pooled connection keeps
	// read-modify-write transactions from tripping over SQLITE_BUSY, and is
	// what makes ":memory:" work at all: every new connection to ":memory:"
	// would otherwise get its own empty database.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets readers (other processes, backups) keep going during a write.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	return &DB{conn: conn}, nil
}

// newWithConn wraps an existing pool. Used by tests that drive a sqlmock connection.
func newWithConn(conn *sql.DB) *DB {
	return &DB{conn: conn}
}

// Collection returns the collection backed by the table of the same name.
func (db *DB) Collection(name string) docstore.Collection {
	return &collection{conn: db.conn, table: name}
}

// Migrate applies the embedded schema migrations with golang-migrate.
//
// The migrations are compiled into the binary (go:embed), so the server
// never depends on a migrations directory being present next to it.
// Running Migrate on an up-to-date database is a no-op.
func (db *DB) Migrate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("sqlite: loading migrations: %w", err)
	}

	driver, err := migratesqlite.WithInstance(db.conn, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("sqlite: creating migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("sqlite: creating migrator: %w", err)
	}

	// Do not m.Close(): the database driver would close our shared *sql.DB.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return nil
}

// Close closes the connection pool.
func (db *DB) Close(_ context.Context) error {
	return db.conn.Close()
}
