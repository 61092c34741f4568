package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	// Import the SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/hrygo/voxcache/internal/profile"
	"github.com/hrygo/voxcache/store"
)

// SQLite keeps every document in one table. It suits single-node
// deployments; concurrent writers from several processes are not supported.

const schema = `CREATE TABLE IF NOT EXISTS cache_documents (
	key TEXT NOT NULL PRIMARY KEY,
	body BLOB NOT NULL,
	updated_ts INTEGER NOT NULL
)`

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens the database at profile.DSN and creates the document table.
func NewDB(ctx context.Context, profile *profile.Profile) (store.Driver, error) {
	// Ensure a DSN is set before attempting to open the database.
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	// Connect to the database with some sane settings:
	// - No shared-cache: it's obsolete; WAL journal mode is a better solution.
	// - Journal mode set to WAL: it's the recommended journal mode for most applications
	// as it prevents locking issues.
	//
	// Notes:
	// - When using the `modernc.org/sqlite` driver, each pragma must be prefixed with `_pragma=`.
	//
	// References:
	// - https://pkg.go.dev/modernc.org/sqlite#Driver.Open
	// - https://www.sqlite.org/pragma.html
	sqliteDB, err := sql.Open("sqlite", profile.DSN+"?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", profile.DSN)
	}

	// SQLite: single connection is optimal with WAL.
	sqliteDB.SetMaxOpenConns(1)
	sqliteDB.SetMaxIdleConns(1)
	sqliteDB.SetConnMaxLifetime(0)
	sqliteDB.SetConnMaxIdleTime(0)

	if _, err := sqliteDB.ExecContext(ctx, schema); err != nil {
		_ = sqliteDB.Close()
		return nil, errors.Wrap(err, "failed to create cache_documents table")
	}

	return &DB{db: sqliteDB, profile: profile}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) Read(ctx context.Context, key string) ([]byte, error) {
	var body []byte
	err := d.db.QueryRowContext(ctx, "SELECT body FROM cache_documents WHERE key = ?", key).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read document %s", key)
	}
	return body, nil
}

func (d *DB) Write(ctx context.Context, key string, data []byte) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO cache_documents (key, body, updated_ts) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET body = excluded.body, updated_ts = excluded.updated_ts`,
		key, data, time.Now().Unix())
	if err != nil {
		return errors.Wrapf(err, "failed to write document %s", key)
	}
	return nil
}

func (d *DB) Delete(ctx context.Context, key string) error {
	if _, err := d.db.ExecContext(ctx, "DELETE FROM cache_documents WHERE key = ?", key); err != nil {
		return errors.Wrapf(err, "failed to delete document %s", key)
	}
	return nil
}
