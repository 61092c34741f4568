package postgres

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	// Import the PostgreSQL driver.
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/hrygo/voxcache/internal/profile"
	"github.com/hrygo/voxcache/store"
)

const schema = `CREATE TABLE IF NOT EXISTS cache_documents (
	key TEXT NOT NULL PRIMARY KEY,
	body BYTEA NOT NULL,
	updated_ts BIGINT NOT NULL
)`

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB connects to profile.DSN and creates the document table.
func NewDB(ctx context.Context, profile *profile.Profile) (store.Driver, error) {
	if profile == nil {
		return nil, errors.New("profile is nil")
	}

	// Open the PostgreSQL connection
	db, err := sql.Open("postgres", profile.DSN)
	if err != nil {
		slog.Error("failed to open database", slog.String("error", err.Error()))
		return nil, errors.Wrap(err, "failed to open database")
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to create cache_documents table")
	}

	return &DB{db: db, profile: profile}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) Read(ctx context.Context, key string) ([]byte, error) {
	var body []byte
	err := d.db.QueryRowContext(ctx, "SELECT body FROM cache_documents WHERE key = $1", key).Scan(&body)
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
		INSERT INTO cache_documents (key, body, updated_ts) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET body = EXCLUDED.body, updated_ts = EXCLUDED.updated_ts`,
		key, data, time.Now().Unix())
	if err != nil {
		return errors.Wrapf(err, "failed to write document %s", key)
	}
	return nil
}

func (d *DB) Delete(ctx context.Context, key string) error {
	if _, err := d.db.ExecContext(ctx, "DELETE FROM cache_documents WHERE key = $1", key); err != nil {
		return errors.Wrapf(err, "failed to delete document %s", key)
	}
	return nil
}
