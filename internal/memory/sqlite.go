// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/deep-research/pkg/types"
)

// SQLitePersister keeps the snapshot in a SQLite database. Each save
// appends a row; Load returns the newest, and older rows beyond
// keepSnapshots are pruned.
type SQLitePersister struct {
	db *sql.DB
}

const keepSnapshots = 5

// NewSQLitePersister opens or creates the database at path.
func NewSQLitePersister(path string) (*SQLitePersister, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	p := &SQLitePersister{db: db}
	if err := p.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return p, nil
}

func (p *SQLitePersister) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS memory_snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			data TEXT NOT NULL,
			saved_at TEXT NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := p.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

func (p *SQLitePersister) Name() string { return string(types.MemorySQLite) }

// Save inserts data as the newest snapshot and prunes old ones in one transaction.
func (p *SQLitePersister) Save(ctx context.Context, data []byte) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO memory_snapshots (data, saved_at) VALUES (?, ?)`,
		string(data), time.Now().UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("inserting snapshot: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM memory_snapshots WHERE id NOT IN (
			SELECT id FROM memory_snapshots ORDER BY id DESC LIMIT ?
		)`, keepSnapshots,
	); err != nil {
		return fmt.Errorf("pruning snapshots: %w", err)
	}

	return tx.Commit()
}

func (p *SQLitePersister) Load(ctx context.Context) ([]byte, error) {
	var data string
	err := p.db.QueryRowContext(ctx,
		`SELECT data FROM memory_snapshots ORDER BY id DESC LIMIT 1`,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("loading snapshot: %w", err)
	}
	return []byte(data), nil
}

// Close releases the database connection.
func (p *SQLitePersister) Close() error {
	return p.db.Close()
}
