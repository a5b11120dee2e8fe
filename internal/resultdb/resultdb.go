// Package resultdb stores alignment runs, the documents they covered and
// every per-side result in a SQLite database.
package resultdb

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/dgallion1/standoffalign/internal/blocks"
	"github.com/dgallion1/standoffalign/internal/pipeline"
	"github.com/dgallion1/standoffalign/internal/resultdb/migrations"
)

// batchSize is the number of results written per transaction.
const batchSize = 1000

// timeFormat sorts lexically in time order.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// DB is a SQLite result database.
type DB struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the database at path and migrates it.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	d := &DB{db: db, path: path}
	if err := d.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return d, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// Path returns the database file path.
func (d *DB) Path() string {
	return d.path
}

// migrate runs all pending migrations.
func (d *DB) migrate(fsys embed.FS) error {
	_, err := d.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var current int
	if err := d.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// "001_initial.up.sql" -> 1
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= current {
			continue
		}
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		tx, err := d.db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %s: %w", name, err)
		}
	}
	return nil
}

// Run describes one alignment run.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time // zero while the run is open
	Source     string
	Target     string
	Input      string
	Policy     string
	Records    int
	Stats      *pipeline.Stats
}

// StartRun records a new run and returns a sink that stores its results.
func (d *DB) StartRun(ctx context.Context, run Run) (*RunSink, error) {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, source, target, input, policy) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt.UTC().Format(timeFormat), run.Source, run.Target, run.Input, run.Policy,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting run %s: %w", run.ID, err)
	}
	return &RunSink{db: d.db, runID: run.ID}, nil
}

// RecordDocuments stores URL, block count and fingerprint of every
// document of a store under the run.
func (d *DB) RecordDocuments(ctx context.Context, runID string, store *blocks.Store) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin documents: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO documents (run_id, side, url, blocks, fingerprint) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare documents: %w", err)
	}
	defer stmt.Close()

	for _, url := range store.URLs() {
		doc := store.Get(url)
		if _, err := stmt.ExecContext(ctx, runID, string(store.Side), url, doc.Len(), doc.Fingerprint()); err != nil {
			return fmt.Errorf("insert document %s: %w", url, err)
		}
	}
	return tx.Commit()
}

// Runs lists runs, newest first.
func (d *DB) Runs(ctx context.Context) ([]Run, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, started_at, COALESCE(finished_at, ''), source, target, input, policy, records, COALESCE(stats_json, '')
		FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			r                 Run
			started, finished string
			statsJSON         string
		)
		if err := rows.Scan(&r.ID, &started, &finished, &r.Source, &r.Target, &r.Input, &r.Policy, &r.Records, &statsJSON); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.StartedAt, _ = time.Parse(timeFormat, started)
		if finished != "" {
			r.FinishedAt, _ = time.Parse(timeFormat, finished)
		}
		if statsJSON != "" {
			var st pipeline.Stats
			if err := json.Unmarshal([]byte(statsJSON), &st); err != nil {
				return nil, fmt.Errorf("decoding stats of run %s: %w", r.ID, err)
			}
			r.Stats = &st
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Results returns the stored results of a run in emission order.
func (d *DB) Results(ctx context.Context, runID string) ([]pipeline.Result, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT line, side, url, sentence, status, block_index, block_offset, standoff, reason
		FROM results WHERE run_id = ?
		ORDER BY line, CASE side WHEN 'source' THEN 0 ELSE 1 END`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying results: %w", err)
	}
	defer rows.Close()

	var out []pipeline.Result
	for rows.Next() {
		var (
			r          pipeline.Result
			side, stat string
		)
		if err := rows.Scan(&r.Line, &side, &r.URL, &r.Sentence, &stat, &r.Block, &r.Offset, &r.Standoff, &r.Reason); err != nil {
			return nil, fmt.Errorf("scanning result: %w", err)
		}
		r.Side = blocks.Side(side)
		r.Status = pipeline.Status(stat)
		out = append(out, r)
	}
	return out, rows.Err()
}

// DocumentsByFingerprint returns the URLs of every stored document with
// the given fingerprint, useful to spot the same page under several URLs.
func (d *DB) DocumentsByFingerprint(ctx context.Context, fingerprint string) ([]string, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT DISTINCT url FROM documents WHERE fingerprint = ? ORDER BY url`, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		urls = append(urls, u)
	}
	return urls, rows.Err()
}
