// Package sqlite persists the most recent topology snapshot per scope,
// so the engine can stale-serve across process restarts.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"topolens/internal/domain"
)

// Repository stores topology snapshots in SQLite.
type Repository struct {
	db *sql.DB
}

// New opens (and migrates) the snapshot database.
func New(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	repo := &Repository{db: db}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return repo, nil
}

func (r *Repository) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		scope TEXT PRIMARY KEY,
		data JSON NOT NULL,
		generated_at DATETIME NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := r.db.Exec(schema)
	return err
}

// Save upserts the snapshot for its scope.
func (r *Repository) Save(ctx context.Context, topo *domain.Topology) error {
	data, err := json.Marshal(topo)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO snapshots (scope, data, generated_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(scope) DO UPDATE SET
			data = excluded.data,
			generated_at = excluded.generated_at,
			updated_at = excluded.updated_at
	`, topo.Scope, string(data), topo.GeneratedAt.UTC(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Load returns the persisted snapshot for a scope, or (nil, nil) when
// none exists.
func (r *Repository) Load(ctx context.Context, scope string) (*domain.Topology, error) {
	var data string
	err := r.db.QueryRowContext(ctx,
		`SELECT data FROM snapshots WHERE scope = ?`, scope,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var topo domain.Topology
	if err := json.Unmarshal([]byte(data), &topo); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &topo, nil
}

// Scopes lists every scope with a persisted snapshot.
func (r *Repository) Scopes(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT scope FROM snapshots ORDER BY scope`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scopes []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		scopes = append(scopes, s)
	}
	return scopes, rows.Err()
}

// Close closes the database.
func (r *Repository) Close() error {
	return r.db.Close()
}
