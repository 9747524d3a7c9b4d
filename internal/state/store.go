// Package state persists deployment records in SQLite.
//
// Every deployment is stored as a JSON document alongside the indexed
// columns needed to list history and to find, per router, the configuration
// of the last successful deployment. That configuration is the baseline for
// drift detection.
//
// The driver is modernc.org/sqlite (pure Go, no CGO).
package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"grimm.is/fwplan/internal/configtree"
	"grimm.is/fwplan/internal/deploy"
)

// Common errors
var (
	ErrNotFound    = errors.New("deployment not found")
	ErrStoreClosed = errors.New("store is closed")
)

// Options configures the SQLite store.
type Options struct {
	Path    string // Database file path (":memory:" for in-memory)
	WALMode bool   // Enable WAL mode for better concurrency
}

// DefaultOptions returns sensible defaults.
func DefaultOptions(path string) Options {
	return Options{Path: path, WALMode: true}
}

// Store keeps deployment history.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

var (
	_ deploy.Store    = (*Store)(nil)
	_ deploy.Baseline = (*Store)(nil)
)

// Open opens or creates the database at opts.Path.
func Open(opts Options) (*Store, error) {
	memory := opts.Path == ":memory:"
	dsn := opts.Path
	if !memory {
		dsn = "file:" + opts.Path + "?_pragma=busy_timeout(5000)"
		if opts.WALMode {
			dsn += "&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if memory {
		// each connection would get its own empty database
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS deployments (
			id TEXT PRIMARY KEY,
			state TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			finished_at INTEGER,
			body BLOB NOT NULL
		);

		-- One row per router a deployment touches
		CREATE TABLE IF NOT EXISTS deployment_routers (
			deployment_id TEXT NOT NULL,
			router TEXT NOT NULL,
			PRIMARY KEY (deployment_id, router)
		);

		CREATE INDEX IF NOT EXISTS idx_deployments_created ON deployments(created_at);
		CREATE INDEX IF NOT EXISTS idx_deployments_state ON deployments(state, finished_at);
		CREATE INDEX IF NOT EXISTS idx_deployment_routers_router ON deployment_routers(router);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Ping checks that the database still answers.
func (s *Store) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// SaveDeployment inserts or replaces a deployment record.
func (s *Store) SaveDeployment(ctx context.Context, d *deploy.Deployment) error {
	body, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode deployment %s: %w", d.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO deployments (id, state, created_at, finished_at, body)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			finished_at = excluded.finished_at,
			body = excluded.body`,
		d.ID, string(d.State), d.CreatedAt.UnixNano(), nullTime(d.FinishedAt), body)
	if err != nil {
		return fmt.Errorf("save deployment %s: %w", d.ID, err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM deployment_routers WHERE deployment_id = ?", d.ID); err != nil {
		return err
	}
	for _, name := range d.Routers() {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO deployment_routers (deployment_id, router) VALUES (?, ?)", d.ID, name); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetDeployment loads a deployment by ID.
func (s *Store) GetDeployment(ctx context.Context, id string) (*deploy.Deployment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	var body []byte
	err := s.db.QueryRowContext(ctx, "SELECT body FROM deployments WHERE id = ?", id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return decode(body)
}

// ListOptions filters ListDeployments. Zero values match everything.
type ListOptions struct {
	Router string
	State  deploy.State
	Limit  int
}

// ListDeployments returns deployments, newest first.
func (s *Store) ListDeployments(ctx context.Context, opts ListOptions) ([]*deploy.Deployment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	var (
		where []string
		args  []any
	)
	if opts.Router != "" {
		where = append(where, "id IN (SELECT deployment_id FROM deployment_routers WHERE router = ?)")
		args = append(args, opts.Router)
	}
	if opts.State != "" {
		where = append(where, "state = ?")
		args = append(args, string(opts.State))
	}
	query := "SELECT body FROM deployments"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*deploy.Deployment
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		d, err := decode(body)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// LastSucceeded returns the planned configurations for routerName from the
// most recently finished successful deployment that included it. It returns
// nil when there is none.
func (s *Store) LastSucceeded(ctx context.Context, routerName string) ([]*configtree.ConfigTree, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	var body []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT d.body FROM deployments d
		JOIN deployment_routers r ON r.deployment_id = d.id
		WHERE r.router = ? AND d.state = ?
		ORDER BY d.finished_at DESC
		LIMIT 1`, routerName, string(deploy.StateSucceed)).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	d, err := decode(body)
	if err != nil {
		return nil, err
	}
	var trees []*configtree.ConfigTree
	for _, rc := range d.Configs {
		if rc.Router == routerName {
			trees = append(trees, rc.Config)
		}
	}
	return trees, nil
}

// Prune deletes finished deployments that ended before cutoff. The latest
// successful deployment of every router is kept as its drift baseline.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrStoreClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		DELETE FROM deployments
		WHERE state IN (?, ?)
		AND finished_at < ?
		AND id NOT IN (
			SELECT keep FROM (
				SELECT (
					SELECT d.id FROM deployments d
					JOIN deployment_routers r2 ON r2.deployment_id = d.id
					WHERE r2.router = r.router AND d.state = ?
					ORDER BY d.finished_at DESC
					LIMIT 1
				) AS keep
				FROM (SELECT DISTINCT router FROM deployment_routers) r
			)
			WHERE keep IS NOT NULL
		)`,
		string(deploy.StateFailed), string(deploy.StateSucceed), cutoff.UnixNano(), string(deploy.StateSucceed))
	if err != nil {
		return 0, fmt.Errorf("prune deployments: %w", err)
	}
	n, _ := res.RowsAffected()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM deployment_routers WHERE deployment_id NOT IN (SELECT id FROM deployments)"); err != nil {
		return 0, err
	}
	return n, tx.Commit()
}

func decode(body []byte) (*deploy.Deployment, error) {
	var d deploy.Deployment
	if err := json.Unmarshal(body, &d); err != nil {
		return nil, fmt.Errorf("decode deployment: %w", err)
	}
	return &d, nil
}

func nullTime(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}
