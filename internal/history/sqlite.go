package history

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"git.home.luguber.info/inful/metadeploy/internal/foundation/errors"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db  *sql.DB
	mu  sync.RWMutex
	now func() time.Time
}

// NewSQLiteStore opens (or creates) the ledger at dbPath.
// Use ":memory:" for an in-memory database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
			return nil, errors.StorageError("create history directory").WithCause(err).WithContext("path", dbPath).Build()
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.StorageError("could not open history database").WithCause(err).WithContext("path", dbPath).Build()
	}
	// one connection: ":memory:" databases are per connection
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db, now: time.Now}
	if err := store.initialize(); err != nil {
		_ = db.Close() // Best effort cleanup on initialization error
		return nil, errors.StorageError("failed to initialize history schema").WithCause(err).Build()
	}
	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS deployments (
		job_ref TEXT PRIMARY KEY,
		build_id TEXT NOT NULL,
		state TEXT NOT NULL,
		test_level TEXT NOT NULL DEFAULT '',
		check_only INTEGER NOT NULL DEFAULT 0,
		previous_commit TEXT NOT NULL DEFAULT '',
		current_commit TEXT NOT NULL DEFAULT '',
		rollback_path TEXT NOT NULL DEFAULT '',
		coverage REAL NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_deployments_build_id ON deployments(build_id);
	CREATE INDEX IF NOT EXISTS idx_deployments_created_at ON deployments(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record inserts a submitted deployment.
func (s *SQLiteStore) Record(ctx context.Context, r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.State == "" {
		r.State = StateSubmitted
	}
	ts := s.now().UnixNano()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO deployments (job_ref, build_id, state, test_level, check_only, previous_commit, current_commit, rollback_path, coverage, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.JobRef, r.BuildID, string(r.State), r.TestLevel, r.CheckOnly, r.PreviousCommit, r.CurrentCommit, r.RollbackPath, r.Coverage, ts, ts,
	)
	if err != nil {
		return errors.StorageError("failed to record deployment").WithCause(err).WithContext("job_ref", r.JobRef).Build()
	}
	return nil
}

// Complete moves a deployment to a terminal state.
func (s *SQLiteStore) Complete(ctx context.Context, jobRef string, state State, coverage float64, rollbackPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE deployments SET state = ?, coverage = ?, rollback_path = CASE WHEN ? = '' THEN rollback_path ELSE ? END, updated_at = ?
		 WHERE job_ref = ?`,
		string(state), coverage, rollbackPath, rollbackPath, s.now().UnixNano(), jobRef,
	)
	if err != nil {
		return errors.StorageError("failed to update deployment").WithCause(err).WithContext("job_ref", jobRef).Build()
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, jobRef)
	}
	return nil
}

// Get returns the deployment for a job reference.
func (s *SQLiteStore) Get(ctx context.Context, jobRef string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, selectColumns+" WHERE job_ref = ?", jobRef)
	r, err := scanRecord(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, jobRef)
	}
	if err != nil {
		return nil, errors.StorageError("failed to read deployment").WithCause(err).WithContext("job_ref", jobRef).Build()
	}
	return r, nil
}

// Recent returns up to limit deployments, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, selectColumns+" ORDER BY created_at DESC, rowid DESC LIMIT ?", limit)
	if err != nil {
		return nil, errors.StorageError("failed to query deployments").WithCause(err).Build()
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan deployment: %w", err)
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

const selectColumns = `SELECT job_ref, build_id, state, test_level, check_only, previous_commit, current_commit, rollback_path, coverage, created_at, updated_at FROM deployments`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (*Record, error) {
	var r Record
	var state string
	var created, updated int64
	err := sc.Scan(&r.JobRef, &r.BuildID, &state, &r.TestLevel, &r.CheckOnly, &r.PreviousCommit, &r.CurrentCommit, &r.RollbackPath, &r.Coverage, &created, &updated)
	if err != nil {
		return nil, err
	}
	r.State = State(state)
	r.CreatedAt = time.Unix(0, created)
	r.UpdatedAt = time.Unix(0, updated)
	return &r, nil
}
