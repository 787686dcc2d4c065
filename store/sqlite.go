// Package store persists training runs and their episode summaries in
// SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Config configures the SQLite store
type Config struct {
	Path            string        `mapstructure:"path"`
	InMemory        bool          `mapstructure:"in_memory"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// Store wraps a SQLite connection
type Store struct {
	db *sql.DB
}

// Run is a single training run
type Run struct {
	ID        string
	Name      string
	Config    string // JSON encoded run configuration
	StartedAt time.Time
}

// Episode is the summary of a single training episode of a run
type Episode struct {
	RunID       string
	Number      int
	Steps       int
	Trades      int
	Return      float64
	Profit      float64
	Exploration float64
	Loss        float64
	Duration    time.Duration
	CreatedAt   time.Time
}

// NewSQLite opens the SQLite database described by cfg and creates
// its tables if needed
func NewSQLite(cfg Config) (*Store, error) {
	dsn := cfg.Path
	if cfg.InMemory {
		dsn = ":memory:"

		// Every connection to an in-memory database opens a new,
		// empty database
		cfg.MaxOpenConns = 1
	} else {
		if err := ensureDir(filepath.Dir(cfg.Path)); err != nil {
			return nil, err
		}
	}

	conn, err := sql.Open("sqlite3",
		fmt.Sprintf("%s?_busy_timeout=5000&_foreign_keys=on", dsn))
	if err != nil {
		return nil, fmt.Errorf("store: could not open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		conn.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		conn.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if !cfg.InMemory {
		if _, err := conn.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("store: could not enable WAL mode: %w", err)
		}
	}
	if _, err := conn.Exec("PRAGMA synchronous=NORMAL;"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("store: could not set synchronous mode: %w", err)
	}

	s := &Store{db: conn}
	if err := s.initSchema(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	stmt := `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	config TEXT NOT NULL,
	started_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS episodes (
	run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	number INTEGER NOT NULL,
	steps INTEGER NOT NULL,
	trades INTEGER NOT NULL,
	episode_return REAL NOT NULL,
	profit REAL NOT NULL,
	exploration REAL NOT NULL,
	loss REAL NOT NULL,
	duration_ms INTEGER NOT NULL,
	created_at TEXT NOT NULL,
	PRIMARY KEY (run_id, number)
);
`
	if _, err := s.db.Exec(stmt); err != nil {
		return fmt.Errorf("store: could not create tables: %w", err)
	}
	return nil
}

// DB returns the underlying *sql.DB
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// CreateRun records a new run with the given name and configuration
// and returns its ID
func (s *Store) CreateRun(ctx context.Context, name string,
	cfg interface{}) (string, error) {
	payload, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("store: could not encode run configuration: %w",
			err)
	}

	id := uuid.New().String()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, name, config, started_at) VALUES (?, ?, ?, ?)`,
		id, name, string(payload), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("store: could not create run: %w", err)
	}
	return id, nil
}

// Run returns the run with the given ID
func (s *Store) Run(ctx context.Context, id string) (Run, error) {
	var (
		run     Run
		started string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, config, started_at FROM runs WHERE id = ?`, id,
	).Scan(&run.ID, &run.Name, &run.Config, &started)
	if err != nil {
		return Run{}, fmt.Errorf("store: could not read run %v: %w", id, err)
	}
	if run.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return Run{}, fmt.Errorf("store: invalid start time of run %v: %w",
			id, err)
	}
	return run, nil
}

// RecordEpisode records the summary of an episode. Recording the same
// episode of a run twice replaces the earlier summary.
func (s *Store) RecordEpisode(ctx context.Context, e Episode) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO episodes (run_id, number, steps, trades,
			episode_return, profit, exploration, loss, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, e.Number, e.Steps, e.Trades, e.Return, e.Profit,
		e.Exploration, e.Loss, e.Duration.Milliseconds(),
		e.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("store: could not record episode %v: %w", e.Number,
			err)
	}
	return nil
}

// Episodes returns the episode summaries of a run ordered by episode
// number
func (s *Store) Episodes(ctx context.Context, runID string) ([]Episode, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT number, steps, trades, episode_return, profit, exploration, loss,
			duration_ms, created_at
		FROM episodes WHERE run_id = ? ORDER BY number`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("store: could not query episodes: %w", err)
	}
	defer rows.Close()

	var episodes []Episode
	for rows.Next() {
		var (
			e        Episode
			duration int64
			created  string
		)
		if err := rows.Scan(&e.Number, &e.Steps, &e.Trades, &e.Return,
			&e.Profit, &e.Exploration, &e.Loss, &duration,
			&created); err != nil {
			return nil, fmt.Errorf("store: could not read episode: %w", err)
		}
		e.RunID = runID
		e.Duration = time.Duration(duration) * time.Millisecond
		if e.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("store: invalid episode time: %w", err)
		}
		episodes = append(episodes, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: could not read episodes: %w", err)
	}
	return episodes, nil
}

func ensureDir(path string) error {
	if path == "" || path == "." {
		return nil
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("store: could not create directory %q: %w", path, err)
	}
	return nil
}
