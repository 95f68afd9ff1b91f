package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"logwarden/internal/feature"
	"logwarden/internal/types"

	_ "github.com/mattn/go-sqlite3"
)

// storeTime has a fixed width so that UTC values sort as text
const storeTime = "2006-01-02T15:04:05.000000000Z07:00"

// ErrRunNotFound is returned for an unknown run ID
var ErrRunNotFound = errors.New("run not found")

// Run is the stored summary of one detection run. Skipped is nil when the run
// did not parse the log itself.
type Run struct {
	ID          string    `json:"id"`
	StartedAt   time.Time `json:"started_at"`
	Input       string    `json:"input"`
	Records     int       `json:"records"`
	Skipped     *int      `json:"skipped,omitempty"`
	Events      int       `json:"events"`
	DistinctIPs int       `json:"distinct_ips"`
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var r Run
	var started string
	var skipped sql.NullInt64
	if err := row.Scan(&r.ID, &started, &r.Input, &r.Records, &skipped, &r.Events, &r.DistinctIPs); err != nil {
		return Run{}, err
	}
	r.StartedAt, _ = time.Parse(storeTime, started)
	if skipped.Valid {
		n := int(skipped.Int64)
		r.Skipped = &n
	}
	return r, nil
}

// TopAttacker represents an IP with its flagged event count
type TopAttacker struct {
	IP    string
	Count int
}

// Store keeps the history of runs in SQLite
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	started_at TEXT NOT NULL,
	input TEXT,
	records INTEGER,
	skipped INTEGER,
	events INTEGER,
	distinct_ips INTEGER
);
CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	ip TEXT,
	time TEXT,
	method TEXT,
	url TEXT,
	status INTEGER,
	size INTEGER,
	reason TEXT
);
CREATE INDEX IF NOT EXISTS idx_events_run ON events(run_id, id);
CREATE TABLE IF NOT EXISTS ip_profiles (
	run_id TEXT NOT NULL,
	ip TEXT NOT NULL,
	requests INTEGER,
	failed_logins INTEGER,
	distinct_paths TEXT,
	first_seen TEXT,
	last_seen TEXT,
	PRIMARY KEY (run_id, ip)
);`

// NewStore opens (creating if needed) the database at dbPath
func NewStore(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	if _, err = db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// SaveRun stores a run with its events and IP profiles in one transaction
func (s *Store) SaveRun(run Run, events []types.SuspiciousEvent, vectors []*feature.FeatureVector) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT OR REPLACE INTO runs (id, started_at, input, records, skipped, events, distinct_ips)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt.UTC().Format(storeTime), run.Input, run.Records, run.Skipped, run.Events, run.DistinctIPs)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	evtStmt, err := tx.Prepare(`
		INSERT INTO events (run_id, ip, time, method, url, status, size, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer evtStmt.Close()

	for _, e := range events {
		_, err = evtStmt.Exec(run.ID, e.IP, e.Time.Format(storeTime), e.Method, e.URL, e.Status, e.Size, e.Reason.String())
		if err != nil {
			return fmt.Errorf("failed to save event for %s: %w", e.IP, err)
		}
	}

	profStmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO ip_profiles
		(run_id, ip, requests, failed_logins, distinct_paths, first_seen, last_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer profStmt.Close()

	for _, v := range vectors {
		pathsJson, err := json.Marshal(v.DistinctPaths)
		if err != nil {
			return err
		}
		_, err = profStmt.Exec(
			run.ID,
			v.IP,
			v.Requests,
			v.FailedLogins,
			string(pathsJson),
			v.FirstSeen.Format(storeTime),
			v.LastSeen.Format(storeTime),
		)
		if err != nil {
			return fmt.Errorf("failed to save profile for %s: %w", v.IP, err)
		}
	}

	return tx.Commit()
}

// ListRuns returns the most recent runs first
func (s *Store) ListRuns(limit int) ([]Run, error) {
	rows, err := s.db.Query(`
		SELECT id, started_at, input, records, skipped, events, distinct_ips
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// LoadRun returns one run by ID
func (s *Store) LoadRun(id string) (Run, error) {
	row := s.db.QueryRow(`
		SELECT id, started_at, input, records, skipped, events, distinct_ips
		FROM runs
		WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return r, err
}

// LoadEvents returns the events of a run in the order they were detected
func (s *Store) LoadEvents(runID string) ([]types.SuspiciousEvent, error) {
	rows, err := s.db.Query(`
		SELECT ip, time, method, url, status, size, reason
		FROM events
		WHERE run_id = ?
		ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []types.SuspiciousEvent
	for rows.Next() {
		var e types.SuspiciousEvent
		var ts, reason string
		if err := rows.Scan(&e.IP, &ts, &e.Method, &e.URL, &e.Status, &e.Size, &reason); err != nil {
			return nil, err
		}
		if e.Time, err = time.Parse(storeTime, ts); err != nil {
			continue
		}
		r, ok := types.ParseReason(reason)
		if !ok {
			continue
		}
		e.Reason = r
		events = append(events, e)
	}
	return events, rows.Err()
}

// LoadProfiles returns the IP profiles stored with a run
func (s *Store) LoadProfiles(runID string) ([]*feature.FeatureVector, error) {
	rows, err := s.db.Query(`
		SELECT ip, requests, failed_logins, distinct_paths, first_seen, last_seen
		FROM ip_profiles
		WHERE run_id = ?
		ORDER BY requests DESC, ip`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var vectors []*feature.FeatureVector
	for rows.Next() {
		var v feature.FeatureVector
		var pathsJson, firstSeen, lastSeen string

		if err := rows.Scan(&v.IP, &v.Requests, &v.FailedLogins, &pathsJson, &firstSeen, &lastSeen); err != nil {
			return nil, err
		}

		v.FirstSeen, _ = time.Parse(storeTime, firstSeen)
		v.LastSeen, _ = time.Parse(storeTime, lastSeen)
		if err := json.Unmarshal([]byte(pathsJson), &v.DistinctPaths); err != nil {
			v.DistinctPaths = make(map[string]bool)
		}

		vectors = append(vectors, &v)
	}
	return vectors, rows.Err()
}

// TopAttackers returns the IPs with the most stored events across all runs
func (s *Store) TopAttackers(limit int) ([]TopAttacker, error) {
	rows, err := s.db.Query(`
		SELECT ip, COUNT(*) AS n
		FROM events
		GROUP BY ip
		ORDER BY n DESC, ip
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TopAttacker
	for rows.Next() {
		var ta TopAttacker
		if err := rows.Scan(&ta.IP, &ta.Count); err != nil {
			return nil, err
		}
		out = append(out, ta)
	}
	return out, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}
