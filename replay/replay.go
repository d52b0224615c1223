// Package replay archives per-tick snapshots in SQLite so that two runs of
// the same program can be compared tick by tick.
package replay

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/chazu/qcvm/snapshot"
)

// ErrNotFound indicates the requested session or tick doesn't exist.
var ErrNotFound = errors.New("replay: not found")

var schema = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		id      TEXT PRIMARY KEY,
		program TEXT NOT NULL,
		started INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS snapshots (
		session TEXT NOT NULL REFERENCES sessions(id),
		tick    INTEGER NOT NULL,
		digest  INTEGER NOT NULL,
		data    BLOB NOT NULL,
		PRIMARY KEY (session, tick)
	)`,
}

// Archive is an open replay database.
type Archive struct {
	db *sql.DB
}

// Session describes one recorded run.
type Session struct {
	ID      uuid.UUID
	Program string
	Started time.Time
}

// TickDigest is the state digest recorded after a tick.
type TickDigest struct {
	Tick   int
	Digest uint64
}

// Divergence is the first tick at which two sessions differ. A tick recorded
// in only one session has a zero digest on the other side and Missing set.
type Divergence struct {
	Tick    int
	A, B    uint64
	Missing bool
}

// Open opens or creates the archive at path.
func Open(path string) (*Archive, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// ":memory:" databases are per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating tables: %w", err)
		}
	}
	return &Archive{db: db}, nil
}

// Close closes the database connection.
func (a *Archive) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// Begin starts a new session for the named program.
func (a *Archive) Begin(program string) (uuid.UUID, error) {
	id := uuid.New()
	_, err := a.db.Exec(
		"INSERT INTO sessions (id, program, started) VALUES (?, ?, ?)",
		id.String(), program, time.Now().UnixNano(),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("starting session: %w", err)
	}
	return id, nil
}

// Sessions lists recorded sessions, oldest first.
func (a *Archive) Sessions() ([]Session, error) {
	rows, err := a.db.Query("SELECT id, program, started FROM sessions ORDER BY started, id")
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var (
			id      string
			s       Session
			started int64
		)
		if err := rows.Scan(&id, &s.Program, &started); err != nil {
			return nil, fmt.Errorf("listing sessions: %w", err)
		}
		if s.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("session %q: %w", id, err)
		}
		s.Started = time.Unix(0, started)
		out = append(out, s)
	}
	return out, rows.Err()
}

// Record stores the snapshot taken after tick. Recording the same tick
// twice replaces the earlier snapshot.
func (a *Archive) Record(session uuid.UUID, tick int, s *snapshot.Snapshot) error {
	data, err := s.Marshal()
	if err != nil {
		return fmt.Errorf("encoding tick %d: %w", tick, err)
	}
	digest, err := s.Digest()
	if err != nil {
		return fmt.Errorf("hashing tick %d: %w", tick, err)
	}
	res, err := a.db.Exec(
		`INSERT OR REPLACE INTO snapshots (session, tick, digest, data)
		 SELECT id, ?, ?, ? FROM sessions WHERE id = ?`,
		tick, int64(digest), data, session.String(),
	)
	if err != nil {
		return fmt.Errorf("recording tick %d: %w", tick, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: session %s", ErrNotFound, session)
	}
	return nil
}

// Load returns the snapshot recorded after tick.
func (a *Archive) Load(session uuid.UUID, tick int) (*snapshot.Snapshot, error) {
	var data []byte
	err := a.db.QueryRow(
		"SELECT data FROM snapshots WHERE session = ? AND tick = ?",
		session.String(), tick,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: session %s tick %d", ErrNotFound, session, tick)
		}
		return nil, fmt.Errorf("loading tick %d: %w", tick, err)
	}
	return snapshot.Unmarshal(data)
}

// Digests returns the digests of a session in tick order.
func (a *Archive) Digests(session uuid.UUID) ([]TickDigest, error) {
	rows, err := a.db.Query(
		"SELECT tick, digest FROM snapshots WHERE session = ? ORDER BY tick",
		session.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("querying digests: %w", err)
	}
	defer rows.Close()

	var out []TickDigest
	for rows.Next() {
		var (
			td     TickDigest
			digest int64
		)
		if err := rows.Scan(&td.Tick, &digest); err != nil {
			return nil, fmt.Errorf("querying digests: %w", err)
		}
		td.Digest = uint64(digest)
		out = append(out, td)
	}
	return out, rows.Err()
}

// Compare walks two sessions in tick order and reports the first tick whose
// digests differ. The boolean is false when the sessions are identical.
func (a *Archive) Compare(x, y uuid.UUID) (Divergence, bool, error) {
	dx, err := a.Digests(x)
	if err != nil {
		return Divergence{}, false, err
	}
	dy, err := a.Digests(y)
	if err != nil {
		return Divergence{}, false, err
	}

	i, j := 0, 0
	for i < len(dx) && j < len(dy) {
		switch {
		case dx[i].Tick < dy[j].Tick:
			return Divergence{Tick: dx[i].Tick, A: dx[i].Digest, Missing: true}, true, nil
		case dx[i].Tick > dy[j].Tick:
			return Divergence{Tick: dy[j].Tick, B: dy[j].Digest, Missing: true}, true, nil
		case dx[i].Digest != dy[j].Digest:
			return Divergence{Tick: dx[i].Tick, A: dx[i].Digest, B: dy[j].Digest}, true, nil
		}
		i++
		j++
	}
	if i < len(dx) {
		return Divergence{Tick: dx[i].Tick, A: dx[i].Digest, Missing: true}, true, nil
	}
	if j < len(dy) {
		return Divergence{Tick: dy[j].Tick, B: dy[j].Digest, Missing: true}, true, nil
	}
	return Divergence{}, false, nil
}
