// Package history records VM collection cycles in a SQLite database.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/chazu/minigc/vm"
)

// ErrClosed is returned by operations on a closed Store.
var ErrClosed = errors.New("history: store closed")

// Cycle is one recorded collection.
type Cycle struct {
	VMID            uuid.UUID
	Cycle           uint64
	Trigger         string
	Roots           int
	Marked          int
	Swept           int
	Survivors       int
	ThresholdBefore int
	ThresholdAfter  int
	Duration        time.Duration
	Timestamp       time.Time
}

// Summary aggregates the cycles of one VM.
type Summary struct {
	Cycles        int
	TotalSwept    int
	MaxSurvivors  int
	TotalDuration time.Duration
}

// Store handles SQLite storage for collection cycles.
type Store struct {
	db   *sql.DB
	path string
	log  commonlog.Logger
	mu   sync.Mutex
}

// Open opens (creating if needed) the history database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: opening database: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: setting busy timeout: %w", err)
	}

	_, err = db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS cycles (
		vm_id            TEXT    NOT NULL,
		cycle            INTEGER NOT NULL,
		trigger_kind     TEXT    NOT NULL,
		roots            INTEGER NOT NULL,
		marked           INTEGER NOT NULL,
		swept            INTEGER NOT NULL,
		survivors        INTEGER NOT NULL,
		threshold_before INTEGER NOT NULL,
		threshold_after  INTEGER NOT NULL,
		duration_ns      INTEGER NOT NULL,
		ts_ns            INTEGER NOT NULL,
		PRIMARY KEY (vm_id, cycle)
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("history: creating table: %w", err)
	}

	return &Store{
		db:   db,
		path: path,
		log:  commonlog.GetLogger("minigc.history"),
	}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Record stores one cycle of the given VM.
func (s *Store) Record(ctx context.Context, vmID uuid.UUID, st *vm.CollectStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return ErrClosed
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO cycles
		(vm_id, cycle, trigger_kind, roots, marked, swept, survivors,
		 threshold_before, threshold_after, duration_ns, ts_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		vmID.String(), int64(st.Cycle), st.Trigger.String(), st.Roots, st.Marked,
		st.Swept, st.Survivors, st.ThresholdBefore, st.ThresholdAfter,
		int64(st.Duration), st.Timestamp.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("history: saving cycle %d: %w", st.Cycle, err)
	}
	return nil
}

// Attach records every future collection of v. Recording errors are logged;
// a collection never fails because the history store did.
func (s *Store) Attach(ctx context.Context, v *vm.VM) {
	id := v.ID()
	v.OnCollect(func(st *vm.CollectStats) {
		if err := s.Record(ctx, id, st); err != nil {
			s.log.Errorf("%s", err)
		}
	})
}

// Cycles returns the recorded cycles of a VM in cycle order.
func (s *Store) Cycles(ctx context.Context, vmID uuid.UUID) ([]Cycle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT cycle, trigger_kind, roots, marked, swept, survivors,
		        threshold_before, threshold_after, duration_ns, ts_ns
		 FROM cycles WHERE vm_id = ? ORDER BY cycle`, vmID.String())
	if err != nil {
		return nil, fmt.Errorf("history: querying cycles: %w", err)
	}
	defer rows.Close()

	var out []Cycle
	for rows.Next() {
		c := Cycle{VMID: vmID}
		var cycle, dur, ts int64
		if err := rows.Scan(&cycle, &c.Trigger, &c.Roots, &c.Marked, &c.Swept, &c.Survivors,
			&c.ThresholdBefore, &c.ThresholdAfter, &dur, &ts); err != nil {
			return nil, fmt.Errorf("history: scanning cycle: %w", err)
		}
		c.Cycle = uint64(cycle)
		c.Duration = time.Duration(dur)
		c.Timestamp = time.Unix(0, ts)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: reading cycles: %w", err)
	}
	return out, nil
}

// Summary aggregates the recorded cycles of a VM.
func (s *Store) Summary(ctx context.Context, vmID uuid.UUID) (Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return Summary{}, ErrClosed
	}

	var sum Summary
	var dur int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(swept), 0), COALESCE(MAX(survivors), 0),
		        COALESCE(SUM(duration_ns), 0)
		 FROM cycles WHERE vm_id = ?`, vmID.String(),
	).Scan(&sum.Cycles, &sum.TotalSwept, &sum.MaxSurvivors, &dur)
	if err != nil {
		return Summary{}, fmt.Errorf("history: summarizing cycles: %w", err)
	}
	sum.TotalDuration = time.Duration(dur)
	return sum, nil
}
