/*
Package sqlite provides a SQLite-backed production.Store.

PURPOSE:
  Default persistence for the tracker. One database file holds every
  production fact; the schema is created on New().

KEY TABLES:
  production_totals:  latest cumulative count per (part, shift, date)
  hourly_production:  one row per hour bucket, versioned for CAS updates
  plan_actual:        planned vs reported quantity per (part, shift, date)
  stop_times:         downtime events, replaced per shift
  rejections:         scrap events, replaced per shift
  oee:                computed OEE per (shift, date)
  corrections:        problem / corrective-action journal

ORDERING:
  Rows come back ordered by (date, shift, part, hour ordinal). The hour
  ordinal is computed in SQL so 00:00..07:00 follow 23:00.

OPTIMISTIC LOCKING:
  hourly_production carries a UNIQUE(part, shift, date, hour) index and a
  version column. A duplicate insert or a stale version both surface as
  production.ErrConcurrentModification.

CONCURRENCY:
  The pool is capped at one connection so ":memory:" databases survive
  and writers serialize at the driver. sync.RWMutex orders Go callers the
  same way the memory store does.

WAL MODE:
  File databases are opened with WAL (Write-Ahead Logging):
  - Readers don't block the writer
  - Better crash recovery

USAGE:
  s, err := sqlite.New("./data/oee.db")
  if err != nil {
      log.Fatal(err)
  }
  defer s.Close()

  rec := production.NewReconciler(s, resolver, catalog)

SEE ALSO:
  - production/store.go: interface definitions
  - production/store/memory.go: in-memory implementation for testing
  - store/mongo/mongo.go: MongoDB implementation
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/warp/oee-tracker/production"
	"github.com/warp/oee-tracker/shift"
)

// Store implements production.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ production.Store = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS production_totals (
		part_number TEXT NOT NULL,
		shift TEXT NOT NULL,
		date TEXT NOT NULL,
		count INTEGER NOT NULL,
		target INTEGER NOT NULL DEFAULT 0,
		last_updated TEXT NOT NULL,
		PRIMARY KEY (part_number, shift, date)
	);

	CREATE INDEX IF NOT EXISTS idx_production_totals_date_shift
		ON production_totals(date, shift);

	-- One row per hour bucket; the unique index backs insert-if-absent
	CREATE TABLE IF NOT EXISTS hourly_production (
		id TEXT PRIMARY KEY,
		part_number TEXT NOT NULL,
		shift TEXT NOT NULL,
		date TEXT NOT NULL,
		hour INTEGER NOT NULL,
		count INTEGER NOT NULL,
		cumulative_count INTEGER NOT NULL,
		last_reported_at TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_hourly_bucket
		ON hourly_production(part_number, shift, date, hour);
	CREATE INDEX IF NOT EXISTS idx_hourly_last_reported
		ON hourly_production(last_reported_at);

	CREATE TABLE IF NOT EXISTS plan_actual (
		part_number TEXT NOT NULL,
		shift TEXT NOT NULL,
		date TEXT NOT NULL,
		plan INTEGER NOT NULL DEFAULT 0,
		actual INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (part_number, shift, date)
	);

	CREATE TABLE IF NOT EXISTS stop_times (
		id TEXT PRIMARY KEY,
		shift TEXT NOT NULL,
		date TEXT NOT NULL,
		duration_minutes REAL NOT NULL,
		reason TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_stop_times_shift_date
		ON stop_times(date, shift);

	CREATE TABLE IF NOT EXISTS rejections (
		id TEXT PRIMARY KEY,
		shift TEXT NOT NULL,
		date TEXT NOT NULL,
		part_number TEXT NOT NULL,
		count INTEGER NOT NULL,
		reason TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_rejections_shift_date
		ON rejections(date, shift);

	CREATE TABLE IF NOT EXISTS oee (
		shift TEXT NOT NULL,
		date TEXT NOT NULL,
		availability REAL NOT NULL,
		performance REAL NOT NULL,
		quality REAL NOT NULL,
		oee REAL NOT NULL,
		total_count INTEGER NOT NULL,
		good_count INTEGER NOT NULL,
		rejected_count INTEGER NOT NULL,
		run_time_minutes REAL NOT NULL,
		computed_at TEXT NOT NULL,
		PRIMARY KEY (shift, date)
	);

	CREATE TABLE IF NOT EXISTS corrections (
		id TEXT PRIMARY KEY,
		date TEXT NOT NULL,
		problem TEXT NOT NULL,
		corrective_action TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_corrections_date
		ON corrections(date);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// STORE - locking wrappers around repo
// =============================================================================

func (s *Store) reader() *repo {
	return &repo{q: s.db}
}

// write runs fn in its own transaction.
func (s *Store) write(ctx context.Context, fn func(r *repo) error) error {
	return s.WithTx(ctx, func(r production.Repository) error { return fn(r.(*repo)) })
}

// WithTx executes fn within a database transaction. Reads through the
// Repository passed to fn see the transaction's own writes.
func (s *Store) WithTx(ctx context.Context, fn func(production.Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&repo{q: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

func (s *Store) ProductionTotals(ctx context.Context, f production.Filter) ([]production.ProductionTotal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reader().ProductionTotals(ctx, f)
}

func (s *Store) UpsertProductionTotal(ctx context.Context, t production.ProductionTotal) error {
	return s.write(ctx, func(r *repo) error { return r.UpsertProductionTotal(ctx, t) })
}

func (s *Store) HourlyDeltas(ctx context.Context, f production.Filter) ([]production.HourlyDelta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reader().HourlyDeltas(ctx, f)
}

func (s *Store) InsertHourlyDelta(ctx context.Context, h production.HourlyDelta) error {
	return s.write(ctx, func(r *repo) error { return r.InsertHourlyDelta(ctx, h) })
}

func (s *Store) UpdateHourlyDelta(ctx context.Context, h production.HourlyDelta, expected int) error {
	return s.write(ctx, func(r *repo) error { return r.UpdateHourlyDelta(ctx, h, expected) })
}

func (s *Store) PlanActuals(ctx context.Context, f production.Filter) ([]production.PlanActual, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reader().PlanActuals(ctx, f)
}

func (s *Store) RecordActual(ctx context.Context, p production.PlanActual) error {
	return s.write(ctx, func(r *repo) error { return r.RecordActual(ctx, p) })
}

func (s *Store) SetPlan(ctx context.Context, p production.PlanActual) error {
	return s.write(ctx, func(r *repo) error { return r.SetPlan(ctx, p) })
}

func (s *Store) Stoppages(ctx context.Context, f production.Filter) ([]production.StoppageEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reader().Stoppages(ctx, f)
}

func (s *Store) ReplaceStoppages(ctx context.Context, k production.ShiftKey, events []production.StoppageEvent) error {
	return s.write(ctx, func(r *repo) error { return r.ReplaceStoppages(ctx, k, events) })
}

func (s *Store) Rejections(ctx context.Context, f production.Filter) ([]production.RejectionEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reader().Rejections(ctx, f)
}

func (s *Store) ReplaceRejections(ctx context.Context, k production.ShiftKey, events []production.RejectionEvent) error {
	return s.write(ctx, func(r *repo) error { return r.ReplaceRejections(ctx, k, events) })
}

func (s *Store) OEERecords(ctx context.Context, f production.Filter) ([]production.OEERecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reader().OEERecords(ctx, f)
}

func (s *Store) UpsertOEE(ctx context.Context, rec production.OEERecord) error {
	return s.write(ctx, func(r *repo) error { return r.UpsertOEE(ctx, rec) })
}

func (s *Store) Corrections(ctx context.Context, f production.Filter) ([]production.Correction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reader().Corrections(ctx, f)
}

func (s *Store) InsertCorrection(ctx context.Context, c production.Correction) error {
	return s.write(ctx, func(r *repo) error { return r.InsertCorrection(ctx, c) })
}

// =============================================================================
// REPO - production.Repository over *sql.DB or *sql.Tx
// =============================================================================

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type repo struct {
	q querier
}

const hourOrdinal = "CASE WHEN hour < 8 THEN hour + 24 ELSE hour END"

// --- production totals ---

func (r *repo) ProductionTotals(ctx context.Context, f production.Filter) ([]production.ProductionTotal, error) {
	cond, args := where(f, true, true)
	query := `SELECT part_number, shift, date, count, target, last_updated
		FROM production_totals` + cond + orderBy(f, "date", "shift", "part_number")

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query production totals: %w", err)
	}
	defer rows.Close()

	var out []production.ProductionTotal
	for rows.Next() {
		var (
			t                production.ProductionTotal
			sh, date, update string
		)
		if err := rows.Scan(&t.PartNumber, &sh, &date, &t.Count, &t.Target, &update); err != nil {
			return nil, err
		}
		t.Shift = shift.Shift(sh)
		if t.Date, err = shift.ParseDate(date); err != nil {
			return nil, err
		}
		if t.LastUpdated, err = parseTime(update); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *repo) UpsertProductionTotal(ctx context.Context, t production.ProductionTotal) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO production_totals (part_number, shift, date, count, target, last_updated)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(part_number, shift, date) DO UPDATE SET
			count = excluded.count,
			target = excluded.target,
			last_updated = excluded.last_updated
	`, t.PartNumber, string(t.Shift), t.Date.String(), t.Count, t.Target, formatTime(t.LastUpdated))
	if err != nil {
		return fmt.Errorf("failed to upsert production total: %w", err)
	}
	return nil
}

// --- hourly production ---

func (r *repo) HourlyDeltas(ctx context.Context, f production.Filter) ([]production.HourlyDelta, error) {
	cond, args := where(f, true, true)
	query := `SELECT id, part_number, shift, date, hour, count, cumulative_count, last_reported_at, version
		FROM hourly_production` + cond + orderBy(f, "date", "shift", "part_number", hourOrdinal)

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query hourly production: %w", err)
	}
	defer rows.Close()

	var out []production.HourlyDelta
	for rows.Next() {
		var (
			h              production.HourlyDelta
			sh, date, last string
			hour           int
		)
		if err := rows.Scan(&h.ID, &h.PartNumber, &sh, &date, &hour, &h.Count, &h.CumulativeCount, &last, &h.Version); err != nil {
			return nil, err
		}
		h.Shift, h.Hour = shift.Shift(sh), shift.Hour(hour)
		if h.Date, err = shift.ParseDate(date); err != nil {
			return nil, err
		}
		if h.LastReportedAt, err = parseTime(last); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (r *repo) InsertHourlyDelta(ctx context.Context, h production.HourlyDelta) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO hourly_production
		(id, part_number, shift, date, hour, count, cumulative_count, last_reported_at, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, h.ID, h.PartNumber, string(h.Shift), h.Date.String(), int(h.Hour),
		h.Count, h.CumulativeCount, formatTime(h.LastReportedAt), h.Version)
	if err != nil {
		if isUniqueConstraintError(err) {
			return production.ErrConcurrentModification
		}
		return fmt.Errorf("failed to insert hourly production: %w", err)
	}
	return nil
}

func (r *repo) UpdateHourlyDelta(ctx context.Context, h production.HourlyDelta, expected int) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE hourly_production
		SET count = ?, cumulative_count = ?, last_reported_at = ?, version = ?
		WHERE part_number = ? AND shift = ? AND date = ? AND hour = ? AND version = ?
	`, h.Count, h.CumulativeCount, formatTime(h.LastReportedAt), expected+1,
		h.PartNumber, string(h.Shift), h.Date.String(), int(h.Hour), expected)
	if err != nil {
		return fmt.Errorf("failed to update hourly production: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	var exists int
	err = r.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM hourly_production
		WHERE part_number = ? AND shift = ? AND date = ? AND hour = ?
	`, h.PartNumber, string(h.Shift), h.Date.String(), int(h.Hour)).Scan(&exists)
	if err != nil {
		return err
	}
	if exists == 0 {
		return production.ErrNotFound
	}
	return production.ErrConcurrentModification
}

// --- plan vs actual ---

func (r *repo) PlanActuals(ctx context.Context, f production.Filter) ([]production.PlanActual, error) {
	cond, args := where(f, true, true)
	query := `SELECT part_number, shift, date, plan, actual, updated_at
		FROM plan_actual` + cond + orderBy(f, "date", "shift", "part_number")

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query plan actual: %w", err)
	}
	defer rows.Close()

	var out []production.PlanActual
	for rows.Next() {
		var (
			p                 production.PlanActual
			sh, date, updated string
		)
		if err := rows.Scan(&p.PartNumber, &sh, &date, &p.Plan, &p.Actual, &updated); err != nil {
			return nil, err
		}
		p.Shift = shift.Shift(sh)
		if p.Date, err = shift.ParseDate(date); err != nil {
			return nil, err
		}
		if p.UpdatedAt, err = parseTime(updated); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *repo) RecordActual(ctx context.Context, p production.PlanActual) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO plan_actual (part_number, shift, date, plan, actual, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(part_number, shift, date) DO UPDATE SET
			actual = excluded.actual,
			updated_at = excluded.updated_at
	`, p.PartNumber, string(p.Shift), p.Date.String(), p.Plan, p.Actual, formatTime(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to record actual: %w", err)
	}
	return nil
}

func (r *repo) SetPlan(ctx context.Context, p production.PlanActual) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO plan_actual (part_number, shift, date, plan, actual, updated_at)
		VALUES (?, ?, ?, ?, 0, ?)
		ON CONFLICT(part_number, shift, date) DO UPDATE SET
			plan = excluded.plan,
			updated_at = excluded.updated_at
	`, p.PartNumber, string(p.Shift), p.Date.String(), p.Plan, formatTime(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to set plan: %w", err)
	}
	return nil
}

// --- quality facts ---

func (r *repo) Stoppages(ctx context.Context, f production.Filter) ([]production.StoppageEvent, error) {
	cond, args := where(f, false, true)
	query := `SELECT id, shift, date, duration_minutes, reason
		FROM stop_times` + cond + orderBy(f, "date", "shift", "rowid")

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query stop times: %w", err)
	}
	defer rows.Close()

	var out []production.StoppageEvent
	for rows.Next() {
		var (
			e        production.StoppageEvent
			sh, date string
		)
		if err := rows.Scan(&e.ID, &sh, &date, &e.DurationMinutes, &e.Reason); err != nil {
			return nil, err
		}
		e.Shift = shift.Shift(sh)
		if e.Date, err = shift.ParseDate(date); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *repo) ReplaceStoppages(ctx context.Context, k production.ShiftKey, events []production.StoppageEvent) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM stop_times WHERE shift = ? AND date = ?`,
		string(k.Shift), k.Date.String()); err != nil {
		return fmt.Errorf("failed to clear stop times: %w", err)
	}
	for _, e := range events {
		_, err := r.q.ExecContext(ctx, `
			INSERT INTO stop_times (id, shift, date, duration_minutes, reason)
			VALUES (?, ?, ?, ?, ?)
		`, e.ID, string(k.Shift), k.Date.String(), e.DurationMinutes, e.Reason)
		if err != nil {
			return fmt.Errorf("failed to insert stop time: %w", err)
		}
	}
	return nil
}

func (r *repo) Rejections(ctx context.Context, f production.Filter) ([]production.RejectionEvent, error) {
	cond, args := where(f, true, true)
	query := `SELECT id, shift, date, part_number, count, reason
		FROM rejections` + cond + orderBy(f, "date", "shift", "part_number", "rowid")

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rejections: %w", err)
	}
	defer rows.Close()

	var out []production.RejectionEvent
	for rows.Next() {
		var (
			e        production.RejectionEvent
			sh, date string
		)
		if err := rows.Scan(&e.ID, &sh, &date, &e.PartNumber, &e.Count, &e.Reason); err != nil {
			return nil, err
		}
		e.Shift = shift.Shift(sh)
		if e.Date, err = shift.ParseDate(date); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *repo) ReplaceRejections(ctx context.Context, k production.ShiftKey, events []production.RejectionEvent) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM rejections WHERE shift = ? AND date = ?`,
		string(k.Shift), k.Date.String()); err != nil {
		return fmt.Errorf("failed to clear rejections: %w", err)
	}
	for _, e := range events {
		_, err := r.q.ExecContext(ctx, `
			INSERT INTO rejections (id, shift, date, part_number, count, reason)
			VALUES (?, ?, ?, ?, ?, ?)
		`, e.ID, string(k.Shift), k.Date.String(), e.PartNumber, e.Count, e.Reason)
		if err != nil {
			return fmt.Errorf("failed to insert rejection: %w", err)
		}
	}
	return nil
}

// --- oee ---

func (r *repo) OEERecords(ctx context.Context, f production.Filter) ([]production.OEERecord, error) {
	cond, args := where(f, false, true)
	query := `SELECT shift, date, availability, performance, quality, oee,
		       total_count, good_count, rejected_count, run_time_minutes, computed_at
		FROM oee` + cond + orderBy(f, "date", "shift")

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query oee: %w", err)
	}
	defer rows.Close()

	var out []production.OEERecord
	for rows.Next() {
		var (
			o                  production.OEERecord
			sh, date, computed string
		)
		if err := rows.Scan(&sh, &date, &o.Availability, &o.Performance, &o.Quality, &o.OEE,
			&o.TotalCount, &o.GoodCount, &o.RejectedCount, &o.RunTimeMinutes, &computed); err != nil {
			return nil, err
		}
		o.Shift = shift.Shift(sh)
		if o.Date, err = shift.ParseDate(date); err != nil {
			return nil, err
		}
		if o.ComputedAt, err = parseTime(computed); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *repo) UpsertOEE(ctx context.Context, o production.OEERecord) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO oee (shift, date, availability, performance, quality, oee,
		                 total_count, good_count, rejected_count, run_time_minutes, computed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(shift, date) DO UPDATE SET
			availability = excluded.availability,
			performance = excluded.performance,
			quality = excluded.quality,
			oee = excluded.oee,
			total_count = excluded.total_count,
			good_count = excluded.good_count,
			rejected_count = excluded.rejected_count,
			run_time_minutes = excluded.run_time_minutes,
			computed_at = excluded.computed_at
	`, string(o.Shift), o.Date.String(), o.Availability, o.Performance, o.Quality, o.OEE,
		o.TotalCount, o.GoodCount, o.RejectedCount, o.RunTimeMinutes, formatTime(o.ComputedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert oee: %w", err)
	}
	return nil
}

// --- corrections ---

func (r *repo) Corrections(ctx context.Context, f production.Filter) ([]production.Correction, error) {
	cond, args := where(f, false, false)
	query := `SELECT id, date, problem, corrective_action, created_at
		FROM corrections` + cond + orderBy(f, "date", "created_at")

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query corrections: %w", err)
	}
	defer rows.Close()

	var out []production.Correction
	for rows.Next() {
		var (
			c             production.Correction
			date, created string
		)
		if err := rows.Scan(&c.ID, &date, &c.Problem, &c.CorrectiveAction, &created); err != nil {
			return nil, err
		}
		if c.Date, err = shift.ParseDate(date); err != nil {
			return nil, err
		}
		if c.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *repo) InsertCorrection(ctx context.Context, c production.Correction) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO corrections (id, date, problem, corrective_action, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, c.ID, c.Date.String(), c.Problem, c.CorrectiveAction, formatTime(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert correction: %w", err)
	}
	return nil
}

// =============================================================================
// QUERY BUILDING
// =============================================================================

// where renders f as a WHERE clause. Tables without a part column ignore
// f.PartNumber; tables without a shift column match nothing when f.Shift
// is set.
func where(f production.Filter, hasPart, hasShift bool) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if hasPart && f.PartNumber != "" {
		conds = append(conds, "part_number = ?")
		args = append(args, f.PartNumber)
	}
	if f.Shift != shift.None {
		if !hasShift {
			return " WHERE 0 = 1", nil
		}
		conds = append(conds, "shift = ?")
		args = append(args, string(f.Shift))
	}
	if !f.From.IsZero() {
		conds = append(conds, "date >= ?")
		args = append(args, f.From.String())
	}
	if !f.To.IsZero() {
		conds = append(conds, "date <= ?")
		args = append(args, f.To.String())
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func orderBy(f production.Filter, cols ...string) string {
	dir := " ASC"
	if f.Desc {
		dir = " DESC"
	}
	var b strings.Builder
	b.WriteString(" ORDER BY ")
	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(c + dir)
	}
	if f.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", f.Limit)
	}
	return b.String()
}

// Helper functions

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func isUniqueConstraintError(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
			se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
