/*
store.go - Persistence interface for production facts

PURPOSE:
  Defines the boundary between the tracking services and the database.
  Implementations exist for SQLite (default), MongoDB and memory.

KEY INTERFACES:
  Repository: typed reads and writes of every collection
  Store:      Repository plus transactions and lifecycle

ORDERING:
  List methods return rows ordered by (date, shift, part, hour ordinal)
  ascending, or descending when Filter.Desc is set. Hour ordinal places
  00..07 after 23 so shift-2 buckets sort in shift order.

OPTIMISTIC LOCKING:
  UpdateHourlyDelta succeeds only if the stored Version equals
  expectedVersion, and stores expectedVersion+1. InsertHourlyDelta fails
  with ErrConcurrentModification if the bucket already exists. Both let the
  reconciler detect a lost read-modify-write race.

REPLACE-SET:
  ReplaceStoppages / ReplaceRejections delete every row of the shift and
  insert the new set. Call them inside WithTx together with UpsertOEE.

IMPLEMENTATIONS:
  - production/store/memory.go: in-memory, snapshot rollback
  - store/sqlite/sqlite.go:     database/sql + go-sqlite3
  - store/mongo/mongo.go:       mongo-driver v2 collections

SEE ALSO:
  - reconciler.go, quality.go: the writers
  - reports.go: the readers
*/
package production

import (
	"context"
	"sort"

	"github.com/warp/oee-tracker/shift"
)

// =============================================================================
// FILTER
// =============================================================================

// Filter narrows list queries. Zero fields match everything.
type Filter struct {
	PartNumber string
	Shift      shift.Shift
	From       shift.Date // inclusive
	To         shift.Date // inclusive
	Desc       bool
	Limit      int
}

// ForShift matches one shift occurrence.
func ForShift(s shift.Shift, d shift.Date) Filter {
	return Filter{Shift: s, From: d, To: d}
}

// ForPart matches one part in one shift occurrence.
func ForPart(k PartShiftKey) Filter {
	return Filter{PartNumber: k.PartNumber, Shift: k.Shift, From: k.Date, To: k.Date}
}

// Between matches a date range.
func Between(from, to shift.Date) Filter {
	return Filter{From: from, To: to}
}

// Matches reports whether a row with the given coordinates passes f.
// An empty part argument means the row has no part dimension.
func (f Filter) Matches(part string, s shift.Shift, d shift.Date) bool {
	if f.PartNumber != "" && part != "" && part != f.PartNumber {
		return false
	}
	if f.Shift != shift.None && s != f.Shift {
		return false
	}
	return d.Within(f.From, f.To)
}

// =============================================================================
// REPOSITORY
// =============================================================================

type Repository interface {
	ProductionTotals(ctx context.Context, f Filter) ([]ProductionTotal, error)
	UpsertProductionTotal(ctx context.Context, t ProductionTotal) error

	HourlyDeltas(ctx context.Context, f Filter) ([]HourlyDelta, error)
	InsertHourlyDelta(ctx context.Context, h HourlyDelta) error
	UpdateHourlyDelta(ctx context.Context, h HourlyDelta, expectedVersion int) error

	PlanActuals(ctx context.Context, f Filter) ([]PlanActual, error)
	// RecordActual sets Actual; Plan is written only when the row is new.
	RecordActual(ctx context.Context, p PlanActual) error
	// SetPlan sets Plan; Actual is left alone (zero when the row is new).
	SetPlan(ctx context.Context, p PlanActual) error

	Stoppages(ctx context.Context, f Filter) ([]StoppageEvent, error)
	ReplaceStoppages(ctx context.Context, k ShiftKey, events []StoppageEvent) error
	Rejections(ctx context.Context, f Filter) ([]RejectionEvent, error)
	ReplaceRejections(ctx context.Context, k ShiftKey, events []RejectionEvent) error

	OEERecords(ctx context.Context, f Filter) ([]OEERecord, error)
	UpsertOEE(ctx context.Context, r OEERecord) error

	Corrections(ctx context.Context, f Filter) ([]Correction, error)
	InsertCorrection(ctx context.Context, c Correction) error
}

// Store wraps Repository with transaction support.
type Store interface {
	Repository

	// WithTx executes fn within a transaction.
	// If fn returns error, the transaction is rolled back.
	WithTx(ctx context.Context, fn func(Repository) error) error

	Close() error
}

// =============================================================================
// ORDERING HELPERS - shared by stores that sort in Go
// =============================================================================

type rowKey struct {
	date  shift.Date
	shift shift.Shift
	part  string
	hour  int
}

func lessKey(a, b rowKey) bool {
	if c := a.date.Compare(b.date); c != 0 {
		return c < 0
	}
	if a.shift != b.shift {
		return a.shift < b.shift
	}
	if a.part != b.part {
		return a.part < b.part
	}
	return a.hour < b.hour
}

// SortAndLimit orders rows by their key and applies f.Desc and f.Limit.
func SortAndLimit[T any](rows []T, f Filter, key func(T) (shift.Date, shift.Shift, string, int)) []T {
	sort.SliceStable(rows, func(i, j int) bool {
		di, si, pi, hi := key(rows[i])
		dj, sj, pj, hj := key(rows[j])
		a, b := rowKey{di, si, pi, hi}, rowKey{dj, sj, pj, hj}
		if f.Desc {
			return lessKey(b, a)
		}
		return lessKey(a, b)
	})
	if f.Limit > 0 && len(rows) > f.Limit {
		rows = rows[:f.Limit]
	}
	return rows
}

// Row keys for SortAndLimit.

func TotalKey(t ProductionTotal) (shift.Date, shift.Shift, string, int) {
	return t.Date, t.Shift, t.PartNumber, 0
}

func HourlyKey(h HourlyDelta) (shift.Date, shift.Shift, string, int) {
	return h.Date, h.Shift, h.PartNumber, h.Hour.Ordinal()
}

func PlanKey(p PlanActual) (shift.Date, shift.Shift, string, int) {
	return p.Date, p.Shift, p.PartNumber, 0
}

func StoppageKey(s StoppageEvent) (shift.Date, shift.Shift, string, int) {
	return s.Date, s.Shift, "", 0
}

func RejectionKey(r RejectionEvent) (shift.Date, shift.Shift, string, int) {
	return r.Date, r.Shift, r.PartNumber, 0
}

func OEEKey(r OEERecord) (shift.Date, shift.Shift, string, int) {
	return r.Date, r.Shift, "", 0
}

func CorrectionKey(c Correction) (shift.Date, shift.Shift, string, int) {
	return c.Date, shift.None, "", int(c.CreatedAt.Unix())
}
