/*
reconciler.go - Cumulative counter to hourly delta reconciliation

PURPOSE:
  The line's PLC reports a cumulative part count for the current shift
  every few seconds. Reconciler turns each report into:
    1. the ProductionTotal upsert (latest count and target)
    2. an HourlyDelta create or in-place update
    3. the PlanActual projection (actual = count, plan set on insert)

ALGORITHM (per part, shift, date):
  prior = latest HourlyDelta by hour ordinal
  no prior             create  Count = reported
  same hour as prior   update  Count = reported - (prior.Cumulative - prior.Count)
  different hour       create  Count = reported - prior.Cumulative
  CumulativeCount is always the reported value. A counter reset yields a
  negative Count, stored as-is.

  For a non-decreasing report sequence the hourly Counts sum to the last
  reported count.

CONCURRENCY:
  Per-key in-process mutex, the whole step inside Store.WithTx, and a
  Version compare-and-swap on the HourlyDelta write. A lost CAS retries
  the step up to maxAttempts times, then surfaces KindConflict.

SEE ALSO:
  - shift/shift.go: window resolution and hour ordinals
  - store.go: InsertHourlyDelta / UpdateHourlyDelta contract
*/
package production

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/warp/oee-tracker/logger"
	"github.com/warp/oee-tracker/shift"
)

const maxAttempts = 3

// CounterReport is one reading from the line.
type CounterReport struct {
	PartNumber string
	Count      int
	Target     int
}

// Action is what the reconciler did with the hourly bucket.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
)

// Decision is the pure outcome of reconciling one report against the
// latest bucket.
type Decision struct {
	Action Action
	Delta  HourlyDelta
}

// ReportResult is everything a counter report touched.
type ReportResult struct {
	Window     shift.Window
	Action     Action
	Total      ProductionTotal
	Hourly     HourlyDelta
	PlanActual PlanActual
}

// =============================================================================
// PURE DECISION
// =============================================================================

// Reconcile decides the hourly write for a report of count at w given the
// latest prior bucket (nil if none).
func Reconcile(prior *HourlyDelta, part string, w shift.Window, count int) Decision {
	next := HourlyDelta{
		PartNumber:      part,
		Shift:           w.Shift,
		Date:            w.Date,
		Hour:            w.Hour,
		CumulativeCount: count,
		LastReportedAt:  w.At,
	}

	switch {
	case prior == nil:
		next.Count = count
		return Decision{Action: ActionCreate, Delta: next}

	case prior.Hour == w.Hour:
		next.ID = prior.ID
		next.Count = count - prior.Baseline()
		next.Version = prior.Version + 1
		return Decision{Action: ActionUpdate, Delta: next}

	default:
		next.Count = count - prior.CumulativeCount
		return Decision{Action: ActionCreate, Delta: next}
	}
}

// Latest returns the bucket with the highest hour ordinal, or nil.
func Latest(rows []HourlyDelta) *HourlyDelta {
	if len(rows) == 0 {
		return nil
	}
	latest := lo.MaxBy(rows, func(a, b HourlyDelta) bool {
		return a.Hour.Ordinal() > b.Hour.Ordinal()
	})
	return &latest
}

// =============================================================================
// RECONCILER
// =============================================================================

type Reconciler struct {
	store    Store
	resolver *shift.Resolver
	catalog  *Catalog
	locks    *keyedMutex
	newID    func() string
}

func NewReconciler(store Store, resolver *shift.Resolver, catalog *Catalog) *Reconciler {
	return &Reconciler{
		store:    store,
		resolver: resolver,
		catalog:  catalog,
		locks:    newKeyedMutex(),
		newID:    uuid.NewString,
	}
}

// Record reconciles one counter report at the resolver's current instant.
func (r *Reconciler) Record(ctx context.Context, rep CounterReport) (*ReportResult, error) {
	const op = "reconciler.Record"

	if err := r.validate(op, rep); err != nil {
		return nil, err
	}

	w := r.resolver.Current()
	if !w.Active() {
		return nil, &Error{
			Kind:   KindShiftWindow,
			Op:     op,
			Detail: fmt.Sprintf("production data can only be recorded during shift hours (now %s)", w.LocalTime),
			Err:    shift.ErrNoActiveShift,
		}
	}

	key := PartShiftKey{PartNumber: rep.PartNumber, Shift: w.Shift, Date: w.Date}
	unlock := r.locks.Lock(key)
	defer unlock()

	log := logger.C(ctx)
	var (
		result *ReportResult
		err    error
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err = r.apply(ctx, key, w, rep)
		if err == nil || !IsRetryable(err) {
			break
		}
		log.Warn().Err(err).Str("key", key.String()).Int("attempt", attempt).Msg("hourly bucket changed underneath, retrying")
	}
	if err != nil {
		if IsRetryable(err) {
			return nil, E(KindConflict, op, err)
		}
		var perr *Error
		if errors.As(err, &perr) {
			return nil, err
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Debug().
		Str("part", rep.PartNumber).
		Str("shift", string(w.Shift)).
		Str("date", w.Date.String()).
		Str("hour", w.Hour.Label()).
		Str("action", string(result.Action)).
		Int("count", rep.Count).
		Int("delta", result.Hourly.Count).
		Msg("counter report reconciled")

	return result, nil
}

func (r *Reconciler) validate(op string, rep CounterReport) error {
	if rep.PartNumber == "" {
		return Validationf(op, "partNumber", "is required")
	}
	if _, ok := r.catalog.Lookup(rep.PartNumber); !ok {
		return &Error{Kind: KindValidation, Op: op, Field: "partNumber",
			Detail: fmt.Sprintf("unknown part number %q", rep.PartNumber), Err: ErrUnknownPart}
	}
	if rep.Count < 0 {
		return Validationf(op, "count", "must be non-negative")
	}
	if rep.Target < 0 {
		return Validationf(op, "target", "must be non-negative")
	}
	return nil
}

func (r *Reconciler) apply(ctx context.Context, key PartShiftKey, w shift.Window, rep CounterReport) (*ReportResult, error) {
	result := &ReportResult{Window: w}

	err := r.store.WithTx(ctx, func(repo Repository) error {
		total := ProductionTotal{
			PartNumber:  key.PartNumber,
			Shift:       key.Shift,
			Date:        key.Date,
			Count:       rep.Count,
			Target:      rep.Target,
			LastUpdated: w.At,
		}
		if err := repo.UpsertProductionTotal(ctx, total); err != nil {
			return err
		}
		result.Total = total

		rows, err := repo.HourlyDeltas(ctx, ForPart(key))
		if err != nil {
			return err
		}
		prior := Latest(rows)

		d := Reconcile(prior, key.PartNumber, w, rep.Count)
		switch d.Action {
		case ActionCreate:
			d.Delta.ID = r.newID()
			d.Delta.Version = 1
			err = repo.InsertHourlyDelta(ctx, d.Delta)
		case ActionUpdate:
			err = repo.UpdateHourlyDelta(ctx, d.Delta, prior.Version)
		}
		if err != nil {
			return err
		}
		result.Action = d.Action
		result.Hourly = d.Delta

		if err := repo.RecordActual(ctx, PlanActual{
			PartNumber: key.PartNumber,
			Shift:      key.Shift,
			Date:       key.Date,
			Plan:       rep.Target,
			Actual:     rep.Count,
			UpdatedAt:  w.At,
		}); err != nil {
			return err
		}

		pas, err := repo.PlanActuals(ctx, ForPart(key))
		if err != nil {
			return err
		}
		if len(pas) > 0 {
			result.PlanActual = pas[0]
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// =============================================================================
// KEYED MUTEX
// =============================================================================

type keyedMutex struct {
	mu    sync.Mutex
	locks map[PartShiftKey]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[PartShiftKey]*refMutex)}
}

// Lock blocks until key is free and returns its unlock func.
func (k *keyedMutex) Lock(key PartShiftKey) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
