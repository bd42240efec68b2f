package production_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/oee-tracker/production"
	"github.com/warp/oee-tracker/production/store"
	"github.com/warp/oee-tracker/shift"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

const (
	bigCylinder   = "9253020232"
	smallCylinder = "9253010242"
)

var testDay = shift.MustParseDate("2025-03-15")

type harness struct {
	store      *store.Memory
	clock      *shift.ManualClock
	resolver   *shift.Resolver
	reconciler *production.Reconciler
	quality    *production.QualityService
	reports    *production.Reports
	planner    *production.Planner
}

func newHarness(start time.Time) *harness {
	s := store.NewMemory()
	clock := shift.NewManualClock(start)
	resolver := shift.NewResolver(clock)
	catalog := production.DefaultCatalog()
	cfg := production.DefaultOEEConfig()
	return &harness{
		store:      s,
		clock:      clock,
		resolver:   resolver,
		reconciler: production.NewReconciler(s, resolver, catalog),
		quality:    production.NewQualityService(s, production.NewCalculator(cfg), clock),
		reports:    production.NewReports(s, catalog, cfg),
		planner:    production.NewPlanner(s, catalog, clock),
	}
}

func (h *harness) report(t *testing.T, part string, count, target int) *production.ReportResult {
	t.Helper()
	res, err := h.reconciler.Record(context.Background(), production.CounterReport{PartNumber: part, Count: count, Target: target})
	require.NoError(t, err)
	return res
}

func (h *harness) hourly(t *testing.T, part string, s shift.Shift, d shift.Date) []production.HourlyDelta {
	t.Helper()
	rows, err := h.store.HourlyDeltas(context.Background(), production.ForPart(production.PartShiftKey{PartNumber: part, Shift: s, Date: d}))
	require.NoError(t, err)
	return rows
}

func sumCounts(rows []production.HourlyDelta) int {
	total := 0
	for _, r := range rows {
		total += r.Count
	}
	return total
}

// =============================================================================
// PURE DECISION
// =============================================================================

func TestReconcile_Decisions(t *testing.T) {
	w := shift.Resolve(shift.At(testDay, 10, 15))

	d := production.Reconcile(nil, bigCylinder, w, 40)
	assert.Equal(t, production.ActionCreate, d.Action)
	assert.Equal(t, 40, d.Delta.Count)

	prior := &production.HourlyDelta{ID: "p", Hour: 10, Count: 30, CumulativeCount: 130, Version: 4}
	d = production.Reconcile(prior, bigCylinder, w, 150)
	assert.Equal(t, production.ActionUpdate, d.Action)
	assert.Equal(t, 50, d.Delta.Count, "150 - (130 - 30)")
	assert.Equal(t, "p", d.Delta.ID)
	assert.Equal(t, 5, d.Delta.Version)

	prior = &production.HourlyDelta{Hour: 9, Count: 100, CumulativeCount: 100}
	d = production.Reconcile(prior, bigCylinder, w, 135)
	assert.Equal(t, production.ActionCreate, d.Action)
	assert.Equal(t, 35, d.Delta.Count)
	assert.Equal(t, 135, d.Delta.CumulativeCount)
}

func TestReconcile_CounterResetStoresNegativeDelta(t *testing.T) {
	w := shift.Resolve(shift.At(testDay, 11, 5))
	prior := &production.HourlyDelta{Hour: 10, Count: 80, CumulativeCount: 200}

	d := production.Reconcile(prior, bigCylinder, w, 20)
	assert.Equal(t, -180, d.Delta.Count)
}

func TestLatest_UsesOvernightOrdinal(t *testing.T) {
	rows := []production.HourlyDelta{{Hour: 23}, {Hour: 2}, {Hour: 21}, {Hour: 0}}
	assert.Equal(t, shift.Hour(2), production.Latest(rows).Hour)
	assert.Nil(t, production.Latest(nil))
}

// =============================================================================
// RECORD
// =============================================================================

func TestRecord_SameHourUpdatesInPlace(t *testing.T) {
	// GIVEN: two reports within the same hour
	h := newHarness(shift.At(testDay, 10, 5))
	h.report(t, bigCylinder, 50, 500)
	h.clock.Advance(20 * time.Minute)

	// WHEN
	res := h.report(t, bigCylinder, 70, 500)

	// THEN: one bucket holding 70
	assert.Equal(t, production.ActionUpdate, res.Action)
	rows := h.hourly(t, bigCylinder, shift.First, testDay)
	require.Len(t, rows, 1)
	assert.Equal(t, 70, rows[0].Count)
	assert.Equal(t, 70, rows[0].CumulativeCount)
	assert.Equal(t, 2, rows[0].Version)
}

func TestRecord_CrossHourCreatesDelta(t *testing.T) {
	h := newHarness(shift.At(testDay, 9, 50))
	h.report(t, bigCylinder, 100, 500)
	h.clock.Advance(15 * time.Minute) // 10:05

	res := h.report(t, bigCylinder, 135, 500)

	assert.Equal(t, production.ActionCreate, res.Action)
	assert.Equal(t, 35, res.Hourly.Count)
	assert.Equal(t, "10:00", res.Hourly.Hour.Label())
	assert.Equal(t, 135, res.Total.Count)
	assert.Equal(t, 135, res.PlanActual.Actual)
	assert.Equal(t, 500, res.PlanActual.Plan)
}

func TestRecord_OvernightShiftAttributesToPreviousDate(t *testing.T) {
	// GIVEN: reports at 23:40 and 03:15
	h := newHarness(shift.At(testDay, 23, 40))
	h.report(t, smallCylinder, 200, 600)
	h.clock.Set(shift.At(testDay.AddDays(1), 3, 15))

	// WHEN
	res := h.report(t, smallCylinder, 380, 600)

	// THEN: both belong to shift-2 of testDay, 03:00 follows 23:00
	assert.Equal(t, shift.Second, res.Window.Shift)
	assert.Equal(t, testDay, res.Window.Date)
	assert.Equal(t, 180, res.Hourly.Count)

	rows := h.hourly(t, smallCylinder, shift.Second, testDay)
	require.Len(t, rows, 2)
	assert.Equal(t, "23:00", rows[0].Hour.Label())
	assert.Equal(t, "03:00", rows[1].Hour.Label())

	// a later 03:40 report updates the 03:00 bucket, not 23:00
	h.clock.Advance(25 * time.Minute)
	res = h.report(t, smallCylinder, 400, 600)
	assert.Equal(t, production.ActionUpdate, res.Action)
	assert.Equal(t, 200, res.Hourly.Count)
}

func TestRecord_RejectsOutsideShift(t *testing.T) {
	h := newHarness(shift.At(testDay, 19, 30))

	_, err := h.reconciler.Record(context.Background(), production.CounterReport{PartNumber: bigCylinder, Count: 5, Target: 10})

	require.Error(t, err)
	assert.Equal(t, production.KindShiftWindow, production.KindOf(err))
	assert.ErrorIs(t, err, shift.ErrNoActiveShift)

	rows, err := h.store.ProductionTotals(context.Background(), production.Filter{})
	require.NoError(t, err)
	assert.Empty(t, rows, "nothing written")
}

func TestRecord_Validation(t *testing.T) {
	h := newHarness(shift.At(testDay, 10, 0))
	ctx := context.Background()

	tests := []struct {
		name  string
		rep   production.CounterReport
		field string
	}{
		{"missing part", production.CounterReport{Count: 1, Target: 1}, "partNumber"},
		{"unknown part", production.CounterReport{PartNumber: "123", Count: 1, Target: 1}, "partNumber"},
		{"negative count", production.CounterReport{PartNumber: bigCylinder, Count: -1, Target: 1}, "count"},
		{"negative target", production.CounterReport{PartNumber: bigCylinder, Count: 1, Target: -1}, "target"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.reconciler.Record(ctx, tt.rep)
			require.Error(t, err)
			var perr *production.Error
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, production.KindValidation, perr.Kind)
			assert.Equal(t, tt.field, perr.Field)
		})
	}
}

func TestRecord_HourlySumEqualsTotalForMonotoneSequences(t *testing.T) {
	faker := gofakeit.New(42)

	for run := 0; run < 25; run++ {
		// GIVEN: a random non-decreasing sequence spread across shift-2,
		// including the midnight wrap
		h := newHarness(shift.At(testDay, 20, 30))
		count := 0
		steps := faker.IntRange(1, 60)
		for i := 0; i < steps; i++ {
			count += faker.IntRange(0, 40)
			h.report(t, bigCylinder, count, 900)

			next := h.clock.Now().Add(time.Duration(faker.IntRange(1, 25)) * time.Minute)
			if !shift.Resolve(next).Active() || shift.Resolve(next).Date != testDay {
				break
			}
			h.clock.Set(next)
		}

		// THEN
		rows := h.hourly(t, bigCylinder, shift.Second, testDay)
		totals, err := h.store.ProductionTotals(context.Background(), production.ForShift(shift.Second, testDay))
		require.NoError(t, err)
		require.Len(t, totals, 1)
		assert.Equal(t, totals[0].Count, sumCounts(rows), "run %d", run)
		for _, r := range rows {
			assert.GreaterOrEqual(t, r.Count, 0)
		}
	}
}

func TestRecord_ConcurrentReportsKeepInvariant(t *testing.T) {
	// GIVEN: interleaved reports from two parts in the same hour
	h := newHarness(shift.At(testDay, 14, 0))
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, part := range []string{bigCylinder, smallCylinder} {
		wg.Add(1)
		go func(part string) {
			defer wg.Done()
			for c := 1; c <= 50; c++ {
				_, err := h.reconciler.Record(ctx, production.CounterReport{PartNumber: part, Count: c, Target: 100})
				assert.NoError(t, err)
			}
		}(part)
	}
	wg.Wait()

	for _, part := range []string{bigCylinder, smallCylinder} {
		rows := h.hourly(t, part, shift.First, testDay)
		require.Len(t, rows, 1)
		assert.Equal(t, 50, rows[0].Count)
		assert.Equal(t, 50, rows[0].Version)
	}
}

// conflictStore loses every HourlyDelta update race.
type conflictStore struct {
	*store.Memory
	attempts int
}

func (c *conflictStore) WithTx(ctx context.Context, fn func(production.Repository) error) error {
	return c.Memory.WithTx(ctx, func(repo production.Repository) error {
		return fn(conflictRepo{Repository: repo, parent: c})
	})
}

type conflictRepo struct {
	production.Repository
	parent *conflictStore
}

func (c conflictRepo) UpdateHourlyDelta(context.Context, production.HourlyDelta, int) error {
	c.parent.attempts++
	return production.ErrConcurrentModification
}

func TestRecord_RetriesThenSurfacesConflict(t *testing.T) {
	mem := store.NewMemory()
	cs := &conflictStore{Memory: mem}
	clock := shift.NewManualClock(shift.At(testDay, 10, 0))
	r := production.NewReconciler(cs, shift.NewResolver(clock), production.DefaultCatalog())
	ctx := context.Background()

	_, err := r.Record(ctx, production.CounterReport{PartNumber: bigCylinder, Count: 10, Target: 100})
	require.NoError(t, err, "first report creates, no update needed")

	_, err = r.Record(ctx, production.CounterReport{PartNumber: bigCylinder, Count: 20, Target: 100})
	require.Error(t, err)
	assert.Equal(t, production.KindConflict, production.KindOf(err))
	assert.Equal(t, 3, cs.attempts)

	// the failed attempts rolled back the ProductionTotal upsert too
	totals, err := mem.ProductionTotals(ctx, production.Filter{})
	require.NoError(t, err)
	require.Len(t, totals, 1)
	assert.Equal(t, 10, totals[0].Count)
}
