// Package storetest is the contract suite every production.Store
// implementation runs from its own tests.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/oee-tracker/production"
	"github.com/warp/oee-tracker/shift"
)

const (
	Big   = "9253020232"
	Small = "9253010242"
)

// Factory returns a fresh, empty store. The suite closes it.
type Factory func(t *testing.T) production.Store

var (
	day1 = shift.MustParseDate("2025-03-14")
	day2 = shift.MustParseDate("2025-03-15")
	at   = time.Date(2025, time.March, 14, 10, 0, 0, 0, time.UTC)
)

// Run executes every contract test against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := map[string]func(*testing.T, production.Store){
		"ProductionTotalUpsert": testProductionTotalUpsert,
		"HourlyOrderingAndCAS":  testHourlyOrderingAndCAS,
		"PlanActualProjection":  testPlanActualProjection,
		"ReplaceQualityFacts":   testReplaceQualityFacts,
		"OEEUpsertAndOrdering":  testOEEUpsertAndOrdering,
		"Corrections":           testCorrections,
		"WithTxRollsBack":       testWithTxRollsBack,
		"FilterRangeAndLimit":   testFilterRangeAndLimit,
	}
	for name, fn := range tests {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			fn(t, s)
		})
	}
}

func testProductionTotalUpsert(t *testing.T, s production.Store) {
	ctx := context.Background()
	base := production.ProductionTotal{PartNumber: Big, Shift: shift.First, Date: day1, Count: 10, Target: 100, LastUpdated: at}

	require.NoError(t, s.UpsertProductionTotal(ctx, base))
	base.Count = 25
	base.LastUpdated = at.Add(time.Minute)
	require.NoError(t, s.UpsertProductionTotal(ctx, base))

	rows, err := s.ProductionTotals(ctx, production.ForShift(shift.First, day1))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 25, rows[0].Count)
	assert.Equal(t, 100, rows[0].Target)
	assert.True(t, rows[0].LastUpdated.Equal(at.Add(time.Minute)), "last updated %v", rows[0].LastUpdated)
	assert.Equal(t, day1, rows[0].Date)
}

func testHourlyOrderingAndCAS(t *testing.T, s production.Store) {
	ctx := context.Background()
	key := production.PartShiftKey{PartNumber: Big, Shift: shift.Second, Date: day1}

	for i, h := range []int{22, 3, 23, 0} {
		require.NoError(t, s.InsertHourlyDelta(ctx, production.HourlyDelta{
			ID: "h-" + shift.Hour(h).Label(), PartNumber: key.PartNumber, Shift: key.Shift, Date: key.Date,
			Hour: shift.Hour(h), Count: 10, CumulativeCount: 10 * (i + 1), LastReportedAt: at, Version: 1,
		}))
	}

	rows, err := s.HourlyDeltas(ctx, production.ForPart(key))
	require.NoError(t, err)
	labels := make([]string, len(rows))
	for i, r := range rows {
		labels[i] = r.Hour.Label()
	}
	assert.Equal(t, []string{"22:00", "23:00", "00:00", "03:00"}, labels)

	// duplicate bucket
	err = s.InsertHourlyDelta(ctx, production.HourlyDelta{ID: "dup", PartNumber: Big, Shift: shift.Second, Date: day1, Hour: 3, Version: 1})
	assert.True(t, errors.Is(err, production.ErrConcurrentModification), "got %v", err)

	// CAS: right version wins, stale version loses
	upd := rows[3]
	upd.Count, upd.CumulativeCount = 15, 45
	require.NoError(t, s.UpdateHourlyDelta(ctx, upd, 1))
	err = s.UpdateHourlyDelta(ctx, upd, 1)
	assert.True(t, errors.Is(err, production.ErrConcurrentModification), "got %v", err)

	rows, err = s.HourlyDeltas(ctx, production.ForPart(key))
	require.NoError(t, err)
	last := rows[len(rows)-1]
	assert.Equal(t, 15, last.Count)
	assert.Equal(t, 45, last.CumulativeCount)
	assert.Equal(t, 2, last.Version)
	assert.Equal(t, "h-03:00", last.ID)
}

func testPlanActualProjection(t *testing.T, s production.Store) {
	ctx := context.Background()
	pa := production.PlanActual{PartNumber: Small, Shift: shift.First, Date: day1, Plan: 400, Actual: 5, UpdatedAt: at}

	require.NoError(t, s.RecordActual(ctx, pa))
	pa.Plan, pa.Actual = 999, 50
	require.NoError(t, s.RecordActual(ctx, pa))

	rows, err := s.PlanActuals(ctx, production.ForPart(pa.Key()))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 400, rows[0].Plan, "plan is only written on insert")
	assert.Equal(t, 50, rows[0].Actual)

	require.NoError(t, s.SetPlan(ctx, production.PlanActual{PartNumber: Small, Shift: shift.First, Date: day1, Plan: 450, UpdatedAt: at}))
	rows, err = s.PlanActuals(ctx, production.ForPart(pa.Key()))
	require.NoError(t, err)
	assert.Equal(t, 450, rows[0].Plan)
	assert.Equal(t, 50, rows[0].Actual, "set-plan keeps actual")

	// set-plan on a fresh key creates a row with zero actual
	fresh := production.PlanActual{PartNumber: Big, Shift: shift.Second, Date: day2, Plan: 300, Actual: 77, UpdatedAt: at}
	require.NoError(t, s.SetPlan(ctx, fresh))
	rows, err = s.PlanActuals(ctx, production.ForPart(fresh.Key()))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 300, rows[0].Plan)
	assert.Zero(t, rows[0].Actual)
}

func testReplaceQualityFacts(t *testing.T, s production.Store) {
	ctx := context.Background()
	key := production.ShiftKey{Shift: shift.First, Date: day1}
	other := production.ShiftKey{Shift: shift.Second, Date: day1}

	require.NoError(t, s.ReplaceStoppages(ctx, key, []production.StoppageEvent{
		{ID: "s1", Shift: key.Shift, Date: key.Date, DurationMinutes: 10, Reason: "tool change"},
		{ID: "s2", Shift: key.Shift, Date: key.Date, DurationMinutes: 20, Reason: "power"},
	}))
	require.NoError(t, s.ReplaceStoppages(ctx, other, []production.StoppageEvent{
		{ID: "s3", Shift: other.Shift, Date: other.Date, DurationMinutes: 5, Reason: "power"},
	}))
	require.NoError(t, s.ReplaceStoppages(ctx, key, []production.StoppageEvent{
		{ID: "s4", Shift: key.Shift, Date: key.Date, DurationMinutes: 7.5, Reason: "setup"},
	}))

	stops, err := s.Stoppages(ctx, production.ForShift(key.Shift, key.Date))
	require.NoError(t, err)
	require.Len(t, stops, 1)
	assert.Equal(t, 7.5, stops[0].DurationMinutes)
	assert.Equal(t, "setup", stops[0].Reason)

	stops, err = s.Stoppages(ctx, production.ForShift(other.Shift, other.Date))
	require.NoError(t, err)
	assert.Len(t, stops, 1, "other shift untouched")

	require.NoError(t, s.ReplaceRejections(ctx, key, []production.RejectionEvent{
		{ID: "r1", Shift: key.Shift, Date: key.Date, PartNumber: Big, Count: 4, Reason: "crack"},
		{ID: "r2", Shift: key.Shift, Date: key.Date, PartNumber: Small, Count: 6, Reason: "dent"},
	}))
	rej, err := s.Rejections(ctx, production.Filter{PartNumber: Small, Shift: key.Shift, From: key.Date, To: key.Date})
	require.NoError(t, err)
	require.Len(t, rej, 1)
	assert.Equal(t, 6, rej[0].Count)

	require.NoError(t, s.ReplaceRejections(ctx, key, nil))
	rej, err = s.Rejections(ctx, production.ForShift(key.Shift, key.Date))
	require.NoError(t, err)
	assert.Empty(t, rej)
}

func testOEEUpsertAndOrdering(t *testing.T, s production.Store) {
	ctx := context.Background()
	recs := []production.OEERecord{
		{Shift: shift.First, Date: day1, OEE: 0.1, TotalCount: 1, ComputedAt: at},
		{Shift: shift.Second, Date: day1, OEE: 0.2, TotalCount: 2, ComputedAt: at},
		{Shift: shift.First, Date: day2, OEE: 0.3, TotalCount: 3, ComputedAt: at},
	}
	for _, r := range recs {
		require.NoError(t, s.UpsertOEE(ctx, r))
	}
	recs[2].OEE = 0.35
	require.NoError(t, s.UpsertOEE(ctx, recs[2]))

	latest, err := s.OEERecords(ctx, production.Filter{Desc: true, Limit: 1})
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, day2, latest[0].Date)
	assert.InDelta(t, 0.35, latest[0].OEE, 1e-9)

	all, err := s.OEERecords(ctx, production.Filter{Desc: true})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, shift.Second, all[1].Shift, "shift-2 sorts before shift-1 on the same date when descending")
}

func testCorrections(t *testing.T, s production.Store) {
	ctx := context.Background()
	require.NoError(t, s.InsertCorrection(ctx, production.Correction{ID: "c1", Date: day1, Problem: "burr", CorrectiveAction: "deburr", CreatedAt: at}))
	require.NoError(t, s.InsertCorrection(ctx, production.Correction{ID: "c2", Date: day2, Problem: "leak", CorrectiveAction: "reseal", CreatedAt: at}))

	rows, err := s.Corrections(ctx, production.Between(day2, day2))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "leak", rows[0].Problem)
	assert.Equal(t, "reseal", rows[0].CorrectiveAction)
}

func testWithTxRollsBack(t *testing.T, s production.Store) {
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(repo production.Repository) error {
		if err := repo.UpsertProductionTotal(ctx, production.ProductionTotal{PartNumber: Big, Shift: shift.First, Date: day1, Count: 1, LastUpdated: at}); err != nil {
			return err
		}
		// reads inside the transaction see its own writes
		rows, err := repo.ProductionTotals(ctx, production.ForShift(shift.First, day1))
		if err != nil {
			return err
		}
		if len(rows) != 1 {
			return errors.New("write not visible inside tx")
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	rows, err := s.ProductionTotals(ctx, production.Filter{})
	require.NoError(t, err)
	assert.Empty(t, rows)

	require.NoError(t, s.WithTx(ctx, func(repo production.Repository) error {
		return repo.UpsertProductionTotal(ctx, production.ProductionTotal{PartNumber: Big, Shift: shift.First, Date: day1, Count: 2, LastUpdated: at})
	}))
	rows, err = s.ProductionTotals(ctx, production.Filter{})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func testFilterRangeAndLimit(t *testing.T, s production.Store) {
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		d := day1.AddDays(i)
		for _, sh := range shift.All {
			require.NoError(t, s.RecordActual(ctx, production.PlanActual{PartNumber: Big, Shift: sh, Date: d, Plan: 10, Actual: i, UpdatedAt: at}))
		}
	}

	rows, err := s.PlanActuals(ctx, production.Between(day1.AddDays(1), day1.AddDays(2)))
	require.NoError(t, err)
	assert.Len(t, rows, 4)

	recent, err := s.PlanActuals(ctx, production.Filter{Desc: true, Limit: 3})
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, day1.AddDays(4), recent[0].Date)
	assert.Equal(t, shift.Second, recent[0].Shift)
	assert.Equal(t, shift.First, recent[1].Shift)
	assert.Equal(t, day1.AddDays(3), recent[2].Date)
}
