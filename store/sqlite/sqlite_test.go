package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/oee-tracker/production"
	"github.com/warp/oee-tracker/production/storetest"
	"github.com/warp/oee-tracker/shift"
	"github.com/warp/oee-tracker/store/sqlite"
)

func TestSQLiteStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) production.Store {
		s, err := sqlite.New(":memory:")
		require.NoError(t, err)
		return s
	})
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	// GIVEN: a file database with one OEE record
	path := filepath.Join(t.TempDir(), "oee.db")
	ctx := context.Background()
	day := shift.MustParseDate("2025-03-15")

	s, err := sqlite.New(path)
	require.NoError(t, err)
	require.NoError(t, s.UpsertOEE(ctx, production.OEERecord{
		Shift: shift.First, Date: day, OEE: 0.4667, TotalCount: 500, GoodCount: 490,
		RejectedCount: 10, RunTimeMinutes: 600, ComputedAt: time.Now(),
	}))
	require.NoError(t, s.Close())

	// WHEN: reopened
	s, err = sqlite.New(path)
	require.NoError(t, err)
	defer s.Close()

	// THEN
	rows, err := s.OEERecords(ctx, production.Filter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 490, rows[0].GoodCount)
	assert.Equal(t, day, rows[0].Date)
}

func TestSQLiteStore_ReconcilerEndToEnd(t *testing.T) {
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	defer s.Close()

	day := shift.MustParseDate("2025-03-15")
	clock := shift.NewManualClock(shift.At(day, 23, 40))
	rec := production.NewReconciler(s, shift.NewResolver(clock), production.DefaultCatalog())
	ctx := context.Background()

	_, err = rec.Record(ctx, production.CounterReport{PartNumber: storetest.Small, Count: 200, Target: 600})
	require.NoError(t, err)
	clock.Set(shift.At(day.AddDays(1), 3, 15))
	res, err := rec.Record(ctx, production.CounterReport{PartNumber: storetest.Small, Count: 380, Target: 600})
	require.NoError(t, err)
	assert.Equal(t, 180, res.Hourly.Count)

	clock.Advance(10 * time.Minute)
	res, err = rec.Record(ctx, production.CounterReport{PartNumber: storetest.Small, Count: 390, Target: 600})
	require.NoError(t, err)
	assert.Equal(t, production.ActionUpdate, res.Action)
	assert.Equal(t, 190, res.Hourly.Count)
	assert.Equal(t, 2, res.Hourly.Version)
}
