/*
scenarios_test.go - Tests for demo scenarios

PURPOSE:
	Tests that each scenario replays a full shift through the reconciler:
	- Hourly buckets add up to the final counter value
	- Quality data is submitted and an OEE record exists
	- Loading the same scenario twice is refused
*/
package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/oee-tracker/production"
	"github.com/warp/oee-tracker/shift"
)

func loadScenario(t *testing.T, a *apiHarness, id string) (int, testEnvelope) {
	t.Helper()
	return a.do(t, http.MethodPost, "/api/scenarios/load", map[string]any{"scenario_id": id})
}

func partTotals(t *testing.T, a *apiHarness, s shift.Shift, d shift.Date) map[string]int {
	t.Helper()
	rows, err := a.store.ProductionTotals(context.Background(), production.ForShift(s, d))
	require.NoError(t, err)
	out := make(map[string]int)
	for _, r := range rows {
		out[r.PartNumber] = r.Count
	}
	return out
}

func hourlySum(t *testing.T, a *apiHarness, part string, s shift.Shift, d shift.Date) (int, []production.HourlyDelta) {
	t.Helper()
	rows, err := a.store.HourlyDeltas(context.Background(), production.ForPart(production.PartShiftKey{PartNumber: part, Shift: s, Date: d}))
	require.NoError(t, err)
	sum := 0
	for _, r := range rows {
		sum += r.Count
	}
	return sum, rows
}

func TestListScenarios(t *testing.T) {
	a := newAPI(t, shift.At(testDay, 10, 0))

	code, env := a.do(t, http.MethodGet, "/api/scenarios", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decode[[]ScenarioDTO](t, env), len(scenarios))

	code, env = a.do(t, http.MethodGet, "/api/scenarios/current", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "no scenario loaded", env.Message)
}

func TestDayShiftScenario(t *testing.T) {
	// GIVEN: A clock on the day after the scripted shift
	a := newAPI(t, shift.At(testDay, 10, 0))
	yesterday := testDay.AddDays(-1)

	// WHEN: The day-shift scenario is loaded
	code, env := loadScenario(t, a, "day-shift")
	require.Equal(t, http.StatusOK, code, env.Message)

	// THEN: 64 ticks of cycled rates were reported for both parts
	totals := partTotals(t, a, shift.First, yesterday)
	assert.Equal(t, map[string]int{bigCylinder: 330, smallCylinder: 213}, totals)

	sum, rows := hourlySum(t, a, bigCylinder, shift.First, yesterday)
	assert.Equal(t, 330, sum)
	assert.Len(t, rows, 12) // 08:00 through 19:00

	// AND: The OEE record reflects the scripted quality data
	code, env = a.do(t, http.MethodGet, "/api/oee", nil)
	require.Equal(t, http.StatusOK, code)
	oee := decode[OEEDTO](t, env)
	assert.Equal(t, yesterday, oee.Date)
	assert.Equal(t, 543, oee.TotalCount)
	assert.Equal(t, 530, oee.GoodCount)
	assert.Equal(t, 595.0, oee.RunTime)

	// AND: The plan survives the replay
	pas, err := a.store.PlanActuals(context.Background(), production.ForShift(shift.First, yesterday))
	require.NoError(t, err)
	for _, pa := range pas {
		assert.Positive(t, pa.Plan)
		assert.Equal(t, totals[pa.PartNumber], pa.Actual)
	}

	code, env = a.do(t, http.MethodGet, "/api/scenarios/current", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "day-shift", decode[ScenarioDTO](t, env).ID)
}

func TestNightShiftScenario_CrossesMidnight(t *testing.T) {
	a := newAPI(t, shift.At(testDay, 10, 0))
	yesterday := testDay.AddDays(-1)

	code, env := loadScenario(t, a, "night-shift")
	require.Equal(t, http.StatusOK, code, env.Message)

	totals := partTotals(t, a, shift.Second, yesterday)
	assert.Equal(t, map[string]int{bigCylinder: 288, smallCylinder: 193}, totals)

	sum, rows := hourlySum(t, a, bigCylinder, shift.Second, yesterday)
	assert.Equal(t, 288, sum)

	// Early-morning buckets belong to the previous day's shift-2 and sort
	// after the evening ones.
	hours := make([]shift.Hour, 0, len(rows))
	for _, r := range rows {
		assert.Equal(t, yesterday, r.Date)
		hours = append(hours, r.Hour)
	}
	assert.Equal(t, shift.Hour(20), hours[0])
	assert.Equal(t, shift.Hour(7), hours[len(hours)-1])
	assert.Contains(t, hours, shift.Hour(0))
}

func TestCounterResetScenario(t *testing.T) {
	a := newAPI(t, shift.At(testDay, 10, 0))
	day := testDay.AddDays(-2)

	code, env := loadScenario(t, a, "counter-reset")
	require.Equal(t, http.StatusOK, code, env.Message)

	totals := partTotals(t, a, shift.First, day)
	sum, rows := hourlySum(t, a, bigCylinder, shift.First, day)

	// Deltas telescope to the final counter value even across the reset,
	// which shows up as a negative bucket.
	assert.Equal(t, totals[bigCylinder], sum)
	var reset *production.HourlyDelta
	for i := range rows {
		if rows[i].Hour == 13 {
			reset = &rows[i]
		}
	}
	require.NotNil(t, reset)
	assert.Negative(t, reset.Count)
}

func TestLoadScenario_Errors(t *testing.T) {
	a := newAPI(t, shift.At(testDay, 10, 0))

	code, env := loadScenario(t, a, "does-not-exist")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "scenario_id", env.Error.Field)

	code, _ = a.do(t, http.MethodPost, "/api/scenarios/load", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = loadScenario(t, a, "day-shift")
	require.Equal(t, http.StatusOK, code)

	code, env = loadScenario(t, a, "day-shift")
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, production.KindConflict, env.Error.Kind)
}
