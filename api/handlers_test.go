/*
handlers_test.go - HTTP tests for API handlers

Tests for:
- Counter ingestion (create/update buckets, shift window, validation)
- Quality submission and OEE rendering
- Dashboard reads, reports and monthly rollups
- Error kind to status mapping
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/oee-tracker/production"
	"github.com/warp/oee-tracker/production/store"
	"github.com/warp/oee-tracker/shift"
)

const (
	bigCylinder   = "9253020232"
	smallCylinder = "9253010242"
)

var testDay = shift.MustParseDate("2025-03-15")

type apiHarness struct {
	store   *store.Memory
	clock   *shift.ManualClock
	handler *Handler
	router  http.Handler
}

func newAPI(t *testing.T, start time.Time) *apiHarness {
	t.Helper()
	s := store.NewMemory()
	t.Cleanup(func() { _ = s.Close() })

	clock := shift.NewManualClock(start)
	h := NewHandler(s, Options{Clock: clock})
	return &apiHarness{store: s, clock: clock, handler: h, router: NewRouter(h, RouterOptions{})}
}

type testEnvelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   *ErrorBody      `json:"error"`
}

func (a *apiHarness) do(t *testing.T, method, path string, body any) (int, testEnvelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)

	var env testEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func decode[T any](t *testing.T, env testEnvelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func (a *apiHarness) report(t *testing.T, part any, count, target int) CounterReportResponse {
	t.Helper()
	code, env := a.do(t, http.MethodPost, "/spark/data", map[string]any{"partNumber": part, "count": count, "target": target})
	require.Equal(t, http.StatusOK, code, env.Message)
	return decode[CounterReportResponse](t, env)
}

// =============================================================================
// COUNTER INGESTION
// =============================================================================

func TestRecordCounter_CreatesThenUpdatesBucket(t *testing.T) {
	// GIVEN: The line running shift-1
	a := newAPI(t, shift.At(testDay, 9, 10))

	// WHEN: Two reports arrive in the 09:00 hour and one in the 10:00 hour
	first := a.report(t, bigCylinder, 100, 500)
	a.clock.Advance(5 * time.Minute)
	second := a.report(t, bigCylinder, 130, 500)
	a.clock.Set(shift.At(testDay, 10, 5))
	third := a.report(t, bigCylinder, 180, 500)

	// THEN: The first creates, the second updates in place, the third
	// opens a new bucket with only the new parts
	assert.Equal(t, production.ActionCreate, first.Action)
	assert.Equal(t, "09:00", first.HourlyData.Hour)
	assert.Equal(t, 100, first.HourlyData.Count)
	assert.Equal(t, PlanActualSummaryDTO{Plan: 500, Actual: 100}, first.PlanActual)

	assert.Equal(t, production.ActionUpdate, second.Action)
	assert.Equal(t, 130, second.HourlyData.Count)
	assert.Equal(t, 130, second.HourlyData.CumulativeCount)

	assert.Equal(t, production.ActionCreate, third.Action)
	assert.Equal(t, "10:00", third.HourlyData.Hour)
	assert.Equal(t, 50, third.HourlyData.Count)
	assert.Equal(t, 180, third.PartDetails.CurrentCount)
	assert.Equal(t, shift.First, third.PartDetails.Shift)
	assert.Equal(t, testDay, third.PartDetails.Date)
}

func TestRecordCounter_AcceptsNumericAndStringPartNumber(t *testing.T) {
	a := newAPI(t, shift.At(testDay, 9, 0))

	res := a.report(t, 9253020232, 10, 100)
	assert.Equal(t, bigCylinder, res.PartDetails.PartNumber)

	res = a.report(t, smallCylinder, 4, 100)
	assert.Equal(t, smallCylinder, res.PartDetails.PartNumber)
}

func TestRecordCounter_OutsideShift(t *testing.T) {
	// GIVEN: The changeover gap between shifts
	a := newAPI(t, shift.At(testDay, 19, 30))

	// WHEN: A report arrives
	code, env := a.do(t, http.MethodPost, "/spark/data", map[string]any{"partNumber": bigCylinder, "count": 10, "target": 100})

	// THEN: It is rejected and nothing is stored
	assert.Equal(t, http.StatusBadRequest, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, production.KindShiftWindow, env.Error.Kind)

	rows, err := a.store.ProductionTotals(context.Background(), production.Filter{})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestRecordCounter_Validation(t *testing.T) {
	tests := []struct {
		name  string
		body  any
		field string
	}{
		{"missing count", map[string]any{"partNumber": bigCylinder, "target": 100}, "count"},
		{"negative count", map[string]any{"partNumber": bigCylinder, "count": -1, "target": 100}, "count"},
		{"missing target", map[string]any{"partNumber": bigCylinder, "count": 1}, "target"},
		{"missing part", map[string]any{"count": 1, "target": 100}, "partNumber"},
		{"unknown part", map[string]any{"partNumber": "123", "count": 1, "target": 100}, "partNumber"},
		{"fractional part", map[string]any{"partNumber": 92.5, "count": 1, "target": 100}, "partNumber"},
		{"malformed json", `{"partNumber":`, "body"},
		{"empty body", "", "body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newAPI(t, shift.At(testDay, 9, 0))

			code, env := a.do(t, http.MethodPost, "/spark/data", tt.body)

			assert.Equal(t, http.StatusBadRequest, code)
			assert.False(t, env.Success)
			require.NotNil(t, env.Error)
			assert.Equal(t, production.KindValidation, env.Error.Kind)
			assert.Equal(t, tt.field, env.Error.Field)
		})
	}
}

// =============================================================================
// QUALITY AND OEE
// =============================================================================

func qualityBody(d shift.Date, stops []map[string]any, rejects []map[string]any) map[string]any {
	body := map[string]any{"shift": "shift-1", "date": d.String(), "stopTimes": stops}
	if rejects != nil {
		body["rejections"] = rejects
	}
	return body
}

func TestSubmitQuality_ComputesOEE(t *testing.T) {
	// GIVEN: 300 parts produced in shift-1
	a := newAPI(t, shift.At(testDay, 9, 10))
	a.report(t, bigCylinder, 300, 500)

	// WHEN: Supervisors report 30 minutes of stoppage and no rejections
	code, env := a.do(t, http.MethodPost, "/api/quality-data", qualityBody(testDay,
		[]map[string]any{{"duration": 20, "reason": "Tool change"}, {"duration": 10, "reason": "Power"}}, nil))

	// THEN: OEE is computed from 600 run minutes
	require.Equal(t, http.StatusOK, code, env.Message)
	res := decode[QualityResponse](t, env)
	assert.Equal(t, 2, res.StoppagesProcessed)
	assert.Equal(t, "95.24%", res.OEE.Availability)
	assert.Equal(t, "30.00%", res.OEE.Performance)
	assert.Equal(t, "100.00%", res.OEE.Quality)
	assert.Equal(t, "28.57%", res.OEE.OEE)
	assert.Equal(t, 600.0, res.OEE.RunTime)

	// AND: It is the latest OEE and in the history
	code, env = a.do(t, http.MethodGet, "/api/oee", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "28.57%", decode[OEEDTO](t, env).OEE)

	code, env = a.do(t, http.MethodGet, "/api/oee-history", nil)
	require.Equal(t, http.StatusOK, code)
	history := decode[[]OEEHistoryDTO](t, env)
	require.Len(t, history, 1)
	assert.Equal(t, OEEHistoryDTO{Date: testDay, Shift: shift.First, OEE: "28.57"}, history[0])
}

func TestSubmitQuality_RejectionsLowerQuality(t *testing.T) {
	a := newAPI(t, shift.At(testDay, 9, 10))
	a.report(t, bigCylinder, 300, 500)

	code, env := a.do(t, http.MethodPost, "/api/quality-data", qualityBody(testDay,
		[]map[string]any{{"duration": 30, "reason": "Tool change"}},
		[]map[string]any{
			{"partNumber": 9253020232, "count": 6, "reason": "Crack"},
			{"partNumber": bigCylinder, "count": 0, "reason": "dropped"},
		}))

	require.Equal(t, http.StatusOK, code, env.Message)
	res := decode[QualityResponse](t, env)
	assert.Equal(t, "98.00%", res.OEE.Quality)
	assert.Equal(t, 294, res.OEE.GoodCount)
	assert.Equal(t, 6, res.OEE.RejectedCount)
}

func TestSubmitQuality_Errors(t *testing.T) {
	t.Run("no production is referential", func(t *testing.T) {
		a := newAPI(t, shift.At(testDay, 9, 10))

		code, env := a.do(t, http.MethodPost, "/api/quality-data", qualityBody(testDay, []map[string]any{}, nil))

		assert.Equal(t, http.StatusNotFound, code)
		assert.Equal(t, production.KindReferential, env.Error.Kind)
	})

	t.Run("stoppages exceeding planned time roll back", func(t *testing.T) {
		a := newAPI(t, shift.At(testDay, 9, 10))
		a.report(t, bigCylinder, 300, 500)

		code, env := a.do(t, http.MethodPost, "/api/quality-data", qualityBody(testDay,
			[]map[string]any{{"duration": 700, "reason": "Breakdown"}}, nil))

		assert.Equal(t, http.StatusUnprocessableEntity, code)
		assert.Equal(t, production.KindComputation, env.Error.Kind)

		path := "/api/reports/stoptimes?startDate=" + testDay.String() + "&endDate=" + testDay.String()
		code, env = a.do(t, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, code)
		assert.Empty(t, decode[[]StoppageDTO](t, env))
	})

	t.Run("bad shift and negative duration", func(t *testing.T) {
		a := newAPI(t, shift.At(testDay, 9, 10))

		body := qualityBody(testDay, []map[string]any{}, nil)
		body["shift"] = "shift-3"
		code, env := a.do(t, http.MethodPost, "/api/quality-data", body)
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, "shift", env.Error.Field)

		code, env = a.do(t, http.MethodPost, "/api/quality-data", qualityBody(testDay,
			[]map[string]any{{"duration": -5, "reason": "x"}}, nil))
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, "stopTimes[0].duration", env.Error.Field)
	})

	t.Run("missing stopTimes", func(t *testing.T) {
		a := newAPI(t, shift.At(testDay, 9, 10))

		code, env := a.do(t, http.MethodPost, "/api/quality-data", map[string]any{"shift": "shift-1", "date": testDay.String()})
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, "stopTimes", env.Error.Field)
	})
}

// =============================================================================
// DASHBOARD
// =============================================================================

func TestDashboardReads(t *testing.T) {
	// GIVEN: Both parts reported across two hours
	a := newAPI(t, shift.At(testDay, 9, 10))
	a.report(t, bigCylinder, 120, 500)
	a.report(t, smallCylinder, 40, 300)
	a.clock.Set(shift.At(testDay, 10, 20))
	a.report(t, bigCylinder, 200, 500)

	t.Run("pie", func(t *testing.T) {
		code, env := a.do(t, http.MethodGet, "/api/pie", nil)
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, map[string]int{"BIG CYLINDER": 200, "SMALL CYLINDER": 40}, decode[map[string]int](t, env))
	})

	t.Run("production for part", func(t *testing.T) {
		code, env := a.do(t, http.MethodPost, "/api/production", map[string]any{"partNumber": 9253020232})
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, ProductionDTO{PartNumber: bigCylinder, Plan: 500, Actual: 200, Shift: shift.First, Date: testDay},
			decode[ProductionDTO](t, env))
	})

	t.Run("hourly production", func(t *testing.T) {
		code, env := a.do(t, http.MethodGet, "/api/hourly-production-data?date="+testDay.String(), nil)
		require.Equal(t, http.StatusOK, code)
		got := decode[HourlyProductionDTO](t, env)
		assert.Equal(t, "all", got.Shift)
		assert.Equal(t, map[string]int{"09:00": 120, "10:00": 80}, got.HourlyProduction["BIG CYLINDER"])
		assert.Equal(t, map[string]int{"09:00": 40}, got.HourlyProduction["SMALL CYLINDER"])

		code, env = a.do(t, http.MethodGet, "/api/hourly-production-data?shift=shift-2", nil)
		require.Equal(t, http.StatusOK, code)
		got = decode[HourlyProductionDTO](t, env)
		assert.Equal(t, "shift-2", got.Shift)
		assert.Empty(t, got.HourlyProduction["BIG CYLINDER"])

		code, _ = a.do(t, http.MethodGet, "/api/hourly-production-data?date=15-03-2025", nil)
		assert.Equal(t, http.StatusBadRequest, code)
	})

	t.Run("recent plan actual", func(t *testing.T) {
		code, env := a.do(t, http.MethodGet, "/api/recent-plan-actual", nil)
		require.Equal(t, http.StatusOK, code)
		rows := decode[[]PlanActualDTO](t, env)
		require.Len(t, rows, 2)
		assert.Equal(t, "BIG CYLINDER", rows[0].PartName)
		assert.Equal(t, 200, rows[0].Actual)

		code, _ = a.do(t, http.MethodGet, "/api/recent-plan-actual?limit=0", nil)
		assert.Equal(t, http.StatusBadRequest, code)
	})

	t.Run("production status", func(t *testing.T) {
		code, env := a.do(t, http.MethodGet, "/api/production-status", nil)
		require.Equal(t, http.StatusOK, code)
		st := decode[LineStatusDTO](t, env)
		assert.Equal(t, production.LineOnline, st.Status)
		assert.True(t, st.ShiftActive)
		assert.Equal(t, "0 minutes ago", st.TimeSinceLastActivity)
		assert.Equal(t, 10, st.ThresholdMinutes)
	})

	t.Run("current shift", func(t *testing.T) {
		code, env := a.do(t, http.MethodGet, "/api/shift/current", nil)
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, ShiftDTO{Active: true, Shift: shift.First, Date: testDay, Hour: "10:00", LocalTime: "10:20"},
			decode[ShiftDTO](t, env))
	})

	t.Run("parts", func(t *testing.T) {
		code, env := a.do(t, http.MethodGet, "/api/parts", nil)
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, production.DefaultParts, decode[[]production.Part](t, env))
	})
}

func TestDashboardReads_EmptyStore(t *testing.T) {
	a := newAPI(t, shift.At(testDay, 9, 10))

	for _, path := range []string{"/api/oee", "/api/oee-history", "/api/pie", "/api/recent-plan-actual"} {
		code, env := a.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, code, path)
		assert.Equal(t, production.KindNotFound, env.Error.Kind, path)
	}

	code, _ := a.do(t, http.MethodPost, "/api/production", map[string]any{"partNumber": bigCylinder})
	assert.Equal(t, http.StatusNotFound, code)
}

// =============================================================================
// SUPERVISOR INPUT
// =============================================================================

func TestSetPlan_KeepsActual(t *testing.T) {
	a := newAPI(t, shift.At(testDay, 9, 10))
	a.report(t, bigCylinder, 300, 500)

	code, env := a.do(t, http.MethodPost, "/api/set-plan", map[string]any{
		"partNumber": bigCylinder, "shift": "shift-1", "date": testDay.String(), "plan": 550,
	})

	require.Equal(t, http.StatusOK, code, env.Message)
	pa := decode[PlanActualDTO](t, env)
	assert.Equal(t, 550, pa.Plan)
	assert.Equal(t, 300, pa.Actual)

	code, env = a.do(t, http.MethodPost, "/api/set-plan", map[string]any{
		"partNumber": bigCylinder, "shift": "shift-1", "date": testDay.String(), "plan": 0,
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "plan", env.Error.Field)
}

func TestAddCorrection(t *testing.T) {
	a := newAPI(t, shift.At(testDay, 9, 10))

	code, env := a.do(t, http.MethodPost, "/api/correction", map[string]any{
		"date": testDay.String(), "problem": " Burr on flange ", "correctiveAction": "Replaced deburring tool",
	})
	require.Equal(t, http.StatusCreated, code, env.Message)
	c := decode[CorrectionDTO](t, env)
	assert.Equal(t, "Burr on flange", c.Problem)
	assert.NotEmpty(t, c.ID)

	path := "/api/reports/corrections?startDate=" + testDay.String() + "&endDate=" + testDay.String()
	code, env = a.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decode[[]CorrectionDTO](t, env), 1)

	code, env = a.do(t, http.MethodPost, "/api/correction", map[string]any{"date": testDay.String(), "problem": "x"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "correctiveAction", env.Error.Field)
}

// =============================================================================
// REPORTS
// =============================================================================

func TestReports(t *testing.T) {
	a := newAPI(t, shift.At(testDay, 9, 10))
	a.report(t, bigCylinder, 300, 500)
	a.report(t, smallCylinder, 200, 300)
	code, env := a.do(t, http.MethodPost, "/api/quality-data", qualityBody(testDay,
		[]map[string]any{{"duration": 20, "reason": "Tool change"}, {"duration": 10, "reason": "Power"}},
		[]map[string]any{{"partNumber": bigCylinder, "count": 6, "reason": "Crack"}}))
	require.Equal(t, http.StatusOK, code, env.Message)

	rng := "?startDate=" + testDay.String() + "&endDate=" + testDay.String()

	t.Run("listings", func(t *testing.T) {
		tests := []struct {
			kind string
			want int
		}{
			{"production", 2},
			{"hourly-production", 2},
			{"rejections", 1},
			{"stoptimes", 2},
			{"oee", 1},
			{"corrections", 0},
			{"plan-actual", 2},
		}
		for _, tt := range tests {
			code, env := a.do(t, http.MethodGet, "/api/reports/"+tt.kind+rng, nil)
			require.Equal(t, http.StatusOK, code, tt.kind)
			assert.Len(t, decode[[]json.RawMessage](t, env), tt.want, tt.kind)
		}
	})

	t.Run("oee report carries raw factors", func(t *testing.T) {
		code, env := a.do(t, http.MethodGet, "/api/reports/oee"+rng, nil)
		require.Equal(t, http.StatusOK, code)
		rows := decode[[]OEEReportDTO](t, env)
		require.Len(t, rows, 1)
		assert.Equal(t, 0.9524, rows[0].Raw.Availability)
		assert.Equal(t, "95.24%", rows[0].Availability)
	})

	t.Run("range errors", func(t *testing.T) {
		code, env := a.do(t, http.MethodGet, "/api/reports/production", nil)
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, "startDate", env.Error.Field)

		code, env = a.do(t, http.MethodGet, "/api/reports/production?startDate=2025-03-16&endDate=2025-03-15", nil)
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, "endDate", env.Error.Field)

		code, _ = a.do(t, http.MethodGet, "/api/reports/unknown"+rng, nil)
		assert.Equal(t, http.StatusNotFound, code)
	})

	t.Run("monthly stats", func(t *testing.T) {
		code, env := a.do(t, http.MethodGet, "/api/monthly-stats?month=2025-03", nil)
		require.Equal(t, http.StatusOK, code)
		st := decode[MonthlyStatsDTO](t, env)
		assert.Equal(t, shift.MustParseDate("2025-03-01"), st.Period.StartDate)
		assert.Equal(t, shift.MustParseDate("2025-03-31"), st.Period.EndDate)
		assert.Equal(t, 294, st.Stats["BIG CYLINDER"].GoodCount)
		assert.Equal(t, 200, st.Stats["SMALL CYLINDER"].GoodCount)
		assert.Equal(t, []ReasonCountDTO{{Reason: "Crack", Count: 6}}, st.Stats["BIG CYLINDER"].RejectionsByReason)
	})

	t.Run("monthly runtime defaults to current month", func(t *testing.T) {
		code, env := a.do(t, http.MethodGet, "/api/monthly-runtime", nil)
		require.Equal(t, http.StatusOK, code)
		st := decode[RuntimeStatsDTO](t, env)
		assert.Equal(t, 630.0, st.TotalPlannedTime)
		assert.Equal(t, 30.0, st.TotalStopTime)
		assert.Equal(t, 600.0, st.ActualRunTime)
		assert.Equal(t, "95.24%", st.UtilizationRate)
		require.Len(t, st.StoppagesByReason, 2)
		assert.Equal(t, "Tool change", st.StoppagesByReason[0].Reason)
		assert.Equal(t, "66.67%", st.StoppagesByReason[0].Percentage)

		code, _ = a.do(t, http.MethodGet, "/api/monthly-runtime?month=March", nil)
		assert.Equal(t, http.StatusBadRequest, code)
	})
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

func TestStatusOf(t *testing.T) {
	tests := []struct {
		kind production.Kind
		want int
	}{
		{production.KindValidation, http.StatusBadRequest},
		{production.KindShiftWindow, http.StatusBadRequest},
		{production.KindReferential, http.StatusNotFound},
		{production.KindNotFound, http.StatusNotFound},
		{production.KindComputation, http.StatusUnprocessableEntity},
		{production.KindConflict, http.StatusConflict},
		{production.KindInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusOf(tt.kind), tt.kind)
	}
}

func TestRespondError_HidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/oee", nil)

	respondError(rec, req, assert.AnError)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var env testEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, production.KindInternal, env.Error.Kind)
	assert.Equal(t, "internal error", env.Error.Detail)
}

func TestHealth(t *testing.T) {
	a := newAPI(t, shift.At(testDay, 9, 10))

	code, env := a.do(t, http.MethodGet, "/healthz", nil)

	assert.Equal(t, http.StatusOK, code)
	assert.True(t, env.Success)
}
