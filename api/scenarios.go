/*
scenarios.go - Demo scenario loaders for dashboards and demonstrations

PURPOSE:

	Replays scripted PLC counter sequences through the real Reconciler so
	the dashboards have data without a line attached. Each scenario drives
	a manual clock across one shift, reporting every ten minutes, then
	submits the shift's quality data so an OEE record exists.

AVAILABLE SCENARIOS:

	day-shift:      yesterday's shift-1, steady production, two stoppages
	night-shift:    yesterday's shift-2, crossing midnight into the next day
	counter-reset:  shift-1 two days ago, PLC counter restarts mid-shift

HOW SCENARIOS WORK:
 1. Refuse if the target shift already has production data
 2. Set the plan for every catalog part
 3. Advance the clock tick by tick, reporting cumulative counts
 4. Submit stoppages and rejections, which computes OEE

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "night-shift"}

NOTE:

	Scenarios write into the configured store. Only use in development/demo
	environments.

SEE ALSO:
  - handlers.go: Handler and its services
  - production/reconciler.go: the reconciliation being replayed
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/warp/oee-tracker/logger"
	"github.com/warp/oee-tracker/production"
	"github.com/warp/oee-tracker/shift"
)

const scenarioStep = 10 * time.Minute

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "day-shift",
		Name:        "Day Shift",
		Description: "Yesterday's shift-1 with steady output, a tool change and a material wait",
	},
	{
		ID:          "night-shift",
		Name:        "Night Shift",
		Description: "Yesterday's shift-2, reported across midnight into the early morning",
	},
	{
		ID:          "counter-reset",
		Name:        "Counter Reset",
		Description: "Shift-1 two days ago where the PLC counter restarts at 13:00",
	},
}

// replay is one scripted shift.
type replay struct {
	Shift shift.Shift
	Date  shift.Date
	Plan  map[string]int
	// Rates are per-tick increments, cycled when the shift is longer.
	Rates map[string][]int
	// ResetAt restarts every counter at zero from this tick; 0 disables.
	ResetAt    int
	Stoppages  []production.Stoppage
	Rejections []production.Rejection
}

func (h *Handler) scenarioReplay(id string) (replay, bool) {
	today := shift.DateOf(h.Resolver.Now())
	big, small := h.scenarioParts()

	switch id {
	case "day-shift":
		return replay{
			Shift: shift.First,
			Date:  today.AddDays(-1),
			Plan:  map[string]int{big: 350, small: 220},
			Rates: map[string][]int{big: {5, 6, 5, 4, 6, 5}, small: {3, 4, 3, 3, 4, 3}},
			Stoppages: []production.Stoppage{
				{DurationMinutes: 20, Reason: "Tool change"},
				{DurationMinutes: 15, Reason: "Material wait"},
			},
			Rejections: []production.Rejection{
				{PartNumber: big, Count: 8, Reason: "Porosity"},
				{PartNumber: small, Count: 5, Reason: "Dimension out of tolerance"},
			},
		}, true

	case "night-shift":
		return replay{
			Shift: shift.Second,
			Date:  today.AddDays(-1),
			Plan:  map[string]int{big: 300, small: 200},
			Rates: map[string][]int{big: {4, 5, 5, 4, 5, 4}, small: {3, 3, 4, 3, 2, 3}},
			Stoppages: []production.Stoppage{
				{DurationMinutes: 45, Reason: "Power failure"},
			},
			Rejections: []production.Rejection{
				{PartNumber: big, Count: 6, Reason: "Porosity"},
			},
		}, true

	case "counter-reset":
		return replay{
			Shift:   shift.First,
			Date:    today.AddDays(-2),
			Plan:    map[string]int{big: 350, small: 220},
			Rates:   map[string][]int{big: {5, 5, 6, 5}, small: {3, 4, 3, 3}},
			ResetAt: 27, // 13:00
			Stoppages: []production.Stoppage{
				{DurationMinutes: 10, Reason: "PLC restart"},
			},
		}, true
	}
	return replay{}, false
}

// scenarioParts picks the first two catalog parts, repeating the first
// for single-part catalogs.
func (h *Handler) scenarioParts() (string, string) {
	parts := h.Catalog.Parts()
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0].Number, parts[0].Number
	}
	return parts[0].Number, parts[1].Number
}

// =============================================================================
// HANDLERS
// =============================================================================

// ListScenarios returns available scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	respondOK(w, "", scenarios)
}

// GetCurrentScenario returns the most recently loaded scenario, if any.
// GET /api/scenarios/current
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	current := h.currentScenario
	h.mu.RUnlock()

	for _, s := range scenarios {
		if s.ID == current {
			respondOK(w, "", s)
			return
		}
	}
	respondOK(w, "no scenario loaded", nil)
}

// LoadScenario replays a predefined scenario.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	const op = "api.LoadScenario"

	req, err := parseJSON[LoadScenarioRequest](r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	rp, ok := h.scenarioReplay(req.ScenarioID)
	if !ok {
		respondError(w, r, production.Validationf(op, "scenario_id", "unknown scenario %q", req.ScenarioID))
		return
	}

	rec, err := h.runReplay(r.Context(), rp)
	if err != nil {
		respondError(w, r, err)
		return
	}

	h.mu.Lock()
	h.currentScenario = req.ScenarioID
	h.mu.Unlock()

	respondOK(w, "Scenario loaded", map[string]any{
		"scenario": req.ScenarioID,
		"shift":    rp.Shift,
		"date":     rp.Date,
		"oee":      toOEEDTO(*rec),
	})
}

// =============================================================================
// REPLAY
// =============================================================================

func shiftSpan(d shift.Date, s shift.Shift) (start, end time.Time) {
	if s == shift.Second {
		return shift.At(d, 20, 30), shift.At(d.AddDays(1), 7, 0)
	}
	return shift.At(d, 8, 30), shift.At(d, 19, 0)
}

// runReplay drives a Reconciler on its own manual clock over the shared
// store, then submits the quality data.
func (h *Handler) runReplay(ctx context.Context, rp replay) (*production.OEERecord, error) {
	const op = "api.runReplay"
	key := production.ShiftKey{Shift: rp.Shift, Date: rp.Date}

	existing, err := h.Store.ProductionTotals(ctx, production.ForShift(rp.Shift, rp.Date))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if len(existing) > 0 {
		return nil, &production.Error{Kind: production.KindConflict, Op: op,
			Detail: fmt.Sprintf("%s already has production data", key)}
	}

	start, end := shiftSpan(rp.Date, rp.Shift)
	clock := shift.NewManualClock(start)
	reconciler := production.NewReconciler(h.Store, shift.NewResolver(clock), h.Catalog)
	planner := production.NewPlanner(h.Store, h.Catalog, clock)

	for part, plan := range rp.Plan {
		pk := production.PartShiftKey{PartNumber: part, Shift: rp.Shift, Date: rp.Date}
		if _, err := planner.SetPlan(ctx, pk, plan); err != nil {
			return nil, err
		}
	}

	counts := make(map[string]int)
	tick := 0
	for t := start; !t.After(end); t = t.Add(scenarioStep) {
		clock.Set(t)
		if rp.ResetAt > 0 && tick == rp.ResetAt {
			counts = make(map[string]int)
		}
		for _, p := range h.Catalog.Parts() {
			rates := rp.Rates[p.Number]
			if len(rates) == 0 {
				continue
			}
			counts[p.Number] += rates[tick%len(rates)]
			if _, err := reconciler.Record(ctx, production.CounterReport{
				PartNumber: p.Number,
				Count:      counts[p.Number],
				Target:     rp.Plan[p.Number],
			}); err != nil {
				return nil, err
			}
		}
		tick++
	}

	quality := production.NewQualityService(h.Store, production.NewCalculator(h.oee), clock)
	rec, err := quality.Submit(ctx, production.QualitySubmission{
		Shift:      rp.Shift,
		Date:       rp.Date,
		Stoppages:  rp.Stoppages,
		Rejections: rp.Rejections,
	})
	if err != nil {
		return nil, err
	}

	logger.C(ctx).Info().
		Str("shift", string(rp.Shift)).
		Str("date", rp.Date.String()).
		Int("ticks", tick).
		Msg("scenario replayed")
	return rec, nil
}
