/*
oee.go - Overall Equipment Effectiveness calculation

PURPOSE:
  Pure derivation of availability, performance, quality and OEE from the
  totals of one shift. No I/O; QualityService feeds it from the store.

FORMULAS (minutes unless noted):
  runTime      = planned - stoppages
  good         = total - rejected
  availability = runTime / planned
  performance  = (idealCycleSeconds * total) / (runTime * 60)
  quality      = good / total, or 1.0 when no rejection rows exist
  oee          = availability * performance * quality

GUARDS (checked in this order):
  total == 0             ErrNoProduction
  runTime <= 0           ErrNonPositiveRunTime
  any factor NaN / Inf   ErrInvalidOEE

  Performance is NOT clamped to 1.0.

EXAMPLE:
  total=500, stops=30, rejected=10 with the default config
    runTime=600  availability=0.952381  performance=0.5  quality=0.98
    oee=0.466667

SEE ALSO:
  - quality.go: gathers inputs and persists the OEERecord
*/
package production

import (
	"fmt"
	"math"
	"time"
)

// =============================================================================
// CONFIG
// =============================================================================

// OEEConfig holds the line constants. It is a value type; pass copies.
type OEEConfig struct {
	IdealCycleTime        time.Duration
	PlannedProductionTime time.Duration
}

// DefaultOEEConfig is a 36s ideal cycle over a 630 minute planned shift.
func DefaultOEEConfig() OEEConfig {
	return OEEConfig{
		IdealCycleTime:        36 * time.Second,
		PlannedProductionTime: 630 * time.Minute,
	}
}

// PlannedMinutes is the planned production time in minutes.
func (c OEEConfig) PlannedMinutes() float64 { return c.PlannedProductionTime.Minutes() }

func (c OEEConfig) validate() error {
	if c.IdealCycleTime <= 0 || c.PlannedProductionTime <= 0 {
		return fmt.Errorf("invalid OEE config: cycle=%s planned=%s", c.IdealCycleTime, c.PlannedProductionTime)
	}
	return nil
}

// =============================================================================
// CALCULATOR
// =============================================================================

// OEEInput is the aggregate of one shift's facts.
type OEEInput struct {
	TotalCount       int
	StoppageMinutes  float64
	RejectedCount    int
	HasRejectionRows bool
}

// OEEResult carries the four factors plus the derived counts.
type OEEResult struct {
	Availability   float64
	Performance    float64
	Quality        float64
	OEE            float64
	RunTimeMinutes float64
	TotalCount     int
	GoodCount      int
	RejectedCount  int
}

// Calculator computes OEE with a fixed config.
type Calculator struct {
	cfg OEEConfig
}

// NewCalculator panics on a non-positive config; constants are not user
// input.
func NewCalculator(cfg OEEConfig) *Calculator {
	if err := cfg.validate(); err != nil {
		panic(err)
	}
	return &Calculator{cfg: cfg}
}

func (c *Calculator) Config() OEEConfig { return c.cfg }

// Compute applies the OEE formulas. Errors are KindComputation.
func (c *Calculator) Compute(in OEEInput) (OEEResult, error) {
	const op = "oee.Compute"

	if in.TotalCount == 0 {
		return OEEResult{}, E(KindComputation, op, ErrNoProduction)
	}

	planned := c.cfg.PlannedMinutes()
	runTime := planned - in.StoppageMinutes
	if runTime <= 0 {
		return OEEResult{}, E(KindComputation, op, ErrNonPositiveRunTime)
	}

	total := float64(in.TotalCount)
	good := in.TotalCount - in.RejectedCount

	availability := runTime / planned
	performance := (c.cfg.IdealCycleTime.Seconds() * total) / (runTime * 60)
	quality := 1.0
	if in.HasRejectionRows {
		quality = float64(good) / total
	}
	oee := availability * performance * quality

	for _, v := range []float64{availability, performance, quality, oee} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return OEEResult{}, E(KindComputation, op, ErrInvalidOEE)
		}
	}

	return OEEResult{
		Availability:   availability,
		Performance:    performance,
		Quality:        quality,
		OEE:            oee,
		RunTimeMinutes: runTime,
		TotalCount:     in.TotalCount,
		GoodCount:      good,
		RejectedCount:  in.RejectedCount,
	}, nil
}
