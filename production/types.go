package production

import (
	"fmt"
	"time"

	"github.com/warp/oee-tracker/shift"
)

// =============================================================================
// KEYS
// =============================================================================

// ShiftKey identifies one shift occurrence.
type ShiftKey struct {
	Shift shift.Shift
	Date  shift.Date
}

func (k ShiftKey) String() string { return fmt.Sprintf("%s/%s", k.Date, k.Shift) }

// PartShiftKey identifies one part within one shift occurrence.
type PartShiftKey struct {
	PartNumber string
	Shift      shift.Shift
	Date       shift.Date
}

func (k PartShiftKey) ShiftKey() ShiftKey { return ShiftKey{Shift: k.Shift, Date: k.Date} }

func (k PartShiftKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.PartNumber, k.Date, k.Shift)
}

// =============================================================================
// PRODUCTION FACTS
// =============================================================================

// ProductionTotal is the latest cumulative count reported for a part in a
// shift. Unique per (part, shift, date).
type ProductionTotal struct {
	PartNumber  string
	Shift       shift.Shift
	Date        shift.Date
	Count       int
	Target      int
	LastUpdated time.Time
}

func (p ProductionTotal) Key() PartShiftKey {
	return PartShiftKey{PartNumber: p.PartNumber, Shift: p.Shift, Date: p.Date}
}

// HourlyDelta is the production attributed to one hour bucket.
// CumulativeCount is the counter value at the latest report in the bucket.
// Version increments on every in-place update and guards concurrent writers.
type HourlyDelta struct {
	ID              string
	PartNumber      string
	Shift           shift.Shift
	Date            shift.Date
	Hour            shift.Hour
	Count           int
	CumulativeCount int
	LastReportedAt  time.Time
	Version         int
}

func (h HourlyDelta) Key() PartShiftKey {
	return PartShiftKey{PartNumber: h.PartNumber, Shift: h.Shift, Date: h.Date}
}

// Baseline is the cumulative count at the start of the bucket.
func (h HourlyDelta) Baseline() int { return h.CumulativeCount - h.Count }

// PlanActual compares the planned quantity for a part in a shift with the
// latest reported count.
type PlanActual struct {
	PartNumber string
	Shift      shift.Shift
	Date       shift.Date
	Plan       int
	Actual     int
	UpdatedAt  time.Time
}

func (p PlanActual) Key() PartShiftKey {
	return PartShiftKey{PartNumber: p.PartNumber, Shift: p.Shift, Date: p.Date}
}

// =============================================================================
// QUALITY FACTS
// =============================================================================

// StoppageEvent is a block of downtime reported for a shift.
type StoppageEvent struct {
	ID              string
	Shift           shift.Shift
	Date            shift.Date
	DurationMinutes float64
	Reason          string
}

// RejectionEvent is a batch of scrapped parts reported for a shift.
type RejectionEvent struct {
	ID         string
	Shift      shift.Shift
	Date       shift.Date
	PartNumber string
	Count      int
	Reason     string
}

// OEERecord is the computed effectiveness of one shift. Factors are
// fractions (0.95, not 95).
type OEERecord struct {
	Shift          shift.Shift
	Date           shift.Date
	Availability   float64
	Performance    float64
	Quality        float64
	OEE            float64
	TotalCount     int
	GoodCount      int
	RejectedCount  int
	RunTimeMinutes float64
	ComputedAt     time.Time
}

func (r OEERecord) Key() ShiftKey { return ShiftKey{Shift: r.Shift, Date: r.Date} }

// Correction is an operator log entry describing a problem and the action
// taken.
type Correction struct {
	ID               string
	Date             shift.Date
	Problem          string
	CorrectiveAction string
	CreatedAt        time.Time
}
