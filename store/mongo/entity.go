package mongo

import (
	"time"

	"github.com/warp/oee-tracker/production"
	"github.com/warp/oee-tracker/shift"
)

// Documents store dates as "2006-01-02" strings so range filters compare
// lexicographically, and shift as its wire name.

type totalEntity struct {
	PartNumber  string    `bson:"part_number"`
	Shift       string    `bson:"shift"`
	Date        string    `bson:"date"`
	Count       int       `bson:"count"`
	Target      int       `bson:"target"`
	LastUpdated time.Time `bson:"last_updated"`
}

type hourlyEntity struct {
	ID              string    `bson:"_id"`
	PartNumber      string    `bson:"part_number"`
	Shift           string    `bson:"shift"`
	Date            string    `bson:"date"`
	Hour            int       `bson:"hour"`
	HourOrdinal     int       `bson:"hour_ordinal"`
	Count           int       `bson:"count"`
	CumulativeCount int       `bson:"cumulative_count"`
	LastReportedAt  time.Time `bson:"last_reported_at"`
	Version         int       `bson:"version"`
}

type planEntity struct {
	PartNumber string    `bson:"part_number"`
	Shift      string    `bson:"shift"`
	Date       string    `bson:"date"`
	Plan       int       `bson:"plan"`
	Actual     int       `bson:"actual"`
	UpdatedAt  time.Time `bson:"updated_at"`
}

type stoppageEntity struct {
	ID       string  `bson:"_id"`
	Shift    string  `bson:"shift"`
	Date     string  `bson:"date"`
	Duration float64 `bson:"duration"`
	Reason   string  `bson:"reason"`
}

type rejectionEntity struct {
	ID         string `bson:"_id"`
	Shift      string `bson:"shift"`
	Date       string `bson:"date"`
	PartNumber string `bson:"part_number"`
	Count      int    `bson:"count"`
	Reason     string `bson:"reason"`
}

type oeeEntity struct {
	Shift          string    `bson:"shift"`
	Date           string    `bson:"date"`
	Availability   float64   `bson:"availability"`
	Performance    float64   `bson:"performance"`
	Quality        float64   `bson:"quality"`
	OEE            float64   `bson:"oee"`
	TotalCount     int       `bson:"total_count"`
	GoodCount      int       `bson:"good_count"`
	RejectedCount  int       `bson:"rejected_count"`
	RunTimeMinutes float64   `bson:"run_time_minutes"`
	ComputedAt     time.Time `bson:"computed_at"`
}

type correctionEntity struct {
	ID               string    `bson:"_id"`
	Date             string    `bson:"date"`
	Problem          string    `bson:"problem"`
	CorrectiveAction string    `bson:"corrective_action"`
	CreatedAt        time.Time `bson:"created_at"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func parseDate(s string) shift.Date {
	d, _ := shift.ParseDate(s)
	return d
}

func totalToModel(e totalEntity) production.ProductionTotal {
	return production.ProductionTotal{
		PartNumber:  e.PartNumber,
		Shift:       shift.Shift(e.Shift),
		Date:        parseDate(e.Date),
		Count:       e.Count,
		Target:      e.Target,
		LastUpdated: e.LastUpdated,
	}
}

func hourlyFromModel(h production.HourlyDelta) hourlyEntity {
	return hourlyEntity{
		ID:              h.ID,
		PartNumber:      h.PartNumber,
		Shift:           string(h.Shift),
		Date:            h.Date.String(),
		Hour:            int(h.Hour),
		HourOrdinal:     h.Hour.Ordinal(),
		Count:           h.Count,
		CumulativeCount: h.CumulativeCount,
		LastReportedAt:  h.LastReportedAt.UTC(),
		Version:         h.Version,
	}
}

func hourlyToModel(e hourlyEntity) production.HourlyDelta {
	return production.HourlyDelta{
		ID:              e.ID,
		PartNumber:      e.PartNumber,
		Shift:           shift.Shift(e.Shift),
		Date:            parseDate(e.Date),
		Hour:            shift.Hour(e.Hour),
		Count:           e.Count,
		CumulativeCount: e.CumulativeCount,
		LastReportedAt:  e.LastReportedAt,
		Version:         e.Version,
	}
}

func planToModel(e planEntity) production.PlanActual {
	return production.PlanActual{
		PartNumber: e.PartNumber,
		Shift:      shift.Shift(e.Shift),
		Date:       parseDate(e.Date),
		Plan:       e.Plan,
		Actual:     e.Actual,
		UpdatedAt:  e.UpdatedAt,
	}
}

func stoppageToModel(e stoppageEntity) production.StoppageEvent {
	return production.StoppageEvent{
		ID:              e.ID,
		Shift:           shift.Shift(e.Shift),
		Date:            parseDate(e.Date),
		DurationMinutes: e.Duration,
		Reason:          e.Reason,
	}
}

func rejectionToModel(e rejectionEntity) production.RejectionEvent {
	return production.RejectionEvent{
		ID:         e.ID,
		Shift:      shift.Shift(e.Shift),
		Date:       parseDate(e.Date),
		PartNumber: e.PartNumber,
		Count:      e.Count,
		Reason:     e.Reason,
	}
}

func oeeFromModel(r production.OEERecord) oeeEntity {
	return oeeEntity{
		Shift:          string(r.Shift),
		Date:           r.Date.String(),
		Availability:   r.Availability,
		Performance:    r.Performance,
		Quality:        r.Quality,
		OEE:            r.OEE,
		TotalCount:     r.TotalCount,
		GoodCount:      r.GoodCount,
		RejectedCount:  r.RejectedCount,
		RunTimeMinutes: r.RunTimeMinutes,
		ComputedAt:     r.ComputedAt.UTC(),
	}
}

func oeeToModel(e oeeEntity) production.OEERecord {
	return production.OEERecord{
		Shift:          shift.Shift(e.Shift),
		Date:           parseDate(e.Date),
		Availability:   e.Availability,
		Performance:    e.Performance,
		Quality:        e.Quality,
		OEE:            e.OEE,
		TotalCount:     e.TotalCount,
		GoodCount:      e.GoodCount,
		RejectedCount:  e.RejectedCount,
		RunTimeMinutes: e.RunTimeMinutes,
		ComputedAt:     e.ComputedAt,
	}
}

func correctionToModel(e correctionEntity) production.Correction {
	return production.Correction{
		ID:               e.ID,
		Date:             parseDate(e.Date),
		Problem:          e.Problem,
		CorrectiveAction: e.CorrectiveAction,
		CreatedAt:        e.CreatedAt,
	}
}
