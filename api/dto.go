package api

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	"github.com/warp/oee-tracker/production"
	"github.com/warp/oee-tracker/shift"
)

// =============================================================================
// REQUEST DTOs
// =============================================================================

// PartNumber accepts a JSON string or number. PLCs send the part as a
// bare integer.
type PartNumber string

func (p *PartNumber) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*p = ""
		return nil
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*p = PartNumber(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return production.Validationf("api.PartNumber", "partNumber", "must be a string or number")
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return production.Validationf("api.PartNumber", "partNumber", "must be an integer, got %s", n)
	}
	*p = PartNumber(n.String())
	return nil
}

// CounterReportRequest is the body of POST /spark/data.
type CounterReportRequest struct {
	PartNumber PartNumber `json:"partNumber" validate:"required"`
	Count      *int       `json:"count" validate:"required,min=0"`
	Target     *int       `json:"target" validate:"required,min=0"`
}

type StopTimeRequest struct {
	Duration float64 `json:"duration" validate:"min=0"`
	Reason   string  `json:"reason"`
}

type RejectionRequest struct {
	PartNumber PartNumber `json:"partNumber"`
	Count      int        `json:"count"`
	Reason     string     `json:"reason"`
}

// QualityRequest is the body of POST /api/quality-data. Rejection lines
// are not validated: incomplete lines are dropped.
type QualityRequest struct {
	Shift      string             `json:"shift" validate:"required,oneof=shift-1 shift-2"`
	Date       string             `json:"date" validate:"required,datetime=2006-01-02"`
	StopTimes  []StopTimeRequest  `json:"stopTimes" validate:"required,dive"`
	Rejections []RejectionRequest `json:"rejections"`
}

func (q QualityRequest) submission() production.QualitySubmission {
	sub := production.QualitySubmission{
		Shift: shift.Shift(q.Shift),
		Date:  shift.MustParseDate(q.Date),
	}
	for _, s := range q.StopTimes {
		sub.Stoppages = append(sub.Stoppages, production.Stoppage{DurationMinutes: s.Duration, Reason: s.Reason})
	}
	for _, r := range q.Rejections {
		sub.Rejections = append(sub.Rejections, production.Rejection{
			PartNumber: string(r.PartNumber),
			Count:      r.Count,
			Reason:     r.Reason,
		})
	}
	return sub
}

type ProductionRequest struct {
	PartNumber PartNumber `json:"partNumber" validate:"required"`
}

type SetPlanRequest struct {
	PartNumber PartNumber `json:"partNumber" validate:"required"`
	Shift      string     `json:"shift" validate:"required,oneof=shift-1 shift-2"`
	Date       string     `json:"date" validate:"required,datetime=2006-01-02"`
	Plan       int        `json:"plan" validate:"required,gt=0"`
}

type CorrectionRequest struct {
	Date             string `json:"date" validate:"required,datetime=2006-01-02"`
	Problem          string `json:"problem" validate:"required"`
	CorrectiveAction string `json:"correctiveAction" validate:"required"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// =============================================================================
// RESPONSE DTOs
// =============================================================================

type PartDetailsDTO struct {
	PartNumber   string      `json:"partNumber"`
	CurrentCount int         `json:"currentCount"`
	Target       int         `json:"target"`
	Shift        shift.Shift `json:"shift"`
	Date         shift.Date  `json:"date"`
}

type HourlyDataDTO struct {
	Hour            string `json:"hour"`
	Count           int    `json:"count"`
	CumulativeCount int    `json:"cumulativeCount"`
}

type PlanActualSummaryDTO struct {
	Plan   int `json:"plan"`
	Actual int `json:"actual"`
}

type CounterReportResponse struct {
	PartDetails PartDetailsDTO       `json:"partDetails"`
	HourlyData  HourlyDataDTO        `json:"hourlyData"`
	PlanActual  PlanActualSummaryDTO `json:"planActual"`
	Action      production.Action    `json:"action"`
}

func toCounterReportResponse(res *production.ReportResult) CounterReportResponse {
	return CounterReportResponse{
		PartDetails: PartDetailsDTO{
			PartNumber:   res.Total.PartNumber,
			CurrentCount: res.Total.Count,
			Target:       res.Total.Target,
			Shift:        res.Total.Shift,
			Date:         res.Total.Date,
		},
		HourlyData: HourlyDataDTO{
			Hour:            res.Hourly.Hour.Label(),
			Count:           res.Hourly.Count,
			CumulativeCount: res.Hourly.CumulativeCount,
		},
		PlanActual: PlanActualSummaryDTO{Plan: res.PlanActual.Plan, Actual: res.PlanActual.Actual},
		Action:     res.Action,
	}
}

// OEEDTO renders factors as "NN.NN%".
type OEEDTO struct {
	Availability  string      `json:"availability"`
	Performance   string      `json:"performance"`
	Quality       string      `json:"quality"`
	OEE           string      `json:"oee"`
	TotalCount    int         `json:"totalCount"`
	GoodCount     int         `json:"goodCount"`
	RejectedCount int         `json:"rejectedCount"`
	RunTime       float64     `json:"runTime"`
	Date          shift.Date  `json:"date"`
	Shift         shift.Shift `json:"shift"`
}

func toOEEDTO(r production.OEERecord) OEEDTO {
	return OEEDTO{
		Availability:  production.Percent(r.Availability),
		Performance:   production.Percent(r.Performance),
		Quality:       production.Percent(r.Quality),
		OEE:           production.Percent(r.OEE),
		TotalCount:    r.TotalCount,
		GoodCount:     r.GoodCount,
		RejectedCount: r.RejectedCount,
		RunTime:       r.RunTimeMinutes,
		Date:          r.Date,
		Shift:         r.Shift,
	}
}

type OEEHistoryDTO struct {
	Date  shift.Date  `json:"date"`
	Shift shift.Shift `json:"shift"`
	OEE   string      `json:"oee"`
}

type QualityResponse struct {
	Shift               shift.Shift `json:"shift"`
	Date                shift.Date  `json:"date"`
	StoppagesProcessed  int         `json:"stoppagesProcessed"`
	RejectionsSubmitted int         `json:"rejectionsSubmitted"`
	OEE                 OEEDTO      `json:"oee"`
}

type ProductionDTO struct {
	PartNumber string      `json:"partNumber"`
	Plan       int         `json:"plan"`
	Actual     int         `json:"actual"`
	Shift      shift.Shift `json:"shift"`
	Date       shift.Date  `json:"date"`
}

type LineStatusDTO struct {
	Status                production.LineState `json:"status"`
	ShiftActive           bool                 `json:"shiftActive"`
	Shift                 shift.Shift          `json:"shift,omitempty"`
	Date                  shift.Date           `json:"date"`
	LastActivity          *time.Time           `json:"lastActivity"`
	TimeSinceLastActivity string               `json:"timeSinceLastActivity,omitempty"`
	ThresholdMinutes      int                  `json:"thresholdMinutes"`
	CheckedAt             time.Time            `json:"checkedAt"`
}

func toLineStatusDTO(s production.LineStatus) LineStatusDTO {
	return LineStatusDTO{
		Status:                s.State,
		ShiftActive:           s.ShiftActive,
		Shift:                 s.Window.Shift,
		Date:                  s.Window.Date,
		LastActivity:          s.LastActivity,
		TimeSinceLastActivity: s.SinceLastText(),
		ThresholdMinutes:      int(s.Threshold.Minutes()),
		CheckedAt:             s.CheckedAt,
	}
}

type HourlyProductionDTO struct {
	Date             shift.Date                `json:"date"`
	Shift            string                    `json:"shift"`
	HourlyProduction map[string]map[string]int `json:"hourlyProduction"`
}

type PlanActualDTO struct {
	PartNumber string      `json:"partNumber"`
	PartName   string      `json:"partName"`
	Shift      shift.Shift `json:"shift"`
	Date       shift.Date  `json:"date"`
	Plan       int         `json:"plan"`
	Actual     int         `json:"actual"`
	UpdatedAt  time.Time   `json:"updatedAt"`
}

type CorrectionDTO struct {
	ID               string     `json:"id"`
	Date             shift.Date `json:"date"`
	Problem          string     `json:"problem"`
	CorrectiveAction string     `json:"correctiveAction"`
	CreatedAt        time.Time  `json:"createdAt"`
}

func toCorrectionDTO(c production.Correction) CorrectionDTO {
	return CorrectionDTO{
		ID:               c.ID,
		Date:             c.Date,
		Problem:          c.Problem,
		CorrectiveAction: c.CorrectiveAction,
		CreatedAt:        c.CreatedAt,
	}
}

type ProductionTotalDTO struct {
	PartNumber  string      `json:"partNumber"`
	PartName    string      `json:"partName"`
	Shift       shift.Shift `json:"shift"`
	Date        shift.Date  `json:"date"`
	Count       int         `json:"count"`
	Target      int         `json:"target"`
	LastUpdated time.Time   `json:"lastUpdated"`
}

type HourlyRowDTO struct {
	PartNumber      string      `json:"partNumber"`
	PartName        string      `json:"partName"`
	Shift           shift.Shift `json:"shift"`
	Date            shift.Date  `json:"date"`
	Hour            string      `json:"hour"`
	Count           int         `json:"count"`
	CumulativeCount int         `json:"cumulativeCount"`
	LastReportedAt  time.Time   `json:"lastReportedAt"`
}

type StoppageDTO struct {
	Shift    shift.Shift `json:"shift"`
	Date     shift.Date  `json:"date"`
	Duration float64     `json:"duration"`
	Reason   string      `json:"reason"`
}

type RejectionDTO struct {
	Shift      shift.Shift `json:"shift"`
	Date       shift.Date  `json:"date"`
	PartNumber string      `json:"partNumber"`
	PartName   string      `json:"partName"`
	Count      int         `json:"count"`
	Reason     string      `json:"reason"`
}

type OEEReportDTO struct {
	OEEDTO
	Raw struct {
		Availability float64 `json:"availability"`
		Performance  float64 `json:"performance"`
		Quality      float64 `json:"quality"`
		OEE          float64 `json:"oee"`
	} `json:"raw"`
}

type ReasonCountDTO struct {
	Reason string `json:"reason"`
	Count  int    `json:"count"`
}

type PartStatsDTO struct {
	PartNumber         string           `json:"partNumber"`
	TotalProduction    int              `json:"totalProduction"`
	GoodCount          int              `json:"goodCount"`
	TotalRejections    int              `json:"totalRejections"`
	RejectionsByReason []ReasonCountDTO `json:"rejectionsByReason"`
}

type PeriodDTO struct {
	StartDate shift.Date `json:"startDate"`
	EndDate   shift.Date `json:"endDate"`
}

type MonthlyStatsDTO struct {
	Period PeriodDTO               `json:"period"`
	Stats  map[string]PartStatsDTO `json:"stats"`
}

type StoppageShareDTO struct {
	Reason      string  `json:"reason"`
	Duration    float64 `json:"duration"`
	Occurrences int     `json:"occurrences"`
	Percentage  string  `json:"percentage"`
}

type RuntimeStatsDTO struct {
	Period            PeriodDTO          `json:"period"`
	TotalPlannedTime  float64            `json:"totalPlannedTime"`
	TotalStopTime     float64            `json:"totalStopTime"`
	ActualRunTime     float64            `json:"actualRunTime"`
	UtilizationRate   string             `json:"utilizationRate"`
	StoppagesByReason []StoppageShareDTO `json:"stoppagesByReason"`
}

type ShiftDTO struct {
	Active    bool        `json:"active"`
	Shift     shift.Shift `json:"shift,omitempty"`
	Date      shift.Date  `json:"date"`
	Hour      string      `json:"hour"`
	LocalTime string      `json:"localTime"`
}

func toShiftDTO(w shift.Window) ShiftDTO {
	return ShiftDTO{
		Active:    w.Active(),
		Shift:     w.Shift,
		Date:      w.Date,
		Hour:      w.Hour.Label(),
		LocalTime: w.LocalTime,
	}
}

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}
