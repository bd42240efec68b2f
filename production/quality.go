package production

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/warp/oee-tracker/logger"
	"github.com/warp/oee-tracker/shift"
)

// =============================================================================
// QUALITY SUBMISSION
// =============================================================================

// Stoppage is one downtime line of a quality submission.
type Stoppage struct {
	DurationMinutes float64
	Reason          string
}

// Rejection is one scrap line of a quality submission.
type Rejection struct {
	PartNumber string
	Count      int
	Reason     string
}

// QualitySubmission replaces a shift's stoppages and, when Rejections is
// non-empty, its rejections. An empty Rejections keeps the stored set.
type QualitySubmission struct {
	Shift      shift.Shift
	Date       shift.Date
	Stoppages  []Stoppage
	Rejections []Rejection
}

// QualityService persists quality facts and keeps the shift's OEERecord
// in step with them.
type QualityService struct {
	store Store
	calc  *Calculator
	clock shift.Clock
}

func NewQualityService(store Store, calc *Calculator, clock shift.Clock) *QualityService {
	if clock == nil {
		clock = shift.SystemClock{}
	}
	return &QualityService{store: store, calc: calc, clock: clock}
}

// Submit replaces the quality facts of one shift and recomputes its OEE,
// all in one transaction. A computation failure rolls the facts back.
func (q *QualityService) Submit(ctx context.Context, sub QualitySubmission) (*OEERecord, error) {
	const op = "quality.Submit"

	if !sub.Shift.Valid() {
		return nil, Validationf(op, "shift", "must be shift-1 or shift-2")
	}
	if sub.Date.IsZero() {
		return nil, Validationf(op, "date", "is required")
	}
	for i, s := range sub.Stoppages {
		if s.DurationMinutes < 0 {
			return nil, Validationf(op, fmt.Sprintf("stopTimes[%d].duration", i), "must be non-negative")
		}
	}
	for i, r := range sub.Rejections {
		if r.Count < 0 {
			return nil, Validationf(op, fmt.Sprintf("rejections[%d].count", i), "must be non-negative")
		}
	}

	key := ShiftKey{Shift: sub.Shift, Date: sub.Date}
	var record OEERecord

	err := q.store.WithTx(ctx, func(repo Repository) error {
		totals, err := repo.ProductionTotals(ctx, ForShift(key.Shift, key.Date))
		if err != nil {
			return err
		}
		if len(totals) == 0 {
			return &Error{Kind: KindReferential, Op: op, Err: ErrNoProductionRecord,
				Detail: fmt.Sprintf("no production record found for %s on %s", key.Shift, key.Date)}
		}

		if err := repo.ReplaceStoppages(ctx, key, q.stoppageEvents(key, sub.Stoppages)); err != nil {
			return err
		}
		if len(sub.Rejections) > 0 {
			if err := repo.ReplaceRejections(ctx, key, q.rejectionEvents(key, sub.Rejections)); err != nil {
				return err
			}
		}

		record, err = q.computeLocked(ctx, repo, key, totals)
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.C(ctx).Info().
		Str("shift", string(key.Shift)).
		Str("date", key.Date.String()).
		Float64("oee", record.OEE).
		Msg("quality data saved and OEE updated")
	return &record, nil
}

// Recompute rebuilds the OEERecord of a shift from stored facts.
func (q *QualityService) Recompute(ctx context.Context, key ShiftKey) (*OEERecord, error) {
	const op = "quality.Recompute"

	var record OEERecord
	err := q.store.WithTx(ctx, func(repo Repository) error {
		totals, err := repo.ProductionTotals(ctx, ForShift(key.Shift, key.Date))
		if err != nil {
			return err
		}
		if len(totals) == 0 {
			return &Error{Kind: KindReferential, Op: op, Err: ErrNoProductionRecord,
				Detail: fmt.Sprintf("no production record found for %s on %s", key.Shift, key.Date)}
		}
		record, err = q.computeLocked(ctx, repo, key, totals)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (q *QualityService) computeLocked(ctx context.Context, repo Repository, key ShiftKey, totals []ProductionTotal) (OEERecord, error) {
	stops, err := repo.Stoppages(ctx, ForShift(key.Shift, key.Date))
	if err != nil {
		return OEERecord{}, err
	}
	rejects, err := repo.Rejections(ctx, ForShift(key.Shift, key.Date))
	if err != nil {
		return OEERecord{}, err
	}

	res, err := q.calc.Compute(OEEInput{
		TotalCount:       lo.SumBy(totals, func(t ProductionTotal) int { return t.Count }),
		StoppageMinutes:  lo.SumBy(stops, func(s StoppageEvent) float64 { return s.DurationMinutes }),
		RejectedCount:    lo.SumBy(rejects, func(r RejectionEvent) int { return r.Count }),
		HasRejectionRows: len(rejects) > 0,
	})
	if err != nil {
		return OEERecord{}, err
	}

	record := OEERecord{
		Shift:          key.Shift,
		Date:           key.Date,
		Availability:   res.Availability,
		Performance:    res.Performance,
		Quality:        res.Quality,
		OEE:            res.OEE,
		TotalCount:     res.TotalCount,
		GoodCount:      res.GoodCount,
		RejectedCount:  res.RejectedCount,
		RunTimeMinutes: res.RunTimeMinutes,
		ComputedAt:     q.clock.Now().UTC().Truncate(time.Second),
	}
	if err := repo.UpsertOEE(ctx, record); err != nil {
		return OEERecord{}, err
	}
	return record, nil
}

func (q *QualityService) stoppageEvents(key ShiftKey, in []Stoppage) []StoppageEvent {
	return lo.Map(in, func(s Stoppage, _ int) StoppageEvent {
		return StoppageEvent{
			ID:              uuid.NewString(),
			Shift:           key.Shift,
			Date:            key.Date,
			DurationMinutes: s.DurationMinutes,
			Reason:          strings.TrimSpace(s.Reason),
		}
	})
}

// rejectionEvents drops lines without a part, a positive count or a reason.
func (q *QualityService) rejectionEvents(key ShiftKey, in []Rejection) []RejectionEvent {
	valid := lo.Filter(in, func(r Rejection, _ int) bool {
		return r.PartNumber != "" && r.Count > 0 && strings.TrimSpace(r.Reason) != ""
	})
	return lo.Map(valid, func(r Rejection, _ int) RejectionEvent {
		return RejectionEvent{
			ID:         uuid.NewString(),
			Shift:      key.Shift,
			Date:       key.Date,
			PartNumber: r.PartNumber,
			Count:      r.Count,
			Reason:     strings.TrimSpace(r.Reason),
		}
	})
}
