/*
reports.go - Read-side aggregation over persisted production facts

PURPOSE:
  Dashboard and report queries: latest OEE, OEE history, part share of
  the latest shift, hourly breakdowns, plan-vs-actual, range listings and
  monthly rollups. Aggregation happens in Go over Filter queries so every
  Store implementation gets the same numbers.

MONTHLY ROLLUPS:
  MonthlyStats    per part: production, rejections, good count, reasons
  MonthlyRuntime  planned time = OEE records x planned minutes,
                  stop time by reason with share of total,
                  utilization = run time / planned time

SEE ALSO:
  - format.go: percentage rendering
  - api/handlers.go: HTTP shapes of these results
*/
package production

import (
	"context"
	"fmt"
	"sort"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/warp/oee-tracker/shift"
)

type Reports struct {
	repo    Repository
	catalog *Catalog
	cfg     OEEConfig
}

func NewReports(repo Repository, catalog *Catalog, cfg OEEConfig) *Reports {
	return &Reports{repo: repo, catalog: catalog, cfg: cfg}
}

func notFound(op, detail string) *Error {
	return &Error{Kind: KindNotFound, Op: op, Detail: detail, Err: ErrNotFound}
}

// =============================================================================
// DASHBOARD
// =============================================================================

// LatestOEE returns the most recent shift's OEE record.
func (r *Reports) LatestOEE(ctx context.Context) (*OEERecord, error) {
	const op = "reports.LatestOEE"

	rows, err := r.repo.OEERecords(ctx, Filter{Desc: true, Limit: 1})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if len(rows) == 0 {
		return nil, notFound(op, "no OEE data found")
	}
	return &rows[0], nil
}

// OEEHistory lists every OEE record, newest first.
func (r *Reports) OEEHistory(ctx context.Context) ([]OEERecord, error) {
	const op = "reports.OEEHistory"

	rows, err := r.repo.OEERecords(ctx, Filter{Desc: true})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if len(rows) == 0 {
		return nil, notFound(op, "no OEE history found")
	}
	return rows, nil
}

// PartShare returns the count per part name for the latest shift with
// production. Catalog parts without rows report 0.
func (r *Reports) PartShare(ctx context.Context) (ShiftKey, map[string]int, error) {
	const op = "reports.PartShare"

	latest, err := r.repo.ProductionTotals(ctx, Filter{Desc: true, Limit: 1})
	if err != nil {
		return ShiftKey{}, nil, fmt.Errorf("%s: %w", op, err)
	}
	if len(latest) == 0 {
		return ShiftKey{}, nil, notFound(op, "no records found")
	}
	key := ShiftKey{Shift: latest[0].Shift, Date: latest[0].Date}

	rows, err := r.repo.ProductionTotals(ctx, ForShift(key.Shift, key.Date))
	if err != nil {
		return ShiftKey{}, nil, fmt.Errorf("%s: %w", op, err)
	}

	share := make(map[string]int)
	for _, p := range r.catalog.Parts() {
		share[p.Name] = 0
	}
	for _, t := range rows {
		share[r.catalog.Name(t.PartNumber)] += t.Count
	}
	return key, share, nil
}

// LatestForPart returns the newest ProductionTotal of one part.
func (r *Reports) LatestForPart(ctx context.Context, part string) (*ProductionTotal, error) {
	const op = "reports.LatestForPart"

	rows, err := r.repo.ProductionTotals(ctx, Filter{PartNumber: part, Desc: true, Limit: 1})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if len(rows) == 0 {
		return nil, notFound(op, "no production data found for this part number")
	}
	return &rows[0], nil
}

// HourlyBreakdown maps part name -> hour label -> delta count.
type HourlyBreakdown struct {
	Date  shift.Date
	Shift shift.Shift // None means both shifts
	Parts map[string]map[string]int
	Hours []HourlyDelta
}

// Hourly returns the hourly deltas of a date, optionally one shift. A
// zero date means the latest date with production.
func (r *Reports) Hourly(ctx context.Context, date shift.Date, s shift.Shift) (*HourlyBreakdown, error) {
	const op = "reports.Hourly"

	if date.IsZero() {
		latest, err := r.repo.ProductionTotals(ctx, Filter{Desc: true, Limit: 1})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if len(latest) == 0 {
			return nil, notFound(op, "no production data found")
		}
		date = latest[0].Date
	}

	rows, err := r.repo.HourlyDeltas(ctx, ForShift(s, date))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	out := &HourlyBreakdown{Date: date, Shift: s, Parts: make(map[string]map[string]int), Hours: rows}
	for _, p := range r.catalog.Parts() {
		out.Parts[p.Name] = make(map[string]int)
	}
	for _, h := range rows {
		name := r.catalog.Name(h.PartNumber)
		if out.Parts[name] == nil {
			out.Parts[name] = make(map[string]int)
		}
		out.Parts[name][h.Hour.Label()] += h.Count
	}
	return out, nil
}

// RecentPlanActual lists the newest plan/actual rows.
func (r *Reports) RecentPlanActual(ctx context.Context, limit int) ([]PlanActual, error) {
	const op = "reports.RecentPlanActual"

	rows, err := r.repo.PlanActuals(ctx, Filter{Desc: true, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if len(rows) == 0 {
		return nil, notFound(op, "no plan-actual records found")
	}
	return rows, nil
}

// =============================================================================
// RANGE LISTINGS
// =============================================================================

// DateRange is an inclusive report window.
type DateRange struct {
	From shift.Date
	To   shift.Date
}

// Validate requires both ends and From <= To.
func (d DateRange) Validate(op string) error {
	if d.From.IsZero() || d.To.IsZero() {
		return Validationf(op, "startDate", "both startDate and endDate are required")
	}
	if d.To.Before(d.From) {
		return Validationf(op, "endDate", "must not be before startDate")
	}
	return nil
}

func (d DateRange) filter() Filter { return Between(d.From, d.To) }

func (r *Reports) Production(ctx context.Context, rng DateRange) ([]ProductionTotal, error) {
	if err := rng.Validate("reports.Production"); err != nil {
		return nil, err
	}
	return r.repo.ProductionTotals(ctx, rng.filter())
}

func (r *Reports) HourlyProduction(ctx context.Context, rng DateRange) ([]HourlyDelta, error) {
	if err := rng.Validate("reports.HourlyProduction"); err != nil {
		return nil, err
	}
	return r.repo.HourlyDeltas(ctx, rng.filter())
}

func (r *Reports) Rejections(ctx context.Context, rng DateRange) ([]RejectionEvent, error) {
	if err := rng.Validate("reports.Rejections"); err != nil {
		return nil, err
	}
	return r.repo.Rejections(ctx, rng.filter())
}

func (r *Reports) Stoppages(ctx context.Context, rng DateRange) ([]StoppageEvent, error) {
	if err := rng.Validate("reports.Stoppages"); err != nil {
		return nil, err
	}
	return r.repo.Stoppages(ctx, rng.filter())
}

func (r *Reports) OEE(ctx context.Context, rng DateRange) ([]OEERecord, error) {
	if err := rng.Validate("reports.OEE"); err != nil {
		return nil, err
	}
	return r.repo.OEERecords(ctx, rng.filter())
}

func (r *Reports) Corrections(ctx context.Context, rng DateRange) ([]Correction, error) {
	if err := rng.Validate("reports.Corrections"); err != nil {
		return nil, err
	}
	return r.repo.Corrections(ctx, rng.filter())
}

func (r *Reports) PlanActual(ctx context.Context, rng DateRange) ([]PlanActual, error) {
	if err := rng.Validate("reports.PlanActual"); err != nil {
		return nil, err
	}
	return r.repo.PlanActuals(ctx, rng.filter())
}

// =============================================================================
// MONTHLY ROLLUPS
// =============================================================================

type ReasonCount struct {
	Reason string
	Count  int
}

type PartStats struct {
	PartNumber         string
	TotalProduction    int
	GoodCount          int
	TotalRejections    int
	RejectionsByReason []ReasonCount
}

type MonthlyStats struct {
	Period DateRange
	Stats  map[string]PartStats // by part name
}

// MonthlyStats sums production and rejections per part over a month.
func (r *Reports) MonthlyStats(ctx context.Context, m shift.Month) (*MonthlyStats, error) {
	const op = "reports.MonthlyStats"
	rng := DateRange{From: m.First(), To: m.Last()}

	var (
		totals  []ProductionTotal
		rejects []RejectionEvent
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		totals, err = r.repo.ProductionTotals(gctx, rng.filter())
		return err
	})
	g.Go(func() (err error) {
		rejects, err = r.repo.Rejections(gctx, rng.filter())
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	out := &MonthlyStats{Period: rng, Stats: make(map[string]PartStats)}
	for _, p := range r.catalog.Parts() {
		out.Stats[p.Name] = PartStats{PartNumber: p.Number, RejectionsByReason: []ReasonCount{}}
	}

	produced := lo.GroupBy(totals, func(t ProductionTotal) string { return t.PartNumber })
	scrapped := lo.GroupBy(rejects, func(r RejectionEvent) string { return r.PartNumber })
	parts := lo.Uniq(append(lo.Keys(produced), lo.Keys(scrapped)...))

	for _, part := range parts {
		name := r.catalog.Name(part)
		st := out.Stats[name]
		st.PartNumber = part
		st.TotalProduction = lo.SumBy(produced[part], func(t ProductionTotal) int { return t.Count })
		st.TotalRejections = lo.SumBy(scrapped[part], func(r RejectionEvent) int { return r.Count })
		st.GoodCount = st.TotalProduction - st.TotalRejections
		st.RejectionsByReason = lo.Map(scrapped[part], func(r RejectionEvent, _ int) ReasonCount {
			return ReasonCount{Reason: r.Reason, Count: r.Count}
		})
		out.Stats[name] = st
	}
	return out, nil
}

type StoppageShare struct {
	Reason      string
	Duration    float64
	Occurrences int
	Percentage  string
}

type RuntimeStats struct {
	Period            DateRange
	TotalPlannedTime  float64
	TotalStopTime     float64
	ActualRunTime     float64
	UtilizationRate   string
	StoppagesByReason []StoppageShare
}

// MonthlyRuntime sums planned, stopped and run minutes over a month.
func (r *Reports) MonthlyRuntime(ctx context.Context, m shift.Month) (*RuntimeStats, error) {
	const op = "reports.MonthlyRuntime"
	rng := DateRange{From: m.First(), To: m.Last()}

	var (
		records []OEERecord
		stops   []StoppageEvent
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		records, err = r.repo.OEERecords(gctx, rng.filter())
		return err
	})
	g.Go(func() (err error) {
		stops, err = r.repo.Stoppages(gctx, rng.filter())
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	planned := float64(len(records)) * r.cfg.PlannedMinutes()
	runTime := lo.SumBy(records, func(o OEERecord) float64 { return o.RunTimeMinutes })
	stopTime := lo.SumBy(stops, func(s StoppageEvent) float64 { return s.DurationMinutes })

	byReason := lo.GroupBy(stops, func(s StoppageEvent) string { return s.Reason })
	shares := make([]StoppageShare, 0, len(byReason))
	for reason, events := range byReason {
		d := lo.SumBy(events, func(s StoppageEvent) float64 { return s.DurationMinutes })
		shares = append(shares, StoppageShare{
			Reason:      reason,
			Duration:    d,
			Occurrences: len(events),
			Percentage:  Share(d, stopTime),
		})
	}
	sort.Slice(shares, func(i, j int) bool {
		if shares[i].Duration != shares[j].Duration {
			return shares[i].Duration > shares[j].Duration
		}
		return shares[i].Reason < shares[j].Reason
	})

	return &RuntimeStats{
		Period:            rng,
		TotalPlannedTime:  planned,
		TotalStopTime:     stopTime,
		ActualRunTime:     runTime,
		UtilizationRate:   Share(runTime, planned),
		StoppagesByReason: shares,
	}, nil
}
