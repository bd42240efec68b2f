/*
handlers.go - HTTP API handlers for production tracking

PURPOSE:
  Exposes the reconciler, quality service, planner and reports over REST.
  Handlers parse and validate input, call one production service, and
  render the result inside the common Envelope.

ENDPOINTS:
  Line:
    POST   /spark/data                      Cumulative counter report
    GET    /api/production-status           Online/offline line status
    GET    /api/shift/current               Resolved shift window

  Dashboard:
    GET    /api/oee                         Latest shift OEE
    GET    /api/oee-history                 All shifts, newest first
    GET    /api/pie                         Count per part, latest shift
    POST   /api/production                  Latest plan/actual of a part
    GET    /api/hourly-production-data      Hourly deltas by part name
    GET    /api/recent-plan-actual          Newest plan/actual rows

  Supervisor input:
    POST   /api/quality-data                Stoppages + rejections, recompute OEE
    POST   /api/set-plan                    Planned quantity for a shift
    POST   /api/correction                  Problem / corrective action entry

  Reports:
    GET    /api/reports/{kind}              Range listings (startDate, endDate)
    GET    /api/monthly-stats               Per-part monthly rollup
    GET    /api/monthly-runtime             Planned vs stopped vs run time

ERROR HANDLING:
  Every failure is a production.Error; respond.go maps its Kind to the
  status code:
  - 400: validation, shift_window
  - 404: referential, not_found
  - 409: conflict
  - 422: computation
  - 500: everything else

SEE ALSO:
  - dto.go: Request/response data structures
  - bind.go: JSON decoding and validation
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"

	"github.com/warp/oee-tracker/production"
	"github.com/warp/oee-tracker/shift"
)

const (
	defaultRecentLimit = 8
	maxRecentLimit     = 100
)

// Options configures a Handler.
type Options struct {
	Catalog          *production.Catalog
	Clock            shift.Clock
	OEE              production.OEEConfig
	OfflineThreshold time.Duration
}

// Handler holds every service the HTTP layer calls.
type Handler struct {
	Store      production.Store
	Catalog    *production.Catalog
	Resolver   *shift.Resolver
	Reconciler *production.Reconciler
	Quality    *production.QualityService
	Reports    *production.Reports
	Planner    *production.Planner
	Monitor    *LineMonitor

	oee production.OEEConfig

	mu              sync.RWMutex
	currentScenario string
}

// NewHandler wires the production services over store.
func NewHandler(store production.Store, opt Options) *Handler {
	if opt.Catalog == nil {
		opt.Catalog = production.DefaultCatalog()
	}
	if opt.Clock == nil {
		opt.Clock = shift.SystemClock{}
	}
	if opt.OEE == (production.OEEConfig{}) {
		opt.OEE = production.DefaultOEEConfig()
	}
	if opt.OfflineThreshold <= 0 {
		opt.OfflineThreshold = production.DefaultOfflineThreshold
	}

	resolver := shift.NewResolver(opt.Clock)
	reports := production.NewReports(store, opt.Catalog, opt.OEE)

	return &Handler{
		Store:      store,
		Catalog:    opt.Catalog,
		Resolver:   resolver,
		Reconciler: production.NewReconciler(store, resolver, opt.Catalog),
		Quality:    production.NewQualityService(store, production.NewCalculator(opt.OEE), opt.Clock),
		Reports:    reports,
		Planner:    production.NewPlanner(store, opt.Catalog, opt.Clock),
		Monitor:    NewLineMonitor(reports, resolver, opt.OfflineThreshold),
		oee:        opt.OEE,
	}
}

// =============================================================================
// LINE ENDPOINTS
// =============================================================================

// RecordCounter reconciles one cumulative counter report.
// POST /spark/data
func (h *Handler) RecordCounter(w http.ResponseWriter, r *http.Request) {
	req, err := parseJSON[CounterReportRequest](r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	res, err := h.Reconciler.Record(r.Context(), production.CounterReport{
		PartNumber: string(req.PartNumber),
		Count:      *req.Count,
		Target:     *req.Target,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondOK(w, "Production data updated successfully", toCounterReportResponse(res))
}

// ProductionStatus reports whether counter reports are still arriving.
// GET /api/production-status
func (h *Handler) ProductionStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.Monitor.Check(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondOK(w, "", toLineStatusDTO(st))
}

// CurrentShift resolves the clock's instant.
// GET /api/shift/current
func (h *Handler) CurrentShift(w http.ResponseWriter, r *http.Request) {
	respondOK(w, "", toShiftDTO(h.Resolver.Current()))
}

// ListParts returns the part catalog.
// GET /api/parts
func (h *Handler) ListParts(w http.ResponseWriter, r *http.Request) {
	respondOK(w, "", h.Catalog.Parts())
}

// Health is the liveness probe.
// GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondOK(w, "", map[string]string{"status": "ok"})
}

// =============================================================================
// DASHBOARD ENDPOINTS
// =============================================================================

// LatestOEE returns the most recent shift's OEE.
// GET /api/oee
func (h *Handler) LatestOEE(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Reports.LatestOEE(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondOK(w, "", toOEEDTO(*rec))
}

// OEEHistory lists every shift's OEE, newest first.
// GET /api/oee-history
func (h *Handler) OEEHistory(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Reports.OEEHistory(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondOK(w, "", lo.Map(rows, func(o production.OEERecord, _ int) OEEHistoryDTO {
		return OEEHistoryDTO{Date: o.Date, Shift: o.Shift, OEE: production.PercentNumber(o.OEE)}
	}))
}

// PartShare returns the count per part name of the latest shift.
// GET /api/pie
func (h *Handler) PartShare(w http.ResponseWriter, r *http.Request) {
	_, share, err := h.Reports.PartShare(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondOK(w, "", share)
}

// LatestForPart returns the newest plan (target) and actual of a part.
// POST /api/production
func (h *Handler) LatestForPart(w http.ResponseWriter, r *http.Request) {
	req, err := parseJSON[ProductionRequest](r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	t, err := h.Reports.LatestForPart(r.Context(), string(req.PartNumber))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondOK(w, "", ProductionDTO{
		PartNumber: t.PartNumber,
		Plan:       t.Target,
		Actual:     t.Count,
		Shift:      t.Shift,
		Date:       t.Date,
	})
}

// HourlyProduction returns hourly deltas grouped by part name.
// GET /api/hourly-production-data?date=YYYY-MM-DD&shift=shift-1
func (h *Handler) HourlyProduction(w http.ResponseWriter, r *http.Request) {
	const op = "api.HourlyProduction"

	date, err := queryDate(r, op, "date")
	if err != nil {
		respondError(w, r, err)
		return
	}
	var s shift.Shift
	if raw := r.URL.Query().Get("shift"); raw != "" {
		if s, err = shift.Parse(raw); err != nil {
			respondError(w, r, production.Validationf(op, "shift", "must be shift-1 or shift-2"))
			return
		}
	}

	hb, err := h.Reports.Hourly(r.Context(), date, s)
	if err != nil {
		respondError(w, r, err)
		return
	}
	label := string(hb.Shift)
	if label == "" {
		label = "all"
	}
	respondOK(w, "", HourlyProductionDTO{Date: hb.Date, Shift: label, HourlyProduction: hb.Parts})
}

// RecentPlanActual lists the newest plan/actual rows.
// GET /api/recent-plan-actual?limit=8
func (h *Handler) RecentPlanActual(w http.ResponseWriter, r *http.Request) {
	const op = "api.RecentPlanActual"

	limit := defaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxRecentLimit {
			respondError(w, r, production.Validationf(op, "limit", "must be between 1 and %d", maxRecentLimit))
			return
		}
		limit = n
	}

	rows, err := h.Reports.RecentPlanActual(r.Context(), limit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondOK(w, "", lo.Map(rows, func(p production.PlanActual, _ int) PlanActualDTO { return h.toPlanActualDTO(p) }))
}

// =============================================================================
// SUPERVISOR INPUT
// =============================================================================

// SubmitQuality replaces a shift's stoppages and rejections and recomputes
// its OEE.
// POST /api/quality-data
func (h *Handler) SubmitQuality(w http.ResponseWriter, r *http.Request) {
	req, err := parseJSON[QualityRequest](r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	sub := req.submission()
	rec, err := h.Quality.Submit(r.Context(), sub)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondOK(w, "Quality data updated and OEE calculated successfully", QualityResponse{
		Shift:               sub.Shift,
		Date:                sub.Date,
		StoppagesProcessed:  len(sub.Stoppages),
		RejectionsSubmitted: len(sub.Rejections),
		OEE:                 toOEEDTO(*rec),
	})
}

// SetPlan records the planned quantity of a part for one shift.
// POST /api/set-plan
func (h *Handler) SetPlan(w http.ResponseWriter, r *http.Request) {
	req, err := parseJSON[SetPlanRequest](r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	pa, err := h.Planner.SetPlan(r.Context(), production.PartShiftKey{
		PartNumber: string(req.PartNumber),
		Shift:      shift.Shift(req.Shift),
		Date:       shift.MustParseDate(req.Date),
	}, req.Plan)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondOK(w, "Plan updated successfully", h.toPlanActualDTO(*pa))
}

// AddCorrection appends an entry to the corrective-action journal.
// POST /api/correction
func (h *Handler) AddCorrection(w http.ResponseWriter, r *http.Request) {
	req, err := parseJSON[CorrectionRequest](r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	c, err := h.Planner.AddCorrection(r.Context(), shift.MustParseDate(req.Date), req.Problem, req.CorrectiveAction)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, Envelope{Success: true, Message: "Correction saved successfully", Data: toCorrectionDTO(*c)})
}

// =============================================================================
// REPORTS
// =============================================================================

// Report serves the range listings under /api/reports/{kind}.
// GET /api/reports/{kind}?startDate=YYYY-MM-DD&endDate=YYYY-MM-DD
func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	const op = "api.Report"
	ctx := r.Context()

	rng, err := queryRange(r, op)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var data any
	switch kind := chi.URLParam(r, "kind"); kind {
	case "production":
		rows, e := h.Reports.Production(ctx, rng)
		data, err = lo.Map(rows, func(t production.ProductionTotal, _ int) ProductionTotalDTO {
			return ProductionTotalDTO{
				PartNumber:  t.PartNumber,
				PartName:    h.Catalog.Name(t.PartNumber),
				Shift:       t.Shift,
				Date:        t.Date,
				Count:       t.Count,
				Target:      t.Target,
				LastUpdated: t.LastUpdated,
			}
		}), e
	case "hourly-production":
		rows, e := h.Reports.HourlyProduction(ctx, rng)
		data, err = lo.Map(rows, func(d production.HourlyDelta, _ int) HourlyRowDTO {
			return HourlyRowDTO{
				PartNumber:      d.PartNumber,
				PartName:        h.Catalog.Name(d.PartNumber),
				Shift:           d.Shift,
				Date:            d.Date,
				Hour:            d.Hour.Label(),
				Count:           d.Count,
				CumulativeCount: d.CumulativeCount,
				LastReportedAt:  d.LastReportedAt,
			}
		}), e
	case "rejections":
		rows, e := h.Reports.Rejections(ctx, rng)
		data, err = lo.Map(rows, func(x production.RejectionEvent, _ int) RejectionDTO {
			return RejectionDTO{
				Shift:      x.Shift,
				Date:       x.Date,
				PartNumber: x.PartNumber,
				PartName:   h.Catalog.Name(x.PartNumber),
				Count:      x.Count,
				Reason:     x.Reason,
			}
		}), e
	case "stoptimes":
		rows, e := h.Reports.Stoppages(ctx, rng)
		data, err = lo.Map(rows, func(s production.StoppageEvent, _ int) StoppageDTO {
			return StoppageDTO{Shift: s.Shift, Date: s.Date, Duration: s.DurationMinutes, Reason: s.Reason}
		}), e
	case "oee":
		rows, e := h.Reports.OEE(ctx, rng)
		data, err = lo.Map(rows, func(o production.OEERecord, _ int) OEEReportDTO {
			dto := OEEReportDTO{OEEDTO: toOEEDTO(o)}
			dto.Raw.Availability = production.Round4(o.Availability)
			dto.Raw.Performance = production.Round4(o.Performance)
			dto.Raw.Quality = production.Round4(o.Quality)
			dto.Raw.OEE = production.Round4(o.OEE)
			return dto
		}), e
	case "corrections":
		rows, e := h.Reports.Corrections(ctx, rng)
		data, err = lo.Map(rows, func(c production.Correction, _ int) CorrectionDTO { return toCorrectionDTO(c) }), e
	case "plan-actual":
		rows, e := h.Reports.PlanActual(ctx, rng)
		data, err = lo.Map(rows, func(p production.PlanActual, _ int) PlanActualDTO { return h.toPlanActualDTO(p) }), e
	default:
		err = &production.Error{Kind: production.KindNotFound, Op: op, Err: production.ErrNotFound,
			Detail: "unknown report " + kind}
	}
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondOK(w, "", data)
}

// MonthlyStats sums production and rejections per part for a month.
// GET /api/monthly-stats?month=YYYY-MM
func (h *Handler) MonthlyStats(w http.ResponseWriter, r *http.Request) {
	m, err := h.queryMonth(r, "api.MonthlyStats")
	if err != nil {
		respondError(w, r, err)
		return
	}
	st, err := h.Reports.MonthlyStats(r.Context(), m)
	if err != nil {
		respondError(w, r, err)
		return
	}

	out := MonthlyStatsDTO{
		Period: PeriodDTO{StartDate: st.Period.From, EndDate: st.Period.To},
		Stats:  make(map[string]PartStatsDTO, len(st.Stats)),
	}
	for name, ps := range st.Stats {
		out.Stats[name] = PartStatsDTO{
			PartNumber:      ps.PartNumber,
			TotalProduction: ps.TotalProduction,
			GoodCount:       ps.GoodCount,
			TotalRejections: ps.TotalRejections,
			RejectionsByReason: lo.Map(ps.RejectionsByReason, func(rc production.ReasonCount, _ int) ReasonCountDTO {
				return ReasonCountDTO{Reason: rc.Reason, Count: rc.Count}
			}),
		}
	}
	respondOK(w, "", out)
}

// MonthlyRuntime compares planned, stopped and run minutes for a month.
// GET /api/monthly-runtime?month=YYYY-MM
func (h *Handler) MonthlyRuntime(w http.ResponseWriter, r *http.Request) {
	m, err := h.queryMonth(r, "api.MonthlyRuntime")
	if err != nil {
		respondError(w, r, err)
		return
	}
	st, err := h.Reports.MonthlyRuntime(r.Context(), m)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondOK(w, "", RuntimeStatsDTO{
		Period:           PeriodDTO{StartDate: st.Period.From, EndDate: st.Period.To},
		TotalPlannedTime: st.TotalPlannedTime,
		TotalStopTime:    st.TotalStopTime,
		ActualRunTime:    st.ActualRunTime,
		UtilizationRate:  st.UtilizationRate,
		StoppagesByReason: lo.Map(st.StoppagesByReason, func(s production.StoppageShare, _ int) StoppageShareDTO {
			return StoppageShareDTO{Reason: s.Reason, Duration: s.Duration, Occurrences: s.Occurrences, Percentage: s.Percentage}
		}),
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) toPlanActualDTO(p production.PlanActual) PlanActualDTO {
	return PlanActualDTO{
		PartNumber: p.PartNumber,
		PartName:   h.Catalog.Name(p.PartNumber),
		Shift:      p.Shift,
		Date:       p.Date,
		Plan:       p.Plan,
		Actual:     p.Actual,
		UpdatedAt:  p.UpdatedAt,
	}
}

// queryDate parses an optional YYYY-MM-DD query parameter.
func queryDate(r *http.Request, op, name string) (shift.Date, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return shift.Date{}, nil
	}
	d, err := shift.ParseDate(raw)
	if err != nil {
		return shift.Date{}, production.Validationf(op, name, "must be YYYY-MM-DD")
	}
	return d, nil
}

func queryRange(r *http.Request, op string) (production.DateRange, error) {
	from, err := queryDate(r, op, "startDate")
	if err != nil {
		return production.DateRange{}, err
	}
	to, err := queryDate(r, op, "endDate")
	if err != nil {
		return production.DateRange{}, err
	}
	rng := production.DateRange{From: from, To: to}
	return rng, rng.Validate(op)
}

// queryMonth defaults to the plant's current month.
func (h *Handler) queryMonth(r *http.Request, op string) (shift.Month, error) {
	raw := r.URL.Query().Get("month")
	if raw == "" {
		return shift.MonthOf(shift.DateOf(h.Resolver.Now())), nil
	}
	m, err := shift.ParseMonth(raw)
	if err != nil {
		return shift.Month{}, production.Validationf(op, "month", "must be YYYY-MM")
	}
	return m, nil
}
