// Package store provides an in-memory production.Store.
package store

import (
	"context"
	"maps"
	"sync"

	"github.com/warp/oee-tracker/production"
	"github.com/warp/oee-tracker/shift"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type hourKey struct {
	part production.PartShiftKey
	hour shift.Hour
}

type tables struct {
	totals      map[production.PartShiftKey]production.ProductionTotal
	hourly      map[hourKey]production.HourlyDelta
	plans       map[production.PartShiftKey]production.PlanActual
	stoppages   map[production.ShiftKey][]production.StoppageEvent
	rejections  map[production.ShiftKey][]production.RejectionEvent
	oee         map[production.ShiftKey]production.OEERecord
	corrections []production.Correction
}

func newTables() tables {
	return tables{
		totals:     make(map[production.PartShiftKey]production.ProductionTotal),
		hourly:     make(map[hourKey]production.HourlyDelta),
		plans:      make(map[production.PartShiftKey]production.PlanActual),
		stoppages:  make(map[production.ShiftKey][]production.StoppageEvent),
		rejections: make(map[production.ShiftKey][]production.RejectionEvent),
		oee:        make(map[production.ShiftKey]production.OEERecord),
	}
}

// clone copies every table; event slices are copied so rollback never
// shares backing arrays with the live state.
func (t tables) clone() tables {
	c := tables{
		totals:      maps.Clone(t.totals),
		hourly:      maps.Clone(t.hourly),
		plans:       maps.Clone(t.plans),
		stoppages:   make(map[production.ShiftKey][]production.StoppageEvent, len(t.stoppages)),
		rejections:  make(map[production.ShiftKey][]production.RejectionEvent, len(t.rejections)),
		oee:         maps.Clone(t.oee),
		corrections: append([]production.Correction(nil), t.corrections...),
	}
	for k, v := range t.stoppages {
		c.stoppages[k] = append([]production.StoppageEvent(nil), v...)
	}
	for k, v := range t.rejections {
		c.rejections[k] = append([]production.RejectionEvent(nil), v...)
	}
	return c
}

// Memory is a production.Store backed by maps. WithTx is simulated with a
// snapshot and rollback on error.
type Memory struct {
	mu sync.RWMutex
	t  tables
}

var _ production.Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{t: newTables()}
}

func (m *Memory) Close() error { return nil }

// WithTx executes fn with exclusive access and restores the snapshot if fn
// fails.
func (m *Memory) WithTx(_ context.Context, fn func(production.Repository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.t.clone()
	if err := fn(&view{t: &m.t}); err != nil {
		m.t = snapshot
		return err
	}
	return nil
}

// Public methods lock and delegate to a view over the live tables.

func (m *Memory) read(fn func(v *view)) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fn(&view{t: &m.t})
}

func (m *Memory) write(fn func(v *view) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(&view{t: &m.t})
}

func (m *Memory) ProductionTotals(ctx context.Context, f production.Filter) (out []production.ProductionTotal, err error) {
	m.read(func(v *view) { out, err = v.ProductionTotals(ctx, f) })
	return
}

func (m *Memory) UpsertProductionTotal(ctx context.Context, t production.ProductionTotal) error {
	return m.write(func(v *view) error { return v.UpsertProductionTotal(ctx, t) })
}

func (m *Memory) HourlyDeltas(ctx context.Context, f production.Filter) (out []production.HourlyDelta, err error) {
	m.read(func(v *view) { out, err = v.HourlyDeltas(ctx, f) })
	return
}

func (m *Memory) InsertHourlyDelta(ctx context.Context, h production.HourlyDelta) error {
	return m.write(func(v *view) error { return v.InsertHourlyDelta(ctx, h) })
}

func (m *Memory) UpdateHourlyDelta(ctx context.Context, h production.HourlyDelta, expected int) error {
	return m.write(func(v *view) error { return v.UpdateHourlyDelta(ctx, h, expected) })
}

func (m *Memory) PlanActuals(ctx context.Context, f production.Filter) (out []production.PlanActual, err error) {
	m.read(func(v *view) { out, err = v.PlanActuals(ctx, f) })
	return
}

func (m *Memory) RecordActual(ctx context.Context, p production.PlanActual) error {
	return m.write(func(v *view) error { return v.RecordActual(ctx, p) })
}

func (m *Memory) SetPlan(ctx context.Context, p production.PlanActual) error {
	return m.write(func(v *view) error { return v.SetPlan(ctx, p) })
}

func (m *Memory) Stoppages(ctx context.Context, f production.Filter) (out []production.StoppageEvent, err error) {
	m.read(func(v *view) { out, err = v.Stoppages(ctx, f) })
	return
}

func (m *Memory) ReplaceStoppages(ctx context.Context, k production.ShiftKey, events []production.StoppageEvent) error {
	return m.write(func(v *view) error { return v.ReplaceStoppages(ctx, k, events) })
}

func (m *Memory) Rejections(ctx context.Context, f production.Filter) (out []production.RejectionEvent, err error) {
	m.read(func(v *view) { out, err = v.Rejections(ctx, f) })
	return
}

func (m *Memory) ReplaceRejections(ctx context.Context, k production.ShiftKey, events []production.RejectionEvent) error {
	return m.write(func(v *view) error { return v.ReplaceRejections(ctx, k, events) })
}

func (m *Memory) OEERecords(ctx context.Context, f production.Filter) (out []production.OEERecord, err error) {
	m.read(func(v *view) { out, err = v.OEERecords(ctx, f) })
	return
}

func (m *Memory) UpsertOEE(ctx context.Context, r production.OEERecord) error {
	return m.write(func(v *view) error { return v.UpsertOEE(ctx, r) })
}

func (m *Memory) Corrections(ctx context.Context, f production.Filter) (out []production.Correction, err error) {
	m.read(func(v *view) { out, err = v.Corrections(ctx, f) })
	return
}

func (m *Memory) InsertCorrection(ctx context.Context, c production.Correction) error {
	return m.write(func(v *view) error { return v.InsertCorrection(ctx, c) })
}

// =============================================================================
// VIEW - Unlocked access; callers hold Memory.mu
// =============================================================================

type view struct {
	t *tables
}

func (v *view) ProductionTotals(_ context.Context, f production.Filter) ([]production.ProductionTotal, error) {
	var out []production.ProductionTotal
	for _, t := range v.t.totals {
		if f.Matches(t.PartNumber, t.Shift, t.Date) {
			out = append(out, t)
		}
	}
	return production.SortAndLimit(out, f, production.TotalKey), nil
}

func (v *view) UpsertProductionTotal(_ context.Context, t production.ProductionTotal) error {
	v.t.totals[t.Key()] = t
	return nil
}

func (v *view) HourlyDeltas(_ context.Context, f production.Filter) ([]production.HourlyDelta, error) {
	var out []production.HourlyDelta
	for _, h := range v.t.hourly {
		if f.Matches(h.PartNumber, h.Shift, h.Date) {
			out = append(out, h)
		}
	}
	return production.SortAndLimit(out, f, production.HourlyKey), nil
}

func (v *view) InsertHourlyDelta(_ context.Context, h production.HourlyDelta) error {
	k := hourKey{part: h.Key(), hour: h.Hour}
	if _, exists := v.t.hourly[k]; exists {
		return production.ErrConcurrentModification
	}
	if h.Version == 0 {
		h.Version = 1
	}
	v.t.hourly[k] = h
	return nil
}

func (v *view) UpdateHourlyDelta(_ context.Context, h production.HourlyDelta, expected int) error {
	k := hourKey{part: h.Key(), hour: h.Hour}
	cur, ok := v.t.hourly[k]
	if !ok {
		return production.ErrNotFound
	}
	if cur.Version != expected {
		return production.ErrConcurrentModification
	}
	h.ID = cur.ID
	h.Version = expected + 1
	v.t.hourly[k] = h
	return nil
}

func (v *view) PlanActuals(_ context.Context, f production.Filter) ([]production.PlanActual, error) {
	var out []production.PlanActual
	for _, p := range v.t.plans {
		if f.Matches(p.PartNumber, p.Shift, p.Date) {
			out = append(out, p)
		}
	}
	return production.SortAndLimit(out, f, production.PlanKey), nil
}

func (v *view) RecordActual(_ context.Context, p production.PlanActual) error {
	if cur, ok := v.t.plans[p.Key()]; ok {
		cur.Actual = p.Actual
		cur.UpdatedAt = p.UpdatedAt
		p = cur
	}
	v.t.plans[p.Key()] = p
	return nil
}

func (v *view) SetPlan(_ context.Context, p production.PlanActual) error {
	if cur, ok := v.t.plans[p.Key()]; ok {
		cur.Plan = p.Plan
		cur.UpdatedAt = p.UpdatedAt
		p = cur
	} else {
		p.Actual = 0
	}
	v.t.plans[p.Key()] = p
	return nil
}

func (v *view) Stoppages(_ context.Context, f production.Filter) ([]production.StoppageEvent, error) {
	var out []production.StoppageEvent
	for k, events := range v.t.stoppages {
		if f.Matches("", k.Shift, k.Date) {
			out = append(out, events...)
		}
	}
	return production.SortAndLimit(out, f, production.StoppageKey), nil
}

func (v *view) ReplaceStoppages(_ context.Context, k production.ShiftKey, events []production.StoppageEvent) error {
	if len(events) == 0 {
		delete(v.t.stoppages, k)
		return nil
	}
	v.t.stoppages[k] = append([]production.StoppageEvent(nil), events...)
	return nil
}

func (v *view) Rejections(_ context.Context, f production.Filter) ([]production.RejectionEvent, error) {
	var out []production.RejectionEvent
	for k, events := range v.t.rejections {
		if !f.Matches("", k.Shift, k.Date) {
			continue
		}
		for _, r := range events {
			if f.PartNumber == "" || r.PartNumber == f.PartNumber {
				out = append(out, r)
			}
		}
	}
	return production.SortAndLimit(out, f, production.RejectionKey), nil
}

func (v *view) ReplaceRejections(_ context.Context, k production.ShiftKey, events []production.RejectionEvent) error {
	if len(events) == 0 {
		delete(v.t.rejections, k)
		return nil
	}
	v.t.rejections[k] = append([]production.RejectionEvent(nil), events...)
	return nil
}

func (v *view) OEERecords(_ context.Context, f production.Filter) ([]production.OEERecord, error) {
	var out []production.OEERecord
	for _, r := range v.t.oee {
		if f.Matches("", r.Shift, r.Date) {
			out = append(out, r)
		}
	}
	return production.SortAndLimit(out, f, production.OEEKey), nil
}

func (v *view) UpsertOEE(_ context.Context, r production.OEERecord) error {
	v.t.oee[r.Key()] = r
	return nil
}

func (v *view) Corrections(_ context.Context, f production.Filter) ([]production.Correction, error) {
	var out []production.Correction
	for _, c := range v.t.corrections {
		if c.Date.Within(f.From, f.To) {
			out = append(out, c)
		}
	}
	return production.SortAndLimit(out, f, production.CorrectionKey), nil
}

func (v *view) InsertCorrection(_ context.Context, c production.Correction) error {
	v.t.corrections = append(v.t.corrections, c)
	return nil
}
