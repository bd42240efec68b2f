package production

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/warp/oee-tracker/shift"
)

// Planner handles the manual inputs from supervisors: shift plans and the
// corrective-action journal.
type Planner struct {
	store   Store
	catalog *Catalog
	clock   shift.Clock
}

func NewPlanner(store Store, catalog *Catalog, clock shift.Clock) *Planner {
	if clock == nil {
		clock = shift.SystemClock{}
	}
	return &Planner{store: store, catalog: catalog, clock: clock}
}

// SetPlan records the planned quantity of a part for one shift. Actual is
// left as reported by the line.
func (p *Planner) SetPlan(ctx context.Context, key PartShiftKey, plan int) (*PlanActual, error) {
	const op = "planner.SetPlan"

	switch {
	case key.PartNumber == "":
		return nil, Validationf(op, "partNumber", "is required")
	case !key.Shift.Valid():
		return nil, Validationf(op, "shift", "must be shift-1 or shift-2")
	case key.Date.IsZero():
		return nil, Validationf(op, "date", "is required")
	case plan <= 0:
		return nil, Validationf(op, "plan", "must be positive")
	}
	if _, ok := p.catalog.Lookup(key.PartNumber); !ok {
		return nil, &Error{Kind: KindValidation, Op: op, Field: "partNumber", Err: ErrUnknownPart,
			Detail: "unknown part number " + key.PartNumber}
	}

	var out PlanActual
	err := p.store.WithTx(ctx, func(repo Repository) error {
		if err := repo.SetPlan(ctx, PlanActual{
			PartNumber: key.PartNumber,
			Shift:      key.Shift,
			Date:       key.Date,
			Plan:       plan,
			UpdatedAt:  p.clock.Now(),
		}); err != nil {
			return err
		}
		rows, err := repo.PlanActuals(ctx, ForPart(key))
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return E(KindInternal, op, ErrNotFound)
		}
		out = rows[0]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// AddCorrection appends a problem / corrective-action entry.
func (p *Planner) AddCorrection(ctx context.Context, date shift.Date, problem, action string) (*Correction, error) {
	const op = "planner.AddCorrection"

	problem, action = strings.TrimSpace(problem), strings.TrimSpace(action)
	switch {
	case problem == "":
		return nil, Validationf(op, "problem", "is required")
	case action == "":
		return nil, Validationf(op, "correctiveAction", "is required")
	case date.IsZero():
		return nil, Validationf(op, "date", "is required")
	}

	c := Correction{
		ID:               uuid.NewString(),
		Date:             date,
		Problem:          problem,
		CorrectiveAction: action,
		CreatedAt:        p.clock.Now().UTC(),
	}
	if err := p.store.InsertCorrection(ctx, c); err != nil {
		return nil, err
	}
	return &c, nil
}
