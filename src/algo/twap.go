package algo

import (
	"context"
	"time"

	"trade-gateway/src/models"
)

// -----------------------------------------------------------------------------
// TWAP slices the tuple quantity evenly over the Seconds horizon: each tick
// tops the working quantity up to the time-proportional target.
// -----------------------------------------------------------------------------

type TWAP struct{}

func NewTWAP() *TWAP { return &TWAP{} }

func (a *TWAP) GetName() string { return "TWAP" }

// -----------------------------------------------------------------------------

func (a *TWAP) GetParamDefs() []models.MParamDef {
	return []models.MParamDef{
		{Name: "Security", Default: SecurityTuple{}, Required: true},
		{Name: "Price", Default: 0.0, Min: 0, Max: 10000000, Precision: 7},
		{Name: "ValidPrice", Default: false},
		{Name: "MinSize", Default: int64(0), Min: 0, Max: 10000000},
		{Name: "Seconds", Default: int64(60), Min: 1, Max: 86400},
		{Name: "Aggression", Default: "low"},
	}
}

// -----------------------------------------------------------------------------

func (a *TWAP) Validate(params ParamMap) error {
	if err := validateDefs(a.GetParamDefs(), params); err != nil {
		return err
	}
	_, err := requireTuple(params)
	return err
}

// -----------------------------------------------------------------------------

func (a *TWAP) Run(ctx context.Context, e *Execution) {
	if e.IsTest() {
		a.runTest(ctx, e)
		return
	}

	params := e.Params()
	tuple, err := requireTuple(params)
	if err != nil {
		e.Logger.Error("TWAP %d: %v", e.Algo.ID, err)
		return
	}

	horizon := time.Duration(60) * time.Second
	if secs, ok := params.Num("Seconds"); ok && secs > 0 {
		horizon = time.Duration(secs * float64(time.Second))
	}
	start := time.Now()
	deadline := start.Add(horizon)

	ticker := time.NewTicker(strategyTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.CancelChildren()
			return
		case now := <-ticker.C:
			params = e.Params()

			filled := e.FilledQty()
			if filled >= tuple.Qty {
				return
			}
			if !now.Before(deadline) {
				e.CancelChildren()
				return
			}

			// Pace against the end of the current tick so the final
			// remainder goes out while it can still fill.
			frac := (now.Sub(start) + strategyTick).Seconds() / horizon.Seconds()
			if frac > 1 {
				frac = 1
			}
			target := tuple.Qty * frac
			working := filled + e.OutstandingQty()

			minSize, _ := params.Num("MinSize")
			slice := roundLot(target-working, tuple.Security.LotSize, minSize)
			if slice <= 0 {
				continue
			}
			if slice > tuple.Qty-working {
				slice = tuple.Qty - working
			}

			typ, px := childPrice(e, tuple, params)
			e.PlaceChild(tuple, typ, slice, px)
		}
	}
}

// -----------------------------------------------------------------------------

// runTest emits a short scripted dry run.
func (a *TWAP) runTest(ctx context.Context, e *Execution) {
	defer e.testDone()

	e.TestMsg("TWAP test run started")
	for i := 1; i <= 3; i++ {
		select {
		case <-ctx.Done():
			return
		case <-time.After(strategyTick):
		}
		e.TestMsg("TWAP test tick %d: would place the next time slice", i)
	}
	e.TestMsg("TWAP test run finished")
}
