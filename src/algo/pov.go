package algo

import (
	"context"
	"time"

	"trade-gateway/src/models"
)

// -----------------------------------------------------------------------------
// POV participates in printed market volume: each tick it works up to MaxPov
// of the volume traded since the spawn, capped by the tuple quantity.
// -----------------------------------------------------------------------------

type POV struct{}

func NewPOV() *POV { return &POV{} }

func (a *POV) GetName() string { return "POV" }

// -----------------------------------------------------------------------------

func (a *POV) GetParamDefs() []models.MParamDef {
	return []models.MParamDef{
		{Name: "Security", Default: SecurityTuple{}, Required: true},
		{Name: "Price", Default: 0.0, Min: 0, Max: 10000000, Precision: 7},
		{Name: "ValidPrice", Default: false},
		{Name: "MinSize", Default: int64(0), Min: 0, Max: 10000000},
		{Name: "MaxPov", Default: 0.1, Min: 0, Max: 1, Precision: 2},
		{Name: "Seconds", Default: int64(3600), Min: 1, Max: 86400},
	}
}

// -----------------------------------------------------------------------------

func (a *POV) Validate(params ParamMap) error {
	if err := validateDefs(a.GetParamDefs(), params); err != nil {
		return err
	}
	_, err := requireTuple(params)
	return err
}

// -----------------------------------------------------------------------------

func (a *POV) Run(ctx context.Context, e *Execution) {
	if e.IsTest() {
		a.runTest(ctx, e)
		return
	}

	params := e.Params()
	tuple, err := requireTuple(params)
	if err != nil {
		e.Logger.Error("POV %d: %v", e.Algo.ID, err)
		return
	}

	horizon := time.Duration(3600) * time.Second
	if secs, ok := params.Num("Seconds"); ok && secs > 0 {
		horizon = time.Duration(secs * float64(time.Second))
	}
	deadline := time.Now().Add(horizon)

	baseVolume := e.Snapshot(tuple.Security.ID).Volume

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

			rate, ok := params.Num("MaxPov")
			if !ok || rate <= 0 {
				rate = 0.1
			}

			// Own fills print back into the tape; participate in the rest.
			printed := float64(e.Snapshot(tuple.Security.ID).Volume-baseVolume) - filled
			if printed <= 0 {
				continue
			}
			target := printed * rate
			if target > tuple.Qty {
				target = tuple.Qty
			}
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
func (a *POV) runTest(ctx context.Context, e *Execution) {
	defer e.testDone()

	e.TestMsg("POV test run started")
	for i := 1; i <= 3; i++ {
		select {
		case <-ctx.Done():
			return
		case <-time.After(strategyTick):
		}
		e.TestMsg("POV test tick %d: would participate in printed volume", i)
	}
	e.TestMsg("POV test run finished")
}
