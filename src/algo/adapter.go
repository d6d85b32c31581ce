package algo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"trade-gateway/src/exchange"
	"trade-gateway/src/logger"
	"trade-gateway/src/marketdata"
	"trade-gateway/src/models"
)

// -----------------------------------------------------------------------------
// IAlgoAdapter is one execution strategy. Adapters are stateless; all run
// state lives in the Execution handed to Run.
// -----------------------------------------------------------------------------

type IAlgoAdapter interface {

	// GetName returns the strategy name clients spawn by.
	GetName() string

	// GetParamDefs describes the parameters for the algo_def catalog frame.
	GetParamDefs() []models.MParamDef

	// Validate checks a parsed parameter set before a spawn is accepted.
	Validate(params ParamMap) error

	// Run drives one instance to completion. It returns when the target
	// quantity is done, the deadline passes or ctx is cancelled. Test runs
	// (nil params) emit scripted test messages instead of trading.
	Run(ctx context.Context, e *Execution)
}

// -----------------------------------------------------------------------------

// Clock ticks drive the strategy loops. Tests shorten this.
var strategyTick = time.Second

// -----------------------------------------------------------------------------

// Execution is the run state of one spawned instance: parameter access that
// stays valid across modify, child-order placement and fill accounting.
type Execution struct {
	Algo   *models.MAlgo
	Logger *logger.Logger

	book *exchange.GlobalOrderBook
	md   *marketdata.Manager

	mu       sync.Mutex
	params   ParamMap
	children []int64

	test    bool
	testMsg func(msg string, stopped bool)
}

// -----------------------------------------------------------------------------

// Params returns the current parameter set. Modify swaps it atomically.
func (e *Execution) Params() ParamMap {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.params
}

func (e *Execution) setParams(p ParamMap) {
	e.mu.Lock()
	e.params = p
	e.mu.Unlock()
}

// -----------------------------------------------------------------------------

// IsTest reports whether this run is a scripted test.
func (e *Execution) IsTest() bool { return e.test }

// TestMsg sends one line back to the session that spawned the test run.
func (e *Execution) TestMsg(format string, args ...interface{}) {
	if e.testMsg != nil {
		e.testMsg(fmt.Sprintf(format, args...), false)
	}
}

func (e *Execution) testDone() {
	if e.testMsg != nil {
		e.testMsg("", true)
	}
}

// -----------------------------------------------------------------------------

// Snapshot returns the current market data for a security.
func (e *Execution) Snapshot(securityID int64) models.MSnapshot {
	return e.md.Get(securityID)
}

// -----------------------------------------------------------------------------

// PlaceChild routes one child order for the tuple. The broker account is
// resolved from the tuple's sub-account and the security's venue.
func (e *Execution) PlaceChild(t *SecurityTuple, typ models.OrderType, qty, px float64) *models.MOrder {
	ord := &models.MOrder{
		AlgoID:        e.Algo.ID,
		Security:      t.Security,
		User:          e.Algo.User,
		SubAccount:    t.SubAccount,
		BrokerAccount: t.SubAccount.GetBrokerAccount(t.Security.ExchangeID()),
		Qty:           qty,
		Price:         px,
		Side:          t.Side,
		Type:          typ,
		Tif:           models.TifDay,
	}
	e.book.Place(ord)

	e.mu.Lock()
	e.children = append(e.children, ord.ID)
	e.mu.Unlock()
	return ord
}

// -----------------------------------------------------------------------------

func (e *Execution) childIDs() []int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]int64, len(e.children))
	copy(ids, e.children)
	return ids
}

// -----------------------------------------------------------------------------

// FilledQty sums the executed quantity over all children.
func (e *Execution) FilledQty() float64 {
	var total float64
	for _, id := range e.childIDs() {
		if ord := e.book.Get(id); ord != nil {
			total += ord.CumQty
		}
	}
	return total
}

// -----------------------------------------------------------------------------

// OutstandingQty sums the open (unexecuted, live) quantity over all children.
func (e *Execution) OutstandingQty() float64 {
	var total float64
	for _, id := range e.childIDs() {
		if ord := e.book.Get(id); ord != nil && ord.IsLive() {
			total += ord.Qty - ord.CumQty
		}
	}
	return total
}

// -----------------------------------------------------------------------------

// CancelChildren requests cancellation of every live child.
func (e *Execution) CancelChildren() {
	for _, id := range e.childIDs() {
		if ord := e.book.Get(id); ord != nil && ord.IsLive() {
			e.book.Cancel(ord)
		}
	}
}

// -----------------------------------------------------------------------------
// Shared strategy helpers.
// -----------------------------------------------------------------------------

// roundLot rounds a slice down to the lot grid and drops sub-minimum slices.
func roundLot(qty float64, lotSize int64, minSize float64) float64 {
	if qty <= 0 {
		return 0
	}
	if lotSize > 0 {
		lot := float64(lotSize)
		qty = lot * float64(int64(qty/lot))
	}
	if qty < minSize {
		return 0
	}
	return qty
}

// -----------------------------------------------------------------------------

// childPrice decides the child order type and price. An explicit Price makes
// a limit order; ValidPrice pegs a limit to the last trade; otherwise the
// child goes out as a market order.
func childPrice(e *Execution, t *SecurityTuple, params ParamMap) (models.OrderType, float64) {
	if px, ok := params.Num("Price"); ok && px > 0 {
		return models.TypeLimit, px
	}
	if valid, _ := params.Bool("ValidPrice"); valid {
		snap := e.Snapshot(t.Security.ID)
		px := snap.Close
		if px <= 0 {
			px = t.Security.ClosePx
		}
		if px > 0 {
			return models.TypeLimit, px
		}
	}
	return models.TypeMarket, 0
}

// -----------------------------------------------------------------------------

// validateDefs runs the generic checks shared by the built-ins: every
// required parameter present, every range-constrained parameter numeric and
// inside its def range.
func validateDefs(defs []models.MParamDef, params ParamMap) error {
	for _, def := range defs {
		if _, ok := params[def.Name]; !ok {
			if def.Required {
				return fmt.Errorf("missing required parameter: %s", def.Name)
			}
			continue
		}
		if def.Min == 0 && def.Max == 0 {
			continue
		}
		n, isNum := params.Num(def.Name)
		if !isNum {
			return fmt.Errorf("parameter %s must be a number", def.Name)
		}
		if n < def.Min || n > def.Max {
			return fmt.Errorf("parameter %s out of range [%g, %g]: %g",
				def.Name, def.Min, def.Max, n)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------

// requireTuple fetches the Security tuple every built-in needs.
func requireTuple(params ParamMap) (*SecurityTuple, error) {
	t, ok := params.Tuple("Security")
	if !ok {
		return nil, fmt.Errorf("missing required parameter: Security")
	}
	return t, nil
}
