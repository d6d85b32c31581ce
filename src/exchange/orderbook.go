package exchange

import (
	"sync"
	"sync/atomic"
	"time"

	"trade-gateway/src/interfaces"
	"trade-gateway/src/logger"
	"trade-gateway/src/models"
	"trade-gateway/src/utils"
)

// -----------------------------------------------------------------------------
// GlobalOrderBook is the process-wide order table plus the confirmation
// pipeline: every execution report flows through Handle, which updates order
// state, feeds the position tracker, stores the report for offline replay
// and fans it out to registered sessions.
// -----------------------------------------------------------------------------

type GlobalOrderBook struct {
	Logger *logger.Logger

	router    *Manager
	positions interfaces.IPositionTracker

	mu     sync.Mutex
	orders map[int64]*models.MOrder
	nextID atomic.Int64

	store *utils.ReplayLog[*models.MConfirmation]

	listeners   map[uint64]interfaces.IConfirmationSink
	listenersMu sync.RWMutex
}

// -----------------------------------------------------------------------------

func NewGlobalOrderBook(router *Manager, positions interfaces.IPositionTracker,
	storeCapacity int, log *logger.Logger) *GlobalOrderBook {

	return &GlobalOrderBook{
		Logger:    log,
		router:    router,
		positions: positions,
		orders:    make(map[int64]*models.MOrder),
		store:     utils.NewReplayLog[*models.MConfirmation](storeCapacity),
		listeners: make(map[uint64]interfaces.IConfirmationSink),
	}
}

// -----------------------------------------------------------------------------

// Store exposes the replay window for memory-guard registration.
func (b *GlobalOrderBook) Store() *utils.ReplayLog[*models.MConfirmation] {
	return b.store
}

// -----------------------------------------------------------------------------

// NextOrderID issues the next order id.
func (b *GlobalOrderBook) NextOrderID() int64 {
	return b.nextID.Add(1)
}

// -----------------------------------------------------------------------------

// Get returns the order or nil.
func (b *GlobalOrderBook) Get(id int64) *models.MOrder {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.orders[id]
}

// -----------------------------------------------------------------------------

// LiveOrders snapshots all orders that can still trade.
func (b *GlobalOrderBook) LiveOrders() []*models.MOrder {
	b.mu.Lock()
	defer b.mu.Unlock()

	var live []*models.MOrder
	for _, ord := range b.orders {
		if ord.IsLive() {
			live = append(live, ord)
		}
	}
	return live
}

// -----------------------------------------------------------------------------

// OrderCount returns the size of the order table.
func (b *GlobalOrderBook) OrderCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.orders)
}

// -----------------------------------------------------------------------------

// Seq returns the sequence of the newest stored confirmation.
func (b *GlobalOrderBook) Seq() int64 {
	return b.store.LastSeq()
}

// -----------------------------------------------------------------------------

// RegisterListener subscribes a session to live confirmations.
func (b *GlobalOrderBook) RegisterListener(id uint64, sink interfaces.IConfirmationSink) {
	b.listenersMu.Lock()
	defer b.listenersMu.Unlock()
	b.listeners[id] = sink
}

// -----------------------------------------------------------------------------

// UnregisterListener drops a session subscription.
func (b *GlobalOrderBook) UnregisterListener(id uint64) {
	b.listenersMu.Lock()
	defer b.listenersMu.Unlock()
	delete(b.listeners, id)
}

// -----------------------------------------------------------------------------

// Place admits the order into the book, publishes the unconfirmed report,
// runs the risk gate and routes the order to its venue. A risk failure
// surfaces as risk_rejected, a routing failure as new_rejected.
func (b *GlobalOrderBook) Place(ord *models.MOrder) {
	if ord.ID == 0 {
		ord.ID = b.NextOrderID()
	}
	ord.Status = models.StatusUnconfirmed
	ord.Tm = time.Now().Unix()

	b.mu.Lock()
	b.orders[ord.ID] = ord
	b.mu.Unlock()

	b.Handle(&models.MConfirmation{
		Order:           ord,
		ExecType:        models.ExecUnconfirmed,
		TransactionTime: time.Now().UnixMicro(),
	})

	if reason := b.riskCheck(ord); reason != "" {
		b.Logger.Warning("Order %d risk rejected: %s", ord.ID, reason)
		b.Handle(&models.MConfirmation{
			Order:           ord,
			ExecType:        models.ExecRiskRejected,
			TransactionTime: time.Now().UnixMicro(),
			Text:            reason,
		})
		return
	}

	if err := b.router.Place(ord); err != nil {
		b.Logger.Warning("Order %d rejected at routing: %v", ord.ID, err)
		b.Handle(&models.MConfirmation{
			Order:           ord,
			ExecType:        models.ExecNewRejected,
			TransactionTime: time.Now().UnixMicro(),
			Text:            err.Error(),
		})
	}
}

// -----------------------------------------------------------------------------

// riskCheck gates order admission before any venue sees the order.
func (b *GlobalOrderBook) riskCheck(ord *models.MOrder) string {
	if ord.Qty <= 0 {
		return "invalid qty"
	}
	if ord.User != nil && ord.SubAccount != nil && !ord.User.OwnsSubAccount(ord.SubAccount.ID) {
		return "No permission to trade with account: " + ord.SubAccount.Name
	}
	return ""
}

// -----------------------------------------------------------------------------

// Cancel routes a cancel request for a live order. Dead orders surface as
// cancel_rejected.
func (b *GlobalOrderBook) Cancel(ord *models.MOrder) {
	if !ord.IsLive() {
		b.Handle(&models.MConfirmation{
			Order:           ord,
			ExecType:        models.ExecCancelRejected,
			TransactionTime: time.Now().UnixMicro(),
			Text:            "order is not live",
		})
		return
	}

	if err := b.router.Cancel(ord); err != nil {
		b.Handle(&models.MConfirmation{
			Order:           ord,
			ExecType:        models.ExecCancelRejected,
			TransactionTime: time.Now().UnixMicro(),
			Text:            err.Error(),
		})
	}
}

// -----------------------------------------------------------------------------

// CancelAll requests cancellation of every live order and returns how many
// requests went out. The shutdown sequence calls this until it returns zero.
func (b *GlobalOrderBook) CancelAll() int {
	live := b.LiveOrders()
	for _, ord := range live {
		b.Cancel(ord)
	}
	return len(live)
}

// -----------------------------------------------------------------------------

// Handle is the single entry point for execution reports. State guards make
// late venue reports after a cancel or fill harmless.
func (b *GlobalOrderBook) Handle(cm *models.MConfirmation) {
	if cm.TransactionTime == 0 {
		cm.TransactionTime = time.Now().UnixMicro()
	}

	b.mu.Lock()
	ord := cm.Order
	switch cm.ExecType {
	case models.ExecUnconfirmed:
		// State already set at Place.

	case models.ExecPending:
		if ord.Status == models.StatusUnconfirmed {
			ord.Status = models.StatusPending
		}

	case models.ExecNew:
		if ord.IsLive() {
			ord.Status = models.StatusNew
		}

	case models.ExecPendingCancel:
		// No state change until the venue confirms.

	case models.ExecCancelled:
		if !ord.IsLive() {
			b.mu.Unlock()
			return
		}
		ord.Status = models.StatusCancelled

	case models.ExecFilled, models.ExecPartial:
		if !ord.IsLive() {
			b.mu.Unlock()
			return
		}
		ord.CumQty += cm.LastShares
		if ord.CumQty >= ord.Qty {
			ord.Status = models.StatusFilled
		}

	case models.ExecNewRejected, models.ExecRiskRejected:
		ord.Status = models.StatusRejected

	case models.ExecCancelRejected:
		// Order state unchanged.
	}
	b.mu.Unlock()

	if b.positions != nil {
		b.positions.OnConfirmation(cm)
	}

	b.store.Append(cm)

	b.listenersMu.RLock()
	for _, sink := range b.listeners {
		sink.SendConfirmation(cm, false)
	}
	b.listenersMu.RUnlock()
}

// -----------------------------------------------------------------------------

// LoadStore replays stored confirmations with seq greater than after into
// the sink, marked offline.
func (b *GlobalOrderBook) LoadStore(after int64, sink interfaces.IConfirmationSink) {
	b.store.Replay(after, func(cm *models.MConfirmation) {
		sink.SendConfirmation(cm, true)
	})
}
