package position

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"trade-gateway/src/interfaces"
	"trade-gateway/src/logger"
	"trade-gateway/src/marketdata"
	"trade-gateway/src/models"
	"trade-gateway/src/refdata"
)

// -----------------------------------------------------------------------------
// Manager keeps the inventory of every (sub-account, security) pair and the
// mirror book keyed by broker account. It is fed synchronously by the order
// book, marks unrealized PnL against market-data snapshots once a second and
// appends per-account PnL history files for the replay verb.
// -----------------------------------------------------------------------------

type posKey struct {
	acc int64
	sec int64
}

type entry struct {
	pos models.MPosition
	sec *models.MSecurity
}

// MPnlPoint is one line of a PnL history file.
type MPnlPoint struct {
	Tm         int64
	Realized   float64
	Unrealized float64
}

type Manager struct {
	Config *models.MConfig
	Logger *logger.Logger

	md         *marketdata.Manager
	securities *refdata.SecurityManager
	storeDir   string

	mu        sync.Mutex
	positions map[posKey]*entry
	broker    map[posKey]*entry
	bod       []*models.MBodPosition

	aggregates map[int64]models.MPnl

	persisted map[int64]models.MPnl
	persistTm map[int64]int64

	ctx        context.Context
	cancelFunc context.CancelFunc
}

// -----------------------------------------------------------------------------

func NewManager(cfg *models.MConfig, md *marketdata.Manager,
	securities *refdata.SecurityManager, log *logger.Logger) *Manager {

	return &Manager{
		Config:     cfg,
		Logger:     log,
		md:         md,
		securities: securities,
		storeDir:   cfg.StoreDir,
		positions:  make(map[posKey]*entry),
		broker:     make(map[posKey]*entry),
		aggregates: make(map[int64]models.MPnl),
		persisted:  make(map[int64]models.MPnl),
		persistTm:  make(map[int64]int64),
	}
}

// -----------------------------------------------------------------------------

// Session returns the current trading date (New York day) as YYYY-MM-DD.
func Session() string {
	nyLoc, _ := time.LoadLocation("America/New_York")
	if nyLoc == nil {
		nyLoc = time.UTC
	}
	return time.Now().In(nyLoc).Format("2006-01-02")
}

// -----------------------------------------------------------------------------

// LoadBod seeds the books with the beginning-of-day rows for today's session.
func (m *Manager) LoadBod(db interfaces.IDatabase) error {
	rows, err := db.LoadBodPositions(Session())
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, row := range rows {
		sec := m.securities.Get(row.SecurityID)
		if sec == nil {
			m.Logger.Warning("Dropping BOD row for unknown security %d", row.SecurityID)
			continue
		}

		e := m.entryLocked(m.positions, row.SubAccountID, row.SecurityID, sec)
		e.pos = row.Position

		if row.Position.BrokerAccountID > 0 {
			b := m.entryLocked(m.broker, row.Position.BrokerAccountID, row.SecurityID, sec)
			b.pos = row.Position
		}

		m.bod = append(m.bod, row)
	}
	m.recomputeAggregatesLocked()

	m.Logger.Info("Loaded %d BOD positions for session %s", len(m.bod), Session())
	return nil
}

// -----------------------------------------------------------------------------

func (m *Manager) entryLocked(book map[posKey]*entry, acc, sec int64, s *models.MSecurity) *entry {
	key := posKey{acc: acc, sec: sec}
	e := book[key]
	if e == nil {
		e = &entry{sec: s}
		book[key] = e
	}
	return e
}

// -----------------------------------------------------------------------------

// OnConfirmation is the order book hook. Outstanding quantities move on
// admission and terminal reports; inventory moves on fills only.
func (m *Manager) OnConfirmation(cm *models.MConfirmation) {
	ord := cm.Order
	if ord == nil || ord.Security == nil || ord.SubAccount == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.entryLocked(m.positions, ord.SubAccountID(), ord.Security.ID, ord.Security)
	if e.pos.BrokerAccountID == 0 {
		e.pos.BrokerAccountID = ord.BrokerAccountID()
	}
	m.applyLocked(&e.pos, cm)

	if brokerID := ord.BrokerAccountID(); brokerID > 0 {
		b := m.entryLocked(m.broker, brokerID, ord.Security.ID, ord.Security)
		b.pos.BrokerAccountID = brokerID
		m.applyLocked(&b.pos, cm)
	}

	if cm.ExecType == models.ExecFilled || cm.ExecType == models.ExecPartial {
		m.recomputeAggregatesLocked()
	}
}

// -----------------------------------------------------------------------------

func (m *Manager) applyLocked(pos *models.MPosition, cm *models.MConfirmation) {
	ord := cm.Order

	switch cm.ExecType {
	case models.ExecUnconfirmed:
		if ord.IsBuy() {
			pos.TotalOutstandingBuyQty += ord.Qty
		} else {
			pos.TotalOutstandingSellQty += ord.Qty
		}

	case models.ExecCancelled, models.ExecNewRejected, models.ExecRiskRejected:
		leaves := ord.Qty - ord.CumQty
		if leaves < 0 {
			leaves = 0
		}
		if ord.IsBuy() {
			pos.TotalOutstandingBuyQty -= leaves
			if pos.TotalOutstandingBuyQty < 0 {
				pos.TotalOutstandingBuyQty = 0
			}
		} else {
			pos.TotalOutstandingSellQty -= leaves
			if pos.TotalOutstandingSellQty < 0 {
				pos.TotalOutstandingSellQty = 0
			}
		}

	case models.ExecFilled, models.ExecPartial:
		if ord.IsBuy() {
			pos.TotalBoughtQty += cm.LastShares
			pos.TotalOutstandingBuyQty -= cm.LastShares
			if pos.TotalOutstandingBuyQty < 0 {
				pos.TotalOutstandingBuyQty = 0
			}
		} else {
			pos.TotalSoldQty += cm.LastShares
			pos.TotalOutstandingSellQty -= cm.LastShares
			if pos.TotalOutstandingSellQty < 0 {
				pos.TotalOutstandingSellQty = 0
			}
		}

		var realized float64
		pos.Qty, pos.AvgPx, realized = ApplyFill(
			pos.Qty, pos.AvgPx, ord.IsBuy(), cm.LastShares, cm.LastPx, ord.Security.Multiplier)
		pos.RealizedPnl += realized
		pos.Tm = cm.TransactionTime / 1e6
	}
}

// -----------------------------------------------------------------------------

// Start runs the 1s mark-to-market and persistence loop.
func (m *Manager) Start(parentCtx context.Context, wg *sync.WaitGroup) {
	m.ctx, m.cancelFunc = context.WithCancel(parentCtx)

	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-m.ctx.Done():
				return
			case <-ticker.C:
				m.Mark()
				m.persistChanged()
			}
		}
	}()
}

// -----------------------------------------------------------------------------

func (m *Manager) Stop() {
	if m.cancelFunc != nil {
		m.cancelFunc()
	}
}

// -----------------------------------------------------------------------------

// Mark recomputes unrealized PnL from the latest snapshots.
func (m *Manager) Mark() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, book := range []map[posKey]*entry{m.positions, m.broker} {
		for _, e := range book {
			if e.pos.Qty == 0 {
				e.pos.UnrealizedPnl = 0
				continue
			}
			snap := m.md.Get(e.sec.ID)
			px := snap.Close
			if px <= 0 {
				px = e.sec.ClosePx
			}
			e.pos.UnrealizedPnl = Unrealized(e.pos.Qty, e.pos.AvgPx, px, e.sec.Multiplier)
		}
	}
	m.recomputeAggregatesLocked()
}

// -----------------------------------------------------------------------------

func (m *Manager) recomputeAggregatesLocked() {
	aggs := make(map[int64]models.MPnl, len(m.aggregates))
	for key, e := range m.positions {
		agg := aggs[key.acc]
		agg.Realized += e.pos.RealizedPnl
		agg.Unrealized += e.pos.UnrealizedPnl
		aggs[key.acc] = agg
	}
	m.aggregates = aggs
}

// -----------------------------------------------------------------------------

// Get returns a copy of one (sub-account, security) position.
func (m *Manager) Get(accID, secID int64) models.MPosition {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e := m.positions[posKey{acc: accID, sec: secID}]; e != nil {
		return e.pos
	}
	return models.MPosition{}
}

// -----------------------------------------------------------------------------

// GetBroker returns a copy of one (broker-account, security) position.
func (m *Manager) GetBroker(brokerAccID, secID int64) models.MPosition {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e := m.broker[posKey{acc: brokerAccID, sec: secID}]; e != nil {
		return e.pos
	}
	return models.MPosition{}
}

// -----------------------------------------------------------------------------

// Pnl returns the aggregate PnL of one sub-account.
func (m *Manager) Pnl(accID int64) models.MPnl {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.aggregates[accID]
}

// -----------------------------------------------------------------------------

// IteratePnl visits per-account aggregates in ascending account order.
func (m *Manager) IteratePnl(visit func(accID int64, pnl models.MPnl)) {
	m.mu.Lock()
	ids := make([]int64, 0, len(m.aggregates))
	for id := range m.aggregates {
		ids = append(ids, id)
	}
	aggs := make(map[int64]models.MPnl, len(m.aggregates))
	for id, pnl := range m.aggregates {
		aggs[id] = pnl
	}
	m.mu.Unlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		visit(id, aggs[id])
	}
}

// -----------------------------------------------------------------------------

// IterateSingle visits every (sub-account, security) position ordered by
// account then security.
func (m *Manager) IterateSingle(visit func(accID, secID int64, pos models.MPosition)) {
	m.mu.Lock()
	keys := make([]posKey, 0, len(m.positions))
	for key := range m.positions {
		keys = append(keys, key)
	}
	copies := make(map[posKey]models.MPosition, len(m.positions))
	for key, e := range m.positions {
		copies[key] = e.pos
	}
	m.mu.Unlock()

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].acc != keys[j].acc {
			return keys[i].acc < keys[j].acc
		}
		return keys[i].sec < keys[j].sec
	})
	for _, key := range keys {
		visit(key.acc, key.sec, copies[key])
	}
}

// -----------------------------------------------------------------------------

// IterateBod visits the beginning-of-day rows in load order.
func (m *Manager) IterateBod(visit func(row *models.MBodPosition)) {
	m.mu.Lock()
	rows := make([]*models.MBodPosition, len(m.bod))
	copy(rows, m.bod)
	m.mu.Unlock()

	for _, row := range rows {
		visit(row)
	}
}

// -----------------------------------------------------------------------------

// persistChanged appends one history line per account whose aggregate moved,
// at most once a second per account.
func (m *Manager) persistChanged() {
	if m.storeDir == "" {
		return
	}

	now := time.Now().Unix()

	m.mu.Lock()
	type write struct {
		accID int64
		pnl   models.MPnl
	}
	var writes []write
	for accID, pnl := range m.aggregates {
		last, seen := m.persisted[accID]
		if seen && last == pnl {
			continue
		}
		if !seen && pnl == (models.MPnl{}) {
			// A flat account that never traded leaves no history.
			m.persisted[accID] = pnl
			continue
		}
		if m.persistTm[accID] == now {
			continue
		}
		m.persisted[accID] = pnl
		m.persistTm[accID] = now
		writes = append(writes, write{accID: accID, pnl: pnl})
	}
	m.mu.Unlock()

	for _, w := range writes {
		if err := m.appendHistory(w.accID, now, w.pnl); err != nil {
			m.Logger.Error("Failed to persist PnL for account %d: %v", w.accID, err)
		}
	}
}

// -----------------------------------------------------------------------------

func (m *Manager) historyPath(accID int64) string {
	return filepath.Join(m.storeDir, fmt.Sprintf("pnl-%d", accID))
}

// -----------------------------------------------------------------------------

func (m *Manager) appendHistory(accID, tm int64, pnl models.MPnl) error {
	f, err := os.OpenFile(m.historyPath(accID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = fmt.Fprintf(f, "%d %f %f\n", tm, pnl.Realized, pnl.Unrealized)
	return err
}

// -----------------------------------------------------------------------------

// History reads one account's PnL file back, keeping records newer than since.
// A missing file is an empty history.
func (m *Manager) History(accID, since int64) []MPnlPoint {
	f, err := os.Open(m.historyPath(accID))
	if err != nil {
		return nil
	}
	defer f.Close()

	var points []MPnlPoint
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var pt MPnlPoint
		if _, err := fmt.Sscanf(scanner.Text(), "%d %f %f", &pt.Tm, &pt.Realized, &pt.Unrealized); err != nil {
			continue
		}
		if pt.Tm > since {
			points = append(points, pt)
		}
	}
	return points
}
