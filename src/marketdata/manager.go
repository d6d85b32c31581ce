package marketdata

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"trade-gateway/src/interfaces"
	"trade-gateway/src/logger"
	"trade-gateway/src/models"
	"trade-gateway/src/refdata"
)

// -----------------------------------------------------------------------------
// Manager owns the snapshot table and the feed adapter registry. Adapters
// push raw quotes into one channel; the consume loop resolves symbols
// against the catalog and folds quotes into snapshots.
// -----------------------------------------------------------------------------

type Manager struct {
	Config     *models.MConfig
	Logger     *logger.Logger
	securities *refdata.SecurityManager

	adapters   map[string]interfaces.IMarketDataAdapter
	adaptersMu sync.RWMutex

	snapshots   map[int64]*models.MSnapshot
	snapshotsMu sync.RWMutex

	quotes     chan models.MQuote
	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         *sync.WaitGroup
	mu         sync.Mutex
}

// -----------------------------------------------------------------------------

func NewManager(cfg *models.MConfig, securities *refdata.SecurityManager, log *logger.Logger) *Manager {
	return &Manager{
		Config:     cfg,
		Logger:     log,
		securities: securities,
		adapters:   make(map[string]interfaces.IMarketDataAdapter),
		snapshots:  make(map[int64]*models.MSnapshot),
		quotes:     make(chan models.MQuote, 1024),
	}
}

// -----------------------------------------------------------------------------

// AddAdapter registers a feed adapter and starts it if the manager is running.
func (m *Manager) AddAdapter(adapter interfaces.IMarketDataAdapter) error {
	m.adaptersMu.Lock()
	defer m.adaptersMu.Unlock()

	name := adapter.GetName()
	if _, exists := m.adapters[name]; exists {
		return fmt.Errorf("adapter %s already exists", name)
	}

	m.adapters[name] = adapter
	m.Logger.Info("Added market data adapter: %s", name)

	if m.ctx != nil {
		if err := adapter.Start(m.ctx, m.quotes, m.wg); err != nil {
			return fmt.Errorf("failed to start adapter %s: %v", name, err)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------

// GetAdapter retrieves an adapter by name.
func (m *Manager) GetAdapter(name string) interfaces.IMarketDataAdapter {
	m.adaptersMu.RLock()
	defer m.adaptersMu.RUnlock()
	return m.adapters[name]
}

// -----------------------------------------------------------------------------

// Adapters returns all adapters sorted by name. Connectivity publishing
// depends on the order being stable.
func (m *Manager) Adapters() []interfaces.IMarketDataAdapter {
	m.adaptersMu.RLock()
	names := make([]string, 0, len(m.adapters))
	for name := range m.adapters {
		names = append(names, name)
	}
	adapters := m.adapters
	m.adaptersMu.RUnlock()

	sort.Strings(names)
	list := make([]interfaces.IMarketDataAdapter, 0, len(names))
	for _, name := range names {
		list = append(list, adapters[name])
	}
	return list
}

// -----------------------------------------------------------------------------

// Start launches the consume loop and every registered adapter.
func (m *Manager) Start(parentCtx context.Context, wg *sync.WaitGroup) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctx != nil {
		return fmt.Errorf("market data manager is already running")
	}

	ctx, cancel := context.WithCancel(parentCtx)
	m.ctx = ctx
	m.cancelFunc = cancel
	m.wg = wg

	wg.Add(1)
	go m.consumeLoop(ctx, wg)

	m.adaptersMu.RLock()
	defer m.adaptersMu.RUnlock()
	for name, adapter := range m.adapters {
		if err := adapter.Start(ctx, m.quotes, wg); err != nil {
			m.Logger.Error("Failed to start adapter %s: %v", name, err)
			return err
		}
	}
	return nil
}

// -----------------------------------------------------------------------------

// Stop cancels the consume loop and all adapters.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctx == nil {
		return nil // Already stopped
	}

	m.Logger.Info("Stopping market data manager...")

	m.adaptersMu.RLock()
	for _, adapter := range m.adapters {
		adapter.Stop()
	}
	m.adaptersMu.RUnlock()

	if m.cancelFunc != nil {
		m.cancelFunc()
	}
	m.cancelFunc = nil
	m.ctx = nil

	m.Logger.Info("Market data manager stopped.")
	return nil
}

// -----------------------------------------------------------------------------

func (m *Manager) consumeLoop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case q := <-m.quotes:
			sec := m.securities.FindBySymbol(q.Symbol)
			if sec == nil {
				m.Logger.Debug("Quote for unknown symbol %s dropped", q.Symbol)
				continue
			}
			m.Apply(sec.ID, func(s *models.MSnapshot) {
				applyQuote(s, &q)
			})
		}
	}
}

// -----------------------------------------------------------------------------

// applyQuote folds one raw quote into a snapshot. Zero fields in the quote
// leave the corresponding snapshot fields untouched.
func applyQuote(s *models.MSnapshot, q *models.MQuote) {
	if q.Last > 0 {
		s.Close = q.Last
	}
	if q.Open > 0 {
		s.Open = q.Open
	}
	if q.High > 0 {
		s.High = q.High
	}
	if q.Low > 0 {
		s.Low = q.Low
	}
	if q.Volume > 0 {
		s.Volume = q.Volume
	}
	if q.Bid > 0 {
		s.Depth[0].BidPrice = q.Bid
		s.Depth[0].BidSize = q.BidSize
	}
	if q.Ask > 0 {
		s.Depth[0].AskPrice = q.Ask
		s.Depth[0].AskSize = q.AskSize
	}
}

// -----------------------------------------------------------------------------

// Apply mutates the snapshot for a security and stamps its update time.
// The paper exchange uses this to print trades into the snapshot table.
func (m *Manager) Apply(securityID int64, mutate func(s *models.MSnapshot)) {
	m.snapshotsMu.Lock()
	defer m.snapshotsMu.Unlock()

	snap, ok := m.snapshots[securityID]
	if !ok {
		snap = &models.MSnapshot{}
		m.snapshots[securityID] = snap
	}
	mutate(snap)
	snap.Tm = time.Now().Unix()
}

// -----------------------------------------------------------------------------

// Get returns a copy of the security's snapshot. The zero snapshot (Tm 0) is
// returned for securities that have not ticked yet.
func (m *Manager) Get(securityID int64) models.MSnapshot {
	m.snapshotsMu.RLock()
	defer m.snapshotsMu.RUnlock()

	if snap, ok := m.snapshots[securityID]; ok {
		return *snap
	}
	return models.MSnapshot{}
}

// -----------------------------------------------------------------------------

// SnapshotCount returns the number of securities that have ticked.
func (m *Manager) SnapshotCount() int {
	m.snapshotsMu.RLock()
	defer m.snapshotsMu.RUnlock()
	return len(m.snapshots)
}
