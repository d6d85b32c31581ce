package exchange

import (
	"fmt"
	"sort"
	"sync"

	"trade-gateway/src/interfaces"
	"trade-gateway/src/logger"
	"trade-gateway/src/models"
)

// -----------------------------------------------------------------------------
// Manager routes orders to venue connections. The broker account on the
// order names the adapter that clears it.
// -----------------------------------------------------------------------------

type Manager struct {
	Config   *models.MConfig
	Logger   *logger.Logger
	adapters map[string]interfaces.IExchangeAdapter
	mu       sync.RWMutex
}

// -----------------------------------------------------------------------------

func NewManager(cfg *models.MConfig, log *logger.Logger) *Manager {
	return &Manager{
		Config:   cfg,
		Logger:   log,
		adapters: make(map[string]interfaces.IExchangeAdapter),
	}
}

// -----------------------------------------------------------------------------

// AddAdapter registers a venue connection.
func (m *Manager) AddAdapter(adapter interfaces.IExchangeAdapter) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := adapter.GetName()
	if _, exists := m.adapters[name]; exists {
		return fmt.Errorf("adapter %s already exists", name)
	}
	m.adapters[name] = adapter
	m.Logger.Info("Added exchange adapter: %s", name)
	return nil
}

// -----------------------------------------------------------------------------

// GetAdapter retrieves a venue connection by name.
func (m *Manager) GetAdapter(name string) interfaces.IExchangeAdapter {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.adapters[name]
}

// -----------------------------------------------------------------------------

// Adapters returns all venue connections sorted by name. Connectivity
// publishing depends on the order being stable.
func (m *Manager) Adapters() []interfaces.IExchangeAdapter {
	m.mu.RLock()
	names := make([]string, 0, len(m.adapters))
	for name := range m.adapters {
		names = append(names, name)
	}
	adapters := m.adapters
	m.mu.RUnlock()

	sort.Strings(names)
	list := make([]interfaces.IExchangeAdapter, 0, len(names))
	for _, name := range names {
		list = append(list, adapters[name])
	}
	return list
}

// -----------------------------------------------------------------------------

// resolve picks the adapter clearing the order's broker account.
func (m *Manager) resolve(ord *models.MOrder) (interfaces.IExchangeAdapter, error) {
	if ord.BrokerAccount == nil {
		return nil, fmt.Errorf("order %d has no broker account", ord.ID)
	}

	adapter := m.GetAdapter(ord.BrokerAccount.Adapter)
	if adapter == nil {
		return nil, fmt.Errorf("unknown exchange adapter: %s", ord.BrokerAccount.Adapter)
	}
	if !adapter.Connected() {
		return nil, fmt.Errorf("exchange adapter %s is not connected", adapter.GetName())
	}
	return adapter, nil
}

// -----------------------------------------------------------------------------

// Place routes a new order to its venue.
func (m *Manager) Place(ord *models.MOrder) error {
	adapter, err := m.resolve(ord)
	if err != nil {
		return err
	}
	return adapter.Place(ord)
}

// -----------------------------------------------------------------------------

// Cancel routes a cancel request to the venue holding the order.
func (m *Manager) Cancel(ord *models.MOrder) error {
	adapter, err := m.resolve(ord)
	if err != nil {
		return err
	}
	return adapter.Cancel(ord)
}

// -----------------------------------------------------------------------------

// Stop shuts down adapters that support it.
func (m *Manager) Stop() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for name, adapter := range m.adapters {
		if stopper, ok := adapter.(interface{ Stop() error }); ok {
			if err := stopper.Stop(); err != nil {
				m.Logger.Warning("Error stopping adapter %s: %v", name, err)
			}
		}
	}
}
