package refdata

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strconv"
	"sync"

	"trade-gateway/src/interfaces"
	"trade-gateway/src/logger"
	"trade-gateway/src/models"
)

// -----------------------------------------------------------------------------
// SecurityManager holds the instrument catalog. Loaded once at boot,
// read-only afterwards; the session engine never mutates it.
// -----------------------------------------------------------------------------

type SecurityManager struct {
	mu         sync.RWMutex
	securities map[int64]*models.MSecurity
	bySymbol   map[string]*models.MSecurity
	exchanges  map[int64]*models.MExchange
	sortedIDs  []int64
	checkSum   string
	logger     *logger.Logger
}

// -----------------------------------------------------------------------------

func NewSecurityManager(log *logger.Logger) *SecurityManager {
	return &SecurityManager{
		securities: make(map[int64]*models.MSecurity),
		bySymbol:   make(map[string]*models.MSecurity),
		exchanges:  make(map[int64]*models.MExchange),
		logger:     log,
	}
}

// -----------------------------------------------------------------------------

// Load pulls the catalog from storage and computes the checksum clients use
// to skip re-downloading an unchanged universe.
func (m *SecurityManager) Load(db interfaces.IDatabase) error {
	exchanges, err := db.LoadExchanges()
	if err != nil {
		return fmt.Errorf("load exchanges: %w", err)
	}
	securities, err := db.LoadSecurities()
	if err != nil {
		return fmt.Errorf("load securities: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.exchanges = make(map[int64]*models.MExchange, len(exchanges))
	for _, e := range exchanges {
		m.exchanges[e.ID] = e
	}

	m.securities = make(map[int64]*models.MSecurity, len(securities))
	m.bySymbol = make(map[string]*models.MSecurity, len(securities))
	m.sortedIDs = m.sortedIDs[:0]
	for _, s := range securities {
		m.securities[s.ID] = s
		m.bySymbol[s.Symbol] = s
		m.sortedIDs = append(m.sortedIDs, s.ID)
	}
	sort.Slice(m.sortedIDs, func(i, j int) bool { return m.sortedIDs[i] < m.sortedIDs[j] })

	m.checkSum = m.computeCheckSumLocked()
	m.logger.Info("Loaded %d securities on %d exchanges (checksum %s)",
		len(m.securities), len(m.exchanges), m.checkSum)
	return nil
}

// -----------------------------------------------------------------------------

// computeCheckSumLocked folds every catalog field into an FNV-1a sum in id
// order so equal catalogs always produce equal sums.
func (m *SecurityManager) computeCheckSumLocked() string {
	h := fnv.New64a()
	for _, id := range m.sortedIDs {
		s := m.securities[id]
		fmt.Fprintf(h, "%d|%s|%s|%s|%s|%s|%d|%g|%g|%g|%d|%d|%d|%d|%s|%s|%s|%s\n",
			s.ID, s.Symbol, s.LocalSymbol, s.ExchangeName(), s.Type, s.Currency,
			s.LotSize, s.Multiplier, s.Rate, s.ClosePx,
			s.Sector, s.IndustryGroup, s.Industry, s.SubIndustry,
			s.Bbgid, s.Cusip, s.Sedol, s.Isin)
	}
	return strconv.FormatUint(h.Sum64(), 16)
}

// -----------------------------------------------------------------------------

// Get returns the security or nil.
func (m *SecurityManager) Get(id int64) *models.MSecurity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.securities[id]
}

// -----------------------------------------------------------------------------

// FindBySymbol resolves a feed symbol to its security, or nil.
func (m *SecurityManager) FindBySymbol(symbol string) *models.MSecurity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.bySymbol[symbol]
}

// -----------------------------------------------------------------------------

// Iterate visits every security in ascending id order.
func (m *SecurityManager) Iterate(f func(s *models.MSecurity)) {
	m.mu.RLock()
	ids := m.sortedIDs
	secs := m.securities
	m.mu.RUnlock()

	for _, id := range ids {
		f(secs[id])
	}
}

// -----------------------------------------------------------------------------

// GetExchange returns the venue or nil.
func (m *SecurityManager) GetExchange(id int64) *models.MExchange {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.exchanges[id]
}

// -----------------------------------------------------------------------------

// IterateExchanges visits every venue in ascending id order.
func (m *SecurityManager) IterateExchanges(f func(e *models.MExchange)) {
	m.mu.RLock()
	ids := make([]int64, 0, len(m.exchanges))
	for id := range m.exchanges {
		ids = append(ids, id)
	}
	exchanges := m.exchanges
	m.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		f(exchanges[id])
	}
}

// -----------------------------------------------------------------------------

// CheckSum returns the catalog checksum computed at load time.
func (m *SecurityManager) CheckSum() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.checkSum
}

// -----------------------------------------------------------------------------

// Count returns the catalog size.
func (m *SecurityManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.securities)
}
