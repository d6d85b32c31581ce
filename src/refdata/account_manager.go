package refdata

import (
	"fmt"
	"sort"
	"sync"

	"trade-gateway/src/interfaces"
	"trade-gateway/src/logger"
	"trade-gateway/src/models"
)

// -----------------------------------------------------------------------------
// AccountManager holds users, sub-accounts and broker accounts.
// Read-mostly after boot, same as the security catalog.
// -----------------------------------------------------------------------------

type AccountManager struct {
	mu             sync.RWMutex
	users          map[int64]*models.MUser
	usersByName    map[string]*models.MUser
	subAccounts    map[int64]*models.MSubAccount
	subsByName     map[string]*models.MSubAccount
	brokerAccounts map[int64]*models.MBrokerAccount
	logger         *logger.Logger
}

// -----------------------------------------------------------------------------

func NewAccountManager(log *logger.Logger) *AccountManager {
	return &AccountManager{
		users:          make(map[int64]*models.MUser),
		usersByName:    make(map[string]*models.MUser),
		subAccounts:    make(map[int64]*models.MSubAccount),
		subsByName:     make(map[string]*models.MSubAccount),
		brokerAccounts: make(map[int64]*models.MBrokerAccount),
		logger:         log,
	}
}

// -----------------------------------------------------------------------------

func (m *AccountManager) Load(db interfaces.IDatabase) error {
	users, err := db.LoadUsers()
	if err != nil {
		return fmt.Errorf("load users: %w", err)
	}
	subAccounts, err := db.LoadSubAccounts()
	if err != nil {
		return fmt.Errorf("load sub accounts: %w", err)
	}
	brokerAccounts, err := db.LoadBrokerAccounts()
	if err != nil {
		return fmt.Errorf("load broker accounts: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.users = make(map[int64]*models.MUser, len(users))
	m.usersByName = make(map[string]*models.MUser, len(users))
	for _, u := range users {
		m.users[u.ID] = u
		m.usersByName[u.Name] = u
	}

	m.subAccounts = make(map[int64]*models.MSubAccount, len(subAccounts))
	m.subsByName = make(map[string]*models.MSubAccount, len(subAccounts))
	for _, a := range subAccounts {
		m.subAccounts[a.ID] = a
		m.subsByName[a.Name] = a
	}

	m.brokerAccounts = make(map[int64]*models.MBrokerAccount, len(brokerAccounts))
	for _, b := range brokerAccounts {
		m.brokerAccounts[b.ID] = b
	}

	m.logger.Info("Loaded %d users, %d sub accounts, %d broker accounts",
		len(m.users), len(m.subAccounts), len(m.brokerAccounts))
	return nil
}

// -----------------------------------------------------------------------------

// GetUser resolves a login name, or nil.
func (m *AccountManager) GetUser(name string) *models.MUser {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.usersByName[name]
}

// -----------------------------------------------------------------------------

// GetUserByID returns the user or nil.
func (m *AccountManager) GetUserByID(id int64) *models.MUser {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.users[id]
}

// -----------------------------------------------------------------------------

// GetSubAccount returns the sub-account or nil.
func (m *AccountManager) GetSubAccount(id int64) *models.MSubAccount {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.subAccounts[id]
}

// -----------------------------------------------------------------------------

// GetSubAccountByName returns the sub-account or nil.
func (m *AccountManager) GetSubAccountByName(name string) *models.MSubAccount {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.subsByName[name]
}

// -----------------------------------------------------------------------------

// IterateUsers visits every user in ascending id order.
func (m *AccountManager) IterateUsers(f func(u *models.MUser)) {
	m.mu.RLock()
	ids := make([]int64, 0, len(m.users))
	for id := range m.users {
		ids = append(ids, id)
	}
	users := m.users
	m.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		f(users[id])
	}
}

// -----------------------------------------------------------------------------

// IterateSubAccounts visits every sub-account in ascending id order.
func (m *AccountManager) IterateSubAccounts(f func(a *models.MSubAccount)) {
	m.mu.RLock()
	ids := make([]int64, 0, len(m.subAccounts))
	for id := range m.subAccounts {
		ids = append(ids, id)
	}
	subs := m.subAccounts
	m.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		f(subs[id])
	}
}

// -----------------------------------------------------------------------------

// IterateBrokerAccounts visits every broker account in ascending id order.
func (m *AccountManager) IterateBrokerAccounts(f func(b *models.MBrokerAccount)) {
	m.mu.RLock()
	ids := make([]int64, 0, len(m.brokerAccounts))
	for id := range m.brokerAccounts {
		ids = append(ids, id)
	}
	brokers := m.brokerAccounts
	m.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		f(brokers[id])
	}
}
