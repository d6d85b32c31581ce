package refdata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-gateway/src/logger"
	"trade-gateway/src/models"
	"trade-gateway/src/storage"
)

// -----------------------------------------------------------------------------

func seededDB(t *testing.T) *storage.AsyncSQLiteDB {
	t.Helper()

	cfg := &models.MConfig{}
	cfg.Storage.DBType = "sqlite"
	cfg.Storage.DBPath = ":memory:"

	db, err := storage.NewAsyncSQLiteDB(cfg, logger.NewLogger(cfg, "test"))
	require.NoError(t, err)
	require.NoError(t, db.Initialize())
	require.NoError(t, db.SeedDemo("2025-06-02"))
	t.Cleanup(func() { db.Close() })
	return db
}

// -----------------------------------------------------------------------------

func TestSecurityManagerLoad(t *testing.T) {
	sm := NewSecurityManager(logger.NewLogger(nil, "test"))
	require.NoError(t, sm.Load(seededDB(t)))

	assert.Equal(t, 5, sm.Count())

	aapl := sm.Get(1)
	require.NotNil(t, aapl)
	assert.Equal(t, "AAPL", aapl.Symbol)
	assert.Equal(t, "NASDAQ", aapl.ExchangeName())

	assert.Nil(t, sm.Get(999))
	assert.Equal(t, aapl, sm.FindBySymbol("AAPL"))
	assert.Nil(t, sm.FindBySymbol("ZZZZ"))
}

func TestSecurityManagerIterateOrdered(t *testing.T) {
	sm := NewSecurityManager(logger.NewLogger(nil, "test"))
	require.NoError(t, sm.Load(seededDB(t)))

	var ids []int64
	sm.Iterate(func(s *models.MSecurity) { ids = append(ids, s.ID) })
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, ids)

	var venues []string
	sm.IterateExchanges(func(e *models.MExchange) { venues = append(venues, e.Name) })
	assert.Equal(t, []string{"NYSE", "NASDAQ"}, venues)
}

func TestSecurityManagerCheckSumStable(t *testing.T) {
	sm1 := NewSecurityManager(logger.NewLogger(nil, "test"))
	require.NoError(t, sm1.Load(seededDB(t)))

	sm2 := NewSecurityManager(logger.NewLogger(nil, "test"))
	require.NoError(t, sm2.Load(seededDB(t)))

	require.NotEmpty(t, sm1.CheckSum())
	// Equal catalogs produce equal sums across loads.
	assert.Equal(t, sm1.CheckSum(), sm2.CheckSum())
}

func TestSecurityManagerCheckSumChangesWithCatalog(t *testing.T) {
	db := seededDB(t)

	sm1 := NewSecurityManager(logger.NewLogger(nil, "test"))
	require.NoError(t, sm1.Load(db))
	before := sm1.CheckSum()

	_, err := db.DB.Exec(`INSERT INTO securities (id, symbol, exchange_id, lot_size) VALUES (6, 'TSLA', 2, 100)`)
	require.NoError(t, err)

	require.NoError(t, sm1.Load(db))
	assert.NotEqual(t, before, sm1.CheckSum())
}

// -----------------------------------------------------------------------------

func TestAccountManagerLoad(t *testing.T) {
	am := NewAccountManager(logger.NewLogger(nil, "test"))
	require.NoError(t, am.Load(seededDB(t)))

	admin := am.GetUser("admin")
	require.NotNil(t, admin)
	assert.True(t, admin.IsAdmin)
	assert.Equal(t, admin, am.GetUserByID(admin.ID))

	assert.Nil(t, am.GetUser("nobody"))
	assert.Nil(t, am.GetUserByID(999))

	alpha := am.GetSubAccountByName("ALPHA")
	require.NotNil(t, alpha)
	assert.Equal(t, alpha, am.GetSubAccount(alpha.ID))
}

func TestAccountManagerIterationOrdered(t *testing.T) {
	am := NewAccountManager(logger.NewLogger(nil, "test"))
	require.NoError(t, am.Load(seededDB(t)))

	var names []string
	am.IterateUsers(func(u *models.MUser) { names = append(names, u.Name) })
	assert.Equal(t, []string{"admin", "trader", "retired"}, names)

	var brokers []string
	am.IterateBrokerAccounts(func(b *models.MBrokerAccount) { brokers = append(brokers, b.Name) })
	assert.Equal(t, []string{"SIM-NYSE", "SIM-NASDAQ"}, brokers)

	var subs []string
	am.IterateSubAccounts(func(a *models.MSubAccount) { subs = append(subs, a.Name) })
	assert.Equal(t, []string{"ALPHA", "BETA"}, subs)
}
