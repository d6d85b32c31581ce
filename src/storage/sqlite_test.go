package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-gateway/src/logger"
	"trade-gateway/src/models"
)

// -----------------------------------------------------------------------------

func newTestDB(t *testing.T) *AsyncSQLiteDB {
	t.Helper()

	cfg := &models.MConfig{}
	cfg.Storage.DBType = "sqlite"
	cfg.Storage.DBPath = ":memory:"

	db, err := NewAsyncSQLiteDB(cfg, logger.NewLogger(cfg, "test"))
	require.NoError(t, err)
	require.NoError(t, db.Initialize())
	t.Cleanup(func() { db.Close() })
	return db
}

// -----------------------------------------------------------------------------

func TestInitializeCreatesEmptySchema(t *testing.T) {
	db := newTestDB(t)

	empty, err := db.IsEmpty()
	require.NoError(t, err)
	assert.True(t, empty)

	exchanges, err := db.LoadExchanges()
	require.NoError(t, err)
	assert.Empty(t, exchanges)
}

func TestSeedDemoLoadsBack(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.SeedDemo("2025-06-02"))

	empty, err := db.IsEmpty()
	require.NoError(t, err)
	assert.False(t, empty)

	exchanges, err := db.LoadExchanges()
	require.NoError(t, err)
	require.Len(t, exchanges, 2)
	assert.Equal(t, "NYSE", exchanges[0].Name)
	assert.Equal(t, "xnys", exchanges[0].Mic)

	securities, err := db.LoadSecurities()
	require.NoError(t, err)
	require.Len(t, securities, 5)

	bySymbol := make(map[string]*models.MSecurity)
	for _, s := range securities {
		bySymbol[s.Symbol] = s
	}
	aapl := bySymbol["AAPL"]
	require.NotNil(t, aapl)
	assert.Equal(t, "NASDAQ", aapl.ExchangeName())
	assert.Equal(t, int64(100), aapl.LotSize)
	assert.Equal(t, 189.50, aapl.ClosePx)
}

func TestSeedDemoIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.SeedDemo("2025-06-02"))
	require.NoError(t, db.SeedDemo("2025-06-02"))

	users, err := db.LoadUsers()
	require.NoError(t, err)
	assert.Len(t, users, 3)
}

func TestLoadUsersResolvesOwnership(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.SeedDemo("2025-06-02"))

	users, err := db.LoadUsers()
	require.NoError(t, err)
	require.Len(t, users, 3)

	byName := make(map[string]*models.MUser)
	for _, u := range users {
		byName[u.Name] = u
	}

	admin := byName["admin"]
	require.NotNil(t, admin)
	assert.True(t, admin.IsAdmin)
	assert.Len(t, admin.SubAccounts, 1)
	// Admins own everything regardless of explicit mappings.
	assert.True(t, admin.OwnsSubAccount(2))

	trader := byName["trader"]
	require.NotNil(t, trader)
	assert.False(t, trader.IsAdmin)
	assert.Len(t, trader.SubAccounts, 2)
	assert.True(t, trader.OwnsSubAccount(1))
	assert.False(t, trader.OwnsSubAccount(99))

	retired := byName["retired"]
	require.NotNil(t, retired)
	assert.True(t, retired.IsDisabled)
}

func TestLoadSubAccountsResolvesBrokerLinks(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.SeedDemo("2025-06-02"))

	subs, err := db.LoadSubAccounts()
	require.NoError(t, err)
	require.Len(t, subs, 2)

	alpha := subs[0]
	assert.Equal(t, "ALPHA", alpha.Name)
	require.Len(t, alpha.BrokerAccounts, 2)

	// Broker account keyed by exchange id.
	nyseBroker := alpha.GetBrokerAccount(1)
	require.NotNil(t, nyseBroker)
	assert.Equal(t, "SIM-NYSE", nyseBroker.Name)
	assert.Equal(t, "paper", nyseBroker.Adapter)
	assert.Nil(t, alpha.GetBrokerAccount(42))
}

func TestLoadBodPositionsByDate(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.SeedDemo("2025-06-02"))

	positions, err := db.LoadBodPositions("2025-06-02")
	require.NoError(t, err)
	require.Len(t, positions, 3)

	var short *models.MBodPosition
	for _, p := range positions {
		if p.SubAccountID == 1 && p.SecurityID == 3 {
			short = p
		}
	}
	require.NotNil(t, short)
	assert.Equal(t, -50.0, short.Position.Qty)
	assert.Equal(t, 140.0, short.Position.AvgPx)
	assert.Equal(t, 125.5, short.Position.RealizedPnl)

	// Other dates are empty.
	none, err := db.LoadBodPositions("2024-01-01")
	require.NoError(t, err)
	assert.Empty(t, none)
}
