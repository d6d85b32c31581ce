package storage

import (
	"database/sql"
	"fmt"

	"trade-gateway/src/logger"
	"trade-gateway/src/models"

	_ "modernc.org/sqlite"
)

// -----------------------------------------------------------------------------

type AsyncSQLiteDB struct {
	Config *models.MConfig
	DB     *sql.DB
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewAsyncSQLiteDB(cfg *models.MConfig, log *logger.Logger) (*AsyncSQLiteDB, error) {
	return &AsyncSQLiteDB{
		Config: cfg,
		Logger: log,
	}, nil
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) Initialize() error {
	dsn := d.Config.Storage.DBPath

	// Open DB
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return err
	}

	if err := db.Ping(); err != nil {
		return err
	}

	d.DB = db

	// PRAGMA optimizations
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		d.Logger.Warning("Failed to set WAL mode: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL;"); err != nil {
		d.Logger.Warning("Failed to set synchronous mode: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		d.Logger.Warning("Failed to enable foreign keys: %v", err)
	}

	// Reference data persists across restarts, so tables are created but
	// never dropped here.
	return d.ensureTables()
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) ensureTables() error {
	// SQLite types: INTEGER for int64, REAL for float64, TEXT for string
	statements := []string{
		`CREATE TABLE IF NOT EXISTS exchanges (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			mic TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS securities (
			id INTEGER PRIMARY KEY,
			symbol TEXT NOT NULL,
			local_symbol TEXT,
			type TEXT,
			currency TEXT,
			exchange_id INTEGER,
			bbgid TEXT,
			cusip TEXT,
			sedol TEXT,
			isin TEXT,
			multiplier REAL DEFAULT 1,
			rate REAL DEFAULT 1,
			lot_size INTEGER DEFAULT 0,
			close_px REAL DEFAULT 0,
			adv20 REAL DEFAULT 0,
			market_cap REAL DEFAULT 0,
			sector INTEGER DEFAULT 0,
			industry_group INTEGER DEFAULT 0,
			industry INTEGER DEFAULT 0,
			sub_industry INTEGER DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			password TEXT NOT NULL,
			is_admin INTEGER DEFAULT 0,
			is_disabled INTEGER DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS sub_accounts (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL UNIQUE
		);`,
		`CREATE TABLE IF NOT EXISTS broker_accounts (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			adapter TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS user_sub_account_map (
			user_id INTEGER NOT NULL,
			sub_account_id INTEGER NOT NULL,
			PRIMARY KEY (user_id, sub_account_id)
		);`,
		`CREATE TABLE IF NOT EXISTS sub_account_broker_account_map (
			sub_account_id INTEGER NOT NULL,
			exchange_id INTEGER NOT NULL,
			broker_account_id INTEGER NOT NULL,
			PRIMARY KEY (sub_account_id, exchange_id)
		);`,
		`CREATE TABLE IF NOT EXISTS bod_positions (
			date TEXT NOT NULL,
			sub_account_id INTEGER NOT NULL,
			security_id INTEGER NOT NULL,
			broker_account_id INTEGER DEFAULT 0,
			qty REAL DEFAULT 0,
			avg_px REAL DEFAULT 0,
			realized_pnl REAL DEFAULT 0,
			PRIMARY KEY (date, sub_account_id, security_id)
		);`,
	}

	for _, stmt := range statements {
		if _, err := d.DB.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) LoadExchanges() ([]*models.MExchange, error) {
	rows, err := d.DB.Query("SELECT id, name, COALESCE(mic, '') FROM exchanges ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.MExchange
	for rows.Next() {
		e := &models.MExchange{}
		if err := rows.Scan(&e.ID, &e.Name, &e.Mic); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) LoadSecurities() ([]*models.MSecurity, error) {
	exchanges, err := d.LoadExchanges()
	if err != nil {
		return nil, err
	}
	exchangeByID := make(map[int64]*models.MExchange, len(exchanges))
	for _, e := range exchanges {
		exchangeByID[e.ID] = e
	}

	rows, err := d.DB.Query(`
		SELECT id, symbol, COALESCE(local_symbol, ''), COALESCE(type, ''),
		       COALESCE(currency, ''), COALESCE(exchange_id, 0),
		       COALESCE(bbgid, ''), COALESCE(cusip, ''), COALESCE(sedol, ''), COALESCE(isin, ''),
		       multiplier, rate, lot_size, close_px, adv20, market_cap,
		       sector, industry_group, industry, sub_industry
		FROM securities ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.MSecurity
	for rows.Next() {
		s := &models.MSecurity{}
		var exchangeID int64
		err := rows.Scan(&s.ID, &s.Symbol, &s.LocalSymbol, &s.Type,
			&s.Currency, &exchangeID,
			&s.Bbgid, &s.Cusip, &s.Sedol, &s.Isin,
			&s.Multiplier, &s.Rate, &s.LotSize, &s.ClosePx, &s.Adv20, &s.MarketCap,
			&s.Sector, &s.IndustryGroup, &s.Industry, &s.SubIndustry)
		if err != nil {
			return nil, err
		}
		s.Exchange = exchangeByID[exchangeID]
		out = append(out, s)
	}
	return out, rows.Err()
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) LoadBrokerAccounts() ([]*models.MBrokerAccount, error) {
	rows, err := d.DB.Query("SELECT id, name, COALESCE(adapter, '') FROM broker_accounts ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.MBrokerAccount
	for rows.Next() {
		b := &models.MBrokerAccount{}
		if err := rows.Scan(&b.ID, &b.Name, &b.Adapter); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) LoadSubAccounts() ([]*models.MSubAccount, error) {
	brokers, err := d.LoadBrokerAccounts()
	if err != nil {
		return nil, err
	}
	brokerByID := make(map[int64]*models.MBrokerAccount, len(brokers))
	for _, b := range brokers {
		brokerByID[b.ID] = b
	}

	rows, err := d.DB.Query("SELECT id, name FROM sub_accounts ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[int64]*models.MSubAccount)
	var out []*models.MSubAccount
	for rows.Next() {
		a := &models.MSubAccount{BrokerAccounts: make(map[int64]*models.MBrokerAccount)}
		if err := rows.Scan(&a.ID, &a.Name); err != nil {
			return nil, err
		}
		byID[a.ID] = a
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Resolve broker-account links keyed by exchange id
	linkRows, err := d.DB.Query("SELECT sub_account_id, exchange_id, broker_account_id FROM sub_account_broker_account_map")
	if err != nil {
		return nil, err
	}
	defer linkRows.Close()

	for linkRows.Next() {
		var subID, exchangeID, brokerID int64
		if err := linkRows.Scan(&subID, &exchangeID, &brokerID); err != nil {
			return nil, err
		}
		if a, ok := byID[subID]; ok {
			if b, ok := brokerByID[brokerID]; ok {
				a.BrokerAccounts[exchangeID] = b
			}
		}
	}
	return out, linkRows.Err()
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) LoadUsers() ([]*models.MUser, error) {
	subAccounts, err := d.LoadSubAccounts()
	if err != nil {
		return nil, err
	}
	subByID := make(map[int64]*models.MSubAccount, len(subAccounts))
	for _, a := range subAccounts {
		subByID[a.ID] = a
	}

	rows, err := d.DB.Query("SELECT id, name, password, is_admin, is_disabled FROM users ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[int64]*models.MUser)
	var out []*models.MUser
	for rows.Next() {
		u := &models.MUser{SubAccounts: make(map[int64]*models.MSubAccount)}
		if err := rows.Scan(&u.ID, &u.Name, &u.Password, &u.IsAdmin, &u.IsDisabled); err != nil {
			return nil, err
		}
		byID[u.ID] = u
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	linkRows, err := d.DB.Query("SELECT user_id, sub_account_id FROM user_sub_account_map")
	if err != nil {
		return nil, err
	}
	defer linkRows.Close()

	for linkRows.Next() {
		var userID, subID int64
		if err := linkRows.Scan(&userID, &subID); err != nil {
			return nil, err
		}
		if u, ok := byID[userID]; ok {
			if a, ok := subByID[subID]; ok {
				u.SubAccounts[a.ID] = a
			}
		}
	}
	return out, linkRows.Err()
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) LoadBodPositions(date string) ([]*models.MBodPosition, error) {
	rows, err := d.DB.Query(`
		SELECT sub_account_id, security_id, broker_account_id, qty, avg_px, realized_pnl
		FROM bod_positions WHERE date = ?
	`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.MBodPosition
	for rows.Next() {
		p := &models.MBodPosition{}
		err := rows.Scan(&p.SubAccountID, &p.SecurityID,
			&p.Position.BrokerAccountID, &p.Position.Qty, &p.Position.AvgPx, &p.Position.RealizedPnl)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}
