package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"trade-gateway/src/helpers"
	"trade-gateway/src/logger"
	"trade-gateway/src/models"

	_ "github.com/lib/pq"
)

// -----------------------------------------------------------------------------

type PostgresDB struct {
	Config *models.MConfig
	DB     *sql.DB
	Schema string
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewPostgresDB(cfg *models.MConfig, log *logger.Logger) (*PostgresDB, error) {
	// Each deployment keeps its reference data under its own schema,
	// derived from the configured gateway name.
	name := strings.ToLower(cfg.Name)
	name = strings.ReplaceAll(name, "-", "_")
	name = strings.ReplaceAll(name, " ", "_")
	if name == "" {
		name = "trade_gateway"
	}

	return &PostgresDB{
		Config: cfg,
		Schema: name,
		Logger: log,
	}, nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) Initialize() error {
	dsn := d.Config.Storage.DBConnectionString
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}

	// The database can still be coming up when the gateway starts.
	if err := helpers.RetryWithBackoff(d.Logger, "postgres connect", 5, time.Second, db.Ping); err != nil {
		db.Close()
		return err
	}

	d.DB = db

	// Create Schema
	if _, err := d.DB.Exec(fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS "%s"`, d.Schema)); err != nil {
		return fmt.Errorf("failed to create schema %s: %w", d.Schema, err)
	}

	if err := d.ensureTables(); err != nil {
		return err
	}

	d.Logger.Info("PostgresDB initialized successfully (Schema: %s)", d.Schema)
	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) table(name string) string {
	return fmt.Sprintf(`"%s"."%s"`, d.Schema, name)
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) ensureTables() error {
	// Reference data persists across restarts, so tables are created but
	// never dropped here.
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id BIGINT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			mic TEXT
		);`, d.table("exchanges")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id BIGINT PRIMARY KEY,
			symbol TEXT NOT NULL,
			local_symbol TEXT,
			type TEXT,
			currency TEXT,
			exchange_id BIGINT,
			bbgid TEXT,
			cusip TEXT,
			sedol TEXT,
			isin TEXT,
			multiplier DOUBLE PRECISION DEFAULT 1,
			rate DOUBLE PRECISION DEFAULT 1,
			lot_size BIGINT DEFAULT 0,
			close_px DOUBLE PRECISION DEFAULT 0,
			adv20 DOUBLE PRECISION DEFAULT 0,
			market_cap DOUBLE PRECISION DEFAULT 0,
			sector BIGINT DEFAULT 0,
			industry_group BIGINT DEFAULT 0,
			industry BIGINT DEFAULT 0,
			sub_industry BIGINT DEFAULT 0
		);`, d.table("securities")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id BIGINT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			password TEXT NOT NULL,
			is_admin BOOLEAN DEFAULT FALSE,
			is_disabled BOOLEAN DEFAULT FALSE
		);`, d.table("users")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id BIGINT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE
		);`, d.table("sub_accounts")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id BIGINT PRIMARY KEY,
			name TEXT NOT NULL,
			adapter TEXT
		);`, d.table("broker_accounts")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			user_id BIGINT NOT NULL,
			sub_account_id BIGINT NOT NULL,
			PRIMARY KEY (user_id, sub_account_id)
		);`, d.table("user_sub_account_map")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			sub_account_id BIGINT NOT NULL,
			exchange_id BIGINT NOT NULL,
			broker_account_id BIGINT NOT NULL,
			PRIMARY KEY (sub_account_id, exchange_id)
		);`, d.table("sub_account_broker_account_map")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			date TEXT NOT NULL,
			sub_account_id BIGINT NOT NULL,
			security_id BIGINT NOT NULL,
			broker_account_id BIGINT DEFAULT 0,
			qty DOUBLE PRECISION DEFAULT 0,
			avg_px DOUBLE PRECISION DEFAULT 0,
			realized_pnl DOUBLE PRECISION DEFAULT 0,
			PRIMARY KEY (date, sub_account_id, security_id)
		);`, d.table("bod_positions")),
	}

	for _, stmt := range statements {
		if _, err := d.DB.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) LoadExchanges() ([]*models.MExchange, error) {
	rows, err := d.DB.Query(fmt.Sprintf(
		"SELECT id, name, COALESCE(mic, '') FROM %s ORDER BY id", d.table("exchanges")))
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

func (d *PostgresDB) LoadSecurities() ([]*models.MSecurity, error) {
	exchanges, err := d.LoadExchanges()
	if err != nil {
		return nil, err
	}
	exchangeByID := make(map[int64]*models.MExchange, len(exchanges))
	for _, e := range exchanges {
		exchangeByID[e.ID] = e
	}

	rows, err := d.DB.Query(fmt.Sprintf(`
		SELECT id, symbol, COALESCE(local_symbol, ''), COALESCE(type, ''),
		       COALESCE(currency, ''), COALESCE(exchange_id, 0),
		       COALESCE(bbgid, ''), COALESCE(cusip, ''), COALESCE(sedol, ''), COALESCE(isin, ''),
		       multiplier, rate, lot_size, close_px, adv20, market_cap,
		       sector, industry_group, industry, sub_industry
		FROM %s ORDER BY id
	`, d.table("securities")))
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

func (d *PostgresDB) LoadBrokerAccounts() ([]*models.MBrokerAccount, error) {
	rows, err := d.DB.Query(fmt.Sprintf(
		"SELECT id, name, COALESCE(adapter, '') FROM %s ORDER BY id", d.table("broker_accounts")))
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

func (d *PostgresDB) LoadSubAccounts() ([]*models.MSubAccount, error) {
	brokers, err := d.LoadBrokerAccounts()
	if err != nil {
		return nil, err
	}
	brokerByID := make(map[int64]*models.MBrokerAccount, len(brokers))
	for _, b := range brokers {
		brokerByID[b.ID] = b
	}

	rows, err := d.DB.Query(fmt.Sprintf(
		"SELECT id, name FROM %s ORDER BY id", d.table("sub_accounts")))
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

	linkRows, err := d.DB.Query(fmt.Sprintf(
		"SELECT sub_account_id, exchange_id, broker_account_id FROM %s",
		d.table("sub_account_broker_account_map")))
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

func (d *PostgresDB) LoadUsers() ([]*models.MUser, error) {
	subAccounts, err := d.LoadSubAccounts()
	if err != nil {
		return nil, err
	}
	subByID := make(map[int64]*models.MSubAccount, len(subAccounts))
	for _, a := range subAccounts {
		subByID[a.ID] = a
	}

	rows, err := d.DB.Query(fmt.Sprintf(
		"SELECT id, name, password, is_admin, is_disabled FROM %s ORDER BY id", d.table("users")))
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

	linkRows, err := d.DB.Query(fmt.Sprintf(
		"SELECT user_id, sub_account_id FROM %s", d.table("user_sub_account_map")))
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

func (d *PostgresDB) LoadBodPositions(date string) ([]*models.MBodPosition, error) {
	rows, err := d.DB.Query(fmt.Sprintf(`
		SELECT sub_account_id, security_id, broker_account_id, qty, avg_px, realized_pnl
		FROM %s WHERE date = $1
	`, d.table("bod_positions")), date)
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

func (d *PostgresDB) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}
