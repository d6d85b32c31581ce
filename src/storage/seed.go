package storage

import (
	"fmt"

	"trade-gateway/src/auth"
)

// Info: Demo reference data for first boot and the smoke harness.
// Only the sqlite driver is seeded; production postgres deployments load
// reference data through their own back office.

// -----------------------------------------------------------------------------

// IsEmpty reports whether the reference database has no users yet.
func (d *AsyncSQLiteDB) IsEmpty() (bool, error) {
	var n int
	if err := d.DB.QueryRow("SELECT COUNT(*) FROM users").Scan(&n); err != nil {
		return false, err
	}
	return n == 0, nil
}

// -----------------------------------------------------------------------------

// SeedDemo populates a demo trading universe: two venues, five securities,
// an admin and a trader (password "test"), a disabled user, two sub-accounts
// with paper broker accounts, and BOD inventory for the given date.
func (d *AsyncSQLiteDB) SeedDemo(date string) error {
	tx, err := d.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	exec := func(query string, args ...interface{}) error {
		if _, err := tx.Exec(query, args...); err != nil {
			return fmt.Errorf("seed failed on %q: %w", query, err)
		}
		return nil
	}

	for _, e := range [][]interface{}{
		{1, "NYSE", "xnys"},
		{2, "NASDAQ", "xnas"},
	} {
		if err := exec("INSERT OR IGNORE INTO exchanges (id, name, mic) VALUES (?, ?, ?)", e...); err != nil {
			return err
		}
	}

	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO securities
			(id, symbol, local_symbol, type, currency, exchange_id, lot_size, multiplier, close_px, adv20)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, s := range [][]interface{}{
		{1, "AAPL", "AAPL", "CS", "USD", 2, 100, 1.0, 189.50, 55000000.0},
		{2, "MSFT", "MSFT", "CS", "USD", 2, 100, 1.0, 415.20, 22000000.0},
		{3, "IBM", "IBM", "CS", "USD", 1, 100, 1.0, 172.80, 4100000.0},
		{4, "GE", "GE", "CS", "USD", 1, 100, 1.0, 151.30, 6200000.0},
		{5, "SPY", "SPY", "ETF", "USD", 1, 100, 1.0, 502.10, 71000000.0},
	} {
		if _, err := stmt.Exec(s...); err != nil {
			return err
		}
	}

	digest := auth.HashPassword("test")
	for _, u := range [][]interface{}{
		{1, "admin", digest, 1, 0},
		{2, "trader", digest, 0, 0},
		{3, "retired", digest, 0, 1},
	} {
		if err := exec("INSERT OR IGNORE INTO users (id, name, password, is_admin, is_disabled) VALUES (?, ?, ?, ?, ?)", u...); err != nil {
			return err
		}
	}

	for _, a := range [][]interface{}{
		{1, "ALPHA"},
		{2, "BETA"},
	} {
		if err := exec("INSERT OR IGNORE INTO sub_accounts (id, name) VALUES (?, ?)", a...); err != nil {
			return err
		}
	}

	for _, b := range [][]interface{}{
		{1, "SIM-NYSE", "paper"},
		{2, "SIM-NASDAQ", "paper"},
	} {
		if err := exec("INSERT OR IGNORE INTO broker_accounts (id, name, adapter) VALUES (?, ?, ?)", b...); err != nil {
			return err
		}
	}

	for _, m := range [][]interface{}{
		{1, 1},
		{2, 1},
		{2, 2},
	} {
		if err := exec("INSERT OR IGNORE INTO user_sub_account_map (user_id, sub_account_id) VALUES (?, ?)", m...); err != nil {
			return err
		}
	}

	for _, m := range [][]interface{}{
		{1, 1, 1},
		{1, 2, 2},
		{2, 1, 1},
		{2, 2, 2},
	} {
		if err := exec("INSERT OR IGNORE INTO sub_account_broker_account_map (sub_account_id, exchange_id, broker_account_id) VALUES (?, ?, ?)", m...); err != nil {
			return err
		}
	}

	for _, p := range [][]interface{}{
		{date, 1, 1, 2, 200.0, 150.00, 0.0},
		{date, 1, 3, 1, -50.0, 140.00, 125.50},
		{date, 2, 2, 2, 80.0, 390.00, 0.0},
	} {
		if err := exec(`INSERT OR IGNORE INTO bod_positions
			(date, sub_account_id, security_id, broker_account_id, qty, avg_px, realized_pnl)
			VALUES (?, ?, ?, ?, ?, ?, ?)`, p...); err != nil {
			return err
		}
	}

	return tx.Commit()
}
