package interfaces

import "trade-gateway/src/models"

// -----------------------------------------------------------------------------
// IDatabase defines the contract for reference-data storage.
// -----------------------------------------------------------------------------

type IDatabase interface {

	// -----------------------------------------------------------------------------

	// Initialize sets up the database schema and tables.
	Initialize() error

	// -----------------------------------------------------------------------------

	// LoadExchanges returns all listing venues.
	LoadExchanges() ([]*models.MExchange, error)

	// -----------------------------------------------------------------------------

	// LoadSecurities returns the full instrument catalog with exchange
	// pointers already resolved.
	LoadSecurities() ([]*models.MSecurity, error)

	// -----------------------------------------------------------------------------

	// LoadSubAccounts returns all sub-accounts with their broker-account
	// links resolved.
	LoadSubAccounts() ([]*models.MSubAccount, error)

	// -----------------------------------------------------------------------------

	// LoadBrokerAccounts returns all clearing accounts.
	LoadBrokerAccounts() ([]*models.MBrokerAccount, error)

	// -----------------------------------------------------------------------------

	// LoadUsers returns all users with sub-account ownership resolved.
	LoadUsers() ([]*models.MUser, error)

	// -----------------------------------------------------------------------------

	// LoadBodPositions returns the beginning-of-day inventory for the given
	// trading date (YYYY-MM-DD).
	LoadBodPositions(date string) ([]*models.MBodPosition, error)

	// -----------------------------------------------------------------------------

	// Close the database connection
	Close() error
}
