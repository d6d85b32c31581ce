package interfaces

import "trade-gateway/src/models"

// -----------------------------------------------------------------------------
// IExchangeAdapter is one order-routing venue connection.
// -----------------------------------------------------------------------------

type IExchangeAdapter interface {

	// GetName returns the unique identifier of the venue connection
	GetName() string

	// -----------------------------------------------------------------------------

	// Connected reports the health of the connection as published to sessions.
	Connected() bool

	// -----------------------------------------------------------------------------

	// Reconnect forces the connection to drop and re-establish.
	Reconnect() error

	// -----------------------------------------------------------------------------

	// Place routes a new order. The order already carries its id and an
	// unconfirmed record in the order book.
	Place(ord *models.MOrder) error

	// -----------------------------------------------------------------------------

	// Cancel routes a cancel request for a live order.
	Cancel(ord *models.MOrder) error
}
