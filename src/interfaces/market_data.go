package interfaces

import (
	"context"
	"sync"

	"trade-gateway/src/models"
)

// -----------------------------------------------------------------------------
// IMarketDataAdapter is one quote feed. Adapters push raw quotes into the
// channel handed to Start; the market-data manager folds them into the
// snapshot table.
// -----------------------------------------------------------------------------

type IMarketDataAdapter interface {

	// GetName returns the unique identifier of the feed
	GetName() string

	// -----------------------------------------------------------------------------

	// Connected reports the health of the feed as published to sessions.
	Connected() bool

	// -----------------------------------------------------------------------------

	// Reconnect forces the feed to drop and re-establish its upstream state.
	Reconnect() error

	// -----------------------------------------------------------------------------

	// Start begins quote delivery.
	// ctx: controls the lifecycle (cancellation stops the feed)
	// out: channel to push quotes to
	// wg: WaitGroup to signal when the feed has fully stopped
	Start(ctx context.Context, out chan<- models.MQuote, wg *sync.WaitGroup) error

	// -----------------------------------------------------------------------------

	// Stop terminates quote delivery (manual stop).
	Stop() error
}
