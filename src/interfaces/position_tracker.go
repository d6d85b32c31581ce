package interfaces

import "trade-gateway/src/models"

// -----------------------------------------------------------------------------
// IPositionTracker receives every confirmation synchronously from the order
// book, before session fan-out, so inventory reads stay consistent with
// order state.
// -----------------------------------------------------------------------------

type IPositionTracker interface {

	// OnConfirmation applies outstanding-quantity and fill effects.
	OnConfirmation(cm *models.MConfirmation)
}
