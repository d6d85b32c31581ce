package interfaces

import "trade-gateway/src/models"

// -----------------------------------------------------------------------------
// Event sinks implemented by sessions. Engines fan live events out through
// these and replay stored ones during the offline verb; offline deliveries
// use the capitalized verb form.
// -----------------------------------------------------------------------------

type IConfirmationSink interface {

	// SendConfirmation delivers one execution report. The sink applies its
	// own ownership filtering.
	SendConfirmation(cm *models.MConfirmation, offline bool)
}

// -----------------------------------------------------------------------------

type IAlgoEventSink interface {

	// SendAlgoEvent delivers one algorithm lifecycle event. The sink applies
	// its own ownership filtering.
	SendAlgoEvent(ev *models.MAlgoEvent, offline bool)

	// -----------------------------------------------------------------------------

	// SendTestMsg delivers output of a test run identified by its token;
	// stopped marks the final line.
	SendTestMsg(token string, msg string, stopped bool)
}
