package interfaces

// -----------------------------------------------------------------------------
// ITransport is the session's view of one client connection. Stateful
// transports (WebSocket) keep the session alive between messages; stateless
// transports deliver one request and collect the frames written during it.
// -----------------------------------------------------------------------------

type ITransport interface {

	// -----------------------------------------------------------------------------

	// Send queues one complete outbound frame. It must not block the caller;
	// a send failure is fatal for the transport, not for the process.
	Send(msg []byte)

	// -----------------------------------------------------------------------------

	// Stateless reports whether each inbound message carries its own
	// session token.
	Stateless() bool

	// -----------------------------------------------------------------------------

	// RemoteAddr identifies the peer for logging.
	RemoteAddr() string

	// -----------------------------------------------------------------------------

	// Close tears the connection down. Idempotent.
	Close()
}
