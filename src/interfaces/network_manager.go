package interfaces

// -----------------------------------------------------------------------------
// INetworkManager defines the contract for outbound HTTP with retry and
// proxy rotation, used by quote feed adapters.
// -----------------------------------------------------------------------------

type INetworkManager interface {

	// -----------------------------------------------------------------------------

	// Get performs a GET request to the specified URL with parameters.
	// Returns the response body as bytes or an error.
	Get(url string, params map[string]string) ([]byte, error)
}
