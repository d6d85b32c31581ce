package control

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// codecName is the gRPC content subtype the control plane runs on. Clients
// must pin it per call; Dial does that.
const codecName = "json"

// -----------------------------------------------------------------------------

// jsonCodec carries control messages as JSON on standard gRPC framing. The
// messages are plain structs, so no generated bindings are involved; both
// ends register the codec by importing this package.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return codecName
}

// -----------------------------------------------------------------------------

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
