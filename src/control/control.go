package control

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"trade-gateway/src/models"
)

// -----------------------------------------------------------------------------
// Ops control plane. The gateway exposes a small gRPC surface for desk
// tooling: status, the order kill-switch, an algo sweep, adapter reconnects
// and kicking a stuck session. Messages ride the JSON codec from codec.go.
// -----------------------------------------------------------------------------

// Method names on the wire.
const (
	methodGetStatus  = "/gateway.Control/GetStatus"
	methodCancelAll  = "/gateway.Control/CancelAll"
	methodStopAlgos  = "/gateway.Control/StopAlgos"
	methodReconnect  = "/gateway.Control/Reconnect"
	methodDisconnect = "/gateway.Control/Disconnect"
)

// -----------------------------------------------------------------------------
// Messages
// -----------------------------------------------------------------------------

type Empty struct{}

// ControlResponse reports the outcome of a mutating verb.
type ControlResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ReconnectRequest names one adapter by connectivity kind.
type ReconnectRequest struct {
	Kind string `json:"kind"` // exchange | data
	Name string `json:"name"`
}

// DisconnectRequest names one live session.
type DisconnectRequest struct {
	SessionID uint64 `json:"session_id"`
}

// -----------------------------------------------------------------------------
// Server side
// -----------------------------------------------------------------------------

// ControlServer is the verb set a control implementation provides.
type ControlServer interface {
	GetStatus(context.Context, *Empty) (*models.MGatewayStatus, error)
	CancelAll(context.Context, *Empty) (*ControlResponse, error)
	StopAlgos(context.Context, *Empty) (*ControlResponse, error)
	Reconnect(context.Context, *ReconnectRequest) (*ControlResponse, error)
	Disconnect(context.Context, *DisconnectRequest) (*ControlResponse, error)
}

// UnimplementedControlServer rejects any verb the embedder does not override.
type UnimplementedControlServer struct{}

func (UnimplementedControlServer) GetStatus(context.Context, *Empty) (*models.MGatewayStatus, error) {
	return nil, status.Error(codes.Unimplemented, "method GetStatus not implemented")
}

func (UnimplementedControlServer) CancelAll(context.Context, *Empty) (*ControlResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method CancelAll not implemented")
}

func (UnimplementedControlServer) StopAlgos(context.Context, *Empty) (*ControlResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method StopAlgos not implemented")
}

func (UnimplementedControlServer) Reconnect(context.Context, *ReconnectRequest) (*ControlResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Reconnect not implemented")
}

func (UnimplementedControlServer) Disconnect(context.Context, *DisconnectRequest) (*ControlResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Disconnect not implemented")
}

// -----------------------------------------------------------------------------

// RegisterControlServer wires an implementation into a gRPC server.
func RegisterControlServer(s grpc.ServiceRegistrar, srv ControlServer) {
	s.RegisterService(&controlServiceDesc, srv)
}

// -----------------------------------------------------------------------------

func getStatusHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ControlServer).GetStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodGetStatus}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ControlServer).GetStatus(ctx, req.(*Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func cancelAllHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ControlServer).CancelAll(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodCancelAll}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ControlServer).CancelAll(ctx, req.(*Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func stopAlgosHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ControlServer).StopAlgos(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodStopAlgos}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ControlServer).StopAlgos(ctx, req.(*Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func reconnectHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ReconnectRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ControlServer).Reconnect(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodReconnect}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ControlServer).Reconnect(ctx, req.(*ReconnectRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func disconnectHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(DisconnectRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ControlServer).Disconnect(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodDisconnect}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ControlServer).Disconnect(ctx, req.(*DisconnectRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// -----------------------------------------------------------------------------

var controlServiceDesc = grpc.ServiceDesc{
	ServiceName: "gateway.Control",
	HandlerType: (*ControlServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetStatus", Handler: getStatusHandler},
		{MethodName: "CancelAll", Handler: cancelAllHandler},
		{MethodName: "StopAlgos", Handler: stopAlgosHandler},
		{MethodName: "Reconnect", Handler: reconnectHandler},
		{MethodName: "Disconnect", Handler: disconnectHandler},
	},
	Streams: []grpc.StreamDesc{},
}

// -----------------------------------------------------------------------------
// Client side
// -----------------------------------------------------------------------------

// ControlClient drives a gateway control port.
type ControlClient struct {
	cc grpc.ClientConnInterface
}

func NewControlClient(cc grpc.ClientConnInterface) *ControlClient {
	return &ControlClient{cc: cc}
}

func (c *ControlClient) GetStatus(ctx context.Context) (*models.MGatewayStatus, error) {
	out := new(models.MGatewayStatus)
	if err := c.cc.Invoke(ctx, methodGetStatus, &Empty{}, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ControlClient) CancelAll(ctx context.Context) (*ControlResponse, error) {
	out := new(ControlResponse)
	if err := c.cc.Invoke(ctx, methodCancelAll, &Empty{}, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ControlClient) StopAlgos(ctx context.Context) (*ControlResponse, error) {
	out := new(ControlResponse)
	if err := c.cc.Invoke(ctx, methodStopAlgos, &Empty{}, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ControlClient) Reconnect(ctx context.Context, kind, name string) (*ControlResponse, error) {
	out := new(ControlResponse)
	in := &ReconnectRequest{Kind: kind, Name: name}
	if err := c.cc.Invoke(ctx, methodReconnect, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ControlClient) Disconnect(ctx context.Context, sessionID uint64) (*ControlResponse, error) {
	out := new(ControlResponse)
	in := &DisconnectRequest{SessionID: sessionID}
	if err := c.cc.Invoke(ctx, methodDisconnect, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

// -----------------------------------------------------------------------------

// DialOptions returns what every control client needs: plaintext transport
// and calls pinned to the JSON codec.
func DialOptions() []grpc.DialOption {
	return []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	}
}

// Dial connects to a gateway control port.
func Dial(target string, extra ...grpc.DialOption) (*grpc.ClientConn, error) {
	return grpc.NewClient(target, append(DialOptions(), extra...)...)
}
