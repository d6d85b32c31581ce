package control

import (
	"context"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"trade-gateway/src/algo"
	"trade-gateway/src/exchange"
	"trade-gateway/src/logger"
	"trade-gateway/src/marketdata"
	"trade-gateway/src/models"
	"trade-gateway/src/session"
)

// Service implements the ControlServer interface against the live engines.
type Service struct {
	UnimplementedControlServer
	Logger     *logger.Logger
	Book       *exchange.GlobalOrderBook
	Algos      *algo.Manager
	Exchanges  *exchange.Manager
	MarketData *marketdata.Manager
	Sessions   session.ISessionTable
	Status     func() models.MGatewayStatus
}

// NewService creates a new instance of Service.
func NewService(
	book *exchange.GlobalOrderBook,
	algos *algo.Manager,
	exchanges *exchange.Manager,
	md *marketdata.Manager,
	sessions session.ISessionTable,
	statusFn func() models.MGatewayStatus,
	log *logger.Logger,
) *Service {
	return &Service{
		Logger:     log,
		Book:       book,
		Algos:      algos,
		Exchanges:  exchanges,
		MarketData: md,
		Sessions:   sessions,
		Status:     statusFn,
	}
}

// -----------------------------------------------------------------------------

func (s *Service) GetStatus(ctx context.Context, req *Empty) (*models.MGatewayStatus, error) {
	st := s.Status()
	return &st, nil
}

// -----------------------------------------------------------------------------

// CancelAll is the desk kill-switch: pull every live order off the venues.
func (s *Service) CancelAll(ctx context.Context, req *Empty) (*ControlResponse, error) {
	n := s.Book.CancelAll()
	s.Logger.Warning("Control: cancel requested for %d live orders", n)
	return &ControlResponse{
		Success: true,
		Message: fmt.Sprintf("cancel requested for %d live orders", n),
	}, nil
}

// -----------------------------------------------------------------------------

// StopAlgos sweeps every running strategy instance. The manager keeps
// accepting new spawns afterwards.
func (s *Service) StopAlgos(ctx context.Context, req *Empty) (*ControlResponse, error) {
	n := s.Algos.StopRunning()
	s.Logger.Warning("Control: stopped %d algo instances", n)
	return &ControlResponse{
		Success: true,
		Message: fmt.Sprintf("stopped %d algo instances", n),
	}, nil
}

// -----------------------------------------------------------------------------

func (s *Service) Reconnect(ctx context.Context, req *ReconnectRequest) (*ControlResponse, error) {
	if req.Name == "" {
		return nil, status.Error(codes.InvalidArgument, "name is required")
	}

	var err error
	switch req.Kind {
	case "exchange":
		adapter := s.Exchanges.GetAdapter(req.Name)
		if adapter == nil {
			return nil, status.Errorf(codes.NotFound, "unknown exchange adapter: %s", req.Name)
		}
		err = adapter.Reconnect()
	case "data":
		adapter := s.MarketData.GetAdapter(req.Name)
		if adapter == nil {
			return nil, status.Errorf(codes.NotFound, "unknown data feed: %s", req.Name)
		}
		err = adapter.Reconnect()
	default:
		return nil, status.Errorf(codes.InvalidArgument, "unsupported adapter kind: %s", req.Kind)
	}

	if err != nil {
		s.Logger.Error("Control: reconnect of %s failed: %v", req.Name, err)
		return &ControlResponse{Success: false, Message: err.Error()}, nil
	}
	return &ControlResponse{
		Success: true,
		Message: fmt.Sprintf("reconnect requested for %s", req.Name),
	}, nil
}

// -----------------------------------------------------------------------------

// Disconnect kicks one live session. The server table drops the entry when
// the transport read loop notices the close.
func (s *Service) Disconnect(ctx context.Context, req *DisconnectRequest) (*ControlResponse, error) {
	if req.SessionID == 0 {
		return nil, status.Error(codes.InvalidArgument, "session_id is required")
	}

	sess := s.Sessions.Get(req.SessionID)
	if sess == nil {
		return nil, status.Errorf(codes.NotFound, "session %d not found", req.SessionID)
	}
	sess.Close()

	s.Logger.Warning("Control: session %d disconnected", req.SessionID)
	return &ControlResponse{
		Success: true,
		Message: fmt.Sprintf("session %d closed", req.SessionID),
	}, nil
}

// -----------------------------------------------------------------------------

// Serve starts the control plane on its own port and returns the running
// server. The caller stops it with GracefulStop.
func Serve(port int, svc ControlServer, log *logger.Logger) (*grpc.Server, error) {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, err
	}

	srv := grpc.NewServer()
	RegisterControlServer(srv, svc)

	log.Info("Starting gRPC control server on :%d", port)
	go func() {
		if err := srv.Serve(lis); err != nil {
			log.Error("Control server failed: %v", err)
		}
	}()
	return srv, nil
}
