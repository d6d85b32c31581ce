package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"trade-gateway/src/logger"
	"trade-gateway/src/models"
	"trade-gateway/src/position"
	"trade-gateway/src/session"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server owns the HTTP surface and the live session table. Sessions are
// per-user conversations, so there is no broadcast hub: the engines fan
// confirmations and events out through each session's listener registration.
type Server struct {
	Config *models.MConfig
	Logger *logger.Logger
	engine *gin.Engine
	http   *http.Server
	deps   session.Deps

	mu       sync.RWMutex
	sessions map[uint64]*session.Session
	nextID   atomic.Uint64
}

// -----------------------------------------------------------------------------
// Constructor
// -----------------------------------------------------------------------------

func NewServer(cfg *models.MConfig, deps session.Deps, logger *logger.Logger) *Server {
	// Set Gin mode
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		Config:   cfg,
		Logger:   logger,
		engine:   gin.Default(),
		sessions: make(map[uint64]*session.Session),
	}

	// Sessions reach back through the table for their publish timers, and
	// the shutdown verb stops the listener through the hook.
	if deps.BootTm == 0 {
		deps.BootTm = time.Now().Unix()
	}
	deps.Sessions = s
	if deps.StopServer == nil {
		deps.StopServer = func() { _ = s.Stop() }
	}
	s.deps = deps

	s.http = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: s.engine,
	}

	// Add CORS Middleware
	s.engine.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if strings.HasPrefix(origin, "http://127.0.0.1:") {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, X-Session-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// setup web routes
	s.setupRoutes()
	return s
}

// -----------------------------------------------------------------------------
// Route Setup
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// REST API endpoints
	s.engine.GET("/api/health", s.getHealth)
	s.engine.GET("/api/status", s.getStatus)
	s.engine.GET("/api/config", s.getConfig)

	// One-shot command endpoint (stateless transport)
	s.engine.POST("/api/cmd", s.handleCommand)

	// WebSocket endpoint (stateful transport)
	s.engine.GET("/ws", s.handleWebSocket)
}

// -----------------------------------------------------------------------------
// Server Lifecycle
// -----------------------------------------------------------------------------

func (s *Server) Start() error {
	s.Logger.Info("Starting server on %s", s.http.Addr)

	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// -----------------------------------------------------------------------------

// Stop shuts the listener down, then closes every live session. Hijacked
// websocket connections are not tracked by net/http, so they are closed
// through their sessions.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.http.Shutdown(ctx)

	s.mu.RLock()
	open := make([]*session.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		open = append(open, sess)
	}
	s.mu.RUnlock()
	for _, sess := range open {
		sess.Close()
	}

	s.Logger.Info("Server stopped, %d sessions closed", len(open))
	return err
}

// -----------------------------------------------------------------------------
// Session Table
// -----------------------------------------------------------------------------

// Get implements session.ISessionTable.
func (s *Server) Get(id uint64) *session.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[id]
}

// -----------------------------------------------------------------------------

func (s *Server) addSession(sess *session.Session) {
	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
}

// -----------------------------------------------------------------------------

func (s *Server) dropSession(sess *session.Session) {
	s.mu.Lock()
	delete(s.sessions, sess.ID)
	s.mu.Unlock()
	sess.Close()
}

// -----------------------------------------------------------------------------

func (s *Server) sessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// -----------------------------------------------------------------------------
// Route Handlers
// -----------------------------------------------------------------------------

func (s *Server) getHealth(c *gin.Context) {
	exchanges := make(map[string]bool)
	for _, a := range s.deps.Exchanges.Adapters() {
		exchanges[a.GetName()] = a.Connected()
	}
	feeds := make(map[string]bool)
	for _, a := range s.deps.MarketData.Adapters() {
		feeds[a.GetName()] = a.Connected()
	}

	c.JSON(200, gin.H{
		"status":         "ok",
		"connections":    s.sessionCount(),
		"uptime_seconds": time.Now().Unix() - s.deps.BootTm,
		"exchanges":      exchanges,
		"feeds":          feeds,
	})
}

// -----------------------------------------------------------------------------

// Status assembles the gateway status document. The REST endpoint and the
// gRPC control plane both serve it.
func (s *Server) Status() models.MGatewayStatus {
	now := time.Now().Unix()
	st := models.MGatewayStatus{
		Name:            s.Config.Name,
		StartTime:       s.deps.BootTm,
		UptimeSeconds:   now - s.deps.BootTm,
		TradingDate:     position.Session(),
		Sessions:        s.sessionCount(),
		Orders:          s.deps.Book.OrderCount(),
		LiveOrders:      len(s.deps.Book.LiveOrders()),
		ConfirmationSeq: s.deps.Book.Seq(),
		RunningAlgos:    s.deps.Algos.RunningCount(),
		Securities:      s.deps.Securities.Count(),
	}
	for _, a := range s.deps.Exchanges.Adapters() {
		st.Adapters = append(st.Adapters, models.MAdapterStatus{
			Name: a.GetName(), Kind: "exchange", Connected: a.Connected(),
		})
	}
	for _, a := range s.deps.MarketData.Adapters() {
		st.Adapters = append(st.Adapters, models.MAdapterStatus{
			Name: a.GetName(), Kind: "data", Connected: a.Connected(),
		})
	}
	return st
}

// -----------------------------------------------------------------------------

func (s *Server) getStatus(c *gin.Context) {
	c.JSON(200, s.Status())
}

// -----------------------------------------------------------------------------

// getConfig reports the running config without secrets: no connection
// strings, no API keys, no proxy credentials.
func (s *Server) getConfig(c *gin.Context) {
	feeds := make([]string, 0, len(s.Config.MarketData.Feeds))
	for _, f := range s.Config.MarketData.Feeds {
		feeds = append(feeds, f.Name)
	}
	adapters := make([]string, 0, len(s.Config.Exchange.Adapters))
	for _, a := range s.Config.Exchange.Adapters {
		adapters = append(adapters, a.Name)
	}

	c.JSON(200, gin.H{
		"name":                s.Config.Name,
		"publish_interval_ms": s.Config.PublishIntervalMs,
		"storage":             s.Config.Storage.DBType,
		"feeds":               feeds,
		"exchange_adapters":   adapters,
	})
}
