package main

import (
	"context"
	"os"
	"sync"
	"time"

	"google.golang.org/grpc"

	"trade-gateway/src/algo"
	"trade-gateway/src/auth"
	"trade-gateway/src/config"
	"trade-gateway/src/control"
	"trade-gateway/src/exchange"
	"trade-gateway/src/logger"
	"trade-gateway/src/marketdata"
	"trade-gateway/src/models"
	"trade-gateway/src/position"
	"trade-gateway/src/refdata"
	"trade-gateway/src/server"
	"trade-gateway/src/session"
	"trade-gateway/src/storage"
	"trade-gateway/src/utils"
)

// -----------------------------------------------------------------------------

// buildConfig assembles a throwaway loopback config: in-memory database,
// sim feed ticking every second, one paper venue. The returned cleanup
// removes the temp directories.
func buildConfig(port, grpcPort int) (*config.Config, func(), error) {
	algoDir, err := os.MkdirTemp("", "gateway-smoke-algos-*")
	if err != nil {
		return nil, nil, err
	}
	storeDir, err := os.MkdirTemp("", "gateway-smoke-store-*")
	if err != nil {
		os.RemoveAll(algoDir)
		return nil, nil, err
	}
	cleanup := func() {
		os.RemoveAll(algoDir)
		os.RemoveAll(storeDir)
	}

	conf := &config.Config{MConfig: &models.MConfig{
		Name:     "gateway-smoke",
		Host:     "127.0.0.1",
		Port:     port,
		GrpcPort: grpcPort,
		// Warnings only, so the PASS/FAIL lines stay readable
		LogLevel: "warning",
		AlgoDir:  algoDir,
		StoreDir: storeDir,
	}}
	conf.Storage.DBType = "sqlite"
	conf.Storage.DBPath = ":memory:"
	conf.Network.RequestTimeout = 5
	conf.Network.ConcurrentRequests = 1
	conf.MarketData.UpdateIntervalSeconds = 1
	conf.MarketData.Feeds = []models.MFeedConfig{
		{Name: "quotes", Type: "sim"},
	}
	conf.Exchange.Adapters = []models.MExchangeAdapterConfig{
		{Name: "paper", Type: "paper", LatencyMs: 20},
	}

	if err := conf.Validate(); err != nil {
		cleanup()
		return nil, nil, err
	}
	return conf, cleanup, nil
}

// -----------------------------------------------------------------------------

// gateway holds one booted stack. The scenarios drive it from the outside
// through its ports; md is kept for feed warm-up waits only.
type gateway struct {
	db     *storage.AsyncSQLiteDB
	md     *marketdata.Manager
	router *exchange.Manager
	algos  *algo.Manager
	srv    *server.Server
	ctl    *grpc.Server
	cancel context.CancelFunc
	wg     *sync.WaitGroup
}

// -----------------------------------------------------------------------------

// bootGateway mirrors the production boot on the smoke config. Failures are
// fatal: a stack that cannot boot is itself a failed smoke run.
func bootGateway(conf *config.Config, appLogger *logger.Logger) *gateway {

	// 1. Storage, seeded with the demo universe
	db, err := storage.NewAsyncSQLiteDB(conf.MConfig, logger.NewLogger(conf, "SQLiteDB"))
	if err != nil {
		appLogger.Critical("Failed to init db: %v", err)
	}
	if err := db.Initialize(); err != nil {
		appLogger.Critical("Failed to migrate db: %v", err)
	}
	if err := db.SeedDemo(position.Session()); err != nil {
		appLogger.Critical("Failed to seed db: %v", err)
	}

	// 2. Reference data
	securities := refdata.NewSecurityManager(logger.NewLogger(conf, "Securities"))
	if err := securities.Load(db); err != nil {
		appLogger.Critical("Failed to load securities: %v", err)
	}
	accounts := refdata.NewAccountManager(logger.NewLogger(conf, "Accounts"))
	if err := accounts.Load(db); err != nil {
		appLogger.Critical("Failed to load accounts: %v", err)
	}

	// 3. Market data: the sim feed over the seeded universe
	md := marketdata.NewManager(conf.MConfig, securities, logger.NewLogger(conf, "MarketData"))
	var universe []*models.MSecurity
	securities.Iterate(func(sec *models.MSecurity) {
		universe = append(universe, sec)
	})
	for _, feedCfg := range conf.MarketData.Feeds {
		feed := marketdata.NewSimFeed(feedCfg.Name, conf.MarketData.UpdateIntervalSeconds*1000, universe)
		if err := md.AddAdapter(feed); err != nil {
			appLogger.Critical("Failed to register feed %s: %v", feedCfg.Name, err)
		}
	}

	// 4. Trading engines
	engineLogger := logger.NewLogger(conf, "Engines")
	router := exchange.NewManager(conf.MConfig, engineLogger)
	positions := position.NewManager(conf.MConfig, md, securities, engineLogger)
	book := exchange.NewGlobalOrderBook(router, positions, utils.DefaultReplayCapacity, engineLogger)
	if err := positions.LoadBod(db); err != nil {
		appLogger.Critical("Failed to load BOD positions: %v", err)
	}
	for _, adpCfg := range conf.Exchange.Adapters {
		if err := router.AddAdapter(exchange.NewPaperAdapter(adpCfg, book, md, engineLogger)); err != nil {
			appLogger.Critical("Failed to register exchange adapter %s: %v", adpCfg.Name, err)
		}
	}

	// 5. Algo engine
	algos := algo.NewManager(conf.MConfig, book, md, utils.DefaultReplayCapacity, engineLogger)
	if err := algos.AddAdapter(algo.NewTWAP()); err != nil {
		appLogger.Critical("Failed to register TWAP: %v", err)
	}
	if err := algos.AddAdapter(algo.NewPOV()); err != nil {
		appLogger.Critical("Failed to register POV: %v", err)
	}

	// 6. Background loops
	ctx, cancel := context.WithCancel(context.Background())
	wg := &sync.WaitGroup{}
	if err := md.Start(ctx, wg); err != nil {
		appLogger.Critical("Failed to start market data: %v", err)
	}
	positions.Start(ctx, wg)

	// 7. Server
	srv := server.NewServer(conf.MConfig, session.Deps{
		Config:     conf.MConfig,
		Logger:     logger.NewLogger(conf, "Session"),
		Tokens:     auth.NewTokenStore(),
		Securities: securities,
		Accounts:   accounts,
		MarketData: md,
		Exchanges:  router,
		Book:       book,
		Algos:      algos,
		Positions:  positions,
		BootTm:     time.Now().Unix(),
	}, logger.NewLogger(conf, "Server"))
	go func() {
		if err := srv.Start(); err != nil {
			appLogger.Error("Server failed: %v", err)
		}
	}()

	// 8. Control plane
	var ctl *grpc.Server
	if conf.GrpcPort > 0 {
		ctlLogger := logger.NewLogger(conf, "ControlService")
		ctlService := control.NewService(book, algos, router, md, srv, srv.Status, ctlLogger)
		ctl, err = control.Serve(conf.GrpcPort, ctlService, ctlLogger)
		if err != nil {
			appLogger.Critical("Failed to start control server: %v", err)
		}
	}

	gw := &gateway{
		db:     db,
		md:     md,
		router: router,
		algos:  algos,
		srv:    srv,
		ctl:    ctl,
		cancel: cancel,
		wg:     wg,
	}

	// The scenarios dial as soon as boot returns
	if !waitUntil(5*time.Second, func() bool {
		doc, err := getJSON(conf.Port, "/api/health")
		return err == nil && doc["status"] == "ok"
	}) {
		appLogger.Critical("Gateway did not come up on port %d", conf.Port)
	}
	return gw
}

// -----------------------------------------------------------------------------

// shutdown drains the stack in the production order.
func (gw *gateway) shutdown() {
	if gw.ctl != nil {
		gw.ctl.GracefulStop()
	}
	_ = gw.srv.Stop()
	gw.algos.StopAll()
	gw.router.Stop()
	_ = gw.md.Stop()
	gw.cancel()
	gw.wg.Wait()
	gw.db.Close()
}
