package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"trade-gateway/src/algo"
	"trade-gateway/src/auth"
	"trade-gateway/src/config"
	"trade-gateway/src/control"
	"trade-gateway/src/exchange"
	"trade-gateway/src/helpers"
	"trade-gateway/src/interfaces"
	"trade-gateway/src/logger"
	"trade-gateway/src/marketdata"
	"trade-gateway/src/models"
	"trade-gateway/src/network"
	"trade-gateway/src/position"
	"trade-gateway/src/refdata"
	"trade-gateway/src/server"
	"trade-gateway/src/session"
	"trade-gateway/src/storage"
	"trade-gateway/src/utils"
)

// -----------------------------------------------------------------------------

const version = "0.9.0"

// -----------------------------------------------------------------------------

func main() {

	// Parse command line flags
	configPath := flag.String("config", "../../config/default.yaml", "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("trade-gateway " + version)
		return
	}

	// Load config from YAML file
	config, err := config.NewConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	if err := logger.Configure(config.LogLevel, config.LogFile); err != nil {
		fmt.Printf("Error configuring logger: %v\n", err)
		os.Exit(1)
	}
	appLogger := logger.NewLogger(config, config.Name)
	appLogger.Info("trade-gateway %s starting", version)

	// 2. Storage
	var db interfaces.IDatabase

	switch config.Storage.DBType {
	case "postgres":
		db, err = storage.NewPostgresDB(config.MConfig, appLogger)
	default:
		// Default to SQLite
		db, err = storage.NewAsyncSQLiteDB(config.MConfig, appLogger)
	}

	if err != nil {
		appLogger.Critical("Failed to init db: %v", err)
	}
	if err := db.Initialize(); err != nil {
		appLogger.Critical("Failed to migrate db: %v", err)
	}
	defer db.Close()

	// First boot on an empty sqlite file gets the demo universe, so the
	// gateway comes up with something to trade against.
	if sqlite, ok := db.(*storage.AsyncSQLiteDB); ok {
		empty, err := sqlite.IsEmpty()
		if err != nil {
			appLogger.Critical("Failed to inspect db: %v", err)
		}
		if empty {
			appLogger.Warning("Empty database, seeding demo universe")
			if err := sqlite.SeedDemo(position.Session()); err != nil {
				appLogger.Critical("Failed to seed db: %v", err)
			}
		}
	}

	// 3. Reference data
	securities := refdata.NewSecurityManager(appLogger)
	if err := securities.Load(db); err != nil {
		appLogger.Critical("Failed to load securities: %v", err)
	}
	accounts := refdata.NewAccountManager(appLogger)
	if err := accounts.Load(db); err != nil {
		appLogger.Critical("Failed to load accounts: %v", err)
	}
	appLogger.Info("Loaded %d securities, catalog checksum %s",
		securities.Count(), securities.CheckSum())

	// 4. Market data feeds
	netManager := network.NewAsyncNetworkManager(config.MConfig, appLogger)
	md := marketdata.NewManager(config.MConfig, securities, appLogger)

	var universe []*models.MSecurity
	securities.Iterate(func(sec *models.MSecurity) {
		universe = append(universe, sec)
	})

	for _, feedCfg := range config.MarketData.Feeds {
		var feed interfaces.IMarketDataAdapter
		switch feedCfg.Type {
		case "http":
			feed = marketdata.NewHttpQuoteFeed(config.MConfig, feedCfg, netManager, universe)
		case "sim":
			feed = marketdata.NewSimFeed(feedCfg.Name, config.MarketData.UpdateIntervalSeconds*1000, universe)
		}
		if err := md.AddAdapter(feed); err != nil {
			appLogger.Critical("Failed to register feed %s: %v", feedCfg.Name, err)
		}
	}

	// 5. Trading engines
	router := exchange.NewManager(config.MConfig, appLogger)
	positions := position.NewManager(config.MConfig, md, securities, appLogger)
	book := exchange.NewGlobalOrderBook(router, positions, utils.DefaultReplayCapacity, appLogger)
	if err := positions.LoadBod(db); err != nil {
		appLogger.Critical("Failed to load BOD positions: %v", err)
	}

	for _, adpCfg := range config.Exchange.Adapters {
		paper := exchange.NewPaperAdapter(adpCfg, book, md, appLogger)
		if err := router.AddAdapter(paper); err != nil {
			appLogger.Critical("Failed to register exchange adapter %s: %v", adpCfg.Name, err)
		}
	}

	// 6. Algo engine
	algos := algo.NewManager(config.MConfig, book, md, utils.DefaultReplayCapacity, appLogger)
	if err := algos.AddAdapter(algo.NewTWAP()); err != nil {
		appLogger.Critical("Failed to register TWAP: %v", err)
	}
	if err := algos.AddAdapter(algo.NewPOV()); err != nil {
		appLogger.Critical("Failed to register POV: %v", err)
	}

	// 7. Memory guard over the replay windows, sized from installed RAM
	memLimitMB := helpers.RecommendedMemoryLimitMB()
	appLogger.Info("Memory limit: %dMB", memLimitMB)
	memGuard := utils.NewMemoryGuard(memLimitMB, appLogger)
	memGuard.Register("confirmations", book.Store())
	memGuard.Register("algo-events", algos.Store())

	// 8. Background loops
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wg := &sync.WaitGroup{}

	if err := md.Start(ctx, wg); err != nil {
		appLogger.Critical("Failed to start market data: %v", err)
	}
	positions.Start(ctx, wg)

	// 9. Server
	srv := server.NewServer(config.MConfig, session.Deps{
		Config:     config.MConfig,
		Logger:     appLogger,
		Tokens:     auth.NewTokenStore(),
		Securities: securities,
		Accounts:   accounts,
		MarketData: md,
		Exchanges:  router,
		Book:       book,
		Algos:      algos,
		Positions:  positions,
		BootTm:     time.Now().Unix(),
		// The shutdown verb ends with a hard kill once orders are drained.
		Kill: func() {
			syscall.Kill(os.Getpid(), syscall.SIGKILL)
		},
	}, appLogger)

	go func() {
		if err := srv.Start(); err != nil {
			appLogger.Critical("Server failed: %v", err)
		}
	}()

	// 10. gRPC control plane for desk tooling
	var ctl *grpc.Server
	if config.GrpcPort > 0 {
		ctlLogger := logger.NewLogger(config, "ControlService")
		ctlService := control.NewService(book, algos, router, md, srv, srv.Status, ctlLogger)
		ctl, err = control.Serve(config.GrpcPort, ctlService, ctlLogger)
		if err != nil {
			appLogger.Critical("Failed to start control server: %v", err)
		}
	}

	// 11. Housekeeping loop until a shutdown signal lands
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	guardTicker := time.NewTicker(30 * time.Second)
	defer guardTicker.Stop()

	for {
		select {
		case <-guardTicker.C:
			memGuard.Check()

		case <-quit:
			appLogger.Info("Shutting down...")
			if ctl != nil {
				ctl.GracefulStop()
			}
			_ = srv.Stop()
			algos.StopAll()
			router.Stop()
			_ = md.Stop()
			cancel()
			wg.Wait()
			return
		}
	}
}
