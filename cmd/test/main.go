package main

import (
	"flag"
	"fmt"
	"os"

	"trade-gateway/src/logger"
)

// -----------------------------------------------------------------------------
// Smoke harness. Boots the whole gateway in-process against an in-memory
// database and the sim feed, then drives it from the outside: a real
// websocket client, the one-shot command endpoint and the gRPC control
// plane. Prints one PASS/FAIL line per check and exits non-zero when
// anything failed.
// -----------------------------------------------------------------------------

func main() {
	// 1. Parse command line flags
	port := flag.Int("port", 9301, "loopback port for the gateway under test")
	grpcPort := flag.Int("grpc-port", 9302, "loopback port for the control plane under test")
	flag.Parse()

	// 2. Build the throwaway config
	conf, cleanup, err := buildConfig(*port, *grpcPort)
	if err != nil {
		fmt.Printf("Error building smoke config: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	// 3. Setup Logger
	if err := logger.Configure(conf.LogLevel, conf.LogFile); err != nil {
		fmt.Printf("Error configuring logger: %v\n", err)
		os.Exit(1)
	}
	appLogger := logger.NewLogger(conf, "Smoke")

	// 4. Boot the gateway
	gw := bootGateway(conf, appLogger)
	defer gw.shutdown()

	// 5. Drive the scenarios
	ck := &checker{}
	runScenarios(ck, conf, gw)

	// 6. Summary
	fmt.Printf("\nsmoke: %d passed, %d failed\n", ck.passed, ck.failed)
	if ck.failed > 0 {
		os.Exit(1)
	}
}
