// Command flow-server runs the Flow signaling and chat relay.
//
// Usage:
//
//	flow-server [bind-address]
//
// The single positional argument is the TCP address the WebSocket
// listener binds to (host:port). Logging verbosity and the metrics
// endpoint come from the environment (LOG_LEVEL, LOG_FORMAT,
// FLOW_METRICS_ADDR, FLOW_METRICS_INTERVAL).
package main

import (
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	_ "go.uber.org/automaxprocs"

	"github.com/mxcop/flow/internal/config"
	"github.com/mxcop/flow/internal/logging"
	"github.com/mxcop/flow/internal/server"
)

const defaultAddr = ":25656"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "flow-server: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})

	addr := defaultAddr
	if len(os.Args) > 1 {
		addr = os.Args[1]
	}

	logger.Info().
		Int("gomaxprocs", runtime.GOMAXPROCS(0)).
		Msg("Starting the server...")

	srv := server.New(server.Config{
		Addr:            addr,
		MetricsAddr:     cfg.MetricsAddr,
		MetricsInterval: cfg.MetricsInterval,
	}, logger)

	if err := srv.Start(); err != nil {
		logger.Error().Err(err).Msg("Failed to start server")
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("Shutting down server...")
	if err := srv.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("Error during shutdown")
		os.Exit(1)
	}
}
