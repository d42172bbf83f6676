// Command nsd-bridge serves the DNS-SD bridge protocol on stdin and stdout.
//
// Requests, responses and events are CBOR maps written back to back. Logs
// go to stderr so they never mix with the protocol stream.
//
// Usage:
//
//	nsd-bridge [flags]
//
// Flags:
//
//	-config string        Configuration file path
//	-engine string        Discovery engine: zeroconf, hashicorp
//	-interface string     Network interface for multicast traffic
//	-log-level string     Log level: debug, info, warn, error
//	-protocol-log string  Protocol capture file (.nlog)
//
// Examples:
//
//	# Serve with the default zeroconf engine
//	nsd-bridge
//
//	# Use hashicorp/mdns on eth0 and capture the protocol
//	nsd-bridge -engine hashicorp -interface eth0 -protocol-log /tmp/bridge.nlog
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nsd-bridge/nsd-go/internal/setup"
	"github.com/nsd-bridge/nsd-go/pkg/bridge"
	"github.com/nsd-bridge/nsd-go/pkg/config"
)

// shutdownTimeout bounds the withdrawal of registrations on exit.
const shutdownTimeout = 5 * time.Second

var (
	configFile  string
	engineName  string
	iface       string
	logLevel    string
	protocolLog string
)

func init() {
	flag.StringVar(&configFile, "config", "", "Configuration file path")
	flag.StringVar(&engineName, "engine", "", "Discovery engine: zeroconf, hashicorp")
	flag.StringVar(&iface, "interface", "", "Network interface for multicast traffic")
	flag.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flag.StringVar(&protocolLog, "protocol-log", "", "Protocol capture file (.nlog)")
}

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration file, if any, and applies flag overrides.
func loadConfig() (config.Config, error) {
	cfg := config.Default()
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	if engineName != "" {
		cfg.Engine = engineName
	}
	if iface != "" {
		cfg.Interface = iface
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if protocolLog != "" {
		cfg.ProtocolLog = protocolLog
	}
	return cfg, cfg.Validate()
}

func run(cfg config.Config) error {
	logger := setup.Logger(cfg, os.Stderr)

	plog, closeLog, err := setup.ProtocolLogger(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeLog(); err != nil {
			logger.Warn("failed to close protocol log", "error", err)
		}
	}()

	srv := bridge.NewServer(os.Stdin, os.Stdout, logger.With("component", "server"))
	b, err := setup.Bridge(cfg, logger, plog, srv.SendEvent)
	if err != nil {
		return err
	}
	logger.Info("serving bridge protocol on stdio", "engine", cfg.Engine, "session_id", b.SessionID())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := srv.Serve(ctx, b)
	if ctx.Err() != nil {
		logger.Info("received shutdown signal")
		serveErr = nil
	} else if serveErr == nil {
		logger.Info("client closed the stream")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := b.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown incomplete", "error", err)
	}
	srv.Close()

	return serveErr
}
