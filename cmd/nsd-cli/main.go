// Command nsd-cli is an interactive shell around an in-process DNS-SD bridge.
//
// Usage:
//
//	nsd-cli [flags]
//
// Flags:
//
//	-config string        Configuration file path
//	-engine string        Discovery engine: zeroconf, hashicorp
//	-interface string     Network interface for multicast traffic
//	-log-level string     Log level: debug, info, warn, error (default "warn")
//	-protocol-log string  Protocol capture file (.nlog)
//
// Examples:
//
//	# Browse for web servers
//	nsd-cli
//	nsd> browse _http._tcp
//
//	# Same with hashicorp/mdns and verbose logs
//	nsd-cli -engine hashicorp -log-level debug
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nsd-bridge/nsd-go/cmd/nsd-cli/interactive"
	"github.com/nsd-bridge/nsd-go/internal/setup"
	"github.com/nsd-bridge/nsd-go/pkg/config"
)

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
	flag.StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	flag.StringVar(&protocolLog, "protocol-log", "", "Protocol capture file (.nlog)")
}

func main() {
	flag.Parse()

	cfg := config.Default()
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(2)
		}
		cfg = loaded
	}
	if engineName != "" {
		cfg.Engine = engineName
	}
	if iface != "" {
		cfg.Interface = iface
	}
	if protocolLog != "" {
		cfg.ProtocolLog = protocolLog
	}
	cfg.LogLevel = logLevel
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	shell, err := interactive.New()
	if err != nil {
		return err
	}
	defer shell.Close()

	// Log through readline so records do not tear the prompt.
	logger := setup.Logger(cfg, shell.Stderr())

	plog, closeLog, err := setup.ProtocolLogger(cfg, logger)
	if err != nil {
		return err
	}
	defer closeLog()

	b, err := setup.Bridge(cfg, logger, plog, shell.HandleEvent)
	if err != nil {
		return err
	}
	shell.Attach(b)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return shell.Run(gctx)
	})
	g.Go(func() error {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM)
		defer signal.Stop(sigCh)

		select {
		case sig := <-sigCh:
			logger.Info("received signal", "signal", sig)
			cancel()
			// Unblock the pending Readline.
			return shell.Close()
		case <-gctx.Done():
			return nil
		}
	})
	runErr := g.Wait()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := b.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "Shutdown: %v\n", err)
	}
	return runErr
}
