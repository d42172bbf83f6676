// Package setup builds the runtime pieces shared by the nsd commands from a
// configuration.
package setup

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/nsd-bridge/nsd-go/pkg/bridge"
	"github.com/nsd-bridge/nsd-go/pkg/config"
	"github.com/nsd-bridge/nsd-go/pkg/discovery"
	"github.com/nsd-bridge/nsd-go/pkg/log"
)

// Logger creates the operational logger writing text records to w.
func Logger(cfg config.Config, w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
}

// Engine creates the discovery engine selected by cfg.
func Engine(cfg config.Config, logger *slog.Logger) (discovery.Engine, error) {
	engineLogger := logger.With("component", "engine", "engine", cfg.Engine)

	switch cfg.Engine {
	case config.EngineZeroconf:
		zc := discovery.DefaultZeroconfConfig()
		zc.Interface = cfg.Interface
		zc.Domain = cfg.Domain
		zc.TTL = cfg.TTL.Std()
		zc.Logger = engineLogger
		return discovery.NewZeroconfEngine(zc), nil

	case config.EngineHashicorp:
		hc := discovery.DefaultHashicorpConfig()
		hc.Interface = cfg.Interface
		hc.Domain = cfg.Domain
		hc.BrowseInterval = cfg.BrowseInterval.Std()
		hc.Logger = engineLogger
		return discovery.NewHashicorpEngine(hc), nil

	default:
		return nil, fmt.Errorf("unknown engine: %s", cfg.Engine)
	}
}

// ProtocolLogger creates the protocol capture logger. Events always go to
// logger at debug level and, if cfg names a file, to that file. The returned
// close function flushes the file.
func ProtocolLogger(cfg config.Config, logger *slog.Logger) (log.Logger, func() error, error) {
	adapter := log.NewSlogAdapter(logger.With("component", "protocol"))
	if cfg.ProtocolLog == "" {
		return adapter, func() error { return nil }, nil
	}

	file, err := log.NewFileLogger(cfg.ProtocolLog)
	if err != nil {
		return nil, nil, fmt.Errorf("open protocol log: %w", err)
	}
	closeFile := func() error {
		if n := file.Dropped(); n > 0 {
			logger.Warn("protocol log incomplete", "path", cfg.ProtocolLog, "dropped", n)
		}
		return file.Close()
	}
	return log.NewMultiLogger(adapter, file), closeFile, nil
}

// Bridge creates a bridge over a new engine. onEvent receives client events.
func Bridge(cfg config.Config, logger *slog.Logger, plog log.Logger, onEvent bridge.EventSink) (*bridge.Bridge, error) {
	engine, err := Engine(cfg, logger)
	if err != nil {
		return nil, err
	}

	return bridge.New(engine, bridge.Config{
		Logger:         logger.With("component", "bridge"),
		ProtocolLogger: plog,
		Capability:     discovery.NewMulticastLock(cfg.Interface, nil),
		ResolveTimeout: cfg.ResolveTimeout.Std(),
		EventBuffer:    cfg.EventBuffer,
		EngineName:     cfg.Engine,
		OnEvent:        onEvent,
	}), nil
}
