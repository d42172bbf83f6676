package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/enbility/zeroconf/v3"

	"github.com/nsd-bridge/nsd-go/pkg/nsderr"
	"github.com/nsd-bridge/nsd-go/pkg/txt"
)

// ZeroconfConfig configures a ZeroconfEngine.
type ZeroconfConfig struct {
	// Interface restricts the engine to one network interface.
	// Empty string means all interfaces.
	Interface string

	// Domain is the browse and registration domain. Default: "local".
	Domain string

	// TTL is the DNS record TTL of published services. Zero keeps the library default.
	TTL time.Duration

	// StartupGrace is how long a new browse may fail before it counts as started.
	StartupGrace time.Duration

	// Logger receives debug output. Nil discards it.
	Logger *slog.Logger
}

// DefaultZeroconfConfig returns the default zeroconf engine configuration.
func DefaultZeroconfConfig() ZeroconfConfig {
	return ZeroconfConfig{
		Domain:       DefaultDomain,
		TTL:          120 * time.Second,
		StartupGrace: 50 * time.Millisecond,
	}
}

// ZeroconfEngine implements Engine using zeroconf.
type ZeroconfEngine struct {
	config ZeroconfConfig
	logger *slog.Logger

	mu       sync.Mutex
	closed   bool
	browses  map[string]context.CancelFunc
	resolves map[string]*zeroconfResolve
	servers  map[string]*zeroconfRegistration
}

type zeroconfResolve struct {
	cancel context.CancelFunc
}

type zeroconfRegistration struct {
	server   *zeroconf.Server
	listener RegistrationListener
}

// NewZeroconfEngine creates a new zeroconf engine.
func NewZeroconfEngine(config ZeroconfConfig) *ZeroconfEngine {
	if config.Domain == "" {
		config.Domain = DefaultDomain
	}
	if config.StartupGrace <= 0 {
		config.StartupGrace = DefaultZeroconfConfig().StartupGrace
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ZeroconfEngine{
		config:   config,
		logger:   logger,
		browses:  make(map[string]context.CancelFunc),
		resolves: make(map[string]*zeroconfResolve),
		servers:  make(map[string]*zeroconfRegistration),
	}
}

// Quirks implements Engine. zeroconf reports a service once per interface
// and address family.
func (e *ZeroconfEngine) Quirks() Quirks {
	return Quirks{DuplicateFound: true}
}

// StartBrowse implements Engine.
func (e *ZeroconfEngine) StartBrowse(key, serviceType string, l BrowseListener) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nsderr.WithCode(nsderr.CodeShutdown, errors.New("engine closed"))
	}
	if _, exists := e.browses[key]; exists {
		return nsderr.WithCode(nsderr.CodeAlreadyActive, fmt.Errorf("browse %q already running", key))
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.browses[key] = cancel

	go e.runBrowse(ctx, key, NormalizeType(serviceType), l)
	return nil
}

// runBrowse drives one browse until its context is cancelled or the library gives up.
func (e *ZeroconfEngine) runBrowse(ctx context.Context, key, serviceType string, l BrowseListener) {
	entries := make(chan *zeroconf.ServiceEntry, 16)
	removed := make(chan *zeroconf.ServiceEntry, 16)
	done := make(chan error, 1)

	go func() {
		done <- zeroconf.Browse(ctx, serviceType, e.config.Domain, entries, removed, e.clientOptions()...)
	}()

	grace := time.NewTimer(e.config.StartupGrace)
	defer grace.Stop()

	select {
	case err := <-done:
		if ctx.Err() == nil {
			e.forgetBrowse(key)
			e.logger.Debug("browse failed to start", "key", key, "type", QualifiedType(serviceType, e.config.Domain), "error", err)
			l.BrowseStartFailed(key, codeOrInternal(err))
			return
		}
		// Stopped during startup.
		l.BrowseStarted(key)
		l.BrowseStopped(key)
		return
	case <-grace.C:
	}

	l.BrowseStarted(key)

	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				entries = nil
				continue
			}
			l.ServiceFound(key, zeroconfDescriptor(entry))

		case entry, ok := <-removed:
			if !ok {
				removed = nil
				continue
			}
			l.ServiceLost(key, zeroconfDescriptor(entry))

		case err := <-done:
			if ctx.Err() != nil {
				l.BrowseStopped(key)
				return
			}
			// The library ended the browse on its own.
			e.forgetBrowse(key)
			e.logger.Debug("browse ended unexpectedly", "key", key, "error", err)
			l.BrowseStopFailed(key, codeOrInternal(err))
			return
		}
	}
}

// StopBrowse implements Engine.
func (e *ZeroconfEngine) StopBrowse(key string) error {
	cancel, ok := e.forgetBrowse(key)
	if !ok {
		return nsderr.WithCode(nsderr.CodeNotFound, fmt.Errorf("no browse %q", key))
	}
	cancel()
	return nil
}

func (e *ZeroconfEngine) forgetBrowse(key string) (context.CancelFunc, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cancel, ok := e.browses[key]
	delete(e.browses, key)
	return cancel, ok
}

// Resolve implements Engine.
func (e *ZeroconfEngine) Resolve(key string, d Descriptor, timeout time.Duration, l ResolveListener) error {
	if timeout <= 0 {
		timeout = DefaultResolveTimeout
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nsderr.WithCode(nsderr.CodeShutdown, errors.New("engine closed"))
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	op := &zeroconfResolve{cancel: cancel}
	e.resolves[key] = op
	e.mu.Unlock()

	go func() {
		entries := make(chan *zeroconf.ServiceEntry, 4)
		done := make(chan error, 1)
		serviceType := ServiceType(d.Type)

		go func() {
			done <- zeroconf.Lookup(ctx, d.Name, serviceType, e.config.Domain, entries, e.clientOptions()...)
		}()

		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					entries = nil
					continue
				}
				if entry.Instance != d.Name {
					continue
				}
				e.forgetResolve(key, op)
				l.Resolved(key, zeroconfDescriptor(entry))
				return
			case <-ctx.Done():
				e.forgetResolve(key, op)
				l.ResolveFailed(key, codeOrInternal(ctx.Err()))
				return
			case err := <-done:
				if err != nil {
					e.forgetResolve(key, op)
					l.ResolveFailed(key, codeOrInternal(err))
					return
				}
				// Lookup returned without error; keep waiting for entries
				// until the timeout.
				done = nil
			}
		}
	}()
	return nil
}

// forgetResolve cancels op and drops it, unless key was reused meanwhile.
func (e *ZeroconfEngine) forgetResolve(key string, op *zeroconfResolve) {
	op.cancel()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.resolves[key] == op {
		delete(e.resolves, key)
	}
}

// Publish implements Engine.
func (e *ZeroconfEngine) Publish(key string, d Descriptor, l RegistrationListener) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nsderr.WithCode(nsderr.CodeShutdown, errors.New("engine closed"))
	}
	if _, exists := e.servers[key]; exists {
		return nsderr.WithCode(nsderr.CodeAlreadyActive, fmt.Errorf("registration %q already active", key))
	}
	reg := &zeroconfRegistration{listener: l}
	e.servers[key] = reg

	go func() {
		server, err := e.register(d)

		e.mu.Lock()
		if err != nil {
			delete(e.servers, key)
			e.mu.Unlock()
			e.logger.Debug("publish failed", "key", key, "name", d.Name, "type", QualifiedType(d.Type, e.config.Domain), "error", err)
			l.PublishFailed(key, codeOrInternal(err))
			return
		}
		reg.server = server
		e.mu.Unlock()

		l.Published(key, d.Name)
	}()
	return nil
}

// register advertises d. A host turns the registration into a proxy record
// for that host.
func (e *ZeroconfEngine) register(d Descriptor) (*zeroconf.Server, error) {
	var opts []zeroconf.ServerOption
	if e.config.TTL > 0 {
		opts = append(opts, zeroconf.TTL(uint32(e.config.TTL.Seconds())))
	}

	// Get interfaces (nil means all interfaces)
	ifaces := interfaces(e.config.Interface)
	serviceType := ServiceType(d.Type)
	text := txt.Strings(d.TXT)

	if d.Host == "" {
		return zeroconf.Register(d.Name, serviceType, e.config.Domain, int(d.Port), text, ifaces, opts...)
	}

	ips, err := lookupHostIPs(d.Host)
	if err != nil {
		return nil, err
	}
	return zeroconf.RegisterProxy(d.Name, serviceType, e.config.Domain, int(d.Port),
		strings.TrimSuffix(d.Host, "."), ips, text, ifaces, opts...)
}

// Withdraw implements Engine.
func (e *ZeroconfEngine) Withdraw(key string) error {
	e.mu.Lock()
	reg, ok := e.servers[key]
	if !ok || reg.server == nil {
		e.mu.Unlock()
		return nsderr.WithCode(nsderr.CodeNotFound, fmt.Errorf("no published service %q", key))
	}
	delete(e.servers, key)
	e.mu.Unlock()

	go func() {
		reg.server.Shutdown()
		reg.listener.Withdrawn(key)
	}()
	return nil
}

// Close implements Engine.
func (e *ZeroconfEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	for key, cancel := range e.browses {
		cancel()
		delete(e.browses, key)
	}
	for key, op := range e.resolves {
		op.cancel()
		delete(e.resolves, key)
	}
	for key, reg := range e.servers {
		if reg.server != nil {
			reg.server.Shutdown()
		}
		delete(e.servers, key)
	}
	return nil
}

// clientOptions returns zeroconf client options based on config.
func (e *ZeroconfEngine) clientOptions() []zeroconf.ClientOption {
	var opts []zeroconf.ClientOption

	// Select specific interface if configured
	if ifaces := interfaces(e.config.Interface); ifaces != nil {
		opts = append(opts, zeroconf.SelectIfaces(ifaces))
	}
	return opts
}

// zeroconfDescriptor converts a zeroconf entry to a Descriptor.
func zeroconfDescriptor(entry *zeroconf.ServiceEntry) Descriptor {
	host := strings.TrimSuffix(entry.HostName, ".")
	if host == "" {
		switch {
		case len(entry.AddrIPv4) > 0:
			host = entry.AddrIPv4[0].String()
		case len(entry.AddrIPv6) > 0:
			host = entry.AddrIPv6[0].String()
		}
	}

	port := uint16(0)
	if entry.Port > 0 && entry.Port <= 0xffff {
		port = uint16(entry.Port)
	}

	return Descriptor{
		Name: entry.Instance,
		Type: ServiceType(entry.Service),
		Host: host,
		Port: port,
		TXT:  txt.FromStrings(entry.Text),
	}
}

// lookupHostIPs resolves the addresses a proxy registration announces.
func lookupHostIPs(host string) ([]string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return []string{ip.String()}, nil
	}
	ips, err := net.LookupHost(strings.TrimSuffix(host, "."))
	if err != nil {
		return nil, nsderr.WithCode(nsderr.CodeBadArgument, fmt.Errorf("resolve host %q: %w", host, err))
	}
	return ips, nil
}

// codeOrInternal classifies an error from a library call. A nil error
// still needs a code because the operation failed.
func codeOrInternal(err error) nsderr.Code {
	if err == nil {
		return nsderr.CodeInternal
	}
	return nsderr.Classify(err)
}

// Ensure ZeroconfEngine implements Engine.
var _ Engine = (*ZeroconfEngine)(nil)
