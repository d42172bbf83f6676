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

	"github.com/hashicorp/mdns"
	"github.com/miekg/dns"
	"go.uber.org/multierr"

	"github.com/nsd-bridge/nsd-go/pkg/nsderr"
	"github.com/nsd-bridge/nsd-go/pkg/txt"
)

// HashicorpConfig configures a HashicorpEngine.
type HashicorpConfig struct {
	// Interface restricts queries and responses to one network interface.
	// Empty string means the library default.
	Interface string

	// Domain is the browse and registration domain. Default: "local".
	Domain string

	// QueryTimeout is the duration of one browse query round.
	QueryTimeout time.Duration

	// BrowseInterval is the pause between browse query rounds.
	BrowseInterval time.Duration

	// LostAfter is the number of consecutive rounds a service must be
	// missing before it is reported lost.
	LostAfter int

	// Logger receives debug output. Nil discards it.
	Logger *slog.Logger
}

// DefaultHashicorpConfig returns the default hashicorp engine configuration.
func DefaultHashicorpConfig() HashicorpConfig {
	return HashicorpConfig{
		Domain:         DefaultDomain,
		QueryTimeout:   time.Second,
		BrowseInterval: 5 * time.Second,
		LostAfter:      3,
	}
}

// HashicorpEngine implements Engine on top of hashicorp/mdns.
//
// hashicorp/mdns has no continuous browse, so a browse is a sequence of
// query rounds. Every sighting is reported as found, including services
// already reported, and a service missing from LostAfter rounds is reported
// lost.
type HashicorpEngine struct {
	config HashicorpConfig
	logger *slog.Logger

	mu       sync.Mutex
	closed   bool
	browses  map[string]context.CancelFunc
	resolves map[string]context.CancelFunc
	servers  map[string]*hashicorpRegistration
}

type hashicorpRegistration struct {
	server   *mdns.Server
	listener RegistrationListener
}

// NewHashicorpEngine creates a new hashicorp/mdns engine.
func NewHashicorpEngine(config HashicorpConfig) *HashicorpEngine {
	defaults := DefaultHashicorpConfig()
	if config.Domain == "" {
		config.Domain = defaults.Domain
	}
	if config.QueryTimeout <= 0 {
		config.QueryTimeout = defaults.QueryTimeout
	}
	if config.BrowseInterval <= 0 {
		config.BrowseInterval = defaults.BrowseInterval
	}
	if config.LostAfter <= 0 {
		config.LostAfter = defaults.LostAfter
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &HashicorpEngine{
		config:   config,
		logger:   logger,
		browses:  make(map[string]context.CancelFunc),
		resolves: make(map[string]context.CancelFunc),
		servers:  make(map[string]*hashicorpRegistration),
	}
}

// Quirks implements Engine.
func (e *HashicorpEngine) Quirks() Quirks {
	return Quirks{DuplicateFound: true}
}

// StartBrowse implements Engine.
func (e *HashicorpEngine) StartBrowse(key, serviceType string, l BrowseListener) error {
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

	go e.runBrowse(ctx, key, ServiceType(serviceType), l)
	return nil
}

type sighting struct {
	descriptor Descriptor
	misses     int
}

func (e *HashicorpEngine) runBrowse(ctx context.Context, key, serviceType string, l BrowseListener) {
	seen := make(map[string]*sighting)
	started := false

	for {
		found, err := e.queryRound(ctx, serviceType, e.config.QueryTimeout)

		if ctx.Err() != nil {
			if !started {
				l.BrowseStarted(key)
			}
			l.BrowseStopped(key)
			return
		}
		if err != nil {
			e.forgetBrowse(key)
			e.logger.Debug("browse query failed", "key", key, "type", QualifiedType(serviceType, e.config.Domain), "error", err)
			if !started {
				l.BrowseStartFailed(key, nsderr.Classify(err))
			} else {
				l.BrowseStopFailed(key, nsderr.Classify(err))
			}
			return
		}
		if !started {
			started = true
			l.BrowseStarted(key)
		}

		present := make(map[string]bool, len(found))
		for _, d := range found {
			present[d.Name] = true
			seen[d.Name] = &sighting{descriptor: d}
			l.ServiceFound(key, d)
		}
		for name, s := range seen {
			if present[name] {
				continue
			}
			s.misses++
			if s.misses >= e.config.LostAfter {
				delete(seen, name)
				l.ServiceLost(key, s.descriptor)
			}
		}

		select {
		case <-ctx.Done():
			l.BrowseStopped(key)
			return
		case <-time.After(e.config.BrowseInterval):
		}
	}
}

// queryRound runs one query and collects the matching services.
func (e *HashicorpEngine) queryRound(ctx context.Context, serviceType string, timeout time.Duration) ([]Descriptor, error) {
	entries := make(chan *mdns.ServiceEntry, 32)
	collected := make(chan []Descriptor, 1)

	go func() {
		var out []Descriptor
		for entry := range entries {
			if d, ok := hashicorpDescriptor(entry, serviceType); ok {
				out = append(out, d)
			}
		}
		collected <- out
	}()

	err := mdns.QueryContext(ctx, e.queryParams(serviceType, timeout, entries))
	close(entries)
	return <-collected, err
}

func (e *HashicorpEngine) queryParams(serviceType string, timeout time.Duration, entries chan *mdns.ServiceEntry) *mdns.QueryParam {
	params := &mdns.QueryParam{
		Service: serviceType,
		Domain:  e.config.Domain,
		Timeout: timeout,
		Entries: entries,
	}
	if ifaces := interfaces(e.config.Interface); ifaces != nil {
		params.Interface = &ifaces[0]
	}
	return params
}

// StopBrowse implements Engine.
func (e *HashicorpEngine) StopBrowse(key string) error {
	cancel, ok := e.forgetBrowse(key)
	if !ok {
		return nsderr.WithCode(nsderr.CodeNotFound, fmt.Errorf("no browse %q", key))
	}
	cancel()
	return nil
}

func (e *HashicorpEngine) forgetBrowse(key string) (context.CancelFunc, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cancel, ok := e.browses[key]
	delete(e.browses, key)
	return cancel, ok
}

// Resolve implements Engine.
func (e *HashicorpEngine) Resolve(key string, d Descriptor, timeout time.Duration, l ResolveListener) error {
	if timeout <= 0 {
		timeout = DefaultResolveTimeout
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nsderr.WithCode(nsderr.CodeShutdown, errors.New("engine closed"))
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	e.resolves[key] = cancel
	e.mu.Unlock()

	go func() {
		defer cancel()

		serviceType := ServiceType(d.Type)
		entries := make(chan *mdns.ServiceEntry, 16)
		result := make(chan Descriptor, 1)
		drained := make(chan struct{})

		go func() {
			defer close(drained)
			for entry := range entries {
				found, ok := hashicorpDescriptor(entry, serviceType)
				if !ok || !found.SameService(d) {
					continue
				}
				select {
				case result <- found:
					cancel()
				default:
				}
			}
		}()

		err := mdns.QueryContext(ctx, e.queryParams(serviceType, timeout, entries))
		close(entries)
		<-drained

		e.mu.Lock()
		delete(e.resolves, key)
		e.mu.Unlock()

		select {
		case found := <-result:
			l.Resolved(key, found)
			return
		default:
		}

		switch {
		case err != nil && ctx.Err() == nil:
			l.ResolveFailed(key, nsderr.Classify(err))
		case errors.Is(ctx.Err(), context.Canceled):
			l.ResolveFailed(key, nsderr.CodeCancelled)
		default:
			l.ResolveFailed(key, nsderr.CodeTimeout)
		}
	}()
	return nil
}

// Publish implements Engine.
func (e *HashicorpEngine) Publish(key string, d Descriptor, l RegistrationListener) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nsderr.WithCode(nsderr.CodeShutdown, errors.New("engine closed"))
	}
	if _, exists := e.servers[key]; exists {
		e.mu.Unlock()
		return nsderr.WithCode(nsderr.CodeAlreadyActive, fmt.Errorf("registration %q already active", key))
	}
	reg := &hashicorpRegistration{listener: l}
	e.servers[key] = reg
	e.mu.Unlock()

	go func() {
		server, err := e.serve(d)

		e.mu.Lock()
		if err != nil {
			delete(e.servers, key)
			e.mu.Unlock()
			e.logger.Debug("publish failed", "key", key, "name", d.Name, "type", QualifiedType(d.Type, e.config.Domain), "error", err)
			l.PublishFailed(key, nsderr.Classify(err))
			return
		}
		reg.server = server
		e.mu.Unlock()

		l.Published(key, d.Name)
	}()
	return nil
}

func (e *HashicorpEngine) serve(d Descriptor) (*mdns.Server, error) {
	var (
		hostName string
		ips      []net.IP
	)
	if d.Host != "" {
		hostName = dns.Fqdn(d.Host)
		addrs, err := lookupHostIPs(d.Host)
		if err != nil {
			return nil, err
		}
		for _, a := range addrs {
			if ip := net.ParseIP(a); ip != nil {
				ips = append(ips, ip)
			}
		}
	}

	zone, err := mdns.NewMDNSService(d.Name, ServiceType(d.Type), dns.Fqdn(e.config.Domain),
		hostName, int(d.Port), ips, txt.Strings(d.TXT))
	if err != nil {
		return nil, fmt.Errorf("failed to create service: %w", err)
	}

	cfg := &mdns.Config{Zone: zone}
	if ifaces := interfaces(e.config.Interface); ifaces != nil {
		cfg.Iface = &ifaces[0]
	}
	server, err := mdns.NewServer(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create mdns server: %w", err)
	}
	return server, nil
}

// Withdraw implements Engine.
func (e *HashicorpEngine) Withdraw(key string) error {
	e.mu.Lock()
	reg, ok := e.servers[key]
	if !ok || reg.server == nil {
		e.mu.Unlock()
		return nsderr.WithCode(nsderr.CodeNotFound, fmt.Errorf("no published service %q", key))
	}
	delete(e.servers, key)
	e.mu.Unlock()

	go func() {
		if err := reg.server.Shutdown(); err != nil {
			reg.listener.WithdrawFailed(key, nsderr.Classify(err))
			return
		}
		reg.listener.Withdrawn(key)
	}()
	return nil
}

// Close implements Engine.
func (e *HashicorpEngine) Close() error {
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
	for key, cancel := range e.resolves {
		cancel()
		delete(e.resolves, key)
	}
	var err error
	for key, reg := range e.servers {
		if reg.server != nil {
			err = multierr.Append(err, reg.server.Shutdown())
		}
		delete(e.servers, key)
	}
	return err
}

// hashicorpDescriptor converts a hashicorp entry to a Descriptor. Entries
// for other service types are rejected.
func hashicorpDescriptor(entry *mdns.ServiceEntry, serviceType string) (Descriptor, bool) {
	name := SplitInstance(entry.Name, serviceType)
	if name == "" {
		return Descriptor{}, false
	}

	host := strings.TrimSuffix(entry.Host, ".")
	if host == "" {
		switch {
		case entry.AddrV4 != nil:
			host = entry.AddrV4.String()
		case entry.AddrV6 != nil:
			host = entry.AddrV6.String()
		}
	}

	port := uint16(0)
	if entry.Port > 0 && entry.Port <= 0xffff {
		port = uint16(entry.Port)
	}

	return Descriptor{
		Name: name,
		Type: ServiceType(serviceType),
		Host: host,
		Port: port,
		TXT:  txt.FromStrings(entry.InfoFields),
	}, true
}

// Ensure HashicorpEngine implements Engine.
var _ Engine = (*HashicorpEngine)(nil)
