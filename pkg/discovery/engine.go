package discovery

import (
	"time"

	"github.com/nsd-bridge/nsd-go/pkg/nsderr"
)

// BrowseListener receives the callbacks of a browse. Implementations must be
// safe for concurrent use: engines call them from arbitrary goroutines.
type BrowseListener interface {
	// BrowseStarted reports that the browse is running.
	BrowseStarted(key string)

	// BrowseStartFailed is terminal: the browse never ran.
	BrowseStartFailed(key string, code nsderr.Code)

	// ServiceFound reports a service. Engines may report the same service repeatedly.
	ServiceFound(key string, d Descriptor)

	// ServiceLost reports that a service disappeared. The descriptor may be
	// incomplete; only name and type are reliable.
	ServiceLost(key string, d Descriptor)

	// BrowseStopped is terminal and follows StopBrowse.
	BrowseStopped(key string)

	// BrowseStopFailed is terminal. Engines also report it when a running
	// browse ends without having been stopped.
	BrowseStopFailed(key string, code nsderr.Code)
}

// ResolveListener receives the terminal callback of a resolve.
type ResolveListener interface {
	Resolved(key string, d Descriptor)
	ResolveFailed(key string, code nsderr.Code)
}

// RegistrationListener receives the callbacks of a registration.
type RegistrationListener interface {
	// Published reports the name the service was advertised under, which
	// may differ from the requested name after conflict resolution.
	Published(key string, name string)

	// PublishFailed is terminal.
	PublishFailed(key string, code nsderr.Code)

	// Withdrawn is terminal and follows Withdraw.
	Withdrawn(key string)

	// WithdrawFailed is terminal and follows Withdraw.
	WithdrawFailed(key string, code nsderr.Code)
}

// Listener receives every kind of engine callback.
type Listener interface {
	BrowseListener
	ResolveListener
	RegistrationListener
}

// Engine is a native DNS-SD implementation.
//
// Each started operation delivers exactly one terminal callback. A non-nil
// error returned by a method means the operation did not start and no
// callback will follow. Callbacks may be delivered before the method returns.
type Engine interface {
	// StartBrowse starts browsing for serviceType.
	StartBrowse(key, serviceType string, l BrowseListener) error

	// StopBrowse stops the browse started under key.
	StopBrowse(key string) error

	// Resolve looks up host, port and TXT of d. The engine reports
	// ResolveFailed with CodeTimeout if nothing is found within timeout.
	Resolve(key string, d Descriptor, timeout time.Duration, l ResolveListener) error

	// Publish advertises d.
	Publish(key string, d Descriptor, l RegistrationListener) error

	// Withdraw stops advertising the service published under key.
	Withdraw(key string) error

	// Quirks describes the known deviations of the engine.
	Quirks() Quirks

	// Close releases engine resources. Operations still running are abandoned
	// without callbacks.
	Close() error
}

// Quirks lists known engine deviations the bridge compensates for.
type Quirks struct {
	// DuplicateFound is set when the engine reports the same service more than
	// once. Repeats from an engine without it are logged as warnings.
	DuplicateFound bool

	// CollapsesEmptyTXT is set when present empty TXT values come back as
	// values without data.
	CollapsesEmptyTXT bool
}

// DefaultResolveTimeout bounds a single resolve.
const DefaultResolveTimeout = 10 * time.Second
