package discovery

import (
	"net"
	"sync"

	"github.com/nsd-bridge/nsd-go/pkg/nsderr"
)

// Capability is a platform permission needed while a browse is active.
type Capability interface {
	// Acquire takes a reference. It fails with a SecurityIssue error if the
	// capability is not available.
	Acquire() error

	// Release drops a reference taken by Acquire.
	Release()
}

// InterfaceProvider lists multicast-capable network interfaces.
// The zeroconf api.InterfaceProvider satisfies it.
type InterfaceProvider interface {
	MulticastInterfaces() []net.Interface
}

// systemInterfaces lists interfaces of the host.
type systemInterfaces struct{}

func (systemInterfaces) MulticastInterfaces() []net.Interface {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}
	out := make([]net.Interface, 0, len(ifaces))
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp != 0 && iface.Flags&net.FlagMulticast != 0 {
			out = append(out, iface)
		}
	}
	return out
}

// MulticastLock is a reference counted multicast capability. The first
// Acquire checks that a usable multicast interface exists.
type MulticastLock struct {
	iface    string
	provider InterfaceProvider

	mu    sync.Mutex
	count int
}

// NewMulticastLock creates a lock that requires the named interface, or any
// multicast interface when name is empty. A nil provider uses the host's
// interfaces.
func NewMulticastLock(name string, provider InterfaceProvider) *MulticastLock {
	if provider == nil {
		provider = systemInterfaces{}
	}
	return &MulticastLock{iface: name, provider: provider}
}

// Acquire takes a reference.
func (l *MulticastLock) Acquire() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.count == 0 && !l.available() {
		if l.iface != "" {
			return nsderr.Newf(nsderr.SecurityIssue, "multicast not available on interface %s", l.iface)
		}
		return nsderr.New(nsderr.SecurityIssue, "missing required multicast capability")
	}
	l.count++
	return nil
}

// Release drops a reference. Releasing more often than acquiring is a no-op.
func (l *MulticastLock) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.count > 0 {
		l.count--
	}
}

// Held returns the number of outstanding references.
func (l *MulticastLock) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

func (l *MulticastLock) available() bool {
	for _, iface := range l.provider.MulticastInterfaces() {
		if l.iface == "" || iface.Name == l.iface {
			return true
		}
	}
	return false
}

// interfaces returns the interfaces an engine should bind to.
// nil means all interfaces.
func interfaces(name string) []net.Interface {
	if name == "" {
		return nil
	}
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return nil
	}
	return []net.Interface{*iface}
}

// Ensure MulticastLock implements Capability.
var _ Capability = (*MulticastLock)(nil)
