package bridge

import (
	"github.com/nsd-bridge/nsd-go/pkg/discovery"
	"github.com/nsd-bridge/nsd-go/pkg/nsderr"
)

// engineListener routes engine callbacks to the bridge. One instance serves
// every operation; the key identifies the session.
type engineListener struct {
	b *Bridge
}

func (l *engineListener) BrowseStarted(key string) { l.b.onBrowseStarted(key) }

func (l *engineListener) BrowseStartFailed(key string, code nsderr.Code) {
	l.b.onBrowseStartFailed(key, code)
}

func (l *engineListener) ServiceFound(key string, d discovery.Descriptor) {
	l.b.onServiceFound(key, d)
}

func (l *engineListener) ServiceLost(key string, d discovery.Descriptor) {
	l.b.onServiceLost(key, d)
}

func (l *engineListener) BrowseStopped(key string) { l.b.onBrowseStopped(key) }

func (l *engineListener) BrowseStopFailed(key string, code nsderr.Code) {
	l.b.onBrowseStopFailed(key, code)
}

func (l *engineListener) Resolved(key string, d discovery.Descriptor) { l.b.onResolved(key, d) }

func (l *engineListener) ResolveFailed(key string, code nsderr.Code) {
	l.b.onResolveFailed(key, code)
}

func (l *engineListener) Published(key, name string) { l.b.onPublished(key, name) }

func (l *engineListener) PublishFailed(key string, code nsderr.Code) {
	l.b.onPublishFailed(key, code)
}

func (l *engineListener) Withdrawn(key string) { l.b.onWithdrawn(key) }

func (l *engineListener) WithdrawFailed(key string, code nsderr.Code) {
	l.b.onWithdrawFailed(key, code)
}

var _ discovery.Listener = (*engineListener)(nil)
