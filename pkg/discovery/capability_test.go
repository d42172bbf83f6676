package discovery_test

import (
	"net"
	"testing"

	"github.com/enbility/zeroconf/v3/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nsd-bridge/nsd-go/pkg/discovery"
	"github.com/nsd-bridge/nsd-go/pkg/nsderr"
)

func testInterfaceProvider(t *testing.T, ifaces ...net.Interface) *mocks.MockInterfaceProvider {
	provider := mocks.NewMockInterfaceProvider(t)
	provider.EXPECT().MulticastInterfaces().Return(ifaces).Maybe()
	return provider
}

func TestMulticastLockReferenceCounting(t *testing.T) {
	provider := testInterfaceProvider(t, net.Interface{Index: 1, Name: "eth0", Flags: net.FlagUp | net.FlagMulticast})
	lock := discovery.NewMulticastLock("", provider)

	require.NoError(t, lock.Acquire())
	require.NoError(t, lock.Acquire())
	assert.Equal(t, 2, lock.Held())

	lock.Release()
	assert.Equal(t, 1, lock.Held())
	lock.Release()
	assert.Equal(t, 0, lock.Held())

	// Extra releases do not underflow.
	lock.Release()
	assert.Equal(t, 0, lock.Held())
}

func TestMulticastLockUnavailable(t *testing.T) {
	lock := discovery.NewMulticastLock("", testInterfaceProvider(t))

	err := lock.Acquire()
	require.Error(t, err)
	assert.Equal(t, nsderr.SecurityIssue, nsderr.CauseOf(err))
	assert.Equal(t, 0, lock.Held())
}

func TestMulticastLockNamedInterface(t *testing.T) {
	provider := testInterfaceProvider(t, net.Interface{Index: 1, Name: "eth0", Flags: net.FlagUp | net.FlagMulticast})

	err := discovery.NewMulticastLock("wlan0", provider).Acquire()
	require.Error(t, err)
	assert.Equal(t, nsderr.SecurityIssue, nsderr.CauseOf(err))
	assert.Contains(t, nsderr.MessageOf(err), "wlan0")

	assert.NoError(t, discovery.NewMulticastLock("eth0", provider).Acquire())
}
