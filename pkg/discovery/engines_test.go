package discovery

import (
	"net"
	"testing"
	"time"

	"github.com/enbility/zeroconf/v3"
	"github.com/hashicorp/mdns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nsd-bridge/nsd-go/pkg/nsderr"
)

func TestZeroconfDescriptor(t *testing.T) {
	entry := &zeroconf.ServiceEntry{
		ServiceRecord: zeroconf.ServiceRecord{Instance: "Office Printer", Service: "_ipp._tcp", Domain: "local."},
	}
	entry.HostName = "printer.local."
	entry.Port = 631
	entry.Text = []string{"rp=ipp/print", "color", "note="}
	entry.AddrIPv4 = []net.IP{net.ParseIP("192.168.1.20")}

	d := zeroconfDescriptor(entry)

	assert.Equal(t, "Office Printer", d.Name)
	assert.Equal(t, "_ipp._tcp", d.Type)
	assert.Equal(t, "printer.local", d.Host)
	assert.Equal(t, uint16(631), d.Port)
	assert.Equal(t, "ipp/print", string(d.TXT["rp"]))
	assert.Nil(t, d.TXT["color"])
	assert.Contains(t, d.TXT, "color")
	assert.NotNil(t, d.TXT["note"])
	assert.Empty(t, d.TXT["note"])
}

func TestZeroconfDescriptorFallsBackToAddress(t *testing.T) {
	entry := &zeroconf.ServiceEntry{
		ServiceRecord: zeroconf.ServiceRecord{Instance: "svc", Service: "_http._tcp", Domain: "local."},
	}
	entry.AddrIPv6 = []net.IP{net.ParseIP("fe80::1")}
	entry.Port = 70000

	d := zeroconfDescriptor(entry)

	assert.Equal(t, "fe80::1", d.Host)
	assert.Equal(t, uint16(0), d.Port, "out of range port is dropped")
	assert.Nil(t, d.TXT)
}

func TestHashicorpDescriptor(t *testing.T) {
	entry := &mdns.ServiceEntry{
		Name:       `Living\ Room._http._tcp.local.`,
		Host:       "tv.local.",
		AddrV4:     net.ParseIP("10.0.0.7"),
		Port:       8080,
		InfoFields: []string{"path=/", "secure"},
	}

	d, ok := hashicorpDescriptor(entry, "_http._tcp.")
	require.True(t, ok)
	assert.Equal(t, "Living Room", d.Name)
	assert.Equal(t, "_http._tcp", d.Type)
	assert.Equal(t, "tv.local", d.Host)
	assert.Equal(t, uint16(8080), d.Port)
	assert.Equal(t, "/", string(d.TXT["path"]))
	assert.Contains(t, d.TXT, "secure")

	entry.Host = ""
	d, ok = hashicorpDescriptor(entry, "_http._tcp")
	require.True(t, ok)
	assert.Equal(t, "10.0.0.7", d.Host)

	_, ok = hashicorpDescriptor(entry, "_ipp._tcp")
	assert.False(t, ok, "entries of other types are rejected")
}

func TestEngineDefaults(t *testing.T) {
	h := NewHashicorpEngine(HashicorpConfig{})
	assert.Equal(t, DefaultDomain, h.config.Domain)
	assert.Equal(t, time.Second, h.config.QueryTimeout)
	assert.Equal(t, 3, h.config.LostAfter)
	assert.True(t, h.Quirks().DuplicateFound)

	z := NewZeroconfEngine(ZeroconfConfig{})
	assert.Equal(t, DefaultDomain, z.config.Domain)
	assert.True(t, z.Quirks().DuplicateFound)
}

func TestEnginesRejectUnknownKeys(t *testing.T) {
	engines := map[string]Engine{
		"zeroconf":  NewZeroconfEngine(DefaultZeroconfConfig()),
		"hashicorp": NewHashicorpEngine(DefaultHashicorpConfig()),
	}

	for name, e := range engines {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, nsderr.CodeNotFound, nsderr.Classify(e.StopBrowse("missing")))
			assert.Equal(t, nsderr.CodeNotFound, nsderr.Classify(e.Withdraw("missing")))
		})
	}
}

func TestEnginesRefuseAfterClose(t *testing.T) {
	engines := map[string]Engine{
		"zeroconf":  NewZeroconfEngine(DefaultZeroconfConfig()),
		"hashicorp": NewHashicorpEngine(DefaultHashicorpConfig()),
	}

	for name, e := range engines {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, e.Close())
			require.NoError(t, e.Close())

			err := e.StartBrowse("k", "_http._tcp", nil)
			assert.Equal(t, nsderr.CodeShutdown, nsderr.Classify(err))

			err = e.Resolve("k", Descriptor{Name: "a", Type: "_http._tcp"}, time.Second, nil)
			assert.Equal(t, nsderr.CodeShutdown, nsderr.Classify(err))

			err = e.Publish("k", Descriptor{Name: "a", Type: "_http._tcp", Port: 1}, nil)
			assert.Equal(t, nsderr.CodeShutdown, nsderr.Classify(err))
		})
	}
}
