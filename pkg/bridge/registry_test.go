package bridge

import (
	"testing"

	"github.com/nsd-bridge/nsd-go/pkg/discovery"
	"github.com/nsd-bridge/nsd-go/pkg/nsderr"
)

func TestRegistryKeysAreNotReused(t *testing.T) {
	r := newRegistry()

	first, err := r.beginDiscovery("h1", "_http._tcp")
	if err != nil {
		t.Fatalf("beginDiscovery: %v", err)
	}
	if !r.endDiscovery(first) {
		t.Fatal("expected first session to be removed")
	}

	second, err := r.beginDiscovery("h1", "_http._tcp")
	if err != nil {
		t.Fatalf("beginDiscovery: %v", err)
	}
	if first.key == second.key {
		t.Fatalf("key %q reused for a new session", first.key)
	}
	if r.discoveryByKey(first.key) != nil {
		t.Error("old key still resolves to a session")
	}
	if r.discoveryByKey(second.key) != second {
		t.Error("new key does not resolve to the new session")
	}

	// Removing the old session again must not touch the new one.
	if r.endDiscovery(first) {
		t.Error("expected second removal of old session to report false")
	}
	if s, err := r.discovery("h1"); err != nil || s != second {
		t.Errorf("discovery(h1) = %v, %v; want new session", s, err)
	}
}

func TestRegistryHandleScopedPerKind(t *testing.T) {
	r := newRegistry()
	svc := discovery.Descriptor{Name: "svc", Type: "_http._tcp", Port: 8080}

	if _, err := r.beginDiscovery("h1", "_http._tcp"); err != nil {
		t.Fatalf("beginDiscovery: %v", err)
	}
	if _, err := r.beginResolve("h1", svc); err != nil {
		t.Fatalf("beginResolve: %v", err)
	}
	if _, err := r.beginRegistration("h1", svc); err != nil {
		t.Fatalf("beginRegistration: %v", err)
	}

	_, err := r.beginRegistration("h1", svc)
	if got := nsderr.CauseOf(err); got != nsderr.AlreadyActive {
		t.Errorf("duplicate registration cause = %v, want %v", got, nsderr.AlreadyActive)
	}
	_, err = r.registration("h2")
	if got := nsderr.CauseOf(err); got != nsderr.IllegalArgument {
		t.Errorf("unknown handle cause = %v, want %v", got, nsderr.IllegalArgument)
	}
	_, err = r.discovery("")
	if got := nsderr.CauseOf(err); got != nsderr.IllegalArgument {
		t.Errorf("empty handle cause = %v, want %v", got, nsderr.IllegalArgument)
	}
}

func TestRegistrySnapshotOrder(t *testing.T) {
	r := newRegistry()
	svc := discovery.Descriptor{Name: "svc", Type: "_http._tcp", Port: 8080}

	for _, h := range []string{"b", "a"} {
		if _, err := r.beginRegistration(h, svc); err != nil {
			t.Fatalf("beginRegistration(%s): %v", h, err)
		}
		if _, err := r.beginDiscovery(h, "_ipp._tcp"); err != nil {
			t.Fatalf("beginDiscovery(%s): %v", h, err)
		}
	}

	snap := r.snapshot()
	want := []struct {
		kind   OpKind
		handle string
	}{
		{OpDiscovery, "a"},
		{OpDiscovery, "b"},
		{OpRegistration, "a"},
		{OpRegistration, "b"},
	}
	if len(snap) != len(want) {
		t.Fatalf("snapshot has %d entries, want %d", len(snap), len(want))
	}
	for i, w := range want {
		if snap[i].Kind != w.kind || snap[i].Handle != w.handle {
			t.Errorf("snapshot[%d] = %s/%s, want %s/%s", i, snap[i].Kind, snap[i].Handle, w.kind, w.handle)
		}
		if snap[i].State != "idle" {
			t.Errorf("snapshot[%d] state = %q, want idle", i, snap[i].State)
		}
	}
	if len(snap[0].Found) != 0 {
		t.Errorf("expected no discovered services, got %v", snap[0].Found)
	}
}
