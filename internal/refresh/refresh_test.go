package refresh

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kuiperzone/implink/internal/clientadapter"
	"github.com/kuiperzone/implink/internal/msgrouter"
	"github.com/kuiperzone/implink/internal/profile"
	"github.com/kuiperzone/implink/internal/registry"
)

type fakeStore struct {
	clients    []*profile.ClientProfile
	routes     []*profile.RouteProfile
	clientsErr error
	routesErr  error
}

func (f *fakeStore) QueryClients() ([]*profile.ClientProfile, error) {
	return f.clients, f.clientsErr
}

func (f *fakeStore) QueryRoutes(remoteOriginated bool) ([]*profile.RouteProfile, error) {
	if f.routesErr != nil {
		return nil, f.routesErr
	}
	var out []*profile.RouteProfile
	for _, r := range f.routes {
		if r.IsRemoteOriginated == remoteOriginated {
			out = append(out, r)
		}
	}
	return out, nil
}

func newHarness(store *fakeStore) (*Controller, *ClientRegistry, *RouteRegistry) {
	clientFactory := &clientadapter.Factory{}
	clients := registry.New[*profile.ClientProfile, *clientadapter.Adapter](clientFactory)

	routeFactory := &msgrouter.Factory{Clients: clients}
	routes := registry.New[*profile.RouteProfile, *msgrouter.Router](routeFactory)

	c := New(store, false, clients, routes, clientFactory, routeFactory, 0, nil)
	return c, clients, routes
}

func TestRefreshOnceReconcilesBothRegistries(t *testing.T) {
	store := &fakeStore{
		clients: []*profile.ClientProfile{
			{ID: "A", Kind: profile.KindStub, BaseAddress: "http://a/", TimeoutMS: 1000, Enabled: true},
		},
		routes: []*profile.RouteProfile{
			{ID: "G1", IsRemoteOriginated: false, Enabled: true, Clients: []string{"A"}},
		},
	}
	c, clients, routes := newHarness(store)
	c.RefreshOnce()

	if clients.Count() != 1 {
		t.Fatalf("expected 1 client, got %d", clients.Count())
	}
	if routes.Count() != 1 {
		t.Fatalf("expected 1 route, got %d", routes.Count())
	}
}

func TestRefreshOnceFiltersRoutesByDirection(t *testing.T) {
	store := &fakeStore{
		clients: []*profile.ClientProfile{
			{ID: "A", Kind: profile.KindStub, BaseAddress: "http://a/", TimeoutMS: 1000, Enabled: true},
		},
		routes: []*profile.RouteProfile{
			{ID: "G1", IsRemoteOriginated: true, Enabled: true, Clients: []string{"A"}, Secret: "k"},
			{ID: "G2", IsRemoteOriginated: false, Enabled: true, Clients: []string{"A"}},
		},
	}
	c, _, routes := newHarness(store)
	c.RefreshOnce()

	if routes.Count() != 1 {
		t.Fatalf("expected only the remote-terminated route to be loaded, got %d", routes.Count())
	}
	if _, ok := routes.Get("G2"); !ok {
		t.Fatal("expected G2 to be present")
	}
}

func TestRefreshOnceRemovesAbsentEntries(t *testing.T) {
	store := &fakeStore{
		clients: []*profile.ClientProfile{
			{ID: "A", Kind: profile.KindStub, BaseAddress: "http://a/", TimeoutMS: 1000, Enabled: true},
		},
	}
	c, clients, _ := newHarness(store)
	c.RefreshOnce()
	if clients.Count() != 1 {
		t.Fatalf("expected 1 client after first pass, got %d", clients.Count())
	}

	store.clients = nil
	c.RefreshOnce()
	if clients.Count() != 0 {
		t.Fatalf("expected the client to be removed once absent from the snapshot, got %d", clients.Count())
	}
}

func TestRefreshOnceLeavesRegistryIntactOnQueryError(t *testing.T) {
	store := &fakeStore{
		clients: []*profile.ClientProfile{
			{ID: "A", Kind: profile.KindStub, BaseAddress: "http://a/", TimeoutMS: 1000, Enabled: true},
		},
	}
	c, clients, _ := newHarness(store)
	c.RefreshOnce()
	if clients.Count() != 1 {
		t.Fatal("setup: expected 1 client")
	}

	store.clientsErr = errors.New("boom")
	c.RefreshOnce()
	if clients.Count() != 1 {
		t.Fatalf("expected registry untouched after a query error, got %d entries", clients.Count())
	}
}

// TestRunWithZeroIntervalDoesNotPanic guards the documented "0 disables
// periodic refresh" configuration (spec §4.7): time.NewTicker(0) would
// panic, so Run must never construct one when interval <= 0.
func TestRunWithZeroIntervalDoesNotPanic(t *testing.T) {
	store := &fakeStore{
		clients: []*profile.ClientProfile{
			{ID: "A", Kind: profile.KindStub, BaseAddress: "http://a/", TimeoutMS: 1000, Enabled: true},
		},
	}
	c, clients, _ := newHarness(store)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	c.TriggerNow()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after ctx cancellation")
	}

	if clients.Count() != 1 {
		t.Fatalf("expected the client registry to have been reconciled, got %d entries", clients.Count())
	}
}
