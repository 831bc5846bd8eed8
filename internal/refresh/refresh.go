// Package refresh implements C8 RefreshController: periodic and
// on-demand reconciliation of the two registries against ProfileStore
// snapshots, per spec §4.8. Grounded on the teacher's config.Watcher
// ticker/debounce discipline, generalized to two independent triggers
// (a ticker and an on-demand channel) instead of one fsnotify source.
package refresh

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kuiperzone/implink/internal/clientadapter"
	"github.com/kuiperzone/implink/internal/msgrouter"
	"github.com/kuiperzone/implink/internal/profile"
	"github.com/kuiperzone/implink/internal/profilestore"
	"github.com/kuiperzone/implink/internal/registry"
)

// ClientRegistry is the subset of registry.Registry Controller needs
// for the client side.
type ClientRegistry = registry.Registry[*profile.ClientProfile, *clientadapter.Adapter]

// RouteRegistry is the subset of registry.Registry Controller needs
// for the route side.
type RouteRegistry = registry.Registry[*profile.RouteProfile, *msgrouter.Router]

// Controller periodically (and on demand) reconciles ClientRegistry
// and RouterRegistry against a ProfileStore snapshot, per spec §4.8.
type Controller struct {
	store            profilestore.Store
	remoteOriginated bool
	clients          *ClientRegistry
	routes           *RouteRegistry
	clientFactory    *clientadapter.Factory
	routeFactory     *msgrouter.Factory
	interval         time.Duration
	log              *zap.Logger
	trigger          chan struct{}
}

// New builds a Controller. remoteOriginated selects which half of the
// RouteProfile snapshot this instance's direction consumes (spec §4.2).
func New(
	store profilestore.Store,
	remoteOriginated bool,
	clients *ClientRegistry,
	routes *RouteRegistry,
	clientFactory *clientadapter.Factory,
	routeFactory *msgrouter.Factory,
	interval time.Duration,
	log *zap.Logger,
) *Controller {
	return &Controller{
		store:            store,
		remoteOriginated: remoteOriginated,
		clients:          clients,
		routes:           routes,
		clientFactory:    clientFactory,
		routeFactory:     routeFactory,
		interval:         interval,
		log:              log,
		trigger:          make(chan struct{}, 1),
	}
}

// TriggerNow requests an out-of-cycle reconciliation, e.g. from
// /UpdateRouting. It never blocks: a pending request already queued is
// enough to cover this one too.
func (c *Controller) TriggerNow() {
	select {
	case c.trigger <- struct{}{}:
	default:
	}
}

// Run blocks, reconciling once immediately and then on every tick of
// interval or TriggerNow call, until ctx is cancelled. interval <= 0
// disables the periodic tick per spec §4.7; only TriggerNow and the
// initial pass drive reconciliation in that case.
func (c *Controller) Run(ctx context.Context) {
	c.RefreshOnce()

	var tickC <-chan time.Time
	if c.interval > 0 {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		tickC = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-tickC:
			c.RefreshOnce()
		case <-c.trigger:
			c.RefreshOnce()
		}
	}
}

// RefreshOnce performs a single reconciliation pass. A query error from
// the store for either snapshot leaves that registry untouched and is
// logged, per spec §4.3; the other registry still reconciles.
func (c *Controller) RefreshOnce() {
	clientSnapshot, err := c.store.QueryClients()
	if err != nil {
		if c.log != nil {
			c.log.Warn("profilestore query failed; client registry left intact", zap.Error(err))
		}
	} else {
		removed, buildErrs := c.clients.UpsertMany(clientSnapshot)
		for _, a := range removed {
			c.clientFactory.Dispose(a)
		}
		c.logBuildErrs("client", buildErrs)
	}

	routeSnapshot, err := c.store.QueryRoutes(c.remoteOriginated)
	if err != nil {
		if c.log != nil {
			c.log.Warn("profilestore query failed; route registry left intact", zap.Error(err))
		}
		return
	}

	removed, buildErrs := c.routes.UpsertMany(routeSnapshot)
	for _, r := range removed {
		c.routeFactory.Dispose(r)
	}
	c.logBuildErrs("route", buildErrs)
}

func (c *Controller) logBuildErrs(kind string, errs []error) {
	if c.log == nil {
		return
	}
	for _, e := range errs {
		c.log.Warn("profile failed to build; previous entry retained", zap.String("kind", kind), zap.Error(e))
	}
}
