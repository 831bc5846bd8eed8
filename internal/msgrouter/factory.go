package msgrouter

import (
	"go.uber.org/zap"

	"github.com/kuiperzone/implink/internal/clientadapter"
	"github.com/kuiperzone/implink/internal/dispatch"
	"github.com/kuiperzone/implink/internal/metrics"
	"github.com/kuiperzone/implink/internal/noncecache"
	"github.com/kuiperzone/implink/internal/profile"
)

// ClientLookup is the minimal capability Factory needs from a
// ClientRegistry: resolving a name to its live adapter.
type ClientLookup interface {
	Get(id string) (*clientadapter.Adapter, bool)
}

// Factory builds and disposes Routers for registry.Registry. Routers
// never own the adapters they reference (spec §3), so Dispose is a
// no-op — disposal of clients is the ClientRegistry's job alone.
type Factory struct {
	Clients       ClientLookup
	WaitOnForward bool
	Dispatcher    *dispatch.Pool
	Log           *zap.Logger
	Metrics       *metrics.Metrics
	NonceCache    *noncecache.Cache // nil unless Config.NonceCache.Enabled, per §4.10
}

// Build constructs a new Router for p.
func (f *Factory) Build(p *profile.RouteProfile) (*Router, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return New(p, f.Clients.Get, f.WaitOnForward, f.Dispatcher, f.Log, f.Metrics, f.NonceCache), nil
}

// Dispose intentionally does nothing: a replaced Router's adapters are
// owned by the ClientRegistry and may still be referenced by other
// routes, per spec §4.6.
func (f *Factory) Dispose(*Router) {}
