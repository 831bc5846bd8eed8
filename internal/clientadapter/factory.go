package clientadapter

import (
	"go.uber.org/zap"

	"github.com/kuiperzone/implink/internal/profile"
)

// Factory builds and disposes Adapters for registry.Registry.
type Factory struct {
	Log *zap.Logger
}

// Build constructs a new Adapter for p.
func (f *Factory) Build(p *profile.ClientProfile) (*Adapter, error) {
	return New(p, f.Log)
}

// Dispose releases a.
func (f *Factory) Dispose(a *Adapter) {
	if a != nil {
		a.Close()
	}
}
