// Package profilestore implements C3 ProfileStore: a pluggable source
// of ClientProfile/RouteProfile snapshots, per spec §4.3.
package profilestore

import "github.com/kuiperzone/implink/internal/profile"

// Store is the minimal capability RefreshController depends on. A
// snapshot is a finite, restartable sequence of new immutable values
// per call — implementations must never hand back a slice shared
// across calls, so a caller mutating one snapshot can never corrupt
// another.
type Store interface {
	// QueryClients returns every known ClientProfile.
	QueryClients() ([]*profile.ClientProfile, error)

	// QueryRoutes returns every RouteProfile whose IsRemoteOriginated
	// flag matches remoteOriginated.
	QueryRoutes(remoteOriginated bool) ([]*profile.RouteProfile, error)
}
