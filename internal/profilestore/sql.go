package profilestore

import (
	"errors"

	"github.com/kuiperzone/implink/internal/profile"
)

// ErrSQLBackendUnconfigured is returned by every SQLStore method. The
// relational backend named by config's DatabaseKind is an external
// collaborator (spec §1): wiring a real driver and schema is outside
// this router's scope, but the Store shape it must satisfy is fixed
// here so a concrete implementation can be dropped in without touching
// RefreshController.
var ErrSQLBackendUnconfigured = errors.New("profilestore: sql backend is not implemented; configure the file backend or supply a Store")

// SQLStore is a documented placeholder satisfying Store for a
// relational DatabaseKind configuration. It always fails, naming a
// backend that an operator must still choose to build or vendor.
type SQLStore struct {
	DSN string
}

func NewSQLStore(dsn string) *SQLStore { return &SQLStore{DSN: dsn} }

func (s *SQLStore) QueryClients() ([]*profile.ClientProfile, error) {
	return nil, ErrSQLBackendUnconfigured
}

func (s *SQLStore) QueryRoutes(bool) ([]*profile.RouteProfile, error) {
	return nil, ErrSQLBackendUnconfigured
}
