// Package registry defines the worker discovery port.
package registry

import (
	"context"
	"errors"

	"github.com/percept-io/percept/internal/domain/worker"
)

// ErrLookup indicates the registry backend itself failed. It is distinct
// from an empty resolution, which is a valid non-fatal outcome in dynamic
// mode (workers may simply be down).
var ErrLookup = errors.New("registry lookup failed")

// Registry resolves a classification domain to the workers currently
// serving it. Resolution is side-effect free and idempotent; callers must
// re-resolve on every iteration rather than cache, because worker health
// and registry contents may change between replans.
type Registry interface {
	// Resolve returns the targets for one domain, ordered by preference.
	// An empty slice with a nil error means no worker is currently
	// available; an error wrapping ErrLookup means the lookup itself failed.
	Resolve(ctx context.Context, d worker.Domain) ([]worker.Target, error)

	// Records returns every worker record currently visible, for the
	// registry inspection endpoint.
	Records(ctx context.Context) ([]worker.Record, error)
}
