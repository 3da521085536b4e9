// Package staticreg implements worker discovery from a fixed table in the
// configuration file. It is the default registry mode and needs no external
// infrastructure.
package staticreg

import (
	"context"
	"fmt"
	"time"

	"github.com/percept-io/percept/internal/config"
	"github.com/percept-io/percept/internal/domain/worker"
	"github.com/percept-io/percept/internal/port/registry"
)

// Registry resolves workers from an immutable in-memory table built at
// startup. Lookups never fail once construction succeeds.
type Registry struct {
	byDomain map[worker.Domain][]worker.Target
	all      []worker.Record
}

// New builds a registry from the configured worker table.
func New(workers []config.StaticWorker) (*Registry, error) {
	r := &Registry{byDomain: make(map[worker.Domain][]worker.Target)}
	now := time.Now()
	for _, w := range workers {
		d := worker.Domain(w.Domain)
		if !d.Valid() {
			return nil, fmt.Errorf("static worker %q: unknown domain %q", w.ID, w.Domain)
		}
		t := worker.Target{
			ID:           w.ID,
			Domain:       d,
			Endpoint:     w.Endpoint,
			Organization: w.Organization,
		}
		r.byDomain[d] = append(r.byDomain[d], t)
		r.all = append(r.all, worker.Record{
			ID:            w.ID,
			Domain:        d,
			Endpoint:      w.Endpoint,
			Organization:  w.Organization,
			LastHeartbeat: now,
		})
	}
	return r, nil
}

// Resolve returns the workers serving the given domain. An empty result
// with a nil error means no worker covers the domain.
func (r *Registry) Resolve(_ context.Context, d worker.Domain) ([]worker.Target, error) {
	targets := r.byDomain[d]
	out := make([]worker.Target, len(targets))
	copy(out, targets)
	return out, nil
}

// Records lists every configured worker.
func (r *Registry) Records(_ context.Context) ([]worker.Record, error) {
	out := make([]worker.Record, len(r.all))
	copy(out, r.all)
	return out, nil
}

var _ registry.Registry = (*Registry)(nil)
