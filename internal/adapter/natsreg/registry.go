// Package natsreg implements worker discovery over a NATS JetStream
// KeyValue bucket. Workers publish their record under their own ID and
// refresh it as a heartbeat; the bucket TTL expires entries from workers
// that stop heartbeating, so absence means unavailable.
package natsreg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/percept-io/percept/internal/domain/worker"
	"github.com/percept-io/percept/internal/port/registry"
)

// Registry resolves workers from a JetStream KV bucket of heartbeat records.
type Registry struct {
	kv     jetstream.KeyValue
	maxAge time.Duration
	logger *slog.Logger
}

// New creates a KV-backed registry. Records older than maxAge are treated
// as stale and skipped even if the bucket has not expired them yet.
func New(kv jetstream.KeyValue, maxAge time.Duration, logger *slog.Logger) *Registry {
	return &Registry{kv: kv, maxAge: maxAge, logger: logger}
}

// Bucket provisions the worker heartbeat bucket, creating it if missing.
func Bucket(ctx context.Context, js jetstream.JetStream, name string, ttl time.Duration) (jetstream.KeyValue, error) {
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket: name,
		TTL:    ttl,
	})
	if err != nil {
		return nil, fmt.Errorf("create worker bucket %q: %w", name, err)
	}
	return kv, nil
}

// Resolve returns every live worker serving the given domain.
func (r *Registry) Resolve(ctx context.Context, d worker.Domain) ([]worker.Target, error) {
	records, err := r.live(ctx)
	if err != nil {
		return nil, err
	}
	var targets []worker.Target
	for _, rec := range records {
		if rec.Domain == d {
			targets = append(targets, rec.Target())
		}
	}
	return targets, nil
}

// Records returns every live worker record in the bucket.
func (r *Registry) Records(ctx context.Context) ([]worker.Record, error) {
	return r.live(ctx)
}

// live lists the bucket and decodes every fresh record. Individual bad or
// stale entries are skipped rather than failing the whole resolution; only
// backend errors abort.
func (r *Registry) live(ctx context.Context) ([]worker.Record, error) {
	keys, err := r.kv.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: list worker bucket: %w", registry.ErrLookup, err)
	}

	cutoff := time.Now().Add(-r.maxAge)
	records := make([]worker.Record, 0, len(keys))
	for _, key := range keys {
		entry, err := r.kv.Get(ctx, key)
		if err != nil {
			if errors.Is(err, jetstream.ErrKeyNotFound) {
				continue // expired between Keys and Get
			}
			return nil, fmt.Errorf("%w: get worker %q: %w", registry.ErrLookup, key, err)
		}
		var rec worker.Record
		if err := json.Unmarshal(entry.Value(), &rec); err != nil {
			r.logger.Warn("skipping malformed worker record", "key", key, "error", err)
			continue
		}
		if !rec.Domain.Valid() {
			r.logger.Warn("skipping worker record with unknown domain", "key", key, "domain", rec.Domain)
			continue
		}
		if r.maxAge > 0 && !rec.LastHeartbeat.IsZero() && rec.LastHeartbeat.Before(cutoff) {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

var _ registry.Registry = (*Registry)(nil)
