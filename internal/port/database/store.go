// Package database defines the persistence port for request state and
// ingress credentials.
package database

import (
	"context"

	"github.com/percept-io/percept/internal/domain/classify"
	"github.com/percept-io/percept/internal/domain/user"
)

// Store persists request state across the orchestration lifecycle.
// Get must return a snapshot safe for concurrent readers, never a live
// reference shared with the state machine's writer goroutine.
type Store interface {
	CreateState(ctx context.Context, st *classify.State) error
	UpdateState(ctx context.Context, st *classify.State) error
	GetState(ctx context.Context, id string) (*classify.State, error)

	CreateAPIKey(ctx context.Context, key *user.APIKey) error
	GetAPIKey(ctx context.Context, id string) (*user.APIKey, error)
	ListAPIKeys(ctx context.Context) ([]user.APIKey, error)
	RevokeAPIKey(ctx context.Context, id string) error
}
