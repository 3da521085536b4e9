package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/percept-io/percept/internal/domain"
	"github.com/percept-io/percept/internal/domain/classify"
	"github.com/percept-io/percept/internal/domain/user"
	"github.com/percept-io/percept/internal/port/database"
)

// Store implements database.Store using PostgreSQL. Request state is
// persisted whole as JSONB after every phase transition; the status column
// is duplicated out of the document for indexed queries.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// --- Request state ---

func (s *Store) CreateState(ctx context.Context, st *classify.State) error {
	doc, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO requests (id, status, state, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		st.Request.ID, string(st.Status), doc, st.CreatedAt, st.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create request %s: %w", st.Request.ID, err)
	}
	return nil
}

func (s *Store) UpdateState(ctx context.Context, st *classify.State) error {
	doc, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE requests SET status = $2, state = $3, updated_at = $4 WHERE id = $1`,
		st.Request.ID, string(st.Status), doc, st.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update request %s: %w", st.Request.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update request %s: %w", st.Request.ID, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) GetState(ctx context.Context, id string) (*classify.State, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx, `SELECT state FROM requests WHERE id = $1`, id).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get request %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get request %s: %w", id, err)
	}

	var st classify.State
	if err := json.Unmarshal(doc, &st); err != nil {
		return nil, fmt.Errorf("unmarshal request %s: %w", id, err)
	}
	return &st, nil
}

// --- API keys ---

func (s *Store) CreateAPIKey(ctx context.Context, key *user.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, name, secret_hash, created_at) VALUES ($1, $2, $3, $4)`,
		key.ID, key.Name, key.SecretHash, key.CreatedAt)
	if err != nil {
		return fmt.Errorf("create api key %s: %w", key.ID, err)
	}
	return nil
}

func (s *Store) GetAPIKey(ctx context.Context, id string) (*user.APIKey, error) {
	var k user.APIKey
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, secret_hash, created_at, revoked_at FROM api_keys WHERE id = $1`, id,
	).Scan(&k.ID, &k.Name, &k.SecretHash, &k.CreatedAt, &k.RevokedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get api key %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get api key %s: %w", id, err)
	}
	return &k, nil
}

func (s *Store) ListAPIKeys(ctx context.Context) ([]user.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, secret_hash, created_at, revoked_at FROM api_keys ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []user.APIKey
	for rows.Next() {
		var k user.APIKey
		if err := rows.Scan(&k.ID, &k.Name, &k.SecretHash, &k.CreatedAt, &k.RevokedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *Store) RevokeAPIKey(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET revoked_at = now() WHERE id = $1 AND revoked_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("revoke api key %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("revoke api key %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

var _ database.Store = (*Store)(nil)
