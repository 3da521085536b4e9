package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/percept-io/percept/internal/config"
	"github.com/percept-io/percept/internal/domain/user"
	"github.com/percept-io/percept/internal/port/database"
)

// ErrInvalidKey is returned for any key that fails authentication; callers
// never learn whether the key was unknown, malformed, or revoked.
var ErrInvalidKey = errors.New("invalid api key")

// AuthService issues and validates ingress API keys. Keys have the form
// pk_<id>_<secret>; only the bcrypt hash of the secret is stored.
type AuthService struct {
	store database.Store
	cfg   config.Auth
}

// NewAuthService creates an API key service.
func NewAuthService(store database.Store, cfg config.Auth) *AuthService {
	return &AuthService{store: store, cfg: cfg}
}

// CreateKey mints a new key and returns the record plus the plaintext key.
// The plaintext is not recoverable afterwards.
func (s *AuthService) CreateKey(ctx context.Context, name string) (*user.APIKey, string, error) {
	if name == "" {
		return nil, "", errors.New("key name is required")
	}

	id := uuid.NewString()[:8]
	secret, err := randomSecret(24)
	if err != nil {
		return nil, "", fmt.Errorf("generate secret: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), s.cfg.BcryptCost)
	if err != nil {
		return nil, "", fmt.Errorf("hash secret: %w", err)
	}

	key := &user.APIKey{
		ID:         id,
		Name:       name,
		SecretHash: string(hash),
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.store.CreateAPIKey(ctx, key); err != nil {
		return nil, "", fmt.Errorf("store key: %w", err)
	}

	return key, "pk_" + id + "_" + secret, nil
}

// ImportKey stores a caller-supplied secret under a new key ID. Used by the
// admin CLI to provision pre-agreed credentials.
func (s *AuthService) ImportKey(ctx context.Context, name, secret string) (*user.APIKey, string, error) {
	if name == "" {
		return nil, "", errors.New("key name is required")
	}
	if len(secret) < 16 {
		return nil, "", errors.New("secret must be at least 16 characters")
	}

	id := uuid.NewString()[:8]
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), s.cfg.BcryptCost)
	if err != nil {
		return nil, "", fmt.Errorf("hash secret: %w", err)
	}

	key := &user.APIKey{
		ID:         id,
		Name:       name,
		SecretHash: string(hash),
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.store.CreateAPIKey(ctx, key); err != nil {
		return nil, "", fmt.Errorf("store key: %w", err)
	}
	return key, "pk_" + id + "_" + secret, nil
}

// Validate checks a presented key against the store.
func (s *AuthService) Validate(ctx context.Context, presented string) (*user.APIKey, error) {
	id, secret, ok := splitKey(presented)
	if !ok {
		return nil, ErrInvalidKey
	}

	key, err := s.store.GetAPIKey(ctx, id)
	if err != nil {
		return nil, ErrInvalidKey
	}
	if !key.Active() {
		return nil, ErrInvalidKey
	}
	if err := bcrypt.CompareHashAndPassword([]byte(key.SecretHash), []byte(secret)); err != nil {
		return nil, ErrInvalidKey
	}
	return key, nil
}

// ListKeys returns every stored key record.
func (s *AuthService) ListKeys(ctx context.Context) ([]user.APIKey, error) {
	return s.store.ListAPIKeys(ctx)
}

// RevokeKey marks a key as revoked.
func (s *AuthService) RevokeKey(ctx context.Context, id string) error {
	return s.store.RevokeAPIKey(ctx, id)
}

func splitKey(presented string) (id, secret string, ok bool) {
	rest, found := strings.CutPrefix(presented, "pk_")
	if !found {
		return "", "", false
	}
	id, secret, found = strings.Cut(rest, "_")
	if !found || id == "" || secret == "" {
		return "", "", false
	}
	return id, secret, true
}

func randomSecret(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
