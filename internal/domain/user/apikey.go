// Package user defines ingress API key records.
package user

import "time"

// APIKey is a stored ingress credential. Only the bcrypt hash of the
// secret is persisted; the plaintext is shown once at creation.
type APIKey struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	SecretHash string     `json:"-"`
	CreatedAt  time.Time  `json:"created_at"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
}

// Active reports whether the key may authenticate requests.
func (k APIKey) Active() bool { return k.RevokedAt == nil }
