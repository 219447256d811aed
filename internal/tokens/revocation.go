package tokens

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrRevoked = errors.New("token revoked")

// Revocations is a Redis denylist of service token ids (the jti claim).
// A nil *Revocations revokes nothing.
type Revocations struct {
	client *redis.Client
}

// NewRevocations returns nil when client is nil.
func NewRevocations(client *redis.Client) *Revocations {
	if client == nil {
		return nil
	}
	return &Revocations{client: client}
}

func revocationKey(jti string) string { return "revoked:token:" + jti }

// Revoke denies the token id for ttl, which should cover the token's remaining lifetime.
func (r *Revocations) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if r == nil {
		return errors.New("token revocation needs Redis")
	}
	return r.client.Set(ctx, revocationKey(jti), "1", ttl).Err()
}

// IsRevoked reports whether the token id is on the denylist.
func (r *Revocations) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if r == nil || jti == "" {
		return false, nil
	}
	n, err := r.client.Exists(ctx, revocationKey(jti)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Revoke denies a valid token for the rest of its lifetime.
func (v *Verifier) Revoke(ctx context.Context, raw string) (string, error) {
	tok, err := v.Verify(ctx, raw)
	if err != nil {
		return "", err
	}
	var claims struct {
		ID  string `json:"jti"`
		Exp int64  `json:"exp"`
	}
	if err := tok.Claims(&claims); err != nil {
		return "", err
	}
	if claims.ID == "" {
		return "", errors.New("token has no jti")
	}
	ttl := time.Until(time.Unix(claims.Exp, 0)) + time.Minute
	return claims.ID, v.revoked.Revoke(ctx, claims.ID, ttl)
}
