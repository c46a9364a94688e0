// Package revocation keeps a deny list for issued session tokens. Sessions
// are stateless, so revocation is best-effort by design: logout denies one
// token id, revoke-all sets a per-user issued-before watermark, and entries
// expire with the token validity window so the list stays small.
package revocation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const (
	jtiKeyPrefix  = "opticore:revoked:jti:"
	userKeyPrefix = "opticore:revoked:user:"
)

// Store is a redis-backed token deny list. A nil *Store disables revocation,
// which keeps verification purely stateless.
type Store struct {
	client *redis.Client
	window time.Duration
}

// NewStore connects a deny list to redis. window should match the token
// validity window; entries older than it can never match a live token.
func NewStore(addr string, window time.Duration) *Store {
	client := redis.NewClient(&redis.Options{Addr: addr})
	return &Store{client: client, window: window}
}

// Close releases the redis connection.
func (s *Store) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

// Revoke denies a single token id until the validity window elapses.
func (s *Store) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	if s == nil || s.client == nil {
		return nil
	}
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	if errSet := s.client.Set(ctx, jtiKeyPrefix+jti, "1", ttl).Err(); errSet != nil {
		return fmt.Errorf("revocation: revoke %s: %w", jti, errSet)
	}
	return nil
}

// RevokeAllBefore denies every token of the user issued at or before t.
func (s *Store) RevokeAllBefore(ctx context.Context, userID uint64, t time.Time) error {
	if s == nil || s.client == nil {
		return nil
	}
	key := userKeyPrefix + strconv.FormatUint(userID, 10)
	value := strconv.FormatInt(t.UTC().Unix(), 10)
	if errSet := s.client.Set(ctx, key, value, s.window).Err(); errSet != nil {
		return fmt.Errorf("revocation: revoke all for user %d: %w", userID, errSet)
	}
	return nil
}

// IsRevoked reports whether a token was denied, either individually or by a
// per-user watermark. Redis outages degrade to accepting the token: the
// baseline guarantee is stateless verification, and a hard dependency on
// redis would take down every tenant at once.
func (s *Store) IsRevoked(ctx context.Context, jti string, userID uint64, issuedAt time.Time) bool {
	if s == nil || s.client == nil {
		return false
	}

	if _, err := s.client.Get(ctx, jtiKeyPrefix+jti).Result(); err == nil {
		return true
	} else if err != redis.Nil {
		log.WithError(err).Warn("revocation: jti lookup failed")
		return false
	}

	if userID == 0 {
		return false
	}
	value, err := s.client.Get(ctx, userKeyPrefix+strconv.FormatUint(userID, 10)).Result()
	if err == redis.Nil {
		return false
	}
	if err != nil {
		log.WithError(err).Warn("revocation: watermark lookup failed")
		return false
	}
	watermark, errParse := strconv.ParseInt(value, 10, 64)
	if errParse != nil {
		return false
	}
	return coveredByWatermark(issuedAt, watermark)
}

// coveredByWatermark reports whether a token issued at the given time falls
// under an issued-before watermark. Tokens issued strictly after the
// watermark stay valid.
func coveredByWatermark(issuedAt time.Time, watermark int64) bool {
	return !issuedAt.UTC().After(time.Unix(watermark, 0).UTC())
}
