package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fabgilson/scrumboard-live/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

const tokenKeyPrefix = "auth:token:"

// tokenRecord is written by the application that issues tokens. Only a hash of the token
// appears in the key.
type tokenRecord struct {
	Subject string   `json:"sub"`
	Roles   []string `json:"roles,omitempty"`
}

// TokenStore resolves bearer tokens against records in Redis. It implements
// domain.IdentityResolver.
type TokenStore struct {
	rdb *goredis.Client
}

func NewTokenStore(rdb *goredis.Client) *TokenStore {
	return &TokenStore{rdb: rdb}
}

func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return tokenKeyPrefix + hex.EncodeToString(sum[:])
}

// ResolveIdentityForToken returns an unauthenticated identity for unknown or expired tokens.
func (s *TokenStore) ResolveIdentityForToken(ctx context.Context, token string) (domain.Identity, error) {
	data, err := s.rdb.Get(ctx, tokenKey(token)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return domain.Identity{}, nil
	}
	if err != nil {
		return domain.Identity{}, fmt.Errorf("failed to get token: %w", err)
	}

	var rec tokenRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return domain.Identity{}, fmt.Errorf("failed to decode token record: %w", err)
	}

	roles := make([]domain.GlobalRole, 0, len(rec.Roles))
	for _, r := range rec.Roles {
		roles = append(roles, domain.GlobalRole(r))
	}
	return domain.Identity{Authenticated: true, Subject: rec.Subject, Roles: roles}, nil
}

// Store writes a token record. ttl <= 0 stores it without expiry.
func (s *TokenStore) Store(ctx context.Context, token, subject string, roles []domain.GlobalRole, ttl time.Duration) error {
	rec := tokenRecord{Subject: subject}
	for _, r := range roles {
		rec.Roles = append(rec.Roles, string(r))
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode token record: %w", err)
	}
	if ttl < 0 {
		ttl = 0
	}
	if err := s.rdb.Set(ctx, tokenKey(token), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}
	return nil
}

func (s *TokenStore) Revoke(ctx context.Context, token string) error {
	if err := s.rdb.Del(ctx, tokenKey(token)).Err(); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}
