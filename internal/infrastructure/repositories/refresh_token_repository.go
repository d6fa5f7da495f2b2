package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/you/accountsvc/domain"
	"github.com/you/accountsvc/internal/infrastructure/cache"
)

// RefreshTokenRepositoryImpl implements domain.RefreshTokenRepository using Redis
type RefreshTokenRepositoryImpl struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRefreshTokenRepository creates a new refresh token repository
func NewRefreshTokenRepository(client *redis.Client, ttl time.Duration) domain.RefreshTokenRepository {
	return &RefreshTokenRepositoryImpl{
		client: client,
		ttl:    ttl,
	}
}

// Create implements domain.RefreshTokenRepository
func (r *RefreshTokenRepositoryImpl) Create(ctx context.Context, token *domain.RefreshToken) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal refresh token: %w", err)
	}

	return r.client.Set(ctx, cache.RefreshTokenKey(token.UserID, token.ID), data, r.ttl).Err()
}

// Find implements domain.RefreshTokenRepository
func (r *RefreshTokenRepositoryImpl) Find(ctx context.Context, userID, tokenID string) (*domain.RefreshToken, error) {
	key := cache.RefreshTokenKey(userID, tokenID)
	data, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, err
	}

	var token domain.RefreshToken
	if err := json.Unmarshal([]byte(data), &token); err != nil {
		return nil, fmt.Errorf("failed to unmarshal refresh token: %w", err)
	}

	if token.ExpiresAt.Before(time.Now()) {
		r.client.Del(ctx, key)
		return nil, domain.ErrSessionExpired
	}

	return &token, nil
}

// Revoke deletes one record. It returns ErrSessionNotFound when the record
// was already gone, so concurrent rotations of the same token have one winner.
func (r *RefreshTokenRepositoryImpl) Revoke(ctx context.Context, userID, tokenID string) error {
	n, err := r.client.Del(ctx, cache.RefreshTokenKey(userID, tokenID)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

// RevokeAll removes every refresh token record of a user
func (r *RefreshTokenRepositoryImpl) RevokeAll(ctx context.Context, userID string) error {
	iter := r.client.Scan(ctx, 0, cache.RefreshTokenPattern(userID), 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan refresh tokens: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, keys...).Err()
}
