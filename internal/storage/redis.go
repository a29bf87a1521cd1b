package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/keyfold/passkey/internal/models"
)

// RedisStorage keeps ceremony challenges in Redis with a TTL matching their
// expiry, so abandoned ceremonies clean themselves up and multiple service
// instances share one challenge namespace.
type RedisStorage struct {
	client *redis.Client
}

func NewRedisStorage(client *redis.Client) *RedisStorage {
	return &RedisStorage{client: client}
}

func (r *RedisStorage) SaveChallenge(ctx context.Context, challenge *models.Challenge) error {
	data, err := json.Marshal(challenge)
	if err != nil {
		return fmt.Errorf("failed to marshal challenge: %w", err)
	}

	ttl := time.Until(challenge.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("challenge already expired")
	}

	if err := r.client.Set(ctx, challengeKey(challenge.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save challenge: %w", err)
	}
	return nil
}

// ConsumeChallenge uses GETDEL so the fetch and the delete are one Redis
// command: of any number of racing consumers, across any number of service
// instances, exactly one gets the row.
func (r *RedisStorage) ConsumeChallenge(ctx context.Context, id string) (*models.Challenge, error) {
	data, err := r.client.GetDel(ctx, challengeKey(id)).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume challenge: %w", err)
	}

	var challenge models.Challenge
	if err := json.Unmarshal([]byte(data), &challenge); err != nil {
		return nil, fmt.Errorf("failed to unmarshal challenge: %w", err)
	}
	return &challenge, nil
}

func challengeKey(id string) string {
	return fmt.Sprintf("challenge:%s", id)
}
