package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MegaGrindStone/talkback/internal/models"
	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "talkback:message:"

// Redis implements the MessageStore interface on a Redis server, one key per message. Keys expire after
// ttl so abandoned conversations do not pile up; zero keeps them forever.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis connects to the server at url (redis://...) and checks the connection.
func NewRedis(ctx context.Context, url string, ttl time.Duration) (Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return Redis{}, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return Redis{}, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return Redis{client: client, ttl: ttl}, nil
}

func (r Redis) Message(ctx context.Context, id string) (models.Message, error) {
	v, err := r.client.Get(ctx, redisKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Message{}, ErrMessageNotFound
	}
	if err != nil {
		return models.Message{}, fmt.Errorf("failed to get message: %w", err)
	}

	var message models.Message
	if err := sonic.Unmarshal(v, &message); err != nil {
		return models.Message{}, fmt.Errorf("failed to unmarshal message: %w", err)
	}
	return message, nil
}

func (r Redis) AddMessage(ctx context.Context, message models.Message) error {
	v, err := sonic.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := r.client.Set(ctx, redisKeyPrefix+message.ID, v, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set message: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (r Redis) Close() error {
	return r.client.Close()
}
