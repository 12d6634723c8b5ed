package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"eventroom-backend/internal/room"
)

// RedisClient wraps the Redis client for chat archiving
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient creates a new Redis client
func NewRedisClient(addr, password string, db int) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}

	log.Printf("[Redis] Connected to %s", addr)
	return &RedisClient{client: client}, nil
}

func chatKey(roomKey string) string {
	return "room:" + roomKey + ":chat"
}

// AppendChat adds a chat message to the room's list
func (r *RedisClient) AppendChat(ctx context.Context, roomKey string, msg room.ChatMessage, ttl time.Duration) error {
	key := chatKey(roomKey)

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	// RPUSH to append to list
	if err := r.client.RPush(ctx, key, data).Err(); err != nil {
		return fmt.Errorf("append chat %s: %w", roomKey, err)
	}

	if ttl > 0 {
		r.client.Expire(ctx, key, ttl)
	}

	return nil
}

// GetChat retrieves all archived chat messages for a room
func (r *RedisClient) GetChat(ctx context.Context, roomKey string) ([]room.ChatMessage, error) {
	results, err := r.client.LRange(ctx, chatKey(roomKey), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	return decodeChat(results), nil
}

// GetRecentChat retrieves the last N chat messages for a room
func (r *RedisClient) GetRecentChat(ctx context.Context, roomKey string, count int64) ([]room.ChatMessage, error) {
	if count <= 0 {
		return r.GetChat(ctx, roomKey)
	}

	results, err := r.client.LRange(ctx, chatKey(roomKey), -count, -1).Result()
	if err != nil {
		return nil, err
	}
	return decodeChat(results), nil
}

// ChatCount returns the number of archived messages in a room
func (r *RedisClient) ChatCount(ctx context.Context, roomKey string) (int64, error) {
	return r.client.LLen(ctx, chatKey(roomKey)).Result()
}

// DeleteRoom removes the archived chat for a room
func (r *RedisClient) DeleteRoom(ctx context.Context, roomKey string) error {
	return r.client.Del(ctx, chatKey(roomKey)).Err()
}

// Close closes the Redis connection
func (r *RedisClient) Close() error {
	return r.client.Close()
}

// Health checks if Redis is healthy
func (r *RedisClient) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// decodeChat 깨진 항목은 건너뛴다
func decodeChat(results []string) []room.ChatMessage {
	messages := make([]room.ChatMessage, 0, len(results))
	for _, data := range results {
		var m room.ChatMessage
		if err := json.Unmarshal([]byte(data), &m); err != nil {
			continue
		}
		messages = append(messages, m)
	}
	return messages
}
