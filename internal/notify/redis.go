package notify

import (
	"context"
	"encoding/json"
	"fmt"

	redis "github.com/redis/go-redis/v9"
)

// RedisQueue pushes JSON messages onto a Redis list consumed by the mailer.
type RedisQueue struct {
	client *redis.Client
	queue  string
}

func NewRedisQueue(addr, password string, db int, queue string) *RedisQueue {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisQueue{client: client, queue: queue}
}

func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}

func (q *RedisQueue) Dispatch(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := q.client.LPush(ctx, q.queue, payload).Err(); err != nil {
		return fmt.Errorf("push %s: %w", q.queue, err)
	}
	return nil
}

// Pop removes the oldest queued message. ok is false when the queue is empty.
func (q *RedisQueue) Pop(ctx context.Context) (msg Message, ok bool, err error) {
	val, err := q.client.RPop(ctx, q.queue).Result()
	if err == redis.Nil {
		return Message{}, false, nil
	}
	if err != nil {
		return Message{}, false, err
	}
	if err := json.Unmarshal([]byte(val), &msg); err != nil {
		return Message{}, false, err
	}
	return msg, true, nil
}
