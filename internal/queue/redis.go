package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultRedisKey = "intake:analyses"

// redisCmdable is the subset of *redis.Client the queue uses.
type redisCmdable interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	BLMove(ctx context.Context, source, destination, srcpos, destpos string, timeout time.Duration) *redis.StringCmd
	LMove(ctx context.Context, source, destination, srcpos, destpos string) *redis.StringCmd
	LRem(ctx context.Context, key string, count int64, value interface{}) *redis.IntCmd
}

// Delivery is a message taken from the queue but not yet acknowledged.
type Delivery struct {
	Body string
}

// Redis is a reliable list queue. Producers LPUSH onto the pending list; consumers BLMOVE the
// oldest entry onto a processing list and LREM it once handled, so a crashed worker's messages
// can be put back with Recover.
type Redis struct {
	client     redisCmdable
	pending    string
	processing string
}

// NewRedis creates a queue stored under key and key+":processing".
func NewRedis(client redisCmdable, key string) *Redis {
	if key == "" {
		key = DefaultRedisKey
	}
	return &Redis{client: client, pending: key, processing: key + ":processing"}
}

// Send pushes msg onto the pending list.
func (q *Redis) Send(ctx context.Context, msg Message) error {
	payload, err := EncodeMessage(msg)
	if err != nil {
		return fmt.Errorf("encode redis message: %w", err)
	}
	if err := q.client.LPush(ctx, q.pending, string(payload)).Err(); err != nil {
		return fmt.Errorf("redis lpush key=%s: %w", q.pending, err)
	}
	return nil
}

// Receive blocks up to wait for a message and moves it to the processing list.
func (q *Redis) Receive(ctx context.Context, wait time.Duration) (Delivery, error) {
	body, err := q.client.BLMove(ctx, q.pending, q.processing, "RIGHT", "LEFT", wait).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Delivery{}, ErrNoMessage
		}
		return Delivery{}, fmt.Errorf("redis blmove key=%s: %w", q.pending, err)
	}
	return Delivery{Body: body}, nil
}

// Ack removes a handled delivery from the processing list.
func (q *Redis) Ack(ctx context.Context, d Delivery) error {
	if err := q.client.LRem(ctx, q.processing, 1, d.Body).Err(); err != nil {
		return fmt.Errorf("redis lrem key=%s: %w", q.processing, err)
	}
	return nil
}

// Recover moves every entry left on the processing list back onto the pending list and returns
// how many were moved. Call it before consumers start.
func (q *Redis) Recover(ctx context.Context) (int, error) {
	moved := 0
	for {
		err := q.client.LMove(ctx, q.processing, q.pending, "LEFT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, fmt.Errorf("redis lmove key=%s: %w", q.processing, err)
		}
		moved++
	}
}

var _ Client = (*Redis)(nil)
