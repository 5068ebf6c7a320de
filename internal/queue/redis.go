package queue

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// popWait bounds one BLMOVE so a cancelled context is noticed promptly.
	popWait = 2 * time.Second

	aliveTTL      = 30 * time.Second
	aliveInterval = 10 * time.Second
)

// RedisBroker keeps tasks in a Redis list. Push is LPUSH; Pop moves the
// oldest task into this consumer's processing list with BLMOVE, and Ack
// removes it from there. A consumer refreshes a liveness key while open;
// processing lists of consumers whose key expired are requeued by Reclaim.
// Requires Redis 6.2 or newer.
type RedisBroker struct {
	client     *redis.Client
	key        string
	consumer   string
	processing string
	alive      string

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewRedisBroker connects to url and fails fast if Redis is unreachable.
// Each broker is a distinct consumer of the list at key.
func NewRedisBroker(ctx context.Context, url, key string) (*RedisBroker, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "ping redis")
	}

	id := uuid.NewString()
	b := &RedisBroker{
		client:     client,
		key:        key,
		consumer:   id,
		processing: processingKey(key, id),
		alive:      key + ":alive:" + id,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	if err := b.touch(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	go b.heartbeat()
	return b, nil
}

func processingKey(key, consumer string) string {
	return key + ":processing:" + consumer
}

func (b *RedisBroker) touch(ctx context.Context) error {
	if err := b.client.Set(ctx, b.alive, 1, aliveTTL).Err(); err != nil {
		return errors.Wrap(err, "refresh consumer liveness")
	}
	return nil
}

func (b *RedisBroker) heartbeat() {
	defer close(b.done)
	ticker := time.NewTicker(aliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = b.touch(ctx)
			cancel()
		}
	}
}

func (b *RedisBroker) Push(ctx context.Context, t Task) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return errors.Wrap(err, "encode task")
	}
	if err := b.client.LPush(ctx, b.key, raw).Err(); err != nil {
		if errors.Is(err, redis.ErrClosed) {
			return ErrClosed
		}
		return errors.Wrap(err, "lpush task")
	}
	return nil
}

func (b *RedisBroker) Pop(ctx context.Context) (Task, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Task{}, err
		}
		raw, err := b.client.BLMove(ctx, b.key, b.processing, "RIGHT", "LEFT", popWait).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return Task{}, ctx.Err()
			}
			return Task{}, errors.Wrap(err, "blmove task")
		}
		var t Task
		if err := json.Unmarshal([]byte(raw), &t); err != nil {
			// an undecodable envelope would be redelivered forever
			_ = b.client.LRem(ctx, b.processing, 1, raw).Err()
			return Task{}, errors.Wrap(err, "decode task")
		}
		t.receipt = raw
		return t, nil
	}
}

func (b *RedisBroker) Ack(ctx context.Context, t Task) error {
	if t.receipt == "" {
		return nil
	}
	if err := b.client.LRem(ctx, b.processing, 1, t.receipt).Err(); err != nil {
		return errors.Wrap(err, "lrem task")
	}
	return nil
}

// Reclaim moves tasks held by consumers that are no longer alive back to
// the queue, oldest first, and returns how many were moved.
func (b *RedisBroker) Reclaim(ctx context.Context) (int, error) {
	prefix := processingKey(b.key, "")
	var moved int
	iter := b.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		list := iter.Val()
		consumer := strings.TrimPrefix(list, prefix)
		if consumer == b.consumer {
			continue
		}
		n, err := b.client.Exists(ctx, b.key+":alive:"+consumer).Result()
		if err != nil {
			return moved, errors.Wrap(err, "check consumer liveness")
		}
		if n > 0 {
			continue
		}
		for {
			err := b.client.LMove(ctx, list, b.key, "LEFT", "RIGHT").Err()
			if errors.Is(err, redis.Nil) {
				break
			}
			if err != nil {
				return moved, errors.Wrapf(err, "requeue from %s", list)
			}
			moved++
		}
	}
	if err := iter.Err(); err != nil {
		return moved, errors.Wrap(err, "scan processing lists")
	}
	return moved, nil
}

func (b *RedisBroker) Len(ctx context.Context) (int64, error) {
	n, err := b.client.LLen(ctx, b.key).Result()
	if err != nil {
		return 0, errors.Wrap(err, "llen")
	}
	return n, nil
}

// Close stops the heartbeat and drops the liveness key, so anything still
// in the processing list is reclaimed by the next consumer to start.
func (b *RedisBroker) Close() error {
	b.stopOnce.Do(func() { close(b.stop) })
	<-b.done

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = b.client.Del(ctx, b.alive).Err()
	return b.client.Close()
}
