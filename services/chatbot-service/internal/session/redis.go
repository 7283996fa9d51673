package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStore shares conversation state between chatbot instances.
type RedisStore struct {
	client     *redis.Client
	prefix     string
	lockTTL    time.Duration
	retryEvery time.Duration
}

func NewRedisStore(client *redis.Client, prefix string, lockTTL time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "chat"
	}
	if lockTTL <= 0 {
		lockTTL = 15 * time.Second
	}
	return &RedisStore{client: client, prefix: prefix, lockTTL: lockTTL, retryEvery: 50 * time.Millisecond}
}

func (s *RedisStore) stateKey(sender string) string {
	return s.prefix + ":state:" + sender
}

func (s *RedisStore) lockKey(sender string) string {
	return s.prefix + ":lock:" + sender
}

func (s *RedisStore) Get(ctx context.Context, sender string) (State, bool, error) {
	raw, err := s.client.Get(ctx, s.stateKey(sender)).Bytes()
	if errors.Is(err, redis.Nil) {
		return State{}, false, nil
	}
	if err != nil {
		return State{}, false, fmt.Errorf("get session: %w", err)
	}
	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		return State{}, false, fmt.Errorf("decode session: %w", err)
	}
	return st, true, nil
}

func (s *RedisStore) Put(ctx context.Context, sender string, st State, ttl time.Duration) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.stateKey(sender), raw, ttl).Err(); err != nil {
		return fmt.Errorf("put session: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, sender string) error {
	return s.client.Del(ctx, s.stateKey(sender)).Err()
}

// Lock takes chat:lock:<sender> with SET NX PX, retrying until ctx is done. The lock
// expires on its own if the holder dies.
func (s *RedisStore) Lock(ctx context.Context, sender string) (func(), error) {
	key := s.lockKey(sender)
	token := uuid.NewString()
	for {
		ok, err := s.client.SetNX(ctx, key, token, s.lockTTL).Result()
		if err != nil && ctx.Err() == nil {
			return nil, fmt.Errorf("lock session: %w", err)
		}
		if ok {
			return func() {
				releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
				defer cancel()
				_ = unlockScript.Run(releaseCtx, s.client, []string{key}, token).Err()
			}, nil
		}

		timer := time.NewTimer(s.retryEvery)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ErrLocked
		case <-timer.C:
		}
	}
}

var _ Store = (*RedisStore)(nil)
