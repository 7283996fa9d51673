// Package inbox remembers processed message and event ids so redeliveries are handled once.
package inbox

import (
	"context"
	"sync"
	"time"

	"github.com/barberbook/barberbook/libs/kafkax"
	"github.com/redis/go-redis/v9"
)

// RedisInbox records ids with SET NX and a TTL, shared by every chatbot instance.
type RedisInbox struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisInbox(client *redis.Client, prefix string, ttl time.Duration) *RedisInbox {
	if prefix == "" {
		prefix = "chat:inbox"
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisInbox{client: client, prefix: prefix, ttl: ttl}
}

func (i *RedisInbox) Record(ctx context.Context, id string, kind string) (bool, error) {
	return i.client.SetNX(ctx, i.prefix+":"+kind+":"+id, time.Now().UTC().Format(time.RFC3339), i.ttl).Result()
}

// MemoryInbox is the single-process fallback when Redis is not configured.
type MemoryInbox struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

func NewMemoryInbox(ttl time.Duration) *MemoryInbox {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MemoryInbox{seen: make(map[string]time.Time), ttl: ttl, now: time.Now}
}

// Record reports whether id is new. Expired entries count as new; Sweep reclaims them.
func (i *MemoryInbox) Record(_ context.Context, id string, kind string) (bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	now := i.now()
	key := kind + ":" + id
	if at, ok := i.seen[key]; ok && now.Sub(at) < i.ttl {
		return false, nil
	}
	i.seen[key] = now
	return true, nil
}

// Sweep drops expired ids and returns how many were removed.
func (i *MemoryInbox) Sweep() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	now := i.now()
	removed := 0
	for k, at := range i.seen {
		if now.Sub(at) >= i.ttl {
			delete(i.seen, k)
			removed++
		}
	}
	return removed
}

// StartSweeper runs Sweep every interval until ctx is done.
func (i *MemoryInbox) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				i.Sweep()
			}
		}
	}()
}

func (i *MemoryInbox) Len() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.seen)
}

var (
	_ kafkax.Inbox = (*RedisInbox)(nil)
	_ kafkax.Inbox = (*MemoryInbox)(nil)
)
