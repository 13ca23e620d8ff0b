package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/oddsforge/propline/internal/domain"
)

// l2KeyPrefix namespaces prop keys in redis
const l2KeyPrefix = "propline:prop:"

// invalidationQueueCap bounds the retry queue for failed L2 deletes; beyond
// it the oldest retries are shed, which only lengthens staleness until TTL
const invalidationQueueCap = 10000

// redisCmdable is the slice of the redis client the L2 tier uses; tests
// substitute a fake
type redisCmdable interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// L2Cache is the shared redis tier. All operations run behind a circuit
// breaker so a redis outage degrades reads to L1+store instead of stalling
// every request on connection timeouts.
type L2Cache struct {
	client  redisCmdable
	ttl     time.Duration
	breaker *gobreaker.CircuitBreaker

	queueMu    sync.Mutex
	retryQueue []domain.LineHash
	stopCh     chan struct{}
	stopOnce   sync.Once
}

// NewL2Cache wraps a redis client as the shared cache tier and starts the
// invalidation retry worker
func NewL2Cache(client redisCmdable, ttl time.Duration) *L2Cache {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}

	c := &L2Cache{
		client: client,
		ttl:    ttl,
		stopCh: make(chan struct{}),
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "redis-l2",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("L2 cache breaker state change")
		},
	})

	go c.retryLoop()
	return c
}

// Get fetches a prop from redis. A miss, an open breaker, and a redis error
// all return (nil, false); the tiers above fall through to the store.
func (c *L2Cache) Get(ctx context.Context, hash domain.LineHash) (*domain.CanonicalProp, bool) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		data, err := c.client.Get(ctx, l2Key(hash)).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return data, nil
	})
	if err != nil {
		return nil, false
	}
	data, ok := result.([]byte)
	if !ok || data == nil {
		return nil, false
	}

	var prop domain.CanonicalProp
	if err := json.Unmarshal(data, &prop); err != nil {
		log.Warn().Str("line_hash", hash.String()).Err(err).Msg("Corrupt L2 cache entry dropped")
		c.Delete(ctx, hash)
		return nil, false
	}
	return &prop, true
}

// Put writes a prop to redis. Failures are logged and swallowed; L2 is a
// best-effort tier and the store remains authoritative.
func (c *L2Cache) Put(ctx context.Context, prop *domain.CanonicalProp) {
	data, err := json.Marshal(prop)
	if err != nil {
		log.Error().Str("line_hash", prop.LineHash.String()).Err(err).Msg("Failed to encode prop for L2")
		return
	}

	_, err = c.breaker.Execute(func() (interface{}, error) {
		return nil, c.client.Set(ctx, l2Key(prop.LineHash), data, c.ttl).Err()
	})
	if err != nil {
		log.Debug().Str("line_hash", prop.LineHash.String()).Err(err).Msg("L2 cache write failed")
	}
}

// Delete removes a prop from redis. A failed delete is queued for retry so
// invalidations eventually converge once redis recovers.
func (c *L2Cache) Delete(ctx context.Context, hashes ...domain.LineHash) {
	if len(hashes) == 0 {
		return
	}

	keys := make([]string, len(hashes))
	for i, h := range hashes {
		keys[i] = l2Key(h)
	}

	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.client.Del(ctx, keys...).Err()
	})
	if err != nil {
		c.enqueueRetry(hashes)
	}
}

// Healthy reports whether redis answers a ping through a closed breaker
func (c *L2Cache) Healthy(ctx context.Context) bool {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.client.Ping(ctx).Err()
	})
	return err == nil
}

// BreakerState exposes the breaker state for the health endpoint
func (c *L2Cache) BreakerState() string {
	return c.breaker.State().String()
}

// Close stops the retry worker
func (c *L2Cache) Close() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

func (c *L2Cache) enqueueRetry(hashes []domain.LineHash) {
	c.queueMu.Lock()
	defer c.queueMu.Unlock()

	c.retryQueue = append(c.retryQueue, hashes...)
	if overflow := len(c.retryQueue) - invalidationQueueCap; overflow > 0 {
		c.retryQueue = c.retryQueue[overflow:]
		log.Warn().Int("shed", overflow).Msg("L2 invalidation retry queue overflow")
	}
}

// retryLoop drains the failed-invalidation queue once redis recovers
func (c *L2Cache) retryLoop() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.drainRetries()
		}
	}
}

// drainRetries re-issues every queued invalidation; deletes that fail again
// re-enter the queue
func (c *L2Cache) drainRetries() {
	c.queueMu.Lock()
	pending := c.retryQueue
	c.retryQueue = nil
	c.queueMu.Unlock()

	if len(pending) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c.Delete(ctx, pending...)
}

func l2Key(hash domain.LineHash) string {
	return fmt.Sprintf("%s%s", l2KeyPrefix, hash)
}
