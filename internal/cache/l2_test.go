package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oddsforge/propline/internal/domain"
)

// fakeRedis implements redisCmdable over a map so the tier's behavior is
// testable without a running redis
type fakeRedis struct {
	mu      sync.Mutex
	store   map[string]string
	deleted []string
	calls   int

	getErr  error
	setErr  error
	delErr  error
	pingErr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{store: make(map[string]string)}
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	if f.getErr != nil {
		return redis.NewStringResult("", f.getErr)
	}
	val, ok := f.store[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(val, nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	if f.setErr != nil {
		return redis.NewStatusResult("", f.setErr)
	}
	switch v := value.(type) {
	case []byte:
		f.store[key] = string(v)
	case string:
		f.store[key] = v
	}
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	if f.delErr != nil {
		return redis.NewIntResult(0, f.delErr)
	}
	var n int64
	for _, key := range keys {
		if _, ok := f.store[key]; ok {
			delete(f.store, key)
			n++
		}
		f.deleted = append(f.deleted, key)
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeRedis) Ping(ctx context.Context) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	if f.pingErr != nil {
		return redis.NewStatusResult("", f.pingErr)
	}
	return redis.NewStatusResult("PONG", nil)
}

func (f *fakeRedis) setGetErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getErr = err
}

func (f *fakeRedis) setDelErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delErr = err
}

func (f *fakeRedis) deletedKeys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

func (f *fakeRedis) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestL2_PutGetRoundTrip(t *testing.T) {
	r := newFakeRedis()
	c := NewL2Cache(r, time.Minute)
	defer c.Close()
	ctx := context.Background()

	prop := testProp("a", domain.SportNBA, "g1")
	c.Put(ctx, prop)

	got, ok := c.Get(ctx, prop.LineHash)
	require.True(t, ok)
	assert.Equal(t, prop.ExternalPropID, got.ExternalPropID)
	assert.True(t, got.OfferedLine.Equal(prop.OfferedLine))
	assert.Equal(t, prop.Sport, got.Sport)
}

func TestL2_MissOnAbsentKey(t *testing.T) {
	c := NewL2Cache(newFakeRedis(), time.Minute)
	defer c.Close()

	got, ok := c.Get(context.Background(), testProp("a", domain.SportNBA, "g1").LineHash)
	assert.False(t, ok)
	assert.Nil(t, got)
	assert.Equal(t, "closed", c.BreakerState(), "a plain miss is not a failure")
}

func TestL2_ErrorDegradesToMiss(t *testing.T) {
	r := newFakeRedis()
	c := NewL2Cache(r, time.Minute)
	defer c.Close()

	r.setGetErr(errors.New("connection refused"))

	got, ok := c.Get(context.Background(), testProp("a", domain.SportNBA, "g1").LineHash)
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestL2_CorruptEntryDroppedAndDeleted(t *testing.T) {
	r := newFakeRedis()
	c := NewL2Cache(r, time.Minute)
	defer c.Close()

	prop := testProp("a", domain.SportNBA, "g1")
	key := l2Key(prop.LineHash)
	r.store[key] = "{not json"

	got, ok := c.Get(context.Background(), prop.LineHash)
	assert.False(t, ok)
	assert.Nil(t, got)
	assert.Contains(t, r.deletedKeys(), key, "corrupt entries are purged")
}

func TestL2_DeleteFailureRetriesUntilRedisRecovers(t *testing.T) {
	r := newFakeRedis()
	c := NewL2Cache(r, time.Minute)
	defer c.Close()
	ctx := context.Background()

	prop := testProp("a", domain.SportNBA, "g1")
	c.Put(ctx, prop)

	r.setDelErr(errors.New("connection refused"))
	c.Delete(ctx, prop.LineHash)

	c.queueMu.Lock()
	queued := len(c.retryQueue)
	c.queueMu.Unlock()
	require.Equal(t, 1, queued, "failed invalidations queue for retry")

	// Redis comes back; the next drain converges the delete
	r.setDelErr(nil)
	c.drainRetries()

	assert.Contains(t, r.deletedKeys(), l2Key(prop.LineHash))
	c.queueMu.Lock()
	queued = len(c.retryQueue)
	c.queueMu.Unlock()
	assert.Zero(t, queued)

	_, ok := c.Get(ctx, prop.LineHash)
	assert.False(t, ok)
}

func TestL2_RetryQueueShedsOldestAtCapacity(t *testing.T) {
	c := NewL2Cache(newFakeRedis(), time.Minute)
	defer c.Close()

	hashes := make([]domain.LineHash, invalidationQueueCap+1)
	for i := range hashes {
		hashes[i] = domain.LineHash(fmt.Sprintf("%064d", i))
	}
	c.enqueueRetry(hashes)

	c.queueMu.Lock()
	defer c.queueMu.Unlock()
	require.Len(t, c.retryQueue, invalidationQueueCap)
	assert.Equal(t, hashes[1], c.retryQueue[0], "the oldest retry is shed first")
	assert.Equal(t, hashes[len(hashes)-1], c.retryQueue[len(c.retryQueue)-1])
}

func TestL2_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	r := newFakeRedis()
	c := NewL2Cache(r, time.Minute)
	defer c.Close()
	ctx := context.Background()

	r.setGetErr(errors.New("connection refused"))
	hash := testProp("a", domain.SportNBA, "g1").LineHash
	for i := 0; i < 5; i++ {
		c.Get(ctx, hash)
	}
	require.Equal(t, "open", c.BreakerState())

	// While open, reads short-circuit without touching redis
	r.setGetErr(nil)
	before := r.callCount()
	_, ok := c.Get(ctx, hash)
	assert.False(t, ok)
	assert.Equal(t, before, r.callCount(), "an open breaker does not hit redis")
}

func TestL2_Healthy(t *testing.T) {
	r := newFakeRedis()
	c := NewL2Cache(r, time.Minute)
	defer c.Close()
	ctx := context.Background()

	assert.True(t, c.Healthy(ctx))

	r.mu.Lock()
	r.pingErr = errors.New("connection refused")
	r.mu.Unlock()
	assert.False(t, c.Healthy(ctx))
}
