package store

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/oddsforge/propline/internal/domain"
)

// bufferedOp is one deferred write captured while the store was down
type bufferedOp struct {
	prop      *domain.CanonicalProp
	supersede domain.LineHash
}

// BufferedWriter wraps a PropsRepo with a circuit breaker and a bounded
// write buffer. While the database is unreachable the pipeline keeps
// serving from cache; writes queue here and replay in order on recovery.
// When the buffer fills, the oldest writes are shed; a re-ingest on the
// next fetch cycle restores them.
type BufferedWriter struct {
	repo     PropsRepo
	breaker  *gobreaker.CircuitBreaker
	capacity int

	mu     sync.Mutex
	buffer []bufferedOp
	shed   int64

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewBufferedWriter wraps the repository and starts the replay worker
func NewBufferedWriter(repo PropsRepo, capacity int) *BufferedWriter {
	if capacity <= 0 {
		capacity = 5000
	}

	w := &BufferedWriter{
		repo:     repo,
		capacity: capacity,
		stopCh:   make(chan struct{}),
	}
	w.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "postgres-props",
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
				Msg("Store breaker state change")
		},
	})

	go w.replayLoop()
	return w
}

// Upsert writes through the breaker, buffering on failure
func (w *BufferedWriter) Upsert(ctx context.Context, prop *domain.CanonicalProp) error {
	_, err := w.breaker.Execute(func() (interface{}, error) {
		return nil, w.repo.Upsert(ctx, prop)
	})
	if err != nil {
		w.enqueue(bufferedOp{prop: prop})
		log.Debug().Str("line_hash", prop.LineHash.String()).Err(err).Msg("Store write buffered")
	}
	return nil
}

// MarkSuperseded flags through the breaker, buffering on failure
func (w *BufferedWriter) MarkSuperseded(ctx context.Context, hash domain.LineHash) error {
	_, err := w.breaker.Execute(func() (interface{}, error) {
		return nil, w.repo.MarkSuperseded(ctx, hash)
	})
	if err != nil {
		w.enqueue(bufferedOp{supersede: hash})
	}
	return nil
}

// GetByHash reads through the breaker; an open breaker reads as a miss so
// the cache tiers answer what they can
func (w *BufferedWriter) GetByHash(ctx context.Context, hash domain.LineHash) (*domain.CanonicalProp, error) {
	result, err := w.breaker.Execute(func() (interface{}, error) {
		return w.repo.GetByHash(ctx, hash)
	})
	if err != nil {
		return nil, nil
	}
	prop, _ := result.(*domain.CanonicalProp)
	return prop, nil
}

func (w *BufferedWriter) ListBySport(ctx context.Context, sport domain.Sport, limit int) ([]domain.CanonicalProp, error) {
	return w.repo.ListBySport(ctx, sport, limit)
}

func (w *BufferedWriter) ListByGame(ctx context.Context, gameID string, limit int) ([]domain.CanonicalProp, error) {
	return w.repo.ListByGame(ctx, gameID, limit)
}

func (w *BufferedWriter) DeleteByGame(ctx context.Context, gameID string) (int64, error) {
	return w.repo.DeleteByGame(ctx, gameID)
}

func (w *BufferedWriter) Ping(ctx context.Context) error {
	return w.repo.Ping(ctx)
}

// Degraded reports whether writes are currently buffering
func (w *BufferedWriter) Degraded() bool {
	return w.breaker.State() != gobreaker.StateClosed
}

// BufferDepth returns pending deferred writes and total shed count
func (w *BufferedWriter) BufferDepth() (int, int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.buffer), w.shed
}

// BreakerState exposes the breaker state for the health endpoint
func (w *BufferedWriter) BreakerState() string {
	return w.breaker.State().String()
}

// Close stops the replay worker
func (w *BufferedWriter) Close() {
	w.stopOnce.Do(func() { close(w.stopCh) })
}

func (w *BufferedWriter) enqueue(op bufferedOp) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buffer = append(w.buffer, op)
	if overflow := len(w.buffer) - w.capacity; overflow > 0 {
		w.buffer = w.buffer[overflow:]
		w.shed += int64(overflow)
		log.Warn().Int("shed", overflow).Msg("Store write buffer overflow")
	}
}

// replayLoop drains buffered writes once the breaker allows traffic again
func (w *BufferedWriter) replayLoop() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.replay()
		}
	}
}

func (w *BufferedWriter) replay() {
	w.mu.Lock()
	pending := w.buffer
	w.buffer = nil
	w.mu.Unlock()

	if len(pending) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for i, op := range pending {
		var err error
		if op.prop != nil {
			_, err = w.breaker.Execute(func() (interface{}, error) {
				return nil, w.repo.Upsert(ctx, op.prop)
			})
		} else {
			_, err = w.breaker.Execute(func() (interface{}, error) {
				return nil, w.repo.MarkSuperseded(ctx, op.supersede)
			})
		}
		if err != nil {
			// Still down; requeue the remainder in order
			w.mu.Lock()
			w.buffer = append(pending[i:], w.buffer...)
			if overflow := len(w.buffer) - w.capacity; overflow > 0 {
				w.buffer = w.buffer[overflow:]
				w.shed += int64(overflow)
			}
			w.mu.Unlock()
			return
		}
	}

	log.Info().Int("replayed", len(pending)).Msg("Deferred store writes replayed")
}
