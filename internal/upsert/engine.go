package upsert

import (
	"context"
	"hash/fnv"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/oddsforge/propline/internal/cache"
	"github.com/oddsforge/propline/internal/domain"
)

// Outcome classifies a single upsert
type Outcome int

const (
	OutcomeInserted Outcome = iota
	OutcomeUpdated
	OutcomeDuplicate
)

func (o Outcome) String() string {
	switch o {
	case OutcomeInserted:
		return "inserted"
	case OutcomeUpdated:
		return "updated"
	case OutcomeDuplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

// lockStripes bounds lock memory while keeping hash collisions rare enough
// that unrelated upserts almost never serialize
const lockStripes = 256

// PropsWriter is the slice of the store the engine writes through
type PropsWriter interface {
	Upsert(ctx context.Context, prop *domain.CanonicalProp) error
	MarkSuperseded(ctx context.Context, hash domain.LineHash) error
}

// offerKey identifies a provider's offering slot; when the same slot
// reappears with a different line hash, the previous hash is superseded
type offerKey struct {
	provider       string
	externalPropID string
}

// Engine applies canonical props to the cache and store with line-hash
// identity semantics: same hash is a refresh, a changed hash for the same
// provider offering supersedes the old one.
type Engine struct {
	locks [lockStripes]sync.Mutex

	indexMu    sync.Mutex
	offerIndex map[offerKey]domain.LineHash

	cache   *cache.Manager
	store   PropsWriter
	pending atomic.Int64
}

// NewEngine creates an upsert engine over the cache and store
func NewEngine(cacheManager *cache.Manager, store PropsWriter) *Engine {
	return &Engine{
		offerIndex: make(map[offerKey]domain.LineHash),
		cache:      cacheManager,
		store:      store,
	}
}

// Upsert applies one canonical prop. Concurrent upserts of the same line
// hash serialize on a lock stripe; last-write-wins resolves by updated
// timestamp, with ingest order as the tiebreak.
func (e *Engine) Upsert(ctx context.Context, prop *domain.CanonicalProp) (Outcome, error) {
	e.pending.Add(1)
	defer e.pending.Add(-1)

	stripe := &e.locks[stripeFor(prop.LineHash)]
	stripe.Lock()
	defer stripe.Unlock()

	existing, err := e.cache.Get(ctx, prop.LineHash)
	if err != nil {
		return OutcomeDuplicate, err
	}

	outcome := OutcomeInserted
	if existing != nil {
		if prop.UpdatedTS.Before(existing.UpdatedTS) {
			// Stale provider data; the resident entry is newer but the
			// offering is evidently still live, so keep it resident
			e.cache.Touch(ctx, prop.LineHash)
			return OutcomeDuplicate, nil
		}
		if prop.UpdatedTS.Equal(existing.UpdatedTS) && !prop.IngestedTS.After(existing.IngestedTS) {
			// Re-confirmed unchanged: refresh TTL only
			e.cache.Touch(ctx, prop.LineHash)
			return OutcomeDuplicate, nil
		}
		outcome = OutcomeUpdated
		// A refresh clears any supersede flag set while the offering was
		// briefly replaced
		prop.Superseded = false
	}

	if e.store != nil {
		if err := e.store.Upsert(ctx, prop); err != nil {
			return outcome, err
		}
	}
	e.cache.Put(ctx, prop)
	e.supersedePrevious(ctx, prop)

	return outcome, nil
}

// supersedePrevious marks the offering's prior line hash superseded when the
// provider moved the line or payout for the same external prop
func (e *Engine) supersedePrevious(ctx context.Context, prop *domain.CanonicalProp) {
	key := offerKey{provider: prop.ProviderID, externalPropID: prop.ExternalPropID}

	e.indexMu.Lock()
	prev, had := e.offerIndex[key]
	e.offerIndex[key] = prop.LineHash
	e.indexMu.Unlock()

	if !had || prev == prop.LineHash {
		return
	}

	e.cache.MarkSuperseded(ctx, prev)
	if e.store != nil {
		if err := e.store.MarkSuperseded(ctx, prev); err != nil {
			log.Warn().Str("line_hash", prev.String()).Err(err).Msg("Failed to persist supersede flag")
		}
	}
	log.Debug().Str("provider", prop.ProviderID).
		Str("external_prop_id", prop.ExternalPropID).
		Str("old_hash", prev.String()).
		Str("new_hash", prop.LineHash.String()).
		Msg("Offering superseded")
}

// BatchResult counts outcomes for one batch
type BatchResult struct {
	Inserted   int
	Updated    int
	Duplicates int
	Errors     int
}

// UpsertBatch applies a batch in line-hash order so concurrent batches that
// share hashes acquire stripes in a consistent order. The whole batch counts
// toward PendingDepth up front: queued work is what backpressure sheds on,
// not just the prop currently being written.
func (e *Engine) UpsertBatch(ctx context.Context, props []domain.CanonicalProp) BatchResult {
	sorted := make([]*domain.CanonicalProp, len(props))
	for i := range props {
		sorted[i] = &props[i]
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].LineHash < sorted[j].LineHash
	})

	e.pending.Add(int64(len(sorted)))

	var result BatchResult
	for i, prop := range sorted {
		if ctx.Err() != nil {
			result.Errors += 1
			e.pending.Add(-int64(len(sorted) - i))
			break
		}
		e.pending.Add(-1)
		outcome, err := e.Upsert(ctx, prop)
		if err != nil {
			result.Errors++
			log.Warn().Str("line_hash", prop.LineHash.String()).Err(err).Msg("Upsert failed")
			continue
		}
		switch outcome {
		case OutcomeInserted:
			result.Inserted++
		case OutcomeUpdated:
			result.Updated++
		case OutcomeDuplicate:
			result.Duplicates++
		}
	}
	return result
}

// PendingDepth reports queued plus executing upserts for backpressure
// decisions: every batch item not yet applied counts, so a burst larger
// than the high watermark is visible the moment its batch arrives
func (e *Engine) PendingDepth() int64 {
	return e.pending.Load()
}

// ForgetHashes drops offer-index entries pointing at the given hashes so
// memory does not grow across game lifecycles. Called on game-status
// invalidation with the hashes removed from cache.
func (e *Engine) ForgetHashes(hashes map[domain.LineHash]struct{}) {
	if len(hashes) == 0 {
		return
	}
	e.indexMu.Lock()
	defer e.indexMu.Unlock()
	for key, hash := range e.offerIndex {
		if _, gone := hashes[hash]; gone {
			delete(e.offerIndex, key)
		}
	}
}

func stripeFor(hash domain.LineHash) uint32 {
	h := fnv.New32a()
	h.Write([]byte(hash))
	return h.Sum32() % lockStripes
}
