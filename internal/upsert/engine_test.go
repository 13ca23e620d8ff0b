package upsert

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oddsforge/propline/internal/cache"
	"github.com/oddsforge/propline/internal/domain"
)

func testManager() *cache.Manager {
	return cache.NewManager(cache.NewL1Cache(10000, time.Minute), nil, nil, nil)
}

func canonical(externalID, line string) domain.CanonicalProp {
	payout := domain.PayoutSchema{
		Type:            domain.PayoutStandard,
		Variant:         domain.VariantMoneyline,
		OverMultiplier:  decimal.RequireFromString("1.909"),
		UnderMultiplier: decimal.RequireFromString("1.909"),
	}
	offered := decimal.RequireFromString(line)
	now := time.Now()
	return domain.CanonicalProp{
		LineHash:       domain.ComputeLineHash(domain.PropPoints, offered, payout),
		PropType:       domain.PropPoints,
		Sport:          domain.SportNBA,
		OfferedLine:    offered,
		Payout:         payout,
		ProviderID:     "prizepicks",
		ExternalPropID: externalID,
		GameID:         "g1",
		GameStatus:     domain.GameScheduled,
		UpdatedTS:      now,
		IngestedTS:     now,
	}
}

func TestUpsert_InsertThenUpdateThenDuplicate(t *testing.T) {
	e := NewEngine(testManager(), nil)
	ctx := context.Background()

	prop := canonical("pr1", "25.5")
	outcome, err := e.Upsert(ctx, &prop)
	require.NoError(t, err)
	assert.Equal(t, OutcomeInserted, outcome)

	// Same hash with a newer provider timestamp refreshes
	newer := prop
	newer.UpdatedTS = prop.UpdatedTS.Add(time.Minute)
	newer.IngestedTS = prop.IngestedTS.Add(time.Minute)
	outcome, err = e.Upsert(ctx, &newer)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, outcome)

	// Replaying the same data is a no-op
	outcome, err = e.Upsert(ctx, &newer)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)

	// Stale data never overwrites
	stale := prop
	stale.UpdatedTS = prop.UpdatedTS.Add(-time.Hour)
	outcome, err = e.Upsert(ctx, &stale)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)
}

func TestUpsert_DuplicateRefreshesTTL(t *testing.T) {
	m := cache.NewManager(cache.NewL1Cache(1000, 200*time.Millisecond), nil, nil, nil)
	e := NewEngine(m, nil)
	ctx := context.Background()

	prop := canonical("pr1", "25.5")
	_, err := e.Upsert(ctx, &prop)
	require.NoError(t, err)

	// The provider keeps re-confirming the unchanged offering each cycle;
	// each confirmation must restart the TTL clock
	time.Sleep(120 * time.Millisecond)
	replay := prop
	outcome, err := e.Upsert(ctx, &replay)
	require.NoError(t, err)
	require.Equal(t, OutcomeDuplicate, outcome)

	time.Sleep(120 * time.Millisecond)
	got, err := m.Get(ctx, prop.LineHash)
	require.NoError(t, err)
	assert.NotNil(t, got, "a re-confirmed offering must not age out of the cache")
}

func TestUpsert_StaleDuplicateAlsoRefreshesTTL(t *testing.T) {
	m := cache.NewManager(cache.NewL1Cache(1000, 200*time.Millisecond), nil, nil, nil)
	e := NewEngine(m, nil)
	ctx := context.Background()

	prop := canonical("pr1", "25.5")
	_, err := e.Upsert(ctx, &prop)
	require.NoError(t, err)

	time.Sleep(120 * time.Millisecond)
	stale := prop
	stale.UpdatedTS = prop.UpdatedTS.Add(-time.Hour)
	outcome, err := e.Upsert(ctx, &stale)
	require.NoError(t, err)
	require.Equal(t, OutcomeDuplicate, outcome)

	time.Sleep(120 * time.Millisecond)
	got, err := m.Get(ctx, prop.LineHash)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.UpdatedTS.Equal(prop.UpdatedTS), "stale data refreshes TTL without replacing the entry")
}

func TestUpsert_LineMoveSupersedesPrevious(t *testing.T) {
	m := testManager()
	e := NewEngine(m, nil)
	ctx := context.Background()

	v1 := canonical("pr1", "25.5")
	_, err := e.Upsert(ctx, &v1)
	require.NoError(t, err)

	// Provider moved the line for the same offering slot
	v2 := canonical("pr1", "26.5")
	v2.UpdatedTS = v1.UpdatedTS.Add(time.Minute)
	v2.IngestedTS = v1.IngestedTS.Add(time.Minute)
	outcome, err := e.Upsert(ctx, &v2)
	require.NoError(t, err)
	assert.Equal(t, OutcomeInserted, outcome, "a moved line is a new offering")

	// The old offering still resolves directly, flagged superseded
	old, err := m.Get(ctx, v1.LineHash)
	require.NoError(t, err)
	require.NotNil(t, old)
	assert.True(t, old.Superseded)

	// The new one is live
	fresh, err := m.Get(ctx, v2.LineHash)
	require.NoError(t, err)
	require.NotNil(t, fresh)
	assert.False(t, fresh.Superseded)
}

func TestUpsert_DifferentOfferingsDoNotSupersede(t *testing.T) {
	m := testManager()
	e := NewEngine(m, nil)
	ctx := context.Background()

	a := canonical("pr1", "25.5")
	b := canonical("pr2", "26.5")
	_, err := e.Upsert(ctx, &a)
	require.NoError(t, err)
	_, err = e.Upsert(ctx, &b)
	require.NoError(t, err)

	got, err := m.Get(ctx, a.LineHash)
	require.NoError(t, err)
	assert.False(t, got.Superseded)
}

func TestUpsert_LineMovesBackClearsSupersede(t *testing.T) {
	m := testManager()
	e := NewEngine(m, nil)
	ctx := context.Background()

	v1 := canonical("pr1", "25.5")
	_, err := e.Upsert(ctx, &v1)
	require.NoError(t, err)

	v2 := canonical("pr1", "26.5")
	v2.UpdatedTS = v1.UpdatedTS.Add(time.Minute)
	v2.IngestedTS = v1.IngestedTS.Add(time.Minute)
	_, err = e.Upsert(ctx, &v2)
	require.NoError(t, err)

	// Line moves back to the original value
	v3 := canonical("pr1", "25.5")
	v3.UpdatedTS = v1.UpdatedTS.Add(2 * time.Minute)
	v3.IngestedTS = v1.IngestedTS.Add(2 * time.Minute)
	outcome, err := e.Upsert(ctx, &v3)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, outcome)

	got, err := m.Get(ctx, v3.LineHash)
	require.NoError(t, err)
	assert.False(t, got.Superseded, "a refreshed offering is live again")
}

func TestUpsertBatch_CountsOutcomes(t *testing.T) {
	e := NewEngine(testManager(), nil)
	ctx := context.Background()

	props := []domain.CanonicalProp{
		canonical("pr1", "25.5"),
		canonical("pr2", "26.5"),
		canonical("pr3", "27.5"),
	}
	result := e.UpsertBatch(ctx, props)
	assert.Equal(t, 3, result.Inserted)

	// Replaying the batch is idempotent
	result = e.UpsertBatch(ctx, props)
	assert.Equal(t, 0, result.Inserted)
	assert.Equal(t, 3, result.Duplicates)
}

// gatedWriter blocks every store write until the test releases a token, so
// queued batch work stays observable
type gatedWriter struct {
	gate chan struct{}
}

func (w *gatedWriter) Upsert(ctx context.Context, prop *domain.CanonicalProp) error {
	<-w.gate
	return nil
}

func (w *gatedWriter) MarkSuperseded(ctx context.Context, hash domain.LineHash) error {
	return nil
}

func TestUpsertBatch_PendingDepthCountsQueuedWork(t *testing.T) {
	writer := &gatedWriter{gate: make(chan struct{})}
	e := NewEngine(testManager(), writer)

	props := make([]domain.CanonicalProp, 10)
	for i := range props {
		props[i] = canonical(fmt.Sprintf("pr%d", i), fmt.Sprintf("%d.5", 10+i))
	}

	done := make(chan BatchResult, 1)
	go func() {
		done <- e.UpsertBatch(context.Background(), props)
	}()

	// The whole batch counts as pending while the first write is in flight
	require.Eventually(t, func() bool {
		return e.PendingDepth() == 10
	}, 2*time.Second, 5*time.Millisecond)

	// Depth drains one prop at a time as writes complete
	writer.gate <- struct{}{}
	require.Eventually(t, func() bool {
		return e.PendingDepth() == 9
	}, 2*time.Second, 5*time.Millisecond)

	for i := 0; i < 9; i++ {
		writer.gate <- struct{}{}
	}
	result := <-done
	assert.Equal(t, 10, result.Inserted)
	assert.Zero(t, e.PendingDepth())
}

func TestForgetHashes(t *testing.T) {
	m := testManager()
	e := NewEngine(m, nil)
	ctx := context.Background()

	v1 := canonical("pr1", "25.5")
	_, err := e.Upsert(ctx, &v1)
	require.NoError(t, err)

	e.ForgetHashes(map[domain.LineHash]struct{}{v1.LineHash: {}})

	// With the slot forgotten, a new line for pr1 does not supersede v1
	v2 := canonical("pr1", "26.5")
	v2.UpdatedTS = v1.UpdatedTS.Add(time.Minute)
	v2.IngestedTS = v1.IngestedTS.Add(time.Minute)
	_, err = e.Upsert(ctx, &v2)
	require.NoError(t, err)

	got, err := m.Get(ctx, v1.LineHash)
	require.NoError(t, err)
	assert.False(t, got.Superseded)
}
