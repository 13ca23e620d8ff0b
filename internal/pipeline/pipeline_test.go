package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oddsforge/propline/internal/cache"
	"github.com/oddsforge/propline/internal/config"
	"github.com/oddsforge/propline/internal/domain"
	"github.com/oddsforge/propline/internal/mapper"
	"github.com/oddsforge/propline/internal/metrics"
	"github.com/oddsforge/propline/internal/payout"
	"github.com/oddsforge/propline/internal/provider"
	"github.com/oddsforge/propline/internal/taxonomy"
	"github.com/oddsforge/propline/internal/upsert"
)

// fakeClient serves a mutable game/prop set so tests can simulate games
// departing the scheduled list between cycles
type fakeClient struct {
	mu    sync.Mutex
	games []domain.Game
	props []domain.RawProp
}

func (f *fakeClient) Name() string { return "fake" }

func (f *fakeClient) FetchScheduledGames(ctx context.Context, sport domain.Sport) ([]domain.Game, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []domain.Game
	for _, g := range f.games {
		if g.Sport == sport {
			out = append(out, g)
		}
	}
	return out, nil
}

func (f *fakeClient) FetchProps(ctx context.Context, sport domain.Sport, gameIDs []string, market domain.MarketType) ([]domain.RawProp, error) {
	if market != domain.MarketPlayerProps {
		return nil, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	allowed := make(map[string]struct{}, len(gameIDs))
	for _, id := range gameIDs {
		allowed[id] = struct{}{}
	}
	var out []domain.RawProp
	for _, p := range f.props {
		if _, ok := allowed[p.GameID]; ok && p.Sport == sport {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeClient) Health() provider.Health {
	return provider.Health{Provider: "fake", Healthy: true, CircuitState: "closed"}
}

func (f *fakeClient) setGames(games []domain.Game) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.games = games
}

func fptr(v float64) *float64 { return &v }

// fakeRaw builds a raw offer; distinct lines keep the content hashes
// distinct across fixtures
func fakeRaw(id string, line float64) domain.RawProp {
	return domain.RawProp{
		ProviderID:     "fake",
		ExternalPropID: id,
		PlayerName:     "Player " + id,
		TeamCode:       "LAL",
		Position:       "PG",
		PropCategory:   "Points",
		LineValue:      line,
		PayoutType:     domain.PayoutStandard,
		OverOdds:       fptr(-110),
		UnderOdds:      fptr(-110),
		UpdatedTS:      time.Now(),
		Sport:          domain.SportNBA,
		GameID:         "g1",
		GameStatus:     domain.GameScheduled,
	}
}

func newTestPipeline(t *testing.T, client provider.Client) (*Pipeline, *cache.Manager) {
	t.Helper()

	cfg := config.Default()
	cfg.Fetch.Cadences = map[string]time.Duration{"NBA": 25 * time.Millisecond}
	cfg.Fetch.Default = 25 * time.Millisecond

	registry := provider.NewRegistry()
	require.NoError(t, registry.Register(client))

	cacheManager := cache.NewManager(cache.NewL1Cache(10000, time.Minute), nil, nil, nil)
	tax := taxonomy.NewService(nil)
	m := mapper.NewMapper(tax, payout.NewNormalizer(nil, 0))
	engine := upsert.NewEngine(cacheManager, nil)

	return New(cfg, registry, m, engine, cacheManager, nil, metrics.New()), cacheManager
}

func TestPipeline_IngestCycle(t *testing.T) {
	client := &fakeClient{
		games: []domain.Game{{ID: "g1", Sport: domain.SportNBA, Status: domain.GameScheduled}},
		props: []domain.RawProp{fakeRaw("p1", 25.5), fakeRaw("p2", 8.5)},
	}
	pipe, cacheManager := newTestPipeline(t, client)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pipe.Start(ctx)
	defer pipe.Stop()

	require.Eventually(t, func() bool {
		result, err := cacheManager.Query(cache.QueryFilter{Sport: domain.SportNBA})
		return err == nil && result.Total == 2
	}, 2*time.Second, 10*time.Millisecond, "first cycle should populate the cache")
}

func TestPipeline_DepartedGameInvalidates(t *testing.T) {
	client := &fakeClient{
		games: []domain.Game{{ID: "g1", Sport: domain.SportNBA, Status: domain.GameScheduled}},
		props: []domain.RawProp{fakeRaw("p1", 25.5)},
	}
	pipe, cacheManager := newTestPipeline(t, client)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pipe.Start(ctx)
	defer pipe.Stop()

	require.Eventually(t, func() bool {
		result, err := cacheManager.Query(cache.QueryFilter{Sport: domain.SportNBA})
		return err == nil && result.Total == 1
	}, 2*time.Second, 10*time.Millisecond)

	// The game starts: it leaves the scheduled list, so its props must
	// leave the query surface on the next cycle
	client.setGames(nil)

	require.Eventually(t, func() bool {
		result, err := cacheManager.Query(cache.QueryFilter{Sport: domain.SportNBA})
		return err == nil && result.Total == 0
	}, 2*time.Second, 10*time.Millisecond, "departed game props should be invalidated")
}

// gatedWriter holds every store write until released so batch work stays
// queued on the upsert engine
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

func TestPipeline_ShedHysteresis(t *testing.T) {
	cfg := config.Default()
	cfg.Pipeline.HighWatermark = 5
	cfg.Pipeline.LowWatermark = 2

	registry := provider.NewRegistry()
	require.NoError(t, registry.Register(&fakeClient{}))

	cacheManager := cache.NewManager(cache.NewL1Cache(10000, time.Minute), nil, nil, nil)
	writer := &gatedWriter{gate: make(chan struct{})}
	engine := upsert.NewEngine(cacheManager, writer)
	m := mapper.NewMapper(taxonomy.NewService(nil), payout.NewNormalizer(nil, 0))
	pipe := New(cfg, registry, m, engine, cacheManager, nil, metrics.New())

	props := make([]domain.CanonicalProp, 10)
	for i := range props {
		raw := fakeRaw("p"+string(rune('a'+i)), float64(i)+10.5)
		mapped, err := m.Map(raw)
		require.NoError(t, err)
		props[i] = mapped
	}

	done := make(chan upsert.BatchResult, 1)
	go func() {
		done <- engine.UpsertBatch(context.Background(), props)
	}()

	// Queued work above the high watermark starts shedding
	require.Eventually(t, func() bool {
		return engine.PendingDepth() == 10
	}, 2*time.Second, 5*time.Millisecond)
	assert.True(t, pipe.shouldShed())

	// Draining below high but above low keeps shedding (hysteresis)
	for i := 0; i < 7; i++ {
		writer.gate <- struct{}{}
	}
	require.Eventually(t, func() bool {
		return engine.PendingDepth() == 3
	}, 2*time.Second, 5*time.Millisecond)
	assert.True(t, pipe.shouldShed(), "shedding holds until the low watermark")

	// At or below the low watermark, fetches resume
	writer.gate <- struct{}{}
	require.Eventually(t, func() bool {
		return engine.PendingDepth() == 2
	}, 2*time.Second, 5*time.Millisecond)
	assert.False(t, pipe.shouldShed())

	for i := 0; i < 2; i++ {
		writer.gate <- struct{}{}
	}
	<-done
	assert.False(t, pipe.shouldShed())
}

func TestPipeline_Status(t *testing.T) {
	client := &fakeClient{}
	pipe, _ := newTestPipeline(t, client)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pipe.Start(ctx)
	defer pipe.Stop()

	streams, shedding := pipe.Status()
	assert.Len(t, streams, 4, "one stream per sport for the single provider")
	assert.False(t, shedding)
	for _, s := range streams {
		assert.Equal(t, "fake", s.Provider)
	}
}
