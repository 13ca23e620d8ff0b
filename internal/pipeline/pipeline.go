package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/oddsforge/propline/internal/cache"
	"github.com/oddsforge/propline/internal/config"
	"github.com/oddsforge/propline/internal/domain"
	"github.com/oddsforge/propline/internal/mapper"
	"github.com/oddsforge/propline/internal/metrics"
	"github.com/oddsforge/propline/internal/provider"
	"github.com/oddsforge/propline/internal/store"
	"github.com/oddsforge/propline/internal/upsert"
)

// CycleState tracks where an ingest cycle is in its lifecycle
type CycleState string

const (
	CycleIdle          CycleState = "IDLE"
	CycleFetching      CycleState = "FETCHING"
	CycleMapping       CycleState = "MAPPING"
	CycleUpserting     CycleState = "UPSERTING"
	CycleCompleted     CycleState = "COMPLETED"
	CycleFailedPartial CycleState = "FAILED_PARTIAL"
)

// pairKey identifies one (provider, sport) ingest stream
type pairKey struct {
	provider string
	sport    domain.Sport
}

// pairState serializes cycles per stream: a new tick is skipped while the
// previous cycle for the same pair is still running
type pairState struct {
	running  atomic.Bool
	mu       sync.Mutex
	state    CycleState
	lastRun  time.Time
	lastErr  string
	lastSeen map[string]struct{} // game IDs observed scheduled last cycle
}

// Pipeline orchestrates fetch, map, and upsert for every configured
// (provider, sport) pair on independent cadences
type Pipeline struct {
	registry *provider.Registry
	mapper   *mapper.Mapper
	engine   *upsert.Engine
	cache    *cache.Manager
	props    store.PropsRepo
	metrics  *metrics.Metrics
	cfg      config.Config

	sem chan struct{}

	pairMu sync.Mutex
	pairs  map[pairKey]*pairState

	shedding atomic.Bool

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New assembles the pipeline. props may be nil when persistence is disabled.
func New(cfg config.Config, registry *provider.Registry, m *mapper.Mapper, engine *upsert.Engine, cacheManager *cache.Manager, props store.PropsRepo, mx *metrics.Metrics) *Pipeline {
	return &Pipeline{
		registry: registry,
		mapper:   m,
		engine:   engine,
		cache:    cacheManager,
		props:    props,
		metrics:  mx,
		cfg:      cfg,
		sem:      make(chan struct{}, cfg.Pipeline.MaxConcurrentCycles),
		pairs:    make(map[pairKey]*pairState),
	}
}

var allSports = []domain.Sport{domain.SportMLB, domain.SportNBA, domain.SportNFL, domain.SportNHL}

// Start launches one scheduler goroutine per (provider, sport) pair
func (p *Pipeline) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)

	for _, name := range p.registry.Names() {
		client, err := p.registry.Get(name)
		if err != nil {
			continue
		}
		for _, sport := range allSports {
			key := pairKey{provider: name, sport: sport}
			p.pairMu.Lock()
			p.pairs[key] = &pairState{state: CycleIdle, lastSeen: make(map[string]struct{})}
			p.pairMu.Unlock()

			p.wg.Add(1)
			go p.schedule(ctx, client, sport)
		}
	}

	log.Info().Int("streams", len(p.pairs)).Msg("Pipeline started")
}

// Stop cancels all schedulers and waits for in-flight cycles
func (p *Pipeline) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	log.Info().Msg("Pipeline stopped")
}

func (p *Pipeline) schedule(ctx context.Context, client provider.Client, sport domain.Sport) {
	defer p.wg.Done()

	cadence := p.cfg.Fetch.CadenceFor(string(sport))
	ticker := time.NewTicker(cadence)
	defer ticker.Stop()

	// First cycle runs immediately so boot does not wait a full cadence
	p.tick(ctx, client, sport)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx, client, sport)
		}
	}
}

// tick runs one cycle if backpressure and the per-pair lock allow it
func (p *Pipeline) tick(ctx context.Context, client provider.Client, sport domain.Sport) {
	if p.shouldShed() {
		p.metrics.FetchShed.Inc()
		log.Warn().Str("provider", client.Name()).
			Str("sport", string(sport)).
			Int64("pending", p.engine.PendingDepth()).
			Msg("Fetch cycle shed under backpressure")
		return
	}

	key := pairKey{provider: client.Name(), sport: sport}
	p.pairMu.Lock()
	state := p.pairs[key]
	p.pairMu.Unlock()
	if state == nil || !state.running.CompareAndSwap(false, true) {
		// Previous cycle for this stream still in flight
		return
	}
	defer state.running.Store(false)

	select {
	case p.sem <- struct{}{}:
		defer func() { <-p.sem }()
	case <-ctx.Done():
		return
	}

	cycleCtx, cancel := context.WithTimeout(ctx, p.cfg.Pipeline.CycleTimeout)
	defer cancel()

	start := time.Now()
	err := p.runCycle(cycleCtx, client, sport, state)
	elapsed := time.Since(start)

	p.metrics.CycleDuration.WithLabelValues(client.Name(), string(sport)).Observe(elapsed.Seconds())
	p.metrics.UpsertPending.Set(float64(p.engine.PendingDepth()))
	p.recordBreakerState(client)

	final := CycleCompleted
	if err != nil {
		final = CycleFailedPartial
	}
	p.metrics.CycleOutcomes.WithLabelValues(client.Name(), string(sport), string(final)).Inc()

	state.mu.Lock()
	state.state = final
	state.lastRun = time.Now()
	if err != nil {
		state.lastErr = err.Error()
	} else {
		state.lastErr = ""
	}
	state.mu.Unlock()
}

// shouldShed implements hysteresis on the upsert queue: shedding starts
// above the high watermark and ends below the low watermark
func (p *Pipeline) shouldShed() bool {
	pending := p.engine.PendingDepth()
	if p.shedding.Load() {
		if pending <= p.cfg.Pipeline.LowWatermark {
			p.shedding.Store(false)
			return false
		}
		return true
	}
	if pending >= p.cfg.Pipeline.HighWatermark {
		p.shedding.Store(true)
		return true
	}
	return false
}

// runCycle executes one fetch-map-upsert pass for a stream. Markets are
// fetched independently; one failing market degrades the cycle to partial
// instead of aborting it.
func (p *Pipeline) runCycle(ctx context.Context, client provider.Client, sport domain.Sport, state *pairState) error {
	p.setState(state, CycleFetching)

	games, err := client.FetchScheduledGames(ctx, sport)
	if err != nil {
		if provider.IsCircuitOpen(err) {
			log.Debug().Str("provider", client.Name()).Str("sport", string(sport)).Msg("Cycle skipped, circuit open")
		}
		return fmt.Errorf("fetch games: %w", err)
	}

	p.reconcileGames(ctx, sport, games, state)

	if len(games) == 0 {
		return nil
	}
	gameIDs := make([]string, len(games))
	for i, g := range games {
		gameIDs[i] = g.ID
	}

	var raws []domain.RawProp
	var fetchErrs []error
	for _, market := range []domain.MarketType{domain.MarketPlayerProps, domain.MarketTeamProps} {
		props, err := client.FetchProps(ctx, sport, gameIDs, market)
		if err != nil {
			fetchErrs = append(fetchErrs, fmt.Errorf("fetch %s: %w", market, err))
			continue
		}
		raws = append(raws, props...)
	}
	if len(raws) == 0 && len(fetchErrs) > 0 {
		return fetchErrs[0]
	}

	p.setState(state, CycleMapping)
	batch := p.mapper.MapBatch(raws)
	for reason, count := range batch.Dropped {
		p.metrics.Dropped.WithLabelValues(client.Name(), reason).Add(float64(count))
	}
	for i := range batch.Props {
		if !batch.Props[i].PropType.Known() {
			p.metrics.TaxonomyMisses.WithLabelValues(client.Name(), string(sport)).Inc()
		}
	}

	p.setState(state, CycleUpserting)
	result := p.engine.UpsertBatch(ctx, batch.Props)
	p.metrics.Ingested.WithLabelValues(client.Name(), string(sport), "inserted").Add(float64(result.Inserted))
	p.metrics.Ingested.WithLabelValues(client.Name(), string(sport), "updated").Add(float64(result.Updated))
	p.metrics.Ingested.WithLabelValues(client.Name(), string(sport), "duplicate").Add(float64(result.Duplicates))

	log.Info().Str("provider", client.Name()).
		Str("sport", string(sport)).
		Int("games", len(games)).
		Int("raw", len(raws)).
		Int("inserted", result.Inserted).
		Int("updated", result.Updated).
		Int("duplicates", result.Duplicates).
		Int("errors", result.Errors).
		Msg("Ingest cycle finished")

	if len(fetchErrs) > 0 {
		return fetchErrs[0]
	}
	if result.Errors > 0 {
		return fmt.Errorf("%d upserts failed", result.Errors)
	}
	return nil
}

// reconcileGames detects games leaving the SCHEDULED state. A game seen
// last cycle but absent from the current scheduled set has started or
// finished; its props leave the query surface immediately.
func (p *Pipeline) reconcileGames(ctx context.Context, sport domain.Sport, games []domain.Game, state *pairState) {
	current := make(map[string]struct{}, len(games))
	for _, g := range games {
		current[g.ID] = struct{}{}
	}

	state.mu.Lock()
	departed := make([]string, 0)
	for id := range state.lastSeen {
		if _, still := current[id]; !still {
			departed = append(departed, id)
		}
	}
	state.lastSeen = current
	state.mu.Unlock()

	for _, gameID := range departed {
		removed := p.cache.InvalidateByGame(ctx, gameID)
		if removed > 0 {
			hashes := make(map[domain.LineHash]struct{}, removed)
			if p.props != nil {
				if props, err := p.props.ListByGame(ctx, gameID, 10000); err == nil {
					for _, prop := range props {
						hashes[prop.LineHash] = struct{}{}
					}
				}
			}
			p.engine.ForgetHashes(hashes)
		}
		log.Info().Str("game_id", gameID).
			Str("sport", string(sport)).
			Int("invalidated", removed).
			Msg("Game left scheduled state")
	}
}

func (p *Pipeline) setState(state *pairState, s CycleState) {
	state.mu.Lock()
	state.state = s
	state.mu.Unlock()
}

func (p *Pipeline) recordBreakerState(client provider.Client) {
	health := client.Health()
	var v float64
	switch health.CircuitState {
	case "half-open":
		v = 1
	case "open":
		v = 2
	}
	p.metrics.BreakerState.WithLabelValues(client.Name()).Set(v)
}

// StreamStatus is one (provider, sport) stream's health snapshot
type StreamStatus struct {
	Provider string     `json:"provider"`
	Sport    string     `json:"sport"`
	State    CycleState `json:"state"`
	LastRun  time.Time  `json:"last_run,omitempty"`
	LastErr  string     `json:"last_error,omitempty"`
}

// Status reports all stream states plus the shedding flag
func (p *Pipeline) Status() ([]StreamStatus, bool) {
	p.pairMu.Lock()
	defer p.pairMu.Unlock()

	statuses := make([]StreamStatus, 0, len(p.pairs))
	for key, state := range p.pairs {
		state.mu.Lock()
		statuses = append(statuses, StreamStatus{
			Provider: key.provider,
			Sport:    string(key.sport),
			State:    state.state,
			LastRun:  state.lastRun,
			LastErr:  state.lastErr,
		})
		state.mu.Unlock()
	}
	return statuses, p.shedding.Load()
}
