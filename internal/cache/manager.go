package cache

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/oddsforge/propline/internal/domain"
	"github.com/oddsforge/propline/internal/taxonomy"
)

// Loader fetches a prop from the authoritative store on a full cache miss.
// (nil, nil) means the prop does not exist.
type Loader func(ctx context.Context, hash domain.LineHash) (*domain.CanonicalProp, error)

// Stats counts cache outcomes per tier
type Stats struct {
	L1Hits      int64 `json:"l1_hits"`
	L1Misses    int64 `json:"l1_misses"`
	L2Hits      int64 `json:"l2_hits"`
	L2Misses    int64 `json:"l2_misses"`
	StoreLoads  int64 `json:"store_loads"`
	StoreMisses int64 `json:"store_misses"`
}

// StatsRecorder receives cache tier outcomes; the metrics package provides
// the production implementation
type StatsRecorder interface {
	CacheHit(tier string)
	CacheMiss(tier string)
}

// Manager composes the L1 and L2 tiers over the authoritative store.
// Writers go through Put so reads-after-write always resolve from L1.
type Manager struct {
	l1      *L1Cache
	l2      *L2Cache
	loader  Loader
	metrics StatsRecorder
}

// NewManager wires the cache tiers. l2, loader, and metrics may each be nil;
// the corresponding tier is skipped.
func NewManager(l1 *L1Cache, l2 *L2Cache, loader Loader, metrics StatsRecorder) *Manager {
	return &Manager{
		l1:      l1,
		l2:      l2,
		loader:  loader,
		metrics: metrics,
	}
}

// Get resolves a prop through L1, then L2, then the store, backfilling the
// faster tiers on the way out. Superseded props resolve normally here; only
// the query surface hides them.
func (m *Manager) Get(ctx context.Context, hash domain.LineHash) (*domain.CanonicalProp, error) {
	if prop, ok := m.l1.Get(hash); ok {
		m.hit("l1")
		return prop, nil
	}
	m.miss("l1")

	if m.l2 != nil {
		if prop, ok := m.l2.Get(ctx, hash); ok {
			m.hit("l2")
			m.l1.Put(prop)
			return prop, nil
		}
		m.miss("l2")
	}

	if m.loader == nil {
		return nil, nil
	}

	prop, err := m.loader(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("store load failed: %w", err)
	}
	if prop == nil {
		m.miss("store")
		return nil, nil
	}
	m.hit("store")

	m.l1.Put(prop)
	if m.l2 != nil {
		m.l2.Put(ctx, prop)
	}
	return prop, nil
}

// Put writes a prop through both tiers. The L1 write is synchronous so the
// writing goroutine reads its own write; L2 is best-effort.
func (m *Manager) Put(ctx context.Context, prop *domain.CanonicalProp) {
	m.l1.Put(prop)
	if m.l2 != nil {
		m.l2.Put(ctx, prop)
	}
}

// Touch refreshes an entry's TTL in both tiers without changing its value,
// so an offering the provider keeps re-confirming never ages out while
// still live. Returns false when the hash is not resident in L1.
func (m *Manager) Touch(ctx context.Context, hash domain.LineHash) bool {
	prop, ok := m.l1.Touch(hash)
	if !ok {
		return false
	}
	if m.l2 != nil {
		m.l2.Put(ctx, prop)
	}
	return true
}

// MarkSuperseded flags an offering as replaced. The entry stays cached until
// TTL; L2 is rewritten so other instances observe the flag.
func (m *Manager) MarkSuperseded(ctx context.Context, hash domain.LineHash) {
	m.l1.MarkSuperseded(hash)
	if m.l2 == nil {
		return
	}
	if prop, ok := m.l1.Get(hash); ok {
		m.l2.Put(ctx, prop)
	}
}

// Invalidate removes a single prop from both tiers
func (m *Manager) Invalidate(ctx context.Context, hash domain.LineHash) {
	m.l1.Remove(hash)
	if m.l2 != nil {
		m.l2.Delete(ctx, hash)
	}
}

// InvalidateBySport removes all cached props for a sport
func (m *Manager) InvalidateBySport(ctx context.Context, sport domain.Sport) int {
	removed := m.l1.RemoveBySport(sport)
	if m.l2 != nil && len(removed) > 0 {
		m.l2.Delete(ctx, removed...)
	}
	log.Info().Str("sport", string(sport)).Int("count", len(removed)).Msg("Cache invalidated by sport")
	return len(removed)
}

// InvalidateByGame removes all cached props for a game; called when a game
// transitions out of SCHEDULED
func (m *Manager) InvalidateByGame(ctx context.Context, gameID string) int {
	removed := m.l1.RemoveByGame(gameID)
	if m.l2 != nil && len(removed) > 0 {
		m.l2.Delete(ctx, removed...)
	}
	log.Info().Str("game_id", gameID).Int("count", len(removed)).Msg("Cache invalidated by game")
	return len(removed)
}

func (m *Manager) hit(tier string) {
	if m.metrics != nil {
		m.metrics.CacheHit(tier)
	}
}

func (m *Manager) miss(tier string) {
	if m.metrics != nil {
		m.metrics.CacheMiss(tier)
	}
}

// QueryFilter selects props on the query surface. Sport is required; the
// surface only serves props for games still in SCHEDULED state. Props whose
// type is physically impossible for the player's position (a pitcher's
// batting hits, a goalie's goals) are hidden unless IncludeIncompatible
// is set.
type QueryFilter struct {
	Sport               domain.Sport
	PropType            domain.PropType
	Position            string
	IncludeUnknown      bool
	IncludeIncompatible bool
	Limit               int
	Cursor              string
}

// QueryResult is one page of the query surface
type QueryResult struct {
	Props      []*domain.CanonicalProp
	NextCursor string
	ETag       string
	Total      int
}

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// Query serves filtered, paginated props from L1. Filters apply in fixed
// order (sport, game status, prop type, position) over a line-hash-ordered
// snapshot so pages are stable across requests. Superseded and UNKNOWN-type
// props are excluded unless asked for.
func (m *Manager) Query(filter QueryFilter) (QueryResult, error) {
	offset, err := decodeCursor(filter.Cursor)
	if err != nil {
		return QueryResult{}, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	var matched []*domain.CanonicalProp
	for _, prop := range m.l1.Snapshot(filter.Sport) {
		if prop.GameStatus != domain.GameScheduled {
			continue
		}
		if !filter.IncludeUnknown && !prop.PropType.Known() {
			continue
		}
		if filter.PropType != "" && prop.PropType != filter.PropType {
			continue
		}
		if filter.Position != "" && prop.Position != filter.Position {
			continue
		}
		if !filter.IncludeIncompatible && !taxonomy.PositionCompatible(prop.Sport, prop.Position, prop.PropType) {
			continue
		}
		matched = append(matched, prop)
	}

	result := QueryResult{Total: len(matched)}
	if offset >= len(matched) {
		return result, nil
	}

	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	result.Props = matched[offset:end]
	if end < len(matched) {
		result.NextCursor = encodeCursor(end)
	}
	result.ETag = pageETag(result.Props)

	return result, nil
}

// QueryByGame returns all live props for one game from L1
func (m *Manager) QueryByGame(gameID string) []*domain.CanonicalProp {
	return m.l1.SnapshotByGame(gameID)
}

// L1Len reports resident L1 entries for the health surface
func (m *Manager) L1Len() int {
	return m.l1.Len()
}

// L2State reports the L2 breaker state, or "disabled"
func (m *Manager) L2State() string {
	if m.l2 == nil {
		return "disabled"
	}
	return m.l2.BreakerState()
}

// pageETag derives a weak validator from the newest ingest timestamp in the
// page; any upsert that changes page content moves it forward
func pageETag(props []*domain.CanonicalProp) string {
	var max int64
	for _, p := range props {
		if ts := p.IngestedTS.UnixNano(); ts > max {
			max = ts
		}
	}
	return strconv.FormatInt(max, 16)
}

func encodeCursor(offset int) string {
	return base64.URLEncoding.EncodeToString([]byte(fmt.Sprintf("o:%d", offset)))
}

func decodeCursor(cursor string) (int, error) {
	if cursor == "" {
		return 0, nil
	}
	raw, err := base64.URLEncoding.DecodeString(cursor)
	if err != nil {
		return 0, fmt.Errorf("invalid cursor: %w", err)
	}
	s := string(raw)
	if !strings.HasPrefix(s, "o:") {
		return 0, fmt.Errorf("invalid cursor format")
	}
	offset, err := strconv.Atoi(strings.TrimPrefix(s, "o:"))
	if err != nil || offset < 0 {
		return 0, fmt.Errorf("invalid cursor offset")
	}
	return offset, nil
}
