package taxonomy

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/rs/zerolog/log"

	"github.com/oddsforge/propline/internal/domain"
)

// ProviderKey scopes a mapping to one provider's category vocabulary
type ProviderKey struct {
	Provider string       `yaml:"provider"`
	Category string       `yaml:"category"`
	Sport    domain.Sport `yaml:"sport"`
}

// GlobalKey scopes a mapping to a sport with a normalized category string
type GlobalKey struct {
	Sport    domain.Sport
	Category string
}

// Tables holds an immutable taxonomy snapshot. Lookups walk the
// provider-scoped table first, then the global sport table.
type Tables struct {
	Provider map[ProviderKey]domain.PropType
	Global   map[GlobalKey]domain.PropType
}

// Miss records an unmapped category for operator curation
type Miss struct {
	Provider  string       `json:"provider"`
	Category  string       `json:"category"`
	Sport     domain.Sport `json:"sport"`
	Count     int64        `json:"count"`
	FirstSeen time.Time    `json:"first_seen"`
	LastSeen  time.Time    `json:"last_seen"`
}

// Service maps provider prop-category strings to canonical prop types.
// Snapshots swap atomically so in-flight classifications never observe a
// partially loaded table.
type Service struct {
	tables atomic.Pointer[Tables]

	missMu sync.Mutex
	misses map[ProviderKey]*Miss
}

// NewService creates a taxonomy service from an initial snapshot
func NewService(tables *Tables) *Service {
	s := &Service{
		misses: make(map[ProviderKey]*Miss),
	}
	if tables == nil {
		tables = DefaultTables()
	}
	s.tables.Store(tables)
	return s
}

// Normalize resolves a provider category to a canonical prop type. On a
// miss it returns UNKNOWN and records the category for review; the prop is
// still ingested but excluded from the default query surface.
func (s *Service) Normalize(category string, sport domain.Sport, providerID string) domain.PropType {
	tables := s.tables.Load()

	if pt, ok := tables.Provider[ProviderKey{Provider: providerID, Category: category, Sport: sport}]; ok {
		return pt
	}

	normalized := NormalizeCategory(category)
	if pt, ok := tables.Global[GlobalKey{Sport: sport, Category: normalized}]; ok {
		return pt
	}

	s.recordMiss(providerID, category, sport)
	return domain.PropUnknown
}

// Reload atomically swaps in a new snapshot and reports what changed
func (s *Service) Reload(tables *Tables) ReloadSummary {
	old := s.tables.Swap(tables)

	summary := ReloadSummary{
		ProviderMappings: len(tables.Provider),
		GlobalMappings:   len(tables.Global),
	}
	for key, pt := range tables.Provider {
		if prev, ok := old.Provider[key]; !ok {
			summary.Added++
		} else if prev != pt {
			summary.Changed++
		}
	}
	for key := range old.Provider {
		if _, ok := tables.Provider[key]; !ok {
			summary.Removed++
		}
	}

	log.Info().Int("provider_mappings", summary.ProviderMappings).
		Int("global_mappings", summary.GlobalMappings).
		Int("added", summary.Added).
		Int("changed", summary.Changed).
		Int("removed", summary.Removed).
		Msg("Taxonomy tables reloaded")

	return summary
}

// ReloadSummary describes a taxonomy reload for the admin endpoint
type ReloadSummary struct {
	ProviderMappings int `json:"provider_mappings"`
	GlobalMappings   int `json:"global_mappings"`
	Added            int `json:"added"`
	Changed          int `json:"changed"`
	Removed          int `json:"removed"`
}

// Misses returns a snapshot of recorded taxonomy misses
func (s *Service) Misses() []Miss {
	s.missMu.Lock()
	defer s.missMu.Unlock()

	out := make([]Miss, 0, len(s.misses))
	for _, m := range s.misses {
		out = append(out, *m)
	}
	return out
}

func (s *Service) recordMiss(providerID, category string, sport domain.Sport) {
	key := ProviderKey{Provider: providerID, Category: category, Sport: sport}
	now := time.Now()

	s.missMu.Lock()
	defer s.missMu.Unlock()

	if m, ok := s.misses[key]; ok {
		m.Count++
		m.LastSeen = now
		return
	}

	s.misses[key] = &Miss{
		Provider:  providerID,
		Category:  category,
		Sport:     sport,
		Count:     1,
		FirstSeen: now,
		LastSeen:  now,
	}

	log.Warn().Str("provider", providerID).
		Str("category", category).
		Str("sport", string(sport)).
		Msg("Taxonomy miss recorded")
}

// NormalizeCategory canonicalizes a raw category string: lowercase, strip
// punctuation, collapse whitespace, and drop "player "/"team " prefixes
func NormalizeCategory(category string) string {
	var b strings.Builder
	lastSpace := true
	for _, r := range strings.ToLower(category) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case !lastSpace:
			b.WriteRune(' ')
			lastSpace = true
		}
	}

	normalized := strings.TrimSpace(b.String())
	normalized = strings.TrimPrefix(normalized, "player ")
	normalized = strings.TrimPrefix(normalized, "team ")
	return normalized
}
