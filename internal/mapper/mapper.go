package mapper

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/oddsforge/propline/internal/domain"
	"github.com/oddsforge/propline/internal/payout"
	"github.com/oddsforge/propline/internal/taxonomy"
)

// Mapping drop reasons; dropped props are counted per provider and reason
// so operator alarms can catch a provider format change.
var ErrInvalidLine = errors.New("invalid line value")

// Mapper turns raw provider props into canonical form: taxonomy resolution,
// payout normalization, team canonicalization, line hashing, and ingest
// timestamping. Position compatibility is a query-surface concern, not a
// mapping one: an incompatible prop is still ingested so it stays
// addressable by hash.
type Mapper struct {
	taxonomy   *taxonomy.Service
	normalizer *payout.Normalizer

	// Ingest timestamps are strictly monotonic within a process so that
	// last-write-wins comparisons never tie
	clockMu sync.Mutex
	lastTS  time.Time
}

// NewMapper creates a mapper over the given taxonomy and payout services
func NewMapper(tax *taxonomy.Service, normalizer *payout.Normalizer) *Mapper {
	return &Mapper{
		taxonomy:   tax,
		normalizer: normalizer,
	}
}

// Map converts one raw prop to canonical form. A taxonomy miss is not an
// error: the prop is mapped with type UNKNOWN and excluded from the default
// query surface until a mapping is curated. Payout and line failures drop
// the prop.
func (m *Mapper) Map(raw domain.RawProp) (domain.CanonicalProp, error) {
	if !validLine(raw.LineValue) {
		return domain.CanonicalProp{}, fmt.Errorf("%w: %f (provider=%s prop=%s)",
			ErrInvalidLine, raw.LineValue, raw.ProviderID, raw.ExternalPropID)
	}

	propType := m.taxonomy.Normalize(raw.PropCategory, raw.Sport, raw.ProviderID)

	schema, err := m.normalizer.Normalize(raw, propType)
	if err != nil {
		return domain.CanonicalProp{}, err
	}

	teamCode, resolved := ResolveTeam(raw.Sport, raw.TeamCode)
	if !resolved && raw.TeamCode != "" {
		log.Warn().Str("provider", raw.ProviderID).
			Str("team", raw.TeamCode).
			Str("sport", string(raw.Sport)).
			Msg("Unresolved team code kept verbatim")
	}

	line := decimal.NewFromFloat(raw.LineValue).Round(1)

	prop := domain.CanonicalProp{
		LineHash: domain.ComputeLineHash(propType, line, schema),
		PropType: propType,
		Sport:    raw.Sport,
		PlayerKey: domain.PlayerKey{
			ExternalID: raw.ExternalPlayerID,
			ProviderID: raw.ProviderID,
		},
		PlayerName:     raw.PlayerName,
		TeamCode:       teamCode,
		Position:       raw.Position,
		OfferedLine:    line,
		Payout:         schema,
		ProviderID:     raw.ProviderID,
		ExternalPropID: raw.ExternalPropID,
		GameID:         raw.GameID,
		GameStatus:     raw.GameStatus,
		GameStartTS:    raw.GameStartTS,
		UpdatedTS:      raw.UpdatedTS,
		IngestedTS:     m.nextIngestTS(),
	}

	return prop, nil
}

// BatchResult summarizes a batch mapping pass
type BatchResult struct {
	Props   []domain.CanonicalProp
	Dropped map[string]int // reason -> count
}

// MapBatch maps a slice of raw props, dropping failures individually so one
// malformed record never poisons a batch
func (m *Mapper) MapBatch(raws []domain.RawProp) BatchResult {
	result := BatchResult{
		Props:   make([]domain.CanonicalProp, 0, len(raws)),
		Dropped: make(map[string]int),
	}

	for _, raw := range raws {
		prop, err := m.Map(raw)
		if err != nil {
			result.Dropped[dropReason(err)]++
			log.Debug().Str("provider", raw.ProviderID).
				Str("prop", raw.ExternalPropID).
				Err(err).
				Msg("Dropped prop during mapping")
			continue
		}
		result.Props = append(result.Props, prop)
	}

	return result
}

func dropReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidLine):
		return "invalid_line"
	case errors.Is(err, payout.ErrInsufficientPayoutData):
		return "insufficient_payout"
	default:
		return "other"
	}
}

// nextIngestTS returns a strictly increasing timestamp
func (m *Mapper) nextIngestTS() time.Time {
	m.clockMu.Lock()
	defer m.clockMu.Unlock()

	now := time.Now().UTC()
	if !now.After(m.lastTS) {
		now = m.lastTS.Add(time.Nanosecond)
	}
	m.lastTS = now
	return now
}

func validLine(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}
