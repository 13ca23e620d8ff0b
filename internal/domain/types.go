package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Sport identifies the league a prop belongs to
type Sport string

const (
	SportMLB Sport = "MLB"
	SportNBA Sport = "NBA"
	SportNFL Sport = "NFL"
	SportNHL Sport = "NHL"
)

// ParseSport validates a sport string
func ParseSport(s string) (Sport, error) {
	switch Sport(s) {
	case SportMLB, SportNBA, SportNFL, SportNHL:
		return Sport(s), nil
	default:
		return "", fmt.Errorf("unknown sport: %s", s)
	}
}

// GameStatus represents the lifecycle state of a game
type GameStatus string

const (
	GameScheduled GameStatus = "SCHEDULED"
	GameLive      GameStatus = "LIVE"
	GameFinal     GameStatus = "FINAL"
)

// MarketType selects the upstream prop market to fetch
type MarketType string

const (
	MarketPlayerProps MarketType = "playerprops"
	MarketTeamProps   MarketType = "teamprops"
)

// PayoutType classifies the payout structure of an offering
type PayoutType string

const (
	PayoutStandard   PayoutType = "STANDARD"
	PayoutFlex       PayoutType = "FLEX"
	PayoutBoost      PayoutType = "BOOST"
	PayoutMultiplier PayoutType = "MULTIPLIER"
)

// PayoutVariant records the odds encoding detected at normalization time
type PayoutVariant string

const (
	VariantMultiplier PayoutVariant = "MULTIPLIER"
	VariantMoneyline  PayoutVariant = "MONEYLINE"
	VariantDecimal    PayoutVariant = "DECIMAL"
	VariantMixed      PayoutVariant = "MIXED"
)

// PositionTeam marks team-scoped props; every other position code is
// sport-specific ("1" is a pitcher in baseball).
const PositionTeam = "TEAM"

// Game represents an upstream game in provider-agnostic form
type Game struct {
	ID       string     `json:"id"`
	Sport    Sport      `json:"sport"`
	Status   GameStatus `json:"status"`
	StartTS  time.Time  `json:"start_ts"`
	HomeTeam string     `json:"home_team"`
	AwayTeam string     `json:"away_team"`
}

// RawProp is the provider-native record produced by a provider client.
// All validation beyond basic JSON shape happens downstream; the interior
// of the pipeline never sees provider payloads directly.
type RawProp struct {
	ProviderID       string     `json:"provider_id"`
	ExternalPropID   string     `json:"external_prop_id"`
	ExternalPlayerID string     `json:"external_player_id"`
	PlayerName       string     `json:"player_name"`
	TeamCode         string     `json:"team_code"`
	Position         string     `json:"position"`
	PropCategory     string     `json:"prop_category"`
	LineValue        float64    `json:"line_value"`
	PayoutType       PayoutType `json:"payout_type"`
	OverOdds         *float64   `json:"over_odds,omitempty"`
	UnderOdds        *float64   `json:"under_odds,omitempty"`
	BoostFlag        bool       `json:"boost_flag,omitempty"`
	UpdatedTS        time.Time  `json:"updated_ts"`
	Sport            Sport      `json:"sport"`
	GameID           string     `json:"game_id"`
	GameStatus       GameStatus `json:"game_status"`
	GameStartTS      time.Time  `json:"game_start_ts"`
}

// PayoutSchema is the canonical payout representation. Multipliers are in
// decimal-odds form, banker's-rounded to 3 places at construction.
type PayoutSchema struct {
	Type            PayoutType        `json:"type"`
	Variant         PayoutVariant     `json:"variant_code"`
	OverMultiplier  decimal.Decimal   `json:"over_multiplier"`
	UnderMultiplier decimal.Decimal   `json:"under_multiplier"`
	BoostMultiplier *decimal.Decimal  `json:"boost_multiplier,omitempty"`
	LowConfidence   bool              `json:"low_confidence,omitempty"`
	ProviderFormat  map[string]string `json:"provider_format,omitempty"`
}

// PlayerKey identifies a player within a provider's namespace. Player names
// are display data only and never used as identity.
type PlayerKey struct {
	ExternalID string `json:"external_id"`
	ProviderID string `json:"provider_id"`
}

// CanonicalProp is the pipeline's normalized prop record. LineHash is the
// sole identity; (player_name, team_code, sport) is NOT a uniqueness key.
type CanonicalProp struct {
	LineHash       LineHash        `json:"line_hash"`
	PropType       PropType        `json:"prop_type"`
	Sport          Sport           `json:"sport"`
	PlayerKey      PlayerKey       `json:"player_key"`
	PlayerName     string          `json:"player_name"`
	TeamCode       string          `json:"team_code"`
	Position       string          `json:"position"`
	OfferedLine    decimal.Decimal `json:"offered_line"`
	Payout         PayoutSchema    `json:"payout"`
	ProviderID     string          `json:"provider_id"`
	ExternalPropID string          `json:"external_prop_id"`
	GameID         string          `json:"game_id"`
	GameStatus     GameStatus      `json:"game_status"`
	GameStartTS    time.Time       `json:"game_start_ts"`
	UpdatedTS      time.Time       `json:"updated_ts"`
	IngestedTS     time.Time       `json:"ingested_ts"`
	Superseded     bool            `json:"superseded,omitempty"`
}

// IsTeamProp reports whether the prop is team-scoped
func (p *CanonicalProp) IsTeamProp() bool {
	return p.Position == PositionTeam
}
