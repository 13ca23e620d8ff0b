package taxonomy

import (
	"github.com/oddsforge/propline/internal/domain"
)

// mlbPitcherProps are stat categories only a pitcher accrues
var mlbPitcherProps = map[domain.PropType]bool{
	domain.PropStrikeouts:     true,
	domain.PropInningsPitched: true,
	domain.PropHitsAllowed:    true,
	domain.PropWalksAllowed:   true,
	domain.PropEarnedRuns:     true,
	domain.PropPitcherWins:    true,
	domain.PropSaves:          true,
	domain.PropPitcherOuts:    true,
}

// mlbBatterProps are stat categories only a batter accrues
var mlbBatterProps = map[domain.PropType]bool{
	domain.PropHits:             true,
	domain.PropHomeRuns:         true,
	domain.PropRunsBattedIn:     true,
	domain.PropRunsScored:       true,
	domain.PropTotalBases:       true,
	domain.PropStolenBases:      true,
	domain.PropDoubles:          true,
	domain.PropBatterWalks:      true,
	domain.PropBatterStrikeouts: true,
	domain.PropHitsRunsRBIs:     true,
}

// nhlGoalieProps are stat categories only a goaltender accrues
var nhlGoalieProps = map[domain.PropType]bool{
	domain.PropGoalieSaves: true,
}

// nhlSkaterProps are stat categories a goaltender does not accrue
var nhlSkaterProps = map[domain.PropType]bool{
	domain.PropGoals:         true,
	domain.PropShotsOnGoal:   true,
	domain.PropHockeyAssists: true,
	domain.PropHockeyPoints:  true,
}

// PositionCompatible reports whether a prop type is physically plausible for
// a player position. The check fails safe: a missing or unrecognized
// position preserves the prop, as do sports without a positional split.
// Pitchers carry position code "1" (the scorekeeping convention); NHL
// goaltenders carry "G".
func PositionCompatible(sport domain.Sport, position string, propType domain.PropType) bool {
	if position == "" || position == domain.PositionTeam || !propType.Known() {
		return true
	}

	switch sport {
	case domain.SportMLB:
		// Prop types outside the baseball split are preserved
		if !mlbPitcherProps[propType] && !mlbBatterProps[propType] {
			return true
		}
		if position == "1" || position == "P" || position == "SP" || position == "RP" {
			return mlbPitcherProps[propType]
		}
		return mlbBatterProps[propType]

	case domain.SportNHL:
		if !nhlGoalieProps[propType] && !nhlSkaterProps[propType] {
			return true
		}
		if position == "G" {
			return nhlGoalieProps[propType]
		}
		return nhlSkaterProps[propType]

	default:
		// Basketball and football positions do not gate stat categories
		return true
	}
}
