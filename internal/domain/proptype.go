package domain

// PropType is the canonical, sport-scoped stat category for a prop.
// UNKNOWN marks taxonomy misses; such props are ingested but excluded
// from the default query surface until a mapping is curated.
type PropType string

const (
	PropUnknown PropType = "UNKNOWN"

	// Basketball
	PropPoints        PropType = "POINTS"
	PropAssists       PropType = "ASSISTS"
	PropRebounds      PropType = "REBOUNDS"
	PropThreesMade    PropType = "THREES_MADE"
	PropPtsRebAst     PropType = "PTS_REB_AST"
	PropSteals        PropType = "STEALS"
	PropBlocks        PropType = "BLOCKS"
	PropTurnovers     PropType = "TURNOVERS"
	PropFantasyPoints PropType = "FANTASY_POINTS"

	// Baseball, batter stats
	PropHits             PropType = "HITS"
	PropHomeRuns         PropType = "HOME_RUNS"
	PropRunsBattedIn     PropType = "RUNS_BATTED_IN"
	PropRunsScored       PropType = "RUNS_SCORED"
	PropTotalBases       PropType = "TOTAL_BASES"
	PropStolenBases      PropType = "STOLEN_BASES"
	PropDoubles          PropType = "DOUBLES"
	PropBatterWalks      PropType = "BATTER_WALKS"
	PropBatterStrikeouts PropType = "BATTER_STRIKEOUTS"
	PropHitsRunsRBIs     PropType = "HITS_RUNS_RBIS"

	// Baseball, pitcher stats
	PropStrikeouts     PropType = "STRIKEOUTS"
	PropInningsPitched PropType = "INNINGS_PITCHED"
	PropHitsAllowed    PropType = "HITS_ALLOWED"
	PropWalksAllowed   PropType = "WALKS_ALLOWED"
	PropEarnedRuns     PropType = "EARNED_RUNS"
	PropPitcherWins    PropType = "PITCHER_WINS"
	PropSaves          PropType = "SAVES"
	PropPitcherOuts    PropType = "PITCHER_OUTS"

	// Football
	PropPassingYards   PropType = "PASSING_YARDS"
	PropPassingTDs     PropType = "PASSING_TDS"
	PropRushingYards   PropType = "RUSHING_YARDS"
	PropReceivingYards PropType = "RECEIVING_YARDS"
	PropReceptions     PropType = "RECEPTIONS"
	PropInterceptions  PropType = "INTERCEPTIONS"

	// Hockey
	PropGoals         PropType = "GOALS"
	PropShotsOnGoal   PropType = "SHOTS_ON_GOAL"
	PropHockeyAssists PropType = "HOCKEY_ASSISTS"
	PropHockeyPoints  PropType = "HOCKEY_POINTS"
	PropGoalieSaves   PropType = "GOALIE_SAVES"

	// Team props
	PropTeamTotalRuns   PropType = "TEAM_TOTAL_RUNS"
	PropTeamTotalPoints PropType = "TEAM_TOTAL_POINTS"
	PropTeamTotalGoals  PropType = "TEAM_TOTAL_GOALS"
)

// Known reports whether the prop type resolved through the taxonomy
func (pt PropType) Known() bool {
	return pt != "" && pt != PropUnknown
}
