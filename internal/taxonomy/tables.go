package taxonomy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/oddsforge/propline/internal/domain"
)

// tablesFile is the on-disk YAML layout for taxonomy mappings
type tablesFile struct {
	Providers []providerEntry `yaml:"providers"`
	Global    []globalEntry   `yaml:"global"`
}

type providerEntry struct {
	Provider string `yaml:"provider"`
	Sport    string `yaml:"sport"`
	Category string `yaml:"category"`
	PropType string `yaml:"prop_type"`
}

type globalEntry struct {
	Sport    string `yaml:"sport"`
	Category string `yaml:"category"`
	PropType string `yaml:"prop_type"`
}

// LoadTables reads taxonomy mappings from a YAML file and merges them over
// the built-in defaults. File entries win on key collision.
func LoadTables(path string) (*Tables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read taxonomy file: %w", err)
	}

	var file tablesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse taxonomy file: %w", err)
	}

	tables := DefaultTables()
	for _, e := range file.Providers {
		sport, err := domain.ParseSport(e.Sport)
		if err != nil {
			return nil, fmt.Errorf("taxonomy provider entry %q/%q: %w", e.Provider, e.Category, err)
		}
		tables.Provider[ProviderKey{Provider: e.Provider, Category: e.Category, Sport: sport}] = domain.PropType(e.PropType)
	}
	for _, e := range file.Global {
		sport, err := domain.ParseSport(e.Sport)
		if err != nil {
			return nil, fmt.Errorf("taxonomy global entry %q: %w", e.Category, err)
		}
		tables.Global[GlobalKey{Sport: sport, Category: NormalizeCategory(e.Category)}] = domain.PropType(e.PropType)
	}

	return tables, nil
}

// DefaultTables returns the built-in taxonomy covering the common category
// vocabularies of the supported providers
func DefaultTables() *Tables {
	tables := &Tables{
		Provider: make(map[ProviderKey]domain.PropType),
		Global:   make(map[GlobalKey]domain.PropType),
	}

	// PrizePicks uses terse stat codes
	pp := map[domain.Sport]map[string]domain.PropType{
		domain.SportNBA: {
			"PTS":         domain.PropPoints,
			"AST":         domain.PropAssists,
			"REB":         domain.PropRebounds,
			"3PM":         domain.PropThreesMade,
			"PTS+REB+AST": domain.PropPtsRebAst,
			"STL":         domain.PropSteals,
			"BLK":         domain.PropBlocks,
			"TO":          domain.PropTurnovers,
			"Fantasy":     domain.PropFantasyPoints,
		},
		domain.SportMLB: {
			"H":       domain.PropHits,
			"HR":      domain.PropHomeRuns,
			"RBI":     domain.PropRunsBattedIn,
			"R":       domain.PropRunsScored,
			"TB":      domain.PropTotalBases,
			"SB":      domain.PropStolenBases,
			"K":       domain.PropStrikeouts,
			"IP":      domain.PropInningsPitched,
			"H+R+RBI": domain.PropHitsRunsRBIs,
			"Outs":    domain.PropPitcherOuts,
		},
		domain.SportNFL: {
			"Pass Yds": domain.PropPassingYards,
			"Rush Yds": domain.PropRushingYards,
			"Rec Yds":  domain.PropReceivingYards,
			"Pass TDs": domain.PropPassingTDs,
			"Rec":      domain.PropReceptions,
			"INT":      domain.PropInterceptions,
		},
		domain.SportNHL: {
			"G":     domain.PropGoals,
			"A":     domain.PropHockeyAssists,
			"SOG":   domain.PropShotsOnGoal,
			"Saves": domain.PropGoalieSaves,
		},
	}
	for sport, categories := range pp {
		for category, pt := range categories {
			tables.Provider[ProviderKey{Provider: "prizepicks", Category: category, Sport: sport}] = pt
		}
	}

	// Global fallback keyed on normalized category strings; covers the
	// spelled-out vocabularies sportsbook providers use
	global := map[domain.Sport]map[string]domain.PropType{
		domain.SportNBA: {
			"points":                  domain.PropPoints,
			"assists":                 domain.PropAssists,
			"rebounds":                domain.PropRebounds,
			"threes made":             domain.PropThreesMade,
			"3 pointers made":         domain.PropThreesMade,
			"pts rebs asts":           domain.PropPtsRebAst,
			"points rebounds assists": domain.PropPtsRebAst,
			"steals":                  domain.PropSteals,
			"blocks":                  domain.PropBlocks,
			"turnovers":               domain.PropTurnovers,
			"fantasy points":          domain.PropFantasyPoints,
			"total points":            domain.PropTeamTotalPoints,
		},
		domain.SportMLB: {
			"hits":                domain.PropHits,
			"home runs":           domain.PropHomeRuns,
			"rbis":                domain.PropRunsBattedIn,
			"runs batted in":      domain.PropRunsBattedIn,
			"runs":                domain.PropRunsScored,
			"runs scored":         domain.PropRunsScored,
			"total bases":         domain.PropTotalBases,
			"stolen bases":        domain.PropStolenBases,
			"doubles":             domain.PropDoubles,
			"walks":               domain.PropBatterWalks,
			"batter strikeouts":   domain.PropBatterStrikeouts,
			"hits runs rbis":      domain.PropHitsRunsRBIs,
			"strikeouts":          domain.PropStrikeouts,
			"pitcher strikeouts":  domain.PropStrikeouts,
			"innings pitched":     domain.PropInningsPitched,
			"hits allowed":        domain.PropHitsAllowed,
			"walks allowed":       domain.PropWalksAllowed,
			"earned runs":         domain.PropEarnedRuns,
			"earned runs allowed": domain.PropEarnedRuns,
			"to record a win":     domain.PropPitcherWins,
			"saves":               domain.PropSaves,
			"pitching outs":       domain.PropPitcherOuts,
			"total runs":          domain.PropTeamTotalRuns,
		},
		domain.SportNFL: {
			"passing yards":      domain.PropPassingYards,
			"rushing yards":      domain.PropRushingYards,
			"receiving yards":    domain.PropReceivingYards,
			"passing touchdowns": domain.PropPassingTDs,
			"passing tds":        domain.PropPassingTDs,
			"receptions":         domain.PropReceptions,
			"interceptions":      domain.PropInterceptions,
			"total points":       domain.PropTeamTotalPoints,
		},
		domain.SportNHL: {
			"goals":            domain.PropGoals,
			"assists":          domain.PropHockeyAssists,
			"shots on goal":    domain.PropShotsOnGoal,
			"saves":            domain.PropGoalieSaves,
			"goaltender saves": domain.PropGoalieSaves,
			"total goals":      domain.PropTeamTotalGoals,
		},
	}
	for sport, categories := range global {
		for category, pt := range categories {
			tables.Global[GlobalKey{Sport: sport, Category: category}] = pt
		}
	}

	return tables
}
