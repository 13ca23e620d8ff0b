package mapper

import (
	"strings"

	"github.com/oddsforge/propline/internal/domain"
)

// teamTable maps lowercase team names and aliases to canonical codes,
// scoped per sport since codes collide across leagues
type teamTable map[domain.Sport]map[string]string

// canonicalTeams covers the current franchises of the supported leagues.
// Providers send anything from codes ("LAD") to full names ("Los Angeles
// Dodgers") to city-less names ("Dodgers"); all are listed.
var canonicalTeams = teamTable{
	domain.SportMLB: {
		"arizona diamondbacks": "ARI", "diamondbacks": "ARI", "ari": "ARI", "az": "ARI",
		"atlanta braves": "ATL", "braves": "ATL", "atl": "ATL",
		"baltimore orioles": "BAL", "orioles": "BAL", "bal": "BAL",
		"boston red sox": "BOS", "red sox": "BOS", "bos": "BOS",
		"chicago cubs": "CHC", "cubs": "CHC", "chc": "CHC",
		"chicago white sox": "CWS", "white sox": "CWS", "cws": "CWS", "chw": "CWS",
		"cincinnati reds": "CIN", "reds": "CIN", "cin": "CIN",
		"cleveland guardians": "CLE", "guardians": "CLE", "cle": "CLE",
		"colorado rockies": "COL", "rockies": "COL", "col": "COL",
		"detroit tigers": "DET", "tigers": "DET", "det": "DET",
		"houston astros": "HOU", "astros": "HOU", "hou": "HOU",
		"kansas city royals": "KC", "royals": "KC", "kc": "KC", "kcr": "KC",
		"los angeles angels": "LAA", "angels": "LAA", "laa": "LAA",
		"los angeles dodgers": "LAD", "dodgers": "LAD", "lad": "LAD",
		"miami marlins": "MIA", "marlins": "MIA", "mia": "MIA",
		"milwaukee brewers": "MIL", "brewers": "MIL", "mil": "MIL",
		"minnesota twins": "MIN", "twins": "MIN", "min": "MIN",
		"new york mets": "NYM", "mets": "NYM", "nym": "NYM",
		"new york yankees": "NYY", "yankees": "NYY", "nyy": "NYY",
		"oakland athletics": "OAK", "athletics": "OAK", "oak": "OAK",
		"philadelphia phillies": "PHI", "phillies": "PHI", "phi": "PHI",
		"pittsburgh pirates": "PIT", "pirates": "PIT", "pit": "PIT",
		"san diego padres": "SD", "padres": "SD", "sd": "SD", "sdp": "SD",
		"san francisco giants": "SF", "giants": "SF", "sf": "SF", "sfg": "SF",
		"seattle mariners": "SEA", "mariners": "SEA", "sea": "SEA",
		"st louis cardinals": "STL", "cardinals": "STL", "stl": "STL",
		"tampa bay rays": "TB", "rays": "TB", "tb": "TB", "tbr": "TB",
		"texas rangers": "TEX", "rangers": "TEX", "tex": "TEX",
		"toronto blue jays": "TOR", "blue jays": "TOR", "tor": "TOR",
		"washington nationals": "WSH", "nationals": "WSH", "wsh": "WSH", "was": "WSH",
	},
	domain.SportNBA: {
		"atlanta hawks": "ATL", "hawks": "ATL", "atl": "ATL",
		"boston celtics": "BOS", "celtics": "BOS", "bos": "BOS",
		"brooklyn nets": "BKN", "nets": "BKN", "bkn": "BKN",
		"charlotte hornets": "CHA", "hornets": "CHA", "cha": "CHA",
		"chicago bulls": "CHI", "bulls": "CHI", "chi": "CHI",
		"cleveland cavaliers": "CLE", "cavaliers": "CLE", "cle": "CLE",
		"dallas mavericks": "DAL", "mavericks": "DAL", "dal": "DAL",
		"denver nuggets": "DEN", "nuggets": "DEN", "den": "DEN",
		"detroit pistons": "DET", "pistons": "DET", "det": "DET",
		"golden state warriors": "GSW", "warriors": "GSW", "gsw": "GSW", "gs": "GSW",
		"houston rockets": "HOU", "rockets": "HOU", "hou": "HOU",
		"indiana pacers": "IND", "pacers": "IND", "ind": "IND",
		"la clippers": "LAC", "los angeles clippers": "LAC", "clippers": "LAC", "lac": "LAC",
		"los angeles lakers": "LAL", "lakers": "LAL", "lal": "LAL",
		"memphis grizzlies": "MEM", "grizzlies": "MEM", "mem": "MEM",
		"miami heat": "MIA", "heat": "MIA", "mia": "MIA",
		"milwaukee bucks": "MIL", "bucks": "MIL", "mil": "MIL",
		"minnesota timberwolves": "MIN", "timberwolves": "MIN", "min": "MIN",
		"new orleans pelicans": "NOP", "pelicans": "NOP", "nop": "NOP", "no": "NOP",
		"new york knicks": "NYK", "knicks": "NYK", "nyk": "NYK", "ny": "NYK",
		"oklahoma city thunder": "OKC", "thunder": "OKC", "okc": "OKC",
		"orlando magic": "ORL", "magic": "ORL", "orl": "ORL",
		"philadelphia 76ers": "PHI", "76ers": "PHI", "sixers": "PHI", "phi": "PHI",
		"phoenix suns": "PHX", "suns": "PHX", "phx": "PHX",
		"portland trail blazers": "POR", "trail blazers": "POR", "blazers": "POR", "por": "POR",
		"sacramento kings": "SAC", "kings": "SAC", "sac": "SAC",
		"san antonio spurs": "SAS", "spurs": "SAS", "sas": "SAS", "sa": "SAS",
		"toronto raptors": "TOR", "raptors": "TOR", "tor": "TOR",
		"utah jazz": "UTA", "jazz": "UTA", "uta": "UTA",
		"washington wizards": "WAS", "wizards": "WAS", "was": "WAS",
	},
	domain.SportNFL: {
		"arizona cardinals": "ARI", "cardinals": "ARI", "ari": "ARI",
		"atlanta falcons": "ATL", "falcons": "ATL", "atl": "ATL",
		"baltimore ravens": "BAL", "ravens": "BAL", "bal": "BAL",
		"buffalo bills": "BUF", "bills": "BUF", "buf": "BUF",
		"carolina panthers": "CAR", "panthers": "CAR", "car": "CAR",
		"chicago bears": "CHI", "bears": "CHI", "chi": "CHI",
		"cincinnati bengals": "CIN", "bengals": "CIN", "cin": "CIN",
		"cleveland browns": "CLE", "browns": "CLE", "cle": "CLE",
		"dallas cowboys": "DAL", "cowboys": "DAL", "dal": "DAL",
		"denver broncos": "DEN", "broncos": "DEN", "den": "DEN",
		"detroit lions": "DET", "lions": "DET", "det": "DET",
		"green bay packers": "GB", "packers": "GB", "gb": "GB", "gnb": "GB",
		"houston texans": "HOU", "texans": "HOU", "hou": "HOU",
		"indianapolis colts": "IND", "colts": "IND", "ind": "IND",
		"jacksonville jaguars": "JAX", "jaguars": "JAX", "jax": "JAX", "jac": "JAX",
		"kansas city chiefs": "KC", "chiefs": "KC", "kc": "KC",
		"las vegas raiders": "LV", "raiders": "LV", "lv": "LV", "lvr": "LV",
		"los angeles chargers": "LAC", "chargers": "LAC", "lac": "LAC",
		"los angeles rams": "LAR", "rams": "LAR", "lar": "LAR",
		"miami dolphins": "MIA", "dolphins": "MIA", "mia": "MIA",
		"minnesota vikings": "MIN", "vikings": "MIN", "min": "MIN",
		"new england patriots": "NE", "patriots": "NE", "ne": "NE", "nwe": "NE",
		"new orleans saints": "NO", "saints": "NO", "no": "NO", "nor": "NO",
		"new york giants": "NYG", "nyg": "NYG",
		"new york jets": "NYJ", "jets": "NYJ", "nyj": "NYJ",
		"philadelphia eagles": "PHI", "eagles": "PHI", "phi": "PHI",
		"pittsburgh steelers": "PIT", "steelers": "PIT", "pit": "PIT",
		"san francisco 49ers": "SF", "49ers": "SF", "sf": "SF", "sfo": "SF",
		"seattle seahawks": "SEA", "seahawks": "SEA", "sea": "SEA",
		"tampa bay buccaneers": "TB", "buccaneers": "TB", "tb": "TB", "tbb": "TB",
		"tennessee titans": "TEN", "titans": "TEN", "ten": "TEN",
		"washington commanders": "WAS", "commanders": "WAS", "was": "WAS", "wsh": "WAS",
	},
	domain.SportNHL: {
		"anaheim ducks": "ANA", "ducks": "ANA", "ana": "ANA",
		"boston bruins": "BOS", "bruins": "BOS", "bos": "BOS",
		"buffalo sabres": "BUF", "sabres": "BUF", "buf": "BUF",
		"calgary flames": "CGY", "flames": "CGY", "cgy": "CGY",
		"carolina hurricanes": "CAR", "hurricanes": "CAR", "car": "CAR",
		"chicago blackhawks": "CHI", "blackhawks": "CHI", "chi": "CHI",
		"colorado avalanche": "COL", "avalanche": "COL", "col": "COL",
		"columbus blue jackets": "CBJ", "blue jackets": "CBJ", "cbj": "CBJ",
		"dallas stars": "DAL", "stars": "DAL", "dal": "DAL",
		"detroit red wings": "DET", "red wings": "DET", "det": "DET",
		"edmonton oilers": "EDM", "oilers": "EDM", "edm": "EDM",
		"florida panthers": "FLA", "fla": "FLA",
		"los angeles kings": "LAK", "lak": "LAK", "la": "LAK",
		"minnesota wild": "MIN", "wild": "MIN", "min": "MIN",
		"montreal canadiens": "MTL", "canadiens": "MTL", "mtl": "MTL",
		"nashville predators": "NSH", "predators": "NSH", "nsh": "NSH",
		"new jersey devils": "NJD", "devils": "NJD", "njd": "NJD", "nj": "NJD",
		"new york islanders": "NYI", "islanders": "NYI", "nyi": "NYI",
		"new york rangers": "NYR", "nyr": "NYR",
		"ottawa senators": "OTT", "senators": "OTT", "ott": "OTT",
		"philadelphia flyers": "PHI", "flyers": "PHI", "phi": "PHI",
		"pittsburgh penguins": "PIT", "penguins": "PIT", "pit": "PIT",
		"san jose sharks": "SJS", "sharks": "SJS", "sjs": "SJS", "sj": "SJS",
		"seattle kraken": "SEA", "kraken": "SEA", "sea": "SEA",
		"st louis blues": "STL", "blues": "STL", "stl": "STL",
		"tampa bay lightning": "TBL", "lightning": "TBL", "tbl": "TBL", "tb": "TBL",
		"toronto maple leafs": "TOR", "maple leafs": "TOR", "tor": "TOR",
		"utah hockey club": "UTA", "uta": "UTA",
		"vancouver canucks": "VAN", "canucks": "VAN", "van": "VAN",
		"vegas golden knights": "VGK", "golden knights": "VGK", "vgk": "VGK",
		"washington capitals": "WSH", "capitals": "WSH", "wsh": "WSH",
		"winnipeg jets": "WPG", "wpg": "WPG",
	},
}

// ResolveTeam maps a provider team string to a canonical code. Exact match
// on the normalized name is tried first, then a substring match against the
// full names. An unresolvable team is kept verbatim: team code is display
// metadata, not identity, so mangling it is worse than passing it through.
func ResolveTeam(sport domain.Sport, raw string) (string, bool) {
	table, ok := canonicalTeams[sport]
	if !ok || raw == "" {
		return raw, false
	}

	normalized := normalizeTeamName(raw)
	if code, ok := table[normalized]; ok {
		return code, true
	}

	// Partial match against the full-name aliases only; short aliases would
	// produce false positives on substring containment
	for name, code := range table {
		if len(name) > 5 && strings.Contains(name, normalized) {
			return code, true
		}
	}

	return raw, false
}

func normalizeTeamName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, ".", "")
	return s
}
