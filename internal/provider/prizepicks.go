package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/oddsforge/propline/internal/domain"
)

// PrizePicksClient fetches props from the PrizePicks projections API.
// PrizePicks encodes payouts as direct multipliers (3.0x / 2.5x) and flags
// flex and boosted entries in projection attributes.
type PrizePicksClient struct {
	config     Config
	httpClient *http.Client
	breaker    *CircuitBreaker
	limiter    *RateLimiter
	retry      RetryPolicy

	mu          sync.RWMutex
	lastSuccess time.Time
	lastFailure time.Time
}

// NewPrizePicksClient creates a PrizePicks provider client
func NewPrizePicksClient(config Config) *PrizePicksClient {
	if config.Name == "" {
		config.Name = "prizepicks"
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://api.prizepicks.com"
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}

	return &PrizePicksClient{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		breaker:    NewCircuitBreaker(config.Name, config.Circuit),
		limiter:    NewRateLimiter(config.RequestsPerMinute, config.Burst),
		retry:      DefaultRetryPolicy(),
	}
}

func (c *PrizePicksClient) Name() string {
	return c.config.Name
}

// ppGamesResponse is the upstream schedule payload
type ppGamesResponse struct {
	Data []struct {
		ID         string `json:"id"`
		Attributes struct {
			Status    string    `json:"status"`
			StartTime time.Time `json:"start_time"`
			HomeTeam  string    `json:"home_team"`
			AwayTeam  string    `json:"away_team"`
		} `json:"attributes"`
	} `json:"data"`
}

// ppProjectionsResponse is the upstream projections payload
type ppProjectionsResponse struct {
	Data []struct {
		ID         string `json:"id"`
		Attributes struct {
			StatType        string    `json:"stat_type"`
			LineScore       float64   `json:"line_score"`
			OddsType        string    `json:"odds_type"` // "standard", "flex", "boosted"
			OverMultiplier  *float64  `json:"over_multiplier,omitempty"`
			UnderMultiplier *float64  `json:"under_multiplier,omitempty"`
			Boosted         bool      `json:"boosted"`
			Position        string    `json:"position"`
			UpdatedAt       time.Time `json:"updated_at"`
		} `json:"attributes"`
		PlayerID   string `json:"player_id"`
		PlayerName string `json:"player_name"`
		TeamCode   string `json:"team"`
		GameID     string `json:"game_id"`
	} `json:"data"`
}

// FetchScheduledGames returns only games with status SCHEDULED
func (c *PrizePicksClient) FetchScheduledGames(ctx context.Context, sport domain.Sport) ([]domain.Game, error) {
	url := fmt.Sprintf("%s/games?league=%s", c.config.BaseURL, sport)

	var payload ppGamesResponse
	if err := c.fetch(ctx, url, &payload); err != nil {
		return nil, err
	}

	games := make([]domain.Game, 0, len(payload.Data))
	for _, g := range payload.Data {
		if !strings.EqualFold(g.Attributes.Status, "scheduled") {
			continue
		}
		games = append(games, domain.Game{
			ID:       g.ID,
			Sport:    sport,
			Status:   domain.GameScheduled,
			StartTS:  g.Attributes.StartTime,
			HomeTeam: g.Attributes.HomeTeam,
			AwayTeam: g.Attributes.AwayTeam,
		})
	}

	return games, nil
}

// FetchProps returns raw projections for the given games and market
func (c *PrizePicksClient) FetchProps(ctx context.Context, sport domain.Sport, gameIDs []string, market domain.MarketType) ([]domain.RawProp, error) {
	if len(gameIDs) == 0 {
		return nil, nil
	}

	url := fmt.Sprintf("%s/projections?league=%s&market=%s&game_ids=%s",
		c.config.BaseURL, sport, market, strings.Join(gameIDs, ","))

	var payload ppProjectionsResponse
	if err := c.fetch(ctx, url, &payload); err != nil {
		return nil, err
	}

	props := make([]domain.RawProp, 0, len(payload.Data))
	for _, proj := range payload.Data {
		payoutType := domain.PayoutStandard
		switch strings.ToLower(proj.Attributes.OddsType) {
		case "flex":
			payoutType = domain.PayoutFlex
		case "boosted":
			payoutType = domain.PayoutBoost
		case "multiplier":
			payoutType = domain.PayoutMultiplier
		}

		position := proj.Attributes.Position
		if market == domain.MarketTeamProps {
			position = domain.PositionTeam
		}

		props = append(props, domain.RawProp{
			ProviderID:       c.config.Name,
			ExternalPropID:   proj.ID,
			ExternalPlayerID: proj.PlayerID,
			PlayerName:       proj.PlayerName,
			TeamCode:         proj.TeamCode,
			Position:         position,
			PropCategory:     proj.Attributes.StatType,
			LineValue:        proj.Attributes.LineScore,
			PayoutType:       payoutType,
			OverOdds:         proj.Attributes.OverMultiplier,
			UnderOdds:        proj.Attributes.UnderMultiplier,
			BoostFlag:        proj.Attributes.Boosted,
			UpdatedTS:        proj.Attributes.UpdatedAt,
			Sport:            sport,
			GameID:           proj.GameID,
			GameStatus:       domain.GameScheduled,
		})
	}

	return props, nil
}

// fetch applies rate limiting, retry, and circuit breaker protection around
// a single upstream call
func (c *PrizePicksClient) fetch(ctx context.Context, url string, target interface{}) error {
	err := c.breaker.Call(func() error {
		return Retry(ctx, c.retry, func() error {
			if err := c.limiter.Wait(ctx); err != nil {
				return &Error{
					Provider:  c.config.Name,
					Code:      ErrCodeRateLimited,
					Message:   fmt.Sprintf("rate limiter wait: %v", err),
					Temporary: true,
					Cause:     err,
				}
			}
			return getJSON(ctx, c.httpClient, c.config.Name, url, target)
		})
	})

	c.mu.Lock()
	if err != nil {
		c.lastFailure = time.Now()
	} else {
		c.lastSuccess = time.Now()
	}
	c.mu.Unlock()

	if err != nil {
		log.Warn().Str("provider", c.config.Name).Str("url", url).Err(err).Msg("PrizePicks fetch failed")
	}
	return err
}

// Health reports operational status
func (c *PrizePicksClient) Health() Health {
	c.mu.RLock()
	defer c.mu.RUnlock()

	state := c.breaker.GetState()
	return Health{
		Provider:     c.config.Name,
		Healthy:      state == StateClosed,
		CircuitState: state.String(),
		LastSuccess:  c.lastSuccess,
		LastFailure:  c.lastFailure,
		Breaker:      c.breaker.Stats(),
	}
}
