package provider

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/oddsforge/propline/internal/domain"
)

// DraftKingsClient fetches props from the DraftKings sportsbook API.
// DraftKings encodes payouts as american odds strings ("-110", "+120") on
// market outcomes; conversion to canonical multipliers happens downstream
// in the payout normalizer.
type DraftKingsClient struct {
	config     Config
	httpClient *http.Client
	breaker    *CircuitBreaker
	limiter    *RateLimiter
	retry      RetryPolicy

	mu          sync.RWMutex
	lastSuccess time.Time
	lastFailure time.Time
}

// NewDraftKingsClient creates a DraftKings provider client
func NewDraftKingsClient(config Config) *DraftKingsClient {
	if config.Name == "" {
		config.Name = "draftkings"
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://sportsbook.draftkings.com/api"
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}

	return &DraftKingsClient{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		breaker:    NewCircuitBreaker(config.Name, config.Circuit),
		limiter:    NewRateLimiter(config.RequestsPerMinute, config.Burst),
		retry:      DefaultRetryPolicy(),
	}
}

func (c *DraftKingsClient) Name() string {
	return c.config.Name
}

// dkEventsResponse is the upstream event listing payload
type dkEventsResponse struct {
	Events []struct {
		EventID   string    `json:"eventId"`
		StartDate time.Time `json:"startDate"`
		Status    string    `json:"eventStatus"` // "NOT_STARTED", "IN_PROGRESS", "FINAL"
		HomeTeam  string    `json:"homeTeamName"`
		AwayTeam  string    `json:"awayTeamName"`
	} `json:"events"`
}

// dkMarketsResponse is the upstream player/team prop market payload
type dkMarketsResponse struct {
	Markets []struct {
		MarketID string `json:"marketId"`
		EventID  string `json:"eventId"`
		Category string `json:"categoryName"`
		Player   struct {
			ID       string `json:"id"`
			Name     string `json:"name"`
			TeamName string `json:"teamName"`
			Position string `json:"position"`
		} `json:"participant"`
		Line      float64   `json:"line"`
		UpdatedAt time.Time `json:"lastUpdated"`
		Outcomes  []struct {
			Label        string `json:"label"` // "Over" / "Under"
			OddsAmerican string `json:"oddsAmerican"`
		} `json:"outcomes"`
	} `json:"markets"`
}

// FetchScheduledGames returns only games with status SCHEDULED
func (c *DraftKingsClient) FetchScheduledGames(ctx context.Context, sport domain.Sport) ([]domain.Game, error) {
	url := fmt.Sprintf("%s/v1/events?league=%s", c.config.BaseURL, sport)

	var payload dkEventsResponse
	if err := c.fetch(ctx, url, &payload); err != nil {
		return nil, err
	}

	games := make([]domain.Game, 0, len(payload.Events))
	for _, ev := range payload.Events {
		if ev.Status != "NOT_STARTED" {
			continue
		}
		games = append(games, domain.Game{
			ID:       ev.EventID,
			Sport:    sport,
			Status:   domain.GameScheduled,
			StartTS:  ev.StartDate,
			HomeTeam: ev.HomeTeam,
			AwayTeam: ev.AwayTeam,
		})
	}

	return games, nil
}

// FetchProps returns raw prop markets for the given games and market type
func (c *DraftKingsClient) FetchProps(ctx context.Context, sport domain.Sport, gameIDs []string, market domain.MarketType) ([]domain.RawProp, error) {
	if len(gameIDs) == 0 {
		return nil, nil
	}

	category := "player-props"
	if market == domain.MarketTeamProps {
		category = "team-props"
	}
	url := fmt.Sprintf("%s/v1/markets?league=%s&category=%s&event_ids=%s",
		c.config.BaseURL, sport, category, strings.Join(gameIDs, ","))

	var payload dkMarketsResponse
	if err := c.fetch(ctx, url, &payload); err != nil {
		return nil, err
	}

	props := make([]domain.RawProp, 0, len(payload.Markets))
	for _, m := range payload.Markets {
		var overOdds, underOdds *float64
		for _, outcome := range m.Outcomes {
			odds, err := parseAmericanOdds(outcome.OddsAmerican)
			if err != nil {
				log.Debug().Str("provider", c.config.Name).
					Str("market", m.MarketID).
					Str("odds", outcome.OddsAmerican).
					Msg("Skipping unparseable outcome odds")
				continue
			}
			switch strings.ToLower(outcome.Label) {
			case "over":
				overOdds = &odds
			case "under":
				underOdds = &odds
			}
		}

		position := m.Player.Position
		if market == domain.MarketTeamProps {
			position = domain.PositionTeam
		}

		props = append(props, domain.RawProp{
			ProviderID:       c.config.Name,
			ExternalPropID:   m.MarketID,
			ExternalPlayerID: m.Player.ID,
			PlayerName:       m.Player.Name,
			TeamCode:         m.Player.TeamName,
			Position:         position,
			PropCategory:     m.Category,
			LineValue:        m.Line,
			PayoutType:       domain.PayoutStandard,
			OverOdds:         overOdds,
			UnderOdds:        underOdds,
			UpdatedTS:        m.UpdatedAt,
			Sport:            sport,
			GameID:           m.EventID,
			GameStatus:       domain.GameScheduled,
		})
	}

	return props, nil
}

// parseAmericanOdds converts "-110" / "+120" to a signed float
func parseAmericanOdds(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty odds")
	}
	v, err := strconv.ParseFloat(strings.TrimPrefix(s, "+"), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid american odds %q: %w", s, err)
	}
	return v, nil
}

// fetch applies rate limiting, retry, and circuit breaker protection around
// a single upstream call
func (c *DraftKingsClient) fetch(ctx context.Context, url string, target interface{}) error {
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
		log.Warn().Str("provider", c.config.Name).Str("url", url).Err(err).Msg("DraftKings fetch failed")
	}
	return err
}

// Health reports operational status
func (c *DraftKingsClient) Health() Health {
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
