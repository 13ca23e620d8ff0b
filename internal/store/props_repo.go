package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/oddsforge/propline/internal/domain"
)

// propsRepo implements PropsRepo for PostgreSQL. The canonical_props table
// keys on line_hash; re-ingesting the same hash refreshes the mutable
// columns and bumps ingested_ts.
type propsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewPropsRepo creates a PostgreSQL props repository
func NewPropsRepo(db *sqlx.DB, timeout time.Duration) PropsRepo {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &propsRepo{
		db:      db,
		timeout: timeout,
	}
}

const propColumns = `
	line_hash, prop_type, sport, player_external_id, player_provider_id,
	player_name, team_code, position, offered_line, payout, provider_id,
	external_prop_id, game_id, game_status, game_start_ts, updated_ts,
	ingested_ts, superseded`

// Upsert inserts or refreshes a canonical prop keyed on line hash
func (r *propsRepo) Upsert(ctx context.Context, prop *domain.CanonicalProp) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	payoutJSON, err := json.Marshal(prop.Payout)
	if err != nil {
		return fmt.Errorf("failed to marshal payout: %w", err)
	}

	query := `
		INSERT INTO canonical_props (` + propColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (line_hash) DO UPDATE SET
			player_name = EXCLUDED.player_name,
			team_code = EXCLUDED.team_code,
			game_status = EXCLUDED.game_status,
			updated_ts = EXCLUDED.updated_ts,
			ingested_ts = EXCLUDED.ingested_ts,
			superseded = EXCLUDED.superseded
		WHERE canonical_props.updated_ts <= EXCLUDED.updated_ts`

	_, err = r.db.ExecContext(ctx, query,
		prop.LineHash.String(), prop.PropType, prop.Sport,
		prop.PlayerKey.ExternalID, prop.PlayerKey.ProviderID,
		prop.PlayerName, prop.TeamCode, prop.Position,
		prop.OfferedLine.StringFixed(1), payoutJSON,
		prop.ProviderID, prop.ExternalPropID,
		prop.GameID, prop.GameStatus, prop.GameStartTS,
		prop.UpdatedTS, prop.IngestedTS, prop.Superseded)
	if err != nil {
		return fmt.Errorf("failed to upsert prop: %w", err)
	}

	return nil
}

// MarkSuperseded flags a stored offering as replaced
func (r *propsRepo) MarkSuperseded(ctx context.Context, hash domain.LineHash) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `UPDATE canonical_props SET superseded = TRUE WHERE line_hash = $1`
	if _, err := r.db.ExecContext(ctx, query, hash.String()); err != nil {
		return fmt.Errorf("failed to mark prop superseded: %w", err)
	}
	return nil
}

// GetByHash returns one prop or (nil, nil) when absent
func (r *propsRepo) GetByHash(ctx context.Context, hash domain.LineHash) (*domain.CanonicalProp, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT ` + propColumns + ` FROM canonical_props WHERE line_hash = $1`
	row := r.db.QueryRowxContext(ctx, query, hash.String())

	prop, err := scanProp(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get prop by hash: %w", err)
	}
	return prop, nil
}

// ListBySport returns live props for a sport, newest ingested first
func (r *propsRepo) ListBySport(ctx context.Context, sport domain.Sport, limit int) ([]domain.CanonicalProp, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT ` + propColumns + `
		FROM canonical_props
		WHERE sport = $1 AND superseded = FALSE
		ORDER BY ingested_ts DESC
		LIMIT $2`

	rows, err := r.db.QueryxContext(ctx, query, sport, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query props by sport: %w", err)
	}
	defer rows.Close()

	return scanProps(rows)
}

// ListByGame returns all props for one game
func (r *propsRepo) ListByGame(ctx context.Context, gameID string, limit int) ([]domain.CanonicalProp, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT ` + propColumns + `
		FROM canonical_props
		WHERE game_id = $1
		ORDER BY line_hash
		LIMIT $2`

	rows, err := r.db.QueryxContext(ctx, query, gameID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query props by game: %w", err)
	}
	defer rows.Close()

	return scanProps(rows)
}

// DeleteByGame removes all props for a finished game
func (r *propsRepo) DeleteByGame(ctx context.Context, gameID string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	result, err := r.db.ExecContext(ctx, `DELETE FROM canonical_props WHERE game_id = $1`, gameID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete props by game: %w", err)
	}
	return result.RowsAffected()
}

// Ping tests connectivity
func (r *propsRepo) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.db.PingContext(ctx)
}

// rowScanner covers both sqlx.Row and sqlx.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProp(row rowScanner) (*domain.CanonicalProp, error) {
	var (
		prop       domain.CanonicalProp
		lineHash   string
		line       string
		payoutJSON []byte
	)

	err := row.Scan(
		&lineHash, &prop.PropType, &prop.Sport,
		&prop.PlayerKey.ExternalID, &prop.PlayerKey.ProviderID,
		&prop.PlayerName, &prop.TeamCode, &prop.Position,
		&line, &payoutJSON,
		&prop.ProviderID, &prop.ExternalPropID,
		&prop.GameID, &prop.GameStatus, &prop.GameStartTS,
		&prop.UpdatedTS, &prop.IngestedTS, &prop.Superseded)
	if err != nil {
		return nil, err
	}

	prop.LineHash = domain.LineHash(lineHash)
	prop.OfferedLine, err = decimal.NewFromString(line)
	if err != nil {
		return nil, fmt.Errorf("invalid stored line %q: %w", line, err)
	}
	if err := json.Unmarshal(payoutJSON, &prop.Payout); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payout: %w", err)
	}

	return &prop, nil
}

func scanProps(rows *sqlx.Rows) ([]domain.CanonicalProp, error) {
	var props []domain.CanonicalProp
	for rows.Next() {
		prop, err := scanProp(rows)
		if err != nil {
			return nil, err
		}
		props = append(props, *prop)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return props, nil
}
