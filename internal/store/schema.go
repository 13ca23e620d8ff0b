package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// schema creates the canonical props table and its query-path indexes.
// line_hash is the primary key; the secondary indexes back the sport and
// game list paths and cache warming.
const schema = `
CREATE TABLE IF NOT EXISTS canonical_props (
	line_hash          TEXT PRIMARY KEY,
	prop_type          TEXT NOT NULL,
	sport              TEXT NOT NULL,
	player_external_id TEXT NOT NULL,
	player_provider_id TEXT NOT NULL,
	player_name        TEXT NOT NULL DEFAULT '',
	team_code          TEXT NOT NULL DEFAULT '',
	position           TEXT NOT NULL DEFAULT '',
	offered_line       NUMERIC(10,1) NOT NULL,
	payout             JSONB NOT NULL,
	provider_id        TEXT NOT NULL,
	external_prop_id   TEXT NOT NULL,
	game_id            TEXT NOT NULL DEFAULT '',
	game_status        TEXT NOT NULL DEFAULT 'SCHEDULED',
	game_start_ts      TIMESTAMPTZ,
	updated_ts         TIMESTAMPTZ NOT NULL,
	ingested_ts        TIMESTAMPTZ NOT NULL,
	superseded         BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS idx_props_sport_status
	ON canonical_props (sport, game_status) WHERE superseded = FALSE;

CREATE INDEX IF NOT EXISTS idx_props_game
	ON canonical_props (game_id);

CREATE INDEX IF NOT EXISTS idx_props_provider_external
	ON canonical_props (provider_id, external_prop_id);

CREATE INDEX IF NOT EXISTS idx_props_ingested
	ON canonical_props (ingested_ts DESC);
`

// EnsureSchema creates the props table and indexes if missing
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}
