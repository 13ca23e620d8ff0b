package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/oddsforge/propline/internal/domain"
)

// warmLimit caps how many props per sport are pulled into L1 at boot
const warmLimit = 10000

// Warm preloads the L1 cache from the durable store so the query surface is
// populated before the first ingest cycles complete. Only props for games
// still in SCHEDULED state are loaded.
func (p *Pipeline) Warm(ctx context.Context) {
	if p.props == nil || !p.cfg.Cache.WarmOnBoot {
		return
	}

	start := time.Now()
	total := 0
	for _, sport := range allSports {
		props, err := p.props.ListBySport(ctx, sport, warmLimit)
		if err != nil {
			log.Warn().Str("sport", string(sport)).Err(err).Msg("Cache warm failed for sport")
			continue
		}
		for i := range props {
			if props[i].GameStatus != domain.GameScheduled {
				continue
			}
			p.cache.Put(ctx, &props[i])
			total++
		}
	}

	log.Info().Int("props", total).
		Dur("elapsed", time.Since(start)).
		Msg("Cache warmed from store")
}
