package payout

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/oddsforge/propline/internal/domain"
)

// ErrInsufficientPayoutData is returned when neither side of a prop carries
// usable odds. Props failing normalization are dropped and counted per
// provider for operator alarms.
var ErrInsufficientPayoutData = errors.New("insufficient payout data")

// assumedVig is applied when synthesizing the missing side of a one-sided
// offering: 1/over + 1/under = 1 + vig
const assumedVig = 0.05

// Normalizer converts provider-specific payout encodings into the canonical
// decimal-odds schema. Detection prefers structural evidence (sign, american
// magnitude) and falls back to the provider's own payout-type hint before
// resorting to the mixed heuristic.
type Normalizer struct {
	baseline    *BaselineTracker
	boostFactor float64
}

// NewNormalizer creates a normalizer; boostFactor is the multiple of the
// rolling 24h median above which an over multiplier is treated as a
// promotional boost (0 uses the default 1.3).
func NewNormalizer(baseline *BaselineTracker, boostFactor float64) *Normalizer {
	if boostFactor <= 0 {
		boostFactor = 1.3
	}
	return &Normalizer{
		baseline:    baseline,
		boostFactor: boostFactor,
	}
}

// Normalize produces the canonical payout schema for a raw prop. The prop
// type is supplied by the caller (the mapper resolves taxonomy first) so the
// boost baseline can be tracked per (sport, prop_type).
func (n *Normalizer) Normalize(raw domain.RawProp, propType domain.PropType) (domain.PayoutSchema, error) {
	over, under := raw.OverOdds, raw.UnderOdds

	if over == nil && under == nil {
		return domain.PayoutSchema{}, fmt.Errorf("%w: provider=%s prop=%s", ErrInsufficientPayoutData, raw.ProviderID, raw.ExternalPropID)
	}

	schema := domain.PayoutSchema{
		Type:           raw.PayoutType,
		ProviderFormat: providerFormat(raw),
	}
	if schema.Type == "" {
		schema.Type = domain.PayoutStandard
	}

	var overMult, underMult float64
	switch {
	case over != nil && under != nil:
		variant, om, um, lowConfidence := detectPair(*over, *under, raw.PayoutType)
		schema.Variant = variant
		schema.LowConfidence = lowConfidence
		overMult, underMult = om, um

	case over != nil:
		overMult = heuristicMultiplier(*over)
		underMult = synthesizeOther(overMult)
		schema.Variant = domain.VariantMixed
		schema.LowConfidence = true

	default:
		underMult = heuristicMultiplier(*under)
		overMult = synthesizeOther(underMult)
		schema.Variant = domain.VariantMixed
		schema.LowConfidence = true
	}

	if !validMultiplier(overMult) || !validMultiplier(underMult) {
		return domain.PayoutSchema{}, fmt.Errorf("%w: degenerate multipliers over=%f under=%f", ErrInsufficientPayoutData, overMult, underMult)
	}

	// Banker's rounding to 3 places fixes the hash input precision
	schema.OverMultiplier = decimal.NewFromFloat(overMult).RoundBank(3)
	schema.UnderMultiplier = decimal.NewFromFloat(underMult).RoundBank(3)

	n.applyBoost(&schema, raw, propType)

	if schema.LowConfidence {
		log.Debug().Str("provider", raw.ProviderID).
			Str("prop", raw.ExternalPropID).
			Str("variant", string(schema.Variant)).
			Msg("Payout normalized with low confidence")
	}

	return schema, nil
}

// detectPair classifies a two-sided offering. Detection order: american
// (sign or magnitude >= 100 on both sides), direct multiplier (provider
// hint), decimal odds, then the mixed per-side heuristic.
func detectPair(over, under float64, hint domain.PayoutType) (domain.PayoutVariant, float64, float64, bool) {
	overAmerican := looksAmerican(over)
	underAmerican := looksAmerican(under)

	switch {
	case overAmerican && underAmerican:
		return domain.VariantMoneyline, americanToMultiplier(over), americanToMultiplier(under), false

	case !overAmerican && !underAmerican && inMultiplierRange(over) && inMultiplierRange(under):
		if hint == domain.PayoutMultiplier || hint == domain.PayoutFlex || hint == domain.PayoutBoost {
			return domain.VariantMultiplier, over, under, false
		}
		if inDecimalRange(over) && inDecimalRange(under) {
			return domain.VariantDecimal, over, under, false
		}
		return domain.VariantMultiplier, over, under, false

	default:
		// Mixed encodings on the two sides; resolve each independently
		return domain.VariantMixed, heuristicMultiplier(over), heuristicMultiplier(under), true
	}
}

// looksAmerican reports whether a value is plausibly american odds: an
// explicit negative sign, or magnitude at or above 100
func looksAmerican(v float64) bool {
	return v < 0 || math.Abs(v) >= 100
}

func inMultiplierRange(v float64) bool {
	return v >= 1.0 && v <= 100.0
}

func inDecimalRange(v float64) bool {
	return v > 1.0 && v < 50.0
}

// americanToMultiplier converts american odds to decimal-odds form:
// +X -> 1 + X/100, -X -> 1 + 100/X
func americanToMultiplier(odds float64) float64 {
	if odds >= 0 {
		return 1 + odds/100
	}
	return 1 + 100/math.Abs(odds)
}

// heuristicMultiplier resolves a single ambiguous value: magnitude >= 100
// is treated as american, anything else as decimal odds
func heuristicMultiplier(v float64) float64 {
	if looksAmerican(v) {
		return americanToMultiplier(v)
	}
	return v
}

// synthesizeOther derives the missing side from implied probability under
// the assumed vig: 1/over + 1/under = 1 + vig
func synthesizeOther(known float64) float64 {
	if known <= 0 {
		return 0
	}
	implied := (1 + assumedVig) - 1/known
	if implied <= 0 {
		return 0
	}
	return 1 / implied
}

func validMultiplier(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 1.0
}

// applyBoost flags promotional payouts: an explicit provider boost flag, a
// BOOST payout type, or an over multiplier materially above the rolling 24h
// median for this (sport, prop_type)
func (n *Normalizer) applyBoost(schema *domain.PayoutSchema, raw domain.RawProp, propType domain.PropType) {
	over, _ := schema.OverMultiplier.Float64()

	boosted := raw.BoostFlag || raw.PayoutType == domain.PayoutBoost
	if !boosted && n.baseline != nil && propType.Known() {
		if median, ok := n.baseline.Median(raw.Sport, propType); ok && over > n.boostFactor*median {
			boosted = true
		}
	}

	if n.baseline != nil && propType.Known() {
		n.baseline.Observe(raw.Sport, propType, over)
	}

	if boosted {
		boost := schema.OverMultiplier
		schema.BoostMultiplier = &boost
		schema.Type = domain.PayoutBoost
	}
}

// providerFormat preserves the original encoding for traceability
func providerFormat(raw domain.RawProp) map[string]string {
	format := map[string]string{
		"payout_type": string(raw.PayoutType),
	}
	if raw.OverOdds != nil {
		format["over"] = strconv.FormatFloat(*raw.OverOdds, 'f', -1, 64)
	}
	if raw.UnderOdds != nil {
		format["under"] = strconv.FormatFloat(*raw.UnderOdds, 'f', -1, 64)
	}
	if raw.BoostFlag {
		format["boost_flag"] = "true"
	}
	return format
}
