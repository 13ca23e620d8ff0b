package payout

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oddsforge/propline/internal/domain"
)

func fptr(v float64) *float64 { return &v }

func rawWith(over, under *float64, payoutType domain.PayoutType) domain.RawProp {
	return domain.RawProp{
		ProviderID:     "testprov",
		ExternalPropID: "p1",
		Sport:          domain.SportNBA,
		PayoutType:     payoutType,
		OverOdds:       over,
		UnderOdds:      under,
	}
}

func TestNormalize_AmericanEvenOdds(t *testing.T) {
	n := NewNormalizer(nil, 0)

	schema, err := n.Normalize(rawWith(fptr(100), fptr(-100), domain.PayoutStandard), domain.PropPoints)
	require.NoError(t, err)

	assert.Equal(t, domain.VariantMoneyline, schema.Variant)
	assert.Equal(t, "2.000", schema.OverMultiplier.StringFixed(3))
	assert.Equal(t, "2.000", schema.UnderMultiplier.StringFixed(3))
	assert.False(t, schema.LowConfidence)
}

func TestNormalize_AmericanStandardJuice(t *testing.T) {
	n := NewNormalizer(nil, 0)

	schema, err := n.Normalize(rawWith(fptr(-110), fptr(-110), domain.PayoutStandard), domain.PropPoints)
	require.NoError(t, err)

	assert.Equal(t, domain.VariantMoneyline, schema.Variant)
	assert.Equal(t, "1.909", schema.OverMultiplier.StringFixed(3))

	schema, err = n.Normalize(rawWith(fptr(120), fptr(-150), domain.PayoutStandard), domain.PropPoints)
	require.NoError(t, err)
	assert.Equal(t, "2.200", schema.OverMultiplier.StringFixed(3))
	assert.Equal(t, "1.667", schema.UnderMultiplier.StringFixed(3))
}

func TestNormalize_MultiplierHint(t *testing.T) {
	n := NewNormalizer(nil, 0)

	schema, err := n.Normalize(rawWith(fptr(2.5), fptr(1.5), domain.PayoutMultiplier), domain.PropPoints)
	require.NoError(t, err)

	assert.Equal(t, domain.VariantMultiplier, schema.Variant)
	assert.Equal(t, "2.500", schema.OverMultiplier.StringFixed(3))
	assert.Equal(t, domain.PayoutMultiplier, schema.Type)
}

func TestNormalize_DecimalOdds(t *testing.T) {
	n := NewNormalizer(nil, 0)

	schema, err := n.Normalize(rawWith(fptr(1.91), fptr(1.87), domain.PayoutStandard), domain.PropPoints)
	require.NoError(t, err)

	assert.Equal(t, domain.VariantDecimal, schema.Variant)
	assert.Equal(t, "1.910", schema.OverMultiplier.StringFixed(3))
	assert.False(t, schema.LowConfidence)
}

func TestNormalize_MixedEncodings(t *testing.T) {
	n := NewNormalizer(nil, 0)

	// One side american, one side decimal
	schema, err := n.Normalize(rawWith(fptr(-120), fptr(1.85), domain.PayoutStandard), domain.PropPoints)
	require.NoError(t, err)

	assert.Equal(t, domain.VariantMixed, schema.Variant)
	assert.True(t, schema.LowConfidence)
	assert.Equal(t, "1.833", schema.OverMultiplier.StringFixed(3))
	assert.Equal(t, "1.850", schema.UnderMultiplier.StringFixed(3))
}

func TestNormalize_OneSidedSynthesizesVig(t *testing.T) {
	n := NewNormalizer(nil, 0)

	schema, err := n.Normalize(rawWith(fptr(2.0), nil, domain.PayoutStandard), domain.PropPoints)
	require.NoError(t, err)

	assert.Equal(t, domain.VariantMixed, schema.Variant)
	assert.True(t, schema.LowConfidence)

	// 1/over + 1/under = 1.05 must hold
	over, _ := schema.OverMultiplier.Float64()
	under, _ := schema.UnderMultiplier.Float64()
	assert.InDelta(t, 1.05, 1/over+1/under, 0.002)
}

func TestNormalize_NoOddsFails(t *testing.T) {
	n := NewNormalizer(nil, 0)

	_, err := n.Normalize(rawWith(nil, nil, domain.PayoutStandard), domain.PropPoints)
	assert.ErrorIs(t, err, ErrInsufficientPayoutData)
}

func TestNormalize_DegenerateMultiplierFails(t *testing.T) {
	n := NewNormalizer(nil, 0)

	// Multiplier at exactly 1.0 pays nothing; reject
	_, err := n.Normalize(rawWith(fptr(1.0), fptr(1.0), domain.PayoutMultiplier), domain.PropPoints)
	assert.ErrorIs(t, err, ErrInsufficientPayoutData)
}

func TestNormalize_BoostFlag(t *testing.T) {
	n := NewNormalizer(nil, 0)

	raw := rawWith(fptr(3.0), fptr(1.3), domain.PayoutMultiplier)
	raw.BoostFlag = true

	schema, err := n.Normalize(raw, domain.PropPoints)
	require.NoError(t, err)

	assert.Equal(t, domain.PayoutBoost, schema.Type)
	require.NotNil(t, schema.BoostMultiplier)
	assert.Equal(t, "3.000", schema.BoostMultiplier.StringFixed(3))
}

func TestNormalize_BoostFromBaselineMedian(t *testing.T) {
	baseline := NewBaselineTracker(24 * time.Hour)
	n := NewNormalizer(baseline, 1.3)

	// Establish a median around 1.9
	for i := 0; i < 5; i++ {
		_, err := n.Normalize(rawWith(fptr(1.9), fptr(1.9), domain.PayoutMultiplier), domain.PropPoints)
		require.NoError(t, err)
	}

	// 2.6 > 1.3 * 1.9 triggers boost detection
	schema, err := n.Normalize(rawWith(fptr(2.6), fptr(1.4), domain.PayoutMultiplier), domain.PropPoints)
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutBoost, schema.Type)
	assert.NotNil(t, schema.BoostMultiplier)

	// A normal multiplier stays unflagged
	schema, err = n.Normalize(rawWith(fptr(2.0), fptr(1.8), domain.PayoutMultiplier), domain.PropPoints)
	require.NoError(t, err)
	assert.NotEqual(t, domain.PayoutBoost, schema.Type)
	assert.Nil(t, schema.BoostMultiplier)
}

func TestNormalize_ProviderFormatPreserved(t *testing.T) {
	n := NewNormalizer(nil, 0)

	schema, err := n.Normalize(rawWith(fptr(-110), fptr(-110), domain.PayoutStandard), domain.PropPoints)
	require.NoError(t, err)

	assert.Equal(t, "-110", schema.ProviderFormat["over"])
	assert.Equal(t, "STANDARD", schema.ProviderFormat["payout_type"])
}

func TestBaselineTracker_Median(t *testing.T) {
	bt := NewBaselineTracker(24 * time.Hour)

	_, ok := bt.Median(domain.SportNBA, domain.PropPoints)
	assert.False(t, ok, "median requires three samples")

	bt.Observe(domain.SportNBA, domain.PropPoints, 1.8)
	bt.Observe(domain.SportNBA, domain.PropPoints, 2.0)
	bt.Observe(domain.SportNBA, domain.PropPoints, 2.2)

	median, ok := bt.Median(domain.SportNBA, domain.PropPoints)
	require.True(t, ok)
	assert.InDelta(t, 2.0, median, 0.001)

	// Keys do not bleed across prop types
	_, ok = bt.Median(domain.SportNBA, domain.PropAssists)
	assert.False(t, ok)
}

func TestBaselineTracker_WindowPruning(t *testing.T) {
	bt := NewBaselineTracker(24 * time.Hour)
	current := time.Now()
	bt.now = func() time.Time { return current }

	bt.Observe(domain.SportNBA, domain.PropPoints, 5.0)
	bt.Observe(domain.SportNBA, domain.PropPoints, 5.0)
	bt.Observe(domain.SportNBA, domain.PropPoints, 5.0)

	// A day later the old samples have aged out
	current = current.Add(25 * time.Hour)
	bt.Observe(domain.SportNBA, domain.PropPoints, 2.0)

	_, ok := bt.Median(domain.SportNBA, domain.PropPoints)
	assert.False(t, ok, "stale samples must not count toward the minimum")
}
