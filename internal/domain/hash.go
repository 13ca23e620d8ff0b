package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// LineHash is the hex-encoded SHA-256 content address of a canonical prop
// offering. It is the sole identity downstream consumers may key on.
type LineHash string

// hashFieldSep joins hash input fields; field ordering is fixed and part of
// the identity contract, so changing it invalidates every stored hash.
const hashFieldSep = "|"

// noBoost renders the absent-boost slot in the hash input
const noBoost = "-"

// ComputeLineHash derives the content address from the canonical fields:
// prop type, offered line at 1 decimal, payout type, payout variant, and the
// over/under/boost multipliers at 3 decimals. Two offerings that differ in
// any component at the stated precision hash differently; identical payout
// structure from different providers intentionally hashes the same only when
// every component matches.
func ComputeLineHash(propType PropType, line decimal.Decimal, payout PayoutSchema) LineHash {
	boost := noBoost
	if payout.BoostMultiplier != nil {
		boost = payout.BoostMultiplier.RoundBank(3).StringFixed(3)
	}

	input := strings.Join([]string{
		string(propType),
		line.Round(1).StringFixed(1),
		string(payout.Type),
		string(payout.Variant),
		payout.OverMultiplier.RoundBank(3).StringFixed(3),
		payout.UnderMultiplier.RoundBank(3).StringFixed(3),
		boost,
	}, hashFieldSep)

	sum := sha256.Sum256([]byte(input))
	return LineHash(hex.EncodeToString(sum[:]))
}

// ParseLineHash validates a hex line hash from an external caller
func ParseLineHash(s string) (LineHash, error) {
	if len(s) != sha256.Size*2 {
		return "", fmt.Errorf("invalid line hash length: %d", len(s))
	}
	if _, err := hex.DecodeString(s); err != nil {
		return "", fmt.Errorf("invalid line hash encoding: %w", err)
	}
	return LineHash(strings.ToLower(s)), nil
}

func (h LineHash) String() string { return string(h) }
