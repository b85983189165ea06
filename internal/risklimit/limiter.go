// Package risklimit enforces position limits that account for
// correlation between markets on the same subject.
//
// Adapted from the teacher's internal/correlation package, which caps
// exposure across H3 cells that share a geographic prefix — the
// reasoning there being that a hurricane spanning twenty hexagons gives a
// user buying YES on all of them correlated risk even though each cell is
// a separate market. The same shape applies here: a user long on
// "alice exceeds 400 minutes" and long on "alice exceeds 420 minutes" has
// genuinely correlated exposure, because both markets resolve off the
// same underlying measurement. The correlation key is SubjectId instead
// of an H3 prefix; everything else — per-key limit, then an aggregate
// limit across the correlated group — is the same two-stage check.
package risklimit

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/atmx/contracts-engine/internal/model"
)

var (
	// ErrPerMarketLimitExceeded is returned when a trade would push a
	// single market's exposure beyond the per-market maximum.
	ErrPerMarketLimitExceeded = errors.New("risklimit: per-market exposure limit exceeded")

	// ErrCorrelatedLimitExceeded is returned when a trade would push the
	// aggregate exposure across every market on the same subject
	// beyond the correlated maximum.
	ErrCorrelatedLimitExceeded = errors.New("risklimit: correlated exposure limit exceeded")
)

// Limiter enforces position limits with subject-correlation awareness.
type Limiter struct {
	// MaxPerMarket is the maximum absolute exposure a user may
	// carry in any single market.
	MaxPerMarket decimal.Decimal

	// MaxPerSubject is the maximum aggregate absolute exposure a
	// user may carry across every market on the same SubjectId.
	MaxPerSubject decimal.Decimal
}

// New returns a Limiter with the given per-market and per-subject
// aggregate limits.
func New(maxPerMarket, maxPerSubject decimal.Decimal) *Limiter {
	return &Limiter{MaxPerMarket: maxPerMarket, MaxPerSubject: maxPerSubject}
}

// CheckLimit validates whether adding exposureDelta to targetMarket stays
// within both limits, given a user's current exposure in every market
// they already hold. exposureDelta and every value in existingExposures
// are signed exposures in one unit, positive for net long; the
// Coordinator passes contract counts (net portfolio positions and the
// order's signed quantity), so its limits are in contracts.
func (l *Limiter) CheckLimit(
	targetMarket model.MarketId,
	exposureDelta decimal.Decimal,
	existingExposures map[model.MarketId]decimal.Decimal,
) error {
	currentInMarket := existingExposures[targetMarket]
	newPosition := currentInMarket.Add(exposureDelta)

	if newPosition.Abs().GreaterThan(l.MaxPerMarket) {
		return ErrPerMarketLimitExceeded
	}

	totalCorrelated := newPosition.Abs()
	for marketId, exposure := range existingExposures {
		if marketId == targetMarket {
			continue // already counted via newPosition above
		}
		if marketId.SubjectId == targetMarket.SubjectId {
			totalCorrelated = totalCorrelated.Add(exposure.Abs())
		}
	}

	if totalCorrelated.GreaterThan(l.MaxPerSubject) {
		return ErrCorrelatedLimitExceeded
	}

	return nil
}
