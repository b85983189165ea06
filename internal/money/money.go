// Package money converts between the decimal dollar strings used at the
// wire and storage boundary and the integer cents the matching core
// operates on. Never float64 for money: every conversion here goes through
// shopspring/decimal, exactly as the rest of this codebase represents cash.
package money

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrNegative is returned by ValidatePositiveCents when a price or
// quantity is zero or negative.
var ErrNegative = errors.New("money: negative amount not allowed")

var hundred = decimal.NewFromInt(100)

// DollarsToCents parses a decimal dollar string ("0.37", "1", "12.5") and
// returns the equivalent integer cents, rounding to the nearest cent.
// Prices in this engine are always whole cents; quantities never carry
// a decimal at all. No production path calls this today: wire prices
// arrive as integer cents.
func DollarsToCents(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("money: parse %q: %w", s, err)
	}
	return d.Mul(hundred).Round(0).IntPart(), nil
}

// CentsToDollars formats integer cents as a decimal dollar string with
// exactly two fraction digits.
func CentsToDollars(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}

// DecimalFromCents converts integer cents to a decimal.Decimal dollar
// value, for callers that keep working in decimal space (the Ledger).
func DecimalFromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// CentsFromDecimal converts a decimal.Decimal dollar value to integer
// cents, rounding to the nearest cent.
func CentsFromDecimal(d decimal.Decimal) int64 {
	return d.Mul(hundred).Round(0).IntPart()
}

// ValidatePositiveCents returns ErrNegative if cents is not strictly
// positive. Used to reject zero/negative price or quantity fields at the
// Coordinator's edge before they ever reach the Book.
func ValidatePositiveCents(cents int64) error {
	if cents <= 0 {
		return ErrNegative
	}
	return nil
}

// stepsRewardCents is one cent per step, the prototype's
// STEPS_REWARD_RATE = Decimal("0.01") credits per step.
const stepsRewardCents = 1

// doomscrollTaxCentsPerHour is the prototype's
// DOOMSCROLL_TAX_RATE = Decimal("5.00") credits burned per hour.
const doomscrollTaxCentsPerHour = 500

// StepsToCents converts a proof-of-walk step count into the cents minted
// for it, matching the prototype's process_proof_of_walk rate.
func StepsToCents(steps int64) int64 {
	return steps * stepsRewardCents
}

// DoomscrollMinutesToCents converts screen-time minutes into the cents
// burned for it, matching the prototype's process_doomscroll_burn: a
// straight-line fraction of the hourly tax rate, rounded to the nearest
// cent the same way Decimal.quantize("0.01") does.
func DoomscrollMinutesToCents(minutes int64) int64 {
	tax := decimal.NewFromInt(minutes).Mul(decimal.NewFromInt(doomscrollTaxCentsPerHour)).Div(decimal.NewFromInt(60))
	return tax.Round(0).IntPart()
}
