package risklimit

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/atmx/contracts-engine/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func market(subject string, threshold int64) model.MarketId {
	return model.MarketId{SubjectId: subject, Threshold: threshold}
}

func TestCheckLimit_WithinLimits(t *testing.T) {
	l := New(d(1000), d(5000))
	err := l.CheckLimit(market("rainfall", 60), d(100), nil)
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestCheckLimit_PerMarketExceeded(t *testing.T) {
	l := New(d(1000), d(5000))
	existing := map[model.MarketId]decimal.Decimal{
		market("rainfall", 60): d(950),
	}
	err := l.CheckLimit(market("rainfall", 60), d(100), existing)
	if err != ErrPerMarketLimitExceeded {
		t.Errorf("expected ErrPerMarketLimitExceeded, got %v", err)
	}
}

func TestCheckLimit_PerMarketNotExceeded(t *testing.T) {
	l := New(d(1000), d(5000))
	existing := map[model.MarketId]decimal.Decimal{
		market("rainfall", 60): d(500),
	}
	err := l.CheckLimit(market("rainfall", 60), d(100), existing)
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestCheckLimit_CorrelatedAcrossSameSubjectExceeded(t *testing.T) {
	// Three rainfall markets on different thresholds are correlated
	// because they share SubjectId "rainfall".
	l := New(d(1000), d(2000))
	existing := map[model.MarketId]decimal.Decimal{
		market("rainfall", 40): d(800),
		market("rainfall", 60): d(800),
		market("rainfall", 80): d(300),
	}

	// New exposure in a fourth rainfall market: 200 + 800 + 800 + 300 = 2100 > 2000.
	err := l.CheckLimit(market("rainfall", 100), d(200), existing)
	if err != ErrCorrelatedLimitExceeded {
		t.Errorf("expected ErrCorrelatedLimitExceeded, got %v", err)
	}
}

func TestCheckLimit_DifferentSubjectsIgnored(t *testing.T) {
	l := New(d(1000), d(2000))
	existing := map[model.MarketId]decimal.Decimal{
		market("rainfall", 60): d(800),
		market("heat", 90):     d(900), // not correlated, different subject
	}

	// Correlated total = 500 + 800 = 1300 < 2000 (heat market excluded).
	err := l.CheckLimit(market("rainfall", 40), d(500), existing)
	if err != nil {
		t.Errorf("different-subject exposure should be ignored, got %v", err)
	}
}

func TestCheckLimit_SellReducesExposure(t *testing.T) {
	l := New(d(1000), d(5000))
	existing := map[model.MarketId]decimal.Decimal{
		market("rainfall", 60): d(800),
	}
	// Selling (negative delta) reduces net exposure: 800 - 200 = 600 < 1000.
	err := l.CheckLimit(market("rainfall", 60), d(-200), existing)
	if err != nil {
		t.Errorf("sell should reduce exposure, got %v", err)
	}
}

func TestCheckLimit_NilExistingExposures(t *testing.T) {
	l := New(d(1000), d(5000))
	err := l.CheckLimit(market("rainfall", 60), d(500), nil)
	if err != nil {
		t.Errorf("nil exposures should be treated as empty, got %v", err)
	}
}
