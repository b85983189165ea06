package money

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestDollarsToCents(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"0.37", 37},
		{"1", 100},
		{"12.5", 1250},
		{"0", 0},
		{"0.005", 1}, // rounds to nearest cent, half-up
	}
	for _, c := range cases {
		got, err := DollarsToCents(c.in)
		if err != nil {
			t.Errorf("DollarsToCents(%q): unexpected error: %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("DollarsToCents(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestDollarsToCents_Invalid(t *testing.T) {
	_, err := DollarsToCents("not-a-number")
	if err == nil {
		t.Fatal("expected error for malformed dollar string")
	}
}

func TestCentsToDollars(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{37, "0.37"},
		{100, "1.00"},
		{1250, "12.50"},
		{0, "0.00"},
	}
	for _, c := range cases {
		if got := CentsToDollars(c.in); got != c.want {
			t.Errorf("CentsToDollars(%d) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestDecimalFromCents_RoundTrip(t *testing.T) {
	got := DecimalFromCents(1250)
	want := decimal.NewFromFloat(12.50)
	if !got.Equal(want) {
		t.Errorf("DecimalFromCents(1250) = %s, want %s", got, want)
	}
	if back := CentsFromDecimal(got); back != 1250 {
		t.Errorf("round trip: got %d, want 1250", back)
	}
}

func TestStepsToCents(t *testing.T) {
	cases := []struct {
		steps int64
		want  int64
	}{
		{0, 0},
		{1, 1},
		{300, 300},
	}
	for _, c := range cases {
		if got := StepsToCents(c.steps); got != c.want {
			t.Errorf("StepsToCents(%d) = %d, want %d", c.steps, got, c.want)
		}
	}
}

func TestDoomscrollMinutesToCents(t *testing.T) {
	cases := []struct {
		minutes int64
		want    int64
	}{
		{0, 0},
		{60, 500},   // one hour at $5.00
		{120, 1000}, // two hours
		{30, 250},   // half an hour
	}
	for _, c := range cases {
		if got := DoomscrollMinutesToCents(c.minutes); got != c.want {
			t.Errorf("DoomscrollMinutesToCents(%d) = %d, want %d", c.minutes, got, c.want)
		}
	}
}

func TestValidatePositiveCents(t *testing.T) {
	if err := ValidatePositiveCents(1); err != nil {
		t.Errorf("1 cent should be valid, got %v", err)
	}
	for _, bad := range []int64{0, -1, -100} {
		if err := ValidatePositiveCents(bad); !errors.Is(err, ErrNegative) {
			t.Errorf("ValidatePositiveCents(%d) = %v, want ErrNegative", bad, err)
		}
	}
}
