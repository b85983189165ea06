// Package model defines the core domain types shared across the contracts
// engine. All monetary values at rest and at the service boundary use
// shopspring/decimal — never float64 for money. Inside the matching core,
// money moves as integer cents; internal/money is where the two
// representations meet.
package model

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// MarketId identifies a binary contract market: a subject and the
// threshold that must be met or exceeded for the contract to settle at 1.
type MarketId struct {
	SubjectId string `json:"subject_id"`
	Threshold int64  `json:"threshold"`
}

// MarshalText renders a MarketId as "subjectId,threshold", the same
// comma-joined form the Python prototype uses for its portfolio keys.
// Implementing TextMarshaler lets MarketId serve directly as a JSON
// object key (via map[MarketId]V), which plain struct keys cannot do.
func (m MarketId) MarshalText() ([]byte, error) {
	return []byte(fmt.Sprintf("%s,%d", m.SubjectId, m.Threshold)), nil
}

// String renders a MarketId the same way MarshalText does, for use in
// logs and non-JSON wire messages.
func (m MarketId) String() string {
	text, _ := m.MarshalText()
	return string(text)
}

// UnmarshalText parses the "subjectId,threshold" form produced by
// MarshalText.
func (m *MarketId) UnmarshalText(text []byte) error {
	s := string(text)
	idx := strings.LastIndex(s, ",")
	if idx < 0 {
		return fmt.Errorf("model: invalid market id %q", s)
	}
	threshold, err := strconv.ParseInt(s[idx+1:], 10, 64)
	if err != nil {
		return fmt.Errorf("model: invalid market id %q: %w", s, err)
	}
	m.SubjectId = s[:idx]
	m.Threshold = threshold
	return nil
}

// Side is which side of the book an order rests on.
type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

// ParseSide converts the wire representation ("buy"/"sell") to a Side.
func ParseSide(s string) (Side, bool) {
	switch s {
	case "buy":
		return Buy, true
	case "sell":
		return Sell, true
	default:
		return 0, false
	}
}

// Order is a resting limit order. OrderId is client-assigned and must be
// globally unique across all markets for the engine's lifetime.
type Order struct {
	OrderId   int32
	UserId    int64
	MarketId  MarketId
	Side      Side
	Price     int64 // cents
	Quantity  int64 // contracts remaining
	Timestamp int64 // monotonic tie-breaker, nanoseconds; preserved verbatim across snapshot reload
}

// Trade is an immutable record of a match, including synthetic settlement
// liquidation trades against the House.
type Trade struct {
	Seq          int64
	MarketId     MarketId
	BuyOrderId   int32 // 0 for a settlement trade's synthetic side
	SellOrderId  int32
	MakerOrderId int32 // whichever side was already resting
	TakerOrderId int32 // the order that arrived and triggered the match
	BuyerId      int64
	SellerId     int64
	Price        int64 // cents; the resting (maker) order's price, or the terminal price for a settlement trade
	Quantity     int64
	TakerSide    Side
	Settlement   bool // true for synthetic settlement liquidation trades
}

// HouseUserId is the reserved internal id representing the settlement
// counterparty. It is never assigned to a real external identity.
const HouseUserId int64 = 0

// Account is a user's cash and portfolio state, kept in the Ledger.
// Available/Locked are decimal dollars at rest; arithmetic against the
// engine's integer-cent world happens through internal/money.
type Account struct {
	UserId    int64              `json:"user_id"`
	Available decimal.Decimal    `json:"available"`
	Locked    decimal.Decimal    `json:"locked"`
	Portfolio map[MarketId]int64 `json:"portfolio"` // signed contracts, keyed by "subjectId,threshold"
}

// PriceLevel is an observability snapshot of one price's resting volume.
type PriceLevel struct {
	Price int64 `json:"price"`
	Qty   int64 `json:"qty"`
}

// BookSnapshot is the read-side view of one market's resting liquidity.
type BookSnapshot struct {
	MarketId MarketId     `json:"market_id"`
	Bids     []PriceLevel `json:"bids"` // highest price first
	Asks     []PriceLevel `json:"asks"` // lowest price first
}
