package coordinator

import "github.com/atmx/contracts-engine/internal/model"

// Action identifies what a Command asks the Coordinator to do. This is
// the Go equivalent of the Python prototype's EngineAction enum; Command
// is the equivalent of EngineCommand, with every action's fields folded
// into one struct rather than a class per action, since the fields are
// few enough that a tagged struct reads cleaner than a type switch over
// eight near-empty structs would.
type Action int

const (
	PlaceOrder Action = iota
	CancelOrder
	SettleSubject
	GetMarkets
	GetSnapshot
	GetBalance
	MintByActivity
	BurnByUsage
)

// Command is a single engine operation, translated into engine
// representation (internal user ids, cents, int32 order ids) by whatever
// sits in front of the Coordinator — internal/tcp or internal/api.
type Command struct {
	Action Action

	// PlaceOrder
	MarketId   model.MarketId
	MarketName string // display name to assign if this is the market's first order
	Side       model.Side
	Price      int64 // cents
	Quantity   int64
	OrderId    int32
	UserId     int64
	Timestamp  int64 // nanoseconds; 0 means "use wall-clock at execution"

	// CancelOrder reuses OrderId above.

	// SettleSubject
	SubjectId     string
	ObservedValue int64 // compared against each market's Threshold

	// GetSnapshot reuses MarketId above.

	// GetBalance reuses UserId above.

	// MintByActivity (proof_of_walk) and BurnByUsage (doomscroll_burn)
	// reuse UserId above; Units is steps or minutes respectively, the raw
	// activity unit before conversion to cents.
	Units int64
}

// Kind classifies why a Command failed, so a transport layer can map it
// to a stable wire-level error code instead of pattern-matching on
// Message text. Mirrors spec.md's error handling design: internal
// sentinel errors collapse into one of these tags at the Coordinator
// boundary.
type Kind int

const (
	KindNone Kind = iota
	KindValidation
	KindInsufficientFunds
	KindMarketClosed
	KindUnknownOrder
	KindUnknownMarket
	KindRiskLimit
	KindDuplicateOrder
	KindAuditFailure
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindValidation:
		return "validation"
	case KindInsufficientFunds:
		return "insufficient_funds"
	case KindMarketClosed:
		return "market_closed"
	case KindUnknownOrder:
		return "unknown_order"
	case KindUnknownMarket:
		return "unknown_market"
	case KindRiskLimit:
		return "risk_limit"
	case KindDuplicateOrder:
		return "duplicate_order"
	case KindAuditFailure:
		return "audit_failure"
	default:
		return "internal"
	}
}

// Response is the Coordinator's unified result envelope, the Go
// equivalent of EngineResponse.
type Response struct {
	Success bool
	Kind    Kind
	Message string

	Trades         []model.Trade
	OrderId        int32
	Markets        []MarketSummary
	Snapshot       *model.BookSnapshot
	MarketsSettled int
	TotalTrades    int
	Balance        *BalanceView
	RestingQty     int64 // PlaceOrder: quantity left resting after matching
	Refunded       int64 // CancelOrder: cents released back to available
	MintedCents    int64 // MintByActivity
	BurnedCents    int64 // BurnByUsage
}

// MarketSummary is the get_markets read-side projection of one market:
// its id, display name, and top of book. BestBid/BestAsk are nil when
// that side of the book is empty.
type MarketSummary struct {
	MarketId model.MarketId
	Name     string
	BestBid  *int64
	BestAsk  *int64
}

// BalanceView is the read-side projection of a user's ledger account.
type BalanceView struct {
	UserId    int64
	Available string // decimal dollars
	Locked    string
	Portfolio map[model.MarketId]int64
}

func errorResponse(kind Kind, message string) Response {
	return Response{Success: false, Kind: kind, Message: message}
}
