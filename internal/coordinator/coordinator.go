// Package coordinator is the sole cross-subsystem atomicity boundary: the
// only place that touches the Engine, the Ledger, the risk limiter, and
// the Auditor in the same operation. It is grounded on the Python
// prototype's EngineInterface (src/engine/interface.py), which exists for
// exactly this reason — "Engine doesn't know about economy or string
// types... Interface bridges the gap" — generalized from a place that
// bridges types into the place that makes every multi-subsystem command
// atomic.
//
// A Coordinator is driven by exactly one goroutine at a time. It does not
// lock itself; internal/tcp's single worker loop is what makes that true,
// per spec.md's single-threaded-cooperative concurrency model. Every
// subsystem it calls (Engine, Ledger) has its own mutex for the benefit
// of concurrent read-only callers, but the Coordinator's own command
// handlers never run concurrently with each other.
package coordinator

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/contracts-engine/internal/audit"
	"github.com/atmx/contracts-engine/internal/engine"
	"github.com/atmx/contracts-engine/internal/ledger"
	"github.com/atmx/contracts-engine/internal/metrics"
	"github.com/atmx/contracts-engine/internal/model"
	"github.com/atmx/contracts-engine/internal/money"
	"github.com/atmx/contracts-engine/internal/orderbook"
	"github.com/atmx/contracts-engine/internal/risklimit"
)

// SettlementCents is the terminal price paid for a contract that
// resolved true: one cent, per spec.md §8 scenario 6
// (`terminal=1; bob credited $0.10 ... (10 * 1 cent)`) and the
// prototype's `terminal_price ∈ {0,1}` passed straight through as a
// cents price.
const SettlementCents = 1

// Coordinator dispatches Commands against the engine, ledger, and risk
// limiter, running the Auditor after every place, cancel, and settle
// command when debug mode is on.
type Coordinator struct {
	engine  *engine.Engine
	ledger  *ledger.Ledger
	limiter *risklimit.Limiter
	auditor *audit.Auditor
	log     *slog.Logger

	debug   bool
	nextSeq int64
}

// Option configures a Coordinator at construction time.
type Option func(*Coordinator)

// WithDebugAudit enables running a full invariant audit after every
// mutating command. The prototype defaults this on; production
// deployments with a large order book may want it off.
func WithDebugAudit(enabled bool) Option {
	return func(c *Coordinator) { c.debug = enabled }
}

// New returns a Coordinator wired to the given subsystems.
func New(e *engine.Engine, l *ledger.Ledger, limiter *risklimit.Limiter, log *slog.Logger, opts ...Option) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	c := &Coordinator{
		engine:  e,
		ledger:  l,
		limiter: limiter,
		auditor: audit.New(e, l),
		log:     log,
		debug:   true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Execute is the central dispatcher, the Go equivalent of
// EngineInterface.execute.
func (c *Coordinator) Execute(cmd Command) Response {
	switch cmd.Action {
	case PlaceOrder:
		return c.handlePlaceOrder(cmd)
	case CancelOrder:
		return c.handleCancelOrder(cmd)
	case SettleSubject:
		return c.handleSettleSubject(cmd)
	case GetMarkets:
		return c.handleGetMarkets()
	case GetSnapshot:
		return c.handleGetSnapshot(cmd)
	case MintByActivity:
		return c.handleMintByActivity(cmd)
	case BurnByUsage:
		return c.handleBurnByUsage(cmd)
	case GetBalance:
		return c.handleGetBalance(cmd)
	default:
		return errorResponse(KindValidation, fmt.Sprintf("unknown action: %d", cmd.Action))
	}
}

func (c *Coordinator) handlePlaceOrder(cmd Command) Response {
	if err := money.ValidatePositiveCents(cmd.Quantity); err != nil {
		return errorResponse(KindValidation, "quantity must be positive")
	}
	if err := money.ValidatePositiveCents(cmd.Price); err != nil {
		return errorResponse(KindValidation, "price must be positive")
	}

	exposureDelta := decimal.NewFromInt(cmd.Quantity)
	if cmd.Side == model.Sell {
		exposureDelta = exposureDelta.Neg()
	}

	if c.limiter != nil {
		acct := c.ledger.Account(cmd.UserId)
		existing := exposuresFromPortfolio(acct.Portfolio)
		if err := c.limiter.CheckLimit(cmd.MarketId, exposureDelta, existing); err != nil {
			metrics.RiskLimitRejections.Inc()
			return errorResponse(KindRiskLimit, err.Error())
		}
	}

	if cmd.Side == model.Buy {
		if !c.ledger.LockForBuy(cmd.UserId, cmd.Price, cmd.Quantity) {
			need := money.CentsToDollars(cmd.Price * cmd.Quantity)
			return errorResponse(KindInsufficientFunds, fmt.Sprintf("insufficient funds: need $%s", need))
		}
	}

	timestamp := cmd.Timestamp
	if timestamp == 0 {
		timestamp = time.Now().UnixNano()
	}

	order := model.Order{
		OrderId:   cmd.OrderId,
		UserId:    cmd.UserId,
		MarketId:  cmd.MarketId,
		Side:      cmd.Side,
		Price:     cmd.Price,
		Quantity:  cmd.Quantity,
		Timestamp: timestamp,
	}

	c.engine.EnsureName(cmd.MarketId, cmd.MarketName)

	trades, err := c.engine.ProcessOrder(order)
	if err != nil {
		if cmd.Side == model.Buy {
			c.ledger.ReleaseLock(cmd.UserId, cmd.Price, cmd.Quantity)
		}
		return errorResponse(classifyPlaceOrderError(err), err.Error())
	}

	metrics.OrdersTotal.WithLabelValues(cmd.Side.String()).Inc()

	for i := range trades {
		c.nextSeq++
		trades[i].Seq = c.nextSeq
		// Price improvement: for a trade filled at a better price than
		// the buyer submitted, release the unused portion of the lock back
		// to available before the trade spends the rest, one trade at a time.
		if cmd.Side == model.Buy && trades[i].Price < cmd.Price {
			c.ledger.ReleaseLock(cmd.UserId, cmd.Price-trades[i].Price, trades[i].Quantity)
		}
		c.ledger.ApplyTrade(trades[i])
		metrics.TradesTotal.WithLabelValues(trades[i].TakerSide.String()).Inc()
		metrics.MarketVolume.WithLabelValues(trades[i].MarketId.String(), trades[i].TakerSide.String()).Add(float64(trades[i].Quantity))
	}

	if resp := c.maybeAudit(trades); resp != nil {
		return *resp
	}

	restingQty, stillResting := c.engine.OrderQuantityFor(cmd.OrderId)
	if !stillResting {
		restingQty = 0
	}

	return Response{Success: true, Trades: trades, OrderId: cmd.OrderId, RestingQty: restingQty}
}

func classifyPlaceOrderError(err error) Kind {
	switch {
	case errors.Is(err, orderbook.ErrMarketClosed):
		return KindMarketClosed
	case errors.Is(err, engine.ErrDuplicateOrder):
		return KindDuplicateOrder
	default:
		return KindInternal
	}
}

func (c *Coordinator) handleCancelOrder(cmd Command) Response {
	_, owner, ok := c.engine.LookupOrder(cmd.OrderId)
	if !ok || owner != cmd.UserId {
		// An unowned id is reported the same as an unknown one: a client
		// has no business learning that an order exists under someone
		// else's account.
		return errorResponse(KindUnknownOrder, "order not found or already filled")
	}

	order, err := c.engine.CancelOrder(cmd.OrderId)
	if err != nil {
		return errorResponse(KindUnknownOrder, "order not found or already filled")
	}

	var refunded int64
	if order.Side == model.Buy {
		refunded = order.Price * order.Quantity
		c.ledger.ReleaseLock(order.UserId, order.Price, order.Quantity)
	}
	metrics.CancelsTotal.Inc()

	if resp := c.maybeAudit(nil); resp != nil {
		return *resp
	}

	return Response{Success: true, OrderId: order.OrderId, Refunded: refunded}
}

func (c *Coordinator) handleMintByActivity(cmd Command) Response {
	minted := c.ledger.Mint(cmd.UserId, money.StepsToCents(cmd.Units))
	return Response{Success: true, MintedCents: minted}
}

func (c *Coordinator) handleBurnByUsage(cmd Command) Response {
	burned := c.ledger.Burn(cmd.UserId, money.DoomscrollMinutesToCents(cmd.Units))
	return Response{Success: true, BurnedCents: burned}
}

func (c *Coordinator) handleSettleSubject(cmd Command) Response {
	markets := c.engine.MarketsForSubject(cmd.SubjectId)

	var allTrades []model.Trade
	settled := 0

	for _, marketId := range markets {
		terminal := int64(0)
		if cmd.ObservedValue >= marketId.Threshold {
			terminal = SettlementCents
		}

		trades, err := c.engine.Settle(marketId, terminal)
		if err != nil {
			continue
		}
		for i := range trades {
			c.nextSeq++
			trades[i].Seq = c.nextSeq
			c.applySettlementCash(trades[i])
			metrics.TradesTotal.WithLabelValues(trades[i].TakerSide.String()).Inc()
		}
		allTrades = append(allTrades, trades...)
		settled++
		metrics.SettlementsTotal.Inc()
	}

	if resp := c.maybeAudit(allTrades); resp != nil {
		return *resp
	}

	return Response{
		Success:        true,
		Trades:         allTrades,
		MarketsSettled: settled,
		TotalTrades:    len(allTrades),
	}
}

// applySettlementCash applies one synthetic settlement trade's cash side
// via Ledger.ApplySettlementTrade rather than ApplyTrade: a settlement
// trade always has the House on one side, and the House never locked
// funds to pay from, so the locked-spending path ApplyTrade uses for a
// real match would silently drop a short holder's debit. Exactly one
// side of a settlement trade is ever a real user; the other is the
// House and is skipped.
func (c *Coordinator) applySettlementCash(t model.Trade) {
	if t.SellerId != model.HouseUserId {
		// The seller closed out a long position: credited terminal*qty.
		c.ledger.ApplySettlementTrade(t.SellerId, t.MarketId, model.Buy, t.Quantity, t.Price)
	}
	if t.BuyerId != model.HouseUserId {
		// The buyer closed out a short position: debited terminal*qty.
		c.ledger.ApplySettlementTrade(t.BuyerId, t.MarketId, model.Sell, t.Quantity, t.Price)
	}
}

func (c *Coordinator) handleGetMarkets() Response {
	marketIds := c.engine.ActiveMarkets()
	metrics.ActiveMarkets.Set(float64(len(marketIds)))

	summaries := make([]MarketSummary, 0, len(marketIds))
	for _, marketId := range marketIds {
		book, ok := c.engine.GetBook(marketId)
		if !ok {
			continue
		}
		summary := MarketSummary{MarketId: marketId, Name: c.engine.MarketName(marketId)}
		if bid, ok := book.BestBid(); ok {
			summary.BestBid = &bid
		}
		if ask, ok := book.BestAsk(); ok {
			summary.BestAsk = &ask
		}
		summaries = append(summaries, summary)
	}

	return Response{Success: true, Markets: summaries}
}

func (c *Coordinator) handleGetSnapshot(cmd Command) Response {
	book, ok := c.engine.GetBook(cmd.MarketId)
	if !ok {
		return errorResponse(KindUnknownMarket, "unknown market")
	}
	snap := book.Snapshot()
	return Response{Success: true, Snapshot: &snap}
}

func (c *Coordinator) handleGetBalance(cmd Command) Response {
	acct := c.ledger.Account(cmd.UserId)
	return Response{
		Success: true,
		Balance: &BalanceView{
			UserId:    acct.UserId,
			Available: acct.Available.StringFixed(2),
			Locked:    acct.Locked.StringFixed(2),
			Portfolio: acct.Portfolio,
		},
	}
}

// maybeAudit runs a full invariant audit when debug mode is on, folding
// any failure into an audit-failure Response. Returns nil when the audit
// is skipped or passes, meaning the caller's own success Response stands.
func (c *Coordinator) maybeAudit(trades []model.Trade) *Response {
	if !c.debug {
		return nil
	}
	failures := c.auditor.RunFull()
	if len(failures) == 0 {
		return nil
	}
	for _, f := range failures {
		c.log.Error("critical audit failure", "check", f.Check, "detail", f.Message)
	}
	resp := Response{
		Success: false,
		Kind:    KindAuditFailure,
		Message: fmt.Sprintf("audit failure: %s", failures[0].Message),
		Trades:  trades,
	}
	return &resp
}

func exposuresFromPortfolio(portfolio map[model.MarketId]int64) map[model.MarketId]decimal.Decimal {
	out := make(map[model.MarketId]decimal.Decimal, len(portfolio))
	for marketId, qty := range portfolio {
		out[marketId] = decimal.NewFromInt(qty)
	}
	return out
}
