// Package ledger tracks every user's cash and portfolio state: available
// and locked balances, and signed contract counts per market. It is
// grounded on the Python prototype's EconomyManager (src/orderbook/economy.py):
// buyers lock cash up front and spend it out of the locked bucket on fill;
// sellers never lock anything and simply receive cash into their
// available bucket.
package ledger

import (
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/atmx/contracts-engine/internal/model"
	"github.com/atmx/contracts-engine/internal/money"
)

// Ledger owns every user's Account. Like the Engine, it is mutated only
// by the Coordinator's single worker; the mutex protects concurrent
// read-only access from the REST API and snapshot dump.
type Ledger struct {
	mu       sync.Mutex
	accounts map[int64]*model.Account
	log      *slog.Logger
}

// New returns an empty Ledger with no accounts yet opened.
func New(log *slog.Logger) *Ledger {
	if log == nil {
		log = slog.Default()
	}
	return &Ledger{
		accounts: make(map[int64]*model.Account),
		log:      log,
	}
}

func (l *Ledger) getOrCreateLocked(userId int64) *model.Account {
	acct, ok := l.accounts[userId]
	if !ok {
		acct = &model.Account{
			UserId:    userId,
			Available: decimal.Zero,
			Locked:    decimal.Zero,
			Portfolio: make(map[model.MarketId]int64),
		}
		l.accounts[userId] = acct
	}
	return acct
}

// Account returns a defensive copy of a user's current balances and
// portfolio, creating the account on first reference.
func (l *Ledger) Account(userId int64) model.Account {
	l.mu.Lock()
	defer l.mu.Unlock()
	acct := l.getOrCreateLocked(userId)
	return copyAccount(acct)
}

func copyAccount(acct *model.Account) model.Account {
	portfolio := make(map[model.MarketId]int64, len(acct.Portfolio))
	for marketId, qty := range acct.Portfolio {
		portfolio[marketId] = qty
	}
	return model.Account{
		UserId:    acct.UserId,
		Available: acct.Available,
		Locked:    acct.Locked,
		Portfolio: portfolio,
	}
}

// Deposit credits a user's available balance directly. Used by
// administrative tooling and test setup, not by order flow.
func (l *Ledger) Deposit(userId int64, amountCents int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acct := l.getOrCreateLocked(userId)
	acct.Available = acct.Available.Add(money.DecimalFromCents(amountCents))
}

// Mint credits a user's available balance out of nothing, returning the
// amount minted. The counterpart of Burn; cash also enters through
// Deposit and DistributeCredit.
func (l *Ledger) Mint(userId int64, amountCents int64) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	acct := l.getOrCreateLocked(userId)
	acct.Available = acct.Available.Add(money.DecimalFromCents(amountCents))
	return amountCents
}

// Burn debits a user's available balance, flooring at zero rather than
// letting it go negative: if the requested amount exceeds what's
// available, only what's available is burned. Returns the amount
// actually burned in cents.
func (l *Ledger) Burn(userId int64, amountCents int64) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	acct := l.getOrCreateLocked(userId)

	requested := money.DecimalFromCents(amountCents)
	if acct.Available.GreaterThanOrEqual(requested) {
		acct.Available = acct.Available.Sub(requested)
		return amountCents
	}

	burned := money.CentsFromDecimal(acct.Available)
	acct.Available = decimal.Zero
	return burned
}

// DistributeCredit credits every existing account by the same amount, a
// flat universal distribution. Mirrors distribute_ubi.
func (l *Ledger) DistributeCredit(amountCents int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	amount := money.DecimalFromCents(amountCents)
	for _, acct := range l.accounts {
		acct.Available = acct.Available.Add(amount)
	}
}

// LockForBuy moves priceCents*quantity from a buyer's available balance
// into locked, ahead of submitting a buy order to the book. It reports
// false without mutating anything if the buyer doesn't have enough
// available cash. Sellers never call this: a sell locks nothing (short
// sales are allowed), and the book's position tracking records the
// resulting short.
func (l *Ledger) LockForBuy(userId int64, priceCents, quantity int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	acct := l.getOrCreateLocked(userId)

	cost := money.DecimalFromCents(priceCents).Mul(decimal.NewFromInt(quantity))
	if acct.Available.LessThan(cost) {
		return false
	}
	acct.Available = acct.Available.Sub(cost)
	acct.Locked = acct.Locked.Add(cost)
	return true
}

// ReleaseLock moves priceCents*quantity back from locked to available,
// for a canceled buy order or a price-improvement refund. It guards
// against driving locked negative: if less than the requested amount is
// actually locked, nothing moves.
func (l *Ledger) ReleaseLock(userId int64, priceCents, quantity int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acct := l.getOrCreateLocked(userId)

	cost := money.DecimalFromCents(priceCents).Mul(decimal.NewFromInt(quantity))
	if acct.Locked.LessThan(cost) {
		return
	}
	acct.Locked = acct.Locked.Sub(cost)
	acct.Available = acct.Available.Add(cost)
}

// ReleaseLockAmount is ReleaseLock for a refund already expressed as a
// total cash amount rather than a price*quantity pair — the shape a
// price-improvement refund naturally comes in.
func (l *Ledger) ReleaseLockAmount(userId int64, amountCents int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acct := l.getOrCreateLocked(userId)

	amount := money.DecimalFromCents(amountCents)
	if acct.Locked.LessThan(amount) {
		return
	}
	acct.Locked = acct.Locked.Sub(amount)
	acct.Available = acct.Available.Add(amount)
}

// ApplyTrade executes the cash and portfolio transfer for one matched
// trade. The buyer's locked funds are spent at the trade price; the
// seller simply receives cash into available, since they never locked
// anything. Mirrors confirm_trade, including its defensive floor: if
// rounding or a settlement trade (where the House never locked funds as a
// "buyer") would drive the buyer's locked balance negative, it is reset
// to zero and logged rather than allowed to go negative.
func (l *Ledger) ApplyTrade(trade model.Trade) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cost := money.DecimalFromCents(trade.Price).Mul(decimal.NewFromInt(trade.Quantity))

	buyer := l.getOrCreateLocked(trade.BuyerId)
	buyer.Locked = buyer.Locked.Sub(cost)
	if buyer.Locked.IsNegative() {
		l.log.Warn("ledger: buyer locked balance went negative, resetting",
			"user_id", trade.BuyerId, "market", trade.MarketId)
		buyer.Locked = decimal.Zero
	}
	buyer.Portfolio[trade.MarketId] += trade.Quantity

	seller := l.getOrCreateLocked(trade.SellerId)
	seller.Available = seller.Available.Add(cost)
	seller.Portfolio[trade.MarketId] -= trade.Quantity
}

// ApplySettlementTrade credits or debits a user directly at contract
// resolution, bypassing the locked-funds path ApplyTrade uses for a real
// match: a long position (side == Buy) is credited terminalPriceCents *
// quantity; a short position (side == Sell) is debited the same amount,
// since going short never locks cash to spend from. The user's market
// portfolio slot is zeroed directly, mirroring settle_market having
// already reduced the position to exactly this trade's quantity.
func (l *Ledger) ApplySettlementTrade(userId int64, marketId model.MarketId, side model.Side, quantity int64, terminalPriceCents int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acct := l.getOrCreateLocked(userId)

	amount := money.DecimalFromCents(terminalPriceCents).Mul(decimal.NewFromInt(quantity))
	if side == model.Buy {
		acct.Available = acct.Available.Add(amount)
	} else {
		acct.Available = acct.Available.Sub(amount)
		if acct.Available.IsNegative() {
			l.log.Warn("ledger: settlement debit drove available negative, resetting",
				"user_id", userId, "market", marketId)
			acct.Available = decimal.Zero
		}
	}
	acct.Portfolio[marketId] = 0
}

// TotalCash returns the sum of every account's available+locked balance,
// reported by the Auditor's informational TotalSystemCash.
func (l *Ledger) TotalCash() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	total := decimal.Zero
	for _, acct := range l.accounts {
		total = total.Add(acct.Available).Add(acct.Locked)
	}
	return total
}
