// Package engine routes orders to the right market's book and owns the
// global order registry the prototype's deprecated_engine.py introduced:
// a single order_id -> metadata map spanning every market, which is what
// makes CancelOrder O(1) without the caller needing to know which market
// an order belongs to. engine.py itself (the non-deprecated version) has
// no such registry; we follow the deprecated one here because spec.md
// requires global O(1) cancellation and that file is where the prototype
// actually built it.
package engine

import (
	"errors"
	"sync"

	"github.com/atmx/contracts-engine/internal/model"
	"github.com/atmx/contracts-engine/internal/orderbook"
)

// ErrUnknownMarket is returned when an operation names a market that has
// never been created.
var ErrUnknownMarket = errors.New("engine: unknown market")

// ErrUnknownOrder is returned by CancelOrder when the order id is not in
// the global registry, either because it never existed or because it has
// already been filled or canceled.
var ErrUnknownOrder = errors.New("engine: unknown order")

// ErrDuplicateOrder is returned when a client-assigned order id collides
// with one already live anywhere in the engine.
var ErrDuplicateOrder = errors.New("engine: duplicate order id")

// orderMeta is the registry's record for a single live order: enough to
// find its book and, on cancellation, hand the caller back what they need
// to reverse a buy-side lock without consulting the book itself.
type orderMeta struct {
	marketId model.MarketId
	side     model.Side
	price    int64
	quantity int64
	userId   int64
}

// Engine owns every market's Book plus the cross-market order registry.
// The Coordinator's single worker goroutine is its only mutator; the
// mutex exists so read-only REST/snapshot paths can observe consistent
// state concurrently with that worker.
type Engine struct {
	mu       sync.RWMutex
	books    map[model.MarketId]*orderbook.Book
	names    map[model.MarketId]string
	registry map[int32]orderMeta
}

// New returns an Engine with no markets yet created.
func New() *Engine {
	return &Engine{
		books:    make(map[model.MarketId]*orderbook.Book),
		names:    make(map[model.MarketId]string),
		registry: make(map[int32]orderMeta),
	}
}

// EnsureName records a market's display name the first time it is seen,
// mirroring engine.py's get_or_create_market naming a market "on first
// contact". A later call with a different name is a no-op: a market is
// named once, at creation.
func (e *Engine) EnsureName(marketId model.MarketId, name string) {
	if name == "" {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.names[marketId]; !ok {
		e.names[marketId] = name
	}
}

// MarketName returns a market's display name, falling back to its
// "subject,threshold" form if none was ever set.
func (e *Engine) MarketName(marketId model.MarketId) string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if name, ok := e.names[marketId]; ok {
		return name
	}
	return marketId.String()
}

// GetOrCreateBook returns the book for marketId, creating an empty open
// one on first reference — mirroring engine.py's get_or_create_market.
func (e *Engine) GetOrCreateBook(marketId model.MarketId) *orderbook.Book {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.getOrCreateBookLocked(marketId)
}

func (e *Engine) getOrCreateBookLocked(marketId model.MarketId) *orderbook.Book {
	if book, ok := e.books[marketId]; ok {
		return book
	}
	book := orderbook.NewBook(marketId)
	e.books[marketId] = book
	return book
}

// GetBook returns an existing market's book without creating one.
func (e *Engine) GetBook(marketId model.MarketId) (*orderbook.Book, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	book, ok := e.books[marketId]
	return book, ok
}

// ActiveMarkets returns every market that still accepts orders.
func (e *Engine) ActiveMarkets() []model.MarketId {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]model.MarketId, 0, len(e.books))
	for marketId, book := range e.books {
		if book.Active() {
			out = append(out, marketId)
		}
	}
	return out
}

// AllMarkets returns every market the engine has ever created, open or
// settled.
func (e *Engine) AllMarkets() []model.MarketId {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]model.MarketId, 0, len(e.books))
	for marketId := range e.books {
		out = append(out, marketId)
	}
	return out
}

// ProcessOrder routes an order to its market (creating the market if this
// is the first order for it), matches it, and keeps the global registry
// in sync with whatever the match left resting. Mirrors
// deprecated_engine.py's process_order: the book does the matching, the
// engine reconciles the registry against the result.
func (e *Engine) ProcessOrder(order model.Order) ([]model.Trade, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.registry[order.OrderId]; exists {
		return nil, ErrDuplicateOrder
	}

	book := e.getOrCreateBookLocked(order.MarketId)
	trades, err := book.ProcessOrder(order)
	if err != nil {
		return nil, err
	}

	for _, t := range trades {
		if qty, stillResting := book.OrderQuantity(t.MakerOrderId); stillResting {
			meta := e.registry[t.MakerOrderId]
			meta.quantity = qty
			e.registry[t.MakerOrderId] = meta
		} else {
			delete(e.registry, t.MakerOrderId)
		}
	}

	if qty, resting := book.OrderQuantity(order.OrderId); resting {
		e.registry[order.OrderId] = orderMeta{
			marketId: order.MarketId,
			side:     order.Side,
			price:    order.Price,
			quantity: qty,
			userId:   order.UserId,
		}
	}

	return trades, nil
}

// RestoreOrder rests an order from a snapshot without matching and
// registers it, preserving its timestamp verbatim for FIFO priority.
func (e *Engine) RestoreOrder(order model.Order) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	book := e.getOrCreateBookLocked(order.MarketId)
	if err := book.AddOrder(order); err != nil {
		return err
	}
	e.registry[order.OrderId] = orderMeta{
		marketId: order.MarketId,
		side:     order.Side,
		price:    order.Price,
		quantity: order.Quantity,
		userId:   order.UserId,
	}
	return nil
}

// CancelOrder cancels a resting order wherever it lives, in O(1): a
// registry lookup finds its market, the book does the actual unlink.
// Mirrors deprecated_engine.py's cancel_order, which pops and returns the
// registry entry so the caller (the Ledger, via the Coordinator) can
// compute a lock refund without re-deriving the order's side and price.
func (e *Engine) CancelOrder(orderId int32) (model.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	meta, ok := e.registry[orderId]
	if !ok {
		return model.Order{}, ErrUnknownOrder
	}

	book, ok := e.books[meta.marketId]
	if !ok {
		return model.Order{}, ErrUnknownMarket
	}

	order, ok := book.CancelOrder(orderId)
	if !ok {
		// Registry and book disagree; the registry entry is stale.
		// Drop it and report the order as already gone.
		delete(e.registry, orderId)
		return model.Order{}, ErrUnknownOrder
	}

	delete(e.registry, orderId)
	return order, nil
}

// OrderQuantityFor returns the resting quantity the registry has recorded
// for a live order id. Used by the Coordinator to report resting_qty after
// a PlaceOrder without a second trip into the book.
func (e *Engine) OrderQuantityFor(orderId int32) (int64, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	meta, ok := e.registry[orderId]
	if !ok {
		return 0, false
	}
	return meta.quantity, true
}

// LookupOrder returns the registry's record for a live order id, without
// mutating anything. Used by the Coordinator to validate ownership
// (a user may only cancel their own orders) before calling CancelOrder.
func (e *Engine) LookupOrder(orderId int32) (marketId model.MarketId, userId int64, ok bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	meta, ok := e.registry[orderId]
	if !ok {
		return model.MarketId{}, 0, false
	}
	return meta.marketId, meta.userId, true
}

// Settle closes a market and liquidates every open position against the
// House at terminalPrice. Canceled resting orders are dropped from the
// global registry so it never points at a dead market.
func (e *Engine) Settle(marketId model.MarketId, terminalPrice int64) ([]model.Trade, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	book, ok := e.books[marketId]
	if !ok {
		return nil, ErrUnknownMarket
	}

	canceled, trades := book.Settle(terminalPrice)
	for _, order := range canceled {
		delete(e.registry, order.OrderId)
	}
	return trades, nil
}

// MarketsForSubject returns every market ever created for the given
// SubjectId, open or settled. Used by Settle-all-markets-for-a-subject
// command handling.
func (e *Engine) MarketsForSubject(subjectId string) []model.MarketId {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []model.MarketId
	for marketId := range e.books {
		if marketId.SubjectId == subjectId {
			out = append(out, marketId)
		}
	}
	return out
}

// RegistrySize returns the number of orders currently registered across
// every market. The Auditor's registry-integrity check compares
// quantities via RegistryQuantitySum instead.
func (e *Engine) RegistrySize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.registry)
}

// RegistryQuantitySum sums the registry's recorded quantity for every
// order in one market, for comparison against that market's book's own
// resting-order total in the Auditor's registry-integrity check.
func (e *Engine) RegistryQuantitySum(marketId model.MarketId) int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var sum int64
	for _, meta := range e.registry {
		if meta.marketId == marketId {
			sum += meta.quantity
		}
	}
	return sum
}
