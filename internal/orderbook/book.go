// Package orderbook implements a single market's price-time-priority
// limit order book: matching, resting, O(1) cancellation, and terminal
// settlement. It is grounded on the Python prototype's OrderBook
// (src/orderbook/book.py), with the heap-plus-lazy-deletion price index
// replaced by a google/btree ordered index — the same "Sorted prices"
// role the prototype's heaps play, without the ghost-entry bookkeeping a
// heap needs, since a B-tree deletes a stale price in O(log n) directly.
package orderbook

import (
	"errors"

	"github.com/google/btree"

	"github.com/atmx/contracts-engine/internal/model"
)

// ErrMarketClosed is returned by ProcessOrder and AddOrder once a market
// has been settled. A settled book never reopens.
var ErrMarketClosed = errors.New("orderbook: market is closed")

// HouseUserId is the reserved counterparty for settlement trades.
const HouseUserId = model.HouseUserId

func less(a, b int64) bool { return a < b }

// Book is one market's order book. It is not safe for concurrent use by
// multiple goroutines; the Coordinator's single-threaded worker is the
// only caller, exactly as spec'd.
type Book struct {
	marketId model.MarketId

	// order_id -> node, the global O(1) lookup the prototype's _orders
	// dict provides.
	orders map[int32]*orderNode

	// price -> level, the source of truth for what's resting. A price
	// present in the btree index below but absent here would be a bug;
	// we never let that happen, so there is no lazy-deletion case to
	// handle on the read path.
	bids map[int64]*priceLevel
	asks map[int64]*priceLevel

	// Ordered price indexes: bids highest-first via Max(), asks
	// lowest-first via Min().
	bidPrices *btree.BTreeG[int64]
	askPrices *btree.BTreeG[int64]

	// user_id -> net signed contract count in this market.
	positions map[int64]int64

	active bool
}

// NewBook returns an empty, open order book for the given market.
func NewBook(marketId model.MarketId) *Book {
	return &Book{
		marketId:  marketId,
		orders:    make(map[int32]*orderNode),
		bids:      make(map[int64]*priceLevel),
		asks:      make(map[int64]*priceLevel),
		bidPrices: btree.NewG(32, less),
		askPrices: btree.NewG(32, less),
		positions: make(map[int64]int64),
		active:    true,
	}
}

// MarketId returns the market this book matches orders for.
func (b *Book) MarketId() model.MarketId { return b.marketId }

// Active reports whether this market still accepts new orders.
func (b *Book) Active() bool { return b.active }

// Position returns a user's current net signed contract count in this
// market (positive long, negative short).
func (b *Book) Position(userId int64) int64 { return b.positions[userId] }

// Positions returns a snapshot copy of every nonzero position in this
// market, keyed by internal user id. Used by the Auditor's conservation
// check and by settlement.
func (b *Book) Positions() map[int64]int64 {
	out := make(map[int64]int64, len(b.positions))
	for userId, qty := range b.positions {
		if qty != 0 {
			out[userId] = qty
		}
	}
	return out
}

// HasOrder reports whether an order id currently rests in this book.
func (b *Book) HasOrder(orderId int32) bool {
	_, ok := b.orders[orderId]
	return ok
}

// OrderQuantity returns the remaining resting quantity for an order id,
// used by the Engine to keep its global order registry in sync after a
// match partially or fully fills a maker order.
func (b *Book) OrderQuantity(orderId int32) (int64, bool) {
	n, ok := b.orders[orderId]
	if !ok {
		return 0, false
	}
	return n.order.Quantity, true
}

// RestingOrders returns every order currently resting in this book, in no
// particular order. Used by snapshot dump.
func (b *Book) RestingOrders() []model.Order {
	out := make([]model.Order, 0, len(b.orders))
	for _, n := range b.orders {
		out = append(out, n.order)
	}
	return out
}

// ProcessOrder matches an incoming order against the resting book and
// rests any unfilled remainder. It mirrors book.py's process_order: walk
// the opposing side's best price while the taker can still cross it,
// drain each price level in time priority, and add whatever remains.
func (b *Book) ProcessOrder(order model.Order) ([]model.Trade, error) {
	if !b.active {
		return nil, ErrMarketClosed
	}

	var trades []model.Trade
	remaining := order.Quantity

	switch order.Side {
	case model.Buy:
		remaining, trades = b.matchAgainstAsks(order, remaining)
	case model.Sell:
		remaining, trades = b.matchAgainstBids(order, remaining)
	}

	if remaining > 0 {
		resting := order
		resting.Quantity = remaining
		b.addToBook(resting)
	}

	return trades, nil
}

func (b *Book) matchAgainstAsks(taker model.Order, remaining int64) (int64, []model.Trade) {
	var trades []model.Trade

	for remaining > 0 {
		bestAsk, ok := b.askPrices.Min()
		if !ok {
			break
		}
		if taker.Price < bestAsk {
			break
		}

		level := b.asks[bestAsk]
		for remaining > 0 && level.head != nil {
			maker := level.head
			tradeQty := min64(remaining, maker.order.Quantity)

			trades = append(trades, model.Trade{
				MarketId:     b.marketId,
				BuyOrderId:   taker.OrderId,
				SellOrderId:  maker.order.OrderId,
				MakerOrderId: maker.order.OrderId,
				TakerOrderId: taker.OrderId,
				BuyerId:      taker.UserId,
				SellerId:     maker.order.UserId,
				Price:        bestAsk,
				Quantity:     tradeQty,
				TakerSide:    model.Buy,
			})

			b.positions[taker.UserId] += tradeQty
			b.positions[maker.order.UserId] -= tradeQty

			remaining -= tradeQty
			maker.order.Quantity -= tradeQty
			level.totalVolume -= tradeQty

			if maker.order.Quantity == 0 {
				level.remove(maker)
				delete(b.orders, maker.order.OrderId)
			}
		}

		if level.count == 0 {
			delete(b.asks, bestAsk)
			b.askPrices.Delete(bestAsk)
		}
	}

	return remaining, trades
}

func (b *Book) matchAgainstBids(taker model.Order, remaining int64) (int64, []model.Trade) {
	var trades []model.Trade

	for remaining > 0 {
		bestBid, ok := b.bidPrices.Max()
		if !ok {
			break
		}
		if taker.Price > bestBid {
			break
		}

		level := b.bids[bestBid]
		for remaining > 0 && level.head != nil {
			maker := level.head
			tradeQty := min64(remaining, maker.order.Quantity)

			trades = append(trades, model.Trade{
				MarketId:     b.marketId,
				BuyOrderId:   maker.order.OrderId,
				SellOrderId:  taker.OrderId,
				MakerOrderId: maker.order.OrderId,
				TakerOrderId: taker.OrderId,
				BuyerId:      maker.order.UserId,
				SellerId:     taker.UserId,
				Price:        bestBid,
				Quantity:     tradeQty,
				TakerSide:    model.Sell,
			})

			b.positions[maker.order.UserId] += tradeQty
			b.positions[taker.UserId] -= tradeQty

			remaining -= tradeQty
			maker.order.Quantity -= tradeQty
			level.totalVolume -= tradeQty

			if maker.order.Quantity == 0 {
				level.remove(maker)
				delete(b.orders, maker.order.OrderId)
			}
		}

		if level.count == 0 {
			delete(b.bids, bestBid)
			b.bidPrices.Delete(bestBid)
		}
	}

	return remaining, trades
}

// AddOrder rests an order without attempting to match it first. Used by
// snapshot restore, where every fill that would have happened already
// happened in a prior process of the engine's life and only the
// unmatched remainder was ever persisted.
func (b *Book) AddOrder(order model.Order) error {
	if !b.active {
		return ErrMarketClosed
	}
	b.addToBook(order)
	return nil
}

func (b *Book) addToBook(order model.Order) {
	n := &orderNode{order: order}
	b.orders[order.OrderId] = n

	switch order.Side {
	case model.Buy:
		level, ok := b.bids[order.Price]
		if !ok {
			level = &priceLevel{}
			b.bids[order.Price] = level
			b.bidPrices.ReplaceOrInsert(order.Price)
		}
		level.append(n)
	case model.Sell:
		level, ok := b.asks[order.Price]
		if !ok {
			level = &priceLevel{}
			b.asks[order.Price] = level
			b.askPrices.ReplaceOrInsert(order.Price)
		}
		level.append(n)
	}
}

// CancelOrder removes a resting order in O(1): a map lookup plus an
// unlink from its price level's linked list. If the level becomes empty
// its price is dropped from both the level map and the btree index, so
// there is never a stale price left to discover later. Canceling an
// unknown order id is a no-op, matching the prototype.
func (b *Book) CancelOrder(orderId int32) (model.Order, bool) {
	n, ok := b.orders[orderId]
	if !ok {
		return model.Order{}, false
	}

	order := n.order
	switch order.Side {
	case model.Buy:
		level := b.bids[order.Price]
		level.remove(n)
		if level.count == 0 {
			delete(b.bids, order.Price)
			b.bidPrices.Delete(order.Price)
		}
	case model.Sell:
		level := b.asks[order.Price]
		level.remove(n)
		if level.count == 0 {
			delete(b.asks, order.Price)
			b.askPrices.Delete(order.Price)
		}
	}

	delete(b.orders, orderId)
	return order, true
}

// BestBid returns the highest resting buy price, if any.
func (b *Book) BestBid() (int64, bool) { return b.bidPrices.Max() }

// BestAsk returns the lowest resting sell price, if any.
func (b *Book) BestAsk() (int64, bool) { return b.askPrices.Min() }

// Snapshot returns the current resting liquidity, bids highest-first and
// asks lowest-first, matching book.py's snapshot().
func (b *Book) Snapshot() model.BookSnapshot {
	snap := model.BookSnapshot{MarketId: b.marketId}

	b.bidPrices.Descend(func(price int64) bool {
		level := b.bids[price]
		snap.Bids = append(snap.Bids, model.PriceLevel{Price: price, Qty: level.totalVolume})
		return true
	})
	b.askPrices.Ascend(func(price int64) bool {
		level := b.asks[price]
		snap.Asks = append(snap.Asks, model.PriceLevel{Price: price, Qty: level.totalVolume})
		return true
	})

	return snap
}

// Settle closes the market and liquidates every open position against
// the House at terminalPrice (0 or 1 cent, per spec.md's
// terminal_price ∈ {0,1}). It mirrors book.py's settle_market: cancel
// everything resting first, then emit one synthetic trade per nonzero
// position.
func (b *Book) Settle(terminalPrice int64) ([]model.Order, []model.Trade) {
	b.active = false

	canceled := make([]model.Order, 0, len(b.orders))
	for orderId := range b.orders {
		order, _ := b.CancelOrder(orderId)
		canceled = append(canceled, order)
	}

	var trades []model.Trade
	for userId, netQty := range b.positions {
		if netQty == 0 {
			continue
		}

		// Direction depends only on the sign of the position, never on
		// terminalPrice: a long position always sells out to the House,
		// a short position always buys back from the House. terminalPrice
		// only sets how much cash changes hands (zero if the contract
		// resolved against them), never who is buyer vs seller — getting
		// this backwards would credit the House instead of the user and
		// leave the user's portfolio un-zeroed.
		var qty int64
		var buyUser, sellUser int64
		if netQty > 0 {
			qty = netQty
			buyUser, sellUser = HouseUserId, userId
		} else {
			qty = -netQty
			buyUser, sellUser = userId, HouseUserId
		}

		trades = append(trades, model.Trade{
			MarketId:   b.marketId,
			BuyerId:    buyUser,
			SellerId:   sellUser,
			Price:      terminalPrice,
			Quantity:   qty,
			Settlement: true,
		})

		b.positions[userId] = 0
	}

	return canceled, trades
}

// LoadState restores a book's active flag and per-user positions from a
// snapshot. Resting orders are restored separately via AddOrder, which
// preserves each order's original timestamp verbatim so FIFO priority
// survives the round trip.
func (b *Book) LoadState(active bool, positions map[int64]int64) {
	b.active = active
	for userId, qty := range positions {
		b.positions[userId] = qty
	}
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
