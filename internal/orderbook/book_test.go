package orderbook

import (
	"testing"

	"github.com/atmx/contracts-engine/internal/model"
)

func testMarket() model.MarketId {
	return model.MarketId{SubjectId: "rainfall", Threshold: 60}
}

func TestProcessOrder_RestsWhenNoCross(t *testing.T) {
	b := NewBook(testMarket())

	trades, err := b.ProcessOrder(model.Order{OrderId: 1, UserId: 1, Side: model.Buy, Price: 40, Quantity: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(trades) != 0 {
		t.Fatalf("expected no trades, got %d", len(trades))
	}

	bid, ok := b.BestBid()
	if !ok || bid != 40 {
		t.Fatalf("BestBid() = (%d, %v), want (40, true)", bid, ok)
	}
}

func TestProcessOrder_FullMatch(t *testing.T) {
	b := NewBook(testMarket())

	if _, err := b.ProcessOrder(model.Order{OrderId: 1, UserId: 1, Side: model.Sell, Price: 40, Quantity: 10}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	trades, err := b.ProcessOrder(model.Order{OrderId: 2, UserId: 2, Side: model.Buy, Price: 40, Quantity: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}

	trade := trades[0]
	if trade.Price != 40 || trade.Quantity != 10 {
		t.Errorf("trade = %+v, want price 40 qty 10", trade)
	}
	if trade.BuyerId != 2 || trade.SellerId != 1 {
		t.Errorf("trade buyer/seller = %d/%d, want 2/1", trade.BuyerId, trade.SellerId)
	}

	if b.HasOrder(1) || b.HasOrder(2) {
		t.Error("fully matched orders should not remain in the registry")
	}
	if _, ok := b.BestBid(); ok {
		t.Error("book should have no resting bid after a full match")
	}
}

func TestProcessOrder_PartialMatchRestsRemainder(t *testing.T) {
	b := NewBook(testMarket())

	b.ProcessOrder(model.Order{OrderId: 1, UserId: 1, Side: model.Sell, Price: 40, Quantity: 5})

	trades, err := b.ProcessOrder(model.Order{OrderId: 2, UserId: 2, Side: model.Buy, Price: 40, Quantity: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(trades) != 1 || trades[0].Quantity != 5 {
		t.Fatalf("expected single 5-qty trade, got %+v", trades)
	}

	qty, ok := b.OrderQuantity(2)
	if !ok || qty != 5 {
		t.Fatalf("resting remainder = (%d, %v), want (5, true)", qty, ok)
	}
	bid, ok := b.BestBid()
	if !ok || bid != 40 {
		t.Fatalf("BestBid() = (%d, %v), want (40, true)", bid, ok)
	}
}

func TestProcessOrder_TradesAtMakerPrice(t *testing.T) {
	b := NewBook(testMarket())

	// Resting ask at 30; a buy willing to pay up to 50 should still only
	// pay the resting maker's price, not its own limit.
	b.ProcessOrder(model.Order{OrderId: 1, UserId: 1, Side: model.Sell, Price: 30, Quantity: 5})
	trades, _ := b.ProcessOrder(model.Order{OrderId: 2, UserId: 2, Side: model.Buy, Price: 50, Quantity: 5})

	if len(trades) != 1 || trades[0].Price != 30 {
		t.Fatalf("expected trade at maker price 30, got %+v", trades)
	}
}

func TestProcessOrder_PriceTimePriority(t *testing.T) {
	b := NewBook(testMarket())

	// Two asks at the same price: the earlier-added order fills first.
	b.ProcessOrder(model.Order{OrderId: 1, UserId: 1, Side: model.Sell, Price: 40, Quantity: 5})
	b.ProcessOrder(model.Order{OrderId: 2, UserId: 2, Side: model.Sell, Price: 40, Quantity: 5})

	trades, _ := b.ProcessOrder(model.Order{OrderId: 3, UserId: 3, Side: model.Buy, Price: 40, Quantity: 5})
	if len(trades) != 1 || trades[0].SellerId != 1 {
		t.Fatalf("expected fill against the first resting order (user 1), got %+v", trades)
	}
	if !b.HasOrder(2) {
		t.Error("second resting order should remain untouched")
	}
}

func TestProcessOrder_BetterPricesMatchedFirst(t *testing.T) {
	b := NewBook(testMarket())

	b.ProcessOrder(model.Order{OrderId: 1, UserId: 1, Side: model.Sell, Price: 45, Quantity: 5})
	b.ProcessOrder(model.Order{OrderId: 2, UserId: 2, Side: model.Sell, Price: 40, Quantity: 5})

	trades, _ := b.ProcessOrder(model.Order{OrderId: 3, UserId: 3, Side: model.Buy, Price: 50, Quantity: 5})
	if len(trades) != 1 || trades[0].Price != 40 {
		t.Fatalf("expected the cheaper ask (40) to fill first, got %+v", trades)
	}
}

func TestCancelOrder(t *testing.T) {
	b := NewBook(testMarket())
	b.ProcessOrder(model.Order{OrderId: 1, UserId: 1, Side: model.Buy, Price: 40, Quantity: 5})

	order, ok := b.CancelOrder(1)
	if !ok {
		t.Fatal("expected cancel to succeed")
	}
	if order.OrderId != 1 {
		t.Errorf("canceled order id = %d, want 1", order.OrderId)
	}
	if b.HasOrder(1) {
		t.Error("order should no longer be registered after cancel")
	}
	if _, ok := b.BestBid(); ok {
		t.Error("book should have no bid after canceling its only order")
	}
}

func TestCancelOrder_UnknownIsNoop(t *testing.T) {
	b := NewBook(testMarket())
	_, ok := b.CancelOrder(999)
	if ok {
		t.Fatal("canceling an unknown order id should report false")
	}
}

func TestProcessOrder_RejectsOnClosedMarket(t *testing.T) {
	b := NewBook(testMarket())
	b.Settle(100)

	_, err := b.ProcessOrder(model.Order{OrderId: 1, UserId: 1, Side: model.Buy, Price: 40, Quantity: 5})
	if err != ErrMarketClosed {
		t.Fatalf("expected ErrMarketClosed, got %v", err)
	}
}

func TestSettle_LiquidatesLongAgainstHouseAtYes(t *testing.T) {
	b := NewBook(testMarket())

	b.ProcessOrder(model.Order{OrderId: 1, UserId: 1, Side: model.Sell, Price: 40, Quantity: 10})
	b.ProcessOrder(model.Order{OrderId: 2, UserId: 2, Side: model.Buy, Price: 40, Quantity: 10})

	_, trades := b.Settle(100)
	if len(trades) != 2 {
		t.Fatalf("expected a settlement trade per nonzero position, got %d", len(trades))
	}

	found := false
	for _, tr := range trades {
		if tr.SellerId == 2 && tr.BuyerId == HouseUserId && tr.Price == 100 && tr.Quantity == 10 {
			found = true
		}
	}
	if !found {
		t.Errorf("expected the long holder to sell out to the House at 100, got %+v", trades)
	}
	if b.Position(2) != 0 {
		t.Errorf("position should be zeroed after settlement, got %d", b.Position(2))
	}
}

func TestSettle_LiquidatesLongAgainstHouseAtNo(t *testing.T) {
	b := NewBook(testMarket())

	b.ProcessOrder(model.Order{OrderId: 1, UserId: 1, Side: model.Sell, Price: 40, Quantity: 10})
	b.ProcessOrder(model.Order{OrderId: 2, UserId: 2, Side: model.Buy, Price: 40, Quantity: 10})

	_, trades := b.Settle(0)

	found := false
	for _, tr := range trades {
		if tr.SellerId == 2 && tr.BuyerId == HouseUserId && tr.Price == 0 && tr.Quantity == 10 {
			found = true
		}
	}
	if !found {
		t.Errorf("expected the long holder to sell out to the House at 0, got %+v", trades)
	}
}

func TestSettle_CancelsRestingOrders(t *testing.T) {
	b := NewBook(testMarket())
	b.ProcessOrder(model.Order{OrderId: 1, UserId: 1, Side: model.Buy, Price: 40, Quantity: 5})

	canceled, _ := b.Settle(100)
	if len(canceled) != 1 || canceled[0].OrderId != 1 {
		t.Fatalf("expected the resting order to be canceled on settlement, got %+v", canceled)
	}
	if b.Active() {
		t.Error("book should be inactive after settlement")
	}
}

func TestSettle_ZeroPositionsProduceNoTrade(t *testing.T) {
	b := NewBook(testMarket())
	_, trades := b.Settle(100)
	if len(trades) != 0 {
		t.Fatalf("expected no settlement trades with no open positions, got %d", len(trades))
	}
}

func TestSnapshot_OrderedByPricePriority(t *testing.T) {
	b := NewBook(testMarket())
	b.ProcessOrder(model.Order{OrderId: 1, UserId: 1, Side: model.Buy, Price: 30, Quantity: 5})
	b.ProcessOrder(model.Order{OrderId: 2, UserId: 2, Side: model.Buy, Price: 45, Quantity: 5})
	b.ProcessOrder(model.Order{OrderId: 3, UserId: 3, Side: model.Sell, Price: 60, Quantity: 5})
	b.ProcessOrder(model.Order{OrderId: 4, UserId: 4, Side: model.Sell, Price: 55, Quantity: 5})

	snap := b.Snapshot()
	if len(snap.Bids) != 2 || snap.Bids[0].Price != 45 {
		t.Fatalf("bids should be highest-first, got %+v", snap.Bids)
	}
	if len(snap.Asks) != 2 || snap.Asks[0].Price != 55 {
		t.Fatalf("asks should be lowest-first, got %+v", snap.Asks)
	}
}
