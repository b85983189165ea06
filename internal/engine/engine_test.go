package engine

import (
	"testing"

	"github.com/atmx/contracts-engine/internal/model"
)

func testMarket() model.MarketId {
	return model.MarketId{SubjectId: "rainfall", Threshold: 60}
}

func TestProcessOrder_CreatesMarketOnFirstUse(t *testing.T) {
	e := New()
	if _, ok := e.GetBook(testMarket()); ok {
		t.Fatal("market should not exist before any order")
	}

	if _, err := e.ProcessOrder(model.Order{OrderId: 1, UserId: 1, MarketId: testMarket(), Side: model.Buy, Price: 40, Quantity: 5}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := e.GetBook(testMarket()); !ok {
		t.Fatal("market should exist after its first order")
	}
}

func TestProcessOrder_RejectsDuplicateOrderId(t *testing.T) {
	e := New()
	order := model.Order{OrderId: 1, UserId: 1, MarketId: testMarket(), Side: model.Buy, Price: 40, Quantity: 5}

	if _, err := e.ProcessOrder(order); err != nil {
		t.Fatalf("unexpected error on first order: %v", err)
	}
	if _, err := e.ProcessOrder(order); err != ErrDuplicateOrder {
		t.Fatalf("expected ErrDuplicateOrder on reused id, got %v", err)
	}
}

func TestProcessOrder_RegistersRestingOrderGlobally(t *testing.T) {
	e := New()
	e.ProcessOrder(model.Order{OrderId: 1, UserId: 1, MarketId: testMarket(), Side: model.Buy, Price: 40, Quantity: 5})

	marketId, userId, ok := e.LookupOrder(1)
	if !ok {
		t.Fatal("resting order should be in the global registry")
	}
	if marketId != testMarket() || userId != 1 {
		t.Errorf("LookupOrder = (%v, %d), want (%v, 1)", marketId, userId, testMarket())
	}
}

func TestProcessOrder_MakerFullyFilledLeavesRegistry(t *testing.T) {
	e := New()
	e.ProcessOrder(model.Order{OrderId: 1, UserId: 1, MarketId: testMarket(), Side: model.Sell, Price: 40, Quantity: 5})
	e.ProcessOrder(model.Order{OrderId: 2, UserId: 2, MarketId: testMarket(), Side: model.Buy, Price: 40, Quantity: 5})

	if _, _, ok := e.LookupOrder(1); ok {
		t.Error("fully filled maker should be dropped from the registry")
	}
	if _, _, ok := e.LookupOrder(2); ok {
		t.Error("fully filled taker should not be registered either")
	}
}

func TestProcessOrder_MakerPartiallyFilledUpdatesRegistryQuantity(t *testing.T) {
	e := New()
	e.ProcessOrder(model.Order{OrderId: 1, UserId: 1, MarketId: testMarket(), Side: model.Sell, Price: 40, Quantity: 10})
	e.ProcessOrder(model.Order{OrderId: 2, UserId: 2, MarketId: testMarket(), Side: model.Buy, Price: 40, Quantity: 4})

	if sum := e.RegistryQuantitySum(testMarket()); sum != 6 {
		t.Errorf("registry quantity sum = %d, want 6 (10 - 4 filled)", sum)
	}
}

func TestCancelOrder_RoutesToCorrectMarket(t *testing.T) {
	e := New()
	other := model.MarketId{SubjectId: "heat", Threshold: 90}
	e.ProcessOrder(model.Order{OrderId: 1, UserId: 1, MarketId: testMarket(), Side: model.Buy, Price: 40, Quantity: 5})
	e.ProcessOrder(model.Order{OrderId: 2, UserId: 1, MarketId: other, Side: model.Buy, Price: 20, Quantity: 5})

	order, err := e.CancelOrder(1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.MarketId != testMarket() {
		t.Errorf("canceled order market = %v, want %v", order.MarketId, testMarket())
	}
	if _, _, ok := e.LookupOrder(2); !ok {
		t.Error("canceling one market's order should not affect another market's order")
	}
}

func TestCancelOrder_Unknown(t *testing.T) {
	e := New()
	if _, err := e.CancelOrder(999); err != ErrUnknownOrder {
		t.Fatalf("expected ErrUnknownOrder, got %v", err)
	}
}

func TestSettle_UnknownMarket(t *testing.T) {
	e := New()
	if _, err := e.Settle(testMarket(), 100); err != ErrUnknownMarket {
		t.Fatalf("expected ErrUnknownMarket, got %v", err)
	}
}

func TestSettle_DropsCanceledOrdersFromRegistry(t *testing.T) {
	e := New()
	e.ProcessOrder(model.Order{OrderId: 1, UserId: 1, MarketId: testMarket(), Side: model.Buy, Price: 40, Quantity: 5})

	if _, err := e.Settle(testMarket(), 100); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, _, ok := e.LookupOrder(1); ok {
		t.Error("settlement should remove canceled resting orders from the global registry")
	}
}

func TestMarketsForSubject(t *testing.T) {
	e := New()
	e.ProcessOrder(model.Order{OrderId: 1, UserId: 1, MarketId: model.MarketId{SubjectId: "rainfall", Threshold: 40}, Side: model.Buy, Price: 10, Quantity: 1})
	e.ProcessOrder(model.Order{OrderId: 2, UserId: 1, MarketId: model.MarketId{SubjectId: "rainfall", Threshold: 60}, Side: model.Buy, Price: 10, Quantity: 1})
	e.ProcessOrder(model.Order{OrderId: 3, UserId: 1, MarketId: model.MarketId{SubjectId: "heat", Threshold: 90}, Side: model.Buy, Price: 10, Quantity: 1})

	markets := e.MarketsForSubject("rainfall")
	if len(markets) != 2 {
		t.Fatalf("expected 2 rainfall markets, got %d: %v", len(markets), markets)
	}
}

func TestActiveMarkets_ExcludesSettled(t *testing.T) {
	e := New()
	e.ProcessOrder(model.Order{OrderId: 1, UserId: 1, MarketId: testMarket(), Side: model.Buy, Price: 40, Quantity: 5})
	e.Settle(testMarket(), 100)

	if active := e.ActiveMarkets(); len(active) != 0 {
		t.Errorf("expected no active markets after settlement, got %v", active)
	}
	if all := e.AllMarkets(); len(all) != 1 {
		t.Errorf("expected the settled market to remain in AllMarkets, got %v", all)
	}
}

func TestEnsureName_FirstCallWins(t *testing.T) {
	e := New()
	e.EnsureName(testMarket(), "rainfall over 60mm")
	e.EnsureName(testMarket(), "a later, different name")

	if got := e.MarketName(testMarket()); got != "rainfall over 60mm" {
		t.Errorf("MarketName = %q, want the name set on first contact", got)
	}
}

func TestMarketName_FallsBackToMarketIdString(t *testing.T) {
	e := New()
	if got, want := e.MarketName(testMarket()), testMarket().String(); got != want {
		t.Errorf("MarketName = %q, want %q", got, want)
	}
}

func TestOrderQuantityFor_TracksRestingQuantity(t *testing.T) {
	e := New()
	e.ProcessOrder(model.Order{OrderId: 1, UserId: 1, MarketId: testMarket(), Side: model.Sell, Price: 40, Quantity: 10})
	e.ProcessOrder(model.Order{OrderId: 2, UserId: 2, MarketId: testMarket(), Side: model.Buy, Price: 40, Quantity: 4})

	if qty, ok := e.OrderQuantityFor(1); !ok || qty != 6 {
		t.Errorf("OrderQuantityFor(1) = (%d, %v), want (6, true)", qty, ok)
	}
	if _, ok := e.OrderQuantityFor(999); ok {
		t.Error("OrderQuantityFor should report false for an unknown order")
	}
}

func TestRestoreOrder_PreservesRegistryAndBook(t *testing.T) {
	e := New()
	order := model.Order{OrderId: 1, UserId: 1, MarketId: testMarket(), Side: model.Buy, Price: 40, Quantity: 5, Timestamp: 12345}

	if err := e.RestoreOrder(order); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	book, ok := e.GetBook(testMarket())
	if !ok || !book.HasOrder(1) {
		t.Fatal("restored order should be resting in its book")
	}
	if _, _, ok := e.LookupOrder(1); !ok {
		t.Error("restored order should be in the global registry")
	}
}
