package tcp

import (
	"encoding/json"
	"testing"

	"github.com/atmx/contracts-engine/internal/coordinator"
	"github.com/atmx/contracts-engine/internal/idmap"
	"github.com/atmx/contracts-engine/internal/model"
)

func rawMarketId(t *testing.T, subject string, threshold int64) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(map[string]any{"subject_id": subject, "threshold": threshold})
	if err != nil {
		t.Fatalf("marshal market id: %v", err)
	}
	return data
}

func TestTranslate_PlaceOrder(t *testing.T) {
	mapper := idmap.New()
	req := request{
		Type: "place_order", MarketId: rawMarketId(t, "alice", 60),
		Side: "buy", Price: 40, Qty: 5, Id: 1, UserId: "bob",
	}

	cmd, err := translate(req, mapper)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cmd.Action != coordinator.PlaceOrder || cmd.Price != 40 || cmd.Quantity != 5 || cmd.OrderId != 1 {
		t.Errorf("cmd = %+v, unexpected fields", cmd)
	}
	if cmd.MarketName == "" {
		t.Error("expected a market name built from the subject on first contact")
	}
	if cmd.UserId != mapper.ToInternal("bob") {
		t.Errorf("UserId not translated through mapper: got %d", cmd.UserId)
	}
}

func TestTranslate_CancelOrderRequiresUserId(t *testing.T) {
	mapper := idmap.New()
	_, err := translate(request{Type: "cancel_order", Id: 1}, mapper)
	if err == nil {
		t.Fatal("expected an error for cancel_order with no user_id")
	}
}

func TestTranslate_CancelOrder(t *testing.T) {
	mapper := idmap.New()
	cmd, err := translate(request{Type: "cancel_order", Id: 7, UserId: "bob"}, mapper)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cmd.Action != coordinator.CancelOrder || cmd.OrderId != 7 {
		t.Errorf("cmd = %+v, unexpected fields", cmd)
	}
}

func TestTranslate_Settle(t *testing.T) {
	mapper := idmap.New()
	cmd, err := translate(request{Type: "settle", TargetUserId: "bob", ActualValue: 90}, mapper)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cmd.Action != coordinator.SettleSubject || cmd.ObservedValue != 90 {
		t.Errorf("cmd = %+v, unexpected fields", cmd)
	}
}

func TestTranslate_ProofOfWalk(t *testing.T) {
	mapper := idmap.New()
	cmd, err := translate(request{Type: "proof_of_walk", UserId: "bob", Steps: 300}, mapper)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cmd.Action != coordinator.MintByActivity || cmd.Units != 300 {
		t.Errorf("cmd = %+v, unexpected fields", cmd)
	}
}

func TestTranslate_DoomscrollBurn(t *testing.T) {
	mapper := idmap.New()
	cmd, err := translate(request{Type: "doomscroll_burn", UserId: "bob", Minutes: 120}, mapper)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cmd.Action != coordinator.BurnByUsage || cmd.Units != 120 {
		t.Errorf("cmd = %+v, unexpected fields", cmd)
	}
}

func TestTranslate_UnknownType(t *testing.T) {
	mapper := idmap.New()
	if _, err := translate(request{Type: "nonsense"}, mapper); err == nil {
		t.Fatal("expected an error for an unknown request type")
	}
}

func TestRender_PricesStayIntegerCents(t *testing.T) {
	mapper := idmap.New()
	resp := coordinator.Response{
		Success: true,
		Trades: []model.Trade{
			{Price: 42, Quantity: 3, BuyerId: model.HouseUserId, SellerId: mapper.ToInternal("bob")},
		},
	}

	out := render(resp, mapper)
	if len(out.Trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(out.Trades))
	}
	if out.Trades[0].Price != 42 {
		t.Errorf("trade price = %d, want 42 cents (not a dollar string)", out.Trades[0].Price)
	}
	if out.Trades[0].BuyerId != "house" {
		t.Errorf("BuyerId = %q, want %q", out.Trades[0].BuyerId, "house")
	}
	if out.Trades[0].SellerId != "bob" {
		t.Errorf("SellerId = %q, want %q", out.Trades[0].SellerId, "bob")
	}
}

func TestRender_MarketsCarryNameAndTopOfBook(t *testing.T) {
	mapper := idmap.New()
	bid := int64(40)
	resp := coordinator.Response{
		Success: true,
		Markets: []coordinator.MarketSummary{
			{MarketId: model.MarketId{SubjectId: "1", Threshold: 60}, Name: "alice screen time 1:00", BestBid: &bid},
		},
	}

	out := render(resp, mapper)
	if len(out.Markets) != 1 {
		t.Fatalf("expected 1 market, got %d", len(out.Markets))
	}
	m := out.Markets[0]
	if m.Name != "alice screen time 1:00" {
		t.Errorf("Name = %q", m.Name)
	}
	if m.BestBid == nil || *m.BestBid != 40 {
		t.Errorf("BestBid = %v, want 40", m.BestBid)
	}
	if m.BestAsk != nil {
		t.Errorf("BestAsk = %v, want nil", m.BestAsk)
	}
}

func TestRender_ErrorResponseOmitsFields(t *testing.T) {
	mapper := idmap.New()
	out := render(coordinator.Response{Success: false, Message: "boom"}, mapper)
	if out.Status != "error" || out.Message != "boom" {
		t.Errorf("out = %+v, unexpected error rendering", out)
	}
}

func TestDisplayName_FormatsHoursAndMinutes(t *testing.T) {
	if got := displayName("alice", 90); got != "alice screen time 1:30" {
		t.Errorf("displayName = %q, want %q", got, "alice screen time 1:30")
	}
}
