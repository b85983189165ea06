package tcp

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/atmx/contracts-engine/internal/coordinator"
	"github.com/atmx/contracts-engine/internal/idmap"
	"github.com/atmx/contracts-engine/internal/model"
	"github.com/atmx/contracts-engine/internal/money"
)

// request is the newline-delimited JSON frame clients send, grounded on
// the Python prototype's server.py switchboard: a "type" discriminator
// plus whatever fields that type needs, following spec.md §6's wire
// contract field-for-field. market_id accepts either a
// {"subject_id", "threshold"} object or a "subject,threshold" string, the
// same flexibility interface.py's _parse_market_id gives clients.
type request struct {
	Type string `json:"type"`

	MarketId json.RawMessage `json:"market_id,omitempty"`
	UserId   string          `json:"user_id,omitempty"`
	Side     string          `json:"side,omitempty"`
	Price    int64           `json:"price,omitempty"` // integer cents, per spec.md §6
	Qty      int64           `json:"qty,omitempty"`
	Id       int32           `json:"id,omitempty"` // order id

	TargetUserId string `json:"target_user_id,omitempty"`
	ActualValue  int64  `json:"actual_value,omitempty"`

	Steps   int64 `json:"steps,omitempty"`
	Minutes int64 `json:"minutes,omitempty"`
}

// response is the newline-delimited JSON frame sent back. Fields are
// grouped below by the request type they answer and are omitted when
// empty, but render does not know the request type: kind is set on every
// response, and refunded, minted and burned on every successful one
// ("0.00" where the command moved no such cash).
type response struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Kind    string `json:"kind,omitempty"`

	// place_order
	Trades     []wireTrade `json:"trades,omitempty"`
	RestingQty int64       `json:"resting_qty,omitempty"`

	// cancel_order
	Refunded string `json:"refunded,omitempty"`

	// get_markets
	Markets []wireMarket `json:"markets,omitempty"`

	// get_snapshot
	Bids []wireLevel `json:"bids,omitempty"`
	Asks []wireLevel `json:"asks,omitempty"`

	// balance
	Available string           `json:"available,omitempty"`
	Locked    string           `json:"locked,omitempty"`
	Positions map[string]int64 `json:"positions,omitempty"`

	// proof_of_walk
	Minted string `json:"minted,omitempty"`

	// doomscroll_burn
	Burned string `json:"burned,omitempty"`
}

type wireTrade struct {
	Price    int64  `json:"price"` // cents
	Quantity int64  `json:"quantity"`
	BuyerId  string `json:"buyer_id"`
	SellerId string `json:"seller_id"`
}

type wireLevel struct {
	Price int64 `json:"price"` // cents
	Qty   int64 `json:"qty"`
}

type wireMarket struct {
	Id      string `json:"id"`
	Name    string `json:"name"`
	BestBid *int64 `json:"best_bid"`
	BestAsk *int64 `json:"best_ask"`
}

// translate converts a wire request into a Coordinator Command, mapping
// external user identities to internal ids via mapper exactly once at
// this boundary. Mirrors translate_client_message.
func translate(req request, mapper *idmap.Mapper) (coordinator.Command, error) {
	switch req.Type {
	case "place_order":
		marketId, name, err := parseMarketIdNamed(req.MarketId, mapper)
		if err != nil {
			return coordinator.Command{}, err
		}
		side, ok := model.ParseSide(req.Side)
		if !ok {
			return coordinator.Command{}, fmt.Errorf("tcp: invalid side %q", req.Side)
		}
		if req.UserId == "" {
			return coordinator.Command{}, fmt.Errorf("tcp: missing user_id")
		}
		return coordinator.Command{
			Action:     coordinator.PlaceOrder,
			MarketId:   marketId,
			MarketName: name,
			Side:       side,
			Price:      req.Price,
			Quantity:   req.Qty,
			OrderId:    req.Id,
			UserId:     mapper.ToInternal(req.UserId),
		}, nil

	case "cancel_order":
		if req.UserId == "" {
			return coordinator.Command{}, fmt.Errorf("tcp: missing user_id")
		}
		return coordinator.Command{
			Action:  coordinator.CancelOrder,
			OrderId: req.Id,
			UserId:  mapper.ToInternal(req.UserId),
		}, nil

	case "settle":
		if req.TargetUserId == "" {
			return coordinator.Command{}, fmt.Errorf("tcp: missing target_user_id")
		}
		return coordinator.Command{
			Action:        coordinator.SettleSubject,
			SubjectId:     strconv.FormatInt(mapper.ToInternal(req.TargetUserId), 10),
			ObservedValue: req.ActualValue,
		}, nil

	case "get_markets":
		return coordinator.Command{Action: coordinator.GetMarkets}, nil

	case "get_snapshot":
		marketId, err := parseMarketId(req.MarketId, mapper)
		if err != nil {
			return coordinator.Command{}, err
		}
		return coordinator.Command{Action: coordinator.GetSnapshot, MarketId: marketId}, nil

	case "balance":
		if req.UserId == "" {
			return coordinator.Command{}, fmt.Errorf("tcp: missing user_id")
		}
		return coordinator.Command{Action: coordinator.GetBalance, UserId: mapper.ToInternal(req.UserId)}, nil

	case "proof_of_walk":
		if req.UserId == "" {
			return coordinator.Command{}, fmt.Errorf("tcp: missing user_id")
		}
		return coordinator.Command{
			Action: coordinator.MintByActivity,
			UserId: mapper.ToInternal(req.UserId),
			Units:  req.Steps,
		}, nil

	case "doomscroll_burn":
		if req.UserId == "" {
			return coordinator.Command{}, fmt.Errorf("tcp: missing user_id")
		}
		return coordinator.Command{
			Action: coordinator.BurnByUsage,
			UserId: mapper.ToInternal(req.UserId),
			Units:  req.Minutes,
		}, nil

	default:
		return coordinator.Command{}, fmt.Errorf("tcp: unknown request type %q", req.Type)
	}
}

// parseMarketId accepts either a {"subject_id":"...","threshold":N} object
// or a "subject,threshold"/"subject_threshold" string, converting the
// subject to an internal id exactly as _parse_market_id does. The
// SubjectId field in the resulting model.MarketId stores the internal id
// as a decimal string, so model.MarketId remains plain comparable data
// with no mapper dependency of its own.
func parseMarketId(raw json.RawMessage, mapper *idmap.Mapper) (model.MarketId, error) {
	marketId, _, err := parseMarketIdNamed(raw, mapper)
	return marketId, err
}

// parseMarketIdNamed is parseMarketId plus a human-readable display name
// built from the external subject string, for naming a market the first
// time a place_order references it (spec.md §4.2: "creating and naming
// it on first contact").
func parseMarketIdNamed(raw json.RawMessage, mapper *idmap.Mapper) (model.MarketId, string, error) {
	if len(raw) == 0 {
		return model.MarketId{}, "", fmt.Errorf("tcp: missing market_id")
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return model.MarketId{}, "", fmt.Errorf("tcp: invalid market_id: %w", err)
		}
		subject, threshold, err := splitMarketIdString(s)
		if err != nil {
			return model.MarketId{}, "", err
		}
		marketId := model.MarketId{SubjectId: strconv.FormatInt(mapper.ToInternal(subject), 10), Threshold: threshold}
		return marketId, displayName(subject, threshold), nil
	}

	var obj struct {
		SubjectId string `json:"subject_id"`
		Threshold int64  `json:"threshold"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return model.MarketId{}, "", fmt.Errorf("tcp: invalid market_id: %w", err)
	}
	marketId := model.MarketId{SubjectId: strconv.FormatInt(mapper.ToInternal(obj.SubjectId), 10), Threshold: obj.Threshold}
	return marketId, displayName(obj.SubjectId, obj.Threshold), nil
}

// displayName mirrors interface.py's market naming: a human sentence
// built from the external subject and the screen-time threshold.
func displayName(subject string, thresholdMinutes int64) string {
	return fmt.Sprintf("%s screen time %d:%02d", subject, thresholdMinutes/60, thresholdMinutes%60)
}

func splitMarketIdString(s string) (string, int64, error) {
	var subject, thresholdStr string
	if idx := strings.LastIndex(s, ","); idx >= 0 {
		subject, thresholdStr = s[:idx], s[idx+1:]
	} else if idx := strings.LastIndex(s, "_"); idx >= 0 {
		subject, thresholdStr = s[:idx], s[idx+1:]
	} else {
		return "", 0, fmt.Errorf("tcp: invalid market_id string %q", s)
	}
	threshold, err := strconv.ParseInt(thresholdStr, 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("tcp: invalid market_id string %q: %w", s, err)
	}
	return subject, threshold, nil
}

// render converts a Coordinator Response into the wire response, mapping
// internal user ids back to external identities for display. Order/trade
// prices stay in integer cents on the wire per spec.md §6; only
// user-facing cash totals (balance, minted, burned, refunded) render as
// decimal dollar strings.
func render(resp coordinator.Response, mapper *idmap.Mapper) response {
	out := response{Kind: resp.Kind.String()}

	if !resp.Success {
		out.Status = "error"
		out.Message = resp.Message
		return out
	}

	out.Status = "ok"
	out.RestingQty = resp.RestingQty
	out.Refunded = money.CentsToDollars(resp.Refunded)
	out.Minted = money.CentsToDollars(resp.MintedCents)
	out.Burned = money.CentsToDollars(resp.BurnedCents)

	for _, t := range resp.Trades {
		out.Trades = append(out.Trades, wireTrade{
			Price:    t.Price,
			Quantity: t.Quantity,
			BuyerId:  externalOrFallback(mapper, t.BuyerId),
			SellerId: externalOrFallback(mapper, t.SellerId),
		})
	}

	for _, m := range resp.Markets {
		out.Markets = append(out.Markets, wireMarket{
			Id:      marketIdString(mapper, m.MarketId),
			Name:    m.Name,
			BestBid: m.BestBid,
			BestAsk: m.BestAsk,
		})
	}

	if resp.Snapshot != nil {
		for _, lvl := range resp.Snapshot.Bids {
			out.Bids = append(out.Bids, wireLevel{Price: lvl.Price, Qty: lvl.Qty})
		}
		for _, lvl := range resp.Snapshot.Asks {
			out.Asks = append(out.Asks, wireLevel{Price: lvl.Price, Qty: lvl.Qty})
		}
	}

	if resp.Balance != nil {
		portfolio := make(map[string]int64, len(resp.Balance.Portfolio))
		for marketId, qty := range resp.Balance.Portfolio {
			portfolio[marketIdString(mapper, marketId)] = qty
		}
		out.Available = resp.Balance.Available
		out.Locked = resp.Balance.Locked
		out.Positions = portfolio
	}

	return out
}

func externalOrFallback(mapper *idmap.Mapper, userId int64) string {
	if userId == model.HouseUserId {
		return "house"
	}
	if s, err := mapper.ToExternal(userId); err == nil {
		return s
	}
	return strconv.FormatInt(userId, 10)
}

func marketIdString(mapper *idmap.Mapper, marketId model.MarketId) string {
	subject := marketId.SubjectId
	if internalId, err := strconv.ParseInt(marketId.SubjectId, 10, 64); err == nil {
		if s, err := mapper.ToExternal(internalId); err == nil {
			subject = s
		}
	}
	return fmt.Sprintf("%s,%d", subject, marketId.Threshold)
}
