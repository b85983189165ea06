// Package api is the read-side HTTP mirror of the TCP protocol: the same
// three read-only Coordinator commands (get_markets, get_snapshot,
// balance) exposed over chi for dashboards and polling clients that
// would rather not hold a persistent TCP connection open. It never
// accepts mutating commands — placing or canceling an order is the TCP
// listener's job — grounded on the teacher's internal/trade.Service,
// which is chi handlers wrapping a single backing service the same way.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/atmx/contracts-engine/internal/coordinator"
	"github.com/atmx/contracts-engine/internal/idmap"
	"github.com/atmx/contracts-engine/internal/model"
	"github.com/atmx/contracts-engine/internal/money"
)

// Service handles the read-only REST surface over a Coordinator.
type Service struct {
	coord  *coordinator.Coordinator
	mapper *idmap.Mapper
}

// NewService returns a Service wrapping coord. Requests are translated
// through mapper the same way internal/tcp translates wire requests, so
// external identities never leak into the Coordinator's internal id
// space and vice versa.
func NewService(coord *coordinator.Coordinator, mapper *idmap.Mapper) *Service {
	return &Service{coord: coord, mapper: mapper}
}

// marketListResponse is the JSON body for GET /api/v1/markets.
type marketListResponse struct {
	Markets []string `json:"markets"`
}

// GetMarkets handles GET /api/v1/markets.
func (s *Service) GetMarkets(w http.ResponseWriter, r *http.Request) {
	resp := s.coord.Execute(coordinator.Command{Action: coordinator.GetMarkets})
	out := marketListResponse{Markets: make([]string, 0, len(resp.Markets))}
	for _, m := range resp.Markets {
		out.Markets = append(out.Markets, s.externalMarketId(m.MarketId))
	}
	writeJSON(w, http.StatusOK, out)
}

// bookLevel and bookResponse mirror model.PriceLevel/BookSnapshot but in
// dollar strings; internal/tcp's get_snapshot keeps level prices in
// integer cents instead.
type bookLevel struct {
	Price string `json:"price"`
	Qty   int64  `json:"qty"`
}

type bookResponse struct {
	MarketId string      `json:"market_id"`
	Bids     []bookLevel `json:"bids"`
	Asks     []bookLevel `json:"asks"`
}

// GetBook handles GET /api/v1/markets/{marketId}/book.
func (s *Service) GetBook(w http.ResponseWriter, r *http.Request) {
	marketId, err := s.parseMarketIdParam(chi.URLParam(r, "marketId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := s.coord.Execute(coordinator.Command{Action: coordinator.GetSnapshot, MarketId: marketId})
	if !resp.Success {
		writeError(w, http.StatusNotFound, resp.Message)
		return
	}

	out := bookResponse{MarketId: chi.URLParam(r, "marketId")}
	for _, lvl := range resp.Snapshot.Bids {
		out.Bids = append(out.Bids, bookLevel{Price: money.CentsToDollars(lvl.Price), Qty: lvl.Qty})
	}
	for _, lvl := range resp.Snapshot.Asks {
		out.Asks = append(out.Asks, bookLevel{Price: money.CentsToDollars(lvl.Price), Qty: lvl.Qty})
	}
	writeJSON(w, http.StatusOK, out)
}

// balanceResponse is the JSON body for GET /api/v1/balance/{userId}.
type balanceResponse struct {
	Available string           `json:"available"`
	Locked    string           `json:"locked"`
	Portfolio map[string]int64 `json:"portfolio"`
}

// GetBalance handles GET /api/v1/balance/{userId}.
func (s *Service) GetBalance(w http.ResponseWriter, r *http.Request) {
	external := chi.URLParam(r, "userId")
	if external == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	resp := s.coord.Execute(coordinator.Command{
		Action: coordinator.GetBalance,
		UserId: s.mapper.ToInternal(external),
	})

	portfolio := make(map[string]int64, len(resp.Balance.Portfolio))
	for marketId, qty := range resp.Balance.Portfolio {
		portfolio[s.externalMarketId(marketId)] = qty
	}
	writeJSON(w, http.StatusOK, balanceResponse{
		Available: resp.Balance.Available,
		Locked:    resp.Balance.Locked,
		Portfolio: portfolio,
	})
}

// parseMarketIdParam accepts the same "subject,threshold" form the TCP
// wire protocol uses for string market ids.
func (s *Service) parseMarketIdParam(raw string) (model.MarketId, error) {
	idx := strings.LastIndex(raw, ",")
	if idx < 0 {
		return model.MarketId{}, errInvalidMarketId(raw)
	}
	threshold, err := strconv.ParseInt(raw[idx+1:], 10, 64)
	if err != nil {
		return model.MarketId{}, errInvalidMarketId(raw)
	}
	subject := raw[:idx]
	return model.MarketId{SubjectId: strconv.FormatInt(s.mapper.ToInternal(subject), 10), Threshold: threshold}, nil
}

func (s *Service) externalMarketId(marketId model.MarketId) string {
	subject := marketId.SubjectId
	if internalId, err := strconv.ParseInt(marketId.SubjectId, 10, 64); err == nil {
		if ext, err := s.mapper.ToExternal(internalId); err == nil {
			subject = ext
		}
	}
	return subject + "," + strconv.FormatInt(marketId.Threshold, 10)
}

func errInvalidMarketId(raw string) error {
	return &invalidMarketIdError{raw: raw}
}

type invalidMarketIdError struct{ raw string }

func (e *invalidMarketIdError) Error() string {
	return "invalid market id: " + e.raw
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
