package engine

import "github.com/atmx/contracts-engine/internal/model"

// MarketState is the persisted shape of one market: its display name,
// active flag, resting orders (timestamps preserved verbatim so FIFO
// priority survives a reload), and per-user net positions. This is the
// per-market snapshot shape deprecated_engine.py uses
// (bids/asks/positions/name); the bids/asks split is redundant with each
// Order's own Side field, so it's carried here as one flat Orders list
// instead of two, per spec.md §6's own note that each order is stored
// with its side.
type MarketState struct {
	MarketId  model.MarketId  `json:"market_id"`
	Name      string          `json:"name"`
	Active    bool            `json:"active"`
	Orders    []model.Order   `json:"orders"`
	Positions map[int64]int64 `json:"positions"`
}

// DumpState returns every market's persisted state, for the "markets" key
// of the whole-engine snapshot document.
func (e *Engine) DumpState() []MarketState {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]MarketState, 0, len(e.books))
	for marketId, book := range e.books {
		name := e.names[marketId]
		if name == "" {
			name = marketId.String()
		}
		out = append(out, MarketState{
			MarketId:  marketId,
			Name:      name,
			Active:    book.Active(),
			Orders:    book.RestingOrders(),
			Positions: book.Positions(),
		})
	}
	return out
}

// LoadState rebuilds every market's book from a previously dumped
// snapshot. Orders are restored via RestoreOrder so each one keeps its
// original timestamp and is re-registered in the global order registry;
// positions, the active flag, and the display name are restored directly
// onto the book/engine afterward, since they are independent of what's
// currently resting.
func (e *Engine) LoadState(states []MarketState) error {
	for _, state := range states {
		for _, order := range state.Orders {
			if err := e.RestoreOrder(order); err != nil {
				return err
			}
		}

		e.mu.Lock()
		book := e.getOrCreateBookLocked(state.MarketId)
		book.LoadState(state.Active, state.Positions)
		if state.Name != "" {
			e.names[state.MarketId] = state.Name
		}
		e.mu.Unlock()
	}
	return nil
}
