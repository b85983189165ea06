// Package tcp implements the engine's external transport: a
// newline-delimited JSON protocol over plain TCP, grounded on the Python
// prototype's server.py. Where the prototype runs everything inline
// inside asyncio's single event loop, this server accepts connections
// concurrently (one goroutine per connection, same as the prototype's one
// coroutine per connection) but funnels every command through a single
// worker goroutine, so the Coordinator — and therefore the Engine and
// Ledger beneath it — is never driven from two goroutines at once. That
// single-threaded-cooperative property is spec'd explicitly; the
// prototype gets it for free from asyncio's single-threadedness, and we
// have to build it by hand.
package tcp

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/atmx/contracts-engine/internal/coordinator"
	"github.com/atmx/contracts-engine/internal/idmap"
	"github.com/atmx/contracts-engine/internal/model"
)

// Broadcaster receives every trade produced by a command, for fan-out to
// the market-data websocket feed. Declared here rather than importing
// internal/feed directly, so tcp has no compile-time dependency on the
// feed's transport details.
type Broadcaster interface {
	BroadcastTrades(trades []model.Trade)
}

type job struct {
	cmd    coordinator.Command
	result chan coordinator.Response
}

// Server accepts TCP connections and dispatches their requests to a
// single Coordinator worker.
type Server struct {
	addr   string
	coord  *coordinator.Coordinator
	mapper *idmap.Mapper
	log    *slog.Logger
	feed   Broadcaster

	work chan job
}

// New returns a Server ready to Run. feed may be nil if no market-data
// fan-out is wired up.
func New(addr string, coord *coordinator.Coordinator, mapper *idmap.Mapper, log *slog.Logger, feed Broadcaster) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		addr:   addr,
		coord:  coord,
		mapper: mapper,
		log:    log,
		feed:   feed,
		work:   make(chan job, 256),
	}
}

// Run listens on the configured address and serves connections until ctx
// is canceled. It blocks until the listener is closed.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	go s.runWorker(ctx)

	var wg sync.WaitGroup
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			wg.Wait()
			return nil
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleConn(conn)
		}()
	}
}

// runWorker is the single goroutine that ever calls coord.Execute. Every
// connection goroutine posts a job here and blocks on its own result
// channel; this is what makes the Coordinator's command handlers run one
// at a time no matter how many clients are connected.
func (s *Server) runWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.work:
			resp := s.coord.Execute(j.cmd)
			if s.feed != nil && len(resp.Trades) > 0 {
				s.feed.BroadcastTrades(resp.Trades)
			}
			j.result <- resp
		}
	}
}

func (s *Server) execute(cmd coordinator.Command) coordinator.Response {
	j := job{cmd: cmd, result: make(chan coordinator.Response, 1)}
	s.work <- j
	return <-j.result
}

func (s *Server) handleConn(conn net.Conn) {
	addr := conn.RemoteAddr()
	connId := uuid.NewString()
	s.log.Info("tcp: connection opened", "addr", addr, "conn_id", connId)
	defer func() {
		conn.Close()
		s.log.Info("tcp: connection closed", "addr", addr, "conn_id", connId)
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	writer := bufio.NewWriter(conn)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req request
		if err := json.Unmarshal(line, &req); err != nil {
			writeResponse(writer, response{Status: "error", Message: "invalid JSON: " + err.Error()})
			continue
		}

		cmd, err := translate(req, s.mapper)
		if err != nil {
			writeResponse(writer, response{Status: "error", Message: err.Error()})
			continue
		}

		resp := s.execute(cmd)
		writeResponse(writer, render(resp, s.mapper))
	}

	if err := scanner.Err(); err != nil {
		s.log.Warn("tcp: connection read error", "addr", addr, "conn_id", connId, "err", err)
	}
}

func writeResponse(w *bufio.Writer, resp response) {
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	w.Write(data)
	w.WriteByte('\n')
	w.Flush()
}
