// Command simulate is a load-generating client for a running
// contracts-engine TCP listener, ported from the Python prototype's
// simulation.py: a market maker quoting both sides around a random-walk
// fair price, a liquidity taker crossing the spread at random intervals,
// and a ticker tape rendering the book. Where the prototype runs these as
// asyncio coroutines sharing one event loop, here each bot is its own
// goroutine with its own TCP connection — closer to how real participants
// would actually connect.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net"
	"time"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:9009", "contracts-engine TCP address")
	subject := flag.String("subject", "alice", "market subject id")
	threshold := flag.Int64("threshold", 60, "market threshold")
	flag.Parse()

	marketId := map[string]any{"subject_id": *subject, "threshold": *threshold}

	fmt.Println("[*] Starting contract market simulation...")
	fmt.Println("[*] Ensure the contracts-engine server is running.")
	time.Sleep(time.Second)

	done := make(chan struct{})
	go runMarketMaker("Jane", *addr, marketId, done)
	go runLiquidityTaker("RoaringKitty", *addr, marketId, done)
	go runTickerTape(*addr, marketId, *subject, *threshold, done)

	<-done
}

// conn wraps a TCP connection with line-delimited JSON send/receive, the
// Go equivalent of simulation.py's send_json/read_json helpers.
type conn struct {
	c net.Conn
	r *bufio.Reader
}

func dial(addr string) (*conn, error) {
	c, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &conn{c: c, r: bufio.NewReader(c)}, nil
}

func (cn *conn) send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = cn.c.Write(data)
	return err
}

func (cn *conn) recv() (map[string]any, error) {
	line, err := cn.r.ReadBytes('\n')
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(line, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// runMarketMaker is the House liquidity provider: it bets on mean
// reversion and profits off the bid/ask spread it quotes around a fair
// price that random-walks between 10 and 90 cents.
func runMarketMaker(name, addr string, marketId map[string]any, done chan struct{}) {
	cn, err := dial(addr)
	if err != nil {
		log.Printf("[!] [%s] could not connect: %v", name, err)
		close(done)
		return
	}
	defer cn.c.Close()
	fmt.Printf("[+] [%s] connected as market maker\n", name)

	fairPrice := 50
	volatility := 2
	rng := rand.New(rand.NewSource(1))

	for {
		switch rng.Intn(5) {
		case 0:
			fairPrice--
		case 4:
			fairPrice++
		}
		fairPrice = clamp(fairPrice, 10, 90)

		bid := clamp(fairPrice-volatility, 1, 99)
		ask := clamp(fairPrice+volatility, 1, 99)

		if err := quote(cn, marketId, "buy", bid, 5, "house-mm"); err != nil {
			log.Printf("[!] [%s] crash: %v", name, err)
			return
		}
		if err := quote(cn, marketId, "sell", ask, 5, "house-mm"); err != nil {
			log.Printf("[!] [%s] crash: %v", name, err)
			return
		}

		time.Sleep(500 * time.Millisecond)
	}
}

func quote(cn *conn, marketId map[string]any, side string, cents, qty int, userId string) error {
	if err := cn.send(map[string]any{
		"type":      "place_order",
		"market_id": marketId,
		"side":      side,
		"price":     cents,
		"qty":       qty,
		"user_id":   userId,
		"id":        rand.Int31(),
	}); err != nil {
		return err
	}
	_, err := cn.recv()
	return err
}

// runLiquidityTaker removes resting liquidity at random intervals, always
// crossing the spread: it bids the max and offers the min so its orders
// always fill against whatever the market maker is quoting.
func runLiquidityTaker(name, addr string, marketId map[string]any, done chan struct{}) {
	cn, err := dial(addr)
	if err != nil {
		return
	}
	defer cn.c.Close()
	fmt.Printf("[+] [%s] connected as liquidity taker\n", name)

	for {
		time.Sleep(time.Duration(1000+rand.Intn(2000)) * time.Millisecond)

		side := "buy"
		price := 100
		if rand.Intn(2) == 0 {
			side = "sell"
			price = 1
		}
		qty := 1 + rand.Intn(3)

		if err := quote(cn, marketId, side, price, qty, "gambler-777"); err != nil {
			log.Printf("[!] [%s] crash: %v", name, err)
			return
		}
	}
}

// runTickerTape polls the book and renders a simple top-of-book view,
// the Go equivalent of simulation.py's ticker_tape.
func runTickerTape(addr string, marketId map[string]any, subject string, threshold int64, done chan struct{}) {
	cn, err := dial(addr)
	if err != nil {
		fmt.Println("[!] ticker could not connect.")
		close(done)
		return
	}
	defer cn.c.Close()

	for {
		if err := cn.send(map[string]any{"type": "get_snapshot", "market_id": marketId}); err != nil {
			break
		}
		resp, err := cn.recv()
		if err != nil {
			break
		}

		bids, _ := resp["bids"].([]any)
		asks, _ := resp["asks"].([]any)

		fmt.Print("\033[H\033[J")
		fmt.Println("=== CONTRACTS ENGINE LOB ===")
		fmt.Printf("Market: %s > %d\n", subject, threshold)
		fmt.Printf("Spread: %s\n", spread(bids, asks))
		fmt.Println("------------------------------------------")
		fmt.Printf("%-10s | %-12s | %10s\n", "BID QTY", "PRICE", "ASK QTY")
		fmt.Println("------------------------------------------")

		for i := 0; i < 10; i++ {
			bidStr, askStr := "", ""
			if i < len(bids) {
				lvl := bids[i].(map[string]any)
				bidStr = fmt.Sprintf("%v @ %v", lvl["qty"], lvl["price"])
			}
			if i < len(asks) {
				lvl := asks[i].(map[string]any)
				askStr = fmt.Sprintf("%v @ %v", lvl["price"], lvl["qty"])
			}
			fmt.Printf("%-20s | %20s\n", bidStr, askStr)
		}
		fmt.Println("------------------------------------------")

		time.Sleep(200 * time.Millisecond)
	}
	fmt.Println("[!] server connection lost, stopping ticker.")
	close(done)
}

func spread(bids, asks []any) string {
	if len(bids) == 0 || len(asks) == 0 {
		return "inf"
	}
	bidCents, _ := bids[0].(map[string]any)["price"].(float64)
	askCents, _ := asks[0].(map[string]any)["price"].(float64)
	return fmt.Sprintf("%d¢-%d¢", int(bidCents), int(askCents))
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

