// Command simulator is a small, single-purpose CLI that connects to a
// running server and emits synthetic Insert/Update/Delete frames at a
// configurable rate, occasionally emitting a deliberately malformed
// frame to exercise the decoder's parse-error counting. One concern,
// one binary, the way a dev-tooling CLI earns its own main package
// instead of growing as a subcommand.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"os"
	"strconv"
	"time"

	"tradingengine/internal/domain"
	"tradingengine/internal/infra"
	"tradingengine/internal/wire"
)

func main() {
	network := flag.String("network", "tcp", `"tcp" or "unix"`)
	addr := flag.String("addr", "127.0.0.1:7878", "address to dial (tcp host:port, or unix socket path)")
	rate := flag.Int("rate", 100, "messages per second")
	malformedEvery := flag.Int("malformed-every", 500, "emit one malformed frame every N messages (0 disables)")
	duration := flag.Duration("duration", 0, "stop after this long (0 runs forever)")
	flag.Parse()

	conn := dialWithBackoff(*network, *addr)
	defer conn.Close()

	interval := time.Second / time.Duration(*rate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var deadline <-chan time.Time
	if *duration > 0 {
		deadline = time.After(*duration)
	}

	rng := rand.New(rand.NewSource(1))
	seq := int64(1000)
	sent := 0

	for {
		select {
		case <-deadline:
			fmt.Fprintf(os.Stderr, "simulator: sent %d messages\n", sent)
			return
		case <-ticker.C:
			var line string
			if *malformedEvery > 0 && sent%*malformedEvery == *malformedEvery-1 {
				line = "OrderBook,Insert,1000,only,three,fields\n"
			} else {
				line = syntheticFrame(rng, seq) + "\n"
			}
			if _, err := conn.Write([]byte(line)); err != nil {
				slog.Error("write failed, reconnecting", slog.Any("error", err))
				conn.Close()
				conn = dialWithBackoff(*network, *addr)
			}
			seq++
			sent++
		}
	}
}

// dialWithBackoff retries with the same exponential backoff policy a
// reconnecting websocket client would use.
func dialWithBackoff(network, addr string) net.Conn {
	retry := 0
	for {
		conn, err := net.Dial(network, addr)
		if err == nil {
			return conn
		}
		delay := infra.CalculateBackoff(retry)
		slog.Warn("dial failed, retrying", slog.Any("error", err), slog.Duration("delay", delay))
		time.Sleep(delay)
		retry++
	}
}

func syntheticFrame(rng *rand.Rand, seq int64) string {
	symbols := []string{"AAPL", "MSFT", "GOOG", "TSLA", "AMZN"}
	symbol := symbols[rng.Intn(len(symbols))]
	key := "ORD" + strconv.FormatInt(seq, 10)

	op := domain.OpInsert.String()
	switch rng.Intn(10) {
	case 0:
		op = domain.OpDelete.String()
	case 1, 2:
		op = domain.OpUpdate.String()
	}

	sendTs := time.Now().UnixMilli()

	if op == domain.OpDelete.String() {
		return fmt.Sprintf("OrderBook,Delete,%d,%s", sendTs, key)
	}

	fields := make([]string, domain.ColumnCount)
	fields[domain.KeyColumn] = key
	fields[domain.SymbolColumn] = symbol
	price := 100 + rng.Float64()*400
	fields[3] = strconv.FormatFloat(price, 'f', 2, 64)
	fields[4] = strconv.Itoa(rng.Intn(1000))
	for i := 5; i < domain.ColumnCount; i++ {
		fields[i] = ""
	}

	msg := &domain.DataMessage{Table: domain.OrderBook, Op: domain.ParseOp(op), SendTsMs: domain.TimestampMs(sendTs)}
	copy(msg.Fields[:], fields)
	return wire.FormatFrame(msg)
}
