// Package transport runs the two server-side listeners described in
// §4.1 and §6: a TCP stream socket, and a local byte-stream endpoint
// (a Unix domain socket standing in for a Windows named pipe) capped at
// a small number of concurrent connections. Both feed decoded frames
// into the same ingest channel.
//
// The connection lifecycle — accept loop, per-connection goroutine,
// context-cancellable shutdown — follows the same shape as a
// reconnecting client run loop, adapted from a client dialer to a
// server acceptor.
package transport

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"tradingengine/internal/domain"
	"tradingengine/internal/ingest"
	"tradingengine/internal/wire"
)

// MaxPipeConnections is the hard cap on concurrent local byte-stream
// endpoint connections (§6).
const MaxPipeConnections = 4

// defaultReadBufferSize is the per-connection read buffer used when New
// is given a non-positive size; configurable via Config.TCPBufferSize in
// internal/config (§6: tcp_buffer_size).
const defaultReadBufferSize = 8 * 1024

// readPollInterval bounds how long handleConn's Read can block before
// it re-checks ctx, so an idle peer never leaves the handler goroutine
// stuck past shutdown (§5).
const readPollInterval = 500 * time.Millisecond

// Server runs the TCP listener and the local byte-stream endpoint
// listener side by side, accepting connections until ctx is cancelled.
type Server struct {
	tcpAddr     string
	pipePath    string
	bufferSize  int
	channel     *ingest.Channel
	connectSema chan struct{} // bounds concurrent pipe connections

	parseErrors atomic.Uint64
	wg          sync.WaitGroup
}

// New creates a Server. pipePath is the filesystem path of the Unix
// domain socket backing the local byte-stream endpoint.
func New(tcpAddr, pipePath string, bufferSize int, channel *ingest.Channel) *Server {
	if bufferSize <= 0 {
		bufferSize = defaultReadBufferSize
	}
	return &Server{
		tcpAddr:     tcpAddr,
		pipePath:    pipePath,
		bufferSize:  bufferSize,
		channel:     channel,
		connectSema: make(chan struct{}, MaxPipeConnections),
	}
}

// Run starts both listeners and blocks until ctx is cancelled or a
// listener fails to bind.
func (s *Server) Run(ctx context.Context) error {
	tcpLn, err := net.Listen("tcp", s.tcpAddr)
	if err != nil {
		return err
	}
	defer tcpLn.Close()

	os.Remove(s.pipePath) // a stale socket file from a previous run must not block binding
	pipeLn, err := net.Listen("unix", s.pipePath)
	if err != nil {
		return err
	}
	defer pipeLn.Close()

	s.wg.Add(2)
	go s.acceptLoop(ctx, tcpLn, "tcp", nil)
	go s.acceptLoop(ctx, pipeLn, "pipe", s.connectSema)

	<-ctx.Done()
	tcpLn.Close()
	pipeLn.Close()
	s.wg.Wait()
	return nil
}

// acceptLoop accepts connections on ln until ctx is cancelled. If sema
// is non-nil, it bounds concurrent handled connections (used for the
// pipe listener's MaxPipeConnections cap); a connection arriving while
// the cap is full is closed immediately rather than queued, since a
// stalled reader on a capped pipe endpoint should not accumulate
// pending sockets.
func (s *Server) acceptLoop(ctx context.Context, ln net.Listener, label string, sema chan struct{}) {
	defer s.wg.Done()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			slog.Warn("accept failed", slog.String("listener", label), slog.Any("error", err))
			continue
		}

		if sema != nil {
			select {
			case sema <- struct{}{}:
			default:
				slog.Warn("connection rejected: at capacity", slog.String("listener", label), slog.Int("max", MaxPipeConnections))
				conn.Close()
				continue
			}
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if sema != nil {
				defer func() { <-sema }()
			}
			s.handleConn(ctx, conn, label)
		}()
	}
}

// handleConn reads frames from conn, decodes them with a private
// wire.Decoder, and forwards each message to the ingest channel until
// the connection closes or ctx is cancelled. Read deadlines are set in
// readPollInterval slices rather than once at the start, so a peer that
// never sends anything still lets this goroutine notice ctx.Done()
// instead of blocking in Read forever (§5: "in-flight connections
// complete their current frame then exit").
func (s *Server) handleConn(ctx context.Context, conn net.Conn, label string) {
	defer conn.Close()

	dec := wire.NewDecoder()
	reader := bufio.NewReaderSize(conn, s.bufferSize)
	buf := make([]byte, s.bufferSize)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn.SetReadDeadline(time.Now().Add(readPollInterval))
		n, err := reader.Read(buf)
		if n > 0 {
			before := dec.ParseErrors()
			for _, m := range dec.Feed(buf[:n]) {
				m.ReceiveTsMs = domain.TimestampMs(time.Now().UnixMilli())
				if sendErr := s.channel.Send(ctx, m); sendErr != nil {
					return
				}
			}
			if delta := dec.ParseErrors() - before; delta > 0 {
				s.parseErrors.Add(delta)
			}
		}
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			return
		}
	}
}

// ParseErrors returns the cumulative count of malformed frames
// discarded across every connection this server has handled (§4.1, §7
// ParseError), used by the audit sink to annotate each batch summary.
func (s *Server) ParseErrors() uint64 {
	return s.parseErrors.Load()
}
