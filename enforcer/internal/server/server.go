// Package server exposes the blocklist over the enforcer's TCP line protocol.
package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/telhawk-systems/airhawk/common/logging"
	"github.com/telhawk-systems/airhawk/common/macaddr"
	"github.com/telhawk-systems/airhawk/common/messaging"
	"github.com/telhawk-systems/airhawk/enforcer/internal/blockstore"
	"github.com/telhawk-systems/airhawk/enforcer/internal/metrics"
	"github.com/telhawk-systems/airhawk/enforcer/pkg/protocol"
)

const (
	DefaultAddr            = "127.0.0.1:9000"
	DefaultIdleTimeout     = 30 * time.Second
	DefaultMaxLineBytes    = 1024
	defaultShutdownTimeout = 10 * time.Second
)

// ChangeEvent is published after every blocklist mutation.
type ChangeEvent struct {
	Action string    `json:"action"` // "block" or "unblock"
	MAC    string    `json:"mac"`
	Total  int       `json:"total"`
	At     time.Time `json:"at"`
}

// ChangePublisher receives ChangeEvents. The NATS client satisfies it.
type ChangePublisher interface {
	PublishJSON(ctx context.Context, subject string, v any) error
}

// Server owns the blocklist. All reads and writes of the store go through mu:
// block and unblock hold the write lock across the mutation and its snapshot
// save, list and check share the read lock.
type Server struct {
	mu    sync.RWMutex
	store *blockstore.Store

	logger      *slog.Logger
	idleTimeout time.Duration
	maxLine     int
	publisher   ChangePublisher

	connMu   sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup
	closing  atomic.Bool
	done     chan struct{}
}

// Option configures a Server.
type Option func(*Server)

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithIdleTimeout bounds how long a connection may sit without sending a line.
func WithIdleTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.idleTimeout = d
		}
	}
}

// WithMaxLineBytes caps the length of a request line.
func WithMaxLineBytes(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxLine = n
		}
	}
}

// WithPublisher enables blocklist change events.
func WithPublisher(p ChangePublisher) Option {
	return func(s *Server) { s.publisher = p }
}

// New wraps an already loaded store.
func New(store *blockstore.Store, opts ...Option) *Server {
	s := &Server{
		store:       store,
		logger:      slog.Default(),
		idleTimeout: DefaultIdleTimeout,
		maxLine:     DefaultMaxLineBytes,
		conns:       make(map[net.Conn]struct{}),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	metrics.BlockedMACs.Set(float64(store.Len()))
	return s
}

// ListenAndServe listens on addr and serves until ctx is cancelled or
// Shutdown is called.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln, one goroutine each. Cancelling ctx starts
// a graceful shutdown; Serve returns once it has finished.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.connMu.Lock()
	if s.closing.Load() {
		s.connMu.Unlock()
		ln.Close()
		return nil
	}
	s.listener = ln
	s.connMu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		sctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		_ = s.Shutdown(sctx)
	})
	defer stop()

	s.logger.Info("enforcer listening", slog.String("addr", ln.Addr().String()),
		slog.String("snapshot", s.store.Path()), logging.Total(s.Len()))

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.closing.Load() {
				<-s.done
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			s.logger.Error("accept failed, shutting down", logging.Error(err))
			sctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
			_ = s.Shutdown(sctx)
			cancel()
			return fmt.Errorf("accept: %w", err)
		}

		s.connMu.Lock()
		if s.closing.Load() {
			s.connMu.Unlock()
			conn.Close()
			continue
		}
		s.conns[conn] = struct{}{}
		s.wg.Add(1)
		s.connMu.Unlock()

		metrics.ConnectionsTotal.Inc()
		go s.handleConn(conn)
	}
}

// Addr returns the listening address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown stops accepting, wakes idle connections, waits for in-flight
// requests (bounded by ctx), then writes a final snapshot. Connections still
// open when ctx expires are closed forcibly.
func (s *Server) Shutdown(ctx context.Context) error {
	if !s.closing.CompareAndSwap(false, true) {
		select {
		case <-s.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	defer close(s.done)

	s.connMu.Lock()
	if s.listener != nil {
		s.listener.Close()
	}
	now := time.Now()
	for c := range s.conns {
		_ = c.SetReadDeadline(now)
	}
	s.connMu.Unlock()

	idle := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(idle)
	}()

	var err error
	select {
	case <-idle:
	case <-ctx.Done():
		err = ctx.Err()
		s.connMu.Lock()
		for c := range s.conns {
			c.Close()
		}
		s.connMu.Unlock()
	}

	s.mu.Lock()
	total := s.store.Len()
	if serr := s.store.Save(); serr != nil {
		metrics.SnapshotErrors.Inc()
		s.logger.Error("final snapshot save failed", logging.Error(serr), logging.ErrorClass(logging.ClassPersistence))
		if err == nil {
			err = serr
		}
	}
	s.mu.Unlock()

	s.logger.Info(fmt.Sprintf("Final stats: %d MACs blocked", total), logging.Total(total))
	return err
}

// Len returns the current blocklist size.
func (s *Server) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.Len()
}

// Execute runs one request line and returns the response without the
// trailing newline. Every failure is reported in the response text.
func (s *Server) Execute(ctx context.Context, line string) string {
	req := protocol.ParseRequest(line)
	start := time.Now()
	resp, outcome := s.execute(ctx, req)
	verb := string(req.Verb)
	metrics.RequestsTotal.WithLabelValues(verb, outcome.String()).Inc()
	metrics.RequestDuration.WithLabelValues(verb).Observe(time.Since(start).Seconds())
	return resp
}

func (s *Server) execute(ctx context.Context, req protocol.Request) (string, protocol.Kind) {
	if req.Verb == protocol.VerbList {
		s.mu.RLock()
		macs := s.store.List()
		s.mu.RUnlock()

		out := make([]string, len(macs))
		for i, m := range macs {
			out[i] = m.String()
		}
		s.logger.Debug("sent blocklist", logging.Command(string(req.Verb)), logging.Total(len(out)))
		return protocol.FormatList(out), protocol.KindList
	}

	mac, err := macaddr.Parse(req.Arg)
	if err != nil {
		s.logger.Warn("rejected request", logging.Command(string(req.Verb)),
			logging.Error(err), logging.ErrorClass(logging.ClassValidation))
		return protocol.FormatInvalid(req.Arg), protocol.KindInvalid
	}

	switch req.Verb {
	case protocol.VerbUnblock:
		return s.unblock(ctx, mac)
	case protocol.VerbCheck:
		s.mu.RLock()
		blocked := s.store.Contains(mac)
		s.mu.RUnlock()
		if blocked {
			return protocol.FormatCheck(mac.String(), true), protocol.KindCheckBlocked
		}
		return protocol.FormatCheck(mac.String(), false), protocol.KindCheckNotBlocked
	default:
		return s.block(ctx, mac)
	}
}

func (s *Server) block(ctx context.Context, mac macaddr.MAC) (string, protocol.Kind) {
	s.mu.Lock()
	added, total, err := s.store.Add(mac)
	s.mu.Unlock()

	if err != nil {
		s.persistenceFailed(mac, err)
	}
	if !added {
		s.logger.Info("MAC already blocked", logging.MAC(mac.String()), logging.Total(total))
		return protocol.FormatAlreadyBlocked(mac.String(), total), protocol.KindAlreadyBlocked
	}

	metrics.BlockedMACs.Set(float64(total))
	s.logger.Info("blocked MAC", logging.MAC(mac.String()), logging.Total(total))
	s.publish(ctx, "block", mac, total)
	return protocol.FormatBlocked(mac.String()), protocol.KindBlocked
}

func (s *Server) unblock(ctx context.Context, mac macaddr.MAC) (string, protocol.Kind) {
	s.mu.Lock()
	removed, err := s.store.Remove(mac)
	total := s.store.Len()
	s.mu.Unlock()

	if err != nil {
		s.persistenceFailed(mac, err)
	}
	if !removed {
		s.logger.Info("MAC not in blocklist", logging.MAC(mac.String()))
		return protocol.FormatNotInBlocklist(mac.String()), protocol.KindNotInBlocklist
	}

	metrics.BlockedMACs.Set(float64(total))
	s.logger.Info("removed MAC from blocklist", logging.MAC(mac.String()), logging.Total(total))
	s.publish(ctx, "unblock", mac, total)
	return protocol.FormatRemoved(mac.String()), protocol.KindRemoved
}

func (s *Server) persistenceFailed(mac macaddr.MAC, err error) {
	metrics.SnapshotErrors.Inc()
	s.logger.Error("blocklist snapshot not saved; in-memory change kept",
		logging.MAC(mac.String()), logging.Error(err), logging.ErrorClass(logging.ClassPersistence))
}

func (s *Server) publish(ctx context.Context, action string, mac macaddr.MAC, total int) {
	if s.publisher == nil {
		return
	}
	ev := ChangeEvent{Action: action, MAC: mac.String(), Total: total, At: time.Now().UTC()}
	if err := s.publisher.PublishJSON(ctx, messaging.SubjectBlocklistChanged, ev); err != nil {
		metrics.ChangeEventErrors.Inc()
		s.logger.Warn("blocklist change event not published", logging.MAC(ev.MAC), logging.Error(err))
	}
}

// armDeadline sets the idle read deadline unless shutdown has begun. It runs
// under connMu so Shutdown's wake-up deadline cannot be overwritten.
func (s *Server) armDeadline(conn net.Conn) bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.closing.Load() {
		return false
	}
	_ = conn.SetReadDeadline(time.Now().Add(s.idleTimeout))
	return true
}

func (s *Server) handleConn(conn net.Conn) {
	peer := conn.RemoteAddr().String()
	metrics.ActiveConnections.Inc()
	defer func() {
		conn.Close()
		s.connMu.Lock()
		delete(s.conns, conn)
		s.connMu.Unlock()
		metrics.ActiveConnections.Dec()
		s.wg.Done()
		s.logger.Debug("client disconnected", logging.RemoteAddr(peer))
	}()
	s.logger.Debug("client connected", logging.RemoteAddr(peer))

	ctx := context.Background()
	reader := bufio.NewReaderSize(conn, s.maxLine)

	for {
		if !s.armDeadline(conn) {
			return
		}
		line, tooLong, err := readLine(reader)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) && !isTimeout(err) {
				s.logger.Debug("connection read failed", logging.RemoteAddr(peer), logging.Error(err))
			}
			return
		}

		var resp string
		if tooLong {
			s.logger.Warn("request line too long", logging.RemoteAddr(peer), slog.Int("limit", s.maxLine),
				logging.ErrorClass(logging.ClassValidation))
			metrics.RequestsTotal.WithLabelValues("OVERSIZE", protocol.KindInvalid.String()).Inc()
			resp = protocol.FormatInvalid(line)
		} else {
			if strings.TrimSpace(line) == "" {
				continue
			}
			resp = s.Execute(ctx, line)
		}

		_ = conn.SetWriteDeadline(time.Now().Add(s.idleTimeout))
		if _, err := io.WriteString(conn, resp+"\n"); err != nil {
			s.logger.Debug("failed to send response", logging.RemoteAddr(peer), logging.Error(err))
			return
		}
	}
}

// readLine returns the next line without its terminator. Lines longer than the
// reader's buffer are consumed to the newline; the first buffer-full is
// returned with tooLong set so the stream stays in step with the client.
func readLine(r *bufio.Reader) (line string, tooLong bool, err error) {
	chunk, isPrefix, err := r.ReadLine()
	if err != nil {
		return "", false, err
	}
	line = string(chunk)
	for isPrefix {
		tooLong = true
		if _, isPrefix, err = r.ReadLine(); err != nil {
			return "", false, err
		}
	}
	return line, tooLong, nil
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
