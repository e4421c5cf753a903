// Package gateway is a small client for the enforcer's line protocol. Each
// call opens a connection, writes one request line, reads one response line
// and closes the connection.
package gateway

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/rbmk-project/common/errclass"
	"github.com/sony/gobreaker/v2"

	"github.com/telhawk-systems/airhawk/common/macaddr"
	"github.com/telhawk-systems/airhawk/enforcer/pkg/protocol"
)

// DefaultTimeout bounds dial, write and read of a single call.
const DefaultTimeout = 3 * time.Second

var (
	// ErrUnavailable matches every failure to reach the enforcer: refused,
	// timed out, reset, or short-circuited by the breaker.
	ErrUnavailable = errors.New("enforcement unavailable")

	// ErrProtocol reports a response line the client could not interpret.
	ErrProtocol = errors.New("unexpected enforcer response")
)

// UnavailableError carries the cause of an ErrUnavailable outcome.
type UnavailableError struct {
	Op   string
	Addr string
	// Class is the errclass name of the cause, e.g. ECONNREFUSED or ETIMEDOUT.
	Class string
	Err   error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("enforcement unavailable: %s %s: %s (%v)", e.Op, e.Addr, e.Class, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

func (e *UnavailableError) Is(target error) bool { return target == ErrUnavailable }

// BlockResult describes a successful block call.
type BlockResult struct {
	MAC            macaddr.MAC
	AlreadyBlocked bool
	// Total is the blocklist size reported alongside "already blocked".
	Total int
}

// UnblockResult describes a successful unblock call.
type UnblockResult struct {
	MAC     macaddr.MAC
	Removed bool
}

// Client talks to one enforcer address. It is safe for concurrent use.
type Client struct {
	addr    string
	timeout time.Duration
	logger  *slog.Logger
	breaker *gobreaker.CircuitBreaker[string]
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-call dial/read/write timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithBreaker opens a circuit after threshold consecutive unavailable
// outcomes. While open, calls fail fast with ErrUnavailable until cooldown
// has elapsed and a probe succeeds. Validation and protocol errors do not
// count as failures.
func WithBreaker(threshold int, cooldown time.Duration) Option {
	return func(c *Client) {
		if threshold <= 0 {
			return
		}
		c.breaker = gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
			Name:        "enforcer",
			MaxRequests: 1,
			Timeout:     cooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= uint32(threshold)
			},
			IsSuccessful: func(err error) bool {
				return err == nil || !errors.Is(err, ErrUnavailable)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				c.logger.Warn("enforcer circuit breaker state change",
					slog.String("breaker", name),
					slog.String("from", from.String()),
					slog.String("to", to.String()))
			},
		})
	}
}

// New returns a client for the enforcer at addr (host:port).
func New(addr string, opts ...Option) *Client {
	c := &Client{
		addr:    addr,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Addr returns the enforcer address.
func (c *Client) Addr() string { return c.addr }

// Block asks the enforcer to block mac. Invalid input fails locally with a
// *macaddr.FormatError before any connection is made.
func (c *Client) Block(ctx context.Context, mac string) (BlockResult, error) {
	m, err := macaddr.Parse(mac)
	if err != nil {
		return BlockResult{}, err
	}

	resp, err := c.call(ctx, protocol.Request{Verb: protocol.VerbBlock, Arg: m.String()})
	if err != nil {
		return BlockResult{}, err
	}
	switch resp.Kind {
	case protocol.KindBlocked:
		return BlockResult{MAC: m}, nil
	case protocol.KindAlreadyBlocked:
		return BlockResult{MAC: m, AlreadyBlocked: true, Total: resp.Total}, nil
	case protocol.KindInvalid:
		return BlockResult{}, &macaddr.FormatError{Input: resp.Input}
	}
	return BlockResult{}, fmt.Errorf("%w: %s reply to block", ErrProtocol, resp.Kind)
}

// Unblock asks the enforcer to remove mac. A MAC that was not blocked is a
// normal result with Removed false.
func (c *Client) Unblock(ctx context.Context, mac string) (UnblockResult, error) {
	m, err := macaddr.Parse(mac)
	if err != nil {
		return UnblockResult{}, err
	}

	resp, err := c.call(ctx, protocol.Request{Verb: protocol.VerbUnblock, Arg: m.String()})
	if err != nil {
		return UnblockResult{}, err
	}
	switch resp.Kind {
	case protocol.KindRemoved:
		return UnblockResult{MAC: m, Removed: true}, nil
	case protocol.KindNotInBlocklist:
		return UnblockResult{MAC: m}, nil
	case protocol.KindInvalid:
		return UnblockResult{}, &macaddr.FormatError{Input: resp.Input}
	}
	return UnblockResult{}, fmt.Errorf("%w: %s reply to unblock", ErrProtocol, resp.Kind)
}

// Check reports whether mac is on the blocklist.
func (c *Client) Check(ctx context.Context, mac string) (bool, error) {
	m, err := macaddr.Parse(mac)
	if err != nil {
		return false, err
	}

	resp, err := c.call(ctx, protocol.Request{Verb: protocol.VerbCheck, Arg: m.String()})
	if err != nil {
		return false, err
	}
	switch resp.Kind {
	case protocol.KindCheckBlocked:
		return true, nil
	case protocol.KindCheckNotBlocked:
		return false, nil
	case protocol.KindInvalid:
		return false, &macaddr.FormatError{Input: resp.Input}
	}
	return false, fmt.Errorf("%w: %s reply to check", ErrProtocol, resp.Kind)
}

// List returns the blocked MACs in the order the enforcer sent them.
func (c *Client) List(ctx context.Context) ([]macaddr.MAC, error) {
	resp, err := c.call(ctx, protocol.Request{Verb: protocol.VerbList})
	if err != nil {
		return nil, err
	}
	if resp.Kind != protocol.KindList {
		return nil, fmt.Errorf("%w: %s reply to list", ErrProtocol, resp.Kind)
	}

	out := make([]macaddr.MAC, 0, len(resp.MACs))
	for _, raw := range resp.MACs {
		m, err := macaddr.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: list entry %q", ErrProtocol, raw)
		}
		out = append(out, m)
	}
	return out, nil
}

func (c *Client) call(ctx context.Context, req protocol.Request) (protocol.Response, error) {
	var (
		line string
		err  error
	)
	if c.breaker == nil {
		line, err = c.exchange(ctx, req)
	} else {
		line, err = c.breaker.Execute(func() (string, error) {
			return c.exchange(ctx, req)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = &UnavailableError{Op: "breaker", Addr: c.addr, Class: "EBREAKER_OPEN", Err: err}
		}
	}
	if err != nil {
		return protocol.Response{}, err
	}

	resp, err := protocol.ParseResponse(line)
	if err != nil {
		return protocol.Response{}, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	return resp, nil
}

// exchange performs one dial/write/read/close cycle.
func (c *Client) exchange(ctx context.Context, req protocol.Request) (string, error) {
	dialer := net.Dialer{Timeout: c.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return "", c.unavailable("dial", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return "", c.unavailable("deadline", err)
	}

	if _, err := conn.Write([]byte(req.Line() + "\n")); err != nil {
		return "", c.unavailable("write", err)
	}

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return "", c.unavailable("read", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (c *Client) unavailable(op string, err error) error {
	ue := &UnavailableError{Op: op, Addr: c.addr, Class: errclass.New(err), Err: err}
	c.logger.Debug("enforcer call failed",
		slog.String("op", op),
		slog.String("addr", c.addr),
		slog.String("error_class", ue.Class),
		slog.String("error", err.Error()))
	return ue
}
