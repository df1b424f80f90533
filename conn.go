package respwire

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/raniellyferreira/respwire/protocol"
)

// Conn is a single Redis connection. Commands on one Conn are serialized:
// Do, DoLease and Pipeline may be called from several goroutines, but each
// waits for the previous round trip to finish. Send and Receive are the raw
// halves and must not be mixed with concurrent Do calls.
//
// A Conn becomes unusable after any transport or protocol failure.
type Conn struct {
	cfg     *config
	addr    string
	netConn net.Conn

	mu     sync.Mutex
	writer *protocol.CommandWriter
	source *protocol.StreamSource
	closed atomic.Bool

	stats connStats
}

// ConnStats is a snapshot of connection counters
type ConnStats struct {
	Commands int64
	BytesIn  int64
	BytesOut int64
	Frames   int64
	Errors   int64
}

type connStats struct {
	commands atomic.Int64
	bytesIn  atomic.Int64
	bytesOut atomic.Int64
	frames   atomic.Int64
	errors   atomic.Int64
}

// Dial connects to the Redis server at addr
func Dial(ctx context.Context, addr string, opts ...Option) (*Conn, error) {
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}

	dialer := net.Dialer{Timeout: cfg.connectTimeout}
	nc, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		cfg.metrics.RecordError(ErrorTypeConnection)
		return nil, &ConnectionError{Addr: addr, Op: "dial", Err: err}
	}

	c, err := newConn(nc, addr, cfg)
	if err != nil {
		nc.Close()
		return nil, err
	}
	cfg.logger.Debug("connected", Field{Key: "addr", Value: addr})

	if cfg.clientName != "" {
		if _, err := c.Do(ctx, "CLIENT", "SETNAME", cfg.clientName); err != nil {
			c.Close()
			return nil, err
		}
	}
	return c, nil
}

// NewConn wraps an established connection
func NewConn(nc net.Conn, opts ...Option) (*Conn, error) {
	if nc == nil {
		return nil, ErrInvalidConfig
	}
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}
	addr := ""
	if ra := nc.RemoteAddr(); ra != nil {
		addr = ra.String()
	}
	return newConn(nc, addr, cfg)
}

func newConn(nc net.Conn, addr string, cfg *config) (*Conn, error) {
	writer, err := protocol.NewCommandWriter(cfg.preambleReservation, cfg.commandBlockSize)
	if err != nil {
		return nil, err
	}
	source, err := protocol.NewStreamSource(nc,
		protocol.WithSourceBlockSize(cfg.blockSize),
		protocol.WithSourceMaxBuffer(cfg.maxBufferLength),
	)
	if err != nil {
		writer.Close()
		return nil, err
	}
	return &Conn{
		cfg:     cfg,
		addr:    addr,
		netConn: nc,
		writer:  writer,
		source:  source,
	}, nil
}

// Addr returns the remote address
func (c *Conn) Addr() string {
	return c.addr
}

// Encode serializes a command into a RequestBuffer without sending it.
// The caller owns the buffer and must pass it to Send or Recycle it.
func (c *Conn) Encode(name string, args ...string) (protocol.RequestBuffer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.encode(name, args)
}

func (c *Conn) encode(name string, args []string) (protocol.RequestBuffer, error) {
	if c.closed.Load() {
		return protocol.RequestBuffer{}, ErrClosed
	}
	if name == "" {
		return protocol.RequestBuffer{}, ErrInvalidCommand
	}
	if err := c.writer.WriteCommandString(name, len(args)); err != nil {
		_ = c.writer.Reset()
		return protocol.RequestBuffer{}, err
	}
	for _, arg := range args {
		if err := c.writer.WriteString(arg); err != nil {
			_ = c.writer.Reset()
			return protocol.RequestBuffer{}, err
		}
	}
	return c.writer.Detach()
}

// Send writes req to the connection and recycles it
func (c *Conn) Send(ctx context.Context, req protocol.RequestBuffer) error {
	defer req.Recycle()

	if c.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	deadline := time.Time{}
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	} else if c.cfg.writeTimeout > 0 {
		deadline = time.Now().Add(c.cfg.writeTimeout)
	}
	if err := c.netConn.SetWriteDeadline(deadline); err != nil {
		return c.fail("write", err)
	}

	n, err := req.WriteTo(c.netConn)
	c.stats.bytesOut.Add(n)
	c.cfg.metrics.RecordNetworkBytes("out", n)
	if err != nil {
		return c.fail("write", err)
	}
	return nil
}

// Receive reads the next complete reply. The caller owns the returned
// Lease and must release it.
func (c *Conn) Receive(ctx context.Context) (protocol.Lease, error) {
	if c.closed.Load() {
		return protocol.Lease{}, ErrClosed
	}

	deadline := time.Time{}
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	} else if c.cfg.readTimeout > 0 {
		deadline = time.Now().Add(c.cfg.readTimeout)
	}
	if err := c.netConn.SetReadDeadline(deadline); err != nil {
		return protocol.Lease{}, c.fail("read", err)
	}

	lease, err := c.source.ReadNext(ctx)
	if err != nil {
		return protocol.Lease{}, c.fail("read", err)
	}

	n := lease.Len()
	c.stats.frames.Add(1)
	c.stats.bytesIn.Add(n)
	c.cfg.metrics.RecordFrame(n)
	c.cfg.metrics.RecordNetworkBytes("in", n)
	return lease, nil
}

// DoLease sends one command and returns its raw reply. Error replies are
// returned as leases like any other value.
func (c *Conn) DoLease(ctx context.Context, name string, args ...string) (protocol.Lease, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	req, err := c.encode(name, args)
	if errors.Is(err, ErrClosed) {
		return protocol.Lease{}, err
	}
	if err != nil {
		c.recordError(err)
		return protocol.Lease{}, err
	}
	if err := c.Send(ctx, req); err != nil {
		return protocol.Lease{}, err
	}
	lease, err := c.Receive(ctx)
	if err != nil {
		return protocol.Lease{}, err
	}

	c.stats.commands.Add(1)
	c.cfg.metrics.RecordCommand(name, time.Since(start))
	return lease, nil
}

// Do sends one command and returns its decoded reply. Error replies are
// returned as a *ReplyError together with the reply value.
func (c *Conn) Do(ctx context.Context, name string, args ...string) (protocol.Value, error) {
	lease, err := c.DoLease(ctx, name, args...)
	if err != nil {
		return protocol.Value{}, err
	}
	v, err := protocol.ParseValue(lease)
	lease.Release()
	if err != nil {
		return protocol.Value{}, c.fail("read", err)
	}
	if v.IsError() {
		c.stats.errors.Add(1)
		c.cfg.metrics.RecordError(ErrorTypeReply)
		return v, &ReplyError{Message: v.Error()}
	}
	return v, nil
}

// Pipeline sends every command before reading any reply, then returns the
// replies in order. Error replies are returned as values; the error result
// reports transport and protocol failures only.
func (c *Conn) Pipeline(ctx context.Context, cmds [][]string) ([]protocol.Value, error) {
	if len(cmds) == 0 {
		return nil, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return nil, ErrClosed
	}
	for _, cmd := range cmds {
		if len(cmd) == 0 {
			return nil, ErrInvalidCommand
		}
	}

	start := time.Now()
	for _, cmd := range cmds {
		req, err := c.encode(cmd[0], cmd[1:])
		if err != nil {
			c.recordError(err)
			return nil, err
		}
		if err := c.Send(ctx, req); err != nil {
			return nil, err
		}
	}

	values := make([]protocol.Value, 0, len(cmds))
	for range cmds {
		lease, err := c.Receive(ctx)
		if err != nil {
			return values, err
		}
		v, err := protocol.ParseValue(lease)
		lease.Release()
		if err != nil {
			return values, c.fail("read", err)
		}
		values = append(values, v)
	}

	elapsed := time.Since(start)
	c.stats.commands.Add(int64(len(cmds)))
	for _, cmd := range cmds {
		c.cfg.metrics.RecordCommand(cmd[0], elapsed)
	}
	return values, nil
}

// Stats returns a snapshot of the connection counters
func (c *Conn) Stats() ConnStats {
	return ConnStats{
		Commands: c.stats.commands.Load(),
		BytesIn:  c.stats.bytesIn.Load(),
		BytesOut: c.stats.bytesOut.Load(),
		Frames:   c.stats.frames.Load(),
		Errors:   c.stats.errors.Load(),
	}
}

// Close closes the connection and releases its buffers
func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	// unblock any in-flight round trip before taking the lock
	err := c.netConn.Close()

	c.mu.Lock()
	c.writer.Close()
	_ = c.source.Close()
	c.mu.Unlock()

	c.cfg.logger.Debug("connection closed", Field{Key: "addr", Value: c.addr})
	return err
}

// fail classifies err, records it and wraps it for the caller
func (c *Conn) fail(op string, err error) error {
	c.recordError(err)

	switch {
	case errors.Is(err, io.EOF):
		err = &ConnectionError{Addr: c.addr, Op: op, Err: io.EOF}
	case errors.Is(err, protocol.ErrProtocolViolation):
		c.cfg.logger.Error("protocol violation", Field{Key: "addr", Value: c.addr}, Field{Key: "error", Value: err})
	case isTimeout(err):
		err = &ConnectionError{Addr: c.addr, Op: op, Err: errors.Join(ErrTimeout, err)}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
	case errors.Is(err, protocol.ErrUsageViolation), errors.Is(err, protocol.ErrSourceBroken):
	default:
		c.cfg.logger.Error("connection failed", Field{Key: "addr", Value: c.addr}, Field{Key: "op", Value: op}, Field{Key: "error", Value: err})
		err = &ConnectionError{Addr: c.addr, Op: op, Err: err}
	}
	return err
}

func (c *Conn) recordError(err error) {
	c.stats.errors.Add(1)
	c.cfg.metrics.RecordError(errorType(err))
}

func errorType(err error) string {
	switch {
	case errors.Is(err, protocol.ErrProtocolViolation):
		return ErrorTypeProtocol
	case errors.Is(err, protocol.ErrUsageViolation), errors.Is(err, ErrInvalidCommand):
		return ErrorTypeUsage
	case isTimeout(err), errors.Is(err, context.DeadlineExceeded):
		return ErrorTypeTimeout
	default:
		return ErrorTypeConnection
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
