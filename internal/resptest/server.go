// Package resptest provides an in-process RESP server for tests and
// examples. Requests are framed with protocol.StreamSource and replies are
// written with protocol.ValueWriter, so the server exercises the same
// transport core as the client.
package resptest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/raniellyferreira/respwire/lua"
	"github.com/raniellyferreira/respwire/protocol"
)

// Server is a minimal Redis-compatible server backed by a Store
type Server struct {
	store *Store
	lua   *lua.Engine
	addr  string

	// Connection management
	listener net.Listener
	clients  sync.Map // map[net.Conn]*client

	// Control
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Metrics
	connCount    atomic.Int64
	commandCount atomic.Int64
	errorCount   atomic.Int64
}

// client represents one connected client
type client struct {
	conn   net.Conn
	source *protocol.StreamSource
	writer *protocol.ValueWriter
	server *Server
	name   string

	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer creates a server that will listen on addr; use
// "127.0.0.1:0" for an ephemeral port
func NewServer(addr string) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		store:  NewStore(defaultShards),
		addr:   addr,
		ctx:    ctx,
		cancel: cancel,
	}
	s.lua = lua.NewEngine(localExecutor{server: s})
	return s
}

// Start starts accepting connections
func (s *Server) Start() error {
	var err error
	s.listener, err = net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	s.wg.Add(1)
	go s.acceptConnections()

	return nil
}

// Stop closes the listener and every client connection
func (s *Server) Stop() error {
	s.cancel()

	if s.listener != nil {
		s.listener.Close()
	}

	s.clients.Range(func(key, value interface{}) bool {
		if c, ok := value.(*client); ok {
			c.close()
		}
		return true
	})

	s.wg.Wait()
	return nil
}

// Addr returns the server's listening address
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Store returns the server's keyspace
func (s *Server) Store() *Store {
	return s.store
}

// Stats returns server statistics
func (s *Server) Stats() map[string]int64 {
	clientCount := int64(0)
	s.clients.Range(func(key, value interface{}) bool {
		clientCount++
		return true
	})

	return map[string]int64{
		"connected_clients": clientCount,
		"total_commands":    s.commandCount.Load(),
		"total_errors":      s.errorCount.Load(),
		"total_connections": s.connCount.Load(),
	}
}

// acceptConnections accepts new client connections
func (s *Server) acceptConnections() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil {
				return // Server is shutting down
			}
			continue
		}

		s.handleNewClient(conn)
	}
}

// handleNewClient registers a connection and starts its goroutine
func (s *Server) handleNewClient(conn net.Conn) {
	s.connCount.Add(1)

	source, err := protocol.NewStreamSource(conn, protocol.WithSourceBlockSize(4096))
	if err != nil {
		conn.Close()
		return
	}

	ctx, cancel := context.WithCancel(s.ctx)
	c := &client{
		conn:   conn,
		source: source,
		writer: protocol.NewValueWriter(conn),
		server: s,
		ctx:    ctx,
		cancel: cancel,
	}
	s.clients.Store(conn, c)

	s.wg.Add(1)
	go c.handle()
}

func (c *client) close() {
	c.cancel()
	c.conn.Close()
	c.server.clients.Delete(c.conn)
}

// handle frames requests until the client disconnects
func (c *client) handle() {
	defer c.server.wg.Done()
	defer c.close()
	defer c.source.Close()

	for {
		lease, err := c.source.ReadNext(c.ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || c.ctx.Err() != nil {
				return
			}
			if errors.Is(err, protocol.ErrProtocolViolation) {
				c.server.errorCount.Add(1)
				c.writer.WriteError(fmt.Sprintf("ERR Protocol error: %v", err))
				c.writer.Flush()
			}
			return
		}

		value, err := protocol.ParseValue(lease)
		lease.Release()
		if err != nil {
			c.writer.WriteError(fmt.Sprintf("ERR Protocol error: %v", err))
			c.writer.Flush()
			return
		}

		cmd, err := protocol.ParseCommand(value)
		if err != nil {
			c.server.errorCount.Add(1)
			c.writer.WriteError(fmt.Sprintf("ERR Protocol error: %v", err))
		} else if cmd.Name == "CLIENT" && len(cmd.Args) == 2 && strings.EqualFold(string(cmd.Args[0]), "SETNAME") {
			c.name = string(cmd.Args[1])
			c.writer.WriteOK()
		} else if quit := c.server.execute(c.ctx, cmd, c.writer); quit {
			c.writer.Flush()
			return
		}

		// flush once the pipeline has been drained
		if c.source.Buffered() == 0 {
			if err := c.writer.Flush(); err != nil {
				return
			}
		}
	}
}

// execute runs one command and writes its reply. It reports whether the
// connection should be closed.
func (s *Server) execute(ctx context.Context, cmd *protocol.Command, w *protocol.ValueWriter) bool {
	s.commandCount.Add(1)

	switch cmd.Name {
	case "PING":
		switch len(cmd.Args) {
		case 0:
			w.WritePONG()
		case 1:
			w.WriteBulkString(cmd.Args[0])
		default:
			s.wrongArgs(w, "ping")
		}
	case "ECHO":
		if len(cmd.Args) != 1 {
			s.wrongArgs(w, "echo")
			return false
		}
		w.WriteBulkString(cmd.Args[0])
	case "GET":
		if len(cmd.Args) != 1 {
			s.wrongArgs(w, "get")
			return false
		}
		if value, ok := s.store.Get(string(cmd.Args[0])); ok {
			w.WriteBulkString(value)
		} else {
			w.WriteNullBulkString()
		}
	case "SET":
		if len(cmd.Args) < 2 {
			s.wrongArgs(w, "set")
			return false
		}
		s.store.Set(string(cmd.Args[0]), cmd.Args[1])
		w.WriteOK()
	case "DEL":
		if len(cmd.Args) == 0 {
			s.wrongArgs(w, "del")
			return false
		}
		w.WriteInteger(s.store.Del(stringArgs(cmd.Args)...))
	case "EXISTS":
		if len(cmd.Args) == 0 {
			s.wrongArgs(w, "exists")
			return false
		}
		w.WriteInteger(s.store.Exists(stringArgs(cmd.Args)...))
	case "INCR", "INCRBY":
		s.handleIncr(cmd, w)
	case "SELECT":
		if len(cmd.Args) != 1 {
			s.wrongArgs(w, "select")
			return false
		}
		if _, err := strconv.Atoi(string(cmd.Args[0])); err != nil {
			s.writeError(w, "ERR invalid DB index")
			return false
		}
		w.WriteOK()
	case "CLIENT":
		w.WriteOK()
	case "HELLO":
		s.writeError(w, "NOPROTO unsupported protocol version")
	case "EVAL", "EVALSHA":
		s.handleEval(ctx, cmd, w)
	case "SCRIPT":
		s.handleScript(cmd, w)
	case "RESPWIRE.RAW":
		// replies with pre-encoded bytes, for decoder tests
		if len(cmd.Args) != 1 {
			s.wrongArgs(w, "respwire.raw")
			return false
		}
		w.WriteRaw(cmd.Args[0])
	case "RESPWIRE.SLEEP":
		if len(cmd.Args) != 1 {
			s.wrongArgs(w, "respwire.sleep")
			return false
		}
		ms, err := strconv.Atoi(string(cmd.Args[0]))
		if err != nil || ms < 0 {
			s.writeError(w, "ERR timeout is not an integer or out of range")
			return false
		}
		select {
		case <-time.After(time.Duration(ms) * time.Millisecond):
		case <-ctx.Done():
			return true
		}
		w.WriteOK()
	case "QUIT":
		w.WriteOK()
		return true
	default:
		s.writeError(w, fmt.Sprintf("ERR unknown command '%s'", strings.ToLower(cmd.Name)))
	}
	return false
}

func (s *Server) handleIncr(cmd *protocol.Command, w *protocol.ValueWriter) {
	delta := int64(1)
	switch {
	case cmd.Name == "INCR" && len(cmd.Args) == 1:
	case cmd.Name == "INCRBY" && len(cmd.Args) == 2:
		n, err := strconv.ParseInt(string(cmd.Args[1]), 10, 64)
		if err != nil {
			s.writeError(w, "ERR value is not an integer or out of range")
			return
		}
		delta = n
	default:
		s.wrongArgs(w, strings.ToLower(cmd.Name))
		return
	}

	n, err := s.store.IncrBy(string(cmd.Args[0]), delta)
	if err != nil {
		s.writeError(w, "ERR value is not an integer or out of range")
		return
	}
	w.WriteInteger(n)
}

func (s *Server) handleEval(ctx context.Context, cmd *protocol.Command, w *protocol.ValueWriter) {
	name := strings.ToLower(cmd.Name)
	if len(cmd.Args) < 2 {
		s.wrongArgs(w, name)
		return
	}

	numKeys, err := strconv.Atoi(string(cmd.Args[1]))
	if err != nil {
		s.writeError(w, "ERR value is not an integer or out of range")
		return
	}
	if numKeys < 0 || len(cmd.Args) < 2+numKeys {
		s.writeError(w, "ERR Number of keys can't be negative or greater than args")
		return
	}

	keys := stringArgs(cmd.Args[2 : 2+numKeys])
	args := stringArgs(cmd.Args[2+numKeys:])

	var result protocol.Value
	if cmd.Name == "EVAL" {
		result, err = s.lua.Eval(ctx, string(cmd.Args[0]), keys, args)
	} else {
		result, err = s.lua.EvalSHA(ctx, string(cmd.Args[0]), keys, args)
	}
	if err != nil {
		msg := err.Error()
		if !strings.HasPrefix(msg, "NOSCRIPT") {
			msg = "ERR " + msg
		}
		s.writeError(w, msg)
		return
	}
	w.WriteValue(result)
}

func (s *Server) handleScript(cmd *protocol.Command, w *protocol.ValueWriter) {
	if len(cmd.Args) == 0 {
		s.wrongArgs(w, "script")
		return
	}

	switch strings.ToUpper(string(cmd.Args[0])) {
	case "LOAD":
		if len(cmd.Args) != 2 {
			s.wrongArgs(w, "script|load")
			return
		}
		w.WriteBulkStringFromString(s.lua.LoadScript(string(cmd.Args[1])))
	case "EXISTS":
		exists := s.lua.ScriptExists(stringArgs(cmd.Args[1:]))
		w.WriteArrayHeader(len(exists))
		for _, ok := range exists {
			if ok {
				w.WriteInteger(1)
			} else {
				w.WriteInteger(0)
			}
		}
	case "FLUSH":
		s.lua.ScriptFlush()
		w.WriteOK()
	default:
		s.writeError(w, fmt.Sprintf("ERR unknown subcommand '%s'", cmd.Args[0]))
	}
}

func (s *Server) wrongArgs(w *protocol.ValueWriter, name string) {
	s.writeError(w, fmt.Sprintf("ERR wrong number of arguments for '%s' command", name))
}

func (s *Server) writeError(w *protocol.ValueWriter, msg string) {
	s.errorCount.Add(1)
	w.WriteError(msg)
}

func stringArgs(args [][]byte) []string {
	out := make([]string, len(args))
	for i, arg := range args {
		out[i] = string(arg)
	}
	return out
}

// localExecutor runs script commands against the server in-process. The
// reply is encoded and decoded again so scripts see exactly what a network
// client would.
type localExecutor struct {
	server *Server
}

func (e localExecutor) Do(ctx context.Context, name string, args ...string) (protocol.Value, error) {
	cmd := &protocol.Command{Name: strings.ToUpper(name), Args: make([][]byte, len(args))}
	for i, arg := range args {
		cmd.Args[i] = []byte(arg)
	}
	switch cmd.Name {
	case "QUIT", "EVAL", "EVALSHA", "SCRIPT", "RESPWIRE.SLEEP":
		return protocol.Value{}, fmt.Errorf("command '%s' is not allowed from scripts", strings.ToLower(name))
	}

	var buf bytes.Buffer
	w := protocol.NewValueWriter(&buf)
	e.server.execute(ctx, cmd, w)
	if err := w.Flush(); err != nil {
		return protocol.Value{}, err
	}

	v, err := protocol.ParseValue(protocol.LeaseBytes(buf.Bytes()))
	if err != nil {
		return protocol.Value{}, err
	}
	if v.IsError() {
		return v, errors.New(v.Error())
	}
	return v, nil
}
