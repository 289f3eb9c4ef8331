package client

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/rfstick/wire"
)

// Session owns the command connection to the service.
//
// The wire protocol has no request correlation ids; a response is matched
// to a request purely by arrival order. Request therefore holds a session
// lock for the full round trip, so exactly one request is in flight at a
// time and no response can be attributed to the wrong caller.
//
// The session does not reconnect mid-request. A failed write or read
// marks it disconnected and the error surfaces to the caller; the next
// request attempts a fresh dial first.
type Session struct {
	cfg Config

	// mu serializes round trips and guards conn/connected. Must never
	// be acquired while holding the Client registry lock.
	mu        sync.Mutex
	conn      net.Conn
	connected bool

	logger   Logger
	loggerMu sync.RWMutex

	requestsTotal atomic.Uint64
	errorsTotal   atomic.Uint64
	reconnects    atomic.Uint64
}

// dialSession connects the command socket and returns a ready session.
func dialSession(ctx context.Context, cfg Config) (*Session, error) {
	s := &Session{cfg: cfg, logger: noopLogger{}}

	conn, err := s.dial(ctx)
	if err != nil {
		return nil, err
	}

	s.conn = conn
	s.connected = true
	return s, nil
}

// newSessionConn wraps an already-established connection. Used by tests
// with net.Pipe transports.
func newSessionConn(conn net.Conn, cfg Config) *Session {
	return &Session{
		cfg:       cfg,
		conn:      conn,
		connected: true,
		logger:    noopLogger{},
	}
}

func (s *Session) dial(ctx context.Context) (net.Conn, error) {
	network, address, err := parseAddress(s.cfg.CommandAddress)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s://%s: %w", ErrConnectionFailed, network, address, err)
	}
	return conn, nil
}

// Request sends one message and blocks for the next frame on the
// connection, which is the response.
//
// Concurrent callers block on the session lock and are serviced in
// acquisition order. On any transport failure the session is marked
// disconnected and the error is returned; the request is never retried.
func (s *Session) Request(msg *wire.Message) (*wire.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exchange(msg)
}

// RequestIdempotent behaves like Request but, if the session is
// disconnected or the first attempt fails on transport, redials and
// retries exactly once. Only safe for read requests: a state-mutating
// request that failed may already have been applied by the service.
func (s *Session) RequestIdempotent(msg *wire.Message) (*wire.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	resp, err := s.exchange(msg)
	if err == nil {
		return resp, nil
	}

	if rerr := s.redialLocked(); rerr != nil {
		return nil, err
	}
	return s.exchange(msg)
}

// exchange performs one round trip. Caller holds s.mu.
func (s *Session) exchange(msg *wire.Message) (*wire.Message, error) {
	if !s.connected || s.conn == nil {
		if err := s.redialLocked(); err != nil {
			return nil, err
		}
	}

	s.requestsTotal.Add(1)

	if err := s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
		s.markDisconnectedLocked()
		return nil, fmt.Errorf("set write deadline: %w", err)
	}
	if err := wire.WriteFrame(s.conn, msg.Bytes()); err != nil {
		s.errorsTotal.Add(1)
		s.markDisconnectedLocked()
		return nil, fmt.Errorf("send request: %w", err)
	}

	if err := s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout)); err != nil {
		s.markDisconnectedLocked()
		return nil, fmt.Errorf("set read deadline: %w", err)
	}
	payload, err := wire.ReadFrame(s.conn)
	if err != nil {
		s.errorsTotal.Add(1)
		s.markDisconnectedLocked()
		return nil, fmt.Errorf("read response: %w", err)
	}

	return wire.Parse(payload), nil
}

// redialLocked re-establishes the connection. Caller holds s.mu.
func (s *Session) redialLocked() error {
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.connected = false

	conn, err := s.dial(context.Background())
	if err != nil {
		return err
	}

	s.conn = conn
	s.connected = true
	s.reconnects.Add(1)
	s.logInfo("command connection re-established")
	return nil
}

func (s *Session) markDisconnectedLocked() {
	s.connected = false
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}

// IsConnected reports whether the session has a live connection.
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Close releases the connection. Safe to call multiple times. A request
// in flight completes or fails naturally first, since Close waits on the
// session lock.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markDisconnectedLocked()
	return nil
}

// SetLogger sets the logger used for connection lifecycle messages.
func (s *Session) SetLogger(logger Logger) {
	s.loggerMu.Lock()
	if logger == nil {
		logger = noopLogger{}
	}
	s.logger = logger
	s.loggerMu.Unlock()
}

func (s *Session) logInfo(msg string, keysAndValues ...any) {
	s.loggerMu.RLock()
	logger := s.logger
	s.loggerMu.RUnlock()
	logger.Info(msg, keysAndValues...)
}
