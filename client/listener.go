package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/rfstick/wire"
)

// Reconnection backoff for the event connection.
const (
	initialEventBackoff = 1 * time.Second
	maxEventBackoff     = 2 * time.Minute
)

// Event push verbs sent by the service.
const (
	pushDeviceEvent       = "deviceEvent"
	pushRawEvent          = "rawEvent"
	pushDeviceChangeEvent = "deviceChangeEvent"
)

// listener owns the event connection and the goroutine that drains it.
//
// The loop alternates between a deadline-bounded frame read and a
// shutdown check. Decoded pushes are handed to the owning Client for
// cache updates and callback fan-out on this goroutine.
type listener struct {
	cfg    Config
	client *Client

	connMu sync.Mutex
	conn   net.Conn

	// redial is false for injected test connections, which have no
	// address to dial back to.
	redial bool

	shutdown *Event
	wg       sync.WaitGroup

	eventsRx    atomic.Uint64
	errorsTotal atomic.Uint64
	reconnects  atomic.Uint64
}

// startListener dials the event socket and starts the drain goroutine.
func startListener(ctx context.Context, cfg Config, c *Client) (*listener, error) {
	l := &listener{
		cfg:      cfg,
		client:   c,
		redial:   true,
		shutdown: NewEvent(),
	}

	conn, err := l.dial(ctx)
	if err != nil {
		return nil, err
	}
	l.conn = conn

	l.wg.Add(1)
	go l.run()
	return l, nil
}

// startListenerConn starts the drain goroutine over an injected
// connection. Used by tests with net.Pipe transports.
func startListenerConn(conn net.Conn, cfg Config, c *Client) *listener {
	l := &listener{
		cfg:      cfg,
		client:   c,
		conn:     conn,
		shutdown: NewEvent(),
	}

	l.wg.Add(1)
	go l.run()
	return l
}

func (l *listener) dial(ctx context.Context) (net.Conn, error) {
	network, address, err := parseAddress(l.cfg.EventAddress)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, l.cfg.ConnectTimeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s://%s: %w", ErrConnectionFailed, network, address, err)
	}
	return conn, nil
}

// run drains event frames until shutdown is signaled.
func (l *listener) run() {
	defer l.wg.Done()

	for {
		if l.shutdown.Signaled() {
			return
		}

		conn := l.currentConn()
		if conn == nil {
			return
		}

		if err := conn.SetReadDeadline(time.Now().Add(l.cfg.ReadTimeout)); err != nil {
			l.errorsTotal.Add(1)
			if !l.reconnect() {
				return
			}
			continue
		}

		payload, err := wire.ReadFrame(conn)
		if err != nil {
			if l.shutdown.Signaled() {
				return
			}

			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue // No event within the deadline, check shutdown and wait again
			}

			l.errorsTotal.Add(1)
			if !l.reconnect() {
				return
			}
			continue
		}

		l.handle(payload)
	}
}

// handle decodes one push message and dispatches it. Malformed pushes are
// dropped; they are fatal to the message, not to the listener.
func (l *listener) handle(payload []byte) {
	msg := wire.Parse(payload)

	verb, err := msg.TakeString()
	if err != nil {
		l.errorsTotal.Add(1)
		l.client.logWarn("dropping malformed event push", "error", err)
		return
	}

	switch verb {
	case pushDeviceEvent:
		id, err1 := msg.TakeInt()
		method, err2 := msg.TakeInt()
		value, err3 := msg.TakeString()
		if err1 != nil || err2 != nil || err3 != nil {
			l.errorsTotal.Add(1)
			return
		}
		l.eventsRx.Add(1)
		l.client.dispatchDeviceEvent(id, Method(method), value)

	case pushRawEvent:
		data, err1 := msg.TakeString()
		controllerID, err2 := msg.TakeInt()
		if err1 != nil || err2 != nil {
			l.errorsTotal.Add(1)
			return
		}
		l.eventsRx.Add(1)
		l.client.dispatchRawEvent(data, controllerID)

	case pushDeviceChangeEvent:
		id, err1 := msg.TakeInt()
		changeEvent, err2 := msg.TakeInt()
		changeType, err3 := msg.TakeInt()
		if err1 != nil || err2 != nil || err3 != nil {
			l.errorsTotal.Add(1)
			return
		}
		l.eventsRx.Add(1)
		l.client.dispatchDeviceChange(id, changeEvent, changeType)

	default:
		l.client.logWarn("unknown event push", "verb", verb)
	}
}

// reconnect re-dials the event socket with exponential backoff. Returns
// false if shutdown was signaled, or if the connection was injected and
// has no address to dial back to.
func (l *listener) reconnect() bool {
	if !l.redial {
		return false
	}

	l.closeConn()

	backoff := initialEventBackoff
	for attempt := 1; ; attempt++ {
		if l.shutdown.Signaled() {
			return false
		}

		conn, err := l.dial(context.Background())
		if err == nil {
			l.connMu.Lock()
			l.conn = conn
			l.connMu.Unlock()
			l.reconnects.Add(1)
			l.client.logInfo("event connection re-established", "attempt", attempt)
			return true
		}

		l.client.logWarn("event reconnect failed", "attempt", attempt, "backoff", backoff.String(), "error", err)

		select {
		case <-l.shutdown.Done():
			return false
		case <-time.After(backoff):
		}

		backoff = time.Duration(float64(backoff) * 1.5)
		if backoff > maxEventBackoff {
			backoff = maxEventBackoff
		}
	}
}

func (l *listener) currentConn() net.Conn {
	l.connMu.Lock()
	defer l.connMu.Unlock()
	return l.conn
}

func (l *listener) closeConn() {
	l.connMu.Lock()
	if l.conn != nil {
		l.conn.Close()
		l.conn = nil
	}
	l.connMu.Unlock()
}

// close signals shutdown, unblocks the pending read, and joins the drain
// goroutine. After close returns no callback will fire again.
func (l *listener) close() {
	l.shutdown.Signal()
	l.closeConn()
	l.wg.Wait()
}
