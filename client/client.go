// Package client implements the Proxy Client: it connects to the Proxy
// Server's Unix-domain socket, performs the handshake and config handoff,
// consumes Events/KEY_EVENT packets into a user callback, pings the server
// periodically, and reconnects automatically on any failure.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/GeorgeV220/PushToTalk/protocol"
)

// connectBackoff is the sleep between failed connection attempts.
const connectBackoff = time.Second

// pingInterval is the steady-state cadence of the pinger.
const pingInterval = 30 * time.Second

// missedPongLimit is the number of un-ponged pings tolerated before the
// client tears down the connection and reconnects.
const missedPongLimit = 3

// ErrHandshakeFailed is returned internally when the server's handshake
// response is missing or unexpected; it is never returned to callers, who
// instead observe an automatic reconnect.
var ErrHandshakeFailed = errors.New("client: handshake failed")

// KeyFunc is the consumer invoked on every received KEY_EVENT, with
// pressed reporting state != 0.
type KeyFunc func(key int32, pressed bool)

// Client is a Proxy Client bound to one server socket. The zero value is
// not usable; construct with SocketPath set.
type Client struct {
	// SocketPath is the server's Unix-domain socket path.
	SocketPath string

	// Logger receives structured diagnostics. A nil Logger falls back to
	// log.Default().
	Logger *log.Logger

	mu      sync.Mutex
	configs []protocol.DeviceConfig
	conn    net.Conn

	callback atomic.Pointer[KeyFunc]

	missedPongs atomic.Int32

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func (c *Client) logger() *log.Logger {
	if c.Logger != nil {
		return c.Logger
	}

	return log.Default()
}

// AddDevice appends one device to the config list sent at the next (re)
// handshake.
func (c *Client) AddDevice(vendor, product uint16, uid uint32, targetKey int32, exclusive bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.configs = append(c.configs, protocol.DeviceConfig{
		VendorID:  vendor,
		ProductID: product,
		UID:       uid,
		TargetKey: targetKey,
		Exclusive: exclusive,
	})
}

// ClearDevices empties the config list.
func (c *Client) ClearDevices() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.configs = nil
}

// SetCallback installs cb as the consumer of KEY_EVENT packets. It is
// invoked only by the reader goroutine.
func (c *Client) SetCallback(cb KeyFunc) {
	c.callback.Store(&cb)
}

// Start launches the connect/handshake/serve loop in a background
// goroutine. It is a no-op to call Start more than once without an
// intervening Stop.
func (c *Client) Start() {
	if c.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	c.wg.Add(1)
	go c.run(ctx)
}

// Stop terminates the connect loop and waits for its goroutine to exit.
// Stop is idempotent.
func (c *Client) Stop() {
	if c.cancel == nil {
		return
	}

	c.cancel()
	c.cancel = nil

	c.closeConn()

	c.wg.Wait()
}

// Restart forces the current connection closed, causing the reader to
// fail and the connect loop to reconnect and re-handshake. It is a no-op
// if the client is not running.
func (c *Client) Restart() {
	c.closeConn()
}

func (c *Client) setConn(conn net.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

func (c *Client) closeConn() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

func (c *Client) run(ctx context.Context) {
	defer c.wg.Done()

	for ctx.Err() == nil {
		conn, err := c.connect(ctx)
		if err != nil {
			return
		}

		if err := c.handshake(conn); err != nil {
			c.logger().Warn("handshake failed", "err", err)
			conn.Close()
			c.setConn(nil)
			continue
		}

		c.serveConn(ctx, conn)
	}
}

// connect dials the server, retrying every connectBackoff until it
// succeeds or ctx is cancelled.
func (c *Client) connect(ctx context.Context) (net.Conn, error) {
	for {
		conn, err := net.Dial("unix", c.SocketPath)
		if err == nil {
			c.logger().Debug("connected", "socket", c.SocketPath)
			c.setConn(conn)

			return conn, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(connectBackoff):
		}
	}
}

// handshake sends HANDSHAKE and expects ACK; if any devices are
// configured, it then sends CONFIG_LIST and expects another ACK.
func (c *Client) handshake(conn net.Conn) error {
	if err := protocol.SendHandshake(conn); err != nil {
		return fmt.Errorf("client.handshake: %w", err)
	}

	if _, err := protocol.ExpectControl(conn, protocol.Ack); err != nil {
		return fmt.Errorf("client.handshake: %w: %w", ErrHandshakeFailed, err)
	}

	c.mu.Lock()
	configs := append([]protocol.DeviceConfig(nil), c.configs...)
	c.mu.Unlock()

	if len(configs) == 0 {
		return nil
	}

	if err := protocol.SendConfigList(conn, configs); err != nil {
		return fmt.Errorf("client.handshake: %w", err)
	}

	if _, err := protocol.ExpectControl(conn, protocol.Ack); err != nil {
		return fmt.Errorf("client.handshake: %w: %w", ErrHandshakeFailed, err)
	}

	return nil
}

func (c *Client) serveConn(ctx context.Context, conn net.Conn) {
	defer func() {
		conn.Close()
		c.setConn(nil)
	}()

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.missedPongs.Store(0)

	var pingerWG sync.WaitGroup

	pingerWG.Add(1)
	go func() {
		defer pingerWG.Done()
		c.pinger(connCtx, conn)
	}()

	c.reader(connCtx, conn)

	cancel()
	pingerWG.Wait()
}

// reader is the connection's read loop: KEY_EVENT dispatches the
// user callback; PONG resets liveness; ERROR is logged as a server error
// at warn level; ACK (outside handshake) and anything else are
// debug-logged. It returns on the first read
// failure, which the outer run loop treats as PeerClosed and reconnects.
func (c *Client) reader(ctx context.Context, conn net.Conn) {
	for ctx.Err() == nil {
		header, payload, err := protocol.ReadPacket(conn)
		if err != nil {
			c.logger().Debug("reader stopped", "err", err)
			return
		}

		switch header.Channel {
		case protocol.ChannelEvents:
			c.handleEvent(protocol.EventType(header.Type), payload)
		case protocol.ChannelControl:
			c.handleControl(protocol.ControlType(header.Type), payload)
		default:
			c.logger().Debug("unexpected channel", "channel", header.Channel)
		}
	}
}

func (c *Client) handleEvent(typ protocol.EventType, payload []byte) {
	if typ != protocol.KeyEvent {
		c.logger().Debug("unexpected event type", "type", typ)
		return
	}

	ev, err := protocol.DecodeKeyEvent(payload)
	if err != nil {
		c.logger().Warn("malformed key event", "err", err)
		return
	}

	cb := c.callback.Load()
	if cb == nil || *cb == nil {
		return
	}

	(*cb)(ev.Key, ev.Pressed())
}

func (c *Client) handleControl(typ protocol.ControlType, payload []byte) {
	switch typ {
	case protocol.Pong:
		c.missedPongs.Store(0)
	case protocol.Error:
		c.logger().Warn("server error", "message", string(payload))
	case protocol.Ack:
		c.logger().Debug("unsolicited ack")
	default:
		c.logger().Debug("unexpected control packet", "type", typ)
	}
}

// pinger sends an immediate PING, then one every pingInterval thereafter,
// and forces the connection closed (triggering a reconnect) once
// missedPongLimit consecutive pings have gone unanswered.
func (c *Client) pinger(ctx context.Context, conn net.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	if !c.ping(conn) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !c.ping(conn) {
				return
			}
		}
	}
}

// ping sends a single PING and accounts for it in the missed-pong streak,
// closing conn and reporting false once the streak exceeds missedPongLimit
// or the send itself fails.
func (c *Client) ping(conn net.Conn) bool {
	if err := protocol.SendPing(conn); err != nil {
		c.logger().Debug("ping failed", "err", err)
		conn.Close()
		return false
	}

	if c.missedPongs.Add(1) > missedPongLimit {
		c.logger().Warn("missed too many pongs, restarting connection")
		conn.Close()
		return false
	}

	return true
}
