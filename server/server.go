// Package server implements the Proxy Server: a Unix-domain socket
// listener that, per accepted connection, performs the handshake and
// config intake, runs a Proxy Manager for the negotiated devices, and
// forwards target-key transitions to the client as Events/KEY_EVENT
// packets until the client disconnects.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"os/user"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sys/unix"

	"github.com/GeorgeV220/PushToTalk/device"
	linuxinput "github.com/GeorgeV220/PushToTalk/linux/input"
	"github.com/GeorgeV220/PushToTalk/protocol"
	"github.com/GeorgeV220/PushToTalk/proxy"
	"github.com/GeorgeV220/PushToTalk/session"
)

// DefaultSocketPath is the fixed filesystem path the Proxy Server listens
// on.
const DefaultSocketPath = "/tmp/input_proxy.sock"

// DefaultGroup owns the socket and is created if absent.
const DefaultGroup = "ptt"

// listenBacklog is the small accept backlog a single-client proxy needs.
const listenBacklog = 5

// socketMode is the permission bits applied to the socket file.
const socketMode = 0o660

// Server is a Proxy Server bound to one Unix-domain socket. At most one
// client is served at a time, matching the reference design's
// single-threaded accept loop; a new connection is only
// accepted once the previous one's Manager has been torn down.
type Server struct {
	// SocketPath is the filesystem path to listen on. Empty selects
	// DefaultSocketPath.
	SocketPath string

	// Group owns the socket once provisioned. Empty selects DefaultGroup.
	Group string

	// Logger receives structured diagnostics. A nil Logger falls back to
	// log.Default().
	Logger *log.Logger

	// RetryPeriod overrides each connection's Proxy Manager retry cadence.
	// Zero selects proxy.DefaultRetryPeriod.
	RetryPeriod time.Duration

	// OnManager, if set, is called with the connection's Proxy Manager
	// once it starts serving, and again with nil once it is about to
	// stop. A hot-plug notifier (see package udevwatch) uses this to
	// retarget its Wake calls at whichever Manager is currently live,
	// since each connection owns its own Manager.
	OnManager func(mgr *proxy.Manager)
}

func (srv *Server) socketPath() string {
	if srv.SocketPath != "" {
		return srv.SocketPath
	}

	return DefaultSocketPath
}

func (srv *Server) group() string {
	if srv.Group != "" {
		return srv.Group
	}

	return DefaultGroup
}

func (srv *Server) logger() *log.Logger {
	if srv.Logger != nil {
		return srv.Logger
	}

	return log.Default()
}

// New constructs a Server listening on socketPath, owned by group, logging
// through logger (nil selects log.Default()).
func New(socketPath, group string, logger *log.Logger) *Server {
	return &Server{SocketPath: socketPath, Group: group, Logger: logger}
}

// ListenAndServe provisions the socket and runs the accept loop until ctx
// is cancelled, at which point the listener is closed and
// ListenAndServe returns nil.
func (srv *Server) ListenAndServe(ctx context.Context) error {
	listener, err := srv.listen()
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}

			srv.logger().Error("accept failed", "err", err)
			continue
		}

		srv.serveConnSafely(conn)
	}
}

// listen creates the listening socket: unlink any stale
// socket file, bind, listen with a backlog of 5, then provision group
// ownership and mode.
func (srv *Server) listen() (net.Listener, error) {
	path := srv.socketPath()

	if err := removeStaleSocket(path); err != nil {
		return nil, err
	}

	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, fmt.Errorf("server.listen: socket: %w", err)
	}

	if err := unix.Bind(fd, &unix.SockaddrUnix{Name: path}); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("server.listen: bind: %w", err)
	}

	if err := unix.Listen(fd, listenBacklog); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("server.listen: listen: %w", err)
	}

	if err := srv.provision(path); err != nil {
		srv.logger().Warn("socket provisioning incomplete", "err", err)
	}

	file := os.NewFile(uintptr(fd), path)
	defer file.Close()

	listener, err := net.FileListener(file)
	if err != nil {
		return nil, fmt.Errorf("server.listen: %w", err)
	}

	return listener, nil
}

func removeStaleSocket(path string) error {
	_, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return fmt.Errorf("server.removeStaleSocket: %w", err)
	}

	if err := os.Remove(path); err != nil {
		return fmt.Errorf("server.removeStaleSocket: %w", err)
	}

	return nil
}

// provision changes the socket's group ownership and mode. Group creation
// is a best-effort escalation deferred to the
// host OS; it is attempted via groupadd only if the group is missing, and
// failure here is logged and non-fatal.
func (srv *Server) provision(path string) error {
	groupName := srv.group()

	grp, err := user.LookupGroup(groupName)
	if err != nil {
		if createErr := exec.Command("groupadd", groupName).Run(); createErr != nil {
			return fmt.Errorf("server.provision: group %q missing and groupadd failed: %w", groupName, createErr)
		}

		grp, err = user.LookupGroup(groupName)
		if err != nil {
			return fmt.Errorf("server.provision: %w", err)
		}
	}

	gid, err := strconv.Atoi(grp.Gid)
	if err != nil {
		return fmt.Errorf("server.provision: %w", err)
	}

	if err := os.Chown(path, -1, gid); err != nil {
		return fmt.Errorf("server.provision: chown: %w", err)
	}

	if err := os.Chmod(path, socketMode); err != nil {
		return fmt.Errorf("server.provision: chmod: %w", err)
	}

	return nil
}

// serveConnSafely recovers from a panic anywhere in ServeConn so a single
// misbehaving connection cannot take down the accept loop: it logs and
// keeps accepting.
func (srv *Server) serveConnSafely(conn net.Conn) {
	defer func() {
		if r := recover(); r != nil {
			srv.logger().Error("connection handler panicked", "panic", r)
		}
	}()

	srv.ServeConn(conn)
}

// ServeConn runs the full per-connection lifecycle on an already-accepted
// conn: peer authorization, handshake, config intake, and the service loop,
// tearing down its Proxy Manager when the client disconnects. Exported so
// callers (and tests) can drive a single connection without going through
// ListenAndServe's accept loop.
func (srv *Server) ServeConn(conn net.Conn) {
	defer conn.Close()

	logger := srv.logger()

	if !srv.authorize(conn) {
		logger.Warn("rejected unauthorized peer")
		return
	}

	if err := srv.handshake(conn); err != nil {
		logger.Warn("handshake failed", "err", err)
		return
	}

	configs, err := srv.readConfigList(conn)
	if err != nil {
		logger.Warn("config intake failed", "err", err)
		return
	}

	mgr := proxy.New()
	mgr.Logger = logger
	mgr.RetryPeriod = srv.RetryPeriod

	for _, cfg := range configs {
		mgr.AddDevice(toSessionConfig(cfg))
	}

	var writeMu sync.Mutex

	mgr.SetCallback(func(key linuxinput.Code, pressed bool) {
		writeMu.Lock()
		defer writeMu.Unlock()

		if err := protocol.SendKeyEvent(conn, int32(key), pressed); err != nil {
			logger.Warn("send key event failed", "err", err)
		}
	})

	mgr.Start()
	srv.notifyManager(mgr)

	defer func() {
		srv.notifyManager(nil)
		mgr.Stop()
	}()

	srv.serviceLoop(conn, logger)
}

// handshake expects a Control/HANDSHAKE packet and replies
// ACK.
func (srv *Server) handshake(conn net.Conn) error {
	if _, err := protocol.ExpectControl(conn, protocol.Handshake); err != nil {
		protocol.SendError(conn, "expected HANDSHAKE")
		return fmt.Errorf("server.handshake: %w", err)
	}

	if err := protocol.SendAck(conn); err != nil {
		return fmt.Errorf("server.handshake: %w", err)
	}

	return nil
}

// readConfigList expects a Control/CONFIG_LIST packet
// with a payload length a multiple of DeviceConfigSize, reply ACK.
func (srv *Server) readConfigList(conn net.Conn) ([]protocol.DeviceConfig, error) {
	payload, err := protocol.ExpectControl(conn, protocol.ConfigList)
	if err != nil {
		protocol.SendError(conn, "expected CONFIG_LIST")
		return nil, fmt.Errorf("server.readConfigList: %w", err)
	}

	configs, err := protocol.DecodeDeviceConfigList(payload)
	if err != nil {
		protocol.SendError(conn, err.Error())
		return nil, fmt.Errorf("server.readConfigList: %w", err)
	}

	if err := protocol.SendAck(conn); err != nil {
		return nil, fmt.Errorf("server.readConfigList: %w", err)
	}

	return configs, nil
}

// serviceLoop reads packets from the
// client, answering PING with PONG, until a read failure or clean EOF.
func (srv *Server) serviceLoop(conn net.Conn, logger *log.Logger) {
	for {
		header, _, err := protocol.ReadPacket(conn)
		if err != nil {
			if errors.Is(err, io.EOF) {
				logger.Debug("client disconnected")
			} else {
				logger.Debug("read failed", "err", err)
			}

			return
		}

		if header.Channel != protocol.ChannelControl {
			continue
		}

		switch protocol.ControlType(header.Type) {
		case protocol.Ping:
			if err := protocol.SendPong(conn); err != nil {
				logger.Warn("send pong failed", "err", err)
				return
			}
		default:
			logger.Debug("unexpected control packet", "type", header.Type)
		}
	}
}

// authorize queries the peer's credentials and applies the server-side
// acceptance policy. The reference policy is "accept any
// client in the control group" — filesystem permissions on the socket
// already enforce that membership, so authorize only logs the peer's
// identity for audit and never rejects a connection that reached accept().
func (srv *Server) authorize(conn net.Conn) bool {
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		return true
	}

	raw, err := unixConn.SyscallConn()
	if err != nil {
		return true
	}

	var (
		cred    *unix.Ucred
		credErr error
	)

	ctrlErr := raw.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if ctrlErr != nil || credErr != nil {
		srv.logger().Debug("peer credential query failed", "err", ctrlErr, "cred_err", credErr)
		return true
	}

	srv.logger().Debug("accepted peer", "pid", cred.Pid, "uid", cred.Uid, "gid", cred.Gid)

	return true
}

func (srv *Server) notifyManager(mgr *proxy.Manager) {
	if srv.OnManager != nil {
		srv.OnManager(mgr)
	}
}

func toSessionConfig(cfg protocol.DeviceConfig) session.Config {
	return session.Config{
		Identity: device.Identity{
			VendorID:  cfg.VendorID,
			ProductID: cfg.ProductID,
			UID:       device.Fingerprint(cfg.UID),
		},
		TargetKey: linuxinput.Code(cfg.TargetKey),
		Exclusive: cfg.Exclusive,
	}
}
