// Package proxy implements the Proxy Manager: the set of live Device
// Sessions and the Failed-Config Set, their lifecycle, and the background
// retry loop that re-attempts absent devices.
package proxy

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/GeorgeV220/PushToTalk/session"
)

// DefaultRetryPeriod is the steady-state cadence at which the Manager
// re-attempts every Config in its Failed-Config Set.
// (an idiomatic substitution for the original's 50x100ms sleep loop; see
// DESIGN.md's Open Question decision).
const DefaultRetryPeriod = 5 * time.Second

// liveSession is the narrow surface Manager needs from a Session: start,
// stop, and tear down its resources. It is satisfied by *session.Session
// and by fakes in tests.
type liveSession interface {
	Start()
	Stop()
	Destroy() error
}

// newSession is overridden in tests to avoid touching real kernel devices.
var newSession = func(cfg session.Config, callback *atomic.Pointer[session.EventFunc]) (liveSession, error) {
	return session.New(cfg, callback)
}

// Manager owns a set of Sessions and a Failed-Config Set, and fans out a
// single consumer callback invoked on every target-key transition across
// every live Session.
type Manager struct {
	// RetryPeriod is the steady-state interval between retry passes over
	// the Failed-Config Set. Zero selects DefaultRetryPeriod.
	RetryPeriod time.Duration

	// Logger receives structured diagnostics for add/remove/retry
	// decisions. A nil Logger falls back to log.Default().
	Logger *log.Logger

	mu       sync.Mutex
	sessions map[session.Config]liveSession
	failed   map[session.Config]struct{}

	callback atomic.Pointer[session.EventFunc]

	running bool
	stopCh  chan struct{}
	wakeCh  chan struct{}
	wg      sync.WaitGroup
}

// New constructs an empty Manager.
func New() *Manager {
	return &Manager{
		sessions: make(map[session.Config]liveSession),
		failed:   make(map[session.Config]struct{}),
		stopCh:   make(chan struct{}),
		wakeCh:   make(chan struct{}, 1),
	}
}

func (m *Manager) logger() *log.Logger {
	if m.Logger != nil {
		return m.Logger
	}

	return log.Default()
}

// SetCallback installs cb as the single consumer of target-key transitions.
// Replacing the callback while the Manager is running is safe; it takes
// effect on the next event. The Manager's lock is never held while a
// callback runs.
func (m *Manager) SetCallback(cb session.EventFunc) {
	m.callback.Store(&cb)
}

// AddDevice attempts to realize cfg as a live Session. On success it is
// added to the live set (and removed from the Failed-Config Set if
// present); on failure at any stage it is added to the Failed-Config Set
// instead, deduplicated by full Config equality.
func (m *Manager) AddDevice(cfg session.Config) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[cfg]; ok {
		return
	}

	sess, err := newSession(cfg, &m.callback)
	if err != nil {
		m.logger().Debug("add_device failed, retrying later", "config", cfg, "err", err)
		m.failed[cfg] = struct{}{}
		return
	}

	delete(m.failed, cfg)
	m.sessions[cfg] = sess

	if m.running {
		sess.Start()
	}
}

// RemoveDevice stops and destroys the Session matching cfg, if any, and
// removes cfg from the Failed-Config Set as well.
func (m *Manager) RemoveDevice(cfg session.Config) {
	m.mu.Lock()
	sess, ok := m.sessions[cfg]
	delete(m.sessions, cfg)
	delete(m.failed, cfg)
	m.mu.Unlock()

	if !ok {
		return
	}

	sess.Stop()

	if err := sess.Destroy(); err != nil {
		m.logger().Warn("remove_device: destroy failed", "config", cfg, "err", err)
	}
}

// Sessions returns the Config of every currently live Session.
func (m *Manager) Sessions() []session.Config {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]session.Config, 0, len(m.sessions))
	for cfg := range m.sessions {
		out = append(out, cfg)
	}

	return out
}

// FailedConfigs returns every Config currently in the Failed-Config Set.
func (m *Manager) FailedConfigs() []session.Config {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]session.Config, 0, len(m.failed))
	for cfg := range m.failed {
		out = append(out, cfg)
	}

	return out
}

// Start launches every live Session's listener goroutine and the retry
// loop. Start is a no-op if the Manager is already running.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}

	m.running = true
	m.stopCh = make(chan struct{})
	for _, sess := range m.sessions {
		sess.Start()
	}
	m.mu.Unlock()

	m.wg.Add(1)
	go m.retryLoop()
}

// Stop stops the retry loop and every live Session, then destroys each
// Session's resources. Stop is safe to call once per Start.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}

	m.running = false
	m.mu.Unlock()

	close(m.stopCh)
	m.wg.Wait()

	m.mu.Lock()
	sessions := make([]liveSession, 0, len(m.sessions))
	for _, sess := range m.sessions {
		sessions = append(sessions, sess)
	}
	m.sessions = make(map[session.Config]liveSession)
	m.mu.Unlock()

	for _, sess := range sessions {
		sess.Stop()

		if err := sess.Destroy(); err != nil {
			m.logger().Warn("stop: destroy failed", "err", err)
		}
	}
}

// Wake nudges the retry loop to perform an out-of-cycle retry pass
// immediately, without changing its steady-state cadence. It is the hook
// github.com/GeorgeV220/PushToTalk/udevwatch feeds on a udev hot-plug
// event. Wake never blocks. At most one pending wake is held: a Wake
// before Start triggers one retry pass as soon as the retry loop starts,
// and a Wake after Stop has no effect until the next Start.
func (m *Manager) Wake() {
	select {
	case m.wakeCh <- struct{}{}:
	default:
	}
}

func (m *Manager) retryLoop() {
	defer m.wg.Done()

	period := m.RetryPeriod
	if period <= 0 {
		period = DefaultRetryPeriod
	}

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.retryFailed()
		case <-m.wakeCh:
			m.retryFailed()
		}
	}
}

// retryFailed snapshots the Failed-Config Set, clears each entry, and
// re-invokes AddDevice for it. Order within the snapshot is arbitrary.
func (m *Manager) retryFailed() {
	m.mu.Lock()
	snapshot := make([]session.Config, 0, len(m.failed))
	for cfg := range m.failed {
		snapshot = append(snapshot, cfg)
	}
	m.failed = make(map[session.Config]struct{})
	m.mu.Unlock()

	for _, cfg := range snapshot {
		m.AddDevice(cfg)
	}
}
