// Package session implements one physical device's lifecycle: resolving
// its identity to a path, grabbing it exclusively, mirroring it through
// uinput, and classifying its event stream into passthrough writes and
// target-key callback invocations.
package session

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/GeorgeV220/PushToTalk/device"
	linuxinput "github.com/GeorgeV220/PushToTalk/linux/input"
	"github.com/GeorgeV220/PushToTalk/mirror"
)

// EventFunc is the single consumer invoked on each target-key press/release
// transition. It must be safe to call concurrently from any Session's
// listener goroutine; callers must serialize writes to a shared device.
type EventFunc func(key linuxinput.Code, pressed bool)

// Config identifies a physical device and the key interception policy to
// apply to it. Config is comparable and is used as a map key by
// [github.com/GeorgeV220/PushToTalk/proxy.Manager] to track live Sessions
// and the Failed-Config Set.
type Config struct {
	Identity  device.Identity
	TargetKey linuxinput.Code
	Exclusive bool
}

// physicalDevice is the narrow surface Session needs from a physical evdev
// device: grab, blocking read, close, and the capability probe mirror.Create
// needs. It is satisfied by *linuxinput.Device and by fakes in tests.
type physicalDevice interface {
	Grab(on bool) error
	ReadEvent() (linuxinput.Event, error)
	Close() error
	Events() ([]linuxinput.EventType, error)
	Codes(eventType linuxinput.EventType) ([]linuxinput.Code, error)
	AbsInfo(code linuxinput.Code) (linuxinput.AbsInfo, error)
}

// mirrorSink is the narrow surface Session needs from a Mirror.
type mirrorSink interface {
	WriteEvent(ev linuxinput.Event) error
	Destroy() error
}

// openPhysicalDevice and createMirror are overridden in tests to avoid
// touching real kernel devices, the same seam mirror.Create uses for its
// own uinput dependency.
var (
	openPhysicalDevice = func(path string) (physicalDevice, error) {
		return linuxinput.NewDevice(path)
	}

	createMirror = func(phys physicalDevice) (mirrorSink, error) {
		return mirror.Create(phys)
	}

	resolveIdentity = device.Resolve
)

// Session is one physical device's runtime state: its grabbed fd, its
// uinput mirror, and the listener goroutine classifying its event stream.
// A Session is owned exclusively by a proxy.Manager; it is never shared.
type Session struct {
	config Config
	phys   physicalDevice
	mirror mirrorSink

	callback *atomic.Pointer[EventFunc]

	lastValue atomic.Int32
	running   atomic.Bool
	wg        sync.WaitGroup
}

// New resolves cfg.Identity to a /dev/input path, opens and exclusively
// grabs the physical device, and creates its uinput mirror. Any failure
// cleans up whatever was acquired and returns an error; the caller (a
// proxy.Manager) is responsible for moving cfg into the Failed-Config Set.
//
// callback is a pointer to the shared EventFunc slot the owning Manager
// mutates via SetCallback; the Session dereferences it on every classified
// target-key transition so callback replacement takes effect on the next
// event.
func New(cfg Config, callback *atomic.Pointer[EventFunc]) (*Session, error) {
	var (
		path string
		phys physicalDevice
		mir  mirrorSink
		err  error
	)

	path, err = resolveIdentity(cfg.Identity)
	if err != nil {
		return nil, fmt.Errorf("session.New: %w", err)
	}

	phys, err = openPhysicalDevice(path)
	if err != nil {
		return nil, fmt.Errorf("session.New: open: %w", err)
	}

	if err = phys.Grab(true); err != nil {
		phys.Close()
		return nil, fmt.Errorf("session.New: grab: %w", err)
	}

	mir, err = createMirror(phys)
	if err != nil {
		phys.Grab(false)
		phys.Close()
		return nil, fmt.Errorf("session.New: mirror: %w", err)
	}

	return &Session{
		config:   cfg,
		phys:     phys,
		mirror:   mir,
		callback: callback,
	}, nil
}

// Config returns the Config this Session was created from.
func (s *Session) Config() Config {
	return s.config
}

// Start launches the listener goroutine. It is a no-op to call Start more
// than once.
func (s *Session) Start() {
	if !s.running.CompareAndSwap(false, true) {
		return
	}

	s.wg.Add(1)
	go s.run()
}

// Stop requests the listener goroutine to exit and waits for it to do so.
// The goroutine may still be blocked on the physical
// device's next event when Stop is called; it observes running=false on
// the following loop head.
func (s *Session) Stop() {
	s.running.Store(false)
	s.wg.Wait()
}

// Destroy tears down the mirror (UI_DEV_DESTROY then close) and ungrabs
// and closes the physical device, in that order, matching the invariant
// that a uinput device is always destroyed before its fd is closed.
func (s *Session) Destroy() error {
	var errs []error

	if err := s.mirror.Destroy(); err != nil {
		errs = append(errs, fmt.Errorf("session.Destroy: mirror: %w", err))
	}

	if err := s.phys.Grab(false); err != nil {
		errs = append(errs, fmt.Errorf("session.Destroy: ungrab: %w", err))
	}

	if err := s.phys.Close(); err != nil {
		errs = append(errs, fmt.Errorf("session.Destroy: close: %w", err))
	}

	return errors.Join(errs...)
}

func (s *Session) run() {
	defer s.wg.Done()

	for s.running.Load() {
		ev, err := s.phys.ReadEvent()
		if err != nil {
			return
		}

		if !s.running.Load() {
			return
		}

		s.classify(ev)
	}
}

// classify edge-filters target-key records into the Manager callback and,
// unless the Session is exclusive, also passes them through to the
// mirror; every other record is passed through verbatim.
func (s *Session) classify(ev linuxinput.Event) {
	var isTarget bool = ev.Type == uint16(linuxinput.EV_KEY) && linuxinput.Code(ev.Code) == s.config.TargetKey

	if isTarget {
		s.filterEdge(ev)

		if s.config.Exclusive {
			return
		}
	}

	s.passthrough(ev)
}

// filterEdge invokes the callback only when the pressed state of ev (value
// non-zero) differs from that of the last observed value on the target
// key, so auto-repeat (value 2 after 1) is dropped; the initial value is
// assumed released.
func (s *Session) filterEdge(ev linuxinput.Event) {
	var (
		pressed bool = ev.Value != 0
		last    int32
	)

	last = s.lastValue.Swap(ev.Value)
	if (last != 0) == pressed {
		return
	}

	s.invokeCallback(pressed)
}

// invokeCallback calls the currently installed EventFunc, if any, recovering
// from a panic inside it so one faulty consumer cannot take down the
// Session's listener goroutine.
func (s *Session) invokeCallback(pressed bool) {
	defer func() {
		recover()
	}()

	cb := s.callback.Load()
	if cb == nil || *cb == nil {
		return
	}

	(*cb)(s.config.TargetKey, pressed)
}

// passthrough writes ev to the mirror followed by a synthetic SYN_REPORT,
// emitted unconditionally so multi-event reports stay well-formed even
// when the source device coalesces its own SYN_REPORT differently.
func (s *Session) passthrough(ev linuxinput.Event) {
	s.writeMirror(ev)
	s.writeMirror(linuxinput.SynReport())
}

func (s *Session) writeMirror(ev linuxinput.Event) {
	// Drops under extreme backpressure on the non-blocking uinput fd are
	// acceptable here; errors are otherwise not actionable from inside
	// the listener goroutine.
	_ = s.mirror.WriteEvent(ev)
}
