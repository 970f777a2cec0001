package session

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/GeorgeV220/PushToTalk/device"
	linuxinput "github.com/GeorgeV220/PushToTalk/linux/input"
)

type fakePhysicalDevice struct {
	mu       sync.Mutex
	events   chan linuxinput.Event
	grabbed  bool
	grabErr  error
	closed   bool
	closeErr error
	mir      *fakeMirrorSink
	inOrder  bool // Close ran after mir was destroyed
}

func newFakePhysicalDevice() *fakePhysicalDevice {
	return &fakePhysicalDevice{events: make(chan linuxinput.Event, 16)}
}

func (f *fakePhysicalDevice) Grab(on bool) error {
	if f.grabErr != nil {
		return f.grabErr
	}

	f.mu.Lock()
	f.grabbed = on
	f.mu.Unlock()

	return nil
}

func (f *fakePhysicalDevice) ReadEvent() (linuxinput.Event, error) {
	ev, ok := <-f.events
	if !ok {
		return linuxinput.Event{}, errors.New("device closed")
	}

	return ev, nil
}

func (f *fakePhysicalDevice) Close() error {
	f.mu.Lock()
	f.closed = true
	f.inOrder = f.mir != nil && f.mir.destroyed
	f.mu.Unlock()

	close(f.events)

	return f.closeErr
}

func (f *fakePhysicalDevice) Events() ([]linuxinput.EventType, error)                 { return nil, nil }
func (f *fakePhysicalDevice) Codes(linuxinput.EventType) ([]linuxinput.Code, error)   { return nil, nil }
func (f *fakePhysicalDevice) AbsInfo(linuxinput.Code) (linuxinput.AbsInfo, error)     { return linuxinput.AbsInfo{}, nil }

func (f *fakePhysicalDevice) isGrabbed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.grabbed
}

type fakeMirrorSink struct {
	mu        sync.Mutex
	events    []linuxinput.Event
	destroyed bool
	destroyErr error
}

func (f *fakeMirrorSink) WriteEvent(ev linuxinput.Event) error {
	f.mu.Lock()
	f.events = append(f.events, ev)
	f.mu.Unlock()

	return nil
}

func (f *fakeMirrorSink) Destroy() error {
	f.destroyed = true
	return f.destroyErr
}

func (f *fakeMirrorSink) writtenEvents() []linuxinput.Event {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]linuxinput.Event, len(f.events))
	copy(out, f.events)

	return out
}

func withFakeSession(t *testing.T, phys *fakePhysicalDevice, mir *fakeMirrorSink) {
	t.Helper()

	origOpen, origMirror, origResolve := openPhysicalDevice, createMirror, resolveIdentity

	openPhysicalDevice = func(string) (physicalDevice, error) { return phys, nil }
	createMirror = func(physicalDevice) (mirrorSink, error) { return mir, nil }
	resolveIdentity = func(device.Identity) (string, error) { return "/dev/input/event0", nil }

	t.Cleanup(func() {
		openPhysicalDevice, createMirror, resolveIdentity = origOpen, origMirror, origResolve
	})
}

func testConfig(exclusive bool) Config {
	return Config{
		Identity:  device.Identity{VendorID: 0x046d, ProductID: 0xc077},
		TargetKey: linuxinput.Code(linuxinput.KEY_LEFTCTRL),
		Exclusive: exclusive,
	}
}

func TestNewGrabsDeviceAndCreatesMirror(t *testing.T) {
	phys := newFakePhysicalDevice()
	mir := &fakeMirrorSink{}
	withFakeSession(t, phys, mir)

	var cb atomic.Pointer[EventFunc]

	s, err := New(testConfig(false), &cb)
	require.NoError(t, err)
	require.NotNil(t, s)
	require.True(t, phys.isGrabbed())
}

func TestDestroyOrdersMirrorDestroyBeforeDeviceClose(t *testing.T) {
	phys := newFakePhysicalDevice()
	mir := &fakeMirrorSink{}
	withFakeSession(t, phys, mir)

	var cb atomic.Pointer[EventFunc]

	s, err := New(testConfig(false), &cb)
	require.NoError(t, err)

	phys.mir = mir

	require.NoError(t, s.Destroy())
	require.True(t, mir.destroyed)
	require.True(t, phys.closed)
	require.True(t, phys.inOrder)
	require.False(t, phys.isGrabbed())
}

// TestClassifyEdgeFiltersTargetKey verifies that only transitions (not
// auto-repeat) on the target key reach the callback.
func TestClassifyEdgeFiltersTargetKey(t *testing.T) {
	phys := newFakePhysicalDevice()
	mir := &fakeMirrorSink{}
	withFakeSession(t, phys, mir)

	var cb atomic.Pointer[EventFunc]

	var presses, releases int32

	fn := EventFunc(func(key linuxinput.Code, pressed bool) {
		if pressed {
			atomic.AddInt32(&presses, 1)
		} else {
			atomic.AddInt32(&releases, 1)
		}
	})
	cb.Store(&fn)

	cfg := testConfig(false)
	s, err := New(cfg, &cb)
	require.NoError(t, err)

	s.classify(linuxinput.Event{Type: uint16(linuxinput.EV_KEY), Code: uint16(cfg.TargetKey), Value: 1})
	s.classify(linuxinput.Event{Type: uint16(linuxinput.EV_KEY), Code: uint16(cfg.TargetKey), Value: 2})
	s.classify(linuxinput.Event{Type: uint16(linuxinput.EV_KEY), Code: uint16(cfg.TargetKey), Value: 2})
	s.classify(linuxinput.Event{Type: uint16(linuxinput.EV_KEY), Code: uint16(cfg.TargetKey), Value: 0})

	require.Equal(t, int32(1), atomic.LoadInt32(&presses))
	require.Equal(t, int32(1), atomic.LoadInt32(&releases))
}

// TestClassifyExclusiveSuppressesPassthrough verifies that an exclusive
// Session never forwards target-key records to the mirror, while
// non-target records still pass through.
func TestClassifyExclusiveSuppressesPassthrough(t *testing.T) {
	phys := newFakePhysicalDevice()
	mir := &fakeMirrorSink{}
	withFakeSession(t, phys, mir)

	var cb atomic.Pointer[EventFunc]

	cfg := testConfig(true)
	s, err := New(cfg, &cb)
	require.NoError(t, err)

	s.classify(linuxinput.Event{Type: uint16(linuxinput.EV_KEY), Code: uint16(cfg.TargetKey), Value: 1})
	require.Empty(t, mir.writtenEvents())

	other := linuxinput.Event{Type: uint16(linuxinput.EV_KEY), Code: uint16(linuxinput.KEY_A), Value: 1}
	s.classify(other)

	events := mir.writtenEvents()
	require.Len(t, events, 2)
	require.Equal(t, other, events[0])
	require.Equal(t, linuxinput.SynReport(), events[1])
}

// TestClassifyNonExclusivePassesTargetKeyThrough verifies that a
// non-exclusive Session still mirrors target-key records alongside
// invoking the callback.
func TestClassifyNonExclusivePassesTargetKeyThrough(t *testing.T) {
	phys := newFakePhysicalDevice()
	mir := &fakeMirrorSink{}
	withFakeSession(t, phys, mir)

	var cb atomic.Pointer[EventFunc]

	cfg := testConfig(false)
	s, err := New(cfg, &cb)
	require.NoError(t, err)

	ev := linuxinput.Event{Type: uint16(linuxinput.EV_KEY), Code: uint16(cfg.TargetKey), Value: 1}
	s.classify(ev)

	events := mir.writtenEvents()
	require.Len(t, events, 2)
	require.Equal(t, ev, events[0])
	require.Equal(t, linuxinput.SynReport(), events[1])
}

func TestInvokeCallbackRecoversFromPanic(t *testing.T) {
	phys := newFakePhysicalDevice()
	mir := &fakeMirrorSink{}
	withFakeSession(t, phys, mir)

	var cb atomic.Pointer[EventFunc]

	fn := EventFunc(func(linuxinput.Code, bool) { panic("boom") })
	cb.Store(&fn)

	cfg := testConfig(false)
	s, err := New(cfg, &cb)
	require.NoError(t, err)

	require.NotPanics(t, func() {
		s.invokeCallback(true)
	})
}

func TestStartStopLifecycle(t *testing.T) {
	phys := newFakePhysicalDevice()
	mir := &fakeMirrorSink{}
	withFakeSession(t, phys, mir)

	var cb atomic.Pointer[EventFunc]

	var presses int32
	fn := EventFunc(func(linuxinput.Code, bool) { atomic.AddInt32(&presses, 1) })
	cb.Store(&fn)

	cfg := testConfig(false)
	s, err := New(cfg, &cb)
	require.NoError(t, err)

	s.Start()
	s.Start() // no-op, must not double-launch the listener

	phys.events <- linuxinput.Event{Type: uint16(linuxinput.EV_KEY), Code: uint16(cfg.TargetKey), Value: 1}

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&presses) == 1
	}, time.Second, time.Millisecond)

	s.Stop()
	require.NoError(t, s.Destroy())
}
