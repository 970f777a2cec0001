package udevwatch

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeDeviceEvent struct {
	action  string
	syspath string
}

func (f fakeDeviceEvent) Action() string  { return f.action }
func (f fakeDeviceEvent) Syspath() string { return f.syspath }

type fakeWaker struct {
	woken int32
}

func (f *fakeWaker) Wake() { atomic.AddInt32(&f.woken, 1) }

func withFakeMonitor(t *testing.T, events []deviceEvent) {
	t.Helper()

	orig := openMonitor
	openMonitor = func(ctx context.Context) (<-chan deviceEvent, error) {
		out := make(chan deviceEvent, len(events))
		for _, ev := range events {
			out <- ev
		}
		close(out)

		return out, nil
	}
	t.Cleanup(func() { openMonitor = orig })
}

func TestRunWakesOnAddEventsOnly(t *testing.T) {
	withFakeMonitor(t, []deviceEvent{
		fakeDeviceEvent{action: "add", syspath: "/devices/virtual/input/event3"},
		fakeDeviceEvent{action: "remove", syspath: "/devices/virtual/input/event3"},
		fakeDeviceEvent{action: "add", syspath: "/devices/virtual/input/event4"},
	})

	w := &fakeWaker{}
	watcher := New(w)

	err := watcher.Run(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 2, w.woken)
}

func TestRunReturnsWhenContextCancelled(t *testing.T) {
	orig := openMonitor
	openMonitor = func(ctx context.Context) (<-chan deviceEvent, error) {
		out := make(chan deviceEvent)
		return out, nil
	}
	t.Cleanup(func() { openMonitor = orig })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	w := &fakeWaker{}
	watcher := New(w)

	err := watcher.Run(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 0, w.woken)
}

func TestRunPropagatesOpenMonitorError(t *testing.T) {
	orig := openMonitor
	openMonitor = func(ctx context.Context) (<-chan deviceEvent, error) {
		return nil, context.DeadlineExceeded
	}
	t.Cleanup(func() { openMonitor = orig })

	watcher := New(&fakeWaker{})

	err := watcher.Run(context.Background())
	require.Error(t, err)
}
