package mirror

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	linuxinput "github.com/GeorgeV220/PushToTalk/linux/input"
)

type fakePhysical struct {
	events  []linuxinput.EventType
	codes   map[linuxinput.EventType][]linuxinput.Code
	absInfo map[linuxinput.Code]linuxinput.AbsInfo
}

func (f *fakePhysical) Events() ([]linuxinput.EventType, error) { return f.events, nil }

func (f *fakePhysical) Codes(eventType linuxinput.EventType) ([]linuxinput.Code, error) {
	return f.codes[eventType], nil
}

func (f *fakePhysical) AbsInfo(code linuxinput.Code) (linuxinput.AbsInfo, error) {
	info, ok := f.absInfo[code]
	if !ok {
		return linuxinput.AbsInfo{}, errors.New("no absinfo")
	}

	return info, nil
}

type fakeSink struct {
	evBits    []linuxinput.EventType
	keyBits   []linuxinput.Code
	absBits   []linuxinput.Code
	absSetups map[linuxinput.Code]linuxinput.AbsInfo
	created   *linuxinput.UinputUserDev
	events    []linuxinput.Event
	destroyed bool
	closed    bool
	inOrder   bool // Close ran after Destroy
}

func newFakeSink() *fakeSink {
	return &fakeSink{absSetups: map[linuxinput.Code]linuxinput.AbsInfo{}}
}

func (f *fakeSink) SetEvBit(eventType linuxinput.EventType) error {
	f.evBits = append(f.evBits, eventType)
	return nil
}

func (f *fakeSink) SetKeyBit(code linuxinput.Code) error {
	f.keyBits = append(f.keyBits, code)
	return nil
}

func (f *fakeSink) SetRelBit(linuxinput.Code) error { return nil }

func (f *fakeSink) SetAbsBit(code linuxinput.Code) error {
	f.absBits = append(f.absBits, code)
	return nil
}

func (f *fakeSink) SetMscBit(linuxinput.Code) error { return nil }
func (f *fakeSink) SetLedBit(linuxinput.Code) error { return nil }

func (f *fakeSink) AbsSetup(code linuxinput.Code, info linuxinput.AbsInfo) error {
	f.absSetups[code] = info
	return nil
}

func (f *fakeSink) Create(user *linuxinput.UinputUserDev) error {
	f.created = user
	return nil
}

func (f *fakeSink) WriteEvent(ev linuxinput.Event) error {
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeSink) Destroy() error { f.destroyed = true; return nil }
func (f *fakeSink) Close() error   { f.inOrder = f.destroyed; f.closed = true; return nil }

func withFakeSink(t *testing.T, sink *fakeSink) {
	t.Helper()

	orig := newUinputDevice
	newUinputDevice = func() (uinputSink, error) { return sink, nil }
	t.Cleanup(func() { newUinputDevice = orig })
}

func TestCreateDeclaresCapabilitiesAndAbsFallback(t *testing.T) {
	sink := newFakeSink()
	withFakeSink(t, sink)

	phys := &fakePhysical{
		events: []linuxinput.EventType{linuxinput.EV_KEY, linuxinput.EV_ABS},
		codes: map[linuxinput.EventType][]linuxinput.Code{
			linuxinput.EV_KEY: {30, 42},
			linuxinput.EV_ABS: {0},
		},
		absInfo: map[linuxinput.Code]linuxinput.AbsInfo{},
	}

	m, err := Create(phys)
	require.NoError(t, err)
	require.NotNil(t, m)

	require.ElementsMatch(t, []linuxinput.EventType{linuxinput.EV_KEY, linuxinput.EV_ABS}, sink.evBits)
	require.ElementsMatch(t, []linuxinput.Code{30, 42}, sink.keyBits)
	require.Equal(t, fallbackAbsInfo, sink.absSetups[0])
	require.NotNil(t, sink.created)
}

func TestCreateUsesRealAbsInfoWhenAvailable(t *testing.T) {
	sink := newFakeSink()
	withFakeSink(t, sink)

	want := linuxinput.AbsInfo{Minimum: 10, Maximum: 20, Fuzz: 1, Flat: 2, Resolution: 3}
	phys := &fakePhysical{
		events:  []linuxinput.EventType{linuxinput.EV_ABS},
		codes:   map[linuxinput.EventType][]linuxinput.Code{linuxinput.EV_ABS: {5}},
		absInfo: map[linuxinput.Code]linuxinput.AbsInfo{5: want},
	}

	_, err := Create(phys)
	require.NoError(t, err)
	require.Equal(t, want, sink.absSetups[5])
}

func TestDestroyOrdersDestroyBeforeClose(t *testing.T) {
	sink := newFakeSink()
	withFakeSink(t, sink)

	m, err := Create(&fakePhysical{})
	require.NoError(t, err)

	require.NoError(t, m.Destroy())
	require.True(t, sink.destroyed)
	require.True(t, sink.closed)
	require.True(t, sink.inOrder)
}

func TestWriteEventForwardsToSink(t *testing.T) {
	sink := newFakeSink()
	withFakeSink(t, sink)

	m, err := Create(&fakePhysical{})
	require.NoError(t, err)

	ev := linuxinput.Event{Type: linuxinput.EV_REL, Code: uint16(linuxinput.REL_X), Value: 3}
	require.NoError(t, m.WriteEvent(ev))
	require.Equal(t, []linuxinput.Event{ev}, sink.events)
}
