// Package mirror creates uinput virtual devices that mirror the capability
// surface of a physical evdev device and re-emit its event traffic.
package mirror

import (
	"fmt"
	"sync/atomic"

	linuxinput "github.com/GeorgeV220/PushToTalk/linux/input"
)

// fallbackAbsInfo is installed for an absolute axis whose absinfo could not
// be queried from the physical device.
var fallbackAbsInfo = linuxinput.AbsInfo{Minimum: 0, Maximum: 255, Fuzz: 0, Flat: 0, Resolution: 0}

// virtualDeviceCounter assigns a monotonically increasing suffix to each
// mirror's name and a monotonically increasing product id, so that
// multiple mirrors coexisting on one host never collide.
var virtualDeviceCounter atomic.Uint32

// baseVendorID and baseProductID are the configured starting point for the
// monotonically increasing (vendor, product) pair each mirror needs.
const (
	baseVendorID  = 0x0001
	baseProductID = 0x0001
)

// physicalSource is the narrow capability surface Create needs from a
// physical device. It is satisfied by *linuxinput.Device and by fakes in
// tests, so mirror construction can be unit-tested without a real kernel
// device (design note: the Mirror must not be a method on Session, so this
// interface is the only coupling between them).
type physicalSource interface {
	Events() ([]linuxinput.EventType, error)
	Codes(eventType linuxinput.EventType) ([]linuxinput.Code, error)
	AbsInfo(code linuxinput.Code) (linuxinput.AbsInfo, error)
}

// uinputSink is the narrow surface Create needs from a uinput device. It is
// satisfied by *linuxinput.UinputDevice and by fakes in tests.
type uinputSink interface {
	SetEvBit(eventType linuxinput.EventType) error
	SetKeyBit(code linuxinput.Code) error
	SetRelBit(code linuxinput.Code) error
	SetAbsBit(code linuxinput.Code) error
	SetMscBit(code linuxinput.Code) error
	SetLedBit(code linuxinput.Code) error
	AbsSetup(code linuxinput.Code, info linuxinput.AbsInfo) error
	Create(user *linuxinput.UinputUserDev) error
	WriteEvent(ev linuxinput.Event) error
	Destroy() error
	Close() error
}

// Mirror is a uinput virtual device mirroring the capability surface of one
// physical evdev device.
type Mirror struct {
	sink uinputSink
}

// newUinputDevice is overridden in tests to avoid opening the real
// /dev/uinput character device.
var newUinputDevice = func() (uinputSink, error) {
	return linuxinput.NewUinputDevice()
}

// Create builds a uinput device mirroring phys's capability surface:
// it declares every event type phys advertises and the codes of its
// EV_KEY, EV_REL, EV_ABS, EV_MSC and EV_LED types (codes of other types,
// such as EV_SW or EV_FF, are not declared), installs absinfo
// (falling back to fallbackAbsInfo on query failure) for every EV_ABS code,
// then writes the uinput_user_dev and issues UI_DEV_CREATE. Any failure
// closes the partially configured uinput fd and returns mirror-unavailable.
func Create(phys physicalSource) (*Mirror, error) {
	var (
		sink  uinputSink
		types []linuxinput.EventType
		err   error
	)

	sink, err = newUinputDevice()
	if err != nil {
		return nil, fmt.Errorf("mirror.Create: open uinput: %w", err)
	}

	types, err = phys.Events()
	if err != nil {
		sink.Close()
		return nil, fmt.Errorf("mirror.Create: %w", err)
	}

	var hasFF bool
	for _, eventType := range types {
		if eventType == linuxinput.EV_FF {
			hasFF = true
		}

		if err = declareEventType(sink, phys, eventType); err != nil {
			sink.Close()
			return nil, fmt.Errorf("mirror.Create: %w", err)
		}
	}

	user := buildUinputUserDev(hasFF)

	if err = sink.Create(user); err != nil {
		sink.Close()
		return nil, fmt.Errorf("mirror.Create: %w", err)
	}

	return &Mirror{sink: sink}, nil
}

// declareEventType declares eventType itself, then, for EV_KEY, EV_REL,
// EV_ABS, EV_MSC and EV_LED, every code of that type phys advertises,
// mirroring setup_capabilities/setup_event_codes/
// set_virtual_bit from the reference implementation.
func declareEventType(sink uinputSink, phys physicalSource, eventType linuxinput.EventType) error {
	if err := sink.SetEvBit(eventType); err != nil {
		return err
	}

	codes, err := phys.Codes(eventType)
	if err != nil {
		// Not every event type enumerates codes (e.g. EV_SYN); absence of a
		// code set is not a failure of the whole mirror.
		return nil
	}

	for _, code := range codes {
		switch eventType {
		case linuxinput.EV_KEY:
			err = sink.SetKeyBit(code)
		case linuxinput.EV_REL:
			err = sink.SetRelBit(code)
		case linuxinput.EV_ABS:
			if err = sink.SetAbsBit(code); err == nil {
				err = sink.AbsSetup(code, absInfoOrFallback(phys, code))
			}
		case linuxinput.EV_MSC:
			err = sink.SetMscBit(code)
		case linuxinput.EV_LED:
			err = sink.SetLedBit(code)
		default:
			continue
		}

		if err != nil {
			return err
		}
	}

	return nil
}

// absInfoOrFallback queries phys for code's absinfo, returning
// fallbackAbsInfo if the query fails.
func absInfoOrFallback(phys physicalSource, code linuxinput.Code) linuxinput.AbsInfo {
	info, err := phys.AbsInfo(code)
	if err != nil {
		return fallbackAbsInfo
	}

	return info
}

// buildUinputUserDev constructs the uinput_user_dev record for a mirror
// device: a unique name, bus type USB, a monotonically increasing
// (vendor, product) pair, version 1, and ff_effects_max = 16 iff the
// physical device advertises EV_FF.
func buildUinputUserDev(hasFF bool) *linuxinput.UinputUserDev {
	var (
		n    uint32 = virtualDeviceCounter.Add(1)
		user linuxinput.UinputUserDev
	)

	copy(user.Name[:], fmt.Sprintf("PTT Virtual Device %d", n))

	user.ID = linuxinput.ID{
		Bustype: linuxinput.BUS_USB,
		Vendor:  baseVendorID,
		Product: uint16(baseProductID + n),
		Version: 1,
	}

	if hasFF {
		user.FFEffectsMax = 16
	}

	return &user
}

// WriteEvent forwards ev to the mirror's uinput fd.
func (m *Mirror) WriteEvent(ev linuxinput.Event) error {
	return m.sink.WriteEvent(ev)
}

// Destroy issues UI_DEV_DESTROY and closes the uinput fd, in that order.
func (m *Mirror) Destroy() error {
	destroyErr := m.sink.Destroy()
	closeErr := m.sink.Close()

	if destroyErr != nil {
		return fmt.Errorf("Mirror.Destroy: %w", destroyErr)
	}

	if closeErr != nil {
		return fmt.Errorf("Mirror.Destroy: %w", closeErr)
	}

	return nil
}
