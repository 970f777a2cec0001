//go:build linux

package input

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/GeorgeV220/PushToTalk/linux/ioctl"
	"golang.org/x/sys/unix"
)

// Device represents an opened evdev input device (a `/dev/input/eventN` file).
type Device struct {
	file *os.File
	fd   uintptr
}

// NewDevice opens the evdev device at the given path and returns a Device.
// The path is cleaned before opening, and the device file is opened
// in read-write mode so that the caller may issue EVIOCGRAB. The caller is
// responsible for closing the device when no longer needed.
func NewDevice(path string) (*Device, error) {
	var (
		device *Device
		file   *os.File
		err    error
	)

	file, err = os.OpenFile(filepath.Clean(path), os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("input.NewDevice: %w", err)
	}

	device = &Device{
		file: file,
		fd:   file.Fd(),
	}

	return device, nil
}

// Devices scans /dev/input for event devices and opens each one, returning
// a slice of Device pointers. Candidates that fail to open (EACCES,
// transient removal) are skipped silently rather than failing the whole
// scan, matching the skip-problematic-devices behavior of [device.Resolve].
func Devices() ([]*Device, error) {
	var (
		devices []*Device
		device  *Device
		paths   []string
		path    string
		err     error
	)

	paths, err = filepath.Glob("/dev/input/event*")
	if err != nil {
		return nil, fmt.Errorf("input.Devices: %w", err)
	}

	devices = make([]*Device, 0, len(paths))
	for _, path = range paths {
		device, err = NewDevice(path)
		if err != nil {
			continue
		}

		devices = append(devices, device)
	}

	return devices, nil
}

// Fd returns the underlying file descriptor.
func (dev *Device) Fd() uintptr {
	return dev.fd
}

// Name returns the human-readable name of the evdev device.
// It sends the [EVIOCGNAME] ioctl to read up to 256 bytes and
// converts the null-terminated result into a Go string.
func (dev *Device) Name() (string, error) {
	var (
		buf []byte
		err error
	)

	buf = make([]byte, 256)

	err = ioctl.Any(dev.fd, EVIOCGNAME(256), &buf[0])
	if err != nil {
		return "", fmt.Errorf("Device.Name: %w", err)
	}

	return unix.ByteSliceToString(buf), nil
}

// Events returns a slice of all supported event types for the device,
// except EV_REP, which is never included.
func (dev *Device) Events() ([]EventType, error) {
	var (
		buf       []byte
		events    []EventType
		eventType EventType
		err       error
	)

	buf = make([]byte, (EV_MAX+7)/8)

	err = ioctl.Any(
		dev.fd,
		EVIOCGBIT(0, uint(len(buf))),
		&buf[0],
	)
	if err != nil {
		return nil, fmt.Errorf("Device.Events: %w", err)
	}

	events = make([]EventType, 0, EV_CNT)

	for eventType = range EventType(EV_CNT) {
		if !TestBit(buf, uint(eventType)) {
			continue
		}

		if eventType == EV_REP {
			continue
		}

		events = append(events, eventType)
	}

	return events, nil
}

// Codes returns all supported [Code] values for the given eventType.
func (dev *Device) Codes(eventType EventType) ([]Code, error) {
	var (
		buf            []byte
		codes          []Code
		maxCodes, code uint
		ok             bool
		err            error
	)

	maxCodes, ok = MaxCodes(eventType)
	if !ok {
		return nil, fmt.Errorf("Device.Codes: %w %d", ErrInvalidEventType, eventType)
	}

	buf = make([]byte, (maxCodes+7)/8)

	err = ioctl.Any(
		dev.fd,
		EVIOCGBIT(uint(eventType), uint(len(buf))),
		&buf[0],
	)
	if err != nil {
		return nil, fmt.Errorf("Device.Codes: %w", err)
	}

	codes = make([]Code, 0, maxCodes+1)

	for code = range maxCodes + 1 {
		if !TestBit(buf, code) {
			continue
		}

		codes = append(codes, Code(code))
	}

	return codes, nil
}

// AbsInfo queries the absinfo for the given absolute axis code.
func (dev *Device) AbsInfo(code Code) (AbsInfo, error) {
	var (
		info AbsInfo
		err  error
	)

	err = ioctl.Any(dev.fd, EVIOCGABS(uint(code)), &info)
	if err != nil {
		return AbsInfo{}, fmt.Errorf("Device.AbsInfo: %w", err)
	}

	return info, nil
}

// ID returns the device's bus type, vendor, product and version via the
// [EVIOCGID] ioctl.
func (dev *Device) ID() (ID, error) {
	var (
		id  ID
		err error
	)

	err = ioctl.Any(dev.fd, EVIOCGID, &id)
	if err != nil {
		return ID{}, fmt.Errorf("Device.ID: %w", err)
	}

	return id, nil
}

// Grab issues EVIOCGRAB, exclusively claiming (on!=false) or releasing
// (on==false) dispatch of this device's events to the calling process.
func (dev *Device) Grab(on bool) error {
	var (
		arg int
		err error
	)

	if on {
		arg = 1
	}

	err = ioctl.Any(dev.fd, EVIOCGRAB(), &arg)
	if err != nil {
		return fmt.Errorf("Device.Grab: %w", err)
	}

	return nil
}

// ReadEvent blocks until one input_event record is available and decodes
// it. EINTR and EAGAIN are retried transparently.
func (dev *Device) ReadEvent() (Event, error) {
	var (
		raw [eventSize]byte
		n   int
		err error
	)

	for {
		n, err = dev.file.Read(raw[:])
		if err == nil {
			break
		}

		if err == unix.EINTR || err == unix.EAGAIN {
			continue
		}

		return Event{}, fmt.Errorf("Device.ReadEvent: %w", err)
	}

	if n != eventSize {
		return Event{}, fmt.Errorf("Device.ReadEvent: short read of %d bytes", n)
	}

	return decodeEvent(raw), nil
}

// Close closes the evdev device by closing its underlying file handle.
func (dev *Device) Close() error {
	var err error

	err = dev.file.Close()
	if err != nil {
		return fmt.Errorf("Device.Close: %w", err)
	}

	return nil
}
