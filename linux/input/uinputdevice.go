//go:build linux

package input

import (
	"fmt"
	"os"
	"path/filepath"
	"unsafe"

	"github.com/GeorgeV220/PushToTalk/linux/ioctl"
)

// uinputUserDevSize is the on-the-wire size of a uinput_user_dev record.
const uinputUserDevSize = int(unsafe.Sizeof(UinputUserDev{}))

// UinputPath is the character device used to create virtual input devices.
const UinputPath = "/dev/uinput"

// UinputDevice is a virtual input device created through /dev/uinput. Its
// capability bits must be declared with SetEvBit/SetKeyBit/... before
// [UinputDevice.Create] is called; after creation the capability set is
// immutable for the lifetime of the device.
type UinputDevice struct {
	file *os.File
	fd   uintptr
}

// NewUinputDevice opens /dev/uinput for writing. The caller declares
// capability bits on the returned device, then calls Create.
func NewUinputDevice() (*UinputDevice, error) {
	var (
		file *os.File
		err  error
	)

	file, err = os.OpenFile(filepath.Clean(UinputPath), os.O_WRONLY|os.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("input.NewUinputDevice: %w", err)
	}

	return &UinputDevice{file: file, fd: file.Fd()}, nil
}

// Fd returns the underlying file descriptor.
func (dev *UinputDevice) Fd() uintptr {
	return dev.fd
}

// SetEvBit declares that the device being built will support eventType.
func (dev *UinputDevice) SetEvBit(eventType EventType) error {
	var arg int = int(eventType)

	if err := ioctl.Any(dev.fd, UI_SET_EVBIT, &arg); err != nil {
		return fmt.Errorf("UinputDevice.SetEvBit: %w", err)
	}

	return nil
}

// SetKeyBit declares that the device being built will support the EV_KEY
// code.
func (dev *UinputDevice) SetKeyBit(code Code) error {
	var arg int = int(code)

	if err := ioctl.Any(dev.fd, UI_SET_KEYBIT, &arg); err != nil {
		return fmt.Errorf("UinputDevice.SetKeyBit: %w", err)
	}

	return nil
}

// SetRelBit declares that the device being built will support the EV_REL
// code.
func (dev *UinputDevice) SetRelBit(code Code) error {
	var arg int = int(code)

	if err := ioctl.Any(dev.fd, UI_SET_RELBIT, &arg); err != nil {
		return fmt.Errorf("UinputDevice.SetRelBit: %w", err)
	}

	return nil
}

// SetAbsBit declares that the device being built will support the EV_ABS
// code. The axis's absinfo must still be populated into the UinputUserDev
// passed to Create (or installed separately via UI_ABS_SETUP).
func (dev *UinputDevice) SetAbsBit(code Code) error {
	var arg int = int(code)

	if err := ioctl.Any(dev.fd, UI_SET_ABSBIT, &arg); err != nil {
		return fmt.Errorf("UinputDevice.SetAbsBit: %w", err)
	}

	return nil
}

// AbsSetup installs the absinfo for one EV_ABS code via UI_ABS_SETUP. This
// must be called after SetAbsBit and before Create.
func (dev *UinputDevice) AbsSetup(code Code, info AbsInfo) error {
	var setup UinputAbsSetup = UinputAbsSetup{Code: uint16(code), AbsInfo: info}

	if err := ioctl.Any(dev.fd, UI_ABS_SETUP, &setup); err != nil {
		return fmt.Errorf("UinputDevice.AbsSetup: %w", err)
	}

	return nil
}

// SetMscBit declares that the device being built will support the EV_MSC
// code.
func (dev *UinputDevice) SetMscBit(code Code) error {
	var arg int = int(code)

	if err := ioctl.Any(dev.fd, UI_SET_MSCBIT, &arg); err != nil {
		return fmt.Errorf("UinputDevice.SetMscBit: %w", err)
	}

	return nil
}

// SetLedBit declares that the device being built will support the EV_LED
// code.
func (dev *UinputDevice) SetLedBit(code Code) error {
	var arg int = int(code)

	if err := ioctl.Any(dev.fd, UI_SET_LEDBIT, &arg); err != nil {
		return fmt.Errorf("UinputDevice.SetLedBit: %w", err)
	}

	return nil
}

// Create writes user to /dev/uinput and issues UI_DEV_CREATE, publishing the
// virtual device to the input core. Capability bits must already have been
// declared through the Set*Bit methods.
func (dev *UinputDevice) Create(user *UinputUserDev) error {
	var (
		raw [uinputUserDevSize]byte
		err error
	)

	*(*UinputUserDev)(unsafe.Pointer(&raw[0])) = *user

	if _, err = dev.file.Write(raw[:]); err != nil {
		return fmt.Errorf("UinputDevice.Create: write uinput_user_dev: %w", err)
	}

	if err = ioctl.Any[int](dev.fd, UI_DEV_CREATE, nil); err != nil {
		return fmt.Errorf("UinputDevice.Create: %w", err)
	}

	return nil
}

// WriteEvent writes a single input_event record to the virtual device,
// injecting it into the kernel's input subsystem as if it had come from
// real hardware.
func (dev *UinputDevice) WriteEvent(ev Event) error {
	var raw [eventSize]byte = EncodeEvent(ev)

	if _, err := dev.file.Write(raw[:]); err != nil {
		return fmt.Errorf("UinputDevice.WriteEvent: %w", err)
	}

	return nil
}

// Destroy issues UI_DEV_DESTROY, removing the virtual device from the
// input core.
func (dev *UinputDevice) Destroy() error {
	if err := ioctl.Any[int](dev.fd, UI_DEV_DESTROY, nil); err != nil {
		return fmt.Errorf("UinputDevice.Destroy: %w", err)
	}

	return nil
}

// Close closes the underlying /dev/uinput file handle. It does not issue
// UI_DEV_DESTROY; callers that created a device should call Destroy first.
func (dev *UinputDevice) Close() error {
	if err := dev.file.Close(); err != nil {
		return fmt.Errorf("UinputDevice.Close: %w", err)
	}

	return nil
}
