//go:build linux

package input

import "github.com/GeorgeV220/PushToTalk/linux/ioctl"

// UinputMaxNameSize is the size, in bytes, of the Name field of
// [UinputUserDev] (UINPUT_MAX_NAME_SIZE in linux/uinput.h).
const UinputMaxNameSize = 80

// absCnt is ABS_CNT, the number of absolute axis slots carried by
// [UinputUserDev].
const absCnt = ABS_MAX + 1

// UinputUserDev mirrors struct uinput_user_dev from linux/uinput.h. Writing
// this structure to an open /dev/uinput file descriptor (after declaring the
// device's capability bits) configures the virtual device; [UI_DEV_CREATE]
// then publishes it to the input core.
type UinputUserDev struct {
	Name         [UinputMaxNameSize]byte
	ID           ID
	FFEffectsMax uint32
	AbsMax       [absCnt]int32
	AbsMin       [absCnt]int32
	AbsFuzz      [absCnt]int32
	AbsFlat      [absCnt]int32
}

var (
	// UI_DEV_CREATE publishes a uinput device configured via UI_SET_*BIT
	// ioctls and a written [UinputUserDev] to the input core.
	UI_DEV_CREATE = ioctl.IO('U', 1)

	// UI_DEV_DESTROY removes a previously created uinput device.
	UI_DEV_DESTROY = ioctl.IO('U', 2)

	// UI_SET_EVBIT declares that the virtual device supports the given
	// event type (EV_KEY, EV_REL, EV_ABS, ...).
	UI_SET_EVBIT = ioctl.IOW('U', 100, int(0))

	// UI_SET_KEYBIT declares that the virtual device supports the given
	// EV_KEY code.
	UI_SET_KEYBIT = ioctl.IOW('U', 101, int(0))

	// UI_SET_RELBIT declares that the virtual device supports the given
	// EV_REL code.
	UI_SET_RELBIT = ioctl.IOW('U', 102, int(0))

	// UI_SET_ABSBIT declares that the virtual device supports the given
	// EV_ABS code.
	UI_SET_ABSBIT = ioctl.IOW('U', 103, int(0))

	// UI_SET_MSCBIT declares that the virtual device supports the given
	// EV_MSC code.
	UI_SET_MSCBIT = ioctl.IOW('U', 104, int(0))

	// UI_SET_LEDBIT declares that the virtual device supports the given
	// EV_LED code.
	UI_SET_LEDBIT = ioctl.IOW('U', 105, int(0))

	// UI_SET_FFBIT declares that the virtual device supports the given
	// EV_FF effect type.
	UI_SET_FFBIT = ioctl.IOW('U', 107, int(0))

	// UI_ABS_SETUP installs the absinfo for one absolute axis on a device
	// that has not yet been created, superseding the AbsMax/AbsMin/...
	// arrays of [UinputUserDev] for that axis.
	UI_ABS_SETUP = ioctl.IOW('U', 4, UinputAbsSetup{})
)

// UinputAbsSetup mirrors struct uinput_abs_setup from linux/uinput.h, used
// with the [UI_ABS_SETUP] ioctl.
type UinputAbsSetup struct {
	Code    uint16
	_       [2]byte // alignment padding to match the kernel's struct layout
	AbsInfo AbsInfo
}
