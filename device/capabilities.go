// Package device computes stable fingerprints for evdev input devices and
// resolves a (vendor, product, uid) identity back to a /dev/input path.
package device

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	linuxinput "github.com/GeorgeV220/PushToTalk/linux/input"
)

// Capabilities is the capability surface of one evdev device, as probed
// through the EVIOCGBIT/EVIOCGABS family of ioctls: its reported name, its
// supported EV_KEY/EV_REL codes, and its supported EV_ABS codes together
// with their absinfo.
type Capabilities struct {
	Name     string
	KeyCodes []linuxinput.Code
	RelCodes []linuxinput.Code
	AbsCodes []linuxinput.Code
	AbsInfo  map[linuxinput.Code]linuxinput.AbsInfo
}

// capabilitySource is the narrow surface Probe needs from a device. It is
// satisfied by *linuxinput.Device and by fakes in tests, so fingerprinting
// can be exercised without a real kernel device.
type capabilitySource interface {
	Name() (string, error)
	Codes(eventType linuxinput.EventType) ([]linuxinput.Code, error)
	AbsInfo(code linuxinput.Code) (linuxinput.AbsInfo, error)
}

// Probe reads the name and EV_KEY/EV_ABS/EV_REL capability sets of src.
// Ioctl failures on any one capability class are treated as "device
// advertises none of this class" rather than aborting the whole probe.
func Probe(src capabilitySource) (Capabilities, error) {
	var (
		caps Capabilities
		err  error
	)

	caps.Name, err = src.Name()
	if err != nil {
		caps.Name = "Unknown"
	}

	caps.KeyCodes, _ = src.Codes(linuxinput.EV_KEY)
	caps.RelCodes, _ = src.Codes(linuxinput.EV_REL)
	caps.AbsCodes, _ = src.Codes(linuxinput.EV_ABS)

	caps.AbsInfo = make(map[linuxinput.Code]linuxinput.AbsInfo, len(caps.AbsCodes))
	for _, code := range caps.AbsCodes {
		info, infoErr := src.AbsInfo(code)
		if infoErr != nil {
			continue
		}

		caps.AbsInfo[code] = info
	}

	return caps, nil
}

// canonical renders caps into the canonical ASCII string that [Fingerprint]
// hashes: "<name>:<num_keys>:" followed by "K<code>," for each ascending key
// code, "A<code>:<min>,<max>,<fuzz>,<flat>,<resolution>," for each ascending
// abs code, and "R<code>," for each ascending rel code, with the trailing
// comma stripped.
func canonical(caps Capabilities) string {
	var (
		b        strings.Builder
		keyCodes = sortedCodes(caps.KeyCodes)
		absCodes = sortedCodes(caps.AbsCodes)
		relCodes = sortedCodes(caps.RelCodes)
	)

	fmt.Fprintf(&b, "%s:%d:", caps.Name, len(keyCodes))

	for _, code := range keyCodes {
		fmt.Fprintf(&b, "K%d,", code)
	}

	for _, code := range absCodes {
		info := caps.AbsInfo[code]
		fmt.Fprintf(&b, "A%d:%d,%d,%d,%d,%d,",
			code, info.Minimum, info.Maximum, info.Fuzz, info.Flat, info.Resolution)
	}

	for _, code := range relCodes {
		fmt.Fprintf(&b, "R%d,", code)
	}

	return strings.TrimSuffix(b.String(), ",")
}

func sortedCodes(codes []linuxinput.Code) []linuxinput.Code {
	var out []linuxinput.Code = append([]linuxinput.Code(nil), codes...)

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })

	return out
}

// parseHexID parses a sysfs id file's contents (a hexadecimal string,
// typically newline-terminated) into a uint16.
func parseHexID(s string) (uint16, error) {
	var (
		v   uint64
		err error
	)

	v, err = strconv.ParseUint(strings.TrimSpace(s), 16, 16)
	if err != nil {
		return 0, fmt.Errorf("device.parseHexID: %w", err)
	}

	return uint16(v), nil
}
