package device

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	linuxinput "github.com/GeorgeV220/PushToTalk/linux/input"
)

// ErrNotFound is returned by Resolve when no /dev/input device currently
// matches the requested Identity.
var ErrNotFound error = errors.New("device: no matching input device found")

const sysClassInput = "/sys/class/input"

// candidate is one /sys/class/input/eventN entry paired with the
// /dev/input/eventN path it names.
type candidate struct {
	devicePath string
	sysfsPath  string
}

// candidates enumerates every /sys/class/input entry whose name begins with
// "event".
func candidates() ([]candidate, error) {
	var (
		entries []os.DirEntry
		out     []candidate
		err     error
	)

	entries, err = os.ReadDir(sysClassInput)
	if err != nil {
		return nil, fmt.Errorf("device.candidates: %w", err)
	}

	out = make([]candidate, 0, len(entries))
	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), "event") {
			continue
		}

		out = append(out, candidate{
			devicePath: filepath.Join("/dev/input", entry.Name()),
			sysfsPath:  filepath.Join(sysClassInput, entry.Name(), "device"),
		})
	}

	return out, nil
}

// readVendorProduct reads the sysfs id/vendor and id/product hex files for
// one candidate.
func readVendorProduct(sysfsPath string) (vendor, product uint16, err error) {
	var raw []byte

	raw, err = os.ReadFile(filepath.Join(sysfsPath, "id", "vendor"))
	if err != nil {
		return 0, 0, fmt.Errorf("device.readVendorProduct: %w", err)
	}

	vendor, err = parseHexID(string(raw))
	if err != nil {
		return 0, 0, err
	}

	raw, err = os.ReadFile(filepath.Join(sysfsPath, "id", "product"))
	if err != nil {
		return 0, 0, fmt.Errorf("device.readVendorProduct: %w", err)
	}

	product, err = parseHexID(string(raw))
	if err != nil {
		return 0, 0, err
	}

	return vendor, product, nil
}

// Resolve finds the /dev/input path whose (vendor, product) match identity
// and whose capability Fingerprint equals identity.UID. Candidates with
// mismatched vendor/product are skipped without opening the device.
// Candidates that can't be opened or probed (EACCES, transient removal) are
// skipped silently, matching the original's "skip problematic devices"
// behavior. Returns ErrNotFound if no candidate matches.
func Resolve(identity Identity) (string, error) {
	var (
		cands []candidate
		err   error
	)

	cands, err = candidates()
	if err != nil {
		return "", err
	}

	for _, cand := range cands {
		vendor, product, idErr := readVendorProduct(cand.sysfsPath)
		if idErr != nil {
			continue
		}

		if vendor != identity.VendorID || product != identity.ProductID {
			continue
		}

		fp, fpErr := fingerprintAt(cand.devicePath)
		if fpErr != nil {
			continue
		}

		if fp == identity.UID {
			return cand.devicePath, nil
		}
	}

	return "", fmt.Errorf("device.Resolve: %w: %+v", ErrNotFound, identity)
}

// fingerprintAt opens path, probes its capabilities, and computes its
// Fingerprint, closing the device before returning.
func fingerprintAt(path string) (Fingerprint, error) {
	var (
		dev  *linuxinput.Device
		caps Capabilities
		err  error
	)

	dev, err = linuxinput.NewDevice(path)
	if err != nil {
		return 0, err
	}
	defer dev.Close()

	caps, err = Probe(dev)
	if err != nil {
		return 0, err
	}

	return ComputeFingerprint(caps), nil
}
