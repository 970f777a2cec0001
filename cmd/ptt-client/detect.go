package main

import (
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/GeorgeV220/PushToTalk/device"
	linuxinput "github.com/GeorgeV220/PushToTalk/linux/input"
)

// detection is one EV_KEY press observed on a device during detect mode.
type detection struct {
	id   linuxinput.ID
	uid  device.Fingerprint
	name string
}

// runDetect scans every /dev/input/event* device, waits for the first
// EV_KEY press on any of them, and reports the emitting device's vendor,
// product, generated uid, name, and a ready-to-paste "vendor:product:uid"
// string. It never grabs a device.
func runDetect(logger *log.Logger) error {
	devices, err := linuxinput.Devices()
	if err != nil {
		return fmt.Errorf("runDetect: %w", err)
	}

	defer func() {
		for _, dev := range devices {
			dev.Close()
		}
	}()

	logger.Info("waiting for a key press on any input device", "count", len(devices))

	found := make(chan detection, 1)

	for _, dev := range devices {
		go watchForPress(dev, found)
	}

	hit := <-found

	fmt.Printf("vendor:    0x%04x\n", hit.id.Vendor)
	fmt.Printf("product:   0x%04x\n", hit.id.Product)
	fmt.Printf("uid:       0x%08x\n", uint32(hit.uid))
	fmt.Printf("name:      %s\n", hit.name)
	fmt.Printf("paste-me:  0x%04x:0x%04x:0x%08x\n", hit.id.Vendor, hit.id.Product, uint32(hit.uid))

	return nil
}

// watchForPress blocks reading dev's event stream until an EV_KEY press
// (value == 1) arrives, then reports it on found. Any read error (device
// unplugged, etc.) simply ends the goroutine without reporting. EV_ABS
// motion never triggers a report, only an EV_KEY press.
func watchForPress(dev *linuxinput.Device, found chan<- detection) {
	for {
		ev, err := dev.ReadEvent()
		if err != nil {
			return
		}

		if ev.Type != linuxinput.EV_KEY || ev.Value != 1 {
			continue
		}

		id, err := dev.ID()
		if err != nil {
			continue
		}

		caps, err := device.Probe(dev)
		if err != nil {
			continue
		}

		select {
		case found <- detection{id: id, uid: device.ComputeFingerprint(caps), name: caps.Name}:
		default:
		}

		return
	}
}
