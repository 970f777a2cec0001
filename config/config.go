// Package config implements a reference, swappable config-source loader:
// a YAML document describing the devices to proxy and the opaque audio
// parameters cmd/ptt-client hands to package audioeffect. The core proxy
// packages (session, proxy, server, client) never import this package;
// they consume plain session.Config values however a caller obtains them.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/GeorgeV220/PushToTalk/device"
	linuxinput "github.com/GeorgeV220/PushToTalk/linux/input"
	"github.com/GeorgeV220/PushToTalk/session"
)

// Device is one YAML-described physical device entry.
type Device struct {
	// VendorID and ProductID are hex strings, e.g. "0x046d".
	VendorID string `yaml:"vendor_id"`
	ProductID string `yaml:"product_id"`

	// UID is the hex fingerprint string, e.g. "0xDEADBEEF".
	UID string `yaml:"uid"`

	// TargetKey is a symbolic evdev code name (e.g. "KEY_LEFTCTRL") or a
	// decimal/hex numeric code.
	TargetKey string `yaml:"target_key"`

	Exclusive bool `yaml:"exclusive"`
}

// Loopback describes PipeWire loopback parameters. Every field is opaque
// to the core and only meaningful to whatever audioeffect.Sink consumes
// it.
type Loopback struct {
	Sink   string `yaml:"sink"`
	Source string `yaml:"source"`
}

// Audio is the opaque audio block: cue file paths, volume, and loopback
// parameters. Nothing in this module's core reads it.
type Audio struct {
	CueDir   string   `yaml:"cue_dir"`
	Volume   float64  `yaml:"volume"`
	Loopback Loopback `yaml:"loopback"`
}

// Config is the top-level document: a list of devices plus the audio
// block.
type Config struct {
	Devices []Device `yaml:"devices"`
	Audio   Audio    `yaml:"audio"`
}

// Load reads and parses the YAML document at path.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config.Load: %w", err)
	}

	var cfg Config

	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("config.Load: %w", err)
	}

	return cfg, nil
}

// SessionConfigs converts every Device entry into a session.Config,
// resolving hex IDs and the symbolic target-key name.
func (c Config) SessionConfigs() ([]session.Config, error) {
	out := make([]session.Config, 0, len(c.Devices))

	for i, d := range c.Devices {
		sc, err := d.sessionConfig()
		if err != nil {
			return nil, fmt.Errorf("config.SessionConfigs: device %d: %w", i, err)
		}

		out = append(out, sc)
	}

	return out, nil
}

func (d Device) sessionConfig() (session.Config, error) {
	vendor, err := parseHex16(d.VendorID)
	if err != nil {
		return session.Config{}, fmt.Errorf("vendor_id: %w", err)
	}

	product, err := parseHex16(d.ProductID)
	if err != nil {
		return session.Config{}, fmt.Errorf("product_id: %w", err)
	}

	uid, err := parseHex32(d.UID)
	if err != nil {
		return session.Config{}, fmt.Errorf("uid: %w", err)
	}

	key, err := resolveKeyName(d.TargetKey)
	if err != nil {
		return session.Config{}, fmt.Errorf("target_key: %w", err)
	}

	return session.Config{
		Identity: device.Identity{
			VendorID:  vendor,
			ProductID: product,
			UID:       device.Fingerprint(uid),
		},
		TargetKey: key,
		Exclusive: d.Exclusive,
	}, nil
}

func parseHex16(s string) (uint16, error) {
	v, err := strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 16)
	if err != nil {
		return 0, fmt.Errorf("config.parseHex16: %w", err)
	}

	return uint16(v), nil
}

func parseHex32(s string) (uint32, error) {
	v, err := strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 32)
	if err != nil {
		return 0, fmt.Errorf("config.parseHex32: %w", err)
	}

	return uint32(v), nil
}

// keyNames maps the common subset of evdev KEY_*/BTN_* symbolic names a
// push-to-talk binding is realistically configured with. It is not
// exhaustive; resolveKeyName falls back to parsing s as a plain integer
// for any name not listed here.
var keyNames = map[string]linuxinput.Code{
	"KEY_ESC":        linuxinput.KEY_ESC,
	"KEY_TAB":        linuxinput.KEY_TAB,
	"KEY_LEFTCTRL":   linuxinput.KEY_LEFTCTRL,
	"KEY_RIGHTCTRL":  linuxinput.KEY_RIGHTCTRL,
	"KEY_LEFTSHIFT":  linuxinput.KEY_LEFTSHIFT,
	"KEY_RIGHTSHIFT": linuxinput.KEY_RIGHTSHIFT,
	"KEY_LEFTALT":    linuxinput.KEY_LEFTALT,
	"KEY_RIGHTALT":   linuxinput.KEY_RIGHTALT,
	"KEY_LEFTMETA":   linuxinput.KEY_LEFTMETA,
	"KEY_RIGHTMETA":  linuxinput.KEY_RIGHTMETA,
	"KEY_SPACE":      linuxinput.KEY_SPACE,
	"KEY_CAPSLOCK":   linuxinput.KEY_CAPSLOCK,
	"KEY_A":          linuxinput.KEY_A,
	"BTN_LEFT":       linuxinput.BTN_LEFT,
	"BTN_RIGHT":      linuxinput.BTN_RIGHT,
	"BTN_MIDDLE":     linuxinput.BTN_MIDDLE,
	"BTN_SIDE":       linuxinput.BTN_SIDE,
	"BTN_EXTRA":      linuxinput.BTN_EXTRA,
}

// resolveKeyName resolves s, a symbolic evdev code name or a plain
// integer, to its numeric code.
func resolveKeyName(s string) (linuxinput.Code, error) {
	if code, ok := keyNames[s]; ok {
		return code, nil
	}

	v, err := strconv.ParseInt(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("config.resolveKeyName: unrecognized key name %q: %w", s, err)
	}

	return linuxinput.Code(v), nil
}
