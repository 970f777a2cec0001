// Package protocol implements the length-delimited frame codec exchanged
// between the Proxy Server and Proxy Client over the local Unix-domain
// socket: packet header encode/decode, the DeviceConfig and KeyEvent
// payload shapes, and the read/write primitives built on top of a
// net.Conn. Framing uses host byte order throughout; this is a deliberate
// simplification valid only because the transport never leaves the host
// between a proxy server and its client.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Channel identifies which logical stream a Packet belongs to.
type Channel uint16

// Channels recognized by the protocol.
const (
	ChannelControl Channel = 1
	ChannelEvents  Channel = 2
	// ChannelLog is reserved on the wire but has no reader or
	// writer anywhere in this package; nothing sends or expects a
	// Log-channel packet.
	ChannelLog Channel = 3
)

// ControlType identifies the payload kind of a Control-channel packet.
type ControlType uint16

// Control packet types.
const (
	Handshake  ControlType = 1
	ConfigList ControlType = 2
	Ack        ControlType = 3
	Error      ControlType = 4
	Ping       ControlType = 5
	Pong       ControlType = 6
)

// EventType identifies the payload kind of an Events-channel packet.
type EventType uint16

// Event packet types.
const (
	KeyEvent EventType = 1
)

// headerSize is the on-the-wire size of a Header.
const headerSize = 10

// Header is the fixed 10-byte frame header preceding every packet payload:
// channel, type, payload length, and flags, all in host byte order.
type Header struct {
	Channel Channel
	Type    uint16
	Length  uint32
	Flags   uint16
}

func (h Header) encode() [headerSize]byte {
	var buf [headerSize]byte

	binary.NativeEndian.PutUint16(buf[0:2], uint16(h.Channel))
	binary.NativeEndian.PutUint16(buf[2:4], h.Type)
	binary.NativeEndian.PutUint32(buf[4:8], h.Length)
	binary.NativeEndian.PutUint16(buf[8:10], h.Flags)

	return buf
}

func decodeHeader(buf [headerSize]byte) Header {
	return Header{
		Channel: Channel(binary.NativeEndian.Uint16(buf[0:2])),
		Type:    binary.NativeEndian.Uint16(buf[2:4]),
		Length:  binary.NativeEndian.Uint32(buf[4:8]),
		Flags:   binary.NativeEndian.Uint16(buf[8:10]),
	}
}

// keyEventSize is the on-the-wire size of a KEY_EVENT payload.
const keyEventSize = 8

// KeyEventPayload is the decoded form of a KEY_EVENT packet's payload.
type KeyEventPayload struct {
	Key   int32
	State uint8
}

// Pressed reports whether the payload represents a press (state != 0).
func (p KeyEventPayload) Pressed() bool {
	return p.State != 0
}

// EncodeKeyEvent renders p into its 8-byte wire form.
func EncodeKeyEvent(p KeyEventPayload) [keyEventSize]byte {
	var buf [keyEventSize]byte

	binary.NativeEndian.PutUint32(buf[0:4], uint32(p.Key))
	buf[4] = p.State

	return buf
}

// DecodeKeyEvent parses an 8-byte KEY_EVENT payload.
func DecodeKeyEvent(buf []byte) (KeyEventPayload, error) {
	if len(buf) != keyEventSize {
		return KeyEventPayload{}, fmt.Errorf("protocol.DecodeKeyEvent: expected %d bytes, got %d", keyEventSize, len(buf))
	}

	return KeyEventPayload{
		Key:   int32(binary.NativeEndian.Uint32(buf[0:4])),
		State: buf[4],
	}, nil
}

// DeviceConfigSize is the on-the-wire size of one DeviceConfig payload.
const DeviceConfigSize = 16

// DeviceConfig is the wire payload describing one physical device and the
// key interception policy to apply to it.
type DeviceConfig struct {
	VendorID  uint16
	ProductID uint16
	UID       uint32
	TargetKey int32
	Exclusive bool
}

// EncodeDeviceConfig renders c into its 16-byte wire form.
func EncodeDeviceConfig(c DeviceConfig) [DeviceConfigSize]byte {
	var buf [DeviceConfigSize]byte

	binary.NativeEndian.PutUint16(buf[0:2], c.VendorID)
	binary.NativeEndian.PutUint16(buf[2:4], c.ProductID)
	binary.NativeEndian.PutUint32(buf[4:8], c.UID)
	binary.NativeEndian.PutUint32(buf[8:12], uint32(c.TargetKey))

	if c.Exclusive {
		buf[12] = 1
	}

	return buf
}

// DecodeDeviceConfig parses a 16-byte DeviceConfig payload.
func DecodeDeviceConfig(buf []byte) (DeviceConfig, error) {
	if len(buf) != DeviceConfigSize {
		return DeviceConfig{}, fmt.Errorf("protocol.DecodeDeviceConfig: expected %d bytes, got %d", DeviceConfigSize, len(buf))
	}

	return DeviceConfig{
		VendorID:  binary.NativeEndian.Uint16(buf[0:2]),
		ProductID: binary.NativeEndian.Uint16(buf[2:4]),
		UID:       binary.NativeEndian.Uint32(buf[4:8]),
		TargetKey: int32(binary.NativeEndian.Uint32(buf[8:12])),
		Exclusive: buf[12] != 0,
	}, nil
}

// ErrMalformedConfigList is returned by DecodeDeviceConfigList when the
// payload length is not a multiple of DeviceConfigSize. Callers treat this
// as a protocol violation: send ERROR and close the connection.
var ErrMalformedConfigList = errors.New("protocol: CONFIG_LIST payload length is not a multiple of DeviceConfigSize")

// DecodeDeviceConfigList parses a CONFIG_LIST payload into its constituent
// DeviceConfig values.
func DecodeDeviceConfigList(buf []byte) ([]DeviceConfig, error) {
	if len(buf)%DeviceConfigSize != 0 {
		return nil, fmt.Errorf("protocol.DecodeDeviceConfigList: %w: length %d", ErrMalformedConfigList, len(buf))
	}

	out := make([]DeviceConfig, 0, len(buf)/DeviceConfigSize)
	for i := 0; i < len(buf); i += DeviceConfigSize {
		cfg, err := DecodeDeviceConfig(buf[i : i+DeviceConfigSize])
		if err != nil {
			return nil, fmt.Errorf("protocol.DecodeDeviceConfigList: %w", err)
		}

		out = append(out, cfg)
	}

	return out, nil
}

// EncodeDeviceConfigList renders cfgs as a single CONFIG_LIST payload.
func EncodeDeviceConfigList(cfgs []DeviceConfig) []byte {
	buf := make([]byte, 0, len(cfgs)*DeviceConfigSize)

	for _, cfg := range cfgs {
		enc := EncodeDeviceConfig(cfg)
		buf = append(buf, enc[:]...)
	}

	return buf
}
