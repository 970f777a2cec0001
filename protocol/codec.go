package protocol

import (
	"errors"
	"fmt"
	"io"
)

// ErrProtocolViolation is returned when a packet of an unexpected channel
// or type is encountered where the protocol requires a specific one (e.g.
// during handshake).
var ErrProtocolViolation = errors.New("protocol: protocol violation")

// WritePacket writes a single frame — header then payload — to w, as two
// separate writes. A failure on the payload write leaves a partial frame
// (the header alone) on the stream, so callers must treat any error as
// grounds to drop the connection.
func WritePacket(w io.Writer, channel Channel, typ uint16, payload []byte, flags uint16) error {
	header := Header{Channel: channel, Type: typ, Length: uint32(len(payload)), Flags: flags}
	hdrBuf := header.encode()

	if _, err := w.Write(hdrBuf[:]); err != nil {
		return fmt.Errorf("protocol.WritePacket: write header: %w", err)
	}

	if len(payload) == 0 {
		return nil
	}

	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("protocol.WritePacket: write payload: %w", err)
	}

	return nil
}

// ReadPacket reads one frame from r: a Header followed by Header.Length
// payload bytes. It never returns a partial payload to the caller: either
// the full frame was read, or an error is returned and the returned values
// must be discarded.
func ReadPacket(r io.Reader) (Header, []byte, error) {
	var hdrBuf [headerSize]byte

	if _, err := io.ReadFull(r, hdrBuf[:]); err != nil {
		return Header{}, nil, fmt.Errorf("protocol.ReadPacket: read header: %w", err)
	}

	header := decodeHeader(hdrBuf)

	if header.Length == 0 {
		return header, nil, nil
	}

	payload := make([]byte, header.Length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Header{}, nil, fmt.Errorf("protocol.ReadPacket: read payload: %w", err)
	}

	return header, payload, nil
}

// SendHandshake writes a zero-length Control/HANDSHAKE packet.
func SendHandshake(w io.Writer) error {
	return WritePacket(w, ChannelControl, uint16(Handshake), nil, 0)
}

// SendAck writes a zero-length Control/ACK packet.
func SendAck(w io.Writer) error {
	return WritePacket(w, ChannelControl, uint16(Ack), nil, 0)
}

// SendError writes a Control/ERROR packet carrying msg as its payload.
func SendError(w io.Writer, msg string) error {
	return WritePacket(w, ChannelControl, uint16(Error), []byte(msg), 0)
}

// SendPing writes a zero-length Control/PING packet.
func SendPing(w io.Writer) error {
	return WritePacket(w, ChannelControl, uint16(Ping), nil, 0)
}

// SendPong writes a zero-length Control/PONG packet.
func SendPong(w io.Writer) error {
	return WritePacket(w, ChannelControl, uint16(Pong), nil, 0)
}

// SendConfigList writes a Control/CONFIG_LIST packet carrying cfgs.
func SendConfigList(w io.Writer, cfgs []DeviceConfig) error {
	return WritePacket(w, ChannelControl, uint16(ConfigList), EncodeDeviceConfigList(cfgs), 0)
}

// SendKeyEvent writes an Events/KEY_EVENT packet for key's press (pressed)
// or release (!pressed) transition.
func SendKeyEvent(w io.Writer, key int32, pressed bool) error {
	var state uint8
	if pressed {
		state = 1
	}

	payload := EncodeKeyEvent(KeyEventPayload{Key: key, State: state})

	return WritePacket(w, ChannelEvents, uint16(KeyEvent), payload[:], 0)
}

// ExpectControl reads one packet from r and verifies it is a
// Control-channel packet of the given type, returning its payload.
// Handshake and config intake both reduce to this shape: expect a
// specific control type, otherwise it's a protocol violation.
func ExpectControl(r io.Reader, want ControlType) ([]byte, error) {
	header, payload, err := ReadPacket(r)
	if err != nil {
		return nil, err
	}

	if header.Channel != ChannelControl || ControlType(header.Type) != want {
		return nil, fmt.Errorf("protocol.ExpectControl: %w: want type %d, got channel=%d type=%d",
			ErrProtocolViolation, want, header.Channel, header.Type)
	}

	return payload, nil
}
