package protocol_test

import (
	"bytes"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GeorgeV220/PushToTalk/protocol"
)

// Invariant 4: for a header and payload, WritePacket followed by
// ReadPacket through a buffer yields them back exactly.
func TestWritePacketReadPacketRoundTrip(t *testing.T) {
	var buf bytes.Buffer

	payload := []byte{0x01, 0x02, 0x03, 0x04}

	require.NoError(t, protocol.WritePacket(&buf, protocol.ChannelEvents, uint16(protocol.KeyEvent), payload, 0))

	header, got, err := protocol.ReadPacket(&buf)
	require.NoError(t, err)
	assert.Equal(t, protocol.ChannelEvents, header.Channel)
	assert.Equal(t, uint16(protocol.KeyEvent), header.Type)
	assert.Equal(t, uint32(len(payload)), header.Length)
	assert.Equal(t, payload, got)
}

func TestWritePacketZeroLengthPayload(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, protocol.WritePacket(&buf, protocol.ChannelControl, uint16(protocol.Handshake), nil, 0))

	header, payload, err := protocol.ReadPacket(&buf)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), header.Length)
	assert.Empty(t, payload)
}

func TestReadPacketShortHeaderIsError(t *testing.T) {
	buf := bytes.NewReader([]byte{0x01, 0x02})

	_, _, err := protocol.ReadPacket(buf)
	require.Error(t, err)
}

func TestReadPacketShortPayloadIsError(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, protocol.WritePacket(&buf, protocol.ChannelEvents, uint16(protocol.KeyEvent), []byte{1, 2, 3, 4, 5, 6, 7, 8}, 0))

	truncated := bytes.NewReader(buf.Bytes()[:len(buf.Bytes())-2])

	_, _, err := protocol.ReadPacket(truncated)
	require.Error(t, err)
}

func TestDeviceConfigRoundTrip(t *testing.T) {
	cfg := protocol.DeviceConfig{
		VendorID:  0x046d,
		ProductID: 0xc077,
		UID:       0xDEADBEEF,
		TargetKey: 276,
		Exclusive: false,
	}

	enc := protocol.EncodeDeviceConfig(cfg)
	assert.Len(t, enc, protocol.DeviceConfigSize)

	got, err := protocol.DecodeDeviceConfig(enc[:])
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestDecodeDeviceConfigListRejectsMisalignedLength(t *testing.T) {
	_, err := protocol.DecodeDeviceConfigList(make([]byte, protocol.DeviceConfigSize+1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, protocol.ErrMalformedConfigList))
}

func TestDeviceConfigListRoundTrip(t *testing.T) {
	cfgs := []protocol.DeviceConfig{
		{VendorID: 1, ProductID: 2, UID: 3, TargetKey: 4, Exclusive: true},
		{VendorID: 5, ProductID: 6, UID: 7, TargetKey: 8, Exclusive: false},
	}

	got, err := protocol.DecodeDeviceConfigList(protocol.EncodeDeviceConfigList(cfgs))
	require.NoError(t, err)
	assert.Equal(t, cfgs, got)
}

func TestKeyEventRoundTrip(t *testing.T) {
	payload := protocol.KeyEventPayload{Key: 276, State: 1}

	enc := protocol.EncodeKeyEvent(payload)

	got, err := protocol.DecodeKeyEvent(enc[:])
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	assert.True(t, got.Pressed())
}

// S2: handshake and config intake over a connected pair.
func TestHandshakeAndConfigListOverPipe(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	done := make(chan struct{})

	go func() {
		defer close(done)

		payload, err := protocol.ExpectControl(server, protocol.Handshake)
		assert.NoError(t, err)
		assert.Empty(t, payload)
		assert.NoError(t, protocol.SendAck(server))

		payload, err = protocol.ExpectControl(server, protocol.ConfigList)
		assert.NoError(t, err)

		cfgs, err := protocol.DecodeDeviceConfigList(payload)
		assert.NoError(t, err)
		assert.Len(t, cfgs, 1)
		assert.NoError(t, protocol.SendAck(server))
	}()

	require.NoError(t, protocol.SendHandshake(client))
	_, err := protocol.ExpectControl(client, protocol.Ack)
	require.NoError(t, err)

	require.NoError(t, protocol.SendConfigList(client, []protocol.DeviceConfig{
		{VendorID: 0x046d, ProductID: 0xc077, UID: 0xDEADBEEF, TargetKey: 276, Exclusive: false},
	}))
	_, err = protocol.ExpectControl(client, protocol.Ack)
	require.NoError(t, err)

	<-done
}

// S3: a KEY_EVENT packet decodes to the press/release transition the
// sender encoded.
func TestSendKeyEventOverPipe(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	go func() {
		assert.NoError(t, protocol.SendKeyEvent(server, 276, true))
	}()

	header, payload, err := protocol.ReadPacket(client)
	require.NoError(t, err)
	assert.Equal(t, protocol.ChannelEvents, header.Channel)
	assert.Equal(t, uint16(protocol.KeyEvent), header.Type)

	ev, err := protocol.DecodeKeyEvent(payload)
	require.NoError(t, err)
	assert.Equal(t, int32(276), ev.Key)
	assert.True(t, ev.Pressed())
}

func TestExpectControlRejectsWrongType(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, protocol.SendPing(&buf))

	_, err := protocol.ExpectControl(&buf, protocol.Ack)
	require.Error(t, err)
	assert.True(t, errors.Is(err, protocol.ErrProtocolViolation))
}
