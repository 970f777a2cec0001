package server_test

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GeorgeV220/PushToTalk/protocol"
	"github.com/GeorgeV220/PushToTalk/server"
)

// S2: handshake and config intake over a connected pair, followed by a
// PING/PONG exchange and a clean disconnect.
func TestServeConnHandshakeConfigAndPing(t *testing.T) {
	clientConn, serverConn := net.Pipe()

	srv := &server.Server{RetryPeriod: time.Hour}

	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.ServeConn(serverConn)
	}()

	require.NoError(t, protocol.SendHandshake(clientConn))
	_, err := protocol.ExpectControl(clientConn, protocol.Ack)
	require.NoError(t, err)

	require.NoError(t, protocol.SendConfigList(clientConn, []protocol.DeviceConfig{
		{VendorID: 0x046d, ProductID: 0xc077, UID: 0xDEADBEEF, TargetKey: 276, Exclusive: false},
	}))
	_, err = protocol.ExpectControl(clientConn, protocol.Ack)
	require.NoError(t, err)

	require.NoError(t, protocol.SendPing(clientConn))
	_, err = protocol.ExpectControl(clientConn, protocol.Pong)
	require.NoError(t, err)

	require.NoError(t, clientConn.Close())

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("ServeConn did not return after client disconnect")
	}
}

func TestServeConnRejectsBadHandshake(t *testing.T) {
	clientConn, serverConn := net.Pipe()

	srv := &server.Server{}

	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.ServeConn(serverConn)
	}()

	require.NoError(t, protocol.SendPing(clientConn))

	header, payload, err := protocol.ReadPacket(clientConn)
	require.NoError(t, err)
	assert.Equal(t, protocol.ChannelControl, header.Channel)
	assert.Equal(t, uint16(protocol.Error), header.Type)
	assert.NotEmpty(t, payload)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("ServeConn did not return after protocol violation")
	}
}

func TestServeConnRejectsMalformedConfigList(t *testing.T) {
	clientConn, serverConn := net.Pipe()

	srv := &server.Server{}

	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.ServeConn(serverConn)
	}()

	require.NoError(t, protocol.SendHandshake(clientConn))
	_, err := protocol.ExpectControl(clientConn, protocol.Ack)
	require.NoError(t, err)

	require.NoError(t, protocol.WritePacket(clientConn, protocol.ChannelControl, uint16(protocol.ConfigList), []byte{1, 2, 3}, 0))

	header, _, err := protocol.ReadPacket(clientConn)
	require.NoError(t, err)
	assert.Equal(t, uint16(protocol.Error), header.Type)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("ServeConn did not return after malformed CONFIG_LIST")
	}
}
