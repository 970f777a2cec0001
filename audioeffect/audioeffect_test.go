package audioeffect_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/GeorgeV220/PushToTalk/audioeffect"
)

func TestNopSatisfiesSink(t *testing.T) {
	var sink audioeffect.Sink = audioeffect.Nop{}

	require.NoError(t, sink.PlayCue("press"))
	require.NoError(t, sink.SetMuted(true))
	require.NoError(t, sink.SetMuted(false))
}
