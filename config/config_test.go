package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GeorgeV220/PushToTalk/config"
	linuxinput "github.com/GeorgeV220/PushToTalk/linux/input"
)

const sampleYAML = `
devices:
  - vendor_id: "0x046d"
    product_id: "0xc077"
    uid: "0xDEADBEEF"
    target_key: "KEY_LEFTCTRL"
    exclusive: false
  - vendor_id: "0x1234"
    product_id: "0x5678"
    uid: "0x1"
    target_key: "97"
    exclusive: true
audio:
  cue_dir: /usr/share/ptt/cues
  volume: 0.8
  loopback:
    sink: ptt_sink
    source: ptt_source
`

func writeSample(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	return path
}

func TestLoadParsesDevicesAndAudio(t *testing.T) {
	path := writeSample(t)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	require.Len(t, cfg.Devices, 2)
	assert.Equal(t, "0x046d", cfg.Devices[0].VendorID)
	assert.Equal(t, "/usr/share/ptt/cues", cfg.Audio.CueDir)
	assert.Equal(t, 0.8, cfg.Audio.Volume)
	assert.Equal(t, "ptt_sink", cfg.Audio.Loopback.Sink)
}

func TestSessionConfigsResolvesSymbolicAndNumericKeys(t *testing.T) {
	path := writeSample(t)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	scs, err := cfg.SessionConfigs()
	require.NoError(t, err)
	require.Len(t, scs, 2)

	assert.Equal(t, uint16(0x046d), scs[0].Identity.VendorID)
	assert.Equal(t, uint16(0xc077), scs[0].Identity.ProductID)
	assert.Equal(t, linuxinput.Code(linuxinput.KEY_LEFTCTRL), scs[0].TargetKey)
	assert.False(t, scs[0].Exclusive)

	assert.Equal(t, linuxinput.Code(97), scs[1].TargetKey)
	assert.True(t, scs[1].Exclusive)
}

func TestSessionConfigsRejectsUnknownKeyName(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
devices:
  - vendor_id: "0x1"
    product_id: "0x2"
    uid: "0x3"
    target_key: "NOT_A_KEY"
`), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	_, err = cfg.SessionConfigs()
	require.Error(t, err)
}
