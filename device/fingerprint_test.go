package device

import (
	"testing"

	"github.com/stretchr/testify/require"

	linuxinput "github.com/GeorgeV220/PushToTalk/linux/input"
)

func fakeCaps() Capabilities {
	return Capabilities{
		Name:     "X",
		KeyCodes: []linuxinput.Code{42, 30},
		RelCodes: nil,
		AbsCodes: []linuxinput.Code{0},
		AbsInfo: map[linuxinput.Code]linuxinput.AbsInfo{
			0: {Minimum: 0, Maximum: 255, Fuzz: 0, Flat: 0, Resolution: 0},
		},
	}
}

func TestCanonicalMatchesReferenceString(t *testing.T) {
	require.Equal(t, "X:2:K30,K42,A0:0,255,0,0,0", canonical(fakeCaps()))
}

func TestFingerprintIsOrderIndependent(t *testing.T) {
	shuffled := fakeCaps()
	shuffled.KeyCodes = []linuxinput.Code{42, 30}

	reordered := fakeCaps()
	reordered.KeyCodes = []linuxinput.Code{30, 42}

	require.Equal(t, ComputeFingerprint(shuffled), ComputeFingerprint(reordered))
}

func TestFingerprintIsDeterministicAcrossCalls(t *testing.T) {
	caps := fakeCaps()

	require.Equal(t, ComputeFingerprint(caps), ComputeFingerprint(caps))
}

func TestFingerprintDiffersOnCapabilityChange(t *testing.T) {
	base := fakeCaps()

	changed := fakeCaps()
	changed.KeyCodes = append(changed.KeyCodes, 1)

	require.NotEqual(t, ComputeFingerprint(base), ComputeFingerprint(changed))
}
