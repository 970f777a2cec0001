//go:build portaudio

package audioeffect

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// framesPerBuffer matches the low-latency frame size used throughout the
// pack's own portaudio-based audio engines.
const framesPerBuffer = 960

// PortAudio is a Sink backed by github.com/gordonklaus/portaudio: it
// plays raw float32 PCM cue files from a directory and tracks a muted
// flag that suppresses cue playback. It does not mute any loopback or
// microphone stream itself.
type PortAudio struct {
	CueDir string

	mu    sync.Mutex
	muted bool
}

// NewPortAudio initializes the PortAudio library and returns a Sink
// reading cue files from cueDir. Callers must call Close when done.
func NewPortAudio(cueDir string) (*PortAudio, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("audioeffect.NewPortAudio: %w", err)
	}

	return &PortAudio{CueDir: cueDir}, nil
}

// Close terminates the PortAudio library.
func (p *PortAudio) Close() error {
	if err := portaudio.Terminate(); err != nil {
		return fmt.Errorf("audioeffect.PortAudio.Close: %w", err)
	}

	return nil
}

// PlayCue reads name+".raw" from CueDir as raw float32 PCM and plays it
// through the default output device.
func (p *PortAudio) PlayCue(name string) error {
	p.mu.Lock()
	muted := p.muted
	p.mu.Unlock()

	if muted {
		return nil
	}

	samples, err := readCue(filepath.Join(p.CueDir, name+".raw"))
	if err != nil {
		return fmt.Errorf("audioeffect.PlayCue: %w", err)
	}

	stream, err := portaudio.OpenDefaultStream(0, 1, 48000, framesPerBuffer, samples)
	if err != nil {
		return fmt.Errorf("audioeffect.PlayCue: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("audioeffect.PlayCue: %w", err)
	}
	defer stream.Stop()

	if err := stream.Write(); err != nil {
		return fmt.Errorf("audioeffect.PlayCue: %w", err)
	}

	return nil
}

// SetMuted suppresses subsequent PlayCue calls until unmuted.
func (p *PortAudio) SetMuted(muted bool) error {
	p.mu.Lock()
	p.muted = muted
	p.mu.Unlock()

	return nil
}

func readCue(path string) ([]float32, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("audioeffect.readCue: %w", err)
	}

	samples := make([]float32, len(raw)/4)
	for i := range samples {
		bits := uint32(raw[i*4]) | uint32(raw[i*4+1])<<8 | uint32(raw[i*4+2])<<16 | uint32(raw[i*4+3])<<24
		samples[i] = math.Float32frombits(bits)
	}

	return samples, nil
}
