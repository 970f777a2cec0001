//go:build !portaudio

package main

import (
	"github.com/GeorgeV220/PushToTalk/audioeffect"
	"github.com/GeorgeV220/PushToTalk/config"
)

// newSink builds the audio effect Sink this binary was compiled with. The
// portaudio build tag is absent, so every configuration falls back to a
// no-op sink regardless of the Audio block.
func newSink(cfg config.Audio) (audioeffect.Sink, func(), error) {
	return audioeffect.Nop{}, func() {}, nil
}
