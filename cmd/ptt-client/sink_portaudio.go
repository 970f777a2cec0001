//go:build portaudio

package main

import (
	"github.com/GeorgeV220/PushToTalk/audioeffect"
	"github.com/GeorgeV220/PushToTalk/config"
)

// newSink builds the audio effect Sink this binary was compiled with: a
// PortAudio-backed cue player reading from cfg.CueDir. The caller must
// invoke the returned cleanup func before exit.
func newSink(cfg config.Audio) (audioeffect.Sink, func(), error) {
	if cfg.CueDir == "" {
		return audioeffect.Nop{}, func() {}, nil
	}

	sink, err := audioeffect.NewPortAudio(cfg.CueDir)
	if err != nil {
		return nil, func() {}, err
	}

	return sink, func() { sink.Close() }, nil
}
