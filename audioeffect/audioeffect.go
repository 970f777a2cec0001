// Package audioeffect defines the narrow audio consumer contract
// cmd/ptt-client binds to the Proxy Client's on_key callback: playing a
// cue on each press and muting/unmuting a loopback sink. No core package
// (client, server, proxy, session, mirror) imports this package; only a
// cmd/ entry point wires a Sink into its callback.
package audioeffect

// Sink is the audio-effect consumer contract.
type Sink interface {
	// PlayCue plays the cue identified by name. name is whatever the
	// config source's Audio block names it.
	PlayCue(name string) error

	// SetMuted mutes or unmutes the configured loopback sink.
	SetMuted(muted bool) error
}

// Nop is a Sink that does nothing. It is the default when audio support
// is not compiled in (the "portaudio" build tag is absent) or when no
// audio cues are configured.
type Nop struct{}

func (Nop) PlayCue(string) error { return nil }
func (Nop) SetMuted(bool) error  { return nil }
