package sound

import "alarm-manager/internal/domain"

// NoopPlayer implements domain.SoundPlayer with no-op behavior.
// Useful for testing, one-shot CLI commands, or hosts without audio.
type NoopPlayer struct{}

// NewNoopPlayer creates a new silent player.
func NewNoopPlayer() *NoopPlayer {
	return &NoopPlayer{}
}

// Play does nothing and always succeeds.
func (n *NoopPlayer) Play(ringtoneRef string) (domain.Playback, error) {
	return noopPlayback{}, nil
}

type noopPlayback struct{}

func (noopPlayback) Stop() {}
