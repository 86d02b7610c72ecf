package sound

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"go.uber.org/zap"

	"alarm-manager/internal/domain"
)

// oto allows a single context per process.
var (
	otoCtx     *oto.Context
	otoCtxErr  error
	otoCtxOnce sync.Once
)

func audioContext() (*oto.Context, error) {
	otoCtxOnce.Do(func() {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: channelCount,
			Format:       oto.FormatSignedInt16LE,
		})
		if err != nil {
			otoCtxErr = fmt.Errorf("init audio context: %w", err)
			return
		}
		<-ready
		otoCtx = ctx
	})
	return otoCtx, otoCtxErr
}

// OtoPlayer loops ringtones through the system audio device.
type OtoPlayer struct {
	log *zap.Logger
}

var _ domain.SoundPlayer = (*OtoPlayer)(nil)

func NewOtoPlayer(logger *zap.Logger) *OtoPlayer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OtoPlayer{log: logger}
}

// Play starts looping the ringtone and returns immediately. An unplayable
// file falls back to the built-in tone so the alarm is never silent.
func (p *OtoPlayer) Play(ringtoneRef string) (domain.Playback, error) {
	ctx, err := audioContext()
	if err != nil {
		return nil, err
	}

	pcm, err := loadRingtone(ringtoneRef)
	if err != nil {
		p.log.Warn("ringtone unplayable, using default tone", zap.String("ringtone", ringtoneRef), zap.Error(err))
		pcm = defaultTone()
	}

	pb := &otoPlayback{stop: make(chan struct{}), done: make(chan struct{}), log: p.log}
	go pb.loop(ctx, pcm)
	return pb, nil
}

type otoPlayback struct {
	stop chan struct{}
	done chan struct{}
	once sync.Once
	log  *zap.Logger
}

func (pb *otoPlayback) loop(ctx *oto.Context, pcm []byte) {
	defer close(pb.done)

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		player := ctx.NewPlayer(bytes.NewReader(pcm))
		player.Play()

		for player.IsPlaying() {
			select {
			case <-pb.stop:
				player.Pause()
				player.Close()
				return
			case <-ticker.C:
			}
		}
		if err := player.Close(); err != nil {
			pb.log.Debug("close audio player", zap.Error(err))
		}

		select {
		case <-pb.stop:
			return
		default:
		}
	}
}

// Stop silences the ringtone and waits for the player to be released.
func (pb *otoPlayback) Stop() {
	pb.once.Do(func() {
		close(pb.stop)
	})
	<-pb.done
}
