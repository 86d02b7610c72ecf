package sound

import (
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"

	"alarm-manager/internal/domain"
)

// CommandPlayer plays ringtone files with an external program such as
// afplay, paplay or aplay, restarting it until stopped.
// This is a secondary adapter.
type CommandPlayer struct {
	name string
	args []string
	log  *zap.Logger
}

var _ domain.SoundPlayer = (*CommandPlayer)(nil)

// NewCommandPlayer creates a player that runs argv followed by the ringtone path.
func NewCommandPlayer(argv []string, logger *zap.Logger) (*CommandPlayer, error) {
	if len(argv) == 0 || argv[0] == "" {
		return nil, errors.New("sound command is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommandPlayer{name: argv[0], args: argv[1:], log: logger}, nil
}

// Play requires a file ringtone; the built-in tone has no file to hand over.
func (c *CommandPlayer) Play(ringtoneRef string) (domain.Playback, error) {
	path, err := resolvePath(ringtoneRef)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return nil, fmt.Errorf("%s cannot play the default tone", c.name)
	}
	if _, err := exec.LookPath(c.name); err != nil {
		return nil, fmt.Errorf("sound command: %w", err)
	}

	pb := &commandPlayback{stop: make(chan struct{}), done: make(chan struct{})}
	go pb.loop(c, path)
	return pb, nil
}

type commandPlayback struct {
	mu   sync.Mutex
	cmd  *exec.Cmd
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func (pb *commandPlayback) loop(c *CommandPlayer, path string) {
	defer close(pb.done)

	for {
		cmd := exec.Command(c.name, append(append([]string(nil), c.args...), path)...)

		pb.mu.Lock()
		select {
		case <-pb.stop:
			pb.mu.Unlock()
			return
		default:
		}
		err := cmd.Start()
		pb.cmd = cmd
		pb.mu.Unlock()
		if err != nil {
			c.log.Warn("sound command failed to start", zap.String("command", c.name), zap.Error(err))
			return
		}

		started := time.Now()
		if err := cmd.Wait(); err != nil {
			select {
			case <-pb.stop:
				return
			default:
			}
			c.log.Warn("sound command failed", zap.String("command", c.name), zap.Error(err))
			// Avoid spinning on a command that fails immediately.
			if time.Since(started) < time.Second {
				return
			}
		}
	}
}

func (pb *commandPlayback) Stop() {
	pb.once.Do(func() {
		pb.mu.Lock()
		close(pb.stop)
		if pb.cmd != nil && pb.cmd.Process != nil {
			_ = pb.cmd.Process.Kill()
		}
		pb.mu.Unlock()
	})
	<-pb.done
}
