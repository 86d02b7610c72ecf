package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/shlex"
	"go.uber.org/zap"

	"alarm-manager/internal/adapter/primary/remote"
	"alarm-manager/internal/adapter/secondary/notify"
	"alarm-manager/internal/adapter/secondary/repository"
	"alarm-manager/internal/adapter/secondary/sound"
	"alarm-manager/internal/adapter/secondary/timer"
	"alarm-manager/internal/config"
	"alarm-manager/internal/domain"
	"alarm-manager/internal/logging"
	"alarm-manager/internal/usecase"
)

// alarmBackend is what the one-shot commands drive: the local scheduler or a
// running server.
type alarmBackend interface {
	usecase.AlarmCommands
	State(id string) (domain.AlarmState, error)
}

// engine is a fully wired local scheduler. It holds the store lock until Close.
type engine struct {
	usecase.AlarmUseCase
	store      *repository.Store
	lock       *repository.StoreLock
	clock      *timer.Clock
	disconnect func()
}

func (e *engine) Close() {
	if e.disconnect != nil {
		e.disconnect()
	}
	if err := e.store.Close(); err != nil {
		logging.L().Warn("close alarm store", zap.Error(err))
	}
	if err := e.lock.Unlock(); err != nil {
		logging.L().Warn("release store lock", zap.String("path", e.lock.Path()), zap.Error(err))
	}
}

// residentLockWait is how long a daemon waits for a one-shot command to
// release the store.
const residentLockWait = 5 * time.Second

// buildEngine locks and opens the configured store and wires the scheduler.
// A resident engine (daemon, serve) gets the configured notifier and sound
// player; a one-shot engine logs and stays silent. When another engine holds
// the store the error is repository.ErrLocked.
func buildEngine(ctx context.Context, cfg config.Config, resident bool) (*engine, error) {
	log := logging.L()

	wait := time.Duration(0)
	if resident {
		wait = residentLockWait
	}
	lock, err := repository.Lock(ctx, storeOptions(cfg), wait)
	if err != nil {
		return nil, err
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	e := &engine{
		store: store,
		lock:  lock,
		clock: timer.NewClock(cfg.TimerResync(), log.Named("timer")),
	}
	log.Debug("alarm store opened", zap.String("source", store.Source), zap.String("lock", lock.Path()))

	ports := usecase.Ports{
		Repo:     store,
		Timers:   e.clock,
		Notifier: notify.NewLogNotifier(nil, log.Named("notify")),
		Sound:    sound.NewNoopPlayer(),
	}

	if resident {
		if err := wireResident(cfg, &ports, e, log); err != nil {
			e.Close()
			return nil, err
		}
	}

	uc, err := usecase.NewAlarmUseCase(ports, usecase.Options{
		SnoozeDelay:     cfg.SnoozeDelay(),
		AutoStop:        cfg.AutoStop(),
		DefaultRingtone: cfg.DefaultRingtone,
		Logger:          log.Named("scheduler"),
	})
	if err != nil {
		e.Close()
		return nil, err
	}
	e.AlarmUseCase = uc

	if err := uc.Start(ctx); err != nil {
		var unavailable *domain.TimerUnavailableError
		if !errors.As(err, &unavailable) {
			e.Close()
			return nil, err
		}
		log.Warn("some alarms could not be armed", zap.Error(err))
	}
	return e, nil
}

func storeOptions(cfg config.Config) repository.Options {
	return repository.Options{
		Backend:    repository.Backend(cfg.Store.Backend),
		Path:       cfg.Store.Path,
		SQLitePath: cfg.Store.SQLitePath,
		Namespace:  cfg.Store.Namespace,
		Redis: repository.RedisOptions{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
		},
	}
}

// openStore opens the configured backend without locking it.
func openStore(ctx context.Context, cfg config.Config) (*repository.Store, error) {
	store, err := repository.Open(ctx, storeOptions(cfg))
	if err != nil {
		return nil, fmt.Errorf("open alarm store: %w", err)
	}
	return store, nil
}

func wireResident(cfg config.Config, ports *usecase.Ports, e *engine, log *zap.Logger) error {
	switch cfg.Notifier.Kind {
	case config.NotifierMQTT:
		mq := cfg.Notifier.MQTT
		client, err := notify.Dial(notify.ClientOptions{
			Broker:   mq.Broker,
			ClientID: mq.ClientID,
			Username: mq.Username,
			Password: mq.Password,
			Timeout:  10 * time.Second,
		}, log.Named("mqtt"))
		if err != nil {
			return err
		}
		e.disconnect = client.Disconnect
		n := notify.NewMQTTNotifier(client, mq.TopicPrefix, mq.QoS, log.Named("notify"))
		ports.Notifier = n
		ports.Actions = n
		log.Info("notifications go to MQTT", zap.String("broker", mq.Broker), zap.String("prefix", mq.TopicPrefix))
	default:
		ports.Notifier = notify.NewLogNotifier(os.Stdout, log.Named("notify"))
	}

	switch cfg.Sound {
	case config.SoundOto:
		ports.Sound = sound.NewOtoPlayer(log.Named("sound"))
	case config.SoundCommand:
		argv, err := shlex.Split(cfg.SoundCommand)
		if err != nil {
			return fmt.Errorf("parse soundCommand: %w", err)
		}
		p, err := sound.NewCommandPlayer(argv, log.Named("sound"))
		if err != nil {
			return err
		}
		ports.Sound = p
	}
	return nil
}

// openBackend returns a remote client when --server is set. Otherwise it
// builds a one-shot local engine, or, when a daemon holds the store, a client
// for the daemon's API at cfg.HTTP.Addr. The returned address is the remote
// one in use, empty for a local engine; the returned function releases it.
func openBackend(ctx context.Context, cfg config.Config) (alarmBackend, string, func(), error) {
	if serverAddr != "" {
		return newRemote(serverAddr), serverAddr, func() {}, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	e, err := buildEngine(ctx, cfg, false)
	if errors.Is(err, repository.ErrLocked) {
		cancel()
		logging.L().Debug("alarm store is locked, using the daemon API", zap.String("addr", cfg.HTTP.Addr))
		return newRemote(cfg.HTTP.Addr), cfg.HTTP.Addr, func() {}, nil
	}
	if err != nil {
		cancel()
		return nil, "", nil, err
	}
	return e, "", func() {
		cancel()
		e.Close()
	}, nil
}

func newRemote(addr string) *remote.Client {
	return remote.NewClient(addr, 10*time.Second, logging.L().Named("remote"))
}

// rearmer is the part of the scheduler keepArmed drives.
type rearmer interface {
	RearmAll() error
}

// keepArmed periodically arms enabled alarms left without a timer, e.g. after
// a failed arm. pending reports the gateway's queue size for the log.
func keepArmed(ctx context.Context, r rearmer, every time.Duration, pending func() int) {
	tick := time.NewTicker(every)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			if err := r.RearmAll(); err != nil {
				logging.L().Warn("rearm alarms", zap.Error(err))
			}
			logging.L().Debug("timers pending", zap.Int("count", pending()))
		}
	}
}
