package config

import (
	"errors"
	"fmt"
	"strings"
)

// Normalize fills blank values with defaults and rejects unusable ones.
func Normalize(cfg Config) (Config, error) {
	def := DefaultConfig()

	cfg.Store.Backend = strings.ToLower(strings.TrimSpace(cfg.Store.Backend))
	switch cfg.Store.Backend {
	case "":
		cfg.Store.Backend = def.Store.Backend
	case BackendFile, BackendRedis, BackendSQLite:
	default:
		return cfg, fmt.Errorf("store.backend must be file, redis or sqlite, got %q", cfg.Store.Backend)
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = def.Store.Path
	}
	if cfg.Store.SQLitePath == "" {
		cfg.Store.SQLitePath = def.Store.SQLitePath
	}
	if cfg.Store.Namespace == "" {
		cfg.Store.Namespace = def.Store.Namespace
	}

	if cfg.SnoozeSeconds == 0 {
		cfg.SnoozeSeconds = DefaultSnoozeSeconds
	}
	if cfg.SnoozeSeconds < 60 {
		return cfg, fmt.Errorf("snoozeSeconds must be >=60")
	}
	if cfg.AutoStopSeconds == 0 {
		cfg.AutoStopSeconds = DefaultAutoStopSeconds
	}
	if cfg.AutoStopSeconds < 5 {
		return cfg, fmt.Errorf("autoStopSeconds must be >=5")
	}
	if cfg.TimerResyncSeconds == 0 {
		cfg.TimerResyncSeconds = DefaultTimerResyncSeconds
	}
	if cfg.TimerResyncSeconds < 1 {
		return cfg, fmt.Errorf("timerResyncSeconds must be >=1")
	}

	switch cfg.Notifier.Kind {
	case "":
		cfg.Notifier.Kind = NotifierLog
	case NotifierLog, NotifierMQTT:
	default:
		return cfg, fmt.Errorf("notifier.kind must be log or mqtt, got %q", cfg.Notifier.Kind)
	}
	if cfg.Notifier.MQTT.QoS > 2 {
		return cfg, fmt.Errorf("notifier.mqtt.qos must be 0, 1 or 2")
	}
	if cfg.Notifier.MQTT.TopicPrefix == "" {
		cfg.Notifier.MQTT.TopicPrefix = def.Notifier.MQTT.TopicPrefix
	}
	cfg.Notifier.MQTT.TopicPrefix = strings.TrimSuffix(cfg.Notifier.MQTT.TopicPrefix, "/")

	switch cfg.Sound {
	case "":
		cfg.Sound = def.Sound
	case SoundNone, SoundOto:
	case SoundCommand:
		if strings.TrimSpace(cfg.SoundCommand) == "" {
			return cfg, errors.New("soundCommand is required when sound is command")
		}
	default:
		return cfg, fmt.Errorf("sound must be none, oto or command, got %q", cfg.Sound)
	}

	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = DefaultHTTPAddr
	}
	switch cfg.Log.Format {
	case "":
		cfg.Log.Format = "console"
	case "console", "json":
	default:
		return cfg, fmt.Errorf("log.format must be console or json, got %q", cfg.Log.Format)
	}
	return cfg, nil
}
