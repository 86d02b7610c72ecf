package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Config represents the persisted settings shared by the daemon, CLI and web server.
type Config struct {
	Store              StoreConfig    `json:"store"`
	SnoozeSeconds      int            `json:"snoozeSeconds"`
	AutoStopSeconds    int            `json:"autoStopSeconds"`
	TimerResyncSeconds int            `json:"timerResyncSeconds"`
	DefaultRingtone    string         `json:"defaultRingtone"`
	Notifier           NotifierConfig `json:"notifier"`
	Sound              string         `json:"sound"`
	SoundCommand       string         `json:"soundCommand,omitempty"`
	HTTP               HTTPConfig     `json:"http"`
	Log                LogConfig      `json:"log"`
}

// StoreConfig selects where alarms are kept.
type StoreConfig struct {
	Backend    string      `json:"backend"`
	Path       string      `json:"path,omitempty"`
	SQLitePath string      `json:"sqlitePath,omitempty"`
	Namespace  string      `json:"namespace"`
	Redis      RedisConfig `json:"redis"`
}

// RedisConfig Redis connection settings.
type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db"`
}

// NotifierConfig selects how ringing alarms are announced.
type NotifierConfig struct {
	Kind string     `json:"kind"`
	MQTT MQTTConfig `json:"mqtt"`
}

// MQTTConfig MQTT broker settings.
type MQTTConfig struct {
	Broker      string `json:"broker"`
	ClientID    string `json:"clientId"`
	Username    string `json:"username,omitempty"`
	Password    string `json:"password,omitempty"`
	TopicPrefix string `json:"topicPrefix"`
	QoS         byte   `json:"qos"`
}

type HTTPConfig struct {
	Addr string `json:"addr"`
}

type LogConfig struct {
	Format string `json:"format"`
}

const (
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"

	NotifierLog  = "log"
	NotifierMQTT = "mqtt"

	SoundNone    = "none"
	SoundOto     = "oto"
	SoundCommand = "command"
)

var (
	// DefaultSnoozeSeconds is how long a snooze lasts when the caller gives no delay.
	DefaultSnoozeSeconds = 300
	// DefaultAutoStopSeconds silences an unattended alarm.
	DefaultAutoStopSeconds = 60
	// DefaultTimerResyncSeconds bounds how long the timer sleeps between wall clock checks.
	DefaultTimerResyncSeconds = 30
	// DefaultHTTPAddr is where serve listens.
	DefaultHTTPAddr = "127.0.0.1:8787"
)

// DefaultConfig returns the initial configuration.
func DefaultConfig() Config {
	dir := Dir()
	return Config{
		Store: StoreConfig{
			Backend:    BackendFile,
			Path:       filepath.Join(dir, "alarms.json"),
			SQLitePath: filepath.Join(dir, "alarms.db"),
			Namespace:  "alarm-manager",
			Redis:      RedisConfig{Addr: "localhost:6379"},
		},
		SnoozeSeconds:      DefaultSnoozeSeconds,
		AutoStopSeconds:    DefaultAutoStopSeconds,
		TimerResyncSeconds: DefaultTimerResyncSeconds,
		DefaultRingtone:    "default",
		Notifier: NotifierConfig{
			Kind: NotifierLog,
			MQTT: MQTTConfig{
				Broker:      "tcp://localhost:1883",
				ClientID:    "alarm-manager",
				TopicPrefix: "alarm-manager",
				QoS:         1,
			},
		},
		Sound: SoundOto,
		HTTP:  HTTPConfig{Addr: DefaultHTTPAddr},
		Log:   LogConfig{Format: "console"},
	}
}

func (c Config) SnoozeDelay() time.Duration {
	return time.Duration(c.SnoozeSeconds) * time.Second
}

func (c Config) AutoStop() time.Duration {
	return time.Duration(c.AutoStopSeconds) * time.Second
}

func (c Config) TimerResync() time.Duration {
	return time.Duration(c.TimerResyncSeconds) * time.Second
}

// Store persists configuration to disk so the CLI and the daemon share it.
type Store interface {
	Load() (Config, error)
	Save(Config) error
}

// FileStore implements Store using a JSON file.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store under the supplied path. Parent directories are created automatically.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("path is required")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}
	return &FileStore{path: path}, nil
}

// Path returns the backing file.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the configuration file or returns defaults if it does not exist.
// Fields missing from the file keep their defaults; environment overrides apply last.
func (s *FileStore) Load() (Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := DefaultConfig()
	data, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return Config{}, fmt.Errorf("read config: %w", err)
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("unmarshal config: %w", err)
		}
	}

	cfg.LoadFromEnv("ALARM")
	return Normalize(cfg)
}

// Save writes the configuration to disk atomically.
func (s *FileStore) Save(cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tmp := s.path + ".tmp"
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write tmp: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("rename tmp: %w", err)
	}
	return nil
}
