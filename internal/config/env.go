package config

import (
	"os"
	"strconv"
)

// LoadFromEnv applies <prefix>_* environment overrides.
func (c *Config) LoadFromEnv(prefix string) {
	c.Store.LoadFromEnv(prefix + "_STORE")
	c.Store.Redis.LoadFromEnv(prefix + "_REDIS")
	c.Notifier.MQTT.LoadFromEnv(prefix + "_MQTT")
	if c.Notifier.MQTT.Broker != "" && os.Getenv(prefix+"_MQTT_BROKER") != "" {
		c.Notifier.Kind = NotifierMQTT
	}
	if path := os.Getenv(prefix + "_SQLITE_PATH"); path != "" {
		c.Store.SQLitePath = path
	}
	c.Sound = getEnv(prefix+"_SOUND", c.Sound)
	c.SoundCommand = getEnv(prefix+"_SOUND_COMMAND", c.SoundCommand)
	c.HTTP.Addr = getEnv(prefix+"_HTTP_ADDR", c.HTTP.Addr)
	c.Log.Format = getEnv(prefix+"_LOG_FORMAT", c.Log.Format)
	c.DefaultRingtone = getEnv(prefix+"_DEFAULT_RINGTONE", c.DefaultRingtone)
	c.SnoozeSeconds = getEnvInt(prefix+"_SNOOZE_SECONDS", c.SnoozeSeconds)
}

// LoadFromEnv reads <prefix>_BACKEND and <prefix>_PATH.
func (c *StoreConfig) LoadFromEnv(prefix string) {
	c.Backend = getEnv(prefix+"_BACKEND", c.Backend)
	c.Path = getEnv(prefix+"_PATH", c.Path)
	c.Namespace = getEnv(prefix+"_NAMESPACE", c.Namespace)
}

// LoadFromEnv reads <prefix>_ADDR, <prefix>_PASSWORD and <prefix>_DB.
func (c *RedisConfig) LoadFromEnv(prefix string) {
	c.Addr = getEnv(prefix+"_ADDR", c.Addr)
	c.Password = getEnv(prefix+"_PASSWORD", c.Password)
	c.DB = getEnvInt(prefix+"_DB", c.DB)
}

// LoadFromEnv reads the broker, client and credential variables.
func (c *MQTTConfig) LoadFromEnv(prefix string) {
	c.Broker = getEnv(prefix+"_BROKER", c.Broker)
	c.ClientID = getEnv(prefix+"_CLIENT_ID", c.ClientID)
	c.Username = getEnv(prefix+"_USERNAME", c.Username)
	c.Password = getEnv(prefix+"_PASSWORD", c.Password)
	c.TopicPrefix = getEnv(prefix+"_TOPIC_PREFIX", c.TopicPrefix)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
