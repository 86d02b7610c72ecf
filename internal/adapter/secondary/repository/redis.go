package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"alarm-manager/internal/domain"
)

// ErrMissing means the key does not exist.
var ErrMissing = errors.New("key missing")

// KVStore is the subset of Redis the repository needs; tests swap in a fake.
type KVStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
}

// RedisKVStore is a go-redis backed KVStore.
type RedisKVStore struct {
	client *redis.Client
}

func NewRedisKVStore(client *redis.Client) *RedisKVStore {
	return &RedisKVStore{client: client}
}

func (r *RedisKVStore) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return "", ErrMissing
		}
		return "", err
	}
	return val, nil
}

func (r *RedisKVStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

// RedisOptions selects the Redis server.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// DialRedis creates a client and checks the connection.
func DialRedis(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	return client, nil
}

// RedisRepository implements domain.AlarmRepository as one key in a KVStore.
type RedisRepository struct {
	kv      KVStore
	key     string
	timeout time.Duration
}

// NewRedisRepository stores the alarm set under "<namespace>:alarms".
func NewRedisRepository(kv KVStore, namespace string) *RedisRepository {
	if namespace == "" {
		namespace = Namespace
	}
	return &RedisRepository{
		kv:      kv,
		key:     namespace + ":alarms",
		timeout: 5 * time.Second,
	}
}

// Key returns the Redis key holding the payload.
func (r *RedisRepository) Key() string {
	return r.key
}

func (r *RedisRepository) Load() ([]domain.Alarm, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	val, err := r.kv.Get(ctx, r.key)
	if err != nil {
		if errors.Is(err, ErrMissing) {
			return nil, nil
		}
		return nil, fmt.Errorf("get %s: %w", r.key, err)
	}

	alarms, err := Decode([]byte(val))
	if err != nil {
		return nil, &domain.CorruptStateError{Source: "redis:" + r.key, Err: err}
	}
	return alarms, nil
}

func (r *RedisRepository) Save(alarms []domain.Alarm) error {
	data, err := Encode(alarms)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.kv.Set(ctx, r.key, string(data), 0); err != nil {
		return fmt.Errorf("set %s: %w", r.key, err)
	}
	return nil
}
