package repository

import (
	"context"
	"fmt"

	"alarm-manager/internal/domain"
)

// Backend names a storage implementation.
type Backend string

const (
	BackendFile   Backend = "file"
	BackendRedis  Backend = "redis"
	BackendSQLite Backend = "sqlite"
)

// Options selects and configures a backend.
type Options struct {
	Backend    Backend
	Path       string
	SQLitePath string
	Namespace  string
	Redis      RedisOptions
}

// Store is an opened backend plus its description and cleanup.
type Store struct {
	domain.AlarmRepository
	Source string
	close  func() error
}

// Close releases the backend's connection, if any.
func (s *Store) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// Open builds the backend selected by opts.
func Open(ctx context.Context, opts Options) (*Store, error) {
	switch opts.Backend {
	case BackendFile, "":
		path := opts.Path
		if path == "" {
			path = DefaultPath()
		}
		repo, err := NewFileRepository(path)
		if err != nil {
			return nil, err
		}
		return &Store{AlarmRepository: repo, Source: path}, nil

	case BackendRedis:
		client, err := DialRedis(ctx, opts.Redis)
		if err != nil {
			return nil, err
		}
		repo := NewRedisRepository(NewRedisKVStore(client), opts.Namespace)
		return &Store{
			AlarmRepository: repo,
			Source:          "redis://" + opts.Redis.Addr + "/" + repo.Key(),
			close:           client.Close,
		}, nil

	case BackendSQLite:
		repo, err := OpenSQLite(opts.SQLitePath, opts.Namespace)
		if err != nil {
			return nil, err
		}
		return &Store{AlarmRepository: repo, Source: opts.SQLitePath, close: repo.Close}, nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", opts.Backend)
	}
}

// Upsert replaces the alarm with the same ID, or appends it.
// It is a load-modify-save and not safe for concurrent callers.
func Upsert(repo domain.AlarmRepository, alarm domain.Alarm) error {
	alarms, err := repo.Load()
	if err != nil {
		return err
	}
	for i := range alarms {
		if alarms[i].ID == alarm.ID {
			alarms[i] = alarm
			return repo.Save(alarms)
		}
	}
	return repo.Save(append(alarms, alarm))
}

// Remove deletes the alarm with the given ID. Removing an absent ID is a no-op.
func Remove(repo domain.AlarmRepository, id string) error {
	alarms, err := repo.Load()
	if err != nil {
		return err
	}
	for i := range alarms {
		if alarms[i].ID == id {
			return repo.Save(append(alarms[:i], alarms[i+1:]...))
		}
	}
	return nil
}
