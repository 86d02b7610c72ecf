package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

// ErrLocked means another process owns the alarm store.
var ErrLocked = errors.New("alarm store is in use by another process")

// LockPath is the lock file guarding the store selected by opts.
func LockPath(opts Options) string {
	switch opts.Backend {
	case BackendSQLite:
		return opts.SQLitePath + ".lock"
	case BackendRedis:
		ns := opts.Namespace
		if ns == "" {
			ns = Namespace
		}
		addr := strings.NewReplacer(":", "_", "/", "_").Replace(opts.Redis.Addr)
		return filepath.Join(os.TempDir(), fmt.Sprintf("alarm-manager-redis-%s-%d-%s.lock", addr, opts.Redis.DB, ns))
	default:
		path := opts.Path
		if path == "" {
			path = DefaultPath()
		}
		return path + ".lock"
	}
}

// StoreLock is an exclusive lock on one alarm store.
type StoreLock struct {
	fl *flock.Flock
}

// Lock takes the store's lock. With wait > 0 it retries until wait has
// passed; otherwise it tries once. A held lock is ErrLocked.
func Lock(ctx context.Context, opts Options, wait time.Duration) (*StoreLock, error) {
	path := LockPath(opts)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}

	fl := flock.New(path)
	var (
		ok  bool
		err error
	)
	if wait > 0 {
		waitCtx, cancel := context.WithTimeout(ctx, wait)
		defer cancel()
		ok, err = fl.TryLockContext(waitCtx, 50*time.Millisecond)
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = nil
		}
	} else {
		ok, err = fl.TryLock()
	}
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	if !ok {
		return nil, ErrLocked
	}
	return &StoreLock{fl: fl}, nil
}

// Path returns the lock file.
func (l *StoreLock) Path() string {
	return l.fl.Path()
}

// Unlock releases the lock. The file is left in place.
func (l *StoreLock) Unlock() error {
	return l.fl.Unlock()
}
