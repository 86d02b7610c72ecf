package repository

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"crawshaw.io/sqlite"
	"crawshaw.io/sqlite/sqlitex"

	"alarm-manager/internal/adapter/secondary/repository/migration"
	"alarm-manager/internal/domain"
)

// SQLiteRepository implements domain.AlarmRepository as one row of the documents table.
type SQLiteRepository struct {
	mu        sync.Mutex
	conn      *sqlite.Conn
	path      string
	namespace string
}

// OpenSQLite opens (creating if needed) the database at path and migrates it.
func OpenSQLite(path, namespace string) (*SQLiteRepository, error) {
	if namespace == "" {
		namespace = Namespace
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}

	conn, err := sqlite.OpenConn(path, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := Migrate(conn, migration.Scripts); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate %s: %w", path, err)
	}

	return &SQLiteRepository{conn: conn, path: path, namespace: namespace}, nil
}

func (r *SQLiteRepository) Load() ([]domain.Alarm, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var (
		payload string
		found   bool
	)
	err := sqlitex.Exec(r.conn, "select payload from documents where namespace = ?", func(stmt *sqlite.Stmt) error {
		payload = stmt.ColumnText(0)
		found = true
		return nil
	}, r.namespace)
	if err != nil {
		return nil, fmt.Errorf("select alarms: %w", err)
	}
	if !found {
		return nil, nil
	}

	alarms, err := Decode([]byte(payload))
	if err != nil {
		return nil, &domain.CorruptStateError{Source: r.path, Err: err}
	}
	return alarms, nil
}

func (r *SQLiteRepository) Save(alarms []domain.Alarm) (err error) {
	data, err := Encode(alarms)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	release := sqlitex.Save(r.conn)
	defer release(&err)

	err = sqlitex.Exec(r.conn,
		`insert into documents (namespace, payload, updated_at) values (?, ?, ?)
		on conflict(namespace) do update set payload = excluded.payload, updated_at = excluded.updated_at`,
		nil, r.namespace, string(data), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert alarms: %w", err)
	}
	return nil
}

// Close releases the database connection.
func (r *SQLiteRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conn.Close()
}
