package repository

import (
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"

	"crawshaw.io/sqlite"
	"crawshaw.io/sqlite/sqlitex"
)

// Migrate runs every *.sql script in fsys that is newer than the database's
// user_version, in name order, inside one savepoint.
func Migrate(conn *sqlite.Conn, fsys fs.FS) (err error) {
	release := sqlitex.Save(conn)
	defer release(&err)

	var applied int
	if err = sqlitex.ExecTransient(conn, "pragma user_version", func(stmt *sqlite.Stmt) error {
		applied = stmt.ColumnInt(0)
		return nil
	}); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	scripts, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	if applied >= len(scripts) {
		return nil
	}

	sort.Strings(scripts)
	for _, name := range scripts[applied:] {
		if err := runScript(conn, fsys, name); err != nil {
			return err
		}
	}

	if err := sqlitex.Exec(conn, "pragma user_version="+strconv.Itoa(len(scripts)), nil); err != nil {
		return fmt.Errorf("set schema version: %w", err)
	}
	return nil
}

func runScript(conn *sqlite.Conn, fsys fs.FS, name string) error {
	buf, err := fs.ReadFile(fsys, name)
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}

	queries := strings.TrimSpace(string(buf))
	for i := 0; queries != ""; i++ {
		stmt, trailing, err := conn.PrepareTransient(queries)
		if err != nil {
			return fmt.Errorf("prepare %s, stmt %d: %w", name, i, err)
		}
		queries = strings.TrimSpace(queries[len(queries)-trailing:])
		_, err = stmt.Step()
		stmt.Finalize()
		if err != nil {
			return fmt.Errorf("execute %s, stmt %d: %w", name, i, err)
		}
	}
	return nil
}
