// Package db implements SQLite commands on the pure-Go modernc driver.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/ormasoftchile/specscript/pkg/kernel/engine"
	"github.com/ormasoftchile/specscript/pkg/kernel/node"
)

const group = "db"

// ErrorType tags command errors raised by SQLite.
const ErrorType = "sqlite"

// KeyDefaults holds the SQLiteDefaults set by the "SQLite defaults" command.
const KeyDefaults engine.SessionKey = "db.sqlite.defaults"

// Handlers returns the database commands.
func Handlers() []*engine.Handler {
	return []*engine.Handler{Defaults, SQLite}
}

// Options is the argument of the SQLite command.
type Options struct {
	File   string   `yaml:"file,omitempty" json:"file,omitempty" jsonschema:"description=Database file; defaults to the session default"`
	Update []string `yaml:"update,omitempty" json:"update,omitempty" jsonschema:"description=Statements executed in order before the query"`
	Query  string   `yaml:"query,omitempty" json:"query,omitempty" jsonschema:"description=SELECT statement whose rows become the output"`
}

// SQLiteDefaults are session-wide settings for the SQLite command.
type SQLiteDefaults struct {
	File string `yaml:"file" json:"file" jsonschema:"required"`
}

// Defaults sets the database file used when SQLite names none.
var Defaults = &engine.Handler{
	Name:  "SQLite defaults",
	Group: group,
	Args:  &SQLiteDefaults{},
	Object: func(c *engine.Context, arg *node.Object) (any, error) {
		var d SQLiteDefaults
		if err := node.Decode(arg, &d); err != nil {
			return nil, engine.FormatError("SQLite defaults: %v", err)
		}
		if d.File == "" {
			return nil, engine.FormatError("SQLite defaults: expected field 'file'")
		}
		d.File = absolute(c, d.File)
		c.Session.Set(KeyDefaults, d)
		return nil, nil
	},
}

// SQLite runs the update statements, then the query. The result is the
// list of query rows as objects with columns in select order, or nil
// without a query.
var SQLite = &engine.Handler{
	Name:  "SQLite",
	Group: group,
	Args:  &Options{},
	Object: func(c *engine.Context, arg *node.Object) (any, error) {
		var opts Options
		if err := node.Decode(arg, &opts); err != nil {
			return nil, engine.FormatError("SQLite: %v", err)
		}
		file := opts.File
		if file == "" {
			d, ok := engine.SessionValue[SQLiteDefaults](c.Session, KeyDefaults)
			if !ok {
				return nil, engine.FormatError("SQLite: no file given and no SQLite defaults set")
			}
			file = d.File
		}

		db, err := Open(absolute(c, file))
		if err != nil {
			return nil, engine.InternalError(err, "SQLite")
		}
		defer db.Close()

		ctx := c.Context()
		for _, stmt := range opts.Update {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return nil, sqliteError(err, stmt)
			}
		}
		if strings.TrimSpace(opts.Query) == "" {
			return nil, nil
		}
		rows, err := Query(ctx, db, opts.Query)
		if err != nil {
			return nil, sqliteError(err, opts.Query)
		}
		return rows, nil
	},
}

// Open opens a SQLite database file, creating it if needed.
func Open(path string) (*sql.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("database path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	return db, nil
}

// Query runs a statement and returns its rows as ordered objects.
func Query(ctx context.Context, db *sql.DB, query string) ([]any, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	out := []any{}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := node.NewObject()
		for i, col := range cols {
			row.Set(col, column(values[i]))
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func column(v any) any {
	switch val := v.(type) {
	case int64:
		return int(val)
	case []byte:
		return string(val)
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	default:
		return val
	}
}

// sqliteError turns a driver error into a command error. Data carries the
// statement and, when the driver reports one, the SQLite result code.
func sqliteError(err error, stmt string) error {
	data := node.ObjectOf("statement", stmt)
	var se *msqlite.Error
	if errors.As(err, &se) {
		data.Set("code", se.Code())
		if isConstraint(se.Code()) {
			data.Set("constraint", true)
		}
	}
	return &engine.CommandError{Type: ErrorType, Message: err.Error(), Data: data, Err: err}
}

func isConstraint(code int) bool {
	return code&0xff == sqlite3lib.SQLITE_CONSTRAINT
}

func absolute(c *engine.Context, path string) string {
	if path == ":memory:" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.ScriptDir, path)
}
