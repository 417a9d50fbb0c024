package configutil

import (
	"database/sql"
	"fmt"
	devenv "lapets-backend/dev/env"
	"net/url"
	"os"
	"path/filepath"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

// Database selects the record store, either a local sqlite file or a
// remote libsql server when `url` is set.
type Database struct {
	File      string `json:"file"`
	Url       string `json:"url"`
	AuthToken string `json:"auth_token"`
}

const sqlitePragmas = "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)"

func wrapOpenDB(err error) error {
	return fmt.Errorf("open db: %w", err)
}

// OpenDB opens the configured database and applies schema to it, schema
// statements must be idempotent (CREATE ... IF NOT EXISTS).
func (config Database) OpenDB(schema string) (*sql.DB, error) {
	var db *sql.DB
	var err error
	if config.Url != "" {
		db, err = openRemote(config.Url, config.AuthToken)
	} else {
		db, err = OpenSqlite(config.File)
	}
	if err != nil {
		return nil, err
	}

	if schema != "" {
		_, err = db.Exec(schema)
		if err != nil {
			db.Close()
			return nil, wrapOpenDB(err)
		}
	}
	return db, nil
}

func openRemote(dbUrl, authToken string) (*sql.DB, error) {
	if authToken != "" {
		parsed, err := url.Parse(dbUrl)
		if err != nil {
			return nil, wrapOpenDB(err)
		}
		query := parsed.Query()
		query.Set("authToken", authToken)
		parsed.RawQuery = query.Encode()
		dbUrl = parsed.String()
	}
	db, err := sql.Open("libsql", dbUrl)
	if err != nil {
		return nil, wrapOpenDB(err)
	}
	return db, nil
}

// OpenSqlite opens a local sqlite database, `path` may be ":memory:" or
// start with <dev_state>.
func OpenSqlite(path string) (*sql.DB, error) {
	if path == "" {
		return nil, wrapOpenDB(fmt.Errorf("a path was not specified"))
	}

	if path != ":memory:" {
		var err error
		path, err = devenv.ResolvePath(path)
		if err != nil {
			return nil, wrapOpenDB(err)
		}
		err = os.MkdirAll(filepath.Dir(path), 0777)
		if err != nil {
			return nil, wrapOpenDB(err)
		}
	}

	// pragmas in the dsn are applied to every connection the pool opens
	db, err := sql.Open("sqlite", path+sqlitePragmas)
	if err != nil {
		return nil, wrapOpenDB(err)
	}

	// see this stackoverflow post for information on why the following
	// lines exist: https://stackoverflow.com/questions/35804884/sqlite-concurrent-writing-performance
	db.SetMaxOpenConns(1)

	return db, nil
}
