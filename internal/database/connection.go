package database

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Connection wraps a read-only handle on the destination SQLite database.
// The migration only ever reads catalog metadata through it; all data
// changes go through the emitted SQL artifact instead.
type Connection struct {
	DB   *sql.DB
	Path string
}

func Open(path string) (*Connection, error) {
	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to reach database %s: %w", path, err)
	}

	return &Connection{DB: db, Path: path}, nil
}

func (c *Connection) Close() error {
	return c.DB.Close()
}
