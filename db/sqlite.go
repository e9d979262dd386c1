package db

import (
	"database/sql"
	"errors"

	"github.com/hermeznetwork/tracerr"
	_ "github.com/mattn/go-sqlite3"
)

const (
	// UniqueConstrain is the error code returned by sqlite when a unique
	// constraint is violated
	UniqueConstrain = 1555
)

var (
	// ErrNotFound is returned when a record is not found on the DB
	ErrNotFound = errors.New("not found")
)

// NewSQLiteDB creates a new SQLite DB
func NewSQLiteDB(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	_, err = db.Exec(`
		PRAGMA foreign_keys = ON;
		pragma journal_mode = WAL;
		pragma synchronous = normal;
		pragma journal_size_limit  = 6144000;
	`)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	return db, nil
}

// ReturnErrNotFound translates sql.ErrNoRows into ErrNotFound
func ReturnErrNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
