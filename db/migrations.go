package db

import (
	"fmt"

	"github.com/hopnetwork/reconciler/log"
	migrate "github.com/rubenv/sql-migrate"
)

// RunMigrations applies the given migration source on the SQLite DB at dbPath
func RunMigrations(dbPath string, migrations migrate.MigrationSource) error {
	db, err := NewSQLiteDB(dbPath)
	if err != nil {
		return fmt.Errorf("error creating DB %w", err)
	}
	defer db.Close()

	nMigrations, err := migrate.Exec(db, "sqlite3", migrations, migrate.Up)
	if err != nil {
		return fmt.Errorf("error executing migration %w", err)
	}

	log.Infof("successfully ran %d migrations", nMigrations)
	return nil
}
